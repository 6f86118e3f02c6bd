package listings

import (
	"context"
	"errors"
)

// ErrListingNotFound is returned when a listing id resolves to nothing.
var ErrListingNotFound = errors.New("listings: listing not found")

type ListingStatus string

const (
	ListingActive ListingStatus = "active"
	ListingSold   ListingStatus = "sold"
)

// Listing is the slice of the marketplace catalog the chat core needs:
// enough to resolve a seller and to tell whether the item is still for sale.
// The catalog itself (search, images, pricing) lives outside this service.
type Listing struct {
	ID         string
	SellerID   string
	Title      string
	PriceCents int64
	Status     ListingStatus
}

// Sold reports whether the item has been sold.
func (l Listing) Sold() bool {
	return l.Status == ListingSold
}

// Directory resolves listing ids for the chat core.
type Directory interface {
	ByID(ctx context.Context, id string) (*Listing, error)
}
