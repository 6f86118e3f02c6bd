package memory

import (
	"context"
	"sync"

	domainlistings "campusxchange/internal/domain/listings"
)

// ListingDirectory is an in-memory stand-in for the catalog service.
type ListingDirectory struct {
	mu    sync.RWMutex
	items map[string]*domainlistings.Listing
}

func NewListingDirectory() *ListingDirectory {
	return &ListingDirectory{items: make(map[string]*domainlistings.Listing)}
}

func (d *ListingDirectory) ByID(ctx context.Context, id string) (*domainlistings.Listing, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	listing, ok := d.items[id]
	if !ok {
		return nil, domainlistings.ErrListingNotFound
	}
	copied := *listing
	return &copied, nil
}

func (d *ListingDirectory) Save(ctx context.Context, listing *domainlistings.Listing) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	copied := *listing
	d.items[listing.ID] = &copied
	return nil
}

func (d *ListingDirectory) Remove(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.items, id)
	return nil
}

var _ domainlistings.Directory = (*ListingDirectory)(nil)
