package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainlistings "campusxchange/internal/domain/listings"
)

// ListingDirectory reads the listing projection the catalog service keeps
// in the "listings" collection. The chat core only ever reads it; Save
// exists for fixture imports in dev environments.
type ListingDirectory struct {
	col *mongo.Collection
}

func NewListingDirectory(db *mongo.Database) *ListingDirectory {
	return &ListingDirectory{col: db.Collection("listings")}
}

func (d *ListingDirectory) ByID(ctx context.Context, id string) (*domainlistings.Listing, error) {
	var doc listingDocument
	if err := d.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainlistings.ErrListingNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (d *ListingDirectory) Save(ctx context.Context, listing *domainlistings.Listing) error {
	doc := listingDocument{
		ID:         listing.ID,
		SellerID:   listing.SellerID,
		Title:      listing.Title,
		PriceCents: listing.PriceCents,
		Status:     string(listing.Status),
	}
	opts := options.Update().SetUpsert(true)
	_, err := d.col.UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{"$set": doc}, opts)
	return err
}

type listingDocument struct {
	ID         string `bson:"_id"`
	SellerID   string `bson:"seller_id"`
	Title      string `bson:"title"`
	PriceCents int64  `bson:"price_cents"`
	Status     string `bson:"status"`
}

func (d listingDocument) toAggregate() *domainlistings.Listing {
	return &domainlistings.Listing{
		ID:         d.ID,
		SellerID:   d.SellerID,
		Title:      d.Title,
		PriceCents: d.PriceCents,
		Status:     domainlistings.ListingStatus(d.Status),
	}
}
