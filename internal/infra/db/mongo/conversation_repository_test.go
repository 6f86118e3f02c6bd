package mongo

import (
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	domainchat "campusxchange/internal/domain/chat"
)

func TestOpenTripleFilterMatchesUniqueIndex(t *testing.T) {
	t.Parallel()
	doc := newConversationDocument(&domainchat.Conversation{
		ID:        "conv-1",
		BuyerID:   "buyer",
		SellerID:  "seller",
		ListingID: "listing-1",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	filter := openTripleFilter(doc)

	// The filter must line up with the partial unique index so a
	// duplicate-key re-read lands on the row that beat the upsert.
	want := map[string]any{
		"buyer_id":   "buyer",
		"seller_id":  "seller",
		"listing_id": "listing-1",
		"closed":     false,
	}
	if len(filter) != len(want) {
		t.Fatalf("filter keys: got %d, want %d", len(filter), len(want))
	}
	for key, val := range want {
		if filter[key] != val {
			t.Errorf("filter[%q]: got %v, want %v", key, filter[key], val)
		}
	}
}

func TestDuplicateKeyClassification(t *testing.T) {
	t.Parallel()
	raced := mongo.WriteException{WriteErrors: mongo.WriteErrors{
		{Code: 11000, Message: "E11000 duplicate key error collection: campusxchange.conversations"},
	}}
	if !mongo.IsDuplicateKeyError(raced) {
		t.Error("unique-index collision not treated as a duplicate key")
	}
	if mongo.IsDuplicateKeyError(errors.New("connection reset")) {
		t.Error("unrelated failure treated as a duplicate key")
	}
}
