package chat

import (
	"context"
	"testing"
	"time"

	domainlistings "campusxchange/internal/domain/listings"
)

func TestSweepOnceCollectsExpired(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seedListing(t, "listing-1", "seller", domainlistings.ListingActive)
	conv := env.open(t, "buyer", "listing-1")
	ctx := context.Background()

	if _, err := env.svc.SendMessage(ctx, "buyer", conv.ID, "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}

	sweeper := &Sweeper{
		Conversations: env.conversations,
		Messages:      env.messages,
		Listings:      env.listings,
		Rooms:         env.svc.Rooms(),
	}

	// Nothing is expired yet, so the pass must keep the thread.
	if err := sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if _, err := env.conversations.ByID(ctx, conv.ID); err != nil {
		t.Fatalf("live conversation swept: %v", err)
	}

	// Force expiry by rewriting the stored expiry into the past.
	expired := *conv
	expired.ExpiresAt = time.Now().Add(-time.Hour)
	if err := env.conversations.Delete(ctx, conv.ID); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, _, err := env.conversations.GetOrCreate(ctx, &expired); err != nil {
		t.Fatalf("restore expired: %v", err)
	}

	if err := sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("sweep expired: %v", err)
	}
	if _, err := env.conversations.ByID(ctx, conv.ID); err == nil {
		t.Error("expired conversation survived the sweep")
	}
	total, err := env.messages.Count(ctx, conv.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 0 {
		t.Errorf("message log survived the sweep: %d messages", total)
	}
}

func TestSweepOnceCollectsDeadListings(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seedListing(t, "listing-sold", "seller", domainlistings.ListingActive)
	env.seedListing(t, "listing-gone", "seller", domainlistings.ListingActive)
	env.seedListing(t, "listing-live", "seller", domainlistings.ListingActive)
	ctx := context.Background()

	soldConv := env.open(t, "buyer", "listing-sold")
	goneConv := env.open(t, "buyer", "listing-gone")
	liveConv := env.open(t, "buyer", "listing-live")

	env.seedListing(t, "listing-sold", "seller", domainlistings.ListingSold)
	if err := env.listings.Remove(ctx, "listing-gone"); err != nil {
		t.Fatalf("remove listing: %v", err)
	}

	sweeper := &Sweeper{
		Conversations: env.conversations,
		Messages:      env.messages,
		Listings:      env.listings,
	}
	if err := sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if _, err := env.conversations.ByID(ctx, soldConv.ID); err == nil {
		t.Error("sold-listing conversation survived the sweep")
	}
	if _, err := env.conversations.ByID(ctx, goneConv.ID); err == nil {
		t.Error("gone-listing conversation survived the sweep")
	}
	if _, err := env.conversations.ByID(ctx, liveConv.ID); err != nil {
		t.Errorf("live conversation swept: %v", err)
	}
}

func TestSweeperRequiresDependencies(t *testing.T) {
	t.Parallel()
	w := &Sweeper{}
	if err := w.Run(context.Background()); err != ErrSweeperNotConfigured {
		t.Errorf("Run: got %v, want ErrSweeperNotConfigured", err)
	}
}
