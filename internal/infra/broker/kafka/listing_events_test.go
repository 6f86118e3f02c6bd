package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
)

type stubCloser struct {
	closed []string
	err    error
}

func (s *stubCloser) CloseForListing(ctx context.Context, listingID string) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.closed = append(s.closed, listingID)
	return 1, nil
}

func listingMessage(value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: "listing.events.v1", Value: []byte(value)}
}

func TestListingEventHandlerClosesOnSold(t *testing.T) {
	t.Parallel()
	closer := &stubCloser{}
	h := ListingEventHandler{Conversations: closer}

	msg := listingMessage(`{"type":"listing.sold.v1","data":{"listing_id":"listing-1"}}`)
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(closer.closed) != 1 || closer.closed[0] != "listing-1" {
		t.Errorf("closed listings: got %v, want [listing-1]", closer.closed)
	}
}

func TestListingEventHandlerClosesOnRemoved(t *testing.T) {
	t.Parallel()
	closer := &stubCloser{}
	h := ListingEventHandler{Conversations: closer}

	msg := listingMessage(`{"type":"listing.removed.v1","data":{"listing_id":"listing-2"}}`)
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(closer.closed) != 1 {
		t.Errorf("closed listings: got %v", closer.closed)
	}
}

func TestListingEventHandlerIgnoresOtherEvents(t *testing.T) {
	t.Parallel()
	closer := &stubCloser{}
	h := ListingEventHandler{Conversations: closer}

	msg := listingMessage(`{"type":"listing.price_changed.v1","data":{"listing_id":"listing-1"}}`)
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(closer.closed) != 0 {
		t.Errorf("unexpected closes: %v", closer.closed)
	}
}

func TestListingEventHandlerSkipsMalformedPayloads(t *testing.T) {
	t.Parallel()
	closer := &stubCloser{}
	h := ListingEventHandler{Conversations: closer}

	// Not retryable: the handler must swallow it so the offset commits.
	if err := h.Handle(context.Background(), listingMessage(`{not json`)); err != nil {
		t.Errorf("malformed payload: got %v, want nil", err)
	}
	if err := h.Handle(context.Background(), listingMessage(`{"type":"listing.sold.v1","data":{}}`)); err != nil {
		t.Errorf("missing listing_id: got %v, want nil", err)
	}
	if len(closer.closed) != 0 {
		t.Errorf("unexpected closes: %v", closer.closed)
	}
}

func TestListingEventHandlerPropagatesStoreErrors(t *testing.T) {
	t.Parallel()
	closer := &stubCloser{err: errors.New("store down")}
	h := ListingEventHandler{Conversations: closer}

	msg := listingMessage(`{"type":"listing.sold.v1","data":{"listing_id":"listing-1"}}`)
	if err := h.Handle(context.Background(), msg); err == nil {
		t.Error("store failure must be retryable, got nil")
	}
}
