package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/IBM/sarama"
)

// ConversationCloser is the slice of the conversation store the listing
// event handler needs.
type ConversationCloser interface {
	CloseForListing(ctx context.Context, listingID string) (int, error)
}

// ListingEventHandler consumes catalog events and closes open
// conversations when their anchor listing is sold or removed. This is the
// external action behind the Open -> Closed transition; the chat service
// itself never closes threads.
type ListingEventHandler struct {
	Conversations ConversationCloser
	Logger        *slog.Logger
}

type listingEventEnvelope struct {
	Type string `json:"type"`
	Data struct {
		ListingID string `json:"listing_id"`
	} `json:"data"`
}

func (h ListingEventHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var envelope listingEventEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		h.log().Warn("listing event decode failed", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		// malformed payloads are not retryable
		return nil
	}
	if !closesConversations(envelope.Type) {
		return nil
	}
	listingID := strings.TrimSpace(envelope.Data.ListingID)
	if listingID == "" {
		return nil
	}
	closed, err := h.Conversations.CloseForListing(ctx, listingID)
	if err != nil {
		h.log().Error("closing conversations failed", "listing_id", listingID, "error", err)
		return err
	}
	if closed > 0 {
		h.log().Info("conversations closed", "listing_id", listingID, "event", envelope.Type, "count", closed)
	}
	return nil
}

func closesConversations(eventType string) bool {
	switch eventType {
	case "listing.sold.v1", "listing.removed.v1":
		return true
	}
	return false
}

func (h ListingEventHandler) log() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var _ MessageHandler = ListingEventHandler{}
