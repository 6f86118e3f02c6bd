package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	domainchat "campusxchange/internal/domain/chat"
	domainlistings "campusxchange/internal/domain/listings"
)

// Sweeper garbage-collects conversations on a schedule: threads past their
// retention expiry and threads whose anchor listing is gone or sold. It
// replaces destructive work inside inbox reads with an explicit background
// pass.
type Sweeper struct {
	Conversations domainchat.ConversationRepository
	Messages      domainchat.MessageRepository
	Listings      domainlistings.Directory
	Rooms         *Rooms
	Logger        *slog.Logger
	Interval      time.Duration
	BatchSize     int
}

// ErrSweeperNotConfigured signals missing dependencies.
var ErrSweeperNotConfigured = errors.New("chat: sweeper missing dependencies")

// Run loops until the context is done, sweeping once per interval.
func (w *Sweeper) Run(ctx context.Context) error {
	if w.Conversations == nil || w.Messages == nil || w.Listings == nil {
		return ErrSweeperNotConfigured
	}
	ticker := time.NewTicker(w.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.SweepOnce(ctx); err != nil {
				w.log().Error("sweep pass failed", "error", err)
			}
		}
	}
}

// SweepOnce performs a single collection pass.
func (w *Sweeper) SweepOnce(ctx context.Context) error {
	if err := w.sweepExpired(ctx); err != nil {
		return err
	}
	return w.sweepDeadListings(ctx)
}

func (w *Sweeper) sweepExpired(ctx context.Context) error {
	ids, err := w.Conversations.ExpiredBefore(ctx, time.Now(), w.batchSize())
	if err != nil {
		return err
	}
	for _, id := range ids {
		w.remove(ctx, id, "expired")
	}
	return nil
}

func (w *Sweeper) sweepDeadListings(ctx context.Context) error {
	convs, err := w.Conversations.All(ctx)
	if err != nil {
		return err
	}
	for _, conv := range convs {
		listing, err := w.Listings.ByID(ctx, conv.ListingID)
		switch {
		case errors.Is(err, domainlistings.ErrListingNotFound):
			w.remove(ctx, conv.ID, "listing gone")
		case err != nil:
			w.log().Warn("listing lookup failed during sweep", "listing_id", conv.ListingID, "error", err)
		case listing.Sold():
			w.remove(ctx, conv.ID, "listing sold")
		}
	}
	return nil
}

func (w *Sweeper) remove(ctx context.Context, conversationID, reason string) {
	if err := w.Conversations.Delete(ctx, conversationID); err != nil {
		w.log().Error("conversation delete failed", "conversation_id", conversationID, "error", err)
		return
	}
	if err := w.Messages.DeleteForConversation(ctx, conversationID); err != nil {
		w.log().Error("message log delete failed", "conversation_id", conversationID, "error", err)
	}
	if w.Rooms != nil {
		w.Rooms.Drop(conversationID)
	}
	w.log().Info("conversation swept", "conversation_id", conversationID, "reason", reason)
}

func (w *Sweeper) interval() time.Duration {
	if w.Interval <= 0 {
		return 10 * time.Minute
	}
	return w.Interval
}

func (w *Sweeper) batchSize() int {
	if w.BatchSize <= 0 {
		return 100
	}
	return w.BatchSize
}

func (w *Sweeper) log() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}
