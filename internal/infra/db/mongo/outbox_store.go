package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"campusxchange/internal/infra/outbox"
)

const (
	outboxPending = "pending"
	outboxClaimed = "claimed"
	outboxSent    = "sent"
)

// OutboxStore keeps pending events in the "outbox" collection. Claim uses
// findOneAndUpdate so two workers never publish the same event.
type OutboxStore struct {
	col *mongo.Collection
}

func NewOutboxStore(db *mongo.Database) *OutboxStore {
	return &OutboxStore{col: db.Collection("outbox")}
}

func (s *OutboxStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "available_at", Value: 1}, {Key: "occurred_at", Value: 1}},
	})
	return err
}

func (s *OutboxStore) Enqueue(ctx context.Context, doc *outbox.EventDocument) error {
	_, err := s.col.InsertOne(ctx, outboxDocument{
		ID:          doc.ID,
		Name:        doc.Name,
		Aggregate:   doc.Aggregate,
		Payload:     []byte(doc.Payload),
		Headers:     doc.Headers,
		Status:      outboxPending,
		OccurredAt:  doc.OccurredAt.UnixMilli(),
		AvailableAt: doc.OccurredAt.UnixMilli(),
	})
	return err
}

func (s *OutboxStore) Claim(ctx context.Context, workerID string) (*outbox.EventDocument, error) {
	now := time.Now()
	filter := bson.M{
		"status":       outboxPending,
		"available_at": bson.M{"$lte": now.UnixMilli()},
	}
	update := bson.M{
		"$set": bson.M{"status": outboxClaimed, "claimed_by": workerID, "claimed_at": now.UnixMilli()},
		"$inc": bson.M{"attempts": 1},
	}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "occurred_at", Value: 1}}).
		SetReturnDocument(options.After)

	var doc outboxDocument
	if err := s.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &outbox.EventDocument{
		ID:         doc.ID,
		Name:       doc.Name,
		Aggregate:  doc.Aggregate,
		Payload:    doc.Payload,
		Headers:    doc.Headers,
		OccurredAt: timestampToTime(doc.OccurredAt),
		Attempts:   doc.Attempts,
	}, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	_, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"status": outboxSent, "sent_at": time.Now().UnixMilli()}})
	return err
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id string, retryAt time.Time, reason string) error {
	update := bson.M{"$set": bson.M{
		"status":       outboxPending,
		"available_at": retryAt.UnixMilli(),
		"last_error":   reason,
	}}
	_, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, update)
	return err
}

type outboxDocument struct {
	ID          string            `bson:"_id"`
	Name        string            `bson:"name"`
	Aggregate   string            `bson:"aggregate"`
	Payload     []byte            `bson:"payload"`
	Headers     map[string]string `bson:"headers,omitempty"`
	Status      string            `bson:"status"`
	Attempts    int               `bson:"attempts"`
	OccurredAt  int64             `bson:"occurred_at"`
	AvailableAt int64             `bson:"available_at"`
	ClaimedBy   string            `bson:"claimed_by,omitempty"`
	LastError   string            `bson:"last_error,omitempty"`
}
