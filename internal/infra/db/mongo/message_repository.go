package mongo

import (
	"context"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "campusxchange/internal/domain/chat"
)

// MessageRepository is the append-only message log backed by the
// "messages" collection. Timestamps are stored at millisecond precision,
// so the per-conversation lock can push two sends into the same
// created_at value; a process-monotonic sequence stamped on insert breaks
// the tie. The counter restarting after a redeploy is harmless because it
// only orders rows sharing a millisecond.
type MessageRepository struct {
	col *mongo.Collection
	seq atomic.Int64
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{col: db.Collection("messages")}
}

func (r *MessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "seq", Value: -1}},
	})
	return err
}

func (r *MessageRepository) Append(ctx context.Context, msg *domainchat.Message) error {
	_, err := r.col.InsertOne(ctx, r.nextDocument(msg))
	return err
}

// nextDocument stamps the insertion-order tiebreak onto the row.
func (r *MessageRepository) nextDocument(msg *domainchat.Message) messageDocument {
	doc := newMessageDocument(msg)
	doc.Seq = r.seq.Add(1)
	return doc
}

// List pages newest-first; the session manager reverses a page for display.
func (r *MessageRepository) List(ctx context.Context, conversationID string, offset, limit int) ([]*domainchat.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "seq", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := r.col.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*domainchat.Message
	for cursor.Next(ctx) {
		var doc messageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toAggregate())
	}
	return out, cursor.Err()
}

func (r *MessageRepository) Count(ctx context.Context, conversationID string) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{"conversation_id": conversationID})
}

func (r *MessageRepository) DeleteForConversation(ctx context.Context, conversationID string) error {
	_, err := r.col.DeleteMany(ctx, bson.M{"conversation_id": conversationID})
	return err
}

type messageDocument struct {
	ID             string `bson:"_id"`
	ConversationID string `bson:"conversation_id"`
	SenderID       string `bson:"sender_id"`
	Text           string `bson:"text"`
	Seen           bool   `bson:"seen"`
	CreatedAt      int64  `bson:"created_at"`
	Seq            int64  `bson:"seq"`
}

func newMessageDocument(m *domainchat.Message) messageDocument {
	return messageDocument{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Text:           m.Text,
		Seen:           m.Seen,
		CreatedAt:      m.CreatedAt.UnixMilli(),
	}
}

func (d messageDocument) toAggregate() *domainchat.Message {
	return &domainchat.Message{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		Text:           d.Text,
		Seen:           d.Seen,
		CreatedAt:      timestampToTime(d.CreatedAt),
	}
}
