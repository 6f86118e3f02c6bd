package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "campusxchange/internal/domain/chat"
)

// ConversationRepository persists conversations in the "conversations"
// collection. Idempotent creation rides on an upsert keyed by the open
// (buyer, seller, listing) triple; unread increments use $inc so two
// concurrent sends never lose a count.
type ConversationRepository struct {
	col *mongo.Collection
}

func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	return &ConversationRepository{col: db.Collection("conversations")}
}

// EnsureIndexes creates the uniqueness and TTL indexes. The TTL index only
// marks rows eligible for server-side expiry as a backstop; the sweeper is
// the primary collector.
func (r *ConversationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "buyer_id", Value: 1}, {Key: "seller_id", Value: 1}, {Key: "listing_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"closed": false}),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
		{
			Keys: bson.D{{Key: "last_message_at", Value: -1}},
		},
	})
	return err
}

func (r *ConversationRepository) GetOrCreate(ctx context.Context, conv *domainchat.Conversation) (*domainchat.Conversation, bool, error) {
	doc := newConversationDocument(conv)
	filter := openTripleFilter(doc)
	update := bson.M{"$setOnInsert": doc}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var stored conversationDocument
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored); err != nil {
		if !mongo.IsDuplicateKeyError(err) {
			return nil, false, err
		}
		// A concurrent open of the same triple won the upsert and our
		// insert tripped the unique index. The winner's row exists now,
		// so read it back instead of failing.
		if err := r.col.FindOne(ctx, filter).Decode(&stored); err != nil {
			return nil, false, err
		}
	}
	return stored.toAggregate(), stored.ID == doc.ID, nil
}

// openTripleFilter matches the one open conversation for a (buyer,
// seller, listing) triple; it mirrors the partial unique index.
func openTripleFilter(doc conversationDocument) bson.M {
	return bson.M{
		"buyer_id":   doc.BuyerID,
		"seller_id":  doc.SellerID,
		"listing_id": doc.ListingID,
		"closed":     false,
	}
}

func (r *ConversationRepository) ByID(ctx context.Context, id string) (*domainchat.Conversation, error) {
	var doc conversationDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ConversationRepository) ForParticipant(ctx context.Context, userID string) ([]*domainchat.Conversation, error) {
	filter := bson.M{"$or": bson.A{bson.M{"buyer_id": userID}, bson.M{"seller_id": userID}}}
	opts := options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}})
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*domainchat.Conversation
	for cursor.Next(ctx) {
		var doc conversationDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toAggregate())
	}
	return out, cursor.Err()
}

func (r *ConversationRepository) RecordMessage(ctx context.Context, id string, summary domainchat.MessageSummary, unreadRole domainchat.Role) error {
	update := bson.M{
		"$set": bson.M{
			"last_message_text": summary.Text,
			"last_message_at":   summary.At.UnixMilli(),
			"updated_at":        time.Now().UnixMilli(),
		},
		"$inc": bson.M{unreadField(unreadRole): 1},
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainchat.ErrConversationNotFound
	}
	return nil
}

func (r *ConversationRepository) ResetUnread(ctx context.Context, id string, role domainchat.Role) error {
	update := bson.M{"$set": bson.M{
		unreadField(role): 0,
		"updated_at":      time.Now().UnixMilli(),
	}}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainchat.ErrConversationNotFound
	}
	return nil
}

func (r *ConversationRepository) CloseForListing(ctx context.Context, listingID string) (int, error) {
	update := bson.M{"$set": bson.M{"closed": true, "updated_at": time.Now().UnixMilli()}}
	res, err := r.col.UpdateMany(ctx, bson.M{"listing_id": listingID, "closed": false}, update)
	if err != nil {
		return 0, err
	}
	return int(res.ModifiedCount), nil
}

func (r *ConversationRepository) Delete(ctx context.Context, id string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (r *ConversationRepository) ExpiredBefore(ctx context.Context, now time.Time, limit int) ([]string, error) {
	opts := options.Find().
		SetLimit(int64(limit)).
		SetProjection(bson.M{"_id": 1})
	cursor, err := r.col.Find(ctx, bson.M{"expires_at": bson.M{"$lt": now.UTC()}}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.ID)
	}
	return ids, cursor.Err()
}

func (r *ConversationRepository) All(ctx context.Context) ([]*domainchat.Conversation, error) {
	cursor, err := r.col.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*domainchat.Conversation
	for cursor.Next(ctx) {
		var doc conversationDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toAggregate())
	}
	return out, cursor.Err()
}

func unreadField(role domainchat.Role) string {
	if role == domainchat.RoleSeller {
		return "unread_seller"
	}
	return "unread_buyer"
}

type conversationDocument struct {
	ID              string    `bson:"_id"`
	ListingID       string    `bson:"listing_id"`
	BuyerID         string    `bson:"buyer_id"`
	SellerID        string    `bson:"seller_id"`
	LastMessageText string    `bson:"last_message_text"`
	LastMessageAt   int64     `bson:"last_message_at"`
	UnreadBuyer     int       `bson:"unread_buyer"`
	UnreadSeller    int       `bson:"unread_seller"`
	Closed          bool      `bson:"closed"`
	ExpiresAt       time.Time `bson:"expires_at"`
	CreatedAt       int64     `bson:"created_at"`
	UpdatedAt       int64     `bson:"updated_at"`
}

func newConversationDocument(c *domainchat.Conversation) conversationDocument {
	lastMessageAt := c.LastMessageAt
	if lastMessageAt.IsZero() {
		lastMessageAt = c.CreatedAt
	}
	return conversationDocument{
		ID:              c.ID,
		ListingID:       c.ListingID,
		BuyerID:         c.BuyerID,
		SellerID:        c.SellerID,
		LastMessageText: c.LastMessageText,
		LastMessageAt:   lastMessageAt.UnixMilli(),
		UnreadBuyer:     c.Unread.Buyer,
		UnreadSeller:    c.Unread.Seller,
		Closed:          c.Closed,
		ExpiresAt:       c.ExpiresAt.UTC(),
		CreatedAt:       c.CreatedAt.UnixMilli(),
		UpdatedAt:       c.UpdatedAt.UnixMilli(),
	}
}

func (d conversationDocument) toAggregate() *domainchat.Conversation {
	return &domainchat.Conversation{
		ID:              d.ID,
		ListingID:       d.ListingID,
		BuyerID:         d.BuyerID,
		SellerID:        d.SellerID,
		LastMessageText: d.LastMessageText,
		LastMessageAt:   timestampToTime(d.LastMessageAt),
		Unread:          domainchat.UnreadCounters{Buyer: d.UnreadBuyer, Seller: d.UnreadSeller},
		Closed:          d.Closed,
		ExpiresAt:       d.ExpiresAt,
		CreatedAt:       timestampToTime(d.CreatedAt),
		UpdatedAt:       timestampToTime(d.UpdatedAt),
	}
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
