package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"campusxchange/internal/domain/identity"
)

// SessionStore resolves bearer tokens issued by the upstream auth service
// from the shared "sessions" collection.
type SessionStore struct {
	col *mongo.Collection
}

func NewSessionStore(db *mongo.Database) *SessionStore {
	return &SessionStore{col: db.Collection("sessions")}
}

func (s *SessionStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	return err
}

func (s *SessionStore) ByToken(ctx context.Context, token string) (*identity.Session, error) {
	var doc sessionDocument
	if err := s.col.FindOne(ctx, bson.M{"_id": token}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, identity.ErrInvalidCredential
		}
		return nil, err
	}
	return doc.toSession(), nil
}

func (s *SessionStore) Save(ctx context.Context, session *identity.Session) error {
	doc := sessionDocument{
		Token:     session.Token,
		UserID:    session.UserID,
		UserName:  session.UserName,
		ExpiresAt: session.ExpiresAt.UTC(),
	}
	opts := options.Update().SetUpsert(true)
	_, err := s.col.UpdateOne(ctx, bson.M{"_id": doc.Token}, bson.M{"$set": doc}, opts)
	return err
}

type sessionDocument struct {
	Token     string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	UserName  string    `bson:"user_name"`
	ExpiresAt time.Time `bson:"expires_at"`
}

func (d sessionDocument) toSession() *identity.Session {
	return &identity.Session{
		Token:     d.Token,
		UserID:    d.UserID,
		UserName:  d.UserName,
		ExpiresAt: d.ExpiresAt,
	}
}
