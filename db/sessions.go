package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"form-backend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SessionStore keeps scs session data in MongoDB. Expired documents are
// removed by a TTL index; Find also ignores them until the index catches up.
type SessionStore struct {
	coll *mongo.Collection
}

func NewSessionStore(ctx context.Context, database *mongo.Database) (*SessionStore, error) {
	coll := database.Collection("sessions")
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return nil, fmt.Errorf("sessions index: %w", err)
	}
	return &SessionStore{coll: coll}, nil
}

func (s *SessionStore) FindCtx(ctx context.Context, token string) ([]byte, bool, error) {
	var rec models.SessionRecord
	filter := bson.M{"_id": token, "expires_at": bson.M{"$gt": time.Now()}}
	err := s.coll.FindOne(ctx, filter).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rec.Data, true, nil
}

func (s *SessionStore) CommitCtx(ctx context.Context, token string, b []byte, expiry time.Time) error {
	rec := models.SessionRecord{Token: token, Data: b, ExpiresAt: expiry}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": token}, rec, options.Replace().SetUpsert(true))
	return err
}

func (s *SessionStore) DeleteCtx(ctx context.Context, token string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": token})
	return err
}

func (s *SessionStore) Find(token string) ([]byte, bool, error) {
	return s.FindCtx(context.Background(), token)
}

func (s *SessionStore) Commit(token string, b []byte, expiry time.Time) error {
	return s.CommitCtx(context.Background(), token, b, expiry)
}

func (s *SessionStore) Delete(token string) error {
	return s.DeleteCtx(context.Background(), token)
}
