package db

import (
	"context"
	"fmt"
	"time"

	"form-backend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Submissions struct {
	coll *mongo.Collection
}

func NewSubmissions(ctx context.Context, database *mongo.Database) (*Submissions, error) {
	coll := database.Collection("submissions")
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return nil, fmt.Errorf("submissions index: %w", err)
	}
	return &Submissions{coll: coll}, nil
}

func (s *Submissions) Create(ctx context.Context, sub *models.Submission) error {
	now := time.Now().UTC()
	sub.ID = primitive.NewObjectID()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	_, err := s.coll.InsertOne(ctx, sub)
	return err
}

func (s *Submissions) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Submission, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	subs := []models.Submission{}
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *Submissions) Get(ctx context.Context, id, userID primitive.ObjectID) (*models.Submission, error) {
	var sub models.Submission
	err := s.coll.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&sub)
	if err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

// Update replaces the stored submission owned by sub.UserID.
func (s *Submissions) Update(ctx context.Context, sub *models.Submission) error {
	sub.UpdatedAt = time.Now().UTC()
	result, err := s.coll.ReplaceOne(ctx, bson.M{"_id": sub.ID, "user_id": sub.UserID}, sub)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the submission and returns what was removed.
func (s *Submissions) Delete(ctx context.Context, id, userID primitive.ObjectID) (*models.Submission, error) {
	var sub models.Submission
	err := s.coll.FindOneAndDelete(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&sub)
	if err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}
