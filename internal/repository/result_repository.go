package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/samancikme/fizika/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type ResultRepository struct {
	collection *mongo.Collection
}

// NewResultRepository creates a new result repository
func NewResultRepository(db *mongo.Database) *ResultRepository {
	return &ResultRepository{
		collection: db.Collection("results"),
	}
}

// CreateIndexes creates the unique session index and the query indexes.
func (r *ResultRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "completed_at", Value: -1}}},
		{Keys: bson.D{{Key: "completed_at", Value: -1}}},
		{Keys: bson.D{{Key: "pin", Value: 1}, {Key: "completed_at", Value: -1}}},
		{Keys: bson.D{{Key: "score", Value: -1}}},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create result indexes: %w", err)
	}
	return nil
}

// Append writes a result once. A second write for the same session returns
// ErrDuplicate and leaves the stored document untouched.
func (r *ResultRepository) Append(ctx context.Context, result *models.Result) error {
	if _, err := r.collection.InsertOne(ctx, result); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert result: %w", err)
	}
	return nil
}

// FindBySession returns the result written for sessionID, or nil if there is none.
func (r *ResultRepository) FindBySession(ctx context.Context, sessionID string) (*models.Result, error) {
	var result models.Result
	err := r.collection.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find result for session %s: %w", sessionID, err)
	}
	return &result, nil
}

// Query returns results matching q, newest first.
func (r *ResultRepository) Query(ctx context.Context, q models.ResultQuery) ([]models.Result, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "completed_at", Value: -1}}).
		SetLimit(int64(q.Limit))

	cursor, err := r.collection.Find(ctx, resultFilter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	var results []models.Result
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}
	return results, nil
}

// Top returns the n best scores, earliest first on ties, without details.
// Grade 0 covers all grades.
func (r *ResultRepository) Top(ctx context.Context, grade int, n int) ([]models.Result, error) {
	filter := bson.M{}
	if grade != 0 {
		filter["grade"] = grade
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "score", Value: -1}, {Key: "completed_at", Value: 1}}).
		SetLimit(int64(n)).
		SetProjection(bson.M{"details": 0})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load top results: %w", err)
	}
	var results []models.Result
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode top results: %w", err)
	}
	return results, nil
}

// Count counts results for grade, or all results when grade is 0.
func (r *ResultRepository) Count(ctx context.Context, grade int) (int64, error) {
	filter := bson.M{}
	if grade != 0 {
		filter["grade"] = grade
	}
	return r.collection.CountDocuments(ctx, filter)
}

func resultFilter(q models.ResultQuery) bson.M {
	filter := bson.M{}
	if q.PinCode != "" {
		filter["pin"] = q.PinCode
	}
	if q.UserID != "" {
		filter["user_id"] = q.UserID
	}
	if q.Grade != 0 {
		filter["grade"] = q.Grade
	}
	if !q.Since.IsZero() {
		filter["completed_at"] = bson.M{"$gte": q.Since}
	}
	return filter
}
