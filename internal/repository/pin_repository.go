package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samancikme/fizika/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type PinRepository struct {
	pins    *mongo.Collection
	batches *mongo.Collection
}

// NewPinRepository creates a new pin repository
func NewPinRepository(db *mongo.Database) *PinRepository {
	return &PinRepository{
		pins:    db.Collection("pins"),
		batches: db.Collection("pin_batches"),
	}
}

// CreateIndexes creates the unique code index, the expiry index and the
// batch lookup indexes.
func (r *PinRepository) CreateIndexes(ctx context.Context) error {
	pinIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "pin", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		{Keys: bson.D{{Key: "batch_id", Value: 1}, {Key: "number", Value: 1}}},
	}
	if _, err := r.pins.Indexes().CreateMany(ctx, pinIndexes); err != nil {
		return fmt.Errorf("failed to create pin indexes: %w", err)
	}

	batchIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	}
	if _, err := r.batches.Indexes().CreateMany(ctx, batchIndexes); err != nil {
		return fmt.Errorf("failed to create pin batch indexes: %w", err)
	}
	return nil
}

// Insert stores one pin. A code collision returns ErrDuplicate.
func (r *PinRepository) Insert(ctx context.Context, pin *models.Pin) error {
	if pin.UsedBy == nil {
		pin.UsedBy = []string{}
	}
	if _, err := r.pins.InsertOne(ctx, pin); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert pin: %w", err)
	}
	return nil
}

// InsertBatch stores the batch record. Pins are inserted separately.
func (r *PinRepository) InsertBatch(ctx context.Context, batch *models.PinBatch) error {
	if _, err := r.batches.InsertOne(ctx, batch); err != nil {
		return fmt.Errorf("failed to insert pin batch: %w", err)
	}
	return nil
}

// FindByCode returns nil, nil when no pin has the code.
func (r *PinRepository) FindByCode(ctx context.Context, code string) (*models.Pin, error) {
	var pin models.Pin
	err := r.pins.FindOne(ctx, bson.M{"pin": code}).Decode(&pin)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find pin: %w", err)
	}
	return &pin, nil
}

// RecordAttempt appends userID to used_by and bumps used_count in one update.
func (r *PinRepository) RecordAttempt(ctx context.Context, code, userID string) (bool, error) {
	update := bson.M{
		"$push": bson.M{"used_by": userID},
		"$inc":  bson.M{"used_count": 1},
	}
	result, err := r.pins.UpdateOne(ctx, bson.M{"pin": code}, update)
	if err != nil {
		return false, fmt.Errorf("failed to record pin attempt: %w", err)
	}
	return result.MatchedCount > 0, nil
}

// Reset empties used_by, zeroes used_count and reactivates the pin. It
// reports false when no pin has the code.
func (r *PinRepository) Reset(ctx context.Context, code string) (bool, error) {
	update := bson.M{"$set": bson.M{"used_count": 0, "used_by": []string{}, "active": true}}
	result, err := r.pins.UpdateOne(ctx, bson.M{"pin": code}, update)
	if err != nil {
		return false, fmt.Errorf("failed to reset pin: %w", err)
	}
	return result.MatchedCount > 0, nil
}

// SetActive reports false when no pin has the code.
func (r *PinRepository) SetActive(ctx context.Context, code string, active bool) (bool, error) {
	result, err := r.pins.UpdateOne(ctx, bson.M{"pin": code}, bson.M{"$set": bson.M{"active": active}})
	if err != nil {
		return false, fmt.Errorf("failed to update pin: %w", err)
	}
	return result.MatchedCount > 0, nil
}

// FindBatch returns nil, nil for an unknown batch.
func (r *PinRepository) FindBatch(ctx context.Context, batchID string) (*models.PinBatch, error) {
	var batch models.PinBatch
	err := r.batches.FindOne(ctx, bson.M{"_id": batchID}).Decode(&batch)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find pin batch: %w", err)
	}
	return &batch, nil
}

// BatchPins lists the pins of a batch by number.
func (r *PinRepository) BatchPins(ctx context.Context, batchID string) ([]models.Pin, error) {
	opts := options.Find().SetSort(bson.D{{Key: "number", Value: 1}})
	cursor, err := r.pins.Find(ctx, bson.M{"batch_id": batchID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch pins: %w", err)
	}
	var pins []models.Pin
	if err := cursor.All(ctx, &pins); err != nil {
		return nil, fmt.Errorf("failed to decode batch pins: %w", err)
	}
	return pins, nil
}

// ListBatches returns the newest limit batches, each with the number of
// pins that have at least one attempt.
func (r *PinRepository) ListBatches(ctx context.Context, limit int) ([]models.PinBatchSummary, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	cursor, err := r.batches.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list pin batches: %w", err)
	}
	var batches []models.PinBatch
	if err := cursor.All(ctx, &batches); err != nil {
		return nil, fmt.Errorf("failed to decode pin batches: %w", err)
	}

	out := make([]models.PinBatchSummary, 0, len(batches))
	for _, b := range batches {
		used, err := r.pins.CountDocuments(ctx, bson.M{"batch_id": b.ID, "used_count": bson.M{"$gt": 0}})
		if err != nil {
			return nil, fmt.Errorf("failed to count used pins: %w", err)
		}
		out = append(out, models.PinBatchSummary{PinBatch: b, Used: used})
	}
	return out, nil
}

// Stats counts all pins, the pins still redeemable at now and the pins with
// at least one attempt.
func (r *PinRepository) Stats(ctx context.Context, now time.Time) (*models.PinStats, error) {
	total, err := r.pins.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to count pins: %w", err)
	}
	active, err := r.pins.CountDocuments(ctx, bson.M{"active": true, "expires_at": bson.M{"$gte": now}})
	if err != nil {
		return nil, fmt.Errorf("failed to count active pins: %w", err)
	}
	used, err := r.pins.CountDocuments(ctx, bson.M{"used_count": bson.M{"$gt": 0}})
	if err != nil {
		return nil, fmt.Errorf("failed to count used pins: %w", err)
	}
	return &models.PinStats{Total: total, Active: active, Used: used}, nil
}
