package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

type imageDocument struct {
	Hash      string    `bson:"_id"`
	Data      []byte    `bson:"data"`
	Size      int       `bson:"size"`
	CreatedAt time.Time `bson:"created_at"`
}

// MongoStore keeps blobs in the images collection keyed by content id.
type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		collection: db.Collection("images"),
	}
}

func (s *MongoStore) Store(ctx context.Context, data []byte) (string, error) {
	id := ContentID(data)

	doc := imageDocument{Hash: id, Data: data, Size: len(data), CreatedAt: time.Now()}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return id, nil
		}
		return "", fmt.Errorf("failed to store image: %w", err)
	}
	return id, nil
}

func (s *MongoStore) Load(ctx context.Context, id string) ([]byte, error) {
	var doc imageDocument
	if err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	return doc.Data, nil
}

func (s *MongoStore) Count(ctx context.Context) (int64, error) {
	return s.collection.CountDocuments(ctx, bson.M{})
}
