package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/samancikme/fizika/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type QuestionRepository struct {
	collection *mongo.Collection
}

// NewQuestionRepository creates a new question repository
func NewQuestionRepository(db *mongo.Database) *QuestionRepository {
	return &QuestionRepository{
		collection: db.Collection("questions"),
	}
}

// CreateIndexes creates the grade/topic and difficulty indexes.
func (r *QuestionRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "grade", Value: 1}, {Key: "topic", Value: 1}}},
		{Keys: bson.D{{Key: "difficulty", Value: 1}}},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create question indexes: %w", err)
	}
	return nil
}

// Insert assigns ids and creation times where missing and stores questions
// in one InsertMany call.
func (r *QuestionRepository) Insert(ctx context.Context, questions []models.Question) error {
	if len(questions) == 0 {
		return nil
	}
	docs := make([]any, 0, len(questions))
	for i := range questions {
		if questions[i].ID == "" {
			questions[i].ID = bson.NewObjectID().Hex()
		}
		if questions[i].CreatedAt.IsZero() {
			questions[i].CreatedAt = time.Now()
		}
		docs = append(docs, questions[i])
	}
	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert questions: %w", err)
	}
	return nil
}

// MatchingIDs lists the ids of every question for grade and topic.
func (r *QuestionRepository) MatchingIDs(ctx context.Context, grade int, topic string) ([]string, error) {
	filter := bson.M{"grade": grade, "topic": topic}
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list question ids: %w", err)
	}
	var idDocs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &idDocs); err != nil {
		return nil, fmt.Errorf("failed to decode question ids: %w", err)
	}

	ids := make([]string, len(idDocs))
	for i, d := range idDocs {
		ids[i] = d.ID
	}
	return ids, nil
}

// FindByIDs loads questions in the order of ids. Unknown ids are skipped.
func (r *QuestionRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	var found []models.Question
	if err := cursor.All(ctx, &found); err != nil {
		return nil, fmt.Errorf("failed to decode questions: %w", err)
	}

	byID := make(map[string]models.Question, len(found))
	for _, q := range found {
		byID[q.ID] = q
	}
	out := make([]models.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

// DistinctTopics returns the sorted topics present for grade.
func (r *QuestionRepository) DistinctTopics(ctx context.Context, grade int) ([]string, error) {
	var topics []string
	if err := r.collection.Distinct(ctx, "topic", bson.M{"grade": grade}).Decode(&topics); err != nil {
		return nil, fmt.Errorf("failed to load topics: %w", err)
	}
	sort.Strings(topics)
	return topics, nil
}

// Count counts questions for grade and topic; zero values match everything.
func (r *QuestionRepository) Count(ctx context.Context, grade int, topic string) (int64, error) {
	return r.collection.CountDocuments(ctx, questionFilter(grade, topic))
}

// Delete removes the questions matching grade and topic and returns how many
// were deleted.
func (r *QuestionRepository) Delete(ctx context.Context, grade int, topic string) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, questionFilter(grade, topic))
	if err != nil {
		return 0, fmt.Errorf("failed to delete questions: %w", err)
	}
	return result.DeletedCount, nil
}

// Stats groups the question counts by grade and by difficulty. Grade 0
// covers all grades.
func (r *QuestionRepository) Stats(ctx context.Context, grade int) (*models.QuestionStats, error) {
	stats := &models.QuestionStats{
		ByGrade:      make(map[int]int64),
		ByDifficulty: make(map[models.Difficulty]int64),
	}

	match := questionFilter(grade, "")
	var byGrade []struct {
		Grade int   `bson:"_id"`
		Count int64 `bson:"count"`
	}
	if err := r.group(ctx, match, "$grade", &byGrade); err != nil {
		return nil, err
	}
	for _, g := range byGrade {
		stats.ByGrade[g.Grade] = g.Count
		stats.Total += g.Count
	}

	var byDifficulty []struct {
		Difficulty models.Difficulty `bson:"_id"`
		Count      int64             `bson:"count"`
	}
	if err := r.group(ctx, match, "$difficulty", &byDifficulty); err != nil {
		return nil, err
	}
	for _, d := range byDifficulty {
		stats.ByDifficulty[d.Difficulty] = d.Count
	}
	return stats, nil
}

func (r *QuestionRepository) group(ctx context.Context, match bson.M, field string, out any) error {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: field}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("failed to aggregate questions by %s: %w", field, err)
	}
	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("failed to decode question aggregate: %w", err)
	}
	return nil
}

func questionFilter(grade int, topic string) bson.M {
	filter := bson.M{}
	if grade != 0 {
		filter["grade"] = grade
	}
	if topic != "" {
		filter["topic"] = topic
	}
	return filter
}
