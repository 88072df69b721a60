package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"

	"github.com/samancikme/fizika/internal/apperror"
	"github.com/samancikme/fizika/internal/events"
	"github.com/samancikme/fizika/internal/ingest"
	"github.com/samancikme/fizika/internal/models"
)

type QuestionStore interface {
	Insert(ctx context.Context, questions []models.Question) error
	MatchingIDs(ctx context.Context, grade int, topic string) ([]string, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Question, error)
	DistinctTopics(ctx context.Context, grade int) ([]string, error)
	Count(ctx context.Context, grade int, topic string) (int64, error)
	Delete(ctx context.Context, grade int, topic string) (int64, error)
	Stats(ctx context.Context, grade int) (*models.QuestionStats, error)
}

// QuestionService is the question bank: sampling for sessions plus the
// admin operations that fill and prune it.
type QuestionService struct {
	repo      QuestionStore
	images    *ImageService
	publisher events.Publisher
	rand      *lockedRand
}

func NewQuestionService(repo QuestionStore, images *ImageService, publisher events.Publisher, rng *rand.Rand) *QuestionService {
	return &QuestionService{
		repo:      repo,
		images:    images,
		publisher: publisher,
		rand:      newLockedRand(rng),
	}
}

// Sample returns min(n, available) distinct questions for grade and topic,
// chosen uniformly at random.
func (s *QuestionService) Sample(ctx context.Context, grade int, topic string, n int) ([]models.Question, error) {
	if n < 1 {
		return nil, apperror.InvalidInput("question count must be at least 1")
	}
	ids, err := s.repo.MatchingIDs(ctx, grade, topic)
	if err != nil {
		return nil, apperror.Unavailable(err, "failed to list questions")
	}
	if len(ids) == 0 {
		return nil, apperror.New(apperror.CodeEmpty, "no questions for grade %d topic %q", grade, topic)
	}

	var picked []string
	s.rand.with(func(rng *rand.Rand) {
		picked = pickSubset(ids, n, rng)
	})

	questions, err := s.repo.FindByIDs(ctx, picked)
	if err != nil {
		return nil, apperror.Unavailable(err, "failed to load questions")
	}
	if len(questions) == 0 {
		return nil, apperror.New(apperror.CodeEmpty, "no questions for grade %d topic %q", grade, topic)
	}
	return questions, nil
}

func (s *QuestionService) DistinctTopics(ctx context.Context, grade int) ([]string, error) {
	topics, err := s.repo.DistinctTopics(ctx, grade)
	if err != nil {
		return nil, apperror.Unavailable(err, "failed to load topics")
	}
	return topics, nil
}

// Add validates and stores a single question entered by an admin.
func (s *QuestionService) Add(ctx context.Context, q *models.Question) error {
	q.Text = strings.TrimSpace(q.Text)
	q.Topic = strings.TrimSpace(q.Topic)
	if q.Kind == "" {
		q.Kind = models.KindMultipleChoice
	}
	if err := q.Validate(); err != nil {
		return apperror.InvalidInput("%v", err)
	}
	if err := s.repo.Insert(ctx, []models.Question{*q}); err != nil {
		return apperror.Unavailable(err, "failed to save question")
	}
	return nil
}

type ImportRequest struct {
	Document   []byte
	Grade      int
	Topic      string
	Difficulty models.Difficulty
}

type ImportReport struct {
	Imported int      `json:"imported"`
	Images   int      `json:"images"`
	Skipped  []string `json:"skipped,omitempty"`
}

// Import parses a .docx question sheet and stores every valid question under
// the given grade and topic. With the mixed difficulty each question gets a
// random concrete level.
func (s *QuestionService) Import(ctx context.Context, req ImportRequest) (*ImportReport, error) {
	req.Topic = strings.TrimSpace(req.Topic)
	switch {
	case !models.IsValidGrade(req.Grade):
		return nil, apperror.InvalidInput("grade must be one of %v", models.ValidGrades)
	case req.Topic == "":
		return nil, apperror.InvalidInput("topic is required")
	case !req.Difficulty.IsValid():
		return nil, apperror.InvalidInput("invalid difficulty %q", req.Difficulty)
	}

	parsed, err := ingest.ParseDocx(req.Document)
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidDocument) {
			return nil, apperror.InvalidInput("%v", err)
		}
		return nil, err
	}
	if len(parsed) == 0 {
		return nil, apperror.New(apperror.CodeEmpty, "no questions found in document")
	}

	report := &ImportReport{}
	questions := make([]models.Question, 0, len(parsed))
	for i, p := range parsed {
		q, images, err := s.fromParsed(ctx, p, req)
		if err != nil {
			if apperror.CodeOf(err) == apperror.CodeUnavailable {
				return nil, err
			}
			report.Skipped = append(report.Skipped, fmt.Sprintf("question %d: %v", questionNumber(p, i), err))
			continue
		}
		report.Images += images
		questions = append(questions, *q)
	}

	if len(questions) > 0 {
		if err := s.repo.Insert(ctx, questions); err != nil {
			return nil, apperror.Unavailable(err, "failed to save questions")
		}
	}
	report.Imported = len(questions)
	log.Printf("Imported %d questions for grade %d topic %s (%d skipped)", report.Imported, req.Grade, req.Topic, len(report.Skipped))

	if s.publisher != nil && report.Imported > 0 {
		event := events.NewQuestionImportedEvent(req.Grade, req.Topic, report.Imported, report.Images)
		if err := s.publisher.PublishQuestionImported(ctx, event); err != nil {
			log.Printf("Warning: failed to publish question imported event: %v", err)
		}
	}
	return report, nil
}

func (s *QuestionService) fromParsed(ctx context.Context, p models.ParsedQuestion, req ImportRequest) (*models.Question, int, error) {
	if p.Answer == nil {
		return nil, 0, fmt.Errorf("missing answer")
	}

	q := &models.Question{
		Text:          p.Text,
		Options:       p.Options,
		CorrectAnswer: *p.Answer,
		Kind:          models.KindMultipleChoice,
		Grade:         req.Grade,
		Topic:         req.Topic,
		Difficulty:    req.Difficulty,
		Explanation:   p.Explanation,
	}
	if p.Answer.Kind == models.AnswerText {
		q.Kind = models.KindFreeText
		q.Options = nil
	}
	if q.Difficulty == models.DifficultyMixed {
		s.rand.with(func(rng *rand.Rand) {
			q.Difficulty = models.ConcreteDifficulties[rng.IntN(len(models.ConcreteDifficulties))]
		})
	}
	if err := q.Validate(); err != nil {
		return nil, 0, err
	}

	if s.images != nil {
		for _, raw := range p.Images {
			id, err := s.images.Save(ctx, raw)
			if err != nil {
				return nil, 0, err
			}
			if !containsString(q.Images, id) {
				q.Images = append(q.Images, id)
			}
		}
	}
	return q, len(q.Images), nil
}

func questionNumber(p models.ParsedQuestion, index int) int {
	if p.Number > 0 {
		return p.Number
	}
	return index + 1
}

func (s *QuestionService) DeleteByGrade(ctx context.Context, grade int) (int64, error) {
	if !models.IsValidGrade(grade) {
		return 0, apperror.InvalidInput("grade must be one of %v", models.ValidGrades)
	}
	return s.delete(ctx, grade, "")
}

func (s *QuestionService) DeleteByTopic(ctx context.Context, grade int, topic string) (int64, error) {
	if strings.TrimSpace(topic) == "" {
		return 0, apperror.InvalidInput("topic is required")
	}
	return s.delete(ctx, grade, strings.TrimSpace(topic))
}

func (s *QuestionService) DeleteAll(ctx context.Context) (int64, error) {
	return s.delete(ctx, 0, "")
}

func (s *QuestionService) delete(ctx context.Context, grade int, topic string) (int64, error) {
	n, err := s.repo.Delete(ctx, grade, topic)
	if err != nil {
		return 0, apperror.Unavailable(err, "failed to delete questions")
	}
	log.Printf("Deleted %d questions (grade %d, topic %q)", n, grade, topic)
	return n, nil
}

func (s *QuestionService) Count(ctx context.Context, grade int, topic string) (int64, error) {
	n, err := s.repo.Count(ctx, grade, topic)
	if err != nil {
		return 0, apperror.Unavailable(err, "failed to count questions")
	}
	return n, nil
}

func (s *QuestionService) Stats(ctx context.Context, grade int) (*models.QuestionStats, error) {
	stats, err := s.repo.Stats(ctx, grade)
	if err != nil {
		return nil, apperror.Unavailable(err, "failed to load question stats")
	}
	return stats, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
