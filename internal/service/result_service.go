package service

import (
	"context"
	"strings"
	"time"

	"github.com/samancikme/fizika/internal/apperror"
	"github.com/samancikme/fizika/internal/models"
)

const (
	DefaultResultLimit = 100
	MaxResultLimit     = 500
	TopResultCount     = 5
	historyLimit       = 10
)

type ResultStore interface {
	Append(ctx context.Context, result *models.Result) error
	FindBySession(ctx context.Context, sessionID string) (*models.Result, error)
	Query(ctx context.Context, q models.ResultQuery) ([]models.Result, error)
	Top(ctx context.Context, grade int, n int) ([]models.Result, error)
	Count(ctx context.Context, grade int) (int64, error)
}

// ResultService answers read queries over finished attempts.
type ResultService struct {
	repo      ResultStore
	questions QuestionStore
	now       func() time.Time
}

func NewResultService(repo ResultStore, questions QuestionStore) *ResultService {
	return &ResultService{repo: repo, questions: questions, now: time.Now}
}

// Query returns results newest first. A zero limit means DefaultResultLimit.
func (s *ResultService) Query(ctx context.Context, q models.ResultQuery) ([]models.Result, error) {
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultResultLimit
	case q.Limit > MaxResultLimit:
		q.Limit = MaxResultLimit
	}
	if q.PinCode != "" {
		q.PinCode = NormalizeCode(q.PinCode)
	}
	results, err := s.repo.Query(ctx, q)
	if err != nil {
		return nil, apperror.Unavailable(err, "failed to query results")
	}
	return results, nil
}

// UserHistory is the student's own recent results.
func (s *ResultService) UserHistory(ctx context.Context, userID string) ([]models.Result, error) {
	return s.Query(ctx, models.ResultQuery{UserID: userID, Limit: historyLimit})
}

// Since resolves a period name to a lower bound: "today" is local midnight,
// "week" the last seven days, "all" or "" no bound. Anything else must be an
// RFC 3339 timestamp.
func (s *ResultService) Since(period string) (time.Time, error) {
	now := s.now()
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "", "all":
		return time.Time{}, nil
	case "today":
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), nil
	case "week":
		return now.AddDate(0, 0, -7), nil
	}
	t, err := time.Parse(time.RFC3339, period)
	if err != nil {
		return time.Time{}, apperror.InvalidInput("unknown period %q", period)
	}
	return t, nil
}

// Aggregate rolls up question counts by grade and difficulty together with
// the best results. grade 0 means every grade.
func (s *ResultService) Aggregate(ctx context.Context, grade int) (*models.ResultAggregate, error) {
	stats, err := s.questions.Stats(ctx, grade)
	if err != nil {
		return nil, apperror.Unavailable(err, "failed to load question stats")
	}
	top, err := s.repo.Top(ctx, grade, TopResultCount)
	if err != nil {
		return nil, apperror.Unavailable(err, "failed to load top results")
	}
	total, err := s.repo.Count(ctx, grade)
	if err != nil {
		return nil, apperror.Unavailable(err, "failed to count results")
	}
	return &models.ResultAggregate{
		CountByGrade:      stats.ByGrade,
		CountByDifficulty: stats.ByDifficulty,
		TopResults:        top,
		TotalResults:      total,
		TotalQuestions:    stats.Total,
	}, nil
}
