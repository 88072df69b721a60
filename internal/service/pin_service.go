package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/samancikme/fizika/internal/apperror"
	"github.com/samancikme/fizika/internal/events"
	"github.com/samancikme/fizika/internal/metrics"
	"github.com/samancikme/fizika/internal/models"
	"github.com/samancikme/fizika/internal/repository"

	"github.com/google/uuid"
)

const (
	MaxBatchSize      = 100
	maxCodeCollisions = 10
)

var pinCodePattern = regexp.MustCompile(`^\d{8}$`)

type PinStore interface {
	Insert(ctx context.Context, pin *models.Pin) error
	InsertBatch(ctx context.Context, batch *models.PinBatch) error
	FindByCode(ctx context.Context, code string) (*models.Pin, error)
	RecordAttempt(ctx context.Context, code, userID string) (bool, error)
	Reset(ctx context.Context, code string) (bool, error)
	SetActive(ctx context.Context, code string, active bool) (bool, error)
	FindBatch(ctx context.Context, batchID string) (*models.PinBatch, error)
	BatchPins(ctx context.Context, batchID string) ([]models.Pin, error)
	ListBatches(ctx context.Context, limit int) ([]models.PinBatchSummary, error)
	Stats(ctx context.Context, now time.Time) (*models.PinStats, error)
}

type BatchRequest struct {
	Grade            int    `json:"grade"`
	Topic            string `json:"topic"`
	Count            int    `json:"count"`
	MultiUse         bool   `json:"multiUse"`
	MaxAttempts      int    `json:"maxAttempts"`
	ExpiryDays       int    `json:"expiryDays"`
	QuestionCount    int    `json:"questionCount"`
	TimeLimitMinutes int    `json:"timeLimitMinutes"`
	CreatedBy        string `json:"-"`
}

// Validate checks the batch parameters before any pin is generated.
func (r *BatchRequest) Validate() error {
	switch {
	case !models.IsValidGrade(r.Grade):
		return apperror.InvalidInput("grade must be one of %v", models.ValidGrades)
	case strings.TrimSpace(r.Topic) == "":
		return apperror.InvalidInput("topic is required")
	case r.Count < 1 || r.Count > MaxBatchSize:
		return apperror.InvalidInput("count must be between 1 and %d", MaxBatchSize)
	case r.MultiUse && r.MaxAttempts < 1:
		return apperror.InvalidInput("maxAttempts must be at least 1")
	case r.ExpiryDays < 1:
		return apperror.InvalidInput("expiryDays must be at least 1")
	case r.QuestionCount < 1:
		return apperror.InvalidInput("questionCount must be at least 1")
	case r.TimeLimitMinutes < 1:
		return apperror.InvalidInput("timeLimitMinutes must be at least 1")
	}
	return nil
}

// PinService issues access codes and tracks their consumption.
type PinService struct {
	repo         PinStore
	publisher    events.Publisher
	now          func() time.Time
	generateCode func() (string, error)
}

// NewPinService creates a new pin service
func NewPinService(repo PinStore, publisher events.Publisher) *PinService {
	return &PinService{
		repo:         repo,
		publisher:    publisher,
		now:          time.Now,
		generateCode: randomCode,
	}
}

// randomCode draws an 8-digit code uniformly from 00000000..99999999.
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(100_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%08d", n.Int64()), nil
}

// NormalizeCode strips the separators people type when copying a code.
func NormalizeCode(code string) string {
	return strings.NewReplacer(" ", "", "-", "", "\t", "").Replace(strings.TrimSpace(code))
}

// IssueBatch generates req.Count unique codes sharing the batch settings
// and stores the batch record alongside them.
func (s *PinService) IssueBatch(ctx context.Context, req BatchRequest) (*models.PinBatch, []models.Pin, error) {
	req.Topic = strings.TrimSpace(req.Topic)
	if !req.MultiUse {
		req.MaxAttempts = 1
	}
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	now := s.now()
	batch := &models.PinBatch{
		ID:               uuid.NewString(),
		Grade:            req.Grade,
		Topic:            req.Topic,
		Count:            req.Count,
		MultiUse:         req.MultiUse,
		MaxAttempts:      req.MaxAttempts,
		QuestionCount:    req.QuestionCount,
		TimeLimitMinutes: req.TimeLimitMinutes,
		CreatedBy:        req.CreatedBy,
		CreatedAt:        now,
		ExpiresAt:        now.AddDate(0, 0, req.ExpiryDays),
	}
	if err := s.repo.InsertBatch(ctx, batch); err != nil {
		return nil, nil, apperror.Unavailable(err, "failed to save pin batch")
	}

	pins := make([]models.Pin, 0, req.Count)
	for number := 1; number <= req.Count; number++ {
		pin, err := s.insertUnique(ctx, batch, number)
		if err != nil {
			log.Printf("Error issuing pin %d of batch %s: %v", number, batch.ID, err)
			return batch, pins, err
		}
		pins = append(pins, *pin)
	}
	metrics.PinsIssued.Add(float64(len(pins)))
	log.Printf("Issued %d pins in batch %s (grade %d, topic %s)", len(pins), batch.ID, batch.Grade, batch.Topic)

	if s.publisher != nil {
		event := events.NewPinBatchIssuedEvent(batch.ID, batch.Grade, batch.Topic, len(pins), batch.CreatedBy)
		if err := s.publisher.PublishPinBatchIssued(ctx, event); err != nil {
			log.Printf("Warning: failed to publish batch issued event: %v", err)
		}
	}
	return batch, pins, nil
}

// insertUnique relies on the unique index on the code: a collision is
// reported by the store and retried with a fresh code.
func (s *PinService) insertUnique(ctx context.Context, batch *models.PinBatch, number int) (*models.Pin, error) {
	for try := 0; try < maxCodeCollisions; try++ {
		code, err := s.generateCode()
		if err != nil {
			return nil, apperror.Unavailable(err, "failed to generate pin")
		}
		pin := &models.Pin{
			Code:             code,
			BatchID:          batch.ID,
			Number:           number,
			Grade:            batch.Grade,
			Topic:            batch.Topic,
			CreatedBy:        batch.CreatedBy,
			CreatedAt:        batch.CreatedAt,
			ExpiresAt:        batch.ExpiresAt,
			Active:           true,
			MultiUse:         batch.MultiUse,
			MaxAttempts:      batch.MaxAttempts,
			UsedBy:           []string{},
			QuestionCount:    batch.QuestionCount,
			TimeLimitMinutes: batch.TimeLimitMinutes,
		}
		err = s.repo.Insert(ctx, pin)
		if err == nil {
			return pin, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, apperror.Unavailable(err, "failed to save pin")
		}
	}
	return nil, apperror.Unavailable(repository.ErrDuplicate, "no free pin code after %d tries", maxCodeCollisions)
}

// Redeem checks that userID may start an attempt with code. It does not
// change the pin; consumption is recorded when the attempt completes.
func (s *PinService) Redeem(ctx context.Context, code, userID string) (*models.Redemption, error) {
	redemption, err := s.redeem(ctx, code, userID)
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(string(apperror.CodeOf(err)))
	}
	metrics.PinRedemptions.WithLabelValues(outcome).Inc()
	return redemption, err
}

func (s *PinService) redeem(ctx context.Context, code, userID string) (*models.Redemption, error) {
	code = NormalizeCode(code)
	if !pinCodePattern.MatchString(code) {
		return nil, apperror.InvalidInput("pin must be 8 digits")
	}

	pin, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, apperror.Unavailable(err, "failed to look up pin")
	}
	if pin == nil {
		return nil, apperror.NotFound("pin %s not found", code)
	}
	if pin.IsExpired(s.now()) {
		return nil, apperror.New(apperror.CodeExpired, "pin %s expired on %s", code, pin.ExpiresAt.Format("2006-01-02"))
	}
	if !pin.Active {
		return nil, apperror.New(apperror.CodeInactive, "pin %s is not active", code)
	}

	used := pin.AttemptsBy(userID)
	if !pin.MultiUse && used > 0 {
		return nil, apperror.New(apperror.CodeAlreadyUsed, "pin %s was already used", code)
	}
	if pin.MultiUse && used >= pin.MaxAttempts {
		return nil, apperror.New(apperror.CodeAttemptsExhausted, "all %d attempts for pin %s are used", pin.MaxAttempts, code)
	}

	return &models.Redemption{
		Code:             pin.Code,
		Grade:            pin.Grade,
		Topic:            pin.Topic,
		QuestionCount:    pin.QuestionCount,
		TimeLimitMinutes: pin.TimeLimitMinutes,
		CreatedBy:        pin.CreatedBy,
	}, nil
}

// RecordAttempt appends one attempt by userID. Callers must invoke it once
// per completed session.
func (s *PinService) RecordAttempt(ctx context.Context, code, userID string) error {
	ok, err := s.repo.RecordAttempt(ctx, code, userID)
	if err != nil {
		return apperror.Unavailable(err, "failed to record attempt")
	}
	if !ok {
		return apperror.NotFound("pin %s not found", code)
	}
	return nil
}

// Reset clears the recorded attempts of a pin and reactivates it. Results
// already written for the pin are kept.
func (s *PinService) Reset(ctx context.Context, code string) error {
	code = NormalizeCode(code)
	ok, err := s.repo.Reset(ctx, code)
	if err != nil {
		return apperror.Unavailable(err, "failed to reset pin")
	}
	if !ok {
		return apperror.NotFound("pin %s not found", code)
	}
	log.Printf("Pin %s reset", code)

	if s.publisher != nil {
		if err := s.publisher.PublishPinReset(ctx, code); err != nil {
			log.Printf("Warning: failed to publish pin reset event: %v", err)
		}
	}
	return nil
}

// Deactivate blocks further redemptions of code.
func (s *PinService) Deactivate(ctx context.Context, code string) error {
	code = NormalizeCode(code)
	ok, err := s.repo.SetActive(ctx, code, false)
	if err != nil {
		return apperror.Unavailable(err, "failed to deactivate pin")
	}
	if !ok {
		return apperror.NotFound("pin %s not found", code)
	}
	return nil
}

// Batch returns a batch together with its pins ordered by number.
func (s *PinService) Batch(ctx context.Context, batchID string) (*models.PinBatch, []models.Pin, error) {
	batch, err := s.repo.FindBatch(ctx, batchID)
	if err != nil {
		return nil, nil, apperror.Unavailable(err, "failed to load pin batch")
	}
	if batch == nil {
		return nil, nil, apperror.NotFound("pin batch %s not found", batchID)
	}
	pins, err := s.repo.BatchPins(ctx, batchID)
	if err != nil {
		return nil, nil, apperror.Unavailable(err, "failed to load batch pins")
	}
	return batch, pins, nil
}

// ListBatches returns the newest batches with their used counts. The limit
// falls back to 20 when it is outside 1..100.
func (s *PinService) ListBatches(ctx context.Context, limit int) ([]models.PinBatchSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	batches, err := s.repo.ListBatches(ctx, limit)
	if err != nil {
		return nil, apperror.Unavailable(err, "failed to list pin batches")
	}
	return batches, nil
}

// Stats counts pins by state as of now.
func (s *PinService) Stats(ctx context.Context) (*models.PinStats, error) {
	stats, err := s.repo.Stats(ctx, s.now())
	if err != nil {
		return nil, apperror.Unavailable(err, "failed to load pin stats")
	}
	return stats, nil
}
