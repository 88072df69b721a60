package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/samancikme/fizika/internal/models"

	"github.com/google/uuid"
)

// In-memory implementations of the repositories. They back the tests and a
// single-node deployment without Redis.

type MemoryQuestionRepository struct {
	mu        sync.RWMutex
	questions []models.Question
}

// NewMemoryQuestionRepository returns an empty in-memory question store.
func NewMemoryQuestionRepository() *MemoryQuestionRepository {
	return &MemoryQuestionRepository{}
}

func (r *MemoryQuestionRepository) Insert(ctx context.Context, questions []models.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range questions {
		if questions[i].ID == "" {
			questions[i].ID = uuid.NewString()
		}
		if questions[i].CreatedAt.IsZero() {
			questions[i].CreatedAt = time.Now()
		}
		r.questions = append(r.questions, questions[i])
	}
	return nil
}

func (r *MemoryQuestionRepository) MatchingIDs(ctx context.Context, grade int, topic string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for _, q := range r.questions {
		if q.Grade == grade && q.Topic == topic {
			ids = append(ids, q.ID)
		}
	}
	return ids, nil
}

func (r *MemoryQuestionRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byID := make(map[string]models.Question, len(r.questions))
	for _, q := range r.questions {
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

func (r *MemoryQuestionRepository) DistinctTopics(ctx context.Context, grade int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var topics []string
	for _, q := range r.questions {
		if q.Grade == grade && !seen[q.Topic] {
			seen[q.Topic] = true
			topics = append(topics, q.Topic)
		}
	}
	sort.Strings(topics)
	return topics, nil
}

func (r *MemoryQuestionRepository) Count(ctx context.Context, grade int, topic string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, q := range r.questions {
		if matchesQuestion(q, grade, topic) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryQuestionRepository) Delete(ctx context.Context, grade int, topic string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.questions[:0]
	var deleted int64
	for _, q := range r.questions {
		if matchesQuestion(q, grade, topic) {
			deleted++
			continue
		}
		kept = append(kept, q)
	}
	r.questions = kept
	return deleted, nil
}

func (r *MemoryQuestionRepository) Stats(ctx context.Context, grade int) (*models.QuestionStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := &models.QuestionStats{
		ByGrade:      make(map[int]int64),
		ByDifficulty: make(map[models.Difficulty]int64),
	}
	for _, q := range r.questions {
		if !matchesQuestion(q, grade, "") {
			continue
		}
		stats.Total++
		stats.ByGrade[q.Grade]++
		stats.ByDifficulty[q.Difficulty]++
	}
	return stats, nil
}

func matchesQuestion(q models.Question, grade int, topic string) bool {
	return (grade == 0 || q.Grade == grade) && (topic == "" || q.Topic == topic)
}

type MemoryPinRepository struct {
	mu      sync.RWMutex
	pins    map[string]*models.Pin
	batches map[string]*models.PinBatch
}

// NewMemoryPinRepository returns an empty in-memory pin store.
func NewMemoryPinRepository() *MemoryPinRepository {
	return &MemoryPinRepository{
		pins:    make(map[string]*models.Pin),
		batches: make(map[string]*models.PinBatch),
	}
}

// Insert returns ErrDuplicate when the code is taken.
func (r *MemoryPinRepository) Insert(ctx context.Context, pin *models.Pin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.pins[pin.Code]; exists {
		return ErrDuplicate
	}
	stored := *pin
	stored.UsedBy = append([]string{}, pin.UsedBy...)
	r.pins[pin.Code] = &stored
	return nil
}

func (r *MemoryPinRepository) InsertBatch(ctx context.Context, batch *models.PinBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *batch
	r.batches[batch.ID] = &stored
	return nil
}

func (r *MemoryPinRepository) FindByCode(ctx context.Context, code string) (*models.Pin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pin, ok := r.pins[code]
	if !ok {
		return nil, nil
	}
	out := *pin
	out.UsedBy = append([]string{}, pin.UsedBy...)
	return &out, nil
}

// RecordAttempt reports false for an unknown code.
func (r *MemoryPinRepository) RecordAttempt(ctx context.Context, code, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pin, ok := r.pins[code]
	if !ok {
		return false, nil
	}
	pin.UsedBy = append(pin.UsedBy, userID)
	pin.UsedCount++
	return true, nil
}

func (r *MemoryPinRepository) Reset(ctx context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pin, ok := r.pins[code]
	if !ok {
		return false, nil
	}
	pin.UsedBy = []string{}
	pin.UsedCount = 0
	pin.Active = true
	return true, nil
}

func (r *MemoryPinRepository) SetActive(ctx context.Context, code string, active bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pin, ok := r.pins[code]
	if !ok {
		return false, nil
	}
	pin.Active = active
	return true, nil
}

func (r *MemoryPinRepository) FindBatch(ctx context.Context, batchID string) (*models.PinBatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	batch, ok := r.batches[batchID]
	if !ok {
		return nil, nil
	}
	out := *batch
	return &out, nil
}

func (r *MemoryPinRepository) BatchPins(ctx context.Context, batchID string) ([]models.Pin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var pins []models.Pin
	for _, p := range r.pins {
		if p.BatchID == batchID {
			out := *p
			out.UsedBy = append([]string{}, p.UsedBy...)
			pins = append(pins, out)
		}
	}
	sort.Slice(pins, func(i, j int) bool { return pins[i].Number < pins[j].Number })
	return pins, nil
}

func (r *MemoryPinRepository) ListBatches(ctx context.Context, limit int) ([]models.PinBatchSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.PinBatchSummary, 0, len(r.batches))
	for _, b := range r.batches {
		summary := models.PinBatchSummary{PinBatch: *b}
		for _, p := range r.pins {
			if p.BatchID == b.ID && p.UsedCount > 0 {
				summary.Used++
			}
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryPinRepository) Stats(ctx context.Context, now time.Time) (*models.PinStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := &models.PinStats{}
	for _, p := range r.pins {
		stats.Total++
		if p.Active && !p.IsExpired(now) {
			stats.Active++
		}
		if p.UsedCount > 0 {
			stats.Used++
		}
	}
	return stats, nil
}

type MemoryResultRepository struct {
	mu      sync.RWMutex
	results []models.Result
}

// NewMemoryResultRepository returns an empty in-memory result store.
func NewMemoryResultRepository() *MemoryResultRepository {
	return &MemoryResultRepository{}
}

// Append returns ErrDuplicate when a result for the session exists.
func (r *MemoryResultRepository) Append(ctx context.Context, result *models.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.results {
		if existing.SessionID == result.SessionID {
			return ErrDuplicate
		}
	}
	r.results = append(r.results, *result)
	return nil
}

// FindBySession returns a copy of the stored result, or nil.
func (r *MemoryResultRepository) FindBySession(ctx context.Context, sessionID string) (*models.Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, existing := range r.results {
		if existing.SessionID == sessionID {
			found := existing
			return &found, nil
		}
	}
	return nil, nil
}

func (r *MemoryResultRepository) Query(ctx context.Context, q models.ResultQuery) ([]models.Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Result
	for _, res := range r.results {
		if q.PinCode != "" && res.PinCode != q.PinCode {
			continue
		}
		if q.UserID != "" && res.UserID != q.UserID {
			continue
		}
		if q.Grade != 0 && res.Grade != q.Grade {
			continue
		}
		if !q.Since.IsZero() && res.CompletedAt.Before(q.Since) {
			continue
		}
		out = append(out, res)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *MemoryResultRepository) Top(ctx context.Context, grade int, n int) ([]models.Result, error) {
	all, _ := r.Query(ctx, models.ResultQuery{Grade: grade})
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].CompletedAt.Before(all[j].CompletedAt)
	})
	if len(all) > n {
		all = all[:n]
	}
	for i := range all {
		all[i].Details = nil
	}
	return all, nil
}

func (r *MemoryResultRepository) Count(ctx context.Context, grade int) (int64, error) {
	all, _ := r.Query(ctx, models.ResultQuery{Grade: grade})
	return int64(len(all)), nil
}

// MemorySessionRepository round-trips records through JSON so callers never
// share mutable state with the store.
type MemorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string][]byte
}

// NewMemorySessionRepository keeps sessions in a map keyed by user id.
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[string][]byte)}
}

func (r *MemorySessionRepository) Get(ctx context.Context, userID string) (*models.Session, error) {
	r.mu.Lock()
	raw, ok := r.sessions[userID]
	r.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *MemorySessionRepository) Save(ctx context.Context, session *models.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.sessions[session.UserID] = raw
	r.mu.Unlock()
	return nil
}
