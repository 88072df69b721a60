package service

import (
	"context"
	"errors"
	"log"
	"math"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samancikme/fizika/internal/apperror"
	"github.com/samancikme/fizika/internal/events"
	"github.com/samancikme/fizika/internal/metrics"
	"github.com/samancikme/fizika/internal/models"
	"github.com/samancikme/fizika/internal/repository"

	"github.com/google/uuid"
)

const MinNameLength = 3

type SessionStore interface {
	Get(ctx context.Context, userID string) (*models.Session, error)
	Save(ctx context.Context, session *models.Session) error
}

type TargetKind string

const (
	TargetCurrent TargetKind = "current"
	TargetNext    TargetKind = "next"
	TargetPrev    TargetKind = "prev"
	TargetIndex   TargetKind = "index"
)

type Target struct {
	Kind  TargetKind
	Index int
}

// NavigateResult holds either the question to show or, when the time limit
// had passed, the result of the session that was just completed.
type NavigateResult struct {
	View   *models.QuestionView `json:"view,omitempty"`
	Result *models.Result       `json:"result,omitempty"`
}

type FinishResult struct {
	Result            *models.Result `json:"result,omitempty"`
	NeedsConfirmation bool           `json:"needsConfirmation"`
	Unanswered        int            `json:"unanswered"`
}

type SessionStatus struct {
	State            models.SessionState  `json:"state"`
	SessionID        string               `json:"sessionId,omitempty"`
	Grade            int                  `json:"grade,omitempty"`
	Topic            string               `json:"topic,omitempty"`
	QuestionCount    int                  `json:"questionCount,omitempty"`
	TimeLimitMinutes int                  `json:"timeLimitMinutes,omitempty"`
	ResultID         string               `json:"resultId,omitempty"`
	View             *models.QuestionView `json:"view,omitempty"`
	Result           *models.Result       `json:"result,omitempty"`
}

// SessionService runs the per-user quiz state machine. Every operation takes
// the user's lock, so calls for one user never interleave while different
// users proceed independently.
type SessionService struct {
	sessions  SessionStore
	pins      *PinService
	questions *QuestionService
	results   ResultStore
	locker    Locker
	publisher events.Publisher
	rand      *lockedRand
	now       func() time.Time
	retry     retryPolicy
}

func NewSessionService(
	sessions SessionStore,
	pins *PinService,
	questions *QuestionService,
	results ResultStore,
	locker Locker,
	publisher events.Publisher,
	rng *rand.Rand,
) *SessionService {
	return &SessionService{
		sessions:  sessions,
		pins:      pins,
		questions: questions,
		results:   results,
		locker:    locker,
		publisher: publisher,
		rand:      newLockedRand(rng),
		now:       time.Now,
		retry:     defaultRetry,
	}
}

// Begin puts the user in the awaiting_pin state, abandoning a quiz that is
// still running.
func (s *SessionService) Begin(ctx context.Context, userID string) (*SessionStatus, error) {
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.settleForPin(ctx, rec); err != nil {
		return nil, err
	}
	if err := s.supersede(ctx, rec); err != nil {
		return nil, err
	}
	rec, err = awaitingPin(rec, userID)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, rec); err != nil {
		return nil, err
	}
	return s.status(rec), nil
}

// RedeemPin validates code for the user and moves to awaiting_name. A quiz
// whose time ran out is completed first. A failed redemption leaves the
// stored record as it was, so a running quiz survives a mistyped pin; a
// successful one abandons it.
func (s *SessionService) RedeemPin(ctx context.Context, userID, code string) (*models.Redemption, error) {
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.settleForPin(ctx, rec); err != nil {
		return nil, err
	}

	redemption, err := s.pins.Redeem(ctx, code, userID)
	if err != nil {
		return nil, err
	}

	if err := s.supersede(ctx, rec); err != nil {
		return nil, err
	}
	if rec, err = awaitingPin(rec, userID); err != nil {
		return nil, err
	}
	applyRedemption(rec, redemption)
	if err := rec.Transition(models.StateAwaitingName); err != nil {
		return nil, apperror.StateConflict("%v", err)
	}
	if err := s.save(ctx, rec); err != nil {
		return nil, err
	}
	return redemption, nil
}

// StartSession builds the attempt once the user has supplied a display name.
// The pin is checked again so that one expired or used up in the meantime
// cannot start a quiz.
func (s *SessionService) StartSession(ctx context.Context, userID, name string) (*models.QuestionView, error) {
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.State != models.StateAwaitingName {
		return nil, apperror.StateConflict("a pin must be redeemed before starting")
	}

	name = strings.Join(strings.Fields(name), " ")
	if utf8.RuneCountInString(name) < MinNameLength {
		return nil, apperror.InvalidInput("name must be at least %d characters", MinNameLength)
	}

	redemption, err := s.pins.Redeem(ctx, rec.PinCode, userID)
	if err != nil {
		if apperror.CodeOf(err) != apperror.CodeUnavailable {
			s.backToPin(ctx, rec)
		}
		return nil, err
	}
	applyRedemption(rec, redemption)

	questions, err := s.questions.Sample(ctx, rec.Grade, rec.Topic, rec.QuestionCount)
	if err != nil {
		if apperror.CodeOf(err) == apperror.CodeEmpty {
			s.backToPin(ctx, rec)
		}
		return nil, err
	}

	snapshots := make([]models.QuestionSnapshot, len(questions))
	s.rand.with(func(rng *rand.Rand) {
		for i, q := range questions {
			snapshots[i] = Shuffle(q, rng)
		}
	})

	now := s.now()
	rec.UserName = name
	rec.Questions = snapshots
	rec.Answers = map[string]models.Answer{}
	rec.CurrentIndex = 0
	rec.StartedAt = now
	if err := rec.Transition(models.StateInProgress); err != nil {
		return nil, apperror.StateConflict("%v", err)
	}
	if err := s.save(ctx, rec); err != nil {
		return nil, err
	}

	metrics.SessionsStarted.Inc()
	metrics.ActiveSessions.Inc()
	log.Printf("Session %s started by %s (%s): pin %s, %d questions, %d min", rec.ID, userID, name, rec.PinCode, len(snapshots), rec.TimeLimitMinutes)
	s.publishSession(ctx, events.EventTypeSessionStarted, rec)

	return buildView(rec, now), nil
}

// SubmitAnswer records an answer for one question, replacing any earlier
// answer. If the time limit has passed the answer is not recorded and the
// returned result is that of the session completed by this call.
func (s *SessionService) SubmitAnswer(ctx context.Context, userID, sessionID string, index int, answer models.Answer) (*models.Result, error) {
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, result, err := s.active(ctx, userID, sessionID)
	if rec == nil {
		return result, err
	}

	if index < 0 || index >= rec.Total() {
		return nil, apperror.InvalidInput("question index %d out of range", index)
	}
	if err := validateAnswer(rec.Questions[index], answer); err != nil {
		return nil, err
	}

	if answer.Kind == models.AnswerText {
		answer.Text = strings.TrimSpace(answer.Text)
	}
	rec.SetAnswer(index, answer)
	if err := s.save(ctx, rec); err != nil {
		return nil, err
	}
	return nil, nil
}

// Navigate moves the cursor and returns the question under it. next and
// prev stop at the ends; an out of range index leaves the cursor alone.
func (s *SessionService) Navigate(ctx context.Context, userID, sessionID string, target Target) (*NavigateResult, error) {
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, result, err := s.active(ctx, userID, sessionID)
	if rec == nil {
		if result != nil {
			return &NavigateResult{Result: result}, err
		}
		return nil, err
	}

	current := rec.CurrentIndex
	switch target.Kind {
	case TargetCurrent, "":
	case TargetNext:
		if current < rec.Total()-1 {
			current++
		}
	case TargetPrev:
		if current > 0 {
			current--
		}
	case TargetIndex:
		if target.Index >= 0 && target.Index < rec.Total() {
			current = target.Index
		}
	default:
		return nil, apperror.InvalidInput("unknown navigation target %q", target.Kind)
	}

	if current != rec.CurrentIndex {
		rec.CurrentIndex = current
		if err := s.save(ctx, rec); err != nil {
			return nil, err
		}
	}
	return &NavigateResult{View: buildView(rec, s.now())}, nil
}

// Finish scores the session. With unanswered questions and force unset it
// only reports how many are missing.
func (s *SessionService) Finish(ctx context.Context, userID, sessionID string, force bool) (*FinishResult, error) {
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, result, err := s.active(ctx, userID, sessionID)
	if rec == nil {
		if result != nil {
			return &FinishResult{Result: result}, err
		}
		return nil, err
	}

	unanswered := rec.Unanswered()
	if unanswered > 0 && !force {
		return &FinishResult{NeedsConfirmation: true, Unanswered: unanswered}, nil
	}

	completion := models.CompletionFinished
	if unanswered > 0 {
		completion = models.CompletionForced
	}
	result, err = s.complete(ctx, rec, completion)
	if result == nil {
		return nil, err
	}
	return &FinishResult{Result: result, Unanswered: unanswered}, err
}

// Abandon ends the user's current attempt without a result. A quiz whose
// outcome is already fixed is completed instead and reported as a conflict.
func (s *SessionService) Abandon(ctx context.Context, userID string) error {
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	rec, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if rec == nil || rec.State == models.StateNotStarted || rec.State.IsTerminal() {
		return apperror.StateConflict("no active session to cancel")
	}
	if result, err := s.settle(ctx, rec); result != nil || err != nil {
		if result == nil {
			return err
		}
		return apperror.StateConflict("quiz already completed with result %s", result.ID)
	}
	return s.abandon(ctx, rec, "cancelled")
}

// Status reports the user's state and, while a quiz runs, the current
// question. It applies the same time check as every other call.
func (s *SessionService) Status(ctx context.Context, userID string) (*SessionStatus, error) {
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return &SessionStatus{State: models.StateNotStarted}, nil
	}

	if result, err := s.settle(ctx, rec); result != nil || err != nil {
		if result == nil {
			return nil, err
		}
		status := s.status(rec)
		status.Result = result
		return status, err
	}

	status := s.status(rec)
	if rec.State == models.StateInProgress {
		status.View = buildView(rec, s.now())
	}
	return status, nil
}

func (s *SessionService) lock(ctx context.Context, userID string) (func(), error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperror.InvalidInput("user id is required")
	}
	unlock, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return nil, apperror.Unavailable(err, "session is busy")
	}
	return unlock, nil
}

func (s *SessionService) load(ctx context.Context, userID string) (*models.Session, error) {
	rec, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, apperror.Unavailable(err, "failed to load session")
	}
	return rec, nil
}

func (s *SessionService) save(ctx context.Context, rec *models.Session) error {
	rec.UpdatedAt = s.now()
	if err := s.retry.do(ctx, func() error { return s.sessions.Save(ctx, rec) }); err != nil {
		return apperror.Unavailable(err, "failed to save session")
	}
	return nil
}

// active returns the user's in-progress session. If its time is up the
// session is completed first and only the result is returned.
func (s *SessionService) active(ctx context.Context, userID, sessionID string) (*models.Session, *models.Result, error) {
	rec, err := s.load(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if rec == nil {
		return nil, nil, apperror.StateConflict("no quiz in progress")
	}
	if sessionID != "" && rec.ID != sessionID {
		return nil, nil, apperror.StateConflict("session %s is not the current session", sessionID)
	}
	if rec.State != models.StateInProgress {
		return nil, nil, apperror.StateConflict("session is %s", rec.State)
	}
	if result, err := s.settle(ctx, rec); result != nil || err != nil {
		return nil, result, err
	}
	return rec, nil, nil
}

// settle completes an in-progress record whose outcome is already fixed:
// its result was stored by an earlier call that failed to save the record,
// or its time ran out. It returns nil for a record that is still live.
func (s *SessionService) settle(ctx context.Context, rec *models.Session) (*models.Result, error) {
	if rec == nil || rec.State != models.StateInProgress {
		return nil, nil
	}
	stored, err := s.findResult(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		log.Printf("Session %s already has result %s, finishing its completion", rec.ID, stored.ID)
		return s.finalize(ctx, rec, stored)
	}
	if rec.Expired(s.now()) {
		return s.complete(ctx, rec, models.CompletionTimeExpired)
	}
	return nil, nil
}

// settleForPin runs settle before a pin is entered. Only an error that left
// no result behind stops the caller.
func (s *SessionService) settleForPin(ctx context.Context, rec *models.Session) error {
	if result, err := s.settle(ctx, rec); result == nil && err != nil {
		return err
	}
	return nil
}

// supersede abandons rec if it is still a running quiz.
func (s *SessionService) supersede(ctx context.Context, rec *models.Session) error {
	if rec == nil || rec.State != models.StateInProgress {
		return nil
	}
	return s.abandon(ctx, rec, "superseded")
}

// awaitingPin returns rec moved to awaiting_pin, or a fresh record when rec
// is missing or terminal.
func awaitingPin(rec *models.Session, userID string) (*models.Session, error) {
	if rec == nil || rec.State.IsTerminal() {
		rec = &models.Session{ID: uuid.NewString(), UserID: userID, State: models.StateNotStarted}
	}
	if rec.State != models.StateAwaitingPin {
		if err := rec.Transition(models.StateAwaitingPin); err != nil {
			return nil, apperror.StateConflict("%v", err)
		}
	}
	applyRedemption(rec, nil)
	return rec, nil
}

func (s *SessionService) backToPin(ctx context.Context, rec *models.Session) {
	if err := rec.Transition(models.StateAwaitingPin); err != nil {
		return
	}
	applyRedemption(rec, nil)
	if err := s.save(ctx, rec); err != nil {
		log.Printf("Error resetting session %s to awaiting pin: %v", rec.ID, err)
	}
}

// complete scores rec and makes the outcome durable in a fixed order: the
// result, then the completed record, then the pin attempt. The result id is
// the session id, so when an earlier call already stored it the stored
// document wins and the fresh score is discarded.
func (s *SessionService) complete(ctx context.Context, rec *models.Session, completion models.CompletionType) (*models.Result, error) {
	result := scoreSession(rec, completion, s.now())

	err := s.retry.do(ctx, func() error {
		err := s.results.Append(ctx, result)
		if errors.Is(err, repository.ErrDuplicate) {
			stored, findErr := s.results.FindBySession(ctx, rec.ID)
			if findErr != nil {
				return findErr
			}
			if stored != nil {
				result = stored
			}
			return nil
		}
		return err
	})
	if err != nil {
		log.Printf("Error saving result for session %s: %v", rec.ID, err)
		return nil, apperror.Unavailable(err, "failed to save result")
	}
	return s.finalize(ctx, rec, result)
}

// finalize tombstones rec as completed with its stored result and records
// the pin attempt. A session that is no longer in progress never reaches
// this point, so the attempt is recorded once. An attempt that cannot be
// recorded is returned alongside the result.
func (s *SessionService) finalize(ctx context.Context, rec *models.Session, result *models.Result) (*models.Result, error) {
	pinCode, pinCreatedBy := rec.PinCode, rec.PinCreatedBy
	if err := rec.Transition(models.StateCompleted); err != nil {
		return nil, apperror.StateConflict("%v", err)
	}
	rec.EndedAt = result.CompletedAt
	rec.ResultID = result.ID
	rec.Tombstone()
	if err := s.save(ctx, rec); err != nil {
		return nil, err
	}

	metrics.ActiveSessions.Dec()
	metrics.SessionsCompleted.WithLabelValues(string(result.Completion)).Inc()
	metrics.ScorePercent.Observe(result.Score)
	log.Printf("Session %s completed (%s): %d/%d, score %.1f", rec.ID, result.Completion, result.Correct, result.Total, result.Score)

	var attemptErr error
	err := s.retry.do(ctx, func() error {
		err := s.pins.RecordAttempt(ctx, pinCode, rec.UserID)
		if apperror.CodeOf(err) == apperror.CodeNotFound {
			attemptErr = err
			return nil
		}
		return err
	})
	if err != nil {
		attemptErr = err
	}
	if attemptErr != nil {
		log.Printf("Error: result %s saved but attempt on pin %s not recorded: %v", result.ID, pinCode, attemptErr)
	}

	if s.publisher != nil {
		event := &events.SessionCompletedEvent{
			SessionEvent: *events.NewSessionEvent(events.EventTypeSessionCompleted, rec.ID, rec.UserID, result.UserName, pinCode, result.Grade, result.Topic),
			ResultID:     result.ID,
			Score:        result.Score,
			Correct:      result.Correct,
			Total:        result.Total,
			TimeSeconds:  result.TimeSeconds,
			Completion:   string(result.Completion),
			PinCreatedBy: pinCreatedBy,
		}
		if err := s.publisher.PublishSessionCompleted(ctx, event); err != nil {
			log.Printf("Warning: failed to publish session completed event: %v", err)
		}
	}
	return result, attemptErr
}

func (s *SessionService) findResult(ctx context.Context, sessionID string) (*models.Result, error) {
	result, err := s.results.FindBySession(ctx, sessionID)
	if err != nil {
		return nil, apperror.Unavailable(err, "failed to look up result")
	}
	return result, nil
}

func (s *SessionService) abandon(ctx context.Context, rec *models.Session, reason string) error {
	wasRunning := rec.State == models.StateInProgress
	s.publishSession(ctx, events.EventTypeSessionAbandoned, rec)

	if err := rec.Transition(models.StateAbandoned); err != nil {
		return apperror.StateConflict("%v", err)
	}
	rec.EndedAt = s.now()
	rec.Tombstone()
	if err := s.save(ctx, rec); err != nil {
		return err
	}

	if wasRunning {
		metrics.ActiveSessions.Dec()
	}
	metrics.SessionsAbandoned.Inc()
	log.Printf("Session %s of %s abandoned (%s)", rec.ID, rec.UserID, reason)
	return nil
}

func (s *SessionService) publishSession(ctx context.Context, eventType events.EventType, rec *models.Session) {
	if s.publisher == nil {
		return
	}
	event := events.NewSessionEvent(eventType, rec.ID, rec.UserID, rec.UserName, rec.PinCode, rec.Grade, rec.Topic)
	var err error
	switch eventType {
	case events.EventTypeSessionStarted:
		err = s.publisher.PublishSessionStarted(ctx, event)
	case events.EventTypeSessionAbandoned:
		err = s.publisher.PublishSessionAbandoned(ctx, event)
	}
	if err != nil {
		log.Printf("Warning: failed to publish %s event: %v", eventType, err)
	}
}

func (s *SessionService) status(rec *models.Session) *SessionStatus {
	return &SessionStatus{
		State:            rec.State,
		SessionID:        rec.ID,
		Grade:            rec.Grade,
		Topic:            rec.Topic,
		QuestionCount:    rec.QuestionCount,
		TimeLimitMinutes: rec.TimeLimitMinutes,
		ResultID:         rec.ResultID,
	}
}

// applyRedemption copies quiz parameters onto rec; nil clears them.
func applyRedemption(rec *models.Session, r *models.Redemption) {
	if r == nil {
		r = &models.Redemption{}
	}
	rec.PinCode = r.Code
	rec.PinCreatedBy = r.CreatedBy
	rec.Grade = r.Grade
	rec.Topic = r.Topic
	rec.QuestionCount = r.QuestionCount
	rec.TimeLimitMinutes = r.TimeLimitMinutes
}

func validateAnswer(q models.QuestionSnapshot, a models.Answer) error {
	switch q.Kind {
	case models.KindMultipleChoice:
		if a.Kind != models.AnswerChoice {
			return apperror.InvalidInput("question expects an option")
		}
		if a.Index < 0 || a.Index >= len(q.Options) {
			return apperror.InvalidInput("option %d out of range", a.Index)
		}
	case models.KindFreeText:
		if a.Kind != models.AnswerText {
			return apperror.InvalidInput("question expects a text answer")
		}
		if strings.TrimSpace(a.Text) == "" {
			return apperror.InvalidInput("answer must not be empty")
		}
	}
	return nil
}

// scoreSession builds the result from the snapshots. Unanswered questions
// count as wrong. For a timed out session the time is capped at the limit.
func scoreSession(rec *models.Session, completion models.CompletionType, now time.Time) *models.Result {
	details := make([]models.ResultDetail, len(rec.Questions))
	correct := 0
	for i, q := range rec.Questions {
		detail := models.ResultDetail{
			QuestionText:  q.Text,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
		}
		if a, ok := rec.Answer(i); ok {
			answer := a
			detail.UserAnswer = &answer
			detail.IsCorrect = a.Matches(q.CorrectAnswer)
		}
		if detail.IsCorrect {
			correct++
		}
		details[i] = detail
	}

	elapsed := now.Sub(rec.StartedAt)
	if limit := time.Duration(rec.TimeLimitMinutes) * time.Minute; completion == models.CompletionTimeExpired && elapsed > limit {
		elapsed = limit
	}

	return &models.Result{
		ID:          rec.ID,
		SessionID:   rec.ID,
		UserID:      rec.UserID,
		UserName:    rec.UserName,
		PinCode:     rec.PinCode,
		Grade:       rec.Grade,
		Topic:       rec.Topic,
		Score:       ScorePercent(correct, len(rec.Questions)),
		Correct:     correct,
		Total:       len(rec.Questions),
		TimeSeconds: math.Round(elapsed.Seconds()*10) / 10,
		Completion:  completion,
		CompletedAt: now,
		Details:     details,
	}
}

func buildView(rec *models.Session, now time.Time) *models.QuestionView {
	q := rec.Questions[rec.CurrentIndex]
	view := &models.QuestionView{
		SessionID: rec.ID,
		Index:     rec.CurrentIndex,
		Total:     rec.Total(),
		Text:      q.Text,
		Kind:      q.Kind,
		Options:   append([]string(nil), q.Options...),
		Images:    append([]string(nil), q.Images...),
		Answered:  make([]bool, rec.Total()),
	}
	for i := range rec.Questions {
		if _, ok := rec.Answer(i); ok {
			view.Answered[i] = true
			view.AnsweredCount++
		}
	}
	if a, ok := rec.Answer(rec.CurrentIndex); ok {
		view.Answer = &a
	}
	if remaining := rec.Deadline().Sub(now); remaining > 0 {
		view.RemainingSeconds = int(remaining.Seconds())
	}
	return view
}
