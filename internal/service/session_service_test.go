package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/samancikme/fizika/internal/apperror"
	"github.com/samancikme/fizika/internal/models"
	"github.com/samancikme/fizika/internal/repository"
)

type sessionEnv struct {
	engine    *SessionService
	pins      *PinService
	pinRepo   *repository.MemoryPinRepository
	questions *repository.MemoryQuestionRepository
	results   *repository.MemoryResultRepository
	sessions  *repository.MemorySessionRepository
	clock     *fakeClock
}

func newSessionEnv(t *testing.T, bankSize int) *sessionEnv {
	t.Helper()
	env := &sessionEnv{
		pinRepo:   repository.NewMemoryPinRepository(),
		questions: repository.NewMemoryQuestionRepository(),
		results:   repository.NewMemoryResultRepository(),
		sessions:  repository.NewMemorySessionRepository(),
		clock:     newFakeClock(),
	}
	seedQuestions(t, env.questions, 7, "Mexanika", bankSize)

	env.pins = NewPinService(env.pinRepo, nil)
	env.pins.now = env.clock.Now
	questions := NewQuestionService(env.questions, nil, nil, rand.New(rand.NewPCG(1, 2)))

	env.engine = NewSessionService(env.sessions, env.pins, questions, env.results, NewKeyedMutex(), nil, rand.New(rand.NewPCG(3, 4)))
	env.engine.now = env.clock.Now
	env.engine.retry = retryPolicy{attempts: 3, delay: time.Millisecond}
	return env
}

func (env *sessionEnv) issuePin(t *testing.T, topic string, questionCount, timeLimit int) string {
	t.Helper()
	_, pins, err := env.pins.IssueBatch(context.Background(), BatchRequest{
		Grade:            7,
		Topic:            topic,
		Count:            1,
		ExpiryDays:       1,
		QuestionCount:    questionCount,
		TimeLimitMinutes: timeLimit,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return pins[0].Code
}

// start redeems code for userID and starts the quiz.
func (env *sessionEnv) start(t *testing.T, userID, code string) *models.QuestionView {
	t.Helper()
	ctx := context.Background()
	if _, err := env.engine.RedeemPin(ctx, userID, code); err != nil {
		t.Fatalf("Unexpected error redeeming pin: %v", err)
	}
	view, err := env.engine.StartSession(ctx, userID, "Ali Valiyev")
	if err != nil {
		t.Fatalf("Unexpected error starting session: %v", err)
	}
	return view
}

func (env *sessionEnv) record(t *testing.T, userID string) *models.Session {
	t.Helper()
	rec, err := env.sessions.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return rec
}

func (env *sessionEnv) usedCount(t *testing.T, code string) int {
	t.Helper()
	pin, err := env.pinRepo.FindByCode(context.Background(), code)
	if err != nil || pin == nil {
		t.Fatalf("Expected pin %s, got %v", code, err)
	}
	return pin.UsedCount
}

func (env *sessionEnv) resultCount(t *testing.T) int {
	t.Helper()
	n, err := env.results.Count(context.Background(), 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return int(n)
}

func wrongChoice(q models.QuestionSnapshot) models.Answer {
	return models.ChoiceAnswer((q.CorrectAnswer.Index + 1) % len(q.Options))
}

func TestSessionAllCorrect(t *testing.T) {
	ctx := context.Background()
	env := newSessionEnv(t, 10)
	code := env.issuePin(t, "Mexanika", 2, 30)

	view := env.start(t, "u1", code)
	if view.Total != 2 {
		t.Fatalf("Expected 2 questions, got %d", view.Total)
	}
	if view.RemainingSeconds != 30*60 {
		t.Errorf("Expected %d seconds remaining, got %d", 30*60, view.RemainingSeconds)
	}

	rec := env.record(t, "u1")
	for i, q := range rec.Questions {
		if _, err := env.engine.SubmitAnswer(ctx, "u1", view.SessionID, i, q.CorrectAnswer); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	env.clock.Advance(95 * time.Second)
	finish, err := env.engine.Finish(ctx, "u1", view.SessionID, false)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	result := finish.Result
	if result.Score != 100.0 || result.Correct != 2 || result.Total != 2 {
		t.Errorf("Expected 2/2 at 100.0, got %d/%d at %.1f", result.Correct, result.Total, result.Score)
	}
	if result.Completion != models.CompletionFinished {
		t.Errorf("Expected finished, got %s", result.Completion)
	}
	if result.TimeSeconds != 95 {
		t.Errorf("Expected 95 seconds, got %.1f", result.TimeSeconds)
	}
	if result.UserName != "Ali Valiyev" || result.PinCode != code {
		t.Errorf("Unexpected result identity %s / %s", result.UserName, result.PinCode)
	}

	if n := env.usedCount(t, code); n != 1 {
		t.Errorf("Expected 1 recorded attempt, got %d", n)
	}
	if _, err := env.engine.RedeemPin(ctx, "u1", code); !errors.Is(err, apperror.ErrAlreadyUsed) {
		t.Errorf("Expected AlreadyUsed on second redemption, got %v", err)
	}

	rec = env.record(t, "u1")
	if rec.State != models.StateCompleted {
		t.Errorf("Expected failed redemption to leave the completed record, got %s", rec.State)
	}
}

func TestSessionForcedFinish(t *testing.T) {
	ctx := context.Background()
	env := newSessionEnv(t, 3)
	code := env.issuePin(t, "Mexanika", 3, 30)
	view := env.start(t, "u1", code)

	rec := env.record(t, "u1")
	if _, err := env.engine.SubmitAnswer(ctx, "u1", view.SessionID, 0, rec.Questions[0].CorrectAnswer); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	finish, err := env.engine.Finish(ctx, "u1", view.SessionID, false)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !finish.NeedsConfirmation || finish.Unanswered != 2 || finish.Result != nil {
		t.Fatalf("Expected confirmation for 2 unanswered, got %+v", finish)
	}
	if env.resultCount(t) != 0 {
		t.Errorf("Expected no result before confirmation")
	}

	finish, err = env.engine.Finish(ctx, "u1", view.SessionID, true)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if finish.Result.Score != 33.3 {
		t.Errorf("Expected score 33.3, got %.1f", finish.Result.Score)
	}
	if finish.Result.Completion != models.CompletionForced {
		t.Errorf("Expected forced, got %s", finish.Result.Completion)
	}
	details := finish.Result.Details
	if !details[0].IsCorrect || details[1].UserAnswer != nil || details[1].IsCorrect {
		t.Errorf("Unexpected details %+v", details)
	}
}

func TestFinishTwice(t *testing.T) {
	ctx := context.Background()
	env := newSessionEnv(t, 2)
	code := env.issuePin(t, "Mexanika", 2, 30)
	view := env.start(t, "u1", code)

	if _, err := env.engine.Finish(ctx, "u1", view.SessionID, true); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := env.engine.Finish(ctx, "u1", view.SessionID, true); !errors.Is(err, apperror.ErrStateConflict) {
		t.Errorf("Expected StateConflict on second finish, got %v", err)
	}

	if n := env.resultCount(t); n != 1 {
		t.Errorf("Expected 1 result, got %d", n)
	}
	if n := env.usedCount(t, code); n != 1 {
		t.Errorf("Expected 1 recorded attempt, got %d", n)
	}

	rec := env.record(t, "u1")
	if rec.State != models.StateCompleted || rec.ResultID != view.SessionID {
		t.Errorf("Expected completed record pointing at result, got %s / %s", rec.State, rec.ResultID)
	}
	if len(rec.Questions) != 0 || len(rec.Answers) != 0 {
		t.Errorf("Expected tombstoned record, got %d questions", len(rec.Questions))
	}
}

func TestConcurrentFinish(t *testing.T) {
	ctx := context.Background()
	env := newSessionEnv(t, 4)
	code := env.issuePin(t, "Mexanika", 4, 30)
	view := env.start(t, "u1", code)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.Finish(ctx, "u1", view.SessionID, true)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, apperror.ErrStateConflict):
				conflicts++
			default:
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 || conflicts != 7 {
		t.Errorf("Expected 1 success and 7 conflicts, got %d and %d", succeeded, conflicts)
	}
	if n := env.resultCount(t); n != 1 {
		t.Errorf("Expected 1 result, got %d", n)
	}
	if n := env.usedCount(t, code); n != 1 {
		t.Errorf("Expected 1 recorded attempt, got %d", n)
	}
}

func TestNavigateKeepsAnswers(t *testing.T) {
	ctx := context.Background()
	env := newSessionEnv(t, 3)
	code := env.issuePin(t, "Mexanika", 3, 30)
	view := env.start(t, "u1", code)

	rec := env.record(t, "u1")
	answer := wrongChoice(rec.Questions[0])
	if _, err := env.engine.SubmitAnswer(ctx, "u1", view.SessionID, 0, answer); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	steps := []struct {
		target   Target
		expected int
	}{
		{Target{Kind: TargetPrev}, 0},
		{Target{Kind: TargetNext}, 1},
		{Target{Kind: TargetNext}, 2},
		{Target{Kind: TargetNext}, 2},
		{Target{Kind: TargetIndex, Index: 7}, 2},
		{Target{Kind: TargetIndex, Index: 0}, 0},
		{Target{Kind: TargetCurrent}, 0},
	}
	for _, step := range steps {
		nav, err := env.engine.Navigate(ctx, "u1", view.SessionID, step.target)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if nav.View.Index != step.expected {
			t.Errorf("Expected index %d after %s, got %d", step.expected, step.target.Kind, nav.View.Index)
		}
	}

	nav, err := env.engine.Navigate(ctx, "u1", view.SessionID, Target{Kind: TargetCurrent})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if nav.View.Answer == nil || *nav.View.Answer != answer {
		t.Errorf("Expected answer %+v to survive navigation, got %+v", answer, nav.View.Answer)
	}
	if nav.View.AnsweredCount != 1 || !nav.View.Answered[0] || nav.View.Answered[1] {
		t.Errorf("Unexpected answered markers %v", nav.View.Answered)
	}

	replacement := rec.Questions[0].CorrectAnswer
	if _, err := env.engine.SubmitAnswer(ctx, "u1", view.SessionID, 0, replacement); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	finish, err := env.engine.Finish(ctx, "u1", view.SessionID, true)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if finish.Result.Correct != 1 {
		t.Errorf("Expected the replaced answer to count, got %d correct", finish.Result.Correct)
	}
}

func TestTimeLimitBoundary(t *testing.T) {
	ctx := context.Background()
	env := newSessionEnv(t, 2)
	code := env.issuePin(t, "Mexanika", 2, 1)
	view := env.start(t, "u1", code)
	rec := env.record(t, "u1")

	env.clock.Advance(time.Minute)
	result, err := env.engine.SubmitAnswer(ctx, "u1", view.SessionID, 0, rec.Questions[0].CorrectAnswer)
	if err != nil || result != nil {
		t.Fatalf("Expected answer at exactly the limit to be accepted, got %v / %v", result, err)
	}

	env.clock.Advance(time.Nanosecond)
	result, err = env.engine.SubmitAnswer(ctx, "u1", view.SessionID, 1, rec.Questions[1].CorrectAnswer)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result == nil {
		t.Fatalf("Expected the late answer to complete the session")
	}
	if result.Completion != models.CompletionTimeExpired {
		t.Errorf("Expected time_expired, got %s", result.Completion)
	}
	if result.Correct != 1 || result.Score != 50.0 {
		t.Errorf("Expected the late answer to be ignored, got %d correct", result.Correct)
	}
	if result.TimeSeconds != 60 {
		t.Errorf("Expected time capped at 60 seconds, got %.1f", result.TimeSeconds)
	}
	if n := env.usedCount(t, code); n != 1 {
		t.Errorf("Expected 1 recorded attempt, got %d", n)
	}
}

func TestExpiredSessionCompletedOnStatus(t *testing.T) {
	ctx := context.Background()
	env := newSessionEnv(t, 2)
	code := env.issuePin(t, "Mexanika", 2, 5)
	env.start(t, "u1", code)

	env.clock.Advance(2 * time.Hour)
	status, err := env.engine.Status(ctx, "u1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if status.State != models.StateCompleted || status.Result == nil {
		t.Fatalf("Expected completed status with result, got %+v", status)
	}
	if status.Result.TimeSeconds != 300 {
		t.Errorf("Expected time capped at 300 seconds, got %.1f", status.Result.TimeSeconds)
	}
}

func TestStaleSessionID(t *testing.T) {
	ctx := context.Background()
	env := newSessionEnv(t, 2)
	code := env.issuePin(t, "Mexanika", 2, 30)
	view := env.start(t, "u1", code)

	if _, err := env.engine.SubmitAnswer(ctx, "u1", "old-session", 0, models.ChoiceAnswer(0)); !errors.Is(err, apperror.ErrStateConflict) {
		t.Errorf("Expected StateConflict for stale session, got %v", err)
	}
	if _, err := env.engine.Finish(ctx, "u1", "old-session", true); !errors.Is(err, apperror.ErrStateConflict) {
		t.Errorf("Expected StateConflict for stale finish, got %v", err)
	}
	if _, err := env.engine.Navigate(ctx, "u2", view.SessionID, Target{Kind: TargetNext}); !errors.Is(err, apperror.ErrStateConflict) {
		t.Errorf("Expected StateConflict for another user, got %v", err)
	}
}

func TestSubmitAnswerValidation(t *testing.T) {
	ctx := context.Background()
	env := newSessionEnv(t, 2)
	code := env.issuePin(t, "Mexanika", 2, 30)
	view := env.start(t, "u1", code)

	testCases := []struct {
		name   string
		index  int
		answer models.Answer
	}{
		{"index below range", -1, models.ChoiceAnswer(0)},
		{"index above range", 2, models.ChoiceAnswer(0)},
		{"option out of range", 0, models.ChoiceAnswer(4)},
		{"text for choice question", 0, models.TextAnswer("A")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.engine.SubmitAnswer(ctx, "u1", view.SessionID, tc.index, tc.answer)
			if !errors.Is(err, apperror.ErrInvalidInput) {
				t.Errorf("Expected InvalidInput, got %v", err)
			}
		})
	}
}

func TestStartSessionChecks(t *testing.T) {
	ctx := context.Background()

	t.Run("short name", func(t *testing.T) {
		env := newSessionEnv(t, 2)
		code := env.issuePin(t, "Mexanika", 2, 30)
		if _, err := env.engine.RedeemPin(ctx, "u1", code); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if _, err := env.engine.StartSession(ctx, "u1", "  Al  "); !errors.Is(err, apperror.ErrInvalidInput) {
			t.Errorf("Expected InvalidInput, got %v", err)
		}
		if rec := env.record(t, "u1"); rec.State != models.StateAwaitingName {
			t.Errorf("Expected awaiting_name, got %s", rec.State)
		}
	})

	t.Run("without pin", func(t *testing.T) {
		env := newSessionEnv(t, 2)
		if _, err := env.engine.StartSession(ctx, "u1", "Ali Valiyev"); !errors.Is(err, apperror.ErrStateConflict) {
			t.Errorf("Expected StateConflict, got %v", err)
		}
	})

	t.Run("empty bank", func(t *testing.T) {
		env := newSessionEnv(t, 2)
		code := env.issuePin(t, "Termodinamika", 2, 30)
		if _, err := env.engine.RedeemPin(ctx, "u1", code); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if _, err := env.engine.StartSession(ctx, "u1", "Ali Valiyev"); !errors.Is(err, apperror.ErrEmpty) {
			t.Errorf("Expected Empty, got %v", err)
		}
		if rec := env.record(t, "u1"); rec.State != models.StateAwaitingPin {
			t.Errorf("Expected awaiting_pin, got %s", rec.State)
		}
	})

	t.Run("pin expired before start", func(t *testing.T) {
		env := newSessionEnv(t, 2)
		code := env.issuePin(t, "Mexanika", 2, 30)
		if _, err := env.engine.RedeemPin(ctx, "u1", code); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		env.clock.Advance(25 * time.Hour)
		if _, err := env.engine.StartSession(ctx, "u1", "Ali Valiyev"); !errors.Is(err, apperror.ErrExpired) {
			t.Errorf("Expected Expired, got %v", err)
		}
		if rec := env.record(t, "u1"); rec.State != models.StateAwaitingPin {
			t.Errorf("Expected awaiting_pin, got %s", rec.State)
		}
	})
}

func TestRedeemSupersedesRunningSession(t *testing.T) {
	ctx := context.Background()
	env := newSessionEnv(t, 4)
	first := env.issuePin(t, "Mexanika", 2, 30)
	second := env.issuePin(t, "Mexanika", 2, 30)

	view := env.start(t, "u1", first)
	if _, err := env.engine.RedeemPin(ctx, "u1", second); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	rec := env.record(t, "u1")
	if rec.State != models.StateAwaitingName || rec.ID == view.SessionID {
		t.Errorf("Expected a new record awaiting name, got %s / %s", rec.State, rec.ID)
	}
	if rec.PinCode != second {
		t.Errorf("Expected pin %s on the new record, got %s", second, rec.PinCode)
	}
	if n := env.resultCount(t); n != 0 {
		t.Errorf("Expected abandoned session to leave no result, got %d", n)
	}
	if n := env.usedCount(t, first); n != 0 {
		t.Errorf("Expected abandoned session not to consume the pin, got %d", n)
	}
}

func TestAbandonAndStatus(t *testing.T) {
	ctx := context.Background()
	env := newSessionEnv(t, 2)

	status, err := env.engine.Status(ctx, "u1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if status.State != models.StateNotStarted {
		t.Errorf("Expected not_started, got %s", status.State)
	}
	if err := env.engine.Abandon(ctx, "u1"); !errors.Is(err, apperror.ErrStateConflict) {
		t.Errorf("Expected StateConflict with nothing to cancel, got %v", err)
	}

	if _, err := env.engine.Begin(ctx, "u1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	code := env.issuePin(t, "Mexanika", 2, 30)
	view := env.start(t, "u1", code)

	status, err = env.engine.Status(ctx, "u1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if status.State != models.StateInProgress || status.View == nil || status.View.SessionID != view.SessionID {
		t.Errorf("Expected in-progress status with view, got %+v", status)
	}

	if err := env.engine.Abandon(ctx, "u1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rec := env.record(t, "u1"); rec.State != models.StateAbandoned {
		t.Errorf("Expected abandoned, got %s", rec.State)
	}
	if _, err := env.engine.SubmitAnswer(ctx, "u1", view.SessionID, 0, models.ChoiceAnswer(0)); !errors.Is(err, apperror.ErrStateConflict) {
		t.Errorf("Expected StateConflict after abandon, got %v", err)
	}
}

func TestFreeTextAnswer(t *testing.T) {
	ctx := context.Background()
	env := newSessionEnv(t, 0)
	err := env.questions.Insert(ctx, []models.Question{{
		Text:          "Erkin tushish tezlanishi?",
		CorrectAnswer: models.TextAnswer("9.8 m/s2"),
		Kind:          models.KindFreeText,
		Grade:         7,
		Topic:         "Mexanika",
		Difficulty:    models.DifficultyKnowledge,
	}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	code := env.issuePin(t, "Mexanika", 1, 30)
	view := env.start(t, "u1", code)

	if _, err := env.engine.SubmitAnswer(ctx, "u1", view.SessionID, 0, models.ChoiceAnswer(0)); !errors.Is(err, apperror.ErrInvalidInput) {
		t.Errorf("Expected InvalidInput for choice on text question, got %v", err)
	}
	if _, err := env.engine.SubmitAnswer(ctx, "u1", view.SessionID, 0, models.TextAnswer("  9.8   M/S2 ")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	finish, err := env.engine.Finish(ctx, "u1", view.SessionID, false)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if finish.Result.Score != 100.0 {
		t.Errorf("Expected normalised text answer to match, got %.1f", finish.Result.Score)
	}
}

type failingResults struct {
	*repository.MemoryResultRepository
	failures int
}

func (f *failingResults) Append(ctx context.Context, result *models.Result) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset")
	}
	return f.MemoryResultRepository.Append(ctx, result)
}

func TestFinishRetriesResultWrite(t *testing.T) {
	ctx := context.Background()
	env := newSessionEnv(t, 2)
	results := &failingResults{MemoryResultRepository: env.results, failures: 2}
	env.engine.results = results

	code := env.issuePin(t, "Mexanika", 2, 30)
	view := env.start(t, "u1", code)
	if _, err := env.engine.Finish(ctx, "u1", view.SessionID, true); err != nil {
		t.Fatalf("Expected finish to succeed after retries, got %v", err)
	}

	results.failures = 3
	second := env.issuePin(t, "Mexanika", 2, 30)
	view = env.start(t, "u2", second)
	if _, err := env.engine.Finish(ctx, "u2", view.SessionID, true); !errors.Is(err, apperror.ErrUnavailable) {
		t.Fatalf("Expected Unavailable once retries run out, got %v", err)
	}
	if rec := env.record(t, "u2"); rec.State != models.StateInProgress {
		t.Errorf("Expected session to stay in progress, got %s", rec.State)
	}
	if n := env.usedCount(t, second); n != 0 {
		t.Errorf("Expected no attempt recorded without a result, got %d", n)
	}

	if _, err := env.engine.Finish(ctx, "u2", view.SessionID, true); err != nil {
		t.Fatalf("Expected a later finish to succeed, got %v", err)
	}
	if n := env.usedCount(t, second); n != 1 {
		t.Errorf("Expected 1 recorded attempt, got %d", n)
	}
}

func TestFailedRedeemKeepsRunningQuiz(t *testing.T) {
	ctx := context.Background()
	env := newSessionEnv(t, 3)
	code := env.issuePin(t, "Mexanika", 3, 30)
	view := env.start(t, "u1", code)

	rec := env.record(t, "u1")
	answer := rec.Questions[0].CorrectAnswer
	if _, err := env.engine.SubmitAnswer(ctx, "u1", view.SessionID, 0, answer); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	testCases := []struct {
		name     string
		code     string
		expected error
	}{
		{"malformed", "12", apperror.ErrInvalidInput},
		{"unknown", "00000000", apperror.ErrNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.engine.RedeemPin(ctx, "u1", tc.code); !errors.Is(err, tc.expected) {
				t.Fatalf("Expected %v, got %v", tc.expected, err)
			}
			rec := env.record(t, "u1")
			if rec.State != models.StateInProgress || rec.ID != view.SessionID {
				t.Errorf("Expected quiz %s to stay in progress, got %s / %s", view.SessionID, rec.State, rec.ID)
			}
			if len(rec.Answers) != 1 {
				t.Errorf("Expected the submitted answer to survive, got %d answers", len(rec.Answers))
			}
		})
	}

	nav, err := env.engine.Navigate(ctx, "u1", view.SessionID, Target{Kind: TargetCurrent})
	if err != nil {
		t.Fatalf("Expected the original session id to keep working, got %v", err)
	}
	if nav.View.Answer == nil || *nav.View.Answer != answer {
		t.Errorf("Expected answer %+v, got %+v", answer, nav.View.Answer)
	}
}

func TestFailedRedeemStoresNothing(t *testing.T) {
	ctx := context.Background()
	env := newSessionEnv(t, 2)

	if _, err := env.engine.RedeemPin(ctx, "u1", "12345678"); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Expected NotFound, got %v", err)
	}
	if rec := env.record(t, "u1"); rec != nil {
		t.Errorf("Expected no record after a failed redemption, got %s", rec.State)
	}
	if err := env.engine.Abandon(ctx, "u1"); !errors.Is(err, apperror.ErrStateConflict) {
		t.Errorf("Expected StateConflict with nothing to cancel, got %v", err)
	}
}

// failingSessions refuses to save completed records while failCompleted is set.
type failingSessions struct {
	*repository.MemorySessionRepository
	failCompleted bool
}

func (f *failingSessions) Save(ctx context.Context, session *models.Session) error {
	if f.failCompleted && session.State == models.StateCompleted {
		return errors.New("redis down")
	}
	return f.MemorySessionRepository.Save(ctx, session)
}

func TestStoredResultCompletesBeforeRedeem(t *testing.T) {
	ctx := context.Background()
	env := newSessionEnv(t, 2)
	sessions := &failingSessions{MemorySessionRepository: env.sessions, failCompleted: true}
	env.engine.sessions = sessions

	code := env.issuePin(t, "Mexanika", 2, 30)
	view := env.start(t, "u1", code)
	if _, err := env.engine.Finish(ctx, "u1", view.SessionID, true); !errors.Is(err, apperror.ErrUnavailable) {
		t.Fatalf("Expected Unavailable when the record cannot be saved, got %v", err)
	}
	if n := env.resultCount(t); n != 1 {
		t.Fatalf("Expected the result to be stored, got %d", n)
	}
	if rec := env.record(t, "u1"); rec.State != models.StateInProgress {
		t.Fatalf("Expected the record to stay in progress, got %s", rec.State)
	}

	sessions.failCompleted = false
	if _, err := env.engine.RedeemPin(ctx, "u1", code); !errors.Is(err, apperror.ErrAlreadyUsed) {
		t.Errorf("Expected the single-use pin to be used up, got %v", err)
	}
	if n := env.usedCount(t, code); n != 1 {
		t.Errorf("Expected 1 recorded attempt, got %d", n)
	}
	if n := env.resultCount(t); n != 1 {
		t.Errorf("Expected 1 result, got %d", n)
	}
	rec := env.record(t, "u1")
	if rec.State != models.StateCompleted || rec.ResultID != view.SessionID {
		t.Errorf("Expected completed record pointing at result, got %s / %s", rec.State, rec.ResultID)
	}
}

func TestStoredResultBlocksAbandon(t *testing.T) {
	ctx := context.Background()
	env := newSessionEnv(t, 2)
	sessions := &failingSessions{MemorySessionRepository: env.sessions, failCompleted: true}
	env.engine.sessions = sessions

	code := env.issuePin(t, "Mexanika", 2, 30)
	view := env.start(t, "u1", code)
	if _, err := env.engine.Finish(ctx, "u1", view.SessionID, true); !errors.Is(err, apperror.ErrUnavailable) {
		t.Fatalf("Expected Unavailable, got %v", err)
	}

	sessions.failCompleted = false
	if err := env.engine.Abandon(ctx, "u1"); !errors.Is(err, apperror.ErrStateConflict) {
		t.Errorf("Expected StateConflict for a quiz with a stored result, got %v", err)
	}
	if rec := env.record(t, "u1"); rec.State != models.StateCompleted {
		t.Errorf("Expected completed, got %s", rec.State)
	}
	if n := env.usedCount(t, code); n != 1 {
		t.Errorf("Expected 1 recorded attempt, got %d", n)
	}
}

func TestRetriedCompletionReturnsStoredResult(t *testing.T) {
	ctx := context.Background()
	env := newSessionEnv(t, 2)
	sessions := &failingSessions{MemorySessionRepository: env.sessions, failCompleted: true}
	env.engine.sessions = sessions

	code := env.issuePin(t, "Mexanika", 2, 30)
	view := env.start(t, "u1", code)
	env.clock.Advance(40 * time.Second)
	if _, err := env.engine.Finish(ctx, "u1", view.SessionID, true); !errors.Is(err, apperror.ErrUnavailable) {
		t.Fatalf("Expected Unavailable, got %v", err)
	}
	stored, err := env.results.FindBySession(ctx, view.SessionID)
	if err != nil || stored == nil {
		t.Fatalf("Expected stored result, got %v", err)
	}

	sessions.failCompleted = false
	env.clock.Advance(3 * time.Minute)

	t.Run("complete", func(t *testing.T) {
		rec := env.record(t, "u1")
		result, err := env.engine.complete(ctx, rec, models.CompletionFinished)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if !result.CompletedAt.Equal(stored.CompletedAt) || result.TimeSeconds != stored.TimeSeconds {
			t.Errorf("Expected stored result (%v, %.1f), got (%v, %.1f)", stored.CompletedAt, stored.TimeSeconds, result.CompletedAt, result.TimeSeconds)
		}
		if result.Completion != models.CompletionForced {
			t.Errorf("Expected stored completion forced, got %s", result.Completion)
		}
	})

	if n := env.usedCount(t, code); n != 1 {
		t.Errorf("Expected 1 recorded attempt, got %d", n)
	}
	if _, err := env.engine.Finish(ctx, "u1", view.SessionID, true); !errors.Is(err, apperror.ErrStateConflict) {
		t.Errorf("Expected StateConflict once completed, got %v", err)
	}
}

func TestFinishAfterFailedSaveReturnsStoredResult(t *testing.T) {
	ctx := context.Background()
	env := newSessionEnv(t, 2)
	sessions := &failingSessions{MemorySessionRepository: env.sessions, failCompleted: true}
	env.engine.sessions = sessions

	code := env.issuePin(t, "Mexanika", 2, 30)
	view := env.start(t, "u1", code)
	env.clock.Advance(40 * time.Second)
	if _, err := env.engine.Finish(ctx, "u1", view.SessionID, true); !errors.Is(err, apperror.ErrUnavailable) {
		t.Fatalf("Expected Unavailable, got %v", err)
	}

	sessions.failCompleted = false
	env.clock.Advance(time.Minute)
	finish, err := env.engine.Finish(ctx, "u1", view.SessionID, true)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if finish.Result.TimeSeconds != 40 {
		t.Errorf("Expected the stored 40 seconds, got %.1f", finish.Result.TimeSeconds)
	}
	if n := env.usedCount(t, code); n != 1 {
		t.Errorf("Expected 1 recorded attempt, got %d", n)
	}
}
