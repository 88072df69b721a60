package models

import (
	"fmt"
	"strconv"
	"time"
)

type SessionState string

const (
	StateNotStarted   SessionState = "not_started"
	StateAwaitingPin  SessionState = "awaiting_pin"
	StateAwaitingName SessionState = "awaiting_name"
	StateInProgress   SessionState = "in_progress"
	StateCompleted    SessionState = "completed"
	StateAbandoned    SessionState = "abandoned"
)

var sessionTransitions = map[SessionState][]SessionState{
	StateNotStarted:   {StateAwaitingPin},
	StateAwaitingPin:  {StateAwaitingName, StateAbandoned},
	StateAwaitingName: {StateAwaitingPin, StateInProgress, StateAbandoned},
	StateInProgress:   {StateCompleted, StateAbandoned},
	StateCompleted:    {},
	StateAbandoned:    {},
}

func (s SessionState) IsTerminal() bool {
	return s == StateCompleted || s == StateAbandoned
}

func (s SessionState) CanTransitionTo(next SessionState) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Session is the per-user attempt record. Records in a terminal state keep
// only their identity, state and result reference.
type Session struct {
	ID               string             `json:"id"`
	UserID           string             `json:"userId"`
	UserName         string             `json:"userName,omitempty"`
	State            SessionState       `json:"state"`
	PinCode          string             `json:"pinCode,omitempty"`
	PinCreatedBy     string             `json:"pinCreatedBy,omitempty"`
	Grade            int                `json:"grade,omitempty"`
	Topic            string             `json:"topic,omitempty"`
	QuestionCount    int                `json:"questionCount,omitempty"`
	TimeLimitMinutes int                `json:"timeLimitMinutes,omitempty"`
	Questions        []QuestionSnapshot `json:"questions,omitempty"`
	Answers          map[string]Answer  `json:"answers,omitempty"`
	CurrentIndex     int                `json:"currentIndex"`
	StartedAt        time.Time          `json:"startedAt,omitempty"`
	EndedAt          time.Time          `json:"endedAt,omitempty"`
	ResultID         string             `json:"resultId,omitempty"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

func (s *Session) Transition(next SessionState) error {
	if !s.State.CanTransitionTo(next) {
		return fmt.Errorf("cannot move session from %s to %s", s.State, next)
	}
	s.State = next
	return nil
}

func (s *Session) Deadline() time.Time {
	return s.StartedAt.Add(time.Duration(s.TimeLimitMinutes) * time.Minute)
}

// Expired is true once strictly more than the time limit has elapsed.
func (s *Session) Expired(now time.Time) bool {
	return s.State == StateInProgress && now.Sub(s.StartedAt) > time.Duration(s.TimeLimitMinutes)*time.Minute
}

func (s *Session) Total() int {
	return len(s.Questions)
}

func (s *Session) Answer(index int) (Answer, bool) {
	a, ok := s.Answers[strconv.Itoa(index)]
	return a, ok
}

func (s *Session) SetAnswer(index int, a Answer) {
	if s.Answers == nil {
		s.Answers = make(map[string]Answer)
	}
	s.Answers[strconv.Itoa(index)] = a
}

func (s *Session) Unanswered() int {
	n := 0
	for i := range s.Questions {
		if _, ok := s.Answer(i); !ok {
			n++
		}
	}
	return n
}

// Tombstone drops attempt data once the record reaches a terminal state.
func (s *Session) Tombstone() {
	s.Questions = nil
	s.Answers = nil
	s.CurrentIndex = 0
}

// QuestionView is what a student sees for one question. It never exposes the
// correct answer.
type QuestionView struct {
	SessionID        string       `json:"sessionId"`
	Index            int          `json:"index"`
	Total            int          `json:"total"`
	Text             string       `json:"text"`
	Kind             QuestionKind `json:"kind"`
	Options          []string     `json:"options,omitempty"`
	Images           []string     `json:"images,omitempty"`
	Answer           *Answer      `json:"answer,omitempty"`
	Answered         []bool       `json:"answered"`
	AnsweredCount    int          `json:"answeredCount"`
	RemainingSeconds int          `json:"remainingSeconds"`
}
