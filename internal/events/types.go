package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventTypePinBatchIssued   EventType = "pin.batch.issued"
	EventTypePinReset         EventType = "pin.reset"
	EventTypeSessionStarted   EventType = "quiz.session.started"
	EventTypeSessionCompleted EventType = "quiz.session.completed"
	EventTypeSessionAbandoned EventType = "quiz.session.abandoned"
	EventTypeQuestionImported EventType = "question.imported"
)

// BaseEvent represents the common fields for all events
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	Version   string    `json:"version"`
}

type PinBatchEvent struct {
	BaseEvent
	BatchID   string `json:"batchId"`
	Grade     int    `json:"grade"`
	Topic     string `json:"topic"`
	Count     int    `json:"count"`
	CreatedBy string `json:"createdBy"`
}

type PinEvent struct {
	BaseEvent
	Pin string `json:"pin"`
}

type SessionEvent struct {
	BaseEvent
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName,omitempty"`
	Pin       string `json:"pin,omitempty"`
	Grade     int    `json:"grade,omitempty"`
	Topic     string `json:"topic,omitempty"`
}

// SessionCompletedEvent carries the score so a notifier can report it to
// the admin who issued the pin.
type SessionCompletedEvent struct {
	SessionEvent
	ResultID     string  `json:"resultId"`
	Score        float64 `json:"score"`
	Correct      int     `json:"correct"`
	Total        int     `json:"total"`
	TimeSeconds  float64 `json:"timeSeconds"`
	Completion   string  `json:"completion"`
	PinCreatedBy string  `json:"pinCreatedBy,omitempty"`
}

type QuestionImportedEvent struct {
	BaseEvent
	Grade    int    `json:"grade"`
	Topic    string `json:"topic"`
	Imported int    `json:"imported"`
	Images   int    `json:"images"`
}

func newBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        generateEventID(),
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		Version:   "1.0",
	}
}

func NewPinBatchIssuedEvent(batchID string, grade int, topic string, count int, createdBy string) *PinBatchEvent {
	return &PinBatchEvent{
		BaseEvent: newBaseEvent(EventTypePinBatchIssued),
		BatchID:   batchID,
		Grade:     grade,
		Topic:     topic,
		Count:     count,
		CreatedBy: createdBy,
	}
}

func NewPinResetEvent(pin string) *PinEvent {
	return &PinEvent{BaseEvent: newBaseEvent(EventTypePinReset), Pin: pin}
}

func NewSessionEvent(eventType EventType, sessionID, userID, userName, pin string, grade int, topic string) *SessionEvent {
	return &SessionEvent{
		BaseEvent: newBaseEvent(eventType),
		SessionID: sessionID,
		UserID:    userID,
		UserName:  userName,
		Pin:       pin,
		Grade:     grade,
		Topic:     topic,
	}
}

func NewQuestionImportedEvent(grade int, topic string, imported, images int) *QuestionImportedEvent {
	return &QuestionImportedEvent{
		BaseEvent: newBaseEvent(EventTypeQuestionImported),
		Grade:     grade,
		Topic:     topic,
		Imported:  imported,
		Images:    images,
	}
}

func generateEventID() string {
	return uuid.NewString()
}
