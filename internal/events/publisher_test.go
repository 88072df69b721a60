package events

import (
	"context"
	"encoding/json"
	"testing"
)

func TestDisabledPublisherDropsEvents(t *testing.T) {
	p, err := NewEventPublisher("")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	ctx := context.Background()
	if err := p.PublishPinReset(ctx, "12345678"); err != nil {
		t.Errorf("Expected nil error from disabled publisher, got %v", err)
	}
	event := NewSessionEvent(EventTypeSessionStarted, "s1", "u1", "Ali", "12345678", 7, "Kinematika")
	if err := p.PublishSessionStarted(ctx, event); err != nil {
		t.Errorf("Expected nil error from disabled publisher, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Expected nil error on close, got %v", err)
	}
}

func TestCompletedEventEncoding(t *testing.T) {
	event := &SessionCompletedEvent{
		SessionEvent: *NewSessionEvent(EventTypeSessionCompleted, "s1", "u1", "Ali", "12345678", 7, "Kinematika"),
		ResultID:     "r1",
		Score:        33.3,
		Correct:      1,
		Total:        3,
	}

	raw, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if decoded["type"] != string(EventTypeSessionCompleted) {
		t.Errorf("Expected type %s, got %v", EventTypeSessionCompleted, decoded["type"])
	}
	if decoded["version"] != "1.0" {
		t.Errorf("Expected version 1.0, got %v", decoded["version"])
	}
	if decoded["score"] != 33.3 {
		t.Errorf("Expected score 33.3, got %v", decoded["score"])
	}
	if decoded["id"] == "" {
		t.Error("Expected event id to be set")
	}
}
