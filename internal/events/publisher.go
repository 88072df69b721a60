package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const exchangeName = "quiz.events"

// Publisher defines the interface for event publishing
type Publisher interface {
	PublishPinBatchIssued(ctx context.Context, event *PinBatchEvent) error
	PublishPinReset(ctx context.Context, pin string) error
	PublishSessionStarted(ctx context.Context, event *SessionEvent) error
	PublishSessionAbandoned(ctx context.Context, event *SessionEvent) error
	PublishSessionCompleted(ctx context.Context, event *SessionCompletedEvent) error
	PublishQuestionImported(ctx context.Context, event *QuestionImportedEvent) error
	Close() error
}

// EventPublisher implements the Publisher interface using RabbitMQ
type EventPublisher struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	enabled      bool
}

// NewEventPublisher creates a new event publisher. An empty URI yields a
// disabled publisher that drops events.
func NewEventPublisher(rabbitURI string) (*EventPublisher, error) {
	if rabbitURI == "" {
		log.Println("Warning: RabbitMQ URI is empty, event publishing is disabled")
		return &EventPublisher{
			enabled: false,
		}, nil
	}

	conn, err := amqp091.Dial(rabbitURI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchangeName, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &EventPublisher{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		enabled:      true,
	}, nil
}

func (p *EventPublisher) publishEvent(ctx context.Context, routingKey EventType, event any) error {
	if !p.enabled {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(
		pubCtx,
		p.exchangeName,     // exchange
		string(routingKey), // routing key
		false,              // mandatory
		false,              // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	log.Printf("Published event: %s", routingKey)
	return nil
}

func (p *EventPublisher) PublishPinBatchIssued(ctx context.Context, event *PinBatchEvent) error {
	return p.publishEvent(ctx, EventTypePinBatchIssued, event)
}

func (p *EventPublisher) PublishPinReset(ctx context.Context, pin string) error {
	return p.publishEvent(ctx, EventTypePinReset, NewPinResetEvent(pin))
}

func (p *EventPublisher) PublishSessionStarted(ctx context.Context, event *SessionEvent) error {
	return p.publishEvent(ctx, EventTypeSessionStarted, event)
}

func (p *EventPublisher) PublishSessionAbandoned(ctx context.Context, event *SessionEvent) error {
	return p.publishEvent(ctx, EventTypeSessionAbandoned, event)
}

func (p *EventPublisher) PublishSessionCompleted(ctx context.Context, event *SessionCompletedEvent) error {
	return p.publishEvent(ctx, EventTypeSessionCompleted, event)
}

func (p *EventPublisher) PublishQuestionImported(ctx context.Context, event *QuestionImportedEvent) error {
	return p.publishEvent(ctx, EventTypeQuestionImported, event)
}

// Close closes the connection to RabbitMQ
func (p *EventPublisher) Close() error {
	if !p.enabled {
		return nil
	}

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			log.Printf("Error closing RabbitMQ channel: %v", err)
		}
	}

	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("error closing RabbitMQ connection: %w", err)
		}
	}

	return nil
}
