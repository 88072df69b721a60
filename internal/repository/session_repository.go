package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samancikme/fizika/internal/models"

	redis_v9 "github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "quiz:session:"

// RedisSessionRepository stores one JSON session record per user with a TTL,
// so abandoned records expire on their own.
type RedisSessionRepository struct {
	client *redis_v9.Client
	ttl    time.Duration
}

// NewRedisSessionRepository stores sessions as JSON under a per-user key that
// expires after ttl.
func NewRedisSessionRepository(client *redis_v9.Client, ttl time.Duration) *RedisSessionRepository {
	return &RedisSessionRepository{client: client, ttl: ttl}
}

// Get returns nil, nil when the user has no session.
func (r *RedisSessionRepository) Get(ctx context.Context, userID string) (*models.Session, error) {
	raw, err := r.client.Get(ctx, sessionKeyPrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis_v9.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("error getting session from cache: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("error decoding session: %w", err)
	}
	return &session, nil
}

func (r *RedisSessionRepository) Save(ctx context.Context, session *models.Session) error {
	val, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("error encoding session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKeyPrefix+session.UserID, val, r.ttl).Err(); err != nil {
		return fmt.Errorf("error saving session to cache: %w", err)
	}
	return nil
}

