package service

import (
	"context"
	"time"
)

type retryPolicy struct {
	attempts int
	delay    time.Duration
}

var defaultRetry = retryPolicy{attempts: 3, delay: 100 * time.Millisecond}

// do runs op until it succeeds or attempts run out, doubling the delay
// between tries. The last error is returned.
func (p retryPolicy) do(ctx context.Context, op func() error) error {
	delay := p.delay
	var err error
	for i := 0; i < p.attempts; i++ {
		if err = op(); err == nil {
			return nil
		}
		if i == p.attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
