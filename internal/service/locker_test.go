package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestKeyedMutexSerialisesKey(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	var mu sync.Mutex
	inside, maxInside := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(ctx, "user-1")
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("Expected at most 1 holder, got %d", maxInside)
	}
	if n := m.size(); n != 0 {
		t.Errorf("Expected no lock entries left, got %d", n)
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	unlockA, err := m.Lock(ctx, "a")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := m.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("Expected lock on another key to succeed, got %v", err)
	}
	unlockB()
}

func TestKeyedMutexCancel(t *testing.T) {
	m := NewKeyedMutex()

	unlock, err := m.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := m.Lock(ctx, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}

	unlock()
	unlock()
	if n := m.size(); n != 0 {
		t.Errorf("Expected no lock entries left, got %d", n)
	}
}
