package mongo

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type indexCreatorFunc func(ctx context.Context) error

func (f indexCreatorFunc) CreateIndexes(ctx context.Context) error { return f(ctx) }

func TestEnsureIndexes(t *testing.T) {
	var created []string
	ok := func(name string) IndexCreator {
		return indexCreatorFunc(func(ctx context.Context) error {
			created = append(created, name)
			return nil
		})
	}
	failing := indexCreatorFunc(func(ctx context.Context) error { return errors.New("not primary") })

	err := EnsureIndexes(context.Background(), map[string]IndexCreator{
		"questions": ok("questions"),
		"pins":      failing,
		"results":   ok("results"),
	})
	if err == nil || !strings.Contains(err.Error(), "pins: not primary") {
		t.Errorf("Expected the pins failure to be reported, got %v", err)
	}
	if len(created) != 2 {
		t.Errorf("Expected the other collections to be indexed, got %v", created)
	}

	if err := EnsureIndexes(context.Background(), map[string]IndexCreator{"questions": ok("questions")}); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestPingWithoutClient(t *testing.T) {
	if err := Ping(context.Background()); err == nil {
		t.Error("Expected an error before InitMongoDB")
	}
}
