package settings

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// countingQuerier tracks how often the database is hit.
type countingQuerier struct {
	mu     sync.Mutex
	values map[string]string
	gets   int
}

func newCountingQuerier() *countingQuerier {
	return &countingQuerier{values: make(map[string]string)}
}

func (q *countingQuerier) GetSetting(_ context.Context, key string) (string, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.gets++
	value, ok := q.values[key]
	return value, ok, nil
}

func (q *countingQuerier) UpsertSetting(_ context.Context, key, value string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.values[key] = value
	return nil
}

func (q *countingQuerier) getCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.gets
}

func TestGetCachesValue(t *testing.T) {
	queries := newCountingQuerier()
	queries.values[KeySystemPrompt] = "custom prompt"
	store := NewStore(queries, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		value, err := store.Get(ctx, KeySystemPrompt)
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if value != "custom prompt" {
			t.Fatalf("Get() = %q, want %q", value, "custom prompt")
		}
	}

	if got := queries.getCount(); got != 1 {
		t.Errorf("database queried %d times for cached key, want 1", got)
	}
}

func TestGetFallsBackToDefault(t *testing.T) {
	store := NewStore(newCountingQuerier(), nil)

	value, err := store.Get(context.Background(), KeyNoResultMessage)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if value != defaults[KeyNoResultMessage] {
		t.Errorf("Get() = %q, want built-in default", value)
	}
}

func TestGetUnknownKey(t *testing.T) {
	store := NewStore(newCountingQuerier(), nil)

	if _, err := store.Get(context.Background(), "no_such_key"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Get() error = %v, want ErrUnknownKey", err)
	}
}

func TestSetRefreshesCache(t *testing.T) {
	queries := newCountingQuerier()
	store := NewStore(queries, nil)
	ctx := context.Background()

	if _, err := store.Get(ctx, KeySystemPrompt); err != nil {
		t.Fatal(err)
	}

	if err := store.Set(ctx, KeySystemPrompt, "updated prompt"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	before := queries.getCount()
	value, err := store.Get(ctx, KeySystemPrompt)
	if err != nil {
		t.Fatal(err)
	}
	if value != "updated prompt" {
		t.Errorf("Get() after Set = %q, want %q", value, "updated prompt")
	}
	if queries.getCount() != before {
		t.Error("Get() after Set hit the database instead of the cache")
	}
}

func TestInvalidateForcesReload(t *testing.T) {
	queries := newCountingQuerier()
	queries.values[KeySystemPrompt] = "first"
	store := NewStore(queries, nil)
	ctx := context.Background()

	if _, err := store.Get(ctx, KeySystemPrompt); err != nil {
		t.Fatal(err)
	}

	// Simulate an out-of-band database change.
	queries.values[KeySystemPrompt] = "second"

	value, err := store.Get(ctx, KeySystemPrompt)
	if err != nil {
		t.Fatal(err)
	}
	if value != "first" {
		t.Fatalf("Get() = %q before invalidation, want stale %q", value, "first")
	}

	store.Invalidate(KeySystemPrompt)

	value, err = store.Get(ctx, KeySystemPrompt)
	if err != nil {
		t.Fatal(err)
	}
	if value != "second" {
		t.Errorf("Get() after Invalidate = %q, want %q", value, "second")
	}
}

func TestInvalidateAll(t *testing.T) {
	queries := newCountingQuerier()
	queries.values["system_prompt"] = "a"
	queries.values["no_result_message"] = "b"
	store := NewStore(queries, nil)
	ctx := context.Background()

	for _, key := range []string{KeySystemPrompt, KeyNoResultMessage} {
		if _, err := store.Get(ctx, key); err != nil {
			t.Fatal(err)
		}
	}
	before := queries.getCount()

	store.InvalidateAll()

	for _, key := range []string{KeySystemPrompt, KeyNoResultMessage} {
		if _, err := store.Get(ctx, key); err != nil {
			t.Fatal(err)
		}
	}
	if got := queries.getCount(); got != before+2 {
		t.Errorf("database queried %d times after InvalidateAll, want %d", got, before+2)
	}
}
