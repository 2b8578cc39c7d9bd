package locals

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
)

func TestNewCopiesInitialValues(t *testing.T) {
	t.Parallel()

	initial := map[string]any{"appName": "zest"}
	store := New(initial)
	initial["appName"] = "mutated"

	got, ok := store.Get("appName")
	if !ok || got != "zest" {
		t.Fatalf("expected defensive copy, got %v", got)
	}
}

func TestSetAndGet(t *testing.T) {
	t.Parallel()

	store := New(nil)
	if err := store.Set("lang", "en"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !store.Has("lang") {
		t.Fatalf("expected key to be present")
	}
	if store.Has("missing") {
		t.Fatalf("did not expect missing key")
	}
}

func TestSetRejectsEmptyKey(t *testing.T) {
	t.Parallel()

	store := New(nil)
	if err := store.Set("  ", 1); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}

func TestKeysSorted(t *testing.T) {
	t.Parallel()

	store := New(map[string]any{"b": 1, "a": 2, "c": 3})
	if got, want := store.Keys(), []string{"a", "b", "c"}; !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestWithoutAndOnly(t *testing.T) {
	t.Parallel()

	store := New(map[string]any{"appName": "zest", "settingsToken": "secret", "lang": "en"})

	without := store.Without("settingsToken")
	if _, ok := without["settingsToken"]; ok {
		t.Fatalf("expected settingsToken to be excluded")
	}
	if len(without) != 2 {
		t.Fatalf("unexpected result %v", without)
	}

	only := store.Only([]string{"lang", "missing"})
	if len(only) != 1 || only["lang"] != "en" {
		t.Fatalf("unexpected result %v", only)
	}

	// snapshots must not alias the store
	without["appName"] = "changed"
	if v, _ := store.Get("appName"); v != "zest" {
		t.Fatalf("snapshot mutated the store")
	}
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	store := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = store.Set(fmt.Sprintf("key-%d", i), i)
		}(i)
		go func() {
			defer wg.Done()
			_ = store.Snapshot()
		}()
	}
	wg.Wait()

	if len(store.Keys()) != 50 {
		t.Fatalf("expected 50 keys, got %d", len(store.Keys()))
	}
}
