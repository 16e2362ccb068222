package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/fakeyudi/focusgate/internal/store"
)

// backends returns a fresh instance of every persistent backend.
func backends(t *testing.T) map[string]store.Store {
	t.Helper()
	dir := t.TempDir()

	file, err := store.NewFile(filepath.Join(dir, "state"))
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	sqlite, err := store.NewSQLite(filepath.Join(dir, "focusgate.db"), store.SQLiteOptions{})
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]store.Store{
		"file":   file,
		"sqlite": sqlite,
		"memory": store.NewMemory(),
	}
}

// Feature: focusgate, Property 1: Store set/get round-trip
func TestStoreRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			rapid.Check(t, func(rt *rapid.T) {
				key := rapid.StringMatching(`[a-z][a-z0-9_]{0,20}`).Draw(rt, "key")
				value := rapid.String().Draw(rt, "value")

				if err := s.Set(key, value); err != nil {
					rt.Fatalf("Set: %v", err)
				}
				got, ok, err := s.Get(key)
				if err != nil || !ok {
					rt.Fatalf("Get: ok=%v err=%v", ok, err)
				}
				if got != value {
					rt.Fatalf("value mismatch: got %q, want %q", got, value)
				}

				if err := s.Remove(key); err != nil {
					rt.Fatalf("Remove: %v", err)
				}
				if _, ok, _ := s.Get(key); ok {
					rt.Fatalf("key %q still present after Remove", key)
				}
			})
		})
	}
}

func TestRemoveAbsentKeyIsNotAnError(t *testing.T) {
	for name, s := range backends(t) {
		if err := s.Remove("never_written"); err != nil {
			t.Errorf("%s: Remove absent key: %v", name, err)
		}
	}
}

func TestInvalidKeyRejected(t *testing.T) {
	for name, s := range backends(t) {
		for _, key := range []string{"", "../escape", "Upper", "has space"} {
			if err := s.Set(key, "x"); !errors.Is(err, store.ErrInvalidKey) {
				t.Errorf("%s: Set(%q): expected ErrInvalidKey, got %v", name, key, err)
			}
		}
	}
}

func TestLoadJSONCorrupt(t *testing.T) {
	s := store.NewMemory()
	if err := s.Set("progress", "{not json"); err != nil {
		t.Fatal(err)
	}

	var v map[string]any
	found, err := store.LoadJSON(s, "progress", &v)
	if !found {
		t.Error("expected found=true for a present but corrupt value")
	}
	if !errors.Is(err, store.ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}

	found, err = store.LoadJSON(s, "absent", &v)
	if found || err != nil {
		t.Errorf("absent key: found=%v err=%v", found, err)
	}
}

func TestMemorySiblingsNotifyEachOther(t *testing.T) {
	a := store.NewMemory()
	b := a.Sibling()

	var fromA, fromB []store.Change
	a.Subscribe(func(c store.Change) { fromA = append(fromA, c) })
	b.Subscribe(func(c store.Change) { fromB = append(fromB, c) })

	if err := a.Set("progress", "1"); err != nil {
		t.Fatal(err)
	}
	if len(fromA) != 0 {
		t.Errorf("writer must not be notified of its own write, got %v", fromA)
	}
	if len(fromB) != 1 || fromB[0].Key != "progress" {
		t.Fatalf("sibling should see one change, got %v", fromB)
	}

	if got, _, _ := b.Get("progress"); got != "1" {
		t.Errorf("sibling read %q, want %q", got, "1")
	}

	if err := a.Remove("progress"); err != nil {
		t.Fatal(err)
	}
	if len(fromB) != 2 || !fromB[1].Removed {
		t.Errorf("expected removal notification, got %v", fromB)
	}
}

func TestFileWatchDeliversExternalWrites(t *testing.T) {
	dir := t.TempDir()
	watching, err := store.NewFile(dir)
	if err != nil {
		t.Fatal(err)
	}
	other, err := store.NewFile(dir)
	if err != nil {
		t.Fatal(err)
	}

	changes := make(chan store.Change, 16)
	watching.Subscribe(func(c store.Change) { changes <- c })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- watching.Watch(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	// Our own write must not echo back.
	if err := watching.Set("own", "mine"); err != nil {
		t.Fatal(err)
	}
	if err := other.Set("progress", `{"xp":10}`); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if c.Key == "own" {
				t.Fatalf("received notification for own write: %+v", c)
			}
			if c.Key == "progress" && !c.Removed {
				cancel()
				if err := <-done; err != nil {
					t.Errorf("Watch returned %v", err)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for external change")
		}
	}
}

func TestFileFailedWriteDoesNotMaskExternalWrite(t *testing.T) {
	dir := t.TempDir()
	watching, err := store.NewFile(dir)
	if err != nil {
		t.Fatal(err)
	}
	other, err := store.NewFile(dir)
	if err != nil {
		t.Fatal(err)
	}

	// A non-empty directory where the key file belongs makes the rename fail.
	blocker := filepath.Join(dir, "progress.json")
	if err := os.MkdirAll(filepath.Join(blocker, "inner"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := watching.Set("progress", `{"xp":10}`); err == nil {
		t.Fatal("expected Set to fail while the key path is a directory")
	}
	if err := os.RemoveAll(blocker); err != nil {
		t.Fatal(err)
	}

	changes := make(chan store.Change, 16)
	watching.Subscribe(func(c store.Change) { changes <- c })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- watching.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// The same value the failed write tried to store, now written by someone else.
	if err := other.Set("progress", `{"xp":10}`); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-changes:
		if c.Key != "progress" || c.Removed {
			t.Errorf("unexpected change: %+v", c)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("external write was hidden by the failed one")
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}

func TestSQLitePollDetectsOtherConnection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "focusgate.db")
	a, err := store.NewSQLite(path, store.SQLiteOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := store.NewSQLite(path, store.SQLiteOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	var seen []store.Change
	a.Subscribe(func(c store.Change) { seen = append(seen, c) })

	if err := b.Set("progress", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := a.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 || seen[0].Key != "progress" || seen[0].Removed {
		t.Fatalf("expected one change for progress, got %v", seen)
	}

	// No new commits: nothing to deliver.
	if err := a.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 {
		t.Fatalf("unexpected extra notifications: %v", seen)
	}

	if err := b.Remove("progress"); err != nil {
		t.Fatal(err)
	}
	if err := a.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || !seen[1].Removed {
		t.Fatalf("expected removal notification, got %v", seen)
	}
}

func TestOpenBackends(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	for _, backend := range []string{"", store.BackendFile, store.BackendSQLite, store.BackendMemory} {
		s, err := store.Open(store.Options{Backend: backend})
		if err != nil {
			t.Fatalf("Open(%q): %v", backend, err)
		}
		s.Close()
	}

	if _, err := store.Open(store.Options{Backend: "redis"}); !errors.Is(err, store.ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
}
