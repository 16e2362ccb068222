// Package store is the durable key/value area shared by every focusgate
// process, the equivalent of a browser's per-origin localStorage. Values are
// opaque strings (JSON documents in practice). Each backend can tell a
// handle's subscribers when another handle, usually another process, changed
// a key.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

var (
	// ErrInvalidKey is returned for keys that cannot be used as file names.
	ErrInvalidKey = errors.New("invalid store key")
	// ErrCorrupt is returned by LoadJSON when the stored value is not valid JSON.
	ErrCorrupt = errors.New("stored value is corrupt")
	// ErrUnknownBackend is returned by Open for an unrecognised backend name.
	ErrUnknownBackend = errors.New("unknown store backend")
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Change describes a key written by another handle.
type Change struct {
	Key     string
	Removed bool
}

// Store is a synchronous key/value area.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(key string) (value string, ok bool, err error)
	// Set durably stores value under key before returning.
	Set(key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error
	// Subscribe registers fn for changes made by other handles.
	Subscribe(fn func(Change)) (unsubscribe func())
	Close() error
}

// Watcher is implemented by backends that must poll or watch the underlying
// medium to detect writes from other processes. Watch blocks until ctx is
// cancelled, delivering changes to subscribers.
type Watcher interface {
	Watch(ctx context.Context) error
}

var keyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,63}$`)

func validateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// LoadJSON reads key and unmarshals it into v. It reports found=false for an
// absent key, and wraps ErrCorrupt when the stored value does not parse.
func LoadJSON(s Store, key string, v any) (found bool, err error) {
	raw, ok, err := s.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return true, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return true, nil
}

// SaveJSON marshals v and stores it under key.
func SaveJSON(s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Set(key, string(data))
}

// Options configures Open.
type Options struct {
	Backend string
	// Dir is the data directory. Empty means DefaultDir().
	Dir string
	// SQLite poll settings; zero values use defaults.
	SQLite SQLiteOptions
}

// Open returns the backend named by opts.Backend rooted at opts.Dir.
func Open(opts Options) (Store, error) {
	dir := opts.Dir
	if dir == "" && opts.Backend != BackendMemory {
		d, err := DefaultDir()
		if err != nil {
			return nil, fmt.Errorf("resolving data directory: %w", err)
		}
		dir = d
	}

	switch opts.Backend {
	case "", BackendFile:
		return NewFile(filepath.Join(dir, "state"))
	case BackendSQLite:
		return NewSQLite(filepath.Join(dir, "focusgate.db"), opts.SQLite)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

// DefaultDir returns the focusgate XDG data directory:
// $XDG_DATA_HOME/focusgate or ~/.local/share/focusgate.
func DefaultDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "focusgate"), nil
}

// subscribers is the callback registry embedded by every backend.
type subscribers struct {
	mu   sync.Mutex
	next uint64
	fns  map[uint64]func(Change)
}

func (s *subscribers) add(fn func(Change)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[uint64]func(Change))
	}
	s.next++
	id := s.next
	s.fns[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.fns, id)
		s.mu.Unlock()
	}
}

func (s *subscribers) notify(c Change) {
	s.mu.Lock()
	fns := make([]func(Change), 0, len(s.fns))
	// Deliver in subscription order.
	for i := uint64(1); i <= s.next; i++ {
		if fn, ok := s.fns[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
