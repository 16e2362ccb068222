package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

const fileExt = ".json"

// removedMarker records in File.seen that the handle last saw a key absent.
const removedMarker = "\x00removed"

// File stores each key as <dir>/<key>.json. Writes go through a temp file and
// os.Rename so a reader in another process never sees a torn value.
type File struct {
	dir  string
	subs subscribers

	mu sync.Mutex
	// seen is the last value this handle wrote or delivered for each key.
	// Watch compares against it to skip events caused by our own writes.
	seen map[string]string
}

// NewFile returns a File store rooted at dir, creating it if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &File{dir: dir, seen: make(map[string]string)}, nil
}

// Dir returns the directory holding the key files.
func (f *File) Dir() string { return f.dir }

func (f *File) path(key string) string {
	return filepath.Join(f.dir, key+fileExt)
}

// Get reads the file for key.
func (f *File) Get(key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return string(data), true, nil
}

// Set writes value atomically via a temp file + os.Rename.
func (f *File) Set(key, value string) (err error) {
	if err := validateKey(key); err != nil {
		return err
	}

	// The temp file lives in the same directory so os.Rename is atomic. Its
	// name does not end in .json, so Watch ignores it.
	tmp, err := os.CreateTemp(f.dir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.WriteString(value); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}

	// Recorded before the rename so Watch never mistakes this write for
	// another handle's; undone if the rename fails.
	restore := f.remember(key, value)
	if err = os.Rename(tmpName, f.path(key)); err != nil {
		restore()
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	return nil
}

// remember records value as the last one seen for key and returns a func
// that puts back the previous entry.
func (f *File) remember(key, value string) (restore func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, known := f.seen[key]
	f.seen[key] = value
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.seen[key] != value {
			return
		}
		if known {
			f.seen[key] = prev
		} else {
			delete(f.seen, key)
		}
	}
}

// Remove deletes the file for key.
func (f *File) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	restore := f.remember(key, removedMarker)
	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		restore()
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (f *File) Subscribe(fn func(Change)) func() {
	return f.subs.add(fn)
}

func (f *File) Close() error { return nil }

// Watch runs an fsnotify watcher on the store directory and delivers changes
// made by other processes until ctx is cancelled.
func (f *File) Watch(ctx context.Context) error {
	return f.WatchWithErrors(ctx, nil)
}

// WatchWithErrors is Watch with a callback for non-fatal watcher errors.
func (f *File) WatchWithErrors(ctx context.Context, onError func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(f.dir); err != nil {
		return fmt.Errorf("watching %s: %w", f.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			key, ok := f.keyFor(ev.Name)
			if !ok {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				f.deliver(key)
			}

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Watcher errors are non-fatal; keep watching.
			if onError != nil {
				onError(werr)
			}
		}
	}
}

// keyFor maps a path inside the store directory back to its key.
func (f *File) keyFor(path string) (string, bool) {
	if filepath.Dir(path) != filepath.Clean(f.dir) {
		return "", false
	}
	base := filepath.Base(path)
	if !strings.HasSuffix(base, fileExt) {
		return "", false
	}
	key := strings.TrimSuffix(base, fileExt)
	if validateKey(key) != nil {
		return "", false
	}
	return key, true
}

// deliver re-reads key and notifies subscribers if its value differs from the
// last one this handle wrote or delivered.
func (f *File) deliver(key string) {
	value, present, err := f.Get(key)
	if err != nil {
		return
	}
	current := removedMarker
	if present {
		current = value
	}

	f.mu.Lock()
	last, known := f.seen[key]
	if known && last == current {
		f.mu.Unlock()
		return
	}
	if !known && !present {
		f.mu.Unlock()
		return
	}
	f.seen[key] = current
	f.mu.Unlock()

	f.subs.notify(Change{Key: key, Removed: !present})
}
