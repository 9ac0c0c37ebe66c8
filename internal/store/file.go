package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const fileLockRetry = 10 * time.Millisecond

// File keeps every namespace in one JSON document on disk. Values must be
// valid JSON. Each mutation rewrites the document through a uniquely named
// temp file and rename while holding an advisory lock on path+".lock", so
// several processes may share one state file.
type File struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

type fileEntry struct {
	Namespace string          `json:"namespace"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// NewFile returns a File store rooted at path, creating parent directories.
func NewFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &File{path: path, lock: flock.New(path + ".lock")}, nil
}

// locked runs fn while holding both the in-process mutex and the file lock.
func (f *File) locked(ctx context.Context, fn func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ok, err := f.lock.TryLockContext(ctx, fileLockRetry)
	if err != nil {
		return fmt.Errorf("file store: lock %s: %w", f.path, err)
	}
	if !ok {
		return fmt.Errorf("file store: lock %s: %w", f.path, ctx.Err())
	}
	defer func() { _ = f.lock.Unlock() }()
	return fn()
}

func (f *File) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	var value []byte
	err := f.locked(ctx, func() error {
		entries, err := f.loadEntries()
		if err != nil {
			return err
		}
		if idx := findEntry(entries, namespace, key); idx >= 0 {
			value = append([]byte(nil), entries[idx].Value...)
			return nil
		}
		return ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (f *File) Set(ctx context.Context, namespace, key string, value []byte) error {
	return f.Update(ctx, namespace, key, func([]byte) ([]byte, error) { return value, nil })
}

func (f *File) Update(ctx context.Context, namespace, key string, fn Mutator) error {
	return f.locked(ctx, func() error { return f.update(namespace, key, fn) })
}

func (f *File) update(namespace, key string, fn Mutator) error {
	entries, err := f.loadEntries()
	if err != nil {
		return err
	}
	idx := findEntry(entries, namespace, key)
	var current []byte
	if idx >= 0 {
		current = append([]byte(nil), entries[idx].Value...)
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	switch {
	case next == nil && idx < 0:
		return nil
	case next == nil:
		entries = append(entries[:idx], entries[idx+1:]...)
	default:
		if !json.Valid(next) {
			return fmt.Errorf("file store: value for %s is not valid JSON", key)
		}
		entry := fileEntry{Namespace: namespace, Key: key, Value: json.RawMessage(next), UpdatedAt: time.Now().UTC()}
		if idx >= 0 {
			entries[idx] = entry
		} else {
			entries = append(entries, entry)
		}
	}
	return f.writeEntries(entries)
}

func (f *File) Delete(ctx context.Context, namespace, key string) error {
	return f.Update(ctx, namespace, key, func([]byte) ([]byte, error) { return nil, nil })
}

func (f *File) List(ctx context.Context, namespace, prefix string) ([]string, error) {
	var keys []string
	err := f.locked(ctx, func() error {
		entries, err := f.loadEntries()
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if entry.Namespace == namespace && strings.HasPrefix(entry.Key, prefix) {
				keys = append(keys, entry.Key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *File) Close() error { return f.lock.Close() }

func (f *File) loadEntries() ([]fileEntry, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var entries []fileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("file store: decode %s: %w", f.path, err)
	}
	return entries, nil
}

func (f *File) writeEntries(entries []fileEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.part")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

func findEntry(entries []fileEntry, namespace, key string) int {
	for i, entry := range entries {
		if entry.Namespace == namespace && entry.Key == key {
			return i
		}
	}
	return -1
}
