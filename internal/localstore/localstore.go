// Package localstore implements store.Store as JSON files in one directory,
// for running without a shared remote store. Every collection and document
// lives in its own file named "emg_" plus the sanitized path, written through
// a temporary file and a rename. Writers hold an advisory lock on a sibling
// ".lock" file across read and write, so several processes may share the
// directory. A filesystem watcher picks up files they change.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/emgroup/sitesync/internal/store"
	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
)

// FilePrefix starts the name of every file the store writes.
const FilePrefix = "emg_"

const lockRetry = 5 * time.Millisecond

// Options configures a Store.
type Options struct {
	Dir string
	// Watch enables picking up changes made by other processes.
	Watch  bool
	Logger *slog.Logger
}

type collectionFile struct {
	Entries []store.Entry `json:"entries"`
}

// Store keeps collections and documents in files.
type Store struct {
	dir    string
	logger *slog.Logger
	feed   *store.Feed

	mu     sync.Mutex
	topics map[string]string
	closed bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// New creates the directory if needed and opens the store.
func New(opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, fmt.Errorf("%w: directory is required", store.ErrInvalidInput)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Store{
		dir:    opts.Dir,
		logger: opts.Logger,
		feed:   store.NewFeed(),
		topics: make(map[string]string),
		done:   make(chan struct{}),
	}
	if !opts.Watch {
		close(s.done)
		return s, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(opts.Dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", opts.Dir, err)
	}
	s.watcher = watcher
	go s.watch()
	return s, nil
}

// FileName returns the file name used for path.
func FileName(path string) string {
	var b strings.Builder
	b.WriteString(FilePrefix)
	for _, r := range path {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	b.WriteString(".json")
	return b.String()
}

func (s *Store) file(path, topic string) string {
	name := FileName(path)
	s.topics[name] = topic
	return filepath.Join(s.dir, name)
}

func (s *Store) watch() {
	defer close(s.done)
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			s.mu.Lock()
			topic, known := s.topics[filepath.Base(event.Name)]
			s.mu.Unlock()
			if known {
				s.feed.Notify(topic)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("watcher error", "error", err)
		}
	}
}

func readJSON(file string, v any) (bool, error) {
	data, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", filepath.Base(file), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", filepath.Base(file), err)
	}
	return true, nil
}

func writeJSON(file string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(file), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(file), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), file); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(file), err)
	}
	return nil
}

// modifyCollection runs fn over the collection's entries and saves the result.
func (s *Store) modifyCollection(ctx context.Context, collection string, fn func([]store.Entry) ([]store.Entry, error)) error {
	topic := store.CollectionTopic(collection)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return store.ErrClosed
	}
	file := s.file(collection, topic)
	err := withLock(ctx, file, func() error {
		var current collectionFile
		if _, err := readJSON(file, &current); err != nil {
			return err
		}
		next, err := fn(current.Entries)
		if err != nil {
			return err
		}
		return writeJSON(file, collectionFile{Entries: next})
	})
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.feed.Notify(topic)
	return nil
}

// withLock runs fn holding the cross-process lock guarding file.
func withLock(ctx context.Context, file string, fn func() error) error {
	fl := flock.New(strings.TrimSuffix(file, ".json") + ".lock")
	locked, err := fl.TryLockContext(ctx, lockRetry)
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", filepath.Base(file), err)
	}
	if !locked {
		return fmt.Errorf("failed to lock %s", filepath.Base(file))
	}
	defer fl.Unlock()
	return fn()
}

// Create stores data under a fresh key.
func (s *Store) Create(ctx context.Context, collection string, data []byte) (string, error) {
	if collection == "" {
		return "", store.ErrInvalidInput
	}
	key := store.NewKey()
	err := s.modifyCollection(ctx, collection, func(entries []store.Entry) ([]store.Entry, error) {
		return append(entries, store.Entry{Key: key, Data: append([]byte(nil), data...)}), nil
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// Update merges patch into the entry at key.
func (s *Store) Update(ctx context.Context, collection, key string, patch store.Patch) error {
	return s.modifyCollection(ctx, collection, func(entries []store.Entry) ([]store.Entry, error) {
		for i, entry := range entries {
			if entry.Key != key {
				continue
			}
			merged, err := store.MergePatch(entry.Data, patch)
			if err != nil {
				return nil, err
			}
			entries[i].Data = merged
			return entries, nil
		}
		return nil, store.ErrNotFound
	})
}

// Delete removes the entry at key.
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	return s.modifyCollection(ctx, collection, func(entries []store.Entry) ([]store.Entry, error) {
		for i, entry := range entries {
			if entry.Key == key {
				return append(entries[:i], entries[i+1:]...), nil
			}
		}
		return nil, store.ErrNotFound
	})
}

// List returns the entries of a collection in creation order.
func (s *Store) List(ctx context.Context, collection string) ([]store.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	var current collectionFile
	if _, err := readJSON(s.file(collection, store.CollectionTopic(collection)), &current); err != nil {
		return nil, err
	}
	if current.Entries == nil {
		return []store.Entry{}, nil
	}
	return current.Entries, nil
}

// SubscribeCollection delivers the collection now and after every change.
func (s *Store) SubscribeCollection(ctx context.Context, collection string, fn func([]store.Entry)) (store.CancelFunc, error) {
	if collection == "" || fn == nil {
		return nil, store.ErrInvalidInput
	}
	return s.feed.Add(store.CollectionTopic(collection), func() {
		entries, err := s.List(context.WithoutCancel(ctx), collection)
		if err != nil {
			s.logger.Warn("reloading collection failed", "collection", collection, "error", err)
			return
		}
		fn(entries)
	})
}

// GetDocument returns the document at path; a missing document has revision 0.
func (s *Store) GetDocument(ctx context.Context, path string) (store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.Document{}, store.ErrClosed
	}
	var doc store.Document
	if _, err := readJSON(s.file(path, store.DocumentTopic(path)), &doc); err != nil {
		return store.Document{}, err
	}
	return doc, nil
}

// SetDocument overwrites the document at path.
func (s *Store) SetDocument(ctx context.Context, path string, data []byte) (int64, error) {
	return s.setDocument(ctx, path, data, -1)
}

// SetDocumentIf overwrites the document only at the expected revision.
func (s *Store) SetDocumentIf(ctx context.Context, path string, data []byte, expected int64) (int64, error) {
	return s.setDocument(ctx, path, data, expected)
}

func (s *Store) setDocument(ctx context.Context, path string, data []byte, expected int64) (int64, error) {
	if path == "" {
		return 0, store.ErrInvalidInput
	}
	topic := store.DocumentTopic(path)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, store.ErrClosed
	}
	file := s.file(path, topic)
	var next store.Document
	err := withLock(ctx, file, func() error {
		var current store.Document
		if _, err := readJSON(file, &current); err != nil {
			return err
		}
		if expected >= 0 && current.Revision != expected {
			return store.ErrConflict
		}
		next = store.Document{Data: append([]byte(nil), data...), Revision: current.Revision + 1}
		return writeJSON(file, next)
	})
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	s.feed.Notify(topic)
	return next.Revision, nil
}

// SubscribeDocument delivers the document now and after every write.
func (s *Store) SubscribeDocument(ctx context.Context, path string, fn func(store.Document)) (store.CancelFunc, error) {
	if path == "" || fn == nil {
		return nil, store.ErrInvalidInput
	}
	return s.feed.Add(store.DocumentTopic(path), func() {
		doc, err := s.GetDocument(context.WithoutCancel(ctx), path)
		if err != nil {
			s.logger.Warn("reloading document failed", "path", path, "error", err)
			return
		}
		fn(doc)
	})
}

// Close stops watching and drops subscribers. Files stay on disk.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var err error
	if s.watcher != nil {
		err = s.watcher.Close()
	}
	<-s.done
	s.feed.Close()
	return err
}

var _ store.Store = (*Store)(nil)
