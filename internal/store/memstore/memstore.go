// Package memstore is an in-process store.Store. It backs tests and the
// "memory" backend, and can hold change notifications back to simulate the
// synchronization lag between clients.
package memstore

import (
	"context"
	"sync"

	"github.com/emgroup/sitesync/internal/store"
)

type collection struct {
	order []string
	data  map[string][]byte
}

// Store keeps collections and documents in memory.
type Store struct {
	mu          sync.Mutex
	collections map[string]*collection
	documents   map[string]store.Document
	closed      bool

	holdMu  sync.Mutex
	holding bool
	pending []string

	feed *store.Feed
}

// New creates an empty store.
func New() *Store {
	return &Store{
		collections: make(map[string]*collection),
		documents:   make(map[string]store.Document),
		feed:        store.NewFeed(),
	}
}

// Hold queues change notifications until Release is called. Writes still land
// immediately; only subscribers are kept on their previous snapshot.
func (s *Store) Hold() {
	s.holdMu.Lock()
	s.holding = true
	s.holdMu.Unlock()
}

// Release delivers every notification queued since Hold.
func (s *Store) Release() {
	s.holdMu.Lock()
	pending := s.pending
	s.pending = nil
	s.holding = false
	s.holdMu.Unlock()

	seen := make(map[string]bool, len(pending))
	for _, topic := range pending {
		if seen[topic] {
			continue
		}
		seen[topic] = true
		s.feed.Notify(topic)
	}
}

func (s *Store) notify(topic string) {
	s.holdMu.Lock()
	if s.holding {
		s.pending = append(s.pending, topic)
		s.holdMu.Unlock()
		return
	}
	s.holdMu.Unlock()
	s.feed.Notify(topic)
}

// Create stores data under a fresh key.
func (s *Store) Create(ctx context.Context, path string, data []byte) (string, error) {
	if path == "" {
		return "", store.ErrInvalidInput
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", store.ErrClosed
	}
	col := s.collection(path)
	key := store.NewKey()
	col.order = append(col.order, key)
	col.data[key] = append([]byte(nil), data...)
	s.mu.Unlock()

	s.notify(store.CollectionTopic(path))
	return key, nil
}

// Update merges patch into the entry at key.
func (s *Store) Update(ctx context.Context, path, key string, patch store.Patch) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return store.ErrClosed
	}
	col, ok := s.collections[path]
	if !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	current, ok := col.data[key]
	if !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	merged, err := store.MergePatch(current, patch)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	col.data[key] = merged
	s.mu.Unlock()

	s.notify(store.CollectionTopic(path))
	return nil
}

// Delete removes the entry at key.
func (s *Store) Delete(ctx context.Context, path, key string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return store.ErrClosed
	}
	col, ok := s.collections[path]
	if !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	if _, ok := col.data[key]; !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	delete(col.data, key)
	for i, k := range col.order {
		if k == key {
			col.order = append(col.order[:i], col.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.notify(store.CollectionTopic(path))
	return nil
}

// List returns the entries of a collection in creation order.
func (s *Store) List(ctx context.Context, path string) ([]store.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	return s.entries(path), nil
}

// SubscribeCollection delivers the collection now and after every change.
func (s *Store) SubscribeCollection(ctx context.Context, path string, fn func([]store.Entry)) (store.CancelFunc, error) {
	if path == "" || fn == nil {
		return nil, store.ErrInvalidInput
	}
	return s.feed.Add(store.CollectionTopic(path), func() {
		s.mu.Lock()
		entries := s.entries(path)
		s.mu.Unlock()
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
	return s.document(path), nil
}

// SetDocument overwrites the document at path.
func (s *Store) SetDocument(ctx context.Context, path string, data []byte) (int64, error) {
	return s.setDocument(path, data, -1)
}

// SetDocumentIf overwrites the document only at the expected revision.
func (s *Store) SetDocumentIf(ctx context.Context, path string, data []byte, expected int64) (int64, error) {
	return s.setDocument(path, data, expected)
}

func (s *Store) setDocument(path string, data []byte, expected int64) (int64, error) {
	if path == "" {
		return 0, store.ErrInvalidInput
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, store.ErrClosed
	}
	current := s.documents[path]
	if expected >= 0 && current.Revision != expected {
		s.mu.Unlock()
		return 0, store.ErrConflict
	}
	next := store.Document{
		Data:     append([]byte(nil), data...),
		Revision: current.Revision + 1,
	}
	s.documents[path] = next
	s.mu.Unlock()

	s.notify(store.DocumentTopic(path))
	return next.Revision, nil
}

// SubscribeDocument delivers the document now and after every write.
func (s *Store) SubscribeDocument(ctx context.Context, path string, fn func(store.Document)) (store.CancelFunc, error) {
	if path == "" || fn == nil {
		return nil, store.ErrInvalidInput
	}
	return s.feed.Add(store.DocumentTopic(path), func() {
		s.mu.Lock()
		doc := s.document(path)
		s.mu.Unlock()
		fn(doc)
	})
}

// Close drops subscribers and rejects further calls.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.feed.Close()
	return nil
}

func (s *Store) collection(path string) *collection {
	col, ok := s.collections[path]
	if !ok {
		col = &collection{data: make(map[string][]byte)}
		s.collections[path] = col
	}
	return col
}

func (s *Store) entries(path string) []store.Entry {
	col, ok := s.collections[path]
	if !ok {
		return []store.Entry{}
	}
	out := make([]store.Entry, 0, len(col.order))
	for _, key := range col.order {
		out = append(out, store.Entry{Key: key, Data: append([]byte(nil), col.data[key]...)})
	}
	return out
}

func (s *Store) document(path string) store.Document {
	doc := s.documents[path]
	if doc.Data != nil {
		doc.Data = append([]byte(nil), doc.Data...)
	}
	return doc
}

var _ store.Store = (*Store)(nil)
