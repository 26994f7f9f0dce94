// Package collection keeps one homogeneous, independently persisted collection
// in memory and in step with the remote store.
//
// Every remote push replaces the visible sequence wholesale. Mutations are
// fire-and-forget: they return immediately, write in the background, and
// report failures through the logger and the alert sink instead of to the
// caller.
package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/emgroup/sitesync/internal/alert"
	"github.com/emgroup/sitesync/internal/idgen"
	"github.com/emgroup/sitesync/internal/store"
)

// ErrClosed is returned when subscribing a closed synchronizer.
var ErrClosed = errors.New("collection synchronizer closed")

// Record is a domain record with a stable local numeric id.
type Record[T any] interface {
	GetID() int64
	WithID(id int64) T
}

// Order controls how a collection is presented.
type Order int

const (
	// StoreOrder keeps the store's creation order; new records land at the end.
	StoreOrder Order = iota
	// NewestFirst sorts by id descending; new records land at the front.
	NewestFirst
)

const defaultWriteTimeout = 15 * time.Second

// FailureMessage is the generic text shown to users when a background write fails.
const FailureMessage = "Changes could not be saved. Check your connection and try again."

// Config describes one collection.
type Config[T any] struct {
	// Name identifies the collection in logs and alerts.
	Name string
	// Path is the store collection path.
	Path  string
	Order Order
	// Seed is shown while the remote collection is empty. It is never written.
	Seed []T
	// Prepare fills type defaults on Add, after the id is assigned.
	Prepare func(T) T
	// Optimistic inserts, patches and removes locally before the store confirms.
	Optimistic   bool
	WriteTimeout time.Duration
}

type item[T any] struct {
	key   string
	value T
}

// Synchronizer owns the in-memory copy of one collection.
type Synchronizer[T Record[T]] struct {
	cfg    Config[T]
	store  store.CollectionStore
	ids    *idgen.Allocator
	alerts alert.Sink
	logger *slog.Logger

	mu          sync.Mutex
	remote      []item[T]
	pending     []item[T]
	visible     []item[T]
	seeded      bool
	watchers    map[int]func([]T)
	nextWatcher int
	cancel      store.CancelFunc
	subscribed  bool
	closed      bool

	writes sync.WaitGroup
}

// New creates a synchronizer. Nil ids, alerts or logger fall back to the
// process allocator, a discarding sink and a discarding logger.
func New[T Record[T]](st store.CollectionStore, cfg Config[T], ids *idgen.Allocator, alerts alert.Sink, logger *slog.Logger) *Synchronizer[T] {
	if ids == nil {
		ids = idgen.New(nil)
	}
	if alerts == nil {
		alerts = alert.Discard
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	s := &Synchronizer[T]{
		cfg:      cfg,
		store:    st,
		ids:      ids,
		alerts:   alerts,
		logger:   logger.With("collection", cfg.Name),
		watchers: make(map[int]func([]T)),
	}
	s.rebuildLocked()
	return s
}

// Name returns the collection name.
func (s *Synchronizer[T]) Name() string {
	return s.cfg.Name
}

// Subscribe opens the live subscription. The current contents are applied
// before it returns. Calling it again while subscribed is a no-op.
func (s *Synchronizer[T]) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.subscribed {
		s.mu.Unlock()
		return nil
	}
	s.subscribed = true
	s.mu.Unlock()

	cancel, err := s.store.SubscribeCollection(ctx, s.cfg.Path, s.apply)
	if err != nil {
		s.mu.Lock()
		s.subscribed = false
		s.mu.Unlock()
		s.logger.Error("subscribe failed", "path", s.cfg.Path, "error", err)
		s.alerts.Alert(alert.Alert{Message: FailureMessage, Operation: "subscribe", Target: s.cfg.Name})
		return fmt.Errorf("subscribing %s: %w", s.cfg.Name, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return ErrClosed
	}
	s.cancel = cancel
	s.mu.Unlock()
	return nil
}

// apply replaces the visible sequence with an authoritative snapshot.
func (s *Synchronizer[T]) apply(entries []store.Entry) {
	remote := make([]item[T], 0, len(entries))
	for _, entry := range entries {
		var value T
		if err := json.Unmarshal(entry.Data, &value); err != nil {
			s.logger.Warn("skipping undecodable entry", "key", entry.Key, "error", err)
			continue
		}
		remote = append(remote, item[T]{key: entry.Key, value: value})
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.remote = remote
	s.pending = reconcile(s.pending, remote)
	s.rebuildLocked()
	snapshot, watchers := s.snapshotLocked()
	s.mu.Unlock()

	notify(watchers, snapshot)
}

// reconcile drops pending records the store now holds. A pending record is
// confirmed when an authoritative record is structurally equal to it, or,
// once its create has returned, sits under its store key.
func reconcile[T Record[T]](pending []item[T], remote []item[T]) []item[T] {
	if len(pending) == 0 {
		return nil
	}
	keys := make(map[string]bool, len(remote))
	shapes := make(map[string]bool, len(remote))
	for _, it := range remote {
		keys[it.key] = true
		shapes[canonical(it.value)] = true
	}
	kept := pending[:0:0]
	for _, p := range pending {
		if (p.key != "" && keys[p.key]) || shapes[canonical(p.value)] {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

func canonical[T any](v T) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func (s *Synchronizer[T]) rebuildLocked() {
	visible := make([]item[T], 0, len(s.remote)+len(s.pending))
	visible = append(visible, s.remote...)
	visible = append(visible, s.pending...)
	s.seeded = len(visible) == 0 && len(s.cfg.Seed) > 0
	if s.seeded {
		for _, seed := range s.cfg.Seed {
			visible = append(visible, item[T]{value: seed})
		}
	}
	if s.cfg.Order == NewestFirst {
		sort.SliceStable(visible, func(i, j int) bool {
			return visible[i].value.GetID() > visible[j].value.GetID()
		})
	}
	s.visible = visible
}

func (s *Synchronizer[T]) snapshotLocked() ([]T, []func([]T)) {
	values := make([]T, len(s.visible))
	for i, it := range s.visible {
		values[i] = it.value
	}
	watchers := make([]func([]T), 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, w)
	}
	return values, watchers
}

func notify[T any](watchers []func([]T), snapshot []T) {
	for _, w := range watchers {
		w(snapshot)
	}
}

// Items returns the visible records. Slices inside records are shared with
// the synchronizer and must be treated as read-only.
func (s *Synchronizer[T]) Items() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, _ := s.snapshotLocked()
	return values
}

// Get returns the visible record with id.
func (s *Synchronizer[T]) Get(id int64) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.visible {
		if it.value.GetID() == id {
			return it.value, true
		}
	}
	var zero T
	return zero, false
}

// StoreKey returns the store key of a visible record, if the store has
// confirmed it.
func (s *Synchronizer[T]) StoreKey(id int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyLocked(id)
}

// keyLocked only consults delivered records; a pending record stays in flight
// until the store pushes it back, even once its key is known.
func (s *Synchronizer[T]) keyLocked(id int64) (string, bool) {
	for _, it := range s.remote {
		if it.value.GetID() == id {
			return it.key, true
		}
	}
	return "", false
}

// Seeded reports whether the seed set is currently shown.
func (s *Synchronizer[T]) Seeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeded
}

// Watch calls fn with the visible records after every change until the
// returned cancel func is called or the synchronizer closes.
func (s *Synchronizer[T]) Watch(fn func([]T)) func() {
	s.mu.Lock()
	id := s.nextWatcher
	s.nextWatcher++
	if !s.closed {
		s.watchers[id] = fn
	}
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// Add assigns an id to partial, applies the collection defaults and creates
// it remotely. The record becomes visible when the store pushes it back, or
// immediately in optimistic mode. The assigned id is returned.
func (s *Synchronizer[T]) Add(ctx context.Context, partial T) int64 {
	id := s.ids.NewID()
	rec := partial.WithID(id)
	if s.cfg.Prepare != nil {
		rec = s.cfg.Prepare(rec)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error("encoding record failed", "id", id, "error", err)
		return id
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Warn("dropping add on closed collection", "id", id)
		return id
	}
	var snapshot []T
	var watchers []func([]T)
	if s.cfg.Optimistic {
		s.pending = append(s.pending, item[T]{value: rec})
		s.rebuildLocked()
		snapshot, watchers = s.snapshotLocked()
	}
	s.writes.Add(1)
	s.mu.Unlock()
	notify(watchers, snapshot)

	s.write(ctx, "add", id, func(ctx context.Context) error {
		key, err := s.store.Create(ctx, s.cfg.Path, data)
		if err == nil {
			s.logger.Debug("record created", "id", id, "key", key)
			s.confirm(id, key)
		}
		return err
	})
	return id
}

// Update merges patch into the record with id. The record must already carry
// a store key; records still in flight from Add are logged and skipped.
func (s *Synchronizer[T]) Update(ctx context.Context, id int64, patch store.Patch) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Warn("dropping update on closed collection", "id", id)
		return
	}
	key, ok := s.keyLocked(id)
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("dropping update: store key unknown", "id", id)
		return
	}
	var snapshot []T
	var watchers []func([]T)
	if s.cfg.Optimistic {
		if s.patchLocked(key, patch) {
			s.rebuildLocked()
			snapshot, watchers = s.snapshotLocked()
		}
	}
	s.writes.Add(1)
	s.mu.Unlock()
	notify(watchers, snapshot)

	s.write(ctx, "update", id, func(ctx context.Context) error {
		return s.store.Update(ctx, s.cfg.Path, key, patch)
	})
}

func (s *Synchronizer[T]) patchLocked(key string, patch store.Patch) bool {
	for i, it := range s.remote {
		if it.key != key {
			continue
		}
		current, err := json.Marshal(it.value)
		if err != nil {
			return false
		}
		merged, err := store.MergePatch(current, patch)
		if err != nil {
			s.logger.Warn("local patch failed", "key", key, "error", err)
			return false
		}
		var next T
		if err := json.Unmarshal(merged, &next); err != nil {
			s.logger.Warn("local patch failed", "key", key, "error", err)
			return false
		}
		remote := make([]item[T], len(s.remote))
		copy(remote, s.remote)
		remote[i] = item[T]{key: key, value: next}
		s.remote = remote
		return true
	}
	return false
}

// Delete removes the record with id. Deleting a record that is already gone
// is a no-op.
func (s *Synchronizer[T]) Delete(ctx context.Context, id int64) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Warn("dropping delete on closed collection", "id", id)
		return
	}
	key, ok := s.keyLocked(id)
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("dropping delete: store key unknown", "id", id)
		return
	}
	var snapshot []T
	var watchers []func([]T)
	if s.cfg.Optimistic {
		remote := make([]item[T], 0, len(s.remote))
		for _, it := range s.remote {
			if it.key != key {
				remote = append(remote, it)
			}
		}
		s.remote = remote
		s.rebuildLocked()
		snapshot, watchers = s.snapshotLocked()
	}
	s.writes.Add(1)
	s.mu.Unlock()
	notify(watchers, snapshot)

	s.write(ctx, "delete", id, func(ctx context.Context) error {
		return s.store.Delete(ctx, s.cfg.Path, key)
	})
}

// confirm records the store key of the pending record with id, dropping it
// if the store already delivered that key.
func (s *Synchronizer[T]) confirm(id int64, key string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	found := false
	for i, p := range s.pending {
		if p.key == "" && p.value.GetID() == id {
			s.pending[i].key = key
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		return
	}
	before := len(s.pending)
	s.pending = reconcile(s.pending, s.remote)
	if len(s.pending) == before {
		s.mu.Unlock()
		return
	}
	s.rebuildLocked()
	snapshot, watchers := s.snapshotLocked()
	s.mu.Unlock()
	notify(watchers, snapshot)
}

// write runs fn in the background, detached from the caller's cancellation.
// The caller counts the write in s.writes while holding s.mu, so Close never
// returns ahead of it.
func (s *Synchronizer[T]) write(ctx context.Context, op string, id int64, fn func(context.Context) error) {
	go func() {
		defer s.writes.Done()
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
		defer cancel()

		err := fn(wctx)
		if err == nil {
			return
		}
		if errors.Is(err, store.ErrNotFound) {
			// Already removed by this or another client.
			s.logger.Info("remote record gone", "op", op, "id", id)
			return
		}
		s.logger.Error("remote write failed", "op", op, "id", id, "error", err)
		s.alerts.Alert(alert.Alert{
			Message:   FailureMessage,
			Operation: op,
			Target:    fmt.Sprintf("%s/%d", s.cfg.Name, id),
		})
	}()
}

// Wait blocks until every background write started so far has finished.
func (s *Synchronizer[T]) Wait() {
	s.writes.Wait()
}

// Close ends the subscription, drops watchers and waits for in-flight writes.
// No watcher is called after Close returns.
func (s *Synchronizer[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.cancel = nil
	s.watchers = make(map[int]func([]T))
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.writes.Wait()
}
