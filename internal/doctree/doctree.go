// Package doctree keeps the project document index in step with the store.
//
// The index is one stored value. Every mutation rebuilds the whole tree from
// the last snapshot this client saw, shows it locally at once, and then
// overwrites the stored tree in the background. By default the last writer
// wins: two clients editing from the same stale snapshot lose one change. In
// versioned mode each write is a compare-and-swap on the stored revision, and
// a conflicting mutation is re-applied to the latest tree and retried.
package doctree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emgroup/sitesync/internal/alert"
	"github.com/emgroup/sitesync/internal/domain/document"
	"github.com/emgroup/sitesync/internal/domain/record"
	"github.com/emgroup/sitesync/internal/idgen"
	"github.com/emgroup/sitesync/internal/store"
)

// ErrClosed is returned by operations on a closed synchronizer.
var ErrClosed = errors.New("document synchronizer closed")

// FailureMessage is shown to users when the tree could not be saved.
const FailureMessage = "Document changes could not be saved. Check your connection and try again."

const (
	defaultWriteTimeout = 15 * time.Second
	defaultMaxAttempts  = 5
)

// Config describes the tree and how it is written.
type Config struct {
	// Path is the store document path.
	Path string
	// Seed is written to the store when no tree exists yet.
	Seed document.Tree
	// Versioned writes with compare-and-swap and retries on conflict.
	Versioned bool
	// MaxAttempts bounds compare-and-swap retries per mutation.
	MaxAttempts  int
	WriteTimeout time.Duration
	// Now stamps file dates. Defaults to time.Now.
	Now func() time.Time
}

// mutation derives a new tree from a base.
type mutation func(document.Tree) (document.Tree, error)

// Synchronizer owns the in-memory copy of the document tree.
type Synchronizer struct {
	cfg    Config
	store  store.DocumentStore
	ids    *idgen.Allocator
	alerts alert.Sink
	logger *slog.Logger

	mu          sync.Mutex
	tree        document.Tree
	revision    int64
	loaded      bool
	seeding     bool
	watchers    map[int]func(document.Tree)
	nextWatcher int
	cancel      store.CancelFunc
	subscribed  bool
	closed      bool
	lastWrite   chan struct{}

	writes sync.WaitGroup
}

// New creates a synchronizer. Nil ids, alerts or logger fall back to the
// process allocator, a discarding sink and a discarding logger.
func New(st store.DocumentStore, cfg Config, ids *idgen.Allocator, alerts alert.Sink, logger *slog.Logger) *Synchronizer {
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
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Synchronizer{
		cfg:      cfg,
		store:    st,
		ids:      ids,
		alerts:   alerts,
		logger:   logger.With("document", cfg.Path),
		watchers: make(map[int]func(document.Tree)),
	}
}

// Subscribe opens the live subscription. If the store holds no tree yet, the
// seed tree is adopted locally and written to the store.
func (s *Synchronizer) Subscribe(ctx context.Context) error {
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

	cancel, err := s.store.SubscribeDocument(ctx, s.cfg.Path, func(doc store.Document) {
		s.apply(ctx, doc)
	})
	if err != nil {
		s.mu.Lock()
		s.subscribed = false
		s.mu.Unlock()
		s.logger.Error("subscribe failed", "error", err)
		s.alerts.Alert(alert.Alert{Message: FailureMessage, Operation: "subscribe", Target: s.cfg.Path})
		return fmt.Errorf("subscribing %s: %w", s.cfg.Path, err)
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

func (s *Synchronizer) apply(ctx context.Context, doc store.Document) {
	if !doc.Exists() {
		s.adoptSeed(ctx)
		return
	}
	tree, err := document.Decode(doc.Data)
	if err != nil {
		s.logger.Warn("ignoring undecodable tree", "revision", doc.Revision, "error", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.tree = tree
	s.revision = doc.Revision
	s.loaded = true
	s.seeding = false
	snapshot, watchers := s.snapshotLocked()
	s.mu.Unlock()

	notify(watchers, snapshot)
}

// adoptSeed shows the seed tree and creates it remotely. The write only
// succeeds if the tree is still absent, so concurrent first subscribers do
// not overwrite each other.
func (s *Synchronizer) adoptSeed(ctx context.Context) {
	s.mu.Lock()
	if s.closed || s.seeding {
		s.mu.Unlock()
		return
	}
	s.seeding = true
	s.tree = s.cfg.Seed.Clone()
	s.revision = 0
	s.loaded = true
	snapshot, watchers := s.snapshotLocked()
	data, err := document.Encode(s.tree)
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("encoding seed tree failed", "error", err)
		return
	}
	s.enqueueLocked(ctx, func(ctx context.Context) {
		_, err := s.store.SetDocumentIf(ctx, s.cfg.Path, data, 0)
		switch {
		case err == nil:
			s.logger.Info("seed tree created")
		case errors.Is(err, store.ErrConflict):
			s.logger.Debug("seed tree already created by another client")
		default:
			s.fail("seed", err)
		}
	})
	s.mu.Unlock()

	notify(watchers, snapshot)
}

func (s *Synchronizer) snapshotLocked() (document.Tree, []func(document.Tree)) {
	watchers := make([]func(document.Tree), 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, w)
	}
	return s.tree.Clone(), watchers
}

func notify(watchers []func(document.Tree), tree document.Tree) {
	for _, w := range watchers {
		w(tree.Clone())
	}
}

// Tree returns a copy of the current tree.
func (s *Synchronizer) Tree() document.Tree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Clone()
}

// Revision returns the store revision of the last tree received.
func (s *Synchronizer) Revision() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Loaded reports whether a tree has been received or seeded.
func (s *Synchronizer) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Watch calls fn with the tree after every change until the returned cancel
// func is called or the synchronizer closes.
func (s *Synchronizer) Watch(fn func(document.Tree)) func() {
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

// AddFile places file first in the folder. Missing id, type and date are
// filled in and author is stamped. The stored file is returned.
func (s *Synchronizer) AddFile(ctx context.Context, folderID string, file document.File, author string) (document.File, error) {
	if file.ID == "" {
		file.ID = strconv.FormatInt(s.ids.NewID(), 10)
	}
	if file.Type == "" {
		file.Type = document.TypeFromName(file.Name)
	}
	if file.Date == "" {
		file.Date = record.FormatDate(s.cfg.Now())
	}
	file.Author = author

	err := s.mutate(ctx, "add_file", file.ID, func(base document.Tree) (document.Tree, error) {
		return base.AddFile(folderID, file)
	})
	if err != nil {
		return document.File{}, err
	}
	return file, nil
}

// DeleteFile removes the file from whichever folder holds it. Deleting a file
// that is already gone is a no-op.
func (s *Synchronizer) DeleteFile(ctx context.Context, fileID string) error {
	err := s.mutate(ctx, "delete_file", fileID, func(base document.Tree) (document.Tree, error) {
		next, removed := base.DeleteFile(fileID)
		if !removed {
			return nil, document.ErrFileNotFound
		}
		return next, nil
	})
	if errors.Is(err, document.ErrFileNotFound) {
		s.logger.Info("file already gone", "id", fileID)
		return nil
	}
	return err
}

// AddFolder appends an empty folder named name.
func (s *Synchronizer) AddFolder(ctx context.Context, name string) (document.Folder, error) {
	folder := document.Folder{
		ID:    "folder-" + strconv.FormatInt(s.ids.NewID(), 10),
		Name:  strings.TrimSpace(name),
		Items: []document.File{},
	}
	err := s.mutate(ctx, "add_folder", folder.ID, func(base document.Tree) (document.Tree, error) {
		return base.AddFolder(folder)
	})
	if err != nil {
		return document.Folder{}, err
	}
	return folder, nil
}

// mutate applies fn to the local tree, shows the result and schedules the
// remote write. Only errors from fn are returned.
func (s *Synchronizer) mutate(ctx context.Context, op, target string, fn mutation) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	next, err := fn(s.tree)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	base := s.revision
	s.tree = next
	snapshot, watchers := s.snapshotLocked()
	data, err := document.Encode(next)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("encode tree: %w", err)
	}
	s.enqueueLocked(ctx, func(ctx context.Context) {
		if s.cfg.Versioned {
			s.writeVersioned(ctx, op, target, fn, data, base)
			return
		}
		if _, err := s.store.SetDocument(ctx, s.cfg.Path, data); err != nil {
			s.fail(op, err)
		}
	})
	s.mu.Unlock()

	notify(watchers, snapshot)
	return nil
}

func (s *Synchronizer) writeVersioned(ctx context.Context, op, target string, fn mutation, data []byte, expected int64) {
	for attempt := 1; ; attempt++ {
		_, err := s.store.SetDocumentIf(ctx, s.cfg.Path, data, expected)
		if err == nil {
			return
		}
		if !errors.Is(err, store.ErrConflict) {
			s.fail(op, err)
			return
		}
		if attempt >= s.cfg.MaxAttempts {
			s.fail(op, fmt.Errorf("gave up after %d attempts: %w", attempt, err))
			return
		}

		latest, err := s.store.GetDocument(ctx, s.cfg.Path)
		if err != nil {
			s.fail(op, err)
			return
		}
		var base document.Tree
		if latest.Exists() {
			if base, err = document.Decode(latest.Data); err != nil {
				s.fail(op, err)
				return
			}
		}
		next, err := fn(base)
		if err != nil {
			// The change no longer applies to the latest tree.
			s.logger.Info("dropping change after conflict", "op", op, "target", target, "error", err)
			return
		}
		if data, err = document.Encode(next); err != nil {
			s.fail(op, err)
			return
		}
		expected = latest.Revision
		s.logger.Debug("retrying after conflict", "op", op, "target", target, "attempt", attempt, "revision", expected)
	}
}

// enqueueLocked runs fn in the background after every previously scheduled
// write, so one client's trees reach the store in the order they were built.
func (s *Synchronizer) enqueueLocked(ctx context.Context, fn func(context.Context)) {
	prev := s.lastWrite
	done := make(chan struct{})
	s.lastWrite = done
	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
		defer cancel()
		fn(wctx)
	}()
}

func (s *Synchronizer) fail(op string, err error) {
	s.logger.Error("remote write failed", "op", op, "error", err)
	s.alerts.Alert(alert.Alert{Message: FailureMessage, Operation: op, Target: s.cfg.Path})
}

// Wait blocks until every background write started so far has finished.
func (s *Synchronizer) Wait() {
	s.writes.Wait()
}

// Close ends the subscription, drops watchers and waits for in-flight writes.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.cancel = nil
	s.watchers = make(map[int]func(document.Tree))
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.writes.Wait()
}
