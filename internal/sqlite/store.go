package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emgroup/sitesync/internal/store"
)

const defaultPollInterval = time.Second

// StoreOptions configures a Store.
type StoreOptions struct {
	// PollInterval controls how often writes from other processes sharing
	// the database file are picked up. Zero uses one second; negative
	// disables polling.
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Store implements store.Store on SQLite. Writes made through this Store
// reach its subscribers at once; writes from other processes arrive on the
// next poll of the changes table.
type Store struct {
	db     *DB
	feed   *store.Feed
	logger *slog.Logger

	mu     sync.Mutex
	seen   map[string]int64
	closed bool

	stop chan struct{}
	done chan struct{}
}

// NewStore creates a Store over a migrated database. The caller keeps
// ownership of db.
func NewStore(db *DB, opts StoreOptions) *Store {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = defaultPollInterval
	}
	s := &Store{
		db:     db,
		feed:   store.NewFeed(),
		logger: opts.Logger,
		seen:   make(map[string]int64),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if opts.PollInterval > 0 {
		// Changes that predate this Store are already part of what a
		// subscriber reads on its first delivery.
		for topic, version := range s.loadVersions(context.Background()) {
			s.seen[topic] = version
		}
		go s.poll(opts.PollInterval)
	} else {
		close(s.done)
	}
	return s
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Create inserts data under a fresh key.
func (s *Store) Create(ctx context.Context, collection string, data []byte) (string, error) {
	if collection == "" {
		return "", store.ErrInvalidInput
	}
	if s.isClosed() {
		return "", store.ErrClosed
	}
	key := store.NewKey()
	topic := store.CollectionTopic(collection)
	err := s.inTx(ctx, topic, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO entries (collection, key, data) VALUES (?, ?, ?)`,
			collection, key, string(data))
		if err != nil {
			return fmt.Errorf("failed to create entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// Update merges patch into the entry at key.
func (s *Store) Update(ctx context.Context, collection, key string, patch store.Patch) error {
	if s.isClosed() {
		return store.ErrClosed
	}
	return s.inTx(ctx, store.CollectionTopic(collection), func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx,
			`SELECT data FROM entries WHERE collection = ? AND key = ?`,
			collection, key).Scan(&current)
		if err == sql.ErrNoRows {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read entry: %w", err)
		}
		merged, err := store.MergePatch([]byte(current), patch)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE entries SET data = ?, modified_at = CURRENT_TIMESTAMP WHERE collection = ? AND key = ?`,
			string(merged), collection, key)
		if err != nil {
			return fmt.Errorf("failed to update entry: %w", err)
		}
		return nil
	})
}

// Delete removes the entry at key.
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	if s.isClosed() {
		return store.ErrClosed
	}
	return s.inTx(ctx, store.CollectionTopic(collection), func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM entries WHERE collection = ? AND key = ?`, collection, key)
		if err != nil {
			return fmt.Errorf("failed to delete entry: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

// List returns the entries of a collection in creation order.
func (s *Store) List(ctx context.Context, collection string) ([]store.Entry, error) {
	if s.isClosed() {
		return nil, store.ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, data FROM entries WHERE collection = ? ORDER BY seq ASC`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	entries := []store.Entry{}
	for rows.Next() {
		var key, data string
		if err := rows.Scan(&key, &data); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, store.Entry{Key: key, Data: []byte(data)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entry rows: %w", err)
	}
	return entries, nil
}

// SubscribeCollection delivers the collection now and after every change.
func (s *Store) SubscribeCollection(ctx context.Context, collection string, fn func([]store.Entry)) (store.CancelFunc, error) {
	if collection == "" || fn == nil {
		return nil, store.ErrInvalidInput
	}
	if s.isClosed() {
		return nil, store.ErrClosed
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
	if s.isClosed() {
		return store.Document{}, store.ErrClosed
	}
	var data string
	var doc store.Document
	err := s.db.QueryRowContext(ctx,
		`SELECT data, revision FROM documents WHERE path = ?`, path).Scan(&data, &doc.Revision)
	if err == sql.ErrNoRows {
		return store.Document{}, nil
	}
	if err != nil {
		return store.Document{}, fmt.Errorf("failed to get document: %w", err)
	}
	doc.Data = []byte(data)
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
	if s.isClosed() {
		return 0, store.ErrClosed
	}
	var next int64
	err := s.inTx(ctx, store.DocumentTopic(path), func(tx *sql.Tx) error {
		var current int64
		err := tx.QueryRowContext(ctx,
			`SELECT revision FROM documents WHERE path = ?`, path).Scan(&current)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to read document revision: %w", err)
		}
		if expected >= 0 && current != expected {
			return store.ErrConflict
		}
		next = current + 1
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (path, data, revision) VALUES (?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET data = excluded.data, revision = excluded.revision,
				modified_at = CURRENT_TIMESTAMP
		`, path, string(data), next)
		if err != nil {
			return fmt.Errorf("failed to write document: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// SubscribeDocument delivers the document now and after every write.
func (s *Store) SubscribeDocument(ctx context.Context, path string, fn func(store.Document)) (store.CancelFunc, error) {
	if path == "" || fn == nil {
		return nil, store.ErrInvalidInput
	}
	if s.isClosed() {
		return nil, store.ErrClosed
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

// Close stops polling and drops subscribers. The database stays open.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	select {
	case <-s.done:
	default:
		close(s.stop)
		<-s.done
	}
	s.feed.Close()
	return nil
}

// inTx runs fn and bumps the topic's change counter in one transaction, then
// notifies local subscribers.
func (s *Store) inTx(ctx context.Context, topic string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	var version int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO changes (topic, version) VALUES (?, 1)
		ON CONFLICT(topic) DO UPDATE SET version = version + 1
		RETURNING version
	`, topic).Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to bump change counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.mu.Lock()
	if version > s.seen[topic] {
		s.seen[topic] = version
	}
	s.mu.Unlock()

	s.feed.Notify(topic)
	return nil
}

func (s *Store) loadVersions(ctx context.Context) map[string]int64 {
	rows, err := s.db.QueryContext(ctx, `SELECT topic, version FROM changes`)
	if err != nil {
		s.logger.Warn("reading change counters failed", "error", err)
		return nil
	}
	defer rows.Close()

	versions := make(map[string]int64)
	for rows.Next() {
		var topic string
		var version int64
		if err := rows.Scan(&topic, &version); err != nil {
			s.logger.Warn("scanning change counter failed", "error", err)
			return nil
		}
		versions[topic] = version
	}
	if err := rows.Err(); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("reading change counters failed", "error", err)
		return nil
	}

	return versions
}

func (s *Store) poll(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		versions := s.loadVersions(context.Background())
		var changed []string
		s.mu.Lock()
		for topic, version := range versions {
			if version > s.seen[topic] {
				s.seen[topic] = version
				changed = append(changed, topic)
			}
		}
		s.mu.Unlock()

		for _, topic := range changed {
			s.logger.Debug("external change", "topic", topic)
			s.feed.Notify(topic)
		}
	}
}

var _ store.Store = (*Store)(nil)
