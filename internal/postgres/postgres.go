// Package postgres implements store.Store on PostgreSQL.
//
// Records and documents are jsonb rows. Each write sends a NOTIFY on a shared
// channel inside its transaction, and a LISTEN connection turns those into
// subscriber reloads, so every process pointed at the database sees every
// other process's writes.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/emgroup/sitesync/internal/store"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	changeChannel        = "sitesync_changes"
	minReconnectInterval = 100 * time.Millisecond
	maxReconnectInterval = 10 * time.Second
)

// Options configures a Store.
type Options struct {
	DSN string
	// Namespace separates independent deployments sharing one database.
	Namespace string
	Logger    *slog.Logger
}

// Store is a PostgreSQL-backed store.Store.
type Store struct {
	db        *sql.DB
	listener  *pq.Listener
	namespace string
	instance  string
	logger    *slog.Logger
	feed      *store.Feed

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// New connects, creates the schema and starts listening for changes.
func New(ctx context.Context, opts Options) (*Store, error) {
	dsn := strings.TrimSpace(opts.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres dsn is required", store.ErrInvalidInput)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		db:        db,
		namespace: opts.Namespace,
		instance:  uuid.NewString(),
		logger:    opts.Logger,
		feed:      store.NewFeed(),
		done:      make(chan struct{}),
	}
	s.listener = pq.NewListener(dsn, minReconnectInterval, maxReconnectInterval, s.listenerEvent)
	if err := s.listener.Listen(changeChannel); err != nil {
		s.listener.Close()
		db.Close()
		return nil, fmt.Errorf("failed to listen for changes: %w", err)
	}
	go s.listen()
	return s, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sitesync_entries (
			seq BIGSERIAL PRIMARY KEY,
			namespace TEXT NOT NULL,
			collection TEXT NOT NULL,
			key TEXT NOT NULL UNIQUE,
			data JSONB NOT NULL,
			modified_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_sitesync_entries_collection
			ON sitesync_entries (namespace, collection, seq);
		CREATE TABLE IF NOT EXISTS sitesync_documents (
			namespace TEXT NOT NULL,
			path TEXT NOT NULL,
			data JSONB NOT NULL,
			revision BIGINT NOT NULL,
			modified_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (namespace, path)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *Store) listenerEvent(event pq.ListenerEventType, err error) {
	switch event {
	case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
		s.logger.Warn("change listener lost connection", "error", err)
	case pq.ListenerEventReconnected:
		s.logger.Info("change listener reconnected")
	}
}

func (s *Store) listen() {
	defer close(s.done)
	for n := range s.listener.Notify {
		if n == nil {
			// Reconnected; notifications may have been missed.
			for _, topic := range s.feed.Topics() {
				s.feed.Notify(topic)
			}
			continue
		}
		parts := strings.SplitN(n.Extra, "|", 3)
		if len(parts) != 3 || parts[0] != s.namespace || parts[1] == s.instance {
			continue
		}
		s.feed.Notify(parts[2])
	}
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// inTx runs fn and queues the change notification in one transaction, then
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
	payload := s.namespace + "|" + s.instance + "|" + topic
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, changeChannel, payload); err != nil {
		return fmt.Errorf("failed to queue change notification: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.feed.Notify(topic)
	return nil
}

// Create stores data under a fresh key.
func (s *Store) Create(ctx context.Context, collection string, data []byte) (string, error) {
	if collection == "" {
		return "", store.ErrInvalidInput
	}
	if s.isClosed() {
		return "", store.ErrClosed
	}
	key := store.NewKey()
	err := s.inTx(ctx, store.CollectionTopic(collection), func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sitesync_entries (namespace, collection, key, data) VALUES ($1, $2, $3, $4)`,
			s.namespace, collection, key, string(data))
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

// Update merges patch into the entry at key with the jsonb concatenation
// operator, which replaces top-level fields.
func (s *Store) Update(ctx context.Context, collection, key string, patch store.Patch) error {
	if s.isClosed() {
		return store.ErrClosed
	}
	merge, err := store.MergePatch(nil, patch)
	if err != nil {
		return err
	}
	return s.inTx(ctx, store.CollectionTopic(collection), func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE sitesync_entries SET data = data || $1::jsonb, modified_at = NOW()
			WHERE namespace = $2 AND collection = $3 AND key = $4
		`, string(merge), s.namespace, collection, key)
		if err != nil {
			return fmt.Errorf("failed to update entry: %w", err)
		}
		return requireRow(result)
	})
}

// Delete removes the entry at key.
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	if s.isClosed() {
		return store.ErrClosed
	}
	return s.inTx(ctx, store.CollectionTopic(collection), func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM sitesync_entries WHERE namespace = $1 AND collection = $2 AND key = $3`,
			s.namespace, collection, key)
		if err != nil {
			return fmt.Errorf("failed to delete entry: %w", err)
		}
		return requireRow(result)
	})
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// List returns the entries of a collection in creation order.
func (s *Store) List(ctx context.Context, collection string) ([]store.Entry, error) {
	if s.isClosed() {
		return nil, store.ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, data FROM sitesync_entries
		WHERE namespace = $1 AND collection = $2
		ORDER BY seq ASC
	`, s.namespace, collection)
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
		`SELECT data, revision FROM sitesync_documents WHERE namespace = $1 AND path = $2`,
		s.namespace, path).Scan(&data, &doc.Revision)
	if errors.Is(err, sql.ErrNoRows) {
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
	if path == "" {
		return 0, store.ErrInvalidInput
	}
	if s.isClosed() {
		return 0, store.ErrClosed
	}
	var next int64
	err := s.inTx(ctx, store.DocumentTopic(path), func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO sitesync_documents (namespace, path, data, revision) VALUES ($1, $2, $3, 1)
			ON CONFLICT (namespace, path) DO UPDATE
				SET data = EXCLUDED.data, revision = sitesync_documents.revision + 1, modified_at = NOW()
			RETURNING revision
		`, s.namespace, path, string(data)).Scan(&next)
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

// SetDocumentIf overwrites the document only at the expected revision.
func (s *Store) SetDocumentIf(ctx context.Context, path string, data []byte, expected int64) (int64, error) {
	if path == "" || expected < 0 {
		return 0, store.ErrInvalidInput
	}
	if s.isClosed() {
		return 0, store.ErrClosed
	}
	err := s.inTx(ctx, store.DocumentTopic(path), func(tx *sql.Tx) error {
		var result sql.Result
		var err error
		if expected == 0 {
			result, err = tx.ExecContext(ctx, `
				INSERT INTO sitesync_documents (namespace, path, data, revision) VALUES ($1, $2, $3, 1)
				ON CONFLICT (namespace, path) DO NOTHING
			`, s.namespace, path, string(data))
		} else {
			result, err = tx.ExecContext(ctx, `
				UPDATE sitesync_documents SET data = $3, revision = revision + 1, modified_at = NOW()
				WHERE namespace = $1 AND path = $2 AND revision = $4
			`, s.namespace, path, string(data), expected)
		}
		if err != nil {
			return fmt.Errorf("failed to write document: %w", err)
		}
		if err := requireRow(result); err != nil {
			return store.ErrConflict
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return expected + 1, nil
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

// Close stops listening, drops subscribers and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.listener.Close()
	<-s.done
	s.feed.Close()
	if cerr := s.db.Close(); err == nil {
		err = cerr
	}
	return err
}

var _ store.Store = (*Store)(nil)
