// Package redisstore implements store.Store on Redis.
//
// A collection is a hash of key to record JSON plus a sorted set holding
// creation order. A document is a hash with data and revision fields. Every
// write publishes its change-feed topic on a channel so that other processes
// sharing the server reload their subscribers.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/emgroup/sitesync/internal/store"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const maxTxAttempts = 10

// Options configures a connection.
type Options struct {
	Addr     string
	Username string
	Password string
	DB       int
	// KeyPrefix namespaces every key and the change channel.
	KeyPrefix string
	Logger    *slog.Logger
}

// Store is a Redis-backed store.Store.
type Store struct {
	client   *redis.Client
	prefix   string
	instance string
	logger   *slog.Logger
	feed     *store.Feed
	pubsub   *redis.PubSub

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// New connects to Redis and starts listening for changes from other processes.
func New(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s, err := NewFromClient(ctx, client, opts.KeyPrefix, opts.Logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

// NewFromClient wraps an existing client. Close closes the client.
func NewFromClient(ctx context.Context, client *redis.Client, prefix string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Store{
		client:   client,
		prefix:   prefix,
		instance: uuid.NewString(),
		logger:   logger,
		feed:     store.NewFeed(),
		done:     make(chan struct{}),
	}

	s.pubsub = client.Subscribe(ctx, s.channel())
	if _, err := s.pubsub.Receive(ctx); err != nil {
		s.pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to change channel: %w", err)
	}
	go s.listen()
	return s, nil
}

func (s *Store) channel() string            { return s.prefix + "changes" }
func (s *Store) entriesKey(c string) string { return s.prefix + "col:" + c }
func (s *Store) orderKey(c string) string   { return s.prefix + "order:" + c }
func (s *Store) seqKey() string             { return s.prefix + "seq" }
func (s *Store) docKey(p string) string     { return s.prefix + "doc:" + p }

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) listen() {
	defer close(s.done)
	for msg := range s.pubsub.Channel() {
		instance, topic, ok := strings.Cut(msg.Payload, "|")
		if !ok || instance == s.instance {
			continue
		}
		s.feed.Notify(topic)
	}
}

// changed notifies local subscribers and tells other processes.
func (s *Store) changed(ctx context.Context, topic string) {
	s.feed.Notify(topic)
	if err := s.client.Publish(ctx, s.channel(), s.instance+"|"+topic).Err(); err != nil {
		s.logger.Warn("publishing change failed", "topic", topic, "error", err)
	}
}

// Create stores data under a fresh key.
func (s *Store) Create(ctx context.Context, collection string, data []byte) (string, error) {
	if collection == "" {
		return "", store.ErrInvalidInput
	}
	if s.isClosed() {
		return "", store.ErrClosed
	}

	seq, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return "", fmt.Errorf("failed to allocate sequence: %w", err)
	}
	key := store.NewKey()
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.entriesKey(collection), key, data)
		pipe.ZAdd(ctx, s.orderKey(collection), redis.Z{Score: float64(seq), Member: key})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to create entry: %w", err)
	}

	s.changed(ctx, store.CollectionTopic(collection))
	return key, nil
}

// Update merges patch into the entry at key. The read and write are guarded
// by WATCH, so concurrent patches to one entry do not drop fields.
func (s *Store) Update(ctx context.Context, collection, key string, patch store.Patch) error {
	if s.isClosed() {
		return store.ErrClosed
	}
	hash := s.entriesKey(collection)
	err := s.watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, hash, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read entry: %w", err)
		}
		merged, err := store.MergePatch(current, patch)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, hash, key, merged)
			return nil
		})
		return err
	}, hash)
	if err != nil {
		return err
	}

	s.changed(ctx, store.CollectionTopic(collection))
	return nil
}

// Delete removes the entry at key.
func (s *Store) Delete(ctx context.Context, collection, key string) error {
	if s.isClosed() {
		return store.ErrClosed
	}
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.HDel(ctx, s.entriesKey(collection), key)
		pipe.ZRem(ctx, s.orderKey(collection), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	if removed.Val() == 0 {
		return store.ErrNotFound
	}

	s.changed(ctx, store.CollectionTopic(collection))
	return nil
}

// List returns the entries of a collection in creation order.
func (s *Store) List(ctx context.Context, collection string) ([]store.Entry, error) {
	if s.isClosed() {
		return nil, store.ErrClosed
	}
	keys, err := s.client.ZRange(ctx, s.orderKey(collection), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read order: %w", err)
	}
	entries := []store.Entry{}
	if len(keys) == 0 {
		return entries, nil
	}
	values, err := s.client.HMGet(ctx, s.entriesKey(collection), keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}
	for i, value := range values {
		data, ok := value.(string)
		if !ok {
			// Deleted between the two reads.
			continue
		}
		entries = append(entries, store.Entry{Key: keys[i], Data: []byte(data)})
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
	return readDocument(ctx, s.client, s.docKey(path))
}

type hashReader interface {
	HMGet(ctx context.Context, key string, fields ...string) *redis.SliceCmd
}

func readDocument(ctx context.Context, c hashReader, key string) (store.Document, error) {
	fields, err := c.HMGet(ctx, key, "data", "revision").Result()
	if err != nil {
		return store.Document{}, fmt.Errorf("failed to read document: %w", err)
	}
	data, ok := fields[0].(string)
	if !ok {
		return store.Document{}, nil
	}
	revision, _ := fields[1].(string)
	rev, err := strconv.ParseInt(revision, 10, 64)
	if err != nil {
		return store.Document{}, fmt.Errorf("invalid document revision %q: %w", revision, err)
	}
	return store.Document{Data: []byte(data), Revision: rev}, nil
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
	key := s.docKey(path)
	var next int64
	err := s.watch(ctx, func(tx *redis.Tx) error {
		current, err := readDocument(ctx, tx, key)
		if err != nil {
			return err
		}
		if expected >= 0 && current.Revision != expected {
			return store.ErrConflict
		}
		next = current.Revision + 1
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "data", data, "revision", next)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return 0, err
	}

	s.changed(ctx, store.DocumentTopic(path))
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

// watch runs fn in an optimistic transaction over keys, retrying when
// another client touched them first.
func (s *Store) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("transaction on %v kept failing: %w", keys, store.ErrConflict)
}

// Close stops listening, drops subscribers and closes the client.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.pubsub.Close()
	<-s.done
	s.feed.Close()
	if cerr := s.client.Close(); err == nil {
		err = cerr
	}
	return err
}

var _ store.Store = (*Store)(nil)
