package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/emgroup/sitesync/internal/store"
	"github.com/emgroup/sitesync/internal/store/storetest"
	"github.com/stretchr/testify/require"
)

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return NewStore(NewTestDB(t), StoreOptions{PollInterval: -1})
	})
}

func openFileDB(t *testing.T, path string) *DB {
	t.Helper()
	db, err := New(path)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStore_PicksUpWritesFromOtherProcesses(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sitesync.db")

	writer := NewStore(openFileDB(t, path), StoreOptions{PollInterval: -1})
	defer writer.Close()
	reader := NewStore(openFileDB(t, path), StoreOptions{PollInterval: 20 * time.Millisecond})
	defer reader.Close()

	var mu sync.Mutex
	var last []store.Entry
	cancel, err := reader.SubscribeCollection(ctx, "projects/p1/updates", func(entries []store.Entry) {
		mu.Lock()
		last = entries
		mu.Unlock()
	})
	require.NoError(t, err)
	defer cancel()

	_, err = writer.Create(ctx, "projects/p1/updates", []byte(`{"id":1,"content":"from elsewhere"}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 1
	}, 3*time.Second, 10*time.Millisecond)

	_, err = writer.SetDocument(ctx, "projects/p1/documents", []byte(`[]`))
	require.NoError(t, err)

	var rev int64
	docCancel, err := reader.SubscribeDocument(ctx, "projects/p1/documents", func(doc store.Document) {
		mu.Lock()
		rev = doc.Revision
		mu.Unlock()
	})
	require.NoError(t, err)
	defer docCancel()

	mu.Lock()
	require.EqualValues(t, 1, rev)
	mu.Unlock()
}

func TestStore_FreshReaderSeesFirstExternalCreate(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sitesync.db")

	writer := NewStore(openFileDB(t, path), StoreOptions{PollInterval: -1})
	defer writer.Close()
	reader := NewStore(openFileDB(t, path), StoreOptions{PollInterval: 10 * time.Millisecond})
	defer reader.Close()

	reader.mu.Lock()
	require.Empty(t, reader.seen)
	reader.mu.Unlock()

	var mu sync.Mutex
	var last []store.Entry
	cancel, err := reader.SubscribeCollection(ctx, "projects/p1/actions", func(entries []store.Entry) {
		mu.Lock()
		last = entries
		mu.Unlock()
	})
	require.NoError(t, err)
	defer cancel()

	// Let a few empty polls pass before anything is written.
	time.Sleep(50 * time.Millisecond)

	_, err = writer.Create(ctx, "projects/p1/actions", []byte(`{"id":7,"title":"order steel"}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestStore_BaselineTakenAtConstruction(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sitesync.db")

	writer := NewStore(openFileDB(t, path), StoreOptions{PollInterval: -1})
	defer writer.Close()
	_, err := writer.Create(ctx, "projects/p1/updates", []byte(`{"id":1}`))
	require.NoError(t, err)

	reader := NewStore(openFileDB(t, path), StoreOptions{PollInterval: 10 * time.Millisecond})
	defer reader.Close()

	reader.mu.Lock()
	require.EqualValues(t, 1, reader.seen[store.CollectionTopic("projects/p1/updates")])
	reader.mu.Unlock()

	_, err = writer.Create(ctx, "projects/p1/updates", []byte(`{"id":2}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		reader.mu.Lock()
		defer reader.mu.Unlock()
		return reader.seen[store.CollectionTopic("projects/p1/updates")] == 2
	}, 3*time.Second, 10*time.Millisecond)
}
