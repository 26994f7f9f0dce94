// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/emgroup/sitesync/internal/store"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

// Run exercises the store contract against newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateListInCreationOrder", func(t *testing.T) { testCreateList(t, newStore(t)) })
	t.Run("UpdateMergesFields", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("UpdateMissingKey", func(t *testing.T) { testUpdateMissing(t, newStore(t)) })
	t.Run("DeleteAndDeleteAgain", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("SubscribeCollection", func(t *testing.T) { testSubscribeCollection(t, newStore(t)) })
	t.Run("DocumentRevisions", func(t *testing.T) { testDocument(t, newStore(t)) })
	t.Run("DocumentCompareAndSwap", func(t *testing.T) { testDocumentCAS(t, newStore(t)) })
	t.Run("SubscribeDocument", func(t *testing.T) { testSubscribeDocument(t, newStore(t)) })
	t.Run("Close", func(t *testing.T) { testClose(t, newStore(t)) })
}

func testCreateList(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	k1, err := s.Create(ctx, "projects/p1/actions", []byte(`{"id":1,"task":"first"}`))
	require.NoError(t, err)
	k2, err := s.Create(ctx, "projects/p1/actions", []byte(`{"id":2,"task":"second"}`))
	require.NoError(t, err)
	require.NotEqual(t, k1, k2)

	_, err = s.Create(ctx, "projects/p2/actions", []byte(`{"id":3}`))
	require.NoError(t, err)

	entries, err := s.List(ctx, "projects/p1/actions")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, k1, entries[0].Key)
	require.Equal(t, k2, entries[1].Key)
	require.JSONEq(t, `{"id":1,"task":"first"}`, string(entries[0].Data))

	empty, err := s.List(ctx, "projects/p1/unknown")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func testUpdate(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	key, err := s.Create(ctx, "c", []byte(`{"id":1,"task":"Inspect crane","status":"Open"}`))
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, "c", key, store.Patch{"status": "Closed"}))

	entries, err := s.List(ctx, "c")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.JSONEq(t, `{"id":1,"task":"Inspect crane","status":"Closed"}`, string(entries[0].Data))
}

func testUpdateMissing(t *testing.T, s store.Store) {
	defer s.Close()
	err := s.Update(context.Background(), "c", "missing", store.Patch{"status": "Closed"})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testDelete(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	key, err := s.Create(ctx, "c", []byte(`{"id":1}`))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "c", key))
	require.ErrorIs(t, s.Delete(ctx, "c", key), store.ErrNotFound)

	entries, err := s.List(ctx, "c")
	require.NoError(t, err)
	require.Empty(t, entries)
}

type entryRecorder struct {
	mu   sync.Mutex
	last []store.Entry
	n    int
}

func (r *entryRecorder) record(entries []store.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = entries
	r.n++
}

func (r *entryRecorder) snapshot() ([]store.Entry, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.n
}

func testSubscribeCollection(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	_, err := s.Create(ctx, "c", []byte(`{"id":1}`))
	require.NoError(t, err)

	rec := &entryRecorder{}
	cancel, err := s.SubscribeCollection(ctx, "c", rec.record)
	require.NoError(t, err)

	first, n := rec.snapshot()
	require.Equal(t, 1, n, "subscribe delivers the current contents before returning")
	require.Len(t, first, 1)

	_, err = s.Create(ctx, "c", []byte(`{"id":2}`))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		last, _ := rec.snapshot()
		return len(last) == 2
	}, waitFor, tick)

	cancel()
	_, after := rec.snapshot()
	_, err = s.Create(ctx, "c", []byte(`{"id":3}`))
	require.NoError(t, err)
	time.Sleep(5 * tick)
	_, final := rec.snapshot()
	require.Equal(t, after, final, "no deliveries after cancel")
}

func testDocument(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	doc, err := s.GetDocument(ctx, "projects/p1/documents")
	require.NoError(t, err)
	require.False(t, doc.Exists())

	rev, err := s.SetDocument(ctx, "projects/p1/documents", []byte(`[{"id":"folder-1"}]`))
	require.NoError(t, err)
	require.EqualValues(t, 1, rev)

	rev, err = s.SetDocument(ctx, "projects/p1/documents", []byte(`[{"id":"folder-2"}]`))
	require.NoError(t, err)
	require.EqualValues(t, 2, rev)

	doc, err = s.GetDocument(ctx, "projects/p1/documents")
	require.NoError(t, err)
	require.EqualValues(t, 2, doc.Revision)
	require.JSONEq(t, `[{"id":"folder-2"}]`, string(doc.Data))
}

func testDocumentCAS(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	rev, err := s.SetDocumentIf(ctx, "d", []byte(`{"v":1}`), 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, rev)

	_, err = s.SetDocumentIf(ctx, "d", []byte(`{"v":2}`), 0)
	require.ErrorIs(t, err, store.ErrConflict)

	rev, err = s.SetDocumentIf(ctx, "d", []byte(`{"v":2}`), 1)
	require.NoError(t, err)
	require.EqualValues(t, 2, rev)

	_, err = s.SetDocumentIf(ctx, "d", []byte(`{"v":3}`), 1)
	require.ErrorIs(t, err, store.ErrConflict)

	doc, err := s.GetDocument(ctx, "d")
	require.NoError(t, err)
	require.JSONEq(t, `{"v":2}`, string(doc.Data))
}

func testSubscribeDocument(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	var mu sync.Mutex
	var docs []store.Document
	cancel, err := s.SubscribeDocument(ctx, "d", func(doc store.Document) {
		mu.Lock()
		docs = append(docs, doc)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer cancel()

	mu.Lock()
	require.Len(t, docs, 1)
	require.False(t, docs[0].Exists())
	mu.Unlock()

	_, err = s.SetDocument(ctx, "d", []byte(`{"v":1}`))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		last := docs[len(docs)-1]
		var v map[string]int
		return last.Exists() && json.Unmarshal(last.Data, &v) == nil && v["v"] == 1
	}, waitFor, tick)
}

func testClose(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Close())

	_, err := s.Create(ctx, "c", []byte(`{}`))
	require.ErrorIs(t, err, store.ErrClosed)
	_, err = s.SubscribeCollection(ctx, "c", func([]store.Entry) {})
	require.ErrorIs(t, err, store.ErrClosed)
}
