package collection_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emgroup/sitesync/internal/alert"
	"github.com/emgroup/sitesync/internal/collection"
	"github.com/emgroup/sitesync/internal/domain/record"
	"github.com/emgroup/sitesync/internal/idgen"
	"github.com/emgroup/sitesync/internal/store"
	"github.com/emgroup/sitesync/internal/store/memstore"
	"github.com/emgroup/sitesync/internal/store/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	updatesPath = "projects/south-mall/updates"
	actionsPath = "projects/south-mall/actions"
)

func steppingClock() idgen.Clock {
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func newUpdates(st store.CollectionStore, rec alert.Sink, optimistic bool) *collection.Synchronizer[record.Update] {
	return collection.New(st, collection.Config[record.Update]{
		Name:       record.CollectionUpdates,
		Path:       updatesPath,
		Order:      collection.NewestFirst,
		Seed:       record.SeedUpdates(),
		Optimistic: optimistic,
	}, idgen.New(steppingClock()), rec, nil)
}

func newActions(st store.CollectionStore, rec alert.Sink, optimistic bool) *collection.Synchronizer[record.Action] {
	return collection.New(st, collection.Config[record.Action]{
		Name:       record.CollectionActions,
		Path:       actionsPath,
		Order:      collection.StoreOrder,
		Seed:       record.SeedActions(),
		Prepare:    record.PrepareAction,
		Optimistic: optimistic,
	}, idgen.New(steppingClock()), rec, nil)
}

func countID[T collection.Record[T]](items []T, id int64) int {
	n := 0
	for _, it := range items {
		if it.GetID() == id {
			n++
		}
	}
	return n
}

func TestSynchronizer_SeedUntilFirstRealRecord(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()

	updates := newUpdates(st, nil, false)
	defer updates.Close()
	require.NoError(t, updates.Subscribe(ctx))

	require.True(t, updates.Seeded())
	require.Len(t, updates.Items(), 3)

	entries, err := st.List(ctx, updatesPath)
	require.NoError(t, err)
	require.Empty(t, entries, "seed set is never written")

	id := updates.Add(ctx, record.Update{Content: "Roof sheeting delivered", Author: "Site Lead", Tag: "Progress"})
	updates.Wait()

	require.False(t, updates.Seeded())
	items := updates.Items()
	require.Len(t, items, 1, "seed set is replaced entirely")
	require.Equal(t, id, items[0].ID)
}

func TestSynchronizer_SeedRecordsCannotBeMutated(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()
	rec := alert.NewRecorder(0, nil)

	actions := newActions(st, rec, false)
	defer actions.Close()
	require.NoError(t, actions.Subscribe(ctx))

	seedID := actions.Items()[0].ID
	_, ok := actions.StoreKey(seedID)
	require.False(t, ok)

	actions.Update(ctx, seedID, store.Patch{"status": "Closed"})
	actions.Delete(ctx, seedID)
	actions.Wait()

	require.True(t, actions.Seeded())
	require.Empty(t, rec.Recent(), "missing store keys are logged, not alerted")
}

func TestSynchronizer_AddAppearsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()

	updates := newUpdates(st, nil, false)
	defer updates.Close()
	require.NoError(t, updates.Subscribe(ctx))

	id := updates.Add(ctx, record.Update{Content: "Scaffold inspection passed"})
	updates.Wait()

	items := updates.Items()
	require.Equal(t, 1, countID(items, id))
	key, ok := updates.StoreKey(id)
	require.True(t, ok)
	require.NotEmpty(t, key)
}

func TestSynchronizer_ReferenceAddIsNotOptimistic(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()

	actions := newActions(st, nil, false)
	defer actions.Close()
	require.NoError(t, actions.Subscribe(ctx))

	st.Hold()
	id := actions.Add(ctx, record.Action{Task: "Inspect crane", AssignedTo: "Contractor", DueDate: "2025-12-20"})
	actions.Wait()

	_, visible := actions.Get(id)
	require.False(t, visible, "only the subscription push makes a record visible")

	st.Release()
	got, visible := actions.Get(id)
	require.True(t, visible)
	require.Equal(t, record.ActionOpen, got.Status)
}

func TestSynchronizer_OptimisticAddReconciles(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()

	updates := newUpdates(st, nil, true)
	defer updates.Close()
	require.NoError(t, updates.Subscribe(ctx))

	st.Hold()
	id := updates.Add(ctx, record.Update{Content: "Crane booked"})

	require.Equal(t, 1, countID(updates.Items(), id), "pending copy is visible at once")
	require.False(t, updates.Seeded())
	_, ok := updates.StoreKey(id)
	require.False(t, ok)

	updates.Wait()
	st.Release()

	require.Equal(t, 1, countID(updates.Items(), id), "authoritative copy replaces the pending one")
	_, ok = updates.StoreKey(id)
	require.True(t, ok)
}

func TestSynchronizer_OptimisticUpdateOfInFlightRecordIsDropped(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()

	actions := newActions(st, nil, true)
	defer actions.Close()
	require.NoError(t, actions.Subscribe(ctx))

	st.Hold()
	id := actions.Add(ctx, record.Action{Task: "Inspect crane", AssignedTo: "Contractor"})
	actions.Update(ctx, id, store.Patch{"status": "Closed"})
	actions.Wait()
	st.Release()

	got, ok := actions.Get(id)
	require.True(t, ok)
	require.Equal(t, record.ActionOpen, got.Status)
}

func TestSynchronizer_AddThenCloseAction(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()

	actions := newActions(st, nil, false)
	defer actions.Close()
	require.NoError(t, actions.Subscribe(ctx))

	id := actions.Add(ctx, record.Action{Task: "Inspect crane", AssignedTo: "Contractor", DueDate: "2025-12-20"})
	actions.Wait()
	actions.Update(ctx, id, store.Patch{"status": record.ActionClosed})
	actions.Wait()

	items := actions.Items()
	require.Len(t, items, 1)
	require.Equal(t, record.ActionClosed, items[0].Status)
	require.Equal(t, "Inspect crane", items[0].Task)
}

func TestSynchronizer_OptimisticUpdateAppliesLocally(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()

	actions := newActions(st, nil, true)
	defer actions.Close()
	require.NoError(t, actions.Subscribe(ctx))

	id := actions.Add(ctx, record.Action{Task: "Inspect crane", AssignedTo: "Contractor"})
	actions.Wait()

	st.Hold()
	actions.Update(ctx, id, store.Patch{"status": record.ActionClosed})
	got, _ := actions.Get(id)
	require.Equal(t, record.ActionClosed, got.Status)
	actions.Wait()
	st.Release()

	got, _ = actions.Get(id)
	require.Equal(t, record.ActionClosed, got.Status)
}

func TestSynchronizer_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()
	rec := alert.NewRecorder(0, nil)

	actions := newActions(st, rec, false)
	defer actions.Close()
	require.NoError(t, actions.Subscribe(ctx))

	keep := actions.Add(ctx, record.Action{Task: "Keep", AssignedTo: "EMG"})
	gone := actions.Add(ctx, record.Action{Task: "Remove", AssignedTo: "EMG"})
	actions.Wait()

	actions.Delete(ctx, gone)
	actions.Wait()
	actions.Delete(ctx, gone)
	actions.Wait()

	require.Equal(t, 0, countID(actions.Items(), gone))
	require.Equal(t, 1, countID(actions.Items(), keep))
	require.Empty(t, rec.Recent())
}

func TestSynchronizer_ConcurrentDoubleDeleteIsSilent(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()
	rec := alert.NewRecorder(0, nil)

	actions := newActions(st, rec, false)
	defer actions.Close()
	require.NoError(t, actions.Subscribe(ctx))

	id := actions.Add(ctx, record.Action{Task: "Remove", AssignedTo: "EMG"})
	actions.Wait()

	// Both calls see the store key; the second remote delete finds nothing.
	st.Hold()
	actions.Delete(ctx, id)
	actions.Delete(ctx, id)
	actions.Wait()
	st.Release()

	require.Equal(t, 0, countID(actions.Items(), id))
	require.Empty(t, rec.Recent())
}

func TestSynchronizer_Ordering(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()

	updates := newUpdates(st, nil, false)
	defer updates.Close()
	actions := newActions(st, nil, false)
	defer actions.Close()
	require.NoError(t, updates.Subscribe(ctx))
	require.NoError(t, actions.Subscribe(ctx))

	u1 := updates.Add(ctx, record.Update{Content: "first"})
	u2 := updates.Add(ctx, record.Update{Content: "second"})
	a1 := actions.Add(ctx, record.Action{Task: "first", AssignedTo: "EMG"})
	updates.Wait()
	actions.Wait()
	a2 := actions.Add(ctx, record.Action{Task: "second", AssignedTo: "EMG"})
	actions.Wait()

	gotUpdates := updates.Items()
	require.Equal(t, []int64{u2, u1}, []int64{gotUpdates[0].ID, gotUpdates[1].ID}, "newest first")

	gotActions := actions.Items()
	require.Equal(t, []int64{a1, a2}, []int64{gotActions[0].ID, gotActions[1].ID}, "appended in store order")
}

func TestSynchronizer_SecondClientSeesChanges(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()

	clientA := newUpdates(st, nil, false)
	defer clientA.Close()
	clientB := newUpdates(st, nil, false)
	defer clientB.Close()
	require.NoError(t, clientA.Subscribe(ctx))
	require.NoError(t, clientB.Subscribe(ctx))

	id := clientA.Add(ctx, record.Update{Content: "Hoardings moved"})
	clientA.Wait()

	got, ok := clientB.Get(id)
	require.True(t, ok)
	require.Equal(t, "Hoardings moved", got.Content)

	clientB.Delete(ctx, id)
	clientB.Wait()
	_, ok = clientA.Get(id)
	require.False(t, ok)
}

func TestSynchronizer_WatchAndClose(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()

	updates := newUpdates(st, nil, false)
	require.NoError(t, updates.Subscribe(ctx))

	var calls int
	var last []record.Update
	updates.Watch(func(items []record.Update) {
		calls++
		last = items
	})

	updates.Add(ctx, record.Update{Content: "one"})
	updates.Wait()
	require.Equal(t, 1, calls)
	require.Len(t, last, 1)

	updates.Close()
	updates.Close()

	other := newUpdates(st, nil, false)
	defer other.Close()
	require.NoError(t, other.Subscribe(ctx))
	other.Add(ctx, record.Update{Content: "two"})
	other.Wait()

	require.Equal(t, 1, calls, "no callbacks after Close")
	require.ErrorIs(t, updates.Subscribe(ctx), collection.ErrClosed)
}

func TestSynchronizer_WriteFailureAlertsWithoutRollback(t *testing.T) {
	ctx := context.Background()
	st := &mocks.Store{}
	st.On("SubscribeCollection", mock.Anything, updatesPath, mock.Anything).Return([]store.Entry{}, nil)
	st.On("Create", mock.Anything, updatesPath, mock.Anything).Return("", errors.New("dial tcp: connection refused"))
	rec := alert.NewRecorder(0, nil)

	updates := newUpdates(st, rec, true)
	defer updates.Close()
	require.NoError(t, updates.Subscribe(ctx))

	id := updates.Add(ctx, record.Update{Content: "Will not save"})
	updates.Wait()

	alerts := rec.Recent()
	require.Len(t, alerts, 1)
	require.Equal(t, collection.FailureMessage, alerts[0].Message)
	require.Equal(t, "add", alerts[0].Operation)
	require.Equal(t, 1, countID(updates.Items(), id), "optimistic change is not rolled back")
	st.AssertExpectations(t)
}

func TestSynchronizer_UpdateOfRemotelyDeletedRecordIsSilent(t *testing.T) {
	ctx := context.Background()
	st := &mocks.Store{}
	st.On("SubscribeCollection", mock.Anything, actionsPath, mock.Anything).Return([]store.Entry{
		{Key: "k1", Data: []byte(`{"id":11,"task":"t","assignedTo":"EMG","dueDate":"","status":"Open"}`)},
	}, nil)
	st.On("Update", mock.Anything, actionsPath, "k1", store.Patch{"status": record.ActionClosed}).Return(store.ErrNotFound)
	rec := alert.NewRecorder(0, nil)

	actions := newActions(st, rec, false)
	defer actions.Close()
	require.NoError(t, actions.Subscribe(ctx))

	actions.Update(ctx, 11, store.Patch{"status": record.ActionClosed})
	actions.Wait()

	require.Empty(t, rec.Recent())
	st.AssertExpectations(t)
}

func TestSynchronizer_SubscribeFailure(t *testing.T) {
	ctx := context.Background()
	st := &mocks.Store{}
	st.On("SubscribeCollection", mock.Anything, updatesPath, mock.Anything).Return(nil, errors.New("permission denied"))
	rec := alert.NewRecorder(0, nil)

	updates := newUpdates(st, rec, false)
	defer updates.Close()

	err := updates.Subscribe(ctx)
	require.Error(t, err)
	require.Len(t, rec.Recent(), 1)
	require.True(t, updates.Seeded(), "seed set still shown")
}

func TestSynchronizer_SkipsUndecodableEntries(t *testing.T) {
	ctx := context.Background()
	st := &mocks.Store{}
	st.On("SubscribeCollection", mock.Anything, updatesPath, mock.Anything).Return([]store.Entry{
		{Key: "bad", Data: []byte(`{"id":"not-a-number"}`)},
		{Key: "good", Data: []byte(`{"id":5,"content":"ok"}`)},
	}, nil)

	updates := newUpdates(st, nil, false)
	defer updates.Close()
	require.NoError(t, updates.Subscribe(ctx))

	items := updates.Items()
	require.Len(t, items, 1)
	require.EqualValues(t, 5, items[0].ID)
}

func TestSynchronizer_OptimisticAddSurvivesIDCollision(t *testing.T) {
	ctx := context.Background()
	var deliver func([]store.Entry)
	st := &mocks.Store{}
	st.On("SubscribeCollection", mock.Anything, updatesPath, mock.Anything).
		Run(func(args mock.Arguments) { deliver = args.Get(2).(func([]store.Entry)) }).
		Return([]store.Entry{}, nil)
	st.On("Create", mock.Anything, updatesPath, mock.Anything).Return("k-ours", nil)

	updates := newUpdates(st, nil, true)
	defer updates.Close()
	require.NoError(t, updates.Subscribe(ctx))

	id := updates.Add(ctx, record.Update{Content: "Crane booked"})
	updates.Wait()

	theirs := []byte(fmt.Sprintf(`{"id":%d,"content":"Scaffold inspected"}`, id))
	deliver([]store.Entry{{Key: "k-theirs", Data: theirs}})
	require.Equal(t, 2, countID(updates.Items(), id), "another client's record does not hide the pending one")

	// Ours arrives already edited elsewhere; its key still confirms it.
	edited := []byte(fmt.Sprintf(`{"id":%d,"content":"Crane booked for Tuesday"}`, id))
	deliver([]store.Entry{{Key: "k-theirs", Data: theirs}, {Key: "k-ours", Data: edited}})
	contents := make([]string, 0, 2)
	for _, u := range updates.Items() {
		contents = append(contents, u.Content)
	}
	require.ElementsMatch(t, []string{"Scaffold inspected", "Crane booked for Tuesday"}, contents)
	st.AssertExpectations(t)
}

// lateWriteStore counts creates that start after closed is set.
type lateWriteStore struct {
	store.CollectionStore
	closed *atomic.Bool
	late   atomic.Int32
}

func (s *lateWriteStore) Create(ctx context.Context, collection string, data []byte) (string, error) {
	if s.closed.Load() {
		s.late.Add(1)
	}
	return s.CollectionStore.Create(ctx, collection, data)
}

func TestSynchronizer_CloseWaitsForAcceptedWrites(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	defer mem.Close()
	var closed atomic.Bool
	st := &lateWriteStore{CollectionStore: mem, closed: &closed}

	updates := newUpdates(st, nil, false)

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			updates.Add(ctx, record.Update{Content: "racing close"})
		}()
	}
	updates.Close()
	closed.Store(true)
	wg.Wait()
	time.Sleep(20 * time.Millisecond)

	require.Zero(t, st.late.Load(), "no store write starts after Close returns")
}
