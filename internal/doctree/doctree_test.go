package doctree_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emgroup/sitesync/internal/alert"
	"github.com/emgroup/sitesync/internal/doctree"
	"github.com/emgroup/sitesync/internal/domain/document"
	"github.com/emgroup/sitesync/internal/store"
	"github.com/emgroup/sitesync/internal/store/memstore"
	"github.com/emgroup/sitesync/internal/store/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const treePath = "projects/south-mall/documents"

func fixedNow() time.Time {
	return time.Date(2025, time.December, 15, 9, 30, 0, 0, time.UTC)
}

func newTree(st store.DocumentStore, rec alert.Sink, versioned bool) *doctree.Synchronizer {
	return doctree.New(st, doctree.Config{
		Path:      treePath,
		Seed:      document.SeedTree(),
		Versioned: versioned,
		Now:       fixedNow,
	}, nil, rec, nil)
}

func open(t *testing.T, st store.DocumentStore, versioned bool) *doctree.Synchronizer {
	t.Helper()
	s := newTree(st, nil, versioned)
	t.Cleanup(s.Close)
	require.NoError(t, s.Subscribe(context.Background()))
	s.Wait()
	return s
}

func fileIDs(t *testing.T, tree document.Tree, folderID string) []string {
	t.Helper()
	folder, ok := tree.Folder(folderID)
	require.True(t, ok)
	ids := make([]string, len(folder.Items))
	for i, f := range folder.Items {
		ids[i] = f.ID
	}
	return ids
}

func TestSynchronizer_FirstSubscriberCreatesSeed(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()

	s := open(t, st, false)
	require.Equal(t, document.SeedTree(), s.Tree())

	doc, err := st.GetDocument(ctx, treePath)
	require.NoError(t, err)
	require.EqualValues(t, 1, doc.Revision)
	stored, err := document.Decode(doc.Data)
	require.NoError(t, err)
	require.Equal(t, document.SeedTree(), stored)
	require.EqualValues(t, 1, s.Revision())
}

func TestSynchronizer_LaterSubscriberAdoptsStoredTree(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()

	existing := document.Tree{{ID: "folder-x", Name: "Contracts", Items: []document.File{}}}
	data, err := document.Encode(existing)
	require.NoError(t, err)
	_, err = st.SetDocument(ctx, treePath, data)
	require.NoError(t, err)

	s := open(t, st, false)
	require.Equal(t, existing, s.Tree())

	doc, err := st.GetDocument(ctx, treePath)
	require.NoError(t, err)
	require.EqualValues(t, 1, doc.Revision, "no seed written over an existing tree")
}

func TestSynchronizer_AddFileIsLocalFirst(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()
	s := open(t, st, false)

	st.Hold()
	file, err := s.AddFile(ctx, "folder-2", document.File{Name: "RFI_013_Drainage.pdf", Size: 1200}, "Sarah Jenkins (EMG)")
	require.NoError(t, err)
	require.NotEmpty(t, file.ID)
	require.Equal(t, "PDF", file.Type)
	require.Equal(t, "15 Dec 2025", file.Date)
	require.Equal(t, "Sarah Jenkins (EMG)", file.Author)

	require.Equal(t, []string{file.ID, "f2-1", "f2-2"}, fileIDs(t, s.Tree(), "folder-2"), "applied before the store confirms")

	s.Wait()
	st.Release()

	doc, err := st.GetDocument(ctx, treePath)
	require.NoError(t, err)
	stored, err := document.Decode(doc.Data)
	require.NoError(t, err)
	require.Equal(t, s.Tree(), stored)
}

func TestSynchronizer_AddFileUnknownFolder(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()
	s := open(t, st, false)

	_, err := s.AddFile(ctx, "folder-missing", document.File{Name: "x.pdf"}, "EMG")
	require.ErrorIs(t, err, document.ErrFolderNotFound)
	s.Wait()
	require.EqualValues(t, 1, s.Revision())
}

func TestSynchronizer_DeleteFileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()
	s := open(t, st, false)

	require.NoError(t, s.DeleteFile(ctx, "f1-2"))
	s.Wait()
	require.Equal(t, []string{"f1-1", "f1-3"}, fileIDs(t, s.Tree(), "folder-1"))
	revision := s.Revision()

	require.NoError(t, s.DeleteFile(ctx, "f1-2"))
	s.Wait()
	require.Equal(t, revision, s.Revision(), "nothing written for a missing file")
}

func TestSynchronizer_AddFolder(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()
	s := open(t, st, false)

	folder, err := s.AddFolder(ctx, " Handover ")
	require.NoError(t, err)
	require.Equal(t, "Handover", folder.Name)
	s.Wait()

	tree := s.Tree()
	require.Len(t, tree, 5)
	require.Equal(t, folder.ID, tree[4].ID)

	_, err = s.AddFolder(ctx, "")
	require.ErrorIs(t, err, document.ErrInvalidInput)
}

func TestSynchronizer_RoundTripAcrossClients(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()
	writer := open(t, st, false)

	_, err := writer.AddFile(ctx, "folder-3", document.File{Name: "Handover_Checklist.xlsx", URL: "https://files.example/hc"}, "Mike Ross (EMG)")
	require.NoError(t, err)
	_, err = writer.AddFolder(ctx, "As-builts")
	require.NoError(t, err)
	require.NoError(t, writer.DeleteFile(ctx, "f4-1"))
	writer.Wait()

	reader := open(t, st, false)
	require.Equal(t, writer.Tree(), reader.Tree())
}

func TestSynchronizer_StaleBaseLastWriterWins(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()
	first := open(t, st, false)
	second := open(t, st, false)

	// The second writer never sees the first write before building its tree.
	st.Hold()
	_, err := first.AddFile(ctx, "folder-1", document.File{ID: "from-first", Name: "A.pdf"}, "EMG")
	require.NoError(t, err)
	first.Wait()
	_, err = second.AddFile(ctx, "folder-1", document.File{ID: "from-second", Name: "B.pdf"}, "Contractor")
	require.NoError(t, err)
	second.Wait()
	st.Release()

	want := []string{"from-second", "f1-1", "f1-2", "f1-3"}
	require.Equal(t, want, fileIDs(t, first.Tree(), "folder-1"), "first change is lost")
	require.Equal(t, want, fileIDs(t, second.Tree(), "folder-1"))
}

func TestSynchronizer_VersionedKeepsBothWrites(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()
	first := open(t, st, true)
	second := open(t, st, true)

	st.Hold()
	_, err := first.AddFile(ctx, "folder-1", document.File{ID: "from-first", Name: "A.pdf"}, "EMG")
	require.NoError(t, err)
	first.Wait()
	_, err = second.AddFile(ctx, "folder-1", document.File{ID: "from-second", Name: "B.pdf"}, "Contractor")
	require.NoError(t, err)
	second.Wait()
	st.Release()

	want := []string{"from-second", "from-first", "f1-1", "f1-2", "f1-3"}
	require.Equal(t, want, fileIDs(t, first.Tree(), "folder-1"))
	require.Equal(t, want, fileIDs(t, second.Tree(), "folder-1"))
	require.EqualValues(t, 3, second.Revision())
}

func TestSynchronizer_VersionedRetryRebasesOntoLatest(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()
	first := open(t, st, true)
	second := open(t, st, true)

	st.Hold()
	_, err := first.AddFolder(ctx, "Temporary")
	require.NoError(t, err)
	first.Wait()
	require.NoError(t, second.DeleteFile(ctx, "f3-2"))
	second.Wait()
	st.Release()

	tree := first.Tree()
	_, _, found := tree.FindFile("f3-2")
	require.False(t, found)
	require.Len(t, tree, 5)
}

func TestSynchronizer_VersionedDropsChangeThatNoLongerApplies(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()
	rec := alert.NewRecorder(0, nil)
	first := open(t, st, true)
	second := newTree(st, rec, true)
	defer second.Close()
	require.NoError(t, second.Subscribe(ctx))

	st.Hold()
	require.NoError(t, first.DeleteFile(ctx, "f3-2"))
	first.Wait()
	require.NoError(t, second.DeleteFile(ctx, "f3-2"))
	second.Wait()
	st.Release()

	doc, err := st.GetDocument(ctx, treePath)
	require.NoError(t, err)
	require.EqualValues(t, 2, doc.Revision, "second delete found nothing to remove")
	require.Empty(t, rec.Recent())
}

func TestSynchronizer_WriteFailureAlerts(t *testing.T) {
	ctx := context.Background()
	seed, err := document.Encode(document.SeedTree())
	require.NoError(t, err)

	st := &mocks.Store{}
	st.On("SubscribeDocument", mock.Anything, treePath, mock.Anything).Return(store.Document{Data: seed, Revision: 4}, nil)
	st.On("SetDocument", mock.Anything, treePath, mock.Anything).Return(int64(0), errors.New("deadline exceeded"))
	rec := alert.NewRecorder(0, nil)

	s := newTree(st, rec, false)
	defer s.Close()
	require.NoError(t, s.Subscribe(ctx))

	file, err := s.AddFile(ctx, "folder-4", document.File{Name: "SI_004.pdf"}, "Client")
	require.NoError(t, err)
	s.Wait()

	alerts := rec.Recent()
	require.Len(t, alerts, 1)
	require.Equal(t, doctree.FailureMessage, alerts[0].Message)
	require.Equal(t, "add_file", alerts[0].Operation)
	_, _, found := s.Tree().FindFile(file.ID)
	require.True(t, found, "local change is kept")
	st.AssertExpectations(t)
}

func TestSynchronizer_SeedRaceIsNotAnError(t *testing.T) {
	ctx := context.Background()
	st := &mocks.Store{}
	st.On("SubscribeDocument", mock.Anything, treePath, mock.Anything).Return(store.Document{}, nil)
	st.On("SetDocumentIf", mock.Anything, treePath, mock.Anything, int64(0)).Return(int64(0), store.ErrConflict)
	rec := alert.NewRecorder(0, nil)

	s := newTree(st, rec, false)
	defer s.Close()
	require.NoError(t, s.Subscribe(ctx))
	s.Wait()

	require.True(t, s.Loaded())
	require.Equal(t, document.SeedTree(), s.Tree())
	require.Empty(t, rec.Recent())
}

func TestSynchronizer_CloseStopsCallbacks(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	defer st.Close()
	s := open(t, st, false)
	other := open(t, st, false)

	calls := 0
	s.Watch(func(document.Tree) { calls++ })
	s.Close()

	_, err := other.AddFolder(ctx, "After close")
	require.NoError(t, err)
	other.Wait()

	require.Zero(t, calls)
	_, err = s.AddFolder(ctx, "Rejected")
	require.ErrorIs(t, err, doctree.ErrClosed)
	require.ErrorIs(t, s.Subscribe(ctx), doctree.ErrClosed)
}
