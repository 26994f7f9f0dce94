package mocks

import (
	"context"

	"github.com/emgroup/sitesync/internal/store"
	"github.com/stretchr/testify/mock"
)

// Store is a mock for store.Store.
type Store struct {
	mock.Mock
}

func (m *Store) Create(ctx context.Context, collection string, data []byte) (string, error) {
	args := m.Called(ctx, collection, data)
	return args.String(0), args.Error(1)
}

func (m *Store) Update(ctx context.Context, collection, key string, patch store.Patch) error {
	args := m.Called(ctx, collection, key, patch)
	return args.Error(0)
}

func (m *Store) Delete(ctx context.Context, collection, key string) error {
	args := m.Called(ctx, collection, key)
	return args.Error(0)
}

func (m *Store) List(ctx context.Context, collection string) ([]store.Entry, error) {
	args := m.Called(ctx, collection)
	if entries, ok := args.Get(0).([]store.Entry); ok {
		return entries, args.Error(1)
	}
	return nil, args.Error(1)
}

// SubscribeCollection delivers the entries given to Return(entries, err)
// once, before returning, the way real backends do.
func (m *Store) SubscribeCollection(ctx context.Context, collection string, fn func([]store.Entry)) (store.CancelFunc, error) {
	args := m.Called(ctx, collection, fn)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	if entries, ok := args.Get(0).([]store.Entry); ok {
		fn(entries)
	}
	return func() {}, nil
}

func (m *Store) GetDocument(ctx context.Context, path string) (store.Document, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(store.Document), args.Error(1)
}

func (m *Store) SetDocument(ctx context.Context, path string, data []byte) (int64, error) {
	args := m.Called(ctx, path, data)
	return args.Get(0).(int64), args.Error(1)
}

func (m *Store) SetDocumentIf(ctx context.Context, path string, data []byte, expected int64) (int64, error) {
	args := m.Called(ctx, path, data, expected)
	return args.Get(0).(int64), args.Error(1)
}

// SubscribeDocument delivers the document given to Return(doc, err) once.
func (m *Store) SubscribeDocument(ctx context.Context, path string, fn func(store.Document)) (store.CancelFunc, error) {
	args := m.Called(ctx, path, fn)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	if doc, ok := args.Get(0).(store.Document); ok {
		fn(doc)
	}
	return func() {}, nil
}

func (m *Store) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ store.Store = (*Store)(nil)
