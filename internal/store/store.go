// Package store defines the remote document store the synchronizers write to.
//
// A store holds two shapes of data: collections, where every record is its own
// entry under a store-assigned key, and documents, where a whole structure is
// one value at a fixed path. Subscriptions always deliver the full current
// contents, never a diff, and deliver once immediately on subscribe.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Entry is one persisted record of a collection.
type Entry struct {
	Key  string          `json:"key"`
	Data json.RawMessage `json:"data"`
}

// Document is the value stored at a document path. Revision is zero when the
// document does not exist and increases by one on every write.
type Document struct {
	Data     json.RawMessage `json:"data,omitempty"`
	Revision int64           `json:"revision"`
}

// Exists reports whether the document has ever been written.
func (d Document) Exists() bool {
	return d.Revision > 0
}

// Patch is a set of top-level fields merged into a stored JSON object.
type Patch map[string]any

// CancelFunc ends a subscription. It is safe to call more than once.
type CancelFunc func()

// CollectionStore persists independently keyed records.
type CollectionStore interface {
	Create(ctx context.Context, collection string, data []byte) (string, error)
	Update(ctx context.Context, collection, key string, patch Patch) error
	Delete(ctx context.Context, collection, key string) error
	List(ctx context.Context, collection string) ([]Entry, error)
	SubscribeCollection(ctx context.Context, collection string, fn func([]Entry)) (CancelFunc, error)
}

// DocumentStore persists single structured values.
type DocumentStore interface {
	GetDocument(ctx context.Context, path string) (Document, error)
	SetDocument(ctx context.Context, path string, data []byte) (int64, error)
	// SetDocumentIf writes only when the stored revision equals expected.
	// An expected revision of zero means the document must not exist yet.
	SetDocumentIf(ctx context.Context, path string, data []byte, expected int64) (int64, error)
	SubscribeDocument(ctx context.Context, path string, fn func(Document)) (CancelFunc, error)
}

// Store is a complete backend.
type Store interface {
	CollectionStore
	DocumentStore
	Close() error
}

// NewKey returns a fresh store key.
func NewKey() string {
	return uuid.NewString()
}

// CollectionPath returns the collection path for a project.
func CollectionPath(projectID, name string) string {
	return fmt.Sprintf("projects/%s/%s", projectID, name)
}

// DocumentPath returns the document path for a project.
func DocumentPath(projectID, name string) string {
	return fmt.Sprintf("projects/%s/%s", projectID, name)
}

// CollectionTopic is the change-feed topic of a collection.
func CollectionTopic(path string) string { return "col:" + path }

// DocumentTopic is the change-feed topic of a document.
func DocumentTopic(path string) string { return "doc:" + path }

// MergePatch applies patch to a JSON object and returns the merged object.
func MergePatch(data []byte, patch Patch) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("decode stored object: %w", err)
		}
	}
	for name, value := range patch {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode patch field %s: %w", name, err)
		}
		fields[name] = raw
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode merged object: %w", err)
	}
	return merged, nil
}
