// Package idgen allocates the numeric record ids used before a store key exists.
//
// Ids are milliseconds since the Unix epoch taken from the allocator's clock.
// They are unique within one allocator but not across clients: two
// stakeholders creating a record in the same millisecond receive the same id.
package idgen

import (
	"sync"
	"time"
)

// Clock returns the current time.
type Clock func() time.Time

// Allocator hands out time-ordered ids.
type Allocator struct {
	mu    sync.Mutex
	clock Clock
	last  int64
}

// New creates an allocator reading the given clock (nil means time.Now).
func New(clock Clock) *Allocator {
	if clock == nil {
		clock = time.Now
	}
	return &Allocator{clock: clock}
}

// NewID returns the next id. If the clock has not moved past the previous id
// (same millisecond, or the clock stepped backwards) the previous id plus one
// is returned, so ids from one allocator never repeat.
func (a *Allocator) NewID() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.clock().UnixMilli()
	if id <= a.last {
		id = a.last + 1
	}
	a.last = id
	return id
}

var defaultAllocator = New(nil)

// NewID allocates from the process-wide allocator.
func NewID() int64 {
	return defaultAllocator.NewID()
}
