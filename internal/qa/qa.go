// Package qa appends replies to Q&A threads.
//
// A reply is written by patching the thread's whole reply list, built from the
// local copy of the thread. Two clients replying within the synchronization
// lag can each build their list from the same base, and one reply is lost.
package qa

import (
	"context"
	"fmt"
	"time"

	"github.com/emgroup/sitesync/internal/collection"
	"github.com/emgroup/sitesync/internal/domain/record"
	"github.com/emgroup/sitesync/internal/store"
)

// Threads is the collection the merger writes through.
type Threads interface {
	Get(id int64) (record.QuestionThread, bool)
	Update(ctx context.Context, id int64, patch store.Patch)
}

var _ Threads = (*collection.Synchronizer[record.QuestionThread])(nil)

// Merger builds and writes replies.
type Merger struct {
	threads Threads
	now     func() time.Time
}

// NewMerger creates a merger over threads. A nil now uses time.Now.
func NewMerger(threads Threads, now func() time.Time) *Merger {
	if now == nil {
		now = time.Now
	}
	return &Merger{threads: threads, now: now}
}

// AddReply appends a reply to the thread and marks it answered. The new reply
// is returned; the write itself happens in the background.
func (m *Merger) AddReply(ctx context.Context, threadID int64, content, author string) (record.Reply, error) {
	if err := record.ValidateReply(content); err != nil {
		return record.Reply{}, err
	}
	thread, ok := m.threads.Get(threadID)
	if !ok {
		return record.Reply{}, fmt.Errorf("%w: thread %d", record.ErrRecordNotFound, threadID)
	}

	reply := record.Reply{
		Author:  author,
		Date:    record.FormatDate(m.now()),
		Content: content,
	}
	replies := make([]record.Reply, 0, len(thread.Replies)+1)
	replies = append(replies, thread.Replies...)
	replies = append(replies, reply)

	m.threads.Update(ctx, threadID, store.Patch{
		"replies": replies,
		"status":  record.ThreadAnswered,
	})
	return reply, nil
}
