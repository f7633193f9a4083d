package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// QueueItem is one ticker with every subscriber that requested it this
// cycle. Built once by the planner; never mutated afterwards.
type QueueItem struct {
	Ticker      string       `json:"ticker"`
	Priority    Tier         `json:"priority"` // best tier among subscribers
	Subscribers []Subscriber `json:"subscribers"`
	CreatedAt   time.Time    `json:"created_at"`
}

// StoredQueue is the checkpointed, resumable unit of work for one
// cycle. Items are frozen at creation; only Processed and LastChunkAt
// change, via the store's Advance operation.
type StoredQueue struct {
	CycleID   string      `json:"cycle_id"`
	Items     []QueueItem `json:"items"`
	Total     int         `json:"total"`
	Processed int         `json:"processed"`
	ChunkSize int         `json:"chunk_size"`

	// SharedContext caches the market snapshot fetched once at queue
	// creation; it stays valid for the whole cycle.
	SharedContext json.RawMessage `json:"shared_context,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	LastChunkAt time.Time `json:"last_chunk_at"`
}

// Complete reports whether every item has been attempted.
func (q *StoredQueue) Complete() bool {
	return q.Processed >= q.Total
}

// AdvanceTo moves the cursor forward and stamps LastChunkAt. The
// cursor never rewinds: a smaller count returns ErrCursorRewind and
// leaves the queue untouched, and repeating the current count is a
// no-op apart from the timestamp. Every store backend applies cursor
// updates through this method so their semantics cannot diverge.
func (q *StoredQueue) AdvanceTo(processed int) error {
	if processed < q.Processed {
		return fmt.Errorf("%w: have %d, got %d", ErrCursorRewind, q.Processed, processed)
	}
	q.Processed = processed
	q.LastChunkAt = time.Now().UTC()
	return nil
}

// TotalChunks is the number of invocations a full pass over the queue
// takes at the configured chunk size.
func (q *StoredQueue) TotalChunks() int {
	if q.ChunkSize <= 0 || q.Total == 0 {
		return 0
	}
	return (q.Total + q.ChunkSize - 1) / q.ChunkSize
}

// CurrentChunk is the 1-based index of the chunk that starts at the
// current cursor position.
func (q *StoredQueue) CurrentChunk() int {
	if q.ChunkSize <= 0 {
		return 1
	}
	return q.Processed/q.ChunkSize + 1
}

// CycleIDFor derives the queue identifier for a point in time: one
// queue per UTC calendar day.
func CycleIDFor(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
