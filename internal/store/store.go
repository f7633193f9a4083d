// Package store persists the checkpointed work queue between
// invocations. The store is the single source of truth for cycle
// progress; any backend failure is a hard error for the invocation,
// since continuing with an inconsistent cursor is never safe.
package store

import (
	"context"

	"github.com/shalom-ormsby/sagestocks/internal/domain"
)

// Store is the checkpointed queue persistence contract.
//
// Save creates (or replaces, last-writer-wins) the queue for its cycle
// and starts its expiry clock, so an abandoned queue self-cleans.
// Load returns domain.ErrNoQueue when no queue exists for the cycle,
// meaning no work is outstanding and a fresh queue may be built.
// Advance is a read-modify-write of the cursor: processed only ever
// increases, and calling it again with the same count is a no-op.
// Remove is the explicit cleanup once every item has been attempted.
type Store interface {
	Save(ctx context.Context, q *domain.StoredQueue) error
	Load(ctx context.Context, cycleID string) (*domain.StoredQueue, error)
	Advance(ctx context.Context, cycleID string, processed int) error
	Remove(ctx context.Context, cycleID string) error
}
