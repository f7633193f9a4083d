// Package delivery writes analysis results into each tenant's private
// storage. Every operation fails loudly: a nil error always means the
// write verifiably happened, never "wrote nothing".
package delivery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shalom-ormsby/sagestocks/internal/domain"
)

// Delivery abstracts the per-tenant write target.
//
// WritePrimary replaces the tenant's mutable primary record with the
// fresh result and marks it complete; it returns the record id it
// wrote. WriteArchive appends one immutable history record to the
// tenant's archive destination and returns the new record's id.
// WriteStatus updates only the status fields of a primary record,
// including the last-attempted timestamp, so staleness is always
// visible to the tenant.
type Delivery interface {
	WritePrimary(ctx context.Context, target domain.TargetHandle, recordID string, result *domain.AnalysisResult) (string, error)
	WriteArchive(ctx context.Context, target domain.TargetHandle, recordID string, result *domain.AnalysisResult, sharedCtx json.RawMessage) (string, error)
	WriteStatus(ctx context.Context, target domain.TargetHandle, recordID string, status domain.Status, message string, at time.Time) error
}
