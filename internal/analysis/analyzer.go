// Package analysis wraps the upstream analysis service: one expensive,
// rate-limited call per ticker per cycle, plus the once-per-cycle
// market snapshot.
package analysis

import (
	"context"
	"encoding/json"

	"github.com/shalom-ormsby/sagestocks/internal/domain"
)

// Analyzer abstracts the upstream analysis call. The result is
// tenant-agnostic; any authorized subscriber's credential suffices to
// fetch it, so the engine uses the first subscriber's.
type Analyzer interface {
	Analyze(ctx context.Context, ticker, credential string, sharedCtx json.RawMessage) (*domain.AnalysisResult, error)

	// Snapshot fetches the shared market context cached on the queue
	// for the life of the cycle.
	Snapshot(ctx context.Context) (json.RawMessage, error)
}
