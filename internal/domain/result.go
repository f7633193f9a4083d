package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// AnalysisResult is the upstream analysis output for one ticker. The
// result is tenant-agnostic: the same payload is broadcast to every
// subscriber of the ticker.
type AnalysisResult struct {
	Ticker      string          `json:"ticker"`
	Summary     string          `json:"summary"`
	Rating      string          `json:"rating"`
	Confidence  float64         `json:"confidence"`
	Sections    json.RawMessage `json:"sections,omitempty"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// Validate enforces the required-fields contract. An incomplete result
// is treated exactly like an analysis failure and is never retried:
// incompleteness is a logical defect, not a transient condition.
func (r *AnalysisResult) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: empty result", ErrIncompleteResult)
	}
	if r.Ticker == "" {
		return fmt.Errorf("%w: missing ticker", ErrIncompleteResult)
	}
	if r.Summary == "" {
		return fmt.Errorf("%w: missing summary", ErrIncompleteResult)
	}
	if r.Rating == "" {
		return fmt.Errorf("%w: missing rating", ErrIncompleteResult)
	}
	return nil
}
