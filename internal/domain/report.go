package domain

import "time"

// BroadcastStats aggregates per-subscriber delivery outcomes.
type BroadcastStats struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Outcome is the per-ticker, per-subscriber result of one broadcast.
// Not persisted; consumed by logs and metrics only.
type Outcome struct {
	Ticker          string
	TenantID        string
	RecordID        string
	Success         bool
	Err             error
	ArchiveRecordID string
}

// ChunkReport is what the execution engine hands back after one chunk.
type ChunkReport struct {
	Attempted  int
	Analyzed   int
	Failed     int
	Broadcasts BroadcastStats

	// CallsSaved counts upstream analysis calls avoided by
	// deduplication: one per subscriber beyond the first on each
	// attempted ticker.
	CallsSaved int

	Elapsed time.Duration
}

// RunSummary is the JSON body returned to the trigger for one
// invocation.
type RunSummary struct {
	Mode         string         `json:"mode"` // "first_run" or "resume"
	CycleID      string         `json:"cycleId"`
	Chunk        int            `json:"chunk"`
	TotalChunks  int            `json:"totalChunks"`
	Processed    int            `json:"processed"`
	TotalTickers int            `json:"totalTickers"`
	Analyzed     int            `json:"analyzed"`
	Failed       int            `json:"failed"`
	Broadcasts   BroadcastStats `json:"broadcasts"`
	DurationMs   int64          `json:"durationMs"`
	IsComplete   bool           `json:"isComplete"`
}
