// Package report centralizes failure-state writes. Nothing here ever
// panics or returns an error to the engine: a record that cannot be
// marked failed is logged, retried once as a meta-error, and abandoned.
package report

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shalom-ormsby/sagestocks/internal/delivery"
	"github.com/shalom-ormsby/sagestocks/internal/domain"
)

// FailureSummary is one line of the batched admin notification.
type FailureSummary struct {
	Ticker   string               `json:"ticker"`
	TenantID string               `json:"tenant_id,omitempty"`
	Category domain.ErrorCategory `json:"category"`
	Phase    string               `json:"phase,omitempty"`
	Detail   string               `json:"detail,omitempty"`
}

// BatchSummary is the single notification sent per chunk, however many
// tickers failed in it.
type BatchSummary struct {
	CycleID  string           `json:"cycle_id"`
	Failures []FailureSummary `json:"failures"`
}

// Notifier delivers the batch summary to the external monitoring sink.
type Notifier interface {
	Notify(ctx context.Context, summary BatchSummary) error
}

// Reporter writes explicit error statuses to subscriber records and
// accumulates chunk failures for one batched admin notification.
// Safe for concurrent use; the engine calls ReportError from the
// broadcast fan-out.
type Reporter struct {
	delivery      delivery.Delivery
	notifier      Notifier // nil = notifications disabled
	limit         int
	notifyTimeout time.Duration
	logger        *zap.Logger

	mu      sync.Mutex
	pending []FailureSummary
}

func NewReporter(d delivery.Delivery, n Notifier, messageLimit int, notifyTimeout time.Duration, logger *zap.Logger) *Reporter {
	if messageLimit <= 0 {
		messageLimit = 2000
	}
	return &Reporter{
		delivery:      d,
		notifier:      n,
		limit:         messageLimit,
		notifyTimeout: notifyTimeout,
		logger:        logger,
	}
}

// ReportError writes status=error with a timestamped, human-readable
// message to the subscriber's primary record, so a failed cycle is
// never mistaken for stale success. The write itself is allowed to
// fail: it is logged, re-attempted once tagged as a meta-error, then
// abandoned. It is never re-thrown and never retried indefinitely.
func (r *Reporter) ReportError(ctx context.Context, target domain.TargetHandle, recordID string, ectx domain.ErrorContext) {
	r.collect(ectx)

	msg := Truncate(ectx.Message(), r.limit)
	err := r.delivery.WriteStatus(ctx, target, recordID, domain.StatusError, msg, ectx.At)
	if err == nil {
		return
	}

	r.logger.Error("error-status write failed",
		zap.String("ticker", ectx.Ticker),
		zap.String("record_id", recordID),
		zap.Error(err))

	meta := domain.ErrorContext{
		Ticker:   ectx.Ticker,
		TenantID: ectx.TenantID,
		At:       time.Now().UTC(),
		Category: domain.CategoryUnknown,
		Phase:    "meta-error",
		Err:      err,
	}
	if err := r.delivery.WriteStatus(ctx, target, recordID, domain.StatusError,
		Truncate(meta.Message(), r.limit), meta.At); err != nil {
		r.logger.Error("meta-error write failed, abandoning",
			zap.String("record_id", recordID), zap.Error(err))
	}
}

// RecordFailure adds a failure to the batch without touching any
// subscriber record. Used for failures that have no record to mark
// (e.g. an archive write after a successful primary write).
func (r *Reporter) RecordFailure(ectx domain.ErrorContext) {
	r.collect(ectx)
}

func (r *Reporter) collect(ectx domain.ErrorContext) {
	detail := ""
	if ectx.Err != nil {
		detail = ectx.Err.Error()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, FailureSummary{
		Ticker:   ectx.Ticker,
		TenantID: ectx.TenantID,
		Category: ectx.Category,
		Phase:    ectx.Phase,
		Detail:   detail,
	})
}

// Flush sends the accumulated failures as one notification and resets
// the batch. Fire-and-forget: the send runs in its own goroutine with
// its own timeout and a failure only logs.
func (r *Reporter) Flush(cycleID string) {
	r.mu.Lock()
	failures := r.pending
	r.pending = nil
	r.mu.Unlock()

	if len(failures) == 0 || r.notifier == nil {
		return
	}

	summary := BatchSummary{CycleID: cycleID, Failures: failures}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.notifyTimeout)
		defer cancel()
		if err := r.notifier.Notify(ctx, summary); err != nil {
			r.logger.Warn("admin notification failed",
				zap.String("cycle_id", cycleID),
				zap.Int("failures", len(failures)),
				zap.Error(err))
		}
	}()
}

// Pending reports the number of failures collected since the last
// flush. Test helper.
func (r *Reporter) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Truncate caps s at limit runes, marking the cut with an ellipsis.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}
