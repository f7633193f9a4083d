// Package engine walks the work queue one bounded chunk at a time:
// one analysis call per ticker, then a concurrent, isolated broadcast
// of the result to every subscriber.
package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shalom-ormsby/sagestocks/internal/analysis"
	"github.com/shalom-ormsby/sagestocks/internal/delivery"
	"github.com/shalom-ormsby/sagestocks/internal/domain"
	"github.com/shalom-ormsby/sagestocks/internal/report"
)

// Config carries the engine's retry and pacing knobs.
type Config struct {
	// Analysis retry: MaxAnalysisAttempts total attempts, retried only
	// on transient overload errors. Backoff uses the server-suggested
	// delay (capped at RetryAfterCap) when present, otherwise the
	// fixed escalating schedule.
	MaxAnalysisAttempts int
	AnalysisBackoff     []time.Duration
	RetryAfterCap       time.Duration

	// Per-subscriber delivery retry: fixed attempt count, fixed delay.
	// Delivery targets are per-tenant, so no exponential backoff.
	DeliveryAttempts   int
	DeliveryRetryDelay time.Duration

	// TickerDelay throttles aggregate pressure on the shared upstream:
	// at most one ticker enters analysis per interval. Zero disables
	// pacing.
	TickerDelay time.Duration

	DryRun bool
}

// Hooks carries the metric callbacks injected by main, keeping the
// engine prometheus-agnostic.
type Hooks struct {
	OnAnalyzed       func(latency time.Duration)
	OnAnalysisFailed func(category domain.ErrorCategory)
	OnAnalysisRetry  func()
	OnBroadcast      func(succeeded bool)
	OnCallsSaved     func(n int)
}

// Engine executes chunks of the cycle queue. Tickers run strictly
// sequentially (the upstream is shared and rate-limited) while each
// ticker's broadcast fans out concurrently across its subscribers.
type Engine struct {
	analyzer analysis.Analyzer
	delivery delivery.Delivery
	reporter *report.Reporter
	cfg      Config
	logger   *zap.Logger
	hooks    Hooks
}

// New constructs the engine. Hook fields may be nil (no-op).
func New(
	analyzer analysis.Analyzer,
	del delivery.Delivery,
	reporter *report.Reporter,
	cfg Config,
	logger *zap.Logger,
	hooks Hooks,
) *Engine {
	if hooks.OnAnalyzed == nil {
		hooks.OnAnalyzed = func(time.Duration) {}
	}
	if hooks.OnAnalysisFailed == nil {
		hooks.OnAnalysisFailed = func(domain.ErrorCategory) {}
	}
	if hooks.OnAnalysisRetry == nil {
		hooks.OnAnalysisRetry = func() {}
	}
	if hooks.OnBroadcast == nil {
		hooks.OnBroadcast = func(bool) {}
	}
	if hooks.OnCallsSaved == nil {
		hooks.OnCallsSaved = func(int) {}
	}
	return &Engine{
		analyzer: analyzer,
		delivery: del,
		reporter: reporter,
		cfg:      cfg,
		logger:   logger,
		hooks:    hooks,
	}
}

// ProcessChunk runs queue items [q.Processed, q.Processed+q.ChunkSize)
// in order. It returns a non-nil error only when ctx is cancelled
// mid-chunk; per-ticker failures are terminal for the cycle, reported
// to every subscriber, and never abort the chunk. The returned
// report's Attempted count is what the caller advances the checkpoint
// by; a ticker interrupted by cancellation is not counted.
func (e *Engine) ProcessChunk(ctx context.Context, q *domain.StoredQueue) (domain.ChunkReport, error) {
	start := time.Now()
	var rep domain.ChunkReport

	end := q.Processed + q.ChunkSize
	if end > len(q.Items) {
		end = len(q.Items)
	}

	pace := newPacer(e.cfg.TickerDelay)

	for i := q.Processed; i < end; i++ {
		if err := pace.Wait(ctx); err != nil {
			rep.Elapsed = time.Since(start)
			return rep, err
		}

		item := q.Items[i]
		if err := e.processTicker(ctx, item, q.SharedContext, &rep); err != nil {
			rep.Elapsed = time.Since(start)
			return rep, err
		}

		rep.Attempted++
		saved := len(item.Subscribers) - 1
		rep.CallsSaved += saved
		e.hooks.OnCallsSaved(saved)
	}

	rep.Elapsed = time.Since(start)
	return rep, nil
}

// newPacer spaces ticker starts one TickerDelay apart. The limiter
// starts with a full token, so the first ticker is never delayed.
func newPacer(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// processTicker runs the per-ticker state machine. Only cancellation
// propagates as an error; every other failure ends in the terminal
// error path for this ticker.
func (e *Engine) processTicker(ctx context.Context, item domain.QueueItem, sharedCtx []byte, rep *domain.ChunkReport) error {
	log := e.logger.With(
		zap.String("ticker", item.Ticker),
		zap.Int("subscribers", len(item.Subscribers)),
	)

	if e.cfg.DryRun {
		log.Info("dry run: would analyze and broadcast")
		rep.Analyzed++
		rep.Broadcasts.Total += len(item.Subscribers)
		rep.Broadcasts.Succeeded += len(item.Subscribers)
		return nil
	}

	// Step 1: best-effort in-progress marks. A UX signal, not
	// correctness-critical; failures only log.
	now := time.Now().UTC()
	for _, sub := range item.Subscribers {
		if err := e.delivery.WriteStatus(ctx, sub.Target, sub.RecordID, domain.StatusInProgress, "", now); err != nil {
			log.Warn("in-progress mark failed",
				zap.String("tenant_id", sub.TenantID), zap.Error(err))
		}
	}

	// Steps 2 and 3: analyze once using the first subscriber's credential
	// (the result is tenant-agnostic), then validate completeness.
	analysisStart := time.Now()
	result, err := e.analyzeWithRetry(ctx, item.Ticker, item.Subscribers[0].Target.Credential, sharedCtx)
	if err == nil {
		err = result.Validate()
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err != nil {
		// Step 4: terminal failure. Every subscriber gets an explicit
		// error status, each independently. No archive is written.
		rep.Failed++
		category := classify(err)
		e.hooks.OnAnalysisFailed(category)
		log.Warn("ticker terminally failed for this cycle", zap.Error(err))

		at := time.Now().UTC()
		joinAll(item.Subscribers, func(sub domain.Subscriber) (string, error) {
			e.reporter.ReportError(ctx, sub.Target, sub.RecordID, domain.ErrorContext{
				Ticker:   item.Ticker,
				TenantID: sub.TenantID,
				At:       at,
				Category: category,
				Phase:    "analysis",
				Err:      err,
			})
			return "", nil
		})
		return nil
	}

	rep.Analyzed++
	e.hooks.OnAnalyzed(time.Since(analysisStart))

	// Step 5: broadcast. Join-all with individual outcomes; one
	// subscriber exhausting its retries never cancels the others.
	outcomes := joinAll(item.Subscribers, func(sub domain.Subscriber) (string, error) {
		return e.withRetry(ctx, func() (string, error) {
			return e.delivery.WritePrimary(ctx, sub.Target, sub.RecordID, result)
		})
	})

	var delivered []domain.Subscriber
	for _, o := range outcomes {
		rep.Broadcasts.Total++
		if o.err != nil {
			rep.Broadcasts.Failed++
			e.hooks.OnBroadcast(false)
			log.Warn("broadcast failed for subscriber",
				zap.String("tenant_id", o.sub.TenantID),
				zap.String("record_id", o.sub.RecordID),
				zap.Error(o.err))
			e.reporter.ReportError(ctx, o.sub.Target, o.sub.RecordID, domain.ErrorContext{
				Ticker:   item.Ticker,
				TenantID: o.sub.TenantID,
				At:       time.Now().UTC(),
				Category: domain.CategoryDeliveryFailed,
				Phase:    "write",
				Err:      o.err,
			})
			continue
		}
		rep.Broadcasts.Succeeded++
		e.hooks.OnBroadcast(true)
		delivered = append(delivered, o.sub)
	}

	// Step 6: one archive record per tenant per ticker per cycle.
	// A tenant tracking the ticker under several records still gets a
	// single archive entry.
	seen := make(map[string]bool, len(delivered))
	var archiveSubs []domain.Subscriber
	for _, sub := range delivered {
		if seen[sub.TenantID] {
			continue
		}
		seen[sub.TenantID] = true
		archiveSubs = append(archiveSubs, sub)
	}

	archOutcomes := joinAll(archiveSubs, func(sub domain.Subscriber) (string, error) {
		return e.withRetry(ctx, func() (string, error) {
			return e.delivery.WriteArchive(ctx, sub.Target, sub.RecordID, result, sharedCtx)
		})
	})
	for _, o := range archOutcomes {
		if o.err == nil {
			continue
		}
		// The primary record already holds fresh data with a verified
		// complete status, so a failed archive append does not flip it
		// to error; it surfaces through logs and the admin batch.
		log.Warn("archive write failed for tenant",
			zap.String("tenant_id", o.sub.TenantID), zap.Error(o.err))
		e.reporter.RecordFailure(domain.ErrorContext{
			Ticker:   item.Ticker,
			TenantID: o.sub.TenantID,
			At:       time.Now().UTC(),
			Category: domain.CategoryDeliveryFailed,
			Phase:    "archive",
			Err:      o.err,
		})
	}

	log.Info("ticker processed",
		zap.Int("broadcasts", rep.Broadcasts.Total),
		zap.Int("archives", len(archiveSubs)))
	return nil
}

// analyzeWithRetry makes up to MaxAnalysisAttempts calls. Only
// transient-overload errors retry; anything else is terminal after the
// first attempt.
func (e *Engine) analyzeWithRetry(ctx context.Context, ticker, credential string, sharedCtx []byte) (*domain.AnalysisResult, error) {
	for attempt := 1; ; attempt++ {
		result, err := e.analyzer.Analyze(ctx, ticker, credential, sharedCtx)
		if err == nil {
			return result, nil
		}
		if !analysis.IsTransient(err) || attempt >= e.cfg.MaxAnalysisAttempts {
			return nil, err
		}

		delay := analysis.RetryAfterHint(err, e.cfg.RetryAfterCap)
		if delay == 0 && len(e.cfg.AnalysisBackoff) > 0 {
			idx := attempt - 1
			if idx >= len(e.cfg.AnalysisBackoff) {
				idx = len(e.cfg.AnalysisBackoff) - 1
			}
			delay = e.cfg.AnalysisBackoff[idx]
		}

		e.hooks.OnAnalysisRetry()
		e.logger.Info("transient upstream error, backing off",
			zap.String("ticker", ticker),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// withRetry applies the fixed delivery retry policy to fn.
func (e *Engine) withRetry(ctx context.Context, fn func() (string, error)) (string, error) {
	attempts := e.cfg.DeliveryAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		id, err := fn()
		if err == nil {
			return id, nil
		}
		lastErr = err
		if attempt < attempts {
			if serr := sleep(ctx, e.cfg.DeliveryRetryDelay); serr != nil {
				return "", lastErr
			}
		}
	}
	return "", lastErr
}

// classify maps an analysis-phase error to its reporting category.
func classify(err error) domain.ErrorCategory {
	var ue *analysis.UpstreamError
	switch {
	case errors.Is(err, domain.ErrIncompleteResult):
		return domain.CategoryAnalysisFailed
	case errors.Is(err, context.DeadlineExceeded):
		return domain.CategoryTimeout
	case errors.As(err, &ue):
		return domain.CategoryUpstreamError
	default:
		return domain.CategoryUnknown
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
