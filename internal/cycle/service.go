// Package cycle orchestrates one scheduler invocation: load or build
// the day's queue, process one chunk, advance the checkpoint, and
// clean up when the queue is exhausted.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shalom-ormsby/sagestocks/internal/analysis"
	"github.com/shalom-ormsby/sagestocks/internal/domain"
	"github.com/shalom-ormsby/sagestocks/internal/engine"
	"github.com/shalom-ormsby/sagestocks/internal/planner"
	"github.com/shalom-ormsby/sagestocks/internal/registry"
	"github.com/shalom-ormsby/sagestocks/internal/report"
	"github.com/shalom-ormsby/sagestocks/internal/store"
)

// Service coordinates collector, planner, store, and engine for one
// invocation at a time. All cycle state lives in the store; nothing
// survives in memory between invocations.
type Service struct {
	collector *registry.Collector
	store     store.Store
	engine    *engine.Engine
	analyzer  analysis.Analyzer
	reporter  *report.Reporter
	chunkSize int
	logger    *zap.Logger

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

func NewService(
	collector *registry.Collector,
	st store.Store,
	eng *engine.Engine,
	analyzer analysis.Analyzer,
	reporter *report.Reporter,
	chunkSize int,
	logger *zap.Logger,
) *Service {
	return &Service{
		collector: collector,
		store:     st,
		engine:    eng,
		analyzer:  analyzer,
		reporter:  reporter,
		chunkSize: chunkSize,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock overrides the service clock. Test helper.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Run executes one bounded invocation and returns its summary.
//
// Store failures are hard errors: with the cursor in doubt there is no
// safe partial state to continue from. Everything downstream of the
// store (per-ticker analysis and delivery failures) is contained by
// the engine and only shows up in the summary counts.
func (s *Service) Run(ctx context.Context) (domain.RunSummary, error) {
	start := s.now()
	cycleID := domain.CycleIDFor(start)
	log := s.logger.With(zap.String("cycle_id", cycleID))

	mode := "resume"
	q, err := s.store.Load(ctx, cycleID)
	switch {
	case errors.Is(err, domain.ErrNoQueue):
		mode = "first_run"
		q, err = s.buildQueue(ctx, cycleID)
		if err != nil {
			return domain.RunSummary{}, err
		}
		if q == nil {
			// Nothing registered anywhere: no queue is created at all.
			log.Info("no work for this cycle")
			return domain.RunSummary{
				Mode:       mode,
				CycleID:    cycleID,
				IsComplete: true,
				DurationMs: time.Since(start).Milliseconds(),
			}, nil
		}
	case err != nil:
		return domain.RunSummary{}, fmt.Errorf("load queue: %w", err)
	}

	chunk := q.CurrentChunk()
	rep, runErr := s.engine.ProcessChunk(ctx, q)

	// Advance by exactly the number of items attempted, whatever their
	// individual outcomes: failed tickers are terminal for the cycle
	// and are not re-queued until the next scheduled cycle.
	processed := q.Processed + rep.Attempted
	if rep.Attempted > 0 {
		if err := s.store.Advance(ctx, cycleID, processed); err != nil {
			return domain.RunSummary{}, fmt.Errorf("advance checkpoint: %w", err)
		}
	}

	complete := processed >= q.Total
	if complete {
		if err := s.store.Remove(ctx, cycleID); err != nil {
			return domain.RunSummary{}, fmt.Errorf("remove finished queue: %w", err)
		}
		log.Info("cycle complete, queue removed", zap.Int("total", q.Total))
	}

	s.reporter.Flush(cycleID)

	summary := domain.RunSummary{
		Mode:         mode,
		CycleID:      cycleID,
		Chunk:        chunk,
		TotalChunks:  q.TotalChunks(),
		Processed:    processed,
		TotalTickers: q.Total,
		Analyzed:     rep.Analyzed,
		Failed:       rep.Failed,
		Broadcasts:   rep.Broadcasts,
		DurationMs:   time.Since(start).Milliseconds(),
		IsComplete:   complete,
	}

	if runErr != nil {
		// Cancelled mid-chunk: the checkpoint already reflects only
		// fully attempted tickers, so the next invocation resumes
		// cleanly. Surface the cancellation to the trigger.
		return summary, runErr
	}

	log.Info("chunk processed",
		zap.Int("chunk", summary.Chunk),
		zap.Int("of", summary.TotalChunks),
		zap.Int("attempted", rep.Attempted),
		zap.Int("analyzed", rep.Analyzed),
		zap.Int("failed", rep.Failed),
		zap.Int("calls_saved", rep.CallsSaved),
		zap.Duration("elapsed", rep.Elapsed))
	return summary, nil
}

// buildQueue collects, plans, snapshots, and saves a fresh queue.
// Returns (nil, nil) when no tenant requested anything.
func (s *Service) buildQueue(ctx context.Context, cycleID string) (*domain.StoredQueue, error) {
	requests, err := s.collector.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect requests: %w", err)
	}

	items := planner.Build(requests, s.logger)
	if len(items) == 0 {
		return nil, nil
	}

	// The snapshot is a cycle-wide cache, not a prerequisite: if it
	// cannot be fetched the cycle still runs without shared context.
	snapshot, err := s.analyzer.Snapshot(ctx)
	if err != nil {
		s.logger.Warn("market snapshot unavailable, proceeding without it", zap.Error(err))
		snapshot = nil
	}

	now := s.now().UTC()
	q := &domain.StoredQueue{
		CycleID:       cycleID,
		Items:         items,
		Total:         len(items),
		Processed:     0,
		ChunkSize:     s.chunkSize,
		SharedContext: snapshot,
		CreatedAt:     now,
		LastChunkAt:   now,
	}
	if err := s.store.Save(ctx, q); err != nil {
		return nil, fmt.Errorf("save queue: %w", err)
	}

	s.logger.Info("queue built",
		zap.String("cycle_id", cycleID),
		zap.Int("tickers", q.Total),
		zap.Int("chunk_size", q.ChunkSize),
		zap.Int("chunks", q.TotalChunks()))
	return q, nil
}

// Status returns the current queue for today, or domain.ErrNoQueue.
func (s *Service) Status(ctx context.Context) (*domain.StoredQueue, error) {
	return s.store.Load(ctx, domain.CycleIDFor(s.now()))
}
