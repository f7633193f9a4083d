package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shalom-ormsby/sagestocks/internal/analysis"
	"github.com/shalom-ormsby/sagestocks/internal/delivery"
	"github.com/shalom-ormsby/sagestocks/internal/domain"
	"github.com/shalom-ormsby/sagestocks/internal/engine"
	"github.com/shalom-ormsby/sagestocks/internal/report"
)

const backoffStep = 10 * time.Millisecond

func newTestEngine(an *analysis.MockAnalyzer, del *delivery.MockDelivery) *engine.Engine {
	rep := report.NewReporter(del, nil, 2000, time.Second, zap.NewNop())
	return engine.New(an, del, rep, engine.Config{
		MaxAnalysisAttempts: 3,
		AnalysisBackoff:     []time.Duration{backoffStep, backoffStep, backoffStep},
		RetryAfterCap:       50 * time.Millisecond,
		DeliveryAttempts:    2,
		DeliveryRetryDelay:  time.Millisecond,
		TickerDelay:         0,
	}, zap.NewNop(), engine.Hooks{})
}

func sub(tenant, record string, tier domain.Tier) domain.Subscriber {
	return domain.Subscriber{
		TenantID: tenant,
		Contact:  tenant + "@example.com",
		Tier:     tier,
		Target: domain.TargetHandle{
			Credential: "tok-" + tenant,
			PrimaryID:  "prim-" + tenant,
			ArchiveID:  "arch-" + tenant,
		},
		RecordID: record,
	}
}

func queueOf(chunkSize int, items ...domain.QueueItem) *domain.StoredQueue {
	return &domain.StoredQueue{
		CycleID:   "2025-03-14",
		Items:     items,
		Total:     len(items),
		ChunkSize: chunkSize,
		CreatedAt: time.Now().UTC(),
	}
}

func item(ticker string, subs ...domain.Subscriber) domain.QueueItem {
	return domain.QueueItem{
		Ticker:      ticker,
		Priority:    subs[0].Tier,
		Subscribers: subs,
		CreatedAt:   time.Now().UTC(),
	}
}

// Three tenants on one ticker: one analysis call, three broadcasts,
// three archive records.
func TestProcessChunk_DeduplicatedBroadcast(t *testing.T) {
	an := analysis.NewMockAnalyzer()
	del := delivery.NewMockDelivery()
	eng := newTestEngine(an, del)

	q := queueOf(8, item("XYZ",
		sub("t0", "rec-0", domain.Tier0),
		sub("t1", "rec-1", domain.Tier1),
		sub("t2", "rec-2", domain.Tier2),
	))

	rep, err := eng.ProcessChunk(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := an.Calls("XYZ"); got != 1 {
		t.Fatalf("analysis calls = %d, want exactly 1", got)
	}
	if rep.Attempted != 1 || rep.Analyzed != 1 || rep.Failed != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if rep.Broadcasts.Total != 3 || rep.Broadcasts.Succeeded != 3 {
		t.Fatalf("broadcasts = %+v", rep.Broadcasts)
	}
	if rep.CallsSaved != 2 {
		t.Fatalf("calls saved = %d, want 2", rep.CallsSaved)
	}

	for _, rec := range []string{"rec-0", "rec-1", "rec-2"} {
		last, ok := del.LastStatus(rec)
		if !ok || last.Status != domain.StatusComplete {
			t.Fatalf("record %s final status = %+v, want complete", rec, last)
		}
	}
	if got := len(del.Archives()); got != 3 {
		t.Fatalf("archive records = %d, want 3 (one per tenant)", got)
	}
}

// One subscriber's delivery exhausts its retries; that subscriber
// alone ends in error, the others complete with archives.
func TestProcessChunk_SubscriberFailureIsIsolated(t *testing.T) {
	an := analysis.NewMockAnalyzer()
	del := delivery.NewMockDelivery()
	del.FailPrimary("rec-bad", -1)
	eng := newTestEngine(an, del)

	q := queueOf(8, item("XYZ",
		sub("good1", "rec-g1", domain.Tier1),
		sub("bad", "rec-bad", domain.Tier1),
		sub("good2", "rec-g2", domain.Tier1),
	))

	rep, err := eng.ProcessChunk(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rep.Broadcasts.Total != 3 || rep.Broadcasts.Succeeded != 2 || rep.Broadcasts.Failed != 1 {
		t.Fatalf("broadcasts = %+v", rep.Broadcasts)
	}

	last, _ := del.LastStatus("rec-bad")
	if last.Status != domain.StatusError {
		t.Fatalf("failed subscriber status = %s, want error", last.Status)
	}
	for _, rec := range []string{"rec-g1", "rec-g2"} {
		last, _ := del.LastStatus(rec)
		if last.Status != domain.StatusComplete {
			t.Fatalf("record %s status = %s, want complete", rec, last.Status)
		}
	}

	archives := del.Archives()
	if len(archives) != 2 {
		t.Fatalf("archives = %d, want 2", len(archives))
	}
	for _, a := range archives {
		if a.ArchiveID == "arch-bad" {
			t.Fatal("failed subscriber must not get an archive record")
		}
	}
}

// Terminal analysis failure: every subscriber marked error, no archive
// records, analysis not retried.
func TestProcessChunk_TerminalAnalysisFailure(t *testing.T) {
	an := analysis.NewMockAnalyzer()
	an.ScriptErrors("XYZ", &analysis.UpstreamError{Status: 400, Msg: "unknown ticker"})
	del := delivery.NewMockDelivery()
	eng := newTestEngine(an, del)

	q := queueOf(8, item("XYZ",
		sub("t1", "rec-1", domain.Tier1),
		sub("t2", "rec-2", domain.Tier2),
	))

	rep, err := eng.ProcessChunk(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := an.Calls("XYZ"); got != 1 {
		t.Fatalf("non-transient failure must not retry: calls = %d", got)
	}
	if rep.Attempted != 1 || rep.Failed != 1 || rep.Analyzed != 0 {
		t.Fatalf("report = %+v", rep)
	}
	for _, rec := range []string{"rec-1", "rec-2"} {
		last, ok := del.LastStatus(rec)
		if !ok || last.Status != domain.StatusError {
			t.Fatalf("record %s status = %+v, want error", rec, last)
		}
	}
	if len(del.Archives()) != 0 {
		t.Fatal("failed ticker must not produce archive records")
	}
}

// Two transient errors then success: three calls, elapsed time covers
// the two backoff delays, ticker succeeds.
func TestProcessChunk_TransientRetryThenSuccess(t *testing.T) {
	an := analysis.NewMockAnalyzer()
	an.ScriptErrors("XYZ",
		&analysis.UpstreamError{Status: 429, Msg: "rate limit", Transient: true},
		&analysis.UpstreamError{Status: 503, Msg: "overloaded", Transient: true},
	)
	del := delivery.NewMockDelivery()
	eng := newTestEngine(an, del)

	q := queueOf(8, item("XYZ", sub("t1", "rec-1", domain.Tier1)))

	start := time.Now()
	rep, err := eng.ProcessChunk(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := an.Calls("XYZ"); got != 3 {
		t.Fatalf("analysis calls = %d, want 3", got)
	}
	if rep.Analyzed != 1 || rep.Failed != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if elapsed := time.Since(start); elapsed < 2*backoffStep {
		t.Fatalf("elapsed %v should cover two backoff delays of %v", elapsed, backoffStep)
	}
}

// Retries exhausted on persistent transient errors: terminal failure.
func TestProcessChunk_TransientRetriesExhausted(t *testing.T) {
	an := analysis.NewMockAnalyzer()
	an.ScriptErrors("XYZ",
		&analysis.UpstreamError{Status: 429, Msg: "rate limit", Transient: true},
		&analysis.UpstreamError{Status: 429, Msg: "rate limit", Transient: true},
		&analysis.UpstreamError{Status: 429, Msg: "rate limit", Transient: true},
	)
	del := delivery.NewMockDelivery()
	eng := newTestEngine(an, del)

	q := queueOf(8, item("XYZ", sub("t1", "rec-1", domain.Tier1)))

	rep, err := eng.ProcessChunk(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := an.Calls("XYZ"); got != 3 {
		t.Fatalf("analysis calls = %d, want 3 (attempt budget)", got)
	}
	if rep.Failed != 1 {
		t.Fatalf("report = %+v", rep)
	}
	last, _ := del.LastStatus("rec-1")
	if last.Status != domain.StatusError {
		t.Fatalf("status = %s, want error", last.Status)
	}
}

// An incomplete result is terminal and never re-invokes the analysis.
func TestProcessChunk_IncompleteResultIsTerminal(t *testing.T) {
	an := analysis.NewMockAnalyzer()
	an.Result = &domain.AnalysisResult{Ticker: "XYZ"} // missing summary and rating
	del := delivery.NewMockDelivery()
	eng := newTestEngine(an, del)

	q := queueOf(8, item("XYZ", sub("t1", "rec-1", domain.Tier1)))

	rep, err := eng.ProcessChunk(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := an.Calls("XYZ"); got != 1 {
		t.Fatalf("completeness failure must not retry: calls = %d", got)
	}
	if rep.Failed != 1 || rep.Analyzed != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if len(del.Archives()) != 0 {
		t.Fatal("incomplete result must not produce archives")
	}
}

// A tenant tracking one ticker under two records gets both records
// written but only one archive entry.
func TestProcessChunk_ArchiveDeduplicatedByTenant(t *testing.T) {
	an := analysis.NewMockAnalyzer()
	del := delivery.NewMockDelivery()
	eng := newTestEngine(an, del)

	q := queueOf(8, item("NVDA",
		sub("dup", "rec-a", domain.Tier1),
		sub("dup", "rec-b", domain.Tier1),
		sub("other", "rec-c", domain.Tier2),
	))

	rep, err := eng.ProcessChunk(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rep.Broadcasts.Succeeded != 3 {
		t.Fatalf("broadcasts = %+v", rep.Broadcasts)
	}
	if del.PrimaryWrites("rec-a") != 1 || del.PrimaryWrites("rec-b") != 1 {
		t.Fatal("both records of the duplicate tenant must be written")
	}

	counts := make(map[string]int)
	for _, a := range del.Archives() {
		counts[a.ArchiveID]++
	}
	if counts["arch-dup"] != 1 {
		t.Fatalf("duplicate tenant archives = %d, want exactly 1", counts["arch-dup"])
	}
	if counts["arch-other"] != 1 {
		t.Fatalf("other tenant archives = %d, want 1", counts["arch-other"])
	}
}

// Delivery retry: one failure then success stays a success.
func TestProcessChunk_DeliveryRetriesOnce(t *testing.T) {
	an := analysis.NewMockAnalyzer()
	del := delivery.NewMockDelivery()
	del.FailPrimary("rec-1", 1) // first attempt fails, retry lands
	eng := newTestEngine(an, del)

	q := queueOf(8, item("XYZ", sub("t1", "rec-1", domain.Tier1)))

	rep, err := eng.ProcessChunk(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Broadcasts.Failed != 0 || rep.Broadcasts.Succeeded != 1 {
		t.Fatalf("broadcasts = %+v", rep.Broadcasts)
	}
	last, _ := del.LastStatus("rec-1")
	if last.Status != domain.StatusComplete {
		t.Fatalf("status = %s, want complete", last.Status)
	}
}

// The chunk window honors the cursor and the chunk size.
func TestProcessChunk_Bounds(t *testing.T) {
	an := analysis.NewMockAnalyzer()
	del := delivery.NewMockDelivery()
	eng := newTestEngine(an, del)

	items := make([]domain.QueueItem, 5)
	for i := range items {
		ticker := string(rune('A' + i))
		items[i] = item(ticker, sub("t1", "rec-"+ticker, domain.Tier1))
	}

	q := queueOf(2, items...)
	q.Processed = 0
	rep, err := eng.ProcessChunk(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Attempted != 2 {
		t.Fatalf("attempted = %d, want 2", rep.Attempted)
	}
	if an.Calls("A") != 1 || an.Calls("B") != 1 || an.Calls("C") != 0 {
		t.Fatal("only the first chunk's tickers should run")
	}

	q.Processed = 4
	rep, err = eng.ProcessChunk(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Attempted != 1 {
		t.Fatalf("final partial chunk attempted = %d, want 1", rep.Attempted)
	}
	if an.Calls("E") != 1 {
		t.Fatal("final item must run")
	}
}

// Cancellation mid-chunk stops the walk; completed tickers stay counted.
func TestProcessChunk_CancelledBetweenTickers(t *testing.T) {
	an := analysis.NewMockAnalyzer()
	del := delivery.NewMockDelivery()

	rep := report.NewReporter(del, nil, 2000, time.Second, zap.NewNop())
	eng := engine.New(an, del, rep, engine.Config{
		MaxAnalysisAttempts: 1,
		DeliveryAttempts:    1,
		TickerDelay:         200 * time.Millisecond, // forces a pace wait before the 2nd ticker
	}, zap.NewNop(), engine.Hooks{})

	q := queueOf(8,
		item("A", sub("t1", "rec-A", domain.Tier1)),
		item("B", sub("t1", "rec-B", domain.Tier1)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	chunkRep, err := eng.ProcessChunk(ctx, q)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if chunkRep.Attempted != 1 {
		t.Fatalf("attempted = %d, want 1 (second ticker never started)", chunkRep.Attempted)
	}
}

// Dry run counts work without touching collaborators.
func TestProcessChunk_DryRun(t *testing.T) {
	an := analysis.NewMockAnalyzer()
	del := delivery.NewMockDelivery()

	rep := report.NewReporter(del, nil, 2000, time.Second, zap.NewNop())
	eng := engine.New(an, del, rep, engine.Config{
		MaxAnalysisAttempts: 3,
		DeliveryAttempts:    2,
		DryRun:              true,
	}, zap.NewNop(), engine.Hooks{})

	q := queueOf(8, item("XYZ",
		sub("t1", "rec-1", domain.Tier1),
		sub("t2", "rec-2", domain.Tier2),
	))

	chunkRep, err := eng.ProcessChunk(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if an.Calls("XYZ") != 0 {
		t.Fatal("dry run must not call the analyzer")
	}
	if chunkRep.Analyzed != 1 || chunkRep.Broadcasts.Succeeded != 2 {
		t.Fatalf("report = %+v", chunkRep)
	}
	if _, ok := del.LastStatus("rec-1"); ok {
		t.Fatal("dry run must not write to delivery targets")
	}
}
