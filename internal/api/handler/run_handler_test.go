package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/shalom-ormsby/sagestocks/internal/api/handler"
	"github.com/shalom-ormsby/sagestocks/internal/domain"
)

type stubRunner struct {
	summary domain.RunSummary
	err     error
	calls   int
}

func (s *stubRunner) Run(_ context.Context) (domain.RunSummary, error) {
	s.calls++
	return s.summary, s.err
}

type stubStatus struct {
	queue *domain.StoredQueue
	err   error
}

func (s *stubStatus) Status(_ context.Context) (*domain.StoredQueue, error) {
	return s.queue, s.err
}

func TestRunHandler_RejectsBadToken(t *testing.T) {
	runner := &stubRunner{}
	h := handler.NewRunHandler(runner, "secret", nil, zap.NewNop())

	tests := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"wrong token", "not-the-secret"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/cycle/run", nil)
			if tc.token != "" {
				req.Header.Set("X-Trigger-Token", tc.token)
			}
			rec := httptest.NewRecorder()

			h.Run(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
	if runner.calls != 0 {
		t.Fatalf("runner invoked %d times on rejected requests", runner.calls)
	}
}

func TestRunHandler_ReturnsSummary(t *testing.T) {
	runner := &stubRunner{summary: domain.RunSummary{
		Mode:         "first_run",
		CycleID:      "2025-03-14",
		Chunk:        1,
		TotalChunks:  2,
		Processed:    8,
		TotalTickers: 15,
		Analyzed:     7,
		Failed:       1,
	}}

	var observed *domain.RunSummary
	h := handler.NewRunHandler(runner, "secret", func(s domain.RunSummary) {
		observed = &s
	}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cycle/run", nil)
	req.Header.Set("X-Trigger-Token", "secret")
	rec := httptest.NewRecorder()

	h.Run(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got domain.RunSummary
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.CycleID != "2025-03-14" || got.Processed != 8 || got.TotalTickers != 15 {
		t.Fatalf("summary = %+v", got)
	}
	if observed == nil || observed.Analyzed != 7 {
		t.Fatal("summary hook not invoked")
	}
}

func TestRunHandler_RunFailure(t *testing.T) {
	runner := &stubRunner{err: errors.New("store unreachable")}
	h := handler.NewRunHandler(runner, "secret", nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cycle/run", nil)
	req.Header.Set("X-Trigger-Token", "secret")
	rec := httptest.NewRecorder()

	h.Run(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestQueueHandler_AbsentQueue(t *testing.T) {
	h := handler.NewQueueHandler(&stubStatus{err: domain.ErrNoQueue})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cycle", nil)
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if present, _ := body["present"].(bool); present {
		t.Fatal("absent queue must report present=false")
	}
}

func TestMetricsHandler_AbsentQueue(t *testing.T) {
	h := handler.NewMetricsHandler(&stubStatus{err: domain.ErrNoQueue})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil)
	rec := httptest.NewRecorder()

	h.GetMetrics(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	depth, ok := body["queue_depth"].(map[string]any)
	if !ok {
		t.Fatalf("missing queue_depth in %v", body)
	}
	if depth["total"] != float64(0) || depth["outstanding"] != float64(0) {
		t.Fatalf("depth = %v, want all-zero", depth)
	}
}

func TestMetricsHandler_QueueDepth(t *testing.T) {
	h := handler.NewMetricsHandler(&stubStatus{queue: &domain.StoredQueue{
		CycleID:   "2025-03-14",
		Total:     15,
		Processed: 8,
		ChunkSize: 8,
	}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil)
	rec := httptest.NewRecorder()

	h.GetMetrics(rec, req)

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["cycle_id"] != "2025-03-14" {
		t.Fatalf("cycle_id = %v", body["cycle_id"])
	}
	depth, _ := body["queue_depth"].(map[string]any)
	if depth["outstanding"] != float64(7) || depth["processed"] != float64(8) || depth["total"] != float64(15) {
		t.Fatalf("depth = %v, want 7/8/15", depth)
	}
	chunk, _ := body["chunk"].(map[string]any)
	if chunk["current"] != float64(2) || chunk["of"] != float64(2) {
		t.Fatalf("chunk = %v, want 2 of 2", chunk)
	}
}

func TestHealthHandler(t *testing.T) {
	h := handler.NewHealthHandler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestQueueHandler_PresentQueue(t *testing.T) {
	h := handler.NewQueueHandler(&stubStatus{queue: &domain.StoredQueue{
		CycleID:   "2025-03-14",
		Total:     15,
		Processed: 8,
		ChunkSize: 8,
	}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cycle", nil)
	rec := httptest.NewRecorder()

	h.Get(rec, req)

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if present, _ := body["present"].(bool); !present {
		t.Fatal("expected present=true")
	}
	if body["cycle_id"] != "2025-03-14" {
		t.Fatalf("cycle_id = %v", body["cycle_id"])
	}
	if body["total_chunks"] != float64(2) {
		t.Fatalf("total_chunks = %v, want 2", body["total_chunks"])
	}
}
