package analysis

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/shalom-ormsby/sagestocks/internal/domain"
)

// MockAnalyzer is a scriptable in-memory Analyzer for unit tests.
// Errors are consumed per ticker in FIFO order, so a test can script
// "fail twice, then succeed".
type MockAnalyzer struct {
	mu      sync.Mutex
	scripts map[string][]error
	calls   map[string]int

	// Result returned on success; a zero value gets sane defaults.
	Result *domain.AnalysisResult

	SnapshotPayload json.RawMessage
	SnapshotErr     error
}

func NewMockAnalyzer() *MockAnalyzer {
	return &MockAnalyzer{
		scripts: make(map[string][]error),
		calls:   make(map[string]int),
	}
}

// ScriptErrors queues errors to return for a ticker before succeeding.
func (m *MockAnalyzer) ScriptErrors(ticker string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[ticker] = append(m.scripts[ticker], errs...)
}

// Calls reports how many times Analyze ran for a ticker.
func (m *MockAnalyzer) Calls(ticker string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[ticker]
}

func (m *MockAnalyzer) Analyze(_ context.Context, ticker, _ string, _ json.RawMessage) (*domain.AnalysisResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[ticker]++

	if queued := m.scripts[ticker]; len(queued) > 0 {
		err := queued[0]
		m.scripts[ticker] = queued[1:]
		return nil, err
	}

	if m.Result != nil {
		clone := *m.Result
		clone.Ticker = ticker
		return &clone, nil
	}
	return &domain.AnalysisResult{
		Ticker:      ticker,
		Summary:     "steady as she goes",
		Rating:      "hold",
		Confidence:  0.7,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func (m *MockAnalyzer) Snapshot(_ context.Context) (json.RawMessage, error) {
	if m.SnapshotErr != nil {
		return nil, m.SnapshotErr
	}
	if m.SnapshotPayload != nil {
		return m.SnapshotPayload, nil
	}
	return json.RawMessage(`{"market":"open"}`), nil
}

var _ Analyzer = (*MockAnalyzer)(nil)
