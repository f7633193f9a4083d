package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shalom-ormsby/sagestocks/internal/domain"
)

// ErrWriteFailed is the simulated failure returned by the mock.
var ErrWriteFailed = errors.New("simulated delivery failure")

// StatusWrite captures one WriteStatus call for assertions.
type StatusWrite struct {
	RecordID string
	Status   domain.Status
	Message  string
	At       time.Time
}

// ArchiveWrite captures one successful WriteArchive call.
type ArchiveWrite struct {
	ArchiveID      string // tenant's archive destination
	SourceRecordID string
	ArchiveRecord  string
}

// MockDelivery is a hand-written, in-memory Delivery for unit tests.
// Failure scripting: FailPrimary/FailArchive/FailStatus make the next
// n calls for a record fail (n < 0 = fail forever).
type MockDelivery struct {
	mu sync.Mutex

	primaryFail map[string]int
	archiveFail map[string]int
	statusFail  map[string]int

	statusWrites  map[string][]StatusWrite
	primaryWrites map[string]int
	archives      []ArchiveWrite

	nextArchiveID int
}

func NewMockDelivery() *MockDelivery {
	return &MockDelivery{
		primaryFail:   make(map[string]int),
		archiveFail:   make(map[string]int),
		statusFail:    make(map[string]int),
		statusWrites:  make(map[string][]StatusWrite),
		primaryWrites: make(map[string]int),
	}
}

func (m *MockDelivery) FailPrimary(recordID string, times int) { m.setFail(m.primaryFail, recordID, times) }
func (m *MockDelivery) FailArchive(recordID string, times int) { m.setFail(m.archiveFail, recordID, times) }
func (m *MockDelivery) FailStatus(recordID string, times int)  { m.setFail(m.statusFail, recordID, times) }

func (m *MockDelivery) setFail(table map[string]int, recordID string, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table[recordID] = times
}

// consumeFailure decrements the scripted failure budget for recordID
// and reports whether this call should fail.
func consumeFailure(table map[string]int, recordID string) bool {
	n, ok := table[recordID]
	if !ok || n == 0 {
		return false
	}
	if n > 0 {
		table[recordID] = n - 1
	}
	return true
}

func (m *MockDelivery) WritePrimary(_ context.Context, _ domain.TargetHandle, recordID string, _ *domain.AnalysisResult) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if consumeFailure(m.primaryFail, recordID) {
		return "", fmt.Errorf("primary %s: %w", recordID, ErrWriteFailed)
	}
	m.primaryWrites[recordID]++
	m.statusWrites[recordID] = append(m.statusWrites[recordID], StatusWrite{
		RecordID: recordID,
		Status:   domain.StatusComplete,
		At:       time.Now().UTC(),
	})
	return recordID, nil
}

func (m *MockDelivery) WriteArchive(_ context.Context, target domain.TargetHandle, recordID string, _ *domain.AnalysisResult, _ json.RawMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if consumeFailure(m.archiveFail, recordID) {
		return "", fmt.Errorf("archive for %s: %w", recordID, ErrWriteFailed)
	}
	m.nextArchiveID++
	id := fmt.Sprintf("arch-%d", m.nextArchiveID)
	m.archives = append(m.archives, ArchiveWrite{
		ArchiveID:      target.ArchiveID,
		SourceRecordID: recordID,
		ArchiveRecord:  id,
	})
	return id, nil
}

func (m *MockDelivery) WriteStatus(_ context.Context, _ domain.TargetHandle, recordID string, status domain.Status, message string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if consumeFailure(m.statusFail, recordID) {
		return fmt.Errorf("status on %s: %w", recordID, ErrWriteFailed)
	}
	m.statusWrites[recordID] = append(m.statusWrites[recordID], StatusWrite{
		RecordID: recordID,
		Status:   status,
		Message:  message,
		At:       at,
	})
	return nil
}

// LastStatus returns the most recent status written to a record, or
// empty if none was written.
func (m *MockDelivery) LastStatus(recordID string) (StatusWrite, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	writes := m.statusWrites[recordID]
	if len(writes) == 0 {
		return StatusWrite{}, false
	}
	return writes[len(writes)-1], true
}

// StatusWrites returns every status write observed for a record.
func (m *MockDelivery) StatusWrites(recordID string) []StatusWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StatusWrite, len(m.statusWrites[recordID]))
	copy(out, m.statusWrites[recordID])
	return out
}

// PrimaryWrites returns how many successful primary writes hit a record.
func (m *MockDelivery) PrimaryWrites(recordID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.primaryWrites[recordID]
}

// Archives returns every successful archive write.
func (m *MockDelivery) Archives() []ArchiveWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ArchiveWrite, len(m.archives))
	copy(out, m.archives)
	return out
}

var _ Delivery = (*MockDelivery)(nil)
