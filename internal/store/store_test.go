package store_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shalom-ormsby/sagestocks/internal/domain"
	"github.com/shalom-ormsby/sagestocks/internal/store"
)

func sampleQueue(cycleID string, total int) *domain.StoredQueue {
	items := make([]domain.QueueItem, total)
	now := time.Date(2025, 3, 14, 6, 0, 0, 0, time.UTC)
	for i := range items {
		items[i] = domain.QueueItem{
			Ticker:   string(rune('A' + i)),
			Priority: domain.Tier1,
			Subscribers: []domain.Subscriber{{
				TenantID: "t1",
				Tier:     domain.Tier1,
				Target:   domain.TargetHandle{Credential: "c", PrimaryID: "p", ArchiveID: "a"},
				RecordID: "r1",
			}},
			CreatedAt: now,
		}
	}
	return &domain.StoredQueue{
		CycleID:     cycleID,
		Items:       items,
		Total:       total,
		ChunkSize:   8,
		CreatedAt:   now,
		LastChunkAt: now,
	}
}

func TestMemoryStore_SaveLoadRoundTrip(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	q := sampleQueue("2025-03-14", 3)
	if err := ms.Save(ctx, q); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := ms.Load(ctx, "2025-03-14")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got.Items, q.Items) {
		t.Fatal("loaded items differ from saved items")
	}
	if got.Total != q.Total || got.Processed != q.Processed {
		t.Fatalf("counters differ: got total=%d processed=%d", got.Total, got.Processed)
	}
}

func TestMemoryStore_LoadAbsent(t *testing.T) {
	ms := store.NewMemoryStore()
	_, err := ms.Load(context.Background(), "2025-01-01")
	if !errors.Is(err, domain.ErrNoQueue) {
		t.Fatalf("expected ErrNoQueue, got %v", err)
	}
}

func TestMemoryStore_AdvanceIsIdempotentAndMonotonic(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	_ = ms.Save(ctx, sampleQueue("2025-03-14", 10))

	if err := ms.Advance(ctx, "2025-03-14", 5); err != nil {
		t.Fatalf("advance: %v", err)
	}
	// Repeating the same count changes nothing.
	if err := ms.Advance(ctx, "2025-03-14", 5); err != nil {
		t.Fatalf("repeat advance: %v", err)
	}
	q, _ := ms.Load(ctx, "2025-03-14")
	if q.Processed != 5 {
		t.Fatalf("processed = %d, want 5", q.Processed)
	}

	// The cursor never rewinds.
	err := ms.Advance(ctx, "2025-03-14", 3)
	if !errors.Is(err, domain.ErrCursorRewind) {
		t.Fatalf("expected ErrCursorRewind, got %v", err)
	}
	q, _ = ms.Load(ctx, "2025-03-14")
	if q.Processed != 5 {
		t.Fatalf("processed after rejected rewind = %d, want 5", q.Processed)
	}
}

func TestMemoryStore_AdvanceUpdatesLastChunkAt(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	q := sampleQueue("2025-03-14", 4)
	_ = ms.Save(ctx, q)

	if err := ms.Advance(ctx, "2025-03-14", 2); err != nil {
		t.Fatalf("advance: %v", err)
	}
	got, _ := ms.Load(ctx, "2025-03-14")
	if !got.LastChunkAt.After(q.LastChunkAt) {
		t.Fatal("expected LastChunkAt to move forward on advance")
	}
}

func TestMemoryStore_Remove(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	_ = ms.Save(ctx, sampleQueue("2025-03-14", 2))

	if err := ms.Remove(ctx, "2025-03-14"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := ms.Load(ctx, "2025-03-14"); !errors.Is(err, domain.ErrNoQueue) {
		t.Fatalf("expected ErrNoQueue after remove, got %v", err)
	}
	// Removing an absent queue is not an error.
	if err := ms.Remove(ctx, "2025-03-14"); err != nil {
		t.Fatalf("repeat remove: %v", err)
	}
}

func TestMemoryStore_SaveReplacesExistingQueue(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	_ = ms.Save(ctx, sampleQueue("2025-03-14", 2))
	_ = ms.Save(ctx, sampleQueue("2025-03-14", 7))

	q, err := ms.Load(ctx, "2025-03-14")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// Last writer wins on creation.
	if q.Total != 7 {
		t.Fatalf("total = %d, want 7", q.Total)
	}
}

func TestMemoryStore_ErrorOverrides(t *testing.T) {
	ms := store.NewMemoryStore()
	boom := errors.New("backend down")
	ms.LoadErr = boom

	if _, err := ms.Load(context.Background(), "x"); !errors.Is(err, boom) {
		t.Fatalf("expected override error, got %v", err)
	}
}
