package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/shalom-ormsby/sagestocks/internal/domain"
)

// QueueStatus reads the current cycle's queue.
type QueueStatus interface {
	Status(ctx context.Context) (*domain.StoredQueue, error)
}

// QueueHandler serves the operator-facing queue snapshot.
type QueueHandler struct {
	status QueueStatus
}

func NewQueueHandler(status QueueStatus) *QueueHandler {
	return &QueueHandler{status: status}
}

// Get handles GET /api/v1/cycle
//
// @Summary  Current cycle queue snapshot
// @Tags     cycle
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/cycle [get]
func (h *QueueHandler) Get(w http.ResponseWriter, r *http.Request) {
	q, err := h.status.Status(r.Context())
	if errors.Is(err, domain.ErrNoQueue) {
		respondJSON(w, http.StatusOK, map[string]any{"present": false})
		return
	}
	if err != nil {
		mapError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"present":       true,
		"cycle_id":      q.CycleID,
		"total":         q.Total,
		"processed":     q.Processed,
		"chunk_size":    q.ChunkSize,
		"total_chunks":  q.TotalChunks(),
		"created_at":    q.CreatedAt,
		"last_chunk_at": q.LastChunkAt,
	})
}
