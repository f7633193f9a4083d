package handler

import (
	"errors"
	"net/http"

	"github.com/shalom-ormsby/sagestocks/internal/domain"
)

// MetricsHandler serves a human-readable JSON queue snapshot.
// Raw Prometheus metrics (counters, histograms) are available at
// /metrics via promhttp and are separate from this endpoint.
type MetricsHandler struct {
	status QueueStatus
}

func NewMetricsHandler(status QueueStatus) *MetricsHandler {
	return &MetricsHandler{status: status}
}

// GetMetrics handles GET /api/v1/metrics
//
// @Summary  Real-time queue depth snapshot
// @Tags     metrics
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/metrics [get]
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	q, err := h.status.Status(r.Context())
	if errors.Is(err, domain.ErrNoQueue) {
		respondJSON(w, http.StatusOK, map[string]any{
			"queue_depth": map[string]int{
				"outstanding": 0,
				"processed":   0,
				"total":       0,
			},
		})
		return
	}
	if err != nil {
		mapError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"cycle_id": q.CycleID,
		"queue_depth": map[string]int{
			"outstanding": q.Total - q.Processed,
			"processed":   q.Processed,
			"total":       q.Total,
		},
		"chunk": map[string]int{
			"current": q.CurrentChunk(),
			"of":      q.TotalChunks(),
		},
	})
}
