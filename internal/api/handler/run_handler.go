package handler

import (
	"context"
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/shalom-ormsby/sagestocks/internal/api/middleware"
	"github.com/shalom-ormsby/sagestocks/internal/domain"
)

// Runner executes one scheduler invocation.
type Runner interface {
	Run(ctx context.Context) (domain.RunSummary, error)
}

// RunHandler exposes the timer-trigger endpoint. The external
// scheduler (or the in-process cron) authenticates with a shared
// secret header; anything else is rejected before touching the store.
type RunHandler struct {
	runner Runner
	token  string
	logger *zap.Logger

	// onSummary lets main feed run results into the metrics without
	// the handler importing prometheus. May be nil.
	onSummary func(domain.RunSummary)
}

func NewRunHandler(runner Runner, token string, onSummary func(domain.RunSummary), logger *zap.Logger) *RunHandler {
	if onSummary == nil {
		onSummary = func(domain.RunSummary) {}
	}
	return &RunHandler{runner: runner, token: token, logger: logger, onSummary: onSummary}
}

// Run handles POST /api/v1/cycle/run
//
// @Summary  Process one chunk of today's work queue
// @Tags     cycle
// @Produce  json
// @Param    X-Trigger-Token  header    string  true  "Shared trigger secret"
// @Success  200  {object}  domain.RunSummary
// @Failure  401  {object}  map[string]string
// @Failure  500  {object}  map[string]string
// @Router   /api/v1/cycle/run [post]
func (h *RunHandler) Run(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get("X-Trigger-Token")
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
		mapError(w, domain.ErrUnauthorized)
		return
	}

	summary, err := h.runner.Run(r.Context())
	if err != nil {
		h.logger.Error("invocation failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err))
		mapError(w, err)
		return
	}

	h.onSummary(summary)
	respondJSON(w, http.StatusOK, summary)
}
