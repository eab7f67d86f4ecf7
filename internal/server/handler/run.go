package handler

import (
	"net/http"

	"github.com/anthias-labs/arena/internal/domain"
)

// RunSource exposes the progress of the current run.
type RunSource interface {
	RunID() string
	State() string
	Records() []domain.StepRecord
}

// RunHandler serves the status and logged steps of the current run.
type RunHandler struct {
	src      RunSource
	strategy string
}

func NewRunHandler(src RunSource, strategy string) *RunHandler {
	return &RunHandler{src: src, strategy: strategy}
}

// GetRun responds with the run id, state and number of logged steps.
// GET /api/run
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":        h.src.RunID(),
		"state":         h.src.State(),
		"strategy_name": h.strategy,
		"steps_logged":  len(h.src.Records()),
	})
}

// ListSteps responds with a window of the logged steps.
// GET /api/run/steps?from=0&limit=500
func (h *RunHandler) ListSteps(w http.ResponseWriter, r *http.Request) {
	win, err := parseWindow(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs := h.src.Records()
	from, end, ok := win.bounds(len(recs))
	if !ok {
		writeError(w, http.StatusNotFound, "no steps from that index")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id": h.src.RunID(),
		"from":   from,
		"steps":  recs[from:end],
	})
}
