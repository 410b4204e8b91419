// Package httpx provides the jobfeed HTTP surface: plain job reads and the live WebSocket feeds.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/target/jobfeed/internal/service"
)

// JobHandlers provides point-in-time reads of jobs and result pages.
type JobHandlers struct {
	Reader *service.JobReader
	Module string
	Logger *slog.Logger
}

// GetJob handles GET /jobs/{job_id}.
func (h *JobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	view, err := h.Reader.View(r.Context(), h.Module, r.PathValue("job_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// GetResults handles GET /jobs/{job_id}/results?page=N.
func (h *JobHandlers) GetResults(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_page",
			Err:     errors.New("page must be a positive integer"),
		})
		return
	}
	results, err := h.Reader.ResultsPage(r.Context(), h.Module, r.PathValue("job_id"), page)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, results)
}

func (h *JobHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	if h.Logger != nil {
		h.Logger.DebugContext(r.Context(), "job read failed", "path", r.URL.Path, "error", err)
	}
	writeServiceError(w, err)
}
