package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/ajoudaki/scheduler/internal/metrics"
	"github.com/ajoudaki/scheduler/internal/output"
	"github.com/ajoudaki/scheduler/internal/scheduler"
)

// CancelRunner is the subset of supervisor.Dispatcher the job handler needs
// to cancel a running job's process group, narrowed to an interface so
// handler tests don't need a real process supervisor.
type CancelRunner interface {
	CancelRunning(jobID string) error
}

// JobHandler serves the /jobs routes of spec.md §6.
type JobHandler struct {
	BaseHandler
	engine   *scheduler.Engine
	runner   CancelRunner
	outStore *output.Store
	logger   *logrus.Logger
}

func NewJobHandler(engine *scheduler.Engine, runner CancelRunner, outStore *output.Store, logger *logrus.Logger) *JobHandler {
	return &JobHandler{engine: engine, runner: runner, outStore: outStore, logger: logger}
}

// jobResponse embeds the Job record verbatim and adds recent_output, only
// populated on the single-job GET endpoint per spec.md §6.
type jobResponse struct {
	*scheduler.Job
	RecentOutput string `json:"recent_output,omitempty"`
}

// CreateJob handles POST /jobs.
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var cfg scheduler.JobConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.respondWithJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_input", Message: "malformed request body"})
		return
	}

	job, err := h.engine.SubmitJob(cfg)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	metrics.RecordJobSubmitted()
	h.respondWithJSON(w, http.StatusOK, map[string]string{"job_id": job.JobID})
}

// ListJobs handles GET /jobs.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.engine.ListJobs()
	h.respondWithJSON(w, http.StatusOK, map[string]map[string]*scheduler.Job{"jobs": jobs})
}

// GetJob handles GET /jobs/{id}.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := jobIDFromContext(r)
	job, err := h.engine.GetJob(jobID)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	resp := jobResponse{Job: job}
	if job.OutputFile != "" {
		resp.RecentOutput = output.TailStdout(job.OutputFile)
	}
	h.respondWithJSON(w, http.StatusOK, map[string]jobResponse{"job": resp})
}

// CancelJob handles POST /jobs/{id}/cancel.
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := jobIDFromContext(r)

	if err := h.engine.CancelQueued(jobID); err == nil {
		h.respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	} else if err != scheduler.ErrNotCancelable {
		h.respondWithError(w, err)
		return
	}

	// Not cancelable as queued; it may be running.
	if err := h.runner.CancelRunning(jobID); err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}
