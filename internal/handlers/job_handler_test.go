package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajoudaki/scheduler/internal/output"
	"github.com/ajoudaki/scheduler/internal/scheduler"
)

type fakeCancelRunner struct {
	err error
}

func (f *fakeCancelRunner) CancelRunning(jobID string) error { return f.err }

func newTestRouter(t *testing.T, cancelErr error) (http.Handler, *scheduler.Engine) {
	t.Helper()
	engine := scheduler.New(nil, nil)
	store, err := output.NewStore(t.TempDir())
	require.NoError(t, err)
	router := NewRouter(engine, &fakeCancelRunner{err: cancelErr}, store, nil)
	return router, engine
}

func TestCreateJobSuccess(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	body, _ := json.Marshal(scheduler.JobConfig{Command: "echo hi"})
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job1", resp["job_id"])
}

func TestCreateJobInvalidBody(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJobNotFound(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/jobs/job99", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListJobsEmpty(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]map[string]*scheduler.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp["jobs"])
}

func TestCancelQueuedJobViaHTTP(t *testing.T) {
	router, engine := newTestRouter(t, nil)
	job, err := engine.SubmitJob(scheduler.JobConfig{Command: "echo hi"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/jobs/"+job.JobID+"/cancel", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	got, err := engine.GetJob(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, scheduler.StatusCancelled, got.Status)
}

func TestCancelUnknownJobViaHTTP(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/jobs/job99/cancel", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListGPUsEmpty(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/gpus", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string][]*scheduler.GPU
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp["gpus"])
}
