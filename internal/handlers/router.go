package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/ajoudaki/scheduler/internal/metrics"
	"github.com/ajoudaki/scheduler/internal/middleware"
	"github.com/ajoudaki/scheduler/internal/output"
	"github.com/ajoudaki/scheduler/internal/scheduler"
)

// NewRouter builds the daemon's HTTP control surface per spec.md §6,
// grounded on the teacher's createAppMux/NewRouter (stdlib ServeMux plus
// rs/cors), generalized from the teacher's many resources to this daemon's
// two: jobs and gpus.
func NewRouter(engine *scheduler.Engine, runner CancelRunner, outStore *output.Store, logger *logrus.Logger) http.Handler {
	mux := http.NewServeMux()

	jobHandler := NewJobHandler(engine, runner, outStore, logger)
	gpuHandler := NewGPUHandler(engine)

	mux.HandleFunc("/jobs", instrument("/jobs", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			jobHandler.ListJobs(w, r)
		case http.MethodPost:
			jobHandler.CreateJob(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	mux.HandleFunc("/jobs/", instrument("/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/jobs/")
		if path == "" {
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}

		if strings.HasSuffix(path, "/cancel") {
			jobID := strings.TrimSuffix(path, "/cancel")
			r = r.WithContext(setJobIDContext(r.Context(), jobID))
			if r.Method != http.MethodPost {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			jobHandler.CancelJob(w, r)
			return
		}

		r = r.WithContext(setJobIDContext(r.Context(), path))
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		jobHandler.GetJob(w, r)
	}))

	mux.HandleFunc("/gpus", instrument("/gpus", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		gpuHandler.ListGPUs(w, r)
	}))

	mux.Handle("/metrics", metrics.Handler())

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})

	return corsHandler.Handler(middleware.RequestID(mux))
}

// instrument wraps a handler so every request is recorded to the API
// request counters and duration histogram declared in internal/metrics.
func instrument(routeLabel string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		metrics.RecordAPIRequest(r.Method, routeLabel, statusLabel(rec.status), time.Since(start).Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}
