package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/floegence/research-agent/internal/jobs"
)

// Server exposes the job registry over HTTP. Research runs in the
// background; the API only submits jobs and reads their state.
type Server struct {
	log    *slog.Logger
	store  *jobs.Store
	runner *jobs.Runner
	start  time.Time
}

func NewServer(store *jobs.Store, runner *jobs.Runner, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{log: log, store: store, runner: runner, start: time.Now()}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/v1/research/jobs", s.createJob)
	r.Get("/v1/research/jobs", s.listJobs)
	r.Get("/v1/research/jobs/{job_id}", s.getJob)
	r.Get("/healthz", s.healthz)

	return r
}

type createJobRequest struct {
	Question string `json:"question"`
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "missing question")
		return
	}

	job, err := s.runner.Submit(r.Context(), req.Question)
	if err != nil {
		s.log.Warn("job submission failed", "error", err)
		writeError(w, http.StatusInternalServerError, "job submission failed")
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	list, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.log.Warn("job listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "job listing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": list})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(chi.URLParam(r, "job_id"))
	job, err := s.store.Get(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.log.Warn("job lookup failed", "job_id", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "job lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type healthzResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	Goroutines    int     `json:"goroutines"`
	MemoryRSSMB   float64 `json:"memory_rss_mb,omitempty"`
	CPUPercent    float64 `json:"cpu_percent,omitempty"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	resp := healthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.start).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
	}
	if p, err := process.NewProcessWithContext(r.Context(), int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfoWithContext(r.Context()); err == nil && mi != nil {
			resp.MemoryRSSMB = float64(mi.RSS) / (1024 * 1024)
		}
		if pct, err := p.CPUPercentWithContext(r.Context()); err == nil {
			resp.CPUPercent = pct
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
