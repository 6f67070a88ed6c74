package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"evrptw/internal/apperr"
	"evrptw/internal/buildinfo"
	"evrptw/internal/model"
	"evrptw/internal/opt"
)

// SolveRequest is the body of POST /v1/solve. Config is decoded over the
// server's search defaults, so it only needs the keys being changed.
type SolveRequest struct {
	Instance model.InstanceSpec `json:"instance"`
	Seed     *int64             `json:"seed,omitempty"`
	Config   json.RawMessage    `json:"config,omitempty"`
}

// SolveHandler handles POST /v1/solve. The search runs in the background; the
// response carries the run id to poll or stream.
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeError(w, r, "Too many runs", apperr.New(apperr.CodeRateLimited, "solve rate limit exceeded"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.Cfg.API.MaxBodyBytes)
	var req SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	cfg, err := s.searchConfig(req.Config)
	if err != nil {
		writeError(w, r, "Invalid search config", err)
		return
	}
	if err := validateSolveRequest(&req); err != nil {
		writeError(w, r, "Invalid instance", err)
		return
	}
	in, err := req.Instance.Build()
	if err != nil {
		writeError(w, r, "Invalid instance", err)
		return
	}

	seed := s.Cfg.Search.Seed
	if req.Seed != nil {
		seed = *req.Seed
	}
	run := model.Run{
		ID:        uuid.NewString(),
		Instance:  in.Name,
		Seed:      seed,
		Status:    model.RunQueued,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Store.CreateRun(r.Context(), run); err != nil {
		writeError(w, r, "Create run failed", err)
		return
	}
	s.startRun(run, in, cfg)

	w.Header().Set("Location", "/v1/runs/"+run.ID)
	writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) searchConfig(raw json.RawMessage) (opt.Config, error) {
	cfg := s.Cfg.Search.Config
	if len(bytes.TrimSpace(raw)) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return opt.Config{}, apperr.Wrap(err, apperr.CodeInvalidConfig, "decode search config")
		}
	}
	if err := cfg.Validate(); err != nil {
		return opt.Config{}, err
	}
	return cfg, nil
}

// RunsHandler handles GET /v1/runs?status=&cursor=&limit=
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be a positive integer", r.URL.Path)
			return
		}
		limit = n
	}
	items, next, err := s.Store.ListRuns(r.Context(), model.RunStatus(q.Get("status")), q.Get("cursor"), limit)
	if err != nil {
		writeError(w, r, "List runs failed", err)
		return
	}
	// summaries only; the full report is on /v1/runs/{id}
	for i := range items {
		items[i].Report = nil
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// RunHandler handles GET /v1/runs/{id}
func (s *Server) RunHandler(w http.ResponseWriter, r *http.Request) {
	run, err := s.Store.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, "Get run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// CancelRunHandler handles DELETE /v1/runs/{id}; the run keeps its best solution.
func (s *Server) CancelRunHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.Store.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, r, "Cancel run failed", err)
		return
	}
	if run.Status.Done() || !s.cancelRun(id) {
		writeProblem(w, http.StatusConflict, "Run not active", "run "+id+" is "+string(run.Status), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "canceling": true})
}

// RunMetricsHandler handles GET /v1/runs/{id}/metrics: live progress while the
// run executes, the stored report and weight trajectory afterwards.
func (s *Server) RunMetricsHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.Store.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, r, "Get run failed", err)
		return
	}
	out := map[string]any{"id": id, "status": run.Status}
	if p, ok := opt.GetProgress(id); ok {
		out["progress"] = p
	}
	if run.Status.Done() {
		snaps, err := s.Store.ListSnapshots(r.Context(), id)
		if err != nil {
			writeError(w, r, "List snapshots failed", err)
			return
		}
		out["snapshots"] = snaps
		if run.Report != nil {
			out["iterations"] = run.Report.Iterations
			out["bestCost"] = run.Report.TotalCost
			out["stopReason"] = run.Report.StopReason
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// OptimizerConfigHandler returns the search defaults requests are decoded over.
func (s *Server) OptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"defaults": s.Cfg.Search.Config,
		"seed":     s.Cfg.Search.Seed,
		"policies": []opt.PolicyKind{opt.PolicyFree, opt.PolicyFixedPartial, opt.PolicyDegradation},
	})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler reports ready once the store answers.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Ping(r.Context()); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Store unavailable", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.Info())
}
