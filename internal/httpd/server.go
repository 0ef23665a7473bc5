// Package httpd exposes scheduling runs over a small versioned REST API.
package httpd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/joshharrison/qsched/internal/engine"
	"github.com/joshharrison/qsched/internal/model"
	"github.com/joshharrison/qsched/internal/report"
)

// Server owns the run store and the engine options each run is built with.
type Server struct {
	opts  engine.Options
	store *Store
}

// NewServer builds the root router with all versioned subrouters mounted
// under /api/{version}.
func NewServer(opts engine.Options) http.Handler {
	s := &Server{opts: opts, store: NewStore()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not_found","message":"Use a versioned path like /api/v1/..."}`))
	})

	r.Route("/api", func(api chi.Router) {
		api.Mount("/v1", s.routerV1())
	})
	return r
}

func (s *Server) routerV1() chi.Router {
	r := chi.NewRouter()
	r.Post("/runs", s.createRun)
	r.Get("/runs/{runId}", s.getRun)
	r.Get("/runs/{runId}/schedule", s.getSchedule)
	return r
}

// createRun handles POST /api/v1/runs. The instance is validated up front;
// solving happens in the background and the caller polls the run resource.
func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var in model.Instance
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if err := in.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	run := s.store.Create(&in)
	go s.solve(run.ID, &in)

	w.Header().Set("Location", fmt.Sprintf("/api/v1/runs/%s", run.ID))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(run)
}

// solve executes one run in the background and records the outcome.
func (s *Server) solve(id string, in *model.Instance) {
	s.store.SetStatus(id, RunRunning)

	e := engine.New(s.opts)
	result, err := e.Run(context.Background(), in)
	if err != nil && result == nil {
		s.store.Fail(id, err)
		return
	}
	s.store.Complete(id, result, err)
}

// getRun handles GET /api/v1/runs/{runId}.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.store.Get(chi.URLParam(r, "runId"))
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(run)
}

// getSchedule handles GET /api/v1/runs/{runId}/schedule: the full report for
// a finished run.
func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	run, ok := s.store.Get(chi.URLParam(r, "runId"))
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if run.Status == RunQueued || run.Status == RunRunning {
		http.Error(w, "run still in progress", http.StatusConflict)
		return
	}
	if run.Result == nil {
		http.Error(w, run.Error, http.StatusUnprocessableEntity)
		return
	}

	data, err := report.New(run.instance, run.Result).JSON()
	if err != nil {
		http.Error(w, fmt.Sprintf("render report: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write(data)
}
