// Package api exposes the processing trigger and run status over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/renhwa-labs/chatprep/internal/pipeline"
	"github.com/renhwa-labs/chatprep/internal/store"
)

type Server struct {
	router *chi.Mux
	port   int
	runner *pipeline.Runner
	store  *store.Store
	logger *slog.Logger
}

func NewServer(port int, runner *pipeline.Runner, db *store.Store, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		runner: runner,
		store:  db,
		logger: logger,
	}

	router.Get("/health", s.health)
	router.Handle("/metrics", promhttp.Handler())
	router.Post("/api/v1/runs", s.createRun)
	router.Get("/api/v1/runs", s.listRuns)
	router.Get("/api/v1/runs/{id}", s.getRun)

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
