package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/renhwa-labs/chatprep/internal/source"
	"github.com/renhwa-labs/chatprep/internal/store"
)

const maxUploadBytes = 256 << 20

// createRun accepts a chat export in the request body and kicks off
// processing in the background. The caller polls GET /api/v1/runs/{id}
// for the outcome.
func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty request body")
		return
	}

	runID := uuid.New()
	if s.store != nil {
		if err := s.store.CreateRun(r.Context(), runID); err != nil {
			s.logger.Error("Failed to create run record", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create run")
			return
		}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()

		src := &source.Bytes{Data: body, Logger: s.logger}
		if _, err := s.runner.Run(ctx, runID, src); err != nil {
			s.logger.Error("Run failed", "run_id", runID, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID.String(),
		"status": store.StatusPending,
	})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run store not configured")
		return
	}

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("Failed to fetch run", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch run")
		return
	}

	writeJSON(w, http.StatusOK, run)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run store not configured")
		return
	}

	runs, err := s.store.ListRuns(r.Context(), 50)
	if err != nil {
		s.logger.Error("Failed to list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
