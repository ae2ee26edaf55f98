//go:build integration

package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/renhwa-labs/chatprep/internal/stats"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestIntegration_RunLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	id := uuid.New()

	if err := s.CreateRun(ctx, id); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := s.MarkRunning(ctx, id); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}

	st := stats.RunStats{NumChats: 2, NumBlocks: 9, AvgTokensPerBlock: 321.5}
	if err := s.MarkCompleted(ctx, id, st); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	run, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != StatusCompleted {
		t.Errorf("status = %q, want %q", run.Status, StatusCompleted)
	}
	if run.Stats == nil || run.Stats.NumBlocks != 9 {
		t.Errorf("stats = %+v", run.Stats)
	}
	if run.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}
}

func TestIntegration_MarkFailed(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	id := uuid.New()

	if err := s.CreateRun(ctx, id); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := s.MarkFailed(ctx, id, errors.New("boom")); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	run, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != StatusFailed || run.Error != "boom" {
		t.Errorf("run = %+v", run)
	}
}

func TestIntegration_GetRunNotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetRun(context.Background(), uuid.New())
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}
