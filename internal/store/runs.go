package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/renhwa-labs/chatprep/internal/stats"
)

// Run statuses as persisted.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrRunNotFound is returned when a run id has no row.
var ErrRunNotFound = errors.New("run not found")

// Run is one processing run's persisted record.
type Run struct {
	ID         uuid.UUID       `json:"id"`
	Status     string          `json:"status"`
	Error      string          `json:"error,omitempty"`
	Stats      *stats.RunStats `json:"stats,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// CreateRun inserts a new pending run row.
func (s *Store) CreateRun(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO runs (id, status, created_at)
		VALUES ($1, $2, now())`,
		id, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// MarkRunning flips a run to running.
func (s *Store) MarkRunning(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE runs SET status = $2 WHERE id = $1`, id, StatusRunning)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// MarkCompleted records a successful run and its stats.
func (s *Store) MarkCompleted(ctx context.Context, id uuid.UUID, st stats.RunStats) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE runs SET status = $2, stats = $3, finished_at = now() WHERE id = $1`,
		id, StatusCompleted, payload,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// MarkFailed records a failed run and its error text.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE runs SET status = $2, error = $3, finished_at = now() WHERE id = $1`,
		id, StatusFailed, msg,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// GetRun fetches one run by id.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	var (
		r        Run
		errText  *string
		statsRaw []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, status, error, stats, created_at, finished_at
		FROM runs WHERE id = $1`, id,
	).Scan(&r.ID, &r.Status, &errText, &statsRaw, &r.CreatedAt, &r.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select run: %w", err)
	}

	if errText != nil {
		r.Error = *errText
	}
	if len(statsRaw) > 0 {
		var st stats.RunStats
		if err := json.Unmarshal(statsRaw, &st); err != nil {
			return nil, fmt.Errorf("decode stats: %w", err)
		}
		r.Stats = &st
	}
	return &r, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, status, error, stats, created_at, finished_at
		FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r        Run
			errText  *string
			statsRaw []byte
		)
		if err := rows.Scan(&r.ID, &r.Status, &errText, &statsRaw, &r.CreatedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if errText != nil {
			r.Error = *errText
		}
		if len(statsRaw) > 0 {
			var st stats.RunStats
			if err := json.Unmarshal(statsRaw, &st); err == nil {
				r.Stats = &st
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
