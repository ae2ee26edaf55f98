// Package events publishes run lifecycle events over NATS so the dashboard
// and the fine-tuning side can follow processing progress.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/renhwa-labs/chatprep/internal/stats"
)

// Subjects for run lifecycle events.
const (
	SubjectRunStarted   = "chatprep.run.started"
	SubjectRunCompleted = "chatprep.run.completed"
	SubjectRunFailed    = "chatprep.run.failed"
)

// RunEvent is the payload for all run lifecycle subjects.
type RunEvent struct {
	RunID     uuid.UUID       `json:"run_id"`
	Timestamp string          `json:"timestamp"`
	Stats     *stats.RunStats `json:"stats,omitempty"`
	Error     string          `json:"error,omitempty"`
}

type Publisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// Connect dials NATS with retry. A nil Publisher is safe to use: every
// method is a no-op, so event publishing stays optional.
func Connect(url, token string, logger *slog.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Publisher{conn: nc, logger: logger}, nil
}

// RunStarted announces a new run.
func (p *Publisher) RunStarted(runID uuid.UUID) {
	p.publish(SubjectRunStarted, RunEvent{RunID: runID, Timestamp: now()})
}

// RunCompleted announces a finished run with its stats.
func (p *Publisher) RunCompleted(runID uuid.UUID, st stats.RunStats) {
	p.publish(SubjectRunCompleted, RunEvent{RunID: runID, Timestamp: now(), Stats: &st})
}

// RunFailed announces a failed run.
func (p *Publisher) RunFailed(runID uuid.UUID, cause error) {
	ev := RunEvent{RunID: runID, Timestamp: now()}
	if cause != nil {
		ev.Error = cause.Error()
	}
	p.publish(SubjectRunFailed, ev)
}

func (p *Publisher) publish(subject string, ev RunEvent) {
	if p == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("failed to marshal event", "subject", subject, "error", err)
		return
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.conn.Close()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
