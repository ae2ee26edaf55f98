// Package finetune queues training jobs on the downstream fine-tuning
// service once a run's blocks are exported.
package finetune

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type Client struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewClient(url string, logger *slog.Logger) *Client {
	return &Client{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// QueueTraining asks the fine-tuning service to start training on the
// exported run.
func (c *Client) QueueTraining(ctx context.Context, runID uuid.UUID) error {
	body, err := json.Marshal(map[string]string{"run_id": runID.String()})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("queue training: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("queue training: status %d: %s", resp.StatusCode, respBody)
	}

	c.logger.Info("fine-tuning job queued", "run_id", runID)
	return nil
}
