// Package sink exports a finished run's artifacts: the raw chats as loaded,
// the processed per-chat blocks, and the train.jsonl training examples.
// Sinks are independent; zero, one, or both may be active.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/renhwa-labs/chatprep/internal/config"
	"github.com/renhwa-labs/chatprep/internal/stats"
)

// Run is everything a sink needs to export one processing run.
type Run struct {
	ID       uuid.UUID
	Raw      []json.RawMessage
	Chats    []ProcessedChat
	Stats    stats.RunStats
	Metadata map[string]string
}

type ProcessedChat struct {
	ContactName string           `json:"contact_name"`
	ChatType    string           `json:"chat_type"`
	NumBlocks   int              `json:"num_blocks"`
	Blocks      []ProcessedBlock `json:"blocks"`
}

type ProcessedBlock struct {
	Messages []ProcessedMessage `json:"messages"`
}

type ProcessedMessage struct {
	Timestamp string `json:"timestamp,omitempty"`
	Role      string `json:"role"`
	Content   string `json:"content"`
}

// Sink writes one run's artifacts to a destination.
type Sink interface {
	Name() string
	Export(ctx context.Context, run *Run) error
}

// FromConfig builds the active sink set from the output configuration.
func FromConfig(cfg config.Output, logger *slog.Logger) ([]Sink, error) {
	var sinks []Sink
	if cfg.HasMode("local") {
		sinks = append(sinks, &Local{Dir: cfg.LocalDir, Logger: logger})
	}
	if cfg.HasMode("s3") {
		s3, err := NewS3(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("sink: %w", err)
		}
		sinks = append(sinks, s3)
	}
	return sinks, nil
}

// BuildProcessedChats converts segmentation results into the export shape,
// dropping chats that produced no blocks.
func BuildProcessedChats(results []stats.ChatResult) []ProcessedChat {
	var out []ProcessedChat
	for _, r := range results {
		if len(r.Blocks) == 0 {
			continue
		}
		pc := ProcessedChat{
			ContactName: r.Name,
			ChatType:    r.Type,
			NumBlocks:   len(r.Blocks),
		}
		for _, b := range r.Blocks {
			pb := ProcessedBlock{}
			for _, m := range b.Messages {
				pm := ProcessedMessage{Role: string(m.Role), Content: m.Text}
				if !m.Timestamp.IsZero() {
					pm.Timestamp = m.Timestamp.Format("2006-01-02T15:04:05")
				}
				pb.Messages = append(pb.Messages, pm)
			}
			pc.Blocks = append(pc.Blocks, pb)
		}
		out = append(out, pc)
	}
	return out
}

// renderRaw serializes the as-loaded chat objects.
func renderRaw(run *Run) ([]byte, error) {
	return json.MarshalIndent(run.Raw, "", "  ")
}

// renderProcessed serializes the per-chat block records.
func renderProcessed(run *Run) ([]byte, error) {
	return json.MarshalIndent(run.Chats, "", "  ")
}

// renderTrain serializes the training examples, one compact JSON record per
// line: {"messages":[{"role":...,"content":...},...]}.
func renderTrain(run *Run) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, c := range run.Chats {
		for _, b := range c.Blocks {
			record := struct {
				Messages []trainMessage `json:"messages"`
			}{}
			for _, m := range b.Messages {
				record.Messages = append(record.Messages, trainMessage{Role: m.Role, Content: m.Content})
			}
			if err := enc.Encode(record); err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

type trainMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
