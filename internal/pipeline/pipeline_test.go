package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/renhwa-labs/chatprep/internal/config"
	"github.com/renhwa-labs/chatprep/internal/source"
)

type wordTok struct{}

func (wordTok) Count(text string) int { return len(strings.Fields(text)) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, inputPath string) *config.Config {
	t.Helper()
	return &config.Config{
		Input:  config.Input{Mode: "file", Path: inputPath},
		Output: config.Output{Modes: []string{"local"}, LocalDir: t.TempDir()},
		Dataset: config.Dataset{
			TargetName:              "Ren Hwa",
			ConvoBlockThresholdSecs: 3600,
			MinTokensPerBlock:       2,
			MaxTokensPerBlock:       500,
			MessageDelimiter:        ">>>",
			Workers:                 2,
		},
	}
}

const exportJSON = `[
	{"name": "Alex", "type": "personal_chat", "messages": [
		{"from": "Alex", "date": "2025-03-01T10:00:00", "text_entities": [{"text": "hey are you free later"}]},
		{"from": "Ren Hwa", "date": "2025-03-01T10:01:00", "text_entities": [{"text": "yes after six works"}]},
		{"from": "Alex", "date": "2025-03-01T10:02:00", "text_entities": [{"text": "great see you then"}]},
		{"from": "Ren Hwa", "date": "2025-03-01T10:02:30", "text_entities": [{"text": "see you"}]}
	]},
	{"name": "Silent", "type": "personal_chat", "messages": [
		{"from": "Silent", "date": "2025-03-01T09:00:00", "text_entities": [{"text": "hello?"}]}
	]}
]`

func writeExport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.json")
	if err := os.WriteFile(path, []byte(exportJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_EndToEnd(t *testing.T) {
	cfg := testConfig(t, writeExport(t))

	r, err := New(cfg, wordTok{}, nil, nil, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	src, err := source.New(cfg.Input, discardLogger())
	if err != nil {
		t.Fatalf("source.New: %v", err)
	}

	runID := uuid.New()
	res, err := r.Run(context.Background(), runID, src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Stats.NumChats != 1 {
		t.Errorf("chats = %d, want 1 (one-sided chat produces no blocks)", res.Stats.NumChats)
	}
	if res.Stats.NumBlocks != 1 {
		t.Errorf("blocks = %d, want 1", res.Stats.NumBlocks)
	}

	// Artifacts landed in the local sink.
	runDir := filepath.Join(cfg.Output.LocalDir, runID.String())
	data, err := os.ReadFile(filepath.Join(runDir, "train.jsonl"))
	if err != nil {
		t.Fatalf("read train.jsonl: %v", err)
	}
	var record struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	line := strings.TrimSpace(string(data))
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		t.Fatalf("decode train.jsonl: %v", err)
	}
	if len(record.Messages) == 0 {
		t.Fatal("empty training record")
	}
	first := record.Messages[0]
	if first.Role != "user" || !strings.HasPrefix(first.Content, "User>>> ") {
		t.Errorf("first message = %+v", first)
	}
	last := record.Messages[len(record.Messages)-1]
	if last.Role != "system" {
		t.Errorf("last message role = %q, want system", last.Role)
	}
}

func TestRun_QueuesFineTuning(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		got = body["run_id"]
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(t, writeExport(t))
	cfg.FineTuningURL = srv.URL

	r, err := New(cfg, wordTok{}, nil, nil, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	src := &source.File{Path: cfg.Input.Path, Logger: discardLogger()}

	runID := uuid.New()
	if _, err := r.Run(context.Background(), runID, src); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != runID.String() {
		t.Errorf("fine-tuning received run_id %q, want %q", got, runID)
	}
}

func TestRun_LoadFailure(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "missing.json"))

	r, err := New(cfg, wordTok{}, nil, nil, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	src := &source.File{Path: cfg.Input.Path, Logger: discardLogger()}

	if _, err := r.Run(context.Background(), uuid.New(), src); err == nil {
		t.Fatal("expected error for missing input")
	}
}

func TestNew_InvalidSegmentOptions(t *testing.T) {
	cfg := testConfig(t, "x.json")
	cfg.Dataset.MinTokensPerBlock = 100
	cfg.Dataset.MaxTokensPerBlock = 10

	if _, err := New(cfg, wordTok{}, nil, nil, discardLogger()); err == nil {
		t.Fatal("expected error for invalid token bounds")
	}
}

func TestNew_SentinelDateLimit(t *testing.T) {
	cfg := testConfig(t, "x.json")
	cfg.Dataset.DateLimit = "None"

	if _, err := New(cfg, wordTok{}, nil, nil, discardLogger()); err != nil {
		t.Fatalf("New with sentinel date_limit: %v", err)
	}
}
