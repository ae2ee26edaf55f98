package sink

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Local writes run artifacts under <Dir>/<run_id>/.
type Local struct {
	Dir    string
	Logger *slog.Logger
}

func (l *Local) Name() string { return "local" }

func (l *Local) Export(_ context.Context, run *Run) error {
	runDir := filepath.Join(l.Dir, run.ID.String())
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("local sink: mkdir %s: %w", runDir, err)
	}

	artifacts := []struct {
		name   string
		render func(*Run) ([]byte, error)
	}{
		{"raw.json", renderRaw},
		{"processed.json", renderProcessed},
		{"train.jsonl", renderTrain},
	}

	for _, a := range artifacts {
		data, err := a.render(run)
		if err != nil {
			return fmt.Errorf("local sink: render %s: %w", a.name, err)
		}
		path := filepath.Join(runDir, a.name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("local sink: write %s: %w", path, err)
		}
		l.Logger.Info("artifact written", "sink", "local", "path", path, "bytes", len(data))
	}
	return nil
}
