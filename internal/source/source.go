// Package source loads raw chats from the configured input: a single export
// file, or a directory of per-chat files.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/renhwa-labs/chatprep/internal/chat"
	"github.com/renhwa-labs/chatprep/internal/config"
)

// Source produces the chats for one run.
type Source interface {
	Load(ctx context.Context) (*chat.ParseResult, error)
}

// New selects the implementation for the configured input mode.
func New(cfg config.Input, logger *slog.Logger) (Source, error) {
	switch cfg.Mode {
	case "file":
		return &File{Path: cfg.Path, Logger: logger}, nil
	case "dir":
		return &Dir{Path: cfg.Path, Logger: logger}, nil
	default:
		return nil, fmt.Errorf("source: unknown input mode %q", cfg.Mode)
	}
}

// Bytes serves an already-loaded export payload, e.g. an API upload.
type Bytes struct {
	Data   []byte
	Logger *slog.Logger
}

func (b *Bytes) Load(_ context.Context) (*chat.ParseResult, error) {
	res, err := chat.ParseExport(b.Data, b.Logger)
	if err != nil {
		return nil, fmt.Errorf("source: parse payload: %w", err)
	}
	return res, nil
}

// File loads one export file that may embed many chats.
type File struct {
	Path   string
	Logger *slog.Logger
}

func (f *File) Load(_ context.Context) (*chat.ParseResult, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("source: read %s: %w", f.Path, err)
	}
	res, err := chat.ParseExport(data, f.Logger)
	if err != nil {
		return nil, fmt.Errorf("source: parse %s: %w", f.Path, err)
	}
	return res, nil
}

// Dir loads every .json file under a directory, one chat (or export) per
// file. Files that fail to parse are logged and skipped; the run continues
// with the rest.
type Dir struct {
	Path   string
	Logger *slog.Logger
}

func (d *Dir) Load(ctx context.Context) (*chat.ParseResult, error) {
	var files []string
	err := filepath.Walk(d.Path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if !info.IsDir() && strings.HasSuffix(info.Name(), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("source: walk %s: %w", d.Path, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("source: no .json files under %s", d.Path)
	}
	sort.Strings(files)

	combined := &chat.ParseResult{}
	for _, path := range files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		data, err := os.ReadFile(path)
		if err != nil {
			d.Logger.Warn("skipping unreadable chat file", "path", path, "error", err)
			continue
		}
		res, err := chat.ParseExport(data, d.Logger)
		if err != nil {
			d.Logger.Warn("skipping unparseable chat file", "path", path, "error", err)
			continue
		}
		combined.Merge(res)
	}

	if len(combined.Chats) == 0 && len(combined.Raw) == 0 {
		return nil, fmt.Errorf("source: no usable chats under %s", d.Path)
	}
	return combined, nil
}
