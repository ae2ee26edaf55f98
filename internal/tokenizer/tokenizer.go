// Package tokenizer measures text length in model tokens for block gating.
package tokenizer

import (
	"log/slog"
	"unicode/utf8"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens in a piece of text.
type Tokenizer interface {
	Count(text string) int
}

const fallbackEncoding = "cl100k_base"

// ForModel resolves a tokenizer for the target fine-tuning model. Models
// unknown to tiktoken fall back to cl100k_base, and if no BPE encoding can
// be loaded at all a deterministic character heuristic is used so that
// gating still behaves consistently.
func ForModel(model string, logger *slog.Logger) Tokenizer {
	if enc, err := tiktoken.EncodingForModel(model); err == nil {
		return &bpeTokenizer{enc: enc}
	}

	logger.Warn("no tiktoken encoding for model, falling back",
		"model", model,
		"encoding", fallbackEncoding,
	)
	if enc, err := tiktoken.GetEncoding(fallbackEncoding); err == nil {
		return &bpeTokenizer{enc: enc}
	}

	logger.Warn("tiktoken unavailable, using character heuristic")
	return Heuristic{}
}

type bpeTokenizer struct {
	enc *tiktoken.Tiktoken
}

func (t *bpeTokenizer) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// Heuristic approximates token counts at roughly four characters per token.
// Only used when no real encoding is available.
type Heuristic struct{}

func (Heuristic) Count(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
