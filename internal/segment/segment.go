// Package segment converts a chat's ordered messages into token-bounded,
// role-labeled training blocks.
package segment

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/renhwa-labs/chatprep/internal/chat"
	"github.com/renhwa-labs/chatprep/internal/tokenizer"
)

// Options is the immutable segmentation configuration. A Segmenter is
// constructed once and shared across chats; it holds no mutable state.
type Options struct {
	TargetName   string
	SystemPrompt string
	DateLimit    time.Time // zero value means no limit
	GapThreshold time.Duration
	MinTokens    int
	MaxTokens    int
	Delimiter    string
}

// Report summarizes one chat's segmentation for stats and logging.
type Report struct {
	RawBlocks    int
	Emitted      int
	DroppedShort int
	Splits       int
	Truncated    int
	DateFiltered int
}

type Segmenter struct {
	opts   Options
	tok    tokenizer.Tokenizer
	logger *slog.Logger
}

// New validates the options and builds a Segmenter.
func New(opts Options, tok tokenizer.Tokenizer, logger *slog.Logger) (*Segmenter, error) {
	if opts.GapThreshold <= 0 {
		return nil, fmt.Errorf("segment: gap threshold must be positive, got %s", opts.GapThreshold)
	}
	if opts.MinTokens <= 0 || opts.MaxTokens <= 0 || opts.MinTokens > opts.MaxTokens {
		return nil, fmt.Errorf("segment: invalid token bounds [%d, %d]", opts.MinTokens, opts.MaxTokens)
	}
	if opts.Delimiter == "" {
		return nil, fmt.Errorf("segment: message delimiter must be non-empty")
	}
	if opts.TargetName == "" {
		return nil, fmt.Errorf("segment: target name must be non-empty")
	}
	return &Segmenter{opts: opts, tok: tok, logger: logger}, nil
}

// Segment runs the full pass over one chat: date filter, role relabel,
// time-gap grouping, same-role merging, then token gating. Emitted blocks
// preserve message order, never share messages, and always satisfy
// MinTokens <= TokenCount <= MaxTokens.
func (s *Segmenter) Segment(c chat.Chat) ([]chat.Block, Report) {
	var rep Report

	msgs := s.prepare(c, &rep)
	if len(msgs) == 0 {
		return nil, rep
	}

	var blocks []chat.Block
	for _, group := range s.groupByGap(msgs) {
		rep.RawBlocks++
		merged := s.mergeRoles(group)
		blocks = append(blocks, s.gate(c.Name, merged, &rep)...)
	}

	rep.Emitted = len(blocks)
	return blocks, rep
}

// prepare drops messages before the date limit and assigns roles.
func (s *Segmenter) prepare(c chat.Chat, rep *Report) []chat.Message {
	out := make([]chat.Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		if !s.opts.DateLimit.IsZero() && m.Timestamp.Before(s.opts.DateLimit) {
			rep.DateFiltered++
			continue
		}
		if m.Sender == s.opts.TargetName {
			m.Role = chat.RoleSystem
		} else {
			m.Role = chat.RoleUser
		}
		out = append(out, m)
	}
	return out
}

// groupByGap splits messages wherever the gap to the previous message
// exceeds the threshold.
func (s *Segmenter) groupByGap(msgs []chat.Message) [][]chat.Message {
	var groups [][]chat.Message
	var current []chat.Message

	for _, m := range msgs {
		if len(current) > 0 {
			prev := current[len(current)-1]
			if m.Timestamp.Sub(prev.Timestamp) > s.opts.GapThreshold {
				groups = append(groups, current)
				current = nil
			}
		}
		current = append(current, m)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// mergeRoles collapses consecutive same-role messages into one message whose
// text is the delimiter-prefixed lines of its parts, newline-joined. The
// merged message keeps the first part's sender and timestamp.
func (s *Segmenter) mergeRoles(group []chat.Message) []chat.Message {
	var merged []chat.Message

	for _, m := range group {
		line := s.formatLine(m.Role, m.Text)
		if n := len(merged); n > 0 && merged[n-1].Role == m.Role {
			merged[n-1].Text += "\n" + line
			continue
		}
		m.Text = line
		merged = append(merged, m)
	}
	return merged
}

// formatLine renders one message line, e.g. "User>>> Hello!".
func (s *Segmenter) formatLine(role chat.Role, text string) string {
	return roleLabel(role) + s.opts.Delimiter + " " + strings.TrimSpace(text)
}

func roleLabel(r chat.Role) string {
	if r == chat.RoleSystem {
		return "System"
	}
	return "User"
}

// gate trims, measures, and recursively size-gates one candidate block.
// Over-long blocks are split at merged-message boundaries; a block that
// cannot be split further is dropped with a truncation signal. Truncating
// a single over-long exchange to its last fitting message would leave only
// the user side, and a one-sided block is unusable for training, so the
// whole exchange is dropped instead of emitting a remainder.
func (s *Segmenter) gate(chatName string, msgs []chat.Message, rep *Report) []chat.Block {
	msgs = trimEdges(msgs)
	if len(msgs) < 2 {
		// A training block needs both sides of the conversation.
		if len(msgs) > 0 {
			rep.DroppedShort++
			s.logger.Debug("block too short",
				"chat", chatName,
				"reason", "one-sided after trim",
				"start", blockStart(msgs),
			)
		}
		return nil
	}

	block := s.buildBlock(msgs)
	tokens := s.tok.Count(block.Text())
	block.TokenCount = tokens

	switch {
	case tokens < s.opts.MinTokens:
		rep.DroppedShort++
		s.logger.Debug("block too short",
			"chat", chatName,
			"tokens", tokens,
			"min_tokens", s.opts.MinTokens,
			"start", block.StartTime,
		)
		return nil

	case tokens > s.opts.MaxTokens:
		// After merging and trimming the block alternates user/target, so
		// a splittable block has at least two exchanges. A single over-long
		// exchange has no usable split point and is dropped.
		if len(msgs) <= 2 {
			rep.Truncated++
			s.logger.Warn("block truncated",
				"chat", chatName,
				"tokens", tokens,
				"max_tokens", s.opts.MaxTokens,
				"start", block.StartTime,
			)
			return nil
		}
		rep.Splits++
		// Split on an exchange boundary so both halves stay two-sided.
		mid := len(msgs) / 2
		if mid%2 == 1 {
			mid++
		}
		s.logger.Debug("splitting over-long block",
			"chat", chatName,
			"tokens", tokens,
			"messages", len(msgs),
			"start", block.StartTime,
		)
		out := s.gate(chatName, msgs[:mid], rep)
		return append(out, s.gate(chatName, msgs[mid:], rep)...)

	default:
		return []chat.Block{block}
	}
}

// buildBlock assembles the final block, prepending the system prompt when
// configured.
func (s *Segmenter) buildBlock(msgs []chat.Message) chat.Block {
	b := chat.Block{
		StartTime: msgs[0].Timestamp,
		EndTime:   msgs[len(msgs)-1].Timestamp,
	}

	if s.opts.SystemPrompt != "" {
		b.Messages = append(b.Messages, chat.Message{
			Role: chat.RoleSystem,
			Text: s.opts.SystemPrompt,
		})
	}
	b.Messages = append(b.Messages, msgs...)
	return b
}

// trimEdges removes leading target-side messages and trailing user messages
// so every block opens with the other party and closes with the target.
func trimEdges(msgs []chat.Message) []chat.Message {
	for len(msgs) > 0 && msgs[0].Role == chat.RoleSystem {
		msgs = msgs[1:]
	}
	for len(msgs) > 0 && msgs[len(msgs)-1].Role == chat.RoleUser {
		msgs = msgs[:len(msgs)-1]
	}
	return msgs
}

func blockStart(msgs []chat.Message) time.Time {
	if len(msgs) == 0 {
		return time.Time{}
	}
	return msgs[0].Timestamp
}
