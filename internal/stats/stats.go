// Package stats aggregates per-run statistics over segmented chats.
package stats

import (
	"fmt"
	"sort"
	"strings"

	"github.com/renhwa-labs/chatprep/internal/chat"
	"github.com/renhwa-labs/chatprep/internal/segment"
)

// ChatResult pairs one chat's emitted blocks with its segmentation report.
type ChatResult struct {
	Name   string
	Type   string
	Blocks []chat.Block
	Report segment.Report
}

// RunStats is the summary returned by the API and attached to exports.
type RunStats struct {
	NumChats          int     `json:"num_chats"`
	NumBlocks         int     `json:"num_blocks"`
	MinTokensPerBlock int     `json:"min_tokens_per_block"`
	MaxTokensPerBlock int     `json:"max_tokens_per_block"`
	AvgTokensPerBlock float64 `json:"avg_tokens_per_block"`
	MinDurationMins   float64 `json:"min_duration_minutes_per_block"`
	MaxDurationMins   float64 `json:"max_duration_minutes_per_block"`
	AvgDurationMins   float64 `json:"avg_duration_minutes_per_block"`

	DroppedShortBlocks int `json:"dropped_short_blocks"`
	SplitBlocks        int `json:"split_blocks"`
	TruncatedBlocks    int `json:"truncated_blocks"`
	DateFilteredMsgs   int `json:"date_filtered_messages"`

	// BlockBreakdown maps chat name to emitted block count.
	BlockBreakdown map[string]int `json:"block_breakdown"`
}

// Compute aggregates results for chats that produced at least one block.
// Chats with zero blocks are excluded from NumChats, matching the export
// which drops them.
func Compute(results []ChatResult) RunStats {
	s := RunStats{BlockBreakdown: make(map[string]int)}

	totalTokens := 0
	totalDuration := 0.0
	first := true

	for _, r := range results {
		s.DroppedShortBlocks += r.Report.DroppedShort
		s.SplitBlocks += r.Report.Splits
		s.TruncatedBlocks += r.Report.Truncated
		s.DateFilteredMsgs += r.Report.DateFiltered

		if len(r.Blocks) == 0 {
			continue
		}
		s.NumChats++
		s.BlockBreakdown[r.Name] += len(r.Blocks)

		for _, b := range r.Blocks {
			s.NumBlocks++
			totalTokens += b.TokenCount
			mins := b.EndTime.Sub(b.StartTime).Minutes()
			totalDuration += mins

			if first {
				s.MinTokensPerBlock = b.TokenCount
				s.MaxTokensPerBlock = b.TokenCount
				s.MinDurationMins = mins
				s.MaxDurationMins = mins
				first = false
				continue
			}
			if b.TokenCount < s.MinTokensPerBlock {
				s.MinTokensPerBlock = b.TokenCount
			}
			if b.TokenCount > s.MaxTokensPerBlock {
				s.MaxTokensPerBlock = b.TokenCount
			}
			if mins < s.MinDurationMins {
				s.MinDurationMins = mins
			}
			if mins > s.MaxDurationMins {
				s.MaxDurationMins = mins
			}
		}
	}

	if s.NumBlocks > 0 {
		s.AvgTokensPerBlock = float64(totalTokens) / float64(s.NumBlocks)
		s.AvgDurationMins = totalDuration / float64(s.NumBlocks)
	}
	return s
}

// Table renders the run summary as a fixed-width table with the top-k chats
// by block count, suitable for logging at the end of a run.
func (s RunStats) Table(topK int) string {
	var sb strings.Builder

	line := strings.Repeat("*", 36) + "\n"
	sb.WriteString(line)
	fmt.Fprintf(&sb, "*%s*\n", center("Chat Statistics Summary", 34))
	sb.WriteString(line)
	fmt.Fprintf(&sb, "%-25s | %8s\n", "Metric", "Value")
	sb.WriteString(strings.Repeat("-", 36) + "\n")
	fmt.Fprintf(&sb, "%-25s | %8d\n", "Total Chats", s.NumChats)
	fmt.Fprintf(&sb, "%-25s | %8d\n", "Total Blocks", s.NumBlocks)
	fmt.Fprintf(&sb, "%-25s | %8d\n", "Min Tokens/Block", s.MinTokensPerBlock)
	fmt.Fprintf(&sb, "%-25s | %8d\n", "Max Tokens/Block", s.MaxTokensPerBlock)
	fmt.Fprintf(&sb, "%-25s | %8.2f\n", "Avg Tokens/Block", s.AvgTokensPerBlock)
	fmt.Fprintf(&sb, "%-25s | %8.2f\n", "Min Duration (min)", s.MinDurationMins)
	fmt.Fprintf(&sb, "%-25s | %8.2f\n", "Max Duration (min)", s.MaxDurationMins)
	fmt.Fprintf(&sb, "%-25s | %8.2f\n", "Avg Duration (min)", s.AvgDurationMins)

	sb.WriteString("\n")
	sb.WriteString(line)
	fmt.Fprintf(&sb, "*%s*\n", center("Top Chats by Block Count", 34))
	sb.WriteString(line)
	for rank, entry := range s.topChats(topK) {
		fmt.Fprintf(&sb, "%2d. %-28s %5d\n", rank+1, entry.name, entry.count)
	}

	return sb.String()
}

type breakdownEntry struct {
	name  string
	count int
}

func (s RunStats) topChats(k int) []breakdownEntry {
	entries := make([]breakdownEntry, 0, len(s.BlockBreakdown))
	for name, count := range s.BlockBreakdown {
		entries = append(entries, breakdownEntry{name, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].name < entries[j].name
	})
	if len(entries) > k {
		entries = entries[:k]
	}
	return entries
}

// Metadata flattens the stats into string key/value pairs for object-store
// metadata, prefixed "stats_".
func (s RunStats) Metadata() map[string]string {
	return map[string]string{
		"stats_num_chats":                      fmt.Sprintf("%d", s.NumChats),
		"stats_num_blocks":                     fmt.Sprintf("%d", s.NumBlocks),
		"stats_min_tokens_per_block":           fmt.Sprintf("%d", s.MinTokensPerBlock),
		"stats_max_tokens_per_block":           fmt.Sprintf("%d", s.MaxTokensPerBlock),
		"stats_avg_tokens_per_block":           fmt.Sprintf("%.2f", s.AvgTokensPerBlock),
		"stats_min_duration_minutes_per_block": fmt.Sprintf("%.2f", s.MinDurationMins),
		"stats_max_duration_minutes_per_block": fmt.Sprintf("%.2f", s.MaxDurationMins),
		"stats_avg_duration_minutes_per_block": fmt.Sprintf("%.2f", s.AvgDurationMins),
		"stats_dropped_short_blocks":           fmt.Sprintf("%d", s.DroppedShortBlocks),
		"stats_split_blocks":                   fmt.Sprintf("%d", s.SplitBlocks),
		"stats_truncated_blocks":               fmt.Sprintf("%d", s.TruncatedBlocks),
		"stats_date_filtered_messages":         fmt.Sprintf("%d", s.DateFilteredMsgs),
	}
}

func center(s string, width int) string {
	if len(s) >= width {
		return s
	}
	left := (width - len(s)) / 2
	right := width - len(s) - left
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", right)
}
