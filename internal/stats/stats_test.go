package stats

import (
	"strings"
	"testing"
	"time"

	"github.com/renhwa-labs/chatprep/internal/chat"
	"github.com/renhwa-labs/chatprep/internal/segment"
)

func block(tokens int, start time.Time, mins int) chat.Block {
	return chat.Block{
		TokenCount: tokens,
		StartTime:  start,
		EndTime:    start.Add(time.Duration(mins) * time.Minute),
	}
}

func TestCompute(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	results := []ChatResult{
		{
			Name:   "Alex",
			Blocks: []chat.Block{block(100, base, 10), block(300, base.Add(time.Hour), 30)},
			Report: segment.Report{DroppedShort: 1, Splits: 1},
		},
		{
			Name:   "Bea",
			Blocks: []chat.Block{block(200, base, 20)},
			Report: segment.Report{Truncated: 2, DateFiltered: 5},
		},
		{
			Name:   "Empty",
			Report: segment.Report{DroppedShort: 3},
		},
	}

	s := Compute(results)

	if s.NumChats != 2 {
		t.Errorf("num chats = %d, want 2 (empty chat excluded)", s.NumChats)
	}
	if s.NumBlocks != 3 {
		t.Errorf("num blocks = %d, want 3", s.NumBlocks)
	}
	if s.MinTokensPerBlock != 100 || s.MaxTokensPerBlock != 300 {
		t.Errorf("token range = [%d, %d], want [100, 300]", s.MinTokensPerBlock, s.MaxTokensPerBlock)
	}
	if s.AvgTokensPerBlock != 200 {
		t.Errorf("avg tokens = %.2f, want 200", s.AvgTokensPerBlock)
	}
	if s.MinDurationMins != 10 || s.MaxDurationMins != 30 {
		t.Errorf("duration range = [%.1f, %.1f], want [10, 30]", s.MinDurationMins, s.MaxDurationMins)
	}
	if s.AvgDurationMins != 20 {
		t.Errorf("avg duration = %.2f, want 20", s.AvgDurationMins)
	}
	if s.DroppedShortBlocks != 4 {
		t.Errorf("dropped short = %d, want 4", s.DroppedShortBlocks)
	}
	if s.SplitBlocks != 1 || s.TruncatedBlocks != 2 || s.DateFilteredMsgs != 5 {
		t.Errorf("counters = %d/%d/%d", s.SplitBlocks, s.TruncatedBlocks, s.DateFilteredMsgs)
	}
	if s.BlockBreakdown["Alex"] != 2 || s.BlockBreakdown["Bea"] != 1 {
		t.Errorf("breakdown = %v", s.BlockBreakdown)
	}
}

func TestCompute_Empty(t *testing.T) {
	s := Compute(nil)
	if s.NumChats != 0 || s.NumBlocks != 0 || s.AvgTokensPerBlock != 0 {
		t.Errorf("unexpected stats for no input: %+v", s)
	}
}

func TestTable(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s := Compute([]ChatResult{
		{Name: "Alex", Blocks: []chat.Block{block(100, base, 10)}},
		{Name: "Bea", Blocks: []chat.Block{block(200, base, 20), block(150, base, 5)}},
	})

	out := s.Table(10)
	for _, want := range []string{
		"Chat Statistics Summary",
		"Total Chats",
		"Top Chats by Block Count",
		" 1. Bea",
		" 2. Alex",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestTopChats_Truncation(t *testing.T) {
	s := RunStats{BlockBreakdown: map[string]int{"a": 1, "b": 3, "c": 2}}
	top := s.topChats(2)
	if len(top) != 2 {
		t.Fatalf("len = %d, want 2", len(top))
	}
	if top[0].name != "b" || top[1].name != "c" {
		t.Errorf("order = %v", top)
	}
}

func TestMetadata(t *testing.T) {
	s := RunStats{
		NumChats:          2,
		NumBlocks:         7,
		AvgTokensPerBlock: 123.456,
		MinDurationMins:   1.5,
		MaxDurationMins:   42,
		AvgDurationMins:   12.345,
		DateFilteredMsgs:  3,
	}
	md := s.Metadata()
	want := map[string]string{
		"stats_num_blocks":                     "7",
		"stats_avg_tokens_per_block":           "123.46",
		"stats_min_duration_minutes_per_block": "1.50",
		"stats_max_duration_minutes_per_block": "42.00",
		"stats_avg_duration_minutes_per_block": "12.35",
		"stats_date_filtered_messages":         "3",
	}
	for k, v := range want {
		if md[k] != v {
			t.Errorf("%s = %q, want %q", k, md[k], v)
		}
	}
}
