// Package pipeline orchestrates one processing run: load chats, segment
// them into training blocks, export the artifacts, record the run, and hand
// off to the fine-tuning service.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/renhwa-labs/chatprep/internal/chat"
	"github.com/renhwa-labs/chatprep/internal/config"
	"github.com/renhwa-labs/chatprep/internal/events"
	"github.com/renhwa-labs/chatprep/internal/finetune"
	"github.com/renhwa-labs/chatprep/internal/metrics"
	"github.com/renhwa-labs/chatprep/internal/segment"
	"github.com/renhwa-labs/chatprep/internal/sink"
	"github.com/renhwa-labs/chatprep/internal/source"
	"github.com/renhwa-labs/chatprep/internal/stats"
	"github.com/renhwa-labs/chatprep/internal/store"
	"github.com/renhwa-labs/chatprep/internal/tokenizer"
)

const statsTopK = 10

// Runner executes processing runs against a fixed configuration. The store,
// publisher, and fine-tuning client are optional; a nil value disables that
// collaborator.
type Runner struct {
	cfg    *config.Config
	seg    *segment.Segmenter
	sinks  []sink.Sink
	store  *store.Store
	events *events.Publisher
	tuner  *finetune.Client
	logger *slog.Logger
}

// Result summarizes a finished run.
type Result struct {
	RunID uuid.UUID
	Stats stats.RunStats
}

func New(cfg *config.Config, tok tokenizer.Tokenizer, db *store.Store, pub *events.Publisher, logger *slog.Logger) (*Runner, error) {
	opts := segment.Options{
		TargetName:   cfg.Dataset.TargetName,
		SystemPrompt: cfg.Dataset.SystemPrompt,
		GapThreshold: time.Duration(cfg.Dataset.ConvoBlockThresholdSecs) * time.Second,
		MinTokens:    cfg.Dataset.MinTokensPerBlock,
		MaxTokens:    cfg.Dataset.MaxTokensPerBlock,
		Delimiter:    cfg.Dataset.MessageDelimiter,
	}

	limit, set, err := config.ParseDateLimit(cfg.Dataset.DateLimit)
	if err != nil {
		// A non-date sentinel means no limit; the value is not guessed at.
		logger.Warn("ignoring unparseable date_limit", "value", cfg.Dataset.DateLimit)
	}
	if set {
		opts.DateLimit = limit
	}

	seg, err := segment.New(opts, tok, logger)
	if err != nil {
		return nil, err
	}

	sinks, err := sink.FromConfig(cfg.Output, logger)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:    cfg,
		seg:    seg,
		sinks:  sinks,
		store:  db,
		events: pub,
		logger: logger,
	}
	if cfg.FineTuningURL != "" {
		r.tuner = finetune.NewClient(cfg.FineTuningURL, logger)
	}
	return r, nil
}

// Run processes one source end to end. Recoverable per-message and per-block
// conditions are logged and counted; only load and export failures abort.
func (r *Runner) Run(ctx context.Context, runID uuid.UUID, src source.Source) (*Result, error) {
	started := time.Now()
	r.logger.Info("run started", "run_id", runID)

	if r.store != nil {
		if err := r.store.MarkRunning(ctx, runID); err != nil {
			r.logger.Warn("failed to mark run running", "run_id", runID, "error", err)
		}
	}
	r.events.RunStarted(runID)

	res, err := r.process(ctx, runID, src)
	metrics.RunDuration.Observe(time.Since(started).Seconds())

	if err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		if r.store != nil {
			if serr := r.store.MarkFailed(ctx, runID, err); serr != nil {
				r.logger.Warn("failed to mark run failed", "run_id", runID, "error", serr)
			}
		}
		r.events.RunFailed(runID, err)
		return nil, err
	}

	metrics.RunsTotal.WithLabelValues("completed").Inc()
	if r.store != nil {
		if serr := r.store.MarkCompleted(ctx, runID, res.Stats); serr != nil {
			r.logger.Warn("failed to mark run completed", "run_id", runID, "error", serr)
		}
	}
	r.events.RunCompleted(runID, res.Stats)

	// Queue training last: a handoff failure does not invalidate the
	// exported data.
	if r.tuner != nil {
		if err := r.tuner.QueueTraining(ctx, runID); err != nil {
			r.logger.Error("fine-tuning handoff failed", "run_id", runID, "error", err)
		}
	}

	r.logger.Info("run completed",
		"run_id", runID,
		"chats", res.Stats.NumChats,
		"blocks", res.Stats.NumBlocks,
		"duration", time.Since(started).Round(time.Millisecond),
	)
	return res, nil
}

func (r *Runner) process(ctx context.Context, runID uuid.UUID, src source.Source) (*Result, error) {
	parsed, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chats: %w", err)
	}
	r.logger.Info("chats loaded",
		"run_id", runID,
		"chats", len(parsed.Chats),
		"skipped_chats", parsed.SkippedChats,
		"malformed_messages", parsed.MalformedMessages,
	)
	metrics.MalformedMessages.Add(float64(parsed.MalformedMessages))

	results, err := r.segmentAll(ctx, parsed.Chats)
	if err != nil {
		return nil, err
	}

	st := stats.Compute(results)
	r.observe(st)
	r.logger.Info("segmentation complete",
		"run_id", runID,
		"chats_kept", st.NumChats,
		"blocks", st.NumBlocks,
		"dropped_short", st.DroppedShortBlocks,
		"splits", st.SplitBlocks,
		"truncated", st.TruncatedBlocks,
	)
	r.logger.Info("run statistics\n" + st.Table(statsTopK))

	run := &sink.Run{
		ID:       runID,
		Raw:      parsed.Raw,
		Chats:    sink.BuildProcessedChats(results),
		Stats:    st,
		Metadata: r.metadata(runID, st),
	}
	for _, s := range r.sinks {
		if err := s.Export(ctx, run); err != nil {
			return nil, fmt.Errorf("export via %s: %w", s.Name(), err)
		}
	}

	return &Result{RunID: runID, Stats: st}, nil
}

// segmentAll fans chats out over a bounded worker pool. Chats are
// independent, so only the per-chat block order matters; results keep the
// input chat order.
func (r *Runner) segmentAll(ctx context.Context, chats []chat.Chat) ([]stats.ChatResult, error) {
	results := make([]stats.ChatResult, len(chats))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Dataset.Workers)

	for i, c := range chats {
		i, c := i, c
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			blocks, rep := r.seg.Segment(c)
			results[i] = stats.ChatResult{
				Name:   c.Name,
				Type:   c.Type,
				Blocks: blocks,
				Report: rep,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Runner) observe(st stats.RunStats) {
	metrics.ChatsProcessed.Add(float64(st.NumChats))
	metrics.BlocksEmitted.Add(float64(st.NumBlocks))
	metrics.BlocksDroppedShort.Add(float64(st.DroppedShortBlocks))
	metrics.BlocksSplit.Add(float64(st.SplitBlocks))
	metrics.BlocksTruncated.Add(float64(st.TruncatedBlocks))
}

// metadata assembles the key/value pairs attached to exported objects:
// run identity, dataset knobs, the fine-tuning pass-through settings, and
// the run stats.
func (r *Runner) metadata(runID uuid.UUID, st stats.RunStats) map[string]string {
	d := r.cfg.Dataset
	ft := r.cfg.FineTuning

	md := map[string]string{
		"uuid":                       runID.String(),
		"model_id":                   ft.Model.Name,
		"target_name":                d.TargetName,
		"system_prompt":              orNone(d.SystemPrompt),
		"date_limit":                 orNone(d.DateLimit),
		"convo_block_threshold_secs": fmt.Sprintf("%d", d.ConvoBlockThresholdSecs),
		"min_tokens_per_block":       fmt.Sprintf("%d", d.MinTokensPerBlock),
		"max_tokens_per_block":       fmt.Sprintf("%d", d.MaxTokensPerBlock),
		"message_delimiter":          d.MessageDelimiter,

		"ft_model_name":     ft.Model.Name,
		"ft_max_seq_length": fmt.Sprintf("%d", ft.Model.MaxSeqLength),
		"ft_load_in_4bit":   fmt.Sprintf("%t", ft.Model.LoadIn4Bit),
		"ft_chat_template":  ft.Model.ChatTemplate,
		"ft_dataset_split":  ft.Split.Split,
		"ft_lora_r":         fmt.Sprintf("%d", ft.LoRA.R),
		"ft_lora_alpha":     fmt.Sprintf("%d", ft.LoRA.Alpha),
		"ft_lora_dropout":   fmt.Sprintf("%g", ft.LoRA.Dropout),
		"ft_learning_rate":  fmt.Sprintf("%g", ft.Training.LearningRate),
		"ft_max_steps":      fmt.Sprintf("%d", ft.Training.MaxSteps),
		"ft_seed":           fmt.Sprintf("%d", ft.Training.Seed),
	}
	for k, v := range st.Metadata() {
		md[k] = v
	}
	return md
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}
