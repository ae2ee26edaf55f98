// Package metrics exposes prometheus instrumentation for the data-prep
// pipeline, served on /metrics by the API server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChatsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatprep_chats_processed_total",
		Help: "Chats segmented across all runs.",
	})
	BlocksEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatprep_blocks_emitted_total",
		Help: "Training blocks emitted across all runs.",
	})
	BlocksDroppedShort = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatprep_blocks_dropped_short_total",
		Help: "Blocks dropped for falling under the token minimum.",
	})
	BlocksSplit = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatprep_blocks_split_total",
		Help: "Over-long blocks split at message boundaries.",
	})
	BlocksTruncated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatprep_blocks_truncated_total",
		Help: "Unsplittable over-long blocks dropped.",
	})
	MalformedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatprep_malformed_messages_total",
		Help: "Messages skipped during export parsing.",
	})
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatprep_run_duration_seconds",
		Help:    "Wall-clock duration of processing runs.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatprep_runs_total",
		Help: "Processing runs by outcome.",
	}, []string{"status"})
)
