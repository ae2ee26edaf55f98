// Package main is the entry point for the chatprep CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/renhwa-labs/chatprep/internal/api"
	"github.com/renhwa-labs/chatprep/internal/config"
	"github.com/renhwa-labs/chatprep/internal/events"
	"github.com/renhwa-labs/chatprep/internal/pipeline"
	"github.com/renhwa-labs/chatprep/internal/source"
	"github.com/renhwa-labs/chatprep/internal/store"
	"github.com/renhwa-labs/chatprep/internal/tokenizer"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Missing .env is fine; real deployments use the environment directly.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chatprep",
		Short:         "Turn chat exports into fine-tuning datasets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "config.yaml", "Path to configuration file")
	root.AddCommand(versionCmd(), runCmd(), serveCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("chatprep %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// runCmd processes the configured input once and exits.
func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process the configured chat export once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			setupLogging(cfg.LogLevel)

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			runner, db, pub, err := buildRunner(ctx, cfg)
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
			}
			defer pub.Close()

			src, err := source.New(cfg.Input, slog.Default())
			if err != nil {
				return err
			}

			runID := uuid.New()
			if db != nil {
				if err := db.CreateRun(ctx, runID); err != nil {
					return fmt.Errorf("create run record: %w", err)
				}
			}

			res, err := runner.Run(ctx, runID, src)
			if err != nil {
				return err
			}
			slog.Info("dataset ready", "run_id", res.RunID, "blocks", res.Stats.NumBlocks)
			return nil
		},
	}
}

// serveCmd starts the HTTP API and processes uploaded exports.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API for on-demand processing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			setupLogging(cfg.LogLevel)

			slog.Info("chatprep starting", "port", cfg.Port)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			runner, db, pub, err := buildRunner(ctx, cfg)
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
			}
			defer pub.Close()

			srv := api.NewServer(cfg.Port, runner, db, slog.Default())
			go func() {
				if err := srv.Start(); err != nil {
					slog.Error("HTTP server error", "error", err)
				}
			}()

			slog.Info("chatprep ready", "port", cfg.Port)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			slog.Info("shutting down")
			cancel()
			slog.Info("chatprep stopped")
			return nil
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildRunner wires the pipeline with whatever backing services are
// configured. Database and NATS are both optional; without them runs are
// not persisted or announced but processing still works.
func buildRunner(ctx context.Context, cfg *config.Config) (*pipeline.Runner, *store.Store, *events.Publisher, error) {
	logger := slog.Default()

	var db *store.Store
	if cfg.DatabaseURL != "" {
		var err error
		db, err = store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		slog.Info("database connected")
	} else {
		slog.Warn("DATABASE_URL not set, runs will not be persisted")
	}

	var pub *events.Publisher
	if cfg.NatsURL != "" {
		var err error
		pub, err = events.Connect(cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			if db != nil {
				db.Close()
			}
			return nil, nil, nil, fmt.Errorf("connect to NATS: %w", err)
		}
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS_URL not set, run events will not be published")
	}

	tok := tokenizer.ForModel(cfg.FineTuning.Model.Name, logger)

	runner, err := pipeline.New(cfg, tok, db, pub, logger)
	if err != nil {
		if db != nil {
			db.Close()
		}
		pub.Close()
		return nil, nil, nil, err
	}
	return runner, db, pub, nil
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
