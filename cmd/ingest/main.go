// Command ingest scans a directory of per-station observation files and
// loads them into the weather store in transactional batches. Files whose
// checksum matches an earlier run are skipped unless -reprocess is set.
//
// Usage:
//
//	go run ./cmd/ingest -data-dir ./data/observations \
//	  [-pattern "USC*.txt"] [-batch-size 1000] [-progress-every 10000] \
//	  [-dry-run] [-reprocess] [-clear]
//
// Storage, feed, and logging are configured through the environment; see
// internal/config.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"weatherpipe/internal/config"
	"weatherpipe/internal/feed"
	"weatherpipe/internal/ingest"
	"weatherpipe/internal/observability"
	"weatherpipe/internal/store"
)

func main() {
	var opts ingest.Options
	flag.StringVar(&opts.Dir, "data-dir", "", "directory containing per-station observation files")
	flag.StringVar(&opts.Pattern, "pattern", ingest.DefaultPattern, "file glob within the data directory")
	flag.IntVar(&opts.BatchSize, "batch-size", ingest.DefaultBatchSize, "accepted observations per storage batch")
	flag.IntVar(&opts.ProgressEvery, "progress-every", ingest.DefaultProgressEvery, "lines between progress logs, 0 disables")
	flag.BoolVar(&opts.DryRun, "dry-run", false, "parse and report without writing to the store")
	flag.BoolVar(&opts.Reprocess, "reprocess", false, "load files even when their checksum is unchanged")
	flag.BoolVar(&opts.Clear, "clear", false, "delete stored observations and file history before loading")
	flag.Parse()

	if opts.Dir == "" {
		flag.Usage()
		os.Exit(2)
	}

	if code := run(opts); code != 0 {
		os.Exit(code)
	}
}

func run(opts ingest.Options) int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	runID := uuid.NewString()
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogOutput)
	logger = logger.With("run_id", runID)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Options{
		Driver:      cfg.StoreDriver,
		DatabaseURL: cfg.DatabaseURL,
		Path:        cfg.SQLitePath,
	})
	if err != nil {
		logger.Error("failed to open store", "error", err)
		return 1
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	var publisher ingest.Publisher
	if cfg.FeedEnabled() {
		f := feed.NewFeed(cfg.KafkaBrokers, cfg.KafkaTopic, runID, logger)
		defer func() {
			if err := f.Close(); err != nil {
				logger.Error("failed to close feed", "error", err)
			}
		}()
		publisher = f
	}

	ing, err := ingest.New(st, publisher, logger, metrics, opts)
	if err != nil {
		logger.Error("invalid options", "error", err)
		return 2
	}

	summary, runErr := ing.Run(ctx)

	if cfg.MetricsPushURL != "" {
		job := cfg.MetricsJob
		if job == "" {
			job = "ingest"
		}
		if err := metrics.Push(cfg.MetricsPushURL, job); err != nil {
			logger.Warn("failed to push metrics", "error", err)
		}
	}

	if runErr != nil {
		logger.Error("ingest failed", "error", runErr)
		return 1
	}
	if summary.Failed() {
		logger.Error("ingest finished with failures",
			"files_failed", summary.FilesFailed,
			"batches_failed", summary.BatchesFailed,
		)
		return 1
	}
	return 0
}
