// Command yearlystats computes per-station yearly summaries from stored
// observations. By default every (station, year) pair without a stored
// summary is computed; -force recomputes pairs that already have one.
//
// Usage:
//
//	go run ./cmd/yearlystats \
//	  [-station USC00110072] [-year 1985 | -start-year 1985 -end-year 1990] \
//	  [-batch-size 100] [-progress-every 100] [-force] [-dry-run] [-clear]
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
	"weatherpipe/internal/observability"
	"weatherpipe/internal/stats"
	"weatherpipe/internal/store"
)

func main() {
	var opts stats.Options
	flag.StringVar(&opts.StationID, "station", "", "restrict the run to one station id")
	flag.IntVar(&opts.Year, "year", 0, "restrict the run to one year")
	flag.IntVar(&opts.StartYear, "start-year", 0, "first year of an inclusive range")
	flag.IntVar(&opts.EndYear, "end-year", 0, "last year of an inclusive range")
	flag.IntVar(&opts.BatchSize, "batch-size", stats.DefaultBatchSize, "summary rows per storage batch")
	flag.IntVar(&opts.ProgressEvery, "progress-every", stats.DefaultProgressEvery, "station-years between progress logs, 0 disables")
	flag.BoolVar(&opts.Force, "force", false, "recompute pairs that already have a summary")
	flag.BoolVar(&opts.DryRun, "dry-run", false, "compute and report without writing to the store")
	flag.BoolVar(&opts.Clear, "clear", false, "delete matching summaries before computing")
	flag.Parse()

	if code := run(opts); code != 0 {
		os.Exit(code)
	}
}

func run(opts stats.Options) int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogOutput)
	logger = logger.With("run_id", uuid.NewString())
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

	agg, err := stats.New(st, logger, metrics, opts)
	if err != nil {
		logger.Error("invalid options", "error", err)
		return 2
	}

	summary, runErr := agg.Run(ctx)

	if cfg.MetricsPushURL != "" {
		job := cfg.MetricsJob
		if job == "" {
			job = "yearlystats"
		}
		if err := metrics.Push(cfg.MetricsPushURL, job); err != nil {
			logger.Warn("failed to push metrics", "error", err)
		}
	}

	if runErr != nil {
		logger.Error("aggregation failed", "error", runErr)
		return 1
	}
	if summary.Failed() {
		logger.Error("aggregation finished with failures", "pairs_failed", summary.PairsFailed)
		return 1
	}
	return 0
}
