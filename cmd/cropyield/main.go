// Command cropyield loads a tab-separated year/production file into the
// crop yield table. The metadata flags describe what the file measures and
// are stamped onto every accepted row.
//
// Usage:
//
//	go run ./cmd/cropyield -file ./data/us_corn_grain.txt \
//	  [-crop-type corn_grain] [-country US] [-state IA] \
//	  [-unit thousand_metric_tons] [-source usda] \
//	  [-batch-size 1000] [-progress-every 1000] [-dry-run] [-clear]
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
	"weatherpipe/internal/crop"
	"weatherpipe/internal/observability"
	"weatherpipe/internal/store"
)

func main() {
	var opts crop.Options
	flag.StringVar(&opts.Path, "file", "", "tab-separated year/production file")
	flag.StringVar(&opts.CropType, "crop-type", crop.DefaultCropType, "crop type stamped on every row")
	flag.StringVar(&opts.Country, "country", crop.DefaultCountry, "country stamped on every row")
	flag.StringVar(&opts.State, "state", "", "state or region, empty for national totals")
	flag.StringVar(&opts.Unit, "unit", crop.DefaultUnit, "measurement unit stamped on every row")
	flag.StringVar(&opts.Source, "source", "", "provenance label stamped on every row")
	flag.IntVar(&opts.BatchSize, "batch-size", crop.DefaultBatchSize, "accepted rows per storage batch")
	flag.IntVar(&opts.ProgressEvery, "progress-every", crop.DefaultProgressEvery, "rows between progress logs, 0 disables")
	flag.BoolVar(&opts.DryRun, "dry-run", false, "parse and report without writing to the store")
	flag.BoolVar(&opts.Clear, "clear", false, "delete stored crop yields before loading")
	flag.Parse()

	if opts.Path == "" {
		flag.Usage()
		os.Exit(2)
	}

	if code := run(opts); code != 0 {
		os.Exit(code)
	}
}

func run(opts crop.Options) int {
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

	loader, err := crop.New(st, logger, metrics, opts)
	if err != nil {
		logger.Error("invalid options", "error", err)
		return 2
	}

	summary, runErr := loader.Run(ctx)

	if cfg.MetricsPushURL != "" {
		job := cfg.MetricsJob
		if job == "" {
			job = "cropyield"
		}
		if err := metrics.Push(cfg.MetricsPushURL, job); err != nil {
			logger.Warn("failed to push metrics", "error", err)
		}
	}

	if runErr != nil {
		logger.Error("crop yield load failed", "error", runErr)
		return 1
	}
	if summary.Failed() {
		logger.Error("crop yield load finished with failures", "batches_failed", summary.BatchesFailed)
		return 1
	}
	return 0
}
