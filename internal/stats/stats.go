// Package stats computes per-station yearly summaries from stored
// observations. Work is enumerated as distinct (station, year) pairs;
// pairs that already have a summary are skipped unless a recompute is
// forced.
package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"weatherpipe/internal/domain"
	"weatherpipe/internal/observability"
)

const (
	DefaultBatchSize = 100
	MinBatchSize     = 1
	MaxBatchSize     = 1000
)

// DefaultProgressEvery is how many pairs pass between progress logs.
const DefaultProgressEvery = 100

// Store is the storage surface the aggregator needs.
type Store interface {
	StationIDs(ctx context.Context) (map[string]struct{}, error)
	DistinctStationYears(ctx context.Context, filter domain.StatsFilter) ([]domain.StatsKey, error)
	ExistingStatsKeys(ctx context.Context, filter domain.StatsFilter) (map[domain.StatsKey]struct{}, error)
	ObservationsForStationYear(ctx context.Context, stationID string, year int) ([]domain.Observation, error)
	UpsertYearlyStats(ctx context.Context, stats []domain.YearlyStats) error
	ClearYearlyStats(ctx context.Context, filter domain.StatsFilter) (int64, error)
}

// Options controls one aggregation run.
type Options struct {
	// StationID restricts the run to one station. Empty means all.
	StationID string
	// Year restricts the run to one year. Mutually exclusive with the
	// StartYear/EndYear range.
	Year      int
	StartYear int
	EndYear   int
	// BatchSize is the number of summary rows per storage write.
	BatchSize int
	// ProgressEvery is the number of pairs between progress logs. Zero or
	// negative disables periodic progress.
	ProgressEvery int
	// Force recomputes pairs that already have a summary.
	Force bool
	// DryRun computes and reports without writing to the store.
	DryRun bool
	// Clear deletes matching summaries before computing.
	Clear bool
}

// Validate applies defaults and rejects inconsistent settings.
func (o *Options) Validate() error {
	if o.Year != 0 && (o.StartYear != 0 || o.EndYear != 0) {
		return errors.New("year and year range are mutually exclusive")
	}
	if o.StartYear != 0 && o.EndYear != 0 && o.StartYear > o.EndYear {
		return fmt.Errorf("start year %d after end year %d", o.StartYear, o.EndYear)
	}
	for _, y := range []int{o.Year, o.StartYear, o.EndYear} {
		if y != 0 && (y < domain.MinYear || y > domain.MaxYear) {
			return fmt.Errorf("year %d out of range %d-%d", y, domain.MinYear, domain.MaxYear)
		}
	}
	if o.BatchSize == 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.BatchSize < MinBatchSize || o.BatchSize > MaxBatchSize {
		return fmt.Errorf("batch size %d out of range %d-%d", o.BatchSize, MinBatchSize, MaxBatchSize)
	}
	return nil
}

func (o *Options) filter() domain.StatsFilter {
	return domain.StatsFilter{
		StationID: o.StationID,
		Year:      o.Year,
		StartYear: o.StartYear,
		EndYear:   o.EndYear,
	}
}

// Summary reports the outcome of one aggregation run.
type Summary struct {
	PairsFound    int
	PairsSkipped  int
	PairsComputed int
	PairsFailed   int
	Cleared       int64
	Pairs         observability.Summary
}

// Failed reports whether any summary batch failed to persist.
func (s Summary) Failed() bool {
	return s.PairsFailed > 0
}

// Aggregator orchestrates the enumerate-compute-upsert loop.
type Aggregator struct {
	store   Store
	logger  *slog.Logger
	metrics *observability.Metrics
	opts    Options
}

// New creates an Aggregator.
func New(store Store, logger *slog.Logger, metrics *observability.Metrics, opts Options) (*Aggregator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{
		store:   store,
		logger:  logger,
		metrics: metrics,
		opts:    opts,
	}, nil
}

// Run computes yearly summaries for every matching (station, year) pair.
// Storage read errors abort the run; a failed batch write is counted and
// the run continues with the next batch.
func (a *Aggregator) Run(ctx context.Context) (Summary, error) {
	a.logger.Info("aggregation started",
		"batch_size", a.opts.BatchSize,
		"force", a.opts.Force,
		"dry_run", a.opts.DryRun,
	)
	a.metrics.PipelineRunning.Set(1)
	defer a.metrics.PipelineRunning.Set(0)

	var summary Summary
	filter := a.opts.filter()

	if a.opts.StationID != "" {
		stations, err := a.store.StationIDs(ctx)
		if err != nil {
			return summary, fmt.Errorf("list stations: %w", err)
		}
		if _, ok := stations[a.opts.StationID]; !ok {
			return summary, fmt.Errorf("unknown station %q", a.opts.StationID)
		}
	}

	if a.opts.Clear {
		n, err := a.clear(ctx, filter)
		if err != nil {
			return summary, err
		}
		summary.Cleared = n
	}

	keys, err := a.store.DistinctStationYears(ctx, filter)
	if err != nil {
		return summary, fmt.Errorf("enumerate station years: %w", err)
	}
	summary.PairsFound = len(keys)
	if len(keys) == 0 {
		a.logger.Warn("no observations match the filter")
		return summary, nil
	}

	if !a.opts.Force {
		keys, summary.PairsSkipped, err = a.dropExisting(ctx, keys, filter)
		if err != nil {
			return summary, err
		}
	}

	progress := observability.NewProgress(a.logger, "station-years", a.opts.ProgressEvery)
	batch := make([]domain.YearlyStats, 0, a.opts.BatchSize)

	for _, key := range keys {
		if ctx.Err() != nil {
			summary.Pairs = progress.Finish()
			return summary, ctx.Err()
		}

		obs, err := a.store.ObservationsForStationYear(ctx, key.StationID, key.Year)
		if err != nil {
			summary.Pairs = progress.Finish()
			return summary, fmt.Errorf("read observations for %s/%d: %w", key.StationID, key.Year, err)
		}

		batch = append(batch, domain.ComputeYearlyStats(key.StationID, key.Year, obs))
		progress.AddSuccess(1)

		if len(batch) >= a.opts.BatchSize {
			a.flush(ctx, &summary, batch)
			batch = batch[:0]
		}
	}

	a.flush(ctx, &summary, batch)

	summary.Pairs = progress.Finish()
	a.metrics.LastRun.SetToCurrentTime()
	a.logger.Info("aggregation finished",
		"pairs_found", summary.PairsFound,
		"pairs_skipped", summary.PairsSkipped,
		"pairs_computed", summary.PairsComputed,
		"pairs_failed", summary.PairsFailed,
		"cleared", summary.Cleared,
	)
	return summary, nil
}

// clear removes matching summaries so the run recomputes from scratch.
// Refused in dry-run mode.
func (a *Aggregator) clear(ctx context.Context, filter domain.StatsFilter) (int64, error) {
	if a.opts.DryRun {
		a.logger.Warn("clear requested but dry run active, not clearing")
		return 0, nil
	}
	n, err := a.store.ClearYearlyStats(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("clear yearly stats: %w", err)
	}
	a.logger.Info("cleared yearly stats", "rows", n)
	return n, nil
}

// dropExisting removes pairs that already have a stored summary.
func (a *Aggregator) dropExisting(ctx context.Context, keys []domain.StatsKey, filter domain.StatsFilter) ([]domain.StatsKey, int, error) {
	existing, err := a.store.ExistingStatsKeys(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list existing stats: %w", err)
	}
	if len(existing) == 0 {
		return keys, 0, nil
	}

	remaining := keys[:0]
	skipped := 0
	for _, key := range keys {
		if _, ok := existing[key]; ok {
			skipped++
			a.metrics.StatsSkipped.Inc()
			continue
		}
		remaining = append(remaining, key)
	}
	return remaining, skipped, nil
}

// flush writes one batch of summaries to the store. A failed write is
// counted and the run continues with the next batch.
func (a *Aggregator) flush(ctx context.Context, summary *Summary, batch []domain.YearlyStats) {
	if len(batch) == 0 {
		return
	}
	if !a.opts.DryRun {
		if err := a.store.UpsertYearlyStats(ctx, batch); err != nil {
			summary.PairsFailed += len(batch)
			a.metrics.BatchesFailed.Inc()
			a.metrics.StatsFailed.Add(float64(len(batch)))
			a.logger.Error("summary batch failed", "size", len(batch), "error", err)
			return
		}
	}
	summary.PairsComputed += len(batch)
	a.metrics.StatsComputed.Add(float64(len(batch)))
}
