// Package crop loads national crop yield files into the store. Each line
// holds two tab-separated integers, a year and a yield value; blank lines
// are skipped. Rows are unique on (year, crop type, country, state) and
// reloads overwrite.
package crop

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"weatherpipe/internal/domain"
	"weatherpipe/internal/observability"
)

// Defaults stamped on rows when the caller does not override them. They
// describe the national corn grain series the original dataset ships.
const (
	DefaultCropType = "corn_grain"
	DefaultCountry  = "US"
	DefaultUnit     = "thousand_metric_tons"
)

const (
	DefaultBatchSize = 1000
	MinBatchSize     = 1
	MaxBatchSize     = 10000
)

// DefaultProgressEvery is how many accepted rows pass between progress logs.
const DefaultProgressEvery = 1000

// Store is the storage surface the loader needs.
type Store interface {
	UpsertCropYields(ctx context.Context, yields []domain.CropYield) error
	ClearCropYields(ctx context.Context) (int64, error)
}

// Options controls one crop yield load.
type Options struct {
	// Path is the yield file to load.
	Path string
	// Row metadata stamped on every accepted line.
	CropType string
	Country  string
	State    string
	Unit     string
	Source   string
	// BatchSize is the number of accepted rows per storage write.
	BatchSize int
	// ProgressEvery is the number of rows between progress logs. Zero or
	// negative disables periodic progress.
	ProgressEvery int
	// DryRun parses and reports without writing to the store.
	DryRun bool
	// Clear deletes stored crop yields before loading.
	Clear bool
}

// Validate applies defaults and rejects out-of-range settings.
func (o *Options) Validate() error {
	if o.Path == "" {
		return errors.New("yield file is required")
	}
	if o.CropType == "" {
		o.CropType = DefaultCropType
	}
	if o.Country == "" {
		o.Country = DefaultCountry
	}
	if o.Unit == "" {
		o.Unit = DefaultUnit
	}
	if o.BatchSize == 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.BatchSize < MinBatchSize || o.BatchSize > MaxBatchSize {
		return fmt.Errorf("batch size %d out of range %d-%d", o.BatchSize, MinBatchSize, MaxBatchSize)
	}
	return nil
}

// Summary reports the outcome of one load.
type Summary struct {
	LinesRead     int
	Blank         int
	Accepted      int
	Rejected      int
	BatchesFailed int
	Cleared       int64
	Reasons       map[domain.RejectReason]int
	Rows          observability.Summary
}

// Failed reports whether any batch failed to persist. Rejected lines alone
// do not fail a run.
func (s Summary) Failed() bool {
	return s.BatchesFailed > 0
}

// Loader orchestrates the parse-load loop for one yield file.
type Loader struct {
	store   Store
	logger  *slog.Logger
	metrics *observability.Metrics
	opts    Options
}

// New creates a Loader.
func New(store Store, logger *slog.Logger, metrics *observability.Metrics, opts Options) (*Loader, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Loader{
		store:   store,
		logger:  logger,
		metrics: metrics,
		opts:    opts,
	}, nil
}

// Run loads the yield file and returns a run summary. An unreadable file
// aborts the run; rejected lines do not, and a failed batch write is counted
// and the run continues with the next batch.
func (l *Loader) Run(ctx context.Context) (Summary, error) {
	l.logger.Info("crop yield load started",
		"file", l.opts.Path,
		"crop_type", l.opts.CropType,
		"country", l.opts.Country,
		"dry_run", l.opts.DryRun,
	)
	l.metrics.PipelineRunning.Set(1)
	defer l.metrics.PipelineRunning.Set(0)

	summary := Summary{Reasons: map[domain.RejectReason]int{}}

	if l.opts.Clear {
		n, err := l.clear(ctx)
		if err != nil {
			return summary, err
		}
		summary.Cleared = n
	}

	f, err := os.Open(l.opts.Path)
	if err != nil {
		return summary, fmt.Errorf("open yield file: %w", err)
	}
	defer f.Close()

	progress := observability.NewProgress(l.logger, "yields", l.opts.ProgressEvery)
	batch := make([]domain.CropYield, 0, l.opts.BatchSize)
	scanner := bufio.NewScanner(f)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		if ctx.Err() != nil {
			summary.Rows = progress.Finish()
			return summary, ctx.Err()
		}

		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			summary.Blank++
			continue
		}
		summary.LinesRead++
		l.metrics.LinesRead.Inc()

		yield, rej := domain.ParseYieldLine(line, lineNum)
		if rej != nil {
			summary.Rejected++
			summary.Reasons[rej.Reason]++
			progress.AddFailure(1)
			l.metrics.RecordsRejected.WithLabelValues(string(rej.Reason)).Inc()
			l.logger.Warn("rejected line", "file", l.opts.Path, "line", rej.Line, "reason", rej.Reason, "detail", rej.Detail)
			continue
		}

		yield.CropType = l.opts.CropType
		yield.Country = l.opts.Country
		yield.State = l.opts.State
		yield.Unit = l.opts.Unit
		yield.Source = l.opts.Source

		batch = append(batch, yield)
		summary.Accepted++
		progress.AddSuccess(1)

		if len(batch) >= l.opts.BatchSize {
			l.flush(ctx, &summary, batch)
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		summary.Rows = progress.Finish()
		return summary, fmt.Errorf("scan yield file: %w", err)
	}

	l.flush(ctx, &summary, batch)

	summary.Rows = progress.Finish()
	l.metrics.LastRun.SetToCurrentTime()
	l.logger.Info("crop yield load finished",
		"lines", summary.LinesRead,
		"accepted", summary.Accepted,
		"rejected", summary.Rejected,
		"blank", summary.Blank,
		"batches_failed", summary.BatchesFailed,
		"rejected_by_reason", summary.Reasons,
	)
	return summary, nil
}

// clear removes stored crop yields. Refused in dry-run mode.
func (l *Loader) clear(ctx context.Context) (int64, error) {
	if l.opts.DryRun {
		l.logger.Warn("clear requested but dry run active, not clearing")
		return 0, nil
	}
	n, err := l.store.ClearCropYields(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear crop yields: %w", err)
	}
	l.logger.Info("cleared crop yields", "rows", n)
	return n, nil
}

// flush writes one accepted batch to the store. A failed write is counted
// and the run continues with the next batch.
func (l *Loader) flush(ctx context.Context, summary *Summary, batch []domain.CropYield) {
	if len(batch) == 0 {
		return
	}

	l.metrics.BatchSize.Observe(float64(len(batch)))
	if l.opts.DryRun {
		l.metrics.RecordsAccepted.Add(float64(len(batch)))
		return
	}

	start := time.Now()
	if err := l.store.UpsertCropYields(ctx, batch); err != nil {
		summary.BatchesFailed++
		l.metrics.BatchesFailed.Inc()
		l.logger.Error("batch failed", "size", len(batch), "error", err)
		return
	}
	l.metrics.BatchLoadDuration.Observe(time.Since(start).Seconds())
	l.metrics.RecordsAccepted.Add(float64(len(batch)))
}
