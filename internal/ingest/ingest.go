// Package ingest loads per-station observation files into the store.
//
// Each file in the data directory matching the file pattern holds one
// station's daily records. Files are processed independently: a file that
// cannot be read is counted as failed and the run moves on to the next one,
// and a batch whose transaction fails is counted and the file continues
// with its next batch. Unchanged files are detected by checksum and skipped
// unless a reprocess is requested.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"weatherpipe/internal/domain"
	"weatherpipe/internal/observability"
)

// DefaultPattern matches per-station observation files in the data
// directory.
const DefaultPattern = "USC*.txt"

const (
	DefaultBatchSize = 1000
	MinBatchSize     = 1
	MaxBatchSize     = 10000
)

// DefaultProgressEvery is how many parsed lines pass between progress logs.
const DefaultProgressEvery = 10000

// Store is the storage surface the ingester needs.
type Store interface {
	EnsureStation(ctx context.Context, station domain.Station) error
	UpsertObservations(ctx context.Context, obs []domain.Observation) error
	GetFileRecord(ctx context.Context, fileName string) (domain.FileRecord, error)
	UpsertFileRecord(ctx context.Context, rec domain.FileRecord) error
	ClearObservations(ctx context.Context) (int64, error)
	ClearFileLog(ctx context.Context) (int64, error)
}

// Publisher feeds accepted observation batches to downstream consumers.
type Publisher interface {
	PublishBatch(ctx context.Context, obs []domain.Observation) error
}

// Options controls one ingest run.
type Options struct {
	// Dir is the directory scanned for observation files.
	Dir string
	// Pattern is the file glob within Dir. Empty means DefaultPattern.
	Pattern string
	// BatchSize is the number of accepted records per storage write.
	BatchSize int
	// ProgressEvery is the number of parsed lines between progress logs.
	// Zero or negative disables periodic progress.
	ProgressEvery int
	// DryRun parses and reports without writing to the store.
	DryRun bool
	// Reprocess loads files even when their checksum is unchanged.
	Reprocess bool
	// Clear deletes stored observations and the file log before loading.
	Clear bool
}

// Validate applies defaults and rejects out-of-range settings.
func (o *Options) Validate() error {
	if o.Dir == "" {
		return errors.New("data directory is required")
	}
	if o.Pattern == "" {
		o.Pattern = DefaultPattern
	}
	if o.BatchSize == 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.BatchSize < MinBatchSize || o.BatchSize > MaxBatchSize {
		return fmt.Errorf("batch size %d out of range %d-%d", o.BatchSize, MinBatchSize, MaxBatchSize)
	}
	return nil
}

// Summary reports the outcome of one ingest run.
type Summary struct {
	FilesScanned  int
	FilesLoaded   int
	FilesSkipped  int
	FilesFailed   int
	LinesRead     int
	BatchesFailed int
	Reasons       map[domain.RejectReason]int
	Records       observability.Summary
}

// Failed reports whether any file or batch failed outright. Rejected lines
// alone do not fail a run.
func (s Summary) Failed() bool {
	return s.FilesFailed > 0 || s.BatchesFailed > 0
}

// Ingester orchestrates the scan-parse-load loop.
type Ingester struct {
	store   Store
	feed    Publisher
	logger  *slog.Logger
	metrics *observability.Metrics
	opts    Options
}

// New creates an Ingester. feed may be nil when no downstream feed is
// configured.
func New(store Store, feed Publisher, logger *slog.Logger, metrics *observability.Metrics, opts Options) (*Ingester, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Ingester{
		store:   store,
		feed:    feed,
		logger:  logger,
		metrics: metrics,
		opts:    opts,
	}, nil
}

// Run processes every observation file in the data directory and returns a
// run summary. The returned error is non-nil only for run-level failures
// such as an unusable data directory or a cancelled context; per-file and
// per-batch failures are reported in the summary.
func (i *Ingester) Run(ctx context.Context) (Summary, error) {
	i.logger.Info("ingest started",
		"dir", i.opts.Dir,
		"pattern", i.opts.Pattern,
		"batch_size", i.opts.BatchSize,
		"dry_run", i.opts.DryRun,
	)
	i.metrics.PipelineRunning.Set(1)
	defer i.metrics.PipelineRunning.Set(0)

	summary := Summary{Reasons: map[domain.RejectReason]int{}}

	if i.opts.Clear {
		if err := i.clear(ctx); err != nil {
			return summary, err
		}
	}

	files, err := filepath.Glob(filepath.Join(i.opts.Dir, i.opts.Pattern))
	if err != nil {
		return summary, fmt.Errorf("scan data directory: %w", err)
	}
	if len(files) == 0 {
		i.logger.Warn("no observation files found", "dir", i.opts.Dir, "pattern", i.opts.Pattern)
	}
	summary.FilesScanned = len(files)

	progress := observability.NewProgress(i.logger, "records", i.opts.ProgressEvery)

	for _, path := range files {
		if ctx.Err() != nil {
			summary.Records = progress.Finish()
			return summary, ctx.Err()
		}

		res, err := i.processFile(ctx, path, progress)
		summary.LinesRead += res.lines
		summary.BatchesFailed += res.batchesFailed
		for reason, n := range res.reasons {
			summary.Reasons[reason] += n
		}

		switch {
		case err != nil:
			summary.FilesFailed++
			i.metrics.FilesProcessed.WithLabelValues("failed").Inc()
			i.logger.Error("file failed", "file", filepath.Base(path), "error", err)
		case res.skipped:
			summary.FilesSkipped++
			i.metrics.FilesProcessed.WithLabelValues("skipped").Inc()
		case res.batchesFailed > 0:
			summary.FilesLoaded++
			i.metrics.FilesProcessed.WithLabelValues("loaded").Inc()
			i.logger.Warn("file partially loaded",
				"file", filepath.Base(path),
				"station", res.stationID,
				"accepted", res.accepted,
				"batches_failed", res.batchesFailed,
			)
		default:
			summary.FilesLoaded++
			i.metrics.FilesProcessed.WithLabelValues("loaded").Inc()
			i.logger.Info("file loaded",
				"file", filepath.Base(path),
				"station", res.stationID,
				"lines", res.lines,
				"accepted", res.accepted,
				"rejected", res.rejected,
			)
		}
	}

	summary.Records = progress.Finish()
	i.metrics.LastRun.SetToCurrentTime()
	i.logger.Info("ingest finished",
		"files_scanned", summary.FilesScanned,
		"files_loaded", summary.FilesLoaded,
		"files_skipped", summary.FilesSkipped,
		"files_failed", summary.FilesFailed,
		"lines_read", summary.LinesRead,
		"batches_failed", summary.BatchesFailed,
		"rejected_by_reason", summary.Reasons,
	)
	return summary, nil
}

// clear removes stored observations and the file log so the next load starts
// from nothing. Refused in dry-run mode.
func (i *Ingester) clear(ctx context.Context) error {
	if i.opts.DryRun {
		i.logger.Warn("clear requested but dry run active, not clearing")
		return nil
	}
	obs, err := i.store.ClearObservations(ctx)
	if err != nil {
		return fmt.Errorf("clear observations: %w", err)
	}
	entries, err := i.store.ClearFileLog(ctx)
	if err != nil {
		return fmt.Errorf("clear file log: %w", err)
	}
	i.logger.Info("cleared store", "observations", obs, "file_entries", entries)
	return nil
}

// fileResult summarizes one processed file.
type fileResult struct {
	stationID     string
	lines         int
	accepted      int
	rejected      int
	batchesFailed int
	reasons       map[domain.RejectReason]int
	skipped       bool
}

// processFile parses one station file and loads accepted records in batches.
func (i *Ingester) processFile(ctx context.Context, path string, progress *observability.Progress) (fileResult, error) {
	name := filepath.Base(path)
	stationID := stationIDFromFile(name)
	res := fileResult{stationID: stationID, reasons: map[domain.RejectReason]int{}}

	data, err := os.ReadFile(path)
	if err != nil {
		return res, fmt.Errorf("read file: %w", err)
	}
	checksum := fmt.Sprintf("%x", sha256.Sum256(data))

	skip, err := i.shouldSkip(ctx, name, checksum)
	if err != nil {
		return res, err
	}
	if skip {
		i.logger.Info("file unchanged, skipping", "file", name, "checksum", checksum)
		res.skipped = true
		return res, nil
	}

	if !i.opts.DryRun {
		// The source carries no station metadata, so the name defaults to
		// the id.
		st := domain.Station{ID: stationID, Name: stationID}
		if err := i.store.EnsureStation(ctx, st); err != nil {
			return res, fmt.Errorf("ensure station %s: %w", stationID, err)
		}
	}

	batch := make([]domain.Observation, 0, i.opts.BatchSize)
	scanner := bufio.NewScanner(bytes.NewReader(data))

	for scanner.Scan() {
		res.lines++
		i.metrics.LinesRead.Inc()

		obs, rej := domain.ParseLine(scanner.Text(), res.lines)
		if rej != nil {
			res.rejected++
			res.reasons[rej.Reason]++
			progress.AddFailure(1)
			i.metrics.RecordsRejected.WithLabelValues(string(rej.Reason)).Inc()
			i.logger.Warn("rejected line", "file", name, "line", rej.Line, "reason", rej.Reason, "detail", rej.Detail)
			continue
		}

		obs.StationID = stationID
		batch = append(batch, obs)
		res.accepted++
		progress.AddSuccess(1)

		if len(batch) >= i.opts.BatchSize {
			i.flush(ctx, &res, batch)
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("scan file: %w", err)
	}

	i.flush(ctx, &res, batch)

	// A file with failed batches stays out of the log so the next run
	// retries it.
	if !i.opts.DryRun && res.batchesFailed == 0 {
		rec := domain.FileRecord{
			FileName:    name,
			StationID:   stationID,
			SizeBytes:   int64(len(data)),
			Checksum:    checksum,
			Lines:       res.lines,
			Records:     res.accepted,
			Rejected:    res.rejected,
			ProcessedAt: domain.Now(),
		}
		if err := i.store.UpsertFileRecord(ctx, rec); err != nil {
			return res, fmt.Errorf("record file log: %w", err)
		}
	}

	return res, nil
}

// shouldSkip reports whether the file's stored checksum matches the current
// one. Reprocess runs never skip.
func (i *Ingester) shouldSkip(ctx context.Context, fileName, checksum string) (bool, error) {
	if i.opts.Reprocess {
		return false, nil
	}
	rec, err := i.store.GetFileRecord(ctx, fileName)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("look up file log: %w", err)
	}
	return rec.Checksum == checksum, nil
}

// flush writes one accepted batch to the store and, when a feed is
// configured, publishes it. A failed batch write is counted and the file
// continues with its next batch; feed failures never fail a batch.
func (i *Ingester) flush(ctx context.Context, res *fileResult, batch []domain.Observation) {
	if len(batch) == 0 {
		return
	}

	i.metrics.BatchSize.Observe(float64(len(batch)))
	if i.opts.DryRun {
		i.metrics.RecordsAccepted.Add(float64(len(batch)))
		return
	}

	start := time.Now()
	if err := i.store.UpsertObservations(ctx, batch); err != nil {
		res.batchesFailed++
		i.metrics.BatchesFailed.Inc()
		i.logger.Error("batch failed", "station", res.stationID, "size", len(batch), "error", err)
		return
	}
	i.metrics.BatchLoadDuration.Observe(time.Since(start).Seconds())
	i.metrics.RecordsAccepted.Add(float64(len(batch)))

	if i.feed != nil {
		if err := i.feed.PublishBatch(ctx, batch); err != nil {
			i.logger.Warn("feed publish failed", "error", err, "batch_size", len(batch))
		}
	}
}

// stationIDFromFile derives the station id from the file name, e.g.
// USC00110072.txt -> USC00110072.
func stationIDFromFile(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
