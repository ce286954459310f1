package observability

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Progress emits periodic progress lines and a final summary for one batch
// run. It is an observational side channel only and never affects pipeline
// outcomes.
type Progress struct {
	logger   *slog.Logger
	clock    clockwork.Clock
	label    string // what an item is: "records", "pairs", ...
	interval int    // emit a line every interval items; <=0 disables

	started   time.Time
	succeeded int
	failed    int
	lastEmit  int
}

// Summary is the final accounting for a run.
type Summary struct {
	Duration    time.Duration
	Processed   int
	Succeeded   int
	Failed      int
	RatePerSec  float64
	SuccessRate float64 // percent, 0 when nothing was processed
}

// NewProgress starts a reporter that logs every interval items processed.
func NewProgress(logger *slog.Logger, label string, interval int) *Progress {
	return newProgress(logger, label, interval, clockwork.NewRealClock())
}

func newProgress(logger *slog.Logger, label string, interval int, clock clockwork.Clock) *Progress {
	return &Progress{
		logger:   logger,
		clock:    clock,
		label:    label,
		interval: interval,
		started:  clock.Now(),
	}
}

// AddSuccess counts n successfully processed items.
func (p *Progress) AddSuccess(n int) {
	p.succeeded += n
	p.maybeEmit()
}

// AddFailure counts n failed items.
func (p *Progress) AddFailure(n int) {
	p.failed += n
	p.maybeEmit()
}

func (p *Progress) maybeEmit() {
	if p.interval <= 0 {
		return
	}
	processed := p.succeeded + p.failed
	if processed-p.lastEmit < p.interval {
		return
	}
	p.lastEmit = processed

	elapsed := p.clock.Since(p.started)
	p.logger.Info("progress",
		slog.String("items", p.label),
		slog.Int("processed", processed),
		slog.Duration("elapsed", elapsed.Round(time.Millisecond)),
		slog.Float64("rate_per_sec", ratePerSec(processed, elapsed)),
	)
}

// Finish computes the final summary, logs it, and returns it.
func (p *Progress) Finish() Summary {
	elapsed := p.clock.Since(p.started)
	s := Summary{
		Duration:   elapsed,
		Processed:  p.succeeded + p.failed,
		Succeeded:  p.succeeded,
		Failed:     p.failed,
		RatePerSec: ratePerSec(p.succeeded+p.failed, elapsed),
	}
	if s.Processed > 0 {
		s.SuccessRate = float64(s.Succeeded) / float64(s.Processed) * 100
	}

	p.logger.Info("run summary",
		slog.String("items", p.label),
		slog.Duration("duration", elapsed.Round(time.Millisecond)),
		slog.Int("processed", s.Processed),
		slog.Int("succeeded", s.Succeeded),
		slog.Int("failed", s.Failed),
		slog.Float64("rate_per_sec", s.RatePerSec),
		slog.Float64("success_rate", s.SuccessRate),
	)
	return s
}

func ratePerSec(items int, elapsed time.Duration) float64 {
	if elapsed <= 0 || items == 0 {
		return 0
	}
	return float64(items) / elapsed.Seconds()
}
