// Package store defines the persistence surface shared by the pipelines and
// a factory over the postgres, sqlite, and in-memory backends. Consumers
// declare their own narrow subsets of these interfaces; commands wire a full
// Store through them.
package store

import (
	"context"
	"fmt"

	"weatherpipe/internal/domain"
	"weatherpipe/internal/store/memory"
	"weatherpipe/internal/store/postgres"
	"weatherpipe/internal/store/sqlite"
)

// Supported values for Options.Driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// ObservationStore is the ingestion pipeline's write surface. Stations are
// created on first encounter and immutable afterwards; observation upserts
// overwrite on (station, date) conflicts and are transactional per call.
type ObservationStore interface {
	EnsureStation(ctx context.Context, station domain.Station) error
	UpsertObservations(ctx context.Context, obs []domain.Observation) error
	ClearObservations(ctx context.Context) (int64, error)
}

// FileLogStore tracks which source files have already been loaded, keyed by
// file name, so unchanged files can be skipped on re-runs.
type FileLogStore interface {
	GetFileRecord(ctx context.Context, fileName string) (domain.FileRecord, error)
	UpsertFileRecord(ctx context.Context, rec domain.FileRecord) error
	ClearFileLog(ctx context.Context) (int64, error)
}

// StatsStore is the aggregation engine's surface: enumeration of work,
// reads of the observations feeding one summary row, and summary upserts
// that overwrite on (station, year) conflicts.
type StatsStore interface {
	DistinctStationYears(ctx context.Context, filter domain.StatsFilter) ([]domain.StatsKey, error)
	ExistingStatsKeys(ctx context.Context, filter domain.StatsFilter) (map[domain.StatsKey]struct{}, error)
	ObservationsForStationYear(ctx context.Context, stationID string, year int) ([]domain.Observation, error)
	UpsertYearlyStats(ctx context.Context, stats []domain.YearlyStats) error
	GetYearlyStats(ctx context.Context, key domain.StatsKey) (domain.YearlyStats, error)
	ClearYearlyStats(ctx context.Context, filter domain.StatsFilter) (int64, error)
}

// CropStore persists crop yield rows, unique on (year, crop, country, state).
type CropStore interface {
	UpsertCropYields(ctx context.Context, yields []domain.CropYield) error
	ClearCropYields(ctx context.Context) (int64, error)
}

// IntegrityStore serves the read-only cross-checks run by the verifier.
type IntegrityStore interface {
	ObservationCountsByStation(ctx context.Context) (map[string]int64, error)
	StationIDs(ctx context.Context) (map[string]struct{}, error)
}

// Store is the full persistence surface implemented by every backend.
type Store interface {
	ObservationStore
	FileLogStore
	StatsStore
	CropStore
	IntegrityStore

	Ping(ctx context.Context) error
	Close() error
}

// Backends must cover the whole surface.
var (
	_ Store = (*memory.Store)(nil)
	_ Store = (*postgres.Store)(nil)
	_ Store = (*sqlite.Store)(nil)
)

// Options selects and configures a backend.
type Options struct {
	Driver      string
	DatabaseURL string // postgres
	Path        string // sqlite database file
}

// Open validates opts and connects the selected backend, creating the
// schema when missing. The caller owns Close.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case DriverPostgres:
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("store: driver %q requires a database URL", opts.Driver)
		}
		return postgres.Open(ctx, opts.DatabaseURL)
	case DriverSQLite:
		if opts.Path == "" {
			return nil, fmt.Errorf("store: driver %q requires a database file path", opts.Driver)
		}
		return sqlite.Open(ctx, opts.Path)
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", opts.Driver)
	}
}
