// Package postgres implements the persistence surface on PostgreSQL via
// pgx. Batch upserts run inside a transaction per call.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"weatherpipe/internal/domain"
)

// Store is a PostgreSQL-backed store.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to the database, verifies connectivity, and creates the
// schema when missing.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// initSchema creates the pipeline tables when they do not exist yet.
func (s *Store) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS stations (
			station_id  TEXT PRIMARY KEY,
			name        TEXT NOT NULL DEFAULT '',
			state       TEXT NOT NULL DEFAULT '',
			latitude    DOUBLE PRECISION,
			longitude   DOUBLE PRECISION,
			elevation_m DOUBLE PRECISION,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS observations (
			station_id      TEXT NOT NULL REFERENCES stations(station_id),
			date            DATE NOT NULL,
			max_temp_tenths INTEGER,
			min_temp_tenths INTEGER,
			precip_tenths   INTEGER,
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (station_id, date)
		)`,
		`CREATE TABLE IF NOT EXISTS yearly_stats (
			station_id          TEXT NOT NULL REFERENCES stations(station_id),
			year                INTEGER NOT NULL,
			avg_max_temp_c      DOUBLE PRECISION,
			avg_min_temp_c      DOUBLE PRECISION,
			max_temp_c          DOUBLE PRECISION,
			min_temp_c          DOUBLE PRECISION,
			total_precip_mm     DOUBLE PRECISION,
			avg_precip_mm       DOUBLE PRECISION,
			max_precip_mm       DOUBLE PRECISION,
			total_records       INTEGER NOT NULL,
			records_with_temp   INTEGER NOT NULL,
			records_with_precip INTEGER NOT NULL,
			temp_completeness   DOUBLE PRECISION NOT NULL,
			precip_completeness DOUBLE PRECISION NOT NULL,
			computed_at         TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (station_id, year)
		)`,
		`CREATE TABLE IF NOT EXISTS crop_yields (
			year       INTEGER NOT NULL,
			crop_type  TEXT NOT NULL,
			country    TEXT NOT NULL,
			state      TEXT NOT NULL DEFAULT '',
			value      BIGINT NOT NULL,
			unit       TEXT NOT NULL,
			source     TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (year, crop_type, country, state)
		)`,
		`CREATE TABLE IF NOT EXISTS file_log (
			file_name    TEXT PRIMARY KEY,
			station_id   TEXT NOT NULL,
			size_bytes   BIGINT NOT NULL,
			checksum     TEXT NOT NULL,
			lines        INTEGER NOT NULL DEFAULT 0,
			records      INTEGER NOT NULL,
			rejected     INTEGER NOT NULL DEFAULT 0,
			processed_at TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// inTx runs fn inside a transaction. Rollback after Commit is a no-op.
func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// statsFilterConds renders filter as SQL conditions. yearExpr is the
// expression yielding the row's year in the queried table.
func statsFilterConds(filter domain.StatsFilter, yearExpr string, args *[]any) []string {
	var conds []string
	if filter.StationID != "" {
		*args = append(*args, filter.StationID)
		conds = append(conds, fmt.Sprintf("station_id = $%d", len(*args)))
	}
	if filter.Year != 0 {
		*args = append(*args, filter.Year)
		conds = append(conds, fmt.Sprintf("%s = $%d", yearExpr, len(*args)))
	}
	if filter.StartYear != 0 {
		*args = append(*args, filter.StartYear)
		conds = append(conds, fmt.Sprintf("%s >= $%d", yearExpr, len(*args)))
	}
	if filter.EndYear != 0 {
		*args = append(*args, filter.EndYear)
		conds = append(conds, fmt.Sprintf("%s <= $%d", yearExpr, len(*args)))
	}
	return conds
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}
