// Package sqlite implements the persistence surface on a local SQLite file
// via modernc.org/sqlite. Dates are stored as ISO-8601 text and timestamps
// as RFC 3339 text; batch upserts run transactionally per call with a
// prepared statement.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"weatherpipe/internal/domain"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = time.RFC3339Nano
)

// Store is a SQLite-backed store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database file, tunes it for single-writer batch
// loads, and creates the schema when missing.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// initSchema creates the pipeline tables when they do not exist yet.
func (s *Store) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS stations (
			station_id  TEXT PRIMARY KEY,
			name        TEXT NOT NULL DEFAULT '',
			state       TEXT NOT NULL DEFAULT '',
			latitude    REAL,
			longitude   REAL,
			elevation_m REAL,
			created_at  TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS observations (
			station_id      TEXT NOT NULL REFERENCES stations(station_id),
			date            TEXT NOT NULL,
			max_temp_tenths INTEGER,
			min_temp_tenths INTEGER,
			precip_tenths   INTEGER,
			updated_at      TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (station_id, date)
		)`,
		`CREATE TABLE IF NOT EXISTS yearly_stats (
			station_id          TEXT NOT NULL REFERENCES stations(station_id),
			year                INTEGER NOT NULL,
			avg_max_temp_c      REAL,
			avg_min_temp_c      REAL,
			max_temp_c          REAL,
			min_temp_c          REAL,
			total_precip_mm     REAL,
			avg_precip_mm       REAL,
			max_precip_mm       REAL,
			total_records       INTEGER NOT NULL,
			records_with_temp   INTEGER NOT NULL,
			records_with_precip INTEGER NOT NULL,
			temp_completeness   REAL NOT NULL,
			precip_completeness REAL NOT NULL,
			computed_at         TEXT NOT NULL,
			PRIMARY KEY (station_id, year)
		)`,
		`CREATE TABLE IF NOT EXISTS crop_yields (
			year       INTEGER NOT NULL,
			crop_type  TEXT NOT NULL,
			country    TEXT NOT NULL,
			state      TEXT NOT NULL DEFAULT '',
			value      INTEGER NOT NULL,
			unit       TEXT NOT NULL,
			source     TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (year, crop_type, country, state)
		)`,
		`CREATE TABLE IF NOT EXISTS file_log (
			file_name    TEXT PRIMARY KEY,
			station_id   TEXT NOT NULL,
			size_bytes   INTEGER NOT NULL,
			checksum     TEXT NOT NULL,
			lines        INTEGER NOT NULL DEFAULT 0,
			records      INTEGER NOT NULL,
			rejected     INTEGER NOT NULL DEFAULT 0,
			processed_at TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// inTx runs fn inside a transaction. Rollback after Commit is a no-op.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// statsFilterConds renders filter as SQL conditions. yearExpr is the
// expression yielding the row's year in the queried table.
func statsFilterConds(filter domain.StatsFilter, yearExpr string, args *[]any) []string {
	var conds []string
	if filter.StationID != "" {
		conds = append(conds, "station_id = ?")
		*args = append(*args, filter.StationID)
	}
	if filter.Year != 0 {
		conds = append(conds, yearExpr+" = ?")
		*args = append(*args, filter.Year)
	}
	if filter.StartYear != 0 {
		conds = append(conds, yearExpr+" >= ?")
		*args = append(*args, filter.StartYear)
	}
	if filter.EndYear != 0 {
		conds = append(conds, yearExpr+" <= ?")
		*args = append(*args, filter.EndYear)
	}
	return conds
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}
