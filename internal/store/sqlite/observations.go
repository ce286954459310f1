package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"weatherpipe/internal/domain"
)

// EnsureStation inserts the station if it is not already known. Existing
// rows are never modified.
func (s *Store) EnsureStation(ctx context.Context, station domain.Station) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO stations (station_id, name, state, latitude, longitude, elevation_m)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		station.ID, station.Name, station.State,
		station.Latitude, station.Longitude, station.ElevationM,
	)
	if err != nil {
		return fmt.Errorf("ensure station: %w", err)
	}
	return nil
}

// UpsertObservations writes one batch transactionally, overwriting rows
// that share a (station, date) key. Missing measurements are stored as
// NULL.
func (s *Store) UpsertObservations(ctx context.Context, obs []domain.Observation) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO observations (station_id, date, max_temp_tenths, min_temp_tenths, precip_tenths, updated_at)
			 VALUES (?, ?, ?, ?, ?, datetime('now'))
			 ON CONFLICT (station_id, date) DO UPDATE SET
				max_temp_tenths = excluded.max_temp_tenths,
				min_temp_tenths = excluded.min_temp_tenths,
				precip_tenths   = excluded.precip_tenths,
				updated_at      = datetime('now')`)
		if err != nil {
			return fmt.Errorf("prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, o := range obs {
			day := o.Date.Format(dateLayout)
			if _, err := stmt.ExecContext(ctx, o.StationID, day, o.MaxTempTenths, o.MinTempTenths, o.PrecipTenths); err != nil {
				return fmt.Errorf("upsert observation %s/%s: %w", o.StationID, day, err)
			}
		}
		return nil
	})
}

func (s *Store) ClearObservations(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM observations`)
	if err != nil {
		return 0, fmt.Errorf("clear observations: %w", err)
	}
	return res.RowsAffected()
}

// GetFileRecord returns the stored log entry for fileName, or
// domain.ErrNotFound.
func (s *Store) GetFileRecord(ctx context.Context, fileName string) (domain.FileRecord, error) {
	var rec domain.FileRecord
	var processedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT file_name, station_id, size_bytes, checksum, lines, records, rejected, processed_at
		 FROM file_log
		 WHERE file_name = ?`,
		fileName,
	).Scan(&rec.FileName, &rec.StationID, &rec.SizeBytes, &rec.Checksum, &rec.Lines, &rec.Records, &rec.Rejected, &processedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FileRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.FileRecord{}, fmt.Errorf("get file record: %w", err)
	}

	rec.ProcessedAt, err = time.Parse(timeLayout, processedAt)
	if err != nil {
		return domain.FileRecord{}, fmt.Errorf("parse processed_at: %w", err)
	}
	return rec, nil
}

func (s *Store) UpsertFileRecord(ctx context.Context, rec domain.FileRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO file_log (file_name, station_id, size_bytes, checksum, lines, records, rejected, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (file_name) DO UPDATE SET
			station_id   = excluded.station_id,
			size_bytes   = excluded.size_bytes,
			checksum     = excluded.checksum,
			lines        = excluded.lines,
			records      = excluded.records,
			rejected     = excluded.rejected,
			processed_at = excluded.processed_at`,
		rec.FileName, rec.StationID, rec.SizeBytes, rec.Checksum, rec.Lines, rec.Records, rec.Rejected,
		rec.ProcessedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert file record: %w", err)
	}
	return nil
}

func (s *Store) ClearFileLog(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM file_log`)
	if err != nil {
		return 0, fmt.Errorf("clear file log: %w", err)
	}
	return res.RowsAffected()
}

// ObservationCountsByStation returns the stored observation count per
// station.
func (s *Store) ObservationCountsByStation(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT station_id, COUNT(*)
		 FROM observations
		 GROUP BY station_id`)
	if err != nil {
		return nil, fmt.Errorf("count observations: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var stationID string
		var count int64
		if err := rows.Scan(&stationID, &count); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		counts[stationID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate count rows: %w", err)
	}
	return counts, nil
}

func (s *Store) StationIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT station_id FROM stations`)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan station row: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate station rows: %w", err)
	}
	return ids, nil
}
