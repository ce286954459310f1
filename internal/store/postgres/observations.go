package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"weatherpipe/internal/domain"
)

// EnsureStation inserts the station if it is not already known. Existing
// rows are never modified.
func (s *Store) EnsureStation(ctx context.Context, station domain.Station) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO stations (station_id, name, state, latitude, longitude, elevation_m)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (station_id) DO NOTHING`,
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
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, o := range obs {
			_, err := tx.Exec(ctx,
				`INSERT INTO observations (station_id, date, max_temp_tenths, min_temp_tenths, precip_tenths, updated_at)
				 VALUES ($1, $2, $3, $4, $5, now())
				 ON CONFLICT (station_id, date) DO UPDATE SET
					max_temp_tenths = EXCLUDED.max_temp_tenths,
					min_temp_tenths = EXCLUDED.min_temp_tenths,
					precip_tenths   = EXCLUDED.precip_tenths,
					updated_at      = now()`,
				o.StationID, o.Date, o.MaxTempTenths, o.MinTempTenths, o.PrecipTenths,
			)
			if err != nil {
				return fmt.Errorf("upsert observation %s/%s: %w", o.StationID, o.Date.Format("2006-01-02"), err)
			}
		}
		return nil
	})
}

func (s *Store) ClearObservations(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM observations`)
	if err != nil {
		return 0, fmt.Errorf("clear observations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetFileRecord returns the stored log entry for fileName, or
// domain.ErrNotFound.
func (s *Store) GetFileRecord(ctx context.Context, fileName string) (domain.FileRecord, error) {
	var rec domain.FileRecord
	err := s.pool.QueryRow(ctx,
		`SELECT file_name, station_id, size_bytes, checksum, lines, records, rejected, processed_at
		 FROM file_log
		 WHERE file_name = $1`,
		fileName,
	).Scan(&rec.FileName, &rec.StationID, &rec.SizeBytes, &rec.Checksum, &rec.Lines, &rec.Records, &rec.Rejected, &rec.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FileRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.FileRecord{}, fmt.Errorf("get file record: %w", err)
	}
	return rec, nil
}

func (s *Store) UpsertFileRecord(ctx context.Context, rec domain.FileRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO file_log (file_name, station_id, size_bytes, checksum, lines, records, rejected, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (file_name) DO UPDATE SET
			station_id   = EXCLUDED.station_id,
			size_bytes   = EXCLUDED.size_bytes,
			checksum     = EXCLUDED.checksum,
			lines        = EXCLUDED.lines,
			records      = EXCLUDED.records,
			rejected     = EXCLUDED.rejected,
			processed_at = EXCLUDED.processed_at`,
		rec.FileName, rec.StationID, rec.SizeBytes, rec.Checksum, rec.Lines, rec.Records, rec.Rejected, rec.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert file record: %w", err)
	}
	return nil
}

func (s *Store) ClearFileLog(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM file_log`)
	if err != nil {
		return 0, fmt.Errorf("clear file log: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ObservationCountsByStation returns the stored observation count per
// station.
func (s *Store) ObservationCountsByStation(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx,
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
	rows, err := s.pool.Query(ctx, `SELECT station_id FROM stations`)
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
