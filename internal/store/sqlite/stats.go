package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"weatherpipe/internal/domain"
)

// obsYearExpr extracts the year of an observation row's ISO date text.
const obsYearExpr = "CAST(substr(date, 1, 4) AS INTEGER)"

// DistinctStationYears enumerates the (station, year) pairs that have
// observations and match the filter, ordered by station then year.
func (s *Store) DistinctStationYears(ctx context.Context, filter domain.StatsFilter) ([]domain.StatsKey, error) {
	var args []any
	conds := statsFilterConds(filter, obsYearExpr, &args)

	query := fmt.Sprintf(
		`SELECT DISTINCT station_id, %s AS year
		 FROM observations%s
		 ORDER BY station_id, year`,
		obsYearExpr, whereClause(conds))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("enumerate station years: %w", err)
	}
	defer rows.Close()

	var keys []domain.StatsKey
	for rows.Next() {
		var key domain.StatsKey
		if err := rows.Scan(&key.StationID, &key.Year); err != nil {
			return nil, fmt.Errorf("scan station year: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate station years: %w", err)
	}
	return keys, nil
}

// ExistingStatsKeys returns the (station, year) pairs that already have a
// stored summary and match the filter.
func (s *Store) ExistingStatsKeys(ctx context.Context, filter domain.StatsFilter) (map[domain.StatsKey]struct{}, error) {
	var args []any
	conds := statsFilterConds(filter, "year", &args)

	query := `SELECT station_id, year FROM yearly_stats` + whereClause(conds)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list existing stats: %w", err)
	}
	defer rows.Close()

	keys := make(map[domain.StatsKey]struct{})
	for rows.Next() {
		var key domain.StatsKey
		if err := rows.Scan(&key.StationID, &key.Year); err != nil {
			return nil, fmt.Errorf("scan stats key: %w", err)
		}
		keys[key] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats keys: %w", err)
	}
	return keys, nil
}

// ObservationsForStationYear returns one station's observations for one
// year ordered by date. ISO date text compares lexicographically.
func (s *Store) ObservationsForStationYear(ctx context.Context, stationID string, year int) ([]domain.Observation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT station_id, date, max_temp_tenths, min_temp_tenths, precip_tenths
		 FROM observations
		 WHERE station_id = ? AND date >= ? AND date <= ?
		 ORDER BY date`,
		stationID,
		fmt.Sprintf("%04d-01-01", year),
		fmt.Sprintf("%04d-12-31", year),
	)
	if err != nil {
		return nil, fmt.Errorf("read observations: %w", err)
	}
	defer rows.Close()

	var obs []domain.Observation
	for rows.Next() {
		var o domain.Observation
		var day string
		if err := rows.Scan(&o.StationID, &day, &o.MaxTempTenths, &o.MinTempTenths, &o.PrecipTenths); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.Date, err = time.Parse(dateLayout, day)
		if err != nil {
			return nil, fmt.Errorf("parse observation date: %w", err)
		}
		obs = append(obs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}
	return obs, nil
}

// UpsertYearlyStats writes one batch transactionally, overwriting rows that
// share a (station, year) key.
func (s *Store) UpsertYearlyStats(ctx context.Context, stats []domain.YearlyStats) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO yearly_stats (
				station_id, year,
				avg_max_temp_c, avg_min_temp_c, max_temp_c, min_temp_c,
				total_precip_mm, avg_precip_mm, max_precip_mm,
				total_records, records_with_temp, records_with_precip,
				temp_completeness, precip_completeness, computed_at
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (station_id, year) DO UPDATE SET
				avg_max_temp_c      = excluded.avg_max_temp_c,
				avg_min_temp_c      = excluded.avg_min_temp_c,
				max_temp_c          = excluded.max_temp_c,
				min_temp_c          = excluded.min_temp_c,
				total_precip_mm     = excluded.total_precip_mm,
				avg_precip_mm       = excluded.avg_precip_mm,
				max_precip_mm       = excluded.max_precip_mm,
				total_records       = excluded.total_records,
				records_with_temp   = excluded.records_with_temp,
				records_with_precip = excluded.records_with_precip,
				temp_completeness   = excluded.temp_completeness,
				precip_completeness = excluded.precip_completeness,
				computed_at         = excluded.computed_at`)
		if err != nil {
			return fmt.Errorf("prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, st := range stats {
			_, err := stmt.ExecContext(ctx,
				st.StationID, st.Year,
				st.AvgMaxTempC, st.AvgMinTempC, st.MaxTempC, st.MinTempC,
				st.TotalPrecipMM, st.AvgPrecipMM, st.MaxPrecipMM,
				st.TotalRecords, st.RecordsWithTemp, st.RecordsWithPrecip,
				st.TempCompleteness, st.PrecipCompleteness,
				st.ComputedAt.UTC().Format(timeLayout),
			)
			if err != nil {
				return fmt.Errorf("upsert yearly stats %s/%d: %w", st.StationID, st.Year, err)
			}
		}
		return nil
	})
}

// GetYearlyStats returns the stored summary for key, or domain.ErrNotFound.
func (s *Store) GetYearlyStats(ctx context.Context, key domain.StatsKey) (domain.YearlyStats, error) {
	var st domain.YearlyStats
	var computedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT station_id, year,
			avg_max_temp_c, avg_min_temp_c, max_temp_c, min_temp_c,
			total_precip_mm, avg_precip_mm, max_precip_mm,
			total_records, records_with_temp, records_with_precip,
			temp_completeness, precip_completeness, computed_at
		 FROM yearly_stats
		 WHERE station_id = ? AND year = ?`,
		key.StationID, key.Year,
	).Scan(
		&st.StationID, &st.Year,
		&st.AvgMaxTempC, &st.AvgMinTempC, &st.MaxTempC, &st.MinTempC,
		&st.TotalPrecipMM, &st.AvgPrecipMM, &st.MaxPrecipMM,
		&st.TotalRecords, &st.RecordsWithTemp, &st.RecordsWithPrecip,
		&st.TempCompleteness, &st.PrecipCompleteness, &computedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.YearlyStats{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.YearlyStats{}, fmt.Errorf("get yearly stats: %w", err)
	}

	st.ComputedAt, err = time.Parse(timeLayout, computedAt)
	if err != nil {
		return domain.YearlyStats{}, fmt.Errorf("parse computed_at: %w", err)
	}
	return st, nil
}

// ClearYearlyStats deletes stored summaries matching the filter and returns
// the number of rows removed.
func (s *Store) ClearYearlyStats(ctx context.Context, filter domain.StatsFilter) (int64, error) {
	var args []any
	conds := statsFilterConds(filter, "year", &args)

	res, err := s.db.ExecContext(ctx, `DELETE FROM yearly_stats`+whereClause(conds), args...)
	if err != nil {
		return 0, fmt.Errorf("clear yearly stats: %w", err)
	}
	return res.RowsAffected()
}
