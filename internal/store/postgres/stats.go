package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"weatherpipe/internal/domain"
)

// obsYearExpr extracts the year of an observation row.
const obsYearExpr = "EXTRACT(YEAR FROM date)::int"

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

	rows, err := s.pool.Query(ctx, query, args...)
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

	rows, err := s.pool.Query(ctx, query, args...)
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
// year ordered by date.
func (s *Store) ObservationsForStationYear(ctx context.Context, stationID string, year int) ([]domain.Observation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT station_id, date, max_temp_tenths, min_temp_tenths, precip_tenths
		 FROM observations
		 WHERE station_id = $1
		   AND date >= make_date($2, 1, 1)
		   AND date < make_date($2 + 1, 1, 1)
		 ORDER BY date`,
		stationID, year,
	)
	if err != nil {
		return nil, fmt.Errorf("read observations: %w", err)
	}
	defer rows.Close()

	var obs []domain.Observation
	for rows.Next() {
		var o domain.Observation
		if err := rows.Scan(&o.StationID, &o.Date, &o.MaxTempTenths, &o.MinTempTenths, &o.PrecipTenths); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
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
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, st := range stats {
			_, err := tx.Exec(ctx,
				`INSERT INTO yearly_stats (
					station_id, year,
					avg_max_temp_c, avg_min_temp_c, max_temp_c, min_temp_c,
					total_precip_mm, avg_precip_mm, max_precip_mm,
					total_records, records_with_temp, records_with_precip,
					temp_completeness, precip_completeness, computed_at
				 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
				 ON CONFLICT (station_id, year) DO UPDATE SET
					avg_max_temp_c      = EXCLUDED.avg_max_temp_c,
					avg_min_temp_c      = EXCLUDED.avg_min_temp_c,
					max_temp_c          = EXCLUDED.max_temp_c,
					min_temp_c          = EXCLUDED.min_temp_c,
					total_precip_mm     = EXCLUDED.total_precip_mm,
					avg_precip_mm       = EXCLUDED.avg_precip_mm,
					max_precip_mm       = EXCLUDED.max_precip_mm,
					total_records       = EXCLUDED.total_records,
					records_with_temp   = EXCLUDED.records_with_temp,
					records_with_precip = EXCLUDED.records_with_precip,
					temp_completeness   = EXCLUDED.temp_completeness,
					precip_completeness = EXCLUDED.precip_completeness,
					computed_at         = EXCLUDED.computed_at`,
				st.StationID, st.Year,
				st.AvgMaxTempC, st.AvgMinTempC, st.MaxTempC, st.MinTempC,
				st.TotalPrecipMM, st.AvgPrecipMM, st.MaxPrecipMM,
				st.TotalRecords, st.RecordsWithTemp, st.RecordsWithPrecip,
				st.TempCompleteness, st.PrecipCompleteness, st.ComputedAt,
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
	err := s.pool.QueryRow(ctx,
		`SELECT station_id, year,
			avg_max_temp_c, avg_min_temp_c, max_temp_c, min_temp_c,
			total_precip_mm, avg_precip_mm, max_precip_mm,
			total_records, records_with_temp, records_with_precip,
			temp_completeness, precip_completeness, computed_at
		 FROM yearly_stats
		 WHERE station_id = $1 AND year = $2`,
		key.StationID, key.Year,
	).Scan(
		&st.StationID, &st.Year,
		&st.AvgMaxTempC, &st.AvgMinTempC, &st.MaxTempC, &st.MinTempC,
		&st.TotalPrecipMM, &st.AvgPrecipMM, &st.MaxPrecipMM,
		&st.TotalRecords, &st.RecordsWithTemp, &st.RecordsWithPrecip,
		&st.TempCompleteness, &st.PrecipCompleteness, &st.ComputedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.YearlyStats{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.YearlyStats{}, fmt.Errorf("get yearly stats: %w", err)
	}
	return st, nil
}

// ClearYearlyStats deletes stored summaries matching the filter and returns
// the number of rows removed.
func (s *Store) ClearYearlyStats(ctx context.Context, filter domain.StatsFilter) (int64, error) {
	var args []any
	conds := statsFilterConds(filter, "year", &args)

	tag, err := s.pool.Exec(ctx, `DELETE FROM yearly_stats`+whereClause(conds), args...)
	if err != nil {
		return 0, fmt.Errorf("clear yearly stats: %w", err)
	}
	return tag.RowsAffected(), nil
}
