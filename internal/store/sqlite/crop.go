package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"weatherpipe/internal/domain"
)

// UpsertCropYields writes one batch transactionally, overwriting rows that
// share a (year, crop type, country, state) key.
func (s *Store) UpsertCropYields(ctx context.Context, yields []domain.CropYield) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO crop_yields (year, crop_type, country, state, value, unit, source, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'))
			 ON CONFLICT (year, crop_type, country, state) DO UPDATE SET
				value      = excluded.value,
				unit       = excluded.unit,
				source     = excluded.source,
				updated_at = datetime('now')`)
		if err != nil {
			return fmt.Errorf("prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, y := range yields {
			if _, err := stmt.ExecContext(ctx, y.Year, y.CropType, y.Country, y.State, y.Value, y.Unit, y.Source); err != nil {
				return fmt.Errorf("upsert crop yield %d/%s: %w", y.Year, y.CropType, err)
			}
		}
		return nil
	})
}

func (s *Store) ClearCropYields(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM crop_yields`)
	if err != nil {
		return 0, fmt.Errorf("clear crop yields: %w", err)
	}
	return res.RowsAffected()
}
