package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"weatherpipe/internal/domain"
)

// UpsertCropYields writes one batch transactionally, overwriting rows that
// share a (year, crop type, country, state) key.
func (s *Store) UpsertCropYields(ctx context.Context, yields []domain.CropYield) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, y := range yields {
			_, err := tx.Exec(ctx,
				`INSERT INTO crop_yields (year, crop_type, country, state, value, unit, source, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, now())
				 ON CONFLICT (year, crop_type, country, state) DO UPDATE SET
					value      = EXCLUDED.value,
					unit       = EXCLUDED.unit,
					source     = EXCLUDED.source,
					updated_at = now()`,
				y.Year, y.CropType, y.Country, y.State, y.Value, y.Unit, y.Source,
			)
			if err != nil {
				return fmt.Errorf("upsert crop yield %d/%s: %w", y.Year, y.CropType, err)
			}
		}
		return nil
	})
}

func (s *Store) ClearCropYields(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM crop_yields`)
	if err != nil {
		return 0, fmt.Errorf("clear crop yields: %w", err)
	}
	return tag.RowsAffected(), nil
}
