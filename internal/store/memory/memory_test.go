package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weatherpipe/internal/domain"
)

func obsAt(station string, date time.Time, maxT int) domain.Observation {
	return domain.Observation{
		StationID:     station,
		Date:          date,
		MaxTempTenths: &maxT,
	}
}

func TestUpsertObservationsOverwrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	day := time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertObservations(ctx, []domain.Observation{obsAt("USC00110072", day, 289)}))
	require.NoError(t, s.UpsertObservations(ctx, []domain.Observation{obsAt("USC00110072", day, 300)}))

	counts, err := s.ObservationCountsByStation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["USC00110072"])

	obs, err := s.ObservationsForStationYear(ctx, "USC00110072", 2023)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, 300, *obs[0].MaxTempTenths)
}

func TestEnsureStationImmutable(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.EnsureStation(ctx, domain.Station{ID: "USC00110072", Name: "first"}))
	require.NoError(t, s.EnsureStation(ctx, domain.Station{ID: "USC00110072", Name: "second"}))

	ids, err := s.StationIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	assert.Contains(t, ids, "USC00110072")
	assert.Equal(t, "first", s.stations["USC00110072"].Name)
}

func TestDistinctStationYears(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.UpsertObservations(ctx, []domain.Observation{
		obsAt("USC00257715", time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), 10),
		obsAt("USC00110072", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), 10),
		obsAt("USC00110072", time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC), 10),
		obsAt("USC00110072", time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), 10),
	}))

	t.Run("ordered by station then year", func(t *testing.T) {
		keys, err := s.DistinctStationYears(ctx, domain.StatsFilter{})
		require.NoError(t, err)
		assert.Equal(t, []domain.StatsKey{
			{StationID: "USC00110072", Year: 2022},
			{StationID: "USC00110072", Year: 2023},
			{StationID: "USC00257715", Year: 2022},
		}, keys)
	})

	t.Run("year filter", func(t *testing.T) {
		keys, err := s.DistinctStationYears(ctx, domain.StatsFilter{Year: 2023})
		require.NoError(t, err)
		assert.Equal(t, []domain.StatsKey{{StationID: "USC00110072", Year: 2023}}, keys)
	})

	t.Run("station filter", func(t *testing.T) {
		keys, err := s.DistinctStationYears(ctx, domain.StatsFilter{StationID: "USC00257715"})
		require.NoError(t, err)
		assert.Equal(t, []domain.StatsKey{{StationID: "USC00257715", Year: 2022}}, keys)
	})
}

func TestYearlyStatsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()
	key := domain.StatsKey{StationID: "USC00110072", Year: 2023}

	_, err := s.GetYearlyStats(ctx, key)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	avg := 28.9
	require.NoError(t, s.UpsertYearlyStats(ctx, []domain.YearlyStats{
		{StationID: key.StationID, Year: key.Year, AvgMaxTempC: &avg, TotalRecords: 2},
	}))

	got, err := s.GetYearlyStats(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalRecords)
	require.NotNil(t, got.AvgMaxTempC)
	assert.Equal(t, 28.9, *got.AvgMaxTempC)

	existing, err := s.ExistingStatsKeys(ctx, domain.StatsFilter{})
	require.NoError(t, err)
	assert.Contains(t, existing, key)
}

func TestClearYearlyStatsHonorsFilter(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.UpsertYearlyStats(ctx, []domain.YearlyStats{
		{StationID: "USC00110072", Year: 2022},
		{StationID: "USC00110072", Year: 2023},
		{StationID: "USC00257715", Year: 2023},
	}))

	n, err := s.ClearYearlyStats(ctx, domain.StatsFilter{Year: 2023})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := s.ExistingStatsKeys(ctx, domain.StatsFilter{})
	require.NoError(t, err)
	assert.Len(t, left, 1)
	assert.Contains(t, left, domain.StatsKey{StationID: "USC00110072", Year: 2022})
}

func TestFileLog(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.GetFileRecord(ctx, "USC00110072.txt")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	rec := domain.FileRecord{
		FileName:  "USC00110072.txt",
		StationID: "USC00110072",
		Checksum:  "abc123",
		Records:   42,
	}
	require.NoError(t, s.UpsertFileRecord(ctx, rec))

	got, err := s.GetFileRecord(ctx, "USC00110072.txt")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	n, err := s.ClearFileLog(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCropYields(t *testing.T) {
	ctx := context.Background()
	s := New()

	yields := []domain.CropYield{
		{Year: 1990, CropType: "corn_grain", Country: "US", Value: 7934},
		{Year: 1991, CropType: "corn_grain", Country: "US", Value: 7475},
	}
	require.NoError(t, s.UpsertCropYields(ctx, yields))

	// Same key, new value: overwritten, not duplicated.
	require.NoError(t, s.UpsertCropYields(ctx, []domain.CropYield{
		{Year: 1990, CropType: "corn_grain", Country: "US", Value: 8000},
	}))

	n, err := s.ClearCropYields(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
