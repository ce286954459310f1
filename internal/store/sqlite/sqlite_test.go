package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weatherpipe/internal/domain"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "weather.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func intp(v int) *int { return &v }

func floatp(v float64) *float64 { return &v }

func obsOn(station, day string, maxT, minT, precip *int) domain.Observation {
	date, err := time.Parse("20060102", day)
	if err != nil {
		panic(err)
	}
	return domain.Observation{
		StationID:     station,
		Date:          date,
		MaxTempTenths: maxT,
		MinTempTenths: minT,
		PrecipTenths:  precip,
	}
}

func TestStore_OpenCreatesSchema(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.Ping(context.Background()))

	// Reopening the same file is a no-op for the schema.
	path := filepath.Join(t.TempDir(), "weather.db")
	first, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestStore_ObservationRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureStation(ctx, domain.Station{ID: "USC00110072", Name: "USC00110072"}))

	obs := []domain.Observation{
		obsOn("USC00110072", "19850601", intp(289), intp(178), intp(25)),
		obsOn("USC00110072", "19850602", intp(212), nil, intp(0)),
		obsOn("USC00110072", "19860101", nil, nil, nil),
	}
	require.NoError(t, s.UpsertObservations(ctx, obs))

	got, err := s.ObservationsForStationYear(ctx, "USC00110072", 1985)
	require.NoError(t, err)
	if diff := cmp.Diff(obs[:2], got); diff != "" {
		t.Fatalf("observations mismatch (-want +got):\n%s", diff)
	}

	// NULL measurements come back as nils.
	got, err = s.ObservationsForStationYear(ctx, "USC00110072", 1986)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].MaxTempTenths)
	assert.Nil(t, got[0].MinTempTenths)
	assert.Nil(t, got[0].PrecipTenths)
}

func TestStore_UpsertObservationsOverwrites(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureStation(ctx, domain.Station{ID: "USC00110072"}))
	require.NoError(t, s.UpsertObservations(ctx, []domain.Observation{
		obsOn("USC00110072", "19850601", intp(100), intp(50), intp(0)),
	}))
	require.NoError(t, s.UpsertObservations(ctx, []domain.Observation{
		obsOn("USC00110072", "19850601", intp(289), nil, intp(25)),
	}))

	got, err := s.ObservationsForStationYear(ctx, "USC00110072", 1985)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 289, *got[0].MaxTempTenths)
	assert.Nil(t, got[0].MinTempTenths)
	assert.Equal(t, 25, *got[0].PrecipTenths)
}

func TestStore_EnsureStationKeepsFirstWrite(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureStation(ctx, domain.Station{ID: "USC00110072", Name: "first"}))
	require.NoError(t, s.EnsureStation(ctx, domain.Station{ID: "USC00110072", Name: "second"}))

	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM stations WHERE station_id = ?`, "USC00110072").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "first", name)
}

func TestStore_FileLogRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, err := s.GetFileRecord(ctx, "USC00110072.txt")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	rec := domain.FileRecord{
		FileName:    "USC00110072.txt",
		StationID:   "USC00110072",
		SizeBytes:   2048,
		Checksum:    "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		Lines:       123,
		Records:     120,
		Rejected:    3,
		ProcessedAt: time.Date(2024, 3, 15, 10, 30, 0, 123456789, time.UTC),
	}
	require.NoError(t, s.UpsertFileRecord(ctx, rec))

	got, err := s.GetFileRecord(ctx, "USC00110072.txt")
	require.NoError(t, err)
	assert.Equal(t, rec.StationID, got.StationID)
	assert.Equal(t, rec.SizeBytes, got.SizeBytes)
	assert.Equal(t, rec.Checksum, got.Checksum)
	assert.Equal(t, rec.Lines, got.Lines)
	assert.Equal(t, rec.Records, got.Records)
	assert.Equal(t, rec.Rejected, got.Rejected)
	assert.True(t, got.ProcessedAt.Equal(rec.ProcessedAt))

	// Reprocessing overwrites the entry.
	rec.Records = 121
	require.NoError(t, s.UpsertFileRecord(ctx, rec))
	got, err = s.GetFileRecord(ctx, "USC00110072.txt")
	require.NoError(t, err)
	assert.Equal(t, 121, got.Records)
}

func TestStore_DistinctStationYears(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureStation(ctx, domain.Station{ID: "USC00110072"}))
	require.NoError(t, s.EnsureStation(ctx, domain.Station{ID: "USC00257715"}))
	require.NoError(t, s.UpsertObservations(ctx, []domain.Observation{
		obsOn("USC00110072", "19850601", intp(1), intp(0), intp(0)),
		obsOn("USC00110072", "19850602", intp(1), intp(0), intp(0)),
		obsOn("USC00110072", "19900101", intp(1), intp(0), intp(0)),
		obsOn("USC00257715", "19850101", intp(1), intp(0), intp(0)),
	}))

	all, err := s.DistinctStationYears(ctx, domain.StatsFilter{})
	require.NoError(t, err)
	want := []domain.StatsKey{
		{StationID: "USC00110072", Year: 1985},
		{StationID: "USC00110072", Year: 1990},
		{StationID: "USC00257715", Year: 1985},
	}
	assert.Equal(t, want, all)

	byStation, err := s.DistinctStationYears(ctx, domain.StatsFilter{StationID: "USC00257715"})
	require.NoError(t, err)
	assert.Equal(t, []domain.StatsKey{{StationID: "USC00257715", Year: 1985}}, byStation)

	byYear, err := s.DistinctStationYears(ctx, domain.StatsFilter{Year: 1990})
	require.NoError(t, err)
	assert.Equal(t, []domain.StatsKey{{StationID: "USC00110072", Year: 1990}}, byYear)

	byRange, err := s.DistinctStationYears(ctx, domain.StatsFilter{StartYear: 1986, EndYear: 1995})
	require.NoError(t, err)
	assert.Equal(t, []domain.StatsKey{{StationID: "USC00110072", Year: 1990}}, byRange)
}

func TestStore_YearlyStatsRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureStation(ctx, domain.Station{ID: "USC00110072"}))

	_, err := s.GetYearlyStats(ctx, domain.StatsKey{StationID: "USC00110072", Year: 1985})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	st := domain.YearlyStats{
		StationID:          "USC00110072",
		Year:               1985,
		AvgMaxTempC:        floatp(25.1),
		AvgMinTempC:        nil,
		MaxTempC:           floatp(28.9),
		MinTempC:           floatp(17.8),
		TotalPrecipMM:      floatp(2.5),
		AvgPrecipMM:        floatp(1.3),
		MaxPrecipMM:        floatp(2.5),
		TotalRecords:       2,
		RecordsWithTemp:    1,
		RecordsWithPrecip:  2,
		TempCompleteness:   50,
		PrecipCompleteness: 100,
		ComputedAt:         time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.UpsertYearlyStats(ctx, []domain.YearlyStats{st}))

	got, err := s.GetYearlyStats(ctx, domain.StatsKey{StationID: "USC00110072", Year: 1985})
	require.NoError(t, err)
	if diff := cmp.Diff(st, got); diff != "" {
		t.Fatalf("yearly stats mismatch (-want +got):\n%s", diff)
	}

	existing, err := s.ExistingStatsKeys(ctx, domain.StatsFilter{})
	require.NoError(t, err)
	assert.Contains(t, existing, domain.StatsKey{StationID: "USC00110072", Year: 1985})
}

func TestStore_ClearYearlyStatsFiltered(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureStation(ctx, domain.Station{ID: "USC00110072"}))
	require.NoError(t, s.EnsureStation(ctx, domain.Station{ID: "USC00257715"}))
	now := time.Now().UTC()
	require.NoError(t, s.UpsertYearlyStats(ctx, []domain.YearlyStats{
		{StationID: "USC00110072", Year: 1985, ComputedAt: now},
		{StationID: "USC00110072", Year: 1986, ComputedAt: now},
		{StationID: "USC00257715", Year: 1985, ComputedAt: now},
	}))

	n, err := s.ClearYearlyStats(ctx, domain.StatsFilter{StationID: "USC00110072"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	remaining, err := s.ExistingStatsKeys(ctx, domain.StatsFilter{})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
	assert.Contains(t, remaining, domain.StatsKey{StationID: "USC00257715", Year: 1985})
}

func TestStore_CropYields(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	rows := []domain.CropYield{
		{Year: 1990, CropType: "corn_grain", Country: "US", Value: 7934, Unit: "thousand_metric_tons"},
		{Year: 1991, CropType: "corn_grain", Country: "US", Value: 7474, Unit: "thousand_metric_tons"},
	}
	require.NoError(t, s.UpsertCropYields(ctx, rows))

	// Same key overwrites the value.
	rows[0].Value = 8000
	require.NoError(t, s.UpsertCropYields(ctx, rows[:1]))

	var value int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM crop_yields WHERE year = ? AND crop_type = ? AND country = ? AND state = ?`,
		1990, "corn_grain", "US", "").Scan(&value)
	require.NoError(t, err)
	assert.Equal(t, int64(8000), value)

	n, err := s.ClearCropYields(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestStore_IntegrityReads(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureStation(ctx, domain.Station{ID: "USC00110072"}))
	require.NoError(t, s.EnsureStation(ctx, domain.Station{ID: "USC00257715"}))
	require.NoError(t, s.UpsertObservations(ctx, []domain.Observation{
		obsOn("USC00110072", "19850601", intp(1), intp(0), intp(0)),
		obsOn("USC00110072", "19850602", intp(1), intp(0), intp(0)),
		obsOn("USC00257715", "19850101", intp(1), intp(0), intp(0)),
	}))

	counts, err := s.ObservationCountsByStation(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"USC00110072": 2, "USC00257715": 1}, counts)

	ids, err := s.StationIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	n, err := s.ClearObservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = s.ClearFileLog(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
