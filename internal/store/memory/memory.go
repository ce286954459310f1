// Package memory provides an in-memory store used by unit tests and by
// dry-run style experimentation without a database.
package memory

import (
	"context"
	"sort"
	"sync"

	"weatherpipe/internal/domain"
)

type obsKey struct {
	stationID string
	date      string // YYYYMMDD
}

type cropKey struct {
	year     int
	cropType string
	country  string
	state    string
}

// Store keeps every table in a map guarded by one mutex. Each write call is
// applied whole, mirroring the per-batch transactions of the SQL backends.
type Store struct {
	mu           sync.RWMutex
	stations     map[string]domain.Station
	observations map[obsKey]domain.Observation
	stats        map[domain.StatsKey]domain.YearlyStats
	crops        map[cropKey]domain.CropYield
	files        map[string]domain.FileRecord
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		stations:     make(map[string]domain.Station),
		observations: make(map[obsKey]domain.Observation),
		stats:        make(map[domain.StatsKey]domain.YearlyStats),
		crops:        make(map[cropKey]domain.CropYield),
		files:        make(map[string]domain.FileRecord),
	}
}

func obsKeyFor(o domain.Observation) obsKey {
	return obsKey{stationID: o.StationID, date: o.Date.Format("20060102")}
}

// EnsureStation inserts the station if absent. Existing rows are immutable.
func (s *Store) EnsureStation(ctx context.Context, station domain.Station) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stations[station.ID]; !ok {
		s.stations[station.ID] = station
	}
	return nil
}

// UpsertObservations overwrites on (station, date) conflicts.
func (s *Store) UpsertObservations(ctx context.Context, obs []domain.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range obs {
		s.observations[obsKeyFor(o)] = o
	}
	return nil
}

// ClearObservations removes all observations, returning the count removed.
func (s *Store) ClearObservations(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.observations))
	s.observations = make(map[obsKey]domain.Observation)
	return n, nil
}

// GetFileRecord returns the processing-log entry for fileName, or
// domain.ErrNotFound if the file has never been recorded.
func (s *Store) GetFileRecord(ctx context.Context, fileName string) (domain.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.files[fileName]
	if !ok {
		return domain.FileRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

// UpsertFileRecord overwrites the log entry keyed by file name.
func (s *Store) UpsertFileRecord(ctx context.Context, rec domain.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[rec.FileName] = rec
	return nil
}

// ClearFileLog removes all processing-log entries.
func (s *Store) ClearFileLog(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.files))
	s.files = make(map[string]domain.FileRecord)
	return n, nil
}

// DistinctStationYears enumerates (station, year) pairs present in the
// observations, filtered and ordered by station then year.
func (s *Store) DistinctStationYears(ctx context.Context, filter domain.StatsFilter) ([]domain.StatsKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := make(map[domain.StatsKey]struct{})
	for _, o := range s.observations {
		if filter.Matches(o.StationID, o.Year()) {
			set[domain.StatsKey{StationID: o.StationID, Year: o.Year()}] = struct{}{}
		}
	}

	keys := make([]domain.StatsKey, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].StationID != keys[j].StationID {
			return keys[i].StationID < keys[j].StationID
		}
		return keys[i].Year < keys[j].Year
	})
	return keys, nil
}

// ExistingStatsKeys returns the set of summary rows matching the filter.
func (s *Store) ExistingStatsKeys(ctx context.Context, filter domain.StatsFilter) (map[domain.StatsKey]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make(map[domain.StatsKey]struct{})
	for k := range s.stats {
		if filter.Matches(k.StationID, k.Year) {
			keys[k] = struct{}{}
		}
	}
	return keys, nil
}

// ObservationsForStationYear returns one station-year of observations
// ordered by date.
func (s *Store) ObservationsForStationYear(ctx context.Context, stationID string, year int) ([]domain.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var obs []domain.Observation
	for _, o := range s.observations {
		if o.StationID == stationID && o.Year() == year {
			obs = append(obs, o)
		}
	}
	sort.Slice(obs, func(i, j int) bool { return obs[i].Date.Before(obs[j].Date) })
	return obs, nil
}

// UpsertYearlyStats overwrites on (station, year) conflicts.
func (s *Store) UpsertYearlyStats(ctx context.Context, stats []domain.YearlyStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range stats {
		s.stats[domain.StatsKey{StationID: st.StationID, Year: st.Year}] = st
	}
	return nil
}

// GetYearlyStats returns one summary row or domain.ErrNotFound.
func (s *Store) GetYearlyStats(ctx context.Context, key domain.StatsKey) (domain.YearlyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stats[key]
	if !ok {
		return domain.YearlyStats{}, domain.ErrNotFound
	}
	return st, nil
}

// ClearYearlyStats removes summary rows matching the filter.
func (s *Store) ClearYearlyStats(ctx context.Context, filter domain.StatsFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k := range s.stats {
		if filter.Matches(k.StationID, k.Year) {
			delete(s.stats, k)
			n++
		}
	}
	return n, nil
}

// UpsertCropYields overwrites on (year, crop, country, state) conflicts.
func (s *Store) UpsertCropYields(ctx context.Context, yields []domain.CropYield) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, y := range yields {
		s.crops[cropKey{year: y.Year, cropType: y.CropType, country: y.Country, state: y.State}] = y
	}
	return nil
}

// ClearCropYields removes all crop yield rows.
func (s *Store) ClearCropYields(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.crops))
	s.crops = make(map[cropKey]domain.CropYield)
	return n, nil
}

// ObservationCountsByStation tallies observations per station id.
func (s *Store) ObservationCountsByStation(ctx context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int64)
	for _, o := range s.observations {
		counts[o.StationID]++
	}
	return counts, nil
}

// StationIDs returns the ids of all known stations.
func (s *Store) StationIDs(ctx context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make(map[string]struct{}, len(s.stations))
	for id := range s.stations {
		ids[id] = struct{}{}
	}
	return ids, nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
