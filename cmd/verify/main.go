// Command verify cross-checks a loaded weather store against its source
// observation files and against a fresh recomputation of the yearly
// summaries. It re-parses every source file, recomputes a sample of the
// stored summaries, and checks referential consistency between stations,
// observations, and summaries.
//
// Usage:
//
//	go run ./cmd/verify -data-dir ./data/observations \
//	  [-pattern "USC*.txt"] [-sample 25]
//
// Storage comes from the environment; see internal/config.
package main

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"weatherpipe/internal/config"
	"weatherpipe/internal/domain"
	"weatherpipe/internal/ingest"
	"weatherpipe/internal/store"
)

// tol absorbs float64 round-trips through the database. Aggregates are
// rounded to one decimal before storage, so anything larger is real drift.
const tol = 1e-6

// phase tracks pass/fail for a verification phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dir := flag.String("data-dir", "", "directory containing per-station observation files")
	pattern := flag.String("pattern", ingest.DefaultPattern, "file glob within the data directory")
	sample := flag.Int("sample", 25, "maximum summaries to recompute, 0 recomputes all")
	flag.Parse()

	if *dir == "" {
		flag.Usage()
		os.Exit(2)
	}

	if code := run(*dir, *pattern, *sample); code != 0 {
		os.Exit(code)
	}
}

func run(dir, pattern string, sample int) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	st, err := store.Open(ctx, store.Options{
		Driver:      cfg.StoreDriver,
		DatabaseURL: cfg.DatabaseURL,
		Path:        cfg.SQLitePath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open store: %v\n", err)
		return 1
	}
	defer func() {
		if err := st.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "close store: %v\n", err)
		}
	}()

	// ── Load all data sources ──
	fmt.Println("=== Weather Store Integrity Verification ===")
	fmt.Println()

	files, sourceCounts, err := parseSourceDir(dir, pattern)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: parse source files: %v\n", err)
		return 1
	}

	storedCounts, err := st.ObservationCountsByStation(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read observation counts: %v\n", err)
		return 1
	}

	stations, err := st.StationIDs(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: list stations: %v\n", err)
		return 1
	}

	statsKeys, err := st.ExistingStatsKeys(ctx, domain.StatsFilter{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: list summary keys: %v\n", err)
		return 1
	}

	pairs, err := st.DistinctStationYears(ctx, domain.StatsFilter{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: enumerate station years: %v\n", err)
		return 1
	}

	// ── Run verification phases ──
	recompute := sortedStatsKeys(statsKeys)
	if sample > 0 && len(recompute) > sample {
		recompute = sampleKeys(recompute, sample)
	}

	phases := []*phase{
		verifySourceParity(ctx, st, files, sourceCounts, storedCounts),
		verifySummaryIntegrity(ctx, st, recompute),
		verifyReferences(stations, storedCounts, statsKeys, pairs),
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-44s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Checked: %d files, %d stations, %d summaries (%d recomputed)\n",
		len(files), len(stations), len(statsKeys), len(recompute))

	// Print detailed errors.
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll checks passed.")
		return 0
	}
	fmt.Println("\nVerification FAILED.")
	return 1
}

// ── Source parsing ──

// sourceFile summarizes one re-parsed observation file.
type sourceFile struct {
	name      string
	stationID string
	checksum  string
	lines     int
	accepted  int // accepted lines, duplicate dates included
	rejected  int
}

// parseSourceDir re-parses every observation file matching pattern in dir.
// The returned counts hold distinct (station, date) pairs, matching what an
// upserting load would leave in the store.
func parseSourceDir(dir, pattern string) ([]sourceFile, map[string]int64, error) {
	paths, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, nil, err
	}
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("no %s files in %s", pattern, dir)
	}
	sort.Strings(paths)

	files := make([]sourceFile, 0, len(paths))
	dates := map[string]map[string]struct{}{}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, err
		}
		name := filepath.Base(path)
		sf := sourceFile{
			name:      name,
			stationID: strings.TrimSuffix(name, filepath.Ext(name)),
			checksum:  fmt.Sprintf("%x", sha256.Sum256(data)),
		}

		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			sf.lines++
			obs, rej := domain.ParseLine(scanner.Text(), sf.lines)
			if rej != nil {
				sf.rejected++
				continue
			}
			sf.accepted++
			set, ok := dates[sf.stationID]
			if !ok {
				set = map[string]struct{}{}
				dates[sf.stationID] = set
			}
			set[obs.Date.Format("2006-01-02")] = struct{}{}
		}
		if err := scanner.Err(); err != nil {
			return nil, nil, fmt.Errorf("scan %s: %w", name, err)
		}
		files = append(files, sf)
	}

	counts := make(map[string]int64, len(dates))
	for id, set := range dates {
		counts[id] = int64(len(set))
	}
	return files, counts, nil
}

// ── Phase 1: Source Parity ──
// Validates that every source file was loaded, is unchanged since its load,
// and that stored observation counts match a fresh re-parse.

func verifySourceParity(ctx context.Context, st store.Store, files []sourceFile, source, stored map[string]int64) *phase {
	p := &phase{name: "Phase 1: Source Parity (files vs store)"}

	for _, sf := range files {
		rec, err := st.GetFileRecord(ctx, sf.name)
		if errors.Is(err, domain.ErrNotFound) {
			p.errorf("%s: no file log entry, file was never loaded", sf.name)
			continue
		}
		if err != nil {
			p.errorf("%s: read file log: %v", sf.name, err)
			continue
		}
		if rec.Checksum != sf.checksum {
			p.errorf("%s: checksum drift, source changed after it was loaded", sf.name)
		}
		if rec.Lines != sf.lines {
			p.errorf("%s: file log says %d lines, re-parse scanned %d", sf.name, rec.Lines, sf.lines)
		}
		if rec.Records != sf.accepted {
			p.errorf("%s: file log says %d records, re-parse accepted %d", sf.name, rec.Records, sf.accepted)
		}
		if rec.Rejected != sf.rejected {
			p.errorf("%s: file log says %d rejected, re-parse rejected %d", sf.name, rec.Rejected, sf.rejected)
		}
	}

	for _, id := range sortedNames(source) {
		want := source[id]
		got, ok := stored[id]
		if !ok {
			p.errorf("station %s: %d source observations, none stored", id, want)
			continue
		}
		if got != want {
			p.errorf("station %s: %d distinct source observations, %d stored", id, want, got)
		}
	}
	for _, id := range sortedNames(stored) {
		if _, ok := source[id]; !ok {
			p.errorf("station %s: %d stored observations with no source file", id, stored[id])
		}
	}
	return p
}

// ── Phase 2: Summary Integrity ──
// Recomputes sampled yearly summaries from stored observations and compares
// them field by field against the stored rows.

func verifySummaryIntegrity(ctx context.Context, st store.Store, keys []domain.StatsKey) *phase {
	p := &phase{name: "Phase 2: Summary Integrity (recompute)"}

	if len(keys) == 0 {
		p.errorf("no yearly summaries stored, run yearlystats first")
		return p
	}

	for _, key := range keys {
		obs, err := st.ObservationsForStationYear(ctx, key.StationID, key.Year)
		if err != nil {
			p.errorf("%s/%d: read observations: %v", key.StationID, key.Year, err)
			continue
		}
		stored, err := st.GetYearlyStats(ctx, key)
		if err != nil {
			p.errorf("%s/%d: read summary: %v", key.StationID, key.Year, err)
			continue
		}
		compareStats(p, domain.ComputeYearlyStats(key.StationID, key.Year, obs), stored)
	}
	return p
}

func compareStats(p *phase, want, got domain.YearlyStats) {
	key := fmt.Sprintf("%s/%d", want.StationID, want.Year)

	floats := []struct {
		name      string
		want, got *float64
	}{
		{"avg_max_temp_c", want.AvgMaxTempC, got.AvgMaxTempC},
		{"avg_min_temp_c", want.AvgMinTempC, got.AvgMinTempC},
		{"max_temp_c", want.MaxTempC, got.MaxTempC},
		{"min_temp_c", want.MinTempC, got.MinTempC},
		{"total_precip_mm", want.TotalPrecipMM, got.TotalPrecipMM},
		{"avg_precip_mm", want.AvgPrecipMM, got.AvgPrecipMM},
		{"max_precip_mm", want.MaxPrecipMM, got.MaxPrecipMM},
	}
	for _, f := range floats {
		if !floatPtrEq(f.want, f.got) {
			p.errorf("%s: %s: recomputed %s, stored %s", key, f.name, fmtFloatPtr(f.want), fmtFloatPtr(f.got))
		}
	}

	ints := []struct {
		name      string
		want, got int
	}{
		{"total_records", want.TotalRecords, got.TotalRecords},
		{"records_with_temp", want.RecordsWithTemp, got.RecordsWithTemp},
		{"records_with_precip", want.RecordsWithPrecip, got.RecordsWithPrecip},
	}
	for _, f := range ints {
		if f.want != f.got {
			p.errorf("%s: %s: recomputed %d, stored %d", key, f.name, f.want, f.got)
		}
	}

	if math.Abs(want.TempCompleteness-got.TempCompleteness) > tol {
		p.errorf("%s: temp_completeness: recomputed %g, stored %g", key, want.TempCompleteness, got.TempCompleteness)
	}
	if math.Abs(want.PrecipCompleteness-got.PrecipCompleteness) > tol {
		p.errorf("%s: precip_completeness: recomputed %g, stored %g", key, want.PrecipCompleteness, got.PrecipCompleteness)
	}
}

// ── Phase 3: Referential Consistency ──
// Every observation and summary must reference a known station, and every
// summary must have backing observations.

func verifyReferences(stations map[string]struct{}, obsCounts map[string]int64, statsKeys map[domain.StatsKey]struct{}, pairs []domain.StatsKey) *phase {
	p := &phase{name: "Phase 3: Referential Consistency"}

	for _, id := range sortedNames(obsCounts) {
		if _, ok := stations[id]; !ok {
			p.errorf("observations reference unknown station %s", id)
		}
	}

	haveObs := make(map[domain.StatsKey]struct{}, len(pairs))
	for _, k := range pairs {
		haveObs[k] = struct{}{}
	}
	for _, key := range sortedStatsKeys(statsKeys) {
		if _, ok := stations[key.StationID]; !ok {
			p.errorf("summary %s/%d references unknown station", key.StationID, key.Year)
		}
		if _, ok := haveObs[key]; !ok {
			p.errorf("summary %s/%d has no backing observations", key.StationID, key.Year)
		}
	}
	return p
}

// ── Helpers ──

func floatPtrEq(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return math.Abs(*a-*b) <= tol
}

func fmtFloatPtr(v *float64) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%g", *v)
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedStatsKeys(m map[domain.StatsKey]struct{}) []domain.StatsKey {
	keys := make([]domain.StatsKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].StationID != keys[j].StationID {
			return keys[i].StationID < keys[j].StationID
		}
		return keys[i].Year < keys[j].Year
	})
	return keys
}

// sampleKeys takes an evenly strided subset so every station is touched
// even when one station dominates the key space.
func sampleKeys(keys []domain.StatsKey, n int) []domain.StatsKey {
	stride := len(keys) / n
	sampled := make([]domain.StatsKey, 0, n)
	for i := 0; i < len(keys) && len(sampled) < n; i += stride {
		sampled = append(sampled, keys[i])
	}
	return sampled
}
