// Command genobs generates synthetic observation files for exercising the
// pipeline without real station data. Output is deterministic for a given
// seed, so downstream assertions stay stable across runs.
//
// Usage:
//
//	go run ./cmd/genobs -out ./testdata/obs \
//	  [-stations 3] [-start-year 2022] [-years 2] \
//	  [-missing-rate 0.1] [-malformed-rate 0.02] [-seed 42]
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"weatherpipe/internal/domain"
)

const missingSentinel = "-9999"

type genTotals struct {
	files         int
	lines         int
	valid         int
	malformed     int
	missingMax    int
	missingMin    int
	missingPrecip int
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "./testdata/obs", "output directory for generated files")
	stations := flag.Int("stations", 3, "number of station files to generate")
	startYear := flag.Int("start-year", 2022, "first year of generated data")
	years := flag.Int("years", 2, "consecutive years per station")
	missingRate := flag.Float64("missing-rate", 0.1, "probability a measurement is the missing sentinel")
	malformedRate := flag.Float64("malformed-rate", 0.02, "probability a line is malformed")
	seed := flag.Int64("seed", 42, "random seed, the same seed gives identical files")
	flag.Parse()

	if *stations < 1 || *years < 1 {
		return fmt.Errorf("stations and years must be at least 1")
	}

	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}

	// Fix the clock so the generated-at stamp is as reproducible as the data.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2024, time.March, 15, 6, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	rng := rand.New(rand.NewSource(*seed))

	var totals genTotals
	for i := 0; i < *stations; i++ {
		stationID := fmt.Sprintf("USC00%06d", 110072+i*1000)
		path := filepath.Join(*out, stationID+".txt")
		lines := writeStationFile(rng, path, *startYear, *years, *missingRate, *malformedRate, &totals)
		totals.files++
		log.Printf("%s: %d lines", stationID, lines)
	}

	log.Printf("total: %d lines across %d files", totals.lines, totals.files)
	printStats(totals, *startYear, *years)
	return nil
}

func writeStationFile(rng *rand.Rand, path string, startYear, years int, missingRate, malformedRate float64, totals *genTotals) int {
	var b strings.Builder
	lines := 0

	day := time.Date(startYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(startYear+years, time.January, 1, 0, 0, 0, 0, time.UTC)
	for ; day.Before(end); day = day.AddDate(0, 0, 1) {
		lines++
		totals.lines++

		if rng.Float64() < malformedRate {
			b.WriteString(malformedLine(rng, day))
			b.WriteByte('\n')
			totals.malformed++
			continue
		}

		maxT, minT, precip := dayValues(rng, day)

		maxField := fmt.Sprintf("%d", maxT)
		if rng.Float64() < missingRate {
			maxField = missingSentinel
			totals.missingMax++
		}
		minField := fmt.Sprintf("%d", minT)
		if rng.Float64() < missingRate {
			minField = missingSentinel
			totals.missingMin++
		}
		precipField := fmt.Sprintf("%d", precip)
		if rng.Float64() < missingRate {
			precipField = missingSentinel
			totals.missingPrecip++
		}

		fmt.Fprintf(&b, "%s\t%s\t%s\t%s\n", day.Format("20060102"), maxField, minField, precipField)
		totals.valid++
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		log.Fatalf("write %s: %v", path, err)
	}
	return lines
}

// dayValues returns max/min temperature and precipitation in tenths for one
// day, following a rough northern-hemisphere seasonal curve.
func dayValues(rng *rand.Rand, day time.Time) (maxT, minT, precip int) {
	// Warmest around late July, coldest in January.
	phase := 2 * math.Pi * float64(day.YearDay()-200) / 365
	maxC := 15*math.Cos(phase) + 12 + rng.NormFloat64()*4
	minC := maxC - 5 - rng.Float64()*10
	maxT = int(math.Round(maxC * 10))
	minT = int(math.Round(minC * 10))

	// Most days are dry.
	if rng.Float64() < 0.35 {
		precip = rng.Intn(250)
	}
	return maxT, minT, precip
}

// malformedLine produces one of the malformation shapes the parser must
// reject: a short line, an invalid calendar date, or a non-numeric value.
func malformedLine(rng *rand.Rand, day time.Time) string {
	date := day.Format("20060102")
	switch rng.Intn(3) {
	case 0:
		return fmt.Sprintf("%s\t150\t50", date)
	case 1:
		return fmt.Sprintf("%d0230\t150\t50\t0", day.Year())
	default:
		return fmt.Sprintf("%s\tnone\t50\t0", date)
	}
}

func printStats(t genTotals, startYear, years int) {
	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Generated at: %s\n", domain.Now().Format(time.RFC3339))
	fmt.Printf("Files: %d\n", t.files)
	fmt.Printf("Years: %d-%d\n", startYear, startYear+years-1)
	fmt.Printf("Lines: %d (valid=%d, malformed=%d)\n", t.lines, t.valid, t.malformed)
	fmt.Printf("Missing values: max_temp=%d, min_temp=%d, precip=%d\n",
		t.missingMax, t.missingMin, t.missingPrecip)
}
