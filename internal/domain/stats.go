package domain

import "time"

// StatsKey identifies one (station, year) aggregation unit.
type StatsKey struct {
	StationID string
	Year      int
}

// StatsFilter narrows which (station, year) pairs an aggregation run
// covers. Zero values mean "no filter"; year bounds are inclusive.
type StatsFilter struct {
	StationID string
	Year      int
	StartYear int
	EndYear   int
}

// Matches reports whether a (station, year) pair passes the filter.
func (f StatsFilter) Matches(stationID string, year int) bool {
	if f.StationID != "" && stationID != f.StationID {
		return false
	}
	if f.Year != 0 && year != f.Year {
		return false
	}
	if f.StartYear != 0 && year < f.StartYear {
		return false
	}
	if f.EndYear != 0 && year > f.EndYear {
		return false
	}
	return true
}

// YearlyStats is the derived summary row for one (station, year) pair.
// Temperatures are degrees Celsius and precipitation is millimeters, both
// rounded to one decimal; nil means no record that year carried the field.
type YearlyStats struct {
	StationID string
	Year      int

	AvgMaxTempC *float64
	AvgMinTempC *float64
	MaxTempC    *float64 // highest daily maximum
	MinTempC    *float64 // lowest daily minimum

	TotalPrecipMM *float64
	AvgPrecipMM   *float64
	MaxPrecipMM   *float64 // wettest single day

	TotalRecords      int
	RecordsWithTemp   int // both temperatures present
	RecordsWithPrecip int

	// Percent of records feeding the numerator above, 0 when the year
	// has no records at all.
	TempCompleteness   float64
	PrecipCompleteness float64

	ComputedAt time.Time
}

// ComputeYearlyStats reduces one station-year of observations to its
// summary row. Missing fields are excluded from every mean/sum/extreme and
// from the completeness numerators.
func ComputeYearlyStats(stationID string, year int, obs []Observation) YearlyStats {
	stats := YearlyStats{
		StationID:    stationID,
		Year:         year,
		TotalRecords: len(obs),
		ComputedAt:   clock.Now(),
	}

	var (
		maxSum, minSum, precipSum   int
		maxN, minN, precipN         int
		maxHigh, minLow, precipHigh int
	)
	for _, o := range obs {
		if o.MaxTempTenths != nil {
			v := *o.MaxTempTenths
			if maxN == 0 || v > maxHigh {
				maxHigh = v
			}
			maxSum += v
			maxN++
		}
		if o.MinTempTenths != nil {
			v := *o.MinTempTenths
			if minN == 0 || v < minLow {
				minLow = v
			}
			minSum += v
			minN++
		}
		if o.MaxTempTenths != nil && o.MinTempTenths != nil {
			stats.RecordsWithTemp++
		}
		if o.PrecipTenths != nil {
			v := *o.PrecipTenths
			if precipN == 0 || v > precipHigh {
				precipHigh = v
			}
			precipSum += v
			precipN++
		}
	}
	stats.RecordsWithPrecip = precipN

	if maxN > 0 {
		avg := round1(float64(maxSum) / float64(maxN) / 10)
		high := fromTenths(maxHigh)
		stats.AvgMaxTempC = &avg
		stats.MaxTempC = &high
	}
	if minN > 0 {
		avg := round1(float64(minSum) / float64(minN) / 10)
		low := fromTenths(minLow)
		stats.AvgMinTempC = &avg
		stats.MinTempC = &low
	}
	if precipN > 0 {
		total := fromTenths(precipSum)
		avg := round1(float64(precipSum) / float64(precipN) / 10)
		high := fromTenths(precipHigh)
		stats.TotalPrecipMM = &total
		stats.AvgPrecipMM = &avg
		stats.MaxPrecipMM = &high
	}

	if stats.TotalRecords > 0 {
		total := float64(stats.TotalRecords)
		stats.TempCompleteness = round1(float64(stats.RecordsWithTemp) / total * 100)
		stats.PrecipCompleteness = round1(float64(stats.RecordsWithPrecip) / total * 100)
	}

	return stats
}
