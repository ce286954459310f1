package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Plausible bounds for any year seen in source data, shared by the yield
// parser and the aggregation filters.
const (
	MinYear = 1800
	MaxYear = 2100
)

const (
	RejectYearRange     RejectReason = "year_range"
	RejectNegativeYield RejectReason = "negative_yield"
)

// CropYield is one national or regional yield figure for a crop and year.
// Rows are unique on (Year, CropType, Country, State); State is empty for
// national data.
type CropYield struct {
	Year     int
	CropType string
	Country  string
	State    string
	Value    int
	Unit     string
	Source   string
}

// ParseYieldLine parses one two-field yield line (year, value). Like
// ParseLine it returns a Rejection instead of an error; the caller stamps
// crop type, country, state, unit, and source from its configuration.
func ParseYieldLine(line string, lineNum int) (CropYield, *Rejection) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return CropYield{}, reject(lineNum, RejectFieldCount,
			fmt.Sprintf("expected 2 fields, got %d", len(fields)))
	}

	year, err := strconv.Atoi(fields[0])
	if err != nil {
		return CropYield{}, reject(lineNum, RejectBadValue,
			fmt.Sprintf("invalid year value %q", fields[0]))
	}
	if year < MinYear || year > MaxYear {
		return CropYield{}, reject(lineNum, RejectYearRange,
			fmt.Sprintf("year %d out of range %d-%d", year, MinYear, MaxYear))
	}

	value, err := strconv.Atoi(fields[1])
	if err != nil {
		return CropYield{}, reject(lineNum, RejectBadValue,
			fmt.Sprintf("invalid yield value %q", fields[1]))
	}
	if value < 0 {
		return CropYield{}, reject(lineNum, RejectNegativeYield,
			fmt.Sprintf("negative yield value (%d)", value))
	}

	return CropYield{Year: year, Value: value}, nil
}
