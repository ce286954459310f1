package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "20060102"

// RejectReason is a coarse classification of why a line was rejected,
// used to build the per-run rejection histogram.
type RejectReason string

const (
	RejectFieldCount     RejectReason = "field_count"
	RejectBadDate        RejectReason = "bad_date"
	RejectBadValue       RejectReason = "bad_value"
	RejectTempInversion  RejectReason = "temp_inversion"
	RejectNegativePrecip RejectReason = "negative_precip"
)

// Rejection describes a line that failed parsing or validation. It is an
// ordinary value, not an error: rejected lines are counted and logged but
// never abort a file.
type Rejection struct {
	Line   int // 1-based line number within the file
	Reason RejectReason
	Detail string
}

func (r Rejection) String() string {
	return fmt.Sprintf("line %d: %s", r.Line, r.Detail)
}

// ParseLine parses one observation line into an Observation or a Rejection,
// never both. lineNum is the 1-based position of the line in its file and is
// carried into the rejection for traceability. The returned observation has
// StationID unset; the caller stamps it from the file name.
func ParseLine(line string, lineNum int) (Observation, *Rejection) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return Observation{}, reject(lineNum, RejectFieldCount,
			fmt.Sprintf("expected 4 fields, got %d", len(fields)))
	}

	date, err := time.Parse(dateLayout, fields[0])
	if err != nil {
		return Observation{}, reject(lineNum, RejectBadDate,
			fmt.Sprintf("invalid date %q: %v", fields[0], err))
	}

	maxTemp, rej := parseTenths(fields[1], "max temp", lineNum)
	if rej != nil {
		return Observation{}, rej
	}
	minTemp, rej := parseTenths(fields[2], "min temp", lineNum)
	if rej != nil {
		return Observation{}, rej
	}
	precip, rej := parseTenths(fields[3], "precipitation", lineNum)
	if rej != nil {
		return Observation{}, rej
	}

	if maxTemp != nil && minTemp != nil && *maxTemp < *minTemp {
		return Observation{}, reject(lineNum, RejectTempInversion,
			fmt.Sprintf("Max temp (%.1f) < Min temp (%.1f)", fromTenths(*maxTemp), fromTenths(*minTemp)))
	}
	if precip != nil && *precip < 0 {
		return Observation{}, reject(lineNum, RejectNegativePrecip,
			fmt.Sprintf("negative precipitation (%d)", *precip))
	}

	return Observation{
		Date:          date,
		MaxTempTenths: maxTemp,
		MinTempTenths: minTemp,
		PrecipTenths:  precip,
	}, nil
}

// parseTenths parses an integer field in tenths of a unit. The missing
// sentinel maps to nil, never to zero.
func parseTenths(raw, field string, lineNum int) (*int, *Rejection) {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, reject(lineNum, RejectBadValue,
			fmt.Sprintf("invalid %s value %q", field, raw))
	}
	if v == MissingValue {
		return nil, nil
	}
	return &v, nil
}

func reject(line int, reason RejectReason, detail string) *Rejection {
	return &Rejection{Line: line, Reason: reason, Detail: detail}
}
