package domain

import "time"

// MissingValue is the source-file sentinel for "value not recorded".
const MissingValue = -9999

// Station is a fixed observing location identified by its station code.
// Files carry only the code; the geographic attributes stay unset until
// backfilled from an external station list.
type Station struct {
	ID         string
	Name       string
	State      string
	Latitude   *float64
	Longitude  *float64
	ElevationM *float64
}

// Observation is one station-day of measurements as parsed from a source
// line. The numeric fields hold raw tenths exactly as found in the file;
// nil means the field carried the missing sentinel.
type Observation struct {
	StationID     string
	Date          time.Time // UTC midnight
	MaxTempTenths *int      // tenths of degrees Celsius
	MinTempTenths *int      // tenths of degrees Celsius
	PrecipTenths  *int      // tenths of millimeters
}

// Year returns the observation's calendar year.
func (o Observation) Year() int {
	return o.Date.Year()
}

// MaxTempC returns the maximum temperature in degrees Celsius.
// The second return is false when the value is missing.
func (o Observation) MaxTempC() (float64, bool) {
	if o.MaxTempTenths == nil {
		return 0, false
	}
	return fromTenths(*o.MaxTempTenths), true
}

// MinTempC returns the minimum temperature in degrees Celsius.
func (o Observation) MinTempC() (float64, bool) {
	if o.MinTempTenths == nil {
		return 0, false
	}
	return fromTenths(*o.MinTempTenths), true
}

// PrecipMM returns the precipitation in millimeters.
func (o Observation) PrecipMM() (float64, bool) {
	if o.PrecipTenths == nil {
		return 0, false
	}
	return fromTenths(*o.PrecipTenths), true
}

// FileRecord is the processing-log entry for one ingested source file.
// The checksum lets re-runs skip files whose content has not changed.
type FileRecord struct {
	FileName    string
	StationID   string
	SizeBytes   int64
	Checksum    string // SHA-256, lowercase hex
	Lines       int    // source lines scanned
	Records     int    // observations accepted from the file
	Rejected    int    // lines that failed parsing or validation
	ProcessedAt time.Time
}
