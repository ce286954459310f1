// Package domain models daily weather station observations and the yearly
// statistics derived from them.
//
// # Data Source
//
// Observations arrive as one plain-text file per station, named after the
// station code (e.g. USC00110072.txt). Each line is one station-day with
// four whitespace or tab separated fields:
//
//	<date> <max temp> <min temp> <precipitation>
//	20230615	289	178	25
//
// Date is YYYYMMDD. The numeric fields are integers in tenths of a unit:
// tenths of degrees Celsius for the two temperatures, tenths of millimeters
// for precipitation. The example line above reads as 2023-06-15, max 28.9°C,
// min 17.8°C, 2.5mm of rain.
//
// # Missing Values
//
//	-9999 is the source sentinel for "value not recorded".
//	It maps to an absent value (nil), never to zero, and absent values are
//	excluded from every aggregate and from completeness numerators.
//
// # Rejection
//
// Malformed or invalid lines never abort a file. [ParseLine] turns each
// problem into a [Rejection] value carrying the 1-based line number, a
// coarse [RejectReason] for tallying, and a human-readable detail:
//
//	wrong field count        "expected 4 fields, got 3"
//	unparseable date         `invalid date "20230230": ...`
//	non-numeric field        `invalid max temp value "abc"`
//	max < min (both present) "Max temp (15.0) < Min temp (20.0)"
//	negative precipitation   "negative precipitation (-10)"
//
// The temperature inversion check applies only when both temperatures are
// present; a missing side disables it. Negative precipitation is checked
// after the sentinel, so -9999 is always "missing", never "negative".
//
// # Yearly Statistics
//
// [ComputeYearlyStats] reduces one station-year of observations to a
// [YearlyStats] row: mean/high of the daily maxima, mean/low of the daily
// minima, sum/mean/high of precipitation, record counts, and completeness
// percentages (records with both temperatures, and with precipitation,
// against the total; 0 when the year has no records). Outputs are physical
// units, degrees Celsius and millimeters, rounded to one decimal with ties
// away from zero.
package domain
