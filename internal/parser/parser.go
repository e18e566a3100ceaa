// Package parser validates and converts raw CSV fields into domain
// values. All functions are pure; callers decide what to do with a
// rejected row.
package parser

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Hetprajapati12/Assignment-solution/internal/models"
)

// ErrorKind classifies why a field or row was rejected.
type ErrorKind string

const (
	InvalidFormat        ErrorKind = "invalid_format"
	OutOfRange           ErrorKind = "out_of_range"
	UnparseableTimestamp ErrorKind = "unparseable_timestamp"
	RowShape             ErrorKind = "row_shape"
)

// ParseError represents a row-level validation failure
type ParseError struct {
	Kind    ErrorKind
	Value   string
	Message string
}

func (e *ParseError) Error() string {
	return e.Message
}

// IsTransient returns false as parse errors are permanent
func (e *ParseError) IsTransient() bool {
	return false
}

// Row is one validated data line from an input file.
type Row struct {
	CityID    string
	Value     models.Temperature
	Timestamp time.Time
}

// Epoch seconds outside year 1..9999 are treated as a formatted date
// string rather than a Unix timestamp.
const (
	minEpochSeconds = -62135596800
	maxEpochSeconds = 253402300799
)

// Layouts tried in order for non-numeric timestamps. The stdlib accepts
// a fractional-seconds suffix on any of these when parsing, and RFC3339
// covers both "Z" and explicit offsets. Day-first is tried before
// month-first for ambiguous slash dates.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04:05",
	"01/02/2006 15:04:05",
}

// ParseTemperature converts a raw field into a fixed-precision
// temperature, rejecting values outside [-100, 100]. The range check
// runs on the unrounded value, so 100.004 is rejected even though it
// would round into range.
func ParseTemperature(raw string) (models.Temperature, error) {
	s := strings.TrimSpace(raw)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &ParseError{
			Kind:    InvalidFormat,
			Value:   raw,
			Message: fmt.Sprintf("Invalid temperature value: %s", raw),
		}
	}
	if f < models.MinTemperature || f > models.MaxTemperature {
		return 0, &ParseError{
			Kind:    OutOfRange,
			Value:   raw,
			Message: fmt.Sprintf("Temperature %s out of valid range (-100 to 100)", s),
		}
	}
	return models.NewTemperature(f), nil
}

// ParseTimestamp converts a raw field into a UTC time. Numeric values
// are Unix epoch seconds (fractions allowed); everything else goes
// through the layout list. Naive timestamps are interpreted as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)

	if ts, ok := parseEpoch(s); ok {
		return ts, nil
	}

	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts.UTC(), nil
		}
	}

	return time.Time{}, &ParseError{
		Kind:    UnparseableTimestamp,
		Value:   raw,
		Message: fmt.Sprintf("Unable to parse timestamp: %s", raw),
	}
}

func parseEpoch(s string) (time.Time, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, false
	}
	sec, frac := math.Modf(f)
	if sec < minEpochSeconds || sec > maxEpochSeconds {
		return time.Time{}, false
	}
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

// ParseRow validates the shape of a CSV record and parses its fields.
// Records need at least city_id, temperature and timestamp; extra
// columns are ignored.
func ParseRow(fields []string) (*Row, error) {
	if len(fields) < 3 {
		return nil, &ParseError{
			Kind:    RowShape,
			Value:   strings.Join(fields, ","),
			Message: fmt.Sprintf("Row has %d columns, expected 3", len(fields)),
		}
	}

	cityID := strings.TrimSpace(fields[0])
	if cityID == "" {
		return nil, &ParseError{
			Kind:    RowShape,
			Value:   strings.Join(fields, ","),
			Message: "Row has empty city_id",
		}
	}

	value, err := ParseTemperature(fields[1])
	if err != nil {
		return nil, err
	}

	timestamp, err := ParseTimestamp(fields[2])
	if err != nil {
		return nil, err
	}

	return &Row{CityID: cityID, Value: value, Timestamp: timestamp}, nil
}

// IsHeaderRow reports whether a CSV record is a header line rather than
// data. Matching is by exact column-name tokens so city identifiers
// containing words like TEMPLE never trigger it.
func IsHeaderRow(fields []string) bool {
	for _, f := range fields {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "city_id", "temperature", "timestamp":
			return true
		}
	}
	return false
}
