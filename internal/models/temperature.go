package models

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Temperature bounds accepted by the pipeline, in degrees Celsius.
const (
	MinTemperature = -100
	MaxTemperature = 100
)

// Temperature is a fixed-precision temperature stored as hundredths of a
// degree. Integer hundredths keep two-decimal arithmetic exact, which
// float64 cannot guarantee, and map 1:1 onto the NUMERIC(6,2) column.
type Temperature int64

// NewTemperature converts a float value to a Temperature, rounding half
// away from zero to two decimals.
func NewTemperature(v float64) Temperature {
	return Temperature(math.Round(v * 100))
}

// Float64 returns the value in degrees.
func (t Temperature) Float64() float64 {
	return float64(t) / 100
}

// String formats the value with exactly two decimals, e.g. "25.50".
func (t Temperature) String() string {
	v := int64(t)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Value implements driver.Valuer. The value travels as its decimal string
// so Postgres stores it without binary float round-trips.
func (t Temperature) Value() (driver.Value, error) {
	return t.String(), nil
}

// Scan implements sql.Scanner for NUMERIC columns.
func (t *Temperature) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*t = 0
		return nil
	case []byte:
		return t.scanString(string(v))
	case string:
		return t.scanString(v)
	case float64:
		*t = NewTemperature(v)
		return nil
	case int64:
		*t = Temperature(v * 100)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Temperature", src)
	}
}

func (t *Temperature) scanString(s string) error {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid temperature value %q: %w", s, err)
	}
	*t = NewTemperature(f)
	return nil
}

// MarshalJSON emits the value as a two-decimal JSON number.
func (t Temperature) MarshalJSON() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalJSON accepts both numeric and quoted forms.
func (t *Temperature) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return t.scanString(s)
}

// City represents a monitored location. Cities are created lazily the
// first time a reading references them.
type City struct {
	CityID    string    `json:"city_id" db:"city_id"`
	Name      string    `json:"name,omitempty" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TemperatureReading represents a single ingested data point.
// Readings are immutable once written.
type TemperatureReading struct {
	ID        int64       `json:"id" db:"id"`
	CityID    string      `json:"city_id" db:"city_id"`
	Value     Temperature `json:"value" db:"value"`
	Timestamp time.Time   `json:"timestamp" db:"timestamp"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// CityStats is the cached per-city aggregate row.
// NULL aggregates (no readings) are represented as pointers.
type CityStats struct {
	CityID       string       `json:"city_id" db:"city_id"`
	MeanValue    *Temperature `json:"mean_value" db:"mean_value"`
	MaxValue     *Temperature `json:"max_value" db:"max_value"`
	MinValue     *Temperature `json:"min_value" db:"min_value"`
	ReadingCount int64        `json:"reading_count" db:"reading_count"`
	IsStale      bool         `json:"is_stale" db:"is_stale"`
	LastUpdated  time.Time    `json:"last_updated" db:"last_updated"`
}

// ValidationError represents a data validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}
