package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Value object errors.
var (
	ErrInvalidDate  = errors.New("date must be formatted YYYY-MM-DD or YY-MM-DD")
	ErrInvalidRange = errors.New("range start must not be after range end")
)

// Round1 rounds v to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// ParseDate parses a calendar date in UTC.
// Two-digit years are taken to be in the 2000s.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if parts := strings.SplitN(s, "-", 2); len(parts) == 2 && len(parts[0]) == 2 {
		s = "20" + s
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	start time.Time
	end   time.Time
}

// NewDateRange creates a DateRange from two calendar dates.
func NewDateRange(start, end time.Time) (DateRange, error) {
	start = truncateDay(start)
	end = truncateDay(end)
	if start.After(end) {
		return DateRange{}, ErrInvalidRange
	}
	return DateRange{start: start, end: end}, nil
}

// ParseDateRange parses start and end with ParseDate.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := ParseDate(start)
	if err != nil {
		return DateRange{}, err
	}
	e, err := ParseDate(end)
	if err != nil {
		return DateRange{}, err
	}
	return NewDateRange(s, e)
}

// MustDateRange parses a range, panicking if invalid.
func MustDateRange(start, end string) DateRange {
	r, err := ParseDateRange(start, end)
	if err != nil {
		panic(err)
	}
	return r
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Start returns the first day of the range.
func (r DateRange) Start() time.Time { return r.start }

// End returns the last day of the range.
func (r DateRange) End() time.Time { return r.end }

// Contains reports whether t falls on a day within the range.
func (r DateRange) Contains(t time.Time) bool {
	day := truncateDay(t.UTC())
	return !day.Before(r.start) && !day.After(r.end)
}

// IsZero reports whether the range is unset.
func (r DateRange) IsZero() bool {
	return r.start.IsZero() && r.end.IsZero()
}

// Compact renders the range as "yyyymmdd.yyyymmdd" for file names.
func (r DateRange) Compact() string {
	return r.start.Format("20060102") + "." + r.end.Format("20060102")
}

// String renders the range as "YYYY/MM/DD - YYYY/MM/DD".
func (r DateRange) String() string {
	return r.start.Format("2006/01/02") + " - " + r.end.Format("2006/01/02")
}

// MarshalText encodes the range as "YYYY-MM-DD..YYYY-MM-DD".
func (r DateRange) MarshalText() ([]byte, error) {
	return []byte(r.start.Format("2006-01-02") + ".." + r.end.Format("2006-01-02")), nil
}

// UnmarshalText decodes the MarshalText form.
func (r *DateRange) UnmarshalText(b []byte) error {
	start, end, ok := strings.Cut(string(b), "..")
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidDate, string(b))
	}
	parsed, err := ParseDateRange(start, end)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Percentage represents a rate expressed in percent.
type Percentage struct {
	value float64
}

// NewPercentage creates a new Percentage from a raw value.
// The value is rounded to one decimal place.
func NewPercentage(value float64) Percentage {
	return Percentage{value: Round1(value)}
}

// PercentageFromRatio calculates a percentage from a part/total ratio.
func PercentageFromRatio(part, total int) Percentage {
	if total == 0 {
		return Percentage{value: 0}
	}
	return NewPercentage((float64(part) / float64(total)) * 100)
}

// Value returns the percentage value.
func (p Percentage) Value() float64 {
	return p.value
}

// String returns a formatted string representation.
func (p Percentage) String() string {
	return fmt.Sprintf("%.1f%%", p.value)
}

// IsZero returns true if the percentage is zero.
func (p Percentage) IsZero() bool {
	return p.value == 0
}

// Delta returns the delta from another percentage (this - other).
func (p Percentage) Delta(other Percentage) float64 {
	return Round1(p.value - other.value)
}
