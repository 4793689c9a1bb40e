// Package timerange models naive wall-clock booking windows.
//
// Dates and times carry no time zone: a Date is a calendar day as written
// ("YYYY-MM-DD") and a Clock is a time of day ("HH:MM"). Ranges never cross
// midnight.
package timerange

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"

	// MinutesPerDay is also the largest valid Clock, written "24:00".
	MinutesPerDay = 24 * 60
)

var (
	ErrInvalidDate  = errors.New("date must be formatted as YYYY-MM-DD")
	ErrInvalidClock = errors.New("time must be formatted as HH:MM")
	ErrEmptyRange   = errors.New("start time must be before end time")
)

// Date is a calendar day in canonical YYYY-MM-DD form.
type Date string

// ParseDate validates s and returns it in canonical form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", ErrInvalidDate
	}
	return Date(t.Format(DateLayout)), nil
}

// DateOf returns the calendar day of t as written in t's location.
func DateOf(t time.Time) Date {
	return Date(t.Format(DateLayout))
}

// Time returns midnight UTC of d. The zone is arbitrary and only used for storage.
func (d Date) Time() time.Time {
	t, _ := time.Parse(DateLayout, string(d))
	return t
}

func (d Date) String() string {
	return string(d)
}

// Clock is a time of day in minutes since midnight.
type Clock int

// ParseClock parses "HH:MM". "24:00" is accepted as the end of the day.
func ParseClock(s string) (Clock, error) {
	if s == "24:00" {
		return MinutesPerDay, nil
	}
	t, err := time.Parse(ClockLayout, s)
	if err != nil || len(s) != len(ClockLayout) {
		return 0, ErrInvalidClock
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

// MustClock is ParseClock for constants; it panics on malformed input.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(fmt.Sprintf("timerange: %q: %v", s, err))
	}
	return c
}

func (c Clock) Valid() bool {
	return c >= 0 && c <= MinutesPerDay
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// TimeRange is the half-open interval [Start, End) on Date.
type TimeRange struct {
	Date  Date
	Start Clock
	End   Clock
}

// New builds a TimeRange. It fails unless start < end and both are valid clocks.
func New(date Date, start, end Clock) (TimeRange, error) {
	if !start.Valid() || !end.Valid() {
		return TimeRange{}, ErrInvalidClock
	}
	if start >= end {
		return TimeRange{}, ErrEmptyRange
	}
	return TimeRange{Date: date, Start: start, End: end}, nil
}

// Parse builds a TimeRange from its boundary representation.
func Parse(date, start, end string) (TimeRange, error) {
	d, err := ParseDate(date)
	if err != nil {
		return TimeRange{}, err
	}
	s, err := ParseClock(start)
	if err != nil {
		return TimeRange{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return TimeRange{}, err
	}
	return New(d, s, e)
}

// Overlaps reports whether r and o share any instant.
// Ranges that merely touch (one ends when the other starts) do not overlap,
// and ranges on different dates never do.
func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Date == o.Date && r.Start < o.End && o.Start < r.End
}

// Contains reports whether o lies entirely within r.
func (r TimeRange) Contains(o TimeRange) bool {
	return r.Date == o.Date && r.Start <= o.Start && o.End <= r.End
}

// Minutes is the length of r.
func (r TimeRange) Minutes() int {
	return int(r.End - r.Start)
}

func (r TimeRange) String() string {
	return fmt.Sprintf("%s %s-%s", r.Date, r.Start, r.End)
}

// Merge sorts ranges and coalesces the ones that overlap or touch.
// All ranges are assumed to share a date.
func Merge(ranges []TimeRange) []TimeRange {
	if len(ranges) == 0 {
		return nil
	}
	sorted := make([]TimeRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	merged := []TimeRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// Gaps returns the parts of window not covered by busy.
// busy is clipped to window; it need not be sorted or disjoint.
func Gaps(window TimeRange, busy []TimeRange) []TimeRange {
	var gaps []TimeRange
	cursor := window.Start
	for _, b := range Merge(Clip(window, busy)) {
		if b.Start > cursor {
			gaps = append(gaps, TimeRange{Date: window.Date, Start: cursor, End: b.Start})
		}
		if b.End > cursor {
			cursor = b.End
		}
	}
	if cursor < window.End {
		gaps = append(gaps, TimeRange{Date: window.Date, Start: cursor, End: window.End})
	}
	return gaps
}

// Clip intersects each range with window and drops the ones left empty.
func Clip(window TimeRange, ranges []TimeRange) []TimeRange {
	var out []TimeRange
	for _, r := range ranges {
		if !r.Overlaps(window) {
			continue
		}
		if r.Start < window.Start {
			r.Start = window.Start
		}
		if r.End > window.End {
			r.End = window.End
		}
		out = append(out, r)
	}
	return out
}

// Split cuts window into consecutive slots of the given length.
// The last slot is shortened when the window is not a multiple of minutes.
func Split(window TimeRange, minutes int) []TimeRange {
	if minutes <= 0 {
		return nil
	}
	var slots []TimeRange
	for start := window.Start; start < window.End; start += Clock(minutes) {
		end := start + Clock(minutes)
		if end > window.End {
			end = window.End
		}
		slots = append(slots, TimeRange{Date: window.Date, Start: start, End: end})
	}
	return slots
}
