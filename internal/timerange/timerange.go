// Package timerange resolves a naive (date-free) local time-of-day window
// onto a concrete datetime interval around a reference instant, the way a
// LocalNaiveTimeWindow schedule condition needs to decide whether "now" is
// inside its active window (spec.md §4.4, §4.9).
package timerange

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NaiveTime is a time-of-day with no associated date or zone.
type NaiveTime struct {
	Hour   int
	Minute int
	Second int
}

// ParseNaiveTime parses "HH:MM" or "HH:MM:SS" into a NaiveTime.
func ParseNaiveTime(s string) (NaiveTime, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return NaiveTime{}, fmt.Errorf("timerange: invalid naive time %q", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return NaiveTime{}, fmt.Errorf("timerange: invalid hour in %q: %w", s, err)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return NaiveTime{}, fmt.Errorf("timerange: invalid minute in %q: %w", s, err)
	}

	second := 0

	if len(parts) == 3 {
		second, err = strconv.Atoi(parts[2])
		if err != nil {
			return NaiveTime{}, fmt.Errorf("timerange: invalid second in %q: %w", s, err)
		}
	}

	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return NaiveTime{}, fmt.Errorf("timerange: out-of-range naive time %q", s)
	}

	return NaiveTime{Hour: hour, Minute: minute, Second: second}, nil
}

// Before reports whether n sorts before other, treating both as clock times
// on the same notional day.
func (n NaiveTime) Before(other NaiveTime) bool {
	if n.Hour != other.Hour {
		return n.Hour < other.Hour
	}

	if n.Minute != other.Minute {
		return n.Minute < other.Minute
	}

	return n.Second < other.Second
}

// Range is a naive local time-of-day window [From, To). When To is earlier
// in the day than From, the window is understood to cross midnight.
type Range struct {
	From NaiveTime
	To   NaiveTime
}

// CrossesDayBoundary reports whether the window wraps past midnight.
func (r Range) CrossesDayBoundary() bool {
	return r.To.Before(r.From)
}

// Concrete is a resolved, datestamped instantiation of a Range.
type Concrete struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether ref falls in [Start, End).
func (c Concrete) Contains(ref time.Time) bool {
	return !ref.Before(c.Start) && ref.Before(c.End)
}

// attachDate combines date's year/month/day with nt in loc, returning
// ok=false if the resulting wall-clock time is skipped by a DST spring
// forward (the time never occurs) or straddles a DST fall-back transition
// (the time occurs twice) — both are "ambiguous" for scheduling purposes
// and the spec requires propagating that as no result rather than guessing
// (spec.md §4.9).
func attachDate(loc *time.Location, date time.Time, nt NaiveTime) (time.Time, bool) {
	y, m, d := date.Date()
	t := time.Date(y, m, d, nt.Hour, nt.Minute, nt.Second, 0, loc)

	if t.Hour() != nt.Hour || t.Minute() != nt.Minute || t.Second() != nt.Second {
		return time.Time{}, false
	}

	before := t.Add(-time.Hour)
	_, beforeOffset := before.Zone()
	_, atOffset := t.Zone()

	if beforeOffset > atOffset {
		return time.Time{}, false
	}

	return t, true
}

// WithStartDateAsUnambiguousLocals attaches date to From, and date or
// date+1 to To depending on CrossesDayBoundary, returning ok=false if
// either attachment is ambiguous.
func (r Range) WithStartDateAsUnambiguousLocals(loc *time.Location, date time.Time) (Concrete, bool) {
	start, ok := attachDate(loc, date, r.From)
	if !ok {
		return Concrete{}, false
	}

	endDate := date
	if r.CrossesDayBoundary() {
		endDate = date.AddDate(0, 0, 1)
	}

	end, ok := attachDate(loc, endDate, r.To)
	if !ok {
		return Concrete{}, false
	}

	return Concrete{Start: start, End: end}, true
}

// AfterDatetime resolves the window instance relevant to ref: if today's
// instantiation contains ref and allowInside is true, it is returned;
// otherwise the next instantiation at or after ref is returned, probing
// yesterday's and tomorrow's instantiations as needed (spec.md §4.9).
// ok=false means every candidate instantiation was ambiguous.
func (r Range) AfterDatetime(ref time.Time, allowInside bool) (Concrete, bool) {
	loc := ref.Location()
	today := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, loc)

	candidates := make([]Concrete, 0, 3)

	for _, dayOffset := range []int{-1, 0, 1} {
		date := today.AddDate(0, 0, dayOffset)

		concrete, ok := r.WithStartDateAsUnambiguousLocals(loc, date)
		if ok {
			candidates = append(candidates, concrete)
		}
	}

	if len(candidates) == 0 {
		return Concrete{}, false
	}

	if allowInside {
		for _, c := range candidates {
			if c.Contains(ref) {
				return c, true
			}
		}
	}

	var best Concrete

	found := false

	for _, c := range candidates {
		if !c.Start.After(ref) {
			continue
		}

		if !found || c.Start.Before(best.Start) {
			best = c
			found = true
		}
	}

	if found {
		return best, true
	}

	// Every candidate starts at or before ref and none contains it (or
	// allowInside was false): fall back to the latest-starting one, which
	// by construction is tomorrow's.
	best = candidates[0]
	for _, c := range candidates[1:] {
		if c.Start.After(best.Start) {
			best = c
		}
	}

	return best, true
}
