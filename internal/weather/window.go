package weather

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TargetDay is a month/day pair independent of year.
type TargetDay struct {
	Month time.Month
	Day   int
}

func (t TargetDay) String() string {
	return fmt.Sprintf("%02d-%02d", int(t.Month), t.Day)
}

// ParseTargetDay accepts "MM-DD" or "YYYY-MM-DD". The year, when present, is
// ignored. February 29 is accepted.
func ParseTargetDay(s string) (TargetDay, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	switch {
	case len(parts) == 3 && len(parts[0]) == 4:
		parts = parts[1:]
	case len(parts) == 2:
	default:
		return TargetDay{}, fmt.Errorf("%w: %q", ErrInvalidTargetDay, s)
	}
	if len(parts[0]) != 2 || len(parts[1]) != 2 {
		return TargetDay{}, fmt.Errorf("%w: %q", ErrInvalidTargetDay, s)
	}

	month, err := strconv.Atoi(parts[0])
	if err != nil || month < 1 || month > 12 {
		return TargetDay{}, fmt.Errorf("%w: month in %q", ErrInvalidTargetDay, s)
	}
	day, err := strconv.Atoi(parts[1])
	// 2000 is a leap year, so Feb 29 survives the round trip.
	if err != nil || day < 1 || time.Date(2000, time.Month(month), day, 0, 0, 0, 0, time.UTC).Day() != day {
		return TargetDay{}, fmt.Errorf("%w: day in %q", ErrInvalidTargetDay, s)
	}
	return TargetDay{Month: time.Month(month), Day: day}, nil
}

// Center returns the window center for the given year. Days after the 28th
// are clamped so every month has the center.
func (t TargetDay) Center(year int) Date {
	return NewDate(year, t.Month, min(t.Day, 28))
}

// DateRange is an inclusive span of calendar days.
type DateRange struct {
	Start Date
	End   Date
}

// Days returns every date in the range in order.
func (r DateRange) Days() []Date {
	var out []Date
	for d := r.Start; !d.After(r.End.Time); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

// Contains reports whether d falls inside the range.
func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.Start.Time) && !d.After(r.End.Time)
}

// YearSpan is an inclusive range of historical years.
type YearSpan struct {
	Start int
	End   int
}

// Count is the number of years in the span.
func (y YearSpan) Count() int { return y.End - y.Start + 1 }

func (y YearSpan) String() string { return fmt.Sprintf("%d-%d", y.Start, y.End) }

// LastCompleteYears returns the n years before now's year, never including
// the current year.
func LastCompleteYears(now time.Time, n int) YearSpan {
	end := now.Year() - 1
	return YearSpan{Start: end - n + 1, End: end}
}

// WindowSpec describes a day-of-year sample.
type WindowSpec struct {
	Target TargetDay
	Years  YearSpan
	Radius int
}

// Windows returns one date range per year, oldest first.
func (w WindowSpec) Windows() []DateRange {
	out := make([]DateRange, 0, w.Years.Count())
	for year := w.Years.Start; year <= w.Years.End; year++ {
		c := w.Target.Center(year)
		out = append(out, DateRange{Start: c.AddDays(-w.Radius), End: c.AddDays(w.Radius)})
	}
	return out
}

// ExpectedDays is years × (2W+1).
func (w WindowSpec) ExpectedDays() int {
	return w.Years.Count() * (2*w.Radius + 1)
}

// Span is the single continuous range covering every window.
func (w WindowSpec) Span() DateRange {
	windows := w.Windows()
	if len(windows) == 0 {
		return DateRange{}
	}
	return DateRange{Start: windows[0].Start, End: windows[len(windows)-1].End}
}

// InWindow reports whether d falls in any of the spec's windows.
func (w WindowSpec) InWindow(d Date) bool {
	for _, r := range w.Windows() {
		if r.Contains(d) {
			return true
		}
	}
	return false
}
