package esi

import (
	"fmt"
	"math"
	"time"
)

// Window is the daily ESI maintenance window, given in fractional hours of
// the UTC day (11.25 is 11:15 UTC).
//
// A window with Start after End would cross midnight. That case is not
// normalized: such a window contains no instant.
type Window struct {
	Start float64
	End   float64
}

// DefaultWindow is the usual daily downtime, 11:00 to 11:15 UTC.
func DefaultWindow() Window {
	return Window{Start: 11.0, End: 11.25}
}

// SplitHours converts fractional hours into whole hours and minutes.
func SplitHours(v float64) (hour, minute int) {
	h := math.Floor(v)
	return int(h), int(math.Floor((v - h) * 60))
}

// Validate checks that both bounds are within a day.
func (w Window) Validate() error {
	for _, b := range []struct {
		name string
		v    float64
	}{{"start", w.Start}, {"end", w.End}} {
		if math.IsNaN(b.v) || b.v < 0 || b.v >= 24 {
			return fmt.Errorf("downtime %s %v must be in [0, 24)", b.name, b.v)
		}
	}
	return nil
}

// Bounds returns the window's instants on now's UTC date, in UTC.
func (w Window) Bounds(now time.Time) (start, end time.Time) {
	return at(now, w.Start), at(now, w.End)
}

// Contains reports whether now lies within the window, both ends inclusive.
func (w Window) Contains(now time.Time) bool {
	start, end := w.Bounds(now)
	return !now.Before(start) && !now.After(end)
}

func (w Window) String() string {
	sh, sm := SplitHours(w.Start)
	eh, em := SplitHours(w.End)
	return fmt.Sprintf("%02d:%02d-%02d:%02d", sh, sm, eh, em)
}

func at(now time.Time, hours float64) time.Time {
	h, m := SplitHours(hours)
	y, mo, d := now.UTC().Date()
	return time.Date(y, mo, d, h, m, 0, 0, time.UTC)
}
