package dateparse

import (
	"testing"
	"time"
)

// FuzzParseFrom tests the ParseFrom function with arbitrary input.
// The function should never panic regardless of input.
func FuzzParseFrom(f *testing.F) {
	seeds := []string{
		"now", "11:00", "11:15", "0:00", "23:59",
		"today 11:00", "tomorrow 11:00", "yesterday 11:00",
		"monday 11:00", "sun 11:00",
		"+1", "+15m", "+2h", "+0", "+-1",
		"in 1 minute", "in 30 mins", "in 2 hours",
		"2024-01-15 11:00", "2024-01-15T11:00", "2021-06-29T11:05:00Z",
		"", " ", "  ",
		"invalid", "24:00", "99:99", "next week",
		"+", "in minutes", "today",
	}

	for _, s := range seeds {
		f.Add(s)
	}

	ref := time.Date(2024, 1, 17, 12, 0, 0, 0, time.UTC)

	f.Fuzz(func(t *testing.T, input string) {
		got, ok := ParseFrom(input, ref)
		if !ok && !got.IsZero() {
			t.Errorf("ParseFrom(%q) returned %s with ok=false", input, got)
		}
	})
}
