package esi

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSplitHours(t *testing.T) {
	tests := []struct {
		input      float64
		hour, mins int
	}{
		{11.0, 11, 0},
		{11.25, 11, 15},
		{11.5, 11, 30},
		{0, 0, 0},
		{23.75, 23, 45},
		{11.1, 11, 5}, // 0.1h is just under 6 minutes in float64
	}

	for _, tt := range tests {
		h, m := SplitHours(tt.input)
		assert.Equal(t, tt.hour, h, "hour of %v", tt.input)
		assert.Equal(t, tt.mins, m, "minute of %v", tt.input)
	}
}

func TestWindowContains(t *testing.T) {
	w := Window{Start: 11.0, End: 11.25}
	day := func(h, m, s int) time.Time {
		return time.Date(2021, 6, 29, h, m, s, 0, time.UTC)
	}

	tests := []struct {
		name     string
		now      time.Time
		expected bool
	}{
		{"before", day(10, 0, 0), false},
		{"at start", day(11, 0, 0), true},
		{"inside", day(11, 1, 0), true},
		{"at end", day(11, 15, 0), true},
		{"just after end", day(11, 15, 1), false},
		{"afternoon", day(14, 0, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, w.Contains(tt.now))
		})
	}
}

func TestWindowIsUTC(t *testing.T) {
	berlin := time.FixedZone("CEST", 2*60*60)
	w := DefaultWindow()

	// 11:05 in Berlin is 09:05 UTC.
	assert.False(t, w.Contains(time.Date(2021, 6, 29, 11, 5, 0, 0, berlin)))
	// 13:05 in Berlin is 11:05 UTC.
	assert.True(t, w.Contains(time.Date(2021, 6, 29, 13, 5, 0, 0, berlin)))

	start, end := w.Bounds(time.Date(2021, 6, 29, 13, 5, 42, 123, berlin))
	assert.Equal(t, time.Date(2021, 6, 29, 11, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2021, 6, 29, 11, 15, 0, 0, time.UTC), end)
}

func TestWindowUsesUTCDate(t *testing.T) {
	// 01:30 on June 30 in UTC+14 is still June 29 in UTC.
	kiribati := time.FixedZone("LINT", 14*60*60)
	start, _ := DefaultWindow().Bounds(time.Date(2021, 6, 30, 1, 30, 0, 0, kiribati))
	assert.Equal(t, time.Date(2021, 6, 29, 11, 0, 0, 0, time.UTC), start)
}

func TestWindowAcrossMidnightIsEmpty(t *testing.T) {
	w := Window{Start: 23.5, End: 0.5}
	assert.False(t, w.Contains(time.Date(2021, 6, 29, 23, 45, 0, 0, time.UTC)))
	assert.False(t, w.Contains(time.Date(2021, 6, 29, 0, 15, 0, 0, time.UTC)))
}

func TestWindowValidate(t *testing.T) {
	assert.NoError(t, DefaultWindow().Validate())
	assert.NoError(t, Window{Start: 0, End: 23.99}.Validate())
	assert.Error(t, Window{Start: -1, End: 1}.Validate())
	assert.Error(t, Window{Start: 1, End: 24}.Validate())
	assert.Error(t, Window{Start: math.NaN(), End: 1}.Validate())
}

func TestWindowString(t *testing.T) {
	assert.Equal(t, "11:00-11:15", DefaultWindow().String())
}
