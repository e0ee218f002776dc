// Package dateparse parses the instants accepted by --at flags.
package dateparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ParseFrom resolves input to an instant relative to now, in now's location.
// Supported formats:
//   - now
//   - HH:MM (today)
//   - today HH:MM, tomorrow HH:MM, yesterday HH:MM
//   - monday HH:MM, ... (next occurrence, same day = next week)
//   - +N (N minutes from now), +Nm, +Nh
//   - in N minutes, in N hours
//   - YYYY-MM-DD HH:MM, YYYY-MM-DDTHH:MM
//   - RFC 3339 (keeps its own offset)
//
// It reports false when input is not recognized.
func ParseFrom(input string, now time.Time) (time.Time, bool) {
	trimmed := strings.TrimSpace(input)
	if t, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return t, true
	}

	input = strings.ToLower(trimmed)
	if input == "now" {
		return now, true
	}

	// Bare clock time
	if h, m, ok := parseClock(input); ok {
		return atClock(now, h, m), true
	}

	// Day keyword followed by a clock time
	if day, clock, ok := strings.Cut(input, " "); ok {
		if h, m, ok := parseClock(strings.TrimSpace(clock)); ok {
			if base, ok := parseDay(day, now); ok {
				return atClock(base, h, m), true
			}
		}
	}

	// +N, +Nm, +Nh
	if match := offsetPattern.FindStringSubmatch(input); match != nil {
		if n, err := strconv.Atoi(match[1]); err == nil {
			unit := time.Minute
			if match[2] == "h" {
				unit = time.Hour
			}
			return now.Add(time.Duration(n) * unit), true
		}
	}

	// "in N minutes" / "in N hours"
	if match := inPattern.FindStringSubmatch(input); match != nil {
		if n, err := strconv.Atoi(match[1]); err == nil {
			unit := time.Minute
			if strings.HasPrefix(match[2], "hour") {
				unit = time.Hour
			}
			return now.Add(time.Duration(n) * unit), true
		}
	}

	// Local date and time
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02t15:04"} {
		if t, err := time.ParseInLocation(layout, input, now.Location()); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

var (
	clockPattern  = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	offsetPattern = regexp.MustCompile(`^\+(\d+)([mh]?)$`)
	inPattern     = regexp.MustCompile(`^in (\d+) (minutes?|mins?|hours?)$`)
)

func parseClock(input string) (hour, minute int, ok bool) {
	match := clockPattern.FindStringSubmatch(input)
	if match == nil {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(match[1])
	minute, _ = strconv.Atoi(match[2])
	if hour > 23 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

func atClock(day time.Time, hour, minute int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, day.Location())
}

func parseDay(input string, now time.Time) (time.Time, bool) {
	switch input {
	case "today":
		return now, true
	case "tomorrow":
		return now.AddDate(0, 0, 1), true
	case "yesterday":
		return now.AddDate(0, 0, -1), true
	}
	if day, ok := parseWeekday(input); ok {
		return nextWeekday(now, day), true
	}
	return time.Time{}, false
}

func parseWeekday(input string) (time.Weekday, bool) {
	switch input {
	case "sunday", "sun":
		return time.Sunday, true
	case "monday", "mon":
		return time.Monday, true
	case "tuesday", "tue":
		return time.Tuesday, true
	case "wednesday", "wed":
		return time.Wednesday, true
	case "thursday", "thu":
		return time.Thursday, true
	case "friday", "fri":
		return time.Friday, true
	case "saturday", "sat":
		return time.Saturday, true
	}
	return 0, false
}

// nextWeekday returns the next occurrence of target. If today is target,
// it returns the same weekday next week.
func nextWeekday(now time.Time, target time.Weekday) time.Time {
	daysUntil := int(target - now.Weekday())
	if daysUntil <= 0 {
		daysUntil += 7
	}
	return now.AddDate(0, 0, daysUntil)
}
