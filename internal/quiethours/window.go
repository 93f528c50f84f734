// Package quiethours decides whether a wall-clock instant falls inside a
// configured suppression window.
package quiethours

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Window is a daily HH:MM range. Start > End denotes an overnight window.
type Window struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone,omitempty"`
}

// ParseClock converts "HH:MM" (24-hour) into minutes since midnight.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock value %q: expected HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// Validate checks both bounds and, if set, the timezone name.
func (w Window) Validate() error {
	if _, err := ParseClock(w.Start); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if _, err := ParseClock(w.End); err != nil {
		return fmt.Errorf("end: %w", err)
	}
	if w.Timezone != "" {
		if _, err := time.LoadLocation(w.Timezone); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	return nil
}

// IsQuiet reports whether now falls inside w. When w.Timezone names a valid
// zone, now is converted into it first; otherwise now's own location is used.
// A malformed window is never quiet.
func IsQuiet(w Window, now time.Time) bool {
	start, err := ParseClock(w.Start)
	if err != nil {
		return false
	}
	end, err := ParseClock(w.End)
	if err != nil {
		return false
	}

	if w.Timezone != "" {
		if loc, err := time.LoadLocation(w.Timezone); err == nil {
			now = now.In(loc)
		}
	}
	current := now.Hour()*60 + now.Minute()

	if start > end {
		return current >= start || current < end
	}
	return current >= start && current < end
}
