package session

import (
	"fmt"
	"time"
)

// Window is the daily operating range in local time-of-day. A window whose
// end is at or before its start crosses midnight: [start, 24:00) ∪ [0:00, end).
type Window struct {
	start int // minutes since midnight
	end   int
}

// ParseWindow parses "HH:MM" start and end strings.
func ParseWindow(start, end string) (Window, error) {
	s, err := parseMinuteOfDay(start)
	if err != nil {
		return Window{}, fmt.Errorf("window start: %w", err)
	}
	e, err := parseMinuteOfDay(end)
	if err != nil {
		return Window{}, fmt.Errorf("window end: %w", err)
	}
	return Window{start: s, end: e}, nil
}

func parseMinuteOfDay(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time of day %q out of range", s)
	}
	return h*60 + m, nil
}

// Contains reports whether t's minute-of-day falls inside the window.
func (w Window) Contains(t time.Time) bool {
	cur := t.Hour()*60 + t.Minute()
	if w.end <= w.start { // crosses midnight
		return cur >= w.start || cur < w.end
	}
	return cur >= w.start && cur < w.end
}

// StartsAt reports whether t lands on the exact opening minute.
func (w Window) StartsAt(t time.Time) bool {
	return t.Hour()*60+t.Minute() == w.start
}

// EndsAt reports whether t lands on the exact closing minute.
func (w Window) EndsAt(t time.Time) bool {
	return t.Hour()*60+t.Minute() == w.end
}
