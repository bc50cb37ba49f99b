package session

import (
	"testing"
	"time"
)

func at(hour, min int) time.Time {
	return time.Date(2025, 6, 14, hour, min, 0, 0, time.UTC)
}

func TestWindowContains(t *testing.T) {
	w, err := ParseWindow("05:00", "18:00")
	if err != nil {
		t.Fatalf("parse window: %v", err)
	}

	cases := []struct {
		hour, min int
		want      bool
	}{
		{4, 59, false},
		{5, 0, true},
		{12, 0, true},
		{17, 59, true},
		{18, 0, false}, // closing minute is outside
		{23, 0, false},
	}
	for _, c := range cases {
		if got := w.Contains(at(c.hour, c.min)); got != c.want {
			t.Fatalf("Contains(%02d:%02d) = %v, want %v", c.hour, c.min, got, c.want)
		}
	}
}

func TestWindowCrossingMidnight(t *testing.T) {
	w, err := ParseWindow("22:00", "06:00")
	if err != nil {
		t.Fatalf("parse window: %v", err)
	}

	cases := []struct {
		hour, min int
		want      bool
	}{
		{23, 59, true},
		{0, 0, true},
		{5, 59, true},
		{6, 0, false},
		{7, 0, false},
		{21, 59, false},
		{22, 0, true},
	}
	for _, c := range cases {
		if got := w.Contains(at(c.hour, c.min)); got != c.want {
			t.Fatalf("Contains(%02d:%02d) = %v, want %v", c.hour, c.min, got, c.want)
		}
	}
}

func TestWindowBoundaryMinutes(t *testing.T) {
	w, _ := ParseWindow("05:00", "18:00")

	if !w.StartsAt(at(5, 0)) || w.StartsAt(at(5, 1)) {
		t.Fatalf("StartsAt must match the opening minute only")
	}
	if !w.EndsAt(at(18, 0)) || w.EndsAt(at(17, 59)) {
		t.Fatalf("EndsAt must match the closing minute only")
	}
}

func TestParseWindowRejectsBadInput(t *testing.T) {
	for _, c := range [][2]string{
		{"25:00", "18:00"},
		{"05:61", "18:00"},
		{"nope", "18:00"},
		{"05:00", ""},
	} {
		if _, err := ParseWindow(c[0], c[1]); err == nil {
			t.Fatalf("ParseWindow(%q, %q) should fail", c[0], c[1])
		}
	}
}
