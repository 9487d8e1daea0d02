package util

import (
	"testing"
	"time"
)

func TestParseDateUS(t *testing.T) {
	got, err := ParseDateUS("03/21/2025")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Year() != 2025 || got.Month() != time.March || got.Day() != 21 {
		t.Fatalf("unexpected date %v", got)
	}
	if _, err := ParseDateUS("2025-03-21"); err == nil {
		t.Fatalf("expected error for ISO date")
	}
}

func TestMidnight(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	got := Midnight(time.Date(2025, 3, 21, 15, 4, 5, 999, loc))
	want := time.Date(2025, 3, 21, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2025, 3, 21, 23, 59, 0, 0, time.UTC)
	b := time.Date(2025, 3, 28, 0, 1, 0, 0, time.UTC)
	if got := DaysBetween(a, b); got != 7 {
		t.Fatalf("expected 7 days, got %d", got)
	}
	if got := DaysBetween(a, a); got != 0 {
		t.Fatalf("expected 0 days, got %d", got)
	}
}

func TestNextBusinessDay(t *testing.T) {
	cases := []struct {
		day  time.Time
		want time.Weekday
	}{
		{time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC), time.Monday},   // Friday
		{time.Date(2025, 3, 22, 0, 0, 0, 0, time.UTC), time.Monday},   // Saturday
		{time.Date(2025, 3, 24, 0, 0, 0, 0, time.UTC), time.Tuesday},  // Monday
		{time.Date(2025, 3, 26, 0, 0, 0, 0, time.UTC), time.Thursday}, // Wednesday
	}
	for _, c := range cases {
		got := NextBusinessDay(c.day)
		if got.Weekday() != c.want {
			t.Fatalf("after %v expected %v, got %v", c.day.Weekday(), c.want, got.Weekday())
		}
	}
}

func TestFormatThousands(t *testing.T) {
	cases := map[float64]string{
		1500000: "1,500,000",
		900:     "900",
		-20500:  "-20,500",
	}
	for in, want := range cases {
		if got := FormatThousands(in); got != want {
			t.Fatalf("FormatThousands(%v) = %q, want %q", in, got, want)
		}
	}
}
