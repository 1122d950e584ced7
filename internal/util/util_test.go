package util

import (
	"math"
	"testing"
	"time"
)

func TestPercentageChange(t *testing.T) {
	cases := []struct {
		old, new, want float64
	}{
		{100, 50, -50},
		{100, 150, 50},
		{112, 56, -50},
		{1.56, 1.56, 0},
		{0, 10, 0},
	}
	for _, c := range cases {
		if got := PercentageChange(c.old, c.new); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("PercentageChange(%v, %v) = %v, want %v", c.old, c.new, got, c.want)
		}
	}
}

func TestPriceFromChange(t *testing.T) {
	if got := PriceFromChange(1.00, 50); math.Abs(got-0.50) > 1e-9 {
		t.Errorf("PriceFromChange(1.00, 50) = %v, want 0.50", got)
	}
	if got := PriceFromChange(1.12, 25); math.Abs(got-0.84) > 1e-9 {
		t.Errorf("PriceFromChange(1.12, 25) = %v, want 0.84", got)
	}
}

func TestRisk(t *testing.T) {
	if got := Risk(3, 1.56); math.Abs(got-144) > 1e-9 {
		t.Errorf("Risk(3, 1.56) = %v, want 144", got)
	}
}

func TestAllocation(t *testing.T) {
	if got := Allocation(1_000_000, 3); got != 30_000 {
		t.Errorf("Allocation(1000000, 3) = %v, want 30000", got)
	}
}

func TestTickRounding(t *testing.T) {
	if got := RoundToTick(1.237, 0.01); math.Abs(got-1.24) > 1e-9 {
		t.Errorf("RoundToTick = %v, want 1.24", got)
	}
	if got := FloorToTick(1.239, 0.01); math.Abs(got-1.23) > 1e-9 {
		t.Errorf("FloorToTick = %v, want 1.23", got)
	}
	// Non-positive tick passes through unchanged
	if got := RoundToTick(1.237, 0); got != 1.237 {
		t.Errorf("RoundToTick with zero tick = %v, want 1.237", got)
	}
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	b := time.Date(2024, 3, 31, 2, 0, 0, 0, time.UTC)
	if got := DaysBetween(a, b); got != 30 {
		t.Errorf("DaysBetween = %d, want 30", got)
	}
	if got := DaysBetween(b, a); got != 30 {
		t.Errorf("DaysBetween reversed = %d, want 30", got)
	}
}

func TestMonthlyExpiration(t *testing.T) {
	cases := []struct {
		in   time.Time
		want string
	}{
		// June 2019: first Friday is the 7th, +14 days = the 21st.
		{time.Date(2019, 6, 3, 0, 0, 0, 0, time.UTC), "2019-06-21"},
		// August 2019: first Friday is the 2nd, +14 days = the 16th.
		{time.Date(2019, 8, 30, 0, 0, 0, 0, time.UTC), "2019-08-16"},
		// March 2024: first Friday is the 1st, +14 days = the 15th.
		{time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), "2024-03-15"},
	}
	for _, c := range cases {
		if got := FormatDate(MonthlyExpiration(c.in)); got != c.want {
			t.Errorf("MonthlyExpiration(%s) = %s, want %s", FormatDate(c.in), got, c.want)
		}
	}
}
