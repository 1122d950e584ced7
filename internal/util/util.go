// Package util provides shared price, risk, and calendar helpers.
package util

import (
	"math"
	"time"
)

const sharesPerContract = 100.0

// PercentageChange returns the percent change from old to new.
func PercentageChange(old, new float64) float64 {
	if old == 0 {
		return 0
	}
	return (new - old) / old * 100
}

// PriceFromChange returns the price that corresponds to a given percent
// decay from the starting price. Used to compute a closing debit from a
// profit target, e.g. PriceFromChange(1.00, 50) == 0.50.
func PriceFromChange(price, changePct float64) float64 {
	return price * (1 - changePct/100)
}

// Risk returns the dollar risk per contract for a vertical spread:
// the spread width less the credit received, in contract-multiplier terms.
func Risk(spreadWidth, credit float64) float64 {
	return (spreadWidth - credit) * sharesPerContract
}

// Allocation converts a percent-of-balance allocation into dollars.
func Allocation(balance, allocationPct float64) float64 {
	return balance * allocationPct / 100
}

// RoundToTick rounds x to the nearest tick increment.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}

// FloorToTick rounds x down to the nearest tick increment.
func FloorToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Floor(x/tick) * tick
}

// DaysBetween returns the whole-day distance between two dates.
func DaysBetween(from, to time.Time) int {
	f := from.UTC().Truncate(24 * time.Hour)
	t := to.UTC().Truncate(24 * time.Hour)
	d := int(t.Sub(f).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}

// MonthlyExpiration returns the conventional monthly option date for the
// month containing t: the first Friday of the month plus 14 days.
func MonthlyExpiration(t time.Time) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	for first.Weekday() != time.Friday {
		first = first.AddDate(0, 0, 1)
	}
	return first.AddDate(0, 0, 14)
}

// ParseDate parses a broker-format expiration date (YYYY-MM-DD).
func ParseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

// FormatDate renders a time as a broker-format expiration date.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}
