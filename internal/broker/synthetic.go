package broker

import (
	"math"
	"time"

	"github.com/kmaguire/ironfly/internal/util"
)

// syntheticWeeks is how many weekly expirations a generated chain carries.
const syntheticWeeks = 10

// SyntheticChain builds a deterministic option chain around the quote for
// paper trading: weekly Friday expirations and strikes in 2.5% steps out
// to 30% either side of the money. Marks and probabilities come from a
// linear moneyness model, good enough to exercise selection and sizing
// without live data.
func SyntheticChain(symbol string, quote float64, now time.Time, weeks int) *Chain {
	if weeks <= 0 {
		weeks = syntheticWeeks
	}
	chain := &Chain{Symbol: symbol, Options: make(map[string][]Option)}
	if quote <= 0 {
		return chain
	}

	step := strikeStep(quote)
	low := util.FloorToTick(quote*0.7, step)
	high := quote * 1.3

	expiry := nextFriday(now)
	for w := 0; w < weeks; w++ {
		date := util.FormatDate(expiry)
		chain.ExpirationDates = append(chain.ExpirationDates, date)
		days := float64(util.DaysBetween(now, expiry))

		var options []Option
		for strike := low; strike <= high; strike += step {
			options = append(options,
				syntheticOption(symbol, OptionTypeCall, strike, quote, days, date),
				syntheticOption(symbol, OptionTypePut, strike, quote, days, date))
		}
		chain.Options[date] = options
		expiry = expiry.AddDate(0, 0, 7)
	}
	return chain
}

func syntheticOption(symbol string, t OptionType, strike, quote, days float64, date string) *PaperOption {
	// signed distance from the money, positive when out of the money
	moneyness := (strike - quote) / quote
	if t == OptionTypePut {
		moneyness = -moneyness
	}

	probOTM := clamp(0.5+moneyness/0.6, 0.02, 0.98)
	delta := 1 - probOTM
	if t == OptionTypePut {
		delta = -delta
	}

	intrinsic := math.Max(0, -moneyness*quote)
	timeValue := quote * 0.03 * (1 - math.Abs(moneyness)/0.3) * math.Sqrt(math.Max(days, 1)/30)
	mark := math.Max(0.01, intrinsic+math.Max(timeValue, 0))

	return &PaperOption{
		Symbol:     symbol,
		Type:       t,
		StrikeVal:  strike,
		Mark:       util.RoundToTick(mark, 0.01),
		ProbOTM:    probOTM,
		DeltaVal:   delta,
		Expiration: date,
	}
}

// strikeStep picks a listing-like strike spacing for the price level.
func strikeStep(quote float64) float64 {
	switch {
	case quote < 25:
		return 0.5
	case quote < 100:
		return 1
	case quote < 250:
		return 2.5
	default:
		return 5
	}
}

func nextFriday(now time.Time) time.Time {
	d := now
	for d.Weekday() != time.Friday {
		d = d.AddDate(0, 0, 1)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
