package strategy

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kmaguire/ironfly/internal/broker"
	"github.com/kmaguire/ironfly/internal/criteria"
	"github.com/kmaguire/ironfly/internal/util"
)

// TradeDirection is the caller-declared market outlook for a trade.
type TradeDirection string

const (
	DirectionNeutral TradeDirection = "neutral"
	DirectionBullish TradeDirection = "bullish"
	DirectionBearish TradeDirection = "bearish"
)

// Config holds the per-strategy selection parameters.
type Config struct {
	// Timeline is the [min_days, max_days] expiration window.
	Timeline [2]int
	// Target is the percent profit-credit-decay that triggers a close.
	Target float64
	// Probability is the target short-leg OTM probability, 0-100 scale.
	Probability float64
	// MaxProbability caps the short-leg window; zero means 100.
	MaxProbability float64
	// Width is the desired strike spacing for vertical spreads.
	Width float64
	// MaxSpreadWidth lets the wing search grow the width before shrinking
	// it, for sellers willing to buy a farther wing.
	MaxSpreadWidth float64
	// LegCriteria, when set, replaces the probability search with a
	// criteria-expression filter over each candidate contract.
	LegCriteria string
	// SortKey orders candidates for the criteria filter: "delta",
	// "strike", or "probability_otm" (default).
	SortKey string
	// MinRiskReward, when positive, rejects trades whose reward-to-risk
	// over short delta falls below it.
	MinRiskReward float64
	// FairCreditWarning logs when the received credit is under the
	// theoretical fair credit instead of ignoring it.
	FairCreditWarning bool
}

// optionTypeFor maps the trade direction to the option type that gets
// sold: bullish trades short puts, bearish trades short calls.
func optionTypeFor(direction TradeDirection) broker.OptionType {
	if direction == DirectionBullish || direction == TradeDirection(broker.OptionTypePut) {
		return broker.OptionTypePut
	}
	return broker.OptionTypeCall
}

// FindOptionWithProbability returns the first option, in ascending OTM
// probability order, whose probability (on the 0-100 scale) lies in
// [probability, maxProbability). Returns nil when no candidate qualifies.
func FindOptionWithProbability(options []broker.Option, probability, maxProbability float64) broker.Option {
	if maxProbability <= 0 {
		maxProbability = 100
	}
	for _, o := range broker.SortByProbabilityOTM(options) {
		p := o.ProbabilityOTM() * 100
		if p >= probability && p < maxProbability {
			return o
		}
	}
	return nil
}

// candidate sort keys for the criteria-based search
var sortKeys = map[string]func(broker.Option) float64{
	"delta":           func(o broker.Option) float64 { return math.Abs(o.Delta()) },
	"strike":          func(o broker.Option) float64 { return o.Strike() },
	"probability_otm": func(o broker.Option) float64 { return o.ProbabilityOTM() },
}

// legParams exposes one contract's parameters to criteria expressions.
func legParams(o broker.Option) map[string]interface{} {
	return map[string]interface{}{
		"delta":           o.Delta(),
		"strike":          o.Strike(),
		"probability_otm": o.ProbabilityOTM() * 100,
		"mark_price":      o.MarkPrice(),
	}
}

// FindOptionByCriteria returns the first option, ordered by sortKey, whose
// contract parameters satisfy the criteria expression. Delta-range leg
// filters from signal scripts come through here. A sort key that is not a
// named parameter is evaluated as an expression over the contract
// parameters, e.g. "0 - strike" for descending strike order.
func FindOptionByCriteria(options []broker.Option, expr, sortKey string) (broker.Option, error) {
	keyFn, named := sortKeys[sortKey]
	if sortKey == "" {
		keyFn, named = sortKeys["probability_otm"], true
	}
	keys := make([]float64, len(options))
	for i, o := range options {
		if named {
			keys[i] = keyFn(o)
			continue
		}
		v, err := criteria.EvaluateExpr(sortKey, legParams(o))
		if err != nil {
			return nil, fmt.Errorf("sort key: %w", err)
		}
		keys[i] = v
	}
	idx := make([]int, len(options))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return keys[idx[a]] < keys[idx[b]] })
	for _, i := range idx {
		ok, err := criteria.Evaluate([]criteria.Criterion{{Expr: expr}}, legParams(options[i]))
		if err != nil {
			return nil, err
		}
		if ok {
			return options[i], nil
		}
	}
	return nil, nil
}

// LongLeg finds the protective wing for a short leg: the first strike at
// least width away on the correct side, scanning strikes ascending for
// calls and descending for puts. Returns nil when no strike qualifies at
// this width.
func LongLeg(options []broker.Option, shortLeg broker.Option, optionType broker.OptionType, width float64) broker.Option {
	for _, o := range broker.SortByStrike(options, optionType == broker.OptionTypePut) {
		onSide := (optionType == broker.OptionTypeCall && o.Strike() > shortLeg.Strike()) ||
			(optionType == broker.OptionTypePut && o.Strike() < shortLeg.Strike())
		if !onSide {
			continue
		}
		if math.Abs(o.Strike()-shortLeg.Strike()) >= width {
			return o
		}
	}
	return nil
}

// longLegWithRetry searches for a wing, growing the width toward
// maxWidth first when one is configured, then shrinking toward zero.
// Terminates when a wing is found or the width is exhausted.
func longLegWithRetry(options []broker.Option, shortLeg broker.Option,
	optionType broker.OptionType, width, maxWidth float64) broker.Option {
	for width > 0 {
		if leg := LongLeg(options, shortLeg, optionType, width); leg != nil {
			return leg
		}
		if width < maxWidth {
			width++
		} else {
			width--
		}
	}
	return nil
}

// shortLegFor picks the short leg either by probability window or, when
// the config carries a leg-criteria expression, by criteria filter.
func shortLegFor(cfg Config, options []broker.Option) (broker.Option, error) {
	if cfg.LegCriteria != "" {
		return FindOptionByCriteria(options, cfg.LegCriteria, cfg.SortKey)
	}
	return FindOptionWithProbability(options, cfg.Probability, cfg.MaxProbability), nil
}

// CreditSpread selects a two-leg vertical credit spread: a short leg in
// the probability window and a protective wing width away. Bullish (or
// "put") direction shorts puts; anything else shorts calls.
func CreditSpread(cfg Config, options []broker.Option, direction TradeDirection, width float64) ([]broker.Leg, *SelectionError) {
	optionType := optionTypeFor(direction)
	typed := broker.FilterOptions(options, optionType)
	if len(typed) == 0 {
		return nil, &SelectionError{Reason: NoOptionsOfType, Detail: string(optionType)}
	}

	shortLeg, err := shortLegFor(cfg, typed)
	if err != nil {
		return nil, &SelectionError{Reason: NoShortLeg, Detail: err.Error()}
	}
	if shortLeg == nil {
		return nil, &SelectionError{
			Reason: NoShortLeg,
			Detail: fmt.Sprintf("no %s with probability in [%v, %v)", optionType, cfg.Probability, cfg.MaxProbability),
		}
	}

	longLeg := longLegWithRetry(typed, shortLeg, optionType, width, cfg.MaxSpreadWidth)
	if longLeg == nil {
		return nil, &SelectionError{
			Reason: NoLongLeg,
			Detail: fmt.Sprintf("short leg strike %v expiring %s", shortLeg.Strike(), shortLeg.ExpirationDate()),
		}
	}

	return []broker.Leg{
		broker.NewLeg(shortLeg, broker.SideSell),
		broker.NewLeg(longLeg, broker.SideBuy),
	}, nil
}

// IronCondor composes a bearish call spread and a bullish put spread at
// the same width and probability target. Leg order: call-sell, call-buy,
// put-sell, put-buy.
func IronCondor(cfg Config, options []broker.Option, width float64) ([]broker.Leg, *SelectionError) {
	callWing, selErr := CreditSpread(cfg, options, DirectionBearish, width)
	if selErr != nil {
		return nil, selErr
	}
	putWing, selErr := CreditSpread(cfg, options, DirectionBullish, width)
	if selErr != nil {
		return nil, selErr
	}
	return []broker.Leg{callWing[0], callWing[1], putWing[0], putWing[1]}, nil
}

// IronButterfly sells the call/put straddle closest to the underlying
// quote and buys probability-selected wings on both sides. Leg order:
// short call, short put, long call wing, long put wing.
func IronButterfly(cfg Config, options []broker.Option, quote float64) ([]broker.Leg, *SelectionError) {
	calls := broker.FilterOptions(options, broker.OptionTypeCall)
	puts := broker.FilterOptions(options, broker.OptionTypePut)
	if len(calls) == 0 || len(puts) == 0 {
		return nil, &SelectionError{Reason: NoOptionsOfType, Detail: "need both calls and puts"}
	}

	closestCall := calls[0]
	for _, o := range calls[1:] {
		if math.Abs(o.Strike()-quote) < math.Abs(closestCall.Strike()-quote) {
			closestCall = o
		}
	}
	var closestPut broker.Option
	for _, o := range puts {
		if o.Strike() == closestCall.Strike() {
			closestPut = o
		}
	}
	if closestPut == nil {
		return nil, &SelectionError{
			Reason: NoShortLeg,
			Detail: fmt.Sprintf("no put at straddle strike %v", closestCall.Strike()),
		}
	}

	callWing := FindOptionWithProbability(calls, cfg.Probability, cfg.MaxProbability)
	putWing := FindOptionWithProbability(puts, cfg.Probability, cfg.MaxProbability)
	if callWing == nil || putWing == nil {
		return nil, &SelectionError{
			Reason: NoLongLeg,
			Detail: fmt.Sprintf("no wings with probability >= %v", cfg.Probability),
		}
	}

	return []broker.Leg{
		broker.NewLeg(closestCall, broker.SideSell),
		broker.NewLeg(closestPut, broker.SideSell),
		broker.NewLeg(callWing, broker.SideBuy),
		broker.NewLeg(putWing, broker.SideBuy),
	}, nil
}

// maxExpDateAttempts bounds the expiration-date retry loop.
const maxExpDateAttempts = 7

// ExpDateSearch probes a chain's listed expiration dates outward from a
// target days-to-expiration, skipping blacklisted dates. Dates that fail
// leg selection are blacklisted by the caller and the probe resumes.
type ExpDateSearch struct {
	b         broker.Broker
	chain     *broker.Chain
	target    time.Time
	pinned    bool
	exact     bool // explicit exp_date: the target must be listed as-is
	blacklist map[string]bool
	maxOffset int
}

// NewExpDateSearch sets up the expiration probe. timelinePct positions the
// target inside the config's timeline window (50 = midpoint); daysOut, a
// monthly flag, or an explicit expDate override it. An explicit date or
// monthly resolution pins the search to a single attempt.
func NewExpDateSearch(b broker.Broker, chain *broker.Chain, cfg Config,
	timelinePct, daysOut int, monthly bool, expDate string) (*ExpDateSearch, error) {
	now := b.Now()
	search := &ExpDateSearch{
		b:         b,
		chain:     chain,
		blacklist: make(map[string]bool),
		maxOffset: 45,
	}

	switch {
	case expDate != "":
		target, err := util.ParseDate(expDate)
		if err != nil {
			return nil, fmt.Errorf("invalid exp_date: %w", err)
		}
		search.target = target
		search.pinned = true
		search.exact = true
	case monthly:
		target := util.MonthlyExpiration(now.AddDate(0, 0, targetDays(cfg, timelinePct, daysOut)))
		if !target.After(now) {
			target = util.MonthlyExpiration(target.AddDate(0, 1, 0))
		}
		search.target = target
		search.pinned = true
	default:
		search.target = now.AddDate(0, 0, targetDays(cfg, timelinePct, daysOut))
	}
	return search, nil
}

// targetDays computes the days-to-expiration target: an explicit days-out
// count wins, otherwise the timeline window scaled by the percent value.
func targetDays(cfg Config, timelinePct, daysOut int) int {
	if daysOut > 0 {
		return daysOut
	}
	lo, hi := cfg.Timeline[0], cfg.Timeline[1]
	return lo + (hi-lo)*timelinePct/100
}

// Pinned reports whether the search allows only one attempt.
func (s *ExpDateSearch) Pinned() bool { return s.pinned }

// Blacklist marks a date as failed so Next skips it.
func (s *ExpDateSearch) Blacklist(date string) { s.blacklist[date] = true }

// Next returns the listed, non-blacklisted expiration nearest the target
// (probing outward day by day, later dates first on ties) along with its
// contracts. Returns a NoTradeError when the chain offers nothing usable.
func (s *ExpDateSearch) Next() (string, []broker.Option, error) {
	// a requested date is honored literally: trading a neighboring
	// expiration instead would change the position the operator asked for
	if s.exact {
		date := util.FormatDate(s.target)
		if s.blacklist[date] || !s.chain.HasExpiration(date) {
			return "", nil, &NoTradeError{Msg: "expiration " + date + " is not listed"}
		}
		options, err := s.b.OptionsForDate(s.chain, date)
		if err != nil {
			return "", nil, err
		}
		if len(options) == 0 {
			return "", nil, &NoTradeError{Msg: "no contracts for expiration " + date}
		}
		return date, options, nil
	}
	for offset := 0; offset <= s.maxOffset; offset++ {
		for _, delta := range []int{offset, -offset} {
			date := util.FormatDate(s.target.AddDate(0, 0, delta))
			if s.blacklist[date] || !s.chain.HasExpiration(date) {
				continue
			}
			options, err := s.b.OptionsForDate(s.chain, date)
			if err != nil {
				return "", nil, err
			}
			if len(options) == 0 {
				s.blacklist[date] = true
				continue
			}
			return date, options, nil
		}
	}
	return "", nil, &NoTradeError{Msg: "no usable expiration dates in chain"}
}
