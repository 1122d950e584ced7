package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmaguire/ironfly/internal/broker"
)

const testExp = "2019-06-21"

func call(strike, mark, probOTM, delta float64) *broker.PaperOption {
	return &broker.PaperOption{
		Symbol: "MU", Type: broker.OptionTypeCall,
		StrikeVal: strike, Mark: mark, ProbOTM: probOTM, DeltaVal: delta,
		Expiration: testExp,
	}
}

func put(strike, mark, probOTM, delta float64) *broker.PaperOption {
	return &broker.PaperOption{
		Symbol: "MU", Type: broker.OptionTypePut,
		StrikeVal: strike, Mark: mark, ProbOTM: probOTM, DeltaVal: delta,
		Expiration: testExp,
	}
}

// testChainOptions is a chain snapshot around a 39.50 underlying.
func testChainOptions() []broker.Option {
	return []broker.Option{
		call(38, 1.90, 0.40, 0.60),
		call(39.5, 1.10, 0.50, 0.50),
		call(40, 0.78, 0.72, 0.28),
		call(42, 0.35, 0.86, 0.14),
		call(44.5, 0.17, 0.93, 0.07),
		call(46, 0.08, 0.96, 0.04),
		put(39.5, 1.10, 0.50, -0.50),
		put(38, 0.62, 0.70, -0.30),
		put(36.5, 0.28, 0.88, -0.12),
		put(35, 0.15, 0.93, -0.07),
	}
}

func testChain() *broker.Chain {
	return &broker.Chain{
		Symbol:          "MU",
		ExpirationDates: []string{"2019-06-14", testExp, "2019-07-19"},
		Options: map[string][]broker.Option{
			"2019-06-14": testChainOptions(),
			testExp:      testChainOptions(),
			"2019-07-19": testChainOptions(),
		},
	}
}

func TestFindOptionWithProbabilityWindow(t *testing.T) {
	options := testChainOptions()

	// first call at or above 70, below 100
	got := FindOptionWithProbability(broker.FilterOptions(options, broker.OptionTypeCall), 70, 0)
	require.NotNil(t, got)
	assert.Equal(t, 40.0, got.Strike())

	// window excludes the upper bound
	got = FindOptionWithProbability(options, 85, 90)
	require.NotNil(t, got)
	p := got.ProbabilityOTM() * 100
	assert.GreaterOrEqual(t, p, 85.0)
	assert.Less(t, p, 90.0)

	// nothing qualifies
	assert.Nil(t, FindOptionWithProbability(options, 99, 0))
}

func TestFindOptionByCriteriaDeltaRange(t *testing.T) {
	calls := broker.FilterOptions(testChainOptions(), broker.OptionTypeCall)

	got, err := FindOptionByCriteria(calls, "delta >= 0.25 && delta <= 0.35", "delta")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 40.0, got.Strike())

	got, err = FindOptionByCriteria(calls, "delta > 0.9", "delta")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = FindOptionByCriteria(calls, "delta >", "delta")
	assert.Error(t, err)

	_, err = FindOptionByCriteria(calls, "delta > 0", "volume")
	assert.Error(t, err)

	// a computed sort key orders candidates by the expression value
	got, err = FindOptionByCriteria(calls, "delta > 0", "0 - strike")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 46.0, got.Strike())
}

func TestLongLegSides(t *testing.T) {
	options := testChainOptions()
	calls := broker.FilterOptions(options, broker.OptionTypeCall)
	puts := broker.FilterOptions(options, broker.OptionTypePut)

	shortCall := call(40, 0.78, 0.72, 0.28)
	wing := LongLeg(calls, shortCall, broker.OptionTypeCall, 4.5)
	require.NotNil(t, wing)
	assert.Equal(t, 44.5, wing.Strike())

	// nearest qualifying strike, not the farthest
	wing = LongLeg(calls, shortCall, broker.OptionTypeCall, 2)
	require.NotNil(t, wing)
	assert.Equal(t, 42.0, wing.Strike())

	shortPut := put(36.5, 0.28, 0.88, -0.12)
	wing = LongLeg(puts, shortPut, broker.OptionTypePut, 1.5)
	require.NotNil(t, wing)
	assert.Equal(t, 35.0, wing.Strike())

	// no strike far enough
	assert.Nil(t, LongLeg(calls, call(46, 0.08, 0.96, 0.04), broker.OptionTypeCall, 1))
}

func TestLongLegRetryTerminates(t *testing.T) {
	calls := broker.FilterOptions(testChainOptions(), broker.OptionTypeCall)
	shortCall := call(40, 0.78, 0.72, 0.28)

	// width 10 has no wing; the retry shrinks until 6 reaches 44.5... then
	// further down to any available wing, terminating with a result
	wing := longLegWithRetry(calls, shortCall, broker.OptionTypeCall, 10, 0)
	require.NotNil(t, wing)
	assert.Equal(t, 44.5, wing.Strike())

	// growth first when a max is set, then shrink
	wing = longLegWithRetry(calls, shortCall, broker.OptionTypeCall, 3, 6)
	require.NotNil(t, wing)
	assert.Equal(t, 44.5, wing.Strike())

	// short leg at the top of the chain: search exhausts and returns nil
	assert.Nil(t, longLegWithRetry(calls, call(46, 0.08, 0.96, 0.04), broker.OptionTypeCall, 3, 0))
}

func TestCreditSpreadScenarioA(t *testing.T) {
	cfg := premiumTable["credit_spread"]
	legs, selErr := CreditSpread(cfg, testChainOptions(), DirectionBearish, 4.5)
	require.Nil(t, selErr)
	require.Len(t, legs, 2)

	assert.Equal(t, broker.SideSell, legs[0].Side)
	assert.Equal(t, 40.0, legs[0].Option.Strike())
	assert.Equal(t, broker.OptionTypeCall, legs[0].Option.OptionType())
	assert.Equal(t, broker.SideBuy, legs[1].Side)
	assert.Equal(t, 44.5, legs[1].Option.Strike())
	assert.InDelta(t, 0.61, broker.NetPrice(legs), 1e-9)
}

func TestCreditSpreadFailures(t *testing.T) {
	cfg := premiumTable["credit_spread"]

	_, selErr := CreditSpread(cfg, nil, DirectionBearish, 3)
	require.NotNil(t, selErr)
	assert.Equal(t, NoOptionsOfType, selErr.Reason)

	// probability window nobody satisfies
	cfg.Probability = 99
	_, selErr = CreditSpread(cfg, testChainOptions(), DirectionBearish, 3)
	require.NotNil(t, selErr)
	assert.Equal(t, NoShortLeg, selErr.Reason)

	// short leg at the chain edge leaves no room for a wing
	cfg.Probability = 95
	_, selErr = CreditSpread(cfg, testChainOptions(), DirectionBearish, 3)
	require.NotNil(t, selErr)
	assert.Equal(t, NoLongLeg, selErr.Reason)
	assert.Contains(t, selErr.Detail, "46")
}

func TestIronCondorLegOrder(t *testing.T) {
	cfg := premiumTable["iron_condor"]
	legs, selErr := IronCondor(cfg, testChainOptions(), 1.5)
	require.Nil(t, selErr)
	require.Len(t, legs, 4)

	// call-sell, call-buy, put-sell, put-buy
	assert.Equal(t, broker.OptionTypeCall, legs[0].Option.OptionType())
	assert.Equal(t, broker.SideSell, legs[0].Side)
	assert.Equal(t, broker.OptionTypeCall, legs[1].Option.OptionType())
	assert.Equal(t, broker.SideBuy, legs[1].Side)
	assert.Equal(t, broker.OptionTypePut, legs[2].Option.OptionType())
	assert.Equal(t, broker.SideSell, legs[2].Side)
	assert.Equal(t, broker.OptionTypePut, legs[3].Option.OptionType())
	assert.Equal(t, broker.SideBuy, legs[3].Side)

	// call side bearish (short 42 at 86%), put side bullish (short 36.5 at 88%)
	assert.Equal(t, 42.0, legs[0].Option.Strike())
	assert.Equal(t, 36.5, legs[2].Option.Strike())
}

func TestIronButterflyScenarioB(t *testing.T) {
	cfg := premiumTable["iron_butterfly"]
	cfg.Probability = 85
	legs, selErr := IronButterfly(cfg, testChainOptions(), 39.5)
	require.Nil(t, selErr)
	require.Len(t, legs, 4)

	assert.Equal(t, 39.5, legs[0].Option.Strike())
	assert.Equal(t, broker.OptionTypeCall, legs[0].Option.OptionType())
	assert.Equal(t, broker.SideSell, legs[0].Side)
	assert.Equal(t, 39.5, legs[1].Option.Strike())
	assert.Equal(t, broker.OptionTypePut, legs[1].Option.OptionType())
	assert.Equal(t, broker.SideSell, legs[1].Side)

	assert.Equal(t, 42.0, legs[2].Option.Strike())
	assert.Equal(t, broker.SideBuy, legs[2].Side)
	assert.Equal(t, 36.5, legs[3].Option.Strike())
	assert.Equal(t, broker.SideBuy, legs[3].Side)
}

func TestIronButterflyMissingStraddlePut(t *testing.T) {
	options := []broker.Option{
		call(39.5, 1.10, 0.50, 0.50),
		call(42, 0.35, 0.86, 0.14),
		put(38, 0.62, 0.70, -0.30),
		put(36.5, 0.28, 0.88, -0.12),
	}
	_, selErr := IronButterfly(premiumTable["iron_butterfly"], options, 39.5)
	require.NotNil(t, selErr)
	assert.Equal(t, NoShortLeg, selErr.Reason)
}

func TestExpDateSearch(t *testing.T) {
	b := broker.NewPaperBroker(10000, "test")
	b.SetDate(time.Date(2019, 5, 20, 10, 0, 0, 0, time.UTC))
	chain := testChain()
	cfg := Config{Timeline: [2]int{30, 60}}

	search, err := NewExpDateSearch(b, chain, cfg, 0, 0, false, "")
	require.NoError(t, err)
	assert.False(t, search.Pinned())

	// timeline floor is 30 days out (2019-06-19); 06-21 is nearest listed
	date, options, err := search.Next()
	require.NoError(t, err)
	assert.Equal(t, testExp, date)
	assert.NotEmpty(t, options)

	// blacklisting moves the probe to the next nearest listed date
	search.Blacklist(date)
	date, _, err = search.Next()
	require.NoError(t, err)
	assert.Equal(t, "2019-06-14", date)

	search.Blacklist(date)
	date, _, err = search.Next()
	require.NoError(t, err)
	assert.Equal(t, "2019-07-19", date)

	search.Blacklist(date)
	_, _, err = search.Next()
	require.Error(t, err)
	var noTrade *NoTradeError
	assert.ErrorAs(t, err, &noTrade)
}

func TestExpDateSearchPinned(t *testing.T) {
	b := broker.NewPaperBroker(10000, "test")
	b.SetDate(time.Date(2019, 5, 20, 10, 0, 0, 0, time.UTC))

	search, err := NewExpDateSearch(b, testChain(), Config{}, 0, 0, false, testExp)
	require.NoError(t, err)
	assert.True(t, search.Pinned())
	date, _, err := search.Next()
	require.NoError(t, err)
	assert.Equal(t, testExp, date)

	_, err = NewExpDateSearch(b, testChain(), Config{}, 0, 0, false, "junk")
	assert.Error(t, err)

	// a requested date one day off a listed expiration must not slide to
	// the neighbor
	search, err = NewExpDateSearch(b, testChain(), Config{}, 0, 0, false, "2019-06-20")
	require.NoError(t, err)
	_, _, err = search.Next()
	var noTrade *NoTradeError
	assert.ErrorAs(t, err, &noTrade)

	// monthly resolves through the first-Friday-plus-14 rule and pins
	search, err = NewExpDateSearch(b, testChain(), Config{Timeline: [2]int{30, 60}}, 0, 0, true, "")
	require.NoError(t, err)
	assert.True(t, search.Pinned())
	date, _, err = search.Next()
	require.NoError(t, err)
	assert.Equal(t, testExp, date)
}

func TestTargetDays(t *testing.T) {
	cfg := Config{Timeline: [2]int{30, 60}}
	assert.Equal(t, 30, targetDays(cfg, 0, 0))
	assert.Equal(t, 45, targetDays(cfg, 50, 0))
	assert.Equal(t, 60, targetDays(cfg, 100, 0))
	assert.Equal(t, 21, targetDays(cfg, 50, 21))
}
