package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func opt(typ OptionType, strike, mark, probOTM float64) *PaperOption {
	return &PaperOption{
		Symbol:     "MU",
		Type:       typ,
		StrikeVal:  strike,
		Mark:       mark,
		ProbOTM:    probOTM,
		Expiration: "2019-06-21",
	}
}

func TestParseOptionType(t *testing.T) {
	tests := []struct {
		raw     string
		want    OptionType
		wantErr bool
	}{
		{"put", OptionTypePut, false},
		{"CALL", OptionTypeCall, false},
		{"P", OptionTypePut, false},
		{"c", OptionTypeCall, false},
		{"straddle", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOptionType(tt.raw)
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestFilterAndSort(t *testing.T) {
	options := []Option{
		opt(OptionTypeCall, 42, 0.3, 0.9),
		opt(OptionTypePut, 38, 0.4, 0.8),
		opt(OptionTypeCall, 40, 0.6, 0.7),
	}

	calls := FilterOptions(options, OptionTypeCall)
	require.Len(t, calls, 2)
	assert.Equal(t, 42.0, calls[0].Strike())

	byStrike := SortByStrike(calls, false)
	assert.Equal(t, 40.0, byStrike[0].Strike())
	assert.Equal(t, 42.0, byStrike[1].Strike())

	reversed := SortByStrike(calls, true)
	assert.Equal(t, 42.0, reversed[0].Strike())

	byProb := SortByProbabilityOTM(options)
	assert.Equal(t, 0.7, byProb[0].ProbabilityOTM())
	assert.Equal(t, 0.9, byProb[2].ProbabilityOTM())
	// input untouched
	assert.Equal(t, 0.9, options[0].ProbabilityOTM())
}

func TestProbabilityITM(t *testing.T) {
	o := opt(OptionTypePut, 38, 0.4, 0.85)
	assert.InDelta(t, 0.15, ProbabilityITM(o), 1e-9)
}

func TestInvertLegs(t *testing.T) {
	legs := []Leg{
		NewLeg(opt(OptionTypeCall, 40, 0.61, 0.7), SideSell),
		NewLeg(opt(OptionTypeCall, 44.5, 0.2, 0.9), SideBuy),
	}
	inverted := InvertLegs(legs)
	assert.Equal(t, SideBuy, inverted[0].Side)
	assert.Equal(t, SideSell, inverted[1].Side)
	// original unchanged
	assert.Equal(t, SideSell, legs[0].Side)
}

func TestOCCSymbolHelpers(t *testing.T) {
	assert.Equal(t, "MU", occUnderlying("MU190621P00039500"))
	assert.Equal(t, "SPY", occUnderlying("SPY241220C00450000"))
	assert.Equal(t, "", occUnderlying("MU"))
	assert.Equal(t, "", occUnderlying("MU190621X00039500"))

	assert.Equal(t, OptionTypePut, occOptionType("MU190621P00039500"))
	assert.Equal(t, OptionTypeCall, occOptionType("SPY241220C00450000"))
	assert.Equal(t, OptionType(""), occOptionType("AAPL"))
}

func TestPaperOptionID(t *testing.T) {
	o := &PaperOption{Symbol: "MU", Type: OptionTypePut, StrikeVal: 39.5, Expiration: "2019-06-21"}
	assert.Equal(t, "MU190621P00039500", o.ID())
}

func TestPaperBrokerTransactCredit(t *testing.T) {
	b := NewPaperBroker(10000, "test")
	short := opt(OptionTypeCall, 40, 0.78, 0.7)
	long := opt(OptionTypeCall, 44.5, 0.17, 0.9)
	legs := []Leg{NewLeg(short, SideSell), NewLeg(long, SideBuy)}

	order, err := b.OptionsTransact(legs, DirectionCredit, 0.61, 2, EffectOpen)
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID())

	balance, err := b.Balance()
	require.NoError(t, err)
	assert.InDelta(t, 10000+0.61*100*2, balance, 1e-9)

	held, err := b.OptionsPositions()
	require.NoError(t, err)
	assert.Len(t, held, 2)

	// closing the spread removes the held contracts
	_, err = b.OptionsTransact(InvertLegs(legs), DirectionDebit, 0.30, 2, EffectClose)
	require.NoError(t, err)
	held, err = b.OptionsPositions()
	require.NoError(t, err)
	assert.Empty(t, held)
}

func TestPaperBrokerInsufficientFunds(t *testing.T) {
	b := NewPaperBroker(50, "test")
	legs := []Leg{NewLeg(opt(OptionTypeCall, 40, 1.5, 0.7), SideBuy)}
	_, err := b.OptionsTransact(legs, DirectionDebit, 1.5, 1, EffectOpen)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestPaperBrokerInvalidTransact(t *testing.T) {
	b := NewPaperBroker(1000, "test")
	legs := []Leg{NewLeg(opt(OptionTypeCall, 40, 0.5, 0.7), SideSell)}

	_, err := b.OptionsTransact(nil, DirectionCredit, 0.5, 1, EffectOpen)
	assert.ErrorIs(t, err, ErrInvalidOption)

	_, err = b.OptionsTransact(legs, DirectionCredit, 0.5, 0, EffectOpen)
	assert.ErrorIs(t, err, ErrInvalidOption)

	_, err = b.OptionsTransact(legs, Direction("sideways"), 0.5, 1, EffectOpen)
	assert.ErrorIs(t, err, ErrInvalidOption)
}

func TestPaperBrokerStock(t *testing.T) {
	b := NewPaperBroker(1000, "test")
	b.SetQuote("MU", 40)

	_, err := b.Buy("MU", 10)
	require.NoError(t, err)

	positions, err := b.StockPositions()
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 10, positions[0].Quantity)

	value, err := b.GetValue()
	require.NoError(t, err)
	assert.InDelta(t, 1000, value, 1e-9)

	_, err = b.Sell("MU", 10)
	require.NoError(t, err)
	balance, err := b.Balance()
	require.NoError(t, err)
	assert.InDelta(t, 1000, balance, 1e-9)

	_, err = b.Sell("MU", 1)
	assert.ErrorIs(t, err, ErrNonexistentAsset)
}

func TestRegistry(t *testing.T) {
	b, err := New("paper", Settings{Balance: 5000})
	require.NoError(t, err)
	balance, err := b.Balance()
	require.NoError(t, err)
	assert.Equal(t, 5000.0, balance)

	_, err = New("etrade", Settings{})
	assert.Error(t, err)

	_, err = New("tradier", Settings{})
	assert.Error(t, err) // missing credentials
}
