package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionFieldsRoundTrip(t *testing.T) {
	opened := time.Date(2019, 5, 20, 14, 30, 0, 0, time.UTC)
	p := &Position{
		ID:             "257459",
		Symbol:         "MU",
		Strategy:       "credit_spread",
		Quantity:       540,
		Price:          1.12,
		Expires:        "2019-06-21",
		OpenedAt:       opened,
		CloseRequested: true,
		LastPrice:      0.56,
		LastChange:     50,
	}

	got := PositionFromFields("257459", p.Fields())
	assert.Equal(t, p.Symbol, got.Symbol)
	assert.Equal(t, p.Strategy, got.Strategy)
	assert.Equal(t, p.Quantity, got.Quantity)
	assert.Equal(t, p.Price, got.Price)
	assert.Equal(t, p.Expires, got.Expires)
	assert.True(t, got.CloseRequested)
	assert.Equal(t, p.LastPrice, got.LastPrice)
	assert.Equal(t, p.LastChange, got.LastChange)
	assert.True(t, got.OpenedAt.Equal(opened))
}

func TestPositionFromFieldsTolerant(t *testing.T) {
	p := PositionFromFields("1", map[string]string{"symbol": "SPY", "quantity": "bogus"})
	assert.Equal(t, "SPY", p.Symbol)
	assert.Zero(t, p.Quantity)
	assert.True(t, p.OpenedAt.IsZero())
}

func TestOpenedToday(t *testing.T) {
	now := time.Date(2019, 5, 20, 15, 0, 0, 0, time.UTC)
	p := &Position{OpenedAt: time.Date(2019, 5, 20, 9, 31, 0, 0, time.UTC)}
	assert.True(t, p.OpenedToday(now))

	p.OpenedAt = p.OpenedAt.AddDate(0, 0, -1)
	assert.False(t, p.OpenedToday(now))
}

func TestLegRecordRoundTrip(t *testing.T) {
	s, err := EncodeLeg(LegRecord{OptionID: "MU190621C00040000", Side: "sell", Ratio: 1})
	require.NoError(t, err)

	leg, err := DecodeLeg(s)
	require.NoError(t, err)
	assert.Equal(t, "MU190621C00040000", leg.OptionID)
	assert.Equal(t, "sell", leg.Side)

	// ratio defaults to 1 for records written before it existed
	leg, err = DecodeLeg(`{"option":"X","side":"buy"}`)
	require.NoError(t, err)
	assert.Equal(t, 1, leg.Ratio)

	_, err = DecodeLeg("{nope")
	assert.Error(t, err)
}
