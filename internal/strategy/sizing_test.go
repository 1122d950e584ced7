package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmaguire/ironfly/internal/broker"
)

func spreadLegs(shortStrike, shortMark, longStrike, longMark float64) []broker.Leg {
	return []broker.Leg{
		broker.NewLeg(call(shortStrike, shortMark, 0.72, 0.28), broker.SideSell),
		broker.NewLeg(call(longStrike, longMark, 0.93, 0.07), broker.SideBuy),
	}
}

func TestSpreadWidth(t *testing.T) {
	assert.Equal(t, 3.0, SpreadWidth(spreadLegs(40, 2.0, 43, 0.44)))

	// condor: widest side wins
	legs := []broker.Leg{
		broker.NewLeg(call(42, 0.35, 0.86, 0.14), broker.SideSell),
		broker.NewLeg(call(44.5, 0.17, 0.93, 0.07), broker.SideBuy),
		broker.NewLeg(put(36.5, 0.28, 0.88, -0.12), broker.SideSell),
		broker.NewLeg(put(35, 0.15, 0.93, -0.07), broker.SideBuy),
	}
	assert.Equal(t, 2.5, SpreadWidth(legs))

	// single leg has no width
	assert.Equal(t, 0.0, SpreadWidth(legs[:1]))
}

func TestPrepareTradeSizing(t *testing.T) {
	b := broker.NewPaperBroker(1_000_000, "test")

	// $30,000 allocation, width 3, credit 1.56 -> 208 contracts
	plan, err := PrepareTrade(b, spreadLegs(40, 2.0, 37, 0.44), 3)
	require.NoError(t, err)
	assert.InDelta(t, 1.56, plan.Credit, 1e-9)
	assert.Equal(t, 3.0, plan.Width)
	assert.Equal(t, 208, plan.Quantity)

	// zero credit is a benign no-trade, not a hard failure
	_, err = PrepareTrade(b, spreadLegs(40, 1.0, 37, 1.0), 3)
	var noTrade *NoTradeError
	require.ErrorAs(t, err, &noTrade)

	// negative credit likewise rejected
	_, err = PrepareTrade(b, spreadLegs(40, 0.4, 37, 1.0), 3)
	assert.ErrorAs(t, err, &noTrade)
}

func TestPrepareTradeQuantityMonotonic(t *testing.T) {
	b := broker.NewPaperBroker(1_000_000, "test")
	legs := spreadLegs(40, 2.0, 37, 0.44)

	prev := 0
	for _, pct := range []float64{1, 2, 3, 5, 8, 13} {
		plan, err := PrepareTrade(b, legs, pct)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, plan.Quantity, prev, "allocation %.0f%%", pct)
		prev = plan.Quantity
	}
}

func TestPrepareTradeTooSmall(t *testing.T) {
	b := broker.NewPaperBroker(100, "test")
	_, err := PrepareTrade(b, spreadLegs(40, 2.0, 37, 0.44), 3)
	var noTrade *NoTradeError
	assert.ErrorAs(t, err, &noTrade)
}

func TestFairCredit(t *testing.T) {
	legs := []broker.Leg{
		broker.NewLeg(call(42, 0.35, 0.86, 0.14), broker.SideSell),
		broker.NewLeg(call(44.5, 0.17, 0.93, 0.07), broker.SideBuy),
		broker.NewLeg(put(36.5, 0.28, 0.88, -0.12), broker.SideSell),
		broker.NewLeg(put(35, 0.15, 0.93, -0.07), broker.SideBuy),
	}
	// width * (probITM of short legs) = 2.5 * (0.14 + 0.12)
	assert.InDelta(t, 0.65, FairCredit(legs, 2.5), 1e-9)
}

func TestCheckRiskReward(t *testing.T) {
	legs := spreadLegs(40, 2.0, 37, 0.44)
	width, credit := 3.0, 1.56

	// ratio = (1.56/1.44)/0.28 ~= 3.87
	assert.NoError(t, CheckRiskReward(legs, width, credit, 3.5))
	assert.Error(t, CheckRiskReward(legs, width, credit, 4.0))

	// disabled when no minimum configured
	assert.NoError(t, CheckRiskReward(legs, width, credit, 0))

	zeroDelta := []broker.Leg{broker.NewLeg(call(40, 2.0, 0.72, 0), broker.SideSell)}
	assert.Error(t, CheckRiskReward(zeroDelta, width, credit, 1))
}
