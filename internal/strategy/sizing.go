package strategy

import (
	"fmt"
	"math"

	"github.com/kmaguire/ironfly/internal/broker"
	"github.com/kmaguire/ironfly/internal/util"
)

// TradePlan is the output of sizing: what to submit to the broker.
type TradePlan struct {
	// Credit is the net credit per contract, pre-multiplier.
	Credit float64
	// Quantity is the number of contracts.
	Quantity int
	// Width is the realized spread width, which can exceed the requested
	// width when the chain lacks finer strikes.
	Width float64
}

// SpreadWidth returns the realized width of a leg set: per option type,
// the absolute strike distance between the sold and bought leg, maximized
// across types. Zero when no sell/buy pair exists.
func SpreadWidth(legs []broker.Leg) float64 {
	strikes := make(map[string]float64, len(legs))
	for _, l := range legs {
		strikes[string(l.Side)+":"+string(l.Option.OptionType())] = l.Option.Strike()
	}
	var width float64
	for _, t := range []broker.OptionType{broker.OptionTypeCall, broker.OptionTypePut} {
		sell, okSell := strikes["sell:"+string(t)]
		buy, okBuy := strikes["buy:"+string(t)]
		if okSell && okBuy {
			width = math.Max(width, math.Abs(sell-buy))
		}
	}
	return width
}

// PrepareTrade sizes a selected leg set against the account balance.
// allocationPct is the percent of balance to put at risk. A non-positive
// net credit or a quantity that rounds to zero yields a NoTradeError, the
// benign "nothing to do" signal.
func PrepareTrade(b broker.Broker, legs []broker.Leg, allocationPct float64) (TradePlan, error) {
	credit := broker.NetPrice(legs)
	if credit <= 0 {
		return TradePlan{}, &NoTradeError{Msg: fmt.Sprintf("non-positive net credit %.2f", credit)}
	}

	balance, err := b.Balance()
	if err != nil {
		return TradePlan{}, err
	}
	allocation := util.Allocation(balance, allocationPct)

	width := SpreadWidth(legs)
	risk := util.Risk(width, credit)
	if risk <= 0 {
		return TradePlan{}, &TradeError{Msg: fmt.Sprintf("non-positive risk: width %.2f credit %.2f", width, credit)}
	}

	quantity := int(allocation / risk)
	if quantity == 0 {
		return TradePlan{}, &NoTradeError{Msg: "allocation too small for one contract"}
	}
	return TradePlan{Credit: credit, Quantity: quantity, Width: width}, nil
}

// FairCredit is the theoretical minimum credit for a leg set: the spread
// width times the summed in-the-money probability of the short legs.
func FairCredit(legs []broker.Leg, width float64) float64 {
	var probITM float64
	for _, l := range legs {
		if l.Side == broker.SideSell {
			probITM += broker.ProbabilityITM(l.Option)
		}
	}
	return width * probITM
}

// CheckRiskReward verifies the reward-to-risk ratio normalized by the
// short leg's delta meets the configured minimum. Zero minimum disables
// the check.
func CheckRiskReward(legs []broker.Leg, width, credit, minRatio float64) error {
	if minRatio <= 0 {
		return nil
	}
	var shortDelta float64
	for _, l := range legs {
		if l.Side == broker.SideSell {
			shortDelta = math.Abs(l.Option.Delta())
			break
		}
	}
	if shortDelta == 0 {
		return &TradeError{Msg: "short leg has zero delta, cannot assess risk/reward"}
	}
	ratio := (credit / (width - credit)) / shortDelta
	if ratio < minRatio {
		return &TradeError{Msg: fmt.Sprintf("risk/reward over delta %.2f below minimum %.2f", ratio, minRatio)}
	}
	return nil
}
