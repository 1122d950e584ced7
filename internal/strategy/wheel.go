package strategy

import (
	"fmt"
	"strings"

	"github.com/kmaguire/ironfly/internal/broker"
	"github.com/kmaguire/ironfly/internal/criteria"
	"github.com/kmaguire/ironfly/internal/models"
)

var wheelTable = map[string]Config{
	"cash_secured_put": {Timeline: [2]int{4, 14}, Target: 50, Probability: 70},
	"covered_call":     {Timeline: [2]int{4, 14}, Target: 50, Probability: 70},
}

// Wheel runs the wheel: sell a cash-secured put until assigned, then sell
// covered calls against each 100-share lot.
type Wheel struct {
	*Engine
}

var _ Strategy = (*Wheel)(nil)

func NewWheel(d Deps) *Wheel {
	return &Wheel{Engine: newEngine("wheel", d, wheelTable)}
}

// sharesHeld returns the share count for the symbol, zero when none.
func (s *Wheel) sharesHeld(symbol string) (int, error) {
	stocks, err := s.b.StockPositions()
	if err != nil {
		return 0, err
	}
	for _, pos := range stocks {
		if strings.EqualFold(pos.Symbol, symbol) {
			return pos.Quantity, nil
		}
	}
	return 0, nil
}

func (s *Wheel) MakeTrade(p Params) (*Result, error) {
	symbol := strings.ToUpper(p.Symbol)
	shares, err := s.sharesHeld(symbol)
	if err != nil {
		return nil, err
	}

	_, chain, deferred, err := s.initStrategy(symbol, p.OpenCriteria)
	if err != nil {
		return nil, err
	}
	if deferred != nil {
		return deferred, nil
	}

	structure := "cash_secured_put"
	optionType := broker.OptionTypePut
	lots := 0
	if shares >= 100 {
		structure = "covered_call"
		optionType = broker.OptionTypeCall
		lots = shares / 100
	}
	cfg := wheelTable[structure]

	method := func(options []broker.Option) ([]broker.Leg, *SelectionError) {
		typed := broker.FilterOptions(options, optionType)
		if len(typed) == 0 {
			return nil, &SelectionError{Reason: NoOptionsOfType, Detail: string(optionType)}
		}
		short := FindOptionWithProbability(typed, cfg.Probability, cfg.MaxProbability)
		if short == nil {
			return nil, &SelectionError{Reason: NoShortLeg}
		}
		return []broker.Leg{broker.NewLeg(short, broker.SideSell)}, nil
	}
	legs, targetDate, err := s.findLegs(cfg, p.Timeline, p.DaysOut, p.Monthly, p.ExpDate, chain, method)
	if err != nil {
		return nil, err
	}

	short := legs[0].Option
	credit := short.MarkPrice()
	if credit <= 0 {
		return nil, &NoTradeError{Msg: "short contract has no usable mark price"}
	}

	var quantity int
	if structure == "covered_call" {
		// one call per 100-share lot; the shares are the collateral
		quantity = lots
	} else {
		// cash-secured: full strike value reserved per contract
		power, err := s.b.BuyingPower()
		if err != nil {
			return nil, err
		}
		allocation := power
		if p.Allocation > 0 {
			balance, err := s.b.Balance()
			if err != nil {
				return nil, err
			}
			allocation = balance * p.Allocation / 100
		}
		quantity = quantityForAllocation(allocation, short.Strike())
	}
	if quantity == 0 {
		return nil, &NoTradeError{Msg: "insufficient collateral for one contract"}
	}

	order, err := s.b.OptionsTransact(legs, broker.DirectionCredit, credit,
		quantity, broker.EffectOpen)
	if err != nil {
		return nil, err
	}

	closeCriteria, err := criteria.MarshalList(p.CloseCriteria)
	if err != nil {
		return nil, err
	}
	pos := &models.Position{
		Symbol:        symbol,
		Strategy:      structure,
		Quantity:      quantity,
		Price:         credit,
		Expires:       targetDate,
		CloseCriteria: closeCriteria,
	}
	if err := s.pm.SaveOrder(order, legs, pos); err != nil {
		return nil, err
	}
	s.pm.Log(fmt.Sprintf("[%s]: Sold %d %s %s at strike %v exp %s for %.2f.",
		order.ID(), quantity, symbol, structure, short.Strike(), targetDate, credit))

	return &Result{
		Status:   StatusPlaced,
		Strategy: structure,
		Legs:     legs,
		Quantity: quantity,
		Price:    float64(quantity) * credit,
		Order:    order,
	}, nil
}
