package strategy

import (
	"fmt"
	"math"

	"github.com/kmaguire/ironfly/internal/broker"
	"github.com/kmaguire/ironfly/internal/criteria"
	"github.com/kmaguire/ironfly/internal/models"
)

var longOptionTable = map[string]Config{
	"longoption": {Target: 50},
}

// LongOption buys a single call or put outright: the nearest-the-money
// contract on the requested expiration, sized by dollar or percent
// allocation.
type LongOption struct {
	*Engine
}

var _ Strategy = (*LongOption)(nil)

func NewLongOption(d Deps) *LongOption {
	return &LongOption{Engine: newEngine("longoption", d, longOptionTable)}
}

func (s *LongOption) MakeTrade(p Params) (*Result, error) {
	optionType, err := broker.ParseOptionType(p.OptionType)
	if err != nil {
		return nil, &ConfigError{Msg: err.Error()}
	}
	if p.ExpDate == "" {
		return nil, &ConfigError{Msg: "longoption requires an expiration date"}
	}
	if p.AllocationDollars <= 0 && (p.Allocation <= 0 || p.Allocation >= 20) {
		return nil, &ConfigError{Msg: fmt.Sprintf("invalid allocation %.1f", p.Allocation)}
	}

	quote, chain, deferred, err := s.initStrategy(p.Symbol, p.OpenCriteria)
	if err != nil {
		return nil, err
	}
	if deferred != nil {
		return deferred, nil
	}
	if !chain.HasExpiration(p.ExpDate) {
		return nil, &TradeError{Msg: fmt.Sprintf("no options expiring %s for %s", p.ExpDate, p.Symbol)}
	}
	options, err := s.b.OptionsForDate(chain, p.ExpDate)
	if err != nil {
		return nil, err
	}
	typed := broker.FilterOptions(options, optionType)
	if len(typed) == 0 {
		return nil, &NoTradeError{Msg: fmt.Sprintf("no %ss expiring %s", optionType, p.ExpDate)}
	}

	contract := typed[0]
	for _, o := range typed[1:] {
		if math.Abs(o.Strike()-quote) < math.Abs(contract.Strike()-quote) {
			contract = o
		}
	}
	if contract.MarkPrice() <= 0 {
		return nil, &NoTradeError{Msg: "contract has no usable mark price"}
	}

	allocation := p.AllocationDollars
	if allocation <= 0 {
		balance, err := s.b.Balance()
		if err != nil {
			return nil, err
		}
		allocation = balance * p.Allocation / 100
	}
	quantity := quantityForAllocation(allocation, contract.MarkPrice())
	if quantity == 0 {
		return nil, &NoTradeError{Msg: "allocation too small for one contract"}
	}

	legs := []broker.Leg{broker.NewLeg(contract, broker.SideBuy)}
	order, err := s.b.OptionsTransact(legs, broker.DirectionDebit, contract.MarkPrice(),
		quantity, broker.EffectOpen)
	if err != nil {
		return nil, err
	}

	closeCriteria, err := criteria.MarshalList(p.CloseCriteria)
	if err != nil {
		return nil, err
	}
	pos := &models.Position{
		Symbol:        p.Symbol,
		Strategy:      "longoption",
		Quantity:      quantity,
		Price:         contract.MarkPrice(),
		Expires:       p.ExpDate,
		CloseCriteria: closeCriteria,
	}
	if err := s.pm.SaveOrder(order, legs, pos); err != nil {
		return nil, err
	}
	s.pm.Log(fmt.Sprintf("[%s]: Bought %d %s %s %v exp %s at %.2f.",
		order.ID(), quantity, p.Symbol, optionType, contract.Strike(), p.ExpDate, contract.MarkPrice()))

	return &Result{
		Status:   StatusPlaced,
		Strategy: "longoption",
		Legs:     legs,
		Quantity: quantity,
		Price:    float64(quantity) * contract.MarkPrice(),
		Order:    order,
	}, nil
}
