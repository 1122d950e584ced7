package strategy

import (
	"errors"
	"fmt"
	"math"

	"github.com/kmaguire/ironfly/internal/broker"
)

// BuyHold buys as many shares as the account can afford and holds them.
// On an insufficient-funds rejection the share count decrements and the
// purchase retries, since pending orders can make the computed count
// slightly optimistic.
type BuyHold struct {
	*Engine
}

var _ Strategy = (*BuyHold)(nil)

func NewBuyHold(d Deps) *BuyHold {
	return &BuyHold{Engine: newEngine("buyhold", d, map[string]Config{})}
}

func (s *BuyHold) MakeTrade(p Params) (*Result, error) {
	quote, err := s.b.GetQuote(p.Symbol)
	if err != nil {
		return nil, err
	}
	if quote <= 0 {
		return nil, &TradeError{Msg: fmt.Sprintf("no usable quote for %s", p.Symbol)}
	}
	balance, err := s.b.Balance()
	if err != nil {
		return nil, err
	}

	shares := int(math.Floor(balance / quote))
	for shares > 0 {
		orderID, err := s.b.Buy(p.Symbol, shares)
		if errors.Is(err, broker.ErrInsufficientFunds) {
			s.logger.Printf("buyhold: insufficient funds, decreasing share count to %d", shares-1)
			shares--
			continue
		}
		if err != nil {
			return nil, err
		}
		s.pm.Log(fmt.Sprintf("[%s]: Purchased %d shares of %s at %.2f.", orderID, shares, p.Symbol, quote))
		return &Result{
			Status:   StatusPlaced,
			Strategy: "buyhold",
			Quantity: shares,
			Price:    float64(shares) * quote,
		}, nil
	}
	return nil, &NoTradeError{Msg: "balance cannot cover a single share"}
}

// Maintenance is a no-op: there is nothing to close.
func (s *BuyHold) Maintenance() ([]broker.OptionOrder, error) { return nil, nil }
