package broker

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PaperOption is an in-memory Option used by the paper broker and in tests.
type PaperOption struct {
	Symbol     string
	Type       OptionType
	StrikeVal  float64
	Mark       float64
	ProbOTM    float64
	DeltaVal   float64
	Expiration string
}

var _ Option = (*PaperOption)(nil)

// ID derives an OCC-style identifier from the contract terms.
func (o *PaperOption) ID() string {
	exp := strings.ReplaceAll(o.Expiration, "-", "")
	if len(exp) == 8 {
		exp = exp[2:]
	}
	code := "C"
	if o.Type == OptionTypePut {
		code = "P"
	}
	return fmt.Sprintf("%s%s%s%08d", o.Symbol, exp, code, int(math.Round(o.StrikeVal*1000)))
}

func (o *PaperOption) OptionType() OptionType  { return o.Type }
func (o *PaperOption) Strike() float64         { return o.StrikeVal }
func (o *PaperOption) MarkPrice() float64      { return o.Mark }
func (o *PaperOption) ProbabilityOTM() float64 { return o.ProbOTM }
func (o *PaperOption) Delta() float64          { return o.DeltaVal }
func (o *PaperOption) ExpirationDate() string  { return o.Expiration }

// PaperOrder is the order record returned by the paper broker.
type PaperOrder struct {
	OrderID string
	legs    []Leg
}

var _ OptionOrder = (*PaperOrder)(nil)

func (o *PaperOrder) ID() string  { return o.OrderID }
func (o *PaperOrder) Legs() []Leg { return o.legs }

// PaperBroker simulates a brokerage account in memory: fixed quotes and
// chains are injected, orders fill immediately at the given price, and the
// clock can be pinned for deterministic runs.
type PaperBroker struct {
	mu        sync.Mutex
	accountID string
	balance   float64
	date      time.Time

	quotes map[string]float64
	chains map[string]*Chain
	stocks map[string]*StockPosition
	held   map[string]HeldOption
	orders []*PaperOrder
}

var _ Broker = (*PaperBroker)(nil)

// NewPaperBroker creates a paper account with the given starting balance.
func NewPaperBroker(balance float64, accountID string) *PaperBroker {
	if accountID == "" {
		accountID = "paper"
	}
	return &PaperBroker{
		accountID: accountID,
		balance:   balance,
		quotes:    make(map[string]float64),
		chains:    make(map[string]*Chain),
		stocks:    make(map[string]*StockPosition),
		held:      make(map[string]HeldOption),
	}
}

// SetDate pins the simulated clock.
func (b *PaperBroker) SetDate(t time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.date = t
}

// SetQuote injects the quote returned for symbol.
func (b *PaperBroker) SetQuote(symbol string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[symbol] = price
}

// SetChain injects the chain returned for symbol.
func (b *PaperBroker) SetChain(symbol string, chain *Chain) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chains[symbol] = chain
}

// SetBalance overrides the cash balance.
func (b *PaperBroker) SetBalance(balance float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balance = balance
}

// SetHeldOption injects an open option position, for maintenance tests.
func (b *PaperBroker) SetHeldOption(id string, quantity float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.held[id] = HeldOption{ID: id, Quantity: quantity}
}

// Orders returns every order filled so far, oldest first.
func (b *PaperBroker) Orders() []*PaperOrder {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*PaperOrder, len(b.orders))
	copy(out, b.orders)
	return out
}

func (b *PaperBroker) AccountID() string { return b.accountID }

func (b *PaperBroker) Now() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.date.IsZero() {
		return time.Now()
	}
	return b.date
}

func (b *PaperBroker) Balance() (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance, nil
}

func (b *PaperBroker) BuyingPower() (float64, error) {
	return b.Balance()
}

func (b *PaperBroker) GetValue() (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	value := b.balance
	for sym, pos := range b.stocks {
		if q, ok := b.quotes[sym]; ok {
			value += q * float64(pos.Quantity)
		}
	}
	return value, nil
}

func (b *PaperBroker) GetQuote(symbol string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.quotes[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNonexistentAsset, symbol)
	}
	return q, nil
}

func (b *PaperBroker) GetOptions(symbol string) (*Chain, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.chains[symbol]; ok {
		return c, nil
	}
	// no injected chain: synthesize one around the quote
	q, ok := b.quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: no chain for %s", ErrNonexistentAsset, symbol)
	}
	now := b.date
	if now.IsZero() {
		now = time.Now()
	}
	c := SyntheticChain(symbol, q, now, 0)
	b.chains[symbol] = c
	return c, nil
}

// OptionsForDate returns the injected contracts for the expiration; the
// paper chain is fully populated up front, so there is no lazy fetch.
func (b *PaperBroker) OptionsForDate(chain *Chain, date string) ([]Option, error) {
	if chain == nil {
		return nil, fmt.Errorf("%w: nil chain", ErrNonexistentAsset)
	}
	return chain.Options[date], nil
}

func (b *PaperBroker) OptionsPositions() (map[string]HeldOption, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]HeldOption, len(b.held))
	for id, h := range b.held {
		out[id] = h
	}
	return out, nil
}

// OptionsPositionsData refreshes marks for held contracts. The paper broker
// has no fresher source than the injected chains, so the contracts are
// returned unchanged.
func (b *PaperBroker) OptionsPositionsData(options []Option) ([]Option, error) {
	return options, nil
}

func (b *PaperBroker) StockPositions() ([]StockPosition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]StockPosition, 0, len(b.stocks))
	for _, p := range b.stocks {
		out = append(out, *p)
	}
	return out, nil
}

// OptionsTransact fills a multi-leg order immediately at the given net
// price. Credit orders add cash, debit orders require and consume it.
func (b *PaperBroker) OptionsTransact(legs []Leg, direction Direction,
	price float64, quantity int, effect Effect) (OptionOrder, error) {
	if len(legs) == 0 || quantity <= 0 || price < 0 {
		return nil, ErrInvalidOption
	}
	if direction != DirectionCredit && direction != DirectionDebit {
		return nil, fmt.Errorf("%w: direction %q", ErrInvalidOption, direction)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	cash := price * 100 * float64(quantity)
	if direction == DirectionDebit {
		if cash > b.balance {
			return nil, ErrInsufficientFunds
		}
		b.balance -= cash
	} else {
		b.balance += cash
	}

	for _, l := range legs {
		id := l.Option.ID()
		h := b.held[id]
		delta := float64(quantity * maxInt(l.Ratio, 1))
		if (l.Side == SideBuy) == (effect == EffectOpen) {
			// long contracts held as positive quantity
			h.Quantity += delta
		} else {
			h.Quantity -= delta
		}
		h.ID = id
		if h.Quantity == 0 && effect == EffectClose {
			delete(b.held, id)
			continue
		}
		b.held[id] = h
	}

	order := &PaperOrder{OrderID: uuid.NewString(), legs: legs}
	b.orders = append(b.orders, order)
	return order, nil
}

func (b *PaperBroker) Buy(symbol string, quantity int) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.quotes[symbol]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNonexistentAsset, symbol)
	}
	cost := q * float64(quantity)
	if cost > b.balance {
		return "", ErrInsufficientFunds
	}
	b.balance -= cost
	pos := b.stocks[symbol]
	if pos == nil {
		pos = &StockPosition{Symbol: symbol}
		b.stocks[symbol] = pos
	}
	pos.Quantity += quantity
	pos.CostBasis += cost
	return uuid.NewString(), nil
}

func (b *PaperBroker) Sell(symbol string, quantity int) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos := b.stocks[symbol]
	if pos == nil || pos.Quantity < quantity {
		return "", fmt.Errorf("%w: %s", ErrNonexistentAsset, symbol)
	}
	q, ok := b.quotes[symbol]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNonexistentAsset, symbol)
	}
	pos.CostBasis -= pos.CostBasis / float64(pos.Quantity) * float64(quantity)
	pos.Quantity -= quantity
	b.balance += q * float64(quantity)
	if pos.Quantity == 0 {
		delete(b.stocks, symbol)
	}
	return uuid.NewString(), nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
