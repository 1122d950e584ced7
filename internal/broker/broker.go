// Package broker defines the brokerage capability consumed by the trading
// engine: normalized option/order views over broker-native payloads, chain
// retrieval, and multi-leg order submission. It includes a Tradier-style
// HTTP client and a paper-trading implementation.
package broker

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// OptionType represents the type of option contract.
type OptionType string

const (
	// OptionTypeCall represents a call option contract
	OptionTypeCall OptionType = "call"
	// OptionTypePut represents a put option contract
	OptionTypePut OptionType = "put"
)

// Side is the buy/sell tag on an order leg.
type Side string

const (
	// SideBuy marks a leg bought to open or close
	SideBuy Side = "buy"
	// SideSell marks a leg sold to open or close
	SideSell Side = "sell"
)

// Invert returns the opposite side, used when closing a position.
func (s Side) Invert() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Direction is the net cash flow of a multi-leg order.
type Direction string

const (
	// DirectionCredit denotes a net-credit order
	DirectionCredit Direction = "credit"
	// DirectionDebit denotes a net-debit order
	DirectionDebit Direction = "debit"
)

// Effect distinguishes opening and closing transactions.
type Effect string

const (
	// EffectOpen opens a new position
	EffectOpen Effect = "open"
	// EffectClose closes an existing position
	EffectClose Effect = "close"
)

// Broker-level transactional failures, propagated unchanged to the driver.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNonexistentAsset  = errors.New("nonexistent asset")
	ErrInvalidOption     = errors.New("invalid option transaction")
)

// Option is the normalized read-only view over a broker-native option
// payload. One instance per chain entry per fetch; leg-selection code never
// sees the raw payload.
type Option interface {
	// ID returns the broker-unique contract identifier.
	ID() string
	// OptionType reports whether the contract is a call or a put.
	OptionType() OptionType
	// Strike returns the contract strike price.
	Strike() float64
	// MarkPrice returns the last/executable contract price.
	MarkPrice() float64
	// ProbabilityOTM returns the broker-estimated probability (0-1) that
	// the contract expires out of the money.
	ProbabilityOTM() float64
	// Delta returns the contract delta, negative for puts.
	Delta() float64
	// ExpirationDate returns the contract expiration as YYYY-MM-DD.
	ExpirationDate() string
}

// ProbabilityITM returns the probability the option expires in the money.
func ProbabilityITM(o Option) float64 {
	return 1 - o.ProbabilityOTM()
}

// Leg pairs an option with a side within a multi-leg order.
type Leg struct {
	Option Option
	Side   Side
	Ratio  int
}

// NewLeg builds a single-ratio leg.
func NewLeg(o Option, side Side) Leg {
	return Leg{Option: o, Side: side, Ratio: 1}
}

// InvertLegs returns the legs with every side flipped, for closing orders.
func InvertLegs(legs []Leg) []Leg {
	out := make([]Leg, len(legs))
	for i, l := range legs {
		out[i] = Leg{Option: l.Option, Side: l.Side.Invert(), Ratio: l.Ratio}
	}
	return out
}

// NetPrice computes the net per-contract price of a leg set: marks of
// sold legs minus marks of bought legs. Positive for credit structures;
// run over refreshed legs it is the net debit to close.
func NetPrice(legs []Leg) float64 {
	var price float64
	for _, l := range legs {
		if l.Side == SideSell {
			price += l.Option.MarkPrice()
		} else {
			price -= l.Option.MarkPrice()
		}
	}
	return price
}

// OptionOrder is the normalized view over a broker-native order payload.
type OptionOrder interface {
	// ID returns the broker-assigned order identifier.
	ID() string
	// Legs returns the legs submitted in this order.
	Legs() []Leg
}

// Chain is a fetched option chain: the listed expiration dates plus the
// per-date contracts, which some brokers populate lazily.
type Chain struct {
	Symbol          string
	ExpirationDates []string
	Options         map[string][]Option
}

// HasExpiration reports whether date is listed in the chain.
func (c *Chain) HasExpiration(date string) bool {
	for _, d := range c.ExpirationDates {
		if d == date {
			return true
		}
	}
	return false
}

// HeldOption describes a currently-held option position at the broker,
// keyed by contract identifier in OptionsPositions results.
type HeldOption struct {
	ID       string
	Quantity float64
}

// StockPosition describes a currently-held equity position.
type StockPosition struct {
	Symbol    string
	Quantity  int
	CostBasis float64
}

// Broker defines the brokerage capability required by the trading engine.
// Implementations may simulate the clock and fills for backtesting.
type Broker interface {
	// Account
	AccountID() string
	Balance() (float64, error)
	BuyingPower() (float64, error)
	GetValue() (float64, error)

	// Now is the broker's notion of the current time, which a simulated
	// broker may pin for backtesting.
	Now() time.Time

	// Market data
	GetQuote(symbol string) (float64, error)
	GetOptions(symbol string) (*Chain, error)
	OptionsForDate(chain *Chain, date string) ([]Option, error)

	// Positions
	OptionsPositions() (map[string]HeldOption, error)
	OptionsPositionsData(options []Option) ([]Option, error)
	StockPositions() ([]StockPosition, error)

	// Orders
	OptionsTransact(legs []Leg, direction Direction, price float64,
		quantity int, effect Effect) (OptionOrder, error)
	Buy(symbol string, quantity int) (string, error)
	Sell(symbol string, quantity int) (string, error)
}

// FilterOptions narrows a contract list to one option type, preserving the
// broker's chain order.
func FilterOptions(options []Option, optionType OptionType) []Option {
	out := make([]Option, 0, len(options))
	for _, o := range options {
		if o.OptionType() == optionType {
			out = append(out, o)
		}
	}
	return out
}

// SortByStrike returns the options ordered by strike price, descending when
// reverse is set. The input slice is not modified.
func SortByStrike(options []Option, reverse bool) []Option {
	out := make([]Option, len(options))
	copy(out, options)
	sort.SliceStable(out, func(i, j int) bool {
		if reverse {
			return out[i].Strike() > out[j].Strike()
		}
		return out[i].Strike() < out[j].Strike()
	})
	return out
}

// SortByProbabilityOTM returns the options ordered by ascending probability
// of expiring out of the money. The input slice is not modified.
func SortByProbabilityOTM(options []Option) []Option {
	out := make([]Option, len(options))
	copy(out, options)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ProbabilityOTM() < out[j].ProbabilityOTM()
	})
	return out
}

// contractTypeCodes maps single-letter contract-type codes used by some
// broker APIs to the normalized option type.
var contractTypeCodes = map[string]OptionType{
	"P": OptionTypePut,
	"C": OptionTypeCall,
}

// ParseOptionType normalizes a broker-native option type representation:
// full words in any case, or the single-letter P/C code form.
func ParseOptionType(raw string) (OptionType, error) {
	switch strings.ToLower(raw) {
	case "put":
		return OptionTypePut, nil
	case "call":
		return OptionTypeCall, nil
	}
	if t, ok := contractTypeCodes[strings.ToUpper(raw)]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown option type %q", raw)
}

// Settings carries broker construction parameters. Fields are a union
// across providers; each factory reads what it needs.
type Settings struct {
	APIKey    string
	AccountID string
	Sandbox   bool

	// Paper-trading settings
	Balance float64
	Date    time.Time
}

// Factory constructs a Broker from settings.
type Factory func(Settings) (Broker, error)

// Registry is the explicit compile-time map of broker providers. No
// filesystem plugin loading: adding a provider means adding an entry here.
var Registry = map[string]Factory{
	"tradier": func(s Settings) (Broker, error) {
		if s.APIKey == "" || s.AccountID == "" {
			return nil, errors.New("tradier broker requires api_key and account_id")
		}
		return NewTradierBroker(s.APIKey, s.AccountID, s.Sandbox), nil
	},
	"paper": func(s Settings) (Broker, error) {
		b := NewPaperBroker(s.Balance, s.AccountID)
		if !s.Date.IsZero() {
			b.SetDate(s.Date)
		}
		return b, nil
	},
}

// New constructs the named broker provider.
func New(provider string, s Settings) (Broker, error) {
	f, ok := Registry[provider]
	if !ok {
		return nil, fmt.Errorf("unknown broker provider %q", provider)
	}
	return f(s)
}
