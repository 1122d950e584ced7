// Package strategy implements the trading strategies: leg selection for
// credit spreads, iron condors, and iron butterflies, trade sizing, and
// the MakeTrade/Maintenance façade the daemon drives.
package strategy

import (
	"fmt"
	"log"
	"math"

	"github.com/kmaguire/ironfly/internal/broker"
	"github.com/kmaguire/ironfly/internal/criteria"
	"github.com/kmaguire/ironfly/internal/models"
	"github.com/kmaguire/ironfly/internal/positions"
	"github.com/kmaguire/ironfly/internal/storage"
	"github.com/kmaguire/ironfly/internal/util"
)

// Trade result statuses returned to the driver.
const (
	StatusPlaced   = "placed"
	StatusDeferred = "deferred"
	StatusRejected = "rejected"
)

// Params carries one trade request, as dequeued by the daemon.
type Params struct {
	Symbol      string
	Direction   TradeDirection
	IVRank      int
	Allocation  float64 // percent of balance
	Timeline    int     // percent through the strategy's timeline window
	SpreadWidth float64
	DaysOut     int
	Monthly     bool
	ExpDate     string
	// MaxSpreadWidth lets the seller variant's wing search grow the
	// width before shrinking it.
	MaxSpreadWidth float64

	OpenCriteria  []criteria.Criterion
	CloseCriteria []criteria.Criterion

	// ImmediateClosingOrder places the profit-target closing order right
	// after the open fills.
	ImmediateClosingOrder bool

	// OptionType selects call or put for single-leg strategies.
	OptionType string
	// AllocationDollars overrides percent allocation for single-leg
	// strategies when positive.
	AllocationDollars float64
}

// Result is the driver-facing outcome of MakeTrade.
type Result struct {
	Status   string
	Strategy string
	Legs     []broker.Leg
	Quantity int
	Price    float64
	Order    broker.OptionOrder
}

// Strategy is one tradeable strategy variant.
type Strategy interface {
	Name() string
	MakeTrade(p Params) (*Result, error)
	Maintenance() ([]broker.OptionOrder, error)
}

// Deps are the collaborators injected into every strategy.
type Deps struct {
	Broker broker.Broker
	Store  storage.Interface
	Logger *log.Logger
}

// Registry is the compile-time map of strategy variants. No filesystem
// plugin loading: adding a variant means adding an entry here.
var Registry = map[string]func(Deps) Strategy{
	"premium":    func(d Deps) Strategy { return NewPremium(d) },
	"seller":     func(d Deps) Strategy { return NewSeller(d) },
	"longoption": func(d Deps) Strategy { return NewLongOption(d) },
	"wheel":      func(d Deps) Strategy { return NewWheel(d) },
	"buyhold":    func(d Deps) Strategy { return NewBuyHold(d) },
}

// New constructs the named strategy variant.
func New(name string, d Deps) (Strategy, error) {
	f, ok := Registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
	return f(d), nil
}

// Engine is the shared machinery embedded by every variant: broker and
// storage access, the position lifecycle manager, and the open-gate /
// leg-search / save plumbing of MakeTrade.
type Engine struct {
	name   string
	b      broker.Broker
	pm     *positions.Manager
	logger *log.Logger
	// table resolves a strategy table name to its selection config, for
	// maintenance close targets.
	table map[string]Config
}

func newEngine(name string, d Deps, table map[string]Config) *Engine {
	logger := d.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		name:   name,
		b:      d.Broker,
		pm:     positions.NewManager(d.Store, d.Broker, name, logger),
		logger: logger,
		table:  table,
	}
}

func (e *Engine) Name() string { return e.name }

// Maintenance runs one close-evaluation pass over the variant's tracked
// positions, closing those at target.
func (e *Engine) Maintenance() ([]broker.OptionOrder, error) {
	return e.pm.Maintenance(func(strategyName string) (float64, bool) {
		cfg, ok := e.table[strategyName]
		return cfg.Target, ok
	})
}

// Positions exposes the lifecycle manager, for drivers that reconcile
// directly.
func (e *Engine) Positions() *positions.Manager { return e.pm }

// initStrategy fetches the quote and chain and applies the open-criteria
// gate. A non-nil Result means the trade is deferred without side effects.
func (e *Engine) initStrategy(symbol string, open []criteria.Criterion) (float64, *broker.Chain, *Result, error) {
	quote, err := e.b.GetQuote(symbol)
	if err != nil {
		return 0, nil, nil, err
	}
	if len(open) > 0 {
		met, err := criteria.Evaluate(open, map[string]interface{}{
			"price": quote,
			"date":  float64(e.b.Now().Unix()),
		})
		if err != nil {
			return 0, nil, nil, err
		}
		if !met {
			return 0, nil, &Result{Status: StatusDeferred}, nil
		}
	}

	chain, err := e.b.GetOptions(symbol)
	if err != nil {
		return 0, nil, nil, err
	}
	if len(chain.ExpirationDates) == 0 {
		return 0, nil, nil, &NoTradeError{Msg: "no options listed for " + symbol}
	}
	return quote, chain, nil, nil
}

// legSelector tries to build a leg set from one expiration's contracts.
type legSelector func(options []broker.Option) ([]broker.Leg, *SelectionError)

// findLegs drives the expiration-date retry loop: probe dates outward
// from the timeline target, blacklisting dates whose chains cannot
// produce a valid leg set, bounded by maxExpDateAttempts (one attempt
// when the date is pinned).
func (e *Engine) findLegs(cfg Config, timelinePct, daysOut int, monthly bool, expDate string,
	chain *broker.Chain, method legSelector) ([]broker.Leg, string, error) {
	search, err := NewExpDateSearch(e.b, chain, cfg, timelinePct, daysOut, monthly, expDate)
	if err != nil {
		return nil, "", &ConfigError{Msg: err.Error()}
	}

	attempts := maxExpDateAttempts
	if search.Pinned() {
		attempts = 1
	}
	var lastSel *SelectionError
	for i := 0; i < attempts; i++ {
		date, options, err := search.Next()
		if err != nil {
			break
		}
		legs, selErr := method(options)
		if selErr == nil {
			return legs, date, nil
		}
		lastSel = selErr
		search.Blacklist(date)
	}

	msg := "could not find a valid expiration date with suitable strikes"
	if lastSel != nil {
		msg = fmt.Sprintf("%s (last: %s)", msg, lastSel.Error())
	}
	return nil, "", &TradeError{Msg: msg}
}

// submit sizes, transacts, and persists an accepted leg set, returning
// the placed Result.
func (e *Engine) submit(p Params, strategyName, targetDate string, cfg Config, legs []broker.Leg) (*Result, error) {
	plan, err := PrepareTrade(e.b, legs, p.Allocation)
	if err != nil {
		return nil, err
	}

	if cfg.FairCreditWarning {
		if fair := FairCredit(legs, plan.Width); plan.Credit < fair {
			e.pm.Log(fmt.Sprintf("Trade isn't fair; received credit %.2f < %.2f. Placing anyway.",
				plan.Credit, fair))
		}
	}
	if err := CheckRiskReward(legs, plan.Width, plan.Credit, cfg.MinRiskReward); err != nil {
		return nil, err
	}

	order, err := e.b.OptionsTransact(legs, broker.DirectionCredit, plan.Credit,
		plan.Quantity, broker.EffectOpen)
	if err != nil {
		return nil, err
	}

	closeCriteria, err := criteria.MarshalList(p.CloseCriteria)
	if err != nil {
		return nil, err
	}
	pos := &models.Position{
		Symbol:        p.Symbol,
		Strategy:      strategyName,
		Quantity:      plan.Quantity,
		Price:         plan.Credit,
		Expires:       targetDate,
		CloseCriteria: closeCriteria,
	}
	if err := e.pm.SaveOrder(order, legs, pos); err != nil {
		return nil, err
	}
	e.pm.Log(fmt.Sprintf("[%s]: Opened %s in %s with direction %s with quantity %d and price %.2f.",
		order.ID(), strategyName, p.Symbol, p.Direction, plan.Quantity, plan.Credit*100))

	if p.ImmediateClosingOrder {
		closePrice := util.RoundToTick(util.PriceFromChange(plan.Credit, cfg.Target), 0.01)
		if _, err := e.pm.ClosePosition(pos, legs, closePrice, true); err != nil {
			return nil, err
		}
		e.pm.Log(fmt.Sprintf("[%s] Placing closing order with debit %.2f.", order.ID(), closePrice))
	}

	return &Result{
		Status:   StatusPlaced,
		Strategy: strategyName,
		Legs:     legs,
		Quantity: plan.Quantity,
		Price:    float64(plan.Quantity) * plan.Credit,
		Order:    order,
	}, nil
}

// quantityForAllocation sizes a single-leg debit purchase.
func quantityForAllocation(allocation, price float64) int {
	if price <= 0 {
		return 0
	}
	return int(math.Floor(allocation / (price * 100)))
}
