package broker

import (
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerBroker wraps a Broker with circuit breaker functionality
// so a flapping brokerage API fails fast instead of stalling every cycle.
type CircuitBreakerBroker struct {
	broker  Broker
	breaker *gobreaker.CircuitBreaker
}

var _ Broker = (*CircuitBreakerBroker)(nil)

// exec is a generic helper for circuit breaker wrapper methods
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	broker Broker,
	fn func(Broker) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(broker) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerBroker creates a CircuitBreakerBroker with sensible defaults.
func NewCircuitBreakerBroker(broker Broker) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(broker, CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewCircuitBreakerBrokerWithSettings creates a CircuitBreakerBroker with custom settings
func NewCircuitBreakerBrokerWithSettings(broker Broker, settings CircuitBreakerSettings) *CircuitBreakerBroker {
	gbSettings := gobreaker.Settings{
		Name:        "BrokerCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerBroker{
		broker:  broker,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// AccountID passes through; no network call to protect.
func (c *CircuitBreakerBroker) AccountID() string { return c.broker.AccountID() }

// Now passes through; no network call to protect.
func (c *CircuitBreakerBroker) Now() time.Time { return c.broker.Now() }

func (c *CircuitBreakerBroker) Balance() (float64, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (float64, error) { return b.Balance() })
}

func (c *CircuitBreakerBroker) BuyingPower() (float64, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (float64, error) { return b.BuyingPower() })
}

func (c *CircuitBreakerBroker) GetValue() (float64, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (float64, error) { return b.GetValue() })
}

func (c *CircuitBreakerBroker) GetQuote(symbol string) (float64, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (float64, error) { return b.GetQuote(symbol) })
}

func (c *CircuitBreakerBroker) GetOptions(symbol string) (*Chain, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*Chain, error) { return b.GetOptions(symbol) })
}

func (c *CircuitBreakerBroker) OptionsForDate(chain *Chain, date string) ([]Option, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]Option, error) {
		return b.OptionsForDate(chain, date)
	})
}

func (c *CircuitBreakerBroker) OptionsPositions() (map[string]HeldOption, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (map[string]HeldOption, error) {
		return b.OptionsPositions()
	})
}

func (c *CircuitBreakerBroker) OptionsPositionsData(options []Option) ([]Option, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]Option, error) {
		return b.OptionsPositionsData(options)
	})
}

func (c *CircuitBreakerBroker) StockPositions() ([]StockPosition, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]StockPosition, error) {
		return b.StockPositions()
	})
}

func (c *CircuitBreakerBroker) OptionsTransact(legs []Leg, direction Direction,
	price float64, quantity int, effect Effect) (OptionOrder, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (OptionOrder, error) {
		return b.OptionsTransact(legs, direction, price, quantity, effect)
	})
}

func (c *CircuitBreakerBroker) Buy(symbol string, quantity int) (string, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (string, error) { return b.Buy(symbol, quantity) })
}

func (c *CircuitBreakerBroker) Sell(symbol string, quantity int) (string, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (string, error) { return b.Sell(symbol, quantity) })
}
