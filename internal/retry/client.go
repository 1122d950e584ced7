// Package retry decorates a broker with transient-failure retries on the
// order paths. Market-data reads fail fast; order submissions back off and
// try again when the failure looks like a network or rate-limit blip.
package retry

import (
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/kmaguire/ironfly/internal/broker"
)

type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

// Broker wraps an underlying broker, retrying order submissions.
type Broker struct {
	broker.Broker
	logger *log.Logger
	config Config
}

var _ broker.Broker = (*Broker)(nil)

// Wrap decorates b with retry behavior. The optional config overrides
// DefaultConfig.
func Wrap(b broker.Broker, logger *log.Logger, config ...Config) *Broker {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Broker{Broker: b, logger: logger, config: cfg}
}

// OptionsTransact submits a multi-leg order, retrying transient failures.
func (c *Broker) OptionsTransact(legs []broker.Leg, direction broker.Direction,
	price float64, quantity int, effect broker.Effect) (broker.OptionOrder, error) {
	return execRetry(c, "options order", func() (broker.OptionOrder, error) {
		return c.Broker.OptionsTransact(legs, direction, price, quantity, effect)
	})
}

// Buy purchases equity shares, retrying transient failures.
func (c *Broker) Buy(symbol string, quantity int) (string, error) {
	return execRetry(c, "buy "+symbol, func() (string, error) {
		return c.Broker.Buy(symbol, quantity)
	})
}

// Sell sells equity shares, retrying transient failures.
func (c *Broker) Sell(symbol string, quantity int) (string, error) {
	return execRetry(c, "sell "+symbol, func() (string, error) {
		return c.Broker.Sell(symbol, quantity)
	})
}

func execRetry[T any](c *Broker, op string, fn func() (T, error)) (T, error) {
	var zero T
	deadline := time.Now().Add(c.config.Timeout)
	backoff := c.config.InitialBackoff

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if time.Now().After(deadline) {
			return zero, fmt.Errorf("%s timed out after %v: %w", op, c.config.Timeout, lastErr)
		}

		result, err := fn()
		if err == nil {
			if attempt > 0 {
				c.logger.Printf("retry: %s succeeded on attempt %d", op, attempt+1)
			}
			return result, nil
		}
		lastErr = err

		if !isTransientError(err) || attempt == c.config.MaxRetries {
			break
		}
		c.logger.Printf("retry: %s attempt %d failed (%v), retrying in %v", op, attempt+1, err, backoff)
		time.Sleep(backoff)
		backoff = nextBackoff(backoff, c.config.MaxBackoff)
	}
	return zero, fmt.Errorf("%s failed after retries: %w", op, lastErr)
}

// nextBackoff grows the delay by half with jitter, capped at maxBackoff.
func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if backoff > maxBackoff {
		backoff = maxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			log.Printf("retry: failed to generate jitter: %v", err)
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}
	return backoff
}

// isTransientError classifies failures worth retrying. Broker rejections
// like insufficient funds or a bad contract are final.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"429", // HTTP 429 Too Many Requests
		"502", // HTTP 502 Bad Gateway
		"503", // HTTP 503 Service Unavailable
		"504", // HTTP 504 Gateway Timeout
		"network",
		"dns",
		"tcp",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
