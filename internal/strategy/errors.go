package strategy

import "fmt"

// ConfigError indicates the caller supplied invalid trade parameters.
// Never retried; the driver surfaces it immediately.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "trade config: " + e.Msg }

// TradeError is a general trade failure: chain or leg-selection exhaustion,
// negative computed credit. The driver marks the queued trade failed.
type TradeError struct {
	Msg string
}

func (e *TradeError) Error() string { return "trade: " + e.Msg }

// NoTradeError means no trade was made for a benign reason: no options
// listed, quantity rounds to zero, insufficient capital. Distinguished from
// TradeError so the driver records it without alerting.
type NoTradeError struct {
	Msg string
}

func (e *NoTradeError) Error() string { return "no trade: " + e.Msg }

// SelectionReason classifies leg-selection failures. Selection functions
// return it instead of panicking or signaling through sentinel errors, and
// the expiration-date retry loop branches on it.
type SelectionReason int

const (
	// NoOptionsOfType means the chain has no contracts of the needed type.
	NoOptionsOfType SelectionReason = iota
	// NoShortLeg means no contract satisfied the probability window.
	NoShortLeg
	// NoLongLeg means no wing existed at any width down to zero.
	NoLongLeg
)

func (r SelectionReason) String() string {
	switch r {
	case NoOptionsOfType:
		return "no options of required type"
	case NoShortLeg:
		return "no suitable short leg"
	case NoLongLeg:
		return "no suitable long leg"
	default:
		return "unknown"
	}
}

// SelectionError reports a failed leg selection with enough diagnostics to
// pick a different expiration date and retry.
type SelectionError struct {
	Reason SelectionReason
	Detail string
}

func (e *SelectionError) Error() string {
	if e.Detail == "" {
		return "leg selection: " + e.Reason.String()
	}
	return fmt.Sprintf("leg selection: %s: %s", e.Reason.String(), e.Detail)
}
