package main

import (
	"fmt"
	"strconv"

	"github.com/kmaguire/ironfly/internal/strategy"
)

// Defaults applied when a queued trade omits a field, so a bare
// symbol-only request still trades on sensible parameters.
const (
	defaultIVRank      = 50
	defaultTimeline    = 50
	defaultSpreadWidth = 3
)

// normalizeTrade converts a dequeued trade's string parameters into typed
// strategy parameters. Unknown keys are ignored; malformed numerics fail
// the trade rather than defaulting silently.
func normalizeTrade(data map[string]string) (strategy.Params, error) {
	p := strategy.Params{
		Symbol:     data["symbol"],
		Direction:  strategy.TradeDirection(data["direction"]),
		ExpDate:    data["exp_date"],
		OptionType: data["option_type"],
	}
	if p.Symbol == "" {
		return p, fmt.Errorf("trade has no symbol")
	}

	var err error
	if p.IVRank, err = intField(data, "iv_rank", defaultIVRank); err != nil {
		return p, err
	}
	if p.Timeline, err = intField(data, "timeline", defaultTimeline); err != nil {
		return p, err
	}
	if p.DaysOut, err = intField(data, "days_out", 0); err != nil {
		return p, err
	}
	if p.Allocation, err = floatField(data, "allocation", 0); err != nil {
		return p, err
	}
	if p.SpreadWidth, err = floatField(data, "spread_width", defaultSpreadWidth); err != nil {
		return p, err
	}
	if p.MaxSpreadWidth, err = floatField(data, "max_spread_width", 0); err != nil {
		return p, err
	}
	if p.AllocationDollars, err = floatField(data, "allocation_dollars", 0); err != nil {
		return p, err
	}

	// booleans ride as "true" or empty, the storage layer has no bool type
	p.Monthly = truthy(data["monthly"])
	p.ImmediateClosingOrder = truthy(data["immediate_closing_order"])
	return p, nil
}

func intField(data map[string]string, key string, def int) (int, error) {
	raw, ok := data[key]
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, fmt.Errorf("field %s: %w", key, err)
	}
	return v, nil
}

func floatField(data map[string]string, key string, def float64) (float64, error) {
	raw, ok := data[key]
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def, fmt.Errorf("field %s: %w", key, err)
	}
	return v, nil
}

func truthy(raw string) bool {
	switch raw {
	case "", "0", "false":
		return false
	}
	return true
}
