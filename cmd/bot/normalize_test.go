package main

import (
	"testing"

	"github.com/kmaguire/ironfly/internal/strategy"
)

func TestNormalizeTrade(t *testing.T) {
	p, err := normalizeTrade(map[string]string{
		"symbol":                  "SPY",
		"direction":               "neutral",
		"iv_rank":                 "62",
		"allocation":              "3.5",
		"timeline":                "50",
		"days_out":                "0",
		"spread_width":            "2.5",
		"max_spread_width":        "5",
		"monthly":                 "true",
		"immediate_closing_order": "",
		"exp_date":                "2019-06-21",
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.Symbol != "SPY" || p.Direction != strategy.DirectionNeutral {
		t.Errorf("symbol/direction = %q/%q", p.Symbol, p.Direction)
	}
	if p.IVRank != 62 || p.Timeline != 50 {
		t.Errorf("iv_rank/timeline = %d/%d", p.IVRank, p.Timeline)
	}
	if p.Allocation != 3.5 || p.SpreadWidth != 2.5 || p.MaxSpreadWidth != 5 {
		t.Errorf("allocation/widths = %v/%v/%v", p.Allocation, p.SpreadWidth, p.MaxSpreadWidth)
	}
	if !p.Monthly {
		t.Error("monthly should parse as true")
	}
	if p.ImmediateClosingOrder {
		t.Error("empty immediate_closing_order should parse as false")
	}
	if p.ExpDate != "2019-06-21" {
		t.Errorf("exp_date = %q", p.ExpDate)
	}
}

func TestNormalizeTradeDefaults(t *testing.T) {
	// a symbol-only trade still carries workable parameters
	p, err := normalizeTrade(map[string]string{"symbol": "MU"})
	if err != nil {
		t.Fatal(err)
	}
	if p.IVRank != 50 || p.Timeline != 50 || p.SpreadWidth != 3 {
		t.Errorf("iv_rank/timeline/spread_width = %d/%d/%v, want 50/50/3", p.IVRank, p.Timeline, p.SpreadWidth)
	}
	if p.DaysOut != 0 || p.Allocation != 0 || p.MaxSpreadWidth != 0 || p.Monthly {
		t.Errorf("unexpected defaults: %+v", p)
	}
	// an explicit value overrides the default
	p, err = normalizeTrade(map[string]string{"symbol": "MU", "iv_rank": "62"})
	if err != nil {
		t.Fatal(err)
	}
	if p.IVRank != 62 {
		t.Errorf("iv_rank = %d, want 62", p.IVRank)
	}
}

func TestNormalizeTradeErrors(t *testing.T) {
	if _, err := normalizeTrade(map[string]string{"direction": "neutral"}); err == nil {
		t.Error("expected error for missing symbol")
	}
	if _, err := normalizeTrade(map[string]string{"symbol": "MU", "iv_rank": "high"}); err == nil {
		t.Error("expected error for malformed iv_rank")
	}
	if _, err := normalizeTrade(map[string]string{"symbol": "MU", "allocation": "lots"}); err == nil {
		t.Error("expected error for malformed allocation")
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("SPY-3f2a1c9d"); got != "SPY-3f2a" {
		t.Errorf("shortID = %q, want SPY-3f2a", got)
	}
	if got := shortID("MU-1"); got != "MU-1" {
		t.Errorf("shortID = %q, want MU-1", got)
	}
}
