package strategy

import (
	"fmt"

	"github.com/kmaguire/ironfly/internal/broker"
)

// premiumTable holds the per-structure selection parameters for the
// premium-selling strategies.
var premiumTable = map[string]Config{
	"iron_condor": {
		Timeline:    [2]int{30, 60},
		Target:      50,
		Probability: 85,
	},
	"iron_butterfly": {
		Timeline:    [2]int{30, 60},
		Target:      25,
		Probability: 85,
	},
	"credit_spread": {
		Timeline:    [2]int{30, 60},
		Target:      50,
		Probability: 70,
	},
}

// highIV is the IV-rank threshold above which neutral trades prefer the
// tighter iron butterfly over the condor.
const highIV = 75

// minIVRank gates entry: premium selling wants elevated volatility.
const minIVRank = 50

// Premium sells defined-risk premium: credit spreads for directional
// trades, iron condors or butterflies for neutral ones depending on
// IV rank.
type Premium struct {
	*Engine
	// fairCreditWarning and widthGrowth distinguish the seller variant.
	fairCreditWarning bool
	widthGrowth       bool
}

var _ Strategy = (*Premium)(nil)

// NewPremium builds the standard premium-selling variant.
func NewPremium(d Deps) *Premium {
	return &Premium{Engine: newEngine("premium", d, premiumTable)}
}

// NewSeller builds the seller variant: identical selection, but it warns
// when the received credit is under fair value and lets the wing search
// grow the spread width before shrinking it.
func NewSeller(d Deps) *Premium {
	return &Premium{
		Engine:            newEngine("seller", d, premiumTable),
		fairCreditWarning: true,
		widthGrowth:       true,
	}
}

// validate bounds-checks the caller-supplied parameters.
func (s *Premium) validate(p Params) error {
	switch p.Direction {
	case DirectionNeutral, DirectionBullish, DirectionBearish:
	default:
		return &ConfigError{Msg: fmt.Sprintf("invalid direction %q; must be neutral, bullish, or bearish", p.Direction)}
	}
	if p.IVRank < 0 || p.IVRank > 100 {
		return &ConfigError{Msg: fmt.Sprintf("invalid iv_rank %d", p.IVRank)}
	}
	if p.Allocation <= 0 || p.Allocation >= 20 {
		return &ConfigError{Msg: fmt.Sprintf("invalid allocation %.1f; must be in (0, 20)", p.Allocation)}
	}
	if p.IVRank < minIVRank {
		return &ConfigError{Msg: fmt.Sprintf("iv_rank %d too low", p.IVRank)}
	}
	return nil
}

// chooseStructure picks the trade structure from direction and IV rank.
func chooseStructure(p Params) string {
	if p.Direction == DirectionNeutral {
		if p.IVRank >= highIV {
			return "iron_butterfly"
		}
		return "iron_condor"
	}
	return "credit_spread"
}

// MakeTrade runs the full open pipeline: validate, gate on open criteria,
// fetch the chain, select legs across expiration-date retries, size, and
// submit.
func (s *Premium) MakeTrade(p Params) (*Result, error) {
	if err := s.validate(p); err != nil {
		return nil, err
	}
	structure := chooseStructure(p)
	cfg := premiumTable[structure]
	cfg.FairCreditWarning = s.fairCreditWarning
	if s.widthGrowth {
		cfg.MaxSpreadWidth = p.MaxSpreadWidth
	}

	quote, chain, deferred, err := s.initStrategy(p.Symbol, p.OpenCriteria)
	if err != nil {
		return nil, err
	}
	if deferred != nil {
		return deferred, nil
	}

	var method legSelector
	switch structure {
	case "iron_butterfly":
		method = func(options []broker.Option) ([]broker.Leg, *SelectionError) {
			return IronButterfly(cfg, options, quote)
		}
	case "iron_condor":
		method = func(options []broker.Option) ([]broker.Leg, *SelectionError) {
			return IronCondor(cfg, options, p.SpreadWidth)
		}
	default:
		method = func(options []broker.Option) ([]broker.Leg, *SelectionError) {
			return CreditSpread(cfg, options, p.Direction, p.SpreadWidth)
		}
	}

	legs, targetDate, err := s.findLegs(cfg, p.Timeline, p.DaysOut, p.Monthly, p.ExpDate, chain, method)
	if err != nil {
		return nil, err
	}
	return s.submit(p, structure, targetDate, cfg, legs)
}
