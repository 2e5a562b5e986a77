package models

import (
	"fmt"
	"math"
	"time"
)

// StrategyType tags the closed set of strategy variants the engine builds.
type StrategyType string

const (
	// StrategyBullVertical is a debit call vertical (long lower strike).
	StrategyBullVertical StrategyType = "bull_vertical"
	// StrategyBearVertical is a debit put vertical (long higher strike).
	StrategyBearVertical StrategyType = "bear_vertical"
	// StrategyIronCondor is a four-leg credit condor.
	StrategyIronCondor StrategyType = "iron_condor"
	// StrategyCalendar is a two-leg time spread at one strike.
	StrategyCalendar StrategyType = "calendar"
)

// Valid returns true if the StrategyType is one of the defined constants.
func (t StrategyType) Valid() bool {
	switch t {
	case StrategyBullVertical, StrategyBearVertical, StrategyIronCondor, StrategyCalendar:
		return true
	default:
		return false
	}
}

// LegAction is the direction of a single strategy leg.
type LegAction string

const (
	// ActionBuy opens a long leg.
	ActionBuy LegAction = "buy"
	// ActionSell opens a short leg.
	ActionSell LegAction = "sell"
)

// Sign returns +1 for buys and -1 for sells. Used wherever leg values are
// summed into a net position figure.
func (a LegAction) Sign() float64 {
	if a == ActionSell {
		return -1
	}
	return 1
}

// Leg is a single option leg within a strategy.
type Leg struct {
	Action     LegAction  `json:"action"`
	Type       OptionType `json:"type"`
	Strike     float64    `json:"strike"`
	Expiration time.Time  `json:"expiration"`
	Price      float64    `json:"price"`
	Greeks     Greeks     `json:"greeks"`
	Volume     int64      `json:"volume"`
}

// UnboundedProfit is the sentinel MaxProfit for strategies with unlimited
// upside. Callers must check IsUnbounded before treating MaxProfit as a
// dollar amount.
var UnboundedProfit = math.Inf(1)

// Strategy is one candidate multi-leg position. The Type tag determines the
// leg layout; legs are ordered as constructed by the generator. Exactly one
// of NetDebit/NetCredit is positive.
type Strategy struct {
	Type              StrategyType `json:"type"`
	Symbol            string       `json:"symbol"`
	Legs              []Leg        `json:"legs"`
	NetDebit          float64      `json:"net_debit,omitempty"`
	NetCredit         float64      `json:"net_credit,omitempty"`
	MaxProfit         float64      `json:"max_profit"`
	MaxRisk           float64      `json:"max_risk"`
	Breakevens        []float64    `json:"breakevens"`
	ProbabilityProfit float64      `json:"probability_profit"`
}

// IsCredit returns true for net-credit strategies.
func (s *Strategy) IsCredit() bool { return s.NetCredit > 0 }

// IsUnboundedProfit returns true when MaxProfit carries the unbounded
// sentinel.
func (s *Strategy) IsUnboundedProfit() bool { return math.IsInf(s.MaxProfit, 1) }

// RiskReward returns MaxProfit/MaxRisk. The ratio is undefined when
// MaxRisk is zero; zero is returned so downstream filters discard the
// strategy instead of propagating NaN.
func (s *Strategy) RiskReward() float64 {
	if s.MaxRisk <= 0 {
		return 0
	}
	if s.IsUnboundedProfit() {
		return math.Inf(1)
	}
	return s.MaxProfit / s.MaxRisk
}

// NetPremium returns the signed per-share premium of all legs: positive
// means the position is opened for a debit.
func (s *Strategy) NetPremium() float64 {
	net := 0.0
	for _, leg := range s.Legs {
		net += leg.Price * leg.Action.Sign()
	}
	return net
}

// AvgLegVolume returns the mean contract volume across legs.
func (s *Strategy) AvgLegVolume() float64 {
	if len(s.Legs) == 0 {
		return 0
	}
	total := int64(0)
	for _, leg := range s.Legs {
		total += leg.Volume
	}
	return float64(total) / float64(len(s.Legs))
}

const premiumReconcileEpsilon = 1e-6

// Validate enforces the strategy invariants: a valid type tag, at least
// one leg, exactly one of debit/credit set, legs reconciling to that net
// premium, non-negative risk figures, and probability within [0,1].
func (s *Strategy) Validate() error {
	if !s.Type.Valid() {
		return fmt.Errorf("strategy: invalid type %q", s.Type)
	}
	if len(s.Legs) == 0 {
		return fmt.Errorf("strategy %s: no legs", s.Type)
	}
	if s.NetDebit > 0 && s.NetCredit > 0 {
		return fmt.Errorf("strategy %s: both net debit (%.4f) and net credit (%.4f) set", s.Type, s.NetDebit, s.NetCredit)
	}
	if s.NetDebit <= 0 && s.NetCredit <= 0 {
		return fmt.Errorf("strategy %s: neither net debit nor net credit set", s.Type)
	}
	want := s.NetDebit
	if s.IsCredit() {
		want = -s.NetCredit
	}
	if math.Abs(s.NetPremium()-want) > premiumReconcileEpsilon {
		return fmt.Errorf("strategy %s: legs sum to %.4f, expected %.4f", s.Type, s.NetPremium(), want)
	}
	if s.MaxRisk < 0 {
		return fmt.Errorf("strategy %s: negative max risk %.4f", s.Type, s.MaxRisk)
	}
	if !s.IsUnboundedProfit() && s.MaxProfit < 0 {
		return fmt.Errorf("strategy %s: negative max profit %.4f", s.Type, s.MaxProfit)
	}
	if s.ProbabilityProfit < 0 || s.ProbabilityProfit > 1 {
		return fmt.Errorf("strategy %s: probability of profit %.4f outside [0,1]", s.Type, s.ProbabilityProfit)
	}
	return nil
}

// Description returns a short human-readable label, e.g. for logs and
// rejection reasons.
func (s *Strategy) Description() string {
	switch s.Type {
	case StrategyBullVertical, StrategyBearVertical:
		if len(s.Legs) == 2 {
			return fmt.Sprintf("%s %s %.2f/%.2f", s.Symbol, s.Type, s.Legs[0].Strike, s.Legs[1].Strike)
		}
	case StrategyIronCondor:
		if len(s.Legs) == 4 {
			return fmt.Sprintf("%s condor %.2f/%.2f/%.2f/%.2f",
				s.Symbol, s.Legs[0].Strike, s.Legs[1].Strike, s.Legs[2].Strike, s.Legs[3].Strike)
		}
	case StrategyCalendar:
		if len(s.Legs) == 2 {
			return fmt.Sprintf("%s calendar %.2f %s/%s", s.Symbol, s.Legs[0].Strike,
				s.Legs[0].Expiration.Format(ExpirationDateLayout), s.Legs[1].Expiration.Format(ExpirationDateLayout))
		}
	}
	return fmt.Sprintf("%s %s (%d legs)", s.Symbol, s.Type, len(s.Legs))
}

// ExpectedValue returns the probability-weighted payoff against the
// maximum loss. Unbounded-profit strategies fall back to treating max
// risk as the payoff proxy so the figure stays finite.
func (s *Strategy) ExpectedValue() float64 {
	profit := s.MaxProfit
	if s.IsUnboundedProfit() {
		profit = s.MaxRisk
	}
	return s.ProbabilityProfit*profit - (1-s.ProbabilityProfit)*s.MaxRisk
}
