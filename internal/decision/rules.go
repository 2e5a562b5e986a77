// Package decision applies ordered entry and exit rule lists to candidate
// trades and monitored positions. Rules are evaluated top to bottom and
// the first match wins, so the lists read like a policy document and can
// be replaced wholesale in tests.
package decision

import (
	"fmt"
	"math"
	"time"

	"github.com/eddiefleurent/chainlens/internal/models"
	"github.com/eddiefleurent/chainlens/internal/pricing"
	"github.com/sirupsen/logrus"
)

// Entry rule thresholds.
const (
	maxTouchProbability = 0.75
	minATRDistance      = 1.5
	extremeIV           = 0.90

	// Reduced-size tiers below the hard-reject thresholds.
	moderateTouchProbability = 0.50
	moderateATRDistance      = 2.5
	lowTouchProbability      = 0.30
	lowATRDistance           = 3.5
	moderateSizeMultiplier   = 0.50
	lowSizeMultiplier        = 0.75
)

// Exit rule thresholds.
const (
	strikeProximityPct = 0.02
	dwellLimit         = 30 * time.Minute
	touchTolerancePct  = 0.005
	reboundPct         = 0.01
	profitTargetPct    = 0.50
	expirationDTELimit = 7
)

// EntryAction is the verdict of entry evaluation.
type EntryAction string

const (
	// EntryApprove admits the trade at full size.
	EntryApprove EntryAction = "approve"
	// EntryReduce admits the trade at a reduced size.
	EntryReduce EntryAction = "reduce"
	// EntryReject refuses the trade.
	EntryReject EntryAction = "reject"
)

// ExitAction is the verdict of exit evaluation.
type ExitAction string

const (
	// ExitNow calls for an immediate exit.
	ExitNow ExitAction = "exit"
	// ExitMonitor calls for closer monitoring without exiting.
	ExitMonitor ExitAction = "monitor"
	// ExitAdvise suggests an exit without mandating one.
	ExitAdvise ExitAction = "advise"
	// ExitHold keeps the position as is.
	ExitHold ExitAction = "hold"
)

// EntryContext carries everything the entry rules test against.
type EntryContext struct {
	Strategy *models.Strategy
	Spot     float64
	ATR      float64
	IV       float64
	RiskFree float64
	Now      time.Time
	// TouchProb overrides the touch-probability policy; nil uses the
	// default 2x-ITM approximation.
	TouchProb pricing.TouchProbabilityPolicy
}

// EntryDecision is the outcome of entry evaluation.
type EntryDecision struct {
	Action         EntryAction `json:"action"`
	Rule           string      `json:"rule"`
	Reason         string      `json:"reason"`
	SizeMultiplier float64     `json:"size_multiplier"`
	// MaxTouchProbability is the worst short-strike touch probability
	// observed during evaluation.
	MaxTouchProbability float64 `json:"max_touch_probability"`
	// MinATRDistance is the closest short strike in ATR units.
	MinATRDistance float64 `json:"min_atr_distance"`
}

// EntryRule is one ordered condition/decision pair. A nil return means
// the rule does not apply and evaluation continues.
type EntryRule struct {
	Name  string
	Check func(ctx *EntryContext, m entryMetrics) *EntryDecision
}

// entryMetrics are derived once and shared across the rule list.
type entryMetrics struct {
	maxTouch   float64
	minATRDist float64
	invalid    error
}

// DefaultEntryRules returns the reference entry policy in priority order.
func DefaultEntryRules() []EntryRule {
	return []EntryRule{
		{
			Name: "validation",
			Check: func(_ *EntryContext, m entryMetrics) *EntryDecision {
				if m.invalid != nil {
					return &EntryDecision{Action: EntryReject, Reason: m.invalid.Error()}
				}
				return nil
			},
		},
		{
			Name: "touch_probability",
			Check: func(_ *EntryContext, m entryMetrics) *EntryDecision {
				if m.maxTouch > maxTouchProbability {
					return &EntryDecision{
						Action: EntryReject,
						Reason: fmt.Sprintf("touch probability %.2f exceeds %.2f", m.maxTouch, maxTouchProbability),
					}
				}
				return nil
			},
		},
		{
			Name: "atr_distance",
			Check: func(_ *EntryContext, m entryMetrics) *EntryDecision {
				if m.minATRDist < minATRDistance {
					return &EntryDecision{
						Action: EntryReject,
						Reason: fmt.Sprintf("strike %.1f ATR units away, need %.1f", m.minATRDist, minATRDistance),
					}
				}
				return nil
			},
		},
		{
			Name: "extreme_iv",
			Check: func(ctx *EntryContext, _ entryMetrics) *EntryDecision {
				if ctx.IV > extremeIV {
					return &EntryDecision{
						Action: EntryReject,
						Reason: fmt.Sprintf("implied volatility %.0f%% is extreme", ctx.IV*100),
					}
				}
				return nil
			},
		},
		{
			Name: "moderate_risk",
			Check: func(_ *EntryContext, m entryMetrics) *EntryDecision {
				if m.maxTouch > moderateTouchProbability || m.minATRDist < moderateATRDistance {
					return &EntryDecision{
						Action:         EntryReduce,
						Reason:         "moderate risk, half size",
						SizeMultiplier: moderateSizeMultiplier,
					}
				}
				return nil
			},
		},
		{
			Name: "low_risk",
			Check: func(_ *EntryContext, m entryMetrics) *EntryDecision {
				if m.maxTouch > lowTouchProbability || m.minATRDist < lowATRDistance {
					return &EntryDecision{
						Action:         EntryReduce,
						Reason:         "low risk, three-quarter size",
						SizeMultiplier: lowSizeMultiplier,
					}
				}
				return nil
			},
		},
		{
			Name: "approve",
			Check: func(_ *EntryContext, _ entryMetrics) *EntryDecision {
				return &EntryDecision{Action: EntryApprove, Reason: "all entry checks passed", SizeMultiplier: 1.0}
			},
		},
	}
}

// Engine evaluates entry and exit rule lists.
type Engine struct {
	entryRules []EntryRule
	exitRules  []ExitRule
	logger     *logrus.Logger
}

// NewEngine creates a rule engine. Nil rule lists use the defaults.
func NewEngine(entry []EntryRule, exit []ExitRule, logger *logrus.Logger) *Engine {
	if entry == nil {
		entry = DefaultEntryRules()
	}
	if exit == nil {
		exit = DefaultExitRules()
	}
	return &Engine{entryRules: entry, exitRules: exit, logger: logger}
}

// EvaluateEntry runs the ordered entry rules against the candidate.
func (e *Engine) EvaluateEntry(ctx *EntryContext) EntryDecision {
	m := deriveEntryMetrics(ctx)
	for _, rule := range e.entryRules {
		if d := rule.Check(ctx, m); d != nil {
			d.Rule = rule.Name
			d.MaxTouchProbability = m.maxTouch
			if !math.IsInf(m.minATRDist, 1) {
				d.MinATRDistance = m.minATRDist
			}
			if e.logger != nil {
				e.logger.WithFields(logrus.Fields{
					"rule":   rule.Name,
					"action": d.Action,
					"reason": d.Reason,
				}).Debug("entry decision")
			}
			return *d
		}
	}
	// The default rule list always terminates with an approval; a custom
	// list that falls through gets a conservative reject.
	return EntryDecision{Action: EntryReject, Rule: "fallthrough", Reason: "no entry rule matched"}
}

// deriveEntryMetrics computes the shared touch-probability and ATR
// figures across the strategy's short strikes.
func deriveEntryMetrics(ctx *EntryContext) entryMetrics {
	m := entryMetrics{minATRDist: math.Inf(1)}
	if ctx.Strategy == nil {
		m.invalid = fmt.Errorf("entry: strategy is required")
		return m
	}
	if err := ctx.Strategy.Validate(); err != nil {
		m.invalid = err
		return m
	}
	if ctx.Spot <= 0 {
		m.invalid = fmt.Errorf("entry: spot must be positive, got %.2f", ctx.Spot)
		return m
	}

	touch := ctx.TouchProb
	if touch == nil {
		touch = pricing.DefaultTouchProbability
	}
	for _, leg := range ctx.Strategy.Legs {
		if leg.Action != models.ActionSell {
			continue
		}
		years := pricing.YearsBetween(ctx.Now, leg.Expiration)
		if p := touch(ctx.Spot, leg.Strike, ctx.IV, years, ctx.RiskFree); p > m.maxTouch {
			m.maxTouch = p
		}
		if ctx.ATR > 0 {
			if d := math.Abs(leg.Strike-ctx.Spot) / ctx.ATR; d < m.minATRDist {
				m.minATRDist = d
			}
		}
	}
	return m
}
