package decision

import (
	"fmt"
	"math"
	"time"

	"github.com/eddiefleurent/chainlens/internal/models"
	"github.com/sirupsen/logrus"
)

// ExitContext carries everything the exit rules test against for one
// monitored position.
type ExitContext struct {
	Position *models.Position
	History  *models.PriceHistory
	// ProfitPct is the current profit as a fraction of max profit.
	ProfitPct float64
	Now       time.Time
}

// ExitDecision is the outcome of exit evaluation.
type ExitDecision struct {
	Action ExitAction `json:"action"`
	Rule   string     `json:"rule"`
	Reason string     `json:"reason"`
}

// ExitRule is one ordered condition/decision pair for exits.
type ExitRule struct {
	Name  string
	Check func(ctx *ExitContext) *ExitDecision
}

// DefaultExitRules returns the reference exit policy: hard exits first,
// then monitoring states, then advisories.
func DefaultExitRules() []ExitRule {
	return []ExitRule{
		{
			Name: "strike_proximity",
			Check: func(ctx *ExitContext) *ExitDecision {
				price, ok := latestPrice(ctx)
				if !ok || ctx.Position.Strike <= 0 {
					return nil
				}
				if math.Abs(price-ctx.Position.Strike)/ctx.Position.Strike <= strikeProximityPct {
					return &ExitDecision{
						Action: ExitNow,
						Reason: fmt.Sprintf("price %.2f within %.0f%% of short strike %.2f", price, strikeProximityPct*100, ctx.Position.Strike),
					}
				}
				return nil
			},
		},
		{
			Name: "dwell_beyond_strike",
			Check: func(ctx *ExitContext) *ExitDecision {
				above, ok := breachSide(ctx.Position)
				if !ok || ctx.History == nil {
					return nil
				}
				if dwell := ctx.History.DwellBeyond(ctx.Position.Strike, above); dwell > dwellLimit {
					return &ExitDecision{
						Action: ExitNow,
						Reason: fmt.Sprintf("price beyond short strike %.2f for %s", ctx.Position.Strike, dwell.Round(time.Minute)),
					}
				}
				return nil
			},
		},
		{
			Name: "first_touch",
			Check: func(ctx *ExitContext) *ExitDecision {
				if ctx.History == nil {
					return nil
				}
				if ctx.History.TouchCount(ctx.Position.Strike, touchTolerancePct) == 1 &&
					!ctx.History.HasBounced(ctx.Position.Strike, touchTolerancePct, reboundPct) {
					return &ExitDecision{
						Action: ExitMonitor,
						Reason: fmt.Sprintf("first touch of strike %.2f", ctx.Position.Strike),
					}
				}
				return nil
			},
		},
		{
			Name: "bounced",
			Check: func(ctx *ExitContext) *ExitDecision {
				if ctx.History == nil {
					return nil
				}
				if ctx.History.HasBounced(ctx.Position.Strike, touchTolerancePct, reboundPct) {
					return &ExitDecision{
						Action: ExitHold,
						Reason: fmt.Sprintf("price touched strike %.2f and bounced", ctx.Position.Strike),
					}
				}
				return nil
			},
		},
		{
			Name: "profit_target",
			Check: func(ctx *ExitContext) *ExitDecision {
				if ctx.ProfitPct >= profitTargetPct {
					return &ExitDecision{
						Action: ExitAdvise,
						Reason: fmt.Sprintf("profit %.0f%% of max reached target %.0f%%", ctx.ProfitPct*100, profitTargetPct*100),
					}
				}
				return nil
			},
		},
		{
			Name: "expiration_proximity",
			Check: func(ctx *ExitContext) *ExitDecision {
				if dte := ctx.Position.DTE(ctx.Now); dte <= expirationDTELimit {
					return &ExitDecision{
						Action: ExitAdvise,
						Reason: fmt.Sprintf("%d days to expiration, decay accelerating", dte),
					}
				}
				return nil
			},
		},
		{
			Name: "hold",
			Check: func(_ *ExitContext) *ExitDecision {
				return &ExitDecision{Action: ExitHold, Reason: "no exit condition met"}
			},
		},
	}
}

// EvaluateExit runs the ordered exit rules against the position.
func (e *Engine) EvaluateExit(ctx *ExitContext) (ExitDecision, error) {
	if ctx.Position == nil {
		return ExitDecision{}, fmt.Errorf("exit: position is required")
	}
	if err := ctx.Position.Validate(); err != nil {
		return ExitDecision{}, err
	}
	for _, rule := range e.exitRules {
		if d := rule.Check(ctx); d != nil {
			d.Rule = rule.Name
			if e.logger != nil {
				e.logger.WithFields(logrus.Fields{
					"position": ctx.Position.ID,
					"rule":     rule.Name,
					"action":   d.Action,
				}).Debug("exit decision")
			}
			return *d, nil
		}
	}
	return ExitDecision{Action: ExitHold, Rule: "fallthrough", Reason: "no exit rule matched"}, nil
}

func latestPrice(ctx *ExitContext) (float64, bool) {
	if ctx.History == nil {
		return 0, false
	}
	p, ok := ctx.History.Latest()
	return p.Price, ok
}

// breachSide reports which side of the short strike counts as breached:
// above for short calls, below for short puts. False when the position
// carries no short leg at its monitored strike.
func breachSide(p *models.Position) (bool, bool) {
	for _, leg := range p.Legs {
		if leg.Action == models.ActionSell && leg.Strike == p.Strike {
			return leg.Type == models.OptionTypeCall, true
		}
	}
	return false, false
}
