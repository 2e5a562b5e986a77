package risk

import (
	"fmt"
	"sort"
	"time"

	"github.com/eddiefleurent/chainlens/internal/config"
	"github.com/eddiefleurent/chainlens/internal/models"
	"github.com/sirupsen/logrus"
)

// Breaker names, stable across persistence.
const (
	BreakerDailyLossAbs  = "daily_loss_abs"
	BreakerDailyLossPct  = "daily_loss_pct"
	BreakerPortfolioRisk = "portfolio_risk"
	BreakerVolSpike      = "vol_spike"
)

// breakerDateLayout keys the daily reset.
const breakerDateLayout = "2006-01-02"

// BreakerStore persists circuit-breaker state across process restarts.
type BreakerStore interface {
	LoadBreakerState() (models.BreakerState, error)
	SaveBreakerState(models.BreakerState) error
}

// EvalInput carries the live readings the breaker rules test against.
type EvalInput struct {
	AccountValue  float64 `json:"account_value"`
	PortfolioRisk float64 `json:"portfolio_risk"` // total risk, dollars
	VolIndex      float64 `json:"vol_index"`
	// PositionLossPct maps position ID to its current fractional loss.
	PositionLossPct map[string]float64 `json:"position_loss_pct,omitempty"`
}

// Decision is the breaker verdict. Halted stays true for the rest of the
// trading day once any halting breaker has tripped.
type Decision struct {
	Halted           bool                `json:"halted"`
	Reason           string              `json:"reason,omitempty"`
	FlaggedPositions []string            `json:"flagged_positions,omitempty"`
	State            models.BreakerState `json:"state"`
}

// breakerRule is one ordered condition/decision pair. Rules are checked
// top to bottom; the first match trips.
type breakerRule struct {
	name  string
	check func(cfg config.BreakerConfig, state models.BreakerState, in EvalInput) (bool, string)
}

var haltRules = []breakerRule{
	{
		name: BreakerDailyLossAbs,
		check: func(cfg config.BreakerConfig, s models.BreakerState, _ EvalInput) (bool, string) {
			if cfg.MaxDailyLoss > 0 && s.DailyPnL <= -cfg.MaxDailyLoss {
				return true, fmt.Sprintf("daily loss %.2f exceeds limit %.2f", -s.DailyPnL, cfg.MaxDailyLoss)
			}
			return false, ""
		},
	},
	{
		name: BreakerDailyLossPct,
		check: func(cfg config.BreakerConfig, s models.BreakerState, in EvalInput) (bool, string) {
			limit := cfg.MaxDailyLossPct * in.AccountValue
			if cfg.MaxDailyLossPct > 0 && in.AccountValue > 0 && s.DailyPnL <= -limit {
				return true, fmt.Sprintf("daily loss %.2f exceeds %.1f%% of account", -s.DailyPnL, cfg.MaxDailyLossPct*100)
			}
			return false, ""
		},
	},
	{
		name: BreakerPortfolioRisk,
		check: func(cfg config.BreakerConfig, _ models.BreakerState, in EvalInput) (bool, string) {
			limit := cfg.MaxPortfolioRiskPct * in.AccountValue
			if cfg.MaxPortfolioRiskPct > 0 && in.AccountValue > 0 && in.PortfolioRisk > limit {
				return true, fmt.Sprintf("portfolio risk %.2f exceeds %.1f%% of account", in.PortfolioRisk, cfg.MaxPortfolioRiskPct*100)
			}
			return false, ""
		},
	},
	{
		name: BreakerVolSpike,
		check: func(cfg config.BreakerConfig, _ models.BreakerState, in EvalInput) (bool, string) {
			if cfg.VolIndexSpike > 0 && in.VolIndex >= cfg.VolIndexSpike {
				return true, fmt.Sprintf("volatility index %.1f at or above spike threshold %.1f", in.VolIndex, cfg.VolIndexSpike)
			}
			return false, ""
		},
	},
}

// Breakers evaluates trading circuit breakers against persisted daily
// state. The clock is injected so day-change resets are testable.
type Breakers struct {
	cfg    config.BreakerConfig
	store  BreakerStore
	now    func() time.Time
	logger *logrus.Logger
}

// NewBreakers creates the breaker engine. A nil clock uses time.Now.
func NewBreakers(cfg config.BreakerConfig, store BreakerStore, now func() time.Time, logger *logrus.Logger) *Breakers {
	if now == nil {
		now = time.Now
	}
	return &Breakers{cfg: cfg, store: store, now: now, logger: logger}
}

// currentState loads the persisted state, resetting it when the stored
// date differs from today.
func (b *Breakers) currentState() (models.BreakerState, error) {
	state, err := b.store.LoadBreakerState()
	if err != nil {
		return models.BreakerState{}, fmt.Errorf("loading breaker state: %w", err)
	}
	today := b.now().UTC().Format(breakerDateLayout)
	if state.LastReset != today {
		if b.logger != nil && state.LastReset != "" {
			b.logger.WithFields(logrus.Fields{
				"previous": state.LastReset,
				"today":    today,
			}).Info("resetting circuit breakers for new trading day")
		}
		state = models.BreakerState{LastReset: today}
		if err := b.save(state); err != nil {
			return models.BreakerState{}, err
		}
	}
	return state, nil
}

func (b *Breakers) save(state models.BreakerState) error {
	state.UpdatedAt = b.now().UTC()
	if err := b.store.SaveBreakerState(state); err != nil {
		return fmt.Errorf("saving breaker state: %w", err)
	}
	return nil
}

// RecordPnL accumulates realized P&L into the daily total.
func (b *Breakers) RecordPnL(delta float64) error {
	state, err := b.currentState()
	if err != nil {
		return err
	}
	state.DailyPnL += delta
	return b.save(state)
}

// RecordTrade increments the daily trade counter.
func (b *Breakers) RecordTrade() error {
	state, err := b.currentState()
	if err != nil {
		return err
	}
	state.TradesToday++
	return b.save(state)
}

// Evaluate runs the ordered halt rules; the first match trips and is
// persisted for the rest of the day. Single-position losses beyond the
// threshold are flagged but never halt trading on their own.
func (b *Breakers) Evaluate(in EvalInput) (Decision, error) {
	state, err := b.currentState()
	if err != nil {
		return Decision{}, err
	}

	decision := Decision{State: state}
	for _, rule := range haltRules {
		tripped, reason := rule.check(b.cfg, state, in)
		if !tripped {
			continue
		}
		decision.Halted = true
		decision.Reason = reason
		if !state.IsTripped(rule.name) {
			state.Trip(rule.name)
			if err := b.save(state); err != nil {
				return Decision{}, err
			}
			if b.logger != nil {
				b.logger.WithFields(logrus.Fields{
					"breaker": rule.name,
					"reason":  reason,
				}).Warn("circuit breaker tripped")
			}
		}
		decision.State = state
		break
	}

	// A breaker tripped earlier today keeps trading halted even if the
	// live reading has recovered.
	if !decision.Halted && len(state.Tripped) > 0 {
		decision.Halted = true
		decision.Reason = fmt.Sprintf("breaker %s tripped earlier today", state.Tripped[0])
	}

	if b.cfg.MaxPositionLossPct > 0 {
		for id, lossPct := range in.PositionLossPct {
			if lossPct >= b.cfg.MaxPositionLossPct {
				decision.FlaggedPositions = append(decision.FlaggedPositions, id)
			}
		}
		// Map iteration order is random; keep the output stable.
		sort.Strings(decision.FlaggedPositions)
	}
	return decision, nil
}
