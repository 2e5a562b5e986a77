package risk

import (
	"fmt"
	"math"

	"github.com/eddiefleurent/chainlens/internal/models"
	"github.com/sirupsen/logrus"
)

// deltaNeutralBand is the net-delta band (in share-equivalents) treated
// as directionally neutral.
const deltaNeutralBand = 50.0

// NetGreeks are portfolio-level sensitivities in dollar terms per unit
// move (delta per $1, theta per day, vega per vol point).
type NetGreeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// Scenario is one stress scenario applied to the aggregated Greeks.
type Scenario struct {
	Name         string  `json:"name"`
	PriceMovePct float64 `json:"price_move_pct"` // signed fraction
	IVChangePts  float64 `json:"iv_change_pts"`  // vol points
	DaysForward  float64 `json:"days_forward"`
}

// ScenarioPnL is the Greek-approximated P&L of one scenario.
type ScenarioPnL struct {
	Scenario Scenario `json:"scenario"`
	DeltaPnL float64  `json:"delta_pnl"`
	GammaPnL float64  `json:"gamma_pnl"`
	ThetaPnL float64  `json:"theta_pnl"`
	VegaPnL  float64  `json:"vega_pnl"`
	Total    float64  `json:"total"`
}

// PortfolioRisk is the aggregated risk picture across open positions.
type PortfolioRisk struct {
	Positions     int         `json:"positions"`
	Greeks        NetGreeks   `json:"greeks"`
	DirectionBias string      `json:"direction_bias"` // bullish | bearish | neutral
	GammaProfile  string      `json:"gamma_profile"`  // long_gamma | short_gamma | flat
	ThetaProfile  string      `json:"theta_profile"`  // collecting | paying | flat
	TotalRisk     float64     `json:"total_risk"` // summed max risk, dollars
}

// StressResult is the full stress-test output.
type StressResult struct {
	Scenarios []ScenarioPnL `json:"scenarios"`
	Worst     ScenarioPnL   `json:"worst"`
}

// DefaultStressScenarios is the standard stress set: price shocks, vol
// shocks, a crash, and a week of decay.
func DefaultStressScenarios() []Scenario {
	return []Scenario{
		{Name: "down_5", PriceMovePct: -0.05},
		{Name: "down_10", PriceMovePct: -0.10},
		{Name: "up_5", PriceMovePct: 0.05},
		{Name: "up_10", PriceMovePct: 0.10},
		{Name: "vol_spike_10", IVChangePts: 10},
		{Name: "vol_crush_10", IVChangePts: -10},
		{Name: "crash", PriceMovePct: -0.15, IVChangePts: 20},
		{Name: "week_decay", DaysForward: 5},
	}
}

// Aggregator computes portfolio-level Greeks and stress P&L.
type Aggregator struct {
	logger *logrus.Logger
}

// NewAggregator creates a portfolio aggregator.
func NewAggregator(logger *logrus.Logger) *Aggregator {
	return &Aggregator{logger: logger}
}

// Aggregate nets the Greeks of all open positions: each leg contributes
// greek * sign * contracts * 100.
func (a *Aggregator) Aggregate(positions []models.Position) PortfolioRisk {
	risk := PortfolioRisk{}
	for _, p := range positions {
		if p.Status != models.StatusOpen {
			continue
		}
		risk.Positions++
		scale := float64(p.Contracts) * models.SharesPerContract
		for _, leg := range p.Legs {
			sign := leg.Action.Sign()
			risk.Greeks.Delta += leg.Greeks.Delta * sign * scale
			risk.Greeks.Gamma += leg.Greeks.Gamma * sign * scale
			risk.Greeks.Theta += leg.Greeks.Theta * sign * scale
			risk.Greeks.Vega += leg.Greeks.Vega * sign * scale
		}
		risk.TotalRisk += p.MaxRisk * models.SharesPerContract * float64(p.Contracts)
	}

	risk.DirectionBias = classify(risk.Greeks.Delta, deltaNeutralBand, "bullish", "bearish", "neutral")
	risk.GammaProfile = classify(risk.Greeks.Gamma, 1e-9, "long_gamma", "short_gamma", "flat")
	risk.ThetaProfile = classify(risk.Greeks.Theta, 1e-9, "collecting", "paying", "flat")
	if a.logger != nil {
		a.logger.WithFields(logrus.Fields{
			"positions": risk.Positions,
			"net_delta": risk.Greeks.Delta,
			"bias":      risk.DirectionBias,
		}).Debug("portfolio aggregated")
	}
	return risk
}

func classify(v, band float64, positive, negative, flat string) string {
	switch {
	case v > band:
		return positive
	case v < -band:
		return negative
	default:
		return flat
	}
}

// ScenarioPnL evaluates one scenario against the net Greeks using the
// linear/quadratic approximation:
//
//	delta_pnl = net_delta * move
//	gamma_pnl = 0.5 * net_gamma * move^2
//	theta_pnl = net_theta * days
//	vega_pnl  = net_vega * iv_change_pts
//
// where move = price_move_pct * underlying_price.
func (a *Aggregator) ScenarioPnL(greeks NetGreeks, underlying float64, sc Scenario) ScenarioPnL {
	move := sc.PriceMovePct * underlying
	out := ScenarioPnL{
		Scenario: sc,
		DeltaPnL: greeks.Delta * move,
		GammaPnL: 0.5 * greeks.Gamma * move * move,
		ThetaPnL: greeks.Theta * sc.DaysForward,
		// Vega is quoted per vol point (BS vega / 100), so IVChangePts
		// multiplies directly.
		VegaPnL: greeks.Vega * sc.IVChangePts,
	}
	out.Total = out.DeltaPnL + out.GammaPnL + out.ThetaPnL + out.VegaPnL
	if math.IsNaN(out.Total) {
		out.Total = 0
	}
	return out
}

// StressTest runs the scenario set against the portfolio and reports the
// worst total.
func (a *Aggregator) StressTest(positions []models.Position, underlying float64, scenarios []Scenario) (StressResult, error) {
	if underlying <= 0 {
		return StressResult{}, fmt.Errorf("stress test: underlying price must be positive, got %.2f", underlying)
	}
	if len(scenarios) == 0 {
		scenarios = DefaultStressScenarios()
	}
	greeks := a.Aggregate(positions).Greeks

	result := StressResult{Scenarios: make([]ScenarioPnL, 0, len(scenarios))}
	worst := math.Inf(1)
	for _, sc := range scenarios {
		pnl := a.ScenarioPnL(greeks, underlying, sc)
		result.Scenarios = append(result.Scenarios, pnl)
		if pnl.Total < worst {
			worst = pnl.Total
			result.Worst = pnl
		}
	}
	return result, nil
}
