// Package risk covers position sizing, portfolio Greek aggregation, and
// trading circuit breakers.
package risk

import (
	"fmt"
	"math"

	"github.com/eddiefleurent/chainlens/internal/config"
	"github.com/eddiefleurent/chainlens/internal/models"
	"github.com/eddiefleurent/chainlens/internal/util"
	"github.com/sirupsen/logrus"
)

// quarterKelly is the fixed fractional-Kelly multiplier. Full Kelly is
// far too aggressive for spread overlays with estimated probabilities.
const quarterKelly = 0.25

// SizeRequest asks for a contract count on one strategy.
type SizeRequest struct {
	Strategy models.Strategy `json:"strategy"`
	// LegSpreadTotal is the summed per-share bid/ask width across legs,
	// used for the spread-capture cost term. Zero means no spread cost.
	LegSpreadTotal float64 `json:"leg_spread_total"`
}

// SizeResult is the sizing outcome. Rejections are values: callers must
// check Approved before using the contract count.
type SizeResult struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`

	Contracts     int     `json:"contracts"`
	KellyFraction float64 `json:"kelly_fraction"` // quarter-Kelly, in [0,1]

	CostPerContract float64 `json:"cost_per_contract"` // fees+spread+slippage, dollars
	AdjustedRisk    float64 `json:"adjusted_risk"`     // per contract, dollars
	AdjustedReward  float64 `json:"adjusted_reward"`   // per contract, dollars
	AdjustedRR      float64 `json:"adjusted_rr"`
	MaxRiskDollars  float64 `json:"max_risk_dollars"`
	CapitalRequired float64 `json:"capital_required"`
}

// Sizer computes cost-adjusted position sizes under account risk limits.
type Sizer struct {
	risk   config.RiskConfig
	costs  config.CostConfig
	logger *logrus.Logger
}

// NewSizer creates a sizer. The risk config is normalized (clamped into
// documented bounds) before use; clamp warnings are logged.
func NewSizer(risk config.RiskConfig, costs config.CostConfig, logger *logrus.Logger) *Sizer {
	for _, w := range risk.Normalize() {
		if logger != nil {
			logger.Warn(w)
		}
	}
	return &Sizer{risk: risk, costs: costs, logger: logger}
}

// Size runs the full sizing pipeline: transaction-cost adjustment,
// threshold checks, budget-bounded contract count, and the Kelly
// fraction. Slippage is applied in a second pass once the first-pass
// count crosses the threshold.
func (s *Sizer) Size(req SizeRequest) (SizeResult, error) {
	strat := &req.Strategy
	if err := strat.Validate(); err != nil {
		return SizeResult{}, err
	}
	if strat.MaxRisk <= 0 {
		return SizeResult{}, fmt.Errorf("sizing %s: max risk must be positive", strat.Type)
	}

	res := s.size(strat, req.LegSpreadTotal, 0)
	if res.Approved && s.costs.SlippageThreshold > 0 && res.Contracts >= s.costs.SlippageThreshold {
		res = s.size(strat, req.LegSpreadTotal, s.costs.SlippagePerContract)
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"strategy":  strat.Description(),
			"approved":  res.Approved,
			"contracts": res.Contracts,
			"kelly":     res.KellyFraction,
		}).Debug("sizing complete")
	}
	return res, nil
}

func (s *Sizer) size(strat *models.Strategy, legSpread, slippage float64) SizeResult {
	costPerContract := s.transactionCost(len(strat.Legs), legSpread, slippage)

	riskPerContract := strat.MaxRisk*models.SharesPerContract + costPerContract
	rewardPerContract := strat.MaxProfit*models.SharesPerContract - costPerContract
	if strat.IsUnboundedProfit() {
		rewardPerContract = math.Inf(1)
	}

	res := SizeResult{
		CostPerContract: costPerContract,
		AdjustedRisk:    riskPerContract,
		AdjustedReward:  rewardPerContract,
		MaxRiskDollars:  s.risk.AccountValue * s.risk.MaxRiskPct,
	}
	if riskPerContract > 0 {
		res.AdjustedRR = rewardPerContract / riskPerContract
	}

	if res.AdjustedRR < s.risk.MinRewardRatio {
		res.Reason = fmt.Sprintf("cost-adjusted reward ratio %.2f below minimum %.2f", res.AdjustedRR, s.risk.MinRewardRatio)
		return res
	}
	if strat.ProbabilityProfit < s.risk.MinProbProfit {
		res.Reason = fmt.Sprintf("probability of profit %.2f below minimum %.2f", strat.ProbabilityProfit, s.risk.MinProbProfit)
		return res
	}

	// Capital committed per contract: the debit paid, or the margin held
	// against a credit position, plus transaction costs.
	capitalPerContract := strat.NetDebit * models.SharesPerContract
	if strat.IsCredit() {
		capitalPerContract = strat.MaxRisk * models.SharesPerContract
	}
	capitalPerContract += costPerContract

	maxPositionDollars := s.risk.AccountValue * s.risk.MaxConcentration
	byRisk := int(math.Floor(res.MaxRiskDollars / riskPerContract))
	byCapital := int(math.Floor(maxPositionDollars / capitalPerContract))

	contracts := byRisk
	if byCapital < contracts {
		contracts = byCapital
	}
	if contracts < 1 {
		contracts = 1
	}

	res.Approved = true
	res.Contracts = contracts
	res.CapitalRequired = float64(contracts) * capitalPerContract
	res.KellyFraction = Kelly(strat.ProbabilityProfit, res.AdjustedRR) * quarterKelly
	return res
}

// transactionCost returns the per-contract dollar cost: per-leg
// commission and regulatory fees, the captured share of the bid/ask
// spread, and optional market-impact slippage.
func (s *Sizer) transactionCost(legs int, legSpread, slippage float64) float64 {
	fees := float64(legs) * (s.costs.CommissionPerContract + s.costs.RegFeePerContract)
	spreadCost := legSpread * s.costs.SpreadCaptureRate * models.SharesPerContract
	return fees + spreadCost + slippage
}

// Kelly returns the raw Kelly fraction (b*p - q)/b clamped to [0,1].
// Degenerate inputs (p outside (0,1), non-positive ratio) return 0.
func Kelly(winProb, winLossRatio float64) float64 {
	if winProb <= 0 || winProb >= 1 || winLossRatio <= 0 {
		return 0
	}
	if math.IsInf(winLossRatio, 1) {
		return util.Clamp(winProb, 0, 1)
	}
	f := (winLossRatio*winProb - (1 - winProb)) / winLossRatio
	return util.Clamp(f, 0, 1)
}
