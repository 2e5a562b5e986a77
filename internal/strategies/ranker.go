package strategies

import (
	"math"
	"sort"

	"github.com/eddiefleurent/chainlens/internal/models"
	"github.com/eddiefleurent/chainlens/internal/util"
	"github.com/sirupsen/logrus"
)

// Preference tilts the composite score toward a trading style.
type Preference string

const (
	// PreferenceNone applies no style bonus.
	PreferenceNone Preference = ""
	// PreferenceAggressive rewards high max-profit-to-risk candidates.
	PreferenceAggressive Preference = "aggressive"
	// PreferenceConservative rewards high probability of profit.
	PreferenceConservative Preference = "conservative"
)

// RankConfig holds the filter thresholds and style preference.
type RankConfig struct {
	MinRewardRatio float64 // minimum max_profit/max_risk
	MinProbProfit  float64 // minimum probability of profit
	MaxRiskDollars float64 // per-spread dollar risk cap (0 disables)
	Preference     Preference
}

// Composite score weights. Reward ratio is normalized against a 5:1
// reference and capped so unbounded-profit strategies cannot dominate.
const (
	weightReward      = 0.40
	weightProbability = 0.30
	weightEV          = 0.20
	weightLiquidity   = 0.10

	rewardRatioScale  = 5.0
	liquidityFullVol  = 1000.0
	preferenceBonus   = 0.10
	aggressiveRRScale = 10.0
)

// Ranked pairs a strategy with its composite score.
type Ranked struct {
	Strategy models.Strategy `json:"strategy"`
	Score    float64         `json:"score"`
}

// Rejection records why a candidate was filtered out.
type Rejection struct {
	Strategy models.Strategy `json:"strategy"`
	Reason   string          `json:"reason"`
}

// RankResult is the filtered, score-ordered candidate list.
type RankResult struct {
	Ranked   []Ranked    `json:"ranked"`
	Rejected []Rejection `json:"rejected"`
}

// Ranker filters and scores candidate strategies.
type Ranker struct {
	cfg    RankConfig
	logger *logrus.Logger
}

// NewRanker creates a ranker.
func NewRanker(cfg RankConfig, logger *logrus.Logger) *Ranker {
	return &Ranker{cfg: cfg, logger: logger}
}

// Rank validates, filters, scores, and orders the candidates best-first.
// Invalid strategies and threshold failures land in Rejected with the
// reason; they never abort the run.
func (r *Ranker) Rank(candidates []models.Strategy) *RankResult {
	result := &RankResult{}
	for _, s := range candidates {
		if err := s.Validate(); err != nil {
			result.Rejected = append(result.Rejected, Rejection{Strategy: s, Reason: err.Error()})
			continue
		}
		if reason := r.filterReason(&s); reason != "" {
			result.Rejected = append(result.Rejected, Rejection{Strategy: s, Reason: reason})
			continue
		}
		result.Ranked = append(result.Ranked, Ranked{Strategy: s, Score: r.Score(&s)})
	}

	sort.SliceStable(result.Ranked, func(i, j int) bool {
		return result.Ranked[i].Score > result.Ranked[j].Score
	})

	if r.logger != nil {
		r.logger.WithFields(logrus.Fields{
			"ranked":   len(result.Ranked),
			"rejected": len(result.Rejected),
		}).Debug("ranking complete")
	}
	return result
}

func (r *Ranker) filterReason(s *models.Strategy) string {
	if rr := s.RiskReward(); rr < r.cfg.MinRewardRatio {
		return "reward ratio below minimum"
	}
	if s.ProbabilityProfit < r.cfg.MinProbProfit {
		return "probability of profit below minimum"
	}
	if r.cfg.MaxRiskDollars > 0 && s.MaxRisk*models.SharesPerContract > r.cfg.MaxRiskDollars {
		return "max risk above dollar cap"
	}
	return ""
}

// Score computes the composite: 40% normalized reward ratio, 30%
// probability of profit, 20% expected value per unit risk, 10% leg
// liquidity, plus the style bonus.
func (r *Ranker) Score(s *models.Strategy) float64 {
	rr := s.RiskReward()
	rewardTerm := math.Min(rr/rewardRatioScale, 1)

	evTerm := 0.0
	if s.MaxRisk > 0 {
		evTerm = util.Clamp(s.ExpectedValue()/s.MaxRisk, -1, 1)
	}

	liquidityTerm := math.Min(s.AvgLegVolume()/liquidityFullVol, 1)

	score := weightReward*rewardTerm +
		weightProbability*s.ProbabilityProfit +
		weightEV*evTerm +
		weightLiquidity*liquidityTerm

	switch r.cfg.Preference {
	case PreferenceAggressive:
		score += preferenceBonus * math.Min(rr/aggressiveRRScale, 1)
	case PreferenceConservative:
		score += preferenceBonus * s.ProbabilityProfit
	}
	return score
}
