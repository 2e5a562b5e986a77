package strategies

import (
	"testing"

	"github.com/eddiefleurent/chainlens/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rankFixture is a valid 570/580 debit call spread: debit 5, width 10,
// max profit 5, reward ratio 1.
func rankFixture(prob float64, volume int64) models.Strategy {
	return models.Strategy{
		Type:   models.StrategyBullVertical,
		Symbol: "SPY",
		Legs: []models.Leg{
			{Action: models.ActionBuy, Type: models.OptionTypeCall, Strike: 570, Expiration: testExpDate, Price: 8.50, Volume: volume},
			{Action: models.ActionSell, Type: models.OptionTypeCall, Strike: 580, Expiration: testExpDate, Price: 3.50, Volume: volume},
		},
		NetDebit:          5.00,
		MaxProfit:         5.00,
		MaxRisk:           5.00,
		Breakevens:        []float64{575},
		ProbabilityProfit: prob,
	}
}

func TestScoreComposite(t *testing.T) {
	r := NewRanker(RankConfig{}, nil)
	s := rankFixture(0.40, 1500)

	// 0.4*(1/5) + 0.3*0.4 + 0.2*(EV/risk = -0.2) + 0.1*1 = 0.26
	assert.InDelta(t, 0.26, r.Score(&s), 1e-9)
}

func TestScorePreferenceBonus(t *testing.T) {
	s := rankFixture(0.40, 1500)

	base := NewRanker(RankConfig{}, nil).Score(&s)
	conservative := NewRanker(RankConfig{Preference: PreferenceConservative}, nil).Score(&s)
	aggressive := NewRanker(RankConfig{Preference: PreferenceAggressive}, nil).Score(&s)

	assert.InDelta(t, base+0.1*0.40, conservative, 1e-9, "conservative rewards probability")
	assert.InDelta(t, base+0.1*(1.0/10), aggressive, 1e-9, "aggressive rewards reward ratio")
}

func TestRankOrdersByScore(t *testing.T) {
	r := NewRanker(RankConfig{}, nil)
	low := rankFixture(0.40, 1500)
	high := rankFixture(0.60, 1500)

	res := r.Rank([]models.Strategy{low, high})
	require.Len(t, res.Ranked, 2)
	assert.Greater(t, res.Ranked[0].Score, res.Ranked[1].Score)
	assert.InDelta(t, 0.60, res.Ranked[0].Strategy.ProbabilityProfit, 1e-9)
}

func TestRankFilters(t *testing.T) {
	tests := []struct {
		name string
		cfg  RankConfig
	}{
		{"reward ratio", RankConfig{MinRewardRatio: 1.5}},
		{"probability", RankConfig{MinProbProfit: 0.50}},
		{"dollar risk cap", RankConfig{MaxRiskDollars: 400}}, // risk is $500
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewRanker(tt.cfg, nil).Rank([]models.Strategy{rankFixture(0.40, 1500)})
			assert.Empty(t, res.Ranked)
			require.Len(t, res.Rejected, 1)
			assert.NotEmpty(t, res.Rejected[0].Reason)
		})
	}
}

func TestRankRejectsInvalidStrategy(t *testing.T) {
	bad := rankFixture(0.40, 1500)
	bad.NetDebit = 0 // neither debit nor credit set

	res := NewRanker(RankConfig{}, nil).Rank([]models.Strategy{bad})
	assert.Empty(t, res.Ranked)
	require.Len(t, res.Rejected, 1)
	assert.Contains(t, res.Rejected[0].Reason, "neither net debit nor net credit")
}

func TestScoreCapsUnboundedReward(t *testing.T) {
	r := NewRanker(RankConfig{}, nil)
	s := rankFixture(0.40, 1500)
	s.MaxProfit = models.UnboundedProfit

	score := r.Score(&s)
	assert.False(t, score > 1.0, "unbounded profit must not blow up the score")
}
