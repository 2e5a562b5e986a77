package risk

import (
	"testing"
	"time"

	"github.com/eddiefleurent/chainlens/internal/config"
	"github.com/eddiefleurent/chainlens/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sizingExp = time.Date(2025, 7, 18, 0, 0, 0, 0, time.UTC)

func testRisk() config.RiskConfig {
	return config.RiskConfig{
		AccountValue:     100000,
		MaxRiskPct:       0.02,
		MinRewardRatio:   1.0,
		MinProbProfit:    0.30,
		MaxConcentration: 0.25,
	}
}

func testCosts() config.CostConfig {
	return config.CostConfig{
		CommissionPerContract: 0.65,
		RegFeePerContract:     0.05,
		SpreadCaptureRate:     0.5,
	}
}

// debitSpread is a 570/585 call spread: debit 5, width 15, max profit 10.
func debitSpread(prob float64) models.Strategy {
	return models.Strategy{
		Type:   models.StrategyBullVertical,
		Symbol: "SPY",
		Legs: []models.Leg{
			{Action: models.ActionBuy, Type: models.OptionTypeCall, Strike: 570, Expiration: sizingExp, Price: 8.50, Volume: 1000},
			{Action: models.ActionSell, Type: models.OptionTypeCall, Strike: 585, Expiration: sizingExp, Price: 3.50, Volume: 800},
		},
		NetDebit:          5.00,
		MaxProfit:         10.00,
		MaxRisk:           5.00,
		Breakevens:        []float64{575},
		ProbabilityProfit: prob,
	}
}

func TestSizeApproved(t *testing.T) {
	s := NewSizer(testRisk(), testCosts(), nil)

	res, err := s.Size(SizeRequest{Strategy: debitSpread(0.40)})
	require.NoError(t, err)
	require.True(t, res.Approved, res.Reason)

	// Two legs at $0.70 fees each.
	assert.InDelta(t, 1.40, res.CostPerContract, 1e-9)
	assert.InDelta(t, 501.40, res.AdjustedRisk, 1e-9)
	assert.InDelta(t, 998.60, res.AdjustedReward, 1e-9)
	assert.InDelta(t, 2000, res.MaxRiskDollars, 1e-9, "2% of 100k")

	// Risk budget allows floor(2000/501.40) = 3; concentration allows far more.
	assert.Equal(t, 3, res.Contracts)
	assert.InDelta(t, 3*501.40, res.CapitalRequired, 1e-9)

	wantKelly := (res.AdjustedRR*0.40 - 0.60) / res.AdjustedRR * 0.25
	assert.InDelta(t, wantKelly, res.KellyFraction, 1e-9)
}

func TestSizeRejectsThinRewardAfterCosts(t *testing.T) {
	s := NewSizer(testRisk(), testCosts(), nil)
	thin := debitSpread(0.40)
	thin.MaxProfit = 5.00 // reward ratio exactly 1 before costs, below after

	res, err := s.Size(SizeRequest{Strategy: thin})
	require.NoError(t, err)
	assert.False(t, res.Approved)
	assert.Contains(t, res.Reason, "reward ratio")
}

func TestSizeRejectsLowProbability(t *testing.T) {
	s := NewSizer(testRisk(), testCosts(), nil)

	res, err := s.Size(SizeRequest{Strategy: debitSpread(0.10)})
	require.NoError(t, err)
	assert.False(t, res.Approved)
	assert.Contains(t, res.Reason, "probability")
}

func TestSizeFloorsToOneContract(t *testing.T) {
	small := testRisk()
	small.AccountValue = 1000 // risk budget $20, below one contract

	res, err := NewSizer(small, testCosts(), nil).Size(SizeRequest{Strategy: debitSpread(0.40)})
	require.NoError(t, err)
	require.True(t, res.Approved)
	assert.Equal(t, 1, res.Contracts)
}

func TestSizeAppliesSlippageAboveThreshold(t *testing.T) {
	costs := testCosts()
	costs.SlippageThreshold = 2
	costs.SlippagePerContract = 50

	res, err := NewSizer(testRisk(), costs, nil).Size(SizeRequest{Strategy: debitSpread(0.40)})
	require.NoError(t, err)
	require.True(t, res.Approved)
	assert.InDelta(t, 51.40, res.CostPerContract, 1e-9, "fees plus market-impact slippage")
}

func TestSizeSpreadCaptureCost(t *testing.T) {
	s := NewSizer(testRisk(), testCosts(), nil)

	// $0.10 of total bid/ask width at 50% capture is $5 per contract.
	res, err := s.Size(SizeRequest{Strategy: debitSpread(0.40), LegSpreadTotal: 0.10})
	require.NoError(t, err)
	assert.InDelta(t, 1.40+5.00, res.CostPerContract, 1e-9)
}

func TestSizeCreditStrategyCapital(t *testing.T) {
	condor := models.Strategy{
		Type:   models.StrategyIronCondor,
		Symbol: "XYZ",
		Legs: []models.Leg{
			{Action: models.ActionSell, Type: models.OptionTypeCall, Strike: 105, Expiration: sizingExp, Price: 2.50},
			{Action: models.ActionBuy, Type: models.OptionTypeCall, Strike: 110, Expiration: sizingExp, Price: 1.20},
			{Action: models.ActionSell, Type: models.OptionTypePut, Strike: 95, Expiration: sizingExp, Price: 2.30},
			{Action: models.ActionBuy, Type: models.OptionTypePut, Strike: 90, Expiration: sizingExp, Price: 1.00},
		},
		NetCredit:         2.60,
		MaxProfit:         2.60,
		MaxRisk:           2.40,
		Breakevens:        []float64{92.40, 107.60},
		ProbabilityProfit: 0.32,
	}

	res, err := NewSizer(testRisk(), testCosts(), nil).Size(SizeRequest{Strategy: condor})
	require.NoError(t, err)
	require.True(t, res.Approved, res.Reason)
	// Credit spreads hold margin equal to max risk, not the premium.
	assert.InDelta(t, 242.80, res.CapitalRequired/float64(res.Contracts), 1e-9)
}

func TestSizerClampsRiskConfig(t *testing.T) {
	wild := testRisk()
	wild.MaxRiskPct = 0.50 // clamped to 0.10

	res, err := NewSizer(wild, testCosts(), nil).Size(SizeRequest{Strategy: debitSpread(0.40)})
	require.NoError(t, err)
	assert.InDelta(t, 10000, res.MaxRiskDollars, 1e-9, "budget uses the clamped boundary")
}

func TestKelly(t *testing.T) {
	tests := []struct {
		name  string
		p, b  float64
		want  float64
	}{
		{"even odds favorable", 0.60, 2.0, 0.40},
		{"unfavorable goes to zero", 0.30, 1.0, 0},
		{"zero prob", 0, 2, 0},
		{"negative prob", -0.5, 2, 0},
		{"prob of one", 1, 2, 0},
		{"zero ratio", 0.6, 0, 0},
		{"negative ratio", 0.6, -3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Kelly(tt.p, tt.b), 1e-9)
		})
	}
}

func TestKellyAlwaysInUnitInterval(t *testing.T) {
	for _, p := range []float64{-1, 0, 0.01, 0.25, 0.5, 0.75, 0.99, 1, 2} {
		for _, b := range []float64{-5, 0, 0.1, 0.5, 1, 3, 100, 1e9} {
			f := Kelly(p, b)
			assert.GreaterOrEqual(t, f, 0.0)
			assert.LessOrEqual(t, f, 1.0)
		}
	}
}
