package projection

import (
	"testing"
	"time"

	"github.com/eddiefleurent/chainlens/internal/config"
	"github.com/eddiefleurent/chainlens/internal/models"
	"github.com/eddiefleurent/chainlens/internal/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bullCallSpread() *models.Strategy {
	exp := time.Date(2025, 7, 18, 0, 0, 0, 0, time.UTC)
	return &models.Strategy{
		Type:   models.StrategyBullVertical,
		Symbol: "SPY",
		Legs: []models.Leg{
			{Action: models.ActionBuy, Type: models.OptionTypeCall, Strike: 570, Expiration: exp, Price: 8.50},
			{Action: models.ActionSell, Type: models.OptionTypeCall, Strike: 580, Expiration: exp, Price: 3.50},
		},
		NetDebit:          5.00,
		MaxProfit:         5.00,
		MaxRisk:           5.00,
		Breakevens:        []float64{575},
		ProbabilityProfit: 0.40,
	}
}

func TestGridPayoff(t *testing.T) {
	p := NewProjector(config.SimulationConfig{GridPoints: 5, GridRangePct: 0.10}, 1, nil)

	grid, err := p.Grid(bullCallSpread(), 1, 575)
	require.NoError(t, err)
	require.Len(t, grid, 5)

	assert.InDelta(t, 517.50, grid[0].Price, 1e-9)
	assert.InDelta(t, -500, grid[0].PnL, 1e-9, "both legs expire worthless, full debit lost")

	assert.InDelta(t, 575.00, grid[2].Price, 1e-9)
	assert.InDelta(t, 0, grid[2].PnL, 1e-9, "breakeven at long strike plus debit")

	assert.InDelta(t, 632.50, grid[4].Price, 1e-9)
	assert.InDelta(t, 500, grid[4].PnL, 1e-9, "capped at width minus debit")
}

func TestGridScalesByContracts(t *testing.T) {
	p := NewProjector(config.SimulationConfig{GridPoints: 3, GridRangePct: 0.10}, 1, nil)

	grid, err := p.Grid(bullCallSpread(), 4, 575)
	require.NoError(t, err)
	assert.InDelta(t, -2000, grid[0].PnL, 1e-9)
}

func TestGridRejectsBadSpot(t *testing.T) {
	p := NewProjector(config.SimulationConfig{}, 1, nil)
	_, err := p.Grid(bullCallSpread(), 1, 0)
	assert.Error(t, err)
}

func TestMonteCarloZeroVolIsThetaOnly(t *testing.T) {
	p := NewProjector(config.SimulationConfig{Paths: 500, HorizonDays: 30}, 42, nil)

	res, err := p.MonteCarlo(MCRequest{
		Greeks:     risk.NetGreeks{Delta: 120, Gamma: 2, Theta: -50, Vega: 10},
		Underlying: 575,
	})
	require.NoError(t, err)

	// No randomness: every path is pure theta decay over the horizon.
	want := -50.0 * 30
	assert.InDelta(t, want, res.VaR95, 1e-9)
	assert.InDelta(t, want, res.VaR99, 1e-9)
	assert.InDelta(t, want, res.Mean, 1e-9)
	assert.InDelta(t, want, res.Median, 1e-9)
	assert.Equal(t, 500, res.Losing)
	assert.Zero(t, res.Profitable)
}

func TestMonteCarloDeterministicForSeed(t *testing.T) {
	req := MCRequest{
		Greeks:     risk.NetGreeks{Delta: 100, Theta: -20, Vega: 50},
		Underlying: 575,
		DailyVol:   0.01,
		IVDailyVol: 0.2,
	}
	cfg := config.SimulationConfig{Paths: 1000, HorizonDays: 10}

	a, err := NewProjector(cfg, 7, nil).MonteCarlo(req)
	require.NoError(t, err)
	b, err := NewProjector(cfg, 7, nil).MonteCarlo(req)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMonteCarloTailOrdering(t *testing.T) {
	p := NewProjector(config.SimulationConfig{Paths: 2000, HorizonDays: 10}, 99, nil)

	res, err := p.MonteCarlo(MCRequest{
		Greeks:     risk.NetGreeks{Delta: 100, Theta: -20},
		Underlying: 575,
		DailyVol:   0.01,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, res.VaR99, res.VaR95)
	assert.LessOrEqual(t, res.VaR95, res.Median)
	assert.Equal(t, res.Paths, res.Profitable+res.Breakeven+res.Losing)
}

func TestMonteCarloDriftLiftsMean(t *testing.T) {
	p := NewProjector(config.SimulationConfig{Paths: 2000, HorizonDays: 30}, 3, nil)

	res, err := p.MonteCarlo(MCRequest{
		Greeks:     risk.NetGreeks{Delta: 100},
		Underlying: 575,
		DailyVol:   0.005,
		DailyDrift: 0.002,
	})
	require.NoError(t, err)
	assert.Positive(t, res.Mean, "positive drift on a long-delta book")
}

func TestMonteCarloRejectsNegativeVol(t *testing.T) {
	p := NewProjector(config.SimulationConfig{Paths: 10, HorizonDays: 5}, 1, nil)
	_, err := p.MonteCarlo(MCRequest{Underlying: 575, DailyVol: -0.1})
	assert.Error(t, err)
}
