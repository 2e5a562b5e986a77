// Package projection computes strategy P&L projections: a deterministic
// expiration payoff grid and a Monte Carlo distribution with VaR.
package projection

import (
	"fmt"
	"math"
	"sort"

	"github.com/eddiefleurent/chainlens/internal/config"
	"github.com/eddiefleurent/chainlens/internal/models"
	"github.com/eddiefleurent/chainlens/internal/pricing"
	"github.com/eddiefleurent/chainlens/internal/risk"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// breakevenEpsilon separates profitable and losing outcomes from
// breakeven ones, in dollars.
const breakevenEpsilon = 0.01

// GridPoint is one deterministic payoff sample.
type GridPoint struct {
	Price float64 `json:"price"`
	PnL   float64 `json:"pnl"`
}

// MCRequest parameterizes one Monte Carlo run. The walk accumulates a
// daily price return draw and a daily IV-change draw over the horizon,
// then evaluates the Greek approximation at the accumulated totals.
type MCRequest struct {
	Greeks     risk.NetGreeks `json:"greeks"`
	Underlying float64        `json:"underlying"`
	DailyVol   float64        `json:"daily_vol"`    // stddev of daily return
	DailyDrift float64        `json:"daily_drift"`  // mean daily return
	IVDailyVol float64        `json:"iv_daily_vol"` // stddev of daily IV change, vol points
}

// MCResult summarizes the simulated P&L distribution. VaR figures are
// P&L values at the loss-tail percentiles, not positive loss magnitudes.
type MCResult struct {
	Paths      int     `json:"paths"`
	Mean       float64 `json:"mean"`
	Median     float64 `json:"median"`
	VaR95      float64 `json:"var95"`
	VaR99      float64 `json:"var99"`
	Profitable int     `json:"profitable"`
	Breakeven  int     `json:"breakeven"`
	Losing     int     `json:"losing"`
}

// Projector runs P&L projections. The random source is seeded at
// construction so runs are reproducible.
type Projector struct {
	cfg    config.SimulationConfig
	src    rand.Source
	logger *logrus.Logger
}

// NewProjector creates a projector with a deterministic seed.
func NewProjector(cfg config.SimulationConfig, seed uint64, logger *logrus.Logger) *Projector {
	if cfg.Paths <= 0 {
		cfg.Paths = 10000
	}
	if cfg.GridPoints <= 0 {
		cfg.GridPoints = 21
	}
	if cfg.GridRangePct <= 0 {
		cfg.GridRangePct = 0.10
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 30
	}
	return &Projector{cfg: cfg, src: rand.NewSource(seed), logger: logger}
}

// Grid evaluates the strategy's expiration payoff at evenly spaced
// underlying prices across the configured range around spot. Each leg
// contributes (intrinsic - entry price) * sign * contracts * 100.
func (p *Projector) Grid(strat *models.Strategy, contracts int, spot float64) ([]GridPoint, error) {
	if err := strat.Validate(); err != nil {
		return nil, err
	}
	if spot <= 0 {
		return nil, fmt.Errorf("projection: spot must be positive, got %.2f", spot)
	}
	if contracts < 1 {
		contracts = 1
	}

	lo := spot * (1 - p.cfg.GridRangePct)
	hi := spot * (1 + p.cfg.GridRangePct)
	step := 0.0
	if p.cfg.GridPoints > 1 {
		step = (hi - lo) / float64(p.cfg.GridPoints-1)
	}

	points := make([]GridPoint, 0, p.cfg.GridPoints)
	for i := 0; i < p.cfg.GridPoints; i++ {
		price := lo + float64(i)*step
		pnl := 0.0
		for _, leg := range strat.Legs {
			value := pricing.Intrinsic(price, leg.Strike, leg.Type)
			pnl += (value - leg.Price) * leg.Action.Sign()
		}
		points = append(points, GridPoint{
			Price: price,
			PnL:   pnl * models.SharesPerContract * float64(contracts),
		})
	}
	return points, nil
}

// MonteCarlo simulates the configured number of paths and summarizes the
// resulting P&L distribution. With zero vol and zero drift every path
// collapses to the pure theta decay, so VaR equals the theta-only P&L.
func (p *Projector) MonteCarlo(req MCRequest) (MCResult, error) {
	if req.Underlying <= 0 {
		return MCResult{}, fmt.Errorf("projection: underlying must be positive, got %.2f", req.Underlying)
	}
	if req.DailyVol < 0 || req.IVDailyVol < 0 {
		return MCResult{}, fmt.Errorf("projection: volatility inputs must be non-negative")
	}

	returnDist := distuv.Normal{Mu: req.DailyDrift, Sigma: req.DailyVol, Src: p.src}
	ivDist := distuv.Normal{Mu: 0, Sigma: req.IVDailyVol, Src: p.src}
	days := float64(p.cfg.HorizonDays)

	pnls := make([]float64, p.cfg.Paths)
	result := MCResult{Paths: p.cfg.Paths}
	for i := range pnls {
		totalReturn, totalIVChange := 0.0, 0.0
		for d := 0; d < p.cfg.HorizonDays; d++ {
			if req.DailyVol > 0 || req.DailyDrift != 0 {
				totalReturn += returnDist.Rand()
			}
			if req.IVDailyVol > 0 {
				totalIVChange += ivDist.Rand()
			}
		}

		move := totalReturn * req.Underlying
		// Vega is per vol point, matching the provider quoting.
		pnl := req.Greeks.Delta*move +
			0.5*req.Greeks.Gamma*move*move +
			req.Greeks.Theta*days +
			req.Greeks.Vega*totalIVChange
		if math.IsNaN(pnl) {
			pnl = 0
		}
		pnls[i] = pnl

		switch {
		case pnl > breakevenEpsilon:
			result.Profitable++
		case pnl < -breakevenEpsilon:
			result.Losing++
		default:
			result.Breakeven++
		}
	}

	sort.Float64s(pnls)
	result.Mean = stat.Mean(pnls, nil)
	result.Median = stat.Quantile(0.5, stat.Empirical, pnls, nil)
	result.VaR95 = stat.Quantile(0.05, stat.Empirical, pnls, nil)
	result.VaR99 = stat.Quantile(0.01, stat.Empirical, pnls, nil)

	if p.logger != nil {
		p.logger.WithFields(logrus.Fields{
			"paths": result.Paths,
			"mean":  result.Mean,
			"var95": result.VaR95,
		}).Debug("monte carlo projection complete")
	}
	return result, nil
}
