// Package exposure derives dealer-positioning analytics from an option
// chain snapshot: put/call ratios, gamma and vega exposure, max pain, and
// open-interest walls.
package exposure

import (
	"math"
	"sort"

	"github.com/eddiefleurent/chainlens/internal/models"
	"github.com/sirupsen/logrus"
)

// GammaRegime classifies the dealer hedging regime implied by total GEX.
type GammaRegime string

const (
	// RegimePositiveGamma means dealer hedging dampens moves.
	RegimePositiveGamma GammaRegime = "Positive Gamma"
	// RegimeNegativeGamma means dealer hedging amplifies moves.
	RegimeNegativeGamma GammaRegime = "Negative Gamma"
)

// defaultWallCount is how many top open-interest strikes per side are
// reported as walls.
const defaultWallCount = 5

// StrikeExposure aggregates dealer exposure at one strike.
type StrikeExposure struct {
	Strike float64 `json:"strike"`
	GEX    float64 `json:"gex"`
	VEX    float64 `json:"vex"`
	CallOI int64   `json:"call_oi"`
	PutOI  int64   `json:"put_oi"`
}

// Wall is a strike with concentrated open interest on one side.
type Wall struct {
	Strike       float64 `json:"strike"`
	OpenInterest int64   `json:"open_interest"`
}

// Result is the full exposure picture for one chain snapshot.
type Result struct {
	Symbol             string             `json:"symbol"`
	UnderlyingPrice    float64            `json:"underlying_price"`
	PutCallVolumeRatio float64            `json:"put_call_volume_ratio"`
	PutCallOIRatio     float64            `json:"put_call_oi_ratio"`
	TotalGEX           float64            `json:"total_gex"`
	TotalVEX           float64            `json:"total_vex"`
	Regime             GammaRegime        `json:"regime"`
	ByStrike           []StrikeExposure   `json:"by_strike"`
	GEXByExpiration    map[string]float64 `json:"gex_by_expiration"`
	MaxPain            float64            `json:"max_pain"`
	CallWalls          []Wall             `json:"call_walls"`
	PutWalls           []Wall             `json:"put_walls"`
	Resistance         *Wall              `json:"resistance,omitempty"`
	Support            *Wall              `json:"support,omitempty"`
}

// InstitutionalStrikes returns the wall strikes on both sides, used by the
// strategy generator to bias candidate selection.
func (r *Result) InstitutionalStrikes() []float64 {
	seen := make(map[float64]bool)
	var out []float64
	for _, w := range append(append([]Wall{}, r.CallWalls...), r.PutWalls...) {
		if !seen[w.Strike] {
			seen[w.Strike] = true
			out = append(out, w.Strike)
		}
	}
	sort.Float64s(out)
	return out
}

// Analyzer computes dealer exposure analytics. Safe for reuse across
// snapshots; it holds no per-snapshot state.
type Analyzer struct {
	logger    *logrus.Logger
	wallCount int
}

// NewAnalyzer creates an exposure analyzer reporting the default number
// of walls per side.
func NewAnalyzer(logger *logrus.Logger) *Analyzer {
	return &Analyzer{logger: logger, wallCount: defaultWallCount}
}

// Analyze computes the exposure result for one snapshot. Dealer GEX
// assumes dealers are net short customer flow: short calls make dealers
// short gamma (negative GEX), short puts make them effectively long gamma
// (positive GEX). VEX is negative on both sides.
func (a *Analyzer) Analyze(snapshot *models.ChainSnapshot) (*Result, error) {
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}

	spot := snapshot.UnderlyingPrice
	byStrike := make(map[float64]*StrikeExposure)
	gexByExp := make(map[string]float64)

	var callVolume, putVolume, callOI, putOI int64
	totalGEX, totalVEX := 0.0, 0.0

	for _, exp := range snapshot.SortedExpirations() {
		ec := snapshot.Expirations[exp]
		for i := range ec.Calls {
			c := &ec.Calls[i]
			gex := -c.Greeks.Gamma * float64(c.Quote.OpenInterest) * models.SharesPerContract * spot * spot * 0.01
			vex := -c.Greeks.Vega * float64(c.Quote.OpenInterest) * models.SharesPerContract
			accumulate(byStrike, c.Strike, gex, vex)
			byStrike[c.Strike].CallOI += c.Quote.OpenInterest
			gexByExp[exp] += gex
			totalGEX += gex
			totalVEX += vex
			callVolume += c.Quote.Volume
			callOI += c.Quote.OpenInterest
		}
		for i := range ec.Puts {
			p := &ec.Puts[i]
			gex := p.Greeks.Gamma * float64(p.Quote.OpenInterest) * models.SharesPerContract * spot * spot * 0.01
			vex := -p.Greeks.Vega * float64(p.Quote.OpenInterest) * models.SharesPerContract
			accumulate(byStrike, p.Strike, gex, vex)
			byStrike[p.Strike].PutOI += p.Quote.OpenInterest
			gexByExp[exp] += gex
			totalGEX += gex
			totalVEX += vex
			putVolume += p.Quote.Volume
			putOI += p.Quote.OpenInterest
		}
	}

	result := &Result{
		Symbol:          snapshot.Symbol,
		UnderlyingPrice: spot,
		TotalGEX:        totalGEX,
		TotalVEX:        totalVEX,
		Regime:          RegimeNegativeGamma,
		GEXByExpiration: gexByExp,
		MaxPain:         a.maxPain(snapshot),
	}
	if totalGEX > 0 {
		result.Regime = RegimePositiveGamma
	}
	if putVolume > 0 && callVolume > 0 {
		result.PutCallVolumeRatio = float64(putVolume) / float64(callVolume)
	}
	if putOI > 0 && callOI > 0 {
		result.PutCallOIRatio = float64(putOI) / float64(callOI)
	}

	for _, se := range byStrike {
		result.ByStrike = append(result.ByStrike, *se)
	}
	sort.Slice(result.ByStrike, func(i, j int) bool { return result.ByStrike[i].Strike < result.ByStrike[j].Strike })

	result.CallWalls = topWalls(result.ByStrike, a.wallCount, func(se StrikeExposure) int64 { return se.CallOI })
	result.PutWalls = topWalls(result.ByStrike, a.wallCount, func(se StrikeExposure) int64 { return se.PutOI })
	result.Resistance = nearestWall(result.CallWalls, spot, true)
	result.Support = nearestWall(result.PutWalls, spot, false)

	if a.logger != nil {
		a.logger.WithFields(logrus.Fields{
			"symbol":   snapshot.Symbol,
			"gex":      totalGEX,
			"regime":   result.Regime,
			"max_pain": result.MaxPain,
		}).Debug("exposure analysis complete")
	}
	return result, nil
}

func accumulate(byStrike map[float64]*StrikeExposure, strike, gex, vex float64) {
	se, ok := byStrike[strike]
	if !ok {
		se = &StrikeExposure{Strike: strike}
		byStrike[strike] = se
	}
	se.GEX += gex
	se.VEX += vex
}

// maxPain finds the strike minimizing aggregate option-holder payout at
// expiration across the whole chain.
func (a *Analyzer) maxPain(snapshot *models.ChainSnapshot) float64 {
	strikes := make(map[float64]bool)
	for _, c := range snapshot.AllContracts() {
		strikes[c.Strike] = true
	}
	if len(strikes) == 0 {
		return 0
	}

	candidates := make([]float64, 0, len(strikes))
	for s := range strikes {
		candidates = append(candidates, s)
	}
	sort.Float64s(candidates)

	best, bestPayout := candidates[0], math.Inf(1)
	for _, test := range candidates {
		payout := 0.0
		for _, c := range snapshot.AllContracts() {
			oi := float64(c.Quote.OpenInterest)
			if c.Type == models.OptionTypeCall {
				payout += math.Max(0, test-c.Strike) * oi * models.SharesPerContract
			} else {
				payout += math.Max(0, c.Strike-test) * oi * models.SharesPerContract
			}
		}
		if payout < bestPayout {
			bestPayout = payout
			best = test
		}
	}
	return best
}

func topWalls(byStrike []StrikeExposure, n int, oi func(StrikeExposure) int64) []Wall {
	walls := make([]Wall, 0, len(byStrike))
	for _, se := range byStrike {
		if v := oi(se); v > 0 {
			walls = append(walls, Wall{Strike: se.Strike, OpenInterest: v})
		}
	}
	sort.Slice(walls, func(i, j int) bool { return walls[i].OpenInterest > walls[j].OpenInterest })
	if len(walls) > n {
		walls = walls[:n]
	}
	return walls
}

// nearestWall returns the closest wall strictly above (or below) spot.
func nearestWall(walls []Wall, spot float64, above bool) *Wall {
	var best *Wall
	for i := range walls {
		w := walls[i]
		if above && w.Strike <= spot {
			continue
		}
		if !above && w.Strike >= spot {
			continue
		}
		if best == nil || math.Abs(w.Strike-spot) < math.Abs(best.Strike-spot) {
			best = &walls[i]
		}
	}
	return best
}
