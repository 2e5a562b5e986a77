// Package volsurface analyzes the implied-volatility surface of a chain
// snapshot: smile/skew shape at a single expiration, the term structure
// across expirations, and IV rank/percentile against history.
package volsurface

import (
	"fmt"
	"math"
	"sort"

	"github.com/eddiefleurent/chainlens/internal/models"
	"github.com/sirupsen/logrus"
)

// SmilePattern classifies the strike-IV shape at one expiration.
type SmilePattern string

const (
	// PatternSmile means both wings trade above ATM IV.
	PatternSmile SmilePattern = "smile"
	// PatternSmirk means the put wing trades richer.
	PatternSmirk SmilePattern = "smirk"
	// PatternReverseSmirk means the call wing trades richer.
	PatternReverseSmirk SmilePattern = "reverse_smirk"
	// PatternFlat means no wing deviates meaningfully from ATM.
	PatternFlat SmilePattern = "flat"
)

// TermShape classifies the slope of the ATM term structure.
type TermShape string

const (
	// TermContango means longer-dated IV is richer than short-dated.
	TermContango TermShape = "contango"
	// TermBackwardation means short-dated IV is richer.
	TermBackwardation TermShape = "backwardation"
	// TermFlat means the slope is within the flat band.
	TermFlat TermShape = "flat"
)

const (
	// wingDeviationThreshold is the fractional IV deviation from ATM
	// above which a wing counts as elevated.
	wingDeviationThreshold = 0.02
	// termSlopeThreshold is the +/-5% band that separates contango and
	// backwardation from flat.
	termSlopeThreshold = 0.05
	// skewDeltaBucket is the absolute delta at which skew is measured.
	skewDeltaBucket = 0.25

	shortTermMaxDTE  = 30
	mediumTermMaxDTE = 90
)

// SmileResult describes the smile at a single expiration.
type SmileResult struct {
	Expiration  string       `json:"expiration"`
	ATMStrike   float64      `json:"atm_strike"`
	ATMIV       float64      `json:"atm_iv"`
	PutWingIV   float64      `json:"put_wing_iv"`
	CallWingIV  float64      `json:"call_wing_iv"`
	Pattern     SmilePattern `json:"pattern"`
	DeltaSkew   float64      `json:"delta_skew"` // IV(25d put) - IV(25d call)
}

// TermStructure summarizes ATM IV bucketed by days to expiration.
type TermStructure struct {
	ShortAvg  float64   `json:"short_avg"`  // <= 30 DTE
	MediumAvg float64   `json:"medium_avg"` // 31-90 DTE
	LongAvg   float64   `json:"long_avg"`   // > 90 DTE
	Slope     float64   `json:"slope"`
	Shape     TermShape `json:"shape"`
}

// IVRank holds the rank and percentile of the current IV against a
// historical series.
type IVRank struct {
	Current    float64 `json:"current"`
	Rank       float64 `json:"rank"`       // (cur-low)/(high-low) * 100
	Percentile float64 `json:"percentile"` // share of history below current * 100
}

// Result is the full surface picture for one snapshot.
type Result struct {
	Symbol        string        `json:"symbol"`
	Smiles        []SmileResult `json:"smiles"`
	TermStructure TermStructure `json:"term_structure"`
	ATMIV         float64       `json:"atm_iv"` // nearest-expiration ATM IV
}

// Analyzer computes volatility surface analytics.
type Analyzer struct {
	logger *logrus.Logger
}

// NewAnalyzer creates a surface analyzer.
func NewAnalyzer(logger *logrus.Logger) *Analyzer {
	return &Analyzer{logger: logger}
}

// Analyze computes smiles per expiration and the overall term structure.
// An expiration without usable IVs is skipped, not fatal.
func (a *Analyzer) Analyze(snapshot *models.ChainSnapshot) (*Result, error) {
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}

	result := &Result{Symbol: snapshot.Symbol}
	type atmPoint struct {
		dte int
		iv  float64
	}
	var atmPoints []atmPoint

	for _, exp := range snapshot.SortedExpirations() {
		ec := snapshot.Expirations[exp]
		smile, err := a.analyzeSmile(exp, snapshot.UnderlyingPrice, ec)
		if err != nil {
			if a.logger != nil {
				a.logger.WithError(err).WithField("expiration", exp).Warn("skipping expiration in surface analysis")
			}
			continue
		}
		result.Smiles = append(result.Smiles, *smile)

		expDate, err := models.ParseExpiration(exp)
		if err != nil {
			continue
		}
		dte := int(expDate.Sub(snapshot.FetchedAt).Hours() / 24)
		if dte < 0 {
			dte = 0
		}
		atmPoints = append(atmPoints, atmPoint{dte: dte, iv: smile.ATMIV})
	}

	if len(result.Smiles) == 0 {
		return nil, fmt.Errorf("surface %s: no expiration produced a usable smile", snapshot.Symbol)
	}
	result.ATMIV = result.Smiles[0].ATMIV

	var short, medium, long []float64
	for _, p := range atmPoints {
		switch {
		case p.dte <= shortTermMaxDTE:
			short = append(short, p.iv)
		case p.dte <= mediumTermMaxDTE:
			medium = append(medium, p.iv)
		default:
			long = append(long, p.iv)
		}
	}
	ts := TermStructure{
		ShortAvg:  mean(short),
		MediumAvg: mean(medium),
		LongAvg:   mean(long),
		Shape:     TermFlat,
	}
	if ts.ShortAvg > 0 && ts.LongAvg > 0 {
		ts.Slope = (ts.LongAvg - ts.ShortAvg) / ts.ShortAvg
		if ts.Slope > termSlopeThreshold {
			ts.Shape = TermContango
		} else if ts.Slope < -termSlopeThreshold {
			ts.Shape = TermBackwardation
		}
	}
	result.TermStructure = ts
	return result, nil
}

// analyzeSmile classifies the smile for one expiration using the call
// side's strike-IV curve and the put side for the skew measure.
func (a *Analyzer) analyzeSmile(exp string, spot float64, ec models.ExpirationContracts) (*SmileResult, error) {
	calls := withIV(ec.Calls)
	puts := withIV(ec.Puts)
	if len(calls) < 3 {
		return nil, fmt.Errorf("expiration %s: need at least 3 call IVs, have %d", exp, len(calls))
	}
	sort.Slice(calls, func(i, j int) bool { return calls[i].Strike < calls[j].Strike })

	atmIdx := nearestStrikeIdx(calls, spot)
	atm := calls[atmIdx]

	putWing := wingAvg(calls[:atmIdx])
	callWing := wingAvg(calls[atmIdx+1:])

	pattern := PatternFlat
	putHigh := putWing > atm.ImpliedVolatility*(1+wingDeviationThreshold)
	callHigh := callWing > atm.ImpliedVolatility*(1+wingDeviationThreshold)
	switch {
	case putHigh && callHigh:
		pattern = PatternSmile
	case putHigh:
		pattern = PatternSmirk
	case callHigh:
		pattern = PatternReverseSmirk
	}

	return &SmileResult{
		Expiration: exp,
		ATMStrike:  atm.Strike,
		ATMIV:      atm.ImpliedVolatility,
		PutWingIV:  putWing,
		CallWingIV: callWing,
		Pattern:    pattern,
		DeltaSkew:  deltaSkew(puts, calls),
	}, nil
}

// deltaSkew measures IV(put at ~-25 delta) minus IV(call at ~25 delta).
func deltaSkew(puts, calls []models.OptionContract) float64 {
	put := nearestDelta(puts, -skewDeltaBucket)
	call := nearestDelta(calls, skewDeltaBucket)
	if put == nil || call == nil {
		return 0
	}
	return put.ImpliedVolatility - call.ImpliedVolatility
}

// RankIV computes IV rank and percentile of current against history.
// Invalid readings are filtered; an empty history yields zeros.
func RankIV(current float64, history []float64) IVRank {
	out := IVRank{Current: current}
	if math.IsNaN(current) || math.IsInf(current, 0) {
		return out
	}
	clean := make([]float64, 0, len(history))
	for _, v := range history {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return out
	}

	low, high := clean[0], clean[0]
	below := 0
	for _, v := range clean {
		if v < low {
			low = v
		}
		if v > high {
			high = v
		}
		if v < current {
			below++
		}
	}
	if high > low {
		out.Rank = clampPct((current - low) / (high - low) * 100)
	}
	out.Percentile = float64(below) / float64(len(clean)) * 100
	return out
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func withIV(contracts []models.OptionContract) []models.OptionContract {
	out := make([]models.OptionContract, 0, len(contracts))
	for _, c := range contracts {
		if c.ImpliedVolatility > 0 {
			out = append(out, c)
		}
	}
	return out
}

func nearestStrikeIdx(contracts []models.OptionContract, spot float64) int {
	best, bestDiff := 0, math.Inf(1)
	for i, c := range contracts {
		if d := math.Abs(c.Strike - spot); d < bestDiff {
			best, bestDiff = i, d
		}
	}
	return best
}

func nearestDelta(contracts []models.OptionContract, target float64) *models.OptionContract {
	var best *models.OptionContract
	bestDiff := math.Inf(1)
	for i := range contracts {
		if d := math.Abs(contracts[i].Greeks.Delta - target); d < bestDiff {
			best, bestDiff = &contracts[i], d
		}
	}
	return best
}

// wingAvg is the mean implied volatility of one wing's contracts. An
// empty wing (ATM sitting at the chain edge) yields 0 so classification
// still runs against the other wing.
func wingAvg(contracts []models.OptionContract) float64 {
	if len(contracts) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range contracts {
		sum += c.ImpliedVolatility
	}
	return sum / float64(len(contracts))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
