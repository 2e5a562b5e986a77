// Package flow detects unusual options activity in a chain snapshot:
// volume spikes, premium conviction, sweeps, and put/call flow imbalance.
package flow

import (
	"sort"

	"github.com/eddiefleurent/chainlens/internal/models"
	"github.com/sirupsen/logrus"
)

// Config holds the detection thresholds. Zero values are replaced by the
// reference defaults.
type Config struct {
	MinVolume        int64   // floor before the volume multiplier applies
	VolumeMultiplier float64 // volume vs average-volume ratio (default 3x)
	MinPremium       float64 // dollar premium floor (default 50,000)
	OIRatioThreshold float64 // volume/open-interest ratio (default 2)
}

// Reference thresholds.
const (
	defaultMinVolume        = 100
	defaultVolumeMultiplier = 3.0
	defaultMinPremium       = 50000.0
	defaultOIRatio          = 2.0

	sweepVolumeFloor = 1000
	sweepOIRatio     = 5.0

	// Conviction score tiers.
	premiumTierMax  = 40.0
	volumeTierMax   = 30.0
	sweepBonus      = 30.0
)

// Direction is the directional read of a flagged contract.
type Direction string

const (
	// DirectionBullish marks aggressive call flow.
	DirectionBullish Direction = "bullish"
	// DirectionBearish marks aggressive put flow.
	DirectionBearish Direction = "bearish"
)

// UnusualContract is one flagged contract with its conviction score.
type UnusualContract struct {
	Contract     models.OptionContract `json:"contract"`
	VolumeRatio  float64               `json:"volume_ratio"` // volume / avg volume
	OIRatio      float64               `json:"oi_ratio"`     // volume / open interest
	PremiumSpent float64               `json:"premium_spent"`
	IsSweep      bool                  `json:"is_sweep"`
	Conviction   float64               `json:"conviction"` // 0-100
	Direction    Direction             `json:"direction"`
}

// Result is the flow picture for one snapshot.
type Result struct {
	Symbol         string            `json:"symbol"`
	Unusual        []UnusualContract `json:"unusual"`
	CallPremium    float64           `json:"call_premium"`
	PutPremium     float64           `json:"put_premium"`
	FlowImbalance  float64           `json:"flow_imbalance"` // (call-put)/(call+put) premium
	BullishCount   int               `json:"bullish_count"`
	BearishCount   int               `json:"bearish_count"`
}

// UnusualStrikes returns the distinct strikes carrying unusual flow,
// consumed by the strategy generator.
func (r *Result) UnusualStrikes() []float64 {
	seen := make(map[float64]bool)
	var out []float64
	for _, u := range r.Unusual {
		if !seen[u.Contract.Strike] {
			seen[u.Contract.Strike] = true
			out = append(out, u.Contract.Strike)
		}
	}
	sort.Float64s(out)
	return out
}

// Detector flags unusual options activity.
type Detector struct {
	cfg    Config
	logger *logrus.Logger
}

// NewDetector creates a detector, filling zero config fields with the
// reference defaults.
func NewDetector(cfg Config, logger *logrus.Logger) *Detector {
	if cfg.MinVolume == 0 {
		cfg.MinVolume = defaultMinVolume
	}
	if cfg.VolumeMultiplier == 0 {
		cfg.VolumeMultiplier = defaultVolumeMultiplier
	}
	if cfg.MinPremium == 0 {
		cfg.MinPremium = defaultMinPremium
	}
	if cfg.OIRatioThreshold == 0 {
		cfg.OIRatioThreshold = defaultOIRatio
	}
	return &Detector{cfg: cfg, logger: logger}
}

// Detect scans the snapshot for unusual contracts. avgVolume maps a
// contract symbol to its trailing average volume; missing entries fall
// back to the contract's open interest as a liquidity proxy.
func (d *Detector) Detect(snapshot *models.ChainSnapshot, avgVolume map[string]float64) (*Result, error) {
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}

	result := &Result{Symbol: snapshot.Symbol}
	for _, c := range snapshot.AllContracts() {
		premium := c.Premium()
		if c.Type == models.OptionTypeCall {
			result.CallPremium += premium
		} else {
			result.PutPremium += premium
		}

		u, flagged := d.evaluate(c, avgVolume)
		if !flagged {
			continue
		}
		result.Unusual = append(result.Unusual, u)
		if u.Direction == DirectionBullish {
			result.BullishCount++
		} else {
			result.BearishCount++
		}
	}

	if total := result.CallPremium + result.PutPremium; total > 0 {
		result.FlowImbalance = (result.CallPremium - result.PutPremium) / total
	}

	sort.Slice(result.Unusual, func(i, j int) bool {
		return result.Unusual[i].Conviction > result.Unusual[j].Conviction
	})

	if d.logger != nil {
		d.logger.WithFields(logrus.Fields{
			"symbol":  snapshot.Symbol,
			"flagged": len(result.Unusual),
		}).Debug("flow detection complete")
	}
	return result, nil
}

// evaluate applies the unusual-activity tests to one contract.
func (d *Detector) evaluate(c models.OptionContract, avgVolume map[string]float64) (UnusualContract, bool) {
	volume := float64(c.Quote.Volume)
	avg := avgVolume[c.Symbol]
	if avg <= 0 {
		avg = float64(c.Quote.OpenInterest)
	}

	u := UnusualContract{
		Contract:     c,
		PremiumSpent: c.Premium(),
	}
	if avg > 0 {
		u.VolumeRatio = volume / avg
	}
	if c.Quote.OpenInterest > 0 {
		u.OIRatio = volume / float64(c.Quote.OpenInterest)
	}
	u.IsSweep = c.Quote.Volume > sweepVolumeFloor && u.OIRatio > sweepOIRatio

	volumeSpike := c.Quote.Volume >= d.cfg.MinVolume && u.VolumeRatio >= d.cfg.VolumeMultiplier
	bigPremium := u.PremiumSpent >= d.cfg.MinPremium
	oiSpike := u.OIRatio >= d.cfg.OIRatioThreshold

	if !volumeSpike && !bigPremium && !oiSpike {
		return UnusualContract{}, false
	}

	u.Conviction = convictionScore(u)
	u.Direction = DirectionBullish
	if c.Type == models.OptionTypePut {
		u.Direction = DirectionBearish
	}
	return u, true
}

// convictionScore grades a flagged contract 0-100: a premium tier worth
// up to 40, a volume-ratio tier worth up to 30, and a 30-point sweep
// bonus.
func convictionScore(u UnusualContract) float64 {
	score := 0.0
	switch {
	case u.PremiumSpent >= 1_000_000:
		score += premiumTierMax
	case u.PremiumSpent >= 250_000:
		score += 25
	case u.PremiumSpent >= 50_000:
		score += 10
	}
	switch {
	case u.VolumeRatio >= 10:
		score += volumeTierMax
	case u.VolumeRatio >= 5:
		score += 20
	case u.VolumeRatio >= 3:
		score += 10
	}
	if u.IsSweep {
		score += sweepBonus
	}
	if score > 100 {
		score = 100
	}
	return score
}
