// Package mock generates synthetic option chain data for tests and for
// the mock market data provider.
package mock

import (
	"math"
	"time"

	"github.com/eddiefleurent/chainlens/internal/models"
	"github.com/eddiefleurent/chainlens/internal/pricing"
	"github.com/eddiefleurent/chainlens/internal/util"
)

// ChainParams controls the synthetic chain shape.
type ChainParams struct {
	Symbol         string
	Spot           float64
	StrikeInterval float64
	StrikesPerSide int
	BaseIV         float64
	RiskFreeRate   float64
	// ExpirationDTEs lists the chain expirations as days from Now.
	ExpirationDTEs []int
	Now            time.Time
}

// DefaultChainParams returns a SPY-like chain centered on 575.
func DefaultChainParams() ChainParams {
	return ChainParams{
		Symbol:         "SPY",
		Spot:           575.23,
		StrikeInterval: 5.0,
		StrikesPerSide: 10,
		BaseIV:         0.18,
		RiskFreeRate:   0.03,
		ExpirationDTEs: []int{14, 45, 120},
		Now:            time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC),
	}
}

// BuildChain generates a consistent snapshot: quotes, Greeks, and IVs are
// all derived from Black-Scholes at a mildly skewed vol surface so the
// analyzers see realistic structure. Deterministic for a given set of
// params.
func BuildChain(p ChainParams) *models.ChainSnapshot {
	snapshot := &models.ChainSnapshot{
		Symbol:          p.Symbol,
		UnderlyingPrice: p.Spot,
		Expirations:     make(map[string]models.ExpirationContracts),
		FetchedAt:       p.Now,
	}

	atmStrike := math.Round(p.Spot/p.StrikeInterval) * p.StrikeInterval
	for _, dte := range p.ExpirationDTEs {
		expDate := p.Now.AddDate(0, 0, dte).Truncate(24 * time.Hour)
		key := expDate.Format(models.ExpirationDateLayout)
		years := pricing.Years(float64(dte))

		var ec models.ExpirationContracts
		for i := -p.StrikesPerSide; i <= p.StrikesPerSide; i++ {
			strike := atmStrike + float64(i)*p.StrikeInterval
			if strike <= 0 {
				continue
			}
			iv := skewedIV(p.BaseIV, strike, p.Spot)
			ec.Calls = append(ec.Calls, buildContract(p, strike, expDate, years, iv, models.OptionTypeCall, i))
			ec.Puts = append(ec.Puts, buildContract(p, strike, expDate, years, iv, models.OptionTypePut, i))
		}
		snapshot.Expirations[key] = ec
	}
	return snapshot
}

// skewedIV applies a put-skewed smile: downside strikes trade richer.
func skewedIV(base, strike, spot float64) float64 {
	moneyness := (strike - spot) / spot
	iv := base - 0.25*moneyness
	if moneyness > 0 {
		iv = base + 0.05*moneyness
	}
	if iv < 0.05 {
		iv = 0.05
	}
	return iv
}

func buildContract(p ChainParams, strike float64, exp time.Time, years, iv float64, optType models.OptionType, stepsFromATM int) models.OptionContract {
	price := pricing.Price(p.Spot, strike, iv, years, p.RiskFreeRate, optType)
	if price < 0.05 {
		price = 0.05
	}
	d1, d2 := pricing.D1D2(p.Spot, strike, iv, years, p.RiskFreeRate)

	delta := pricing.NormCDF(d1)
	if optType == models.OptionTypePut {
		delta = delta - 1
	}
	gamma := 0.0
	vega := 0.0
	theta := 0.0
	if years > 0 && iv > 0 {
		gamma = pricing.NormPDF(d1) / (p.Spot * iv * math.Sqrt(years))
		vega = p.Spot * pricing.NormPDF(d1) * math.Sqrt(years) / 100
		theta = (-(p.Spot*pricing.NormPDF(d1)*iv)/(2*math.Sqrt(years)) -
			p.RiskFreeRate*strike*math.Exp(-p.RiskFreeRate*years)*pricing.NormCDF(d2)) / 365
	}

	// Liquidity concentrates near the money.
	distance := math.Abs(float64(stepsFromATM))
	volume := int64(3000 * math.Exp(-0.35*distance))
	oi := int64(12000 * math.Exp(-0.25*distance))
	spread := 0.02 + 0.01*distance

	return models.OptionContract{
		Symbol:     p.Symbol,
		Strike:     strike,
		Expiration: exp,
		Type:       optType,
		Quote: models.Quote{
			Bid:          util.RoundToTick(math.Max(0.01, price-spread/2), 0.01),
			Ask:          util.RoundToTick(price+spread/2, 0.01),
			Last:         util.RoundToTick(price, 0.01),
			Volume:       volume,
			OpenInterest: oi,
		},
		Greeks: models.Greeks{
			Delta: delta,
			Gamma: gamma,
			Theta: theta,
			Vega:  vega,
			Rho:   0.01,
		},
		ImpliedVolatility: iv,
	}
}

// BuildBars generates a deterministic OHLC series drifting toward spot,
// for ATR and realized-vol inputs.
func BuildBars(spot float64, days int, now time.Time) []pricing.OHLCBar {
	bars := make([]pricing.OHLCBar, 0, days)
	price := spot * 0.97
	for i := 0; i < days; i++ {
		// Small deterministic oscillation plus drift toward spot.
		move := 0.004*math.Sin(float64(i)*1.3) + 0.0005
		open := price
		close := price * (1 + move)
		high := math.Max(open, close) * 1.003
		low := math.Min(open, close) * 0.997
		bars = append(bars, pricing.OHLCBar{
			Date:  now.AddDate(0, 0, i-days),
			Open:  open,
			High:  high,
			Low:   low,
			Close: close,
		})
		price = close
	}
	return bars
}
