// Package pricing provides the closed-form European option math shared by
// the sizing, projection, and decision packages: Black-Scholes prices,
// in-the-money probabilities, and realized-volatility helpers.
package pricing

import (
	"math"
	"time"

	"github.com/eddiefleurent/chainlens/internal/models"
	"gonum.org/v1/gonum/stat/distuv"
)

// TradingDaysPerYear is the annualization basis for daily returns.
const TradingDaysPerYear = 252.0

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// NormCDF is the standard normal cumulative distribution function.
func NormCDF(x float64) float64 { return stdNormal.CDF(x) }

// NormPDF is the standard normal probability density function.
func NormPDF(x float64) float64 { return stdNormal.Prob(x) }

// D1D2 computes the Black-Scholes d1/d2 terms. Returns zeros when the
// inputs cannot produce a finite result (zero vol or non-positive time).
func D1D2(spot, strike, vol, years, riskFree float64) (float64, float64) {
	if spot <= 0 || strike <= 0 || vol <= 0 || years <= 0 {
		return 0, 0
	}
	sqrtT := math.Sqrt(years)
	d1 := (math.Log(spot/strike) + (riskFree+0.5*vol*vol)*years) / (vol * sqrtT)
	return d1, d1 - vol*sqrtT
}

// Price returns the Black-Scholes European option price.
func Price(spot, strike, vol, years, riskFree float64, optType models.OptionType) float64 {
	if years <= 0 || vol <= 0 {
		return Intrinsic(spot, strike, optType)
	}
	d1, d2 := D1D2(spot, strike, vol, years, riskFree)
	disc := math.Exp(-riskFree * years)
	if optType == models.OptionTypeCall {
		return spot*NormCDF(d1) - strike*disc*NormCDF(d2)
	}
	return strike*disc*NormCDF(-d2) - spot*NormCDF(-d1)
}

// Intrinsic returns the exercise value of an option at the given spot.
func Intrinsic(spot, strike float64, optType models.OptionType) float64 {
	if optType == models.OptionTypeCall {
		return math.Max(0, spot-strike)
	}
	return math.Max(0, strike-spot)
}

// ProbITM returns the risk-neutral probability the option finishes in the
// money, from the Black-Scholes d2 term. Degenerate inputs collapse to the
// indicator of current moneyness.
func ProbITM(spot, strike, vol, years, riskFree float64, optType models.OptionType) float64 {
	if spot <= 0 || strike <= 0 {
		return 0
	}
	if vol <= 0 || years <= 0 {
		if Intrinsic(spot, strike, optType) > 0 {
			return 1
		}
		return 0
	}
	_, d2 := D1D2(spot, strike, vol, years, riskFree)
	if optType == models.OptionTypeCall {
		return NormCDF(d2)
	}
	return NormCDF(-d2)
}

// TouchProbabilityPolicy approximates the probability the underlying
// touches the strike before expiration. The result is always in [0,1].
type TouchProbabilityPolicy func(spot, strike, vol, years, riskFree float64) float64

// DefaultTouchProbability is the reference approximation: twice the ITM
// probability, clipped at 1. Coarse, but downstream thresholds and their
// fixtures are calibrated to it; override the policy rather than changing
// the formula.
func DefaultTouchProbability(spot, strike, vol, years, riskFree float64) float64 {
	optType := models.OptionTypeCall
	if strike < spot {
		optType = models.OptionTypePut
	}
	p := 2 * ProbITM(spot, strike, vol, years, riskFree, optType)
	if p > 1 {
		return 1
	}
	if p < 0 {
		return 0
	}
	return p
}

// Years converts a day count into year fractions on a calendar basis.
func Years(days float64) float64 { return days / 365.0 }

// YearsBetween returns the year fraction between two instants, floored at
// zero.
func YearsBetween(from, to time.Time) float64 {
	y := to.Sub(from).Hours() / 24 / 365
	if y < 0 {
		return 0
	}
	return y
}

// OHLCBar is one historical bar from the market data provider.
type OHLCBar struct {
	Date  time.Time `json:"date"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// ATR returns the average true range over the trailing period bars.
// Zero when fewer than two bars are available.
func ATR(bars []OHLCBar, period int) float64 {
	if len(bars) < 2 || period < 1 {
		return 0
	}
	start := len(bars) - period
	if start < 1 {
		start = 1
	}
	sum := 0.0
	n := 0
	for i := start; i < len(bars); i++ {
		highLow := bars[i].High - bars[i].Low
		highClose := math.Abs(bars[i].High - bars[i-1].Close)
		lowClose := math.Abs(bars[i].Low - bars[i-1].Close)
		sum += math.Max(highLow, math.Max(highClose, lowClose))
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// RealizedVol returns the annualized close-to-close volatility of the
// bars. Zero when fewer than three bars are available.
func RealizedVol(bars []OHLCBar) float64 {
	if len(bars) < 3 {
		return 0
	}
	rets := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		if bars[i-1].Close <= 0 || bars[i].Close <= 0 {
			continue
		}
		rets = append(rets, math.Log(bars[i].Close/bars[i-1].Close))
	}
	if len(rets) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	variance := 0.0
	for _, r := range rets {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(rets) - 1)
	return math.Sqrt(variance) * math.Sqrt(TradingDaysPerYear)
}
