package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/eddiefleurent/chainlens/internal/models"
	"github.com/eddiefleurent/chainlens/internal/pricing"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerSettings configures the provider circuit breaker.
type BreakerSettings struct {
	MaxRequests  uint32        // allowed requests while half-open
	Interval     time.Duration // closed-state count reset interval
	Timeout      time.Duration // open-state duration
	MinRequests  uint32        // minimum requests before tripping
	FailureRatio float64       // failure ratio that trips
}

// DefaultBreakerSettings mirrors a conservative upstream-API posture.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	}
}

// BreakerProvider wraps a Provider with a circuit breaker so a failing
// upstream API sheds load instead of being hammered.
type BreakerProvider struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerProvider wraps a provider with default settings.
func NewBreakerProvider(inner Provider, logger *logrus.Logger) *BreakerProvider {
	return NewBreakerProviderWithSettings(inner, DefaultBreakerSettings(), logger)
}

// NewBreakerProviderWithSettings wraps a provider with custom settings.
func NewBreakerProviderWithSettings(inner Provider, settings BreakerSettings, logger *logrus.Logger) *BreakerProvider {
	gb := gobreaker.Settings{
		Name:        "MarketDataProvider",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= settings.FailureRatio
		},
	}
	if logger != nil {
		gb.OnStateChange = func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("market data circuit breaker state change")
		}
	}
	return &BreakerProvider{inner: inner, breaker: gobreaker.NewCircuitBreaker(gb)}
}

// State exposes the breaker state for health reporting.
func (b *BreakerProvider) State() gobreaker.State { return b.breaker.State() }

func execBreaker[T any](breaker *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// GetUnderlying wraps the inner call with the circuit breaker.
func (b *BreakerProvider) GetUnderlying(ctx context.Context, symbol string) (Underlying, error) {
	return execBreaker(b.breaker, func() (Underlying, error) {
		return b.inner.GetUnderlying(ctx, symbol)
	})
}

// GetExpirations wraps the inner call with the circuit breaker.
func (b *BreakerProvider) GetExpirations(ctx context.Context, symbol string) ([]string, error) {
	return execBreaker(b.breaker, func() ([]string, error) {
		return b.inner.GetExpirations(ctx, symbol)
	})
}

// GetChain wraps the inner call with the circuit breaker.
func (b *BreakerProvider) GetChain(ctx context.Context, symbol string) (*models.ChainSnapshot, error) {
	return execBreaker(b.breaker, func() (*models.ChainSnapshot, error) {
		return b.inner.GetChain(ctx, symbol)
	})
}

// GetHistory wraps the inner call with the circuit breaker.
func (b *BreakerProvider) GetHistory(ctx context.Context, symbol string, days int) ([]pricing.OHLCBar, error) {
	return execBreaker(b.breaker, func() ([]pricing.OHLCBar, error) {
		return b.inner.GetHistory(ctx, symbol, days)
	})
}
