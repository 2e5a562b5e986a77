// Package marketdata fetches option chains, quotes, and price history
// from a provider, with TTL caching and a circuit-breaker wrapper.
package marketdata

import (
	"context"

	"github.com/eddiefleurent/chainlens/internal/models"
	"github.com/eddiefleurent/chainlens/internal/pricing"
)

// Price sources for the two-tier freshness policy.
const (
	SourceRealtime      = "realtime"
	SourcePreviousClose = "previous_close"
)

// Underlying is a quote for the underlying with its freshness tier.
type Underlying struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	// Source is realtime when a live quote was available, otherwise
	// previous_close.
	Source string `json:"source"`
}

// Provider is the market data contract. All methods honor context
// cancellation.
type Provider interface {
	// GetUnderlying returns the underlying price, falling back to the
	// previous close when no realtime quote is available.
	GetUnderlying(ctx context.Context, symbol string) (Underlying, error)
	// GetExpirations lists the available expiration dates, ascending.
	GetExpirations(ctx context.Context, symbol string) ([]string, error)
	// GetChain fetches the full chain snapshot for a symbol.
	GetChain(ctx context.Context, symbol string) (*models.ChainSnapshot, error)
	// GetHistory returns the trailing daily OHLC bars.
	GetHistory(ctx context.Context, symbol string, days int) ([]pricing.OHLCBar, error)
}

// Compile-time interface checks.
var (
	_ Provider = (*HTTPProvider)(nil)
	_ Provider = (*MockProvider)(nil)
	_ Provider = (*CachedProvider)(nil)
	_ Provider = (*BreakerProvider)(nil)
)
