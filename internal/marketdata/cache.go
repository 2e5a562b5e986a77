package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/eddiefleurent/chainlens/internal/models"
	"github.com/eddiefleurent/chainlens/internal/pricing"
	"github.com/sirupsen/logrus"
)

// CachedProvider serves chain snapshots from a TTL cache in front of
// another provider. The clock is injected so tests control expiry.
// Quotes, expirations, and history pass through uncached.
type CachedProvider struct {
	inner  Provider
	ttl    time.Duration
	now    func() time.Time
	logger *logrus.Logger

	mu     sync.Mutex
	chains map[string]cachedChain
}

type cachedChain struct {
	snapshot  *models.ChainSnapshot
	fetchedAt time.Time
}

// NewCachedProvider wraps a provider with a chain cache. A nil clock
// uses time.Now.
func NewCachedProvider(inner Provider, ttl time.Duration, now func() time.Time, logger *logrus.Logger) *CachedProvider {
	if now == nil {
		now = time.Now
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedProvider{
		inner:  inner,
		ttl:    ttl,
		now:    now,
		logger: logger,
		chains: make(map[string]cachedChain),
	}
}

// GetChain returns the cached snapshot when fresh, fetching otherwise.
func (c *CachedProvider) GetChain(ctx context.Context, symbol string) (*models.ChainSnapshot, error) {
	c.mu.Lock()
	entry, ok := c.chains[symbol]
	c.mu.Unlock()
	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		if c.logger != nil {
			c.logger.WithField("symbol", symbol).Debug("chain cache hit")
		}
		return entry.snapshot, nil
	}

	snapshot, err := c.inner.GetChain(ctx, symbol)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.chains[symbol] = cachedChain{snapshot: snapshot, fetchedAt: c.now()}
	c.mu.Unlock()
	return snapshot, nil
}

// Invalidate drops a symbol's cached chain.
func (c *CachedProvider) Invalidate(symbol string) {
	c.mu.Lock()
	delete(c.chains, symbol)
	c.mu.Unlock()
}

// GetUnderlying passes through to the inner provider.
func (c *CachedProvider) GetUnderlying(ctx context.Context, symbol string) (Underlying, error) {
	return c.inner.GetUnderlying(ctx, symbol)
}

// GetExpirations passes through to the inner provider.
func (c *CachedProvider) GetExpirations(ctx context.Context, symbol string) ([]string, error) {
	return c.inner.GetExpirations(ctx, symbol)
}

// GetHistory passes through to the inner provider.
func (c *CachedProvider) GetHistory(ctx context.Context, symbol string, days int) ([]pricing.OHLCBar, error) {
	return c.inner.GetHistory(ctx, symbol, days)
}
