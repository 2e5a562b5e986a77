package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/eddiefleurent/chainlens/internal/mock"
	"github.com/eddiefleurent/chainlens/internal/models"
	"github.com/eddiefleurent/chainlens/internal/pricing"
)

// MockProvider serves deterministic synthetic data for replay mode and
// tests. Unknown symbols reuse the default chain shape with the
// requested symbol.
type MockProvider struct {
	params mock.ChainParams
	now    func() time.Time
}

// NewMockProvider creates a synthetic provider. A nil clock uses the
// params' fixed Now so output stays reproducible.
func NewMockProvider(params mock.ChainParams, now func() time.Time) *MockProvider {
	if now == nil {
		fixed := params.Now
		now = func() time.Time { return fixed }
	}
	return &MockProvider{params: params, now: now}
}

// GetUnderlying returns the synthetic spot as a realtime quote.
func (m *MockProvider) GetUnderlying(ctx context.Context, symbol string) (Underlying, error) {
	if err := ctx.Err(); err != nil {
		return Underlying{}, err
	}
	return Underlying{Symbol: symbol, Price: m.params.Spot, Source: SourceRealtime}, nil
}

// GetExpirations lists the synthetic expirations.
func (m *MockProvider) GetExpirations(ctx context.Context, symbol string) ([]string, error) {
	snap, err := m.GetChain(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return snap.SortedExpirations(), nil
}

// GetChain builds the synthetic snapshot for the symbol.
func (m *MockProvider) GetChain(ctx context.Context, symbol string) (*models.ChainSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if symbol == "" {
		return nil, fmt.Errorf("mock provider: symbol is required")
	}
	p := m.params
	p.Symbol = symbol
	p.Now = m.now()
	return mock.BuildChain(p), nil
}

// GetHistory builds deterministic trailing bars.
func (m *MockProvider) GetHistory(ctx context.Context, symbol string, days int) ([]pricing.OHLCBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if days < 1 {
		return nil, fmt.Errorf("mock provider: days must be positive, got %d", days)
	}
	return mock.BuildBars(m.params.Spot, days, m.now()), nil
}
