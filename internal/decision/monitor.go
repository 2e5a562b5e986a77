package decision

import (
	"context"
	"fmt"
	"time"

	"github.com/eddiefleurent/chainlens/internal/models"
	"github.com/sirupsen/logrus"
)

// PriceFunc fetches the current underlying price for a symbol.
type PriceFunc func(ctx context.Context, symbol string) (float64, error)

// trendWindow scopes the short-term trend reported with each tick.
const trendWindow = 10 * time.Minute

// Monitor drives the periodic exit evaluation for one position. It owns
// the position's price history; one monitor per symbol/session, never
// shared.
type Monitor struct {
	position models.Position
	engine   *Engine
	price    PriceFunc
	history  *models.PriceHistory
	interval time.Duration
	// OnDecision receives every evaluation result. Nil is allowed.
	OnDecision func(ExitDecision)
	logger     *logrus.Logger
}

// NewMonitor creates a monitor for one open position.
func NewMonitor(position models.Position, engine *Engine, price PriceFunc, interval time.Duration, historyCapacity int, logger *logrus.Logger) (*Monitor, error) {
	if engine == nil {
		return nil, fmt.Errorf("monitor: engine is required")
	}
	if price == nil {
		return nil, fmt.Errorf("monitor: price source is required")
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if historyCapacity <= 0 {
		historyCapacity = 256
	}
	return &Monitor{
		position: position,
		engine:   engine,
		price:    price,
		history:  models.NewPriceHistory(historyCapacity),
		interval: interval,
		logger:   logger,
	}, nil
}

// History exposes the accumulated price history, for post-session
// inspection.
func (m *Monitor) History() *models.PriceHistory { return m.history }

// Run evaluates on every tick until the context is cancelled.
// Cancellation stops future ticks; it does not interrupt an in-flight
// evaluation. A failed price fetch is logged and the tick skipped.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if err := m.tick(ctx, now); err != nil {
				if m.logger != nil {
					m.logger.WithError(err).WithField("symbol", m.position.Symbol).Warn("monitor tick failed")
				}
			}
		}
	}
}

// Tick runs a single fetch-and-evaluate cycle. Exposed so callers can
// drive the monitor from their own scheduler.
func (m *Monitor) Tick(ctx context.Context, now time.Time) (ExitDecision, error) {
	price, err := m.price(ctx, m.position.Symbol)
	if err != nil {
		return ExitDecision{}, fmt.Errorf("fetching price for %s: %w", m.position.Symbol, err)
	}
	m.history.Add(price, now)

	decision, err := m.engine.EvaluateExit(&ExitContext{
		Position: &m.position,
		History:  m.history,
		Now:      now,
	})
	if err != nil {
		return ExitDecision{}, err
	}
	if m.logger != nil {
		m.logger.WithFields(logrus.Fields{
			"symbol":  m.position.Symbol,
			"price":   price,
			"action":  decision.Action,
			"rule":    decision.Rule,
			"trend":   m.history.Trend(trendWindow),
			"touched": m.history.HasTouched(m.position.Strike, touchTolerancePct),
		}).Debug("exit evaluation")
	}
	if m.OnDecision != nil {
		m.OnDecision(decision)
	}
	return decision, nil
}

func (m *Monitor) tick(ctx context.Context, now time.Time) error {
	_, err := m.Tick(ctx, now)
	return err
}
