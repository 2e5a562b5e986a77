// Package ops exposes the engine's named operations: each takes a typed
// request and returns a typed result or a typed rejection, never a bare
// panic. A front-end dispatcher (HTTP server, CLI) sits on top.
package ops

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/eddiefleurent/chainlens/internal/config"
	"github.com/eddiefleurent/chainlens/internal/decision"
	"github.com/eddiefleurent/chainlens/internal/exposure"
	"github.com/eddiefleurent/chainlens/internal/flow"
	"github.com/eddiefleurent/chainlens/internal/marketdata"
	"github.com/eddiefleurent/chainlens/internal/models"
	"github.com/eddiefleurent/chainlens/internal/pricing"
	"github.com/eddiefleurent/chainlens/internal/projection"
	"github.com/eddiefleurent/chainlens/internal/risk"
	"github.com/eddiefleurent/chainlens/internal/storage"
	"github.com/eddiefleurent/chainlens/internal/strategies"
	"github.com/eddiefleurent/chainlens/internal/volsurface"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// historyDays is the trailing window fetched for ATR and realized vol.
const historyDays = 30

// Service wires the analyzers, generators, and risk engines behind the
// operation surface.
type Service struct {
	cfg      *config.Config
	provider marketdata.Provider
	store    storage.Interface
	logger   *logrus.Logger

	exposure  *exposure.Analyzer
	surface   *volsurface.Analyzer
	flow      *flow.Detector
	generator *strategies.Generator
	sizer     *risk.Sizer
	portfolio *risk.Aggregator
	breakers  *risk.Breakers
	projector *projection.Projector
	rules     *decision.Engine

	mu        sync.Mutex
	histories map[string]*symbolHistory
}

// symbolHistory guards one symbol's session price history. The mutex
// spans the add-and-evaluate sequence so concurrent exit evaluations for
// the same symbol never interleave on the ring buffer.
type symbolHistory struct {
	mu      sync.Mutex
	history *models.PriceHistory
}

// NewService assembles the full engine.
func NewService(cfg *config.Config, provider marketdata.Provider, store storage.Interface, breakerStore storage.BreakerInterface, logger *logrus.Logger) *Service {
	return &Service{
		cfg:       cfg,
		provider:  provider,
		store:     store,
		logger:    logger,
		exposure:  exposure.NewAnalyzer(logger),
		surface:   volsurface.NewAnalyzer(logger),
		flow:      flow.NewDetector(flow.Config{}, logger),
		generator: strategies.NewGenerator(strategies.GeneratorConfig{RiskFreeRate: cfg.Simulation.RiskFreeRate}, logger),
		sizer:     risk.NewSizer(cfg.Risk, cfg.Costs, logger),
		portfolio: risk.NewAggregator(logger),
		breakers:  risk.NewBreakers(cfg.Breakers, breakerStore, nil, logger),
		projector: projection.NewProjector(cfg.Simulation, uint64(time.Now().UnixNano()), logger),
		rules:     decision.NewEngine(nil, nil, logger),
		histories: make(map[string]*symbolHistory),
	}
}

// AnalyzeRequest asks for the full chain analysis of one symbol.
type AnalyzeRequest struct {
	Symbol string `json:"symbol"`
}

// AnalyzeResult bundles the three independent chain analyses plus the
// IV context derived from trailing realized volatility.
type AnalyzeResult struct {
	Underlying marketdata.Underlying `json:"underlying"`
	Exposure   *exposure.Result      `json:"exposure"`
	Surface    *volsurface.Result    `json:"surface"`
	Flow       *flow.Result          `json:"flow"`
	// IVContext ranks the ATM IV against rolling realized vol from the
	// trailing bars. Zero when history is unavailable.
	IVContext volsurface.IVRank `json:"iv_context"`
}

// AnalyzeChain fetches the snapshot once and runs the exposure, surface,
// and flow analyzers concurrently; they share the immutable snapshot and
// have no data dependency on each other.
func (s *Service) AnalyzeChain(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	if req.Symbol == "" {
		return nil, fmt.Errorf("analyze: symbol is required")
	}
	underlying, err := s.provider.GetUnderlying(ctx, req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", req.Symbol, err)
	}
	snapshot, err := s.provider.GetChain(ctx, req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", req.Symbol, err)
	}

	result := &AnalyzeResult{Underlying: underlying}
	var bars []pricing.OHLCBar
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		result.Exposure, err = s.exposure.Analyze(snapshot)
		return err
	})
	g.Go(func() error {
		var err error
		result.Surface, err = s.surface.Analyze(snapshot)
		return err
	})
	g.Go(func() error {
		var err error
		result.Flow, err = s.flow.Detect(snapshot, nil)
		return err
	})
	g.Go(func() error {
		// Missing history degrades to a zero IV context, not a failure.
		fetched, err := s.provider.GetHistory(gctx, req.Symbol, historyDays)
		if err != nil {
			if s.logger != nil {
				s.logger.WithError(err).WithField("symbol", req.Symbol).Warn("history unavailable, skipping IV context")
			}
			return nil
		}
		bars = fetched
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyze %s: %w", req.Symbol, err)
	}
	result.IVContext = volsurface.RankIV(result.Surface.ATMIV, realizedVolSeries(bars))
	return result, nil
}

// realizedVolWindow is the bar count per rolling realized-vol reading.
const realizedVolWindow = 10

// realizedVolSeries turns trailing bars into the realized-vol readings
// the ATM IV is ranked against, one per rolling window.
func realizedVolSeries(bars []pricing.OHLCBar) []float64 {
	if len(bars) < realizedVolWindow {
		return nil
	}
	out := make([]float64, 0, len(bars)-realizedVolWindow+1)
	for i := realizedVolWindow; i <= len(bars); i++ {
		if v := pricing.RealizedVol(bars[i-realizedVolWindow : i]); v > 0 {
			out = append(out, v)
		}
	}
	return out
}

// GenerateRequest asks for ranked strategy candidates.
type GenerateRequest struct {
	Symbol     string                `json:"symbol"`
	Preference strategies.Preference `json:"preference,omitempty"`
	// MaxRiskDollars caps per-spread risk in the ranker; zero disables.
	MaxRiskDollars float64 `json:"max_risk_dollars,omitempty"`
}

// GenerateResult is the ranked candidate list with rejections.
type GenerateResult struct {
	Analysis *AnalyzeResult         `json:"analysis"`
	Ranked   []strategies.Ranked    `json:"ranked"`
	Rejected []strategies.Rejection `json:"rejected"`
}

// GenerateStrategies runs the analysis, biases the generator toward
// institutional and unusual strikes, and ranks the candidates.
func (s *Service) GenerateStrategies(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	analysis, err := s.AnalyzeChain(ctx, AnalyzeRequest{Symbol: req.Symbol})
	if err != nil {
		return nil, err
	}
	snapshot, err := s.provider.GetChain(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	bias := append(analysis.Exposure.InstitutionalStrikes(), analysis.Flow.UnusualStrikes()...)
	gen := strategies.NewGenerator(strategies.GeneratorConfig{
		RiskFreeRate: s.cfg.Simulation.RiskFreeRate,
		BiasStrikes:  bias,
	}, s.logger)

	candidates, err := gen.Generate(snapshot)
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", req.Symbol, err)
	}

	ranker := strategies.NewRanker(strategies.RankConfig{
		MinRewardRatio: s.cfg.Risk.MinRewardRatio,
		MinProbProfit:  s.cfg.Risk.MinProbProfit,
		MaxRiskDollars: req.MaxRiskDollars,
		Preference:     req.Preference,
	}, s.logger)
	ranked := ranker.Rank(candidates)

	return &GenerateResult{Analysis: analysis, Ranked: ranked.Ranked, Rejected: ranked.Rejected}, nil
}

// SizePosition applies the cost-adjusted sizing pipeline.
func (s *Service) SizePosition(_ context.Context, req risk.SizeRequest) (risk.SizeResult, error) {
	return s.sizer.Size(req)
}

// ProjectRequest asks for P&L projections on a sized strategy.
type ProjectRequest struct {
	Strategy  models.Strategy `json:"strategy"`
	Contracts int             `json:"contracts"`
	Symbol    string          `json:"symbol"`
	// IVDailyVol overrides the daily IV-change volatility, vol points.
	IVDailyVol float64 `json:"iv_daily_vol,omitempty"`
}

// ProjectResult bundles the deterministic grid and the simulation.
type ProjectResult struct {
	Grid       []projection.GridPoint `json:"grid"`
	MonteCarlo projection.MCResult    `json:"monte_carlo"`
}

// ProjectPnL evaluates the payoff grid and runs the Monte Carlo walk
// using the chain's ATM implied volatility for the daily return scale.
func (s *Service) ProjectPnL(ctx context.Context, req ProjectRequest) (*ProjectResult, error) {
	underlying, err := s.provider.GetUnderlying(ctx, req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", req.Symbol, err)
	}
	snapshot, err := s.provider.GetChain(ctx, req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", req.Symbol, err)
	}
	surface, err := s.surface.Analyze(snapshot)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", req.Symbol, err)
	}

	grid, err := s.projector.Grid(&req.Strategy, req.Contracts, underlying.Price)
	if err != nil {
		return nil, err
	}

	greeks := strategyGreeks(&req.Strategy, req.Contracts)
	mc, err := s.projector.MonteCarlo(projection.MCRequest{
		Greeks:     greeks,
		Underlying: underlying.Price,
		DailyVol:   surface.ATMIV / math.Sqrt(pricing.TradingDaysPerYear),
		IVDailyVol: req.IVDailyVol,
	})
	if err != nil {
		return nil, err
	}
	return &ProjectResult{Grid: grid, MonteCarlo: mc}, nil
}

// strategyGreeks nets one strategy's leg Greeks into dollar terms.
func strategyGreeks(strat *models.Strategy, contracts int) risk.NetGreeks {
	if contracts < 1 {
		contracts = 1
	}
	scale := float64(contracts) * models.SharesPerContract
	var g risk.NetGreeks
	for _, leg := range strat.Legs {
		sign := leg.Action.Sign()
		g.Delta += leg.Greeks.Delta * sign * scale
		g.Gamma += leg.Greeks.Gamma * sign * scale
		g.Theta += leg.Greeks.Theta * sign * scale
		g.Vega += leg.Greeks.Vega * sign * scale
	}
	return g
}

// PortfolioGreeks aggregates net Greeks across the stored open positions.
func (s *Service) PortfolioGreeks(_ context.Context) risk.PortfolioRisk {
	return s.portfolio.Aggregate(s.store.OpenPositions())
}

// StressRequest asks for a portfolio stress test.
type StressRequest struct {
	Symbol    string          `json:"symbol"`
	Scenarios []risk.Scenario `json:"scenarios,omitempty"`
}

// RunStressTest stresses the stored open positions at the symbol's
// current price.
func (s *Service) RunStressTest(ctx context.Context, req StressRequest) (risk.StressResult, error) {
	underlying, err := s.provider.GetUnderlying(ctx, req.Symbol)
	if err != nil {
		return risk.StressResult{}, fmt.Errorf("stress %s: %w", req.Symbol, err)
	}
	return s.portfolio.StressTest(s.store.OpenPositions(), underlying.Price, req.Scenarios)
}

// CheckBreakers evaluates the trading circuit breakers against the
// current portfolio.
func (s *Service) CheckBreakers(ctx context.Context, volIndex float64) (risk.Decision, error) {
	portfolio := s.PortfolioGreeks(ctx)
	return s.breakers.Evaluate(risk.EvalInput{
		AccountValue:  s.cfg.Risk.AccountValue,
		PortfolioRisk: portfolio.TotalRisk,
		VolIndex:      volIndex,
	})
}

// RecordTradePnL folds realized P&L into the daily breaker state.
func (s *Service) RecordTradePnL(delta float64) error {
	if err := s.breakers.RecordPnL(delta); err != nil {
		return err
	}
	return s.breakers.RecordTrade()
}

// EntryRequest asks for an entry evaluation of one candidate.
type EntryRequest struct {
	Strategy models.Strategy `json:"strategy"`
	Symbol   string          `json:"symbol"`
}

// EvaluateEntry derives ATR from trailing history and the ATM IV from
// the surface, then applies the ordered entry rules.
func (s *Service) EvaluateEntry(ctx context.Context, req EntryRequest) (decision.EntryDecision, error) {
	underlying, err := s.provider.GetUnderlying(ctx, req.Symbol)
	if err != nil {
		return decision.EntryDecision{}, fmt.Errorf("entry %s: %w", req.Symbol, err)
	}
	bars, err := s.provider.GetHistory(ctx, req.Symbol, historyDays)
	if err != nil {
		return decision.EntryDecision{}, fmt.Errorf("entry %s: %w", req.Symbol, err)
	}
	snapshot, err := s.provider.GetChain(ctx, req.Symbol)
	if err != nil {
		return decision.EntryDecision{}, fmt.Errorf("entry %s: %w", req.Symbol, err)
	}
	surface, err := s.surface.Analyze(snapshot)
	if err != nil {
		return decision.EntryDecision{}, fmt.Errorf("entry %s: %w", req.Symbol, err)
	}

	return s.rules.EvaluateEntry(&decision.EntryContext{
		Strategy: &req.Strategy,
		Spot:     underlying.Price,
		ATR:      pricing.ATR(bars, 14),
		IV:       surface.ATMIV,
		RiskFree: s.cfg.Simulation.RiskFreeRate,
		Now:      time.Now().UTC(),
	}), nil
}

// ExitRequest asks for an exit evaluation of one tracked position.
type ExitRequest struct {
	PositionID string  `json:"position_id"`
	ProfitPct  float64 `json:"profit_pct"`
}

// EvaluateExit folds the latest underlying price into the position's
// session history and applies the ordered exit rules.
func (s *Service) EvaluateExit(ctx context.Context, req ExitRequest) (decision.ExitDecision, error) {
	pos, ok := s.store.GetPosition(req.PositionID)
	if !ok {
		return decision.ExitDecision{}, fmt.Errorf("exit: %w", storage.ErrPositionNotFound)
	}
	underlying, err := s.provider.GetUnderlying(ctx, pos.Symbol)
	if err != nil {
		return decision.ExitDecision{}, fmt.Errorf("exit %s: %w", pos.Symbol, err)
	}

	sh := s.history(pos.Symbol)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := time.Now().UTC()
	sh.history.Add(underlying.Price, now)

	return s.rules.EvaluateExit(&decision.ExitContext{
		Position:  &pos,
		History:   sh.history,
		ProfitPct: req.ProfitPct,
		Now:       now,
	})
}

// history returns the per-symbol session history entry, creating it on
// first use.
func (s *Service) history(symbol string) *symbolHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.histories[symbol]
	if !ok {
		sh = &symbolHistory{history: models.NewPriceHistory(s.cfg.Monitor.HistoryCapacity)}
		s.histories[symbol] = sh
	}
	return sh
}

// TrackRequest records a new position in the store.
type TrackRequest struct {
	Symbol     string              `json:"symbol"`
	Strategy   models.StrategyType `json:"strategy"`
	Legs       []models.Leg        `json:"legs"`
	EntryPrice float64             `json:"entry_price"`
	Contracts  int                 `json:"contracts"`
	MaxRisk    float64             `json:"max_risk"`
	Expiration time.Time           `json:"expiration"`
	Strike     float64             `json:"strike"`
}

// TrackPosition validates and persists a new open position.
func (s *Service) TrackPosition(_ context.Context, req TrackRequest) (*models.Position, error) {
	pos := models.NewPosition(req.Symbol, req.Strategy, req.Legs, req.EntryPrice, req.Contracts, req.Expiration, req.Strike, time.Now())
	pos.MaxRisk = req.MaxRisk
	if err := s.store.AddPosition(*pos); err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"position": pos.ID,
			"symbol":   pos.Symbol,
		}).Info("position tracked")
	}
	return pos, nil
}

// ClosePosition closes a tracked position and records the realized P&L
// against the daily breakers.
func (s *Service) ClosePosition(_ context.Context, id string, exitPrice float64, reason string, realizedPnL float64) error {
	if err := s.store.ClosePosition(id, exitPrice, reason, time.Now()); err != nil {
		return err
	}
	return s.RecordTradePnL(realizedPnL)
}
