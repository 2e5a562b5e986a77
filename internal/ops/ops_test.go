package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eddiefleurent/chainlens/internal/config"
	"github.com/eddiefleurent/chainlens/internal/marketdata"
	"github.com/eddiefleurent/chainlens/internal/mock"
	"github.com/eddiefleurent/chainlens/internal/models"
	"github.com/eddiefleurent/chainlens/internal/risk"
	"github.com/eddiefleurent/chainlens/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func testConfig() *config.Config {
	return &config.Config{
		Risk: config.RiskConfig{
			AccountValue:     100000,
			MaxRiskPct:       0.02,
			MinRewardRatio:   1.0,
			MinProbProfit:    0.30,
			MaxConcentration: 0.25,
		},
		Costs: config.CostConfig{
			CommissionPerContract: 0.65,
			RegFeePerContract:     0.05,
			SpreadCaptureRate:     0.5,
		},
		Breakers: config.BreakerConfig{
			MaxDailyLoss:        3000,
			MaxDailyLossPct:     0.05,
			MaxPortfolioRiskPct: 0.20,
			VolIndexSpike:       35,
			MaxPositionLossPct:  0.75,
		},
		Simulation: config.SimulationConfig{
			Paths:        500,
			GridPoints:   11,
			GridRangePct: 0.10,
			HorizonDays:  30,
			RiskFreeRate: 0.03,
		},
		Monitor: config.MonitorConfig{Interval: "1m", HistoryCapacity: 64},
	}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	provider := marketdata.NewMockProvider(mock.DefaultChainParams(), nil)
	return NewService(testConfig(), provider, storage.NewMemoryStore(), storage.NewMemoryBreakerStore(), quietLogger())
}

func sampleVertical() models.Strategy {
	exp := time.Now().UTC().Add(45 * 24 * time.Hour)
	return models.Strategy{
		Type:   models.StrategyBullVertical,
		Symbol: "SPY",
		Legs: []models.Leg{
			{Action: models.ActionBuy, Type: models.OptionTypeCall, Strike: 570, Expiration: exp, Price: 8.50,
				Greeks: models.Greeks{Delta: 0.55, Gamma: 0.02, Theta: -0.09, Vega: 0.40}, Volume: 900},
			{Action: models.ActionSell, Type: models.OptionTypeCall, Strike: 585, Expiration: exp, Price: 3.50,
				Greeks: models.Greeks{Delta: 0.35, Gamma: 0.02, Theta: -0.07, Vega: 0.38}, Volume: 700},
		},
		NetDebit:          5.00,
		MaxProfit:         10.00,
		MaxRisk:           5.00,
		Breakevens:        []float64{575},
		ProbabilityProfit: 0.35,
	}
}

func riskSizeRequest(strat models.Strategy) risk.SizeRequest {
	return risk.SizeRequest{Strategy: strat, LegSpreadTotal: 0.20}
}

func TestAnalyzeChainRunsAllAnalyzers(t *testing.T) {
	svc := newTestService(t)

	result, err := svc.AnalyzeChain(context.Background(), AnalyzeRequest{Symbol: "SPY"})
	require.NoError(t, err)

	assert.InDelta(t, 575.23, result.Underlying.Price, 1e-9)
	require.NotNil(t, result.Exposure)
	require.NotNil(t, result.Surface)
	require.NotNil(t, result.Flow)
	assert.Positive(t, result.Surface.ATMIV)
}

func TestAnalyzeChainRanksIVAgainstRealizedVol(t *testing.T) {
	svc := newTestService(t)

	result, err := svc.AnalyzeChain(context.Background(), AnalyzeRequest{Symbol: "SPY"})
	require.NoError(t, err)

	assert.InDelta(t, result.Surface.ATMIV, result.IVContext.Current, 1e-9)
	assert.InDelta(t, 100, result.IVContext.Rank, 1e-9, "implied trades far above the synthetic realized series")
	assert.InDelta(t, 100, result.IVContext.Percentile, 1e-9)
}

func TestRealizedVolSeries(t *testing.T) {
	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	assert.Nil(t, realizedVolSeries(nil))
	assert.Nil(t, realizedVolSeries(mock.BuildBars(575, realizedVolWindow-1, now)), "short history yields no readings")

	series := realizedVolSeries(mock.BuildBars(575, 30, now))
	require.Len(t, series, 30-realizedVolWindow+1)
	for _, v := range series {
		assert.Positive(t, v)
	}
}

func TestAnalyzeChainRequiresSymbol(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.AnalyzeChain(context.Background(), AnalyzeRequest{})
	assert.ErrorContains(t, err, "symbol is required")
}

func TestGenerateStrategiesProducesCandidates(t *testing.T) {
	svc := newTestService(t)

	result, err := svc.GenerateStrategies(context.Background(), GenerateRequest{Symbol: "SPY"})
	require.NoError(t, err)

	assert.Positive(t, len(result.Ranked)+len(result.Rejected))
	require.NotNil(t, result.Analysis)
}

func TestSizePositionThroughService(t *testing.T) {
	svc := newTestService(t)

	strat := sampleVertical()
	res, err := svc.SizePosition(context.Background(), riskSizeRequest(strat))
	require.NoError(t, err)
	assert.True(t, res.Approved, res.Reason)
	assert.GreaterOrEqual(t, res.Contracts, 1)
}

func TestProjectPnL(t *testing.T) {
	svc := newTestService(t)

	result, err := svc.ProjectPnL(context.Background(), ProjectRequest{
		Strategy:  sampleVertical(),
		Contracts: 2,
		Symbol:    "SPY",
	})
	require.NoError(t, err)

	assert.Len(t, result.Grid, 11)
	assert.Equal(t, 500, result.MonteCarlo.Paths)
	total := result.MonteCarlo.Profitable + result.MonteCarlo.Breakeven + result.MonteCarlo.Losing
	assert.Equal(t, 500, total)
}

func TestEvaluateEntryThroughService(t *testing.T) {
	svc := newTestService(t)

	decision, err := svc.EvaluateEntry(context.Background(), EntryRequest{
		Strategy: sampleVertical(),
		Symbol:   "SPY",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, decision.Action)
	assert.NotEmpty(t, decision.Rule)
}

func TestEvaluateExitUnknownPosition(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.EvaluateExit(context.Background(), ExitRequest{PositionID: "nope"})
	assert.ErrorIs(t, err, storage.ErrPositionNotFound)
}

func TestEvaluateExitConcurrentSameSymbol(t *testing.T) {
	svc := newTestService(t)
	exp := time.Now().UTC().Add(45 * 24 * time.Hour)

	pos, err := svc.TrackPosition(context.Background(), TrackRequest{
		Symbol:     "SPY",
		Strategy:   models.StrategyBullVertical,
		Legs:       sampleVertical().Legs,
		EntryPrice: 5.00,
		Contracts:  1,
		MaxRisk:    5.00,
		Expiration: exp,
		Strike:     585,
	})
	require.NoError(t, err)

	const callers = 8
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			_, err := svc.EvaluateExit(context.Background(), ExitRequest{PositionID: pos.ID})
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, callers, svc.history("SPY").history.Len(), "every evaluation lands exactly one history point")
}

func TestTrackCloseAndBreakerFlow(t *testing.T) {
	svc := newTestService(t)
	exp := time.Now().UTC().Add(45 * 24 * time.Hour)

	pos, err := svc.TrackPosition(context.Background(), TrackRequest{
		Symbol:     "SPY",
		Strategy:   models.StrategyBullVertical,
		Legs:       sampleVertical().Legs,
		EntryPrice: 5.00,
		Contracts:  2,
		MaxRisk:    5.00,
		Expiration: exp,
		Strike:     585,
	})
	require.NoError(t, err)
	require.NotEmpty(t, pos.ID)
	assert.Len(t, svc.store.OpenPositions(), 1)

	require.NoError(t, svc.ClosePosition(context.Background(), pos.ID, 6.50, "profit_target", 300))
	assert.Empty(t, svc.store.OpenPositions())

	decision, err := svc.CheckBreakers(context.Background(), 18)
	require.NoError(t, err)
	assert.False(t, decision.Halted)
	assert.InDelta(t, 300, decision.State.DailyPnL, 1e-9)
	assert.Equal(t, 1, decision.State.TradesToday)
}

func newTestServer(t *testing.T, authToken string) (*Server, *Service) {
	t.Helper()
	svc := newTestService(t)
	return NewServer(svc, 0, authToken, quietLogger()), svc
}

func TestServerHealthOpenWithoutToken(t *testing.T) {
	srv, _ := newTestServer(t, "secret")

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServerAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t, "secret")

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/portfolio", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/portfolio", nil)
	req.Header.Set("X-Auth-Token", "secret")
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/portfolio?token=secret", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServerAnalyzeEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analyze?symbol=SPY", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var result AnalyzeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "SPY", result.Underlying.Symbol)
	require.NotNil(t, result.Exposure)
}

func TestServerSizeEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "")

	payload, err := json.Marshal(riskSizeRequest(sampleVertical()))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/size", bytes.NewReader(payload))
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["approved"])
}

func TestServerPositionLifecycle(t *testing.T) {
	srv, svc := newTestServer(t, "")
	exp := time.Now().UTC().Add(45 * 24 * time.Hour)

	payload, err := json.Marshal(TrackRequest{
		Symbol:     "SPY",
		Strategy:   models.StrategyBullVertical,
		Legs:       sampleVertical().Legs,
		EntryPrice: 5.00,
		Contracts:  1,
		MaxRisk:    5.00,
		Expiration: exp,
		Strike:     585,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/positions", bytes.NewReader(payload)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var pos models.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))
	require.NotEmpty(t, pos.ID)

	closeBody := bytes.NewReader([]byte(`{"exit_price":6.0,"reason":"profit_target","realized_pnl":100}`))
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/positions/"+pos.ID+"/close", closeBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, svc.store.OpenPositions())
}

func TestServerWatchlistRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/watchlist", bytes.NewReader([]byte(`["SPY","QQQ"]`)))
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/watchlist", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var symbols []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &symbols))
	assert.Equal(t, []string{"SPY", "QQQ"}, symbols)
}

func TestServerExitNotFound(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/exit?position=nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
