package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eddiefleurent/chainlens/internal/config"
	"github.com/eddiefleurent/chainlens/internal/decision"
	"github.com/eddiefleurent/chainlens/internal/marketdata"
	"github.com/eddiefleurent/chainlens/internal/mock"
	"github.com/eddiefleurent/chainlens/internal/ops"
	"github.com/eddiefleurent/chainlens/internal/storage"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load config")
	}
	if level, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	for _, warning := range cfg.Risk.Normalize() {
		logger.Warn(warning)
	}

	logger.WithFields(logrus.Fields{
		"mode":     cfg.Environment.Mode,
		"provider": cfg.Provider.Kind,
	}).Info("Starting chainlens")

	provider := buildProvider(cfg, logger)

	store, err := storage.NewJSONStore(cfg.Storage.PositionsPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open position store")
	}
	breakerStore := storage.NewJSONBreakerStore(cfg.Storage.BreakersPath)

	service := ops.NewService(cfg, provider, store, breakerStore, logger)
	server := ops.NewServer(service, cfg.Server.Port, cfg.Server.AuthToken, logger)

	monitorCtx, stopMonitors := context.WithCancel(context.Background())
	defer stopMonitors()
	startMonitors(monitorCtx, cfg, store, provider, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	select {
	case sig := <-sigChan:
		logger.WithField("signal", sig.String()).Info("Shutdown signal received")
	case err := <-errChan:
		if err != nil {
			logger.WithError(err).Fatal("Server error")
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
	if err := store.Save(); err != nil {
		logger.WithError(err).Error("Failed to save position store")
	}
	logger.Info("Stopped")
}

// startMonitors launches one exit monitor per open position. Decisions
// are logged; acting on them stays with the operator.
func startMonitors(ctx context.Context, cfg *config.Config, store storage.Interface, provider marketdata.Provider, logger *logrus.Logger) {
	engine := decision.NewEngine(nil, nil, logger)
	price := func(ctx context.Context, symbol string) (float64, error) {
		u, err := provider.GetUnderlying(ctx, symbol)
		if err != nil {
			return 0, err
		}
		return u.Price, nil
	}

	for _, pos := range store.OpenPositions() {
		monitor, err := decision.NewMonitor(pos, engine, price, cfg.MonitorInterval(), cfg.Monitor.HistoryCapacity, logger)
		if err != nil {
			logger.WithError(err).WithField("position", pos.ID).Error("Failed to start monitor")
			continue
		}
		entry := logger.WithFields(logrus.Fields{"position": pos.ID, "symbol": pos.Symbol})
		monitor.OnDecision = func(d decision.ExitDecision) {
			if d.Action == decision.ExitHold {
				return
			}
			entry.WithFields(logrus.Fields{
				"action": d.Action,
				"rule":   d.Rule,
				"reason": d.Reason,
			}).Warn("Exit signal")
		}
		go func() {
			if err := monitor.Run(ctx); err != nil && ctx.Err() == nil {
				entry.WithError(err).Error("Monitor stopped")
			}
		}()
		entry.Info("Monitoring position")
	}
}

// buildProvider assembles the provider stack: source, circuit breaker,
// then chain cache.
func buildProvider(cfg *config.Config, logger *logrus.Logger) marketdata.Provider {
	var source marketdata.Provider
	switch cfg.Provider.Kind {
	case "http":
		source = marketdata.NewHTTPProvider(cfg.Provider.APIEndpoint, cfg.Provider.APIKey)
	default:
		source = marketdata.NewMockProvider(mock.DefaultChainParams(), time.Now)
	}
	breaker := marketdata.NewBreakerProvider(source, logger)
	return marketdata.NewCachedProvider(breaker, cfg.CacheTTL(), nil, logger)
}
