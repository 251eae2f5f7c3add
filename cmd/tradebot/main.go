package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/tradebot/config"
	"github.com/alejandrodnm/tradebot/internal/adapters/broker/live"
	"github.com/alejandrodnm/tradebot/internal/adapters/broker/paper"
	"github.com/alejandrodnm/tradebot/internal/adapters/notify"
	"github.com/alejandrodnm/tradebot/internal/adapters/storage"
	"github.com/alejandrodnm/tradebot/internal/application/bot"
	"github.com/alejandrodnm/tradebot/internal/domain"
	"github.com/alejandrodnm/tradebot/internal/ports"
	"github.com/alejandrodnm/tradebot/internal/risk"
	"github.com/alejandrodnm/tradebot/internal/strategy"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	mode := flag.String("mode", "", "trading mode: paper|live (overrides config)")
	strategyName := flag.String("strategy", "sma", "signal strategy: sma|momentum")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *mode != "" {
		cfg.Trading.Mode = *mode
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("tradebot starting",
		"config", *configPath,
		"mode", cfg.Trading.Mode,
		"strategy", *strategyName,
		"symbols", cfg.Trading.Symbols,
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN, cfg.Storage.RecordTicks)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	gate, err := risk.New(risk.Config{
		MaxPositionSize:   cfg.Risk.MaxPositionSize,
		MaxTotalExposure:  cfg.Risk.MaxTotalExposure,
		MaxDailyLoss:      cfg.Risk.MaxDailyLoss,
		MaxOrdersPerMin:   cfg.Risk.MaxOrdersPerMin,
		StopLossPct:       cfg.Risk.StopLossPct,
		TakeProfitPct:     cfg.Risk.TakeProfitPct,
		SizingMethod:      cfg.Risk.SizingMethod,
		FixedPositionSize: cfg.Risk.FixedPositionSize,
		RiskPerTradePct:   cfg.Risk.RiskPerTradePct,
		MinPrice:          cfg.Risk.MinPrice,
		MaxPrice:          cfg.Risk.MaxPrice,
		HoursStart:        cfg.Trading.HoursStart,
		HoursEnd:          cfg.Trading.HoursEnd,
	}, store)
	if err != nil {
		slog.Error("failed to build risk gate", "err", err)
		os.Exit(1)
	}

	venue := live.New(live.Config{
		APIBase:        cfg.Venue.APIBase,
		FeedURL:        cfg.Venue.FeedURL,
		APIToken:       cfg.Venue.APIToken,
		APISecret:      cfg.Venue.APISecret,
		ReconnectDelay: cfg.ReconnectDelay(),
		MaxReconnects:  cfg.Venue.MaxReconnects,
		Heartbeat:      cfg.HeartbeatInterval(),
		Freshness:      cfg.FreshnessWindow(),
		Bounds: domain.SanityBounds{
			MinPrice:      cfg.Risk.MinPrice,
			MaxPrice:      cfg.Risk.MaxPrice,
			MaxTickChange: cfg.Risk.MaxTickChange,
		},
	}, slog.Default())

	// En modo paper el venue real solo aporta datos; la ejecución es virtual
	var broker ports.Broker = venue
	if cfg.Trading.Mode == "paper" {
		broker = paper.New(venue, cfg.Trading.PaperBalance, slog.Default())
	}

	var signals ports.SignalGenerator
	switch *strategyName {
	case "momentum":
		signals = strategy.NewMomentum(0.01)
	default:
		signals = strategy.NewSMACrossover(0, 0)
	}

	b := bot.New(bot.Config{
		Symbols:         cfg.Trading.Symbols,
		ReferenceSymbol: cfg.Trading.ReferenceSymbol,
		StatusInterval:  cfg.StatusInterval(),
	}, broker, signals, gate, store, notify.NewConsole(), slog.Default())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := b.Run(ctx); err != nil {
		slog.Error("bot exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("tradebot stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
