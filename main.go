package main

import (
	"context"
	"fmt"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"

	"signalTrader/config"
	"signalTrader/internal/adapters/binancebroker"
	"signalTrader/internal/adapters/logger"
	"signalTrader/internal/adapters/notify"
	"signalTrader/internal/adapters/sqlite"
	"signalTrader/internal/adapters/telegramsource"
	"signalTrader/internal/execution"
	"signalTrader/internal/monitor"
	"signalTrader/internal/parser"
	"signalTrader/internal/risk"
	"signalTrader/internal/tracker"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := logger.NewZapLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Audit Repository (Database Adapter)
	auditRepo, err := sqlite.NewAuditRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize audit repository")
		log.Fatalf("FATAL: Failed to initialize audit repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := auditRepo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing audit repository")
		}
	}()
	appLogger.Info(ctx, "Audit repository initialized")

	// 4. Initialize Broker Client (Binance Adapter)
	broker, err := binancebroker.New(binancebroker.Config{
		APIKey:      cfg.APIKey,
		SecretKey:   cfg.SecretKey,
		UseTestnet:  cfg.IsTestnet,
		Logger:      appLogger,
		MarginAsset: cfg.MarginAsset,
		Leverage:    cfg.Leverage,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize broker client")
		log.Fatalf("FATAL: Failed to initialize broker client: %v", err)
	}
	if err := broker.Connect(ctx); err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to connect to broker")
		log.Fatalf("FATAL: Failed to connect to broker: %v", err)
	}
	appLogger.Info(ctx, "Broker client initialized")

	// 5. Initialize Telegram Source and Notifier
	source, err := telegramsource.New(telegramsource.Config{
		Token:  cfg.TelegramToken,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Telegram source")
		log.Fatalf("FATAL: Failed to initialize Telegram source: %v", err)
	}
	notifier, err := notify.New(notify.Config{
		Token:  cfg.TelegramToken,
		ChatID: cfg.OperatorChatID,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize notifier")
		log.Fatalf("FATAL: Failed to initialize notifier: %v", err)
	}
	appLogger.Info(ctx, "Telegram source and notifier initialized")

	// 6. Initialize Signal Parser
	signalParser, err := parser.New(parser.Config{
		Mode:               cfg.ParserMode,
		FallbackSymbol:     cfg.FallbackSymbol,
		FamilyHints:        cfg.FamilyHints,
		EstimateStopOffset: cfg.EstimateStopOffset,
	}, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize signal parser")
		log.Fatalf("FATAL: Failed to initialize signal parser: %v", err)
	}

	// 7. Initialize Order Sizer
	sizer, err := risk.NewSizer(risk.Config{
		FixedLot:             cfg.FixedLot,
		UseRiskSizing:        cfg.UseRiskSizing,
		RiskFraction:         cfg.RiskFraction,
		BaseDeviationPoints:  cfg.BaseDeviationPoints,
		VolatilityMultiplier: cfg.VolatilityMultiplier,
		HighVolSymbols:       cfg.HighVolSymbols,
	}, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize order sizer")
		log.Fatalf("FATAL: Failed to initialize order sizer: %v", err)
	}

	// 8. Initialize Position Tracker
	positionTracker, err := tracker.New(tracker.Config{
		Interval:        cfg.TrackerInterval,
		HistoryLookback: cfg.HistoryLookback,
	}, appLogger, broker, notifier)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize position tracker")
		log.Fatalf("FATAL: Failed to initialize position tracker: %v", err)
	}

	// 9. Initialize Execution Engine
	engine, err := execution.New(execution.Config{
		FullMarginMaxOrders: cfg.FullMarginMaxOrders,
		VerifyDelay:         cfg.VerifyDelay,
	}, appLogger, broker, sizer, positionTracker)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize execution engine")
		log.Fatalf("FATAL: Failed to initialize execution engine: %v", err)
	}

	// 10. Initialize Channel Monitor
	channelMonitor, err := monitor.New(monitor.Config{
		Channels:             cfg.Channels,
		ReconnectBaseDelay:   cfg.ReconnectBaseDelay,
		ReconnectMaxDelay:    cfg.ReconnectMaxDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		DedupWindow:          cfg.DedupWindow,
	}, appLogger, source, signalParser, engine, notifier, auditRepo)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize channel monitor")
		log.Fatalf("FATAL: Failed to initialize channel monitor: %v", err)
	}

	// 11. Run until a shutdown signal arrives
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go positionTracker.Run(runCtx)

	notifier.Send(runCtx, fmt.Sprintf("Signal trader started. Monitoring %d channels.", len(cfg.Channels)), "🤖 Bot Online")
	appLogger.Info(runCtx, "Signal trader started", map[string]interface{}{"channels": len(cfg.Channels)})

	if err := channelMonitor.Run(runCtx); err != nil {
		appLogger.Error(runCtx, err, "Channel monitor exited with error")
		log.Fatalf("FATAL: Channel monitor exited with error: %v", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}
