package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"llm-backtester/internal/backtest"
	"llm-backtester/internal/backtest/backtestobs"
	"llm-backtester/internal/calendar"
	"llm-backtester/internal/interfaces"
	"llm-backtester/internal/invoker"
	"llm-backtester/internal/logger"
	"llm-backtester/internal/marketdata"
	"llm-backtester/internal/marketdata/alpaca"
	"llm-backtester/internal/marketdata/kite"
	"llm-backtester/internal/marketdata/marketdataobs"
	"llm-backtester/internal/marketdata/parquet"
	"llm-backtester/internal/marketdata/yahoo"
	"llm-backtester/internal/oracle/anthropic"
	"llm-backtester/internal/oracle/noop"
	"llm-backtester/internal/oracle/openai"
	"llm-backtester/internal/oracle/oracleobs"
	"llm-backtester/internal/oracle/scripted"
	"llm-backtester/internal/report"
	"llm-backtester/internal/storage/sqlite"
	"llm-backtester/internal/store"
	"llm-backtester/internal/trace"
	"llm-backtester/internal/tradelog"
)

// initializeSystem loads .env and sets up the logger and tracer
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func shutdownSystem() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = trace.Shutdown(ctx)
}

// loadConfig reads path when it exists and falls back to defaults otherwise.
// The result is not validated yet; flags are applied on top first.
func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info(ctx, "No config file, using defaults", "path", path)
			return store.Default(), nil
		}
		logger.ErrorWithErr(ctx, "Failed to read config", err, "path", path)
		return nil, err
	}
	cfg, err := store.Decode(b)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to parse config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// compressOldLogs compresses old trade logs if retention is configured
func compressOldLogs(ctx context.Context, dir string) {
	v := os.Getenv("BACKTEST_LOG_RETENTION_DAYS")
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn(ctx, "Ignoring invalid BACKTEST_LOG_RETENTION_DAYS", "value", v)
		return
	}
	if err := tradelog.CompressOlder(dir, n); err != nil {
		logger.Warn(ctx, "Failed to compress old logs", "error", err)
	}
}

// initializeCalendar picks the session source
func initializeCalendar(ctx context.Context, cfg *store.Config) interfaces.Calendar {
	if cfg.Calendar.Source == "ALPACA" {
		logger.Info(ctx, "Using Alpaca trading calendar")
		return calendar.NewAlpaca(os.Getenv("APCA_API_KEY_ID"), os.Getenv("APCA_API_SECRET_KEY"), os.Getenv("APCA_API_BASE_URL"))
	}

	// Validate has already parsed the closures
	closures, _ := cfg.ClosureDates()
	return calendar.NewNYSE(calendar.WithClosures("configured closure", closures...))
}

// initializeProvider builds the raw bar source named by source, with
// observability. The backtest adds a cache on top.
func initializeProvider(ctx context.Context, cfg *store.Config, source string) interfaces.DataProvider {
	var provider interfaces.DataProvider

	switch source {
	case "ALPACA":
		provider = alpaca.New(os.Getenv("APCA_API_KEY_ID"), os.Getenv("APCA_API_SECRET_KEY"), cfg.Data.AlpacaFeed)
	case "KITE":
		provider = kite.New(kite.Params{
			APIKey:      os.Getenv("KITE_API_KEY"),
			AccessToken: os.Getenv("KITE_ACCESS_TOKEN"),
			Exchange:    cfg.Data.KiteExchange,
		})
	case "PARQUET":
		provider = parquet.NewStore(cfg.Data.ParquetDir)
	default:
		provider = yahoo.New()
	}
	logger.Info(ctx, "Using market data source", "source", source)

	return marketdataobs.Wrap(provider, source)
}

// initializeOracle picks the decision oracle. A replay file overrides the
// configured provider. HTTP oracles read indicator context from data.
func initializeOracle(ctx context.Context, cfg *store.Config, data interfaces.DataProvider, replayPath string) (interfaces.Oracle, error) {
	if replayPath != "" {
		o, err := scripted.Replay(replayPath)
		if err != nil {
			return nil, fmt.Errorf("load replay %s: %w", replayPath, err)
		}
		logger.Info(ctx, "Replaying recorded decisions", "path", replayPath)
		return oracleobs.Wrap(o, "REPLAY"), nil
	}

	var oracle interfaces.Oracle
	switch cfg.Oracle.Provider {
	case "OPENAI":
		oracle = openai.New(cfg, os.Getenv("OPENAI_API_KEY")).WithMarketData(data)
	case "CLAUDE":
		oracle = anthropic.New(cfg, os.Getenv("ANTHROPIC_API_KEY")).WithMarketData(data)
	default:
		oracle = noop.New()
		logger.Warn(ctx, "No oracle provider configured - using Noop oracle (always HOLD)")
	}
	return oracleobs.Wrap(oracle, cfg.Oracle.Provider), nil
}

func initializeInvoker(cfg *store.Config, oracle interfaces.Oracle) interfaces.Invoker {
	seconds := func(v float64) time.Duration { return time.Duration(v * float64(time.Second)) }
	return invoker.New(oracle, cfg.Ticker,
		invoker.WithLimits(cfg.Limiter.MaxCalls, cfg.Window(), cfg.MinSpacing()),
		invoker.WithRetryPolicy(invoker.RetryPolicy{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			BaseDelay:      seconds(cfg.Retry.BaseDelaySeconds),
			Multiplier:     2,
			MaxDelay:       seconds(cfg.Retry.MaxDelaySeconds),
			QuotaPause:     time.Duration(cfg.Retry.QuotaPauseSeconds) * time.Second,
			MaxQuotaPauses: cfg.Retry.MaxQuotaPauses,
		}),
	)
}

// initializeSinks builds every configured output. The returned func closes
// whatever needs closing.
func initializeSinks(ctx context.Context, cfg *store.Config) ([]interfaces.Sink, func(), error) {
	var sinks []interfaces.Sink
	closeFn := func() {}

	if !cfg.Output.Quiet {
		sinks = append(sinks, report.NewConsole(os.Stdout))
	}
	if cfg.Output.CSVDir != "" {
		sinks = append(sinks, report.NewCSV(cfg.Output.CSVDir))
	}
	sinks = append(sinks, tradelog.New(tradeLogDir(cfg)))
	if cfg.Output.SQLitePath != "" {
		db, err := sqlite.Open(cfg.Output.SQLitePath)
		if err != nil {
			return nil, closeFn, err
		}
		sinks = append(sinks, db)
		closeFn = func() { _ = db.Close() }
	}
	logger.Debug(ctx, "Sinks configured", "count", len(sinks))
	return sinks, closeFn, nil
}

func tradeLogDir(cfg *store.Config) string {
	if cfg.Output.TradeLog != "" {
		return cfg.Output.TradeLog
	}
	return tradelog.LogDir()
}

// initializeBacktest wires the orchestrator with observability
func initializeBacktest(ctx context.Context, cfg *store.Config, replayPath string) (interfaces.Backtester, func(), error) {
	start, _ := cfg.Start()
	end, _ := cfg.End()

	data := marketdata.NewCache(initializeProvider(ctx, cfg, cfg.DataSource))
	oracle, err := initializeOracle(ctx, cfg, data, replayPath)
	if err != nil {
		return nil, nil, err
	}
	sinks, closeFn, err := initializeSinks(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	bt, err := backtest.New(backtest.Params{
		Ticker:         cfg.Ticker,
		Start:          start,
		End:            end,
		InitialCapital: cfg.InitialCapital,
		ContextSize:    cfg.ContextSize,
		AssessRisk:     cfg.AssessRisk,
	}, backtest.Deps{
		Calendar: initializeCalendar(ctx, cfg),
		Data:     data,
		Invoker:  initializeInvoker(cfg, oracle),
		Sinks:    sinks,
	})
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return backtestobs.Wrap(bt, cfg.Ticker), closeFn, nil
}
