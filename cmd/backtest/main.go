package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"llm-backtester/internal/logger"
	"llm-backtester/internal/marketdata/parquet"
	"llm-backtester/internal/storage/sqlite"
	"llm-backtester/internal/store"
	"llm-backtester/internal/types"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "backtest",
		Short: "Backtest an LLM trading oracle on daily bars",
		Long: `backtest replays a date range one trading session at a time. For every session
the decision oracle sees only data up to the previous session, and its decision
is filled at that session's open.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initializeSystem()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			shutdownSystem()
		},
	}
	root.PersistentFlags().String("config", "config.yaml", "Configuration file path")

	root.AddCommand(newRunCmd())
	root.AddCommand(newFetchCmd())
	root.AddCommand(newRunsCmd())
	return root
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// configFromFlags loads the config file and applies the flags that were set.
func configFromFlags(ctx context.Context, cmd *cobra.Command) (*store.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(ctx, path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("ticker") {
		v, _ := flags.GetString("ticker")
		cfg.Ticker = strings.ToUpper(strings.TrimSpace(v))
	}
	if flags.Changed("start") {
		cfg.StartDate, _ = flags.GetString("start")
	}
	if flags.Changed("end") {
		cfg.EndDate, _ = flags.GetString("end")
	}
	if flags.Changed("capital") {
		cfg.InitialCapital, _ = flags.GetFloat64("capital")
	}
	if flags.Changed("context-size") {
		cfg.ContextSize, _ = flags.GetInt("context-size")
	}
	if flags.Changed("source") {
		v, _ := flags.GetString("source")
		cfg.DataSource = strings.ToUpper(v)
	}
	if flags.Changed("provider") {
		v, _ := flags.GetString("provider")
		cfg.Oracle.Provider = strings.ToUpper(v)
	}
	if flags.Changed("assess-risk") {
		cfg.AssessRisk, _ = flags.GetBool("assess-risk")
	}
	if flags.Changed("csv-dir") {
		cfg.Output.CSVDir, _ = flags.GetString("csv-dir")
	}
	if flags.Changed("db") {
		cfg.Output.SQLitePath, _ = flags.GetString("db")
	}
	if flags.Changed("quiet") {
		cfg.Output.Quiet, _ = flags.GetBool("quiet")
	}
	return cfg, nil
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a backtest over a date range",
		Example: `  backtest run --ticker AAPL --start 2024-01-02 --end 2024-03-28
  backtest run --config config.yaml --provider claude --assess-risk
  backtest run --ticker AAPL --start 2024-01-02 --end 2024-03-28 --replay logs/AAPL_2024-01-02_2024-03-28_1a2b3c4d.jsonl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			cfg, err := configFromFlags(ctx, cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config validation failed: %w", err)
			}
			compressOldLogs(ctx, tradeLogDir(cfg))

			replay, _ := cmd.Flags().GetString("replay")
			bt, closeFn, err := initializeBacktest(ctx, cfg, replay)
			if err != nil {
				if errors.Is(err, types.ErrInvalidParams) {
					return err
				}
				return fmt.Errorf("failed to initialize backtest: %w", err)
			}
			defer closeFn()

			res, err := bt.Run(ctx)
			if res != nil && res.Stopped {
				logger.Warn(ctx, "Backtest stopped before the end of the range",
					"recorded", len(res.Records),
				)
			}
			return err
		},
	}

	f := cmd.Flags()
	f.String("ticker", "", "Ticker symbol, e.g. AAPL or a 6-digit code")
	f.String("start", "", "Start date YYYY-MM-DD")
	f.String("end", "", "End date YYYY-MM-DD")
	f.Float64("capital", 100000, "Initial capital")
	f.Int("context-size", 5, "Context items the oracle may consult per decision")
	f.String("source", "YAHOO", "Market data source: YAHOO, ALPACA, KITE or PARQUET")
	f.String("provider", "NOOP", "Oracle provider: OPENAI, CLAUDE or NOOP")
	f.String("replay", "", "Replay decisions from an earlier run's trade log")
	f.Bool("assess-risk", false, "Attach a pre-trade risk assessment to every session")
	f.String("csv-dir", "", "Write the valuation series as CSV into this directory")
	f.String("db", "", "Store the run in this SQLite database")
	f.Bool("quiet", false, "Do not print the trade table")
	return cmd
}

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download daily bars into the parquet store",
		Long: `fetch copies daily bars from a live source into the parquet store so that later
runs can use data_source: PARQUET without network access.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			cfg, err := configFromFlags(ctx, cmd)
			if err != nil {
				return err
			}
			if dir, _ := cmd.Flags().GetString("dir"); cmd.Flags().Changed("dir") || cfg.Data.ParquetDir == "" {
				cfg.Data.ParquetDir = dir
			}
			if cfg.DataSource == "PARQUET" {
				return errors.New("fetch needs a live source, not PARQUET")
			}
			if cfg.Ticker == "" {
				return errors.New("ticker is required")
			}
			start, err := cfg.Start()
			if err != nil {
				return err
			}
			end, err := cfg.End()
			if err != nil {
				return err
			}

			// lookback history for the first sessions comes along
			from := start.AddDate(0, 0, -365)
			n, err := parquet.NewStore(cfg.Data.ParquetDir).Fetch(ctx, initializeProvider(ctx, cfg, cfg.DataSource), cfg.Ticker, from, end)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", cfg.Ticker, err)
			}
			logger.Info(ctx, "Bars stored",
				"ticker", cfg.Ticker,
				"count", n,
				"from", from.Format(time.DateOnly),
				"to", end.Format(time.DateOnly),
				"dir", cfg.Data.ParquetDir,
			)
			fmt.Fprintf(cmd.OutOrStdout(), "%d bars of %s written to %s\n", n, cfg.Ticker, cfg.Data.ParquetDir)
			return nil
		},
	}

	f := cmd.Flags()
	f.String("ticker", "", "Ticker symbol")
	f.String("start", "", "First session date YYYY-MM-DD")
	f.String("end", "", "Last session date YYYY-MM-DD")
	f.String("source", "YAHOO", "Source to copy from: YAHOO, ALPACA or KITE")
	f.String("dir", "data", "Parquet store directory")
	return cmd
}

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs stored in the SQLite database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path, _ := cmd.Flags().GetString("db")
			ticker, _ := cmd.Flags().GetString("ticker")
			limit, _ := cmd.Flags().GetInt("limit")

			db, err := sqlite.Open(path)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.ListRuns(ctx, ticker, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range runs {
				fmt.Fprintf(out, "%s  %-8s %s..%s  final %.2f  return %6.2f%%  sharpe %5.2f  dd %6.2f%%  risk %d/10\n",
					r.ID, r.Ticker, r.Start, r.End, r.FinalValue, r.TotalReturn*100, r.SharpeRatio, r.MaxDrawdown*100, r.RiskScore)
			}
			return nil
		},
	}
	cmd.Flags().String("db", "backtests.db", "SQLite database path")
	cmd.Flags().String("ticker", "", "Only runs of this ticker")
	cmd.Flags().Int("limit", 20, "Maximum number of runs")
	return cmd
}
