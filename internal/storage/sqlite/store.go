package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"llm-backtester/internal/interfaces"
	"llm-backtester/internal/types"
)

// Store keeps finished runs, their valuation series and session outcomes.
type Store struct {
	db *sql.DB
}

var _ interfaces.Sink = (*Store)(nil)

type RunRecord struct {
	ID             string
	Ticker         string
	Start          string
	End            string
	InitialCapital float64
	FinalValue     float64
	TotalReturn    float64
	SharpeRatio    float64
	MaxDrawdown    float64
	RiskScore      int
	Stopped        bool
	CreatedAt      string
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    ticker TEXT NOT NULL,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    initial_capital REAL NOT NULL,
    final_value REAL NOT NULL,
    total_return REAL,
    sharpe_ratio REAL,
    max_drawdown REAL,
    risk_score INTEGER NOT NULL,
    executed INTEGER NOT NULL,
    skipped INTEGER NOT NULL,
    fallbacks INTEGER NOT NULL,
    stopped INTEGER NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS valuations (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    date TEXT NOT NULL,
    portfolio_value REAL NOT NULL,
    daily_return REAL NOT NULL,
    PRIMARY KEY (run_id, date)
);

CREATE TABLE IF NOT EXISTS outcomes (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    date TEXT NOT NULL,
    state TEXT NOT NULL,
    skip_reason TEXT,
    action TEXT,
    requested_qty INTEGER,
    executed_qty INTEGER NOT NULL,
    price REAL,
    cash REAL NOT NULL,
    position INTEGER NOT NULL,
    portfolio_value REAL NOT NULL,
    fallback TEXT,
    decision_json TEXT,
    PRIMARY KEY (run_id, date)
);

CREATE INDEX IF NOT EXISTS idx_runs_ticker_created ON runs(ticker, created_at);
`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Publish stores the whole run in one transaction. Publishing the same run
// id again replaces the earlier copy.
func (s *Store) Publish(ctx context.Context, r *types.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, r.RunID); err != nil {
		return fmt.Errorf("replace run: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO runs (id, ticker, start_date, end_date, initial_capital, final_value, total_return,
    sharpe_ratio, max_drawdown, risk_score, executed, skipped, fallbacks, stopped)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, r.RunID, r.Ticker, r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly), r.InitialCapital,
		r.FinalValue(), nullFloat(r.Report.TotalReturn), nullFloat(r.Report.SharpeRatio),
		nullFloat(r.Report.MaxDrawdown), r.Report.RiskScore, r.Executed, r.Skipped, r.Fallbacks, r.Stopped)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, v := range r.Records {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO valuations (run_id, date, portfolio_value, daily_return) VALUES (?, ?, ?, ?)
`, r.RunID, v.Date.Format(time.DateOnly), v.PortfolioValue, v.DailyReturn); err != nil {
			return fmt.Errorf("insert valuation %s: %w", v.Date.Format(time.DateOnly), err)
		}
	}

	for _, o := range r.Outcomes {
		var action, fallback, decisionJSON sql.NullString
		var requested sql.NullInt64
		if o.Decision != nil {
			action = sql.NullString{String: o.Decision.Action, Valid: true}
			requested = sql.NullInt64{Int64: int64(o.Decision.Quantity), Valid: true}
			fallback = sql.NullString{String: string(o.Decision.Fallback), Valid: o.Decision.IsFallback()}
			raw, err := json.Marshal(o.Decision)
			if err != nil {
				return fmt.Errorf("encode decision %s: %w", o.Date.Format(time.DateOnly), err)
			}
			decisionJSON = sql.NullString{String: string(raw), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO outcomes (run_id, date, state, skip_reason, action, requested_qty, executed_qty, price,
    cash, position, portfolio_value, fallback, decision_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, r.RunID, o.Date.Format(time.DateOnly), string(o.State), string(o.SkipReason), action, requested,
			o.ExecutedQuantity, o.Price, o.Cash, o.Position, o.PortfolioValue, fallback, decisionJSON); err != nil {
			return fmt.Errorf("insert outcome %s: %w", o.Date.Format(time.DateOnly), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// ListRuns returns stored runs for ticker, newest first. An empty ticker
// lists every run.
func (s *Store) ListRuns(ctx context.Context, ticker string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, ticker, start_date, end_date, initial_capital, final_value,
    COALESCE(total_return, 0), COALESCE(sharpe_ratio, 0), COALESCE(max_drawdown, 0),
    risk_score, stopped, created_at
FROM runs
WHERE ? = '' OR ticker = ?
ORDER BY created_at DESC, rowid DESC
LIMIT ?
`, strings.ToUpper(ticker), strings.ToUpper(ticker), limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.Ticker, &r.Start, &r.End, &r.InitialCapital, &r.FinalValue,
			&r.TotalReturn, &r.SharpeRatio, &r.MaxDrawdown, &r.RiskScore, &r.Stopped, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Valuations returns the stored valuation series of a run in date order.
func (s *Store) Valuations(ctx context.Context, runID string) ([]types.ValuationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT date, portfolio_value, daily_return FROM valuations WHERE run_id = ? ORDER BY date
`, runID)
	if err != nil {
		return nil, fmt.Errorf("list valuations: %w", err)
	}
	defer rows.Close()

	var out []types.ValuationRecord
	for rows.Next() {
		var date string
		var v types.ValuationRecord
		if err := rows.Scan(&date, &v.PortfolioValue, &v.DailyReturn); err != nil {
			return nil, fmt.Errorf("scan valuation: %w", err)
		}
		v.Date, err = time.Parse(time.DateOnly, date)
		if err != nil {
			return nil, fmt.Errorf("parse valuation date %q: %w", date, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Outcomes returns the skip reason (empty when recorded) of each stored
// session of a run, keyed by date.
func (s *Store) Outcomes(ctx context.Context, runID string) (map[string]types.SkipReason, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date, COALESCE(skip_reason, '') FROM outcomes WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	out := map[string]types.SkipReason{}
	for rows.Next() {
		var date, reason string
		if err := rows.Scan(&date, &reason); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		out[date] = types.SkipReason(reason)
	}
	return out, rows.Err()
}

// nullFloat maps NaN and infinities to NULL.
func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}
