package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
ticker: aapl
start_date: 2024-01-02
end_date: 2024-03-01
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, "AAPL", cfg.Ticker)
	assert.Equal(t, 100000.0, cfg.InitialCapital)
	assert.Equal(t, 5, cfg.ContextSize)
	assert.Equal(t, "YAHOO", cfg.DataSource)
	assert.Equal(t, "NYSE", cfg.Calendar.Source)
	assert.Equal(t, "NOOP", cfg.Oracle.Provider)
	assert.Equal(t, 8, cfg.Limiter.MaxCalls)
	assert.Equal(t, time.Minute, cfg.Window())
	assert.Equal(t, 6*time.Second, cfg.MinSpacing())
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 60, cfg.Retry.QuotaPauseSeconds)
	assert.Equal(t, 10, cfg.Retry.MaxQuotaPauses)

	start, err := cfg.Start()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), start)
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse([]byte(minimal + `
initial_capital: 2500
data_source: parquet
data:
  parquet_dir: ./bars
oracle:
  provider: openai
  model: gpt-4o-mini
limiter:
  max_calls: 20
  min_spacing_seconds: 1
calendar:
  closures: ["2024-01-09"]
`))
	require.NoError(t, err)

	assert.Equal(t, 2500.0, cfg.InitialCapital)
	assert.Equal(t, "PARQUET", cfg.DataSource)
	assert.Equal(t, "OPENAI", cfg.Oracle.Provider)
	assert.Equal(t, 20, cfg.Limiter.MaxCalls)
	assert.Equal(t, time.Second, cfg.MinSpacing())
	assert.Equal(t, []string{"2024-01-09"}, cfg.Calendar.Closures)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing ticker":    "start_date: 2024-01-02\nend_date: 2024-03-01\n",
		"bad date":          "ticker: AAPL\nstart_date: 01/02/2024\nend_date: 2024-03-01\n",
		"start after end":   "ticker: AAPL\nstart_date: 2024-03-01\nend_date: 2024-01-02\n",
		"negative capital":  minimal + "initial_capital: -5\n",
		"unknown source":    minimal + "data_source: BLOOMBERG\n",
		"parquet no dir":    minimal + "data_source: PARQUET\n",
		"unknown provider":  minimal + "oracle:\n  provider: GEMINI\n",
		"unknown calendar":  minimal + "calendar:\n  source: LSE\n",
		"bad closure":       minimal + "calendar:\n  closures: [tomorrow]\n",
		"negative attempts": minimal + "retry:\n  max_attempts: -1\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config validation failed")
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", cfg.Ticker)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultFailsValidationUntilFilled(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Validate())

	cfg.Ticker = "MSFT"
	cfg.StartDate = "2024-01-02"
	cfg.EndDate = "2024-01-31"
	assert.NoError(t, cfg.Validate())
}

func TestDecodeSkipsValidation(t *testing.T) {
	cfg, err := Decode([]byte("data_source: parquet\n"))
	require.NoError(t, err)
	assert.Equal(t, "PARQUET", cfg.DataSource)
	assert.Error(t, cfg.Validate())

	_, err = Decode([]byte("ticker: [unclosed"))
	assert.Error(t, err)
}

func TestExampleConfigIsValid(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "AAPL", cfg.Ticker)
	assert.Equal(t, "CLAUDE", cfg.Oracle.Provider)
	assert.Equal(t, 10, cfg.Retry.MaxQuotaPauses)
	assert.Equal(t, time.Minute, cfg.Window())
}

func TestClosureDatesTrimWhitespace(t *testing.T) {
	cfg, err := Parse([]byte(minimal + "calendar:\n  closures: [\" 2024-01-09 \", \"2024-02-01\"]\n"))
	require.NoError(t, err)

	dates, err := cfg.ClosureDates()
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}, dates)

	cfg.Calendar.Closures = []string{"09/01/2024"}
	_, err = cfg.ClosureDates()
	assert.ErrorContains(t, err, "calendar.closures")
}
