package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-backtester/internal/store"
	"llm-backtester/internal/types"
)

func testConfig(endpoint string) *store.Config {
	cfg := store.Default()
	cfg.Oracle.Provider = "CLAUDE"
	cfg.Oracle.Model = "claude-test"
	cfg.Oracle.Endpoint = endpoint
	cfg.Oracle.TimeoutSeconds = 5
	return cfg
}

var request = types.OracleRequest{
	Ticker:    "MSFT",
	StartDate: time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC),
	EndDate:   time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
	Portfolio: types.Portfolio{Cash: 500},
}

func TestConsultJoinsTextBlocks(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key-test", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"action\":"},{"type":"tool_use"},{"type":"text","text":"\"sell\"}"}]}`))
	}))
	defer srv.Close()

	res, err := New(testConfig(srv.URL), "key-test").Consult(context.Background(), request)
	require.NoError(t, err)

	assert.Equal(t, `{"action":"sell"}`, res.Raw)
	assert.Equal(t, "claude-test", got["model"])
	assert.NotEmpty(t, got["system"])
}

func TestConsultRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error"}}`))
	}))
	defer srv.Close()

	_, err := New(testConfig(srv.URL), "key-test").Consult(context.Background(), request)
	assert.ErrorIs(t, err, types.ErrOracleQuotaExceeded)
}

func TestConsultOverloadedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(529)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error"}}`))
	}))
	defer srv.Close()

	_, err := New(testConfig(srv.URL), "key-test").Consult(context.Background(), request)
	assert.ErrorIs(t, err, types.ErrOracleTransient)
}

func TestExtractText(t *testing.T) {
	cases := map[string]string{
		`{"completion":"{\"action\":\"hold\"}"}`:                       `{"action":"hold"}`,
		`{"choices":[{"message":{"content":"chat"}}]}`:                  "chat",
		`{"choices":[{"text":"legacy"}]}`:                               "legacy",
		`{"content":[{"type":"text","text":"block"}],"completion":"x"}`: "block",
	}
	for body, want := range cases {
		got, ok := extractText([]byte(body))
		assert.True(t, ok, body)
		assert.Equal(t, want, got, body)
	}

	_, ok := extractText([]byte("plain text"))
	assert.False(t, ok)
	_, ok = extractText([]byte(`{"content":[]}`))
	assert.False(t, ok)
}

func TestConsultFallsBackToRawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"action":"buy","quantity":2}`))
	}))
	defer srv.Close()

	res, err := New(testConfig(srv.URL), "key-test").Consult(context.Background(), request)
	require.NoError(t, err)
	assert.Equal(t, `{"action":"buy","quantity":2}`, res.Raw)
}
