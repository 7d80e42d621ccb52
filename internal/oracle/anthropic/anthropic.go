package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"llm-backtester/internal/interfaces"
	"llm-backtester/internal/logger"
	"llm-backtester/internal/oracle"
	"llm-backtester/internal/store"
	"llm-backtester/internal/trace"
	"llm-backtester/internal/types"
)

const (
	// default messages endpoint (public Anthropic); proxies set oracle.endpoint
	defaultEndpoint = "https://api.anthropic.com"
	apiVersion      = "2023-06-01"
)

// Oracle calls the Anthropic Messages API and hands back the assistant text.
type Oracle struct {
	cfg    *store.Config
	client *resty.Client
	data   interfaces.DataProvider
}

var _ interfaces.Oracle = (*Oracle)(nil)

func New(cfg *store.Config, apiKey string) *Oracle {
	endpoint := cfg.Oracle.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(endpoint, "/"))
	client.SetTimeout(time.Duration(cfg.Oracle.TimeoutSeconds) * time.Second)
	client.SetHeader("x-api-key", apiKey)
	client.SetHeader("anthropic-version", apiVersion)
	client.SetHeader("Content-Type", "application/json")

	return &Oracle{cfg: cfg, client: client}
}

// WithMarketData lets the prompt carry indicators computed from data.
func (o *Oracle) WithMarketData(data interfaces.DataProvider) *Oracle {
	o.data = data
	return o
}

func (o *Oracle) Consult(ctx context.Context, req types.OracleRequest) (types.OracleResult, error) {
	ctx, span := trace.StartSpan(ctx, "claude-api-call")
	defer span.End()

	system, user, err := oracle.Prompt(o.cfg.Oracle.System, o.cfg.Oracle.Schema, oracle.BuildState(ctx, o.data, req))
	if err != nil {
		return types.OracleResult{}, err
	}
	reqBody := map[string]any{
		"model":  o.cfg.Oracle.Model,
		"system": system,
		"messages": []map[string]string{
			{"role": "user", "content": user},
		},
		"max_tokens":  o.cfg.Oracle.MaxTokens,
		"temperature": o.cfg.Oracle.Temperature,
	}

	start := time.Now()
	resp, err := o.client.R().
		SetContext(ctx).
		SetBody(reqBody).
		Post("/v1/messages")
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return types.OracleResult{}, ctx.Err()
		}
		return types.OracleResult{}, fmt.Errorf("%w: claude request: %v", types.ErrOracleTransient, err)
	}

	logger.Debug(ctx, "Received response from Claude",
		"ticker", req.Ticker,
		"status_code", resp.StatusCode(),
		"latency_ms", latency.Milliseconds(),
	)

	if resp.IsError() {
		return types.OracleResult{}, oracle.StatusError("claude", resp.StatusCode(), resp.String())
	}

	text, ok := extractText(resp.Body())
	if !ok {
		logger.Warn(ctx, "Claude response has no text block, using raw body", "ticker", req.Ticker)
		text = resp.String()
	}
	return types.OracleResult{Raw: text}, nil
}

// extractText drills the common response shapes for the assistant text:
// content blocks, legacy completion fields, then chat style choices.
func extractText(body []byte) (string, bool) {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return "", false
	}

	if blocks, ok := m["content"].([]any); ok {
		var sb strings.Builder
		for _, b := range blocks {
			if bm, ok := b.(map[string]any); ok && bm["type"] == "text" {
				if s, ok := bm["text"].(string); ok {
					sb.WriteString(s)
				}
			}
		}
		if strings.TrimSpace(sb.String()) != "" {
			return sb.String(), true
		}
	}

	for _, k := range []string{"completion", "output", "output_text", "completion_text", "result"} {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}

	if choices, ok := m["choices"].([]any); ok && len(choices) > 0 {
		if c0, ok := choices[0].(map[string]any); ok {
			if msg, ok := c0["message"].(map[string]any); ok {
				if s, ok := msg["content"].(string); ok {
					return s, true
				}
			}
			if s, ok := c0["text"].(string); ok {
				return s, true
			}
		}
	}
	return "", false
}
