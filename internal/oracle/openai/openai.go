package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"llm-backtester/internal/interfaces"
	"llm-backtester/internal/oracle"
	"llm-backtester/internal/store"
	"llm-backtester/internal/trace"
	"llm-backtester/internal/types"
)

const defaultEndpoint = "https://api.openai.com/v1"

// Oracle asks an OpenAI compatible chat completions endpoint for a decision
// and returns the assistant content as raw text.
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
	client.SetAuthToken(apiKey)
	client.SetHeader("Content-Type", "application/json")

	return &Oracle{cfg: cfg, client: client}
}

// WithMarketData lets the prompt carry indicators computed from data.
func (o *Oracle) WithMarketData(data interfaces.DataProvider) *Oracle {
	o.data = data
	return o
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (o *Oracle) Consult(ctx context.Context, req types.OracleRequest) (types.OracleResult, error) {
	ctx, span := trace.StartSpan(ctx, "openai-api-call")
	defer span.End()

	system, user, err := oracle.Prompt(o.cfg.Oracle.System, o.cfg.Oracle.Schema, oracle.BuildState(ctx, o.data, req))
	if err != nil {
		return types.OracleResult{}, err
	}
	body := map[string]any{
		"model": o.cfg.Oracle.Model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"temperature": o.cfg.Oracle.Temperature,
		"max_tokens":  o.cfg.Oracle.MaxTokens,
	}

	resp, err := o.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/chat/completions")
	if err != nil {
		if ctx.Err() != nil {
			return types.OracleResult{}, ctx.Err()
		}
		return types.OracleResult{}, fmt.Errorf("%w: openai request: %v", types.ErrOracleTransient, err)
	}
	if resp.IsError() {
		return types.OracleResult{}, oracle.StatusError("openai", resp.StatusCode(), resp.String())
	}

	var r chatResponse
	if err := json.Unmarshal(resp.Body(), &r); err != nil {
		return types.OracleResult{}, fmt.Errorf("%w: openai response: %v", types.ErrOracleMalformed, err)
	}
	if len(r.Choices) == 0 {
		return types.OracleResult{}, fmt.Errorf("%w: openai returned no choices", types.ErrOracleMalformed)
	}

	return types.OracleResult{Raw: strings.TrimSpace(r.Choices[0].Message.Content)}, nil
}
