package invoker

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"llm-backtester/internal/risk"
	"llm-backtester/internal/types"
)

var validActions = map[string]bool{
	types.ActionBuy:    true,
	types.ActionSell:   true,
	types.ActionHold:   true,
	types.ActionReduce: true,
}

type rawSignal struct {
	Agent      string `json:"agent"`
	Name       string `json:"name"`
	Signal     string `json:"signal"`
	Confidence any    `json:"confidence"`
}

type rawDecision struct {
	Action         string               `json:"action"`
	Quantity       any                  `json:"quantity"`
	Confidence     any                  `json:"confidence"`
	Reasoning      string               `json:"reasoning"`
	Reason         string               `json:"reason"`
	Signals        []rawSignal          `json:"signals"`
	AgentSignals   []rawSignal          `json:"agent_signals"`
	AnalystSignals map[string]rawSignal `json:"analyst_signals"`
	Decision       *rawDecision         `json:"decision"`
}

// Normalize turns an oracle result into a canonical Decision. Structured
// results are cleaned up; raw text is parsed.
func Normalize(res types.OracleResult) (types.Decision, error) {
	if res.Decision != nil {
		d := *res.Decision
		signals := make(map[string]types.AgentSignal, len(d.Signals))
		for k, v := range d.Signals {
			signals[k] = v
		}
		d.Signals = signals
		normalizeDecision(&d)
		return d, nil
	}
	return ParseDecisionText(res.Raw)
}

// ParseDecisionText extracts a decision from free-form oracle output. Markdown
// code fences and prose around the JSON object are tolerated.
func ParseDecisionText(text string) (types.Decision, error) {
	t := stripFences(text)
	if t == "" {
		return types.Decision{}, fmt.Errorf("%w: empty response", types.ErrOracleMalformed)
	}

	var raw rawDecision
	err := json.Unmarshal([]byte(t), &raw)
	if err != nil {
		start := strings.Index(t, "{")
		end := strings.LastIndex(t, "}")
		if start < 0 || end <= start {
			return types.Decision{}, fmt.Errorf("%w: no JSON object in response", types.ErrOracleMalformed)
		}
		raw = rawDecision{}
		if err := json.Unmarshal([]byte(t[start:end+1]), &raw); err != nil {
			return types.Decision{}, fmt.Errorf("%w: %v", types.ErrOracleMalformed, err)
		}
	}

	// {"decision": {...}, "analyst_signals": {...}} wraps the decision
	if raw.Action == "" && raw.Decision != nil {
		inner := *raw.Decision
		if len(inner.Signals) == 0 && len(inner.AgentSignals) == 0 && len(inner.AnalystSignals) == 0 {
			inner.Signals, inner.AgentSignals, inner.AnalystSignals = raw.Signals, raw.AgentSignals, raw.AnalystSignals
		}
		raw = inner
	}

	d := types.Decision{
		Action:     raw.Action,
		Quantity:   toInt(raw.Quantity),
		Confidence: risk.ParseConfidence(raw.Confidence),
		Reasoning:  raw.Reasoning,
		Signals:    make(map[string]types.AgentSignal),
	}
	if d.Reasoning == "" {
		d.Reasoning = raw.Reason
	}

	list := raw.Signals
	if len(list) == 0 {
		list = raw.AgentSignals
	}
	for _, s := range list {
		name := s.Agent
		if name == "" {
			name = s.Name
		}
		if name == "" {
			continue
		}
		d.Signals[name] = toSignal(s)
	}
	for name, s := range raw.AnalystSignals {
		if _, exists := d.Signals[name]; !exists {
			d.Signals[name] = toSignal(s)
		}
	}

	normalizeDecision(&d)
	return d, nil
}

func toSignal(s rawSignal) types.AgentSignal {
	sig := strings.ToLower(strings.TrimSpace(s.Signal))
	if sig == "" {
		sig = "unknown"
	}
	return types.AgentSignal{Signal: sig, Confidence: risk.ParseConfidence(s.Confidence)}
}

func stripFences(text string) string {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "```") {
		if nl := strings.Index(t, "\n"); nl >= 0 {
			t = t[nl+1:]
		} else {
			t = strings.TrimPrefix(t, "```")
		}
		t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	}
	return strings.TrimSpace(t)
}

func toInt(v any) int {
	switch q := v.(type) {
	case float64:
		if math.IsNaN(q) || math.IsInf(q, 0) {
			return 0
		}
		return int(q)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(q), 64)
		if err != nil {
			return 0
		}
		return int(f)
	default:
		return 0
	}
}

func normalizeDecision(d *types.Decision) {
	d.Action = strings.ToLower(strings.TrimSpace(d.Action))
	if !validActions[d.Action] {
		d.Action = types.ActionHold
	}
	if d.Quantity < 0 {
		d.Quantity = 0
	}
	if d.Confidence < 0 || d.Confidence > 1 || math.IsNaN(d.Confidence) {
		d.Confidence = 0
	}
	if d.Signals == nil {
		d.Signals = map[string]types.AgentSignal{}
	}
}
