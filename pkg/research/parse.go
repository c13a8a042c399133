package research

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// defaultConfidence applies when a response omits a usable confidence.
const defaultConfidence = 0.5

// ParseOpinion extracts {"signal", "confidence", "reasoning"} from a
// response body. Markdown fences and surrounding prose are tolerated. A
// signal given as a home win probability ("home_win_probability") is
// mapped to [-1, 1].
func ParseOpinion(body string) (*Opinion, error) {
	jsonStr := extractJSON(stripCodeFence(body))
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}

	signal, ok := extractFloat(raw, "signal")
	if !ok {
		p, pok := extractFloat(raw, "home_win_probability")
		if !pok {
			return nil, fmt.Errorf("response has no signal")
		}
		if p > 1 && p <= 100 {
			p /= 100
		}
		if p < 0 || p > 1 {
			return nil, fmt.Errorf("home win probability out of range: %v", p)
		}
		signal = 2*p - 1
	}
	if math.IsNaN(signal) || signal < -1 || signal > 1 {
		return nil, fmt.Errorf("signal out of range: %v", signal)
	}

	conf, ok := extractFloat(raw, "confidence")
	if ok && conf > 1 && conf <= 100 {
		conf /= 100
	}
	if !ok || conf <= 0 || conf > 1 {
		conf = defaultConfidence
	}

	reasoning := extractString(raw, "reasoning")
	if reasoning == "" {
		reasoning = extractString(raw, "rationale")
	}

	return &Opinion{
		Signal:     decimal.NewFromFloat(signal),
		Confidence: decimal.NewFromFloat(conf),
		Reasoning:  reasoning,
	}, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimPrefix(s, prefix)
			if idx := strings.LastIndex(s, "```"); idx != -1 {
				s = s[:idx]
			}
			break
		}
	}
	return strings.TrimSpace(s)
}

// extractJSON returns the first balanced JSON object in s.
func extractJSON(s string) string {
	start := -1
	depth := 0
	for i, c := range s {
		switch c {
		case '{':
			if start == -1 {
				start = i
			}
			depth++
		case '}':
			if start == -1 {
				continue
			}
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func extractFloat(m map[string]interface{}, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func extractString(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func sqrt(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}
