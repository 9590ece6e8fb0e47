package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	MinRiskScore = 1
	MaxRiskScore = 100
)

// ErrInvalidAnalysis is returned when the model answer is not an analysis object
var ErrInvalidAnalysis = errors.New("invalid analysis response")

// Analysis is the structured document review returned by the generation model
type Analysis struct {
	Summary   string   `json:"summary"`
	RiskScore int      `json:"risk_score"`
	Pros      []string `json:"pros"`
	Cons      []string `json:"cons"`
}

type rawAnalysis struct {
	Summary   string          `json:"summary"`
	RiskScore json.RawMessage `json:"risk_score"`
	Pros      []string        `json:"pros"`
	Cons      []string        `json:"cons"`
}

// ParseAnalysis decodes the model's JSON answer. Markdown code fences are
// tolerated, the risk score may be a number or a numeric string and is
// clamped to 1..100, and missing lists decode as empty.
func ParseAnalysis(response string) (Analysis, error) {
	body := stripCodeFence(strings.TrimSpace(response))

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrInvalidAnalysis, err)
	}

	score, err := parseRiskScore(raw.RiskScore)
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrInvalidAnalysis, err)
	}

	analysis := Analysis{
		Summary:   strings.TrimSpace(raw.Summary),
		RiskScore: score,
		Pros:      nonEmpty(raw.Pros),
		Cons:      nonEmpty(raw.Cons),
	}
	return analysis, nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:] // language tag line
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

func parseRiskScore(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return MinRiskScore, nil
	}

	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, fmt.Errorf("risk_score is not a number: %s", raw)
		}
		value, err = strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return 0, fmt.Errorf("risk_score is not a number: %s", raw)
		}
	}
	return clampRiskScore(value), nil
}

func clampRiskScore(value float64) int {
	if math.IsNaN(value) {
		return MinRiskScore
	}
	return int(math.Round(math.Max(MinRiskScore, math.Min(MaxRiskScore, value))))
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
