package inference

import "encoding/json"

const (
	defaultVerdict    = "Unknown"
	defaultConfidence = "N/A"
	defaultAnalysis   = "No analysis available."
	degradedVerdict   = "Analysis Complete"
)

// AnalysisResult is the normalized verdict record shown to the user.
type AnalysisResult struct {
	Verdict    string   `json:"verdict"`
	Confidence string   `json:"confidence"`
	Analysis   string   `json:"analysis"`
	Indicators []string `json:"indicators"`
}

// ParseResult turns the model's text output into an AnalysisResult. It never
// fails: text that is not usable JSON yields a degraded result carrying the raw
// text as the analysis.
func ParseResult(text string) *AnalysisResult {
	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil || parsed == nil {
		return degraded(text)
	}

	result := &AnalysisResult{
		Verdict:    defaultVerdict,
		Confidence: defaultConfidence,
		Analysis:   defaultAnalysis,
		Indicators: []string{},
	}

	fields, ok := parsed.(map[string]any)
	if !ok {
		return result
	}
	if v := stringField(fields, "verdict"); v != "" {
		result.Verdict = v
	}
	if v := stringField(fields, "confidence"); v != "" {
		result.Confidence = v
	}
	if v := stringField(fields, "analysis"); v != "" {
		result.Analysis = v
	}
	if items, ok := fields["indicators"].([]any); ok {
		for _, item := range items {
			if s, ok := item.(string); ok {
				result.Indicators = append(result.Indicators, s)
			}
		}
	}
	return result
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

func degraded(text string) *AnalysisResult {
	return &AnalysisResult{
		Verdict:    degradedVerdict,
		Confidence: defaultConfidence,
		Analysis:   text,
		Indicators: []string{},
	}
}

// Clone returns a deep copy so callers can hand results out without sharing the slice.
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Indicators = append([]string{}, r.Indicators...)
	return &out
}
