package usecase

import (
	"math"
	"strconv"
	"strings"
)

// VerdictCategory is the presentation bucket for a free-text verdict.
type VerdictCategory string

const (
	VerdictAI        VerdictCategory = "ai"
	VerdictModified  VerdictCategory = "modified"
	VerdictAuthentic VerdictCategory = "authentic"
	VerdictUnknown   VerdictCategory = "unknown"
)

type verdictRule struct {
	category VerdictCategory
	needles  []string
}

// Checked in order; the first rule with a matching needle wins.
var verdictRules = []verdictRule{
	{category: VerdictAI, needles: []string{"ai-generated", "ai generated"}},
	{category: VerdictModified, needles: []string{"modified", "manipulated", "edited"}},
	{category: VerdictAuthentic, needles: []string{"authentic", "real", "genuine"}},
}

// ClassifyVerdict buckets a verdict string by case-insensitive substring match.
func ClassifyVerdict(verdict string) VerdictCategory {
	v := strings.ToLower(verdict)
	for _, rule := range verdictRules {
		for _, needle := range rule.needles {
			if strings.Contains(v, needle) {
				return rule.category
			}
		}
	}
	return VerdictUnknown
}

// ParseConfidencePercent reads values like "85%" or "85.5 %" into 0..100.
func ParseConfidencePercent(confidence string) (float64, bool) {
	raw := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(confidence), "%"))
	if raw == "" {
		return 0, false
	}
	pct, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(pct) {
		return 0, false
	}
	switch {
	case pct < 0:
		pct = 0
	case pct > 100:
		pct = 100
	}
	return pct, true
}
