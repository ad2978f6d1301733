package services

import (
	"math"
	"strings"
)

// DefaultNameMatchThreshold is the token-overlap ratio a declared name must
// reach against the OCR-extracted name.
const DefaultNameMatchThreshold = 0.8

// IncomeMatchTolerance is the relative band (inclusive) within which a
// declared income is considered confirmed by the extracted salary.
const IncomeMatchTolerance = 0.20

// IsNameMatch fuzzy-matches a declared name against an OCR-extracted one.
// Both names are tokenized into lowercase sets; the ratio of shared tokens to
// declared tokens must reach the threshold. The denominator is deliberately
// the declared name, so OCR picking up extra words (father's name, honorifics)
// does not penalize the match, and token order is irrelevant.
func IsNameMatch(declared, extracted string, threshold float64) bool {
	if strings.TrimSpace(declared) == "" || strings.TrimSpace(extracted) == "" {
		return false
	}

	declaredTokens := tokenSet(declared)
	extractedTokens := tokenSet(extracted)
	if len(declaredTokens) == 0 {
		return false
	}

	common := 0
	for token := range declaredTokens {
		if _, ok := extractedTokens[token]; ok {
			common++
		}
	}

	return float64(common)/float64(len(declaredTokens)) >= threshold
}

// IsIncomeMatch reports whether the extracted salary confirms the declared
// monthly income within the relative tolerance band.
func IsIncomeMatch(declared, extracted float64) bool {
	if declared <= 0 {
		return false
	}
	return math.Abs(declared-extracted)/declared <= IncomeMatchTolerance
}

func tokenSet(name string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, token := range strings.Fields(strings.ToLower(name)) {
		tokens[token] = struct{}{}
	}
	return tokens
}
