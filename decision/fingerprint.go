// Package decision implements the Signal Decision Brain (spec.md §4.6):
// per-symbol weighted scoring, direction selection, and the signal-quality
// filter chain. It replaces the teacher's AI-driven
// GetFullDecisionWithStrategy with the teacher's own non-AI fallback path,
// decision.GetAlgorithmicDecision / HandlePositionSafekeeping
// (decision/engine.go), generalized into a full rule-based scorer.
package decision

import (
	"sort"
	"strings"
)

// Fingerprint canonicalizes a set of contributing component names into the
// sorted, "+"-joined string used as the key for blacklists and quality
// statistics (GLOSSARY "Fingerprint").
func Fingerprint(components []string) string {
	if len(components) == 0 {
		return ""
	}
	sorted := append([]string(nil), components...)
	sort.Strings(sorted)
	return strings.Join(sorted, "+")
}
