// Package tone turns linguistic analysis into per-emotion scores and a
// calibrated {clear, caution, alert} bucket distribution.
package tone

import (
	"math"
	"strings"

	"github.com/unsaidlabs/tonecore/pkg/config"
	"github.com/unsaidlabs/tonecore/pkg/nlp"
)

// targetWindow is how many tokens a you-family pronoun may sit from a
// profanity hit and still count as targeting.
const targetWindow = 3

// ProfanityAnalysis classifies severity and second-person targeting.
type ProfanityAnalysis struct {
	Count                  int      `json:"count"`
	BySeverity             map[string]int `json:"bySeverity"`
	MaxSeverity            string   `json:"maxSeverity,omitempty"`
	HasTargetedSecondPerson bool    `json:"hasTargetedSecondPerson"`
	Terms                  []string `json:"terms,omitempty"`
}

// severityRank orders severities for max tracking.
var severityRank = map[string]int{"mild": 1, "moderate": 2, "strong": 3}

// severityAlertBoost maps severity to the alert contribution before the
// count multiplier.
var severityAlertBoost = map[string]float64{"mild": 0.1, "moderate": 0.2, "strong": 0.4}

// ProfanityDetector matches the categorized lexicon over token streams.
type ProfanityDetector struct {
	categories []config.ProfanityCategory
	terms      map[string]config.ProfanityCategory
	phrases    []profanityPhrase
}

type profanityPhrase struct {
	tokens []string
	cat    config.ProfanityCategory
}

// NewProfanityDetector indexes the lexicon for O(1) unigram lookup plus a
// short phrase list for multi-word terms.
func NewProfanityDetector(lex *config.ProfanityLexicons) *ProfanityDetector {
	d := &ProfanityDetector{
		categories: lex.Categories,
		terms:      make(map[string]config.ProfanityCategory),
	}
	for _, cat := range lex.Categories {
		for _, term := range cat.TriggerWords {
			norm := nlp.NormalizeText(term)
			parts := strings.Fields(norm)
			if len(parts) == 1 {
				d.terms[norm] = cat
			} else if len(parts) > 1 {
				d.phrases = append(d.phrases, profanityPhrase{tokens: parts, cat: cat})
			}
		}
	}
	return d
}

// Analyze scans normalized tokens for profanity, tracking severity counts
// and whether a targeting:"other" term has a second-person pronoun within
// the targeting window.
func (d *ProfanityDetector) Analyze(tokens []string) ProfanityAnalysis {
	res := ProfanityAnalysis{BySeverity: make(map[string]int)}

	secondPerson := make([]bool, len(tokens))
	for i, tok := range tokens {
		switch tok {
		case "you", "your", "you're", "ur", "u", "yours", "yourself":
			secondPerson[i] = true
		}
	}

	record := func(cat config.ProfanityCategory, term string, start, end int) {
		res.Count++
		res.BySeverity[cat.Severity]++
		res.Terms = append(res.Terms, term)
		if severityRank[cat.Severity] > severityRank[res.MaxSeverity] {
			res.MaxSeverity = cat.Severity
		}
		if cat.Targeting == "other" {
			lo := start - targetWindow
			if lo < 0 {
				lo = 0
			}
			hi := end + targetWindow
			if hi > len(tokens) {
				hi = len(tokens)
			}
			for i := lo; i < hi; i++ {
				if secondPerson[i] {
					res.HasTargetedSecondPerson = true
					break
				}
			}
		}
	}

	for i, tok := range tokens {
		if cat, ok := d.terms[tok]; ok {
			record(cat, tok, i, i+1)
		}
	}
	for _, ph := range d.phrases {
		for i := 0; i+len(ph.tokens) <= len(tokens); i++ {
			match := true
			for j, p := range ph.tokens {
				if tokens[i+j] != p {
					match = false
					break
				}
			}
			if match {
				record(ph.cat, strings.Join(ph.tokens, " "), i, i+len(ph.tokens))
			}
		}
	}
	return res
}

// AlertBoost converts the analysis into the alert-score contribution:
// severity boost scaled by a count-based log multiplier.
func (p *ProfanityAnalysis) AlertBoost() float64 {
	if p.Count == 0 || p.MaxSeverity == "" {
		return 0
	}
	base := severityAlertBoost[p.MaxSeverity]
	return base * (1 + math.Log1p(float64(p.Count-1)))
}
