package scan

import (
	"sort"
	"strings"

	"github.com/unsaidlabs/tonecore/pkg/nlp"
)

// LiteralPrefilter screens token streams for the literal anchors of a regex
// pack so callers can skip compiled-pattern passes that cannot match. The
// guardrail battery uses it to accelerate its blocked-pattern scan.
type LiteralPrefilter struct {
	auto   *tokenAutomaton
	always []int
}

// NewLiteralPrefilter indexes the literal patterns of a pack by position. A
// pattern anchors the automaton only when it reduces to a plain phrase after
// stripping (?i) and \b markers; anything with live regex syntax left over
// (alternation, classes, quantifiers) stays on the always-check list, since
// no single literal is guaranteed to appear in every match.
func NewLiteralPrefilter(patterns []string) *LiteralPrefilter {
	p := &LiteralPrefilter{auto: newTokenAutomaton()}
	for i, pattern := range patterns {
		phrase, ok := literalPhrase(pattern)
		if !ok {
			p.always = append(p.always, i)
			continue
		}
		p.auto.insert(strings.Fields(phrase), patternMeta{id: i, term: phrase})
	}
	p.auto.build()
	return p
}

// Candidates returns the pattern indices worth running against the token
// stream: every always-check pattern plus each anchor the automaton hit.
// Indices are ascending and deduplicated.
func (p *LiteralPrefilter) Candidates(tokens []string) []int {
	seen := make(map[int]bool, len(p.always))
	out := make([]int, 0, len(p.always))
	for _, i := range p.always {
		seen[i] = true
		out = append(out, i)
	}
	for _, h := range p.auto.scan(tokens) {
		if !seen[h.meta.id] {
			seen[h.meta.id] = true
			out = append(out, h.meta.id)
		}
	}
	sort.Ints(out)
	return out
}

// literalPhrase reduces a pattern to its normalized literal phrase, or
// reports false when regex syntax remains after stripping the safe markers.
func literalPhrase(pattern string) (string, bool) {
	s := strings.ToLower(pattern)
	s = strings.ReplaceAll(s, "(?i)", "")
	s = strings.ReplaceAll(s, `\b`, "")
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ', r == '\'':
		default:
			return "", false
		}
	}
	phrase := nlp.NormalizeText(s)
	if phrase == "" {
		return "", false
	}
	return phrase, true
}
