package advice

import (
	"regexp"
	"strings"

	"github.com/unsaidlabs/tonecore/pkg/config"
	"github.com/unsaidlabs/tonecore/pkg/nlp"
)

// userIntentPatterns maps message text patterns to the intent vocabulary
// shared with the hypothesis table.
var userIntentPatterns = []struct {
	re     *regexp.Regexp
	intent string
}{
	{regexp.MustCompile(`(?i)\b(i'?m|i am) sorry\b`), "apologize"},
	{regexp.MustCompile(`(?i)\bcan we talk\b`), "invite_dialogue"},
	{regexp.MustCompile(`(?i)\btalk about this later\b`), "request_time"},
	{regexp.MustCompile(`(?i)\bi need (some )?space\b`), "request_space"},
	{regexp.MustCompile(`(?i)\bi need you to\b`), "request_change"},
	{regexp.MustCompile(`(?i)\bthank(s| you)\b`), "appreciate"},
	{regexp.MustCompile(`(?i)\bi feel\b`), "name_feeling"},
	{regexp.MustCompile(`(?i)\bare (we|you) (ok|okay)\b`), "seek_reassurance"},
	{regexp.MustCompile(`(?i)\bwhat did you mean\b`), "seek_clarity"},
	{regexp.MustCompile(`(?i)\bmy fault\b`), "own_part"},
	{regexp.MustCompile(`(?i)\blove you\b`), "express_love"},
	{regexp.MustCompile(`(?i)\b(calm|settle) down\b`), "de_escalate"},
	{regexp.MustCompile(`(?i)\bwork (this|it) out\b`), "repair"},
	{regexp.MustCompile(`(?i)\bstop (doing|saying)\b`), "set_boundary"},
	{regexp.MustCompile(`(?i)\bhow (was|is) your\b`), "check_in"},
	{regexp.MustCompile(`(?i)\bwhat time\b`), "plan"},
}

// positiveIntents are disabled under heavy negation (more than two scopes):
// "I do not appreciate..." must not read as appreciation.
var positiveIntents = map[string]bool{
	"appreciate": true, "express_love": true, "celebrate": true, "affirm": true,
}

// DetectUserIntents extracts message intents for the backstop and the
// ranker's intent-overlap bonus.
func DetectUserIntents(text string, doc *nlp.CompactDoc) []string {
	heavyNegation := doc != nil && len(doc.NegScopes) > 2
	var intents []string
	seen := make(map[string]bool)
	for _, p := range userIntentPatterns {
		if !p.re.MatchString(text) || seen[p.intent] {
			continue
		}
		if heavyNegation && positiveIntents[p.intent] {
			continue
		}
		seen[p.intent] = true
		intents = append(intents, p.intent)
	}
	return intents
}

// sentimentCategories maps the coarse message sentiment to the advice
// categories aligned with it.
var sentimentCategories = map[string][]string{
	"negative": {"deescalation", "boundary", "repair", "self_regulation", "grounding"},
	"positive": {"appreciation", "affection", "support", "celebration"},
	"neutral":  {"communication", "planning", "check_in"},
}

// Backstop is the rules-only fit decision used when the NLI model is
// unavailable, and for explainability beside it.
type Backstop struct{}

// Fits applies the precedence chain: intent overlap, then exact context
// match with sufficient score, then sentiment/category alignment, then a
// two-word keyword overlap.
func (Backstop) Fits(text string, doc *nlp.CompactDoc, item *config.AdviceItem, contextKey string, contextScore float64, sentiment string) (bool, string) {
	userIntents := DetectUserIntents(text, doc)
	if len(userIntents) > 0 && len(item.Intents) > 0 {
		for _, ui := range userIntents {
			for _, ai := range item.Intents {
				if ui == ai {
					return true, "intent_overlap"
				}
			}
		}
		return false, "intent_mismatch"
	}

	if contextScore >= 0.3 {
		for _, c := range item.Contexts {
			if c == contextKey {
				return true, "context_match"
			}
		}
	}

	if cats, ok := sentimentCategories[sentiment]; ok {
		for _, want := range cats {
			for _, have := range item.AllCategories() {
				if want == have {
					return true, "sentiment_alignment"
				}
			}
		}
	}

	words := make(map[string]bool)
	for _, w := range strings.Fields(nlp.NormalizeText(text)) {
		if len(w) >= 3 {
			words[w] = true
		}
	}
	overlap := 0
	for _, kw := range item.Keywords {
		if words[strings.ToLower(kw)] {
			overlap++
			if overlap >= 2 {
				return true, "keyword_overlap"
			}
		}
	}
	return false, "no_rule_matched"
}
