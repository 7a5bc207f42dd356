package advice

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/unsaidlabs/tonecore/pkg/config"
	"github.com/unsaidlabs/tonecore/pkg/logging"
	"github.com/unsaidlabs/tonecore/pkg/nlp"
	"github.com/unsaidlabs/tonecore/pkg/scan"
)

// Guardrails is the contraindication battery applied before ranking. Every
// check removes items; nothing here reorders. The blocked-pattern pass is
// accelerated by a token-automaton prefilter over the patterns' literal
// anchors.
type Guardrails struct {
	cfg          *config.Provider
	blockTerms   []string
	blockedRes   []*regexp.Regexp
	blockedPre   *scan.LiteralPrefilter
	confrontRes  []*regexp.Regexp
	softeners    []string
	deescalation []string
	gentle       []string
	youShouldRe  *regexp.Regexp
}

// NewGuardrails compiles the configured patterns. Invalid regexes are
// skipped with a warn log.
func NewGuardrails(cfg *config.Provider) *Guardrails {
	gr := cfg.GuardrailConfig()
	g := &Guardrails{
		cfg:          cfg,
		softeners:    lowerAll(gr.Softeners),
		deescalation: lowerAll(gr.DeescalationKeywords),
		gentle:       lowerAll(gr.GentleLanguage),
		youShouldRe:  regexp.MustCompile(`(?i)\byou (should|must|have to|need to)\b`),
	}
	g.blockTerms = lowerAll(gr.Block)

	log := logging.Named("advice.guardrails")
	var blockedRaw []string
	for _, p := range gr.BlockedPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			log.Warn("guardrail.pattern.skipped", zap.String("pattern", p), zap.Error(err))
			continue
		}
		g.blockedRes = append(g.blockedRes, re)
		blockedRaw = append(blockedRaw, p)
	}
	g.blockedPre = scan.NewLiteralPrefilter(blockedRaw)
	for _, p := range gr.ConfrontationalPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			log.Warn("guardrail.pattern.skipped", zap.String("pattern", p), zap.Error(err))
			continue
		}
		g.confrontRes = append(g.confrontRes, re)
	}
	return g
}

// GuardInput is the per-request state the battery needs.
type GuardInput struct {
	ContextKey  string
	Primary     string // current UI bucket
	Intensity   float64
	HasNegation bool
}

// Allow decides whether one advice item survives. The returned reason names
// the first failed check for explainability.
func (g *Guardrails) Allow(item *config.AdviceItem, in GuardInput) (bool, string) {
	advice := strings.ToLower(item.Advice)
	categories := item.AllCategories()

	if in.Intensity > 0.75 && hasCategory(categories, "confrontation") {
		return false, "confrontation_at_high_intensity"
	}
	if in.HasNegation && hasTag(item.Tags, "negationSensitive") {
		return false, "negation_sensitive"
	}
	for _, term := range g.blockTerms {
		if strings.Contains(advice, term) {
			return false, "blocked_term"
		}
	}
	if len(g.blockedRes) > 0 {
		tokens := strings.Fields(nlp.NormalizeText(item.Advice))
		for _, idx := range g.blockedPre.Candidates(tokens) {
			if g.blockedRes[idx].MatchString(item.Advice) {
				return false, "blocked_pattern"
			}
		}
	}
	if !contextAppropriate(item, in.ContextKey) {
		return false, "context_inappropriate"
	}

	// Alert-context safety: de-escalation language required, absolute
	// "you should" advice rejected outright.
	if in.Primary == "alert" {
		if g.youShouldRe.MatchString(item.Advice) {
			return false, "absolute_you_should"
		}
		if !containsAny(advice, g.deescalation) {
			return false, "missing_deescalation"
		}
	}

	// Softener requirement in alert contexts or at high intensity.
	if (in.Primary == "alert" || in.Intensity >= 0.7) && len(g.softeners) > 0 {
		if !containsAny(advice, g.softeners) {
			return false, "missing_softener"
		}
	}

	// Intensity guardrails.
	if in.Intensity >= 0.8 {
		for _, re := range g.confrontRes {
			if re.MatchString(item.Advice) {
				return false, "confrontational_at_high_intensity"
			}
		}
	}
	if in.Intensity >= 0.5 && item.TriggerTone != "clear" {
		if len(g.gentle) > 0 && !containsAny(advice, g.gentle) && !containsAny(advice, g.softeners) {
			return false, "missing_gentle_language"
		}
	}

	return true, ""
}

func hasCategory(categories []string, want string) bool {
	for _, c := range categories {
		if c == want {
			return true
		}
	}
	return false
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
