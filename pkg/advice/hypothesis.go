package advice

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/unsaidlabs/tonecore/pkg/config"
	"github.com/unsaidlabs/tonecore/pkg/logging"
)

const defaultHypothesisCacheMax = 1000

// intentHypotheses maps advice intents to the NLI hypothesis sentence. This
// is the superset table; unknown intents log once and fall through to the
// text-pattern fallback.
var intentHypotheses = map[string]string{
	"de_escalate":        "The speaker wants to calm the situation down.",
	"set_boundary":       "The speaker needs to set a personal boundary.",
	"express_need":       "The speaker is trying to express an unmet need.",
	"express_hurt":       "The speaker is feeling hurt by the other person.",
	"repair":             "The speaker wants to repair the relationship.",
	"apologize":          "The speaker wants to apologize.",
	"request_space":      "The speaker needs space or time alone.",
	"request_time":       "The speaker wants to talk at a later time.",
	"seek_reassurance":   "The speaker is looking for reassurance.",
	"seek_clarity":       "The speaker wants to understand what happened.",
	"validate":           "The speaker wants to validate the other person's feelings.",
	"appreciate":         "The speaker is expressing appreciation.",
	"celebrate":          "The speaker is sharing good news or a success.",
	"check_in":           "The speaker is checking in on the other person.",
	"plan":               "The speaker is coordinating plans or logistics.",
	"problem_solve":      "The speaker wants to solve a practical problem together.",
	"vent":               "The speaker is venting frustration.",
	"self_soothe":        "The speaker is trying to calm themselves down.",
	"ground":             "The speaker needs help staying grounded.",
	"pause_conversation": "The speaker wants to pause the conversation.",
	"own_part":           "The speaker is taking responsibility for their part.",
	"name_feeling":       "The speaker is naming what they feel.",
	"soften_startup":     "The speaker wants to raise a concern gently.",
	"invite_dialogue":    "The speaker is inviting an open conversation.",
	"reconnect":          "The speaker wants to reconnect after distance.",
	"reduce_blame":       "The speaker wants to talk without blaming.",
	"listen":             "The speaker wants to listen and understand.",
	"empathize":          "The speaker is trying to empathize.",
	"ask_consent":        "The speaker is asking whether now is a good time.",
	"negotiate":          "The speaker wants to find a compromise.",
	"affirm":             "The speaker is affirming the other person.",
	"reassure":           "The speaker is offering reassurance.",
	"slow_down":          "The speaker wants to slow the conversation down.",
	"clarify_intent":     "The speaker wants to clarify what they meant.",
	"express_love":       "The speaker is expressing love or affection.",
	"share_feeling":      "The speaker is sharing a vulnerable feeling.",
	"request_change":     "The speaker is asking for a specific change.",
	"accept_influence":   "The speaker is open to the other person's view.",
	"end_conflict":       "The speaker wants to end the argument.",
	"safety_check":       "The speaker is concerned about emotional safety.",
}

// fallback text patterns, checked in order against the advice text.
var hypothesisFallbacks = []struct {
	substr     string
	hypothesis string
}{
	{"breath", "The speaker needs help calming down."},
	{"pause", "The speaker wants to pause before responding."},
	{"boundar", "The speaker needs to set a personal boundary."},
	{"listen", "The speaker wants to listen and understand."},
	{"apolog", "The speaker wants to apologize."},
	{"appreciat", "The speaker is expressing appreciation."},
	{"thank", "The speaker is expressing appreciation."},
	{"space", "The speaker needs space or time alone."},
	{"repair", "The speaker wants to repair the relationship."},
	{"feel", "The speaker is naming what they feel."},
}

const genericHypothesis = "The speaker is communicating about their relationship."

// HypothesisGenerator memoizes per-item hypotheses so repeated requests
// never re-derive or re-read config.
type HypothesisGenerator struct {
	cache        *lru.Cache[string, string]
	seenUnknown  map[string]bool
}

// NewHypothesisGenerator builds the generator with its memo cache.
func NewHypothesisGenerator() *HypothesisGenerator {
	g := &HypothesisGenerator{seenUnknown: make(map[string]bool)}
	g.cache, _ = lru.New[string, string](envInt("HYPOTHESIS_CACHE_MAX", defaultHypothesisCacheMax))
	return g
}

// For returns the hypothesis for an advice item: first intent through the
// table, else the first matching text pattern, else the generic sentence.
func (g *HypothesisGenerator) For(item *config.AdviceItem) string {
	if h, ok := g.cache.Get(item.ID); ok {
		return h
	}

	var hypothesis string
	if len(item.Intents) > 0 {
		intent := item.Intents[0]
		if h, ok := intentHypotheses[intent]; ok {
			hypothesis = h
		} else if !g.seenUnknown[intent] {
			g.seenUnknown[intent] = true
			logging.Named("advice.nli").Info("nli.hypothesis.unknown_intent",
				zap.String("intent", intent), zap.String("item", item.ID))
		}
	}
	if hypothesis == "" {
		lower := strings.ToLower(item.Advice)
		for _, fb := range hypothesisFallbacks {
			if strings.Contains(lower, fb.substr) {
				hypothesis = fb.hypothesis
				break
			}
		}
	}
	if hypothesis == "" {
		hypothesis = genericHypothesis
	}

	g.cache.Add(item.ID, hypothesis)
	return hypothesis
}
