package nlp

import (
	"math"
	"sort"
	"strings"
)

// ClassifyContext scores each configured context by scanning its phrases over
// the token stream with a positional decay exp(-(n-pos)/τ), then softmaxes
// the totals with optional per-context temperature. Later mentions weigh more
// than earlier ones.
func (a *Analyzer) ClassifyContext(tokens []Token) ContextResult {
	if len(a.contexts) == 0 {
		return ContextResult{Label: "general", Score: 1, Confidence: 0}
	}

	words := make([]string, len(tokens))
	for i, t := range tokens {
		words[i] = strings.ToLower(t.Text)
	}
	joined := " " + strings.Join(words, " ") + " "
	n := float64(len(words))

	raw := make([]float64, len(a.contexts))
	for ci, ctx := range a.contexts {
		var sum float64
		for _, phrase := range ctx.phrases {
			needle := " " + strings.ToLower(phrase.Text) + " "
			at := 0
			for {
				idx := strings.Index(joined[at:], needle)
				if idx < 0 {
					break
				}
				abs := at + idx
				pos := float64(strings.Count(joined[:abs], " "))
				decay := math.Exp(-(n - pos) / ctx.tau)
				sum += phrase.Weight * decay
				at = abs + 1
			}
		}
		raw[ci] = sum
	}

	// Softmax with per-context temperature applied to the logits.
	maxRaw := raw[0]
	for _, v := range raw {
		if v > maxRaw {
			maxRaw = v
		}
	}
	probs := make([]float64, len(raw))
	var denom float64
	for i, v := range raw {
		temp := a.contexts[i].temperature
		probs[i] = math.Exp((v - maxRaw) / temp)
		denom += probs[i]
	}
	if denom == 0 {
		denom = 1
	}

	ranked := make([]ContextScore, len(probs))
	for i := range probs {
		probs[i] /= denom
		ranked[i] = ContextScore{Key: a.contexts[i].key, Score: probs[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Key < ranked[j].Key
	})

	res := ContextResult{
		Label:  ranked[0].Key,
		Score:  ranked[0].Score,
		Ranked: ranked,
	}
	if len(ranked) > 1 {
		res.Secondary = ranked[1].Key
		res.Confidence = ranked[0].Score - ranked[1].Score
	} else {
		res.Confidence = ranked[0].Score
	}

	// With no phrase evidence at all the softmax is uniform; report general.
	allZero := true
	for _, v := range raw {
		if v > 0 {
			allZero = false
			break
		}
	}
	if allZero {
		res.Label = "general"
		res.Confidence = 0
		res.Secondary = ""
	}
	return res
}
