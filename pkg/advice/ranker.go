package advice

import (
	"context"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/unsaidlabs/tonecore/pkg/config"
	"github.com/unsaidlabs/tonecore/pkg/logging"
	"github.com/unsaidlabs/tonecore/pkg/nlp"
)

// Weights are the per-component ranking weights. Per-context deltas come
// from weightModifiers.adviceRankOverrides.byContext and are clipped to the
// configured bounds.
type Weights struct {
	BaseConfidence        float64
	ToneMatch             float64
	ContextMatch          float64
	ContextLinkMultiplier float64
	AttachmentMatch       float64
	IntensityBoost        float64
	NegationPenalty       float64
	SarcasmPenalty        float64
	PhraseEdgeBoost       float64
	UserPrefBoost         float64
	SecondPersonBoost     float64
	SeverityFit           float64
	PremiumBoost          float64
}

// DefaultWeights returns the baseline table.
func DefaultWeights() Weights {
	return Weights{
		BaseConfidence:        0.30,
		ToneMatch:             0.35,
		ContextMatch:          0.20,
		ContextLinkMultiplier: 1.0,
		AttachmentMatch:       0.15,
		IntensityBoost:        0.10,
		NegationPenalty:       -0.12,
		SarcasmPenalty:        -0.10,
		PhraseEdgeBoost:       0.10,
		UserPrefBoost:         0.10,
		SecondPersonBoost:     0.08,
		SeverityFit:           0.12,
		PremiumBoost:          0.05,
	}
}

const (
	maxContextLinkBonus     = 0.12
	maxCategoryOverlapBonus = 0.15
	maxLearningBonus        = 0.25
	intentOverlapBonus      = 0.6
	duplicateJaccardFloor   = 0.3
	defaultMMRLambda        = 0.7
	diversificationFactor   = 3
)

// Suggestion is one ranked advice item ready for the response.
type Suggestion struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason"`
	Category   string   `json:"category,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Priority   int      `json:"priority"`
	NLI        *FitResult `json:"nli,omitempty"`
	ContextSpecific    bool `json:"context_specific"`
	AttachmentInformed bool `json:"attachment_informed"`
}

// RankInput carries the full per-request state into the ranker.
type RankInput struct {
	Text            string
	Doc             *nlp.CompactDoc
	ContextKey      string
	AttachmentStyle string
	ToneLabel       string
	Primary         string
	Dist            map[string]float64
	Intensity       float64
	Confidence      float64
	HasNegation     bool
	Sarcastic       bool
	EdgeHits        int
	SecondPersonConfidence float64
	SecondPersonDirect     bool
	UserPrefs       map[string]float64
	PremiumTier     bool
	CoordinatorIntents []string
	SeverityBaseline   map[string]float64
	MaxSuggestions  int
}

// Ranker runs the guardrail, gate, scoring, and diversification pipeline
// over a candidate pool.
type Ranker struct {
	cfg        *config.Provider
	index      *Index
	gate       *Gate
	guardrails *Guardrails
	backstop   Backstop
	bucketOf   ToneBucketFunc
	weightsOff bool
}

// NewRanker wires the ranking pipeline.
func NewRanker(cfg *config.Provider, index *Index, gate *Gate, bucketOf ToneBucketFunc) *Ranker {
	return &Ranker{
		cfg:        cfg,
		index:      index,
		gate:       gate,
		guardrails: NewGuardrails(cfg),
		bucketOf:   bucketOf,
		weightsOff: os.Getenv("DISABLE_WEIGHT_FALLBACKS") == "1",
	}
}

// Rank produces the final suggestion list.
func (r *Ranker) Rank(ctx context.Context, candidates []Candidate, in RankInput) []Suggestion {
	if in.MaxSuggestions <= 0 {
		in.MaxSuggestions = envInt("MAX_SUGGESTIONS", 5)
	}
	if in.MaxSuggestions > 10 {
		in.MaxSuggestions = 10
	}

	// 1. Contraindications and the guardrail battery.
	guard := GuardInput{
		ContextKey: in.ContextKey, Primary: in.Primary,
		Intensity: in.Intensity, HasNegation: in.HasNegation,
	}
	pool := candidates[:0]
	for _, c := range candidates {
		if ok, _ := r.guardrails.Allow(c.Item, guard); ok {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		return nil
	}

	// 2. NLI gate in batches; failures are excluded, fail-open retained.
	items := make([]*config.AdviceItem, len(pool))
	for i := range pool {
		items[i] = pool[i].Item
	}
	fits := r.gate.CheckBatch(ctx, in.Text, items, in.ContextKey)
	gated := pool[:0]
	for i := range pool {
		fit := fits[i]
		if !fit.OK {
			continue
		}
		pool[i].NLI = &fit
		gated = append(gated, pool[i])
	}
	pool = gated
	if len(pool) == 0 {
		return nil
	}

	// 3. Attachment category boosts.
	if ov, ok := r.cfg.AttachmentOverrides()[in.AttachmentStyle]; ok {
		boost := ov.BoostWeight
		if boost == 0 {
			boost = 0.1
		}
		for i := range pool {
			for _, cat := range pool[i].Item.AllCategories() {
				if hasCategory(ov.CategoryBoost, cat) {
					pool[i].Boost += boost
					break
				}
			}
		}
	}

	// 4. Feature-weighted score.
	weights := r.weightsFor(in.ContextKey)
	userIntents := mergeIntents(DetectUserIntents(in.Text, in.Doc), in.CoordinatorIntents)
	for i := range pool {
		pool[i].Score = r.scoreItem(&pool[i], in, weights, userIntents)
	}

	// 5. Temperature calibration.
	temp := r.temperatureFor(in.ContextKey, in.Intensity)
	for i := range pool {
		s := clampF(pool[i].Score, -1, 3) / temp
		pool[i].Score = clampF(s, -1.5, 3.5)
	}

	// 6. Jaccard duplicate penalty against higher-scored items.
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].Score > pool[j].Score })
	wordSets := make([]map[string]bool, len(pool))
	for i := range pool {
		wordSets[i] = contentWords(pool[i].Item.Advice)
	}
	for i := 1; i < len(pool); i++ {
		maxSim := 0.0
		for j := 0; j < i; j++ {
			if sim := jaccard(wordSets[i], wordSets[j]); sim > maxSim {
				maxSim = sim
			}
		}
		if maxSim > duplicateJaccardFloor {
			pool[i].Score -= 0.5 * maxSim
		}
	}

	// 8. NLI signal shaping with a flapping guard.
	for i := range pool {
		if pool[i].NLI == nil {
			continue
		}
		margin := pool[i].NLI.Scores.Entail - pool[i].NLI.Scores.Contra
		if margin >= 0.05 || margin <= -0.05 {
			pool[i].Score += clampF(0.6*margin, -0.4, 0.4)
		}
	}

	// 7. Deterministic sort.
	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ac, bc := firstCategory(a.Item), firstCategory(b.Item)
		if ac != bc {
			return ac < bc
		}
		if len(a.Item.Advice) != len(b.Item.Advice) {
			return len(a.Item.Advice) < len(b.Item.Advice)
		}
		return a.Item.ID < b.Item.ID
	})

	// 9. Category-guard dedupe, then MMR diversification.
	pool = dedupeByCategory(pool)
	take := in.MaxSuggestions * diversificationFactor
	if take > len(pool) {
		take = len(pool)
	}
	selected := r.mmrDiversify(ctx, pool[:take], in)

	// 10. Per-context confidence floor; the single strongest survives even
	// when nothing clears the floor.
	floor := r.confidenceFloor(in.ContextKey)
	out := make([]Suggestion, 0, in.MaxSuggestions)
	for _, c := range selected {
		if len(out) >= in.MaxSuggestions {
			break
		}
		conf := normalizeConfidence(c.Score)
		if conf < floor {
			continue
		}
		out = append(out, r.toSuggestion(c, in, conf, len(out)+1))
	}
	if len(out) == 0 && len(selected) > 0 {
		c := selected[0]
		out = append(out, r.toSuggestion(c, in, normalizeConfidence(c.Score), 1))
	}
	return out
}

func (r *Ranker) toSuggestion(c Candidate, in RankInput, conf float64, priority int) Suggestion {
	cats := c.Item.AllCategories()
	s := Suggestion{
		ID:         c.Item.ID,
		Text:       c.Item.Advice,
		Confidence: clampF(conf, 0, 1),
		Reason:     rankReason(c),
		Categories: cats,
		Priority:   priority,
		NLI:        c.NLI,
		ContextSpecific:    len(c.Item.Contexts) > 0,
		AttachmentInformed: len(c.Item.AttachmentStyles) > 0 || c.Boost > 0,
	}
	if len(cats) > 0 {
		s.Category = cats[0]
	}
	return s
}

func rankReason(c Candidate) string {
	switch {
	case c.NLI != nil && c.NLI.Scores.Entail > 0.7:
		return "strong_fit"
	case c.Boost > 0:
		return "attachment_boost"
	case c.BM25 > 0.5:
		return "lexical_match"
	default:
		return "tone_match"
	}
}

// scoreItem is the additive feature-weighted score.
func (r *Ranker) scoreItem(c *Candidate, in RankInput, w Weights, userIntents []string) float64 {
	item := c.Item
	score := w.BaseConfidence * in.Confidence

	// Tone match uses the bucket mass of the item's trigger tone under the
	// current distribution, with the attachment-aware cross-bucket fallback.
	itemBucket := item.TriggerTone
	if _, ok := in.Dist[itemBucket]; !ok && r.bucketOf != nil {
		itemBucket = r.bucketOf(in.AttachmentStyle, item.TriggerTone)
	}
	score += w.ToneMatch * in.Dist[itemBucket]

	if len(item.Contexts) == 0 || hasCategory(item.Contexts, in.ContextKey) {
		score += w.ContextMatch
	}
	link := 0.0
	if hasCategory(item.ContextLink, in.ContextKey) {
		link = envFloat("MAX_CONTEXT_LINK_BONUS", maxContextLinkBonus)
	}
	score += w.ContextLinkMultiplier * clampF(link, 0, maxContextLinkBonus)

	if len(item.AttachmentStyles) == 0 || hasCategory(item.AttachmentStyles, in.AttachmentStyle) {
		score += w.AttachmentMatch
	}
	score += w.IntensityBoost * clampF(in.Intensity, 0, 1)

	if in.HasNegation {
		score += w.NegationPenalty
	}
	if in.Sarcastic {
		score += w.SarcasmPenalty
	}

	edge := float64(in.EdgeHits) / 3
	if edge > 1 {
		edge = 1
	}
	score += w.PhraseEdgeBoost * edge

	if in.UserPrefs != nil {
		var pref float64
		for _, cat := range item.AllCategories() {
			pref += in.UserPrefs[cat]
		}
		score += w.UserPrefBoost * pref
	}

	if in.SecondPersonConfidence > 0 {
		direct := 0.6
		if in.SecondPersonDirect {
			direct = 1.0
		}
		score += w.SecondPersonBoost * in.SecondPersonConfidence * direct
	}

	if th, ok := item.SeverityThreshold[in.Primary]; ok {
		baseline := in.SeverityBaseline[in.Primary]
		gap := th - baseline
		if gap < 0 {
			gap = -gap
		}
		fit := 1 - minFloat(gap/0.1, 1)
		score += w.SeverityFit * fit
	}

	if in.PremiumTier {
		score += w.PremiumBoost
	}

	// Tone-pattern category overlap bonus.
	score += r.tonePatternOverlap(item, in.Text)

	// Learning-signal bonuses, capped in aggregate.
	score += r.learningBonus(item, in)

	// Actionability and brevity.
	score += actionability(item.Advice)
	score += brevityBonus(item.Advice)

	// Intent overlap between detected user intents and the item's.
	for _, ui := range userIntents {
		if hasCategory(item.Intents, ui) {
			score += intentOverlapBonus
		}
	}

	score += c.Boost

	// Category multipliers apply after the additive terms.
	if atw := r.cfg.AttachmentToneWeights(); atw != nil {
		if ov, ok := atw.Overrides[in.AttachmentStyle]; ok {
			for _, cat := range item.AllCategories() {
				if m, ok := ov.CategoryMultipliers[cat]; ok && m > 0 {
					score *= m
				}
			}
		}
	}
	return score
}

func (r *Ranker) tonePatternOverlap(item *config.AdviceItem, text string) float64 {
	lower := strings.ToLower(text)
	bonus := 0.0
	for _, tp := range r.cfg.TonePatterns() {
		if tp.Type != "phrase" || len(tp.Categories) == 0 {
			continue
		}
		if !strings.Contains(lower, strings.ToLower(tp.Pattern)) {
			continue
		}
		for _, cat := range tp.Categories {
			if hasCategory(item.AllCategories(), cat) {
				bonus += 0.05
			}
		}
	}
	return minFloat(bonus, maxCategoryOverlapBonus)
}

func (r *Ranker) learningBonus(item *config.AdviceItem, in RankInput) float64 {
	ls := r.cfg.LearningSignals()
	if ls == nil {
		return 0
	}
	var bonus float64
	for _, feat := range ls.Features {
		matched := false
		for _, p := range feat.Patterns {
			if strings.Contains(strings.ToLower(in.Text), strings.ToLower(p)) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if hasCategory(feat.Buckets, in.Primary) || hasCategory(feat.Contexts, in.ContextKey) {
			bonus += feat.Weight
		}
		if hint, ok := feat.AttachmentHints[in.AttachmentStyle]; ok {
			bonus += 0.1 * hint
		}
	}
	if adj, ok := ls.ToneAdjustments[item.TriggerTone]; ok {
		bonus += 0.5 * adj
	}
	if bonus > maxLearningBonus {
		bonus = maxLearningBonus
	}
	// Light online nudge from per-item feedback.
	if sig, ok := ls.ByItem[item.ID]; ok {
		bonus += clampF(sig.CTR*0.1-float64(sig.Rejections)*0.02, -0.1, 0.1)
	}
	return bonus
}

// actionability grants +0.1 when the advice opens with an imperative verb.
func actionability(advice string) float64 {
	fields := strings.Fields(strings.ToLower(advice))
	if len(fields) == 0 {
		return 0
	}
	switch strings.Trim(fields[0], ".,!?\"'") {
	case "try", "take", "pause", "notice", "ask", "say", "breathe", "name",
		"share", "offer", "give", "let", "start", "consider", "practice":
		return 0.1
	}
	return 0
}

// brevityBonus scores word count into [−0.1, +0.15]: short actionable lines
// win, walls of text lose.
func brevityBonus(advice string) float64 {
	n := len(strings.Fields(advice))
	switch {
	case n <= 4:
		return 0.05
	case n <= 14:
		return 0.15
	case n <= 25:
		return 0.05
	case n <= 40:
		return -0.05
	default:
		return -0.1
	}
}

// weightsFor resolves the per-context weight table through the fallback
// chain exact → alias → family → general → default, logging each fallback.
func (r *Ranker) weightsFor(contextKey string) Weights {
	w := DefaultWeights()
	wm := r.cfg.WeightModifiers()
	if wm == nil {
		return w
	}

	overrides := wm.AdviceRankOverrides.ByContext
	lookup := func(key string) (map[string]float64, bool) {
		deltas, ok := overrides[key]
		return deltas, ok
	}

	deltas, ok := lookup(contextKey)
	if !ok && !r.weightsOff {
		log := logging.Named("advice.ranker")
		if alias, has := wm.AliasMap[contextKey]; has {
			if deltas, ok = lookup(alias); ok {
				log.Debug("weights.fallback", zap.String("from", contextKey), zap.String("to", alias), zap.String("tier", "alias"))
			}
		}
		if !ok {
			if family, has := wm.FamilyMap[contextKey]; has {
				if deltas, ok = lookup(family); ok {
					log.Debug("weights.fallback", zap.String("from", contextKey), zap.String("to", family), zap.String("tier", "family"))
				}
			}
		}
		if !ok {
			if deltas, ok = lookup("general"); ok {
				log.Debug("weights.fallback", zap.String("from", contextKey), zap.String("to", "general"), zap.String("tier", "general"))
			}
		}
		if !ok {
			log.Debug("weights.fallback.suggestions", zap.String("context", contextKey), zap.String("tier", "default"))
		}
	}
	if !ok {
		return w
	}

	clip := func(d float64) float64 {
		return clampF(d, wm.Bounds.Min, wm.Bounds.Max)
	}
	for name, delta := range deltas {
		delta = clip(delta)
		switch name {
		case "baseConfidence":
			w.BaseConfidence += delta
		case "toneMatch":
			w.ToneMatch += delta
		case "contextMatch":
			w.ContextMatch += delta
		case "attachmentMatch":
			w.AttachmentMatch += delta
		case "intensityBoost":
			w.IntensityBoost += delta
		case "negationPenalty":
			w.NegationPenalty += delta
		case "sarcasmPenalty":
			w.SarcasmPenalty += delta
		case "phraseEdgeBoost":
			w.PhraseEdgeBoost += delta
		case "userPrefBoost":
			w.UserPrefBoost += delta
		case "secondPersonBoost":
			w.SecondPersonBoost += delta
		case "severityFit":
			w.SeverityFit += delta
		case "premiumBoost":
			w.PremiumBoost += delta
		}
	}
	return w
}

// temperatureFor combines the base temperature with context and
// intensity-level adjustments, clamped to [0.1, 5.0].
func (r *Ranker) temperatureFor(contextKey string, intensity float64) float64 {
	temp := 1.0
	if byCtx := r.cfg.WeightModifiers().ByContext; byCtx != nil {
		if adj, ok := byCtx[contextKey]; ok {
			temp += adj["temperature"]
		}
	}
	switch {
	case intensity >= 0.65:
		temp += 0.2
	case intensity < 0.25:
		temp -= 0.1
	}
	return clampF(temp, 0.1, 5.0)
}

func (r *Ranker) confidenceFloor(contextKey string) float64 {
	et := r.cfg.EvaluationTones()
	if f, ok := et.MinConfidence[contextKey]; ok {
		return f
	}
	if et.MinConfidenceDefault > 0 {
		return et.MinConfidenceDefault
	}
	return 0.55
}

// mmrDiversify reranks the pool by Maximal-Marginal-Relevance. Novelty
// vectors come from the dense collection's similarity search against the
// request text; with no dense vectors available the novelty term is skipped
// and order is preserved.
func (r *Ranker) mmrDiversify(ctx context.Context, pool []Candidate, in RankInput) []Candidate {
	if len(pool) <= 1 {
		return pool
	}
	lambda := r.mmrLambda(in.ContextKey)

	if !r.index.HasDense() {
		return pool
	}
	vectors, err := r.index.DenseQuery(ctx, in.Text, len(pool)*2)
	if err != nil {
		return pool
	}
	// Candidates outside the dense result set fall back to the on-demand
	// vector cache so pairwise novelty stays complete.
	for _, c := range pool {
		if _, ok := vectors[c.Item.ID]; ok {
			continue
		}
		if vec, err := r.index.GetVector(ctx, c.Item.ID); err == nil {
			vectors[c.Item.ID] = vec
		}
	}

	k := envInt("MMR_K", len(pool))
	if k > len(pool) {
		k = len(pool)
	}
	selected := make([]Candidate, 0, k)
	remaining := append([]Candidate(nil), pool...)
	for len(selected) < k && len(remaining) > 0 {
		bestIdx, bestVal := 0, minusInf
		for i, c := range remaining {
			relevance := c.Score
			novelty := 0.0
			if vec, ok := vectors[c.Item.ID]; ok {
				for _, s := range selected {
					if sv, ok := vectors[s.Item.ID]; ok {
						if sim := CosineSimilarity(vec, sv); sim > novelty {
							novelty = sim
						}
					}
				}
			}
			val := lambda*relevance - (1-lambda)*novelty
			if val > bestVal {
				bestVal, bestIdx = val, i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

func (r *Ranker) mmrLambda(contextKey string) float64 {
	if v := os.Getenv("MMR_LAMBDA"); v != "" {
		return clampF(envFloat("MMR_LAMBDA", defaultMMRLambda), 0, 1)
	}
	if lambdas := r.cfg.Retrieval().MMRLambda; lambdas != nil {
		if l, ok := lambdas[contextKey]; ok {
			return clampF(l, 0, 1)
		}
	}
	return defaultMMRLambda
}

// dedupeByCategory keeps the highest-scored item per leading category,
// preserving items without categories.
func dedupeByCategory(pool []Candidate) []Candidate {
	seen := make(map[string]bool)
	out := pool[:0]
	for _, c := range pool {
		cat := firstCategory(c.Item)
		if cat != "" {
			if seen[cat] {
				continue
			}
			seen[cat] = true
		}
		out = append(out, c)
	}
	return out
}

func firstCategory(item *config.AdviceItem) string {
	cats := item.AllCategories()
	if len(cats) == 0 {
		return ""
	}
	return cats[0]
}

func mergeIntents(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// contentWords is the ≥3-char word set used by the Jaccard penalty.
func contentWords(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range TokenizeQuery(text) {
		if len(w) >= 3 {
			set[w] = true
		}
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// normalizeConfidence squashes calibrated rank scores into [0,1].
func normalizeConfidence(score float64) float64 {
	return clampF((score+1.5)/3.5, 0, 1)
}

var minusInf = -1e18

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
