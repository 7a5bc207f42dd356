package tone

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/unsaidlabs/tonecore/pkg/config"
	"github.com/unsaidlabs/tonecore/pkg/nlp"
)

// Emotion labels emitted by the scorer.
var emotionLabels = []string{
	"neutral", "positive", "supportive", "anxious",
	"angry", "frustrated", "sad", "assertive",
}

// Signal is one piece of scoring evidence.
type Signal struct {
	Name     string  `json:"name"`
	Weight   float64 `json:"weight"`
	Polarity int     `json:"polarity"` // +1 negative-tone evidence, -1 positive-tone evidence
}

// MetaClassifier carries the logistic head's probabilities. These flow to the
// bucket mapper; they are not folded back into the per-emotion scores.
type MetaClassifier struct {
	PAlert   float64 `json:"pAlert"`
	PCaution float64 `json:"pCaution"`
}

// Score is the full scorer output.
type Score struct {
	Scores          map[string]float64 `json:"scores"`
	Classification  string             `json:"classification"`
	Intensity       float64            `json:"intensity"`
	Confidence      float64            `json:"confidence"`
	Meta            MetaClassifier     `json:"metaClassifier"`
	Signals         []Signal           `json:"signals"`
	Explanation     []string           `json:"explanation"`
	ContextSeverity map[string]float64 `json:"contextSeverity,omitempty"`
	Profanity       ProfanityAnalysis  `json:"profanity"`
	TargetedImperative bool            `json:"targetedImperative"`
	Threat          bool               `json:"threat"`
	ComplimentVeto  bool               `json:"complimentVeto"`
}

var (
	complimentRe = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bthank(s| you)\b`),
		regexp.MustCompile(`(?i)\b(great|amazing|wonderful|awesome|fantastic) (job|work)\b`),
		regexp.MustCompile(`(?i)\bi appreciate\b`),
		regexp.MustCompile(`(?i)\byou did (so |really )?(well|great)\b`),
		regexp.MustCompile(`(?i)\bproud of you\b`),
	}
	strongNegativeRe = regexp.MustCompile(`(?i)\b(hate|stupid|idiot|shut up|screw|pathetic|worst)\b`)

	threatRe = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bi('ll| will|'m gonna| am gonna| am going to)\s+\w*\s*(hurt|ruin|report|expose|fire|destroy|kill|harm)\b`),
		regexp.MustCompile(`(?i)\bor else\b`),
	}
	dismissiveRe = regexp.MustCompile(`(?i)\b(whatever|forget it|don'?t care|who cares|fine\.|so what)\b`)
	rhetoricalHeatRe = regexp.MustCompile(`(?i)\b(why (do|did|would) you|what('s| is) wrong with you|are you (serious|kidding))\b.*\?`)
	belittleRe = regexp.MustCompile(`(?i)\b(so|being) (stupid|dumb|childish|ridiculous|pathetic|useless)\b`)
	angerEmoji = []string{"😡", "🤬", "💢", "🖕"}

	imperativeVerbs = map[string]bool{
		"stop": true, "shut": true, "listen": true, "leave": true, "go": true,
		"get": true, "quit": true, "answer": true, "look": true, "grow": true,
	}
	heatMarkers = map[string]bool{
		"now": true, "up": true, "stupid": true, "already": true, "damn": true,
	}
)

// Scorer is the rule-weighted tone engine with the logistic meta head.
type Scorer struct {
	cfg       *config.Provider
	analyzer  *nlp.Analyzer
	profanity *ProfanityDetector
	memory    *ConversationMemory
	bias      map[string]map[string]float64
}

// NewScorer wires the scorer. memory may be nil when conversation hysteresis
// is not wanted (one-shot analysis).
func NewScorer(cfg *config.Provider, analyzer *nlp.Analyzer, memory *ConversationMemory) *Scorer {
	return &Scorer{
		cfg:       cfg,
		analyzer:  analyzer,
		profanity: NewProfanityDetector(cfg.ProfanityLexicons()),
		memory:    memory,
		bias:      cfg.ToneTriggerWords().AttachmentBias,
	}
}

// Input bundles everything the scorer needs for one text.
type Input struct {
	Text            string
	Doc             *nlp.CompactDoc
	Features        Features
	ContextKey      string
	AttachmentStyle string
	FieldID         string
}

// Score runs the full detection, bias, and classification procedure.
func (s *Scorer) Score(in Input) Score {
	scores := map[string]float64{
		"neutral": 0.5, "positive": 0, "supportive": 0, "anxious": 0,
		"angry": 0, "frustrated": 0, "sad": 0, "assertive": 0,
	}
	var signals []Signal
	add := func(emotion string, w float64, name string, polarity int) {
		if w == 0 {
			return
		}
		scores[emotion] += w
		signals = append(signals, Signal{Name: name, Weight: math.Abs(w), Polarity: polarity})
	}

	text := in.Text
	f := in.Features
	lowerTokens := strings.Fields(nlp.NormalizeText(text))

	// 1. Compliment veto.
	veto := false
	for _, re := range complimentRe {
		if re.MatchString(text) {
			veto = true
			break
		}
	}
	if veto && strongNegativeRe.MatchString(text) {
		veto = false
	}
	if veto {
		add("supportive", 0.8, "compliment", -1)
		add("positive", 0.7, "compliment", -1)
	}

	// 2. Enhanced detectors.
	targetedImperative := s.detectTargetedImperative(lowerTokens)
	if targetedImperative {
		add("angry", 0.7, "targeted_imperative", 1)
	}

	threat := false
	for _, re := range threatRe {
		if re.MatchString(text) {
			threat = true
			break
		}
	}
	if threat {
		add("angry", 0.9, "threat_intent", 1)
	}

	dismissive := dismissiveRe.MatchString(text)
	if dismissive {
		add("frustrated", 0.4, "dismissive", 1)
	}
	hostileQuestion := rhetoricalHeatRe.MatchString(text)
	if hostileQuestion {
		add("angry", 0.35, "rhetorical_heat", 1)
	}
	angerEmojiHit := false
	for _, e := range angerEmoji {
		if strings.Contains(text, e) {
			angerEmojiHit = true
			break
		}
	}
	if angerEmojiHit {
		add("angry", 0.3, "emoji_escalation", 1)
	}
	if belittleRe.MatchString(text) {
		add("angry", 0.5, "belittling", 1)
	}
	sarcCue := f.SarcPresent
	if sarcCue {
		add("frustrated", 0.3, "sarcasm", 1)
	}
	// Prosody: shouting and stretched words.
	if f.CapsRatio > 0.4 && f.CapsCount >= 4 {
		add("angry", 0.35, "prosody_caps", 1)
	}
	if f.Exclamations >= 2 {
		add("angry", 0.15*float64(minI(f.Exclamations, 4)), "prosody_exclaim", 1)
	}
	if f.Elongations > 0 {
		add("frustrated", 0.1*float64(minI(f.Elongations, 3)), "prosody_elongation", 1)
	}

	// Lexicon ratios feed the base emotions.
	add("angry", f.AngerRatio*2.0, "anger_lexicon", 1)
	add("sad", f.SadnessRatio*2.0, "sadness_lexicon", 1)
	add("anxious", f.AnxietyRatio*2.0, "anxiety_lexicon", 1)
	add("positive", f.JoyRatio*1.8, "joy_lexicon", -1)
	add("supportive", f.AffectionRatio*1.8, "affection_lexicon", -1)
	if f.ModalCount > 0 && f.SecondPersonCount == 0 {
		add("assertive", 0.15*float64(minI(f.ModalCount, 3)), "modal_self", 0)
	}

	// 3. Context boosts and severity deltas.
	ctxSeverity := map[string]float64{}
	if boosts, severity, deescalators, ok := s.analyzer.ContextRecordFor(in.ContextKey); ok {
		damp := 1.0
		lower := strings.ToLower(text)
		for _, de := range deescalators {
			if strings.Contains(lower, strings.ToLower(de)) {
				damp = 0.5
				break
			}
		}
		for emotion, boost := range boosts {
			if _, known := scores[emotion]; known {
				add(emotion, boost*damp, "context_"+in.ContextKey, 0)
			}
		}
		for bucket, delta := range severity {
			ctxSeverity[bucket] = delta * damp
		}
	}

	// 4. Attachment bias multipliers.
	if mults, ok := s.bias[in.AttachmentStyle]; ok {
		for dim, m := range mults {
			if _, known := scores[dim]; known {
				scores[dim] *= m
			}
		}
	}

	// 5. Profanity.
	prof := s.profanity.Analyze(lowerTokens)
	if boost := prof.AlertBoost(); boost > 0 {
		add("angry", boost, "profanity_"+prof.MaxSeverity, 1)
	}

	// 7. Safety rails: targeted profanity of any severity raises the angry
	// feature by severity but never forces the final label.
	if prof.HasTargetedSecondPerson {
		railBoost := map[string]float64{"mild": 0.4, "moderate": 0.6, "strong": 0.8}[prof.MaxSeverity]
		add("angry", railBoost, "targeted_profanity", 1)
	}

	// 8. Conversation hysteresis.
	if s.memory != nil && in.FieldID != "" {
		if mem, ok := s.memory.Get(in.FieldID); ok {
			age := time.Since(mem.Timestamp)
			if age < 10*time.Second && mem.LastTone == "alert" && (dismissive || f.NegPresent) {
				add("frustrated", 0.3, "hysteresis_defensive", 1)
			}
			if age < 5*time.Second && f.SecondPersonCount > 0 && f.AbsolutesCount > 0 &&
				mem.SecondPersonCount > 0 {
				add("angry", 0.35, "hysteresis_absolutes", 1)
			}
		}
	}

	// 6. Meta-classifier over the fixed 12-feature vector.
	meta := s.metaClassify(metaFeatures{
		strongProfanity:   b2f(prof.BySeverity["strong"] > 0),
		moderateProfanity: b2f(prof.BySeverity["moderate"] > 0),
		targetedProfanity: b2f(prof.HasTargetedSecondPerson),
		targetedImperative: b2f(targetedImperative),
		threat:            b2f(threat),
		absolutesNorm:     minF(float64(f.AbsolutesCount)/3.0, 1),
		punctHeat:         minF(float64(f.Exclamations)/4.0+f.CapsRatio, 1),
		angerEmoji:        b2f(angerEmojiHit),
		hostileQuestion:   b2f(hostileQuestion),
		dismissive:        b2f(dismissive),
		conflictContext:   b2f(in.ContextKey == "conflict"),
		sarcasmCue:        b2f(sarcCue),
	}, f)

	if veto {
		meta.PAlert = minF(meta.PAlert, 0.15)
		meta.PCaution = minF(meta.PCaution, 0.25)
	}

	// 9. Stable softmax over scores.
	dist, classification := softmaxScores(scores)

	// 10. Evidential confidence.
	var weightSum float64
	hasPos, hasNeg := false, false
	for _, sig := range signals {
		weightSum += sig.Weight
		switch sig.Polarity {
		case 1:
			hasNeg = true
		case -1:
			hasPos = true
		}
	}
	confidence := minF(1, weightSum/2)
	if hasPos && hasNeg {
		confidence *= 0.7
	}

	sort.SliceStable(signals, func(i, j int) bool {
		if signals[i].Weight != signals[j].Weight {
			return signals[i].Weight > signals[j].Weight
		}
		return signals[i].Name < signals[j].Name
	})
	explanation := make([]string, 0, 3)
	for i := 0; i < len(signals) && i < 3; i++ {
		explanation = append(explanation, signals[i].Name)
	}

	intensity := minF(1, in.Features.IntensityModScore*0.5+
		0.15*float64(minI(f.Exclamations, 4))+f.CapsRatio+prof.AlertBoost())

	return Score{
		Scores:          dist,
		Classification:  classification,
		Intensity:       intensity,
		Confidence:      confidence,
		Meta:            meta,
		Signals:         signals,
		Explanation:     explanation,
		ContextSeverity: ctxSeverity,
		Profanity:       prof,
		TargetedImperative: targetedImperative,
		Threat:          threat,
		ComplimentVeto:  veto,
	}
}

// detectTargetedImperative fires on a first-token imperative verb, or on an
// imperative verb with "you" or a heat marker within ±4 tokens.
func (s *Scorer) detectTargetedImperative(tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	if imperativeVerbs[tokens[0]] {
		return true
	}
	for i, tok := range tokens {
		if !imperativeVerbs[tok] {
			continue
		}
		lo := maxI(0, i-4)
		hi := minI(len(tokens), i+5)
		for j := lo; j < hi; j++ {
			if j == i {
				continue
			}
			if tokens[j] == "you" || tokens[j] == "your" || heatMarkers[tokens[j]] {
				return true
			}
		}
	}
	return false
}

type metaFeatures struct {
	strongProfanity, moderateProfanity, targetedProfanity float64
	targetedImperative, threat, absolutesNorm             float64
	punctHeat, angerEmoji, hostileQuestion                float64
	dismissive, conflictContext, sarcasmCue               float64
}

func (m metaFeatures) vector() [12]float64 {
	return [12]float64{
		m.strongProfanity, m.moderateProfanity, m.targetedProfanity,
		m.targetedImperative, m.threat, m.absolutesNorm,
		m.punctHeat, m.angerEmoji, m.hostileQuestion,
		m.dismissive, m.conflictContext, m.sarcasmCue,
	}
}

// Bounded weight vectors for the logistic head.
var (
	alertWeights   = [12]float64{1.8, 0.9, 1.6, 1.6, 2.0, 0.5, 0.7, 0.8, 0.9, 0.3, 0.5, 0.3}
	alertBias      = -2.2
	cautionWeights = [12]float64{0.6, 0.8, 0.7, 0.8, 0.6, 0.9, 0.8, 0.5, 0.9, 1.1, 0.5, 0.9}
	cautionBias    = -1.8
)

func (s *Scorer) metaClassify(m metaFeatures, f Features) MetaClassifier {
	v := m.vector()
	var za, zc float64
	for i := range v {
		za += alertWeights[i] * v[i]
		zc += cautionWeights[i] * v[i]
	}
	meta := MetaClassifier{
		PAlert:   sigmoid(za + alertBias),
		PCaution: sigmoid(zc + cautionBias),
	}
	// Positivity guard: strong joy/affection with no hostile evidence damps
	// both heads.
	if f.JoyRatio+f.AffectionRatio > 0.1 &&
		m.strongProfanity == 0 && m.threat == 0 && m.targetedImperative == 0 {
		meta.PAlert *= 0.5
		meta.PCaution *= 0.7
	}
	return meta
}

func softmaxScores(scores map[string]float64) (map[string]float64, string) {
	maxV := math.Inf(-1)
	for _, label := range emotionLabels {
		if scores[label] > maxV {
			maxV = scores[label]
		}
	}
	dist := make(map[string]float64, len(emotionLabels))
	var denom float64
	for _, label := range emotionLabels {
		e := math.Exp(scores[label] - maxV)
		dist[label] = e
		denom += e
	}
	best := emotionLabels[0]
	for _, label := range emotionLabels {
		dist[label] /= denom
		if dist[label] > dist[best] {
			best = label
		}
	}
	return dist, best
}

func sigmoid(z float64) float64 { return 1 / (1 + math.Exp(-z)) }

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func minI(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxI(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
