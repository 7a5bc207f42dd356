// Package nlp is the local linguistic helper: tokenization, sentence
// splitting, heuristic POS and lemma guessing, local-window negation scoping,
// second-person entity tagging, sarcasm/intensity/phrase-edge detection, and
// context classification. It is a budgeted heuristic engine driven by the
// config lexicons and regex packs, not a parser.
package nlp

import (
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/unsaidlabs/tonecore/pkg/config"
	"github.com/unsaidlabs/tonecore/pkg/logging"
)

const (
	// MaxCharsSync bounds the synchronous analysis path.
	MaxCharsSync = 2000
	// MaxCharsAsync bounds the async/document path.
	MaxCharsAsync = 8000
	// MaxTokensHeavy caps tokens fed to the heavy passes.
	MaxTokensHeavy = 400

	defaultCacheSize = 128
	negHeadWindow    = 6
)

// Token is one analyzed token with char offsets into the original text.
type Token struct {
	Text  string `json:"text"`
	Lemma string `json:"lemma"`
	POS   string `json:"pos"`
	Tag   string `json:"tag,omitempty"`
	I     int    `json:"i"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Span is a half-open range; units depend on the field it annotates.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Dep records a dependency-style relation inferred by the local-window rules.
type Dep struct {
	Rel       string `json:"rel"`
	Head      int    `json:"head"`
	Token     int    `json:"token"`
	CharStart int    `json:"charStart"`
	CharEnd   int    `json:"charEnd"`
}

// Entity is a labeled token span (token indices).
type Entity struct {
	Label string `json:"label"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// SarcasmResult aggregates sarcasm cue hits.
type SarcasmResult struct {
	Present     bool    `json:"present"`
	Score       float64 `json:"score"`
	OverallProb float64 `json:"overallProb"`
	Hits        int     `json:"hits"`
}

// IntensityHit is one matched intensifier.
type IntensityHit struct {
	Word       string  `json:"word"`
	Level      string  `json:"level"`
	Multiplier float64 `json:"multiplier"`
	Scope      string  `json:"scope"`
}

// IntensityResult combines intensifier hits multiplicatively.
type IntensityResult struct {
	Hits    []IntensityHit `json:"hits"`
	Overall float64        `json:"overall"`
}

// EdgeHit is one matched phrase edge.
type EdgeHit struct {
	Category string  `json:"category"`
	Weight   float64 `json:"weight"`
	Text     string  `json:"text"`
}

// ContextScore is one ranked context candidate.
type ContextScore struct {
	Key   string  `json:"key"`
	Score float64 `json:"score"`
}

// ContextResult is the classifier output.
type ContextResult struct {
	Label      string         `json:"label"`
	Score      float64        `json:"score"`
	Secondary  string         `json:"secondary,omitempty"`
	Confidence float64        `json:"confidence"`
	Ranked     []ContextScore `json:"ranked,omitempty"`
}

// Analysis is the full LocalNLP output for one text.
type Analysis struct {
	Text        string          `json:"text"`
	Tokens      []Token         `json:"tokens"`
	Sents       []Span          `json:"sents"`
	Deps        []Dep           `json:"deps"`
	SubtreeSpan map[int]Span    `json:"subtreeSpan"`
	Entities    []Entity        `json:"entities"`
	Sarcasm     SarcasmResult   `json:"sarcasm"`
	Intensity   IntensityResult `json:"intensity"`
	PhraseEdges []EdgeHit       `json:"phraseEdges"`
	Context     ContextResult   `json:"context"`
}

var (
	tokenRe    = regexp.MustCompile(`\w+|[^\s\w]`)
	sentSplit  = regexp.MustCompile(`[.!?]+|\n+`)
	elongRe    = regexp.MustCompile(`\w{3,}`)
	punctSarc  = []*regexp.Regexp{
		regexp.MustCompile(`!!+`),
		regexp.MustCompile(`\?\?\?+`),
		regexp.MustCompile(`\.\.\.`),
	}
	baseSarcasm = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\boh\s+(sure|right|great|wonderful)\b`),
		regexp.MustCompile(`(?i)\byeah,?\s+right\b`),
		regexp.MustCompile(`(?i)\bsuuu+re\b`),
	}
)

var pronouns2P = map[string]bool{
	"you": true, "your": true, "you're": true, "ur": true,
	"u": true, "yours": true, "yourself": true,
}

var pronounPOS = map[string]bool{
	"i": true, "you": true, "he": true, "she": true, "it": true, "we": true,
	"they": true, "me": true, "him": true, "her": true, "us": true, "them": true,
	"my": true, "your": true, "his": true, "its": true, "our": true, "their": true,
}

var auxPOS = map[string]bool{
	"am": true, "is": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "being": true, "do": true, "does": true, "did": true,
	"have": true, "has": true, "had": true, "will": true, "would": true,
	"can": true, "could": true, "should": true, "shall": true, "may": true,
	"might": true, "must": true,
}

// Analyzer is the LocalNLP engine. Safe for concurrent use; the only mutable
// state is the LRU cache.
type Analyzer struct {
	cfg         *config.Provider
	negMarkers  map[string]bool
	sarcasmRes  []compiledSarcasm
	intensityRe []compiledIntensity
	edgeRes     []compiledEdge
	contexts    []compiledContext
	stopTokens  map[string]bool
	maxChars    int
	cache       *lru.Cache[string, *Analysis]
}

type compiledSarcasm struct {
	re         *regexp.Regexp
	confidence float64
}

type compiledIntensity struct {
	re         *regexp.Regexp
	level      string
	multiplier float64
	scope      string
}

type compiledEdge struct {
	re       *regexp.Regexp
	category string
	weight   float64
}

type compiledContext struct {
	key          string
	phrases      []config.ContextPhrase
	tau          float64
	temperature  float64
	boosts       map[string]float64
	severity     map[string]float64
	deescalators []string
}

// NewAnalyzer compiles the analyzer from the config provider. Invalid regex
// patterns are skipped with a debug log; compilation is best-effort and never
// aborts the build.
func NewAnalyzer(cfg *config.Provider) *Analyzer {
	log := logging.Named("nlp")
	a := &Analyzer{
		cfg:        cfg,
		negMarkers: make(map[string]bool),
		stopTokens: make(map[string]bool),
		maxChars:   MaxCharsSync,
	}
	a.cache, _ = lru.New[string, *Analysis](defaultCacheSize)

	for _, marker := range cfg.Negation().Indicators {
		a.negMarkers[strings.ToLower(marker)] = true
	}

	for _, ind := range cfg.SarcasmIndicators() {
		re, err := regexp.Compile(ind.Pattern)
		if err != nil {
			log.Debug("nlp.pattern.skipped", zap.String("kind", "sarcasm"),
				zap.String("pattern", ind.Pattern), zap.Error(err))
			continue
		}
		a.sarcasmRes = append(a.sarcasmRes, compiledSarcasm{re: re, confidence: ind.Confidence})
	}

	for _, mod := range cfg.IntensityModifiers() {
		re, err := regexp.Compile(mod.Pattern)
		if err != nil {
			log.Debug("nlp.pattern.skipped", zap.String("kind", "intensity"),
				zap.String("pattern", mod.Pattern), zap.Error(err))
			continue
		}
		a.intensityRe = append(a.intensityRe, compiledIntensity{
			re: re, level: mod.Level, multiplier: mod.Multiplier, scope: mod.Scope,
		})
	}

	for _, edge := range cfg.PhraseEdges() {
		re, err := regexp.Compile(edge.Pattern)
		if err != nil {
			log.Debug("nlp.pattern.skipped", zap.String("kind", "edge"),
				zap.String("pattern", edge.Pattern), zap.Error(err))
			continue
		}
		a.edgeRes = append(a.edgeRes, compiledEdge{re: re, category: edge.Category, weight: edge.Weight})
	}

	cc := cfg.ContextClassifier()
	for _, tok := range cc.Engine.StopTokens {
		a.stopTokens[strings.ToLower(tok)] = true
	}
	for _, rec := range cc.Contexts {
		tau := rec.Tau
		if tau <= 0 {
			tau = 12
		}
		temp := rec.Temperature
		if temp <= 0 {
			temp = 1.0
		}
		a.contexts = append(a.contexts, compiledContext{
			key: rec.Key, phrases: rec.Phrases, tau: tau, temperature: temp,
			boosts: rec.ConfidenceBoosts, severity: rec.Severity,
			deescalators: rec.Deescalators,
		})
	}

	return a
}

// ContextRecordFor returns the compiled boosts/severity/deescalators for a
// context key, used by the tone scorer.
func (a *Analyzer) ContextRecordFor(key string) (boosts, severity map[string]float64, deescalators []string, ok bool) {
	for _, c := range a.contexts {
		if c.key == key {
			return c.boosts, c.severity, c.deescalators, true
		}
	}
	return nil, nil, nil, false
}

// Analyze runs the full pass over text. Results are LRU-cached by the clamped
// input.
func (a *Analyzer) Analyze(text string) *Analysis {
	if len(text) > a.maxChars {
		text = text[:a.maxChars]
	}
	if cached, ok := a.cache.Get(text); ok {
		return cached
	}
	analysis := a.analyze(text)
	a.cache.Add(text, analysis)
	return analysis
}

func (a *Analyzer) analyze(text string) *Analysis {
	tokens := a.Tokenize(text)
	sents := a.SplitSentences(text)
	an := &Analysis{
		Text:        text,
		Tokens:      tokens,
		Sents:       sents,
		SubtreeSpan: make(map[int]Span),
	}
	a.tagPOS(an)
	a.lemmatize(an)
	a.inferNegation(an)
	a.tagSecondPerson(an)
	an.Sarcasm = a.DetectSarcasm(text)
	an.Intensity = a.DetectIntensity(text)
	an.PhraseEdges = a.DetectPhraseEdges(text)
	an.Context = a.ClassifyContext(tokens)
	return an
}

// Tokenize splits text into word and punctuation tokens with char offsets.
func (a *Analyzer) Tokenize(text string) []Token {
	locs := tokenRe.FindAllStringIndex(text, -1)
	tokens := make([]Token, 0, len(locs))
	for i, loc := range locs {
		if i >= MaxTokensHeavy {
			break
		}
		tokens = append(tokens, Token{
			Text:  text[loc[0]:loc[1]],
			I:     i,
			Start: loc[0],
			End:   loc[1],
		})
	}
	return tokens
}

// SplitSentences returns char spans split on terminal punctuation or newline
// runs. A text with no terminator yields one span covering everything.
func (a *Analyzer) SplitSentences(text string) []Span {
	var sents []Span
	start := 0
	for _, loc := range sentSplit.FindAllStringIndex(text, -1) {
		end := loc[1]
		if end > start && strings.TrimSpace(text[start:loc[0]]) != "" {
			sents = append(sents, Span{Start: start, End: end})
		}
		start = end
	}
	if start < len(text) && strings.TrimSpace(text[start:]) != "" {
		sents = append(sents, Span{Start: start, End: len(text)})
	}
	if len(sents) == 0 && len(text) > 0 {
		sents = []Span{{Start: 0, End: len(text)}}
	}
	return sents
}

func isPunct(tok string) bool {
	for _, r := range tok {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return false
		}
	}
	return len(tok) > 0
}

func isAllCaps(tok string) bool {
	hasLetter := false
	for _, r := range tok {
		if r >= 'a' && r <= 'z' {
			return false
		}
		if r >= 'A' && r <= 'Z' {
			hasLetter = true
		}
	}
	return hasLetter
}

func (a *Analyzer) tagPOS(an *Analysis) {
	sentStarts := make(map[int]bool)
	for _, s := range an.Sents {
		for i := range an.Tokens {
			if an.Tokens[i].Start >= s.Start {
				sentStarts[i] = true
				break
			}
		}
	}
	for i := range an.Tokens {
		tok := &an.Tokens[i]
		lower := strings.ToLower(tok.Text)
		switch {
		case isPunct(tok.Text):
			tok.POS = "PUNCT"
		case pronounPOS[lower]:
			tok.POS = "PRON"
		case auxPOS[lower]:
			tok.POS = "AUX"
		case strings.HasSuffix(lower, "ing") && len(lower) > 4:
			tok.POS = "VERB"
		case strings.HasSuffix(lower, "ed") && len(lower) > 3:
			tok.POS = "VERB"
		case strings.HasSuffix(lower, "ly") && len(lower) > 3:
			tok.POS = "ADV"
		case !sentStarts[i] && len(tok.Text) > 1 &&
			tok.Text[0] >= 'A' && tok.Text[0] <= 'Z' && !isAllCaps(tok.Text):
			tok.POS = "PROPN"
		default:
			tok.POS = "NOUN"
		}
	}
}

func (a *Analyzer) lemmatize(an *Analysis) {
	for i := range an.Tokens {
		tok := &an.Tokens[i]
		lemma := strings.ToLower(tok.Text)
		switch {
		case strings.HasSuffix(lemma, "n't"):
			lemma = "not"
		case strings.HasSuffix(lemma, "'re"), strings.HasSuffix(lemma, "'ve"),
			strings.HasSuffix(lemma, "'ll"), strings.HasSuffix(lemma, "'d"):
			if idx := strings.LastIndex(lemma, "'"); idx > 0 {
				lemma = lemma[:idx]
			}
		case strings.HasSuffix(lemma, "ing") && len(lemma) > 5:
			lemma = lemma[:len(lemma)-3]
		case strings.HasSuffix(lemma, "ed") && len(lemma) > 4:
			lemma = lemma[:len(lemma)-2]
		case strings.HasSuffix(lemma, "s") && !strings.HasSuffix(lemma, "ss") && len(lemma) > 3:
			lemma = lemma[:len(lemma)-1]
		}
		tok.Lemma = lemma
	}
}

// negHeadPreference orders candidate head POS tags, highest first.
var negHeadPreference = []string{"VERB", "AUX", "ADJ"}

// inferNegation applies the local-window rule: each negation marker picks a
// head by scanning right up to 6 tokens for the highest-preference POS, then
// left within the same window, defaulting to itself. The subtree span is the
// containing sentence's char range.
func (a *Analyzer) inferNegation(an *Analysis) {
	for i := range an.Tokens {
		tok := &an.Tokens[i]
		norm := strings.ToLower(strings.TrimSpace(tok.Text))
		// The tokenizer splits "don't" into don / ' / t; the trailing t with
		// an apostrophe before it is the n't contraction.
		contraction := norm == "t" && i >= 1 && an.Tokens[i-1].Text == "'"
		if !contraction && !a.negMarkers[norm] && !a.negMarkers[tok.Lemma] {
			continue
		}

		head := -1
		for _, pref := range negHeadPreference {
			for j := i + 1; j <= i+negHeadWindow && j < len(an.Tokens); j++ {
				if an.Tokens[j].POS == pref {
					head = j
					break
				}
			}
			if head >= 0 {
				break
			}
		}
		if head < 0 {
			for _, pref := range negHeadPreference {
				for j := i - 1; j >= i-negHeadWindow && j >= 0; j-- {
					if an.Tokens[j].POS == pref {
						head = j
						break
					}
				}
				if head >= 0 {
					break
				}
			}
		}
		if head < 0 {
			head = i
		}

		an.Deps = append(an.Deps, Dep{
			Rel: "neg", Head: head, Token: i,
			CharStart: tok.Start, CharEnd: tok.End,
		})
		sent := a.sentenceFor(an, tok.Start)
		an.SubtreeSpan[head] = sent
	}
}

func (a *Analyzer) sentenceFor(an *Analysis, charPos int) Span {
	for _, s := range an.Sents {
		if charPos >= s.Start && charPos < s.End {
			return s
		}
	}
	return Span{Start: 0, End: len(an.Text)}
}

// tagSecondPerson marks tokens from the you-family pronoun set as PRON_2P
// entities, merging adjacent spans.
func (a *Analyzer) tagSecondPerson(an *Analysis) {
	for i := range an.Tokens {
		lemma := strings.ToLower(an.Tokens[i].Text)
		if !pronouns2P[lemma] && !pronouns2P[an.Tokens[i].Lemma] {
			continue
		}
		if n := len(an.Entities); n > 0 && an.Entities[n-1].Label == "PRON_2P" && an.Entities[n-1].End == i {
			an.Entities[n-1].End = i + 1
			continue
		}
		an.Entities = append(an.Entities, Entity{Label: "PRON_2P", Start: i, End: i + 1})
	}
}

// DetectSarcasm combines the base regex pack, the configured indicators, and
// punctuation cues.
func (a *Analyzer) DetectSarcasm(text string) SarcasmResult {
	var sum float64
	hits := 0
	for _, re := range baseSarcasm {
		if re.MatchString(text) {
			sum += 0.65
			hits++
		}
	}
	for _, cs := range a.sarcasmRes {
		if cs.re.MatchString(text) {
			sum += cs.confidence
			hits++
		}
	}
	for _, re := range punctSarc {
		if re.MatchString(text) {
			sum += 0.3
			hits++
		}
	}
	res := SarcasmResult{Hits: hits}
	if hits > 0 {
		res.Score = sum / float64(hits)
		res.OverallProb = minF(1, 0.25*float64(hits)+0.5*res.Score)
		res.Present = res.OverallProb >= 0.5
	}
	return res
}

// DetectIntensity combines intensifier multipliers: each hit contributes
// min(max(mult-1,0), 0.35) and the overall is 1 − ∏(1 − contribution).
func (a *Analyzer) DetectIntensity(text string) IntensityResult {
	res := IntensityResult{}
	remain := 1.0
	for _, ci := range a.intensityRe {
		for _, m := range ci.re.FindAllString(text, -1) {
			contribution := ci.multiplier - 1
			if contribution < 0 {
				contribution = 0
			}
			if contribution > 0.35 {
				contribution = 0.35
			}
			remain *= 1 - contribution
			res.Hits = append(res.Hits, IntensityHit{
				Word: m, Level: ci.level, Multiplier: ci.multiplier, Scope: ci.scope,
			})
		}
	}
	res.Overall = 1 - remain
	return res
}

// DetectPhraseEdges returns category hits from the compiled edge pack.
func (a *Analyzer) DetectPhraseEdges(text string) []EdgeHit {
	var hits []EdgeHit
	for _, ce := range a.edgeRes {
		if m := ce.re.FindString(text); m != "" {
			hits = append(hits, EdgeHit{Category: ce.category, Weight: ce.weight, Text: m})
		}
	}
	return hits
}

// IntensityModifierScore sums (multiplier−1) over matching patterns; feature
// extraction uses the raw sum rather than the combined probability.
func (a *Analyzer) IntensityModifierScore(text string) float64 {
	var sum float64
	for _, ci := range a.intensityRe {
		if ci.re.MatchString(text) {
			sum += ci.multiplier - 1
		}
	}
	return sum
}

// ElongationCount counts stretched words like "sooo".
func ElongationCount(text string) int {
	n := 0
	for _, word := range elongRe.FindAllString(text, -1) {
		run := 1
		for i := 1; i < len(word); i++ {
			if word[i] != word[i-1] {
				run = 1
				continue
			}
			run++
			if run == 3 {
				n++
			}
		}
	}
	return n
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// CacheKey formats the analyzer cache key; exported for the stats surface.
func CacheKey(text string) string {
	return fmt.Sprintf("a:%d:%s", len(text), text)
}
