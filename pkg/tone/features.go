package tone

import (
	"regexp"
	"strings"

	"github.com/unsaidlabs/tonecore/pkg/config"
	"github.com/unsaidlabs/tonecore/pkg/nlp"
)

// Features is the named numeric bundle consumed by the scorer.
type Features struct {
	// Emotion-lexicon hit ratios over word count.
	AngerRatio     float64 `json:"anger"`
	SadnessRatio   float64 `json:"sadness"`
	AnxietyRatio   float64 `json:"anxiety"`
	JoyRatio       float64 `json:"joy"`
	AffectionRatio float64 `json:"affection"`

	QuestionMarks int     `json:"question_marks"`
	Exclamations  int     `json:"exclamations"`
	CapsCount     int     `json:"caps_count"`
	CapsRatio     float64 `json:"caps_ratio"`
	Elongations   int     `json:"elongations"`

	IntensityModScore float64 `json:"intensity_mod_score"`

	AvgSentenceLen    float64 `json:"avg_sentence_len"`
	FirstPersonCount  int     `json:"first_person_count"`
	SecondPersonCount int     `json:"second_person_count"`
	ModalCount        int     `json:"modal_count"`
	AbsolutesCount    int     `json:"absolutes_count"`

	AttachmentHints map[string]float64 `json:"attachment_hints,omitempty"`

	NegPresent  bool `json:"neg_present"`
	SarcPresent bool `json:"sarc_present"`

	EdgeHits int      `json:"edge_hits"`
	EdgeList []string `json:"edge_list,omitempty"`

	WordCount int `json:"word_count"`
}

var (
	firstPersonSet = map[string]bool{"i": true, "me": true, "my": true, "mine": true, "myself": true}
	modalSet       = map[string]bool{
		"should": true, "must": true, "need": true, "have": true,
		"ought": true, "better": true, "supposed": true,
	}
	absoluteSet = map[string]bool{
		"always": true, "never": true, "every": true, "everything": true,
		"nothing": true, "everyone": true, "nobody": true, "all": true,
		"completely": true, "totally": true, "absolutely": true,
	}
	negFallbackRe  = regexp.MustCompile(`(?i)\b(not|never|no|n't|dont|don't|cant|can't|wont|won't)\b`)
	sarcFallbackRe = regexp.MustCompile(`(?i)(\boh (sure|great)\b|\byeah,? right\b|!{2,}|\.{3})`)
)

// FeatureExtractor builds a Features bundle from text plus the CompactDoc
// when one is available.
type FeatureExtractor struct {
	cfg      *config.Provider
	analyzer *nlp.Analyzer
	emotions map[string]map[string]bool
	hints    map[string][]string
}

// NewFeatureExtractor indexes the emotion lexicons for lookup.
func NewFeatureExtractor(cfg *config.Provider, analyzer *nlp.Analyzer) *FeatureExtractor {
	fe := &FeatureExtractor{
		cfg:      cfg,
		analyzer: analyzer,
		emotions: make(map[string]map[string]bool),
		hints:    cfg.AttachmentHints(),
	}
	lex := cfg.EmotionLexicons()
	index := func(name string, words []string) {
		set := make(map[string]bool, len(words))
		for _, w := range words {
			set[strings.ToLower(w)] = true
		}
		fe.emotions[name] = set
	}
	index("anger", lex.Anger)
	index("sadness", lex.Sadness)
	index("anxiety", lex.Anxiety)
	index("joy", lex.Joy)
	index("affection", lex.Affection)
	return fe
}

// Extract computes the feature bundle. doc may be nil; negation and sarcasm
// then fall back to regex checks.
func (fe *FeatureExtractor) Extract(text string, doc *nlp.CompactDoc) Features {
	var f Features

	words := strings.Fields(nlp.NormalizeText(text))
	f.WordCount = len(words)
	wc := float64(len(words))
	if wc == 0 {
		wc = 1
	}

	var anger, sadness, anxiety, joy, affection int
	for _, w := range words {
		if fe.emotions["anger"][w] {
			anger++
		}
		if fe.emotions["sadness"][w] {
			sadness++
		}
		if fe.emotions["anxiety"][w] {
			anxiety++
		}
		if fe.emotions["joy"][w] {
			joy++
		}
		if fe.emotions["affection"][w] {
			affection++
		}
		if firstPersonSet[w] {
			f.FirstPersonCount++
		}
		if modalSet[w] {
			f.ModalCount++
		}
		if absoluteSet[w] {
			f.AbsolutesCount++
		}
	}
	f.AngerRatio = float64(anger) / wc
	f.SadnessRatio = float64(sadness) / wc
	f.AnxietyRatio = float64(anxiety) / wc
	f.JoyRatio = float64(joy) / wc
	f.AffectionRatio = float64(affection) / wc

	f.QuestionMarks = strings.Count(text, "?")
	f.Exclamations = strings.Count(text, "!")
	for _, r := range text {
		if r >= 'A' && r <= 'Z' {
			f.CapsCount++
		}
	}
	if len(text) > 0 {
		f.CapsRatio = float64(f.CapsCount) / float64(len(text))
	}
	f.Elongations = nlp.ElongationCount(text)

	f.IntensityModScore = fe.analyzer.IntensityModifierScore(text)

	if doc != nil && len(doc.Sents) > 0 && len(doc.Tokens) > 0 {
		f.AvgSentenceLen = float64(len(doc.Tokens)) / float64(len(doc.Sents))
	} else if len(words) > 0 {
		f.AvgSentenceLen = float64(len(words))
	}

	if doc != nil {
		f.SecondPersonCount = doc.SecondPersonCount()
		f.NegPresent = doc.HasNegation()
		f.SarcPresent = doc.Sarcasm.Present
		for _, e := range doc.PhraseEdges {
			f.EdgeHits++
			f.EdgeList = append(f.EdgeList, e.Category)
		}
	} else {
		for _, w := range words {
			switch w {
			case "you", "your", "you're", "ur", "u", "yours", "yourself":
				f.SecondPersonCount++
			}
		}
		f.NegPresent = negFallbackRe.MatchString(text)
		f.SarcPresent = sarcFallbackRe.MatchString(text)
		for _, e := range fe.analyzer.DetectPhraseEdges(text) {
			f.EdgeHits++
			f.EdgeList = append(f.EdgeList, e.Category)
		}
	}

	f.AttachmentHints = make(map[string]float64, len(fe.hints))
	lower := strings.ToLower(text)
	for style, phrases := range fe.hints {
		hits := 0
		for _, p := range phrases {
			if strings.Contains(lower, strings.ToLower(p)) {
				hits++
			}
		}
		if len(phrases) > 0 {
			f.AttachmentHints[style] = float64(hits) / float64(len(phrases))
		}
	}

	return f
}
