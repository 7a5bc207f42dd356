package nlp

import (
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CompactDocVersion tags the stable document shape consumed downstream.
const CompactDocVersion = "1.2.0"

const (
	maxDocChars      = 8000
	maxDocCharsHard  = 10000
	maxNegScopeWidth = 40
	maxEntities      = 20
)

// DocToken is the bridge token shape.
type DocToken struct {
	Text  string `json:"text"`
	Lemma string `json:"lemma"`
	POS   string `json:"pos"`
	I     int    `json:"i"`
	Start int    `json:"start,omitempty"`
	End   int    `json:"end,omitempty"`
	Tag   string `json:"tag,omitempty"`
	Dep   string `json:"dep,omitempty"`
}

// SarcasmInfo is the doc-level sarcasm summary.
type SarcasmInfo struct {
	Present bool    `json:"present"`
	Score   float64 `json:"score"`
}

// ContextInfo is the doc-level context summary.
type ContextInfo struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// CompactDoc is the normalized linguistic analysis passed between stages.
// NegScopes and Entities use token indices; Sents uses char offsets.
type CompactDoc struct {
	Version     string       `json:"version"`
	Tokens      []DocToken   `json:"tokens"`
	Sents       []Span       `json:"sents"`
	Deps        []Dep        `json:"deps"`
	SubtreeSpan map[int]Span `json:"subtreeSpan"`
	Sarcasm     SarcasmInfo  `json:"sarcasm"`
	Context     ContextInfo  `json:"context"`
	PhraseEdges []EdgeHit    `json:"phraseEdges"`
	NegScopes   []Span       `json:"negScopes"`
	Entities    []Entity     `json:"entities"`
}

// HasNegation reports whether any negation scope was found.
func (d *CompactDoc) HasNegation() bool { return len(d.NegScopes) > 0 }

// SecondPersonCount sums the widths of PRON_2P entity spans.
func (d *CompactDoc) SecondPersonCount() int {
	n := 0
	for _, e := range d.Entities {
		if e.Label == "PRON_2P" {
			n += e.End - e.Start
		}
	}
	return n
}

// Bridge adapts Analyzer output into CompactDocs and caches them.
type Bridge struct {
	analyzer *Analyzer
	cache    *lru.Cache[string, *CompactDoc]
}

// NewBridge wraps an analyzer.
func NewBridge(analyzer *Analyzer) *Bridge {
	b := &Bridge{analyzer: analyzer}
	b.cache, _ = lru.New[string, *CompactDoc](defaultCacheSize)
	return b
}

// Process produces a CompactDoc for text. On any invalid input it returns a
// fully-formed fallback doc rather than an error.
func (b *Bridge) Process(text string) *CompactDoc {
	if text == "" {
		return FallbackDoc(text)
	}
	if len(text) > maxDocCharsHard {
		text = text[:maxDocCharsHard]
	}
	if len(text) > maxDocChars {
		text = text[:maxDocChars]
	}
	if cached, ok := b.cache.Get(text); ok {
		return cached
	}

	an := b.analyzer.Analyze(text)
	doc := buildDoc(an)
	b.cache.Add(text, doc)
	return doc
}

// FallbackDoc is the never-throw shape: empty tokens, one sentence span
// covering the whole text, neutral context.
func FallbackDoc(text string) *CompactDoc {
	return &CompactDoc{
		Version:     CompactDocVersion,
		Tokens:      []DocToken{},
		Sents:       []Span{{Start: 0, End: len(text)}},
		Deps:        []Dep{},
		SubtreeSpan: map[int]Span{},
		Context:     ContextInfo{Label: "general", Score: 0},
		NegScopes:   []Span{},
		Entities:    []Entity{},
	}
}

func buildDoc(an *Analysis) *CompactDoc {
	doc := &CompactDoc{
		Version:     CompactDocVersion,
		Sents:       an.Sents,
		Deps:        an.Deps,
		SubtreeSpan: an.SubtreeSpan,
		Sarcasm:     SarcasmInfo{Present: an.Sarcasm.Present, Score: an.Sarcasm.OverallProb},
		Context:     ContextInfo{Label: an.Context.Label, Score: an.Context.Score},
		PhraseEdges: an.PhraseEdges,
	}

	doc.Tokens = make([]DocToken, len(an.Tokens))
	for i, t := range an.Tokens {
		doc.Tokens[i] = DocToken{
			Text: t.Text, Lemma: t.Lemma, POS: t.POS, Tag: t.Tag,
			I: t.I, Start: t.Start, End: t.End,
		}
	}

	doc.NegScopes = computeNegScopes(an)
	doc.Entities = capEntities(an.Entities)
	return doc
}

// computeNegScopes converts each neg dep's subtree char span (or the head
// token's char range) to a token span, caps widths, and merges adjacency.
func computeNegScopes(an *Analysis) []Span {
	var scopes []Span
	for _, dep := range an.Deps {
		if dep.Rel != "neg" {
			continue
		}
		charSpan, ok := an.SubtreeSpan[dep.Head]
		if !ok {
			if dep.Head >= 0 && dep.Head < len(an.Tokens) {
				head := an.Tokens[dep.Head]
				charSpan = Span{Start: head.Start, End: head.End}
			} else {
				charSpan = Span{Start: dep.CharStart, End: dep.CharEnd}
			}
		}
		tokSpan, ok := charSpanToTokenSpan(an.Tokens, charSpan)
		if !ok {
			continue
		}
		if tokSpan.End-tokSpan.Start > maxNegScopeWidth {
			tokSpan.End = tokSpan.Start + maxNegScopeWidth
		}
		scopes = append(scopes, tokSpan)
	}
	return mergeAdjacent(scopes)
}

// charSpanToTokenSpan maps a char range into the covering token index range.
func charSpanToTokenSpan(tokens []Token, cs Span) (Span, bool) {
	if len(tokens) == 0 || cs.End <= cs.Start {
		return Span{}, false
	}
	start, end := -1, -1
	for i, t := range tokens {
		if t.End > cs.Start && start < 0 {
			start = i
		}
		if t.Start < cs.End {
			end = i + 1
		}
	}
	if start < 0 || end <= start {
		return Span{}, false
	}
	return Span{Start: start, End: end}, true
}

// mergeAdjacent sorts spans and merges touching or overlapping ones.
func mergeAdjacent(spans []Span) []Span {
	if len(spans) == 0 {
		return []Span{}
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End < spans[j].End
	})
	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.Start <= last.End {
			if s.End > last.End {
				last.End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func capEntities(entities []Entity) []Entity {
	if entities == nil {
		return []Entity{}
	}
	if len(entities) > maxEntities {
		entities = entities[:maxEntities]
	}
	return entities
}
