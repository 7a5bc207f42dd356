package scan

import (
	"os"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/unsaidlabs/tonecore/pkg/config"
	"github.com/unsaidlabs/tonecore/pkg/logging"
	"github.com/unsaidlabs/tonecore/pkg/nlp"
)

// Mode selects the scan strategy. Hybrid runs the automaton, the unigram map
// and the regex pass, then dedupes.
type Mode string

const (
	ModeAho      Mode = "aho"
	ModeFallback Mode = "fallback"
	ModeHybrid   Mode = "hybrid"
)

// ModeFromEnv reads AHO_MODE, defaulting to hybrid.
func ModeFromEnv() Mode {
	switch os.Getenv("AHO_MODE") {
	case "aho":
		return ModeAho
	case "fallback":
		return ModeFallback
	default:
		return ModeHybrid
	}
}

// Hit is one weighted, bucket-tagged match on token indices.
type Hit struct {
	Bucket string  `json:"bucket"`
	Weight float64 `json:"weight"`
	Term   string  `json:"term"`
	Type   string  `json:"type,omitempty"`
	Start  int     `json:"start"`
	End    int     `json:"end"`
}

type unigramEntry struct {
	bucket string
	weight float64
	ttype  string
}

type regexPattern struct {
	re     *regexp.Regexp
	bucket string
	weight float64
}

// ngramEntry backs the legacy O(n·m) fallback span scan, indexed by length.
type ngramEntry struct {
	tokens []string
	meta   patternMeta
}

// Scanner compiles the trigger-word phrases into an automaton, a unigram
// lookup table, and a compiled regex list. Index construction is best-effort:
// invalid patterns are skipped with a debug log and never abort the build.
type Scanner struct {
	mode     Mode
	auto     *tokenAutomaton
	unigrams map[string][]unigramEntry
	regexes  []regexPattern
	ngrams   map[int][]ngramEntry
	ctxMult  map[string]map[string]float64
	skipped  int
}

// NewScanner builds the indexes from the config provider.
func NewScanner(cfg *config.Provider, mode Mode) *Scanner {
	s := &Scanner{
		mode:     mode,
		auto:     newTokenAutomaton(),
		unigrams: make(map[string][]unigramEntry),
		ngrams:   make(map[int][]ngramEntry),
		ctxMult:  cfg.ToneTriggerWords().ContextMultipliers,
	}
	log := logging.Named("scan")

	insert := func(bucket, phrase, ttype string, weight float64) {
		key := nlp.NormalizeText(phrase)
		if key == "" {
			return
		}
		tokens := strings.Fields(key)
		meta := patternMeta{bucket: bucket, weight: weight, term: key, ttype: ttype}
		s.auto.insert(tokens, meta)
		if len(tokens) == 1 {
			s.unigrams[tokens[0]] = append(s.unigrams[tokens[0]], unigramEntry{
				bucket: bucket, weight: weight, ttype: ttype,
			})
		}
		s.ngrams[len(tokens)] = append(s.ngrams[len(tokens)], ngramEntry{tokens: tokens, meta: meta})
	}

	tw := cfg.ToneTriggerWords()
	for bucket, triggers := range tw.Buckets {
		for _, trig := range triggers {
			insert(bucket, trig.Text, trig.Type, trig.Intensity)
			for _, v := range trig.Variants {
				insert(bucket, v, trig.Type, trig.Intensity)
			}
			for _, v := range trig.Aho {
				insert(bucket, v, trig.Type, trig.Intensity)
			}
		}
	}

	for _, tp := range cfg.TonePatterns() {
		switch tp.Type {
		case "phrase":
			insert(tp.Tone, tp.Pattern, "pattern", tp.Confidence)
			for _, v := range tp.SemanticVariants {
				insert(tp.Tone, v, "pattern", tp.Confidence*0.95)
			}
		case "regex":
			re, err := regexp.Compile(tp.Pattern)
			if err != nil {
				s.skipped++
				log.Debug("scan.pattern.skipped", zap.String("pattern", tp.Pattern), zap.Error(err))
				continue
			}
			s.regexes = append(s.regexes, regexPattern{re: re, bucket: tp.Tone, weight: tp.Confidence})
		}
	}

	s.auto.build()
	return s
}

// Scan normalizes the text and returns deduped hits per the configured mode.
// Per-context multipliers from contextMultipliers[ctx][type] are applied here,
// at aggregation, not at index build time.
func (s *Scanner) Scan(text, contextKey string) []Hit {
	tokens := strings.Fields(nlp.NormalizeText(text))
	return s.ScanTokens(tokens, contextKey)
}

// ScanTokens runs the scan over an already-normalized token stream.
func (s *Scanner) ScanTokens(tokens []string, contextKey string) []Hit {
	var hits []Hit
	switch s.mode {
	case ModeAho:
		hits = s.scanAuto(tokens)
		hits = append(hits, s.scanRegex(tokens)...)
	case ModeFallback:
		hits = s.scanNgrams(tokens)
		hits = append(hits, s.scanRegex(tokens)...)
	default:
		hits = s.scanAuto(tokens)
		hits = append(hits, s.scanUnigrams(tokens)...)
		hits = append(hits, s.scanRegex(tokens)...)
	}

	hits = dedupe(hits)
	s.applyContextMultipliers(hits, contextKey)
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Start != hits[j].Start {
			return hits[i].Start < hits[j].Start
		}
		if hits[i].End != hits[j].End {
			return hits[i].End < hits[j].End
		}
		return hits[i].Term < hits[j].Term
	})
	return hits
}

func (s *Scanner) scanAuto(tokens []string) []Hit {
	raw := s.auto.scan(tokens)
	hits := make([]Hit, 0, len(raw))
	for _, h := range raw {
		hits = append(hits, Hit{
			Bucket: h.meta.bucket, Weight: h.meta.weight, Term: h.meta.term,
			Type: h.meta.ttype, Start: h.start, End: h.end,
		})
	}
	return hits
}

func (s *Scanner) scanUnigrams(tokens []string) []Hit {
	var hits []Hit
	for i, tok := range tokens {
		for _, e := range s.unigrams[tok] {
			hits = append(hits, Hit{
				Bucket: e.bucket, Weight: e.weight, Term: tok,
				Type: e.ttype, Start: i, End: i + 1,
			})
		}
	}
	return hits
}

// scanNgrams is the legacy span scan: every n-gram length gets a sliding
// window over the stream.
func (s *Scanner) scanNgrams(tokens []string) []Hit {
	var hits []Hit
	for n, entries := range s.ngrams {
		if n > len(tokens) {
			continue
		}
		for i := 0; i+n <= len(tokens); i++ {
			for _, e := range entries {
				if matchAt(tokens, i, e.tokens) {
					hits = append(hits, Hit{
						Bucket: e.meta.bucket, Weight: e.meta.weight, Term: e.meta.term,
						Type: e.meta.ttype, Start: i, End: i + n,
					})
				}
			}
		}
	}
	return hits
}

func matchAt(tokens []string, at int, pattern []string) bool {
	for j, p := range pattern {
		if tokens[at+j] != p {
			return false
		}
	}
	return true
}

func (s *Scanner) scanRegex(tokens []string) []Hit {
	if len(s.regexes) == 0 {
		return nil
	}
	joined := strings.Join(tokens, " ")
	var hits []Hit
	for _, rp := range s.regexes {
		for _, loc := range rp.re.FindAllStringIndex(joined, -1) {
			start := strings.Count(joined[:loc[0]], " ")
			end := strings.Count(joined[:loc[1]], " ") + 1
			hits = append(hits, Hit{
				Bucket: rp.bucket, Weight: rp.weight,
				Term: joined[loc[0]:loc[1]], Type: "regex",
				Start: start, End: end,
			})
		}
	}
	return hits
}

func dedupe(hits []Hit) []Hit {
	type key struct {
		bucket, term string
		start, end   int
	}
	seen := make(map[key]bool, len(hits))
	out := hits[:0]
	for _, h := range hits {
		k := key{bucket: h.Bucket, term: h.Term, start: h.Start, end: h.End}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, h)
	}
	return out
}

func (s *Scanner) applyContextMultipliers(hits []Hit, contextKey string) {
	mults, ok := s.ctxMult[contextKey]
	if !ok {
		return
	}
	for i := range hits {
		if m, ok := mults[hits[i].Type]; ok {
			hits[i].Weight *= m
		}
	}
}

// BucketEvidence summarizes hits per bucket for the eligibility guards:
// which terms contributed and the longest n-gram seen.
type BucketEvidence struct {
	Terms    []string
	MaxNgram int
	Weight   float64
}

// Evidence aggregates hits by bucket.
func Evidence(hits []Hit) map[string]*BucketEvidence {
	out := make(map[string]*BucketEvidence)
	for _, h := range hits {
		ev, ok := out[h.Bucket]
		if !ok {
			ev = &BucketEvidence{}
			out[h.Bucket] = ev
		}
		ev.Terms = append(ev.Terms, h.Term)
		if n := h.End - h.Start; n > ev.MaxNgram {
			ev.MaxNgram = n
		}
		ev.Weight += h.Weight
	}
	return out
}

// Stats reports index sizes for telemetry.
func (s *Scanner) Stats() map[string]any {
	return map[string]any{
		"mode":             string(s.mode),
		"automaton_terms":  s.auto.count,
		"unigram_terms":    len(s.unigrams),
		"regex_patterns":   len(s.regexes),
		"patterns_skipped": s.skipped,
	}
}
