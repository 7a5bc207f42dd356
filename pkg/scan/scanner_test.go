package scan

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/unsaidlabs/tonecore/pkg/config"
)

func newTestScanner(t *testing.T, mode Mode) *Scanner {
	t.Helper()
	p, err := config.FromBlobs(nil)
	if err != nil {
		t.Fatal(err)
	}
	return NewScanner(p, mode)
}

func TestScanFindsPhraseHits(t *testing.T) {
	s := newTestScanner(t, ModeHybrid)
	hits := s.Scan("I hate you, shut up!", "general")

	found := map[string]bool{}
	for _, h := range hits {
		found[h.Term] = true
		if h.Start < 0 || h.End <= h.Start {
			t.Errorf("bad span for %q: [%d,%d)", h.Term, h.Start, h.End)
		}
	}
	if !found["hate you"] {
		t.Errorf("missing 'hate you' hit: %v", hits)
	}
	if !found["shut up"] {
		t.Errorf("missing 'shut up' hit: %v", hits)
	}
}

func TestScanModesAgreeOnPhrases(t *testing.T) {
	text := "thank you so much for this"
	hybrid := newTestScanner(t, ModeHybrid).Scan(text, "general")
	fallback := newTestScanner(t, ModeFallback).Scan(text, "general")

	key := func(hits []Hit) map[string]bool {
		out := map[string]bool{}
		for _, h := range hits {
			out[h.Bucket+"|"+h.Term] = true
		}
		return out
	}
	hybridSet, fallbackSet := key(hybrid), key(fallback)
	for k := range fallbackSet {
		if !hybridSet[k] {
			t.Errorf("hybrid missing hit %q present in fallback", k)
		}
	}
}

func TestScanDeterministic(t *testing.T) {
	s := newTestScanner(t, ModeHybrid)
	a := s.Scan("you never listen, whatever", "conflict")
	b := s.Scan("you never listen, whatever", "conflict")
	if !reflect.DeepEqual(a, b) {
		t.Error("identical scans must return identical hit lists")
	}
}

func TestContextMultipliersAppliedAtAggregation(t *testing.T) {
	p, err := config.FromBlobs(nil)
	if err != nil {
		t.Fatal(err)
	}
	s := NewScanner(p, ModeHybrid)

	general := s.Scan("shut up", "general")
	conflict := s.Scan("shut up", "conflict")
	if len(general) == 0 || len(conflict) == 0 {
		t.Fatal("expected hits in both contexts")
	}
	var gw, cw float64
	for _, h := range general {
		if h.Term == "shut up" {
			gw = h.Weight
		}
	}
	for _, h := range conflict {
		if h.Term == "shut up" {
			cw = h.Weight
		}
	}
	if cw <= gw {
		t.Errorf("conflict multiplier should raise the weight: general=%f conflict=%f", gw, cw)
	}
}

func TestInvalidRegexSkipped(t *testing.T) {
	p, err := config.FromBlobs(map[string]json.RawMessage{
		config.BlobTonePatterns: json.RawMessage(`[
			{"type":"regex","pattern":"([unclosed","tone":"alert","confidence":0.9},
			{"type":"regex","pattern":"valid\\b","tone":"alert","confidence":0.5}
		]`),
	})
	if err != nil {
		t.Fatal(err)
	}
	s := NewScanner(p, ModeHybrid)
	stats := s.Stats()
	if stats["patterns_skipped"].(int) != 1 {
		t.Errorf("patterns_skipped = %v, want 1", stats["patterns_skipped"])
	}
	if stats["regex_patterns"].(int) != 1 {
		t.Errorf("regex_patterns = %v, want 1", stats["regex_patterns"])
	}
}

func TestSemanticVariantWeightDiscount(t *testing.T) {
	s := newTestScanner(t, ModeHybrid)

	base := s.Scan("thank you so much", "general")
	variant := s.Scan("thanks so much", "general")

	var baseW, variantW float64
	for _, h := range base {
		if h.Term == "thank you so much" {
			baseW = h.Weight
		}
	}
	for _, h := range variant {
		if h.Term == "thanks so much" {
			variantW = h.Weight
		}
	}
	if baseW == 0 || variantW == 0 {
		t.Fatalf("expected both pattern hits, base=%f variant=%f", baseW, variantW)
	}
	if variantW >= baseW {
		t.Errorf("semantic variant should carry ~0.95x weight: base=%f variant=%f", baseW, variantW)
	}
}

func TestDedupeByBucketTermSpan(t *testing.T) {
	// "stupid" is a 1-gram trigger: the automaton and unigram passes both
	// find it in hybrid mode, so the dedupe must collapse to one hit.
	s := newTestScanner(t, ModeHybrid)
	hits := s.Scan("stupid", "general")
	count := 0
	for _, h := range hits {
		if h.Term == "stupid" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("duplicate hits for 'stupid': %d", count)
	}
}

func TestEvidenceAggregation(t *testing.T) {
	s := newTestScanner(t, ModeHybrid)
	ev := Evidence(s.Scan("thank you so much, great job", "general"))
	clear, ok := ev["clear"]
	if !ok {
		t.Fatal("expected clear-bucket evidence")
	}
	if clear.MaxNgram < 2 {
		t.Errorf("MaxNgram = %d, want >= 2", clear.MaxNgram)
	}
	if clear.Weight <= 0 {
		t.Error("expected positive aggregate weight")
	}
}

func TestTokenAutomatonOverlap(t *testing.T) {
	auto := newTokenAutomaton()
	auto.insert([]string{"a", "b"}, patternMeta{bucket: "x", term: "a b", weight: 1})
	auto.insert([]string{"b", "c"}, patternMeta{bucket: "x", term: "b c", weight: 1})
	auto.build()

	hits := auto.scan([]string{"a", "b", "c"})
	if len(hits) != 2 {
		t.Fatalf("overlapping patterns: got %d hits, want 2", len(hits))
	}
	if hits[0].start != 0 || hits[0].end != 2 || hits[1].start != 1 || hits[1].end != 3 {
		t.Errorf("unexpected spans: %+v", hits)
	}
}

func TestTokenAutomatonFailureLinks(t *testing.T) {
	auto := newTokenAutomaton()
	auto.insert([]string{"you", "never", "listen"}, patternMeta{bucket: "caution", term: "you never listen", weight: 1})
	auto.insert([]string{"never"}, patternMeta{bucket: "caution", term: "never", weight: 1})
	auto.build()

	hits := auto.scan([]string{"you", "never", "call"})
	// The 3-gram fails at "call" but the failure chain must still surface
	// the 1-gram "never".
	if len(hits) != 1 || hits[0].meta.term != "never" {
		t.Errorf("failure links broken: %+v", hits)
	}
}

func TestLiteralPrefilterCandidates(t *testing.T) {
	pre := NewLiteralPrefilter([]string{
		`(?i)\byou should\b`,
		`(?i)\b(get|got) over it\b`, // live alternation: always checked
		`(?i)\bjust stop\b`,
	})

	cands := pre.Candidates([]string{"maybe", "you", "should", "wait"})
	if !reflect.DeepEqual(cands, []int{0, 1}) {
		t.Errorf("Candidates = %v, want [0 1] (anchor hit + always-check)", cands)
	}

	none := pre.Candidates([]string{"all", "calm", "here"})
	if !reflect.DeepEqual(none, []int{1}) {
		t.Errorf("Candidates = %v, want only the always-check pattern", none)
	}
}

func TestLiteralPhrase(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
		ok      bool
	}{
		{`(?i)\byou should\b`, "you should", true},
		{`(?i)\bjust get over it\b`, "just get over it", true},
		{`(?i)\b(a|b)\b`, "", false},
		{`\w+`, "", false},
		{`(?i)\b\b`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got, ok := literalPhrase(tt.pattern)
			if got != tt.want || ok != tt.ok {
				t.Errorf("literalPhrase(%q) = %q,%v want %q,%v", tt.pattern, got, ok, tt.want, tt.ok)
			}
		})
	}
}
