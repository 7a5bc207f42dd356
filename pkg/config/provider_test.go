package config

import (
	"encoding/json"
	"testing"
)

func TestFromBlobsFallbacks(t *testing.T) {
	p, err := FromBlobs(nil)
	if err != nil {
		t.Fatalf("FromBlobs(nil) error: %v", err)
	}

	if p.ToneTriggerWords() == nil || len(p.ToneTriggerWords().Buckets) == 0 {
		t.Error("expected fallback trigger words")
	}
	if p.ToneBucketMapping() == nil || len(p.ToneBucketMapping().ToneBuckets) == 0 {
		t.Error("expected fallback bucket mapping")
	}
	if p.ProfanityLexicons() == nil || len(p.ProfanityLexicons().Categories) == 0 {
		t.Error("expected fallback profanity lexicons")
	}
	if p.SemanticThesaurus() != nil {
		t.Error("semanticThesaurus has no fallback; expected nil")
	}
	if len(p.TherapyAdvice()) != 0 {
		t.Error("expected empty advice corpus without blob")
	}
}

func TestMissingCritical(t *testing.T) {
	p, err := FromBlobs(map[string]json.RawMessage{
		BlobTherapyAdvice: json.RawMessage(`[]`),
	})
	if err != nil {
		t.Fatalf("FromBlobs error: %v", err)
	}

	missing := p.MissingCritical([]string{BlobTherapyAdvice, BlobToneTriggerWords})
	if len(missing) != 1 || missing[0] != BlobToneTriggerWords {
		t.Errorf("MissingCritical = %v, want [%s]", missing, BlobToneTriggerWords)
	}
}

func TestGetAliasFallthrough(t *testing.T) {
	p, err := FromBlobs(map[string]json.RawMessage{
		BlobToneTriggerWords: json.RawMessage(`{"buckets":{}}`),
	})
	if err != nil {
		t.Fatalf("FromBlobs error: %v", err)
	}

	if p.Get("triggerWords") == nil {
		t.Error("legacy alias triggerWords should resolve to toneTriggerWords")
	}
	if !p.Has("triggerWords") {
		t.Error("Has should follow aliases")
	}
	if p.Get("noSuchBlob") != nil {
		t.Error("unknown blob should return nil")
	}
}

func TestParseProfanityLegacyShape(t *testing.T) {
	legacy := json.RawMessage(`{"mild":["darn"],"strong":["jerkface"]}`)
	lex := parseProfanity(legacy)
	if len(lex.Categories) != 2 {
		t.Fatalf("got %d categories, want 2", len(lex.Categories))
	}
	// Severities are sorted for determinism.
	if lex.Categories[0].Severity != "mild" || lex.Categories[1].Severity != "strong" {
		t.Errorf("unexpected severity order: %+v", lex.Categories)
	}
	if lex.Categories[0].Targeting != "any" {
		t.Errorf("legacy conversion should default targeting to any, got %q", lex.Categories[0].Targeting)
	}
}

func TestToneUIBucketDerivation(t *testing.T) {
	p, err := FromBlobs(nil)
	if err != nil {
		t.Fatalf("FromBlobs error: %v", err)
	}

	tests := []struct {
		style, tone, want string
	}{
		{"secure", "angry", "alert"},
		{"secure", "positive", "clear"},
		{"secure", "anxious", "caution"},
		// Avoidant has no override for positive, so it keeps its clear base.
		{"avoidant", "positive", "clear"},
		{"disorganized", "frustrated", "caution"},
	}
	for _, tt := range tests {
		t.Run(tt.style+"/"+tt.tone, func(t *testing.T) {
			if got := p.ToneUIBucket(tt.style, tt.tone); got != tt.want {
				t.Errorf("ToneUIBucket(%s, %s) = %q, want %q", tt.style, tt.tone, got, tt.want)
			}
		})
	}

	if got := p.ToneUIBucket("unknown_style", "angry"); got != p.ToneUIBucket("secure", "angry") {
		t.Error("unknown style should fall back to secure")
	}
	if got := p.ToneUIBucket("secure", "no_such_tone"); got != "caution" {
		t.Errorf("unknown tone should map to caution, got %q", got)
	}
}

func TestAdviceItemAllCategories(t *testing.T) {
	item := AdviceItem{Categories: []string{"repair"}, Category: "boundary"}
	cats := item.AllCategories()
	if len(cats) != 2 || cats[0] != "repair" || cats[1] != "boundary" {
		t.Errorf("AllCategories = %v", cats)
	}

	dup := AdviceItem{Categories: []string{"repair"}, Category: "repair"}
	if got := dup.AllCategories(); len(got) != 1 {
		t.Errorf("duplicate category should not be added twice: %v", got)
	}
}

func TestParseInvalidBlobFallsBack(t *testing.T) {
	p, err := FromBlobs(map[string]json.RawMessage{
		BlobIntensityModifiers: json.RawMessage(`{"not":"an array"}`),
	})
	if err == nil {
		// parseAll logs the malformed blob and keeps its fallback, so
		// FromBlobs reports no error; the provider must still be usable.
		t.Log("parse error swallowed into fallback")
	}
	if p == nil {
		t.Fatal("provider should be built despite a malformed optional blob")
	}
}
