package advice

import (
	"testing"

	"github.com/unsaidlabs/tonecore/pkg/config"
	"github.com/unsaidlabs/tonecore/pkg/nlp"
)

func backstopDoc(t *testing.T, text string) *nlp.CompactDoc {
	t.Helper()
	cfg, err := config.FromBlobs(nil)
	if err != nil {
		t.Fatal(err)
	}
	return nlp.NewBridge(nlp.NewAnalyzer(cfg)).Process(text)
}

func TestBackstopIntentOverlapWins(t *testing.T) {
	var b Backstop
	text := "I'm sorry, can we talk about it?"
	it := &config.AdviceItem{
		ID: "x", Advice: "Own your part first.",
		Intents:  []string{"apologize"},
		Contexts: []string{"planning"}, // would fail the context rule
	}
	ok, reason := b.Fits(text, backstopDoc(t, text), it, "repair", 0.9, "neutral")
	if !ok || reason != "intent_overlap" {
		t.Errorf("intent overlap should win: ok=%v reason=%q", ok, reason)
	}
}

func TestBackstopIntentMismatchRejects(t *testing.T) {
	var b Backstop
	text := "I'm sorry about earlier."
	it := &config.AdviceItem{
		ID: "x", Advice: "Plan the weekend together.",
		Intents: []string{"plan"},
	}
	ok, reason := b.Fits(text, backstopDoc(t, text), it, "repair", 0.9, "neutral")
	if ok || reason != "intent_mismatch" {
		t.Errorf("mismatched intents should reject before lower tiers: ok=%v reason=%q", ok, reason)
	}
}

func TestBackstopContextMatchTier(t *testing.T) {
	var b Backstop
	text := "see you at the meeting"
	it := &config.AdviceItem{
		ID: "x", Advice: "Confirm the time the night before.",
		Contexts: []string{"planning"},
	}
	ok, reason := b.Fits(text, backstopDoc(t, text), it, "planning", 0.5, "neutral")
	if !ok || reason != "context_match" {
		t.Errorf("context tier should fire: ok=%v reason=%q", ok, reason)
	}

	// Below the 0.3 score floor the context tier must not fire.
	ok, _ = b.Fits(text, backstopDoc(t, text), it, "planning", 0.1, "mystery")
	if ok {
		t.Error("low context score must fall through (and lower tiers miss)")
	}
}

func TestBackstopSentimentAlignment(t *testing.T) {
	var b Backstop
	text := "everything is terrible right now"
	it := &config.AdviceItem{
		ID: "x", Advice: "Ground yourself with one slow breath.",
		Categories: []string{"grounding"},
	}
	ok, reason := b.Fits(text, backstopDoc(t, text), it, "general", 0.1, "negative")
	if !ok || reason != "sentiment_alignment" {
		t.Errorf("sentiment tier should fire: ok=%v reason=%q", ok, reason)
	}
}

func TestBackstopKeywordOverlapTier(t *testing.T) {
	var b Backstop
	text := "the boundary conversation can wait"
	it := &config.AdviceItem{
		ID: "x", Advice: "State one clear limit.",
		Keywords: []string{"boundary", "conversation"},
	}
	ok, reason := b.Fits(text, backstopDoc(t, text), it, "general", 0.1, "mystery")
	if !ok || reason != "keyword_overlap" {
		t.Errorf("keyword tier should fire: ok=%v reason=%q", ok, reason)
	}

	one := &config.AdviceItem{ID: "y", Advice: "x", Keywords: []string{"boundary"}}
	ok, _ = b.Fits(text, backstopDoc(t, text), one, "general", 0.1, "mystery")
	if ok {
		t.Error("a single keyword is not enough")
	}
}
