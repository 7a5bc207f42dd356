package advice

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/unsaidlabs/tonecore/pkg/config"
	"github.com/unsaidlabs/tonecore/pkg/nlp"
)

const testCorpus = `[
	{"id":"deesc1","advice":"Maybe pause and take a breath before replying.","triggerTone":"alert",
	 "contexts":["conflict","general"],"categories":["deescalation"],"intents":["de_escalate"],
	 "keywords":["pause","breath"]},
	{"id":"deesc2","advice":"Consider taking a short break to calm down, when you're ready.","triggerTone":"alert",
	 "contexts":["conflict","general"],"categories":["deescalation"],"intents":["pause_conversation"],
	 "keywords":["break","calm"]},
	{"id":"bound1","advice":"You should just walk away from them.","triggerTone":"alert",
	 "contexts":["conflict"],"categories":["confrontation"]},
	{"id":"appr1","advice":"Name one thing you appreciate about them.","triggerTone":"clear",
	 "contexts":["general"],"categories":["appreciation"],"intents":["appreciate"],
	 "keywords":["appreciate"]},
	{"id":"rep1","advice":"Ask gently if now is a good time to talk it through.","triggerTone":"caution",
	 "contexts":["repair"],"categories":["repair"],"intents":["invite_dialogue"],
	 "keywords":["talk","time"]},
	{"id":"rep2","advice":"Offer to revisit this later, maybe when things feel calmer.","triggerTone":"caution",
	 "contexts":["repair","general"],"categories":["timing"],"intents":["request_time"],
	 "keywords":["later","revisit"]}
]`

func newRankerFixture(t *testing.T) (*config.Provider, *Index, *Ranker, *Gate) {
	t.Helper()
	cfg, err := config.FromBlobs(map[string]json.RawMessage{
		config.BlobTherapyAdvice: json.RawMessage(testCorpus),
	})
	if err != nil {
		t.Fatal(err)
	}
	index := NewIndex(cfg, FeatureEmbedder{}, cfg.ToneUIBucket)
	gate := NewGate(cfg, nil, nil) // rules-only: fail-open
	ranker := NewRanker(cfg, index, gate, cfg.ToneUIBucket)
	return cfg, index, ranker, gate
}

func alertInput(text string) RankInput {
	return RankInput{
		Text:       text,
		ContextKey: "conflict",
		AttachmentStyle: "secure",
		ToneLabel:  "angry",
		Primary:    "alert",
		Dist:       map[string]float64{"clear": 0.05, "caution": 0.3, "alert": 0.65},
		Intensity:  0.8,
		Confidence: 0.7,
		SeverityBaseline: map[string]float64{"alert": 0.65, "caution": 0.3, "clear": 0.05},
		MaxSuggestions:   5,
	}
}

func TestCandidatePreselectionByTone(t *testing.T) {
	_, index, _, _ := newRankerFixture(t)
	cands := index.Candidates(CandidateQuery{
		Text: "you are being so stupid, shut up", ToneLabel: "alert",
		UIBucket: "alert", ContextKey: "conflict", AttachmentStyle: "secure",
	})
	if len(cands) == 0 {
		t.Fatal("expected alert candidates")
	}
	for _, c := range cands {
		if c.Item.TriggerTone == "clear" {
			t.Errorf("clear-tone item %q must not match an alert request", c.Item.ID)
		}
	}
}

func TestRankRejectsYouShouldInAlert(t *testing.T) {
	_, index, ranker, _ := newRankerFixture(t)
	in := alertInput("you are being so stupid, shut up")
	cands := index.Candidates(CandidateQuery{
		Text: in.Text, ToneLabel: "alert", UIBucket: "alert",
		ContextKey: in.ContextKey, AttachmentStyle: "secure",
	})
	out := ranker.Rank(context.Background(), cands, in)
	if len(out) == 0 {
		t.Fatal("expected surviving suggestions")
	}
	for _, s := range out {
		if s.ID == "bound1" {
			t.Error("'you should' advice must be rejected in alert contexts")
		}
	}
	// A de-escalation suggestion must survive.
	found := false
	for _, s := range out {
		if s.Category == "deescalation" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a deescalation suggestion, got %+v", out)
	}
}

func TestRankConfrontationDroppedAtHighIntensity(t *testing.T) {
	_, _, ranker, _ := newRankerFixture(t)
	in := alertInput("whatever")
	in.Intensity = 0.9
	item := config.AdviceItem{
		ID: "conf", Advice: "Maybe confront them directly and pause to breathe.",
		TriggerTone: "alert", Categories: []string{"confrontation"},
	}
	out := ranker.Rank(context.Background(), []Candidate{{Item: &item}}, in)
	if len(out) != 0 {
		t.Errorf("confrontation category must be dropped above 0.75 intensity: %v", out)
	}
}

func TestRankDeterministicOrder(t *testing.T) {
	_, index, ranker, _ := newRankerFixture(t)
	in := alertInput("you are being so stupid, shut up")
	query := CandidateQuery{
		Text: in.Text, ToneLabel: "alert", UIBucket: "alert",
		ContextKey: in.ContextKey, AttachmentStyle: "secure",
	}
	a := ranker.Rank(context.Background(), index.Candidates(query), in)
	b := ranker.Rank(context.Background(), index.Candidates(query), in)
	if len(a) != len(b) {
		t.Fatalf("rank lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Errorf("position %d: %q vs %q", i, a[i].ID, b[i].ID)
		}
	}
}

func TestRepairContextRanksRepairItems(t *testing.T) {
	_, index, ranker, _ := newRankerFixture(t)
	in := RankInput{
		Text:       "maybe we could try to talk about this later?",
		ContextKey: "repair",
		AttachmentStyle: "anxious",
		ToneLabel:  "anxious",
		Primary:    "caution",
		Dist:       map[string]float64{"clear": 0.35, "caution": 0.5, "alert": 0.15},
		Intensity:  0.2,
		Confidence: 0.6,
		SeverityBaseline: map[string]float64{"caution": 0.5},
		MaxSuggestions:   5,
	}
	cands := index.Candidates(CandidateQuery{
		Text: in.Text, ToneLabel: "anxious", UIBucket: "caution",
		ContextKey: "repair", AttachmentStyle: "anxious",
	})
	out := ranker.Rank(context.Background(), cands, in)
	if len(out) == 0 {
		t.Fatal("expected repair suggestions")
	}
	for _, s := range out {
		item, _ := index.Get(s.ID)
		if len(item.Contexts) > 0 && !containsStr(item.Contexts, "repair") && !containsStr(item.Contexts, "general") {
			t.Errorf("item %q has unrelated contexts %v", s.ID, item.Contexts)
		}
	}
}

func containsStr(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func TestJaccard(t *testing.T) {
	a := contentWords("take a deep breath now")
	b := contentWords("take one deep breath first")
	sim := jaccard(a, b)
	if sim <= 0 || sim >= 1 {
		t.Errorf("jaccard = %f, want in (0,1)", sim)
	}
	if jaccard(a, a) != 1 {
		t.Error("self jaccard should be 1")
	}
	if jaccard(a, contentWords("")) != 0 {
		t.Error("empty set jaccard should be 0")
	}
}

func TestBrevityBonusRange(t *testing.T) {
	long := "this is a very long piece of advice that keeps going and going with far too many words " +
		"to ever be actionable in the moment when someone is upset and needs one small step to take right now"
	tests := []struct {
		advice string
		min    float64
		max    float64
	}{
		{"Pause now.", -0.1, 0.15},
		{"Take a slow breath before you reply to them.", 0.1, 0.15},
		{long, -0.1, -0.05},
	}
	for _, tt := range tests {
		if got := brevityBonus(tt.advice); got < tt.min || got > tt.max {
			t.Errorf("brevityBonus(%q) = %f, want [%f,%f]",
				tt.advice, got, tt.min, tt.max)
		}
	}
}

func TestActionability(t *testing.T) {
	if actionability("Try naming the feeling first.") != 0.1 {
		t.Error("imperative opener should earn the bonus")
	}
	if actionability("It might be worth waiting.") != 0 {
		t.Error("non-imperative opener should not")
	}
}

func TestWeightOverridesClipped(t *testing.T) {
	cfg, err := config.FromBlobs(map[string]json.RawMessage{
		config.BlobTherapyAdvice: json.RawMessage(testCorpus),
		config.BlobWeightModifiers: json.RawMessage(`{
			"bounds":{"min":-0.2,"max":0.2},
			"fallbacks":{"order":["exact","alias","family","general","default"]},
			"adviceRankOverrides":{"byContext":{"conflict":{"toneMatch":5.0}}}
		}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	index := NewIndex(cfg, FeatureEmbedder{}, cfg.ToneUIBucket)
	ranker := NewRanker(cfg, index, NewGate(cfg, nil, nil), cfg.ToneUIBucket)

	w := ranker.weightsFor("conflict")
	want := DefaultWeights().ToneMatch + 0.2
	if w.ToneMatch != want {
		t.Errorf("toneMatch = %f, want clipped %f", w.ToneMatch, want)
	}
}

func TestTemperatureClamped(t *testing.T) {
	_, _, ranker, _ := newRankerFixture(t)
	for _, intensity := range []float64{0, 0.5, 1} {
		temp := ranker.temperatureFor("general", intensity)
		if temp < 0.1 || temp > 5.0 {
			t.Errorf("temperature %f out of [0.1,5.0]", temp)
		}
	}
}

func TestConfidenceFloorKeepsStrongest(t *testing.T) {
	cfg, err := config.FromBlobs(map[string]json.RawMessage{
		config.BlobTherapyAdvice: json.RawMessage(testCorpus),
		config.BlobEvaluationTones: json.RawMessage(`{
			"min_confidence":{"conflict":0.999},
			"nli_thresholds":{"general":{"entail_min":0.55,"contra_max":0.2}}
		}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	index := NewIndex(cfg, FeatureEmbedder{}, cfg.ToneUIBucket)
	ranker := NewRanker(cfg, index, NewGate(cfg, nil, nil), cfg.ToneUIBucket)

	in := alertInput("you are being so stupid, shut up")
	cands := index.Candidates(CandidateQuery{
		Text: in.Text, ToneLabel: "alert", UIBucket: "alert",
		ContextKey: "conflict", AttachmentStyle: "secure",
	})
	out := ranker.Rank(context.Background(), cands, in)
	if len(out) != 1 {
		t.Errorf("impossible floor must keep exactly the strongest item, got %d", len(out))
	}
}

func TestDetectUserIntentsNegationAware(t *testing.T) {
	cfg, _ := config.FromBlobs(nil)
	analyzer := nlp.NewAnalyzer(cfg)
	bridge := nlp.NewBridge(analyzer)

	plain := DetectUserIntents("thank you for everything", bridge.Process("thank you for everything"))
	if !containsStr(plain, "appreciate") {
		t.Errorf("expected appreciate intent, got %v", plain)
	}

	// Heavy negation (more than two separate scopes) disables positive
	// intents; neutral sentences keep the scopes from merging.
	negText := "No. That is final. I don't want this. It is what it is. Never again. So be it. Nothing works. Thanks anyway."
	neg := DetectUserIntents(negText, bridge.Process(negText))
	if containsStr(neg, "appreciate") {
		t.Errorf("positive intent must be disabled under heavy negation: %v", neg)
	}
}
