package tone

import (
	"math"
	"testing"
	"time"

	"github.com/unsaidlabs/tonecore/pkg/config"
	"github.com/unsaidlabs/tonecore/pkg/nlp"
)

type scorerFixture struct {
	cfg      *config.Provider
	analyzer *nlp.Analyzer
	bridge   *nlp.Bridge
	features *FeatureExtractor
	scorer   *Scorer
	memory   *ConversationMemory
}

func newScorerFixture(t *testing.T) *scorerFixture {
	t.Helper()
	cfg, err := config.FromBlobs(nil)
	if err != nil {
		t.Fatal(err)
	}
	analyzer := nlp.NewAnalyzer(cfg)
	memory := NewConversationMemory()
	return &scorerFixture{
		cfg:      cfg,
		analyzer: analyzer,
		bridge:   nlp.NewBridge(analyzer),
		features: NewFeatureExtractor(cfg, analyzer),
		scorer:   NewScorer(cfg, analyzer, memory),
		memory:   memory,
	}
}

func (f *scorerFixture) score(text, contextKey, style string) Score {
	doc := f.bridge.Process(text)
	feats := f.features.Extract(text, doc)
	return f.scorer.Score(Input{
		Text: text, Doc: doc, Features: feats,
		ContextKey: contextKey, AttachmentStyle: style,
	})
}

func TestHostileMessageScoresAngry(t *testing.T) {
	f := newScorerFixture(t)
	s := f.score("You are being so stupid, shut up!", "conflict", "secure")

	if !s.TargetedImperative {
		t.Error("targeted imperative should fire on 'you ... shut up'")
	}
	if s.Classification != "angry" {
		t.Errorf("classification = %q, want angry (scores %v)", s.Classification, s.Scores)
	}
	if s.Meta.PAlert <= s.Meta.PCaution {
		t.Errorf("pAlert (%f) should exceed pCaution (%f)", s.Meta.PAlert, s.Meta.PCaution)
	}
	if s.Meta.PAlert <= 0.4 {
		t.Errorf("pAlert = %f, want > 0.4", s.Meta.PAlert)
	}
	if s.Profanity.Count == 0 {
		t.Error("'stupid' should register as profanity")
	}
}

func TestComplimentVetoClampsMeta(t *testing.T) {
	f := newScorerFixture(t)
	s := f.score("Thank you so much, you did a great job!", "general", "secure")

	if !s.ComplimentVeto {
		t.Fatal("compliment veto should fire")
	}
	if s.Meta.PAlert > 0.15 {
		t.Errorf("pAlert = %f, veto must clamp to <= 0.15", s.Meta.PAlert)
	}
	if s.Meta.PCaution > 0.25 {
		t.Errorf("pCaution = %f, veto must clamp to <= 0.25", s.Meta.PCaution)
	}
	if s.Classification != "supportive" && s.Classification != "positive" {
		t.Errorf("classification = %q, want supportive/positive", s.Classification)
	}
}

func TestComplimentVetoBlockedByStrongNegative(t *testing.T) {
	f := newScorerFixture(t)
	s := f.score("Thanks for nothing, you stupid idiot", "general", "secure")
	if s.ComplimentVeto {
		t.Error("strong negative markers must cancel the veto")
	}
}

func TestThreatDetection(t *testing.T) {
	f := newScorerFixture(t)
	tests := []struct {
		text string
		want bool
	}{
		{"I'll ruin you", true},
		{"do it or else", true},
		{"I'll call you tonight", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if s := f.score(tt.text, "general", "secure"); s.Threat != tt.want {
				t.Errorf("threat = %v, want %v", s.Threat, tt.want)
			}
		})
	}
}

func TestScoresSoftmaxNormalized(t *testing.T) {
	f := newScorerFixture(t)
	for _, text := range []string{
		"hello there", "I hate this", "maybe we could talk later?",
	} {
		s := f.score(text, "general", "secure")
		var sum float64
		for _, v := range s.Scores {
			if v < 0 {
				t.Errorf("%q: negative probability %f", text, v)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Errorf("%q: softmax sums to %f", text, sum)
		}
	}
}

func TestEvidentialConfidenceConflictReduction(t *testing.T) {
	f := newScorerFixture(t)
	// Mixed positive and negative evidence reduces confidence by 0.7.
	mixed := f.score("thank you but I hate this", "general", "secure")
	pure := f.score("I hate hate hate this so much!!", "general", "secure")
	if mixed.Confidence >= pure.Confidence {
		t.Errorf("conflicting evidence should lower confidence: mixed=%f pure=%f",
			mixed.Confidence, pure.Confidence)
	}
}

func TestExplanationTopThree(t *testing.T) {
	f := newScorerFixture(t)
	s := f.score("You are being so stupid, shut up!!", "conflict", "secure")
	if len(s.Explanation) == 0 || len(s.Explanation) > 3 {
		t.Errorf("explanation size = %d, want 1..3", len(s.Explanation))
	}
}

func TestConversationHysteresisBoostsFrustrated(t *testing.T) {
	f := newScorerFixture(t)
	f.memory.Put("field1", MemoryEntry{LastTone: "alert", SecondPersonCount: 1})

	doc := f.bridge.Process("whatever, forget it")
	feats := f.features.Extract("whatever, forget it", doc)
	withMem := f.scorer.Score(Input{
		Text: "whatever, forget it", Doc: doc, Features: feats,
		ContextKey: "general", AttachmentStyle: "secure", FieldID: "field1",
	})
	without := f.scorer.Score(Input{
		Text: "whatever, forget it", Doc: doc, Features: feats,
		ContextKey: "general", AttachmentStyle: "secure", FieldID: "other",
	})
	if withMem.Scores["frustrated"] <= without.Scores["frustrated"] {
		t.Errorf("hysteresis should boost frustrated: with=%f without=%f",
			withMem.Scores["frustrated"], without.Scores["frustrated"])
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	m := NewConversationMemory()
	m.Put("f", MemoryEntry{LastTone: "alert"})
	if _, ok := m.Get("f"); !ok {
		t.Fatal("fresh entry should be readable")
	}

	m.now = func() time.Time { return time.Now().Add(11 * time.Second) }
	if _, ok := m.Get("f"); ok {
		t.Error("entry older than 10s must expire")
	}
}
