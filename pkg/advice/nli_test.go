package advice

import (
	"context"
	"errors"
	"testing"

	"github.com/unsaidlabs/tonecore/pkg/config"
)

// fakeModel returns the same canned scores for every pair.
type fakeModel struct {
	scores NLIScores
	err    error
	calls  int
}

func (f *fakeModel) ScorePair(_ context.Context, _, _ string) (NLIScores, error) {
	f.calls++
	if f.err != nil {
		return NLIScores{}, f.err
	}
	return f.scores, nil
}

func newGateWith(t *testing.T, model EntailmentModel) (*Gate, *config.Provider) {
	t.Helper()
	cfg, err := config.FromBlobs(nil)
	if err != nil {
		t.Fatal(err)
	}
	g := NewGate(cfg, func() (EntailmentModel, error) { return model, nil }, nil)
	if err := g.Init(); err != nil {
		t.Fatal(err)
	}
	return g, cfg
}

func item(id, advice string, intents ...string) *config.AdviceItem {
	return &config.AdviceItem{ID: id, Advice: advice, TriggerTone: "alert", Intents: intents}
}

func TestGateRetainsEntailedItem(t *testing.T) {
	g, _ := newGateWith(t, &fakeModel{scores: NLIScores{Entail: 0.7, Contra: 0.1, Neutral: 0.2}})
	res := g.CheckBatch(context.Background(), "premise", []*config.AdviceItem{
		item("a", "Pause and breathe.", "de_escalate"),
	}, "general")
	if !res[0].OK {
		t.Errorf("entail 0.7 / contra 0.1 must pass: %+v", res[0])
	}
	if res[0].Reason != "nli_batch" {
		t.Errorf("reason = %q", res[0].Reason)
	}
}

func TestGateRejectsWeakItem(t *testing.T) {
	g, _ := newGateWith(t, &fakeModel{scores: NLIScores{Entail: 0.4, Contra: 0.3, Neutral: 0.3}})
	res := g.CheckBatch(context.Background(), "premise", []*config.AdviceItem{
		item("a", "Pause and breathe.", "de_escalate"),
	}, "general")
	if res[0].OK {
		t.Errorf("entail 0.4 / contra 0.3 must fail: %+v", res[0])
	}
}

func TestGateFailOpenOnError(t *testing.T) {
	model := &fakeModel{err: errors.New("transient")}
	g, _ := newGateWith(t, model)
	res := g.CheckBatch(context.Background(), "premise", []*config.AdviceItem{
		item("a", "Pause and breathe."),
	}, "general")
	if !res[0].OK || res[0].Reason != "nli_error" {
		t.Errorf("errors must fail open: %+v", res[0])
	}
	// One retry: two calls for the single item.
	if model.calls != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", model.calls)
	}
}

func TestGateDisabledPassesEverything(t *testing.T) {
	cfg, _ := config.FromBlobs(nil)
	g := NewGate(cfg, nil, nil)
	res := g.CheckBatch(context.Background(), "premise", []*config.AdviceItem{
		item("a", "anything"), item("b", "anything else"),
	}, "general")
	for _, r := range res {
		if !r.OK || r.Reason != "nli_disabled" {
			t.Errorf("disabled gate must pass through: %+v", r)
		}
	}
}

func TestGateOverflowPassThrough(t *testing.T) {
	t.Setenv("NLI_MAX_ITEMS", "2")
	model := &fakeModel{scores: NLIScores{Entail: 0.9}}
	g, _ := newGateWith(t, model)

	items := []*config.AdviceItem{
		item("a", "one"), item("b", "two"), item("c", "three"), item("d", "four"),
	}
	res := g.CheckBatch(context.Background(), "premise", items, "general")
	if res[2].Reason != "nli_overflow" || res[3].Reason != "nli_overflow" {
		t.Errorf("items beyond the cap must pass through: %+v", res[2:])
	}
	if !res[2].OK || !res[3].OK {
		t.Error("overflow items are retained")
	}
	if model.calls != 2 {
		t.Errorf("only capped items should be scored, calls = %d", model.calls)
	}
}

func TestPerContextThresholds(t *testing.T) {
	// Conflict tightens to entail_min 0.60 in the default config.
	g, _ := newGateWith(t, &fakeModel{scores: NLIScores{Entail: 0.57, Contra: 0.1}})
	general := g.Check(context.Background(), "p", item("a", "x"), "general")
	conflict := g.Check(context.Background(), "p", item("a", "x"), "conflict")
	if !general.OK {
		t.Error("0.57 passes the general 0.55 floor")
	}
	if conflict.OK {
		t.Error("0.57 fails the conflict 0.60 floor")
	}
}

func TestHypothesisMemoized(t *testing.T) {
	gen := NewHypothesisGenerator()
	it := item("memo", "Take a breath.", "de_escalate")
	first := gen.For(it)
	// Mutating the item afterwards must not change the memoized hypothesis.
	it.Intents = []string{"set_boundary"}
	second := gen.For(it)
	if first != second {
		t.Errorf("hypothesis not memoized: %q vs %q", first, second)
	}
	if first != intentHypotheses["de_escalate"] {
		t.Errorf("hypothesis = %q", first)
	}
}

func TestHypothesisFallbacks(t *testing.T) {
	gen := NewHypothesisGenerator()

	tests := []struct {
		item *config.AdviceItem
		want string
	}{
		{item("i1", "whatever", "apologize"), intentHypotheses["apologize"]},
		{item("i2", "Try a breathing exercise."), "The speaker needs help calming down."},
		{item("i3", "Something entirely unrelated."), genericHypothesis},
		{item("i4", "zzz", "unknown_intent_xyz"), genericHypothesis},
	}
	for _, tt := range tests {
		t.Run(tt.item.ID, func(t *testing.T) {
			if got := gen.For(tt.item); got != tt.want {
				t.Errorf("For(%s) = %q, want %q", tt.item.ID, got, tt.want)
			}
		})
	}
}

func TestSoftmaxWithTemperature(t *testing.T) {
	probs := SoftmaxWithTemperature([]float64{2, 1, 0})
	var sum float64
	for _, p := range probs {
		sum += p
	}
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("softmax sums to %f", sum)
	}
	if !(probs[0] > probs[1] && probs[1] > probs[2]) {
		t.Errorf("ordering broken: %v", probs)
	}
}
