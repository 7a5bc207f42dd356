package nlp

import (
	"testing"

	"github.com/unsaidlabs/tonecore/pkg/config"
)

func newTestBridge(t *testing.T) *Bridge {
	t.Helper()
	p, err := config.FromBlobs(nil)
	if err != nil {
		t.Fatal(err)
	}
	return NewBridge(NewAnalyzer(p))
}

func TestProcessVersionAndShape(t *testing.T) {
	b := newTestBridge(t)
	doc := b.Process("I don't think you understand.")

	if doc.Version != CompactDocVersion {
		t.Errorf("version = %q, want %q", doc.Version, CompactDocVersion)
	}
	if len(doc.Tokens) == 0 {
		t.Error("expected tokens")
	}
	if len(doc.Sents) == 0 {
		t.Error("expected sentence spans")
	}
	if doc.NegScopes == nil || doc.Entities == nil {
		t.Error("NegScopes and Entities must never be nil")
	}
}

func TestFallbackDocOnEmptyInput(t *testing.T) {
	b := newTestBridge(t)
	doc := b.Process("")

	if doc.Version != CompactDocVersion {
		t.Errorf("fallback version = %q", doc.Version)
	}
	if len(doc.Tokens) != 0 {
		t.Error("fallback doc must have no tokens")
	}
	if doc.Context.Label != "general" {
		t.Errorf("fallback context = %q, want general", doc.Context.Label)
	}
	if len(doc.Sents) != 1 {
		t.Errorf("fallback needs one covering sentence span, got %d", len(doc.Sents))
	}
}

func TestNegScopesComputed(t *testing.T) {
	b := newTestBridge(t)
	doc := b.Process("I will not forget this")

	if !doc.HasNegation() {
		t.Fatal("expected a negation scope")
	}
	for _, s := range doc.NegScopes {
		if s.Start > s.End {
			t.Errorf("scope start %d > end %d", s.Start, s.End)
		}
		if s.End-s.Start > 40 {
			t.Errorf("scope width %d exceeds cap", s.End-s.Start)
		}
		if s.End > len(doc.Tokens) {
			t.Errorf("scope end %d beyond token count %d", s.End, len(doc.Tokens))
		}
	}
}

func TestCharSpanToTokenSpan(t *testing.T) {
	tokens := []Token{
		{Text: "no", Start: 0, End: 2},
		{Text: "way", Start: 3, End: 6},
		{Text: "out", Start: 7, End: 10},
	}
	tests := []struct {
		name  string
		cs    Span
		want  Span
		wantOK bool
	}{
		{"full", Span{0, 10}, Span{0, 3}, true},
		{"middle", Span{3, 6}, Span{1, 2}, true},
		{"partial overlap", Span{4, 8}, Span{1, 3}, true},
		{"empty", Span{5, 5}, Span{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := charSpanToTokenSpan(tokens, tt.cs)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("charSpanToTokenSpan(%v) = %v,%v want %v,%v", tt.cs, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestMergeAdjacent(t *testing.T) {
	tests := []struct {
		name string
		in   []Span
		want int
	}{
		{"empty", nil, 0},
		{"disjoint", []Span{{0, 2}, {5, 7}}, 2},
		{"touching", []Span{{0, 2}, {2, 4}}, 1},
		{"overlapping unsorted", []Span{{3, 6}, {0, 4}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mergeAdjacent(tt.in); len(got) != tt.want {
				t.Errorf("mergeAdjacent(%v) = %v, want %d spans", tt.in, got, tt.want)
			}
		})
	}
}

func TestSecondPersonCount(t *testing.T) {
	b := newTestBridge(t)
	doc := b.Process("you and your team did it")
	if got := doc.SecondPersonCount(); got != 2 {
		t.Errorf("SecondPersonCount = %d, want 2", got)
	}
}

func TestProcessCachesDocs(t *testing.T) {
	b := newTestBridge(t)
	first := b.Process("cached text here")
	second := b.Process("cached text here")
	if first != second {
		t.Error("repeated Process should return the cached pointer")
	}
}
