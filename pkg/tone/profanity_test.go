package tone

import (
	"strings"
	"testing"

	"github.com/unsaidlabs/tonecore/pkg/config"
)

func newTestDetector(t *testing.T) *ProfanityDetector {
	t.Helper()
	p, err := config.FromBlobs(nil)
	if err != nil {
		t.Fatal(err)
	}
	return NewProfanityDetector(p.ProfanityLexicons())
}

func tok(text string) []string { return strings.Fields(strings.ToLower(text)) }

func TestProfanitySeverityClassification(t *testing.T) {
	d := newTestDetector(t)

	tests := []struct {
		text        string
		wantCount   int
		maxSeverity string
	}{
		{"what the hell", 1, "mild"},
		{"you are an idiot", 1, "moderate"},
		{"totally clean sentence", 0, ""},
		{"damn it you idiot", 2, "moderate"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			res := d.Analyze(tok(tt.text))
			if res.Count != tt.wantCount {
				t.Errorf("count = %d, want %d", res.Count, tt.wantCount)
			}
			if res.MaxSeverity != tt.maxSeverity {
				t.Errorf("maxSeverity = %q, want %q", res.MaxSeverity, tt.maxSeverity)
			}
		})
	}
}

func TestSecondPersonTargetingFlip(t *testing.T) {
	d := newTestDetector(t)

	without := d.Analyze(tok("that guy is an idiot maybe"))
	if without.HasTargetedSecondPerson {
		t.Error("no second-person pronoun near hit; targeting must be false")
	}

	// Inserting a you-family pronoun adjacent to a targeting:'other' term
	// must flip targeting to true.
	with := d.Analyze(tok("you are an idiot maybe"))
	if !with.HasTargetedSecondPerson {
		t.Error("adjacent second-person pronoun must set targeting")
	}
}

func TestTargetingWindowBound(t *testing.T) {
	d := newTestDetector(t)
	// Pronoun 5 tokens away, outside the ±3 window.
	res := d.Analyze(tok("you a b c d e idiot"))
	if res.HasTargetedSecondPerson {
		t.Error("pronoun outside the window must not count as targeting")
	}
}

func TestAlertBoostGrowsWithCount(t *testing.T) {
	d := newTestDetector(t)
	one := d.Analyze(tok("damn"))
	two := d.Analyze(tok("damn hell"))

	if one.AlertBoost() <= 0 {
		t.Fatal("single mild hit should boost")
	}
	if two.AlertBoost() <= one.AlertBoost() {
		t.Errorf("count multiplier should grow: one=%f two=%f", one.AlertBoost(), two.AlertBoost())
	}
}

func TestMultiWordProfanityPhrase(t *testing.T) {
	d := newTestDetector(t)
	res := d.Analyze(tok("well screw you then"))
	if res.Count == 0 || res.MaxSeverity != "strong" {
		t.Errorf("phrase term not matched: %+v", res)
	}
	if !res.HasTargetedSecondPerson {
		t.Error("'screw you' contains the pronoun inside the span")
	}
}
