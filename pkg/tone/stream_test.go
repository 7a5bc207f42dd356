package tone

import (
	"testing"
	"time"

	"github.com/unsaidlabs/tonecore/pkg/config"
	"github.com/unsaidlabs/tonecore/pkg/scan"
)

func newTestStreams(t *testing.T) (*Streams, *ConversationMemory) {
	t.Helper()
	cfg, err := config.FromBlobs(nil)
	if err != nil {
		t.Fatal(err)
	}
	memory := NewConversationMemory()
	return NewStreams(cfg, scan.NewScanner(cfg, scan.ModeHybrid), memory), memory
}

func feed(s *Streams, fieldID, text string) {
	for _, ch := range text {
		s.FeedChar(fieldID, "general", ch)
	}
}

func TestStreamStartsUniform(t *testing.T) {
	s, _ := newTestStreams(t)
	d := s.GetCurrent("f")
	for _, bucket := range bucketOrder {
		if d.Dist[bucket] < 0.3 || d.Dist[bucket] > 0.4 {
			t.Errorf("fresh stream %s = %f, want ~1/3", bucket, d.Dist[bucket])
		}
	}
}

func TestStreamLockOnHostileInput(t *testing.T) {
	s, _ := newTestStreams(t)
	base := time.Now()
	s.now = func() time.Time { return base }

	// "i hate you " closes three tokens; "hate you" is a strong trigger and
	// the window holds a targeted imperative shape once "shut up" lands.
	feed(s, "f", "i hate you shut up!")

	d := s.GetCurrent("f")
	if d.Primary != "alert" {
		t.Fatalf("primary = %q, want alert", d.Primary)
	}
	if d.Dist["alert"] != 1 {
		t.Errorf("locked distribution must be one-hot, got %v", d.Dist)
	}

	// Locks hold for their window regardless of new input.
	s.now = func() time.Time { return base.Add(300 * time.Millisecond) }
	feed(s, "f", " ok ")
	if d := s.GetCurrent("f"); d.Dist["alert"] != 1 {
		t.Errorf("lock must survive new input inside the window: %v", d.Dist)
	}

	// After 601ms the lock has expired and smoothing resumes.
	s.now = func() time.Time { return base.Add(601 * time.Millisecond) }
	d = s.GetCurrent("f")
	if d.Dist["alert"] == 1 {
		t.Error("lock should have expired")
	}
	assertNormalized(t, d)
}

func TestStreamSmoothedDistributionNormalized(t *testing.T) {
	s, _ := newTestStreams(t)
	feed(s, "f", "maybe we could talk later ")
	d := s.GetCurrent("f")
	assertNormalized(t, d)
}

func TestFinalizeSentenceUpdatesMemory(t *testing.T) {
	s, memory := newTestStreams(t)
	feed(s, "f", "i hate you.")

	entry, ok := memory.Get("f")
	if !ok {
		t.Fatal("sentence finalize should write conversation memory")
	}
	if entry.LastTone == "" {
		t.Error("memory entry missing last tone")
	}
}

func TestStreamWindowBounded(t *testing.T) {
	s, _ := newTestStreams(t)
	for i := 0; i < 50; i++ {
		feed(s, "f", "word ")
	}
	s.mu.Lock()
	st := s.state("f")
	if len(st.tokens) > streamWindow {
		t.Errorf("window holds %d tokens, cap is %d", len(st.tokens), streamWindow)
	}
	s.mu.Unlock()
}

func TestStreamResetClearsEverything(t *testing.T) {
	s, memory := newTestStreams(t)
	feed(s, "f", "i hate you.")
	s.Reset("f")

	if _, ok := memory.Get("f"); ok {
		t.Error("reset must drop conversation memory")
	}
	d := s.GetCurrent("f")
	for _, bucket := range bucketOrder {
		if d.Dist[bucket] < 0.3 || d.Dist[bucket] > 0.4 {
			t.Errorf("reset stream %s = %f, want ~1/3", bucket, d.Dist[bucket])
		}
	}
}

func TestStreamsAreIsolatedPerField(t *testing.T) {
	s, _ := newTestStreams(t)
	feed(s, "hostile", "i hate you shut up ")
	feed(s, "calm", "see you at six ")

	hostile := s.GetCurrent("hostile")
	calm := s.GetCurrent("calm")
	if hostile.Dist["alert"] <= calm.Dist["alert"] {
		t.Errorf("fields must not share state: hostile=%f calm=%f",
			hostile.Dist["alert"], calm.Dist["alert"])
	}
}
