package advice

import (
	"context"
	"math"
	"strings"
)

// FeatureDim is the hand-engineered vector width. "Dense" retrieval is valid
// only when the corpus carries vectors of this dimension (or the semantic
// backbone's, when enabled).
const FeatureDim = 30

// Embedder turns text into a fixed-width vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// FeatureEmbedder is the default in-process embedder: a 30-dimensional
// hand-engineered feature vector, not a learned embedding.
type FeatureEmbedder struct{}

// Dimension returns FeatureDim.
func (FeatureEmbedder) Dimension() int { return FeatureDim }

// featureBuckets maps vocabulary families to vector slots 0..23; the last
// six slots hold surface statistics.
var featureBuckets = [][]string{
	{"listen", "hear", "attention"},
	{"feel", "feeling", "emotion", "felt"},
	{"boundary", "boundaries", "limit", "space"},
	{"breathe", "breath", "pause", "calm", "ground"},
	{"sorry", "apologize", "apology", "forgive"},
	{"thank", "appreciate", "grateful", "gratitude"},
	{"need", "needs", "want", "wants"},
	{"time", "later", "moment", "tonight", "tomorrow"},
	{"talk", "conversation", "discuss", "share"},
	{"angry", "anger", "mad", "furious"},
	{"sad", "hurt", "pain", "grief"},
	{"anxious", "worry", "worried", "fear", "scared"},
	{"love", "care", "warm", "affection"},
	{"ask", "question", "curious", "wonder"},
	{"trust", "safe", "safety", "secure"},
	{"repair", "reconnect", "mend", "rebuild"},
	{"gentle", "soft", "kind", "kindly"},
	{"notice", "noticing", "aware", "awareness"},
	{"stop", "quit", "end", "leave"},
	{"help", "support", "together", "team"},
	{"you", "your", "yours"},
	{"i", "me", "my", "myself"},
	{"we", "us", "our"},
	{"try", "practice", "start", "step"},
}

// Embed computes the fixed feature vector and L2-normalizes it.
func (FeatureEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	words := TokenizeQuery(text)
	wc := float64(len(words))
	if wc == 0 {
		wc = 1
	}

	vec := make([]float32, FeatureDim)
	for slot, family := range featureBuckets {
		count := 0
		for _, w := range words {
			for _, f := range family {
				if w == f {
					count++
					break
				}
			}
		}
		vec[slot] = float32(float64(count) / wc)
	}

	// Surface statistics in the tail slots.
	vec[24] = float32(math.Min(wc/30.0, 1))
	vec[25] = float32(strings.Count(text, "?")) / 4
	vec[26] = float32(strings.Count(text, "!")) / 4
	var avgWordLen float64
	for _, w := range words {
		avgWordLen += float64(len(w))
	}
	vec[27] = float32(avgWordLen / wc / 10.0)
	vec[28] = float32(float64(strings.Count(text, ",")) / wc)
	upper := 0
	for _, r := range text {
		if r >= 'A' && r <= 'Z' {
			upper++
		}
	}
	if len(text) > 0 {
		vec[29] = float32(upper) / float32(len(text))
	}

	return l2Normalize(vec), nil
}

func l2Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

// CosineSimilarity computes similarity between two float32 vectors of equal
// length; mismatched or empty inputs score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
