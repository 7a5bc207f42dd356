package advice

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/unsaidlabs/tonecore/pkg/config"
	"github.com/unsaidlabs/tonecore/pkg/logging"
)

const (
	defaultWarmMax         = 200
	defaultWarmConcurrency = 10
	defaultVectorCacheMax  = 512
	defaultPoolSize        = 24
)

// ToneBucketFunc maps (attachmentStyle, toneLabel) to a UI bucket; the
// provider's derived table backs it.
type ToneBucketFunc func(style, tone string) string

// Candidate is one preselected advice item with its retrieval score.
type Candidate struct {
	Item      *config.AdviceItem
	Retrieval float64
	BM25      float64
	NLI       *FitResult
	Boost     float64
	Score     float64
}

// Index holds the advice corpus, the BM25 index, the dense collection, and
// the LRU vector cache.
type Index struct {
	items    []config.AdviceItem
	byID     map[string]*config.AdviceItem
	bm25     *BM25Index
	embedder Embedder
	vectors  *lru.Cache[string, []float32]
	dense    *chromem.Collection
	bucketOf ToneBucketFunc

	warmMax  int
	warmConc int
	poolSize int

	mu         sync.RWMutex
	denseReady bool
	stats      struct {
		vectorHits, vectorMisses int
	}
}

// NewIndex builds the corpus indexes. Dense retrieval is only active when a
// chromem collection could be created for the embedder's dimension.
func NewIndex(cfg *config.Provider, embedder Embedder, bucketOf ToneBucketFunc) *Index {
	log := logging.Named("advice.index")

	ix := &Index{
		byID:     make(map[string]*config.AdviceItem),
		bm25:     NewBM25Index(),
		embedder: embedder,
		bucketOf: bucketOf,
		warmMax:  envInt("ADVICE_WARM_MAX", defaultWarmMax),
		warmConc: envInt("ADVICE_WARM_CONCURRENCY", defaultWarmConcurrency),
		poolSize: envInt("RETRIEVAL_POOL_SIZE", cfg.Retrieval().PoolSize),
	}
	if ix.poolSize <= 0 {
		ix.poolSize = defaultPoolSize
	}

	ix.items = cfg.TherapyAdvice()
	for i := range ix.items {
		item := &ix.items[i]
		if item.ID == "" || item.Advice == "" {
			continue
		}
		ix.byID[item.ID] = item
		ix.bm25.Add(item.ID, item.Advice+" "+strings.Join(item.Keywords, " "))
	}
	ix.bm25.Finish()

	cacheMax := envInt("VECTOR_CACHE_MAX", defaultVectorCacheMax)
	ix.vectors, _ = lru.New[string, []float32](cacheMax)

	db := chromem.NewDB()
	collection, err := db.CreateCollection("advice", nil, func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	})
	if err != nil {
		log.Warn("index.dense.disabled", zap.Error(err))
	} else {
		ix.dense = collection
	}

	log.Info("index.built",
		zap.Int("items", len(ix.byID)),
		zap.Int("bm25_docs", ix.bm25.Len()),
		zap.Bool("dense", ix.dense != nil))
	return ix
}

// Warm precomputes vectors for up to warmMax items with bounded concurrency.
// Controlled by ADVICE_WARM_DISABLE / ADVICE_WARM_MAX / ADVICE_WARM_CONCURRENCY.
func (ix *Index) Warm(ctx context.Context) {
	if os.Getenv("ADVICE_WARM_DISABLE") == "1" {
		return
	}
	limit := ix.warmMax
	if limit > len(ix.items) {
		limit = len(ix.items)
	}
	conc := ix.warmConc
	if conc <= 0 || conc > 10 {
		conc = defaultWarmConcurrency
	}

	sem := make(chan struct{}, conc)
	var wg sync.WaitGroup
	for i := 0; i < limit; i++ {
		item := &ix.items[i]
		if item.ID == "" {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			_, _ = ix.GetVector(ctx, item.ID)
		}()
	}
	wg.Wait()

	if ix.dense != nil {
		docs := make([]chromem.Document, 0, limit)
		for i := 0; i < limit; i++ {
			item := &ix.items[i]
			if item.ID == "" {
				continue
			}
			docs = append(docs, chromem.Document{ID: item.ID, Content: item.Advice})
		}
		if err := ix.dense.AddDocuments(ctx, docs, conc); err != nil {
			logging.Named("advice.index").Warn("index.dense.warm_failed", zap.Error(err))
			ix.dense = nil
			return
		}
		ix.mu.Lock()
		ix.denseReady = true
		ix.mu.Unlock()
	}
}

// Get returns the advice item by id.
func (ix *Index) Get(id string) (*config.AdviceItem, bool) {
	item, ok := ix.byID[id]
	return item, ok
}

// Items exposes the corpus for the rules backstop.
func (ix *Index) Items() []config.AdviceItem { return ix.items }

// HasDense reports whether the dense collection has been populated; before
// a successful Warm the collection is empty and novelty must be skipped.
func (ix *Index) HasDense() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.denseReady && ix.dense != nil
}

// DenseQuery runs the similarity search over the warmed collection and
// returns each hit's stored vector keyed by advice id. The vectors come
// straight from the collection, so callers reuse the embeddings computed at
// warm time instead of re-embedding.
func (ix *Index) DenseQuery(ctx context.Context, text string, k int) (map[string][]float32, error) {
	if !ix.HasDense() {
		return nil, fmt.Errorf("dense retrieval unavailable")
	}
	if n := ix.dense.Count(); k > n {
		k = n
	}
	if k <= 0 {
		return map[string][]float32{}, nil
	}
	results, err := ix.dense.Query(ctx, text, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("dense query: %w", err)
	}
	vectors := make(map[string][]float32, len(results))
	for _, res := range results {
		vectors[res.ID] = res.Embedding
	}
	return vectors, nil
}

// Search is plain BM25 search over the corpus.
func (ix *Index) Search(query string, limit int) []SearchResult {
	if limit <= 0 {
		limit = envInt("BM25_LIMIT", 50)
	}
	return ix.bm25.Search(query, SearchOptions{Prefix: true, Fuzzy: true, Limit: limit})
}

// GetVector computes and caches the item's vector on demand.
func (ix *Index) GetVector(ctx context.Context, id string) ([]float32, error) {
	if vec, ok := ix.vectors.Get(id); ok {
		ix.mu.Lock()
		ix.stats.vectorHits++
		ix.mu.Unlock()
		return vec, nil
	}
	item, ok := ix.byID[id]
	if !ok {
		return nil, fmt.Errorf("advice item %q not found", id)
	}
	vec, err := ix.embedder.Embed(ctx, item.Advice)
	if err != nil {
		return nil, fmt.Errorf("embed advice %q: %w", id, err)
	}
	ix.vectors.Add(id, vec)
	ix.mu.Lock()
	ix.stats.vectorMisses++
	ix.mu.Unlock()
	return vec, nil
}

// CandidateQuery parameterizes preselection.
type CandidateQuery struct {
	Text            string
	ToneLabel       string
	UIBucket        string
	ContextKey      string
	AttachmentStyle string
	SeverityBaseline map[string]float64
}

// Candidates preselects items whose trigger tone matches the request tone
// (attachment-aware: equal labels, or the same UI bucket under the style's
// derived mapping) and whose context is appropriate, scored by a blend of
// BM25, context-link bonus, pattern alignment, style tuning, and a soft
// severity gate.
func (ix *Index) Candidates(q CandidateQuery) []Candidate {
	bm25Scores := make(map[string]float64)
	for _, r := range ix.Search(q.Text, 0) {
		bm25Scores[r.ID] = r.Score
	}
	var maxBM25 float64
	for _, s := range bm25Scores {
		if s > maxBM25 {
			maxBM25 = s
		}
	}

	var out []Candidate
	for i := range ix.items {
		item := &ix.items[i]
		if item.ID == "" {
			continue
		}
		if !ix.toneMatches(item.TriggerTone, q.ToneLabel, q.UIBucket, q.AttachmentStyle) {
			continue
		}
		if !contextAppropriate(item, q.ContextKey) {
			continue
		}

		var score float64
		bm := 0.0
		if maxBM25 > 0 {
			bm = bm25Scores[item.ID] / maxBM25
		}
		score += 0.55 * bm

		link := 0.0
		for _, cl := range item.ContextLink {
			if cl == q.ContextKey {
				link = 0.05
				break
			}
		}
		score += link

		score += patternAlignment(item, q.Text)
		if item.StyleTuning != nil {
			score += item.StyleTuning[q.AttachmentStyle]
		}

		if th, ok := item.SeverityThreshold[item.TriggerTone]; ok {
			if baseline := q.SeverityBaseline[item.TriggerTone]; baseline < th {
				score -= 0.1
			}
		}

		out = append(out, Candidate{Item: item, Retrieval: score, BM25: bm})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Retrieval != out[j].Retrieval {
			return out[i].Retrieval > out[j].Retrieval
		}
		return out[i].Item.ID < out[j].Item.ID
	})
	if len(out) > ix.poolSize {
		out = out[:ix.poolSize]
	}
	return out
}

// toneMatches implements the attachment-aware rule: exact label match, or
// both labels mapping to the same UI bucket under the style's table.
func (ix *Index) toneMatches(itemTone, userTone, uiBucket, style string) bool {
	if itemTone == userTone {
		return true
	}
	if ix.bucketOf == nil {
		return false
	}
	itemBucket := ix.bucketOf(style, itemTone)
	if uiBucket != "" {
		return itemBucket == uiBucket
	}
	return itemBucket == ix.bucketOf(style, userTone)
}

func contextAppropriate(item *config.AdviceItem, contextKey string) bool {
	if len(item.Contexts) == 0 {
		return true
	}
	for _, c := range item.Contexts {
		if c == contextKey {
			return true
		}
	}
	return false
}

// patternAlignment grants up to 0.15 for advice patterns found in the text.
func patternAlignment(item *config.AdviceItem, text string) float64 {
	if len(item.Patterns) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, p := range item.Patterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			hits++
		}
	}
	score := 0.05 * float64(hits)
	if score > 0.15 {
		score = 0.15
	}
	return score
}

// Stats reports cache counters for telemetry.
func (ix *Index) Stats() map[string]any {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return map[string]any{
		"items":         len(ix.byID),
		"vector_hits":   ix.stats.vectorHits,
		"vector_misses": ix.stats.vectorMisses,
		"dense":         ix.dense != nil,
	}
}

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
