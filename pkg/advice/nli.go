package advice

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unsaidlabs/tonecore/pkg/config"
	"github.com/unsaidlabs/tonecore/pkg/logging"
)

// NLI gate defaults, all overridable via environment.
const (
	defaultNLITimeout   = 400 * time.Millisecond
	defaultNLIBatchSize = 8
	defaultNLIMaxItems  = 60
	defaultEntailMin    = 0.55
	defaultContraMax    = 0.20
)

// NLIScores is one entail/contradiction/neutral triple.
type NLIScores struct {
	Entail  float64 `json:"entail"`
	Contra  float64 `json:"contra"`
	Neutral float64 `json:"neutral"`
}

// FitResult annotates an advice item's gate outcome (the __nli field of the
// original wire shape).
type FitResult struct {
	OK     bool      `json:"ok"`
	Reason string    `json:"reason,omitempty"`
	Scores NLIScores `json:"scores"`
}

// EntailmentModel scores a premise/hypothesis pair. Implementations must be
// safe for concurrent use.
type EntailmentModel interface {
	ScorePair(ctx context.Context, premise, hypothesis string) (NLIScores, error)
}

// ScoreCache memoizes NLI verdicts across processes; the Redis
// implementation lives in rediscache.go. A nil cache is a no-op.
type ScoreCache interface {
	Get(ctx context.Context, premise, adviceID string) (NLIScores, bool)
	Put(ctx context.Context, premise, adviceID string, scores NLIScores)
}

// Gate wraps the local NLI model with hypothesis generation, batching,
// timeouts, per-context thresholds, and a fail-open policy.
type Gate struct {
	model      EntailmentModel
	hypotheses *HypothesisGenerator
	thresholds map[string]config.NLIThresholds
	cache      ScoreCache

	disabled  bool
	timeout   time.Duration
	batchSize int
	maxItems  int
	entailMin float64
	contraMax float64

	initOnce sync.Once
	initErr  error
	initFn   func() (EntailmentModel, error)
}

// NewGate builds the gate. initFn constructs the model lazily on first use
// (promise-memoized); pass nil to run rules-only.
func NewGate(cfg *config.Provider, initFn func() (EntailmentModel, error), cache ScoreCache) *Gate {
	g := &Gate{
		hypotheses: NewHypothesisGenerator(),
		thresholds: cfg.EvaluationTones().NLI,
		cache:      cache,
		disabled:   os.Getenv("DISABLE_NLI") == "1",
		timeout:    envDuration("NLI_TIMEOUT_MS", defaultNLITimeout),
		batchSize:  envInt("NLI_BATCH_SIZE", defaultNLIBatchSize),
		maxItems:   envInt("NLI_MAX_ITEMS", defaultNLIMaxItems),
		entailMin:  envFloat("NLI_ENTAIL_MIN_DEFAULT", defaultEntailMin),
		contraMax:  envFloat("NLI_CONTRA_MAX_DEFAULT", defaultContraMax),
		initFn:     initFn,
	}
	return g
}

// Init ensures the model is constructed. Only the first caller pays; later
// calls return the memoized outcome immediately.
func (g *Gate) Init() error {
	if g.disabled || g.initFn == nil {
		return nil
	}
	g.initOnce.Do(func() {
		model, err := g.initFn()
		if err != nil {
			g.initErr = err
			logging.Named("advice.nli").Warn("nli.init_failed", zap.Error(err))
			return
		}
		g.model = model
	})
	return g.initErr
}

// Available reports whether the backing model can be used.
func (g *Gate) Available() bool {
	return !g.disabled && g.model != nil
}

// thresholdsFor resolves the per-context gate thresholds.
func (g *Gate) thresholdsFor(contextKey string) (entailMin, contraMax float64) {
	if th, ok := g.thresholds[contextKey]; ok {
		return th.EntailMin, th.ContraMax
	}
	if th, ok := g.thresholds["general"]; ok {
		return th.EntailMin, th.ContraMax
	}
	return g.entailMin, g.contraMax
}

// Score runs a single premise/hypothesis pair with the configured timeout
// and one retry on transient errors.
func (g *Gate) Score(ctx context.Context, premise, hypothesis string) (NLIScores, error) {
	if !g.Available() {
		return NLIScores{}, fmt.Errorf("nli model unavailable")
	}
	scores, err := g.scoreOnce(ctx, premise, hypothesis)
	if err == nil {
		return scores, nil
	}
	return g.scoreOnce(ctx, premise, hypothesis)
}

func (g *Gate) scoreOnce(ctx context.Context, premise, hypothesis string) (NLIScores, error) {
	tctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.model.ScorePair(tctx, premise, hypothesis)
}

// Check gates one advice item against the premise.
func (g *Gate) Check(ctx context.Context, premise string, item *config.AdviceItem, contextKey string) FitResult {
	if g.disabled || g.model == nil {
		return FitResult{OK: true, Reason: "nli_disabled"}
	}

	if g.cache != nil {
		if scores, ok := g.cache.Get(ctx, premise, item.ID); ok {
			return g.decide(scores, contextKey, "nli_cached")
		}
	}

	hypothesis := g.hypotheses.For(item)
	scores, err := g.Score(ctx, premise, hypothesis)
	if err != nil {
		return FitResult{OK: true, Reason: "nli_error"}
	}
	if g.cache != nil {
		g.cache.Put(ctx, premise, item.ID, scores)
	}
	return g.decide(scores, contextKey, "nli_single")
}

// CheckBatch gates candidates in batches sharing one premise. Items beyond
// maxItems pass through without checking.
func (g *Gate) CheckBatch(ctx context.Context, premise string, items []*config.AdviceItem, contextKey string) []FitResult {
	results := make([]FitResult, len(items))
	if g.disabled || g.model == nil {
		for i := range results {
			results[i] = FitResult{OK: true, Reason: "nli_disabled"}
		}
		return results
	}

	checked := len(items)
	if checked > g.maxItems {
		checked = g.maxItems
	}
	for i := checked; i < len(items); i++ {
		results[i] = FitResult{OK: true, Reason: "nli_overflow"}
	}

	start := time.Now()
	for lo := 0; lo < checked; lo += g.batchSize {
		hi := lo + g.batchSize
		if hi > checked {
			hi = checked
		}
		for i := lo; i < hi; i++ {
			if g.cache != nil {
				if scores, ok := g.cache.Get(ctx, premise, items[i].ID); ok {
					results[i] = g.decide(scores, contextKey, "nli_cached")
					continue
				}
			}
			hypothesis := g.hypotheses.For(items[i])
			scores, err := g.Score(ctx, premise, hypothesis)
			if err != nil {
				results[i] = FitResult{OK: true, Reason: "nli_error"}
				continue
			}
			if g.cache != nil {
				g.cache.Put(ctx, premise, items[i].ID, scores)
			}
			results[i] = g.decide(scores, contextKey, "nli_batch")
		}
	}

	logging.Named("advice.nli").Debug("nli.telemetry",
		zap.Int("checked", checked),
		zap.Int("passed_through", len(items)-checked),
		zap.Duration("elapsed", time.Since(start)))
	return results
}

func (g *Gate) decide(scores NLIScores, contextKey, reason string) FitResult {
	entailMin, contraMax := g.thresholdsFor(contextKey)
	ok := scores.Entail >= entailMin && scores.Contra <= contraMax
	return FitResult{OK: ok, Reason: reason, Scores: scores}
}

// SoftmaxWithTemperature converts raw label logits into probabilities with
// the optional NLI_TEMP override.
func SoftmaxWithTemperature(logits []float64) []float64 {
	temp := envFloat("NLI_TEMP", 1.0)
	if temp <= 0 {
		temp = 1.0
	}
	maxV := math.Inf(-1)
	for _, v := range logits {
		if v > maxV {
			maxV = v
		}
	}
	out := make([]float64, len(logits))
	var denom float64
	for i, v := range logits {
		out[i] = math.Exp((v - maxV) / temp)
		denom += out[i]
	}
	if denom == 0 {
		return out
	}
	for i := range out {
		out[i] /= denom
	}
	return out
}

func envDuration(name string, fallback time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}

func envFloat(name string, fallback float64) float64 {
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
