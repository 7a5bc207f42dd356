package suggest

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/unsaidlabs/tonecore/pkg/advice"
	"github.com/unsaidlabs/tonecore/pkg/config"
	"github.com/unsaidlabs/tonecore/pkg/logging"
	"github.com/unsaidlabs/tonecore/pkg/nlp"
	"github.com/unsaidlabs/tonecore/pkg/scan"
	"github.com/unsaidlabs/tonecore/pkg/tone"
)

// criticalBlobs must be backed by real files for requests to run.
var criticalBlobs = []string{
	config.BlobTherapyAdvice,
	config.BlobToneTriggerWords,
	config.BlobToneBucketMapping,
	config.BlobContextClassifier,
}

const (
	defaultCacheExpiry = 30 * time.Minute
	defaultPerfCacheMax = 256
)

// Service composes the full pipeline and owns the per-request caches.
type Service struct {
	cfg        *config.Provider
	analyzer   *nlp.Analyzer
	bridge     *nlp.Bridge
	scanner    *scan.Scanner
	features   *tone.FeatureExtractor
	scorer     *tone.Scorer
	mapper     *tone.Mapper
	calibrator *tone.Calibrator
	memory     *tone.ConversationMemory
	streams    *tone.Streams
	index      *advice.Index
	gate       *advice.Gate
	ranker     *advice.Ranker
	backstop   advice.Backstop

	analyses    *expirable.LRU[string, *ToneResponse]
	suggestions *expirable.LRU[string, *SuggestionAnalysis]

	missingCritical []string
}

// Options configures service construction.
type Options struct {
	// NLIInit lazily constructs the entailment model. Leave nil for
	// rules-only operation.
	NLIInit func() (advice.EntailmentModel, error)
	// NLICache optionally shares NLI verdicts across processes.
	NLICache advice.ScoreCache
	// Embedder overrides the default 30-dim feature embedder.
	Embedder advice.Embedder
}

// New builds the service from a loaded provider. Construction never fails on
// missing config; missing critical blobs are remembered and surfaced as
// request-time errors.
func New(cfg *config.Provider, opts Options) *Service {
	analyzer := nlp.NewAnalyzer(cfg)
	scanner := scan.NewScanner(cfg, scan.ModeFromEnv())
	memory := tone.NewConversationMemory()

	var embedder advice.Embedder = advice.FeatureEmbedder{}
	if opts.Embedder != nil {
		embedder = opts.Embedder
	} else if advice.BackboneEnabled() {
		if backbone, err := advice.NewBackboneEmbedder(advice.DefaultBackboneConfig()); err == nil {
			embedder = backbone
		} else {
			logging.Named("suggest").Info("backbone.unavailable", zap.Error(err))
		}
	}

	bucketOf := cfg.ToneUIBucket
	index := advice.NewIndex(cfg, embedder, bucketOf)
	gate := advice.NewGate(cfg, opts.NLIInit, opts.NLICache)

	s := &Service{
		cfg:        cfg,
		analyzer:   analyzer,
		bridge:     nlp.NewBridge(analyzer),
		scanner:    scanner,
		features:   tone.NewFeatureExtractor(cfg, analyzer),
		scorer:     tone.NewScorer(cfg, analyzer, memory),
		mapper:     tone.NewMapper(cfg, scanner),
		calibrator: tone.NewCalibrator(cfg),
		memory:     memory,
		streams:    tone.NewStreams(cfg, scanner, memory),
		index:      index,
		gate:       gate,
		ranker:     advice.NewRanker(cfg, index, gate, bucketOf),

		missingCritical: cfg.MissingCritical(criticalBlobs),
	}

	expiry := defaultCacheExpiry
	if v := os.Getenv("CACHE_EXPIRY_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			expiry = time.Duration(ms) * time.Millisecond
		}
	}
	perfMax := envInt("PERFORMANCE_CACHE_MAX", defaultPerfCacheMax)
	bucketMax := envInt("TONE_BUCKET_CACHE_MAX", defaultPerfCacheMax)
	s.analyses = expirable.NewLRU[string, *ToneResponse](bucketMax, nil, expiry)
	s.suggestions = expirable.NewLRU[string, *SuggestionAnalysis](perfMax, nil, expiry)

	if len(s.missingCritical) > 0 {
		logging.Named("suggest").Warn("config.critical.missing",
			zap.Strings("blobs", s.missingCritical))
	}
	return s
}

// Warm precomputes advice vectors and kicks the NLI init. Optional; the
// first request pays otherwise.
func (s *Service) Warm(ctx context.Context) {
	s.index.Warm(ctx)
	_ = s.gate.Init()
}

func (s *Service) checkCritical() error {
	if len(s.missingCritical) > 0 {
		return fmt.Errorf("Critical JSON dependencies missing: %s",
			strings.Join(s.missingCritical, ", "))
	}
	return nil
}

func analysisKey(text, contextKey, style string) string {
	return nlp.NormalizeText(text) + "|" + contextKey + "|" + style
}

// AnalyzeTone is the full-analysis entry point.
func (s *Service) AnalyzeTone(ctx context.Context, text string, opts AnalyzeOptions) (*ToneResponse, error) {
	if err := s.checkCritical(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text is required")
	}
	if opts.Context == "" {
		opts.Context = "general"
	}
	if opts.AttachmentStyle == "" {
		opts.AttachmentStyle = "secure"
	}

	key := analysisKey(text, opts.Context, opts.AttachmentStyle)
	if !opts.PureBaseBuckets && !opts.IsNewUser {
		if cached, ok := s.analyses.Get(key); ok {
			return cached, nil
		}
	}

	doc := s.bridge.Process(text)
	feats := s.features.Extract(text, doc)

	contextKey := opts.Context
	if doc.Context.Label != "general" && doc.Context.Score > 0.4 && opts.Context == "general" {
		contextKey = doc.Context.Label
	}

	score := s.scorer.Score(tone.Input{
		Text:            text,
		Doc:             doc,
		Features:        feats,
		ContextKey:      contextKey,
		AttachmentStyle: opts.AttachmentStyle,
		FieldID:         opts.FieldID,
	})

	dist := s.mapper.Map(tone.MapInput{
		ToneLabel:       score.Classification,
		ContextKey:      contextKey,
		AttachmentStyle: opts.AttachmentStyle,
		Intensity:       score.Intensity,
		ContextSeverity: score.ContextSeverity,
		Meta:            &score.Meta,
		Text:            text,
		PureBase:        opts.PureBaseBuckets,
	})

	confidence := s.calibrator.Calibrate(score.Confidence, contextKey, opts.IsNewUser)

	resp := s.buildResponse(text, doc, feats, score, dist, confidence, contextKey, opts)
	if !opts.PureBaseBuckets && !opts.IsNewUser {
		s.analyses.Add(key, resp)
	}
	return resp, nil
}

func (s *Service) buildResponse(text string, doc *nlp.CompactDoc, feats tone.Features, score tone.Score, dist tone.Dist, confidence float64, contextKey string, opts AnalyzeOptions) *ToneResponse {
	emotions := Emotions{
		Joy:        score.Scores["positive"] + score.Scores["supportive"]*0.5,
		Anger:      score.Scores["angry"],
		Fear:       score.Scores["anxious"],
		Sadness:    score.Scores["sad"],
		Analytical: score.Scores["neutral"] * 0.6,
		Confident:  score.Scores["assertive"],
		Tentative:  score.Scores["anxious"]*0.4 + b2f(feats.NegPresent)*0.1,
	}

	sentiment := emotions.Joy - (emotions.Anger + emotions.Sadness + emotions.Fear*0.5)
	if sentiment > 1 {
		sentiment = 1
	}
	if sentiment < -1 {
		sentiment = -1
	}

	lf := LinguisticFeatures{
		FormalityLevel:      formality(feats),
		EmotionalComplexity: emotionalComplexity(score.Scores),
		Assertiveness:       score.Scores["assertive"] + float64(feats.ModalCount)*0.05,
		EmpathyIndicators:   empathyIndicators(text),
		PotentialMisunderstandings: misunderstandings(feats, score),
	}

	ca := ContextAnalysis{
		AppropriatenessScore: appropriateness(dist),
		RelationshipImpact:   impact(dist, sentiment),
		SuggestedAdjustments: adjustments(score, feats),
	}

	resp := &ToneResponse{
		Tone:               ToneLabel{Classification: score.Classification, Confidence: confidence},
		Emotions:           emotions,
		Intensity:          score.Intensity,
		SentimentScore:     sentiment,
		LinguisticFeatures: lf,
		ContextAnalysis:    ca,
		UITone:             dist.Primary,
		UIDistribution:     dist.Dist,
	}
	if opts.IncludeAttachmentInsights {
		resp.AttachmentInsights = &AttachmentInsights{
			Style:      opts.AttachmentStyle,
			Confidence: confidence,
			Observations: attachmentObservations(opts.AttachmentStyle, feats),
		}
	}
	return resp
}

// GenerateAdvancedSuggestions is the retrieval/ranking entry point. The
// caller must supply the full tone analysis; the engine never re-derives it
// silently.
func (s *Service) GenerateAdvancedSuggestions(ctx context.Context, text, contextKey string, profile *UserProfile, opts SuggestionOptions) (*SuggestionAnalysis, error) {
	if err := s.checkCritical(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text is required")
	}
	if opts.FullToneAnalysis == nil {
		return nil, fmt.Errorf("fullToneAnalysis is required")
	}
	if contextKey == "" {
		contextKey = "general"
	}
	if opts.AttachmentStyle == "" {
		opts.AttachmentStyle = "secure"
	}
	if opts.MaxSuggestions <= 0 {
		opts.MaxSuggestions = 5
	}
	if opts.MaxSuggestions > 10 {
		opts.MaxSuggestions = 10
	}

	key := analysisKey(text, contextKey, opts.AttachmentStyle)
	if cached, ok := s.suggestions.Get(key); ok {
		out := *cached
		out.Cached = true
		return &out, nil
	}

	_ = s.gate.Init()

	ta := opts.FullToneAnalysis
	doc := s.bridge.Process(text)
	feats := s.features.Extract(text, doc)

	severityBaseline := map[string]float64{
		"clear":   ta.UIDistribution["clear"],
		"caution": ta.UIDistribution["caution"],
		"alert":   ta.UIDistribution["alert"],
	}

	candidates := s.index.Candidates(advice.CandidateQuery{
		Text:             text,
		ToneLabel:        ta.Tone.Classification,
		UIBucket:         ta.UITone,
		ContextKey:       contextKey,
		AttachmentStyle:  opts.AttachmentStyle,
		SeverityBaseline: severityBaseline,
	})

	in := advice.RankInput{
		Text:            text,
		Doc:             doc,
		ContextKey:      contextKey,
		AttachmentStyle: opts.AttachmentStyle,
		ToneLabel:       ta.Tone.Classification,
		Primary:         ta.UITone,
		Dist:            ta.UIDistribution,
		Intensity:       ta.Intensity,
		Confidence:      ta.Tone.Confidence,
		HasNegation:     feats.NegPresent,
		Sarcastic:       feats.SarcPresent,
		EdgeHits:        feats.EdgeHits,
		SecondPersonConfidence: secondPersonConfidence(feats),
		SecondPersonDirect:     feats.SecondPersonCount >= 2,
		CoordinatorIntents:     opts.CoordinatorIntents,
		SeverityBaseline:       severityBaseline,
		MaxSuggestions:         opts.MaxSuggestions,
	}
	if profile != nil {
		in.UserPrefs = profile.CategoryPrefs
		in.PremiumTier = profile.PremiumTier
		if profile.Attachment != nil && opts.AttachmentStyle == "secure" {
			in.AttachmentStyle = profile.Attachment.Primary
		}
	}

	ranked := s.ranker.Rank(ctx, candidates, in)

	// Rules backstop for explainability when the model is unavailable.
	if !s.gate.Available() {
		sentiment := "neutral"
		switch {
		case ta.SentimentScore > 0.2:
			sentiment = "positive"
		case ta.SentimentScore < -0.2:
			sentiment = "negative"
		}
		kept := ranked[:0]
		for _, sug := range ranked {
			item, ok := s.index.Get(sug.ID)
			if !ok {
				continue
			}
			if ok, reason := s.backstop.Fits(text, doc, item, contextKey, doc.Context.Score, sentiment); ok {
				sug.Reason = reason
				kept = append(kept, sug)
			}
		}
		if len(kept) > 0 {
			ranked = kept
		}
	}

	result := &SuggestionAnalysis{
		Text:            text,
		Context:         contextKey,
		AttachmentStyle: in.AttachmentStyle,
		UITone:          ta.UITone,
		UIDistribution:  ta.UIDistribution,
		Suggestions:     ranked,
	}
	s.suggestions.Add(key, result)
	return result, nil
}

// ToneLive returns the live-typing distribution for a field.
func (s *Service) ToneLive(fieldID string) tone.Dist {
	return s.streams.GetCurrent(fieldID)
}

// FeedChar feeds one character of live typing.
func (s *Service) FeedChar(fieldID, contextKey string, ch rune) {
	s.streams.FeedChar(fieldID, contextKey, ch)
}

// ResetConversationMemory drops the stream and hysteresis state for a field.
// With an empty fieldID it drops the conversation memory of every field;
// live-typing stream states are not dropped then.
func (s *Service) ResetConversationMemory(fieldID string) {
	if fieldID == "" {
		s.memory.Reset("")
		return
	}
	s.streams.Reset(fieldID)
}

// Stats aggregates component telemetry.
func (s *Service) Stats() map[string]any {
	return map[string]any{
		"scanner": s.scanner.Stats(),
		"index":   s.index.Stats(),
		"analysis_cache_len":   s.analyses.Len(),
		"suggestion_cache_len": s.suggestions.Len(),
	}
}

// --- response shaping helpers ---

func formality(f tone.Features) float64 {
	formal := 0.5
	if f.Elongations > 0 {
		formal -= 0.15
	}
	if f.CapsRatio > 0.3 {
		formal -= 0.2
	}
	if f.AvgSentenceLen > 12 {
		formal += 0.2
	}
	if formal < 0 {
		formal = 0
	}
	if formal > 1 {
		formal = 1
	}
	return formal
}

func emotionalComplexity(scores map[string]float64) float64 {
	active := 0
	for label, v := range scores {
		if label == "neutral" {
			continue
		}
		if v > 0.12 {
			active++
		}
	}
	c := float64(active) / 4
	if c > 1 {
		c = 1
	}
	return c
}

func empathyIndicators(text string) []string {
	indicators := []string{}
	lower := strings.ToLower(text)
	for _, marker := range []string{"i understand", "i hear you", "that makes sense", "i can see", "i'm sorry"} {
		if strings.Contains(lower, marker) {
			indicators = append(indicators, marker)
		}
	}
	return indicators
}

func misunderstandings(f tone.Features, score tone.Score) []string {
	var out []string
	if f.SarcPresent {
		out = append(out, "sarcasm may read as hostility")
	}
	if f.NegPresent && score.Scores["positive"] > 0.2 {
		out = append(out, "negated praise can read as criticism")
	}
	if f.CapsRatio > 0.3 {
		out = append(out, "capitalization may read as shouting")
	}
	if f.AbsolutesCount >= 2 {
		out = append(out, "absolute language invites defensiveness")
	}
	return out
}

func appropriateness(d tone.Dist) float64 {
	return d.Dist["clear"] + 0.5*d.Dist["caution"]
}

func impact(d tone.Dist, sentiment float64) string {
	switch {
	case d.Primary == "alert" || sentiment < -0.3:
		return "negative"
	case d.Primary == "clear" && sentiment > 0.1:
		return "positive"
	default:
		return "neutral"
	}
}

func adjustments(score tone.Score, f tone.Features) []string {
	var out []string
	if score.Scores["angry"] > 0.25 {
		out = append(out, "soften the opening before sending")
	}
	if f.AbsolutesCount > 0 {
		out = append(out, "replace always/never with specifics")
	}
	if f.SecondPersonCount >= 3 && score.Scores["angry"]+score.Scores["frustrated"] > 0.3 {
		out = append(out, "lead with an I-statement")
	}
	return out
}

func attachmentObservations(style string, f tone.Features) []string {
	var out []string
	if hint, ok := f.AttachmentHints[style]; ok && hint > 0 {
		out = append(out, "message matches "+style+" communication patterns")
	}
	return out
}

func secondPersonConfidence(f tone.Features) float64 {
	c := float64(f.SecondPersonCount) / 3
	if c > 1 {
		c = 1
	}
	return c
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
