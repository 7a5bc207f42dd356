package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/unsaidlabs/tonecore/pkg/logging"
)

// Blob names served by the provider. Callers reference blobs by these names;
// legacy aliases resolve through aliasNames.
const (
	BlobTherapyAdvice         = "therapyAdvice"
	BlobContextClassifier     = "contextClassifier"
	BlobToneTriggerWords      = "toneTriggerWords"
	BlobIntensityModifiers    = "intensityModifiers"
	BlobSarcasmIndicators     = "sarcasmIndicators"
	BlobNegationIndicators    = "negationIndicators"
	BlobNegationPatterns      = "negationPatterns"
	BlobPhraseEdges           = "phraseEdges"
	BlobTonePatterns          = "tonePatterns"
	BlobToneBucketMapping     = "toneBucketMapping"
	BlobWeightModifiers       = "weightModifiers"
	BlobGuardrailConfig       = "guardrailConfig"
	BlobProfanityLexicons     = "profanityLexicons"
	BlobAttachmentOverrides   = "attachmentOverrides"
	BlobAttachmentToneWeights = "attachmentToneWeights"
	BlobSemanticThesaurus     = "semanticThesaurus"
	BlobEvaluationTones       = "evaluationTones"
	BlobLearningSignals       = "learningSignals"
	BlobEmotionLexicons       = "emotionLexicons"
	BlobAttachmentHints       = "attachmentHints"
	BlobRetrievalConfig       = "retrievalConfig"
)

// aliasNames maps legacy blob names to canonical ones. Both keys are set once
// during load; no runtime indirection.
var aliasNames = map[string]string{
	"severityCollab":        "severityCollaboration",
	"severityCollaboration": "severityCollab",
	"triggerWords":          BlobToneTriggerWords,
	"bucketMapping":         BlobToneBucketMapping,
	"profanity":             BlobProfanityLexicons,
}

// allBlobNames is every file the provider will probe at boot.
var allBlobNames = []string{
	BlobTherapyAdvice, BlobContextClassifier, BlobToneTriggerWords,
	BlobIntensityModifiers, BlobSarcasmIndicators, BlobNegationIndicators,
	BlobNegationPatterns, BlobPhraseEdges, BlobTonePatterns,
	BlobToneBucketMapping, BlobWeightModifiers, BlobGuardrailConfig,
	BlobProfanityLexicons, BlobAttachmentOverrides, BlobAttachmentToneWeights,
	BlobSemanticThesaurus, BlobEvaluationTones, BlobLearningSignals,
	BlobEmotionLexicons, BlobAttachmentHints, BlobRetrievalConfig,
}

// Provider serves the parsed config blobs. Immutable after Load; the derived
// tone→bucket tables are computed once at build time.
type Provider struct {
	dir     string
	raw     map[string]json.RawMessage
	present map[string]bool

	advice            []AdviceItem
	contextClassifier *ContextClassifier
	triggerWords      *ToneTriggerWords
	intensityMods     []IntensityModifier
	sarcasm           []SarcasmIndicator
	negation          *NegationConfig
	phraseEdges       []PhraseEdge
	tonePatterns      []TonePattern
	bucketMapping     *ToneBucketMapping
	weightModifiers   *WeightModifiers
	guardrails        *GuardrailConfig
	profanity         *ProfanityLexicons
	attachOverrides   map[string]AttachmentOverride
	attachToneWeights *AttachmentToneWeights
	thesaurus         *SemanticThesaurus
	evaluationTones   *EvaluationTones
	learningSignals   *LearningSignals
	emotionLexicons   *EmotionLexicons
	attachmentHints   AttachmentHints
	retrieval         *RetrievalConfig

	// toneUIBucket[style][tone] is derived from bucketMapping at load so
	// attachment-aware tone matching is O(1) at scoring time.
	toneUIBucket map[string]map[string]string
}

// Load builds a Provider from a directory of JSON blob files. Files are looked
// up as <name>.json along the search path (dir itself, then dir/config). A
// missing file is not an error here; the sentinel fallback shape is served and
// the absence logged.
func Load(dir string) (*Provider, error) {
	p := &Provider{
		dir:     dir,
		raw:     make(map[string]json.RawMessage),
		present: make(map[string]bool),
	}
	log := logging.Named("config")

	for _, name := range allBlobNames {
		data, path, err := p.readBlob(name)
		if err != nil {
			log.Warn("config.blob.unreadable", zap.String("blob", name), zap.Error(err))
			continue
		}
		if data == nil {
			log.Info("config.blob.missing", zap.String("blob", name))
			continue
		}
		p.raw[name] = data
		p.present[name] = true
		log.Info("config.blob.loaded", zap.String("blob", name), zap.String("path", path), zap.Int("bytes", len(data)))
	}

	// Write legacy aliases once so cyclic references resolve without
	// runtime indirection.
	for from, to := range aliasNames {
		if data, ok := p.raw[to]; ok {
			if _, exists := p.raw[from]; !exists {
				p.raw[from] = data
			}
		}
	}

	p.parseAll()
	p.deriveToneUIBuckets()
	return p, nil
}

// FromBlobs builds a Provider from in-memory blobs, used by tests and
// embedded deployments that ship config inside the binary.
func FromBlobs(blobs map[string]json.RawMessage) (*Provider, error) {
	p := &Provider{
		raw:     make(map[string]json.RawMessage, len(blobs)),
		present: make(map[string]bool, len(blobs)),
	}
	for name, data := range blobs {
		p.raw[name] = data
		p.present[name] = true
	}
	p.parseAll()
	p.deriveToneUIBuckets()
	return p, nil
}

func (p *Provider) readBlob(name string) ([]byte, string, error) {
	if p.dir == "" {
		return nil, "", nil
	}
	candidates := []string{
		filepath.Join(p.dir, name+".json"),
		filepath.Join(p.dir, "config", name+".json"),
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err == nil {
			return data, path, nil
		}
		if !os.IsNotExist(err) {
			return nil, path, err
		}
	}
	return nil, "", nil
}

// parseAll decodes every present blob into its typed form. A malformed blob
// degrades to the fallback shape with a warn log; it is treated as absent so
// the critical-set check can still fail the request.
func (p *Provider) parseAll() {
	parse := func(name string, v any) bool {
		data, ok := p.raw[name]
		if !ok {
			return false
		}
		if err := json.Unmarshal(data, v); err != nil {
			logging.Named("config").Warn("config.blob.parse_failed",
				zap.String("blob", name), zap.Error(err))
			p.present[name] = false
			return false
		}
		return true
	}

	if !parse(BlobTherapyAdvice, &p.advice) {
		p.advice = nil
	}
	normalizeAdvice(p.advice)

	p.contextClassifier = defaultContextClassifier()
	parse(BlobContextClassifier, p.contextClassifier)

	p.triggerWords = defaultToneTriggerWords()
	parse(BlobToneTriggerWords, p.triggerWords)

	if !parse(BlobIntensityModifiers, &p.intensityMods) {
		p.intensityMods = defaultIntensityModifiers()
	}
	if !parse(BlobSarcasmIndicators, &p.sarcasm) {
		p.sarcasm = defaultSarcasmIndicators()
	}

	p.negation = defaultNegation()
	if data, ok := p.raw[BlobNegationIndicators]; ok {
		var indicators []string
		if json.Unmarshal(data, &indicators) == nil && len(indicators) > 0 {
			p.negation.Indicators = indicators
		}
	}
	if data, ok := p.raw[BlobNegationPatterns]; ok {
		var patterns []string
		if json.Unmarshal(data, &patterns) == nil {
			p.negation.Patterns = patterns
		}
	}

	if !parse(BlobPhraseEdges, &p.phraseEdges) {
		p.phraseEdges = defaultPhraseEdges()
	}
	if !parse(BlobTonePatterns, &p.tonePatterns) {
		p.tonePatterns = defaultTonePatterns()
	}

	p.bucketMapping = defaultToneBucketMapping()
	parse(BlobToneBucketMapping, p.bucketMapping)

	p.weightModifiers = defaultWeightModifiers()
	parse(BlobWeightModifiers, p.weightModifiers)

	p.guardrails = defaultGuardrailConfig()
	parse(BlobGuardrailConfig, p.guardrails)

	p.profanity = defaultProfanityLexicons()
	if data, ok := p.raw[BlobProfanityLexicons]; ok {
		p.profanity = parseProfanity(data)
	}

	p.attachOverrides = map[string]AttachmentOverride{}
	parse(BlobAttachmentOverrides, &p.attachOverrides)

	p.attachToneWeights = &AttachmentToneWeights{}
	parse(BlobAttachmentToneWeights, p.attachToneWeights)

	p.thesaurus = nil
	if _, ok := p.raw[BlobSemanticThesaurus]; ok {
		var th SemanticThesaurus
		if parse(BlobSemanticThesaurus, &th) {
			p.thesaurus = &th
		}
	}

	p.evaluationTones = defaultEvaluationTones()
	parse(BlobEvaluationTones, p.evaluationTones)

	p.learningSignals = &LearningSignals{}
	parse(BlobLearningSignals, p.learningSignals)

	p.emotionLexicons = defaultEmotionLexicons()
	parse(BlobEmotionLexicons, p.emotionLexicons)

	p.attachmentHints = defaultAttachmentHints()
	parse(BlobAttachmentHints, &p.attachmentHints)

	p.retrieval = defaultRetrievalConfig()
	parse(BlobRetrievalConfig, p.retrieval)
}

// normalizeAdvice folds legacy singular category fields into Categories.
func normalizeAdvice(items []AdviceItem) {
	for i := range items {
		if items[i].Category != "" {
			items[i].Categories = items[i].AllCategories()
			items[i].Category = ""
		}
	}
}

// parseProfanity accepts both the canonical categories[].severity shape and
// the legacy flat map {severity: [words]} shape, converting the latter.
func parseProfanity(data json.RawMessage) *ProfanityLexicons {
	var canonical ProfanityLexicons
	if err := json.Unmarshal(data, &canonical); err == nil && len(canonical.Categories) > 0 {
		return &canonical
	}
	var legacy map[string][]string
	if err := json.Unmarshal(data, &legacy); err == nil && len(legacy) > 0 {
		out := &ProfanityLexicons{}
		severities := make([]string, 0, len(legacy))
		for sev := range legacy {
			severities = append(severities, sev)
		}
		sort.Strings(severities)
		for _, sev := range severities {
			out.Categories = append(out.Categories, ProfanityCategory{
				Severity:     sev,
				Targeting:    "any",
				TriggerWords: legacy[sev],
			})
		}
		return out
	}
	return defaultProfanityLexicons()
}

// deriveToneUIBuckets precomputes the tone→UI-bucket table per attachment
// style: argmax of the base distribution after attachment deltas.
func (p *Provider) deriveToneUIBuckets() {
	styles := []string{"secure", "anxious", "avoidant", "disorganized"}
	p.toneUIBucket = make(map[string]map[string]string, len(styles))
	for _, style := range styles {
		table := make(map[string]string, len(p.bucketMapping.ToneBuckets))
		deltas := p.bucketMapping.AttachmentOverrides[style]
		for tone, tb := range p.bucketMapping.ToneBuckets {
			dist := map[string]float64{
				"clear":   tb.Base["clear"],
				"caution": tb.Base["caution"],
				"alert":   tb.Base["alert"],
			}
			for bucket, d := range deltas[tone] {
				dist[bucket] += d
				if dist[bucket] < 0 {
					dist[bucket] = 0
				}
			}
			table[tone] = argmaxBucket(dist)
		}
		p.toneUIBucket[style] = table
	}
}

// argmaxBucket breaks ties in the fixed order clear < caution < alert.
func argmaxBucket(dist map[string]float64) string {
	best := "clear"
	for _, bucket := range []string{"caution", "alert"} {
		if dist[bucket] > dist[best] {
			best = bucket
		}
	}
	return best
}

// Has reports whether the named blob was loaded from a real file.
func (p *Provider) Has(name string) bool {
	if p.present[name] {
		return true
	}
	if canonical, ok := aliasNames[name]; ok {
		return p.present[canonical]
	}
	return false
}

// Get returns the raw JSON for a named blob with legacy-alias fallthrough,
// or nil when the blob is absent.
func (p *Provider) Get(name string) json.RawMessage {
	if data, ok := p.raw[name]; ok {
		return data
	}
	if canonical, ok := aliasNames[name]; ok {
		return p.raw[canonical]
	}
	return nil
}

// MissingCritical returns the subset of names not backed by a loaded file.
func (p *Provider) MissingCritical(names []string) []string {
	var missing []string
	for _, name := range names {
		if !p.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Typed getters. Each returns the parsed blob or its fallback shape; callers
// never receive nil for blobs that have a declared default.

func (p *Provider) TherapyAdvice() []AdviceItem          { return p.advice }
func (p *Provider) ContextClassifier() *ContextClassifier { return p.contextClassifier }
func (p *Provider) ToneTriggerWords() *ToneTriggerWords  { return p.triggerWords }
func (p *Provider) IntensityModifiers() []IntensityModifier { return p.intensityMods }
func (p *Provider) SarcasmIndicators() []SarcasmIndicator { return p.sarcasm }
func (p *Provider) Negation() *NegationConfig            { return p.negation }
func (p *Provider) PhraseEdges() []PhraseEdge            { return p.phraseEdges }
func (p *Provider) TonePatterns() []TonePattern          { return p.tonePatterns }
func (p *Provider) ToneBucketMapping() *ToneBucketMapping { return p.bucketMapping }
func (p *Provider) WeightModifiers() *WeightModifiers    { return p.weightModifiers }
func (p *Provider) GuardrailConfig() *GuardrailConfig    { return p.guardrails }
func (p *Provider) ProfanityLexicons() *ProfanityLexicons { return p.profanity }
func (p *Provider) AttachmentOverrides() map[string]AttachmentOverride { return p.attachOverrides }
func (p *Provider) AttachmentToneWeights() *AttachmentToneWeights { return p.attachToneWeights }
func (p *Provider) SemanticThesaurus() *SemanticThesaurus { return p.thesaurus }
func (p *Provider) EvaluationTones() *EvaluationTones    { return p.evaluationTones }
func (p *Provider) LearningSignals() *LearningSignals    { return p.learningSignals }
func (p *Provider) EmotionLexicons() *EmotionLexicons    { return p.emotionLexicons }
func (p *Provider) AttachmentHints() AttachmentHints     { return p.attachmentHints }
func (p *Provider) Retrieval() *RetrievalConfig          { return p.retrieval }

// ToneUIBucket maps a tone label to its UI bucket under an attachment style.
// Bucket names map to themselves; unknown styles fall back to secure and
// unknown tones to caution.
func (p *Provider) ToneUIBucket(style, tone string) string {
	switch tone {
	case "clear", "caution", "alert":
		return tone
	}
	table, ok := p.toneUIBucket[style]
	if !ok {
		table = p.toneUIBucket["secure"]
	}
	if bucket, ok := table[tone]; ok {
		return bucket
	}
	return "caution"
}

// SetTherapyAdvice replaces the advice corpus before index build. Used by the
// seed overlay loader; must not be called after the engine is constructed.
func (p *Provider) SetTherapyAdvice(items []AdviceItem) {
	normalizeAdvice(items)
	p.advice = items
}
