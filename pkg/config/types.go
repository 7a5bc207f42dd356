// Package config loads and serves the read-only JSON blobs that drive the
// tone engine: lexicons, trigger words, bucket mappings, thresholds, and the
// therapy-advice corpus. Every blob has a minimal fallback shape so a missing
// file degrades instead of crashing; the orchestrator decides which blobs are
// critical for a given request.
package config

// AdviceItem is one entry of the therapy-advice corpus.
type AdviceItem struct {
	ID                string             `json:"id" yaml:"id"`
	Advice            string             `json:"advice" yaml:"advice"`
	TriggerTone       string             `json:"triggerTone" yaml:"triggerTone"`
	Contexts          []string           `json:"contexts,omitempty" yaml:"contexts,omitempty"`
	AttachmentStyles  []string           `json:"attachmentStyles,omitempty" yaml:"attachmentStyles,omitempty"`
	SeverityThreshold map[string]float64 `json:"severityThreshold,omitempty" yaml:"severityThreshold,omitempty"`
	Categories        []string           `json:"categories,omitempty" yaml:"categories,omitempty"`
	// Category is the legacy singular form; merged into Categories at load.
	Category    string             `json:"category,omitempty" yaml:"category,omitempty"`
	Intents     []string           `json:"intents,omitempty" yaml:"intents,omitempty"`
	ContextLink []string           `json:"contextLink,omitempty" yaml:"contextLink,omitempty"`
	Patterns    []string           `json:"patterns,omitempty" yaml:"patterns,omitempty"`
	Tags        []string           `json:"tags,omitempty" yaml:"tags,omitempty"`
	StyleTuning map[string]float64 `json:"styleTuning,omitempty" yaml:"styleTuning,omitempty"`
	BoostSources []string          `json:"boostSources,omitempty" yaml:"boostSources,omitempty"`
	Keywords    []string           `json:"keywords,omitempty" yaml:"keywords,omitempty"`
}

// AllCategories returns Categories with the legacy Category field folded in.
func (a *AdviceItem) AllCategories() []string {
	if a.Category == "" {
		return a.Categories
	}
	for _, c := range a.Categories {
		if c == a.Category {
			return a.Categories
		}
	}
	out := make([]string, 0, len(a.Categories)+1)
	out = append(out, a.Categories...)
	out = append(out, a.Category)
	return out
}

// TriggerWord is one trigger record inside toneTriggerWords.
type TriggerWord struct {
	Text        string   `json:"text"`
	Intensity   float64  `json:"intensity"`
	Type        string   `json:"type"`
	Variants    []string `json:"variants,omitempty"`
	Aho         []string `json:"aho,omitempty"`
	ContextTags []string `json:"contextTags,omitempty"`
}

// ToneTriggerWords carries per-bucket trigger records plus the weight tables
// applied at scan aggregation.
type ToneTriggerWords struct {
	Buckets            map[string][]TriggerWord           `json:"buckets"`
	ContextMultipliers map[string]map[string]float64      `json:"contextMultipliers,omitempty"`
	AttachmentBias     map[string]map[string]float64      `json:"attachmentBias,omitempty"`
	Weights            map[string]map[string]float64      `json:"weights,omitempty"`
}

// TonePattern is a regex or phrase pattern carrying a tone and confidence.
type TonePattern struct {
	Type             string   `json:"type"` // "regex" | "phrase"
	Pattern          string   `json:"pattern"`
	Tone             string   `json:"tone"`
	Confidence       float64  `json:"confidence"`
	SemanticVariants []string `json:"semanticVariants,omitempty"`
	Categories       []string `json:"categories,omitempty"`
}

// IntensityModifier scales emotion intensity when its pattern matches.
type IntensityModifier struct {
	Pattern    string  `json:"pattern"`
	Level      string  `json:"level,omitempty"`
	Multiplier float64 `json:"multiplier"`
	Scope      string  `json:"scope,omitempty"`
}

// SarcasmIndicator is one JSON-driven sarcasm pattern.
type SarcasmIndicator struct {
	Pattern    string  `json:"pattern"`
	Confidence float64 `json:"confidence"`
}

// PhraseEdge is a configured phrase-edge pattern with a category weight.
type PhraseEdge struct {
	Pattern  string  `json:"pattern"`
	Category string  `json:"category"`
	Weight   float64 `json:"weight"`
}

// NegationConfig bundles the negation marker list and multi-token patterns.
type NegationConfig struct {
	Indicators []string `json:"indicators"`
	Patterns   []string `json:"patterns,omitempty"`
}

// ContextPhrase is one weighted phrase inside a context record.
type ContextPhrase struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

// ContextRecord describes one classifiable conversation context.
type ContextRecord struct {
	Key              string             `json:"key"`
	Phrases          []ContextPhrase    `json:"phrases"`
	Tau              float64            `json:"tau,omitempty"`
	Temperature      float64            `json:"temperature,omitempty"`
	ConfidenceBoosts map[string]float64 `json:"confidenceBoosts,omitempty"`
	Severity         map[string]float64 `json:"severity,omitempty"`
	Deescalators     []string           `json:"deescalators,omitempty"`
	Scope            string             `json:"scope,omitempty"`
}

// ContextEngine holds classifier-wide knobs.
type ContextEngine struct {
	StopTokens      []string           `json:"stopTokens,omitempty"`
	GuardThresholds map[string]float64 `json:"guardThresholds,omitempty"`
	ContextScopes   map[string]string  `json:"contextScopes,omitempty"`
}

// ContextClassifier is the contextClassifier blob.
type ContextClassifier struct {
	Contexts []ContextRecord `json:"contexts"`
	Engine   ContextEngine   `json:"engine"`
}

// BucketEligibility guards the clear bucket against weak evidence.
type BucketEligibility struct {
	RequirePhraseLevel bool     `json:"requirePhraseLevel,omitempty"`
	MinNgram           int      `json:"minNgram,omitempty"`
	ExcludeTokens      []string `json:"excludeTokens,omitempty"`
}

// ToneBucket is the base distribution for one tone label.
type ToneBucket struct {
	Base        map[string]float64 `json:"base"`
	Eligibility *BucketEligibility `json:"eligibility,omitempty"`
}

// IntensityShifts moves bucket mass by thresholded intensity band.
type IntensityShifts struct {
	Thresholds struct {
		Low  float64 `json:"low"`
		High float64 `json:"high"`
	} `json:"thresholds"`
	Low  map[string]float64 `json:"low"`
	Med  map[string]float64 `json:"med"`
	High map[string]float64 `json:"high"`
}

// ToneBucketMapping is the toneBucketMapping blob. Context and attachment
// overrides are deltas, not replacements.
type ToneBucketMapping struct {
	ToneBuckets         map[string]ToneBucket                    `json:"toneBuckets"`
	DefaultBucket       string                                   `json:"defaultBucket,omitempty"`
	ContextOverrides    map[string]map[string]map[string]float64 `json:"contextOverrides,omitempty"`
	IntensityShifts     *IntensityShifts                         `json:"intensityShifts,omitempty"`
	AttachmentOverrides map[string]map[string]map[string]float64 `json:"attachmentOverrides,omitempty"`
}

// WeightBounds clips per-context weight deltas.
type WeightBounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// WeightModifiers is the weightModifiers blob.
type WeightModifiers struct {
	ByContext map[string]map[string]float64 `json:"byContext,omitempty"`
	AliasMap  map[string]string             `json:"aliasMap,omitempty"`
	FamilyMap map[string]string             `json:"familyMap,omitempty"`
	Bounds    WeightBounds                  `json:"bounds"`
	Fallbacks struct {
		Order []string `json:"order"`
	} `json:"fallbacks"`
	AdviceRankOverrides struct {
		ByContext map[string]map[string]float64 `json:"byContext,omitempty"`
	} `json:"adviceRankOverrides"`
}

// GuardrailConfig drives the advice contraindication battery.
type GuardrailConfig struct {
	Block                []string `json:"block,omitempty"`
	BlockedPatterns      []string `json:"blockedPatterns,omitempty"`
	Softeners            []string `json:"softeners,omitempty"`
	DeescalationKeywords []string `json:"deescalationKeywords,omitempty"`
	ConfrontationalPatterns []string `json:"confrontationalPatterns,omitempty"`
	GentleLanguage       []string `json:"gentleLanguage,omitempty"`
}

// ProfanityCategory is one severity-tagged profanity group. Targeting "other"
// means the term escalates when aimed at a second person.
type ProfanityCategory struct {
	Severity     string   `json:"severity"` // mild | moderate | strong
	Targeting    string   `json:"targeting,omitempty"`
	TriggerWords []string `json:"triggerWords"`
}

// ProfanityLexicons is the canonical categories[].severity shape. Legacy flat
// blobs are converted at load.
type ProfanityLexicons struct {
	Categories []ProfanityCategory `json:"categories"`
}

// AttachmentOverride adjusts advice selection for one attachment style.
type AttachmentOverride struct {
	CategoryBoost []string           `json:"categoryBoost,omitempty"`
	BoostWeight   float64            `json:"boostWeight,omitempty"`
	ToneRemap     map[string]string  `json:"toneRemap,omitempty"`
	ThresholdShift map[string]float64 `json:"thresholdShift,omitempty"`
}

// AttachmentToneWeights carries per-style category multipliers.
type AttachmentToneWeights struct {
	Overrides map[string]struct {
		CategoryMultipliers map[string]float64 `json:"category_multipliers,omitempty"`
	} `json:"overrides,omitempty"`
}

// ThesaurusCluster groups semantically related terms with a bucket bias.
type ThesaurusCluster struct {
	Name      string             `json:"name"`
	Terms     []string           `json:"terms"`
	Bias      map[string]float64 `json:"bias,omitempty"`
	ContextNudge string          `json:"contextNudge,omitempty"`
}

// SemanticThesaurus is the optional semanticThesaurus blob.
type SemanticThesaurus struct {
	Clusters []ThesaurusCluster `json:"clusters"`
}

// PlattParams are per-context logistic calibration coefficients.
type PlattParams struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// NLIThresholds gate advice by entailment scores for one context.
type NLIThresholds struct {
	EntailMin float64 `json:"entail_min"`
	ContraMax float64 `json:"contra_max"`
}

// EvaluationTones is the evaluationTones blob.
type EvaluationTones struct {
	Platt                map[string]PlattParams   `json:"platt,omitempty"`
	NLI                  map[string]NLIThresholds `json:"nli_thresholds,omitempty"`
	MinConfidence        map[string]float64       `json:"min_confidence,omitempty"`
	MinConfidenceDefault float64                  `json:"min_confidence_default,omitempty"`
}

// LearningFeature is one configured learning signal.
type LearningFeature struct {
	ID              string             `json:"id"`
	Patterns        []string           `json:"patterns,omitempty"`
	Buckets         []string           `json:"buckets,omitempty"`
	Contexts        []string           `json:"contexts,omitempty"`
	Weight          float64            `json:"weight"`
	AttachmentHints map[string]float64 `json:"attachmentHints,omitempty"`
}

// ItemSignal is per-advice-item online feedback.
type ItemSignal struct {
	CTR        float64 `json:"ctr"`
	Rejections int     `json:"rejections"`
	Shows      int     `json:"shows"`
}

// LearningSignals is the learningSignals blob.
type LearningSignals struct {
	Features        []LearningFeature      `json:"features,omitempty"`
	PlattAdjust     map[string]PlattParams `json:"plattAdjust,omitempty"`
	ToneAdjustments map[string]float64     `json:"toneAdjustments,omitempty"`
	ByItem          map[string]ItemSignal  `json:"byItem,omitempty"`
	NoticingsMap    map[string][]string    `json:"noticingsMap,omitempty"`
	Aggregation     struct {
		MaxBonus float64 `json:"maxBonus,omitempty"`
	} `json:"aggregation"`
}

// RetrievalConfig tunes the advice retrieval stage.
type RetrievalConfig struct {
	MMRLambda map[string]float64 `json:"mmrLambda,omitempty"`
	PoolSize  int                `json:"poolSize,omitempty"`
	BM25Limit int                `json:"bm25Limit,omitempty"`
}

// EmotionLexicons maps emotion names to their word lists.
type EmotionLexicons struct {
	Anger     []string `json:"anger,omitempty"`
	Sadness   []string `json:"sadness,omitempty"`
	Anxiety   []string `json:"anxiety,omitempty"`
	Joy       []string `json:"joy,omitempty"`
	Affection []string `json:"affection,omitempty"`
}

// AttachmentHints maps attachment styles to hint phrase lists.
type AttachmentHints map[string][]string
