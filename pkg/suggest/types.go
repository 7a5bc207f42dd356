// Package suggest is the top-level orchestrator: it composes the NLP
// analyzer, the tone pipeline, and advice retrieval into the two entry
// points callers use — full tone analysis and advanced suggestions — plus
// the live-typing surface.
package suggest

import (
	"github.com/unsaidlabs/tonecore/pkg/advice"
)

// ToneLabel is the tone classification plus its calibrated confidence.
type ToneLabel struct {
	Classification string  `json:"classification"`
	Confidence     float64 `json:"confidence"`
}

// Emotions is the surface emotion vector of the response contract.
type Emotions struct {
	Joy        float64 `json:"joy"`
	Anger      float64 `json:"anger"`
	Fear       float64 `json:"fear"`
	Sadness    float64 `json:"sadness"`
	Analytical float64 `json:"analytical"`
	Confident  float64 `json:"confident"`
	Tentative  float64 `json:"tentative"`
}

// LinguisticFeatures summarizes style markers for the caller.
type LinguisticFeatures struct {
	FormalityLevel            float64  `json:"formality_level"`
	EmotionalComplexity       float64  `json:"emotional_complexity"`
	Assertiveness             float64  `json:"assertiveness"`
	EmpathyIndicators         []string `json:"empathy_indicators"`
	PotentialMisunderstandings []string `json:"potential_misunderstandings"`
}

// ContextAnalysis reports appropriateness for the declared context.
type ContextAnalysis struct {
	AppropriatenessScore float64  `json:"appropriateness_score"`
	RelationshipImpact   string   `json:"relationship_impact"` // positive | neutral | negative
	SuggestedAdjustments []string `json:"suggested_adjustments"`
}

// AttachmentInsights is included when the caller asks for it.
type AttachmentInsights struct {
	Style          string   `json:"style"`
	Confidence     float64  `json:"confidence"`
	Observations   []string `json:"observations,omitempty"`
}

// ToneResponse is the full analysis contract.
type ToneResponse struct {
	Tone               ToneLabel          `json:"tone"`
	Emotions           Emotions           `json:"emotions"`
	Intensity          float64            `json:"intensity"`
	SentimentScore     float64            `json:"sentiment_score"`
	LinguisticFeatures LinguisticFeatures `json:"linguistic_features"`
	ContextAnalysis    ContextAnalysis    `json:"context_analysis"`
	AttachmentInsights *AttachmentInsights `json:"attachment_insights,omitempty"`
	UITone             string             `json:"ui_tone"`
	UIDistribution     map[string]float64 `json:"ui_distribution"`
}

// AttachmentEstimate is the sibling subsystem's rolling estimate, consumed
// as numeric input only.
type AttachmentEstimate struct {
	Primary        string             `json:"primary"`
	Secondary      string             `json:"secondary,omitempty"`
	Confidence     float64            `json:"confidence"`
	Scores         map[string]float64 `json:"scores"`
	DaysObserved   int                `json:"daysObserved"`
	TotalSignals   int                `json:"totalSignals"`
	WindowComplete bool               `json:"windowComplete"`
}

// UserProfile is the caller-owned profile slice the ranker reads.
type UserProfile struct {
	CategoryPrefs map[string]float64 `json:"categoryPrefs,omitempty"`
	PremiumTier   bool               `json:"premiumTier,omitempty"`
	Attachment    *AttachmentEstimate `json:"attachment,omitempty"`
}

// AnalyzeOptions parameterize AnalyzeTone.
type AnalyzeOptions struct {
	Context                   string
	AttachmentStyle           string
	IncludeAttachmentInsights bool
	IsNewUser                 bool
	// PureBaseBuckets selects the diagnostics bucket mapping that skips
	// every override and guard.
	PureBaseBuckets bool
	FieldID         string
}

// SuggestionOptions parameterize GenerateAdvancedSuggestions.
type SuggestionOptions struct {
	MaxSuggestions   int
	AttachmentStyle  string
	UserID           string
	FullToneAnalysis *ToneResponse
	CoordinatorIntents []string
}

// SuggestionAnalysis is the suggestions contract; it echoes the bucket
// distribution the ranker actually used.
type SuggestionAnalysis struct {
	Text           string              `json:"text"`
	Context        string              `json:"context"`
	AttachmentStyle string             `json:"attachment_style"`
	UITone         string              `json:"ui_tone"`
	UIDistribution map[string]float64  `json:"ui_distribution"`
	Suggestions    []advice.Suggestion `json:"suggestions"`
	Cached         bool                `json:"cached"`
}
