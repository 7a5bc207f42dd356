package config

// Hardcoded fallbacks keep the engine functional when a blob file is absent.
// The orchestrator still refuses requests when a critical blob is missing;
// these shapes exist so optional blobs degrade instead of crashing.

func defaultToneTriggerWords() *ToneTriggerWords {
	return &ToneTriggerWords{
		Buckets: map[string][]TriggerWord{
			"alert": {
				{Text: "hate you", Intensity: 0.9, Type: "hostility"},
				{Text: "shut up", Intensity: 0.85, Type: "hostility"},
				{Text: "stupid", Intensity: 0.7, Type: "insult"},
				{Text: "idiot", Intensity: 0.75, Type: "insult"},
				{Text: "your fault", Intensity: 0.6, Type: "blame"},
				{Text: "or else", Intensity: 0.8, Type: "threat"},
			},
			"caution": {
				{Text: "whatever", Intensity: 0.5, Type: "dismissive"},
				{Text: "fine", Intensity: 0.3, Type: "dismissive"},
				{Text: "never listen", Intensity: 0.55, Type: "absolute"},
				{Text: "always do this", Intensity: 0.5, Type: "absolute"},
				{Text: "do not care", Intensity: 0.5, Type: "dismissive"},
			},
			"clear": {
				{Text: "thank you", Intensity: 0.6, Type: "appreciation"},
				{Text: "i appreciate", Intensity: 0.6, Type: "appreciation"},
				{Text: "great job", Intensity: 0.55, Type: "compliment"},
				{Text: "love you", Intensity: 0.7, Type: "affection"},
				{Text: "i hear you", Intensity: 0.5, Type: "validation"},
			},
		},
		ContextMultipliers: map[string]map[string]float64{
			"conflict": {"hostility": 1.3, "insult": 1.25, "threat": 1.4, "dismissive": 1.15},
			"repair":   {"appreciation": 1.2, "validation": 1.25, "hostility": 0.9},
		},
		AttachmentBias: map[string]map[string]float64{
			"anxious":      {"anxious": 1.15, "sad": 1.1},
			"avoidant":     {"frustrated": 1.1},
			"disorganized": {"angry": 1.1, "anxious": 1.1},
		},
	}
}

func defaultNegation() *NegationConfig {
	return &NegationConfig{
		Indicators: []string{
			"not", "no", "never", "none", "nothing", "nobody", "nowhere", "neither",
			"nor", "cannot", "cant", "can't", "dont", "don't", "doesnt", "doesn't",
			"didnt", "didn't", "wont", "won't", "wouldnt", "wouldn't", "shouldnt",
			"shouldn't", "couldnt", "couldn't", "isnt", "isn't", "arent", "aren't",
			"wasnt", "wasn't", "werent", "weren't", "aint", "ain't", "without", "hardly",
		},
	}
}

func defaultIntensityModifiers() []IntensityModifier {
	return []IntensityModifier{
		{Pattern: `\b(so|really|very)\b`, Level: "med", Multiplier: 1.15, Scope: "clause"},
		{Pattern: `\b(extremely|absolutely|completely|totally)\b`, Level: "high", Multiplier: 1.3, Scope: "clause"},
		{Pattern: `\b(kind of|kinda|sort of|a little|slightly)\b`, Level: "low", Multiplier: 0.85, Scope: "clause"},
		{Pattern: `\b(always|never|constantly)\b`, Level: "high", Multiplier: 1.25, Scope: "sentence"},
	}
}

func defaultSarcasmIndicators() []SarcasmIndicator {
	return []SarcasmIndicator{
		{Pattern: `(?i)\b(oh (sure|great|wonderful|perfect))\b`, Confidence: 0.7},
		{Pattern: `(?i)\byeah,? right\b`, Confidence: 0.75},
		{Pattern: `(?i)\b(thanks a lot|nice going|good luck with that)\b`, Confidence: 0.6},
		{Pattern: `(?i)\bas if\b`, Confidence: 0.5},
	}
}

func defaultPhraseEdges() []PhraseEdge {
	return []PhraseEdge{
		{Pattern: `(?i)\bbut\b`, Category: "contrast", Weight: 0.3},
		{Pattern: `(?i)\bif you (really|actually)\b`, Category: "conditional_pressure", Weight: 0.5},
		{Pattern: `(?i)\byou (always|never)\b`, Category: "absolute_blame", Weight: 0.7},
		{Pattern: `(?i)\bwhy (do|did|would) you\b`, Category: "rhetorical_heat", Weight: 0.55},
		{Pattern: `(?i)\bi (guess|suppose)\b`, Category: "withdrawal", Weight: 0.35},
	}
}

func defaultContextClassifier() *ContextClassifier {
	return &ContextClassifier{
		Contexts: []ContextRecord{
			{
				Key: "conflict",
				Phrases: []ContextPhrase{
					{Text: "you always", Weight: 0.8}, {Text: "you never", Weight: 0.8},
					{Text: "shut up", Weight: 0.9}, {Text: "your fault", Weight: 0.85},
					{Text: "fed up", Weight: 0.7}, {Text: "sick of", Weight: 0.7},
				},
				ConfidenceBoosts: map[string]float64{"angry": 0.15, "frustrated": 0.1},
				Severity:         map[string]float64{"alert": 0.1},
				Deescalators:     []string{"sorry", "i understand", "let's talk"},
			},
			{
				Key: "repair",
				Phrases: []ContextPhrase{
					{Text: "i'm sorry", Weight: 0.9}, {Text: "my fault", Weight: 0.7},
					{Text: "can we talk", Weight: 0.75}, {Text: "work on this", Weight: 0.6},
					{Text: "make it right", Weight: 0.7},
				},
				ConfidenceBoosts: map[string]float64{"supportive": 0.1},
			},
			{
				Key: "planning",
				Phrases: []ContextPhrase{
					{Text: "schedule", Weight: 0.7}, {Text: "tomorrow", Weight: 0.4},
					{Text: "pick up", Weight: 0.5}, {Text: "what time", Weight: 0.6},
				},
			},
			{Key: "general", Phrases: nil},
		},
		Engine: ContextEngine{
			StopTokens:      []string{"the", "a", "an", "and", "or", "is", "are", "to", "of", "it", "that", "this"},
			GuardThresholds: map[string]float64{"clear": 0.18, "alert": 0.18},
		},
	}
}

func defaultToneBucketMapping() *ToneBucketMapping {
	m := &ToneBucketMapping{
		ToneBuckets: map[string]ToneBucket{
			"neutral":    {Base: map[string]float64{"clear": 0.70, "caution": 0.22, "alert": 0.08}},
			"positive":   {Base: map[string]float64{"clear": 0.85, "caution": 0.12, "alert": 0.03}},
			"supportive": {Base: map[string]float64{"clear": 0.88, "caution": 0.10, "alert": 0.02}},
			"anxious":    {Base: map[string]float64{"clear": 0.35, "caution": 0.50, "alert": 0.15}},
			"sad":        {Base: map[string]float64{"clear": 0.40, "caution": 0.45, "alert": 0.15}},
			"frustrated": {Base: map[string]float64{"clear": 0.20, "caution": 0.55, "alert": 0.25}},
			"angry":      {Base: map[string]float64{"clear": 0.08, "caution": 0.37, "alert": 0.55}},
			"assertive":  {Base: map[string]float64{"clear": 0.55, "caution": 0.35, "alert": 0.10}},
		},
		DefaultBucket: "neutral",
		ContextOverrides: map[string]map[string]map[string]float64{
			"conflict": {
				"frustrated": {"alert": 0.10, "clear": -0.10},
				"angry":      {"alert": 0.10, "clear": -0.05},
			},
			"repair": {
				"sad":     {"caution": -0.10, "clear": 0.10},
				"anxious": {"caution": -0.05, "clear": 0.05},
			},
		},
		AttachmentOverrides: map[string]map[string]map[string]float64{
			"anxious": {
				"sad": {"caution": 0.08, "alert": -0.05},
			},
			"avoidant": {
				"sad":     {"alert": 0.12, "clear": -0.08},
				"anxious": {"alert": 0.10, "clear": -0.06},
			},
			"disorganized": {
				"sad":        {"alert": 0.12},
				"anxious":    {"alert": 0.12},
				"frustrated": {"alert": 0.10},
			},
		},
	}
	shifts := &IntensityShifts{
		Low:  map[string]float64{"clear": 0.05, "alert": -0.05},
		Med:  map[string]float64{},
		High: map[string]float64{"alert": 0.10, "clear": -0.08},
	}
	shifts.Thresholds.Low = 0.25
	shifts.Thresholds.High = 0.65
	m.IntensityShifts = shifts

	clear := m.ToneBuckets["neutral"]
	clear.Eligibility = &BucketEligibility{
		MinNgram:      2,
		ExcludeTokens: []string{"ok", "okay", "fine", "sure", "yes", "no"},
	}
	m.ToneBuckets["neutral"] = clear
	return m
}

func defaultWeightModifiers() *WeightModifiers {
	wm := &WeightModifiers{
		AliasMap:  map[string]string{"severityCollab": "severityCollaboration"},
		FamilyMap: map[string]string{"conflict_escalation": "conflict", "repair_attempt": "repair"},
		Bounds:    WeightBounds{Min: -0.5, Max: 0.5},
	}
	wm.Fallbacks.Order = []string{"exact", "alias", "family", "general", "default"}
	return wm
}

func defaultProfanityLexicons() *ProfanityLexicons {
	return &ProfanityLexicons{
		Categories: []ProfanityCategory{
			{Severity: "mild", Targeting: "any", TriggerWords: []string{"damn", "hell", "crap", "sucks"}},
			{Severity: "moderate", Targeting: "other", TriggerWords: []string{"jerk", "idiot", "stupid", "pathetic", "loser"}},
			{Severity: "strong", Targeting: "other", TriggerWords: []string{"bastard", "asshole", "bitch", "screw you"}},
		},
	}
}

func defaultGuardrailConfig() *GuardrailConfig {
	return &GuardrailConfig{
		Block:                []string{"you should just leave", "give up on"},
		BlockedPatterns:      []string{`(?i)\byou should\b`, `(?i)\bjust get over it\b`},
		Softeners:            []string{"maybe", "perhaps", "you might", "consider", "when you're ready", "it could help"},
		DeescalationKeywords: []string{"pause", "breathe", "break", "calm", "step back", "ground"},
		ConfrontationalPatterns: []string{`(?i)\btell (him|her|them) off\b`, `(?i)\bstand up to\b`, `(?i)\bdemand\b`},
		GentleLanguage:       []string{"gently", "softly", "kindly", "with care", "notice"},
	}
}

func defaultEvaluationTones() *EvaluationTones {
	return &EvaluationTones{
		Platt: map[string]PlattParams{
			"general":  {A: 1.0, B: 0.0},
			"conflict": {A: 1.2, B: -0.1},
		},
		NLI: map[string]NLIThresholds{
			"general":  {EntailMin: 0.55, ContraMax: 0.20},
			"conflict": {EntailMin: 0.60, ContraMax: 0.15},
		},
		MinConfidenceDefault: 0.55,
	}
}

func defaultEmotionLexicons() *EmotionLexicons {
	return &EmotionLexicons{
		Anger:     []string{"angry", "furious", "hate", "rage", "mad", "pissed", "livid"},
		Sadness:   []string{"sad", "hurt", "cry", "lonely", "miserable", "heartbroken", "lost"},
		Anxiety:   []string{"worried", "anxious", "scared", "nervous", "afraid", "panic", "stress"},
		Joy:       []string{"happy", "glad", "excited", "wonderful", "great", "love", "amazing"},
		Affection: []string{"love", "care", "miss", "cherish", "adore", "appreciate"},
	}
}

func defaultAttachmentHints() AttachmentHints {
	return AttachmentHints{
		"anxious":      {"do you still", "are we ok", "please answer", "why haven't you", "need to know"},
		"avoidant":     {"i need space", "whatever works", "doesn't matter", "i'm fine", "drop it"},
		"disorganized": {"i don't know what i want", "come here", "go away", "forget it no wait"},
		"secure":       {"let's figure this out", "i hear you", "that makes sense", "thank you for"},
	}
}

func defaultTonePatterns() []TonePattern {
	return []TonePattern{
		{Type: "regex", Pattern: `(?i)\bi (hate|can't stand) (you|this)\b`, Tone: "alert", Confidence: 0.9},
		{Type: "regex", Pattern: `(?i)\b(i'?ll|i will|i'?m gonna) (hurt|ruin|report|expose|fire|destroy)\b`, Tone: "alert", Confidence: 0.95},
		{Type: "phrase", Pattern: "thank you so much", Tone: "clear", Confidence: 0.85, SemanticVariants: []string{"thanks so much", "thank u so much"}},
		{Type: "phrase", Pattern: "i appreciate you", Tone: "clear", Confidence: 0.8, SemanticVariants: []string{"appreciate it"}},
		{Type: "phrase", Pattern: "we need to talk", Tone: "caution", Confidence: 0.6},
	}
}

func defaultRetrievalConfig() *RetrievalConfig {
	return &RetrievalConfig{
		MMRLambda: map[string]float64{"general": 0.7, "conflict": 0.6},
		PoolSize:  24,
		BM25Limit: 50,
	}
}
