package tone

import (
	"strings"

	"github.com/unsaidlabs/tonecore/pkg/config"
	"github.com/unsaidlabs/tonecore/pkg/nlp"
	"github.com/unsaidlabs/tonecore/pkg/scan"
)

// Buckets in fixed tie-break order.
var bucketOrder = []string{"clear", "caution", "alert"}

// Dist is a bucket distribution with its precomputed primary so consumers
// never recompute the argmax.
type Dist struct {
	Primary string             `json:"primary"`
	Dist    map[string]float64 `json:"dist"`
}

// MapInput is everything the bucket mapper consumes for one decision.
type MapInput struct {
	ToneLabel       string
	ContextKey      string
	AttachmentStyle string
	Intensity       float64
	ContextSeverity map[string]float64
	Meta            *MetaClassifier
	Text            string
	// PureBase skips every override and guard; diagnostics only.
	PureBase bool
}

const (
	clearEvidenceCap   = 0.01
	overshadowMinAlert = 0.25
	overshadowRatio    = 0.5
	preferCautionFloor = 0.18
)

// Mapper converts a tone label plus context into the bucket distribution.
type Mapper struct {
	cfg     *config.Provider
	scanner *scan.Scanner
	mapping *config.ToneBucketMapping
}

// NewMapper wires the mapper. scanner may be nil; eligibility guards that
// need token evidence are then skipped.
func NewMapper(cfg *config.Provider, scanner *scan.Scanner) *Mapper {
	return &Mapper{cfg: cfg, scanner: scanner, mapping: cfg.ToneBucketMapping()}
}

// Map runs the full override and guard stack. The distribution is
// renormalized after the overrides and biases, after the intensity shift,
// after the meta nudge and after the guards, so the
// result always sums to 1 with non-negative components.
func (m *Mapper) Map(in MapInput) Dist {
	dist := m.baseFor(in.ToneLabel)
	if in.PureBase {
		normalize(dist)
		return finalize(dist)
	}

	// Context overrides are deltas when the key is present in both.
	if ctxOv, ok := m.mapping.ContextOverrides[in.ContextKey]; ok {
		if deltas, ok := ctxOv[in.ToneLabel]; ok {
			applyDeltas(dist, deltas)
		}
	}
	for bucket, delta := range in.ContextSeverity {
		dist[bucket] += delta
	}

	if attOv, ok := m.mapping.AttachmentOverrides[in.AttachmentStyle]; ok {
		if deltas, ok := attOv[in.ToneLabel]; ok {
			applyDeltas(dist, deltas)
		}
	}

	if in.Text != "" {
		m.applySemanticBias(dist, in.Text)
	}
	normalize(dist)

	m.applyIntensityShifts(dist, in.Intensity)
	normalize(dist)

	if in.Meta != nil {
		if in.Meta.PAlert > 0.5 {
			dist["alert"] += 0.25 * (in.Meta.PAlert - 0.5)
		}
		if in.Meta.PCaution > 0.5 {
			dist["caution"] += 0.2 * (in.Meta.PCaution - 0.5)
		}
		normalize(dist)
	}

	if in.Text != "" && m.scanner != nil {
		m.applyEligibilityGuards(dist, in.Text, in.ContextKey)
	}
	m.applyOvershadow(dist)
	m.applyPreferCaution(dist)
	normalize(dist)

	return finalize(dist)
}

func (m *Mapper) baseFor(toneLabel string) map[string]float64 {
	tb, ok := m.mapping.ToneBuckets[toneLabel]
	if !ok {
		tb, ok = m.mapping.ToneBuckets[m.mapping.DefaultBucket]
	}
	base := map[string]float64{"clear": 0.5, "caution": 0.3, "alert": 0.2}
	if ok {
		for _, bucket := range bucketOrder {
			if v, present := tb.Base[bucket]; present {
				base[bucket] = v
			}
		}
	}
	return base
}

func applyDeltas(dist map[string]float64, deltas map[string]float64) {
	for bucket, d := range deltas {
		dist[bucket] += d
		if dist[bucket] < 0 {
			dist[bucket] = 0
		}
	}
}

// applySemanticBias nudges the distribution for thesaurus clusters matched
// in the text, bounded to ±0.06 per cluster.
func (m *Mapper) applySemanticBias(dist map[string]float64, text string) {
	th := m.cfg.SemanticThesaurus()
	if th == nil {
		return
	}
	lower := strings.ToLower(text)
	for _, cluster := range th.Clusters {
		matched := false
		for _, term := range cluster.Terms {
			if strings.Contains(lower, strings.ToLower(term)) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		for bucket, bias := range cluster.Bias {
			if bias > 0.06 {
				bias = 0.06
			}
			if bias < -0.06 {
				bias = -0.06
			}
			dist[bucket] += bias
			if dist[bucket] < 0 {
				dist[bucket] = 0
			}
		}
	}
}

func (m *Mapper) applyIntensityShifts(dist map[string]float64, intensity float64) {
	shifts := m.mapping.IntensityShifts
	if shifts == nil {
		return
	}
	var band map[string]float64
	switch {
	case intensity < shifts.Thresholds.Low:
		band = shifts.Low
	case intensity >= shifts.Thresholds.High:
		band = shifts.High
	default:
		band = shifts.Med
	}
	applyDeltas(dist, band)
}

// applyEligibilityGuards caps clear when its only evidence is generic
// stop-token matter.
func (m *Mapper) applyEligibilityGuards(dist map[string]float64, text, contextKey string) {
	elig := m.clearEligibility()
	if elig == nil {
		return
	}
	if !elig.RequirePhraseLevel && elig.MinNgram == 0 && len(elig.ExcludeTokens) == 0 {
		return
	}

	hits := m.scanner.Scan(text, contextKey)
	ev := scan.Evidence(hits)["clear"]

	weak := false
	if ev == nil {
		weak = true
	} else {
		excluded := make(map[string]bool, len(elig.ExcludeTokens))
		for _, t := range elig.ExcludeTokens {
			excluded[nlp.NormalizeText(t)] = true
		}
		onlyExcluded := true
		for _, term := range ev.Terms {
			if !excluded[term] {
				onlyExcluded = false
				break
			}
		}
		switch {
		case onlyExcluded:
			weak = true
		case elig.MinNgram > 0 && ev.MaxNgram < elig.MinNgram:
			weak = true
		case elig.RequirePhraseLevel && ev.MaxNgram < 2:
			weak = true
		}
	}
	if weak && dist["clear"] > clearEvidenceCap {
		dist["clear"] = clearEvidenceCap
	}
}

func (m *Mapper) clearEligibility() *config.BucketEligibility {
	for _, tb := range m.mapping.ToneBuckets {
		if tb.Eligibility != nil {
			return tb.Eligibility
		}
	}
	return nil
}

// applyOvershadow caps clear when alert dominates it.
func (m *Mapper) applyOvershadow(dist map[string]float64) {
	if dist["alert"] >= overshadowMinAlert && dist["clear"] < dist["alert"]*overshadowRatio {
		limit := dist["alert"] * 0.25
		if dist["clear"] > limit {
			dist["clear"] = limit
		}
	}
}

// applyPreferCaution bleeds mass from clear into caution when both clear
// and alert carry weight; ambiguity should read as caution.
func (m *Mapper) applyPreferCaution(dist map[string]float64) {
	if dist["clear"] > preferCautionFloor && dist["alert"] > preferCautionFloor {
		bleed := minF(0.15, dist["clear"]*0.25)
		dist["clear"] -= bleed
		dist["caution"] += bleed
	}
}

func normalize(dist map[string]float64) {
	var sum float64
	for _, bucket := range bucketOrder {
		if dist[bucket] < 0 {
			dist[bucket] = 0
		}
		sum += dist[bucket]
	}
	if sum == 0 {
		dist["clear"], dist["caution"], dist["alert"] = 1.0/3, 1.0/3, 1.0/3
		return
	}
	for _, bucket := range bucketOrder {
		dist[bucket] /= sum
	}
}

// finalize picks the primary with the fixed clear < caution < alert
// tie-break.
func finalize(dist map[string]float64) Dist {
	primary := "clear"
	for _, bucket := range bucketOrder[1:] {
		if dist[bucket] > dist[primary] {
			primary = bucket
		}
	}
	return Dist{Primary: primary, Dist: dist}
}
