package tone

import "github.com/unsaidlabs/tonecore/pkg/config"

// Calibrator applies the two-stage per-context Platt transform: the base
// coefficients from evaluationTones and the online adjustment term from
// learningSignals.
type Calibrator struct {
	platt  map[string]config.PlattParams
	adjust map[string]config.PlattParams
}

// NewCalibrator wires the calibration tables.
func NewCalibrator(cfg *config.Provider) *Calibrator {
	return &Calibrator{
		platt:  cfg.EvaluationTones().Platt,
		adjust: cfg.LearningSignals().PlattAdjust,
	}
}

// Calibrate maps a raw confidence through both logistic stages. New users
// (externally flagged) are dampened by 0.7 with a floor of 0.1. Output is
// clamped to [0,1].
func (c *Calibrator) Calibrate(conf float64, contextKey string, isNewUser bool) float64 {
	p := conf
	if params, ok := c.lookup(c.platt, contextKey); ok {
		p = sigmoid(params.A*p + params.B)
	}
	if params, ok := c.lookup(c.adjust, contextKey); ok {
		p = sigmoid(params.A*p + params.B)
	}
	if isNewUser {
		p *= 0.7
		if p < 0.1 {
			p = 0.1
		}
	}
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p
}

func (c *Calibrator) lookup(table map[string]config.PlattParams, contextKey string) (config.PlattParams, bool) {
	if table == nil {
		return config.PlattParams{}, false
	}
	if params, ok := table[contextKey]; ok {
		return params, true
	}
	params, ok := table["general"]
	return params, ok
}
