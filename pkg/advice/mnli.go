package advice

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/options"
	"github.com/knights-analytics/hugot/pipelines"
	"go.uber.org/zap"

	"github.com/unsaidlabs/tonecore/pkg/logging"
)

// MNLIModel scores premise/hypothesis pairs through a local cross-encoder
// (an MNLI-finetuned ONNX model) via hugot. The pair is fed as one sequence
// with the separator the model was trained on; the output label order comes
// from the model's own config, so ORT label ordering differences are handled
// by name, never by position.
type MNLIModel struct {
	session  *hugot.Session
	pipeline *pipelines.TextClassificationPipeline
	mu       sync.RWMutex
	ready    bool
}

// MNLIConfig locates the cross-encoder model.
type MNLIConfig struct {
	ModelPath       string
	OnnxLibraryPath string
}

// DefaultMNLIConfig probes the conventional model directory.
func DefaultMNLIConfig() *MNLIConfig {
	path := os.Getenv("TONECORE_NLI_MODEL_PATH")
	if path == "" {
		path = "./models/nli-deberta-v3-xsmall"
	}
	if _, err := os.Stat(filepath.Join(path, "model.onnx")); err != nil {
		return nil
	}
	return &MNLIConfig{ModelPath: path}
}

// NewMNLIModel builds the cross-encoder, preferring the ONNX Runtime backend
// and falling back to the pure Go backend.
func NewMNLIModel(cfg *MNLIConfig) (*MNLIModel, error) {
	if cfg == nil {
		return nil, fmt.Errorf("no nli model available")
	}
	log := logging.Named("advice.mnli")

	var session *hugot.Session
	var err error
	if cfg.OnnxLibraryPath != "" {
		session, err = hugot.NewORTSession(options.WithOnnxLibraryPath(cfg.OnnxLibraryPath))
		if err != nil {
			log.Info("mnli.ort_unavailable", zap.Error(err))
		}
	}
	if session == nil {
		session, err = hugot.NewGoSession()
		if err != nil {
			return nil, fmt.Errorf("create hugot session: %w", err)
		}
	}

	pipeline, err := hugot.NewPipeline(session, hugot.TextClassificationConfig{
		ModelPath: cfg.ModelPath,
		Name:      "advice-nli",
	})
	if err != nil {
		_ = session.Destroy()
		return nil, fmt.Errorf("create nli pipeline: %w", err)
	}

	log.Info("mnli.ready", zap.String("model", cfg.ModelPath))
	return &MNLIModel{session: session, pipeline: pipeline, ready: true}, nil
}

// ScorePair implements EntailmentModel.
func (m *MNLIModel) ScorePair(ctx context.Context, premise, hypothesis string) (NLIScores, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.ready || m.pipeline == nil {
		return NLIScores{}, fmt.Errorf("mnli model not ready")
	}
	if err := ctx.Err(); err != nil {
		return NLIScores{}, err
	}

	input := premise + " </s></s> " + hypothesis
	result, err := m.pipeline.RunPipeline([]string{input})
	if err != nil {
		return NLIScores{}, fmt.Errorf("nli inference failed: %w", err)
	}
	if len(result.ClassificationOutputs) == 0 || len(result.ClassificationOutputs[0]) == 0 {
		return NLIScores{}, fmt.Errorf("nli returned no outputs")
	}

	var scores NLIScores
	for _, out := range result.ClassificationOutputs[0] {
		switch strings.ToLower(out.Label) {
		case "entailment", "entail":
			scores.Entail = float64(out.Score)
		case "contradiction", "contra":
			scores.Contra = float64(out.Score)
		case "neutral":
			scores.Neutral = float64(out.Score)
		}
	}
	return scores, nil
}

// Close releases the session.
func (m *MNLIModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = false
	if m.session != nil {
		return m.session.Destroy()
	}
	return nil
}
