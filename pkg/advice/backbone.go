package advice

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/options"
	"github.com/knights-analytics/hugot/pipelines"
	"go.uber.org/zap"

	"github.com/unsaidlabs/tonecore/pkg/logging"
)

// The semantic backbone is an optional ONNX sentence embedder that replaces
// the 30-dim hand vector for corpus vectors. It is off unless
// ENABLE_SEMANTIC_BACKBONE=1 and a model directory is present; every failure
// degrades back to the feature embedder.

// BackboneEnabled reads the feature flag.
func BackboneEnabled() bool {
	v := os.Getenv("ENABLE_SEMANTIC_BACKBONE")
	return v == "1" || v == "true"
}

// BackboneConfig configures the ONNX embedder.
type BackboneConfig struct {
	ModelPath       string
	OnnxLibraryPath string
	Dimension       int
	Timeout         time.Duration
}

// DefaultBackboneConfig probes the conventional model locations.
func DefaultBackboneConfig() *BackboneConfig {
	path := os.Getenv("TONECORE_EMBEDDING_MODEL_PATH")
	if path == "" {
		path = "./models/all-MiniLM-L6-v2"
	}
	if _, err := os.Stat(filepath.Join(path, "model.onnx")); err != nil {
		return nil
	}
	return &BackboneConfig{
		ModelPath: path,
		Dimension: 384,
		Timeout:   30 * time.Second,
	}
}

// BackboneEmbedder wraps a hugot feature-extraction pipeline.
type BackboneEmbedder struct {
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
	mu       sync.RWMutex
	ready    bool
	dim      int
}

// NewBackboneEmbedder builds the embedder, falling back from the ONNX
// Runtime backend to the pure Go backend.
func NewBackboneEmbedder(cfg *BackboneConfig) (*BackboneEmbedder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("no backbone model available")
	}
	log := logging.Named("advice.backbone")

	var session *hugot.Session
	var err error
	if cfg.OnnxLibraryPath != "" {
		session, err = hugot.NewORTSession(options.WithOnnxLibraryPath(cfg.OnnxLibraryPath))
		if err != nil {
			log.Info("backbone.ort_unavailable", zap.Error(err))
		}
	}
	if session == nil {
		session, err = hugot.NewGoSession()
		if err != nil {
			return nil, fmt.Errorf("create hugot session: %w", err)
		}
	}

	pipeline, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath: cfg.ModelPath,
		Name:      "advice-backbone",
	})
	if err != nil {
		_ = session.Destroy()
		return nil, fmt.Errorf("create embedding pipeline: %w", err)
	}

	e := &BackboneEmbedder{session: session, pipeline: pipeline, ready: true, dim: cfg.Dimension}
	log.Info("backbone.ready", zap.String("model", cfg.ModelPath), zap.Int("dim", cfg.Dimension))
	return e, nil
}

// Dimension returns the model's embedding width.
func (e *BackboneEmbedder) Dimension() int { return e.dim }

// Embed runs one text through the pipeline.
func (e *BackboneEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.ready || e.pipeline == nil {
		return nil, fmt.Errorf("backbone embedder not ready")
	}
	result, err := e.pipeline.RunPipeline([]string{text})
	if err != nil {
		return nil, fmt.Errorf("backbone embedding failed: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return result.Embeddings[0], nil
}

// Close releases the ONNX session.
func (e *BackboneEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ready = false
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}
