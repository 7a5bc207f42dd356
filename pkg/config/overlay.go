package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/unsaidlabs/tonecore/pkg/logging"
)

// OverlayLoader merges YAML advice seed files into the corpus before the
// retrieval index is built. Deployments use it to append locale- or
// program-specific advice without editing the main therapyAdvice blob.
type OverlayLoader struct {
	provider    *Provider
	seedDir     string
	loadedFiles map[string]time.Time
}

// adviceSeedFile is the on-disk YAML shape for an overlay file.
type adviceSeedFile struct {
	Version string       `yaml:"version"`
	Items   []AdviceItem `yaml:"items"`
}

// NewOverlayLoader creates an overlay loader for a seed directory.
func NewOverlayLoader(provider *Provider, seedDir string) *OverlayLoader {
	return &OverlayLoader{
		provider:    provider,
		seedDir:     seedDir,
		loadedFiles: make(map[string]time.Time),
	}
}

// LoadAll loads every *.yaml seed file from the configured directory and
// merges the items into the provider's advice corpus. Malformed files are
// skipped with a warn log; a bad file never aborts the rest.
func (l *OverlayLoader) LoadAll() (int, error) {
	files, err := filepath.Glob(filepath.Join(l.seedDir, "*.yaml"))
	if err != nil {
		return 0, fmt.Errorf("list seed files: %w", err)
	}

	log := logging.Named("config.overlay")
	total := 0
	for _, file := range files {
		loaded, err := l.LoadFile(file)
		if err != nil {
			log.Warn("overlay.file.skipped", zap.String("file", file), zap.Error(err))
			continue
		}
		total += loaded
	}
	return total, nil
}

// LoadFile merges a single YAML seed file.
func (l *OverlayLoader) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}

	var file adviceSeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}

	existing := l.provider.TherapyAdvice()
	seen := make(map[string]bool, len(existing))
	for _, item := range existing {
		seen[item.ID] = true
	}

	merged := existing
	loaded := 0
	for _, item := range file.Items {
		if item.Advice == "" || item.TriggerTone == "" {
			continue
		}
		if item.ID == "" {
			item.ID = "seed_" + uuid.NewString()
		}
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		merged = append(merged, item)
		loaded++
	}

	l.provider.SetTherapyAdvice(merged)
	l.loadedFiles[path] = time.Now()
	return loaded, nil
}
