// Package logging holds the process-wide logger for the tone engine.
// The library stays silent unless the embedding application wires a logger.
package logging

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop()
)

// SetLogger installs the logger used by every package in this module.
// Call once at boot, before building the engine.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	logger = l
	mu.Unlock()
}

// L returns the current logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Named returns a child logger scoped to a component name.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// Development builds a human-readable logger for tests and local runs.
func Development() *zap.Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}
