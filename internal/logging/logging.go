// Package logging provides categorized structured logging for congresstwin,
// built on zap. Each subsystem logs through a named child logger so output
// can be filtered per category; the CLI sets the level once at startup.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a subsystem's logger.
type Category string

const (
	CategoryBoot       Category = "boot"
	CategoryConfig     Category = "config"
	CategoryStore      Category = "store"
	CategoryService    Category = "service"
	CategoryGraph      Category = "graph"
	CategoryHistory    Category = "history"
	CategorySimulation Category = "simulation"
	CategoryMarkov     Category = "markov"
	CategoryImpact     Category = "impact"
	CategoryIntel      Category = "intel"
	CategoryLocks      Category = "locks"
	CategoryEvents     Category = "events"
	CategoryAttention  Category = "attention"
	CategoryCost       Category = "cost"
	CategoryCLI        Category = "cli"
)

var (
	mu      sync.RWMutex
	root    = zap.NewNop()
	sugared = map[Category]*zap.SugaredLogger{}
)

// Init installs the process-wide root logger. verbose selects the
// development config at debug level; otherwise the production config at info.
// Safe to call more than once; later calls replace earlier loggers.
func Init(verbose bool) error {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.DisableStacktrace = true
	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	Use(logger)
	return nil
}

// Use installs an externally built root logger. Tests pass zaptest or a nop.
func Use(logger *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	root = logger
	sugared = map[Category]*zap.SugaredLogger{}
}

// Get returns the named logger for a category.
func Get(c Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := sugared[c]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := sugared[c]; ok {
		return l
	}
	l := root.Named(string(c)).WithOptions(zap.AddCallerSkip(0)).Sugar()
	sugared[c] = l
	return l
}

// Sync flushes buffered output. Called on CLI exit.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}
