// Package logging provides categorized file-based logging for tomato.
// Each category writes to its own file under .tomato/logs/ so a noisy
// subsystem (LLM calls, analyzer output) never drowns out the review loop.
// Backed by zap; before Initialize is called all helpers are no-ops.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a log stream. One file per category.
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup, config, workspace layout
	CategoryReview    Category = "review"    // Convergence controller decisions
	CategoryScheduler Category = "scheduler" // Batch scheduling, concurrency
	CategoryAnalyzer  Category = "analyzer"  // Diagnostic source invocations
	CategoryKnowledge Category = "knowledge" // Guideline retrieval, KB ingest
	CategoryEmbedding Category = "embedding" // Embedding engine calls
	CategoryRepair    Category = "repair"    // Repair executor, LLM prompts
	CategoryVerify    Category = "verify"    // Verification runs and deltas
	CategoryStore     Category = "store"     // SQLite operations
	CategoryWatch     Category = "watch"     // Filesystem watch mode
)

var (
	mu      sync.RWMutex
	loggers map[Category]*zap.SugaredLogger
	logsDir string
	debug   bool
	nop     = zap.NewNop().Sugar()
)

// Initialize sets up the log directory and builds one logger per category.
// Safe to call once at startup; helpers called earlier silently drop.
func Initialize(workspace string, debugMode bool) error {
	if workspace == "" {
		return fmt.Errorf("workspace path required")
	}

	dir := filepath.Join(workspace, ".tomato", "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	logsDir = dir
	debug = debugMode
	loggers = make(map[Category]*zap.SugaredLogger)
	return nil
}

// Close flushes and releases all category loggers.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		_ = l.Sync()
	}
	loggers = nil
	logsDir = ""
}

// Get returns the logger for a category, creating it on first use.
func Get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if loggers == nil {
		mu.RUnlock()
		return nop
	}
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if loggers == nil {
		return nop
	}
	if l, ok := loggers[cat]; ok {
		return l
	}

	l, err := build(cat)
	if err != nil {
		loggers[cat] = nop
		return nop
	}
	loggers[cat] = l
	return l
}

func build(cat Category) (*zap.SugaredLogger, error) {
	path := filepath.Join(logsDir, string(cat)+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(f), level)
	return zap.New(core).Named(string(cat)).Sugar(), nil
}

// Convenience helpers in the dominant call style: one line per subsystem.

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Infof(format, args...) }
func Review(format string, args ...interface{})    { Get(CategoryReview).Infof(format, args...) }
func Scheduler(format string, args ...interface{}) { Get(CategoryScheduler).Infof(format, args...) }
func Analyzer(format string, args ...interface{})  { Get(CategoryAnalyzer).Infof(format, args...) }
func Knowledge(format string, args ...interface{}) { Get(CategoryKnowledge).Infof(format, args...) }
func Embedding(format string, args ...interface{}) { Get(CategoryEmbedding).Infof(format, args...) }
func Repair(format string, args ...interface{})    { Get(CategoryRepair).Infof(format, args...) }
func Verify(format string, args ...interface{})    { Get(CategoryVerify).Infof(format, args...) }
func Watch(format string, args ...interface{})     { Get(CategoryWatch).Infof(format, args...) }

func ReviewWarn(format string, args ...interface{})    { Get(CategoryReview).Warnf(format, args...) }
func AnalyzerWarn(format string, args ...interface{})  { Get(CategoryAnalyzer).Warnf(format, args...) }
func KnowledgeWarn(format string, args ...interface{}) { Get(CategoryKnowledge).Warnf(format, args...) }
func RepairWarn(format string, args ...interface{})    { Get(CategoryRepair).Warnf(format, args...) }
func VerifyWarn(format string, args ...interface{})    { Get(CategoryVerify).Warnf(format, args...) }
func StoreError(format string, args ...interface{})    { Get(CategoryStore).Errorf(format, args...) }
