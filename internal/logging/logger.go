// Package logging provides config-driven categorized logging for pipetter.
// Console output honours the configured level; when debug_mode is on, every category is
// also written at debug level to a single file under the configured log directory.
// Until Initialize is called every logger is a silent no-op.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot       Category = "boot"       // Boot/initialization, config
	CategoryProtocol   Category = "protocol"   // Orchestrator: compounds, troughs, tip budget
	CategoryExecutor   Category = "executor"   // Batch execution and tip recovery
	CategoryDeck       Category = "deck"       // Deck layout, carriers, labware
	CategoryBackend    Category = "backend"    // Liquid-handling backend commands
	CategoryVisualizer Category = "visualizer" // Frame capture and GIF rendering
	CategoryInput      Category = "input"      // CSV input loading
	CategoryArtifacts  Category = "artifacts"  // Artifact publishing
	CategoryMetrics    Category = "metrics"    // Metrics export
	CategoryIncubator  Category = "incubator"  // Incubator utilities
)

// DefaultFileName is the debug log written under Config.Dir.
const DefaultFileName = "pipetter_debug.log"

// Config mirrors the relevant parts of config.LoggingConfig
// to avoid circular imports
type Config struct {
	Level      string          // console level: debug, info, warn, error
	DebugMode  bool            // write the debug file
	Dir        string          // directory for the debug file
	File       string          // file name, DefaultFileName when empty
	JSONFormat bool            // JSON lines in the debug file
	Categories map[string]bool // per-category toggles, nil = all enabled
	Console    io.Writer       // console sink, os.Stderr when nil
}

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu       sync.RWMutex
	base     = zap.NewNop()
	config   Config
	loggers  = make(map[Category]*Logger)
	logFile  *os.File
	nopSugar = zap.NewNop().Sugar()
)

// Initialize sets up the console core and, in debug mode, the debug file core.
// Calling it again replaces the previous setup.
func Initialize(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	closeLocked()

	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderConfig()), zapcore.AddSync(console), parseLevel(cfg.Level)),
	}

	if cfg.DebugMode && cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create logs directory: %w", err)
		}
		name := cfg.File
		if name == "" {
			name = DefaultFileName
		}
		path := filepath.Join(cfg.Dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		logFile = f

		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		var enc zapcore.Encoder
		if cfg.JSONFormat {
			enc = zapcore.NewJSONEncoder(encCfg)
		} else {
			enc = zapcore.NewConsoleEncoder(encCfg)
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(f), zapcore.DebugLevel))
	}

	config = cfg
	base = zap.New(zapcore.NewTee(cores...))

	boot := getLocked(CategoryBoot)
	boot.Debug("logging initialized level=%s debug_mode=%v dir=%s", levelName(cfg.Level), cfg.DebugMode, cfg.Dir)
	return nil
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		LevelKey:         "level",
		NameKey:          "logger",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: " - ",
	}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func levelName(level string) string {
	return parseLevel(level).String()
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabledLocked(category)
}

func categoryEnabledLocked(category Category) bool {
	if config.Categories == nil {
		return true
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true // Enable by default if not specified
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if the category is disabled.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	return getLocked(category)
}

func getLocked(category Category) *Logger {
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{category: category, sugar: nopSugar}
	if categoryEnabledLocked(category) {
		l.sugar = base.Named(string(category)).Sugar()
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// WithContext returns a logger that attaches the given key-value context to every entry.
// Keys are emitted in sorted order.
func (l *Logger) WithContext(ctx map[string]interface{}) *Logger {
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	kv := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		kv = append(kv, k, ctx[k])
	}
	return &Logger{category: l.category, sugar: l.sugar.With(kv...)}
}

// CloseAll flushes and closes the debug file (call at shutdown).
// Loggers fall back to no-ops afterwards.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
}

func closeLocked() {
	_ = base.Sync()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	base = zap.NewNop()
	config = Config{}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) {
	Get(CategoryBoot).Debug(format, args...)
}

// Protocol logs to the protocol category
func Protocol(format string, args ...interface{}) {
	Get(CategoryProtocol).Info(format, args...)
}

// ProtocolDebug logs debug to the protocol category
func ProtocolDebug(format string, args ...interface{}) {
	Get(CategoryProtocol).Debug(format, args...)
}

// Executor logs to the executor category
func Executor(format string, args ...interface{}) {
	Get(CategoryExecutor).Info(format, args...)
}

// ExecutorDebug logs debug to the executor category
func ExecutorDebug(format string, args ...interface{}) {
	Get(CategoryExecutor).Debug(format, args...)
}

// Deck logs to the deck category
func Deck(format string, args ...interface{}) {
	Get(CategoryDeck).Info(format, args...)
}

// DeckDebug logs debug to the deck category
func DeckDebug(format string, args ...interface{}) {
	Get(CategoryDeck).Debug(format, args...)
}

// Backend logs to the backend category
func Backend(format string, args ...interface{}) {
	Get(CategoryBackend).Info(format, args...)
}

// BackendDebug logs debug to the backend category
func BackendDebug(format string, args ...interface{}) {
	Get(CategoryBackend).Debug(format, args...)
}

// Visualizer logs to the visualizer category
func Visualizer(format string, args ...interface{}) {
	Get(CategoryVisualizer).Info(format, args...)
}

// VisualizerDebug logs debug to the visualizer category
func VisualizerDebug(format string, args ...interface{}) {
	Get(CategoryVisualizer).Debug(format, args...)
}

// Input logs to the input category
func Input(format string, args ...interface{}) {
	Get(CategoryInput).Info(format, args...)
}

// Artifacts logs to the artifacts category
func Artifacts(format string, args ...interface{}) {
	Get(CategoryArtifacts).Info(format, args...)
}

// Metrics logs to the metrics category
func Metrics(format string, args ...interface{}) {
	Get(CategoryMetrics).Info(format, args...)
}

// IncubatorDebug logs debug to the incubator category
func IncubatorDebug(format string, args ...interface{}) {
	Get(CategoryIncubator).Debug(format, args...)
}

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}
