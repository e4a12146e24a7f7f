// Package logging provides config-driven categorized file-based logging for pytestmaker.
// Logs are written to .pytestmaker/logs/ with separate files per category.
// Logging is controlled by logging.debug_mode in .pytestmaker/config.yaml - when false, no logs are written.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, config resolution
	CategorySpec     Category = "spec"     // Specification loading
	CategoryReflect  Category = "reflect"  // Python source parsing, import reflection
	CategoryResolve  Category = "resolve"  // Entry resolution
	CategoryEmit     Category = "emit"     // Code emission
	CategoryPipeline Category = "pipeline" // End-to-end generation runs
	CategoryRunner   Category = "runner"   // Prompting and pytest execution
	CategoryWatch    Category = "watch"    // Filesystem watch loop
)

// StateDir is the per-workspace directory holding config and logs.
const StateDir = ".pytestmaker"

// loggingConfig mirrors the relevant parts of config.LoggingConfig
// to avoid circular imports
type loggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
}

// configFile structure for reading .pytestmaker/config.yaml
type configFile struct {
	Logging loggingConfig `yaml:"logging"`
}

// StructuredLogEntry represents a JSON log line.
type StructuredLogEntry struct {
	Timestamp int64                  `json:"ts"`  // Unix milliseconds
	Category  string                 `json:"cat"` // Log category
	Level     string                 `json:"lvl"` // debug/info/warn/error
	Message   string                 `json:"msg"`
	RequestID string                 `json:"req,omitempty"` // Run correlation ID
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger wraps a standard logger with category and file output
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	workspace string
	config    loggingConfig
	configMu  sync.RWMutex
	logLevel  int // 0=debug, 1=info, 2=warn, 3=error
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory and loads config.
// Should be called once at startup with the workspace path.
func Initialize(ws string) error {
	if ws == "" {
		return fmt.Errorf("workspace path required")
	}

	workspace = ws
	logsDir = filepath.Join(workspace, StateDir, "logs")

	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not load config: %v\n", err)
		configMu.Lock()
		config.DebugMode = false
		configMu.Unlock()
	}

	if !IsDebugMode() {
		return nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	bootLogger := Get(CategoryBoot)
	bootLogger.Info("=== pytestmaker logging initialized ===")
	bootLogger.Info("Workspace: %s", workspace)
	bootLogger.Info("Logs directory: %s", logsDir)
	bootLogger.Info("Log level: %s", config.Level)

	return nil
}

// loadConfig reads the logging section from .pytestmaker/config.yaml
func loadConfig() error {
	configMu.Lock()
	defer configMu.Unlock()

	configPath := filepath.Join(workspace, StateDir, "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// No config = no logging
			config = loggingConfig{}
			return nil
		}
		return err
	}

	var cf configFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	config = cf.Logging
	logLevel = parseLevel(config.Level)
	return nil
}

func parseLevel(level string) int {
	switch level {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetLevel overrides the configured level (used by the -v flag).
func SetLevel(level string) {
	configMu.Lock()
	defer configMu.Unlock()
	config.Level = level
	logLevel = parseLevel(level)
}

// IsDebugMode returns whether file logging is enabled
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.DebugMode {
		return false
	}
	if config.Categories == nil {
		return true
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) || logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

func jsonFormat() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.JSONFormat
}

func (l *Logger) write(level string, requestID string, fields map[string]interface{}, msg string) {
	if jsonFormat() {
		entry := StructuredLogEntry{
			Timestamp: time.Now().UnixMilli(),
			Category:  string(l.category),
			Level:     level,
			Message:   msg,
			RequestID: requestID,
			Fields:    fields,
		}
		if data, err := json.Marshal(entry); err == nil {
			l.logger.Printf("%s", data)
			return
		}
	}
	switch {
	case requestID != "" && len(fields) > 0:
		l.logger.Printf("[%s] [req:%s] %s | %v", level, requestID, msg, fields)
	case requestID != "":
		l.logger.Printf("[%s] [req:%s] %s", level, requestID, msg)
	case len(fields) > 0:
		l.logger.Printf("[%s] %s | %v", level, msg, fields)
	default:
		l.logger.Printf("[%s] %s", level, msg)
	}
}

// Debug logs a debug message (only if level <= debug)
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.write("DEBUG", "", nil, fmt.Sprintf(format, args...))
}

// Info logs an informational message (only if level <= info)
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.write("INFO", "", nil, fmt.Sprintf(format, args...))
}

// Warn logs a warning message (only if level <= warn)
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.write("WARN", "", nil, fmt.Sprintf(format, args...))
}

// Error logs an error message (always logged if logger exists)
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.write("ERROR", "", nil, fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files (call at shutdown)
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }
func BootWarn(format string, args ...interface{})  { Get(CategoryBoot).Warn(format, args...) }

func Spec(format string, args ...interface{})      { Get(CategorySpec).Info(format, args...) }
func SpecDebug(format string, args ...interface{}) { Get(CategorySpec).Debug(format, args...) }
func SpecWarn(format string, args ...interface{})  { Get(CategorySpec).Warn(format, args...) }
func SpecError(format string, args ...interface{}) { Get(CategorySpec).Error(format, args...) }

func Reflect(format string, args ...interface{})      { Get(CategoryReflect).Info(format, args...) }
func ReflectDebug(format string, args ...interface{}) { Get(CategoryReflect).Debug(format, args...) }
func ReflectError(format string, args ...interface{}) { Get(CategoryReflect).Error(format, args...) }

func Resolve(format string, args ...interface{})      { Get(CategoryResolve).Info(format, args...) }
func ResolveDebug(format string, args ...interface{}) { Get(CategoryResolve).Debug(format, args...) }
func ResolveWarn(format string, args ...interface{})  { Get(CategoryResolve).Warn(format, args...) }
func ResolveError(format string, args ...interface{}) { Get(CategoryResolve).Error(format, args...) }

func Emit(format string, args ...interface{})      { Get(CategoryEmit).Info(format, args...) }
func EmitDebug(format string, args ...interface{}) { Get(CategoryEmit).Debug(format, args...) }

func Pipeline(format string, args ...interface{})      { Get(CategoryPipeline).Info(format, args...) }
func PipelineDebug(format string, args ...interface{}) { Get(CategoryPipeline).Debug(format, args...) }
func PipelineError(format string, args ...interface{}) { Get(CategoryPipeline).Error(format, args...) }

func Runner(format string, args ...interface{})      { Get(CategoryRunner).Info(format, args...) }
func RunnerDebug(format string, args ...interface{}) { Get(CategoryRunner).Debug(format, args...) }
func RunnerWarn(format string, args ...interface{})  { Get(CategoryRunner).Warn(format, args...) }
func RunnerError(format string, args ...interface{}) { Get(CategoryRunner).Error(format, args...) }

func Watch(format string, args ...interface{})      { Get(CategoryWatch).Info(format, args...) }
func WatchDebug(format string, args ...interface{}) { Get(CategoryWatch).Debug(format, args...) }
func WatchError(format string, args ...interface{}) { Get(CategoryWatch).Error(format, args...) }

// =============================================================================
// REQUEST ID TRACING - correlates all log lines of one generation run
// =============================================================================

// RequestLogger provides run-scoped logging with a correlation ID
type RequestLogger struct {
	logger    *Logger
	requestID string
	fields    map[string]interface{}
}

// WithRequestID creates a run-scoped logger
func WithRequestID(category Category, requestID string) *RequestLogger {
	return &RequestLogger{
		logger:    Get(category),
		requestID: requestID,
		fields:    make(map[string]interface{}),
	}
}

// WithField adds a field to the request logger
func (r *RequestLogger) WithField(key string, value interface{}) *RequestLogger {
	r.fields[key] = value
	return r
}

func (r *RequestLogger) Debug(format string, args ...interface{}) {
	if r.logger.logger == nil || logLevel > LevelDebug {
		return
	}
	r.logger.write("DEBUG", r.requestID, r.fields, fmt.Sprintf(format, args...))
}

func (r *RequestLogger) Info(format string, args ...interface{}) {
	if r.logger.logger == nil || logLevel > LevelInfo {
		return
	}
	r.logger.write("INFO", r.requestID, r.fields, fmt.Sprintf(format, args...))
}

func (r *RequestLogger) Warn(format string, args ...interface{}) {
	if r.logger.logger == nil || logLevel > LevelWarn {
		return
	}
	r.logger.write("WARN", r.requestID, r.fields, fmt.Sprintf(format, args...))
}

func (r *RequestLogger) Error(format string, args ...interface{}) {
	if r.logger.logger == nil {
		return
	}
	r.logger.write("ERROR", r.requestID, r.fields, fmt.Sprintf(format, args...))
}

// =============================================================================
// TIMING HELPERS
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

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
