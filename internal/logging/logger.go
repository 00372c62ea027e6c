// Package logging provides category-keyed structured logging for the
// gateway, backed by zap the way cmd/gateway wires a production zap
// logger into the rest of the runtime. Each Category gets its own
// *Logger view over the same underlying sink, tagged with a "category"
// field, so a single log stream stays greppable/queryable per
// component without per-category files.
package logging

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies which gateway component a log line came from.
type Category string

const (
	CategoryBoot      Category = "boot"
	CategoryRegistry  Category = "registry"
	CategoryDispatch  Category = "dispatch"
	CategorySkills    Category = "skills"
	CategoryMemory    Category = "memory"
	CategoryRouter    Category = "router"
	CategoryKnowledge Category = "knowledge"
	CategoryStdio     Category = "stdio"
	CategoryHTTP      Category = "http"
	CategoryFeedback  Category = "feedback"
	CategoryHealth    Category = "health"
	CategoryStore     Category = "store"
	CategoryEmbedding Category = "embedding"
	CategoryTools     Category = "tools"
	CategoryBrowser   Category = "browser"
	CategoryContext   Category = "context"
	CategoryWorld     Category = "world"
	CategoryResearch  Category = "research"
)

var (
	base   *zap.Logger
	mu     sync.RWMutex
	loggers = make(map[Category]*Logger)
)

// Initialize wires the package to a concrete zap logger. Call once at
// process startup (cmd/gateway's main). Before Initialize is called,
// every Logger is a safe no-op so packages can log unconditionally at
// init time.
func Initialize(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	loggers = make(map[Category]*Logger)
}

// Default builds a production zap.Logger suitable for Initialize when
// no caller-supplied logger is available (tests, simple CLIs).
func Default(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	return cfg.Build()
}

// Logger is a category-scoped view over the shared zap sink.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

// Get returns the Logger for category, constructing and caching it on
// first use.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	var l *Logger
	if base == nil {
		l = &Logger{category: category}
	} else {
		l = &Logger{category: category, sugar: base.With(zap.String("category", string(category))).Sugar()}
	}
	loggers[category] = l
	return l
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Errorf(format, args...)
}

// Timer measures and logs the duration of an operation.
type Timer struct {
	category  Category
	operation string
	start     time.Time
}

// StartTimer begins timing operation within category.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, operation: operation, start: time.Now()}
}

// Stop logs the elapsed duration at debug level and returns it.
func (t *Timer) Stop() time.Duration {
	d := time.Since(t.start)
	Get(t.category).Debug("%s completed in %s", t.operation, d)
	return d
}

// StopWithThreshold logs at warn level instead of debug when the
// elapsed duration meets or exceeds threshold - used to flag slow
// tool calls and retrieval scans without logging every fast one.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	d := time.Since(t.start)
	if d >= threshold {
		Get(t.category).Warn("%s took %s (threshold %s)", t.operation, d, threshold)
	} else {
		Get(t.category).Debug("%s completed in %s", t.operation, d)
	}
	return d
}

// CloseAll flushes the underlying zap sink. Call once at shutdown.
func CloseAll() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}

// legacy convenience wrappers kept for packages adapted from the
// teacher that log against a fixed category rather than calling
// Get(category) directly.

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{})  { Get(CategoryBoot).Debug(format, args...) }
func BootError(format string, args ...interface{})  { Get(CategoryBoot).Error(format, args...) }
func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }
func Embedding(format string, args ...interface{})      { Get(CategoryEmbedding).Info(format, args...) }
func EmbeddingDebug(format string, args ...interface{}) { Get(CategoryEmbedding).Debug(format, args...) }
func ToolsDebug(format string, args ...interface{}) { Get(CategoryTools).Debug(format, args...) }
func Browser(format string, args ...interface{})      { Get(CategoryBrowser).Info(format, args...) }
func BrowserDebug(format string, args ...interface{})  { Get(CategoryBrowser).Debug(format, args...) }
func Researcher(format string, args ...interface{})     { Get(CategoryResearch).Info(format, args...) }
func ResearcherDebug(format string, args ...interface{}) { Get(CategoryResearch).Debug(format, args...) }
func ResearcherWarn(format string, args ...interface{})  { Get(CategoryResearch).Warn(format, args...) }
func WorldDebug(format string, args ...interface{}) { Get(CategoryWorld).Debug(format, args...) }
func VirtualStore(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func VirtualStoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

var _ = fmt.Sprintf // keep fmt import if future formatting helpers are added here
