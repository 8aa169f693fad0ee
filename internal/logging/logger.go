// Package logging provides category-scoped structured logging for starbase.
// Each component gets its own Category; every category logger writes through
// a shared zap.SugaredLogger sink so operational logs stay structured while
// still being easy to filter per subsystem during debugging.
package logging

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Category identifies the subsystem a log line belongs to.
type Category string

const (
	CategoryBoot      Category = "boot"
	CategoryStore     Category = "store"
	CategoryRemote    Category = "remote"
	CategoryEmbedding Category = "embedding"
	CategoryVector    Category = "vector"
	CategoryVectorize Category = "vectorize"
	CategoryGraph     Category = "graph"
	CategorySync      Category = "sync"
	CategorySearch    Category = "search"
	CategoryRecommend Category = "recommend"
	CategoryScheduler Category = "scheduler"
	CategoryAPI       Category = "api"
)

var (
	initOnce sync.Once
	baseMu   sync.RWMutex
	base     *zap.SugaredLogger
	debugOn  bool
)

// Initialize installs the process-wide zap sink and debug-mode flag.
// Safe to call multiple times; the last call wins.
func Initialize(debugMode bool) error {
	var cfg zap.Config
	if debugMode {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	baseMu.Lock()
	base = logger.Sugar()
	debugOn = debugMode
	baseMu.Unlock()
	return nil
}

func ensureInitialized() {
	initOnce.Do(func() {
		baseMu.RLock()
		already := base != nil
		baseMu.RUnlock()
		if !already {
			_ = Initialize(false)
		}
	})
}

func sink() *zap.SugaredLogger {
	ensureInitialized()
	baseMu.RLock()
	defer baseMu.RUnlock()
	return base
}

// Logger is a category-scoped handle over the shared zap sink.
type Logger struct {
	category Category
}

// Get returns the logger for a category. Cheap; callers may call it per-call.
func Get(category Category) *Logger {
	return &Logger{category: category}
}

func (l *Logger) with() *zap.SugaredLogger {
	return sink().With("category", string(l.category))
}

func (l *Logger) Debug(format string, args ...interface{}) {
	baseMu.RLock()
	d := debugOn
	baseMu.RUnlock()
	if !d {
		return
	}
	l.with().Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...interface{})  { l.with().Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.with().Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.with().Errorf(format, args...) }

// Timer measures and logs the duration of an operation at Debug level.
type Timer struct {
	logger *Logger
	op     string
	start  time.Time
}

// StartTimer begins timing op under category; call Stop when done.
func StartTimer(category Category, op string) *Timer {
	return &Timer{logger: Get(category), op: op, start: time.Now()}
}

func (t *Timer) Stop() {
	t.logger.Debug("%s completed in %v", t.op, time.Since(t.start))
}

// Flush flushes the underlying zap sink; call during process shutdown.
func Flush() {
	baseMu.RLock()
	defer baseMu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}
