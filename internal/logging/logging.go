// Package logging provides categorized debug logging for factorm.
// The library is silent by default: until Enable is called every logger is a
// no-op, so applications embedding factorm pay nothing for instrumentation.
// Logging is backed by zap; categories map to named child loggers.
package logging

import (
	"sync"

	"go.uber.org/zap"
)

// Category identifies a subsystem for log filtering.
type Category string

const (
	CategorySchema Category = "schema" // schema definition, registry, overlap lint
	CategoryUnify  Category = "unify"  // symbol -> fact unification
	CategoryStore  Category = "store"  // fact store mutation, index maintenance
	CategoryQuery  Category = "query"  // query planning and execution
)

// Logger wraps a zap sugared logger for one category. A nil-backed Logger is
// a no-op, which is the state before Enable is called.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	root    *zap.Logger
	loggers = make(map[Category]*Logger)
)

// Enable turns on logging, routing all categories through the given zap
// logger. Passing nil disables logging again.
func Enable(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	root = l
	loggers = make(map[Category]*Logger)
}

// Enabled reports whether a backing logger has been installed.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return root != nil
}

// Get returns the logger for a category. Safe to call from any goroutine.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	r := root
	mu.RUnlock()

	if r == nil {
		return &Logger{category: category}
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{
		category: category,
		sugar:    r.Named(string(category)).WithOptions(zap.AddCallerSkip(1)).Sugar(),
	}
	loggers[category] = l
	return l
}

// Debug logs at debug level with printf formatting.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l == nil || l.sugar == nil {
		return
	}
	l.sugar.Debugf(format, args...)
}

// Info logs at info level with printf formatting.
func (l *Logger) Info(format string, args ...interface{}) {
	if l == nil || l.sugar == nil {
		return
	}
	l.sugar.Infof(format, args...)
}

// Warn logs at warn level with printf formatting.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l == nil || l.sugar == nil {
		return
	}
	l.sugar.Warnf(format, args...)
}

// Error logs at error level with printf formatting.
func (l *Logger) Error(format string, args ...interface{}) {
	if l == nil || l.sugar == nil {
		return
	}
	l.sugar.Errorf(format, args...)
}

// Convenience helpers, one pair per category.

func Schema(format string, args ...interface{}) { Get(CategorySchema).Info(format, args...) }

func SchemaDebug(format string, args ...interface{}) { Get(CategorySchema).Debug(format, args...) }

func SchemaWarn(format string, args ...interface{}) { Get(CategorySchema).Warn(format, args...) }

func Unify(format string, args ...interface{}) { Get(CategoryUnify).Info(format, args...) }

func UnifyDebug(format string, args ...interface{}) { Get(CategoryUnify).Debug(format, args...) }

func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }

func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

func Query(format string, args ...interface{}) { Get(CategoryQuery).Info(format, args...) }

func QueryDebug(format string, args ...interface{}) { Get(CategoryQuery).Debug(format, args...) }
