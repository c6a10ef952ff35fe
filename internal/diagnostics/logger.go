package diagnostics

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LogLevel represents the severity level of a log message
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelNotice  LogLevel = "notice"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

var levelRank = map[LogLevel]int{
	LogLevelDebug:   0,
	LogLevelInfo:    1,
	LogLevelNotice:  2,
	LogLevelWarning: 3,
	LogLevelError:   4,
}

// shouldEmitLog reports whether a message at msgLevel passes the configured
// threshold.
func shouldEmitLog(threshold, msgLevel LogLevel) bool {
	return levelRank[msgLevel] >= levelRank[threshold]
}

// Logger writes leveled, timestamped lines to a writer (stderr by default),
// gated by a minimum level. It is used by the CLI for module-resolver
// tracing under --debug.
type Logger struct {
	mu    sync.Mutex
	w     io.Writer
	level LogLevel
}

// NewLogger creates a Logger at the given threshold; a nil writer means
// stderr.
func NewLogger(w io.Writer, level LogLevel) *Logger {
	if w == nil {
		w = os.Stderr
	}
	if _, ok := levelRank[level]; !ok {
		level = LogLevelInfo
	}
	return &Logger{w: w, level: level}
}

// SetLevel adjusts the threshold at runtime.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := levelRank[level]; ok {
		l.level = level
	}
}

func (l *Logger) log(level LogLevel, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !shouldEmitLog(l.level, level) {
		return
	}
	fmt.Fprintf(l.w, "%s [%s] %s\n",
		time.Now().Format(time.RFC3339), level, fmt.Sprintf(format, args...))
}

func (l *Logger) Debugf(format string, args ...any) { l.log(LogLevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(LogLevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LogLevelWarning, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log(LogLevelError, format, args...) }
