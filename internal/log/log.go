// Package log wraps logrus so components can take a logger by injection.
package log

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger carries a logrus entry so fields attached with WithFields travel with the logger.
type Logger struct {
	base  *logrus.Logger
	entry *logrus.Entry
}

// Options selects level, formatter and output. Zero value means info, text, stderr.
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// New builds a logger. SST_LOG_LEVEL overrides an empty Level.
func New(opts Options) *Logger {
	l := logrus.New()
	if opts.Output != nil {
		l.SetOutput(opts.Output)
	} else {
		l.SetOutput(os.Stderr)
	}

	switch strings.ToLower(opts.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	default:
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	level := opts.Level
	if level == "" {
		level = os.Getenv("SST_LOG_LEVEL")
	}
	l.SetLevel(ParseLevel(level))

	return &Logger{base: l, entry: logrus.NewEntry(l)}
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *Logger {
	return New(Options{Output: io.Discard, Level: "error"})
}

// ParseLevel maps a level name to logrus, defaulting to info.
func ParseLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// SetLevel changes the level at runtime.
func (l *Logger) SetLevel(level string) {
	l.base.SetLevel(ParseLevel(level))
}

// Level returns the current level.
func (l *Logger) Level() logrus.Level {
	return l.base.GetLevel()
}

// WithFields returns a child logger that adds fields to every line.
func (l *Logger) WithFields(fields logrus.Fields) *Logger {
	return &Logger{base: l.base, entry: l.entry.WithFields(fields)}
}

// WithField is WithFields for a single key.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{base: l.base, entry: l.entry.WithField(key, value)}
}

// WithError attaches err under the "error" key.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{base: l.base, entry: l.entry.WithError(err)}
}

func (l *Logger) Debug(format string, v ...any) { l.entry.Debugf(format, v...) }
func (l *Logger) Info(format string, v ...any)  { l.entry.Infof(format, v...) }
func (l *Logger) Warn(format string, v ...any)  { l.entry.Warnf(format, v...) }
func (l *Logger) Error(format string, v ...any) { l.entry.Errorf(format, v...) }

// Logrus exposes the underlying logger for callers that need a writer, e.g. http.Server.ErrorLog.
func (l *Logger) Logrus() *logrus.Logger {
	return l.base
}
