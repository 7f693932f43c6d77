package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger is a deliberately small, framework-agnostic logging interface.
// Components depend on it rather than on logrus so tests can swap in doubles.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a child logger with persistent fields.
	With(fields ...Field) Logger
}

// Field is a simple key/value pair for structured logging fields.
type Field struct {
	Key   string
	Value interface{}
}

// Options controls how NewLogger builds the logrus backend.
type Options struct {
	// Level is a logrus level name ("warn", "info", "debug", ...). Empty means warn.
	Level string
	// Verbosity raises Level by one step per count.
	Verbosity int
	// Format is "json" (default) or "text".
	Format string
	// Output defaults to os.Stderr. Stdout is reserved for fetched content.
	Output io.Writer
}

// LogrusLogger implements Logger on top of a logrus entry.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogger creates a logrus-backed Logger. component, if non-empty, is
// attached to every entry.
func NewLogger(component string, opts Options) *LogrusLogger {
	l := logrus.New()

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	l.SetOutput(out)

	if strings.EqualFold(opts.Format, "text") {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "time",
				logrus.FieldKeyMsg:  "msg",
			},
		})
	}

	l.SetLevel(ResolveLevel(opts.Level, opts.Verbosity))

	entry := logrus.NewEntry(l)
	if component != "" {
		entry = entry.WithField("component", component)
	}
	return &LogrusLogger{entry: entry}
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() *LogrusLogger {
	return NewLogger("", Options{Output: io.Discard, Level: "panic"})
}

// ValidateLevel returns an error when name is set but is not a logrus level.
func ValidateLevel(name string) error {
	if name == "" {
		return nil
	}
	_, err := logrus.ParseLevel(name)
	return err
}

// ResolveLevel parses name (falling back to warn) and raises it by verbosity
// steps, capped at trace.
func ResolveLevel(name string, verbosity int) logrus.Level {
	level := logrus.WarnLevel
	if name != "" {
		if parsed, err := logrus.ParseLevel(name); err == nil {
			level = parsed
		}
	}
	if verbosity > 0 {
		level += logrus.Level(verbosity)
		if level > logrus.TraceLevel {
			level = logrus.TraceLevel
		}
	}
	return level
}

func (l *LogrusLogger) fields(fields []Field) *logrus.Entry {
	if len(fields) == 0 {
		return l.entry
	}
	m := make(logrus.Fields, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	return l.entry.WithFields(m)
}

func (l *LogrusLogger) Debug(msg string, fields ...Field) {
	l.fields(fields).Debug(msg)
}

func (l *LogrusLogger) Info(msg string, fields ...Field) {
	l.fields(fields).Info(msg)
}

func (l *LogrusLogger) Warn(msg string, fields ...Field) {
	l.fields(fields).Warn(msg)
}

func (l *LogrusLogger) Error(msg string, fields ...Field) {
	l.fields(fields).Error(msg)
}

func (l *LogrusLogger) With(fields ...Field) Logger {
	return &LogrusLogger{entry: l.fields(fields)}
}
