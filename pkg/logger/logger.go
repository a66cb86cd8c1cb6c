// Package logger provides structured logging for the marketplace services.
// It wraps zerolog behind a small surface so components never depend on the
// logging backend directly.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger is a component-scoped structured logger.
type Logger struct {
	zl zerolog.Logger
}

// New creates a logger writing to w at the given level.
func New(w io.Writer, component string, level zerolog.Level) *Logger {
	zl := zerolog.New(w).Level(level).With().
		Timestamp().
		Str("component", component).
		Logger()
	return &Logger{zl: zl}
}

// NewDefault creates a logger for the component writing to stderr. The level
// is taken from LOG_LEVEL (debug, info, warn, error); info when unset.
func NewDefault(component string) *Logger {
	return New(os.Stderr, component, levelFromEnv())
}

func levelFromEnv() zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithError returns a logger that annotates entries with err.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zl: l.zl.With().Err(err).Logger()}
}

// WithField returns a logger that annotates entries with key=value.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zl.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zl.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zl.Error().Msg(msg) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.zl.Debug().Msgf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.zl.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.zl.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.zl.Error().Msgf(format, args...) }
