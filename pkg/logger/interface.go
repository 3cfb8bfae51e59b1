package logger

import "github.com/rs/zerolog"

// Logger defines the logging interface used across hlsvault.
// Every event carries the component that produced it and optional structured data.
type Logger interface {
	Debug(message string, component string, data map[string]interface{})
	Info(message string, component string, data map[string]interface{})
	Warn(message string, component string, data map[string]interface{})
	Error(message string, component string, data map[string]interface{})
	Fatal(message string, component string, data map[string]interface{})
}

// DefaultLogger forwards to the package-level zerolog logger configured by Init.
type DefaultLogger struct{}

// NewLogger creates a new instance of the default logger
func NewLogger() Logger {
	return &DefaultLogger{}
}

func (l *DefaultLogger) Debug(message string, component string, data map[string]interface{}) {
	Debug(message, component, data)
}

func (l *DefaultLogger) Info(message string, component string, data map[string]interface{}) {
	Info(message, component, data)
}

func (l *DefaultLogger) Warn(message string, component string, data map[string]interface{}) {
	Warn(message, component, data)
}

func (l *DefaultLogger) Error(message string, component string, data map[string]interface{}) {
	Error(message, component, data)
}

func (l *DefaultLogger) Fatal(message string, component string, data map[string]interface{}) {
	Fatal(message, component, data)
}

// ZeroLogger adapts an explicit zerolog.Logger to the Logger interface.
type ZeroLogger struct {
	zl zerolog.Logger
}

// New wraps zl. Useful for tests that want to capture output in a buffer.
func New(zl zerolog.Logger) Logger {
	return &ZeroLogger{zl: zl}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &ZeroLogger{zl: zerolog.Nop()}
}

func (l *ZeroLogger) Debug(message string, component string, data map[string]interface{}) {
	write(l.zl, DebugLevel, message, component, data)
}

func (l *ZeroLogger) Info(message string, component string, data map[string]interface{}) {
	write(l.zl, InfoLevel, message, component, data)
}

func (l *ZeroLogger) Warn(message string, component string, data map[string]interface{}) {
	write(l.zl, WarnLevel, message, component, data)
}

func (l *ZeroLogger) Error(message string, component string, data map[string]interface{}) {
	write(l.zl, ErrorLevel, message, component, data)
}

func (l *ZeroLogger) Fatal(message string, component string, data map[string]interface{}) {
	write(l.zl, FatalLevel, message, component, data)
}
