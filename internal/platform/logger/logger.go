// Package logger provides operator-facing logging for the chat logger.
// Everything the bot itself does (connects, retries, teardown) is traceable
// through this; the activity log is a separate stream owned by logfile.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Logger provides leveled logging with context.
type Logger struct {
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
}

// NewLogger creates a new logger instance.
func NewLogger() *Logger {
	return &Logger{
		infoLogger:  log.New(os.Stdout, "[CHATLOG-INFO] ", log.Ldate|log.Ltime|log.Lshortfile),
		warnLogger:  log.New(os.Stdout, "[CHATLOG-WARN] ", log.Ldate|log.Ltime|log.Lshortfile),
		errorLogger: log.New(os.Stderr, "[CHATLOG-ERROR] ", log.Ldate|log.Ltime|log.Lshortfile),
	}
}

// NewWithWriter sends every level to w. Tests use it to capture or discard output.
func NewWithWriter(w io.Writer) *Logger {
	return &Logger{
		infoLogger:  log.New(w, "[CHATLOG-INFO] ", 0),
		warnLogger:  log.New(w, "[CHATLOG-WARN] ", 0),
		errorLogger: log.New(w, "[CHATLOG-ERROR] ", 0),
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWithWriter(io.Discard)
}

// Info logs informational messages.
func (l *Logger) Info(msg string) {
	l.infoLogger.Output(2, msg)
}

// Infof logs a formatted informational message.
func (l *Logger) Infof(format string, args ...any) {
	l.infoLogger.Output(2, fmt.Sprintf(format, args...))
}

// Warn logs warning messages.
func (l *Logger) Warn(msg string) {
	l.warnLogger.Output(2, msg)
}

// Warnf logs a formatted warning.
func (l *Logger) Warnf(format string, args ...any) {
	l.warnLogger.Output(2, fmt.Sprintf(format, args...))
}

// Error logs error messages.
func (l *Logger) Error(msg string) {
	l.errorLogger.Output(2, msg)
}

// Errorf logs a formatted error.
func (l *Logger) Errorf(format string, args ...any) {
	l.errorLogger.Output(2, fmt.Sprintf(format, args...))
}

// Event logs a session lifecycle event.
func (l *Logger) Event(eventType string, actor string, details string) {
	l.infoLogger.Output(2, fmt.Sprintf("[EVENT:%s] Actor:%s | %s", eventType, actor, details))
}
