// Package logging wraps a standard library logger with levels and a
// component name.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

type Level int

const (
	ERROR Level = iota
	WARNING
	INFO
	DEBUG
)

// ParseLevel accepts error, warn(ing), info and debug.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return ERROR, nil
	case "warn", "warning":
		return WARNING, nil
	case "", "info":
		return INFO, nil
	case "debug":
		return DEBUG, nil
	}
	return INFO, fmt.Errorf("invalid log level %q", s)
}

// Logger prints "LEVEL | component | message" lines.
type Logger struct {
	name   string
	level  Level
	logger *log.Logger
}

// New wraps out. A nil out writes to stderr.
func New(name string, out *log.Logger) *Logger {
	if out == nil {
		out = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Logger{name: name, level: INFO, logger: out}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return New("", log.New(io.Discard, "", 0))
}

// Named returns a logger for another component sharing the same output.
func (l *Logger) Named(name string) *Logger {
	return &Logger{name: name, level: l.level, logger: l.logger}
}

func (l *Logger) SetLevel(level Level) {
	l.level = level
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.level >= DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *Logger) Infof(format string, args ...interface{}) {
	if l.level >= INFO {
		l.log("INFO", format, args...)
	}
}

func (l *Logger) Warningf(format string, args ...interface{}) {
	if l.level >= WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log("ERROR", format, args...)
}

func (l *Logger) log(levelStr string, format string, args ...interface{}) {
	l.logger.Printf("%-5s | %-15s | %s", levelStr, l.name, fmt.Sprintf(format, args...))
}
