// Package logging provides per-component debug logging. All components of one
// process append to the same session-scoped file under ~/.parley/logs/, so a
// single log shows the interleaving of session, adapter, and store activity.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger writes structured, timestamped entries for one component.
//
// All levels write unconditionally; there is no level filtering.
type Logger struct {
	sessionID string
	component string
	file      *os.File
	logger    *log.Logger

	mu        sync.Mutex
	closeOnce sync.Once
}

var (
	sessionID     string
	sessionIDOnce sync.Once

	logDir   string
	initOnce sync.Once
	initErr  error
)

// SessionID returns the process-wide logging session id, creating it on first
// use.
func SessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

func initLogDirectory() error {
	initOnce.Do(func() {
		home, err := os.UserHomeDir()
		if err != nil {
			initErr = fmt.Errorf("failed to get home directory: %w", err)
			return
		}
		logDir = filepath.Join(home, ".parley", "logs")
		if err := os.MkdirAll(logDir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
		}
	})
	return initErr
}

// New creates a logger for a component, writing to
// ~/.parley/logs/<session-id>-parley.log. If the file cannot be opened the
// returned logger falls back to stderr and the error reports why.
func New(component string) (*Logger, error) {
	if err := initLogDirectory(); err != nil {
		return fallback(component, err), err
	}

	path := filepath.Join(logDir, fmt.Sprintf("%s-parley.log", SessionID()))
	// Append mode: every component of the process shares the file.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		err = fmt.Errorf("failed to open log file: %w", err)
		return fallback(component, err), err
	}

	return &Logger{
		sessionID: SessionID(),
		component: component,
		file:      file,
		logger:    log.New(file, "", 0),
	}, nil
}

func fallback(component string, err error) *Logger {
	l := log.New(os.Stderr, fmt.Sprintf("[%s] ", component), log.LstdFlags)
	l.Printf("WARNING: file logging unavailable, using stderr: %v", err)
	return &Logger{
		sessionID: SessionID(),
		component: component,
		logger:    l,
	}
}

func (l *Logger) write(level, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	l.logger.Printf("[%s] [%s] [%s] %s", ts, l.component, level, fmt.Sprintf(format, v...))
}

// Debugf logs a debug-level message.
func (l *Logger) Debugf(format string, v ...interface{}) { l.write("DEBUG", format, v...) }

// Infof logs an info-level message.
func (l *Logger) Infof(format string, v ...interface{}) { l.write("INFO", format, v...) }

// Warnf logs a warning-level message.
func (l *Logger) Warnf(format string, v ...interface{}) { l.write("WARN", format, v...) }

// Errorf logs an error-level message.
func (l *Logger) Errorf(format string, v ...interface{}) { l.write("ERROR", format, v...) }

// Close closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

// Directory returns the log directory, creating it if needed.
func Directory() (string, error) {
	if err := initLogDirectory(); err != nil {
		return "", err
	}
	return logDir, nil
}
