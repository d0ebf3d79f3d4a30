// Package log is the process-wide structured logger, a thin adapter over
// logrus with pattern formatting and pluggable appenders.
package log

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsDebugEnabled() bool
}

var (
	mu      sync.RWMutex
	logger  Logger
	closers []io.Closer
)

// GetLogger returns the global logger. Before Init it logs to stderr at
// info level with the default pattern.
func GetLogger() Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		l := logrus.New()
		l.SetOutput(os.Stderr)
		l.SetFormatter(&formatter{pattern: DefaultPattern, time: DefaultTimeLayout})
		logger = &logrusAdapter{entry: logrus.NewEntry(l)}
	}
	return logger
}

// Init replaces the global logger according to cfg. Appenders opened by a
// previous Init are closed.
func Init(cfg *LoggerConfig) error {
	l, c, err := build(cfg)
	if err != nil {
		return err
	}

	mu.Lock()
	old := closers
	logger, closers = l, c
	mu.Unlock()

	for _, c := range old {
		_ = c.Close()
	}
	return nil
}

// Close releases the file appenders of the current logger.
func Close() {
	mu.Lock()
	old := closers
	closers = nil
	mu.Unlock()
	for _, c := range old {
		_ = c.Close()
	}
}
