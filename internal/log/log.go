// Package log provides the diagnostic logger used across pcapdump.
//
// Diagnostics go to stderr and optional rotating files. Frame and summary
// output is not logged; it belongs to the console package.
package log

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})

	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

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

	IsTraceEnabled() bool
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

var (
	mu     sync.RWMutex
	logger Logger = newDiscardLogger()

	// appenders of the logger installed by Init, closed when it is replaced
	appenders *MultiWriter
)

// GetLogger returns the process logger. Before Init it discards everything.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Init replaces the process logger according to cfg and closes the
// appenders of the logger it replaces.
func Init(cfg *LoggerConfig) error {
	l, err := newLogrusAdapter(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	prev := appenders
	logger, appenders = l, l.out
	mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			l.WithError(err).Warn("failed to close previous log appenders")
		}
	}
	return nil
}

func newDiscardLogger() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return &logrusAdapter{entry: logrus.NewEntry(l)}
}
