package timetagger

import (
	"log/slog"
	"os"
)

type Logger interface {
	Info(message string, module string)
	Error(string)
}

type slogLogger struct {
	log *slog.Logger
}

func (l slogLogger) Info(message string, module string) {
	l.log.Info(message, "module", module)
}

func (l slogLogger) Error(message string) {
	l.log.Error(message)
}

var logger Logger = slogLogger{log: slog.New(slog.NewTextHandler(os.Stderr, nil))}

// SetLogger replaces the package logger. A nil logger is ignored.
func SetLogger(l Logger) {
	if l == nil {
		return
	}
	logger = l
}

// Info logs through the package logger. Other packages of the module use it
// so everything ends up in the same place.
func Info(message string, module string) {
	if configuration.Verbosity > 0 {
		logger.Info(message, module)
	}
}

func Error(message string) {
	logger.Error(message)
}
