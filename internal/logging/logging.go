package logging

import (
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Init configures the standard logger and returns a dedicated one for
// components that carry their own FieldLogger.
func Init(level string, w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil || level == "" {
		lvl = log.InfoLevel
	}
	formatter := &log.JSONFormatter{
		FieldMap: log.FieldMap{
			log.FieldKeyTime: "@timestamp",
			log.FieldKeyMsg:  "message",
		},
	}
	log.SetFormatter(formatter)
	log.SetOutput(w)
	log.SetLevel(lvl)

	logger := log.New()
	logger.SetFormatter(formatter)
	logger.SetOutput(w)
	logger.SetLevel(lvl)
	return logger
}

// Discard returns a logger that drops everything. Tests use it.
func Discard() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}
