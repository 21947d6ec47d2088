// Package logging provides the structured logger shared by laminar's
// writer and reader processes, built on sirupsen/logrus.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logrus.Logger writing JSON to stderr, with level parsed
// from levelName (falling back to info on an empty or unknown value).
func New(levelName string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// WithComponent returns a field logger tagging every entry with
// component, so writer and reader logs interleave cleanly when run from
// the same supervisor.
func WithComponent(log *logrus.Logger, component string) logrus.FieldLogger {
	return log.WithField("component", component)
}
