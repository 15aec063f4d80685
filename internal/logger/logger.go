package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the structured logger shared by the pipeline components.
// Output is JSON on stdout; an unknown level falls back to info.
func New(level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)
	return l
}
