package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process-wide logger. format is "json" or "text"
// (anything else falls back to text).
func NewLogger(format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(logrus.InfoLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	return logger
}
