// Package rlog is the project's logging entry point. It wraps a single
// logrus.Logger with source-tagged helpers in the calling convention used
// throughout the teacher's archive backends: Debugf(source, format, args...).
package rlog

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

var logger = logrus.New()

func init() {
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// SetLevel adjusts the minimum level emitted. verbosity follows the CLI's
// repeated -v convention: 0 = warn, 1 = info, 2+ = debug.
func SetLevel(verbosity int) {
	switch {
	case verbosity >= 2:
		logger.SetLevel(logrus.DebugLevel)
	case verbosity == 1:
		logger.SetLevel(logrus.InfoLevel)
	default:
		logger.SetLevel(logrus.WarnLevel)
	}
}

func tag(source any) string {
	if source == nil {
		return "-"
	}
	if s, ok := source.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", source)
}

// Debugf logs at debug level, tagged with source (a path, archive name, or
// nil for untagged messages).
func Debugf(source any, format string, args ...any) {
	logger.WithField("src", tag(source)).Debugf(format, args...)
}

// Infof logs at info level.
func Infof(source any, format string, args ...any) {
	logger.WithField("src", tag(source)).Infof(format, args...)
}

// Errorf logs at error level.
func Errorf(source any, format string, args ...any) {
	logger.WithField("src", tag(source)).Errorf(format, args...)
}
