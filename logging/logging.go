// Package logging holds the process-wide logrus logger.
package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log is the shared logger. Components take a logrus.FieldLogger and are
// handed Log (or an entry derived from it) by the commands that wire them.
var Log = logrus.New()

func init() {
	Log.SetOutput(os.Stderr)
}

// SetLevel sets the log level by name.
func SetLevel(level string) error {
	// trace and panic are not used
	switch strings.ToLower(level) {
	case "debug":
		Log.SetLevel(logrus.DebugLevel)
	case "info", "":
		Log.SetLevel(logrus.InfoLevel)
	case "warning", "warn":
		Log.SetLevel(logrus.WarnLevel)
	case "error":
		Log.SetLevel(logrus.ErrorLevel)
	case "fatal":
		Log.SetLevel(logrus.FatalLevel)
	default:
		return fmt.Errorf("bad log level %q", level)
	}
	return nil
}

// SetFormat switches between "text" and "json" output.
func SetFormat(format string) error {
	switch strings.ToLower(format) {
	case "text", "":
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		Log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("bad log format %q", format)
	}
	return nil
}

// For returns an entry tagged with a component name.
func For(component string) *logrus.Entry {
	return Log.WithField("component", component)
}
