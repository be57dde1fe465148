// Package monitoring holds the process-wide logger hooks and the Prometheus
// collectors for the ranging pipeline.
package monitoring

import (
	"io"

	log "github.com/sirupsen/logrus"
)

// Logger is the process logger. Binaries configure it once at startup with
// Configure; packages log through Logf, Debugf and Warnf.
var Logger = log.StandardLogger()

// Logf is the package-level diagnostic logger. It defaults to the logrus
// standard logger at info level but may be replaced by SetLogger. Tests or
// production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = Logger.Infof

// Debugf logs high-volume detail such as poll misses and dropped frames.
var Debugf func(format string, v ...interface{}) = Logger.Debugf

// Warnf logs recoverable failures.
var Warnf func(format string, v ...interface{}) = Logger.Warnf

// SetLogger replaces all package log hooks with f. Passing nil will set a
// no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	Logf = f
	Debugf = f
	Warnf = f
}

// Configure sets the text formatter with full timestamps, the output and the
// level on Logger.
func Configure(out io.Writer, debug bool) {
	Logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if out != nil {
		Logger.SetOutput(out)
	}
	if debug {
		Logger.SetLevel(log.DebugLevel)
	} else {
		Logger.SetLevel(log.InfoLevel)
	}
}
