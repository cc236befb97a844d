// Package klog is the kernel's leveled logger. It wraps logrus the way
// gVisor's pkg/log wraps its own emitter: call sites use short verbs
// (Debugf, Infof, Warningf, Panicf) and never touch the underlying
// logrus.Logger directly.
package klog

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

var std = logrus.New()

func init() {
	std.SetOutput(os.Stderr)
	std.SetLevel(logrus.InfoLevel)
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetJSON switches the output formatter to JSON, for kctl --log-format=json.
func SetJSON(enabled bool) {
	if enabled {
		std.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetDebug enables Debugf output, for kctl --debug.
func SetDebug(enabled bool) {
	if enabled {
		std.SetLevel(logrus.DebugLevel)
		return
	}
	std.SetLevel(logrus.InfoLevel)
}

func Debugf(format string, args ...any)   { std.Debugf(format, args...) }
func Infof(format string, args ...any)    { std.Infof(format, args...) }
func Warningf(format string, args ...any) { std.Warnf(format, args...) }

// Panicf logs at error level then panics, for invariant breaches the
// kernel cannot recover from (stack-overflow magic mismatch, lock
// held/not-held misuse, interrupt-context misuse).
func Panicf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	std.WithField("fatal", true).Error(msg)
	panic(msg)
}

// WithField returns a logrus entry for structured call sites (e.g.
// tagging a log line with a tid or a scenario name).
func WithField(key string, value any) *logrus.Entry {
	return std.WithField(key, value)
}
