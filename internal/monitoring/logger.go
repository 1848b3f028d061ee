// Package monitoring carries the process-wide diagnostics: the swappable
// package logger and the prometheus instrumentation for the sampling loop.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf and
// may be replaced with SetLogger; the sensor driver receives it as its
// diagnostics sink when the daemon wires things up.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
