// Package logging defines the Logger contract consumed by internal
// components, decoupled from the concrete zap-backed implementation in
// pkg/logger so packages depend on an interface rather than a vendor.
package logging

import corelogger "github.com/arpanauts/biomapper-sub002/pkg/logger"

// Logger mirrors pkg/logger.Logger so internal packages can depend on this
// narrower, vendor-free contract.
type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
}

// FromCoreLogger wraps the project-wide pkg/logger.Logger as a
// logging.Logger. nil yields a no-op logger rather than panicking, so tests
// can omit a logger entirely.
func FromCoreLogger(core corelogger.Logger) Logger {
	if core == nil {
		return corelogger.Nop()
	}
	return core
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return corelogger.Nop()
}
