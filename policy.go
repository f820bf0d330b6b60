package akapi

import "sync/atomic"

// Logging levels for Policy.SetConsoleLogging.
const (
	LogSilent   = 0
	LogSummary  = 1
	LogPayloads = 2
)

// Policy carries the host-controlled toggles of a Client. The host may
// change them at runtime; every call reads the current values.
type Policy struct {
	guard          *WriteGuard
	consoleLogging atomic.Int32
	alertOnFailure atomic.Bool
}

func newPolicy() *Policy {
	g, _ := NewWriteGuard(true, DefaultReadSafePatterns...)
	p := &Policy{guard: g}
	p.consoleLogging.Store(LogSummary)
	p.alertOnFailure.Store(true)
	return p
}

// Guard returns the write guard.
func (p *Policy) Guard() *WriteGuard { return p.guard }

// SetAllowWrites toggles whether mutating calls may be sent.
func (p *Policy) SetAllowWrites(allow bool) { p.guard.SetAllowWrites(allow) }

// AllowWrites reports whether mutating calls may be sent.
func (p *Policy) AllowWrites() bool { return p.guard.AllowWrites() }

// SetConsoleLogging sets the log verbosity, clamped to LogSilent..LogPayloads.
func (p *Policy) SetConsoleLogging(level int) {
	if level < LogSilent {
		level = LogSilent
	}
	if level > LogPayloads {
		level = LogPayloads
	}
	p.consoleLogging.Store(int32(level))
}

// ConsoleLogging returns the log verbosity.
func (p *Policy) ConsoleLogging() int { return int(p.consoleLogging.Load()) }

// SetAlertOnFailure toggles user notification of failures.
func (p *Policy) SetAlertOnFailure(alert bool) { p.alertOnFailure.Store(alert) }

// AlertOnFailure reports whether failures notify the user.
func (p *Policy) AlertOnFailure() bool { return p.alertOnFailure.Load() }
