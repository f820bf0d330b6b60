package akapi

import (
	"github.com/hashicorp/go-hclog"
)

// Logger receives dispatcher log lines as a message plus key/value pairs.
// hclog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// NewDefaultLogger returns the hclog logger used when none is configured.
func NewDefaultLogger() Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:  "akapi",
		Level: hclog.Info,
	})
}

// NewNullLogger discards everything.
func NewNullLogger() Logger {
	return hclog.NewNullLogger()
}
