// Package logging wraps hashicorp/go-hclog behind a small constructor
// pair. No other package in this module imports it.
package logging

import (
	"os"

	"github.com/hashicorp/go-hclog"
)

// Logger is the structured logger type used across the module.
type Logger = hclog.Logger

// New constructs the root logger. name identifies the subsystem
// (e.g. "orchestrator", "registry", "tool").
func New(name string, level string) Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(level),
		Output:     os.Stderr,
		JSONFormat: false,
	})
}

// Discard returns a logger that drops everything, used as the default in
// tests and library callers that don't configure logging explicitly.
func Discard() Logger {
	return hclog.NewNullLogger()
}
