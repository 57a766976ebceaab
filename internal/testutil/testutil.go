// Package testutil provides test helpers shared across packages:
//   - Miniredis servers, clients and key listings (miniredis.go)
//   - A scripted query runner for batch tests (runner.go)
//   - A quiet logrus logger (this file)
package testutil

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a logger that discards output unless the test runs verbose
func NewLogger(t *testing.T) *logrus.Logger {
	t.Helper()

	log := logrus.New()
	if !testing.Verbose() {
		log.SetOutput(io.Discard)
	}

	log.SetLevel(logrus.DebugLevel)

	return log
}
