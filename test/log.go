package test

import (
	"os"

	"github.com/btcsuite/btclog"
)

// backendLog writes all test logging to standard output.
var backendLog = btclog.NewBackend(logWriter{})

// Logger returns a test logger for the given subsystem tag.
func Logger(tag string) btclog.Logger {
	logger := backendLog.Logger(tag)
	logger.SetLevel(btclog.LevelDebug)

	return logger
}

// logWriter implements an io.Writer that outputs to standard output.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	return len(p), nil
}
