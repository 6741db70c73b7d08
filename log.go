package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// setupLog routes logging to the file named by VOICEBOX_LOGFILE, or discards
// it. The returned closer must run after the command finishes.
func setupLog() (func() error, error) {
	log.SetOutput(io.Discard)
	log.SetLevel(log.InfoLevel)

	logFile := os.Getenv("VOICEBOX_LOGFILE")
	if logFile == "" {
		return func() error { return nil }, nil
	}

	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("error setting up logging: %w", err)
	}
	log.SetOutput(f)
	log.SetLevel(log.DebugLevel)
	return f.Close, nil
}
