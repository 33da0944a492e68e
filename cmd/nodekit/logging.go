package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/c360/nodekit/logging"
)

func setupLogger(w io.Writer, level, format string) *slog.Logger {
	return slog.New(logging.NewHandler(w, level, format)).With(
		"service", appName,
		"version", Version,
		"pid", os.Getpid(),
	)
}
