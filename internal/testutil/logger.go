package testutil

import (
	"io"
	"log/slog"
)

// QuietLogger returns a logger that discards everything below warning.
// Keeps test output readable while still surfacing real problems.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
