package main

import (
	"log/slog"
	"os"

	"github.com/m-mizutani/masq"
)

// setupLogging installs a process-wide structured logger. Query strings
// and extra parameters occasionally carry tokens or identifying values
// from upstream playback URLs, so "pid" and "command_url" are masked
// the way request bodies are masked elsewhere in this stack.
func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: masq.New(
			masq.WithFieldName("pid"),
			masq.WithFieldName("command_url"),
			masq.WithFieldName("playback_url"),
		),
	})
	slog.SetDefault(slog.New(handler))
}
