package logging

import (
	"log/slog"
	"os"
)

// New builds the JSON logger every component receives as its first
// constructor argument.
func New(level slog.Level) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(h)
}
