package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// NewLogger builds the process logger. Format "text" uses tint's colorized
// handler for terminals; anything else emits JSON for log shippers. Level is
// one of debug, info, warn, error (default info). Output is "stdout" or
// "stderr" (default); file destinations are left to the invoking shell.
func NewLogger(level, format, output string) *slog.Logger {
	w := io.Writer(os.Stderr)
	if strings.EqualFold(output, "stdout") {
		w = os.Stdout
	}
	return newLogger(w, level, format)
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	lvl := parseLevel(level)
	if strings.EqualFold(format, "text") {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
