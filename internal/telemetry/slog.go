package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// level is shared by every handler installed through SetupLogger so that SetLevel can
// change verbosity at runtime (config hot reload) without rebuilding the handler.
var level = new(slog.LevelVar)

// ParseLevel maps a configuration string to a slog level.
// Accepts "debug", "info", "warn"/"warning", "error" (case-insensitive); defaults to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger configures the global slog default logger.
//
// format: "json" → JSONHandler (production); anything else → TextHandler.
//
// The logger is installed as the default so package-level slog calls pick it up
// without threading a *slog.Logger through every constructor.
func SetupLogger(format, lvl string) {
	setupLogger(os.Stdout, format, lvl)
}

func setupLogger(w io.Writer, format, lvl string) {
	level.Set(ParseLevel(lvl))

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level.Level() == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialised", "format", format, "level", level.Level().String())
}

// SetLevel changes the minimum level of the logger installed by SetupLogger.
func SetLevel(lvl string) {
	next := ParseLevel(lvl)
	if next == level.Level() {
		return
	}
	level.Set(next)
	slog.Info("log level changed", "level", next.String())
}
