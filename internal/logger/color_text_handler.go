package logger

import (
	"context"
	"io"
	"log/slog"
)

// LevelSuccess sits between Info and Warn so that successful lifecycle
// milestones (service launched, probe succeeded, stack ready) stand out
// from plain informational output.
const LevelSuccess = slog.LevelInfo + 2

// ColorTextHandler wraps slog.TextHandler to add ANSI color codes per level.
type ColorTextHandler struct {
	*slog.TextHandler
}

// NewColorTextHandler creates a new ColorTextHandler.
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions) *ColorTextHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	if opts.ReplaceAttr == nil {
		opts.ReplaceAttr = renameSuccessLevel
	}
	return &ColorTextHandler{TextHandler: slog.NewTextHandler(w, opts)}
}

// Handle implements slog.Handler.
func (h *ColorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	var colorCode string
	switch {
	case r.Level >= slog.LevelError:
		colorCode = "\033[31m" // Red
	case r.Level >= slog.LevelWarn:
		colorCode = "\033[33m" // Yellow
	case r.Level >= LevelSuccess:
		colorCode = "\033[32m" // Green
	case r.Level >= slog.LevelInfo:
		colorCode = "\033[36m" // Cyan
	default:
		colorCode = "\033[0m" // Reset/default
	}

	r.Message = colorCode + levelName(r.Level) + "\033[0m  " + r.Message
	return h.TextHandler.Handle(ctx, r)
}

func levelName(l slog.Level) string {
	if l == LevelSuccess {
		return "SUCCESS"
	}
	return l.String()
}

// renameSuccessLevel makes the level attribute read SUCCESS instead of INFO+2.
func renameSuccessLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lv, ok := a.Value.Any().(slog.Level); ok && lv == LevelSuccess {
			a.Value = slog.StringValue("SUCCESS")
		}
	}
	return a
}
