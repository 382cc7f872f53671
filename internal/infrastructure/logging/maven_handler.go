package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// MavenHandler is a slog.Handler that formats logs in Maven-style:
// [LEVEL] [SYSTEM] [HH:MM:SS] message key=value key=value
type MavenHandler struct {
	w         io.Writer
	level     slog.Level
	mu        *sync.Mutex
	system    string // e.g., "matching", "decay", "api"
	useColors bool
	attrs     []slog.Attr
}

// NewMavenHandler creates a new Maven-style handler
func NewMavenHandler(w io.Writer, opts *slog.HandlerOptions) *MavenHandler {
	h := &MavenHandler{
		w:         w,
		level:     slog.LevelInfo,
		mu:        &sync.Mutex{},
		useColors: isTerminal(w),
	}

	if opts != nil && opts.Level != nil {
		h.level = opts.Level.Level()
	}

	return h
}

// isTerminal checks if the writer is a terminal (for color output)
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

// Enabled reports whether the handler handles records at the given level.
func (h *MavenHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle formats and writes a log record
func (h *MavenHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	if h.useColors {
		buf.WriteString(h.levelColor(r.Level))
	}
	buf.WriteString("[")
	buf.WriteString(levelString(r.Level))
	buf.WriteString("]")
	if h.useColors {
		buf.WriteString(colorReset)
	}

	if h.system != "" {
		buf.WriteString(" [")
		buf.WriteString(h.system)
		buf.WriteString("]")
	}

	if h.useColors {
		buf.WriteString(colorGray)
	}
	buf.WriteString(" [")
	buf.WriteString(r.Time.Format("15:04:05"))
	buf.WriteString("]")
	if h.useColors {
		buf.WriteString(colorReset)
	}

	buf.WriteString(" ")
	buf.WriteString(r.Message)

	for _, attr := range h.attrs {
		if attr.Key != "system" { // already shown in bracket
			appendAttr(&buf, attr)
		}
	}

	r.Attrs(func(a slog.Attr) bool {
		if a.Key != "system" {
			appendAttr(&buf, a)
		}
		return true
	})

	buf.WriteString("\n")

	_, err := h.w.Write([]byte(buf.String()))
	return err
}

func appendAttr(buf *strings.Builder, a slog.Attr) {
	buf.WriteString(" ")
	buf.WriteString(a.Key)
	buf.WriteString("=")
	buf.WriteString(fmt.Sprint(a.Value.Any()))
}

// WithAttrs returns a new handler with the given attributes added
func (h *MavenHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)

	// A "system" attribute moves into the bracket prefix
	system := h.system
	for _, attr := range attrs {
		if attr.Key == "system" {
			system = attr.Value.String()
		}
	}

	return &MavenHandler{
		w:         h.w,
		level:     h.level,
		mu:        h.mu,
		system:    system,
		useColors: h.useColors,
		attrs:     newAttrs,
	}
}

// WithGroup returns the handler unchanged; groups are flattened
func (h *MavenHandler) WithGroup(_ string) slog.Handler {
	return h
}

func (h *MavenHandler) levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorRed
	case level >= slog.LevelWarn:
		return colorYellow
	case level >= slog.LevelInfo:
		return colorCyan
	default:
		return colorGray
	}
}

func levelString(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
