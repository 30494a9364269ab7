package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

var (
	colorReset = "\x1b[0m"
	colorTime  = "\x1b[90m"
	colorDebug = "\x1b[36m"
	colorInfo  = "\x1b[32m"
	colorWarn  = "\x1b[33m"
	colorError = "\x1b[31m"
)

var tagColors = map[string]string{
	"[Bootstrap]": "\x1b[96m",
	"[HTTP]":      "\x1b[95m",
	"[WebSocket]": "\x1b[92m",
	"[Capture]":   "\x1b[94m",
	"[ASR]":       "\x1b[35m",
	"[Grader]":    "\x1b[34m",
	"[Pipeline]":  "\x1b[92m",
	"[Session]":   "\x1b[36m",
	"[Runner]":    "\x1b[97m",
}

// textHandler renders "[time] [LEVEL] msg {k=v}" or, for tagged messages,
// "[time] [TAG] msg" with the tag colour.
type textHandler struct {
	writer io.Writer
	level  slog.Level
	attrs  []slog.Attr
	mu     *sync.Mutex
}

func newTextHandler(w io.Writer, level slog.Level) *textHandler {
	return &textHandler{writer: w, level: level, mu: &sync.Mutex{}}
}

func (h *textHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *textHandler) Handle(_ context.Context, r slog.Record) error {
	timeStr := r.Time.Format("2006-01-02 15:04:05.000")

	var b strings.Builder
	b.WriteString(colorTime + "[" + timeStr + "]" + colorReset + " ")

	if color, ok := tagColor(r.Message); ok {
		b.WriteString(color + r.Message + colorReset)
	} else {
		levelColor := colorInfo
		switch {
		case r.Level >= slog.LevelError:
			levelColor = colorError
		case r.Level >= slog.LevelWarn:
			levelColor = colorWarn
		case r.Level < slog.LevelInfo:
			levelColor = colorDebug
		}
		b.WriteString(levelColor + "[" + r.Level.String() + "]" + colorReset + " " + r.Message)
	}

	attrs := append([]slog.Attr{}, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})
	if len(attrs) > 0 {
		b.WriteString(" {")
		for _, a := range attrs {
			fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		}
		b.WriteString(" }")
	}
	b.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, b.String())
	return err
}

func (h *textHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

func (h *textHandler) WithGroup(string) slog.Handler {
	return h
}

func tagColor(msg string) (string, bool) {
	if !strings.HasPrefix(msg, "[") {
		return "", false
	}
	end := strings.Index(msg, "]")
	if end < 0 {
		return "", false
	}
	color, ok := tagColors[msg[:end+1]]
	return color, ok
}
