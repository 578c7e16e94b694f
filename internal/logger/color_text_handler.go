package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

const ansiReset = "\033[0m"

var levelColors = map[slog.Level]string{
	slog.LevelDebug: "\033[36m",
	slog.LevelInfo:  "\033[32m",
	slog.LevelWarn:  "\033[33m",
	slog.LevelError: "\033[31m",
}

// Lifecycle messages from the supervisor carry an "event" attribute; the
// message is tinted by it so restarts and stops stand out in a terminal.
var eventColors = map[string]string{
	"starting":   "\033[2m",
	"running":    "\033[32m",
	"restarting": "\033[35m",
	"stopping":   "\033[33m",
	"stopped":    "\033[33m",
	"error":      "\033[31m",
}

// ColorTextHandler prints "[time] LEVEL  message" with ANSI colors, followed
// by the attributes in slog text format. TextHandler quotes control
// characters, so the colored prefix is written directly.
type ColorTextHandler struct {
	w        io.Writer
	mu       *sync.Mutex
	buf      *bytes.Buffer
	attrs    slog.Handler // renders attributes only, into buf
	showTime bool
}

// NewColorTextHandler creates a new ColorTextHandler.
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, showTime bool) *ColorTextHandler {
	o := slog.HandlerOptions{}
	if opts != nil {
		o = *opts
	}
	replace := o.ReplaceAttr
	o.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) == 0 {
			switch a.Key {
			case slog.TimeKey, slog.LevelKey, slog.MessageKey:
				return slog.Attr{}
			}
		}
		if replace != nil {
			return replace(groups, a)
		}
		return a
	}
	buf := &bytes.Buffer{}
	return &ColorTextHandler{
		w:        w,
		mu:       &sync.Mutex{},
		buf:      buf,
		attrs:    slog.NewTextHandler(buf, &o),
		showTime: showTime,
	}
}

func (h *ColorTextHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.attrs.Enabled(ctx, l)
}

// Handle implements slog.Handler
func (h *ColorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	lc, ok := levelColors[r.Level]
	if !ok {
		lc = ansiReset
	}
	msg := r.Message
	r.Attrs(func(a slog.Attr) bool {
		if a.Key != "event" {
			return true
		}
		if ec, ok := eventColors[a.Value.String()]; ok {
			msg = ec + msg + ansiReset
		}
		return false
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf.Reset()
	if err := h.attrs.Handle(ctx, r); err != nil {
		return err
	}
	var line bytes.Buffer
	if h.showTime && !r.Time.IsZero() {
		line.WriteString(r.Time.Format(time.TimeOnly + ".000"))
		line.WriteByte(' ')
	}
	line.WriteString(lc + r.Level.String() + ansiReset + "  " + msg)
	if h.buf.Len() > 1 {
		line.WriteByte(' ')
	}
	line.Write(h.buf.Bytes())
	if h.buf.Len() == 0 {
		line.WriteByte('\n')
	}
	_, err := h.w.Write(line.Bytes())
	return err
}

func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = h.attrs.WithAttrs(attrs)
	return &c
}

func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.attrs = h.attrs.WithGroup(name)
	return &c
}
