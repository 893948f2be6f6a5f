package clog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/fatih/color"
)

// DefaultColumns are rendered in front of the message when present.
var DefaultColumns = []string{"method", "stream_type", "procedure", "persona", "workflow_id", "phase"}

type TextHandlerConfig struct {
	Color   bool
	Level   *slog.Level
	Columns []string
}

type TextHandlerOption func(*TextHandlerConfig)

func WithColor(c bool) TextHandlerOption {
	return func(cfg *TextHandlerConfig) {
		cfg.Color = c
	}
}

func WithLevel(level slog.Level) TextHandlerOption {
	return func(cfg *TextHandlerConfig) {
		cfg.Level = &level
	}
}

func WithColumns(columns ...string) TextHandlerOption {
	return func(cfg *TextHandlerConfig) {
		cfg.Columns = columns
	}
}

// TextHandler renders records for humans: one colored summary line followed
// by the remaining attributes, one per line.
type TextHandler struct {
	cfg    TextHandlerConfig
	groups []string
	attrs  []slog.Attr
	mu     *sync.Mutex
	w      io.Writer
}

func NewTextHandler(w io.Writer, opts ...TextHandlerOption) *TextHandler {
	cfg := TextHandlerConfig{
		Color:   true,
		Columns: DefaultColumns,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &TextHandler{cfg: cfg, mu: &sync.Mutex{}, w: w}
}

func (h *TextHandler) clone() *TextHandler {
	nh := *h
	nh.groups = slices.Clone(h.groups)
	nh.attrs = slices.Clone(h.attrs)
	return &nh
}

func (h *TextHandler) Enabled(_ context.Context, l slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.cfg.Level != nil {
		minLevel = *h.cfg.Level
	}
	return l >= minLevel
}

func (h *TextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := h.clone()
	nh.groups = append(nh.groups, name)
	return nh
}

func (h *TextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := h.clone()
	nh.attrs = append(nh.attrs, attrs...)
	return nh
}

func (h *TextHandler) paint(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if h.cfg.Color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

func levelColor(l slog.Level) color.Attribute {
	switch {
	case l >= slog.LevelError:
		return color.FgRed
	case l >= slog.LevelWarn:
		return color.FgYellow
	case l >= slog.LevelInfo:
		return color.FgBlue
	default:
		return color.FgCyan
	}
}

func (h *TextHandler) Handle(_ context.Context, record slog.Record) error {
	kv := map[string]slog.Value{}
	prefix := ""
	for _, g := range h.groups {
		prefix += g + "."
	}
	for _, attr := range h.attrs {
		kv[prefix+attr.Key] = attr.Value
	}
	record.Attrs(func(attr slog.Attr) bool {
		kv[prefix+attr.Key] = attr.Value
		return true
	})

	buf := bytes.NewBuffer(make([]byte, 0, 1024))
	plain := h.paint()
	plain.Fprintf(buf, "%s ", record.Time.Format(time.RFC3339))
	h.paint(levelColor(record.Level)).Fprintf(buf, "%s ", record.Level)

	for _, key := range h.cfg.Columns {
		if v, ok := kv[key]; ok {
			delete(kv, key)
			plain.Fprintf(buf, "%s ", v)
		}
	}

	green := h.paint(color.FgGreen)
	green.Fprint(buf, "\"")
	if v, ok := kv["code"]; ok {
		delete(kv, "code")
		green.Fprintf(buf, "[%s] ", v)
	}
	green.Fprintf(buf, "%s\"", record.Message)
	if e, ok := kv[ErrorAttributeKey]; ok {
		delete(kv, ErrorAttributeKey)
		h.paint(color.FgRed).Fprintf(buf, " \"%s\"", e)
	}
	buf.WriteByte('\n')

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		plain.Fprintf(buf, "    %s=%s\n", k, kv[k])
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write log record: %w", err)
	}
	return nil
}
