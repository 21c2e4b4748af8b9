// Package logging wraps log/slog with a TRACE level and a compact line format.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Levels. TRACE sits below slog's DEBUG; the rest are slog's own.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// levelNames is ordered from most to least verbose.
var levelNames = []struct {
	level slog.Level
	name  string
}{
	{LevelTrace, "TRACE"},
	{LevelDebug, "DEBUG"},
	{LevelInfo, "INFO"},
	{LevelWarn, "WARN"},
	{LevelError, "ERROR"},
}

// ParseLevel parses a level name, case-insensitively. WARNING is accepted
// for WARN. Unknown names yield INFO and an error.
func ParseLevel(s string) (slog.Level, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "WARNING" {
		name = "WARN"
	}
	for _, l := range levelNames {
		if l.name == name {
			return l.level, nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level: %s", s)
}

// LevelString names level, rounding up to the nearest known level.
func LevelString(level slog.Level) string {
	for _, l := range levelNames {
		if level <= l.level {
			return l.name
		}
	}
	return "ERROR"
}

// Format selects the record encoding.
type Format string

const (
	// FormatText writes "2026-01-03 20:36:42 INFO message key=value" lines.
	FormatText Format = "text"
	// FormatJSON writes one JSON object per record.
	FormatJSON Format = "json"
)

// ParseFormat parses a format name. An empty name is FormatText.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format: %s", s)
	}
}

// Options configures NewWithOptions.
type Options struct {
	Level  slog.Level
	Format Format
	// Output defaults to os.Stdout.
	Output io.Writer
}

// Logger is a slog.Logger with TRACE helpers.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// New creates a text Logger writing to stdout.
func New(level slog.Level) *Logger {
	return NewWithOptions(Options{Level: level})
}

// NewWithWriter creates a text Logger writing to out.
func NewWithWriter(level slog.Level, out io.Writer) *Logger {
	return NewWithOptions(Options{Level: level, Output: out})
}

// NewWithOptions creates a Logger from opts.
func NewWithOptions(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	level := new(slog.LevelVar)
	level.Set(opts.Level)

	var handler slog.Handler
	if opts.Format == FormatJSON {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level, ReplaceAttr: nameLevel})
	} else {
		handler = &lineHandler{level: level, out: out, mu: &sync.Mutex{}}
	}
	return &Logger{Logger: slog.New(handler), level: level}
}

// nameLevel makes the JSON handler print TRACE instead of DEBUG-4.
func nameLevel(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.LevelKey {
		if l, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(LevelString(l))
		}
	}
	return a
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return NewWithOptions(Options{Level: LevelError + 1, Output: io.Discard})
}

// SetDefault installs logger as the slog default.
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}

// With returns a Logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level}
}

// Trace logs at TRACE level.
func (l *Logger) Trace(msg string, args ...any) {
	l.Log(context.Background(), LevelTrace, msg, args...)
}

// IsTraceEnabled reports whether TRACE records are written. Callers use it
// to skip building expensive dumps.
func (l *Logger) IsTraceEnabled() bool {
	return l.level.Level() <= LevelTrace
}

// IsDebugEnabled reports whether DEBUG records are written.
func (l *Logger) IsDebugEnabled() bool {
	return l.level.Level() <= LevelDebug
}

// Level returns the current minimum level.
func (l *Logger) Level() slog.Level {
	return l.level.Level()
}

// SetLevel changes the minimum level of l and every Logger derived from it.
func (l *Logger) SetLevel(level slog.Level) {
	l.level.Set(level)
}

// lineHandler writes one line per record. Groups are flattened into dotted
// keys and values with spaces or quotes are quoted.
type lineHandler struct {
	level  slog.Leveler
	out    io.Writer
	mu     *sync.Mutex
	prefix []byte // attrs added through WithAttrs, already encoded
	group  string
}

func (h *lineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *lineHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 256)
	buf = r.Time.AppendFormat(buf, time.DateTime)
	buf = append(buf, ' ')
	buf = append(buf, LevelString(r.Level)...)
	buf = append(buf, ' ')
	buf = append(buf, r.Message...)
	buf = append(buf, h.prefix...)
	r.Attrs(func(a slog.Attr) bool {
		buf = appendAttr(buf, h.group, a)
		return true
	})
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf)
	return err
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.prefix = append([]byte(nil), h.prefix...)
	for _, a := range attrs {
		clone.prefix = appendAttr(clone.prefix, h.group, a)
	}
	return &clone
}

func (h *lineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.group = joinKey(h.group, name)
	return &clone
}

func joinKey(group, key string) string {
	if group == "" {
		return key
	}
	if key == "" {
		return group
	}
	return group + "." + key
}

func appendAttr(buf []byte, group string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}

	key := joinKey(group, a.Key)
	if a.Value.Kind() == slog.KindGroup {
		for _, member := range a.Value.Group() {
			buf = appendAttr(buf, key, member)
		}
		return buf
	}

	buf = append(buf, ' ')
	buf = append(buf, key...)
	buf = append(buf, '=')

	var s string
	switch a.Value.Kind() {
	case slog.KindString:
		s = a.Value.String()
	case slog.KindTime:
		s = a.Value.Time().Format(time.RFC3339)
	default:
		s = fmt.Sprint(a.Value.Any())
	}
	if s == "" || strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.AppendQuote(buf, s)
	}
	return append(buf, s...)
}
