package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFileName is the name of the rotating log file inside the log directory.
const LogFileName = "drivesync.log"

// opLabel is the identifier printed in the third column of every log line.
// The app swaps it to the current cycle ID at the start of each cycle.
type opLabel struct {
	v atomic.Pointer[string]
}

func newOpLabel(id string) *opLabel {
	l := &opLabel{}
	l.Set(id)
	return l
}

func (l *opLabel) Set(id string) { l.v.Store(&id) }

func (l *opLabel) String() string {
	if p := l.v.Load(); p != nil {
		return *p
	}
	return "-"
}

// dsHandler is a custom slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<opID>\t<message>\t<key=value ...>
type dsHandler struct {
	w     io.Writer
	level slog.Leveler
	opID  *opLabel
	attrs []slog.Attr
}

func (h *dsHandler) Enabled(_ context.Context, level slog.Level) bool {
	if h.level == nil {
		return true
	}
	return level >= h.level.Level()
}

func (h *dsHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")
	op := "-"
	if h.opID != nil {
		op = h.opID.String()
	}

	// One Write per line: transfers log from several goroutines.
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\t%s\t%s\t%s", ts, r.Level.String(), op, r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&buf, "\t%s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&buf, "\t%s=%v", a.Key, a.Value)
		return true
	})
	buf.WriteByte('\n')

	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *dsHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &dsHandler{
		w:     h.w,
		level: h.level,
		opID:  h.opID,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *dsHandler) WithGroup(string) slog.Handler { return h }

// logOptions selects where and how much newLogger writes.
type logOptions struct {
	Dir        string
	Level      string
	MaxSizeMB  int
	MaxBackups int
	// Console receives a copy of every line; nil disables it.
	Console io.Writer
}

// parseLevel accepts debug, info, warn and error, case-insensitively.
func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// newLogger creates a structured logger that writes to a rotating
// Dir/drivesync.log and, if set, the console writer. It returns the
// slog.Logger and the log file (for cleanup).
func newLogger(opts logOptions, opID *opLabel) (*slog.Logger, io.Closer, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, LogFileName),
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	}

	var w io.Writer = file
	if opts.Console != nil {
		w = io.MultiWriter(file, opts.Console)
	}
	handler := &dsHandler{w: w, level: level, opID: opID}
	return slog.New(handler), file, nil
}

// slogAdapter wraps *slog.Logger to satisfy the ds.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
