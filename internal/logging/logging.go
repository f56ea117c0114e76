// Package logging owns the process logger. Everything it writes goes to the
// diagnostic stream (stderr by default), never to the pixel output.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

type Options struct {
	Level  string
	JSON   bool
	Writer io.Writer // defaults to os.Stderr
}

var def atomic.Value

func init() {
	cfg := &slog.HandlerOptions{Level: slog.LevelInfo}
	h := slog.NewTextHandler(os.Stderr, cfg)
	def.Store(slog.New(h))
}

func Configure(opts Options) {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	cfg := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(w, cfg)
	} else {
		h = slog.NewTextHandler(w, cfg)
	}
	def.Store(slog.New(h).With("component", "pixelpipe"))
}

func ParseLevel(s string) slog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
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

func L() *slog.Logger {
	l, _ := def.Load().(*slog.Logger)
	return l
}

// FromEnv reads PIXELPIPE_LOG_LEVEL and PIXELPIPE_LOG_JSON.
func FromEnv() Options {
	var opts Options
	opts.Level = os.Getenv("PIXELPIPE_LOG_LEVEL")
	if b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv("PIXELPIPE_LOG_JSON"))); err == nil {
		opts.JSON = b
	}
	return opts
}

func InitFromEnv() {
	Configure(FromEnv())
}
