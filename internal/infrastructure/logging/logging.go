package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/felixgeelhaar/defectctl/internal/domain"
	"github.com/felixgeelhaar/defectctl/internal/pathutil"
)

// Options configures a run logger.
type Options struct {
	Debug  bool
	Format string    // "text" (default) or "json"
	Stderr io.Writer // console sink; nil disables it
	Dir    string    // directory of the run log; empty disables the file
	File   string    // run log file name, see FileName
}

// FileName returns the run log name: defects.<start>.<end>[.<pillar>].log.
func FileName(r domain.DateRange, pillar string) string {
	name := "defects"
	if !r.IsZero() {
		name += "." + r.Compact()
	}
	if pillar != "" && pillar != domain.AllPillars {
		name += "." + pathutil.SafeName(pillar)
	}
	return name + ".log"
}

// Open builds a logger writing every record at the configured level to the
// run log file and warnings (or everything, with Debug) to Stderr. The
// returned closer closes the log file.
func Open(opts Options) (*slog.Logger, io.Closer, error) {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	var handlers []slog.Handler
	var closer io.Closer = nopCloser{}
	if opts.Stderr != nil {
		consoleLevel := slog.LevelWarn
		if opts.Debug {
			consoleLevel = slog.LevelDebug
		}
		handlers = append(handlers, newHandler(opts.Format, opts.Stderr, consoleLevel))
	}
	if opts.File != "" {
		path, err := pathutil.JoinWithin(opts.Dir, opts.File)
		if err != nil {
			return nil, nil, err
		}
		// #nosec G304 -- file name is generated by FileName
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		closer = f
		handlers = append(handlers, newHandler(opts.Format, f, level))
	}

	switch len(handlers) {
	case 0:
		return Discard(), closer, nil
	case 1:
		return slog.New(handlers[0]), closer, nil
	default:
		return slog.New(fanout(handlers)), closer, nil
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHandler(format string, w io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
