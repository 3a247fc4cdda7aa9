// Package log wires the process logger: a terminal handler on stderr and,
// optionally, a JSON copy of every record in a file. The logger travels in
// the context and is read back with clog.FromContext.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/chainguard-dev/clog"
	charmlog "github.com/charmbracelet/log"
	slogmulti "github.com/samber/slog-multi"
)

type Options struct {
	// Verbose lowers the terminal level to debug.
	Verbose bool
	// File, when set, receives every record at debug level as JSON lines.
	File string
	// Writer is the terminal output, stderr when nil.
	Writer io.Writer
}

// Setup installs the logger in ctx and as the slog default. The returned
// func closes the log file, if any.
func Setup(ctx context.Context, opts Options) (context.Context, func() error, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	level := charmlog.InfoLevel
	if opts.Verbose {
		level = charmlog.DebugLevel
	}
	var handler slog.Handler = charmlog.NewWithOptions(w, charmlog.Options{
		Level:           level,
		ReportTimestamp: opts.Verbose,
	})

	closer := func() error { return nil }
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return ctx, closer, fmt.Errorf("opening log file: %w", err)
		}
		handler = slogmulti.Fanout(handler, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
		closer = f.Close
	}

	logger := clog.New(handler)
	slog.SetDefault(&logger.Logger)
	return clog.WithLogger(ctx, logger), closer, nil
}
