// Package logging provides the process-wide structured logger. Components
// are tagged the way the teacher's daemon logs tag their subsystem (e.g.
// "eventbus: handler %q error", "gate: ..." prefixes in
// github.com/steveyegge/beads internal/eventbus/bus.go and internal/gate) —
// here made structured via github.com/rs/zerolog instead of log.Printf
// prefixes, with the same intent: every line is attributable to a component.
package logging

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

// New builds a base logger at the given level ("debug", "info", "warn",
// "error") writing JSON lines to w (os.Stdout in production, a buffer in
// tests).
func New(levelName string, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Default returns a logger writing to stdout at info level, for use before
// configuration has been loaded (e.g. config parse failures).
func Default() zerolog.Logger {
	return New("info", os.Stdout)
}

// Component returns a child logger tagged with a "component" field,
// mirroring the per-subsystem prefixing the teacher applies by hand.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// WithContext stores l in ctx for retrieval by From.
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From retrieves the logger stored in ctx, or the default logger if none
// was attached.
func From(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return l
	}
	return Default()
}
