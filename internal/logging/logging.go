// Package logging builds the console slog.Logger used by examples and
// tests that want human-readable output instead of slog's default JSON
// handler.
package logging

import (
	"io"
	"log/slog"

	"github.com/lmittmann/tint"
)

// NewConsole returns a slog.Logger writing colorized, millisecond-precision
// timestamps to w at the given level.
func NewConsole(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().UTC()
				a.Value = slog.StringValue(t.Format("2006-01-02T15:04:05.000Z"))
			}
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}
