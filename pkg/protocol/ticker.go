package protocol

import (
	"context"
	"log/slog"
	"time"
)

// RunTicker drives fn on every tick of interval until ctx is done, logging
// and continuing past any error fn returns rather than stopping — the same
// shape as a periodic submitter loop, generalized here since more than one
// caller (bloom-filter persistence, and any future periodic hook) needs it.
func RunTicker(ctx context.Context, interval time.Duration, fn func(context.Context) error, log *slog.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := fn(ctx); err != nil {
				log.Error("periodic task failed", "error", err)
			}
		}
	}
}
