package protocol

import (
	"context"
	"sync"
)

// Finalizer is a one-shot promise MsgOut uses to tell the pipeline's caller
// the outcome of a single downlink send: exactly one of send-succeeded,
// packet-processor-failed, or pipeline-cancelled (the context's error).
// Only the first completion takes effect.
type Finalizer struct {
	once sync.Once
	done chan error
}

// NewFinalizer returns a Finalizer ready to be completed and waited on.
func NewFinalizer() *Finalizer {
	return &Finalizer{done: make(chan error, 1)}
}

// Complete resolves the promise with err (nil on success). Safe to call
// from any goroutine; only the first call has an effect.
func (f *Finalizer) Complete(err error) {
	f.once.Do(func() { f.done <- err })
}

// Wait blocks until Complete is called or ctx is done, whichever comes
// first.
func (f *Finalizer) Wait(ctx context.Context) error {
	select {
	case err := <-f.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
