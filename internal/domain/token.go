package domain

import (
	"context"
	"sync"
	"sync/atomic"
)

// CancelToken is the single shared stop signal of a run. It transitions once
// from clear to set and never resets. Any holder may set it; the first cause wins.
type CancelToken struct {
	set    atomic.Bool
	once   sync.Once
	done   chan struct{}
	mu     sync.Mutex
	cause  error
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// NewCancelToken derives a token from parent; cancelling parent does not set the
// token, only Set does.
func NewCancelToken(parent context.Context) *CancelToken {
	ctx, cancel := context.WithCancelCause(context.WithoutCancel(parent))
	return &CancelToken{
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Set raises the token. Subsequent calls are no-ops and return false.
func (t *CancelToken) Set(cause error) bool {
	fired := false
	t.once.Do(func() {
		t.mu.Lock()
		t.cause = cause
		t.mu.Unlock()
		t.set.Store(true)
		t.cancel(cause)
		close(t.done)
		fired = true
	})
	return fired
}

// IsSet is safe to poll from tight loops.
func (t *CancelToken) IsSet() bool {
	return t.set.Load()
}

// Done is closed when the token is set.
func (t *CancelToken) Done() <-chan struct{} {
	return t.done
}

// Cause returns the error passed to the winning Set call.
func (t *CancelToken) Cause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cause
}

// Context is cancelled together with the token, for APIs that take a context.
func (t *CancelToken) Context() context.Context {
	return t.ctx
}
