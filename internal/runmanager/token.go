package runmanager

import "sync"

// CancelToken is a cooperative cancellation handle checked at yield points.
// Executors observe it at blocking points (tool calls, LLM calls, explicit
// waits) at least every 250ms.
type CancelToken struct {
	mu       sync.Mutex
	canceled bool
	reason   string
	done     chan struct{}
}

// NewCancelToken returns a fresh, un-canceled token.
func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel trips the token with the given reason. Idempotent: only the first
// call has effect.
func (t *CancelToken) Cancel(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.canceled {
		return
	}
	t.canceled = true
	t.reason = reason
	close(t.done)
}

// Canceled reports whether the token has been tripped.
func (t *CancelToken) Canceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canceled
}

// Reason returns the reason supplied to Cancel, if any.
func (t *CancelToken) Reason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// Done returns a channel closed when the token is canceled, for use in
// select statements at suspension points.
func (t *CancelToken) Done() <-chan struct{} {
	return t.done
}

// ThrowIfCanceled returns a non-nil error carrying the cancellation reason
// if the token has been tripped.
func (t *CancelToken) ThrowIfCanceled() error {
	if t.Canceled() {
		reason := t.Reason()
		if reason == "" {
			reason = "canceled"
		}
		return &CancelError{Reason: reason}
	}
	return nil
}

// CancelError is returned by ThrowIfCanceled and distinguishes cancellation
// from ordinary executor failure.
type CancelError struct{ Reason string }

func (e *CancelError) Error() string { return "canceled: " + e.Reason }
