// Package coordinator provides the run-wide cancellation token and progress
// counters observed by every stage of an export.
//
// A Token is deliberately separate from context.Context: cancelling it stops
// new work from starting (page fetches, pool claims, batch flushes, archive
// steps) but never aborts a request that is already in flight. Contexts stay
// the hard-abort path.
package coordinator

import "sync"

// Token is a cooperative stop signal. The zero value is ready to use and a
// nil *Token is never cancelled.
type Token struct {
	once   sync.Once
	mu     sync.Mutex
	done   chan struct{}
	parent *Token
}

// NewToken returns a fresh, uncancelled token.
func NewToken() *Token {
	return &Token{}
}

func (t *Token) channel() chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done == nil {
		t.done = make(chan struct{})
	}
	return t.done
}

// Cancel marks the token as cancelled. Safe to call more than once.
func (t *Token) Cancel() {
	if t == nil {
		return
	}
	ch := t.channel()
	t.once.Do(func() { close(ch) })
}

// Child returns a token that is cancelled by its own Cancel or by t's.
// Cancelled sees the parent at once; Done follows it through a goroutine
// that exits when either token is cancelled, so a child should be
// cancelled when no longer needed.
func (t *Token) Child() *Token {
	c := &Token{parent: t}
	if t != nil {
		go func() {
			select {
			case <-t.Done():
				c.Cancel()
			case <-c.Done():
			}
		}()
	}
	return c
}

// Cancelled reports whether Cancel has been called on t or an ancestor.
func (t *Token) Cancelled() bool {
	if t == nil {
		return false
	}
	if t.parent.Cancelled() {
		return true
	}
	select {
	case <-t.channel():
		return true
	default:
		return false
	}
}

// Done returns a channel closed on cancellation. A nil token returns a nil
// channel, which blocks forever in a select.
func (t *Token) Done() <-chan struct{} {
	if t == nil {
		return nil
	}
	return t.channel()
}
