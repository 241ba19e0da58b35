package live

import (
	"errors"
	"sync"

	"github.com/tasteshift/live/internal/core"
)

// links is the broadcaster's fan-out table: one call per connected viewer,
// keyed by call id.
type links struct {
	mu    sync.RWMutex
	calls map[string]core.Call
}

func newLinks() *links {
	return &links{calls: make(map[string]core.Call)}
}

// add stores c and returns the call it replaced, if any.
func (l *links) add(c core.Call) core.Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	old := l.calls[c.ID()]
	l.calls[c.ID()] = c
	if old == c {
		return nil
	}
	return old
}

// remove drops the call with id if it is still c.
func (l *links) remove(c core.Call) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.calls[c.ID()]; ok && cur == c {
		delete(l.calls, c.ID())
		return true
	}
	return false
}

func (l *links) len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.calls)
}

func (l *links) snapshot() []core.Call {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]core.Call, 0, len(l.calls))
	for _, c := range l.calls {
		out = append(out, c)
	}
	return out
}

func (l *links) interruptAll() error {
	var errs []error
	for _, c := range l.snapshot() {
		if err := c.Interrupt(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// closeAll empties the table and hangs up every call.
func (l *links) closeAll() {
	l.mu.Lock()
	calls := l.calls
	l.calls = make(map[string]core.Call)
	l.mu.Unlock()
	for _, c := range calls {
		c.Close()
	}
}
