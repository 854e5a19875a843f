package human

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Latch lazily initializes a Provider exactly once, process-wide, per
// spec §5: concurrent first callers block on the same load via
// singleflight; once ready, reads are served under a read lock with no
// further initialization work. A failed load is sticky -- the next
// caller sees the same error without retrying.
type Latch struct {
	group singleflight.Group

	mu       sync.RWMutex
	ready    bool
	provider Provider
	err      error
}

// Get returns the process-wide Provider, calling init at most once. All
// callers that arrive while the first init is in flight block on the
// same result.
func (l *Latch) Get(init func() (Provider, error)) (Provider, error) {
	l.mu.RLock()
	if l.ready {
		defer l.mu.RUnlock()
		return l.provider, l.err
	}
	l.mu.RUnlock()

	v, err, _ := l.group.Do("init", func() (interface{}, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.ready {
			return l.provider, l.err
		}
		p, err := init()
		l.provider, l.err, l.ready = p, err, true
		return p, err
	})
	if err != nil {
		return nil, err
	}
	return v.(Provider), nil
}
