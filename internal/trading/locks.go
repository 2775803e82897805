package trading

import "sync"

// tradeLocks serializes work per trade id. Entries are dropped once no
// goroutine holds or waits for them, so the map stays as small as the
// number of trades currently being transitioned.
type tradeLocks struct {
	mu    sync.Mutex
	locks map[string]*tradeLock
}

type tradeLock struct {
	sync.Mutex
	refs int
}

func newTradeLocks() *tradeLocks {
	return &tradeLocks{locks: make(map[string]*tradeLock)}
}

// lock blocks until the caller owns id and returns the matching unlock
func (l *tradeLocks) lock(id string) func() {
	l.mu.Lock()
	tl, ok := l.locks[id]
	if !ok {
		tl = &tradeLock{}
		l.locks[id] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.Lock()
	return func() {
		tl.Unlock()
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *tradeLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
