package app

import "sync"

// requestLocks serializes scheduler mutations per porting request.
type requestLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newRequestLocks() *requestLocks {
	return &requestLocks{locks: make(map[string]*refLock)}
}

// lock blocks until the caller holds the lock for id and returns its release func.
func (l *requestLocks) lock(id string) func() {
	l.mu.Lock()
	rl, ok := l.locks[id]
	if !ok {
		rl = &refLock{}
		l.locks[id] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
