package timer

import "sync"

// tokenLocks serializes work per token while letting different tokens proceed
// in parallel. Entries are dropped once nobody holds or waits on them.
type tokenLocks struct {
	mu    sync.Mutex
	locks map[string]*tokenLock
}

type tokenLock struct {
	mu   sync.Mutex
	refs int
}

func newTokenLocks() *tokenLocks {
	return &tokenLocks{locks: make(map[string]*tokenLock)}
}

// lock blocks until token is free and returns the matching unlock.
func (l *tokenLocks) lock(token string) func() {
	l.mu.Lock()
	entry, ok := l.locks[token]
	if !ok {
		entry = &tokenLock{}
		l.locks[token] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, token)
		}
		l.mu.Unlock()
	}
}

func (l *tokenLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
