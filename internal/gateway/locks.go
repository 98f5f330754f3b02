package gateway

import (
	"sync"

	"github.com/user/neuroclaw/internal/types"
)

// sessionLocks serializes card actions within a session while letting
// different sessions proceed in parallel. Lock entries are reference
// counted so idle sessions do not accumulate.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[types.SessionKey]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[types.SessionKey]*sessionLock)}
}

// Acquire locks the session and returns the matching release func.
func (l *sessionLocks) Acquire(key types.SessionKey) func() {
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &sessionLock{}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
