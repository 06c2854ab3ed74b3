package session

import "sync"

// lockTable hands out one mutex per session identifier so state-changing
// calls on the same session serialize while different sessions proceed
// independently. Entries are reference counted and removed when the last
// holder releases, so the table does not grow with session history.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sessionLock)}
}

// acquire blocks until the per-session lock is held and returns the release
// function.
func (t *lockTable) acquire(sessionID string) func() {
	t.mu.Lock()
	l, ok := t.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		t.locks[sessionID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, sessionID)
		}
		t.mu.Unlock()
	}
}
