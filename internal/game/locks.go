package game

import "sync"

// gameLocks hands out one mutex per game id. Entries are reference counted
// and dropped once no caller holds or waits on them.
type gameLocks struct {
	mu    sync.Mutex
	locks map[string]*gameLock
}

type gameLock struct {
	mu   sync.Mutex
	refs int
}

func newGameLocks() *gameLocks {
	return &gameLocks{locks: map[string]*gameLock{}}
}

func (l *gameLocks) lock(gameID string) func() {
	l.mu.Lock()
	gl := l.locks[gameID]
	if gl == nil {
		gl = &gameLock{}
		l.locks[gameID] = gl
	}
	gl.refs++
	l.mu.Unlock()

	gl.mu.Lock()
	return func() {
		gl.mu.Unlock()
		l.mu.Lock()
		gl.refs--
		if gl.refs == 0 {
			delete(l.locks, gameID)
		}
		l.mu.Unlock()
	}
}

func (l *gameLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
