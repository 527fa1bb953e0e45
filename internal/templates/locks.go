package templates

import "sync"

// lockSet hands out one RWMutex per template name.
// Compile jobs share a template's read lock; config rewrites take its write lock.
type lockSet struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func newLockSet() *lockSet {
	return &lockSet{locks: make(map[string]*sync.RWMutex)}
}

func (l *lockSet) get(name string) *sync.RWMutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[name]
	if !ok {
		lock = &sync.RWMutex{}
		l.locks[name] = lock
	}
	return lock
}
