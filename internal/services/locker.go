package services

import "sync"

// ScopeLocker hands out one mutex per scope id so allocation, metric
// updates and subscriber registration for a scope serialize against each
// other while unrelated scopes proceed in parallel. Mutexes are never
// evicted; scope cardinality is tenant-sized, not request-sized.
type ScopeLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewScopeLocker() *ScopeLocker {
	return &ScopeLocker{locks: make(map[string]*sync.Mutex)}
}

// Lock blocks until the scope's mutex is held and returns the matching
// unlock. Callers defer the returned func.
func (l *ScopeLocker) Lock(scopeID string) func() {
	l.mu.Lock()
	m, ok := l.locks[scopeID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[scopeID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
