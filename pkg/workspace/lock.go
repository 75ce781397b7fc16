package workspace

import (
	"path/filepath"
	"sync"
)

// Locker hands out one mutex per workspace root so that concurrent writers
// in this process never interleave patch batches on the same tree.
type Locker struct {
	mu    sync.Mutex
	roots map[string]*sync.Mutex
}

// NewLocker creates an empty Locker.
func NewLocker() *Locker {
	return &Locker{roots: make(map[string]*sync.Mutex)}
}

// Lock blocks until root is free and returns the matching unlock function.
func (l *Locker) Lock(root string) func() {
	key := root
	if abs, err := filepath.Abs(root); err == nil {
		key = abs
	}

	l.mu.Lock()
	m, ok := l.roots[key]
	if !ok {
		m = &sync.Mutex{}
		l.roots[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
