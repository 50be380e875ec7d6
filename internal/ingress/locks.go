package ingress

import "dabflow/internal/input"

// SourceLocks binds each live stroke id to the source that first produced a
// non-hover event for it. It is owned by one Router and is not safe for
// concurrent use.
type SourceLocks struct {
	bySID map[uint64]input.Source
}

// NewSourceLocks creates an empty lock table.
func NewSourceLocks() *SourceLocks {
	return &SourceLocks{bySID: make(map[uint64]input.Source)}
}

// Resolve locks id to src on first sight and reports whether src matches
// the lock.
func (l *SourceLocks) Resolve(id uint64, src input.Source) bool {
	locked, ok := l.bySID[id]
	if !ok {
		l.bySID[id] = src
		return true
	}
	return locked == src
}

// Lookup returns the source locked for id.
func (l *SourceLocks) Lookup(id uint64) (input.Source, bool) {
	src, ok := l.bySID[id]
	return src, ok
}

// Release removes the lock for id.
func (l *SourceLocks) Release(id uint64) {
	delete(l.bySID, id)
}

// Clear removes every lock.
func (l *SourceLocks) Clear() {
	clear(l.bySID)
}

// Len returns the number of live locks.
func (l *SourceLocks) Len() int {
	return len(l.bySID)
}
