package parcel

import "sync"

type recordLock struct {
	sync.Mutex
	refs        int
	recomputing bool
}

// lockTable serializes the writes on a record inside the process.
// The recomputing marker only lives here: it is never persisted.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*recordLock
}

func newLockTable() *lockTable {
	return &lockTable{locks: map[string]*recordLock{}}
}

// lock waits for the record to be free and returns the function releasing it
func (lt *lockTable) lock(key string) func() {
	lt.mu.Lock()
	l, ok := lt.locks[key]
	if !ok {
		l = &recordLock{}
		lt.locks[key] = l
	}
	l.refs++
	lt.mu.Unlock()

	l.Lock()
	return func() {
		lt.mu.Lock()
		l.recomputing = false
		if l.refs--; l.refs == 0 {
			delete(lt.locks, key)
		}
		lt.mu.Unlock()
		l.Unlock()
	}
}

// setRecomputing must be called while holding the lock of the record
func (lt *lockTable) setRecomputing(key string, recomputing bool) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if l, ok := lt.locks[key]; ok {
		l.recomputing = recomputing
	}
}

// recomputing returns true if the geometry of the record is being derived
func (lt *lockTable) recomputing(key string) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	l, ok := lt.locks[key]
	return ok && l.recomputing
}
