package queue

import "sync"

// slotLocks hands out one mutex per slot so ranking rewrites for the
// same slot never interleave.
type slotLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSlotLocks() *slotLocks {
	return &slotLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *slotLocks) get(slotID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[slotID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[slotID] = lock
	}
	return lock
}

// lockPair locks both slots in slot-ID order so two reallocations over
// the same pair cannot deadlock. The returned func releases both.
func (l *slotLocks) lockPair(a, b string) func() {
	if a == b {
		lock := l.get(a)
		lock.Lock()
		return lock.Unlock
	}
	first, second := a, b
	if second < first {
		first, second = second, first
	}
	firstLock, secondLock := l.get(first), l.get(second)
	firstLock.Lock()
	secondLock.Lock()
	return func() {
		secondLock.Unlock()
		firstLock.Unlock()
	}
}
