package services

import "sync"

// userLocks serializes balance mutations per user. The store transaction
// already makes each mutation atomic; the lock additionally orders concurrent
// mutations for the same user so read-compute-write on the balance never
// interleaves. Different users never contend.
//
// Entries are never evicted; the map is bounded by the number of distinct
// users seen by this process.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[int64]*sync.Mutex)}
}

// Lock acquires the lock for userID and returns the unlock function.
func (l *userLocks) Lock(userID int64) func() {
	l.mu.Lock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
