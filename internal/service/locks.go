package service

import "sync"

// ShopLocker hands out one mutex per shop so status transitions and queue
// recomputation for the same shop never interleave. This closes the window
// where two concurrent transitions could both pass the "barber not already
// serving" check before either commits.
type ShopLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewShopLocker constructs the locker.
func NewShopLocker() *ShopLocker {
	return &ShopLocker{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the shop's mutex and returns the unlock function.
func (l *ShopLocker) Lock(shopID string) func() {
	l.mu.Lock()
	lock, ok := l.locks[shopID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[shopID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
