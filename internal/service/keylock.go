package service

import "sync"

// keyedMutex hands out one mutex per license key so concurrent activators of
// the same license serialize their count-then-insert section while different
// licenses never block each other. Entries are never evicted; the map grows
// with the number of distinct licenses seen by this process, which is bounded
// by the catalog size.
type keyedMutex struct {
	locks sync.Map
}

// lock acquires the mutex for key and returns the matching unlock.
func (m *keyedMutex) lock(key string) func() {
	v, _ := m.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
