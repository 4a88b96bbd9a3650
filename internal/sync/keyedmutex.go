package sync

import gosync "sync"

// keyedMutex serializes work per key while letting work for different
// keys proceed concurrently. Operations scoped to one ParentID must not
// interleave: an edit arriving while a create for the same id is still
// in flight waits for it.
type keyedMutex struct {
	mu      gosync.Mutex
	entries map[string]*keyEntry
}

type keyEntry struct {
	mu   gosync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[string]*keyEntry)}
}

// Lock acquires the mutex for key and returns its unlock function.
// Entries are reference counted and removed when the last holder
// releases, so the map does not grow with the id space.
func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
