// Package keylock provides per-key mutual exclusion. Pipeline stages that
// mutate one property (group changes, consolidation, classification, cache
// refresh) serialize on the property id while unrelated properties proceed
// in parallel; nothing here ever takes a whole-table lock.
package keylock

import (
	"sort"
	"sync"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

// Registry hands out one mutex per key. Entries are reclaimed as soon as the
// last holder unlocks, so the map stays proportional to in-flight work, not
// to the total key space.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func New() *Registry {
	return &Registry{locks: make(map[string]*entry)}
}

// Lock blocks until the key's mutex is held and returns the unlock func.
func (r *Registry) Lock(key string) func() {
	r.mu.Lock()
	e, ok := r.locks[key]
	if !ok {
		e = &entry{}
		r.locks[key] = e
	}
	e.refs++
	r.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		r.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(r.locks, key)
		}
		r.mu.Unlock()
	}
}

// LockPair acquires both keys in sorted order so two goroutines merging the
// same pair from opposite directions cannot deadlock. Locking a key against
// itself acquires once.
func (r *Registry) LockPair(a, b string) func() {
	if a == b {
		return r.Lock(a)
	}
	keys := []string{a, b}
	sort.Strings(keys)
	first := r.Lock(keys[0])
	second := r.Lock(keys[1])
	return func() {
		second()
		first()
	}
}

// InFlight reports how many keys currently hold or wait on a lock.
func (r *Registry) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
