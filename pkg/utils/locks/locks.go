/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package locks provides mutexes keyed by an identifier.
package locks

import "sync"

type entry struct {
	sync.Mutex

	// refs counts holders and waiters, the entry is dropped at zero
	refs int
}

// Locks serializes work on one object, keyed by its identifier.
// Keys nobody holds or waits for take no memory.
type Locks[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*entry
}

// NewLocks returns an empty set of keyed locks.
func NewLocks[K comparable]() *Locks[K] {
	return &Locks[K]{entries: make(map[K]*entry)}
}

// Lock blocks until the lock for key is held.
func (l *Locks[K]) Lock(key K) {
	l.mu.Lock()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}

	e.refs++
	l.mu.Unlock()

	e.Lock()
}

// Unlock releases the lock for key. Unlocking a key that is not locked does nothing.
func (l *Locks[K]) Unlock(key K) {
	l.mu.Lock()

	e, ok := l.entries[key]
	if !ok {
		l.mu.Unlock()

		return
	}

	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}

	l.mu.Unlock()

	e.Unlock()
}

// Do runs fn while holding the lock for key.
func (l *Locks[K]) Do(key K, fn func()) {
	l.Lock(key)
	defer l.Unlock(key)

	fn()
}

// Len returns the number of keys that are held or waited for.
func (l *Locks[K]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}
