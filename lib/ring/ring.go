// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

// Package ring provides a fixed-capacity circular buffer of entries.
// The SDK uses it for the breadcrumb trail: appends never fail and
// never grow memory; once full, the oldest entry is evicted to make
// room for the newest.
package ring

import "sync"

// Ring is a fixed-capacity FIFO ring. All methods are safe for
// concurrent use.
type Ring[T any] struct {
	mutex    sync.Mutex
	entries  []T
	capacity int
	// next is the slot the next append writes to (0 to capacity-1).
	next int
	// total counts every append ever made; min(total, capacity)
	// entries are currently retained.
	total uint64
}

// New creates a Ring holding at most capacity entries. Panics if
// capacity is not positive.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	return &Ring[T]{
		entries:  make([]T, capacity),
		capacity: capacity,
	}
}

// Append stores entry, evicting the oldest entry when the ring is
// full.
func (r *Ring[T]) Append(entry T) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.entries[r.next] = entry
	r.next = (r.next + 1) % r.capacity
	r.total++
}

// Snapshot returns the retained entries oldest-first. The result is a
// defensive copy: later appends never mutate a snapshot already taken.
func (r *Ring[T]) Snapshot() []T {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	stored := r.lenLocked()
	if stored == 0 {
		return nil
	}

	result := make([]T, stored)
	// The oldest retained entry sits at next-stored, wrapping around.
	start := (r.next - stored + r.capacity) % r.capacity
	for i := 0; i < stored; i++ {
		result[i] = r.entries[(start+i)%r.capacity]
	}
	return result
}

// Len returns the number of retained entries, at most the capacity.
func (r *Ring[T]) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.lenLocked()
}

// Capacity returns the fixed capacity.
func (r *Ring[T]) Capacity() int { return r.capacity }

func (r *Ring[T]) lenLocked() int {
	if r.total < uint64(r.capacity) {
		return int(r.total)
	}
	return r.capacity
}
