package controller

import "sync"

// Exclusive gives one caller at a time access to a single-owner resource.
// Both tasks mutate the resources they share, so there is no read-only mode.
type Exclusive[T any] struct {
	mu sync.Mutex
	v  T
}

// NewExclusive wraps v. The caller must not keep other references to v.
func NewExclusive[T any](v T) *Exclusive[T] {
	return &Exclusive[T]{v: v}
}

// With runs fn while holding the lock.
func (e *Exclusive[T]) With(fn func(T) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.v)
}

// Do runs fn while holding e's lock and returns its result.
func Do[T, R any](e *Exclusive[T], fn func(T) (R, error)) (R, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.v)
}
