// Package coalesce implements a latest-wins single-slot hand-off between any
// number of request producers and one consuming worker.
//
// A new request overwrites a pending one that the worker has not taken yet,
// so a burst of N requests results in at most one execution of the last one
// (plus the execution already in flight, if any).
//
// Example:
//
//	slot := coalesce.New[Request]()
//
//	// producer side, never blocks
//	slot.Put(Request{Zoom: 2})
//
//	// worker side
//	for range slot.Ready() {
//	    if req, ok := slot.Take(); ok {
//	        process(req)
//	    }
//	}
package coalesce

import "sync"

// Slot holds at most one pending value.
type Slot[T any] struct {
	mu       sync.Mutex
	value    T
	pending  bool
	ready    chan struct{}
	dropped  uint64
	accepted uint64
}

// New returns an empty slot.
func New[T any]() *Slot[T] {
	return &Slot[T]{ready: make(chan struct{}, 1)}
}

// Put stores v, replacing any value that has not been taken yet. It reports
// whether a pending value was superseded. Put never blocks.
func (s *Slot[T]) Put(v T) bool {
	s.mu.Lock()
	superseded := s.pending
	if superseded {
		s.dropped++
	}
	s.accepted++
	s.value = v
	s.pending = true
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
	return superseded
}

// Update atomically replaces the pending value with fn(pending, ok). It is used
// when a new request must be merged with an unconsumed one rather than
// replacing it. It reports whether a pending value was merged.
func (s *Slot[T]) Update(fn func(pending T, ok bool) T) bool {
	s.mu.Lock()
	merged := s.pending
	if merged {
		s.dropped++
	}
	s.accepted++
	s.value = fn(s.value, s.pending)
	s.pending = true
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
	return merged
}

// Take returns the pending value and clears the slot.
func (s *Slot[T]) Take() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if !s.pending {
		return zero, false
	}
	v := s.value
	s.value = zero
	s.pending = false
	return v, true
}

// Ready is signalled at least once after every Put. Receivers must call Take
// and tolerate finding the slot empty.
func (s *Slot[T]) Ready() <-chan struct{} {
	return s.ready
}

// Pending reports whether a value is waiting to be taken.
func (s *Slot[T]) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Stats returns the number of accepted and superseded values.
func (s *Slot[T]) Stats() (accepted, dropped uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted, s.dropped
}
