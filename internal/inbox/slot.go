package inbox

import "sync"

// MergeFunc combines the value still pending in a slot with a new one.
type MergeFunc[T any] func(pending, next T) T

// Slot holds at most one pending value. Writes that arrive before the
// consumer takes the value are merged into it.
type Slot[T any] struct {
	mu      sync.Mutex
	pending T
	full    bool
	merge   MergeFunc[T]
	wake    chan struct{}
}

// NewSlot returns a slot that signals wake after every Put. A nil merge keeps
// the latest value.
func NewSlot[T any](merge MergeFunc[T], wake chan struct{}) *Slot[T] {
	if merge == nil {
		merge = func(_, next T) T { return next }
	}
	return &Slot[T]{merge: merge, wake: wake}
}

// Put stores or merges v, then signals the consumer. The signal is sent
// after the slot lock is released and never blocks.
func (s *Slot[T]) Put(v T) {
	s.mu.Lock()
	if s.full {
		s.pending = s.merge(s.pending, v)
	} else {
		s.pending = v
		s.full = true
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Take returns the pending value and empties the slot.
func (s *Slot[T]) Take() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if !s.full {
		return zero, false
	}
	v := s.pending
	s.pending = zero
	s.full = false
	return v, true
}

// Modify rewrites the pending value in place without signalling. It is a
// no-op on an empty slot.
func (s *Slot[T]) Modify(fn func(T) T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		s.pending = fn(s.pending)
	}
}
