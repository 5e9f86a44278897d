package syncx

import (
	"context"
	"errors"
	"sync"
)

// ErrSlotClosed is returned by Take once a slot is closed without a cause.
var ErrSlotClosed = errors.New("slot closed")

// Slot is a single-value mailbox with overwrite semantics.
//
// Put never blocks: a new value replaces any value that has not been taken
// yet. Take blocks until a value is present, the slot is closed, or ctx is
// done. Memory use is one T regardless of how fast Put is called.
type Slot[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	value  T
	full   bool
	closed bool
	err    error

	puts  uint64
	drops uint64
}

// NewSlot creates an empty slot.
func NewSlot[T any]() *Slot[T] {
	s := &Slot[T]{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Put stores v, replacing an untaken value. Returns false if the slot is closed.
func (s *Slot[T]) Put(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if s.full {
		s.drops++
	}
	s.value = v
	s.full = true
	s.puts++
	s.cond.Signal()
	return true
}

// Take removes and returns the current value, blocking until one exists.
//
// A value stored before Close is still delivered; after that Take returns the
// close cause. ctx cancellation returns ctx.Err().
func (s *Slot[T]) Take(ctx context.Context) (T, error) {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	for !s.full && !s.closed {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		s.cond.Wait()
	}

	if s.full {
		v := s.value
		s.value = zero
		s.full = false
		return v, nil
	}
	return zero, s.err
}

// CloseWithError closes the slot. The first cause wins; nil means ErrSlotClosed.
func (s *Slot[T]) CloseWithError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if err == nil {
		err = ErrSlotClosed
	}
	s.closed = true
	s.err = err
	s.cond.Broadcast()
}

// Close closes the slot with ErrSlotClosed.
func (s *Slot[T]) Close() { s.CloseWithError(nil) }

// Err returns the close cause, or nil while open.
func (s *Slot[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stats returns total puts and puts that overwrote an untaken value.
func (s *Slot[T]) Stats() (puts, drops uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts, s.drops
}
