package registry

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrSenderGone means the sender side went away before declaring a length.
	ErrSenderGone = errors.New("registry: sender disconnected")
	// ErrReceiverGone means the receiver stopped waiting for the length.
	ErrReceiverGone = errors.New("registry: receiver disconnected")
)

// Length is the body length declared by the sender. Known is false when the
// sender did not announce one.
type Length struct {
	N     int64
	Known bool
}

// lengthSlot is a one-shot handoff of a Length from sender to receiver.
type lengthSlot struct {
	ch   chan Length
	once sync.Once

	gone     chan struct{}
	goneOnce sync.Once
}

func newLengthSlot() (*LengthFuture, *LengthResolver) {
	s := &lengthSlot{
		ch:   make(chan Length, 1),
		gone: make(chan struct{}),
	}
	return &LengthFuture{s: s}, &LengthResolver{s: s}
}

// LengthFuture is the receiver's half.
type LengthFuture struct {
	s *lengthSlot
}

// Wait returns the declared length, ErrSenderGone if the resolver was
// dropped unresolved, or ctx's error.
func (f *LengthFuture) Wait(ctx context.Context) (Length, error) {
	select {
	case l, ok := <-f.s.ch:
		if !ok {
			return Length{}, ErrSenderGone
		}
		return l, nil
	case <-ctx.Done():
		return Length{}, ctx.Err()
	}
}

// Abandon tells the sender nobody is waiting anymore.
func (f *LengthFuture) Abandon() {
	f.s.goneOnce.Do(func() { close(f.s.gone) })
}

// LengthResolver is the sender's half.
type LengthResolver struct {
	s *lengthSlot
}

// Resolve delivers l. It fails with ErrReceiverGone when the receiver
// abandoned the future, and with ErrSenderGone when the resolver was
// already used or dropped.
func (r *LengthResolver) Resolve(l Length) error {
	select {
	case <-r.s.gone:
		return ErrReceiverGone
	default:
	}
	err := ErrSenderGone
	r.s.once.Do(func() {
		r.s.ch <- l
		err = nil
	})
	return err
}

// Drop releases the resolver without a value; a waiting receiver gets
// ErrSenderGone. Dropping after Resolve has no effect.
func (r *LengthResolver) Drop() {
	r.s.once.Do(func() { close(r.s.ch) })
}
