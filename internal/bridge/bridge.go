// Package bridge connects the body of one HTTP request to the body of
// another HTTP response through a small bounded queue of byte chunks.
//
// The queue is the only backpressure point between the two connections:
// a Producer blocks once capacity chunks are in flight and resumes when the
// Consumer drains one. Either end can go away; the other end observes it on
// its next operation instead of blocking forever.
package bridge

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// ErrConsumerGone is reported to the producer once the consumer was closed.
var ErrConsumerGone = errors.New("bridge: consumer closed")

// ErrClosed is returned when sending on a producer that was already closed.
var ErrClosed = errors.New("bridge: producer closed")

// SendError is returned by Producer.Send when the consumer went away. The
// chunk was not delivered and is handed back to the caller.
type SendError struct {
	Chunk []byte
}

func (e *SendError) Error() string { return ErrConsumerGone.Error() }

func (e *SendError) Unwrap() error { return ErrConsumerGone }

// item is a queue slot: a chunk or a terminal error.
type item struct {
	data []byte
	err  error
}

type pipe struct {
	queue chan item

	gone     chan struct{} // closed by the consumer
	goneOnce sync.Once

	closeOnce sync.Once // guards close(queue)
	closed    atomic.Bool
}

// New returns the two ends of a bridge holding at most capacity chunks.
func New(capacity int) (*Producer, *Consumer) {
	if capacity < 1 {
		capacity = 1
	}
	p := &pipe{
		queue: make(chan item, capacity),
		gone:  make(chan struct{}),
	}
	return &Producer{p: p}, &Consumer{p: p}
}

// Producer is the write end. It is owned by exactly one sender.
type Producer struct {
	p *pipe
}

// Send queues chunk, blocking while the queue is full. The caller must not
// modify chunk after a successful Send.
func (w *Producer) Send(ctx context.Context, chunk []byte) error {
	if w.p.closed.Load() {
		return ErrClosed
	}
	// Prefer reporting a departed consumer over filling a free slot nobody reads.
	select {
	case <-w.p.gone:
		return &SendError{Chunk: chunk}
	default:
	}

	select {
	case w.p.queue <- item{data: chunk}:
		return nil
	case <-w.p.gone:
		return &SendError{Chunk: chunk}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the stream. A nil err is a clean end of stream; otherwise err
// is delivered to the consumer as the terminal item. If the consumer is
// already gone, err is handed back. Close only has an effect the first time.
func (w *Producer) Close(err error) error {
	var out error
	w.p.closeOnce.Do(func() {
		w.p.closed.Store(true)
		if err != nil {
			select {
			case <-w.p.gone:
				out = err
				close(w.p.queue)
				return
			default:
			}
			select {
			case w.p.queue <- item{err: err}:
			case <-w.p.gone:
				out = err
			}
		}
		close(w.p.queue)
	})
	return out
}

// Consumer is the read end. It is a finite, non-restartable chunk source.
type Consumer struct {
	p *pipe

	pending []byte
	done    error
}

// Next returns the next chunk. It returns io.EOF after a clean close, the
// producer's error after an error close, or ctx's error.
func (r *Consumer) Next(ctx context.Context) ([]byte, error) {
	if r.done != nil {
		return nil, r.done
	}
	if len(r.pending) > 0 {
		chunk := r.pending
		r.pending = nil
		return chunk, nil
	}

	select {
	case it, ok := <-r.p.queue:
		if !ok {
			r.done = io.EOF
			return nil, io.EOF
		}
		if it.err != nil {
			r.done = it.err
			return nil, it.err
		}
		return it.data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Read implements io.Reader on top of Next.
func (r *Consumer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		chunk, err := r.Next(context.Background())
		if err != nil {
			return 0, err
		}
		if len(chunk) == 0 {
			continue
		}
		n := copy(p, chunk)
		if n < len(chunk) {
			r.pending = chunk[n:]
		}
		return n, nil
	}
}

// Close drops the consumer. Blocked and future sends fail with ErrConsumerGone.
func (r *Consumer) Close() error {
	r.p.goneOnce.Do(func() { close(r.p.gone) })
	return nil
}

var _ io.ReadCloser = (*Consumer)(nil)
