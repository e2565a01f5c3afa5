// Package registry is the in-memory rendezvous point between senders and
// receivers. Each transfer moves through two states:
//
//	WaitingForReceiver --Claim--> WaitingForSender --Extract--> (removed)
//
// Every operation holds the registry lock for a short, non-blocking
// critical section, so no caller ever sees a transfer mid-transition.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"frachter/internal/bridge"
)

// ErrNotFound covers unknown ids and transfers in the wrong state.
var ErrNotFound = errors.New("registry: transfer not found")

// State is the lifecycle position of a transfer still in the registry.
type State int

const (
	WaitingForReceiver State = iota
	WaitingForSender
)

func (s State) String() string {
	switch s {
	case WaitingForReceiver:
		return "waiting_for_receiver"
	case WaitingForSender:
		return "waiting_for_sender"
	default:
		return "unknown"
	}
}

type transfer struct {
	state     State
	createdAt time.Time

	// WaitingForReceiver
	filename    string
	contentType string
	readiness   *Readiness

	// WaitingForSender
	producer *bridge.Producer
	resolver *LengthResolver
}

// release drops every handle the entry still owns so that peers blocked on
// them observe the removal.
func (t *transfer) release() {
	switch t.state {
	case WaitingForReceiver:
		t.readiness.close()
	case WaitingForSender:
		t.resolver.Drop()
		_ = t.producer.Close(nil)
	}
}

// ReceiverInfo is handed to the receiver that claimed a transfer.
type ReceiverInfo struct {
	Filename    string
	ContentType string
	Length      *LengthFuture
	Body        *bridge.Consumer
}

// SenderInfo is handed to the one sender that extracted a transfer.
type SenderInfo struct {
	Producer *bridge.Producer
	Length   *LengthResolver
}

// Registry maps transfer ids to their current state.
type Registry struct {
	mu        sync.Mutex
	transfers map[uuid.UUID]*transfer

	bridgeCapacity int
}

// New returns an empty registry whose bridges hold bridgeCapacity chunks.
func New(bridgeCapacity int) *Registry {
	return &Registry{
		transfers:      make(map[uuid.UUID]*transfer),
		bridgeCapacity: bridgeCapacity,
	}
}

// Create registers a new transfer waiting for a receiver.
func (r *Registry) Create(filename, contentType string) uuid.UUID {
	id := uuid.New()
	t := &transfer{
		state:       WaitingForReceiver,
		createdAt:   time.Now(),
		filename:    filename,
		contentType: contentType,
		readiness:   newReadiness(),
	}

	r.mu.Lock()
	r.transfers[id] = t
	r.mu.Unlock()
	return id
}

// SubscribeReadiness returns the readiness signal of a transfer that is
// still waiting for a receiver.
func (r *Registry) SubscribeReadiness(id uuid.UUID) (*Readiness, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.transfers[id]
	if !ok || t.state != WaitingForReceiver {
		return nil, ErrNotFound
	}
	return t.readiness, nil
}

// Claim attaches a receiver. It allocates the bridge, swaps the entry to
// WaitingForSender and wakes waiters in one step; at most one caller wins.
func (r *Registry) Claim(id uuid.UUID) (*ReceiverInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.transfers[id]
	if !ok || t.state != WaitingForReceiver {
		return nil, ErrNotFound
	}

	producer, consumer := bridge.New(r.bridgeCapacity)
	future, resolver := newLengthSlot()

	info := &ReceiverInfo{
		Filename:    t.filename,
		ContentType: t.contentType,
		Length:      future,
		Body:        consumer,
	}
	readiness := t.readiness

	r.transfers[id] = &transfer{
		state:     WaitingForSender,
		createdAt: t.createdAt,
		producer:  producer,
		resolver:  resolver,
	}
	readiness.set()

	return info, nil
}

// Extract removes a claimed transfer and hands its producer to the caller.
// At most one caller ever succeeds for a given id.
func (r *Registry) Extract(id uuid.UUID) (*SenderInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.transfers[id]
	if !ok || t.state != WaitingForSender {
		return nil, ErrNotFound
	}
	delete(r.transfers, id)

	return &SenderInfo{Producer: t.producer, Length: t.resolver}, nil
}

// Evict removes a transfer in any state and releases what it held. It
// reports whether the id was present.
func (r *Registry) Evict(id uuid.UUID) bool {
	r.mu.Lock()
	t, ok := r.transfers[id]
	if ok {
		delete(r.transfers, id)
	}
	r.mu.Unlock()

	if ok {
		t.release()
	}
	return ok
}

// Lookup reports the state of id, if present.
func (r *Registry) Lookup(id uuid.UUID) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.transfers[id]
	if !ok {
		return 0, false
	}
	return t.state, true
}

// Len returns the number of transfers currently held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.transfers)
}
