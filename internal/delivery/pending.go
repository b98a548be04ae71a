package delivery

import (
	"time"

	"github.com/google/uuid"

	"inapp-message-engine/internal/engine"
)

// pendingRequest captures a show request that arrived while a refresh or
// identify flow was in flight. Superseded or dropped, never mutated.
type pendingRequest struct {
	ID        string
	Event     engine.Event
	Identity  engine.CustomerIdentity
	ArrivedAt time.Time
}

// pendingQueue holds at most one request per event type, newest wins.
// It is only touched from the orchestrator's serialized lane, so it needs
// no locking of its own.
type pendingQueue struct {
	byType map[string]pendingRequest
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{byType: map[string]pendingRequest{}}
}

func (q *pendingQueue) enqueue(ev engine.Event, identity engine.CustomerIdentity, at time.Time) {
	q.byType[ev.Type] = pendingRequest{
		ID:        uuid.NewString(),
		Event:     ev,
		Identity:  identity,
		ArrivedAt: at,
	}
}

// drainFresh empties the queue and returns the most recently arrived
// request that is still inside the freshness window and whose captured
// identity matches. Everything else is dropped unconditionally — a stale
// request is never replayed late.
func (q *pendingQueue) drainFresh(now time.Time, ttl time.Duration, identity engine.CustomerIdentity) *pendingRequest {
	var newest *pendingRequest
	for _, req := range q.byType {
		if now.Sub(req.ArrivedAt) > ttl {
			continue
		}
		if !req.Identity.Equal(identity) {
			continue
		}
		r := req
		if newest == nil || r.ArrivedAt.After(newest.ArrivedAt) {
			newest = &r
		}
	}
	q.byType = map[string]pendingRequest{}
	return newest
}

// hasFresh reports whether any request for the given identity is still
// inside the freshness window, without consuming the queue.
func (q *pendingQueue) hasFresh(now time.Time, ttl time.Duration, identity engine.CustomerIdentity) bool {
	for _, req := range q.byType {
		if now.Sub(req.ArrivedAt) <= ttl && req.Identity.Equal(identity) {
			return true
		}
	}
	return false
}

func (q *pendingQueue) clear() {
	q.byType = map[string]pendingRequest{}
}
