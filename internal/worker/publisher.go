package worker

import (
	"sync"

	"github.com/account-sync/internal/types"
)

// Subscriber receives a copy of the status after every transition. The
// received value must not be treated as shared state; each notification
// carries its own copy.
type Subscriber func(types.UpdateStatus)

// StatusPublisher broadcasts refresh status to any number of subscribers.
// Notification is synchronous and runs in subscription order, so a
// subscriber always observes transitions in the order they happened.
type StatusPublisher struct {
	mu          sync.Mutex
	status      types.UpdateStatus
	subscribers []*subscription
}

type subscription struct {
	fn Subscriber
}

// NewStatusPublisher creates a publisher with an idle initial status
func NewStatusPublisher() *StatusPublisher {
	return &StatusPublisher{
		status: types.UpdateStatus{State: types.StateIdle},
	}
}

// Subscribe registers a callback and returns its unsubscribe function.
// Unsubscribing is idempotent and safe during account switches; dropped
// subscriptions never leak.
func (p *StatusPublisher) Subscribe(fn Subscriber) func() {
	sub := &subscription{fn: fn}

	p.mu.Lock()
	p.subscribers = append(p.subscribers, sub)
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, existing := range p.subscribers {
			if existing == sub {
				p.subscribers = append(p.subscribers[:i], p.subscribers[i+1:]...)
				return
			}
		}
	}
}

// Status returns a defensive copy of the current status
func (p *StatusPublisher) Status() types.UpdateStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copyStatus(p.status)
}

// Update applies mutate to the status and notifies all subscribers
// synchronously, each with its own copy.
func (p *StatusPublisher) Update(mutate func(*types.UpdateStatus)) {
	p.mu.Lock()
	mutate(&p.status)
	status := p.status
	subscribers := make([]*subscription, len(p.subscribers))
	copy(subscribers, p.subscribers)
	p.mu.Unlock()

	for _, sub := range subscribers {
		sub.fn(copyStatus(status))
	}
}

// copyStatus deep-copies the time pointers so no subscriber shares memory
// with the publisher's state.
func copyStatus(s types.UpdateStatus) types.UpdateStatus {
	out := s
	if s.LastUpdate != nil {
		t := *s.LastUpdate
		out.LastUpdate = &t
	}
	if s.NextUpdateTime != nil {
		t := *s.NextUpdateTime
		out.NextUpdateTime = &t
	}
	return out
}
