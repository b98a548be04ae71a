package delivery

import (
	"sync"

	"inapp-message-engine/internal/engine"
)

// ImmediatePresenter is the presenter for server-hosted deployments where
// the client renders the message itself: Present succeeds immediately,
// reports shown, and keeps the result callbacks so a later dismiss or
// click signal from the client can be routed back. It holds at most one
// live presentation, matching the single-flight contract.
type ImmediatePresenter struct {
	mu   sync.Mutex
	live map[string]Callbacks
}

func NewImmediatePresenter() *ImmediatePresenter {
	return &ImmediatePresenter{live: map[string]Callbacks{}}
}

func (p *ImmediatePresenter) Present(msg engine.MessageDefinition, _ map[string][]byte, cb Callbacks) (*Presented, error) {
	p.mu.Lock()
	if len(p.live) > 0 {
		p.mu.Unlock()
		return nil, ErrPresenterBusy
	}
	p.live[msg.ID] = cb
	p.mu.Unlock()

	if cb.Shown != nil {
		cb.Shown()
	}
	return &Presented{Message: msg}, nil
}

// Dismiss routes a client-side dismissal back into the result callbacks
// and frees the presentation slot.
func (p *ImmediatePresenter) Dismiss(messageID string) bool {
	cb, ok := p.take(messageID)
	if !ok {
		return false
	}
	if cb.Dismissed != nil {
		cb.Dismissed()
	}
	return true
}

// Click routes a client-side button click back into the result callbacks
// and frees the presentation slot.
func (p *ImmediatePresenter) Click(messageID string, button engine.Button) bool {
	cb, ok := p.take(messageID)
	if !ok {
		return false
	}
	if cb.ActionClicked != nil {
		cb.ActionClicked(button)
	}
	return true
}

func (p *ImmediatePresenter) take(messageID string) (Callbacks, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cb, ok := p.live[messageID]
	if ok {
		delete(p.live, messageID)
	}
	return cb, ok
}
