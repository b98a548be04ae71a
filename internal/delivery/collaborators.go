package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"inapp-message-engine/internal/engine"
)

// ErrPresenterBusy is returned by a Presenter that already has a live
// message on screen. The orchestrator resolves the caller with "none"
// instead of queueing; at-most-one live presentation is the presenter's
// guarantee, not duplicated here.
var ErrPresenterBusy = errors.New("presenter busy")

// Fetcher is the network transport that retrieves message definitions for
// a customer. Single completion; timeout policy lives inside the transport.
type Fetcher interface {
	FetchMessages(ctx context.Context, identity engine.CustomerIdentity) ([]engine.MessageDefinition, error)
}

// Presented is the handle to a message that reached the screen.
type Presented struct {
	Message engine.MessageDefinition
}

// Callbacks are the presentation result hooks. Each fires at most once;
// the orchestrator enforces that with oneShot before handing them over.
type Callbacks struct {
	Shown         func()
	Dismissed     func()
	ActionClicked func(button engine.Button)
}

// Presenter is the on-screen surface for every message style. Present
// must return ErrPresenterBusy when a message is already live.
type Presenter interface {
	Present(msg engine.MessageDefinition, assets map[string][]byte, cb Callbacks) (*Presented, error)
}

// TelemetrySink receives fire-and-forget delivery events.
type TelemetrySink interface {
	Report(kind string, props map[string]string)
}

// NopTelemetry discards everything; handy default for tests and embedders
// that do not care.
type NopTelemetry struct{}

func (NopTelemetry) Report(string, map[string]string) {}

// MessageStore is the persisted message cache the orchestrator owns.
type MessageStore interface {
	Save(msgs []engine.MessageDefinition)
	Load() []engine.MessageDefinition
	FetchTimestamp() time.Time
	Clear()
}

// StatusStore is the display-status ledger.
type StatusStore interface {
	engine.StatusReader
	RecordDisplay(id string, at time.Time)
	RecordInteraction(id string, at time.Time)
	Clear()
}

// AssetReader is the slice of the asset store needed at presentation time.
type AssetReader interface {
	Read(url string) ([]byte, bool)
	EvictExcept(keep []string)
}

// oneShot wraps the result callbacks so double resolution from a
// misbehaving presenter cannot corrupt the ledger.
func oneShot(cb Callbacks) Callbacks {
	var shown, dismissed, clicked sync.Once
	out := Callbacks{}
	if cb.Shown != nil {
		out.Shown = func() { shown.Do(cb.Shown) }
	}
	if cb.Dismissed != nil {
		out.Dismissed = func() { dismissed.Do(cb.Dismissed) }
	}
	if cb.ActionClicked != nil {
		out.ActionClicked = func(b engine.Button) {
			clicked.Do(func() { cb.ActionClicked(b) })
		}
	}
	return out
}
