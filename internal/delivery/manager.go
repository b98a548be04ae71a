package delivery

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"inapp-message-engine/internal/engine"
)

// ErrClosed is returned by facade calls after Close.
var ErrClosed = errors.New("delivery manager closed")

// laneQueueSize bounds the task channel before do falls back to an
// asynchronous handoff.
const laneQueueSize = 64

// Options are the delivery policy thresholds. Zero values fall back to the
// defaults below.
type Options struct {
	// CacheMaxAge is the staleness threshold: a session start older than
	// this since the last fetch forces a refresh before selection.
	CacheMaxAge time.Duration
	// PendingTTL is the freshness window for replaying queued show
	// requests after a refresh completes.
	PendingTTL time.Duration
	// Now is the clock; replaceable for tests.
	Now func() time.Time
}

func (o *Options) defaults() {
	if o.CacheMaxAge <= 0 {
		o.CacheMaxAge = 30 * time.Minute
	}
	if o.PendingTTL <= 0 {
		o.PendingTTL = 3 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Deps are the stores and collaborators the manager coordinates.
type Deps struct {
	Cache     MessageStore
	Statuses  StatusStore
	Assets    AssetReader
	Engine    *engine.SelectionEngine
	Fetcher   Fetcher
	Presenter Presenter
	Telemetry TelemetrySink
}

// Manager owns the refresh policy, the pending-request queue and the
// presentation gate. All decisions run on one serialized lane (a single
// goroutine draining tasks) so racing refresh, identify and show flows
// never interleave; network work runs off the lane and reports back in.
type Manager struct {
	opts Options
	deps Deps
	now  func() time.Time

	tasks chan func()
	stop  chan struct{}
	once  sync.Once

	// lane-owned state; never touched off the lane
	identity           engine.CustomerIdentity
	sessionStart       time.Time
	fetchInProgress    bool
	identifyInProgress bool
	pending            *pendingQueue
}

func NewManager(deps Deps, opts Options) *Manager {
	opts.defaults()
	if deps.Telemetry == nil {
		deps.Telemetry = NopTelemetry{}
	}
	m := &Manager{
		opts:     opts,
		deps:     deps,
		now:      opts.Now,
		tasks:    make(chan func(), laneQueueSize),
		stop:     make(chan struct{}),
		identity: engine.CustomerIdentity{CookieID: uuid.NewString()},
		pending:  newPendingQueue(),
	}
	go m.run()
	return m
}

func (m *Manager) run() {
	for {
		select {
		case f := <-m.tasks:
			f()
		case <-m.stop:
			return
		}
	}
}

// do posts work onto the serialized lane; dropped after Close. Callbacks
// fired from lane-resident code post back through here, so a full queue
// must never block the caller: the handoff moves to a goroutine instead.
func (m *Manager) do(f func()) {
	select {
	case m.tasks <- f:
		return
	case <-m.stop:
		return
	default:
	}
	go func() {
		select {
		case m.tasks <- f:
		case <-m.stop:
		}
	}()
}

// call runs f on the lane and waits for it.
func (m *Manager) call(f func()) error {
	done := make(chan struct{})
	m.do(func() {
		f()
		close(done)
	})
	select {
	case <-done:
		return nil
	case <-m.stop:
		return ErrClosed
	}
}

func (m *Manager) Close() {
	m.once.Do(func() { close(m.stop) })
}

// OnEventOccurred feeds one behavioral event into the decision state
// machine. Events are processed strictly in arrival order.
func (m *Manager) OnEventOccurred(ev engine.Event) {
	m.do(func() { m.handleEvent(ev) })
}

func (m *Manager) handleEvent(ev engine.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = m.now()
	}
	switch ev.Type {
	case engine.EventSessionStart:
		m.sessionStart = ev.Timestamp
		if m.refreshInFlight() {
			m.pending.enqueue(ev, m.identity, m.now())
			return
		}
		if m.now().Sub(m.deps.Cache.FetchTimestamp()) > m.opts.CacheMaxAge {
			log.Debug().Msg("message cache stale, refreshing before selection")
			m.pending.enqueue(ev, m.identity, m.now())
			m.startRefresh(m.identity)
			return
		}
		m.selectAndPresent(ev, nil)
	case engine.EventSessionEnd, engine.EventPushDelivered, engine.EventPushOpened:
		// freshness opportunity only; never drives a presentation
		if !m.refreshInFlight() {
			m.startRefresh(m.identity)
		}
	default:
		if m.refreshInFlight() {
			m.pending.enqueue(ev, m.identity, m.now())
			return
		}
		m.selectAndPresent(ev, nil)
	}
}

// IdentifyCustomer switches the current customer and refreshes the cache
// for the new identity. The identify event itself is queued so selection
// runs once the fetch lands.
func (m *Manager) IdentifyCustomer(identity engine.CustomerIdentity) {
	m.do(func() {
		m.pending.clear()
		m.deps.Cache.Clear()
		m.identity = identity
		m.identifyInProgress = true
		m.pending.enqueue(engine.Event{Type: engine.EventSessionStart, Timestamp: m.now()}, identity, m.now())
		m.startRefresh(identity)
	})
}

// Anonymize drops every trace of the current customer: cache, ledger,
// assets and queued requests, then starts over with a fresh cookie.
func (m *Manager) Anonymize() {
	m.do(func() {
		m.pending.clear()
		m.deps.Cache.Clear()
		m.deps.Statuses.Clear()
		m.deps.Assets.EvictExcept(nil)
		m.sessionStart = time.Time{}
		m.identity = engine.CustomerIdentity{CookieID: uuid.NewString()}
		m.identifyInProgress = true
		m.startRefresh(m.identity)
	})
}

// RequestRefresh forces a fetch-only refresh, e.g. when the backing store
// signals that definitions changed.
func (m *Manager) RequestRefresh() {
	m.do(func() {
		if !m.refreshInFlight() {
			m.startRefresh(m.identity)
		}
	})
}

// GetEligibleMessage runs the cache-only pipeline: date, trigger and
// frequency filters plus the priority tie-break, no network and no asset
// materialization.
func (m *Manager) GetEligibleMessage(ev engine.Event) *engine.MessageDefinition {
	var out *engine.MessageDefinition
	err := m.call(func() {
		if ev.Timestamp.IsZero() {
			ev.Timestamp = m.now()
		}
		eligible := m.deps.Engine.EligibleSet(m.deps.Cache.Load(), ev, m.now(), m.sessionStart, m.deps.Statuses)
		out = m.deps.Engine.PickTop(eligible)
	})
	if err != nil {
		return nil
	}
	return out
}

// ShowMessage runs the full selection pipeline for the event and attempts
// presentation. It always resolves: nil when nothing is eligible, the
// presenter is busy, or the winner was a control-group member.
func (m *Manager) ShowMessage(ev engine.Event) (*Presented, error) {
	res := make(chan *Presented, 1)
	m.do(func() {
		if ev.Timestamp.IsZero() {
			ev.Timestamp = m.now()
		}
		m.selectAndPresent(ev, res)
	})
	select {
	case p := <-res:
		return p, nil
	case <-m.stop:
		return nil, ErrClosed
	}
}

// CurrentIdentity returns the identity snapshot events are attributed to.
func (m *Manager) CurrentIdentity() engine.CustomerIdentity {
	var id engine.CustomerIdentity
	_ = m.call(func() { id = m.identity })
	return id
}

func (m *Manager) refreshInFlight() bool {
	return m.fetchInProgress || m.identifyInProgress
}

func (m *Manager) startRefresh(identity engine.CustomerIdentity) {
	if m.fetchInProgress {
		return
	}
	m.fetchInProgress = true
	go func() {
		msgs, err := m.deps.Fetcher.FetchMessages(context.Background(), identity)
		m.do(func() { m.finishRefresh(identity, msgs, err) })
	}()
}

// finishRefresh applies a completed fetch on the lane. The identity
// re-check prevents an older in-flight refresh from clobbering cache
// state meant for a newer customer.
func (m *Manager) finishRefresh(forIdentity engine.CustomerIdentity, msgs []engine.MessageDefinition, err error) {
	m.fetchInProgress = false
	m.identifyInProgress = false

	if err != nil {
		log.Error().Err(err).Msg("message fetch failed, cache retained")
		m.deps.Telemetry.Report("fetch_failed", map[string]string{"error": err.Error()})
		// no pending replay this cycle; queued requests expire on their own
		return
	}

	if !forIdentity.Equal(m.identity) {
		log.Warn().Msg("customer changed during fetch, discarding result")
		m.deps.Telemetry.Report("identity_race", nil)
		// Retry once for the latest identity only; anything older was
		// already dropped, so the chain cannot grow unbounded.
		if m.pending.hasFresh(m.now(), m.opts.PendingTTL, m.identity) {
			m.startRefresh(m.identity)
		}
		return
	}

	m.deps.Cache.Save(msgs)
	m.deps.Assets.EvictExcept(m.assetURLs(msgs))
	log.Info().Int("messages", len(msgs)).Msg("message cache refreshed")
	m.deps.Telemetry.Report("cache_refreshed", map[string]string{"count": strconv.Itoa(len(msgs))})

	if req := m.pending.drainFresh(m.now(), m.opts.PendingTTL, m.identity); req != nil {
		m.selectAndPresent(req.Event, nil)
	}
}

func (m *Manager) assetURLs(msgs []engine.MessageDefinition) []string {
	var urls []string
	for _, msg := range msgs {
		urls = append(urls, m.deps.Engine.RequiredAssetURLs(msg)...)
	}
	return urls
}

// selectAndPresent snapshots the lane state, runs selection (asset
// downloads included) off the lane, then re-enters the lane for the
// presentation decision. res, when non-nil, is resolved exactly once.
func (m *Manager) selectAndPresent(ev engine.Event, res chan *Presented) {
	msgs := m.deps.Cache.Load()
	now := m.now()
	sessionStart := m.sessionStart
	go func() {
		picked := m.deps.Engine.Pick(msgs, ev, now, sessionStart, m.deps.Statuses)
		m.do(func() { m.present(picked, res) })
	}()
}

func (m *Manager) present(picked *engine.MessageDefinition, res chan *Presented) {
	if picked == nil {
		resolve(res, nil)
		return
	}
	if picked.IsControlGroup() {
		// logged as shown for measurement, never rendered
		m.deps.Statuses.RecordDisplay(picked.ID, m.now())
		m.deps.Telemetry.Report("control_group_shown", map[string]string{"message_id": picked.ID})
		resolve(res, nil)
		return
	}

	assets := map[string][]byte{}
	for _, url := range m.deps.Engine.RequiredAssetURLs(*picked) {
		if data, ok := m.deps.Assets.Read(url); ok {
			assets[url] = data
		}
	}

	msg := *picked
	cb := oneShot(Callbacks{
		Shown: func() {
			m.do(func() {
				m.deps.Statuses.RecordDisplay(msg.ID, m.now())
				m.deps.Telemetry.Report("message_shown", map[string]string{"message_id": msg.ID, "type": msg.MessageType})
			})
		},
		Dismissed: func() {
			m.do(func() {
				m.deps.Statuses.RecordInteraction(msg.ID, m.now())
				m.deps.Telemetry.Report("message_dismissed", map[string]string{"message_id": msg.ID})
			})
		},
		ActionClicked: func(b engine.Button) {
			m.do(func() {
				m.deps.Statuses.RecordInteraction(msg.ID, m.now())
				m.deps.Telemetry.Report("action_clicked", map[string]string{"message_id": msg.ID, "link": b.Link})
			})
		},
	})

	p, err := m.deps.Presenter.Present(msg, assets, cb)
	if err != nil {
		if errors.Is(err, ErrPresenterBusy) {
			log.Debug().Str("message_id", msg.ID).Msg("presenter busy, skipping")
		} else {
			log.Warn().Err(err).Str("message_id", msg.ID).Msg("presentation failed")
			m.deps.Telemetry.Report("present_failed", map[string]string{"message_id": msg.ID, "error": err.Error()})
		}
		resolve(res, nil)
		return
	}
	resolve(res, p)
}

func resolve(res chan *Presented, p *Presented) {
	if res == nil {
		return
	}
	select {
	case res <- p:
	default:
	}
}
