package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"inapp-message-engine/internal/engine"
)

const ledgerFile = "display_status.json"

// Ledger records when each message was last displayed and last interacted
// with. Entries inactive for longer than the retention window are pruned
// on construction, which bounds growth on long-lived installs without
// losing recently-relevant frequency state.
type Ledger struct {
	path      string
	retention time.Duration

	mu      sync.Mutex
	entries map[string]engine.DisplayStatus

	now func() time.Time
}

func NewLedger(dir string, retention time.Duration) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	l := &Ledger{
		path:      filepath.Join(dir, ledgerFile),
		retention: retention,
		entries:   map[string]engine.DisplayStatus{},
		now:       time.Now,
	}
	l.load()
	l.prune()
	return l, nil
}

func (l *Ledger) load() {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", l.path).Msg("ledger read failed, starting empty")
		}
		return
	}
	if err := json.Unmarshal(data, &l.entries); err != nil {
		log.Warn().Err(err).Str("path", l.path).Msg("ledger corrupt, starting empty")
		l.entries = map[string]engine.DisplayStatus{}
	}
}

// prune drops entries whose timestamps are all absent or older than the
// retention cutoff. An entry survives if either timestamp is recent.
func (l *Ledger) prune() {
	cutoff := l.now().Add(-l.retention)
	recent := func(t *time.Time) bool { return t != nil && t.After(cutoff) }

	dropped := 0
	for id, st := range l.entries {
		if recent(st.DisplayedAt) || recent(st.InteractedAt) {
			continue
		}
		delete(l.entries, id)
		dropped++
	}
	if dropped > 0 {
		log.Debug().Int("dropped", dropped).Msg("pruned stale ledger entries")
		l.persist()
	}
}

func (l *Ledger) persist() {
	data, err := json.Marshal(l.entries)
	if err != nil {
		log.Warn().Err(err).Msg("ledger marshal failed")
		return
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Warn().Err(err).Msg("ledger write failed")
		return
	}
	if err := os.Rename(tmp, l.path); err != nil {
		log.Warn().Err(err).Msg("ledger commit failed")
	}
}

// Status returns the record for a message id; both fields nil when the
// message has never been displayed or interacted with.
func (l *Ledger) Status(id string) engine.DisplayStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[id]
}

func (l *Ledger) RecordDisplay(id string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.entries[id]
	st.DisplayedAt = &at
	l.entries[id] = st
	l.persist()
}

func (l *Ledger) RecordInteraction(id string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.entries[id]
	st.InteractedAt = &at
	l.entries[id] = st
	l.persist()
}

func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = map[string]engine.DisplayStatus{}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("ledger clear failed")
	}
}
