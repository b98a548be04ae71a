package engine

import (
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// AssetCache is the slice of the asset store the engine needs while
// materializing candidate assets.
type AssetCache interface {
	Has(url string) bool
	Save(url string, data []byte) error
}

// AssetDownloader fetches one asset synchronously, bounded by its own
// timeout.
type AssetDownloader interface {
	Download(url string) ([]byte, error)
}

// AssetURLCollector extracts the asset URLs an opaque rich-content payload
// references, so they can be preloaded before presentation.
type AssetURLCollector interface {
	CollectAssetURLs(raw []byte) []string
}

// StatusReader is the read side of the display-status ledger.
type StatusReader interface {
	Status(id string) DisplayStatus
}

// SelectionEngine picks at most one eligible message for an event. It is
// stateless apart from its collaborators; all frequency state lives in the
// ledger passed per call.
type SelectionEngine struct {
	assets     AssetCache
	downloader AssetDownloader
	collector  AssetURLCollector

	// Rand picks a uniform index in [0,n); replaceable for deterministic
	// tests.
	Rand func(n int) int
}

func NewSelectionEngine(assets AssetCache, dl AssetDownloader, collector AssetURLCollector) *SelectionEngine {
	return &SelectionEngine{
		assets:     assets,
		downloader: dl,
		collector:  collector,
		Rand:       rand.Intn,
	}
}

// EligibleSet narrows the candidate list by date window, trigger and
// frequency. It does not touch assets or priority; GetEligibleMessage uses
// it for the cache-only query path.
func (e *SelectionEngine) EligibleSet(msgs []MessageDefinition, ev Event, now, sessionStart time.Time, statuses StatusReader) []MessageDefinition {
	var out []MessageDefinition
	for _, m := range msgs {
		if !m.IsControlGroup() && !m.HasPayload() {
			log.Warn().Str("message_id", m.ID).Msg("message has no payload, skipping")
			continue
		}
		if !m.DateFilter.Contains(now) {
			continue
		}
		if !m.Trigger.Matches(ev) {
			continue
		}
		if !m.Frequency.Eligible(statuses.Status(m.ID), sessionStart) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Pick runs the full selection pipeline and returns one message, or nil if
// nothing is eligible. Candidates whose required assets cannot be
// materialized are dropped for this evaluation only; they come back on the
// next qualifying event.
func (e *SelectionEngine) Pick(msgs []MessageDefinition, ev Event, now, sessionStart time.Time, statuses StatusReader) *MessageDefinition {
	eligible := e.EligibleSet(msgs, ev, now, sessionStart, statuses)

	var loaded []MessageDefinition
	for _, m := range eligible {
		if e.materializeAssets(m) {
			loaded = append(loaded, m)
		}
	}
	return e.PickTop(loaded)
}

// PickTop keeps every candidate at the maximum priority (absent priority
// counts as 0) and returns one uniformly at random. The random tie-break
// spreads simultaneous equal-priority campaigns and variants across users.
func (e *SelectionEngine) PickTop(msgs []MessageDefinition) *MessageDefinition {
	if len(msgs) == 0 {
		return nil
	}
	maxPriority := msgs[0].Priority
	for _, m := range msgs[1:] {
		if m.Priority > maxPriority {
			maxPriority = m.Priority
		}
	}
	var top []MessageDefinition
	for _, m := range msgs {
		if m.Priority >= maxPriority {
			top = append(top, m)
		}
	}
	picked := top[e.Rand(len(top))]
	return &picked
}

// RequiredAssetURLs lists the assets a message needs before it can render.
func (e *SelectionEngine) RequiredAssetURLs(m MessageDefinition) []string {
	if m.Payload != nil && m.Payload.ImageURL != "" {
		return []string{m.Payload.ImageURL}
	}
	if len(m.RawPayload) > 0 && e.collector != nil {
		return e.collector.CollectAssetURLs(m.RawPayload)
	}
	return nil
}

// materializeAssets ensures every required asset is in the cache,
// downloading synchronously where missing. A payloadless control-group
// message has nothing to load and always passes.
func (e *SelectionEngine) materializeAssets(m MessageDefinition) bool {
	if m.IsControlGroup() && !m.HasPayload() {
		return true
	}
	for _, url := range e.RequiredAssetURLs(m) {
		if e.assets.Has(url) {
			continue
		}
		data, err := e.downloader.Download(url)
		if err != nil {
			log.Warn().Err(err).Str("message_id", m.ID).Str("url", url).Msg("asset download failed, dropping candidate for this evaluation")
			return false
		}
		if err := e.assets.Save(url, data); err != nil {
			log.Warn().Err(err).Str("url", url).Msg("asset save failed")
			return false
		}
	}
	return true
}
