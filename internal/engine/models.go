package engine

import (
	"encoding/json"
	"time"
)

// Message type tags as they appear on the wire.
const (
	TypeModal      = "modal"
	TypeAlert      = "alert"
	TypeFullscreen = "fullscreen"
	TypeSlideIn    = "slide_in"
	TypeFreeform   = "freeform"
)

// ControlGroupVariantID marks a control-group member: logged as shown
// for measurement, never rendered.
const ControlGroupVariantID = -1

// MessageDefinition is one targeted in-app message as fetched from the
// backend. Exactly one of Payload / RawPayload is meaningful per type tag;
// freeform messages carry the opaque RawPayload.
type MessageDefinition struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Priority    int             `json:"load_priority"`
	VariantID   int             `json:"variant_id"`
	VariantName string          `json:"variant_name"`
	MessageType string          `json:"message_type"`
	Payload     *Payload        `json:"payload,omitempty"`
	RawPayload  json.RawMessage `json:"payload_html,omitempty"`
	DateFilter  DateFilter      `json:"date_filter"`
	Trigger     EventFilter     `json:"trigger"`
	Frequency   FrequencyPolicy `json:"frequency"`
}

// Payload is the structured form used by the native message types.
type Payload struct {
	Title    string   `json:"title"`
	BodyText string   `json:"body_text"`
	ImageURL string   `json:"image_url"`
	Buttons  []Button `json:"buttons"`
}

type Button struct {
	Text   string `json:"button_text"`
	Link   string `json:"button_link"`
	Action string `json:"button_type"`
}

func (m *MessageDefinition) IsControlGroup() bool {
	return m.VariantID == ControlGroupVariantID
}

// HasPayload reports whether the message carries anything renderable.
// A non-control message without either payload is malformed and is
// excluded from selection rather than presented empty.
func (m *MessageDefinition) HasPayload() bool {
	return m.Payload != nil || len(m.RawPayload) > 0
}

// DateFilter bounds eligibility to a wall-clock window. Disabled means
// always eligible; a nil bound is open-ended on that side.
type DateFilter struct {
	Enabled bool       `json:"enabled"`
	Start   *time.Time `json:"from_date,omitempty"`
	End     *time.Time `json:"to_date,omitempty"`
}

func (f DateFilter) Contains(now time.Time) bool {
	if !f.Enabled {
		return true
	}
	if f.Start != nil && now.Before(*f.Start) {
		return false
	}
	if f.End != nil && now.After(*f.End) {
		return false
	}
	return true
}

// FrequencyPolicy controls how often a message may be re-shown.
type FrequencyPolicy string

const (
	FrequencyAlways           FrequencyPolicy = "always"
	FrequencyOnlyOnce         FrequencyPolicy = "only_once"
	FrequencyUntilInteraction FrequencyPolicy = "until_visitor_interacts"
	FrequencyOncePerVisit     FrequencyPolicy = "once_per_visit"
)

// DisplayStatus is the per-message ledger record. Partial updates:
// recording a display never clears a prior interaction and vice versa.
type DisplayStatus struct {
	DisplayedAt  *time.Time `json:"displayed_at,omitempty"`
	InteractedAt *time.Time `json:"interacted_at,omitempty"`
}

// Eligible evaluates the frequency policy against the ledger record and
// the current session-start boundary.
func (p FrequencyPolicy) Eligible(status DisplayStatus, sessionStart time.Time) bool {
	switch p {
	case FrequencyOnlyOnce:
		return status.DisplayedAt == nil
	case FrequencyUntilInteraction:
		return status.InteractedAt == nil
	case FrequencyOncePerVisit:
		return status.DisplayedAt == nil || status.DisplayedAt.Before(sessionStart)
	default: // always, or an unknown policy from a newer backend
		return true
	}
}

// Event is one behavioral event flowing through the engine.
type Event struct {
	Type       string         `json:"event_type"`
	Properties map[string]any `json:"properties"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Well-known event types the orchestrator treats specially.
const (
	EventSessionStart  = "session_start"
	EventSessionEnd    = "session_end"
	EventPushDelivered = "campaign_delivered"
	EventPushOpened    = "campaign_opened"
)

// CustomerIdentity is a snapshot of who the events belong to. CookieID is
// the anonymous id assigned at install; ExternalIDs are set by identify.
type CustomerIdentity struct {
	CookieID    string            `json:"cookie_id"`
	ExternalIDs map[string]string `json:"external_ids,omitempty"`
}

func (c CustomerIdentity) Equal(other CustomerIdentity) bool {
	if c.CookieID != other.CookieID || len(c.ExternalIDs) != len(other.ExternalIDs) {
		return false
	}
	for k, v := range c.ExternalIDs {
		if other.ExternalIDs[k] != v {
			return false
		}
	}
	return true
}
