package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"inapp-message-engine/internal/delivery"
	"inapp-message-engine/internal/engine"
)

// Handler exposes the delivery facade over HTTP for server-hosted
// deployments. The client renders messages; dismiss/click come back as
// separate calls.
type Handler struct {
	Mgr       *delivery.Manager
	Presenter *delivery.ImmediatePresenter
}

func NewHandler(mgr *delivery.Manager, presenter *delivery.ImmediatePresenter) *Handler {
	return &Handler{Mgr: mgr, Presenter: presenter}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type eventBody struct {
	EventType  string         `json:"event_type"`
	Properties map[string]any `json:"properties"`
	Timestamp  time.Time      `json:"timestamp"`
}

func (b eventBody) toEvent() engine.Event {
	return engine.Event{Type: b.EventType, Properties: b.Properties, Timestamp: b.Timestamp}
}

// Event ingests one behavioral event; decisions happen asynchronously.
func (h *Handler) Event(w http.ResponseWriter, r *http.Request) {
	var body eventBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.EventType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "event_type is required"})
		return
	}
	h.Mgr.OnEventOccurred(body.toEvent())
	w.WriteHeader(http.StatusAccepted)
}

// Eligible answers the cache-only "show now?" query without any network
// or asset work.
func (h *Handler) Eligible(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	eventType := q.Get("event_type")
	if eventType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "event_type is required"})
		return
	}
	props := map[string]any{}
	for k, vs := range q {
		if k == "event_type" || len(vs) == 0 {
			continue
		}
		props[k] = vs[0]
	}

	msg := h.Mgr.GetEligibleMessage(engine.Event{Type: eventType, Properties: props})
	if msg == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// Show runs the full pipeline and, when something wins, hands the message
// to the client as the presentation surface.
func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	var body eventBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.EventType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "event_type is required"})
		return
	}
	presented, err := h.Mgr.ShowMessage(body.toEvent())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	if presented == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, presented.Message)
}

type identifyBody struct {
	CookieID    string            `json:"cookie_id"`
	ExternalIDs map[string]string `json:"external_ids"`
}

func (h *Handler) Identify(w http.ResponseWriter, r *http.Request) {
	var body identifyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || (body.CookieID == "" && len(body.ExternalIDs) == 0) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cookie_id or external_ids required"})
		return
	}
	h.Mgr.IdentifyCustomer(engine.CustomerIdentity{CookieID: body.CookieID, ExternalIDs: body.ExternalIDs})
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) Anonymize(w http.ResponseWriter, _ *http.Request) {
	h.Mgr.Anonymize()
	w.WriteHeader(http.StatusAccepted)
}

// Dismiss and Click route client-side presentation results back into the
// ledger through the retained callbacks.
func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	if !h.Presenter.Dismiss(chi.URLParam(r, "id")) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) Click(w http.ResponseWriter, r *http.Request) {
	var button engine.Button
	_ = json.NewDecoder(r.Body).Decode(&button)
	if !h.Presenter.Click(chi.URLParam(r, "id"), button) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
