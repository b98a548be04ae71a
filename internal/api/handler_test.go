package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inapp-message-engine/internal/delivery"
	"inapp-message-engine/internal/engine"
	"inapp-message-engine/internal/storage"
)

type noFetch struct{}

func (noFetch) FetchMessages(context.Context, engine.CustomerIdentity) ([]engine.MessageDefinition, error) {
	return nil, errors.New("no network in tests")
}

type noDownload struct{}

func (noDownload) Download(string) ([]byte, error) {
	return nil, errors.New("no network in tests")
}

func newTestHandler(t *testing.T, msgs ...engine.MessageDefinition) *Handler {
	t.Helper()
	dir := t.TempDir()

	cache, err := storage.NewMessageCache(dir)
	require.NoError(t, err)
	if len(msgs) > 0 {
		cache.Save(msgs)
	}
	ledger, err := storage.NewLedger(dir, 30*24*time.Hour)
	require.NoError(t, err)
	assets, err := storage.NewAssetStore(dir)
	require.NoError(t, err)

	presenter := delivery.NewImmediatePresenter()
	mgr := delivery.NewManager(delivery.Deps{
		Cache:     cache,
		Statuses:  ledger,
		Assets:    assets,
		Engine:    engine.NewSelectionEngine(assets, noDownload{}, nil),
		Fetcher:   noFetch{},
		Presenter: presenter,
	}, delivery.Options{})
	t.Cleanup(mgr.Close)

	return NewHandler(mgr, presenter)
}

func paymentMessage(id string) engine.MessageDefinition {
	return engine.MessageDefinition{
		ID:        id,
		Name:      id,
		Payload:   &engine.Payload{Title: id},
		Trigger:   engine.EventFilter{EventType: "payment"},
		Frequency: engine.FrequencyAlways,
	}
}

func TestEvent_Scenarios(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"missing event type", `{"properties":{}}`, http.StatusBadRequest},
		{"malformed body", `{`, http.StatusBadRequest},
		{"accepted", `{"event_type":"payment","properties":{"price":5}}`, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t)
			req := httptest.NewRequest("POST", "/v1/events", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.Event(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestEligible_Scenarios(t *testing.T) {
	tests := []struct {
		name       string
		msgs       []engine.MessageDefinition
		url        string
		wantStatus int
		wantID     string
	}{
		{"missing event type", nil, "/v1/messages/eligible", http.StatusBadRequest, ""},
		{"empty cache", nil, "/v1/messages/eligible?event_type=payment", http.StatusNoContent, ""},
		{
			"match",
			[]engine.MessageDefinition{paymentMessage("m1")},
			"/v1/messages/eligible?event_type=payment",
			http.StatusOK,
			"m1",
		},
		{
			"no trigger match",
			[]engine.MessageDefinition{paymentMessage("m1")},
			"/v1/messages/eligible?event_type=session_start",
			http.StatusNoContent,
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, tt.msgs...)
			req := httptest.NewRequest("GET", tt.url, nil)
			w := httptest.NewRecorder()
			h.Eligible(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				var msg engine.MessageDefinition
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msg))
				assert.Equal(t, tt.wantID, msg.ID)
			}
		})
	}
}

func TestShowThenDismiss_RoundTrip(t *testing.T) {
	h := newTestHandler(t, paymentMessage("m1"))
	ts := httptest.NewServer(Router(h))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/messages/show", "application/json",
		strings.NewReader(`{"event_type":"payment"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var msg engine.MessageDefinition
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))
	resp.Body.Close()
	assert.Equal(t, "m1", msg.ID)

	resp, err = http.Post(ts.URL+"/v1/messages/m1/dismiss", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	// the presentation slot is freed exactly once
	resp, err = http.Post(ts.URL+"/v1/messages/m1/dismiss", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestShow_NoMatchReturns204(t *testing.T) {
	h := newTestHandler(t, paymentMessage("m1"))
	ts := httptest.NewServer(Router(h))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/messages/show", "application/json",
		strings.NewReader(`{"event_type":"unrelated"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestIdentify_Validation(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest("POST", "/v1/identify", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	h.Identify(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthz(t *testing.T) {
	h := newTestHandler(t)
	ts := httptest.NewServer(Router(h))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
