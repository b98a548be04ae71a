package tests

import (
	"fmt"
	"testing"
	"time"

	"inapp-message-engine/internal/engine"
)

type noAssets struct{}

func (noAssets) Has(string) bool           { return true }
func (noAssets) Save(string, []byte) error { return nil }

type noDownload struct{}

func (noDownload) Download(string) ([]byte, error) { return nil, nil }

type emptyStatuses struct{}

func (emptyStatuses) Status(string) engine.DisplayStatus { return engine.DisplayStatus{} }

func BenchmarkPick(b *testing.B) {
	eng := engine.NewSelectionEngine(noAssets{}, noDownload{}, nil)

	msgs := make([]engine.MessageDefinition, 0, 100)
	for i := 0; i < 100; i++ {
		msgs = append(msgs, engine.MessageDefinition{
			ID:        fmt.Sprintf("m%d", i),
			Priority:  i % 5,
			Payload:   &engine.Payload{Title: "t"},
			Trigger:   engine.EventFilter{EventType: "session_start"},
			Frequency: engine.FrequencyAlways,
		})
	}
	ev := engine.Event{Type: "session_start", Timestamp: time.Now()}
	now := time.Now()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = eng.Pick(msgs, ev, now, now, emptyStatuses{})
	}
}
