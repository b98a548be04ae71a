package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memAssets struct {
	data map[string][]byte
}

func newMemAssets() *memAssets { return &memAssets{data: map[string][]byte{}} }

func (a *memAssets) Has(url string) bool { _, ok := a.data[url]; return ok }

func (a *memAssets) Save(url string, data []byte) error {
	a.data[url] = data
	return nil
}

type stubDownloader struct {
	fail  bool
	calls int
}

func (d *stubDownloader) Download(url string) ([]byte, error) {
	d.calls++
	if d.fail {
		return nil, errors.New("unreachable")
	}
	return []byte("bytes"), nil
}

type mapStatuses map[string]DisplayStatus

func (s mapStatuses) Status(id string) DisplayStatus { return s[id] }

func testMessage(id string, priority int) MessageDefinition {
	return MessageDefinition{
		ID:          id,
		Name:        id,
		Priority:    priority,
		MessageType: TypeModal,
		Payload:     &Payload{Title: id},
		Trigger:     EventFilter{EventType: "session_start"},
		Frequency:   FrequencyAlways,
	}
}

func newTestEngine() (*SelectionEngine, *memAssets, *stubDownloader) {
	assets := newMemAssets()
	dl := &stubDownloader{}
	return NewSelectionEngine(assets, dl, nil), assets, dl
}

func TestPick_EmptyCache(t *testing.T) {
	eng, _, _ := newTestEngine()
	got := eng.Pick(nil, Event{Type: "session_start"}, time.Now(), time.Now(), mapStatuses{})
	assert.Nil(t, got)
}

func TestPick_PriorityTiesOnly(t *testing.T) {
	eng, _, _ := newTestEngine()
	msgs := []MessageDefinition{
		testMessage("A", 2),
		testMessage("B", 2),
		testMessage("C", 1),
	}
	ev := Event{Type: "session_start", Timestamp: time.Now()}

	seen := map[string]int{}
	for i := 0; i < 1000; i++ {
		got := eng.Pick(msgs, ev, time.Now(), time.Now(), mapStatuses{})
		require.NotNil(t, got)
		seen[got.ID]++
	}
	assert.Zero(t, seen["C"], "lower-priority message must never win")
	assert.Positive(t, seen["A"])
	assert.Positive(t, seen["B"])
}

func TestPick_AllNegativePriorities(t *testing.T) {
	eng, _, _ := newTestEngine()
	msgs := []MessageDefinition{
		testMessage("A", -5),
		testMessage("B", -1),
		testMessage("C", -5),
	}

	got := eng.Pick(msgs, Event{Type: "session_start", Timestamp: time.Now()}, time.Now(), time.Now(), mapStatuses{})
	require.NotNil(t, got)
	assert.Equal(t, "B", got.ID, "the highest priority wins even when all are negative")
}

func TestPickTop_SingleNegativeCandidate(t *testing.T) {
	eng, _, _ := newTestEngine()

	got := eng.PickTop([]MessageDefinition{testMessage("only", -1)})
	require.NotNil(t, got)
	assert.Equal(t, "only", got.ID)
}

func TestPick_DeterministicWithStubbedRand(t *testing.T) {
	eng, _, _ := newTestEngine()
	eng.Rand = func(n int) int { return n - 1 }

	msgs := []MessageDefinition{testMessage("A", 1), testMessage("B", 1)}
	got := eng.Pick(msgs, Event{Type: "session_start"}, time.Now(), time.Now(), mapStatuses{})
	require.NotNil(t, got)
	assert.Equal(t, "B", got.ID)
}

func TestPick_FiltersApply(t *testing.T) {
	eng, _, _ := newTestEngine()
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	dated := testMessage("dated", 0)
	dated.DateFilter = DateFilter{Enabled: true, Start: &future}

	wrongTrigger := testMessage("trigger", 0)
	wrongTrigger.Trigger = EventFilter{EventType: "payment"}

	spent := testMessage("spent", 0)
	spent.Frequency = FrequencyOnlyOnce

	ok := testMessage("ok", 0)

	msgs := []MessageDefinition{dated, wrongTrigger, spent, ok}
	statuses := mapStatuses{"spent": {DisplayedAt: &past}}

	got := eng.Pick(msgs, Event{Type: "session_start", Timestamp: now}, now, now, statuses)
	require.NotNil(t, got)
	assert.Equal(t, "ok", got.ID)
}

func TestPick_PayloadlessNonControlExcluded(t *testing.T) {
	eng, _, _ := newTestEngine()
	broken := testMessage("broken", 5)
	broken.Payload = nil

	got := eng.Pick([]MessageDefinition{broken}, Event{Type: "session_start"}, time.Now(), time.Now(), mapStatuses{})
	assert.Nil(t, got)
}

func TestPick_ControlGroupExemptFromAssetCheck(t *testing.T) {
	eng, _, dl := newTestEngine()
	dl.fail = true

	control := testMessage("control", 0)
	control.VariantID = ControlGroupVariantID
	control.Payload = nil

	got := eng.Pick([]MessageDefinition{control}, Event{Type: "session_start"}, time.Now(), time.Now(), mapStatuses{})
	require.NotNil(t, got)
	assert.Equal(t, "control", got.ID)
	assert.Zero(t, dl.calls)
}

func TestPick_AssetFailureDropsForThisEvaluationOnly(t *testing.T) {
	eng, assets, dl := newTestEngine()

	msg := testMessage("img", 0)
	msg.Payload.ImageURL = "https://cdn.example.com/banner.png"
	ev := Event{Type: "session_start", Timestamp: time.Now()}

	dl.fail = true
	got := eng.Pick([]MessageDefinition{msg}, ev, time.Now(), time.Now(), mapStatuses{})
	assert.Nil(t, got, "unreachable asset drops the candidate")

	dl.fail = false
	got = eng.Pick([]MessageDefinition{msg}, ev, time.Now(), time.Now(), mapStatuses{})
	require.NotNil(t, got, "candidate comes back on the next evaluation")
	assert.True(t, assets.Has("https://cdn.example.com/banner.png"))
}

func TestPick_CachedAssetSkipsDownload(t *testing.T) {
	eng, assets, dl := newTestEngine()
	require.NoError(t, assets.Save("https://cdn.example.com/banner.png", []byte("cached")))

	msg := testMessage("img", 0)
	msg.Payload.ImageURL = "https://cdn.example.com/banner.png"

	got := eng.Pick([]MessageDefinition{msg}, Event{Type: "session_start"}, time.Now(), time.Now(), mapStatuses{})
	require.NotNil(t, got)
	assert.Zero(t, dl.calls)
}

func TestEligibleSet_KeepsAllSurvivors(t *testing.T) {
	eng, _, _ := newTestEngine()
	msgs := []MessageDefinition{testMessage("A", 2), testMessage("B", 1)}

	got := eng.EligibleSet(msgs, Event{Type: "session_start"}, time.Now(), time.Now(), mapStatuses{})
	assert.Len(t, got, 2, "eligible set keeps all candidates before priority ranking")
}
