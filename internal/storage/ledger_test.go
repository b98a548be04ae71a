package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const retention = 30 * 24 * time.Hour

func TestLedger_DefaultStatusIsEmpty(t *testing.T) {
	l, err := NewLedger(t.TempDir(), retention)
	require.NoError(t, err)

	st := l.Status("unknown")
	assert.Nil(t, st.DisplayedAt)
	assert.Nil(t, st.InteractedAt)
}

func TestLedger_PartialUpdates(t *testing.T) {
	l, err := NewLedger(t.TempDir(), retention)
	require.NoError(t, err)

	shown := time.Now().Add(-time.Hour)
	clicked := time.Now()

	l.RecordDisplay("m1", shown)
	l.RecordInteraction("m1", clicked)
	l.RecordDisplay("m1", shown) // must not clear the interaction

	st := l.Status("m1")
	require.NotNil(t, st.DisplayedAt)
	require.NotNil(t, st.InteractedAt)
	assert.WithinDuration(t, clicked, *st.InteractedAt, time.Second)
}

func TestLedger_PruneOnLoad(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLedger(dir, retention)
	require.NoError(t, err)

	old := time.Now().Add(-31 * 24 * time.Hour)
	recent := time.Now().Add(-1 * 24 * time.Hour)

	l.RecordDisplay("stale", old)
	l.RecordInteraction("stale", old)
	l.RecordDisplay("half-fresh", old)
	l.RecordInteraction("half-fresh", recent)
	l.RecordDisplay("fresh", recent)

	reopened, err := NewLedger(dir, retention)
	require.NoError(t, err)

	assert.Nil(t, reopened.Status("stale").DisplayedAt, "both timestamps past cutoff: dropped")
	assert.NotNil(t, reopened.Status("half-fresh").InteractedAt, "one recent timestamp keeps the entry")
	assert.NotNil(t, reopened.Status("fresh").DisplayedAt)
}

func TestLedger_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLedger(dir, retention)
	require.NoError(t, err)
	at := time.Now()
	l.RecordDisplay("m1", at)

	reopened, err := NewLedger(dir, retention)
	require.NoError(t, err)
	st := reopened.Status("m1")
	require.NotNil(t, st.DisplayedAt)
	assert.WithinDuration(t, at, *st.DisplayedAt, time.Second)
}

func TestLedger_Clear(t *testing.T) {
	l, err := NewLedger(t.TempDir(), retention)
	require.NoError(t, err)
	l.RecordDisplay("m1", time.Now())

	l.Clear()
	assert.Nil(t, l.Status("m1").DisplayedAt)
}
