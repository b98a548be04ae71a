package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inapp-message-engine/internal/engine"
)

func TestMessageCache_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := NewMessageCache(dir)
	require.NoError(t, err)

	msgs := []engine.MessageDefinition{
		{ID: "1", Name: "welcome", Priority: 2, Frequency: engine.FrequencyAlways},
		{ID: "2", Name: "upsell", MessageType: engine.TypeModal},
	}
	before := time.Now()
	c.Save(msgs)

	got := c.Load()
	assert.Equal(t, msgs, got)
	fetched := c.FetchTimestamp()
	assert.False(t, fetched.Before(before))
	assert.False(t, fetched.After(time.Now()))
}

func TestMessageCache_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	c, err := NewMessageCache(dir)
	require.NoError(t, err)
	c.Save([]engine.MessageDefinition{{ID: "1"}})

	reopened, err := NewMessageCache(dir)
	require.NoError(t, err)
	got := reopened.Load()
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
	assert.False(t, reopened.FetchTimestamp().IsZero())
}

func TestMessageCache_SaveReplacesWholesale(t *testing.T) {
	c, err := NewMessageCache(t.TempDir())
	require.NoError(t, err)

	c.Save([]engine.MessageDefinition{{ID: "A"}, {ID: "B"}})
	c.Save([]engine.MessageDefinition{{ID: "C"}})

	got := c.Load()
	require.Len(t, got, 1)
	assert.Equal(t, "C", got[0].ID)
}

func TestMessageCache_CorruptFileDegradesToMiss(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, messagesFile), []byte("{not json"), 0o644))

	c, err := NewMessageCache(dir)
	require.NoError(t, err)
	assert.Empty(t, c.Load())
	assert.True(t, c.FetchTimestamp().IsZero())
}

func TestMessageCache_Clear(t *testing.T) {
	c, err := NewMessageCache(t.TempDir())
	require.NoError(t, err)
	c.Save([]engine.MessageDefinition{{ID: "1"}})

	c.Clear()
	assert.Empty(t, c.Load())
	assert.True(t, c.FetchTimestamp().IsZero())
}
