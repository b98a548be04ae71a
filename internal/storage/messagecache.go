package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"inapp-message-engine/internal/cache"
	"inapp-message-engine/internal/engine"
)

const messagesFile = "messages.json"

// CacheSnapshot is the persisted record: the full message set plus the
// timestamp of the last successful fetch. It is replaced wholesale on
// every refresh, never merged.
type CacheSnapshot struct {
	Messages  []engine.MessageDefinition `json:"messages"`
	FetchedAt time.Time                  `json:"fetched_at"`
}

// MessageCache persists the last-known message definitions. Reads go
// through a lock-free snapshot; writers serialize on a mutex and mirror
// every change to disk. Disk failures degrade to cache miss / no-op save.
type MessageCache struct {
	path string
	mu   sync.Mutex
	snap cache.Snapshot[CacheSnapshot]

	now func() time.Time
}

func NewMessageCache(dir string) (*MessageCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	c := &MessageCache{
		path: filepath.Join(dir, messagesFile),
		now:  time.Now,
	}
	c.snap.Store(c.readDisk())
	return c, nil
}

func (c *MessageCache) readDisk() CacheSnapshot {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", c.path).Msg("message cache read failed, treating as empty")
		}
		return CacheSnapshot{}
	}
	var snap CacheSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Str("path", c.path).Msg("message cache corrupt, treating as empty")
		return CacheSnapshot{}
	}
	return snap
}

// Save replaces the cached set and stamps the fetch time. The caller is
// responsible for evicting the asset store against the new set right after.
func (c *MessageCache) Save(msgs []engine.MessageDefinition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := CacheSnapshot{Messages: msgs, FetchedAt: c.now()}
	c.snap.Store(snap)
	if err := c.writeDisk(snap); err != nil {
		log.Warn().Err(err).Msg("message cache write failed")
	}
}

func (c *MessageCache) writeDisk(snap CacheSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal cache snapshot: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache snapshot: %w", err)
	}
	return os.Rename(tmp, c.path)
}

func (c *MessageCache) Load() []engine.MessageDefinition {
	snap, _ := c.snap.Load()
	return snap.Messages
}

func (c *MessageCache) FetchTimestamp() time.Time {
	snap, _ := c.snap.Load()
	return snap.FetchedAt
}

func (c *MessageCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.Store(CacheSnapshot{})
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("message cache clear failed")
	}
}
