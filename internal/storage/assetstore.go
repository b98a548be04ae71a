package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// AssetStore is a content-addressed binary cache for downloaded images and
// fonts. Keys are hex SHA-256 of the source URL, so identical URLs never
// re-download and entries survive process restarts.
type AssetStore struct {
	dir string
	mu  sync.Mutex
}

func NewAssetStore(dir string) (*AssetStore, error) {
	dir = filepath.Join(dir, "assets")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	return &AssetStore{dir: dir}, nil
}

func assetKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

func (s *AssetStore) pathFor(url string) string {
	return filepath.Join(s.dir, assetKey(url))
}

func (s *AssetStore) Has(url string) bool {
	_, err := os.Stat(s.pathFor(url))
	return err == nil
}

func (s *AssetStore) Save(url string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.pathFor(url)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write asset: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit asset: %w", err)
	}
	return nil
}

func (s *AssetStore) Read(url string) ([]byte, bool) {
	data, err := os.ReadFile(s.pathFor(url))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("url", url).Msg("asset read failed")
		}
		return nil, false
	}
	return data, true
}

// EvictExcept deletes every cached asset whose URL is not in keep. Called
// after each cache refresh so the store tracks the live message set.
func (s *AssetStore) EvictExcept(keep []string) {
	keepKeys := make(map[string]struct{}, len(keep))
	for _, url := range keep {
		keepKeys[assetKey(url)] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Warn().Err(err).Msg("asset eviction scan failed")
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := keepKeys[e.Name()]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			log.Warn().Err(err).Str("key", e.Name()).Msg("asset eviction failed")
		}
	}
}
