package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dpshade/pocket-capsules/internal/models"
)

// cacheVersion changes whenever the parsed capsule shape does; older cache
// files are then ignored and rebuilt.
const cacheVersion = 3

// CapsuleMetadata is the cached parse of one capsule file
type CapsuleMetadata struct {
	Capsule  *models.Capsule `json:"capsule"`
	FilePath string          `json:"file_path"`
	ModTime  time.Time       `json:"mod_time"`
	Size     int64           `json:"size"`
}

type cacheDoc struct {
	Version int                         `json:"version"`
	Entries map[string]*CapsuleMetadata `json:"entries"`
}

// MetadataCache keeps parsed capsules keyed by library-relative path. An
// entry is reused only while the file's size and modification time match.
type MetadataCache struct {
	path    string
	entries map[string]*CapsuleMetadata
	mu      sync.RWMutex
}

func NewMetadataCache(baseDir string) *MetadataCache {
	return &MetadataCache{
		path:    filepath.Join(baseDir, StateDir, "cache", "metadata.json"),
		entries: make(map[string]*CapsuleMetadata),
	}
}

// Load replaces the in-memory entries with the file on disk. Missing,
// corrupt and outdated files leave the cache empty.
func (c *MetadataCache) Load() error {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cache file: %w", err)
	}

	var doc cacheDoc
	if json.Unmarshal(data, &doc) != nil || doc.Version != cacheVersion || doc.Entries == nil {
		doc.Entries = make(map[string]*CapsuleMetadata)
	}

	c.mu.Lock()
	c.entries = doc.Entries
	c.mu.Unlock()
	return nil
}

func (c *MetadataCache) Save() error {
	c.mu.RLock()
	data, err := json.MarshalIndent(cacheDoc{Version: cacheVersion, Entries: c.entries}, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}
	return writeFileAtomic(c.path, data)
}

// Get returns the entry for relPath when info still describes the cached file
func (c *MetadataCache) Get(relPath string, info os.FileInfo) (*CapsuleMetadata, bool) {
	c.mu.RLock()
	entry, ok := c.entries[relPath]
	c.mu.RUnlock()

	if !ok || entry.Capsule == nil {
		return nil, false
	}
	if entry.Size != info.Size() || !entry.ModTime.Equal(info.ModTime()) {
		return nil, false
	}
	return entry, true
}

// Set records capsule as the parse of the file described by info
func (c *MetadataCache) Set(relPath string, info os.FileInfo, capsule *models.Capsule) {
	cp := *capsule
	entry := &CapsuleMetadata{
		Capsule:  &cp,
		FilePath: relPath,
		ModTime:  info.ModTime(),
		Size:     info.Size(),
	}

	c.mu.Lock()
	c.entries[relPath] = entry
	c.mu.Unlock()
}

func (c *MetadataCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ToCapsule returns a copy the caller may modify
func (m *CapsuleMetadata) ToCapsule() *models.Capsule {
	cp := *m.Capsule
	cp.FilePath = m.FilePath
	return &cp
}

// Cleanup keeps only the paths in existing and reports whether it dropped any
func (c *MetadataCache) Cleanup(existing map[string]bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := len(c.entries)
	for p := range c.entries {
		if !existing[p] {
			delete(c.entries, p)
		}
	}
	return len(c.entries) != before
}

// writeFileAtomic replaces path with data so readers never see a partial file
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
