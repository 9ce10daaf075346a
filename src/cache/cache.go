// Package cache is the content-addressed artifact store shared by all
// build stages. Entries are keyed by a digest of a stage's effective
// inputs; a hit lets the scheduler skip the stage entirely.
//
// Entries are never mutated in place. A changed key produces a new entry
// and the old one is simply superseded; external garbage collection of
// entry directories shows up as an ordinary miss.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/stagecraft/src/fsutil"
)

const entryFile = "entry.json"

// CacheCorruptionError describes an inconsistent on-disk entry. It is
// always recovered locally: Lookup reports a miss and the stage rebuilds.
// The type exists so the recovery path can log a precise cause.
type CacheCorruptionError struct {
	Stage  string
	Key    string
	Reason string
}

func (e *CacheCorruptionError) Error() string {
	return fmt.Sprintf("cache entry %s/%s: %s", e.Stage, e.Key, e.Reason)
}

// Cache provides content-addressed stage artifact caching.
type Cache struct {
	Root    string
	Enabled bool
}

// Entry is the persisted metadata for one cached artifact.
type Entry struct {
	Stage     string    `json:"stage"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"createdAt"`
}

// New creates a cache rooted at dir.
func New(dir string, enabled bool) *Cache {
	return &Cache{Root: dir, Enabled: enabled}
}

// Lookup returns the path of the cached artifact tree for a stage/key pair.
// Any inconsistency — missing entry metadata, unreadable JSON, a key
// mismatch, or a missing tree — degrades to a miss, never an error.
func (c *Cache) Lookup(stage, key string) (string, bool) {
	if !c.Enabled {
		return "", false
	}

	dir := c.entryDir(stage, key)
	data, err := os.ReadFile(filepath.Join(dir, entryFile))
	if err != nil {
		return "", false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Key != key {
		corrupt := &CacheCorruptionError{Stage: stage, Key: key, Reason: "unreadable or mismatched metadata"}
		slog.Debug("treating cache entry as miss", "error", corrupt)
		return "", false
	}

	tree := filepath.Join(dir, "tree")
	if fi, err := os.Stat(tree); err != nil || !fi.IsDir() {
		corrupt := &CacheCorruptionError{Stage: stage, Key: key, Reason: "artifact tree missing"}
		slog.Debug("treating cache entry as miss", "error", corrupt)
		return "", false
	}

	return tree, true
}

// Store copies the artifact tree at src into the cache under stage/key and
// returns the persisted entry. The store is atomic per key: the tree and
// metadata are assembled in a temporary sibling directory and renamed into
// place, so a concurrent reader either sees a complete entry or a miss.
// Racing writers for the same key are acceptable; whichever rename lands
// first wins and the loser discards its copy.
func (c *Cache) Store(stage, key, src string) (Entry, error) {
	entry := Entry{Stage: stage, Key: key, CreatedAt: time.Now().UTC()}
	if !c.Enabled {
		return entry, nil
	}

	dir := c.entryDir(stage, key)
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return entry, fmt.Errorf("creating cache dir: %w", err)
	}

	// Assemble next to the final location so the rename stays on one
	// filesystem.
	tmp := dir + ".tmp-" + uuid.NewString()
	if err := fsutil.CopyTree(src, filepath.Join(tmp, "tree")); err != nil {
		os.RemoveAll(tmp)
		return entry, fmt.Errorf("staging cache entry: %w", err)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		os.RemoveAll(tmp)
		return entry, err
	}
	if err := os.WriteFile(filepath.Join(tmp, entryFile), data, 0o644); err != nil {
		os.RemoveAll(tmp)
		return entry, fmt.Errorf("writing cache entry: %w", err)
	}

	if err := os.Rename(tmp, dir); err != nil {
		os.RemoveAll(tmp)
		// A concurrent writer already published this key with the same
		// content. Their entry is as good as ours.
		if _, ok := c.Lookup(stage, key); ok {
			return entry, nil
		}
		return entry, fmt.Errorf("publishing cache entry: %w", err)
	}

	return entry, nil
}

// Clear removes the entire cache directory.
func (c *Cache) Clear() error {
	return os.RemoveAll(c.Root)
}

// Stats walks the cache and reports entry count and total bytes.
func (c *Cache) Stats() (entries int, bytes int64, err error) {
	err = filepath.WalkDir(c.Root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if d.Name() == entryFile {
			entries++
		}
		fi, statErr := d.Info()
		if statErr != nil {
			return nil
		}
		bytes += fi.Size()
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		err = nil
	}
	return entries, bytes, err
}

// entryDir returns the directory for a stage/key pair.
// Uses a 2-char prefix subdirectory to avoid huge flat directories.
func (c *Cache) entryDir(stage, key string) string {
	prefix := key
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	return filepath.Join(c.Root, stage, prefix, key)
}
