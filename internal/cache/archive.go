// Package cache gives each bundle a stable filesystem workspace and a
// monotonic revision number (spec.md §4.2), laid out as:
//
//	<cache_root>/bundle<id>/bundle.state
//	<cache_root>/bundle<id>/bundle.location
//	<cache_root>/bundle<id>/revision.<n>/<extracted contents>
//
// Entry lookups within a revision are cached in a bounded LRU
// (github.com/hashicorp/golang-lru/v2) and invalidated on filesystem change
// notifications from github.com/fsnotify/fsnotify.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/apache/celix-go/pkg/celixerr"
	"github.com/apache/celix-go/pkg/logging"
)

// entryCacheCapacity is the per-archive bounded-cache size for GetEntry
// results. Positive values cap, per the max-size convention recorded in
// SPEC_FULL.md §9.
const entryCacheCapacity = 256

// Archive is a bundle's on-disk working directory.
type Archive struct {
	mu sync.Mutex

	root       string // cache root, e.g. ".cache"
	bundleID   int64
	location   string
	revision   int
	isFramework bool // bundle 0 uses the process working directory

	entryCache   *lru.Cache[string, string]
	watcher      *fsnotify.Watcher
	lastAccessed time.Time
	sizeBytes    int64
}

// CreateArchive allocates the on-disk directory for a bundle and records its
// install location. The framework bundle (id 0) uses the process working
// directory for entry lookups rather than a cache subdirectory.
func CreateArchive(root string, bundleID int64, location string) (*Archive, error) {
	a := &Archive{root: root, bundleID: bundleID, location: location, isFramework: bundleID == 0}

	cache, err := lru.New[string, string](entryCacheCapacity)
	if err != nil {
		return nil, celixerr.Wrap(celixerr.IOError, err, "archive: failed to create entry cache")
	}
	a.entryCache = cache

	if a.isFramework {
		return a, nil
	}

	if err := os.MkdirAll(a.bundleDir(), 0o755); err != nil {
		return nil, celixerr.Wrap(celixerr.IOError, err, "archive: failed to create bundle directory for bundle %d", bundleID)
	}
	if err := os.WriteFile(filepath.Join(a.bundleDir(), "bundle.location"), []byte(location), 0o644); err != nil {
		return nil, celixerr.Wrap(celixerr.IOError, err, "archive: failed to write bundle.location for bundle %d", bundleID)
	}
	if err := a.writeState("INSTALLED"); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Archive) bundleDir() string {
	return filepath.Join(a.root, fmt.Sprintf("bundle%d", a.bundleID))
}

func (a *Archive) revisionDir(rev int) string {
	return filepath.Join(a.bundleDir(), fmt.Sprintf("revision.%d", rev))
}

// CurrentRevisionDir returns the directory for the archive's current
// revision; for the framework bundle, that is the process working directory.
func (a *Archive) CurrentRevisionDir() string {
	if a.isFramework {
		wd, err := os.Getwd()
		if err != nil {
			return "."
		}
		return wd
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.revisionDir(a.revision)
}

// Revision returns the current revision number.
func (a *Archive) Revision() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.revision
}

// Location returns the bundle's install location URL.
func (a *Archive) Location() string {
	return a.location
}

// writeState persists the last-known lifecycle state to bundle.state; a
// no-op for the framework bundle.
func (a *Archive) writeState(state string) error {
	if a.isFramework {
		return nil
	}
	path := filepath.Join(a.bundleDir(), "bundle.state")
	if err := os.WriteFile(path, []byte(state), 0o644); err != nil {
		return celixerr.Wrap(celixerr.IOError, err, "archive: failed to write bundle.state for bundle %d", a.bundleID)
	}
	return nil
}

// WriteState persists the bundle's last-known lifecycle state (as a plain
// text label) so that a crashed framework can be inspected post-mortem.
func (a *Archive) WriteState(state string) error {
	return a.writeState(state)
}

// UpdateRevision materializes new bundle content into a fresh, append-only
// revision subdirectory and bumps the revision counter. contents maps
// relative entry paths to file bytes (the caller is responsible for having
// already extracted the bundle zip; zip extraction itself is out of scope
// per spec.md §1).
func (a *Archive) UpdateRevision(contents map[string][]byte) (int, error) {
	if a.isFramework {
		return 0, celixerr.New(celixerr.IllegalState, "archive: the framework bundle has no revisions")
	}

	a.mu.Lock()
	next := a.revision + 1
	if len(contents) == 0 && a.revision == 0 {
		next = 0 // first revision, allow an empty initial content set
	}
	dir := a.revisionDir(next)
	a.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, celixerr.Wrap(celixerr.IOError, err, "archive: failed to create revision directory")
	}

	var size int64
	for relPath, data := range contents {
		full := filepath.Join(dir, relPath)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return 0, celixerr.Wrap(celixerr.IOError, err, "archive: failed to create entry directory for %s", relPath)
		}
		if err := os.WriteFile(full, data, 0o644); err != nil {
			return 0, celixerr.Wrap(celixerr.IOError, err, "archive: failed to write entry %s", relPath)
		}
		size += int64(len(data))
	}

	a.mu.Lock()
	a.revision = next
	a.sizeBytes += size
	a.mu.Unlock()

	a.entryCache.Purge()
	a.rewatch(dir)

	return next, nil
}

// GetEntry resolves a path within the archive's current revision to a
// filesystem path joined onto the revision directory (absolute only when the
// cache root is), or "" if the entry does not exist. Results are
// served from a bounded LRU per archive and invalidated when the underlying
// revision directory changes on disk.
func (a *Archive) GetEntry(path string) (string, error) {
	a.mu.Lock()
	a.lastAccessed = time.Now()
	a.mu.Unlock()

	dir := a.CurrentRevisionDir()
	key := dir + "\x00" + path

	if cached, ok := a.entryCache.Get(key); ok {
		return cached, nil
	}

	full := filepath.Join(dir, path)
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			a.entryCache.Add(key, "")
			return "", nil
		}
		return "", celixerr.Wrap(celixerr.IOError, err, "archive: failed to stat entry %s", path)
	}
	if info.IsDir() {
		a.entryCache.Add(key, "")
		return "", nil
	}
	a.entryCache.Add(key, full)
	return full, nil
}

// SizeBytes reports the cumulative size of all materialized revision
// content written through UpdateRevision.
func (a *Archive) SizeBytes() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sizeBytes
}

// LastAccessed reports the last time GetEntry was called.
func (a *Archive) LastAccessed() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastAccessed
}

// rewatch (re-)establishes an fsnotify watch on dir, purging the entry cache
// on any write/remove/rename event. Failure to establish a watcher (e.g. the
// platform lacks inotify) is logged and otherwise ignored: GetEntry still
// returns correct results, just without cache invalidation on out-of-band
// filesystem edits, acceptable because revisions are append-only for the
// life of the process per spec.md §3.
func (a *Archive) rewatch(dir string) {
	if a.watcher != nil {
		_ = a.watcher.Close()
		a.watcher = nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn("BundleCache", "failed to start filesystem watcher for bundle %d: %v", a.bundleID, err)
		return
	}
	if err := w.Add(dir); err != nil {
		logging.Warn("BundleCache", "failed to watch revision directory for bundle %d: %v", a.bundleID, err)
		_ = w.Close()
		return
	}
	a.watcher = w
	go a.watchLoop(w)
}

func (a *Archive) watchLoop(w *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename|fsnotify.Create) != 0 {
				a.entryCache.Purge()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logging.Warn("BundleCache", "filesystem watcher error for bundle %d: %v", a.bundleID, err)
		}
	}
}

// Close releases the archive's filesystem watcher, if any.
func (a *Archive) Close() error {
	a.mu.Lock()
	w := a.watcher
	a.watcher = nil
	a.mu.Unlock()
	if w != nil {
		return w.Close()
	}
	return nil
}

// Remove deletes the archive's entire bundle directory from the cache root.
// Used during uninstall/framework storage.clean handling.
func (a *Archive) Remove() error {
	_ = a.Close()
	if a.isFramework {
		return nil
	}
	if err := os.RemoveAll(a.bundleDir()); err != nil {
		return celixerr.Wrap(celixerr.IOError, err, "archive: failed to remove bundle directory for bundle %d", a.bundleID)
	}
	return nil
}
