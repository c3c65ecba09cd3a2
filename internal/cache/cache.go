package cache

import (
	"os"

	"github.com/apache/celix-go/pkg/celixerr"
	"github.com/apache/celix-go/pkg/logging"
)

// DefaultStorageDir is the default org.osgi.framework.storage value.
const DefaultStorageDir = ".cache"

// Cache is the framework-wide bundle cache root.
type Cache struct {
	root string
}

// New creates a Cache rooted at dir, creating it if necessary. When clean is
// true the root is wiped first (org.osgi.framework.storage.clean).
func New(dir string, clean bool) (*Cache, error) {
	if dir == "" {
		dir = DefaultStorageDir
	}
	if clean {
		if err := os.RemoveAll(dir); err != nil {
			return nil, celixerr.Wrap(celixerr.IOError, err, "cache: failed to clean storage root %s", dir)
		}
		logging.Info("BundleCache", "cleaned storage root %s", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, celixerr.Wrap(celixerr.IOError, err, "cache: failed to create storage root %s", dir)
	}
	return &Cache{root: dir}, nil
}

// Root returns the storage root directory.
func (c *Cache) Root() string {
	return c.root
}

// CreateArchive creates a new per-bundle archive rooted under this cache.
func (c *Cache) CreateArchive(bundleID int64, location string) (*Archive, error) {
	return CreateArchive(c.root, bundleID, location)
}
