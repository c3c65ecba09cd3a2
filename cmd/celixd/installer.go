package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/apache/celix-go/internal/framework"
	"github.com/apache/celix-go/internal/manifest"
)

// fsInstaller loads a bundle's manifest from <location>/META-INF/MANIFEST.MF
// on disk and looks up its activator in a process-wide registry keyed by the
// manifest's Bundle-Activator header. celixd links in whichever activators
// it needs at compile time; there is no dynamic code loading (spec.md §1
// excludes zip extraction and, by extension, loading arbitrary native code).
type fsInstaller struct {
	mu         sync.Mutex
	activators map[string]func() framework.Activator
}

func newFSInstaller() *fsInstaller {
	return &fsInstaller{activators: make(map[string]func() framework.Activator)}
}

// Register associates a Bundle-Activator header value with a constructor,
// called once per InstallBundle.
func (i *fsInstaller) Register(activatorName string, newActivator func() framework.Activator) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.activators[activatorName] = newActivator
}

func (i *fsInstaller) Load(location string) (*manifest.Manifest, framework.Activator, error) {
	path := filepath.Join(location, "META-INF", "MANIFEST.MF")
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("fsInstaller: %w", err)
	}
	defer f.Close()

	m, err := manifest.Parse(f)
	if err != nil {
		return nil, nil, fmt.Errorf("fsInstaller: %s: %w", path, err)
	}

	var activator framework.Activator = framework.BaseActivator{}
	if m.Activator != "" {
		i.mu.Lock()
		ctor, ok := i.activators[m.Activator]
		i.mu.Unlock()
		if !ok {
			return nil, nil, fmt.Errorf("fsInstaller: no activator registered for %q (bundle %s)", m.Activator, m.SymbolicName)
		}
		activator = ctor()
	}
	return m, activator, nil
}
