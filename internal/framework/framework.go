// Package framework implements the framework kernel and the bundle context
// API (spec.md §4.8): the process-wide singleton that owns the bundle map,
// drives lifecycle transitions, and exposes the thin façade bundle
// activators call. It is the only package that imports bundle, cache,
// resolver, registry, tracker, and dispatcher together — every lower layer
// stays a leaf to avoid import cycles.
package framework

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/apache/celix-go/internal/bundle"
	"github.com/apache/celix-go/internal/cache"
	"github.com/apache/celix-go/internal/dispatcher"
	"github.com/apache/celix-go/internal/manifest"
	"github.com/apache/celix-go/internal/registry"
	"github.com/apache/celix-go/pkg/celixerr"
	"github.com/apache/celix-go/pkg/logging"
)

// Activator is the contract a bundle implements (spec.md §6). All four
// hooks are optional; a bundle that has none of them is legal and simply
// does nothing at each lifecycle step.
type Activator interface {
	Create(ctx *Context) (userData any, err error)
	Start(userData any, ctx *Context) error
	Stop(userData any, ctx *Context) error
	Destroy(userData any, ctx *Context) error
}

// BaseActivator implements Activator with no-op hooks; embed it to implement
// only the hooks a bundle actually needs.
type BaseActivator struct{}

func (BaseActivator) Create(ctx *Context) (any, error)   { return nil, nil }
func (BaseActivator) Start(userData any, ctx *Context) error   { return nil }
func (BaseActivator) Stop(userData any, ctx *Context) error    { return nil }
func (BaseActivator) Destroy(userData any, ctx *Context) error { return nil }

// Installer loads a bundle's manifest and activator from a location string.
// Concrete implementations interpret the location (a file path, a URL, a
// registered in-process factory key); zip extraction itself is out of scope
// (spec.md §1).
type Installer interface {
	Load(location string) (*manifest.Manifest, Activator, error)
}

// Config is the subset of framework configuration properties the kernel
// reads directly (spec.md §6); internal/config layers these from
// environment, file, and embedded defaults before constructing a Framework.
type Config struct {
	StorageDir   string
	StorageClean bool
	UUID         string
	AutoStart    map[int][]string // ordinal -> bundle locations
}

// Framework is the process-wide singleton (spec.md §3).
type Framework struct {
	mu sync.Mutex

	uuid      string
	config    Config
	cache     *cache.Cache
	registry  *registry.Registry
	dispatch  *dispatcher.Dispatcher
	installer Installer

	nextBundleID int64
	bundles      map[int64]*managedBundle

	shuttingDown bool
}

type managedBundle struct {
	b         *bundle.Bundle
	activator Activator
	ctx       *Context
}

// New constructs a Framework. Call Start to bring up the framework bundle
// and install/start the configured auto-start bundles.
func New(cfg Config, installer Installer) (*Framework, error) {
	c, err := cache.New(cfg.StorageDir, cfg.StorageClean)
	if err != nil {
		return nil, err
	}
	id := cfg.UUID
	if id == "" {
		id = uuid.NewString()
	}

	fwArchive, err := c.CreateArchive(0, "")
	if err != nil {
		return nil, err
	}

	f := &Framework{
		uuid:      id,
		config:    cfg,
		cache:     c,
		registry:  registry.New(),
		dispatch:  dispatcher.New(),
		installer: installer,
		bundles:   make(map[int64]*managedBundle),
	}
	f.bundles[0] = &managedBundle{b: bundle.NewFrameworkBundle(fwArchive)}
	return f, nil
}

// UUID returns the framework instance's fixed identifier.
func (f *Framework) UUID() string { return f.uuid }

// Registry exposes the shared service registry, mainly for internal/metrics
// wiring; bundle code should go through a Context.
func (f *Framework) Registry() *registry.Registry { return f.registry }

// Dispatcher exposes the shared event dispatcher.
func (f *Framework) Dispatcher() *dispatcher.Dispatcher { return f.dispatch }

// Start brings the framework bundle to ACTIVE and installs+starts every
// bundle in the configured auto-start ordinals, in ordinal order (spec.md
// §4.3 rule 5).
func (f *Framework) Start() error {
	f.dispatch.Start()
	logging.Info("Framework", "started framework %s", f.uuid)

	for ordinal := 0; ordinal <= 6; ordinal++ {
		locations := f.config.AutoStart[ordinal]
		for _, loc := range locations {
			b, err := f.InstallBundle(loc)
			if err != nil {
				logging.Error("Framework", err, "auto-start: failed to install %s", loc)
				continue
			}
			if err := f.StartBundle(b.ID()); err != nil {
				logging.Error("Framework", err, "auto-start: failed to start bundle %d (%s)", b.ID(), loc)
			}
		}
	}
	return nil
}

// Stop stops every non-framework bundle, in reverse install order, then shuts
// down the dispatcher. Bundles are stopped, not uninstalled: their records and
// cache archives stay in place.
func (f *Framework) Stop() error {
	f.mu.Lock()
	f.shuttingDown = true
	ids := make([]int64, 0, len(f.bundles))
	for id := range f.bundles {
		if id != 0 {
			ids = append(ids, id)
		}
	}
	f.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for i := len(ids) - 1; i >= 0; i-- {
		id := ids[i]
		if err := f.StopBundle(id); err != nil {
			logging.Error("Framework", err, "shutdown: failed to stop bundle %d", id)
		}
	}

	f.dispatch.Stop()
	logging.Info("Framework", "framework %s stopped", f.uuid)
	return nil
}

func (f *Framework) lookupLocked(id int64) (*managedBundle, error) {
	mb, ok := f.bundles[id]
	if !ok {
		return nil, celixerr.New(celixerr.IllegalArgument, "framework: unknown bundle %d", id)
	}
	return mb, nil
}

// Bundle returns the bundle record for id, for callers (trackers, metrics)
// that need read-only access outside the Context façade.
func (f *Framework) Bundle(id int64) (*bundle.Bundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mb, err := f.lookupLocked(id)
	if err != nil {
		return nil, err
	}
	return mb.b, nil
}

// Bundles returns a snapshot of every bundle id currently known.
func (f *Framework) Bundles() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.bundles))
	for id := range f.bundles {
		ids = append(ids, id)
	}
	return ids
}
