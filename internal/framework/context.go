package framework

import (
	"sync"

	"github.com/apache/celix-go/internal/bundle"
	"github.com/apache/celix-go/internal/registry"
	"github.com/apache/celix-go/internal/tracker"
	"github.com/apache/celix-go/pkg/celixerr"
	"github.com/apache/celix-go/pkg/filter"
	"github.com/apache/celix-go/pkg/logging"
)

// Context is the thin façade a bundle activator is given (spec.md §4.8).
// Every handle a Context hands out is tracked so Stop/Destroy can release
// them all idempotently, even if the activator forgot to.
type Context struct {
	fw  *Framework
	b   *bundle.Bundle
	mb  *managedBundle

	mu            sync.Mutex
	references    []*registry.Reference
	trackers      []*tracker.Tracker
	registrations []*registry.Registration
}

func newContext(f *Framework, mb *managedBundle) *Context {
	return &Context{fw: f, b: mb.b, mb: mb}
}

// BundleID returns the id of the bundle this context belongs to.
func (c *Context) BundleID() int64 { return c.b.ID() }

// InstallBundle installs another bundle from location.
func (c *Context) InstallBundle(location string) (*bundle.Bundle, error) {
	return c.fw.InstallBundle(location)
}

// StartBundle starts another bundle by id.
func (c *Context) StartBundle(id int64) error { return c.fw.StartBundle(id) }

// StopBundle stops another bundle by id.
func (c *Context) StopBundle(id int64) error { return c.fw.StopBundle(id) }

// RegisterService publishes svc under name with properties (spec.md §4.5).
// Use RegisterServiceFactory to publish a per-consumer factory instead.
func (c *Context) RegisterService(name string, svc any, properties map[string]any) (*registry.Registration, error) {
	reg, err := c.fw.registry.Register(c.BundleID(), []string{name}, svc, nil, properties)
	if err != nil {
		return nil, err
	}
	c.trackRegistration(reg)
	return reg, nil
}

// RegisterServiceFactory publishes a factory-backed service under name.
func (c *Context) RegisterServiceFactory(name string, factory registry.Factory, properties map[string]any) (*registry.Registration, error) {
	reg, err := c.fw.registry.Register(c.BundleID(), []string{name}, nil, factory, properties)
	if err != nil {
		return nil, err
	}
	c.trackRegistration(reg)
	return reg, nil
}

func (c *Context) trackRegistration(reg *registry.Registration) {
	c.mu.Lock()
	c.registrations = append(c.registrations, reg)
	c.mu.Unlock()
}

// UnregisterService unregisters a registration this context's bundle owns.
func (c *Context) UnregisterService(reg *registry.Registration) error {
	c.mu.Lock()
	for i, cur := range c.registrations {
		if cur == reg {
			c.registrations = append(c.registrations[:i:i], c.registrations[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	return c.fw.registry.Unregister(reg)
}

// GetServiceReferences looks up services by name and/or filter (spec.md
// §4.8). Returned references are tracked by this context.
func (c *Context) GetServiceReferences(name string, f filter.Node) []*registry.Reference {
	refs := c.fw.registry.GetReferences(c.BundleID(), name, f)
	c.mu.Lock()
	c.references = append(c.references, refs...)
	c.mu.Unlock()
	return refs
}

// GetService borrows the service instance behind ref.
func (c *Context) GetService(ref *registry.Reference) (any, error) {
	return c.fw.registry.GetService(ref)
}

// UngetService releases one usage of ref.
func (c *Context) UngetService(ref *registry.Reference) bool {
	return c.fw.registry.UngetService(ref)
}

// UseServiceOptions configures UseService.
type UseServiceOptions struct {
	ServiceName string
	Filter      filter.Node
}

// UseService is a high-level helper: it borrows the single highest-ranked
// matching service, calls fn with it, and releases the reference
// afterwards, whether or not fn returns an error (spec.md §4.8
// "use_service"). Returns celixerr.InvalidReference if no service matches.
func (c *Context) UseService(opts UseServiceOptions, fn func(svc any) error) error {
	refs := c.fw.registry.GetReferences(c.BundleID(), opts.ServiceName, opts.Filter)
	if len(refs) == 0 {
		return celixerr.New(celixerr.InvalidReference, "context: no service matches %q", opts.ServiceName)
	}
	ref := refs[0]
	svc, err := c.fw.registry.GetService(ref)
	if err != nil {
		return err
	}
	defer c.fw.registry.UngetService(ref)
	return fn(svc)
}

// TrackServices opens a tracker for name/opts against the framework
// registry, scoped to this context's bundle, and returns it. The tracker is
// released automatically when the context is released.
func (c *Context) TrackServices(name string, cb tracker.Callbacks, opts ...tracker.Option) *tracker.Tracker {
	t := tracker.New(c.fw.registry, c.fw.dispatch, c.BundleID(), name, cb, opts...)
	t.Open()
	c.mu.Lock()
	c.trackers = append(c.trackers, t)
	c.mu.Unlock()
	return t
}

// StopTracker closes t and removes it from this context's tracked set.
func (c *Context) StopTracker(t *tracker.Tracker) {
	t.Close()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, cur := range c.trackers {
		if cur == t {
			c.trackers = append(c.trackers[:i:i], c.trackers[i+1:]...)
			return
		}
	}
}

// GetProperty returns the framework storage directory for
// "org.osgi.framework.storage" (when one is configured) and the framework
// UUID for "org.osgi.framework.uuid"; for any other key it returns def.
func (c *Context) GetProperty(key, def string) string {
	switch key {
	case "org.osgi.framework.storage":
		if c.fw.config.StorageDir != "" {
			return c.fw.config.StorageDir
		}
	case "org.osgi.framework.uuid":
		return c.fw.uuid
	}
	return def
}

// releaseAll closes every tracker, unregisters every service this context's
// bundle still owns, and drops every reference this context ever handed out
// (spec.md §4.8 invariant: destroying a context releases every handle it
// owns, idempotently; spec.md §4.3 rule 3: stopping a bundle synchronously
// unregisters every service it registered).
func (c *Context) releaseAll() {
	c.mu.Lock()
	trackers := c.trackers
	c.trackers = nil
	regs := c.registrations
	c.registrations = nil
	c.references = nil
	c.mu.Unlock()

	for _, t := range trackers {
		t.Close()
	}
	for _, reg := range regs {
		if err := c.fw.registry.Unregister(reg); err != nil {
			logging.Warn("Framework", "bundle %d: releasing context: %v", c.BundleID(), err)
		}
	}
}
