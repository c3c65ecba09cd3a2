package framework

import (
	"github.com/apache/celix-go/internal/bundle"
	"github.com/apache/celix-go/internal/dispatcher"
	"github.com/apache/celix-go/internal/resolver"
	"github.com/apache/celix-go/pkg/celixerr"
	"github.com/apache/celix-go/pkg/logging"
)

// InstallBundle allocates a bundle id, loads its manifest/activator via the
// framework's Installer, creates its archive, and sets it INSTALLED
// (spec.md §4.3 rule 1).
func (f *Framework) InstallBundle(location string) (*bundle.Bundle, error) {
	f.mu.Lock()
	if f.shuttingDown {
		f.mu.Unlock()
		return nil, celixerr.New(celixerr.FrameworkShutdown, "framework: install rejected, shutdown in progress")
	}
	f.nextBundleID++
	id := f.nextBundleID
	f.mu.Unlock()

	archive, err := f.cache.CreateArchive(id, location)
	if err != nil {
		return nil, err
	}

	m, activator, err := f.installer.Load(location)
	if err != nil {
		_ = archive.Remove()
		return nil, err
	}

	b := bundle.New(id, location, archive)
	b.AddRevision(m)

	f.mu.Lock()
	f.bundles[id] = &managedBundle{b: b, activator: activator}
	f.mu.Unlock()

	f.fireLifecycleEvent(b.ID(), "BUNDLE_INSTALLED")
	logging.Info("Framework", "installed bundle %d (%s) from %s", id, b.SymbolicName(), location)
	return b, nil
}

// resolve runs the resolver against every other known bundle's current
// revision and, on success, transitions b to RESOLVED (spec.md §4.4).
func (f *Framework) resolve(mb *managedBundle) error {
	b := mb.b
	rev := b.CurrentRevision()
	if rev == nil {
		return celixerr.New(celixerr.IllegalState, "framework: bundle %d has no revision", b.ID())
	}

	f.mu.Lock()
	var candidates []resolver.Unit
	for id, other := range f.bundles {
		if id == b.ID() {
			continue
		}
		if otherRev := other.b.CurrentRevision(); otherRev != nil {
			candidates = append(candidates, otherRev)
		}
	}
	f.mu.Unlock()

	wiring, err := resolver.Resolve(rev, candidates)
	if err != nil {
		return err
	}

	b.Lock()
	defer b.Unlock()
	if err := b.SetState(bundle.StateResolved); err != nil {
		return err
	}
	rev.Resolved = true
	for _, w := range wiring {
		rev.Wiring = append(rev.Wiring, bundle.Wire{
			RequirementIndex: w.RequirementIndex,
			ProviderBundleID: w.Provider.OwnerID(),
			ProviderRevision: 0,
		})
	}
	return nil
}

// StartBundle resolves (if necessary) and starts bundle id (spec.md §4.3
// rule 2). On activator failure the bundle rolls back to RESOLVED and the
// error is returned as ACTIVATOR_FAILED; the bundle never remains STARTING.
func (f *Framework) StartBundle(id int64) error {
	mb, err := f.managedBundle(id)
	if err != nil {
		return err
	}
	b := mb.b

	b.Lock()
	state := b.StateLocked()
	switch state {
	case bundle.StateActive:
		b.Unlock()
		return nil
	case bundle.StateStarting:
		b.Unlock()
		return celixerr.New(celixerr.IllegalState, "framework: bundle %d is already starting", id)
	case bundle.StateUninstalled:
		b.Unlock()
		return celixerr.New(celixerr.IllegalState, "framework: cannot start uninstalled bundle %d", id)
	}
	b.Unlock()

	if state != bundle.StateResolved {
		if err := f.resolve(mb); err != nil {
			return celixerr.Wrap(celixerr.ResolveFailed, err, "framework: bundle %d failed to resolve", id)
		}
	}

	b.Lock()
	if err := b.SetState(bundle.StateStarting); err != nil {
		// Another goroutine's start raced us between the checks above and
		// here: report the same tie-break outcomes spec.md §4.3 requires.
		lost := b.StateLocked()
		b.Unlock()
		if lost == bundle.StateActive {
			return nil
		}
		return celixerr.New(celixerr.IllegalState, "framework: bundle %d concurrent start observed state %s", id, lost)
	}
	b.Unlock()
	f.fireLifecycleEvent(id, "BUNDLE_STARTING")

	ctx := newContext(f, mb)
	mb.ctx = ctx

	var userData any
	var startErr error
	if mb.activator != nil {
		userData, startErr = mb.activator.Create(ctx)
		if startErr == nil {
			startErr = mb.activator.Start(userData, ctx)
		}
	}

	if startErr == nil {
		b.SetUserData(userData)
	}

	b.Lock()
	if startErr != nil {
		_ = b.SetState(bundle.StateResolved)
		b.Unlock()
		logging.Error("Framework", startErr, "bundle %d activator start failed", id)
		return celixerr.NewActivatorFailed(id, "start", startErr)
	}
	if err := b.SetState(bundle.StateActive); err != nil {
		b.Unlock()
		return err
	}
	b.Unlock()
	f.fireLifecycleEvent(id, "BUNDLE_STARTED")
	logging.Info("Framework", "started bundle %d (%s)", id, b.SymbolicName())
	return nil
}

// StopBundle stops an ACTIVE bundle (spec.md §4.3 rule 3): invokes the
// activator's stop/destroy hooks, then synchronously unregisters every
// service the bundle still owns and releases every reference it still
// holds, before settling in RESOLVED.
func (f *Framework) StopBundle(id int64) error {
	mb, err := f.managedBundle(id)
	if err != nil {
		return err
	}
	b := mb.b

	b.Lock()
	if b.StateLocked() != bundle.StateActive {
		b.Unlock()
		return nil
	}
	if err := b.SetState(bundle.StateStopping); err != nil {
		b.Unlock()
		return err
	}
	b.Unlock()
	f.fireLifecycleEvent(id, "BUNDLE_STOPPING")

	userData := b.UserData()
	ctx := mb.ctx
	if mb.activator != nil && ctx != nil {
		if err := mb.activator.Stop(userData, ctx); err != nil {
			logging.Error("Framework", err, "bundle %d activator stop returned an error, continuing shutdown", id)
		}
		if err := mb.activator.Destroy(userData, ctx); err != nil {
			logging.Error("Framework", err, "bundle %d activator destroy returned an error, continuing shutdown", id)
		}
	}
	if ctx != nil {
		ctx.releaseAll()
	}
	mb.ctx = nil
	for _, ref := range f.registry.GetReferences(id, "", nil) {
		if reg := ref.Registration(); reg.BundleID() == id {
			if err := f.registry.Unregister(reg); err != nil {
				logging.Warn("Framework", "bundle %d: unregistering owned service %d: %v", id, reg.ID(), err)
			}
		}
	}

	b.Lock()
	if err := b.SetState(bundle.StateResolved); err != nil {
		b.Unlock()
		return err
	}
	b.Unlock()
	f.fireLifecycleEvent(id, "BUNDLE_STOPPED")
	logging.Info("Framework", "stopped bundle %d (%s)", id, b.SymbolicName())
	return nil
}

// UninstallBundle stops the bundle if active, clears its wiring, marks it
// UNINSTALLED, and removes its cache archive (spec.md §4.3 rule 4). The
// Bundle record itself remains in the framework's map until process
// teardown.
func (f *Framework) UninstallBundle(id int64) error {
	mb, err := f.managedBundle(id)
	if err != nil {
		return err
	}
	b := mb.b

	if b.State() == bundle.StateActive {
		if err := f.StopBundle(id); err != nil {
			return err
		}
	}

	b.Lock()
	defer b.Unlock()
	switch b.StateLocked() {
	case bundle.StateResolved, bundle.StateInstalled:
		if err := b.SetState(bundle.StateUninstalled); err != nil {
			return err
		}
	case bundle.StateUninstalled:
		return nil
	default:
		return celixerr.New(celixerr.IllegalState, "framework: cannot uninstall bundle %d from state %s", id, b.StateLocked())
	}

	if rev := b.CurrentRevisionLocked(); rev != nil {
		rev.Wiring = nil
	}
	if err := b.Archive().Remove(); err != nil {
		logging.Error("Framework", err, "failed to remove cache archive for bundle %d", id)
	}
	f.fireLifecycleEvent(id, "BUNDLE_UNINSTALLED")
	logging.Info("Framework", "uninstalled bundle %d", id)
	return nil
}

func (f *Framework) managedBundle(id int64) (*managedBundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookupLocked(id)
}

// fireLifecycleEvent schedules a generic lifecycle notification on the
// dispatcher scoped to bundleID, fire-and-forget (no caller waits on it).
func (f *Framework) fireLifecycleEvent(bundleID int64, label string) {
	_, _ = f.dispatch.Enqueue(&dispatcher.Event{
		BundleID: bundleID,
		Kind:     dispatcher.KindBundleLifecycle,
		Payload:  label,
		Process: func(ev *dispatcher.Event) error {
			logging.Debug("Framework", "%s bundle=%d", label, bundleID)
			return nil
		},
	})
}
