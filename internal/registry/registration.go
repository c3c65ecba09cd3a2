package registry

import "sync"

type regState int

const (
	regRegistered regState = iota
	regUnregistering
)

// consumerUsage tracks one consumer bundle's outstanding getService usage
// against a single registration, and (for factory-backed registrations) its
// cached instance. mu guarantees the factory is never invoked concurrently
// for this consumer (spec.md §4.5).
type consumerUsage struct {
	mu     sync.Mutex
	usage  int64
	cached any
}

// Registration is a published service (spec.md §3 "Service Registration").
type Registration struct {
	mu sync.Mutex

	id         int64
	bundleID   int64
	interfaces []string
	properties map[string]any
	service    any
	factory    Factory
	state      regState

	consumers  map[int64]*consumerUsage
	totalUsage int64 // guarded by mu; sum of all consumers' usage

	drainCond *sync.Cond
	drainOnce sync.Once
}

// ID returns the registration's immutable, globally monotonic service id.
func (reg *Registration) ID() int64 { return reg.id }

// BundleID returns the id of the bundle that owns this registration.
func (reg *Registration) BundleID() int64 { return reg.bundleID }

// Properties returns a defensive copy of the registration's current
// properties.
func (reg *Registration) Properties() map[string]any {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.propsSnapshotLocked()
}

func (reg *Registration) propsSnapshotLocked() map[string]any {
	out := make(map[string]any, len(reg.properties))
	for k, v := range reg.properties {
		out[k] = v
	}
	return out
}

func (reg *Registration) ranking() int64 {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if v, ok := reg.properties[PropServiceRanking].(int64); ok {
		return v
	}
	return 0
}

// IsUnregistering reports whether unregister has been called on reg.
func (reg *Registration) IsUnregistering() bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.state == regUnregistering
}

// consumerLocked returns (creating if necessary) the usage tracker for
// consumerBundleID. Caller must hold reg.mu.
func (reg *Registration) consumerLocked(consumerBundleID int64) *consumerUsage {
	cu, ok := reg.consumers[consumerBundleID]
	if !ok {
		cu = &consumerUsage{}
		reg.consumers[consumerBundleID] = cu
	}
	return cu
}

func (reg *Registration) ensureDrainCond() *sync.Cond {
	reg.drainOnce.Do(func() {
		reg.drainCond = sync.NewCond(&reg.mu)
	})
	return reg.drainCond
}

// waitForZeroUsage blocks until every consumer's outstanding getService
// usage has dropped to zero (the synchronous-drain unregister policy,
// spec.md §5).
func (reg *Registration) waitForZeroUsage() {
	cond := reg.ensureDrainCond()
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for reg.totalUsage > 0 {
		cond.Wait()
	}
}

// addUsage adjusts the registration's total outstanding usage count and, if
// it has reached zero, wakes any goroutine blocked in waitForZeroUsage.
func (reg *Registration) addUsage(delta int64) {
	cond := reg.ensureDrainCond()
	reg.mu.Lock()
	reg.totalUsage += delta
	drained := reg.totalUsage == 0
	reg.mu.Unlock()
	if drained {
		cond.Broadcast()
	}
}
