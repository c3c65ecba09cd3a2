// Package registry implements the service registry (spec.md §4.5): register/
// unregister of services, concurrent lookup by name and filter, reference
// counting, and service factories. The registry's read/write lock is the
// innermost lock in the framework's locking discipline (spec.md §5):
// listeners (service trackers) are always notified after the lock has been
// released, never while it is held.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/apache/celix-go/pkg/celixerr"
	"github.com/apache/celix-go/pkg/filter"
)

// Well-known service property keys (spec.md §6).
const (
	PropObjectClass    = "objectClass"
	PropServiceID      = "service.id"
	PropServiceRanking = "service.ranking"
	PropServicePID     = "service.pid"
)

// Factory lets a registration hand out a per-consumer service instance
// lazily instead of a single shared pointer (spec.md §4.5 "Service
// factories"). The registry guarantees GetService/UngetService are never
// called concurrently for the same consumer bundle.
type Factory interface {
	GetService(consumerBundleID int64, reg *Registration) (any, error)
	UngetService(consumerBundleID int64, reg *Registration, service any)
}

// Registry is the process-wide service registry. The zero value is not
// usable; construct with New.
type Registry struct {
	mu sync.RWMutex

	nextServiceID int64 // atomic

	order      []*Registration            // insertion order, for iteration
	byName     map[string][]*Registration  // service name -> registrations offering it
	listenersM sync.Mutex
	listeners  []Listener

	factoryGroup singleflight.Group
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byName: make(map[string][]*Registration),
	}
}

// Register publishes a new service (spec.md §4.5 "register"). interfaces
// must be non-empty. properties may be nil. Either service or factory must
// be supplied, never both.
func (r *Registry) Register(bundleID int64, interfaces []string, service any, factory Factory, properties map[string]any) (*Registration, error) {
	if len(interfaces) == 0 {
		return nil, celixerr.New(celixerr.IllegalArgument, "registry: register requires at least one interface name")
	}
	if service == nil && factory == nil {
		return nil, celixerr.New(celixerr.IllegalArgument, "registry: register requires a service pointer or a factory")
	}

	props := make(map[string]any, len(properties)+3)
	for k, v := range properties {
		props[k] = v
	}
	id := atomic.AddInt64(&r.nextServiceID, 1)
	props[PropObjectClass] = append([]string(nil), interfaces...)
	props[PropServiceID] = id
	if _, ok := props[PropServiceRanking]; !ok {
		props[PropServiceRanking] = int64(0)
	}

	reg := &Registration{
		id:         id,
		bundleID:   bundleID,
		interfaces: interfaces,
		properties: props,
		service:    service,
		factory:    factory,
		state:      regRegistered,
		consumers:  make(map[int64]*consumerUsage),
	}

	r.mu.Lock()
	r.order = append(r.order, reg)
	for _, name := range interfaces {
		r.byName[name] = append(r.byName[name], reg)
	}
	matching := r.snapshotListeners()
	r.mu.Unlock()

	r.notify(matching, ServiceEvent{Kind: EventRegistered, Reference: newReference(r, reg, bundleID)})
	return reg, nil
}

// Unregister transitions reg to unregistering, delivers SERVICE_UNREGISTERING
// synchronously (spec.md §4.5), removes it from the indices, then blocks
// until every outstanding getService usage for this registration has
// dropped to zero (the "synchronous drain" policy recorded in DESIGN.md).
func (r *Registry) Unregister(reg *Registration) error {
	reg.mu.Lock()
	if reg.state == regUnregistering {
		reg.mu.Unlock()
		return celixerr.New(celixerr.IllegalState, "registry: service %d is already unregistering", reg.id)
	}
	reg.state = regUnregistering
	reg.mu.Unlock()

	r.mu.Lock()
	matching := r.snapshotListeners()
	r.mu.Unlock()
	r.notify(matching, ServiceEvent{Kind: EventUnregistering, Reference: newReference(r, reg, reg.bundleID)})

	r.mu.Lock()
	r.removeFromIndices(reg)
	r.mu.Unlock()

	reg.waitForZeroUsage()
	return nil
}

func (r *Registry) removeFromIndices(reg *Registration) {
	for i, candidate := range r.order {
		if candidate == reg {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	for _, name := range reg.interfaces {
		regs := r.byName[name]
		for i, candidate := range regs {
			if candidate == reg {
				r.byName[name] = append(regs[:i:i], regs[i+1:]...)
				break
			}
		}
		if len(r.byName[name]) == 0 {
			delete(r.byName, name)
		}
	}
}

// GetReferences evaluates name/filter against live registrations and returns
// matches sorted by ranking (spec.md §4.5 "Ranking and tie-break"). Either
// name or f may be empty/nil.
func (r *Registry) GetReferences(consumerBundleID int64, name string, f filter.Node) []*Reference {
	r.mu.RLock()
	var candidates []*Registration
	if name != "" {
		candidates = append(candidates, r.byName[name]...)
	} else {
		candidates = append(candidates, r.order...)
	}

	var matched []*Registration
	for _, reg := range candidates {
		reg.mu.Lock()
		props := reg.propsSnapshotLocked()
		state := reg.state
		reg.mu.Unlock()
		if state != regRegistered {
			continue
		}
		if f != nil && !f.Match(props) {
			continue
		}
		matched = append(matched, reg)
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return rankBefore(matched[i], matched[j])
	})

	refs := make([]*Reference, 0, len(matched))
	for _, reg := range matched {
		refs = append(refs, newReference(r, reg, consumerBundleID))
	}
	return refs
}

// rankBefore reports whether a sorts before b under "higher ranking first,
// then lower service.id first" (spec.md §4.5).
func rankBefore(a, b *Registration) bool {
	ra := a.ranking()
	rb := b.ranking()
	if ra != rb {
		return ra > rb
	}
	return a.id < b.id
}

// GetService borrows the service instance behind ref (spec.md §4.5
// "get_service"). Fails with InvalidReference if the registration is
// unregistering.
func (r *Registry) GetService(ref *Reference) (any, error) {
	reg := ref.registration
	reg.mu.Lock()
	if reg.state != regRegistered {
		reg.mu.Unlock()
		return nil, celixerr.New(celixerr.InvalidReference, "registry: service %d is unregistering", reg.id)
	}
	direct := reg.service
	factory := reg.factory
	cu := reg.consumerLocked(ref.consumerBundleID)
	reg.mu.Unlock()

	cu.mu.Lock()
	defer cu.mu.Unlock()

	cu.usage++
	reg.addUsage(1)

	if factory == nil {
		return direct, nil
	}
	if cu.cached != nil {
		return cu.cached, nil
	}

	key := factoryKey(reg.id, ref.consumerBundleID)
	v, err, _ := r.factoryGroup.Do(key, func() (any, error) {
		return factory.GetService(ref.consumerBundleID, reg)
	})
	if err != nil {
		cu.usage--
		reg.addUsage(-1)
		return nil, err
	}
	cu.cached = v
	return v, nil
}

// UngetService releases one usage of ref; when the consumer's usage reaches
// zero and the registration is factory-backed, UngetService on the factory
// is invoked. Returns whether this was the consumer's last outstanding
// usage.
func (r *Registry) UngetService(ref *Reference) bool {
	reg := ref.registration
	reg.mu.Lock()
	factory := reg.factory
	cu := reg.consumerLocked(ref.consumerBundleID)
	reg.mu.Unlock()

	cu.mu.Lock()
	defer cu.mu.Unlock()

	if cu.usage == 0 {
		return true
	}
	cu.usage--
	reg.addUsage(-1)
	last := cu.usage == 0

	if last && factory != nil && cu.cached != nil {
		factory.UngetService(ref.consumerBundleID, reg, cu.cached)
		cu.cached = nil
	}
	return last
}

// ModifyProperties atomically replaces reg's properties (preserving
// objectClass and service.id) and delivers SERVICE_MODIFIED to every
// currently-registered listener, whether or not it matched before (spec.md
// §4.5): trackers decide for themselves whether this is an ENDMATCH.
func (r *Registry) ModifyProperties(reg *Registration, newProps map[string]any) error {
	reg.mu.Lock()
	if reg.state != regRegistered {
		reg.mu.Unlock()
		return celixerr.New(celixerr.IllegalState, "registry: cannot modify properties of service %d, it is unregistering", reg.id)
	}
	merged := make(map[string]any, len(newProps)+3)
	for k, v := range newProps {
		merged[k] = v
	}
	merged[PropObjectClass] = reg.properties[PropObjectClass]
	merged[PropServiceID] = reg.properties[PropServiceID]
	if _, ok := merged[PropServiceRanking]; !ok {
		merged[PropServiceRanking] = int64(0)
	}
	reg.properties = merged
	reg.mu.Unlock()

	r.mu.RLock()
	matching := r.snapshotListeners()
	r.mu.RUnlock()
	r.notify(matching, ServiceEvent{Kind: EventModified, Reference: newReference(r, reg, reg.bundleID)})
	return nil
}

func factoryKey(serviceID, consumerBundleID int64) string {
	return fmt.Sprintf("%d:%d", serviceID, consumerBundleID)
}
