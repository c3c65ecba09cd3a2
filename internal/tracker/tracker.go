// Package tracker implements service trackers (spec.md §4.6): subscribe to
// registry service events, maintain an ordered-by-ranking view of matching
// services, and optionally expose a single "sticky highest" current service.
// The package has no dependency-manager component type. Callbacks for live
// registry events are scheduled through the dispatcher and run on its
// goroutine, preserving the lock-ordering discipline (registry lock released
// before any user code runs; tracker lock sits below the registry lock,
// spec.md §5).
package tracker

import (
	"sort"
	"sync"

	"github.com/apache/celix-go/internal/dispatcher"
	"github.com/apache/celix-go/internal/registry"
	"github.com/apache/celix-go/pkg/filter"
)

// Callbacks is the user-supplied hook set a Tracker invokes. A nil Adding
// defaults to "track the service unchanged"; all others default to no-op.
// Returning nil from Adding means "do not track this service" (spec.md
// §4.6).
type Callbacks struct {
	Adding   func(ref *registry.Reference) any
	Added    func(ref *registry.Reference, svc any, props map[string]any)
	Modified func(ref *registry.Reference, svc any, props map[string]any)
	Removed  func(ref *registry.Reference, svc any)
}

type trackedEntry struct {
	ref     *registry.Reference
	service any
	ranking int64
}

// Tracker watches a registry for services matching a name and/or filter.
type Tracker struct {
	mu sync.Mutex

	reg          *registry.Registry
	disp         *dispatcher.Dispatcher
	bundleID     int64
	serviceName  string
	filter       filter.Node
	cb           Callbacks
	sticky       bool
	stickyCurrent *trackedEntry

	entries map[int64]*trackedEntry // keyed by service id
	open    bool
}

// Option configures a Tracker at construction time.
type Option func(*Tracker)

// WithFilter restricts tracking to services matching f in addition to name.
func WithFilter(f filter.Node) Option {
	return func(t *Tracker) { t.filter = f }
}

// WithStickyHighest enables "sticky highest" mode (spec.md §4.6): the
// tracker additionally exposes a single current-best service via Current().
func WithStickyHighest() Option {
	return func(t *Tracker) { t.sticky = true }
}

// New creates a Tracker for serviceName (may be "" if filter-only) against
// reg, scheduling callbacks through disp on behalf of bundleID.
func New(reg *registry.Registry, disp *dispatcher.Dispatcher, bundleID int64, serviceName string, cb Callbacks, opts ...Option) *Tracker {
	t := &Tracker{
		reg:         reg,
		disp:        disp,
		bundleID:    bundleID,
		serviceName: serviceName,
		cb:          cb,
		entries:     make(map[int64]*trackedEntry),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Open takes a snapshot of the matching services through GetReferences, runs
// the Adding/Added callbacks for them in ranking order directly on the
// calling goroutine, then subscribes to future service events (spec.md §4.6).
func (t *Tracker) Open() {
	t.mu.Lock()
	if t.open {
		t.mu.Unlock()
		return
	}
	t.open = true
	t.mu.Unlock()

	refs := t.reg.GetReferences(t.bundleID, t.serviceName, t.filter)
	sort.SliceStable(refs, func(i, j int) bool {
		return rankOf(refs[i]) > rankOf(refs[j])
	})
	for _, ref := range refs {
		t.handleAdd(ref)
	}

	t.reg.AddListener(t)
}

// Close unsubscribes from the registry and fires Removed for every currently
// tracked entry.
func (t *Tracker) Close() {
	t.mu.Lock()
	if !t.open {
		t.mu.Unlock()
		return
	}
	t.open = false
	entries := make([]*trackedEntry, 0, len(t.entries))
	for _, e := range t.entries {
		entries = append(entries, e)
	}
	t.entries = make(map[int64]*trackedEntry)
	t.stickyCurrent = nil
	t.mu.Unlock()

	t.reg.RemoveListener(t)
	for _, e := range entries {
		t.fireRemoved(e)
		t.reg.UngetService(e.ref)
	}
}

// Notify implements registry.Listener. It is called synchronously by the
// registry, outside the registry lock (spec.md §5). The callback work runs on
// the dispatcher goroutine, and Notify waits for it to finish, so the call
// that triggered the event returns only after the tracker's callbacks have
// run.
func (t *Tracker) Notify(ev registry.ServiceEvent) {
	if !t.matches(ev.Reference) && ev.Kind != registry.EventUnregistering {
		return
	}
	switch ev.Kind {
	case registry.EventRegistered:
		t.schedule(ev.Reference.ServiceID(), func() { t.handleAdd(ev.Reference) })
	case registry.EventModified:
		t.schedule(ev.Reference.ServiceID(), func() { t.handleModified(ev.Reference) })
	case registry.EventUnregistering:
		t.schedule(ev.Reference.ServiceID(), func() { t.handleRemove(ev.Reference) })
	}
}

func (t *Tracker) matches(ref *registry.Reference) bool {
	props := ref.Properties()
	if t.serviceName != "" {
		names, _ := props[registry.PropObjectClass].([]string)
		found := false
		for _, n := range names {
			if n == t.serviceName {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if t.filter != nil {
		return t.filter.Match(props)
	}
	return true
}

// schedule runs fn through the dispatcher as a generic event scoped to this
// tracker's owning bundle, preserving per-bundle ordering with every other
// event fired on behalf of the same bundle.
func (t *Tracker) schedule(serviceID int64, fn func()) {
	if t.disp == nil {
		fn()
		return
	}
	done := make(chan struct{})
	_, _ = t.disp.Enqueue(&dispatcher.Event{
		BundleID: t.bundleID,
		Kind:     dispatcher.KindService,
		Payload:  serviceID,
		Process: func(ev *dispatcher.Event) error {
			fn()
			return nil
		},
		Done: func(ev *dispatcher.Event, err error) { close(done) },
	})
	<-done
}

func (t *Tracker) handleAdd(ref *registry.Reference) {
	svc, err := t.reg.GetService(ref)
	if err != nil {
		return
	}
	if t.cb.Adding != nil {
		svc = t.cb.Adding(ref)
		if svc == nil {
			t.reg.UngetService(ref)
			return
		}
	}

	entry := &trackedEntry{ref: ref, service: svc, ranking: rankOf(ref)}
	t.mu.Lock()
	t.entries[ref.ServiceID()] = entry
	t.mu.Unlock()

	if t.cb.Added != nil {
		t.cb.Added(ref, svc, ref.Properties())
	}
	t.maybePromote(entry)
}

func (t *Tracker) handleModified(ref *registry.Reference) {
	t.mu.Lock()
	entry, ok := t.entries[ref.ServiceID()]
	t.mu.Unlock()
	if !ok {
		if t.matches(ref) {
			t.handleAdd(ref)
		}
		return
	}

	t.mu.Lock()
	entry.ranking = rankOf(ref)
	t.mu.Unlock()

	if !t.matches(ref) {
		t.handleRemove(ref)
		return
	}
	if t.cb.Modified != nil {
		t.cb.Modified(ref, entry.service, ref.Properties())
	}
	t.maybePromote(entry)
}

func (t *Tracker) handleRemove(ref *registry.Reference) {
	t.mu.Lock()
	entry, ok := t.entries[ref.ServiceID()]
	if ok {
		delete(t.entries, ref.ServiceID())
	}
	wasCurrent := t.stickyCurrent == entry
	if wasCurrent {
		t.stickyCurrent = nil
	}
	t.mu.Unlock()
	if !ok {
		return
	}

	t.fireRemoved(entry)
	t.reg.UngetService(entry.ref)

	if t.sticky && wasCurrent {
		t.promoteNextHighest()
	}
}

func (t *Tracker) fireRemoved(entry *trackedEntry) {
	if t.cb.Removed != nil {
		t.cb.Removed(entry.ref, entry.service)
	}
}

// maybePromote implements "sticky highest": swap the current service only
// when a strictly higher-ranked one arrives.
func (t *Tracker) maybePromote(entry *trackedEntry) {
	if !t.sticky {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stickyCurrent == nil || entry.ranking > t.stickyCurrent.ranking {
		t.stickyCurrent = entry
	}
}

// promoteNextHighest recomputes the sticky-highest entry from the remaining
// tracked set, used after the current one is removed.
func (t *Tracker) promoteNextHighest() {
	t.mu.Lock()
	defer t.mu.Unlock()
	var best *trackedEntry
	for _, e := range t.entries {
		if best == nil || e.ranking > best.ranking {
			best = e
		}
	}
	t.stickyCurrent = best
}

// Current returns the sticky-highest service, or nil if none is tracked or
// the tracker was not opened with WithStickyHighest.
func (t *Tracker) Current() (any, *registry.Reference, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stickyCurrent == nil {
		return nil, nil, false
	}
	return t.stickyCurrent.service, t.stickyCurrent.ref, true
}

// Size returns the number of currently tracked services.
func (t *Tracker) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func rankOf(ref *registry.Reference) int64 {
	if v, ok := ref.Properties()[registry.PropServiceRanking].(int64); ok {
		return v
	}
	return 0
}
