package bundle

import (
	"sync"

	"github.com/apache/celix-go/internal/cache"
	"github.com/apache/celix-go/internal/manifest"
	"github.com/apache/celix-go/pkg/version"
)

// Wire records that one of a revision's requirements was satisfied by a
// capability offered by another bundle's revision (spec.md §3, "Wiring").
type Wire struct {
	RequirementIndex int
	ProviderBundleID int64
	ProviderRevision int
}

// Revision is one wiring-visible incarnation of a bundle's content
// (spec.md §3). Once Resolved is true its Wiring is immutable for the
// revision's lifetime.
type Revision struct {
	Number   int
	Manifest *manifest.Manifest
	Resolved bool
	Wiring   []Wire

	owner int64 // owning bundle id, for resolver.Unit.OwnerID
}

// Bundle is the framework's record of one installed unit (spec.md §3).
// State transitions are mutated only by internal/framework, which holds the
// Bundle's Lock() for the duration of a transition and never calls into
// user code or another subsystem's lock while holding it (spec.md §5).
type Bundle struct {
	mu sync.Mutex

	id           int64
	symbolicName string
	location     string
	state        State
	userData     any

	archive   *cache.Archive
	revisions []*Revision
}

// New constructs a Bundle in the INSTALLED state for the given id/location,
// with a nil current revision (populated by AddRevision once the manifest is
// read).
func New(id int64, location string, archive *cache.Archive) *Bundle {
	return &Bundle{
		id:       id,
		location: location,
		state:    StateInstalled,
		archive:  archive,
	}
}

// NewFrameworkBundle constructs the special bundle 0, which starts directly
// in the ACTIVE state once the framework itself is up.
func NewFrameworkBundle(archive *cache.Archive) *Bundle {
	return &Bundle{
		id:           0,
		symbolicName: "org.apache.celix.framework",
		state:        StateActive,
		archive:      archive,
	}
}

func (b *Bundle) ID() int64 { return b.id }

func (b *Bundle) Location() string { return b.location }

func (b *Bundle) Archive() *cache.Archive { return b.archive }

// Lock acquires the bundle's lifecycle lock. Callers (internal/framework)
// must release it before calling into the registry, the dispatcher, or user
// activator code, per the lock ordering in spec.md §5.
func (b *Bundle) Lock()   { b.mu.Lock() }
func (b *Bundle) Unlock() { b.mu.Unlock() }

// State returns the current lifecycle state. Safe to call without holding
// Lock(); State is also read under Lock() by transition logic for a
// consistent snapshot.
func (b *Bundle) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// StateLocked returns the current lifecycle state without acquiring Lock();
// the caller must already hold it. Used by internal/framework when it needs
// to inspect state in the middle of a locked transition sequence.
func (b *Bundle) StateLocked() State {
	return b.state
}

// SetState validates a lifecycle transition against the standard DAG and
// applies it. The caller must already hold Lock(). The framework bundle
// (id 0) is checked the same way as every other bundle; it only differs in
// being constructed directly in ACTIVE by NewFrameworkBundle.
func (b *Bundle) SetState(to State) error {
	if !CanTransition(b.state, to) {
		return &ErrInvalidTransition{From: b.state, To: to}
	}
	b.state = to
	return nil
}

// SymbolicName returns the current revision's symbolic name. With no
// revision it returns the name stored on the bundle: the framework name for
// bundle 0, "" for any other bundle.
func (b *Bundle) SymbolicName() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.revisions) == 0 {
		return b.symbolicName
	}
	return b.revisions[len(b.revisions)-1].Manifest.SymbolicName
}

// Version returns the current revision's version, the zero Version if none.
func (b *Bundle) Version() version.Version {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.revisions) == 0 {
		return version.Zero
	}
	return b.revisions[len(b.revisions)-1].Manifest.Version
}

// UserData returns the activator-produced opaque state.
func (b *Bundle) UserData() any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.userData
}

// SetUserData stores the activator-produced opaque state.
func (b *Bundle) SetUserData(data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.userData = data
}

// AddRevision appends a new, unresolved revision built from m, bumping the
// bundle's revision number, and records its symbolic name for bundle 0 /
// pre-manifest bookkeeping.
func (b *Bundle) AddRevision(m *manifest.Manifest) *Revision {
	b.mu.Lock()
	defer b.mu.Unlock()
	rev := &Revision{Number: len(b.revisions), Manifest: m, owner: b.id}
	b.revisions = append(b.revisions, rev)
	b.symbolicName = m.SymbolicName
	return rev
}

// CurrentRevision returns the most recently added revision, or nil.
func (b *Bundle) CurrentRevision() *Revision {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentRevisionLocked()
}

// CurrentRevisionLocked is the Lock()-already-held counterpart of
// CurrentRevision, for callers (internal/framework) mid-transition.
func (b *Bundle) CurrentRevisionLocked() *Revision {
	return b.currentRevisionLocked()
}

func (b *Bundle) currentRevisionLocked() *Revision {
	if len(b.revisions) == 0 {
		return nil
	}
	return b.revisions[len(b.revisions)-1]
}

// UnitID implements the resolver's Unit interface: it returns the manifest's
// symbolic name as a display name. The owning bundle id, which attributes
// wiring results back to a bundle, is reported by OwnerID.
func (r *Revision) UnitID() string {
	return r.Manifest.SymbolicName
}

// Capabilities implements the resolver's Unit interface.
func (r *Revision) Capabilities() []manifest.Capability {
	return r.Manifest.Capabilities
}

// Requirements implements the resolver's Unit interface.
func (r *Revision) Requirements() []manifest.Requirement {
	return r.Manifest.Requirements
}

// OwnerID implements the resolver's Unit interface: the id of the bundle
// that owns this revision, used for the lowest-bundle-id tie break.
func (r *Revision) OwnerID() int64 {
	return r.owner
}
