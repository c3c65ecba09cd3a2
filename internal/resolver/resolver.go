// Package resolver implements requirement-capability wiring across bundle
// revisions (spec.md §4.4): given a revision with unresolved requirements,
// search every other known revision's capabilities for the highest-version
// match, breaking ties by the lowest owning unit id.
//
// The resolver never imports internal/bundle. It defines its own narrow Unit
// interface; internal/bundle.Revision satisfies it structurally, which keeps
// the dependency graph a DAG (bundle -> cache, resolver -> manifest, both
// leaves under internal/framework).
package resolver

import (
	kerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/apache/celix-go/internal/manifest"
	"github.com/apache/celix-go/pkg/celixerr"
)

// Unit is anything the resolver can wire: a bundle revision's id, the
// capabilities it offers, and the requirements it needs.
type Unit interface {
	UnitID() string
	Capabilities() []manifest.Capability
	Requirements() []manifest.Requirement
	// OwnerID returns the numeric id used for the lowest-bundle-id tie
	// break (spec.md §4.4). Distinct from UnitID, which is a display name.
	OwnerID() int64
}

// Wiring maps a requirement's index within its unit's Requirements() to the
// unit and capability index that satisfies it.
type Wiring struct {
	RequirementIndex int
	Provider         Unit
	CapabilityIndex  int
}

// candidate pairs a provider with the capability it offers that is under
// consideration for a single requirement.
type candidate struct {
	provider   Unit
	capIndex   int
	capability manifest.Capability
}

// Resolve attempts to satisfy every requirement of target against the
// capabilities offered by candidates (which must not include target itself).
// On success it returns one Wiring per requirement, in requirement
// declaration order. On failure it returns a celixerr.ResolveFailed
// aggregating every unsatisfied requirement name; the caller (internal/
// framework) leaves the bundle INSTALLED per spec.md §4.3 rule 2.
func Resolve(target Unit, candidates []Unit) ([]Wiring, error) {
	reqs := target.Requirements()
	wirings := make([]Wiring, 0, len(reqs))
	var unresolved []string
	var errs []error

	for i, req := range reqs {
		best, ok := pickBest(req, candidates)
		if !ok {
			unresolved = append(unresolved, req.Name)
			errs = append(errs, celixerr.New(celixerr.ResolveFailed, "resolver: no capability satisfies requirement %q", req.Name))
			continue
		}
		wirings = append(wirings, Wiring{RequirementIndex: i, Provider: best.provider, CapabilityIndex: best.capIndex})
	}

	if len(unresolved) > 0 {
		agg := kerrors.NewAggregate(errs)
		resolveErr := celixerr.Wrap(celixerr.ResolveFailed, agg, "resolver: %s has unresolved requirements", target.UnitID())
		resolveErr.Unresolved = unresolved
		return nil, resolveErr
	}
	return wirings, nil
}

// pickBest finds the satisfying capability with the highest version,
// breaking ties by lowest provider OwnerID (spec.md §4.4: "oldest").
// Iteration over candidates and their capabilities is in the order given, so
// that equal-version ties resolve deterministically (property #7).
func pickBest(req manifest.Requirement, candidates []Unit) (candidate, bool) {
	var best candidate
	found := false

	for _, provider := range candidates {
		for ci, cap := range provider.Capabilities() {
			if !satisfies(req, cap) {
				continue
			}
			if !found {
				best = candidate{provider: provider, capIndex: ci, capability: cap}
				found = true
				continue
			}
			if isBetter(cap, provider.OwnerID(), best.capability, best.provider.OwnerID()) {
				best = candidate{provider: provider, capIndex: ci, capability: cap}
			}
		}
	}
	return best, found
}

// isBetter reports whether (cap, ownerID) should replace (curCap, curOwnerID)
// as the resolver's pick: higher version wins; on an exact version tie, the
// lower owner id (older bundle) wins.
func isBetter(cap manifest.Capability, ownerID int64, curCap manifest.Capability, curOwnerID int64) bool {
	if c := cap.Version.Compare(curCap.Version); c != 0 {
		return c > 0
	}
	return ownerID < curOwnerID
}

func satisfies(req manifest.Requirement, cap manifest.Capability) bool {
	if req.Name != cap.Name {
		return false
	}
	if req.Filter != nil {
		props := attributesToProps(cap.Attributes)
		props["version"] = cap.Version
		return req.Filter.Match(props)
	}
	if req.Range != nil {
		return req.Range.InRange(cap.Version)
	}
	return true
}

func attributesToProps(attrs map[string]string) map[string]any {
	props := make(map[string]any, len(attrs))
	for k, v := range attrs {
		props[k] = v
	}
	return props
}
