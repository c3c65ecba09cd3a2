package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apache/celix-go/internal/manifest"
	"github.com/apache/celix-go/pkg/celixerr"
	"github.com/apache/celix-go/pkg/filter"
	"github.com/apache/celix-go/pkg/version"
)

func mustParseFilter(t *testing.T, s string) filter.Node {
	t.Helper()
	n, err := filter.Parse(s)
	require.NoError(t, err)
	return n
}

// fakeUnit is a minimal resolver.Unit for tests, independent of internal/bundle.
type fakeUnit struct {
	id    string
	owner int64
	caps  []manifest.Capability
	reqs  []manifest.Requirement
}

func (f *fakeUnit) UnitID() string                      { return f.id }
func (f *fakeUnit) Capabilities() []manifest.Capability  { return f.caps }
func (f *fakeUnit) Requirements() []manifest.Requirement { return f.reqs }
func (f *fakeUnit) OwnerID() int64                       { return f.owner }

func cap(name, ver string) manifest.Capability {
	return manifest.Capability{Name: name, Version: version.MustParse(ver), Attributes: map[string]string{}}
}

func req(name string, low string) manifest.Requirement {
	r := version.AtLeast(version.MustParse(low))
	return manifest.Requirement{Name: name, Range: &r}
}

func TestResolvePicksHighestVersion(t *testing.T) {
	low := &fakeUnit{id: "low", owner: 1, caps: []manifest.Capability{cap("svc.x", "1.0.0")}}
	high := &fakeUnit{id: "high", owner: 2, caps: []manifest.Capability{cap("svc.x", "2.0.0")}}
	target := &fakeUnit{id: "target", owner: 3, reqs: []manifest.Requirement{req("svc.x", "1.0.0")}}

	wiring, err := Resolve(target, []Unit{low, high})
	require.NoError(t, err)
	require.Len(t, wiring, 1)
	assert.Equal(t, "high", wiring[0].Provider.UnitID())
}

func TestResolveTiesBreakByLowestOwnerID(t *testing.T) {
	older := &fakeUnit{id: "older", owner: 1, caps: []manifest.Capability{cap("svc.x", "1.0.0")}}
	newer := &fakeUnit{id: "newer", owner: 5, caps: []manifest.Capability{cap("svc.x", "1.0.0")}}
	target := &fakeUnit{id: "target", owner: 9, reqs: []manifest.Requirement{req("svc.x", "1.0.0")}}

	wiring, err := Resolve(target, []Unit{newer, older})
	require.NoError(t, err)
	require.Len(t, wiring, 1)
	assert.Equal(t, "older", wiring[0].Provider.UnitID())
}

func TestResolveFailureListsUnresolvedNames(t *testing.T) {
	target := &fakeUnit{id: "target", owner: 1, reqs: []manifest.Requirement{
		req("svc.missing", "1.0.0"),
	}}

	_, err := Resolve(target, nil)
	require.Error(t, err)
	var resolveErr *celixerr.Error
	require.ErrorAs(t, err, &resolveErr)
	assert.Equal(t, []string{"svc.missing"}, resolveErr.Unresolved)
}

func TestResolveDeterministic(t *testing.T) {
	a := &fakeUnit{id: "a", owner: 1, caps: []manifest.Capability{cap("svc.x", "1.0.0")}}
	b := &fakeUnit{id: "b", owner: 2, caps: []manifest.Capability{cap("svc.x", "1.5.0")}}
	target := &fakeUnit{id: "target", owner: 3, reqs: []manifest.Requirement{req("svc.x", "1.0.0")}}

	var firstProvider string
	for i := 0; i < 5; i++ {
		wiring, err := Resolve(target, []Unit{a, b})
		require.NoError(t, err)
		if i == 0 {
			firstProvider = wiring[0].Provider.UnitID()
		} else {
			assert.Equal(t, firstProvider, wiring[0].Provider.UnitID())
		}
	}
}

func TestResolveFilterFormRequirement(t *testing.T) {
	provider := &fakeUnit{id: "p", owner: 1, caps: []manifest.Capability{cap("svc.x", "1.5.0")}}
	target := &fakeUnit{id: "target", owner: 2, reqs: []manifest.Requirement{
		{Name: "svc.x", Filter: mustParseFilter(t, "(version>=1.0.0)")},
	}}

	wiring, err := Resolve(target, []Unit{provider})
	require.NoError(t, err)
	require.Len(t, wiring, 1)
}
