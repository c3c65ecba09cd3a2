package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apache/celix-go/pkg/celixerr"
)

type recordingListener struct {
	mu     sync.Mutex
	events []ServiceEvent
}

func (l *recordingListener) Notify(ev ServiceEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *recordingListener) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventKind, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Kind
	}
	return out
}

// S1: installing a service and looking it up from another bundle.
func TestRegisterAndGetReferences(t *testing.T) {
	r := New()
	reg, err := r.Register(1, []string{"X"}, "service-instance", nil, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, reg.ID())

	refs := r.GetReferences(2, "X", nil)
	require.Len(t, refs, 1)
	assert.EqualValues(t, 1, refs[0].Properties()[PropServiceID])
}

func TestRegisterRejectsEmptyInterfaces(t *testing.T) {
	r := New()
	_, err := r.Register(1, nil, "x", nil, nil)
	require.Error(t, err)
	kind, ok := celixerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, celixerr.IllegalArgument, kind)
}

// Invariant #2: service.id is strictly monotonic.
func TestServiceIDMonotonic(t *testing.T) {
	r := New()
	var ids []int64
	for i := 0; i < 5; i++ {
		reg, err := r.Register(1, []string{"X"}, "x", nil, nil)
		require.NoError(t, err)
		ids = append(ids, reg.ID())
	}
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}
}

// S2: ranking-ordered tie-break, sticky-highest semantics exercised at the
// registry level (GetReferences ordering; the tracker package builds
// sticky-highest on top of this).
func TestGetReferencesOrderedByRanking(t *testing.T) {
	r := New()
	_, err := r.Register(1, []string{"X"}, "low", nil, map[string]any{PropServiceRanking: int64(5)})
	require.NoError(t, err)
	_, err = r.Register(2, []string{"X"}, "high", nil, map[string]any{PropServiceRanking: int64(10)})
	require.NoError(t, err)

	refs := r.GetReferences(3, "X", nil)
	require.Len(t, refs, 2)
	svc0, err := r.GetService(refs[0])
	require.NoError(t, err)
	assert.Equal(t, "high", svc0)
}

// Invariant #1: listeners see REGISTERED then UNREGISTERING in order.
func TestListenerSeesRegisteredThenUnregistering(t *testing.T) {
	r := New()
	l := &recordingListener{}
	r.AddListener(l)

	reg, err := r.Register(1, []string{"X"}, "x", nil, nil)
	require.NoError(t, err)
	require.NoError(t, r.Unregister(reg))

	assert.Equal(t, []EventKind{EventRegistered, EventUnregistering}, l.kinds())
}

// Invariant #4: GetService fails once unregistering has been observed.
func TestGetServiceFailsOnceUnregistering(t *testing.T) {
	r := New()
	reg, err := r.Register(1, []string{"X"}, "x", nil, nil)
	require.NoError(t, err)
	ref := r.GetReferences(2, "X", nil)[0]

	go func() {
		_ = r.Unregister(reg)
	}()

	// Either GetService observes it before or after unregistering; once it
	// does observe unregistering, it must fail (not silently succeed).
	for i := 0; i < 1000; i++ {
		if _, err := r.GetService(ref); err != nil {
			kind, ok := celixerr.KindOf(err)
			require.True(t, ok)
			assert.Equal(t, celixerr.InvalidReference, kind)
			return
		}
		_ = r.UngetService(ref)
	}
}

// Unregister blocks until outstanding usage drains to zero.
func TestUnregisterWaitsForUsageDrain(t *testing.T) {
	r := New()
	reg, err := r.Register(1, []string{"X"}, "x", nil, nil)
	require.NoError(t, err)
	ref := r.GetReferences(2, "X", nil)[0]

	_, err = r.GetService(ref)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_ = r.Unregister(reg)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("unregister returned before usage drained")
	default:
	}

	r.UngetService(ref)
	<-done
}

type fakeFactory struct {
	mu     sync.Mutex
	gets   int
	ungets int
}

func (f *fakeFactory) GetService(consumerBundleID int64, reg *Registration) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	return "factory-instance", nil
}

func (f *fakeFactory) UngetService(consumerBundleID int64, reg *Registration, service any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ungets++
}

func TestServiceFactoryInvokedOncePerConsumer(t *testing.T) {
	r := New()
	factory := &fakeFactory{}
	_, err := r.Register(1, []string{"X"}, nil, factory, nil)
	require.NoError(t, err)

	ref := r.GetReferences(2, "X", nil)[0]
	for i := 0; i < 3; i++ {
		svc, err := r.GetService(ref)
		require.NoError(t, err)
		assert.Equal(t, "factory-instance", svc)
	}
	assert.Equal(t, 1, factory.gets)

	for i := 0; i < 2; i++ {
		r.UngetService(ref)
	}
	assert.Equal(t, 0, factory.ungets)
	r.UngetService(ref)
	assert.Equal(t, 1, factory.ungets)
}

func TestModifyPropertiesPreservesObjectClassAndID(t *testing.T) {
	r := New()
	reg, err := r.Register(1, []string{"X"}, "x", nil, map[string]any{"color": "red"})
	require.NoError(t, err)

	require.NoError(t, r.ModifyProperties(reg, map[string]any{"color": "blue"}))

	props := reg.Properties()
	assert.Equal(t, "blue", props["color"])
	assert.Equal(t, []string{"X"}, props[PropObjectClass])
	assert.EqualValues(t, reg.ID(), props[PropServiceID])
}
