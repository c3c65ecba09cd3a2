package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apache/celix-go/internal/bundle"
	"github.com/apache/celix-go/internal/cache"
	"github.com/apache/celix-go/internal/dispatcher"
	"github.com/apache/celix-go/internal/registry"
)

type fakeSource struct {
	bundles  []*bundle.Bundle
	registry *registry.Registry
	disp     *dispatcher.Dispatcher
}

func (f *fakeSource) Bundles() []int64 {
	ids := make([]int64, len(f.bundles))
	for i, b := range f.bundles {
		ids[i] = b.ID()
	}
	return ids
}

func (f *fakeSource) Bundle(id int64) (*bundle.Bundle, error) {
	for _, b := range f.bundles {
		if b.ID() == id {
			return b, nil
		}
	}
	return nil, assert.AnError
}

func (f *fakeSource) Registry() *registry.Registry       { return f.registry }
func (f *fakeSource) Dispatcher() *dispatcher.Dispatcher { return f.disp }

func TestCollectorReportsBundleAndRegistrySnapshot(t *testing.T) {
	fwArchive, err := cache.CreateArchive(t.TempDir(), 0, "")
	require.NoError(t, err)
	fwBundle := bundle.NewFrameworkBundle(fwArchive)

	reg := registry.New()
	_, err = reg.Register(0, []string{"X"}, "instance", nil, nil)
	require.NoError(t, err)

	disp := dispatcher.New()

	src := &fakeSource{bundles: []*bundle.Bundle{fwBundle}, registry: reg, disp: disp}
	c := NewCollector(src)

	reg2 := prometheus.NewRegistry()
	require.NoError(t, reg2.Register(c))

	families, err := reg2.Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			values[mf.GetName()] += metricValue(m)
		}
	}

	assert.Equal(t, float64(1), values["celix_bundles_total"])
	assert.Equal(t, float64(1), values["celix_service_registrations_total"])
	assert.Equal(t, float64(0), values["celix_dispatcher_queue_depth"])
}

func metricValue(m *dto.Metric) float64 {
	if g := m.GetGauge(); g != nil {
		return g.GetValue()
	}
	if c := m.GetCounter(); c != nil {
		return c.GetValue()
	}
	return 0
}
