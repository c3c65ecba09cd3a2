package manifest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `Bundle-SymbolicName: com.example.producer
Bundle-Version: 1.2.3
Bundle-Activator: producer_activator
Provide-Capability: example.service;version=1.0.0
Require-Capability: example.dependency;version=[1.0,2.0)
`

func TestParseBasic(t *testing.T) {
	m, err := Parse(strings.NewReader(sampleManifest))
	require.NoError(t, err)

	assert.Equal(t, "com.example.producer", m.SymbolicName)
	assert.Equal(t, "1.2.3", m.Version.String())
	assert.Equal(t, "producer_activator", m.Activator)

	require.Len(t, m.Capabilities, 1)
	assert.Equal(t, "example.service", m.Capabilities[0].Name)
	assert.Equal(t, "1.0.0", m.Capabilities[0].Version.String())

	require.Len(t, m.Requirements, 1)
	req := m.Requirements[0]
	assert.Equal(t, "example.dependency", req.Name)
	require.NotNil(t, req.Range)
	assert.True(t, req.Range.InRange(m.Capabilities[0].Version))
}

func TestParseFilterRequirement(t *testing.T) {
	doc := `Bundle-SymbolicName: com.example.consumer
Require-Capability: example.dependency;filter:=(&(version>=1)(version<2))
`
	m, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, m.Requirements, 1)
	require.NotNil(t, m.Requirements[0].Filter)
	assert.True(t, m.Requirements[0].Filter.Match(map[string]any{"version": "1.5"}))
	assert.False(t, m.Requirements[0].Filter.Match(map[string]any{"version": "2.5"}))
}

func TestParseMissingSymbolicName(t *testing.T) {
	_, err := Parse(strings.NewReader("Bundle-Version: 1.0.0\n"))
	assert.Error(t, err)
}

func TestParseMultipleCapabilities(t *testing.T) {
	doc := `Bundle-SymbolicName: com.example.multi
Provide-Capability: svc.a;version=1.0.0, svc.b;version=2.0.0;extra=foo
`
	m, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, m.Capabilities, 2)
	assert.Equal(t, "svc.a", m.Capabilities[0].Name)
	assert.Equal(t, "svc.b", m.Capabilities[1].Name)
	assert.Equal(t, "foo", m.Capabilities[1].Attributes["extra"])
}
