package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchAndOr(t *testing.T) {
	f, err := Parse("(&(objectClass=X)(lang=en))")
	require.NoError(t, err)

	assert.True(t, f.Match(map[string]any{"objectClass": "X", "lang": "en"}))
	assert.False(t, f.Match(map[string]any{"objectClass": "X", "lang": "fr"}))
	assert.False(t, f.Match(map[string]any{"objectClass": "X"}))
}

func TestPresent(t *testing.T) {
	f, err := Parse("(service.pid=*)")
	require.NoError(t, err)
	assert.True(t, f.Match(map[string]any{"service.pid": "anything"}))
	assert.False(t, f.Match(map[string]any{}))
}

func TestSubstring(t *testing.T) {
	f, err := Parse("(name=foo*bar*)")
	require.NoError(t, err)
	assert.True(t, f.Match(map[string]any{"name": "fooXXXbarYYY"}))
	assert.False(t, f.Match(map[string]any{"name": "barfoo"}))
}

func TestNot(t *testing.T) {
	f, err := Parse("(!(lang=en))")
	require.NoError(t, err)
	assert.False(t, f.Match(map[string]any{"lang": "en"}))
	assert.True(t, f.Match(map[string]any{"lang": "fr"}))
}

func TestNumericComparison(t *testing.T) {
	f, err := Parse("(service.ranking>=5)")
	require.NoError(t, err)
	assert.True(t, f.Match(map[string]any{"service.ranking": "10"}))
	assert.False(t, f.Match(map[string]any{"service.ranking": "1"}))
}

func TestVersionComparison(t *testing.T) {
	f, err := Parse("(service.version>=1.2.0)")
	require.NoError(t, err)
	assert.True(t, f.Match(map[string]any{"service.version": "1.9.0"}))
	assert.False(t, f.Match(map[string]any{"service.version": "1.1.0"}))
}

func TestApproxMatch(t *testing.T) {
	f, err := Parse("(name~=  Hello   World )")
	require.NoError(t, err)
	assert.True(t, f.Match(map[string]any{"name": "hello world"}))
}

func TestListProperty(t *testing.T) {
	f, err := Parse("(objectClass=Foo)")
	require.NoError(t, err)
	assert.True(t, f.Match(map[string]any{"objectClass": []string{"Bar", "Foo"}}))
}

func TestRoundTrip(t *testing.T) {
	cases := []string{
		"(&(objectClass=X)(lang=en))",
		"(|(a=1)(b=2))",
		"(!(a=1))",
		"(a=*)",
		"(a=foo*bar*)",
	}
	props := map[string]any{"objectClass": "X", "lang": "en", "a": "fooXbarY", "b": "2"}
	for _, c := range cases {
		f1, err := Parse(c)
		require.NoError(t, err)
		f2, err := Parse(f1.String())
		require.NoError(t, err)
		assert.Equal(t, f1.Match(props), f2.Match(props), "mismatch for %s", c)
	}
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("(&)")
	assert.Error(t, err)

	_, err = Parse("(a=b")
	assert.Error(t, err)

	_, err = Parse("not-a-filter")
	assert.Error(t, err)
}
