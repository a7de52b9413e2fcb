package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var vars = map[string]any{
	"name": "World",
	"port": 8080,
	"input": map[string]any{
		"user":  map[string]any{"email": "ops@example.com", "id": 7},
		"items": []any{"a", "b"},
	},
	"run-id": "r1",
}

// TestExpand tests placeholder substitution in strings.
func TestExpand(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple variable", "Hello ${name}", "Hello World"},
		{"numeric value", "port: ${port}", "port: 8080"},
		{"dotted path", "to ${input.user.email}", "to ops@example.com"},
		{"adjacent", "${name}${port}", "World8080"},
		{"dash in name", "run ${run-id}", "run r1"},
		{"missing kept", "Hello ${nobody}", "Hello ${nobody}"},
		{"path through scalar", "${name.first}", "${name.first}"},
		{"no placeholder", "plain $name", "plain $name"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Expand(tt.input, vars))
		})
	}
}

// TestExpand_MissingActions tests the configurable missing behaviour.
func TestExpand_MissingActions(t *testing.T) {
	empty := NewExpander(WithMissingAction(MissingEmpty))
	out, err := empty.Expand("a${x}b", vars)
	require.NoError(t, err)
	assert.Equal(t, "ab", out)

	strict := NewExpander(WithMissingAction(MissingError))
	_, err = strict.Expand("${x} and ${input.y}", vars)
	var undef *UndefinedVariableError
	require.ErrorAs(t, err, &undef)
	assert.Equal(t, []string{"x", "input.y"}, undef.Names)
	assert.Equal(t, "undefined variables: x, input.y", err.Error())

	_, err = strict.Expand("${x}", nil)
	assert.EqualError(t, err, "undefined variable: x")
}

// TestExpandValue_RawSubstitution tests whole-string placeholders.
func TestExpandValue_RawSubstitution(t *testing.T) {
	assert.Equal(t, map[string]any{"email": "ops@example.com", "id": 7}, ExpandValue("${input.user}", vars))
	assert.Equal(t, 8080, ExpandValue("${port}", vars))
	assert.Equal(t, "port 8080", ExpandValue("port ${port}", vars))
	assert.Equal(t, 3.5, ExpandValue(3.5, vars))
}

// TestExpandMap tests recursive expansion into maps and slices.
func TestExpandMap(t *testing.T) {
	in := map[string]any{
		"subject": "Hi ${name}",
		"nested":  map[string]any{"to": "${input.user.email}"},
		"list":    []any{"${name}", 1},
		"count":   3,
	}
	out := ExpandMap(in, vars)

	assert.Equal(t, map[string]any{
		"subject": "Hi World",
		"nested":  map[string]any{"to": "ops@example.com"},
		"list":    []any{"World", 1},
		"count":   3,
	}, out)
	assert.Equal(t, "Hi ${name}", in["subject"], "input untouched")
	assert.Nil(t, ExpandMap(nil, vars))
}

// TestLookup tests dotted path resolution.
func TestLookup(t *testing.T) {
	v, ok := Lookup(vars, "input.items")
	require.True(t, ok)
	assert.Equal(t, []any{"a", "b"}, v)

	_, ok = Lookup(vars, "input.user.missing")
	assert.False(t, ok)
	_, ok = Lookup(nil, "x")
	assert.False(t, ok)
}
