package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHexChainIDToScope(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0x1", "eip155:1"},
		{"0xaa36a7", "eip155:11155111"},
		{"0xE708", "eip155:59144"},
		{"0xe705", "eip155:59141"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := HexChainIDToScope(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHexChainIDToScope_Invalid(t *testing.T) {
	for _, in := range []string{"", "1", "0x", "0xzz", "mainnet"} {
		_, err := HexChainIDToScope(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestScopeToHexChainID(t *testing.T) {
	got, ok := ScopeToHexChainID("eip155:11155111")
	require.True(t, ok)
	assert.Equal(t, "0xaa36a7", got)

	for _, in := range []string{"eip155", "eip155:", "bip122:000000000019d6689c085ae165831e93", "eip155:-1", "eip155:abc"} {
		_, ok := ScopeToHexChainID(in)
		assert.False(t, ok, "input %q", in)
	}
}

func TestAddPermittedEthChainID_AddsOptionalScope(t *testing.T) {
	in := NewCaip25CaveatValue()

	out, err := AddPermittedEthChainID(in, "0x1")
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"isMultichainOrigin": false,
		"requiredScopes":     map[string]any{},
		"optionalScopes": map[string]any{
			"eip155:1": map[string]any{"accounts": []any{}},
		},
	}, out)
	assert.Empty(t, in["optionalScopes"], "input must not be modified")
}

func TestAddPermittedEthChainID_AlreadyOptional(t *testing.T) {
	in := map[string]any{
		"isMultichainOrigin": false,
		"requiredScopes":     map[string]any{},
		"optionalScopes": map[string]any{
			"eip155:1": map[string]any{"accounts": []any{"eip155:1:0xabc"}},
		},
	}

	out, err := AddPermittedEthChainID(in, "0x1")
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestAddPermittedEthChainID_AlreadyRequired(t *testing.T) {
	in := map[string]any{
		"isMultichainOrigin": true,
		"requiredScopes": map[string]any{
			"eip155:1": map[string]any{"accounts": []any{}},
		},
		"optionalScopes": map[string]any{},
	}

	out, err := AddPermittedEthChainID(in, "0x1")
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, true, out["isMultichainOrigin"])
}

func TestAddPermittedEthChainID_FillsMissingScopes(t *testing.T) {
	out, err := AddPermittedEthChainID(map[string]any{}, "0xaa36a7")
	require.NoError(t, err)

	assert.Equal(t, map[string]any{}, out["requiredScopes"])
	assert.Equal(t, map[string]any{
		"eip155:11155111": map[string]any{"accounts": []any{}},
	}, out["optionalScopes"])
}

func TestAddPermittedEthChainID_InvalidChain(t *testing.T) {
	_, err := AddPermittedEthChainID(NewCaip25CaveatValue(), "sepolia")
	assert.Error(t, err)
}

func TestPermittedEthChainIDs(t *testing.T) {
	value := map[string]any{
		"requiredScopes": map[string]any{
			"eip155:1":      map[string]any{},
			"wallet:eip155": map[string]any{},
		},
		"optionalScopes": map[string]any{
			"eip155:1":         map[string]any{},
			"eip155:59144":     map[string]any{},
			"bip122:000000000": map[string]any{},
		},
	}
	assert.Equal(t, []string{"0x1", "0xe708"}, PermittedEthChainIDs(value))
	assert.Empty(t, PermittedEthChainIDs(nil))
}
