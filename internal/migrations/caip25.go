package migrations

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// Permission and caveat names used by the permission controller state.
const (
	// Caip25EndowmentPermissionName is the chain-scope permission.
	Caip25EndowmentPermissionName = "endowment:caip25"

	// Caip25CaveatType is the caveat carrying the authorized scopes.
	Caip25CaveatType = "authorizedScopes"

	// EthereumProviderEndowment is the legacy provider capability.
	EthereumProviderEndowment = "endowment:ethereum-provider"

	eip155Namespace = "eip155"
)

// NewCaip25CaveatValue returns an empty authorized-scopes value.
func NewCaip25CaveatValue() map[string]any {
	return map[string]any{
		"isMultichainOrigin": false,
		"optionalScopes":     map[string]any{},
		"requiredScopes":     map[string]any{},
	}
}

// HexChainIDToScope converts "0xaa36a7" to "eip155:11155111".
func HexChainIDToScope(chainID string) (string, error) {
	n, ok := parseHexChainID(chainID)
	if !ok {
		return "", fmt.Errorf("migrations: invalid hex chain id %q", chainID)
	}
	return eip155Namespace + ":" + n.String(), nil
}

// ScopeToHexChainID converts "eip155:11155111" to "0xaa36a7".
func ScopeToHexChainID(scope string) (string, bool) {
	namespace, reference, ok := strings.Cut(scope, ":")
	if !ok || namespace != eip155Namespace || reference == "" {
		return "", false
	}
	n, ok := new(big.Int).SetString(reference, 10)
	if !ok || n.Sign() < 0 {
		return "", false
	}
	return "0x" + n.Text(16), true
}

func parseHexChainID(chainID string) (*big.Int, bool) {
	digits, ok := strings.CutPrefix(strings.ToLower(chainID), "0x")
	if !ok || digits == "" {
		return nil, false
	}
	return new(big.Int).SetString(digits, 16)
}

// AddPermittedEthChainID returns value with the EVM chain added as an
// optional scope with no accounts. Chains already present in required or
// optional scopes leave value unchanged. value itself is never modified.
func AddPermittedEthChainID(value map[string]any, chainID string) (map[string]any, error) {
	scope, err := HexChainIDToScope(chainID)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(value)+2)
	for k, v := range value {
		out[k] = v
	}
	required := asObject(out["requiredScopes"])
	optional := asObject(out["optionalScopes"])
	if required == nil {
		out["requiredScopes"] = map[string]any{}
	}
	if optional == nil {
		out["optionalScopes"] = map[string]any{}
	}

	_, inRequired := required[scope]
	_, inOptional := optional[scope]
	if inRequired || inOptional {
		return out, nil
	}

	merged := make(map[string]any, len(optional)+1)
	for k, v := range optional {
		merged[k] = v
	}
	merged[scope] = map[string]any{"accounts": []any{}}
	out["optionalScopes"] = merged
	return out, nil
}

// PermittedEthChainIDs lists the hex chain ids named by eip155 scopes in
// value, sorted and deduplicated.
func PermittedEthChainIDs(value map[string]any) []string {
	seen := map[string]struct{}{}
	for _, key := range []string{"requiredScopes", "optionalScopes"} {
		for scope := range asObject(value[key]) {
			if hex, ok := ScopeToHexChainID(scope); ok {
				seen[hex] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
