package migrations

import (
	"context"
	"errors"

	"github.com/HendryAvila/statevault/internal/storage"
)

// Version141 backfills chain-scope permissions for provider-holding subjects.
const Version141 = 141

// builtInNetworks maps the network client ids built into the wallet when
// version 141 shipped to their chain ids.
var builtInNetworks = map[string]string{
	"sepolia":       "0xaa36a7",
	"mainnet":       "0x1",
	"linea-sepolia": "0xe705",
	"linea-mainnet": "0xe708",
}

// Skip diagnostics reported by Migration141.
var (
	errNetworkControllerMissing    = errors.New("Skipping migration: `NetworkController` state not found or is not an object.")
	errSelectedNetworkClientID     = errors.New("Skipping migration: `NetworkController.selectedNetworkClientId` is not a string.")
	errNetworkConfigurations       = errors.New("Skipping migration: `NetworkController.networkConfigurationsByChainId` is not an object.")
	errPermissionControllerMissing = errors.New("Skipping migration: `PermissionController` state not found or is not an object.")
	errSubjectsNotObject           = errors.New("Skipping migration: `PermissionController.subjects` state is not an object.")
	errSelectedNetworkMissing      = errors.New("Skipping migration: `SelectedNetworkController` state not found or is not an object.")
	errDomainsNotObject            = errors.New("Skipping migration: `SelectedNetworkController.domains` state is not an object.")
	errChainIDUnresolved           = errors.New("Skipping migration: The chain ID resolved from the `NetworkController.selectedNetworkClientId` value is not a string.")
)

// Migration141 grants every subject holding the ethereum provider endowment
// a CAIP-25 permission scoped to the currently selected chain, and records
// that chain for the subject in SelectedNetworkController.domains.
//
// Existing CAIP-25 caveat values are merged into, never replaced. Subjects
// without the provider endowment are left untouched.
func Migration141() Migration {
	return Migration{
		Version: Version141,
		Name:    "permitted-chains-backfill",
		Migrate: func(ctx context.Context, env *storage.Envelope, deps Deps) (*storage.Envelope, error) {
			env.Data = transformState141(ctx, env.Data, deps)
			return env, nil
		},
	}
}

func transformState141(ctx context.Context, state map[string]any, deps Deps) map[string]any {
	networkController := asObject(state["NetworkController"])
	if networkController == nil {
		deps.Report(ctx, errNetworkControllerMissing)
		return state
	}

	selectedNetworkClientID, ok := hasString(networkController, "selectedNetworkClientId")
	if !ok {
		deps.Report(ctx, errSelectedNetworkClientID)
		return state
	}

	configurations := asObject(networkController["networkConfigurationsByChainId"])
	if configurations == nil {
		deps.Report(ctx, errNetworkConfigurations)
		return state
	}

	permissionController := asObject(state["PermissionController"])
	if permissionController == nil {
		deps.Report(ctx, errPermissionControllerMissing)
		return state
	}

	subjects := asObject(permissionController["subjects"])
	if subjects == nil {
		deps.Report(ctx, errSubjectsNotObject)
		return state
	}

	selectedNetworkController := asObject(state["SelectedNetworkController"])
	if selectedNetworkController == nil {
		deps.Report(ctx, errSelectedNetworkMissing)
		return state
	}

	domains := asObject(selectedNetworkController["domains"])
	if domains == nil {
		deps.Report(ctx, errDomainsNotObject)
		return state
	}

	chainID, ok := resolveChainID(selectedNetworkClientID, configurations)
	if !ok {
		deps.Report(ctx, errChainIDUnresolved)
		return state
	}

	// Build every new subject before touching the tree so that a bad chain id
	// leaves the state exactly as it was.
	updated := map[string]map[string]any{}
	for _, origin := range sortedKeys(subjects) {
		subject := asObject(subjects[origin])
		permissions := asObject(subject["permissions"])
		if _, has := permissions[EthereumProviderEndowment]; !has {
			continue
		}

		caveatValue, err := AddPermittedEthChainID(existingCaip25CaveatValue(permissions), chainID)
		if err != nil {
			deps.Report(ctx, err)
			return state
		}

		newPermissions := make(map[string]any, len(permissions)+1)
		for k, v := range permissions {
			newPermissions[k] = v
		}
		newPermissions[Caip25EndowmentPermissionName] = map[string]any{
			"caveats": []any{
				map[string]any{
					"type":  Caip25CaveatType,
					"value": caveatValue,
				},
			},
			"date":             deps.Now().UnixMilli(),
			"id":               deps.NewID(),
			"invoker":          origin,
			"parentCapability": Caip25EndowmentPermissionName,
		}

		newSubject := make(map[string]any, len(subject))
		for k, v := range subject {
			newSubject[k] = v
		}
		newSubject["permissions"] = newPermissions
		updated[origin] = newSubject
	}

	for origin, subject := range updated {
		subjects[origin] = subject
		domains[origin] = chainID
	}
	return state
}

// existingCaip25CaveatValue returns the authorized-scopes caveat value
// already granted to a subject, or an empty value. The existing value is
// trusted as-is.
func existingCaip25CaveatValue(permissions map[string]any) map[string]any {
	permission := asObject(permissions[Caip25EndowmentPermissionName])
	caveats, _ := asArray(permission["caveats"])
	for _, c := range caveats {
		caveat := asObject(c)
		if caveat["type"] != Caip25CaveatType {
			continue
		}
		if value := asObject(caveat["value"]); value != nil {
			return value
		}
	}
	return NewCaip25CaveatValue()
}

// resolveChainID looks the network client id up among the user's network
// configurations first, then among the built-in networks.
func resolveChainID(networkClientID string, configurations map[string]any) (string, bool) {
	for _, chainID := range sortedKeys(configurations) {
		config := asObject(configurations[chainID])
		endpoints, ok := asArray(config["rpcEndpoints"])
		if !ok {
			continue
		}
		for _, e := range endpoints {
			if id, ok := hasString(asObject(e), "networkClientId"); ok && id == networkClientID {
				return chainID, true
			}
		}
	}

	chainID, ok := builtInNetworks[networkClientID]
	return chainID, ok
}
