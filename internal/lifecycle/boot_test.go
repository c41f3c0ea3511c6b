package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/statevault/internal/migrations"
	"github.com/HendryAvila/statevault/internal/persistence"
	"github.com/HendryAvila/statevault/internal/storage"
	"github.com/HendryAvila/statevault/internal/telemetry"
)

// recordingStore wraps a MemoryStore and remembers every written version.
type recordingStore struct {
	*storage.MemoryStore
	written []int
	getErr  error
	setErr  error
}

func newRecordingStore(seed *storage.Envelope) *recordingStore {
	return &recordingStore{MemoryStore: storage.NewMemoryStore(seed)}
}

func (s *recordingStore) Get(ctx context.Context) (*storage.Envelope, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.MemoryStore.Get(ctx)
}

func (s *recordingStore) Set(ctx context.Context, env storage.Envelope) error {
	s.written = append(s.written, env.Version())
	if s.setErr != nil {
		return s.setErr
	}
	return s.MemoryStore.Set(ctx, env)
}

func mark(version int) migrations.Migration {
	return migrations.Migration{
		Version: version,
		Name:    "mark",
		Migrate: func(_ context.Context, env *storage.Envelope, _ migrations.Deps) (*storage.Envelope, error) {
			env.Data["last"] = version
			return env, nil
		},
	}
}

func newRunner(t *testing.T, ms ...migrations.Migration) *migrations.Runner {
	t.Helper()
	r, err := migrations.NewRunner(ms)
	require.NoError(t, err)
	return r
}

func TestBoot_FreshInstall(t *testing.T) {
	store := newRecordingStore(nil)
	m := persistence.New(store)
	r := newRunner(t, mark(1), mark(2))

	res, err := Boot(context.Background(), m, r, map[string]any{"Controller": "initial"}, nil)
	require.NoError(t, err)

	assert.True(t, res.FreshInstall)
	assert.Empty(t, res.Applied)
	assert.Equal(t, 2, res.Envelope.Version())
	assert.Equal(t, "initial", res.Envelope.Data["Controller"])
	assert.NotContains(t, res.Envelope.Data, "last", "fresh installs skip migrations")

	assert.Equal(t, []int{2}, store.written)
	assert.Equal(t, &storage.Meta{Version: 2}, m.Metadata())
	assert.True(t, m.IsInitialized())
}

func TestBoot_MigratesAndCheckpointsEachStep(t *testing.T) {
	store := newRecordingStore(&storage.Envelope{
		Meta: &storage.Meta{Version: 1},
		Data: map[string]any{"Controller": "old"},
	})
	m := persistence.New(store)
	r := newRunner(t, mark(1), mark(3), mark(7))

	res, err := Boot(context.Background(), m, r, nil, nil)
	require.NoError(t, err)

	assert.False(t, res.FreshInstall)
	assert.Equal(t, 1, res.FromVersion)
	assert.Equal(t, []int{3, 7}, res.Applied)
	assert.Equal(t, []int{3, 7}, store.written)

	persisted, err := store.MemoryStore.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, persisted.Version())
	assert.Equal(t, 7, persisted.Data["last"])
	assert.Equal(t, "old", persisted.Data["Controller"])
	assert.Equal(t, &storage.Meta{Version: 7}, m.Metadata())
}

func TestBoot_SnapshotKeepsPreMigrationState(t *testing.T) {
	store := newRecordingStore(&storage.Envelope{
		Meta: &storage.Meta{Version: 1},
		Data: map[string]any{"Controller": "old"},
	})
	m := persistence.New(store)

	_, err := Boot(context.Background(), m, newRunner(t, mark(2)), nil, nil)
	require.NoError(t, err)

	snapshot := m.MostRecentRetrievedState()
	require.NotNil(t, snapshot)
	assert.Equal(t, 1, snapshot.Version())
	assert.NotContains(t, snapshot.Data, "last")
}

func TestBoot_UpToDateSetsMetadataWithoutWriting(t *testing.T) {
	store := newRecordingStore(&storage.Envelope{
		Meta: &storage.Meta{Version: 2},
		Data: map[string]any{"Controller": "current"},
	})
	m := persistence.New(store)

	res, err := Boot(context.Background(), m, newRunner(t, mark(1), mark(2)), nil, nil)
	require.NoError(t, err)

	assert.Empty(t, res.Applied)
	assert.Empty(t, store.written)
	assert.Equal(t, &storage.Meta{Version: 2}, m.Metadata())
	assert.False(t, m.IsInitialized())

	// Later writes are tagged with the loaded version.
	require.NoError(t, m.Set(context.Background(), map[string]any{"Controller": "next"}))
	assert.Equal(t, []int{2}, store.written)
}

func TestBoot_MigrationErrorKeepsLastGoodVersion(t *testing.T) {
	boom := errors.New("boom")
	failing := migrations.Migration{
		Version: 3,
		Name:    "failing",
		Migrate: func(context.Context, *storage.Envelope, migrations.Deps) (*storage.Envelope, error) {
			return nil, boom
		},
	}
	store := newRecordingStore(&storage.Envelope{Meta: &storage.Meta{Version: 1}, Data: map[string]any{}})
	m := persistence.New(store)

	res, err := Boot(context.Background(), m, newRunner(t, mark(2), failing), nil, nil)
	require.ErrorIs(t, err, boom)
	require.NotNil(t, res)

	assert.Equal(t, 2, res.Envelope.Version())
	assert.Equal(t, []int{2}, store.written)
	assert.Equal(t, &storage.Meta{Version: 2}, m.Metadata())
}

func TestBoot_ReadErrorIsReturned(t *testing.T) {
	store := newRecordingStore(nil)
	store.getErr = errors.New("disk unreadable")

	_, err := Boot(context.Background(), persistence.New(store), newRunner(t, mark(1)), nil, nil)
	require.ErrorIs(t, err, store.getErr)
}

func TestBoot_WriteFailureIsReportedNotReturned(t *testing.T) {
	store := newRecordingStore(&storage.Envelope{Meta: &storage.Meta{Version: 0}, Data: map[string]any{"A": 1}})
	store.setErr = errors.New("quota exceeded")
	rec := &telemetry.Recorder{}
	m := persistence.New(store, persistence.WithReporter(rec))

	res, err := Boot(context.Background(), m, newRunner(t, mark(1), mark(2)), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Envelope.Version())
	assert.Equal(t, []int{1, 2}, store.written)
	assert.True(t, m.DataPersistenceFailing())
	assert.Equal(t, 1, rec.Count(), "one report per failure run")
}

func TestBoot_DefaultMigrationsOnWalletState(t *testing.T) {
	store := newRecordingStore(&storage.Envelope{
		Meta: &storage.Meta{Version: 140},
		Data: map[string]any{
			"NetworkController": map[string]any{
				"selectedNetworkClientId":        "mainnet",
				"networkConfigurationsByChainId": map[string]any{},
			},
			"PermissionController": map[string]any{
				"subjects": map[string]any{
					"npm:snap": map[string]any{
						"origin": "npm:snap",
						"permissions": map[string]any{
							migrations.EthereumProviderEndowment: map[string]any{},
						},
					},
				},
			},
			"SelectedNetworkController": map[string]any{"domains": map[string]any{}},
		},
	})
	m := persistence.New(store)
	r, err := migrations.NewDefaultRunner()
	require.NoError(t, err)

	res, err := Boot(context.Background(), m, r, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{migrations.Version141}, res.Applied)
	domains := res.Envelope.Data["SelectedNetworkController"].(map[string]any)["domains"].(map[string]any)
	assert.Equal(t, "0x1", domains["npm:snap"])
}
