package addons

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticProfiles struct {
	store *memStore
}

func (s staticProfiles) ProfileManifest(*Session) ManifestStore {
	return s.store
}

func newReconciler(t *testing.T, remote Manifest) (*Reconciler, *LocalManifest, *memStore) {
	t.Helper()
	local := NewLocalManifest(t.TempDir(), testLogger())
	store := &memStore{list: remote}
	return NewReconciler(local, staticProfiles{store: store}, testLogger()), local, store
}

func TestSyncGuestIsNoop(t *testing.T) {
	r, local, store := newReconciler(t, Manifest{{ID: "1", Version: "1"}})

	res, err := r.Sync(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, SyncGuest, res.Action)
	assert.False(t, local.Exists())
	assert.Equal(t, 0, store.saves)
}

func TestSyncPushesDifferingLocal(t *testing.T) {
	ctx := context.Background()
	r, local, store := newReconciler(t, Manifest{{ID: "1", Version: "1"}})
	L := Manifest{{ID: "1", Version: "2"}, {ID: "5", Version: "1"}}
	require.NoError(t, local.Save(ctx, L))

	res, err := r.Sync(ctx, userSession())

	require.NoError(t, err)
	assert.Equal(t, SyncPushedLocal, res.Action)
	assert.True(t, L.Equal(store.snapshot()))
	assert.Equal(t, 1, store.saves)
}

func TestSyncPushesEmptyLocalFile(t *testing.T) {
	ctx := context.Background()
	r, local, store := newReconciler(t, Manifest{{ID: "1", Version: "1"}})
	require.NoError(t, local.Save(ctx, Manifest{}))

	res, err := r.Sync(ctx, userSession())

	require.NoError(t, err)
	assert.Equal(t, SyncPushedLocal, res.Action)
	assert.Empty(t, store.snapshot())
}

func TestSyncEqualListsDoNotWrite(t *testing.T) {
	ctx := context.Background()
	remote := Manifest{{ID: "1", Version: "1"}, {ID: "2", Version: "1"}}
	r, local, store := newReconciler(t, remote)
	require.NoError(t, local.Save(ctx, Manifest{{ID: "2", Version: "1"}, {ID: "1", Version: "1"}}))

	res, err := r.Sync(ctx, userSession())

	require.NoError(t, err)
	assert.Equal(t, SyncInSync, res.Action)
	assert.Equal(t, 0, store.saves)
}

func TestSyncRestoresMissingLocalFromProfile(t *testing.T) {
	ctx := context.Background()
	R := Manifest{{ID: "1", Version: "1"}, {ID: "9", Version: "3"}}
	r, local, store := newReconciler(t, R)

	res, err := r.Sync(ctx, userSession())

	require.NoError(t, err)
	assert.Equal(t, SyncPulledRemote, res.Action)
	require.True(t, local.Exists())
	got, _ := local.Load(ctx)
	assert.Equal(t, R, got)
	assert.Equal(t, 0, store.saves)
}

func TestSyncRestoresEmptyProfileAsEmptyFile(t *testing.T) {
	ctx := context.Background()
	r, local, _ := newReconciler(t, nil)

	res, err := r.Sync(ctx, userSession())

	require.NoError(t, err)
	assert.Equal(t, SyncPulledRemote, res.Action)
	assert.True(t, local.Exists())
}

func TestSyncProfileErrors(t *testing.T) {
	ctx := context.Background()

	r, local, store := newReconciler(t, nil)
	store.loadErr = errors.New("timeout")
	_, err := r.Sync(ctx, userSession())
	require.ErrorIs(t, err, ErrRemoteSync)
	assert.False(t, local.Exists())

	r, local, store = newReconciler(t, nil)
	require.NoError(t, local.Save(ctx, Manifest{{ID: "1", Version: "1"}}))
	store.saveErr = errors.New("denied")
	_, err = r.Sync(ctx, userSession())
	require.ErrorIs(t, err, ErrRemoteSync)
}

func TestCleanupDropsIdsMissingFromCatalog(t *testing.T) {
	ctx := context.Background()
	r, local, _ := newReconciler(t, nil)
	require.NoError(t, local.Save(ctx, Manifest{{ID: "1", Version: "1"}, {ID: "2", Version: "1"}, {ID: "3", Version: "1"}}))

	removed, err := r.Cleanup(ctx, []AddonRecord{{ID: "1"}, {ID: "3"}, {ID: "4"}})

	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, removed)
	got, _ := local.Load(ctx)
	assert.Equal(t, Manifest{{ID: "1", Version: "1"}, {ID: "3", Version: "1"}}, got)
}

func TestCleanupLeavesMissingFileAndEmptyCatalogAlone(t *testing.T) {
	ctx := context.Background()
	r, local, _ := newReconciler(t, nil)

	removed, err := r.Cleanup(ctx, []AddonRecord{{ID: "1"}})
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.False(t, local.Exists())

	require.NoError(t, local.Save(ctx, Manifest{{ID: "1", Version: "1"}}))
	removed, err = r.Cleanup(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, removed)
	got, _ := local.Load(ctx)
	assert.Len(t, got, 1)
}
