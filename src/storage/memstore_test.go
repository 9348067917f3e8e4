package storage_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/foedusgo/occtxn/src/epoch"
	"github.com/foedusgo/occtxn/src/logbuf"
	"github.com/foedusgo/occtxn/src/pkg/common"
	"github.com/foedusgo/occtxn/src/storage"
	"github.com/foedusgo/occtxn/src/txns"
	"github.com/foedusgo/occtxn/src/xct"
)

// fixedDurability is a stand-in txns.DurableEpochOracle for tests that don't
// wire a real logmgr.FileManager.
type fixedDurability epoch.Epoch

func (f fixedDurability) DurableGlobalEpochWeak() epoch.Epoch { return epoch.Epoch(f) }

func newHarness(t *testing.T) (*txns.Manager, storage.Manager) {
	t.Helper()
	clock, ok := epoch.NewClock(epoch.First, time.Hour, nil, zap.NewNop().Sugar())
	require.True(t, ok)
	clock.Start()
	t.Cleanup(clock.Stop)

	reg := logbuf.NewRegistry()
	storeMgr := storage.NewManager(reg)
	mgr := txns.NewManager(clock, reg, fixedDurability(epoch.First), zap.NewNop().Sugar())
	return mgr, storeMgr
}

func newCtx(thread common.ThreadID) *xct.TxnContext {
	logs := logbuf.NewBuffer(thread, 4096)
	return xct.NewTxnContext(thread, 16, 16, logs)
}

func TestCreateDuplicateNameFails(t *testing.T) {
	_, storeMgr := newHarness(t)
	_, err := storeMgr.Create(storage.Meta{Name: "dup", ID: 1})
	require.NoError(t, err)
	_, err = storeMgr.Create(storage.Meta{Name: "dup", ID: 2})
	assert.ErrorIs(t, err, storage.ErrStorageExists)
}

func TestDropUnknownStorageFails(t *testing.T) {
	_, storeMgr := newHarness(t)
	err := storeMgr.Drop(999)
	assert.ErrorIs(t, err, storage.ErrStorageNotFound)
}

func TestGetByIDAndNameAfterCreate(t *testing.T) {
	_, storeMgr := newHarness(t)
	s, err := storeMgr.Create(storage.Meta{Name: "byname", ID: 3})
	require.NoError(t, err)

	byID, err := storeMgr.GetByID(3)
	require.NoError(t, err)
	assert.Same(t, s, byID)

	byName, err := storeMgr.GetByName("byname")
	require.NoError(t, err)
	assert.Same(t, s, byName)
}

func TestGetByIDAfterDropFails(t *testing.T) {
	_, storeMgr := newHarness(t)
	_, err := storeMgr.Create(storage.Meta{Name: "gone", ID: 4})
	require.NoError(t, err)
	require.NoError(t, storeMgr.Drop(4))

	_, err = storeMgr.GetByID(4)
	assert.ErrorIs(t, err, storage.ErrStorageNotFound)
}

func TestGetRecordOnEmptyStorageReturnsKeyNotFound(t *testing.T) {
	mgr, storeMgr := newHarness(t)
	s, err := storeMgr.Create(storage.Meta{Name: "empty", ID: 1})
	require.NoError(t, err)

	ctx := newCtx(1)
	require.NoError(t, mgr.Begin(ctx, xct.Serializable))
	_, err = s.GetRecord(ctx, []byte("nope"), 16)
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
}

func TestInsertDuplicateKeyFails(t *testing.T) {
	mgr, storeMgr := newHarness(t)
	s, err := storeMgr.Create(storage.Meta{Name: "dupkey", ID: 1})
	require.NoError(t, err)

	ctx := newCtx(1)
	require.NoError(t, mgr.Begin(ctx, xct.Serializable))
	require.NoError(t, s.InsertRecord(ctx, []byte("k"), []byte("v")))

	err = s.InsertRecord(ctx, []byte("k"), []byte("v2"))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestNormalizedInsertReadOverwriteRoundTrips(t *testing.T) {
	mgr, storeMgr := newHarness(t)
	s, err := storeMgr.Create(storage.Meta{Name: "norm", ID: 1})
	require.NoError(t, err)

	w := newCtx(1)
	require.NoError(t, mgr.Begin(w, xct.Serializable))
	require.NoError(t, s.InsertNormalized(w, 12345, []byte("897565433333126")))
	_, err = mgr.Precommit(w)
	require.NoError(t, err)

	r := newCtx(2)
	require.NoError(t, mgr.Begin(r, xct.Serializable))
	got, err := s.GetNormalized(r, 12345, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("897565433333126"), got)
	_, err = mgr.Precommit(r)
	require.NoError(t, err)

	ow := newCtx(3)
	require.NoError(t, mgr.Begin(ow, xct.Serializable))
	require.NoError(t, s.OverwriteNormalized(ow, 12345, []byte("321654987"), 0))
	_, err = mgr.Precommit(ow)
	require.NoError(t, err)

	r2 := newCtx(4)
	require.NoError(t, mgr.Begin(r2, xct.Serializable))
	got2, err := s.GetNormalized(r2, 12345, 0)
	require.NoError(t, err)
	// The overwrite replaces the 9 bytes at offset 0; the inserted value's
	// last 6 bytes stay in place.
	assert.Equal(t, []byte("321654987333126"), got2)
}

func TestUncommittedInsertNotVisibleToAnotherTxn(t *testing.T) {
	mgr, storeMgr := newHarness(t)
	s, err := storeMgr.Create(storage.Meta{Name: "vis", ID: 1})
	require.NoError(t, err)

	w := newCtx(1)
	require.NoError(t, mgr.Begin(w, xct.Serializable))
	require.NoError(t, s.InsertRecord(w, []byte("k"), []byte("v")))
	// No precommit yet: the record exists in the map, but its owner id is
	// still the zero value, which memStorage.get treats as "not valid".

	r := newCtx(2)
	require.NoError(t, mgr.Begin(r, xct.Serializable))
	_, err = s.GetRecord(r, []byte("k"), 16)
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
}
