package engine_test

import (
	"context"
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/foedusgo/occtxn/src/config"
	"github.com/foedusgo/occtxn/src/engine"
	"github.com/foedusgo/occtxn/src/epoch"
	"github.com/foedusgo/occtxn/src/logbuf"
	"github.com/foedusgo/occtxn/src/numa"
	"github.com/foedusgo/occtxn/src/pkg/txnerr"
	"github.com/foedusgo/occtxn/src/storage"
	"github.com/foedusgo/occtxn/src/xct"
)

// tinyOptions mirrors spec §8's "tiny_options": small fixed-capacity sets
// and a short epoch tick, suitable for fast deterministic tests.
func tinyOptions() config.Options {
	return config.Options{
		Environment:                config.EnvDev,
		WorkerCount:                4,
		MaxReadSetSize:             32,
		MaxWriteSetSize:            8,
		LogBufferBytes:             65536,
		EpochAdvanceIntervalMs:     5,
		PrivatePagePoolInitialGrab: 4,
		PagePoolTotalPages:         1024,
		SavepointPath:              "/savepoint.json",
		LogDir:                     "/logs",
	}
}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	fs := afero.NewMemMapFs()
	e, err := engine.New(tinyOptions(), fs, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop() })
	return e
}

// Run callbacks execute on a pool goroutine, not the test's own goroutine,
// so require/assert (which can call runtime.Goexit) must never be called
// from inside them — a failure there would abandon the goroutine without
// signaling Engine.Run's result channel and hang the test. Callbacks below
// only return plain errors and stash values through closures; every
// require/assert call happens back on the test goroutine after Run returns.

// Scenario 1: create-and-query on empty storage.
func TestScenarioCreateAndQueryEmptyStorage(t *testing.T) {
	e := newTestEngine(t)
	store, err := e.Storages.Create(storage.Meta{Name: "test2", ID: 1})
	require.NoError(t, err)

	var commitEpoch epoch.Epoch
	var getErr error
	err = e.Run(func(wm *numa.WorkerMemory) error {
		if err := e.Txns.Begin(wm.Ctx, xct.Serializable); err != nil {
			return err
		}
		key := make([]byte, 100)
		_, getErr = store.GetRecord(wm.Ctx, key, 16)

		ce, err := e.Txns.Precommit(wm.Ctx)
		commitEpoch = ce
		return err
	})
	require.NoError(t, err)
	assert.ErrorIs(t, getErr, storage.ErrKeyNotFound)

	e.Txns.WaitForCommit(commitEpoch)
}

// Scenario 2 & 3: insert then read, then overwrite then read.
func TestScenarioInsertReadOverwrite(t *testing.T) {
	e := newTestEngine(t)
	store, err := e.Storages.Create(storage.Meta{Name: "ggg", ID: 1})
	require.NoError(t, err)

	const key = uint64(12345)
	value1 := encodeU64(897565433333126)

	var e1 epoch.Epoch
	require.NoError(t, e.Run(func(wm *numa.WorkerMemory) error {
		if err := e.Txns.Begin(wm.Ctx, xct.Serializable); err != nil {
			return err
		}
		if err := store.InsertNormalized(wm.Ctx, key, value1); err != nil {
			return err
		}
		ce, err := e.Txns.Precommit(wm.Ctx)
		e1 = ce
		return err
	}))

	var e2 epoch.Epoch
	var got1 []byte
	require.NoError(t, e.Run(func(wm *numa.WorkerMemory) error {
		if err := e.Txns.Begin(wm.Ctx, xct.Serializable); err != nil {
			return err
		}
		v, err := store.GetNormalized(wm.Ctx, key, 0)
		if err != nil {
			return err
		}
		got1 = v
		ce, err := e.Txns.Precommit(wm.Ctx)
		e2 = ce
		return err
	}))
	assert.Equal(t, value1, got1)
	assert.False(t, e2.Less(e1), "scenario 2: E2 must be >= E1")

	value2 := encodeU64(321654987)
	require.NoError(t, e.Run(func(wm *numa.WorkerMemory) error {
		if err := e.Txns.Begin(wm.Ctx, xct.Serializable); err != nil {
			return err
		}
		if err := store.OverwriteNormalized(wm.Ctx, key, value2, 0); err != nil {
			return err
		}
		_, err := e.Txns.Precommit(wm.Ctx)
		return err
	}))

	var got2 []byte
	require.NoError(t, e.Run(func(wm *numa.WorkerMemory) error {
		if err := e.Txns.Begin(wm.Ctx, xct.Serializable); err != nil {
			return err
		}
		v, err := store.GetNormalized(wm.Ctx, key, 0)
		if err != nil {
			return err
		}
		got2 = v
		_, err = e.Txns.Precommit(wm.Ctx)
		return err
	}))
	assert.Equal(t, value2, got2)
}

// Scenario 4: two workers commit writes on the same pair of records in
// opposite insertion order; neither deadlocks.
func TestScenarioSortThenLockAvoidsDeadlock(t *testing.T) {
	e := newTestEngine(t)
	store, err := e.Storages.Create(storage.Meta{Name: "pair", ID: 1})
	require.NoError(t, err)

	require.NoError(t, e.Run(func(wm *numa.WorkerMemory) error {
		if err := e.Txns.Begin(wm.Ctx, xct.Serializable); err != nil {
			return err
		}
		if err := store.InsertNormalized(wm.Ctx, 1, []byte("a0")); err != nil {
			return err
		}
		if err := store.InsertNormalized(wm.Ctx, 2, []byte("b0")); err != nil {
			return err
		}
		_, err := e.Txns.Precommit(wm.Ctx)
		return err
	}))

	done := make(chan error, 2)
	go func() {
		done <- e.Run(func(wm *numa.WorkerMemory) error {
			if err := e.Txns.Begin(wm.Ctx, xct.Serializable); err != nil {
				return err
			}
			if err := store.OverwriteNormalized(wm.Ctx, 1, []byte("a1"), 0); err != nil {
				return err
			}
			if err := store.OverwriteNormalized(wm.Ctx, 2, []byte("b1"), 0); err != nil {
				return err
			}
			_, err := e.Txns.Precommit(wm.Ctx)
			return err
		})
	}()
	go func() {
		done <- e.Run(func(wm *numa.WorkerMemory) error {
			if err := e.Txns.Begin(wm.Ctx, xct.Serializable); err != nil {
				return err
			}
			if err := store.OverwriteNormalized(wm.Ctx, 2, []byte("b2"), 0); err != nil {
				return err
			}
			if err := store.OverwriteNormalized(wm.Ctx, 1, []byte("a2"), 0); err != nil {
				return err
			}
			_, err := e.Txns.Precommit(wm.Ctx)
			return err
		})
	}()

	err1 := <-done
	err2 := <-done
	assert.NoError(t, err1)
	assert.NoError(t, err2)
}

// Scenario 5: verify aborts a stale reader.
func TestScenarioVerifyAbortsStaleRead(t *testing.T) {
	e := newTestEngine(t)
	store, err := e.Storages.Create(storage.Meta{Name: "race", ID: 1})
	require.NoError(t, err)

	require.NoError(t, e.Run(func(wm *numa.WorkerMemory) error {
		if err := e.Txns.Begin(wm.Ctx, xct.Serializable); err != nil {
			return err
		}
		if err := store.InsertNormalized(wm.Ctx, 7, []byte("v0")); err != nil {
			return err
		}
		_, err := e.Txns.Precommit(wm.Ctx)
		return err
	}))

	// Worker A's context is built directly rather than borrowed from the
	// engine's pinned worker pool, so it can stay open across B's commit
	// without another Run() call reclaiming the same pool slot (the pool
	// only has a handful of workers; "pausing" one mid-transaction would
	// otherwise race with reuse).
	aLogs := logbuf.NewBuffer(99, 4096)
	aCtx := xct.NewTxnContext(99, 8, 8, aLogs)
	require.NoError(t, e.Txns.Begin(aCtx, xct.Serializable))
	_, err = store.GetNormalized(aCtx, 7, 0)
	require.NoError(t, err)

	require.NoError(t, e.Run(func(wm *numa.WorkerMemory) error {
		if err := e.Txns.Begin(wm.Ctx, xct.Serializable); err != nil {
			return err
		}
		if err := store.OverwriteNormalized(wm.Ctx, 7, []byte("v1"), 0); err != nil {
			return err
		}
		_, err := e.Txns.Precommit(wm.Ctx)
		return err
	}))

	require.NoError(t, store.OverwriteNormalized(aCtx, 7, []byte("v2"), 0))
	_, err = e.Txns.Precommit(aCtx)
	assert.ErrorIs(t, err, txnerr.ErrRaceAbort)

	var retryGot []byte
	require.NoError(t, e.Run(func(wm *numa.WorkerMemory) error {
		if err := e.Txns.Begin(wm.Ctx, xct.Serializable); err != nil {
			return err
		}
		v, err := store.GetNormalized(wm.Ctx, 7, 0)
		if err != nil {
			return err
		}
		retryGot = v
		_, err = e.Txns.Precommit(wm.Ctx)
		return err
	}))
	assert.Equal(t, []byte("v1"), retryGot)
}

// Scenario 6: 32 random u64 keys, each in its own transaction, read back
// from a single subsequent transaction.
func TestScenarioThirtyTwoRandomInserts(t *testing.T) {
	e := newTestEngine(t)
	store, err := e.Storages.Create(storage.Meta{Name: "bulk", ID: 1})
	require.NoError(t, err)

	r := rand.New(rand.NewSource(123456))
	keys := make([]uint64, 32)
	payloads := make([][]byte, 32)
	for i := range keys {
		keys[i] = r.Uint64()
		p := make([]byte, 200)
		binary.BigEndian.PutUint64(p[123:], keys[i])
		payloads[i] = p
	}

	for i := range keys {
		i := i
		require.NoError(t, e.Run(func(wm *numa.WorkerMemory) error {
			if err := e.Txns.Begin(wm.Ctx, xct.Serializable); err != nil {
				return err
			}
			if err := store.InsertNormalized(wm.Ctx, keys[i], payloads[i]); err != nil {
				return err
			}
			_, err := e.Txns.Precommit(wm.Ctx)
			return err
		}))
	}

	got := make([][]byte, 32)
	require.NoError(t, e.Run(func(wm *numa.WorkerMemory) error {
		if err := e.Txns.Begin(wm.Ctx, xct.Serializable); err != nil {
			return err
		}
		for i := range keys {
			v, err := store.GetNormalized(wm.Ctx, keys[i], 0)
			if err != nil {
				return err
			}
			got[i] = v
		}
		_, err := e.Txns.Precommit(wm.Ctx)
		return err
	}))
	for i := range keys {
		assert.Equal(t, payloads[i], got[i])
	}
}

func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
