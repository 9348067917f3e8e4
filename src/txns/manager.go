// Package txns implements the optimistic commit protocol of spec §4.3
// "Commit Protocol": sort+lock the write set in a deadlock-free total
// order, latch the serialization-point epoch, verify the read set,
// apply-or-unlock, and publish.
//
// Grounded on original_source/foedus-core/src/foedus/xct/xct_manager_pimpl.cpp
// (precommit_xct's read-only / read-write / schema branches) for step
// ordering, and on the teacher's src/txns package for the surrounding
// package shape (a manager type wrapping per-record locking, a
// zap-style logger field, testify-based tests) even though its locking
// discipline — pessimistic 2PL with cycle detection — does not survive
// into this OCC rewrite (see DESIGN.md).
package txns

import (
	"sort"

	"go.uber.org/zap"

	"github.com/foedusgo/occtxn/src/epoch"
	"github.com/foedusgo/occtxn/src/logbuf"
	"github.com/foedusgo/occtxn/src/pkg/txnerr"
	"github.com/foedusgo/occtxn/src/xct"
)

// DurableEpochOracle is the collaborator contract for "the current durable
// epoch" (spec §1 "a durable-epoch oracle", §6 "LogManager"). Consulted
// only by the read-only path, and only when its read set was empty (spec
// §4.3 "Read-only path" step 3). logmgr.FileManager satisfies this
// directly via its DurableGlobalEpochWeak method.
type DurableEpochOracle interface {
	DurableGlobalEpochWeak() epoch.Epoch
}

// Manager is the engine-wide commit coordinator: one instance is shared
// by every worker's TxnContext (spec §4.1 "Xct Manager").
type Manager struct {
	clock    *epoch.Clock
	registry *logbuf.Registry
	durable  DurableEpochOracle
	log      *zap.SugaredLogger
}

// NewManager wires a commit coordinator to the shared epoch clock, log
// type registry, and durable-epoch oracle (spec §4.1, §4.5).
func NewManager(clock *epoch.Clock, registry *logbuf.Registry, durable DurableEpochOracle, log *zap.SugaredLogger) *Manager {
	return &Manager{clock: clock, registry: registry, durable: durable, log: log}
}

// Begin activates ctx as an ordinary (non-schema) transaction (spec §4.2).
func (m *Manager) Begin(ctx *xct.TxnContext, isolation xct.Isolation) error {
	return ctx.Activate(isolation, false)
}

// BeginSchema activates ctx as a schema (DDL-style) transaction (spec
// §4.2, §7 ErrInvalidLogTypeInSchemaXct's precondition).
func (m *Manager) BeginSchema(ctx *xct.TxnContext) error {
	return ctx.Activate(xct.Serializable, true)
}

// Abort unwinds ctx's pending write set without acquiring any locks: this
// core only takes record locks during Precommit, so aborting before that
// point is just discarding appended-but-unpublished log bytes and
// deactivating (spec §4.4 "Abort").
func (m *Manager) Abort(ctx *xct.TxnContext) {
	if logs := ctx.Logs(); logs != nil {
		logs.DiscardCurrentXct()
	}
	ctx.Deactivate()
}

// Precommit runs the full commit protocol for ctx and returns the epoch
// the transaction committed in. On failure the transaction is left
// deactivated and any locks/log bytes acquired during the attempt have
// already been released/discarded (spec §4.3).
func (m *Manager) Precommit(ctx *xct.TxnContext) (epoch.Epoch, error) {
	if !ctx.IsActive() {
		return epoch.Invalid, txnerr.ErrNoTransaction
	}

	if ctx.IsSchemaXct() {
		return m.precommitSchema(ctx)
	}
	if ctx.IsReadOnly() {
		return m.precommitReadOnly(ctx)
	}
	return m.precommitReadWrite(ctx)
}

// precommitSchema runs the DDL-style commit path (spec §4.3 "Schema
// path"): no locks, no read-set verification — the transaction's log
// buffer is walked directly and every entry must be Marker/Engine/Storage
// kind. Publishing always succeeds once every entry has applied, matching
// the spec's "publish_committed_log ... always succeeds" for this path; an
// entry that fails to apply fails the commit and its log bytes are
// discarded.
func (m *Manager) precommitSchema(ctx *xct.TxnContext) (epoch.Epoch, error) {
	commitEpoch := m.clock.CurrentWeak()
	guard := ctx.BeginInCommitEpoch(commitEpoch)
	defer guard.End()

	// IssueNextID still stamps this commit's serialization position even
	// though no record carries the id directly; schema transactions are
	// ordered in the commit log the same as any other (spec §4.3 step 2).
	ctx.IssueNextID(commitEpoch)

	var applyErr error
	ctx.Logs().ListUncommitted(func(entry []byte) {
		if applyErr != nil {
			return
		}
		applyErr = m.registry.ApplySchemaEntry(entry)
	})
	if applyErr != nil {
		ctx.Logs().DiscardCurrentXct()
		ctx.Deactivate()
		return epoch.Invalid, applyErr
	}

	ctx.Logs().PublishCommitted()
	ctx.Deactivate()
	return commitEpoch, nil
}

// precommitReadOnly verifies the read set against the current state with
// no locks taken and nothing published (spec §4.3 "Read-only path",
// grounded on original_source's precommit_xct_verify_readonly). Unlike the
// read-write path, a read-only transaction never holds any lock of its
// own, so any difference at all between the observed and current owner id
// — including a concurrently held lock — means someone else committed
// over what was read; there is no self-lock case to special-case here.
// commit_epoch is derived as the max of every observed owner id's epoch,
// substituting the durable epoch as a conservative lower bound when the
// read set was empty.
func (m *Manager) precommitReadOnly(ctx *xct.TxnContext) (epoch.Epoch, error) {
	commitEpoch := epoch.Invalid
	for _, ra := range ctx.ReadSet() {
		current := ra.Record.OwnerID().Snapshot()
		if !current.EqualsAll(ra.Observed) {
			ctx.Deactivate()
			return epoch.Invalid, txnerr.ErrRaceAbort
		}
		commitEpoch = commitEpoch.StoreMax(ra.Observed.Epoch())
	}
	if !commitEpoch.IsValid() {
		commitEpoch = m.durable.DurableGlobalEpochWeak()
	}
	ctx.Deactivate()
	return commitEpoch, nil
}

// precommitReadWrite runs the full lock / fence / latch-epoch / fence /
// verify / apply-or-unlock / publish sequence (spec §4.3 steps 1-8).
func (m *Manager) precommitReadWrite(ctx *xct.TxnContext) (epoch.Epoch, error) {
	sorted := append([]xct.WriteAccess(nil), ctx.WriteSet()...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Compare(sorted[j]) < 0
	})

	// Step 1: lock, in the global total order (record address, then log
	// pointer address) — this order is what makes the protocol
	// deadlock-free without cycle detection (spec §3, §4.3 step 1).
	for _, wa := range sorted {
		wa.Record.OwnerID().KeylockUnconditional()
	}

	// Step 2: fence. Go's atomic CAS in KeylockUnconditional already
	// establishes the acquire/release pair the protocol needs here; no
	// separate barrier call exists in this runtime.

	// Step 3: latch the serialization-point epoch and mark this context as
	// "in the commit window" so loggers can tell an in-flight commit's
	// bytes apart from fully published ones (spec §4.3 step 2-3).
	commitEpoch := m.clock.CurrentWeak()
	guard := ctx.BeginInCommitEpoch(commitEpoch)
	defer guard.End()

	// Step 4: fence (see step 2's note).

	// Step 5: verify the read set. A read access whose record is still
	// locked might be locked by this very transaction (step 1 above), so a
	// held lock alone isn't an abort: look the record up in the (already
	// sorted) write set by binary search and only abort if it's absent
	// (spec §4.3 step 6, grounded on original_source's
	// precommit_xct_verify_readwrite's binary_search over WriteXctAccess).
	if err := verifyReadSetReadWrite(ctx, sorted); err != nil {
		unlockAll(sorted)
		if logs := ctx.Logs(); logs != nil {
			logs.DiscardCurrentXct()
		}
		ctx.Deactivate()
		return epoch.Invalid, err
	}

	// Step 6: apply-or-unlock. Each write's log entry is re-read from its
	// stable buffer address and dispatched through the very registry that
	// recovery replay will later use, then the commit id is stored —
	// storing a word with the lock bit clear both applies the new version
	// and releases the lock in one atomic publish (spec §4.3 steps 5-7,
	// §4.5 "apply ... identically ... at log replay time").
	commitID := ctx.IssueNextID(commitEpoch)
	for i, wa := range sorted {
		entry := logbuf.EntryAt(wa.LogEntry.Ptr())
		if err := m.registry.Dispatch(entry); err != nil {
			m.log.Errorw("log dispatch failed during apply; unlocking remaining records",
				"error", err, "storageId", wa.StorageID)
			unlockAll(sorted[i:])
			if logs := ctx.Logs(); logs != nil {
				logs.DiscardCurrentXct()
			}
			ctx.Deactivate()
			return epoch.Invalid, err
		}
		wa.Record.OwnerID().Store(commitID.Raw())
	}

	// Step 7: publish. The appended range becomes durable-ordered.
	if logs := ctx.Logs(); logs != nil {
		logs.PublishCommitted()
	}

	ctx.Deactivate()
	return commitEpoch, nil
}

// verifyReadSetReadWrite implements spec §4.3 step 6 of the read-write
// path. sorted is the same address-sorted write set step 1 already locked
// in, reused here for the binary search so a read access locked by this
// transaction's own write set is recognized as self-locked rather than
// aborted. Every read access that survives verification also folds its
// observed id into ctx's dependsOn tracking (spec §4.8 supplement: a
// read-write transaction's own commit id must never be issued earlier
// than anything it read, not just what the read set's epoch tracking
// alone would guarantee).
func verifyReadSetReadWrite(ctx *xct.TxnContext, sorted []xct.WriteAccess) error {
	for _, ra := range ctx.ReadSet() {
		current := ra.Record.OwnerID().Snapshot()
		if !current.EqualsSerialOrder(ra.Observed) {
			return txnerr.ErrRaceAbort
		}
		if current.IsKeylocked() && writeSetIndexOf(sorted, ra.Record) < 0 {
			return txnerr.ErrRaceAbort
		}
		ctx.DependsOn(ra.Observed)
	}
	return nil
}

// writeSetIndexOf binary-searches sorted (ordered by xct.WriteAccess.Compare,
// whose primary key is record address) for rec, returning its index or -1.
// Used only to answer "is the record I'm seeing locked also one of mine"
// during read-set verify (spec §4.3 step 6).
func writeSetIndexOf(sorted []xct.WriteAccess, rec xct.OwnerIDHolder) int {
	target := xct.WriteAccess{Record: rec}
	idx := sort.Search(len(sorted), func(i int) bool {
		return sorted[i].Compare(target) >= 0
	})
	if idx < len(sorted) && sorted[idx].SameRecord(target) {
		return idx
	}
	return -1
}

func unlockAll(sorted []xct.WriteAccess) {
	for _, wa := range sorted {
		wa.Record.OwnerID().ReleaseKeylock()
	}
}

// CurrentGlobalEpoch returns the latest epoch the background advancer has
// published, under the full fence (spec §4.1 "CurrentGlobalEpoch").
func (m *Manager) CurrentGlobalEpoch() epoch.Epoch {
	return m.clock.Current()
}

// CurrentGlobalEpochWeak is CurrentGlobalEpoch without the fence, for
// callers that only need a recent-enough value (spec §4.1
// "CurrentGlobalEpochWeak").
func (m *Manager) CurrentGlobalEpochWeak() epoch.Epoch {
	return m.clock.CurrentWeak()
}

// AdvanceCurrentGlobalEpoch nudges the background advancer and blocks
// until it has moved at least once (spec §4.1 "AdvanceCurrentGlobalEpoch").
func (m *Manager) AdvanceCurrentGlobalEpoch() {
	m.clock.Advance()
}

// WaitForCommit blocks until commitEpoch is durable-ordered relative to
// the global epoch, i.e. until the clock has advanced strictly past it
// (spec §4.3 "WaitForCommit"). Per the original_source supplement (spec
// §K), the advancer is only nudged when it has not already moved past
// commitEpoch on its own — nudging an advancer that is already ahead
// would just add a spurious wakeup.
func (m *Manager) WaitForCommit(commitEpoch epoch.Epoch) {
	if !commitEpoch.Less(m.clock.CurrentWeak()) {
		m.clock.Advance()
	}
	for !commitEpoch.Less(m.clock.Current()) {
		m.clock.WaitForObserverProgress(m.clock.Current())
	}
}
