package xct

import (
	"fmt"
	"sync/atomic"

	"github.com/foedusgo/occtxn/src/epoch"
	"github.com/foedusgo/occtxn/src/pkg/assert"
	"github.com/foedusgo/occtxn/src/pkg/common"
	"github.com/foedusgo/occtxn/src/pkg/txnerr"
)

// Isolation is the isolation mode a transaction runs under (spec §3).
type Isolation uint8

const (
	Serializable Isolation = iota
	SnapshotRead
	DirtyRead
)

func (i Isolation) String() string {
	switch i {
	case Serializable:
		return "SERIALIZABLE"
	case SnapshotRead:
		return "SNAPSHOT_READ"
	case DirtyRead:
		return "DIRTY_READ"
	default:
		return fmt.Sprintf("Isolation(%d)", uint8(i))
	}
}

// TxnContext is the per-worker transaction state of spec §3 "Transaction
// Context (Xct)" / §4.2. Exactly one worker thread owns a TxnContext for
// its entire lifetime (spec §3 "Ownership").
type TxnContext struct {
	thread common.ThreadID

	active    bool
	schemaXct bool
	isolation Isolation

	id XctIDValue

	readSet     []ReadAccess
	writeSet    []WriteAccess
	maxReadSet  int
	maxWriteSet int

	// inCommitLogEpoch is the scoped marker of spec §4.3: set before the
	// first post-lock fence, cleared on every exit path.
	inCommitLogEpoch atomic.Uint32 // epoch.Epoch, Invalid when not in the commit window

	// ordinal tracking for IssueNextID: the last epoch an id was issued
	// in for this thread, and the next ordinal to hand out within it.
	lastIssuedEpoch epoch.Epoch
	nextOrdinal     uint16

	// dependsOn tracks the running max of every XctIDValue this
	// transaction's pending commit must be ordered after (spec §4.8
	// supplement); IssueNextID issues an id that follows it.
	dependsOn XctIDValue

	// logs is the worker-owned log buffer bound to this context (spec
	// §4.6 "Worker Memory Binding"). Storage operations append through
	// it so that RecordWrite's log pointer is stable for this worker
	// alone.
	logs LogAppender
}

// NewTxnContext allocates a context with the given per-worker set
// capacities (spec §4.6 "sets are sized from configuration").
func NewTxnContext(thread common.ThreadID, maxReadSet, maxWriteSet int, logs LogAppender) *TxnContext {
	c := &TxnContext{
		thread:      thread,
		maxReadSet:  maxReadSet,
		maxWriteSet: maxWriteSet,
		readSet:     make([]ReadAccess, 0, maxReadSet),
		writeSet:    make([]WriteAccess, 0, maxWriteSet),
		logs:        logs,
	}
	c.inCommitLogEpoch.Store(uint32(epoch.Invalid))
	return c
}

// Thread returns the owning worker's thread id.
func (c *TxnContext) Thread() common.ThreadID { return c.thread }

// Logs returns the worker-bound log appender.
func (c *TxnContext) Logs() LogAppender { return c.logs }

// IsActive reports whether a transaction is currently in flight.
func (c *TxnContext) IsActive() bool { return c.active }

// IsSchemaXct reports whether this is a DDL-style schema transaction.
func (c *TxnContext) IsSchemaXct() bool { return c.schemaXct }

// IsReadOnly reports whether the write set is empty and this is not a
// schema transaction (spec §4.3 "Read-only path" precondition).
func (c *TxnContext) IsReadOnly() bool { return !c.schemaXct && len(c.writeSet) == 0 }

// Isolation returns the isolation mode the active transaction runs under.
func (c *TxnContext) Isolation() Isolation { return c.isolation }

// ID returns the XctID assembled at commit. Not meaningful before
// IssueNextID has run.
func (c *TxnContext) ID() XctIDValue { return c.id }

// ReadSet returns the accumulated read accesses.
func (c *TxnContext) ReadSet() []ReadAccess { return c.readSet }

// WriteSet returns the accumulated write accesses.
func (c *TxnContext) WriteSet() []WriteAccess { return c.writeSet }

// Activate begins a transaction (spec §4.2). Precondition: !active.
func (c *TxnContext) Activate(isolation Isolation, schema bool) error {
	if c.active {
		return txnerr.ErrAlreadyRunning
	}
	c.active = true
	c.schemaXct = schema
	c.isolation = isolation
	c.readSet = c.readSet[:0]
	c.writeSet = c.writeSet[:0]
	c.id = XctIDValue{}
	c.dependsOn = XctIDValue{}
	c.inCommitLogEpoch.Store(uint32(epoch.Invalid))
	return nil
}

// Deactivate unconditionally clears active; it does not release locks
// (spec §4.2).
func (c *TxnContext) Deactivate() {
	c.active = false
}

// RecordRead appends to the read set, failing when full (spec §4.2).
// Per spec §9's open question resolution, callers must ensure the
// observed id was not key-locked at read time (this core's storage
// implementation spins past a locked owner id before calling RecordRead).
func (c *TxnContext) RecordRead(storageID common.StorageID, rec OwnerIDHolder, observed XctIDValue) error {
	assert.Assert(!observed.IsKeylocked(), "recorded a read with the key-lock bit observed set")
	if len(c.readSet) >= c.maxReadSet {
		return txnerr.ErrReadSetOverflow
	}
	c.readSet = append(c.readSet, ReadAccess{StorageID: storageID, Record: rec, Observed: observed})
	return nil
}

// RecordWrite appends to the write set, failing when full (spec §4.2).
func (c *TxnContext) RecordWrite(storageID common.StorageID, rec OwnerIDHolder, observed XctIDValue, logEntry LogPointer) error {
	if len(c.writeSet) >= c.maxWriteSet {
		return txnerr.ErrWriteSetOverflow
	}
	c.writeSet = append(c.writeSet, WriteAccess{
		StorageID: storageID,
		Record:    rec,
		Observed:  observed,
		LogEntry:  logEntry,
	})
	return nil
}

// DependsOn folds id into the running maximum this transaction's own
// commit id must be ordered after (spec §4.8 supplement).
func (c *TxnContext) DependsOn(id XctIDValue) {
	c.dependsOn = c.dependsOn.StoreMax(id)
}

// IssueNextID computes a fresh XctID with (epoch, ordinal, thread), status
// bits zero, per spec §4.2. minEpoch is the minimal epoch this id must
// fall in (the commit epoch latched at the serialization point); the
// result falls in a later epoch when this thread already issued ids in a
// later one, when the per-thread ordinal counter for the epoch has been
// exhausted (spec §4.7 supplement), or when dependsOn lies in a later
// epoch. Within dependsOn's own epoch the ordinal is raised above
// dependsOn's. The id is stored on the context as a side effect.
func (c *TxnContext) IssueNextID(minEpoch epoch.Epoch) XctIDValue {
	e := minEpoch
	if c.lastIssuedEpoch.IsValid() && e.Less(c.lastIssuedEpoch) {
		e = c.lastIssuedEpoch
	}
	if c.dependsOn.IsValid() && e.Less(c.dependsOn.Epoch()) {
		e = c.dependsOn.Epoch()
	}

	if c.lastIssuedEpoch != e {
		c.lastIssuedEpoch = e
		c.nextOrdinal = 1
	}
	if c.dependsOn.IsValid() && c.dependsOn.Epoch() == e && c.nextOrdinal != 0 && c.nextOrdinal <= c.dependsOn.Ordinal() {
		c.nextOrdinal = c.dependsOn.Ordinal() + 1
	}
	// nextOrdinal wraps to 0 once MaxOrdinal has been handed out in e.
	if c.nextOrdinal == 0 {
		e = e.OneMore()
		c.lastIssuedEpoch = e
		c.nextOrdinal = 1
	}

	ordinal := c.nextOrdinal
	c.nextOrdinal++

	id := NewXctIDValue(e, ordinal, uint16(c.thread))
	c.id = id
	return id
}

// BeginInCommitEpoch installs the in-commit-log-epoch marker (spec §4.3
// step 2). Returns a guard whose End must be deferred so the marker is
// cleared on every exit path, including aborts (spec §4.3 "Clear
// in_commit_log_epoch on any exit path via scoped guard").
func (c *TxnContext) BeginInCommitEpoch(e epoch.Epoch) InCommitEpochGuard {
	c.inCommitLogEpoch.Store(uint32(e))
	return InCommitEpochGuard{ctx: c}
}

// InCommitLogEpoch returns the current marker value, or epoch.Invalid if
// no commit is in flight for this context. Loggers use this to decide
// whether a record's log bytes are still being applied.
func (c *TxnContext) InCommitLogEpoch() epoch.Epoch {
	return epoch.Epoch(c.inCommitLogEpoch.Load())
}

// InCommitEpochGuard clears the in-commit-log-epoch marker on End.
type InCommitEpochGuard struct {
	ctx *TxnContext
}

// End clears the marker. Safe to call multiple times.
func (g InCommitEpochGuard) End() {
	if g.ctx != nil {
		g.ctx.inCommitLogEpoch.Store(uint32(epoch.Invalid))
	}
}
