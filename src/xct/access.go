package xct

import (
	"unsafe"

	"github.com/foedusgo/occtxn/src/pkg/common"
)

// LogPointer references bytes inside a worker's log buffer. It is opaque
// to this package: stability until the transaction deactivates is a
// contract owned by logbuf.Buffer (spec §3 "WriteAccess").
type LogPointer struct {
	ptr unsafe.Pointer
}

// NewLogPointer wraps a buffer-internal address.
func NewLogPointer(p unsafe.Pointer) LogPointer { return LogPointer{ptr: p} }

// Addr exposes the raw address for ordering comparisons (spec §3: "tie
// break = log_entry_pointer address").
func (l LogPointer) Addr() uintptr { return uintptr(l.ptr) }

// Ptr returns the underlying pointer for dereferencing by the log-apply
// dispatcher.
func (l LogPointer) Ptr() unsafe.Pointer { return l.ptr }

// ReadAccess records an optimistically observed record read (spec §3).
// Ordering on the read set is unspecified; this core appends in call
// order.
type ReadAccess struct {
	StorageID common.StorageID
	Record    OwnerIDHolder
	Observed  XctIDValue
}

// WriteAccess records a pending-to-publish write (spec §3). The total
// order used for lock acquisition is: primary key = record address,
// tie-break = log pointer address (Compare below).
type WriteAccess struct {
	StorageID common.StorageID
	Record    OwnerIDHolder
	Observed  XctIDValue
	LogEntry  LogPointer
}

func recordAddr(r OwnerIDHolder) uintptr {
	return uintptr(unsafe.Pointer(r.OwnerID()))
}

// Compare implements the strict weak ordering required for sort + binary
// search during commit (spec §3, §8 "Write-set order").
func (w WriteAccess) Compare(other WriteAccess) int {
	a, b := recordAddr(w.Record), recordAddr(other.Record)
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	la, lb := w.LogEntry.Addr(), other.LogEntry.Addr()
	switch {
	case la < lb:
		return -1
	case la > lb:
		return 1
	default:
		return 0
	}
}

// SameRecord reports whether w and other target the same record, ignoring
// the log-entry tie-break — used by the verify step's binary search for
// "is this locked record mine" (spec §4.3 step 6).
func (w WriteAccess) SameRecord(other WriteAccess) bool {
	return recordAddr(w.Record) == recordAddr(other.Record)
}
