// Package common holds small identifier types shared across the
// transaction core's packages, mirroring the role the teacher repo's
// pkg/common package plays for its storage layer.
package common

// ThreadID identifies a worker core. Workers are numbered densely from
// zero; the value also occupies the thread-id bitfield of an XctID.
type ThreadID uint16

// StorageID identifies a Storage instance managed by a StorageManager.
type StorageID uint32

// TxnID is a process-local, purely informational handle used for logging
// and for the worker's own bookkeeping. It is unrelated to xct.XctID, which
// is the durable serialization identifier.
type TxnID uint64

// LSN is a durable log sequence number, opaque to this core beyond
// comparison and use as a durability watermark.
type LSN uint64
