// Package storage defines the collaborator contracts spec §6 names
// (StorageManager, Storage, Record) and provides one concrete in-memory,
// map-backed implementation (memstore.go) to exercise the commit protocol
// against. The masstree/array page layouts themselves are explicitly out
// of scope (spec §1); this package's job is only to satisfy the contracts
// the transaction core depends on.
package storage

import (
	"github.com/foedusgo/occtxn/src/pkg/common"
	"github.com/foedusgo/occtxn/src/xct"
)

// Record owns an atomic owner id and a payload range (spec §3
// "Ownership", §6 "Record").
type Record interface {
	xct.OwnerIDHolder
	Payload() []byte
	SetPayload(p []byte)
}

// Storage performs record operations and, before returning, records the
// appropriate read and/or write access on the caller's transaction
// context (spec §6 "Storage").
type Storage interface {
	Name() string
	ID() common.StorageID

	// InsertRecord creates a new record for key with the given value,
	// recording a write access.
	InsertRecord(ctx *xct.TxnContext, key []byte, value []byte) error
	// GetRecord reads the record for key into a caller-supplied buffer,
	// recording a read access. Returns ErrKeyNotFound if absent.
	GetRecord(ctx *xct.TxnContext, key []byte, payloadCap int) ([]byte, error)
	// OverwriteRecord replaces bytes at offset in the record for key,
	// recording both a read access (to observe the pre-write owner id)
	// and a write access.
	OverwriteRecord(ctx *xct.TxnContext, key []byte, data []byte, offset int) error

	// Normalized variants use a fixed-width uint64 key, matching the
	// "array storage" access pattern spec §8's scenarios 2/3 exercise.
	InsertNormalized(ctx *xct.TxnContext, key uint64, value []byte) error
	GetNormalized(ctx *xct.TxnContext, key uint64, payloadCap int) ([]byte, error)
	OverwriteNormalized(ctx *xct.TxnContext, key uint64, data []byte, offset int) error
}

// Meta describes a storage to be created (spec §6 "StorageManager.create").
type Meta struct {
	Name string
	ID   common.StorageID
}

// Manager creates, drops, and looks up Storage instances (spec §6
// "StorageManager").
type Manager interface {
	Create(meta Meta) (Storage, error)
	Drop(id common.StorageID) error
	GetByID(id common.StorageID) (Storage, error)
	GetByName(name string) (Storage, error)
}
