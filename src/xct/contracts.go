package xct

import "github.com/foedusgo/occtxn/src/pkg/common"

// Record is the collaborator contract spec §6 names: something that owns
// an atomic owner id and a payload range. Declared here (rather than in
// package storage) so that xct, logbuf, and storage can all depend on it
// without a cycle — storage.Record embeds it and has the same method set.
type Record interface {
	OwnerID() *XctID
	Payload() []byte
	SetPayload(p []byte)
}

// OwnerIDHolder is an alias of Record, the name the read/write-set
// ordering logic uses for it.
type OwnerIDHolder = Record

// StorageHandle is the collaborator contract for a storage instance,
// carrying only what the commit protocol and log dispatch need to know
// about it (spec §1 "a storage handle (with a name and id)").
type StorageHandle interface {
	ID() common.StorageID
	Name() string
}

// LogAppender is the per-worker log buffer contract: storage operations
// append through it at call time, and the commit protocol publishes or
// discards the appended range at the end of the commit attempt (spec §3
// "WriteAccess", §4.3 steps "apply-or-unlock" and "publish").
type LogAppender interface {
	Append(payload []byte, code uint16, storageID common.StorageID) LogPointer
	PublishCommitted()
	DiscardCurrentXct()
	// ListUncommitted walks the entries appended since the last publish,
	// in append order — used only by the schema commit path (spec §4.3
	// "Schema path"), which applies engine/storage-kind logs directly
	// rather than through a record write-set access.
	ListUncommitted(fn func(entry []byte))
}
