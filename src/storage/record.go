package storage

import (
	"sync"

	"github.com/foedusgo/occtxn/src/xct"
)

// record is the concrete storage.Record: an atomic owner id (the OCC
// lock/version word, spec §3 "Ownership") plus a payload byte range.
//
// payloadMu is NOT part of the OCC protocol — it exists only so that the
// payload byte slice itself is read and written under Go's memory model
// without a race, since two goroutines touching the same []byte bytes
// without any synchronization is undefined behavior in Go regardless of
// whether the surrounding fence/verify protocol makes the outcome
// logically correct. The key-lock bit in ownerID is still the only thing
// that gives the access its OCC meaning; payloadMu is held only for the
// duration of the byte copy, never across a fence or a lock acquisition.
type record struct {
	ownerID   xct.XctID
	payloadMu sync.RWMutex
	payload   []byte
}

func newRecord(initial []byte) *record {
	r := &record{payload: append([]byte(nil), initial...)}
	return r
}

func (r *record) OwnerID() *xct.XctID { return &r.ownerID }

func (r *record) Payload() []byte {
	r.payloadMu.RLock()
	defer r.payloadMu.RUnlock()
	return append([]byte(nil), r.payload...)
}

func (r *record) SetPayload(p []byte) {
	r.payloadMu.Lock()
	defer r.payloadMu.Unlock()
	r.payload = append([]byte(nil), p...)
}

func (r *record) overwriteAt(offset int, data []byte) {
	r.payloadMu.Lock()
	defer r.payloadMu.Unlock()
	if offset+len(data) > len(r.payload) {
		grown := make([]byte, offset+len(data))
		copy(grown, r.payload)
		r.payload = grown
	}
	copy(r.payload[offset:], data)
}

func (r *record) readInto(capHint int) []byte {
	r.payloadMu.RLock()
	defer r.payloadMu.RUnlock()
	n := len(r.payload)
	if capHint > 0 && capHint < n {
		n = capHint
	}
	out := make([]byte, n)
	copy(out, r.payload[:n])
	return out
}
