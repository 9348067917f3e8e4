package logbuf

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/foedusgo/occtxn/src/pkg/common"
	"github.com/foedusgo/occtxn/src/xct"
)

// Buffer is a worker-owned, fixed-capacity append-only array of log entries
// that does not wrap (Append panics once the capacity is used up)
// (spec §3 "Thread Log Buffer", §4.6 "Worker Memory Binding": "no
// cross-worker sharing"). It implements xct.LogAppender.
//
// Three cursors divide the backing array:
//   - committed: entries before this offset are durable-ordered and
//     immutable; PublishCommitted advances it.
//   - tail: the next free offset; Append grows it.
//   - (an implicit "head", the oldest offset not yet reclaimed, is not
//     modeled: this core never reclaims, matching the in-memory,
//     single-run scope of spec §1's Non-goals.)
//
// A pointer returned by Append stays valid (the backing array never
// moves) until the buffer is reset, which only happens between runs.
type Buffer struct {
	mu        sync.Mutex
	data      []byte
	tail      int
	committed int
	thread    common.ThreadID
}

// NewBuffer allocates a buffer with the given fixed byte capacity bound to
// thread (spec §4.6 "fixed-capacity per-worker ... log-buffer").
func NewBuffer(thread common.ThreadID, capacityBytes int) *Buffer {
	return &Buffer{
		data:   make([]byte, capacityBytes),
		thread: thread,
	}
}

// Append writes a self-describing entry (header + payload) at the current
// tail and returns a stable pointer to it (spec §3 "WriteAccess":
// "append returns a stable pointer until publish or discard").
func (b *Buffer) Append(payload []byte, code uint16, storageID common.StorageID) xct.LogPointer {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := buildEntry(Code(code), storageID, payload)
	if b.tail+len(entry) > len(b.data) {
		panic(fmt.Sprintf("log buffer overflow on thread %d: tail=%d entry=%d cap=%d",
			b.thread, b.tail, len(entry), len(b.data)))
	}
	off := b.tail
	copy(b.data[off:], entry)
	b.tail += len(entry)
	return xct.NewLogPointer(unsafe.Pointer(&b.data[off]))
}

// PublishCommitted advances the committed cursor to the current tail,
// marking every entry appended since the last publish as durable-ordered
// (spec §4.3 step 8 "publish": the commit protocol's final step).
func (b *Buffer) PublishCommitted() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.committed = b.tail
}

// DiscardCurrentXct rewinds tail back to the last committed offset,
// abandoning any entries appended by an aborted transaction (spec §4.4
// "Abort": "unwind the write set; no log entries are published").
func (b *Buffer) DiscardCurrentXct() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tail = b.committed
}

// OffsetTail returns the current tail offset.
func (b *Buffer) OffsetTail() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tail
}

// OffsetCommitted returns the current committed offset.
func (b *Buffer) OffsetCommitted() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.committed
}

// ListCommitted invokes fn once per committed entry, in append order, for
// log replay / durability flush (spec §4.5 "apply ... again, identically,
// at log replay time").
func (b *Buffer) ListCommitted(fn func(entry []byte)) {
	b.ListCommittedFrom(0, fn)
}

// ListUncommitted invokes fn once per entry appended since the last
// publish, in append order — the uncommitted tail a schema transaction's
// commit walks directly (spec §4.3 "Schema path" step 3), since schema
// transactions append engine/storage-kind entries without ever building a
// write-set access the record-kind apply path would otherwise walk.
func (b *Buffer) ListUncommitted(fn func(entry []byte)) {
	b.mu.Lock()
	committed, tail := b.committed, b.tail
	snapshot := make([]byte, tail-committed)
	copy(snapshot, b.data[committed:tail])
	b.mu.Unlock()

	off := 0
	for off < len(snapshot) {
		h := decodeHeader(snapshot[off:])
		end := off + int(h.Length)
		fn(snapshot[off:end])
		off = end
	}
}

// ListCommittedFrom invokes fn once per committed entry starting at byte
// offset from, and returns the committed offset observed (the caller's new
// "from" for the next incremental call). The durability layer uses this to
// flush only bytes appended since its last WakeupLoggers, rather than
// re-writing the whole committed prefix on every tick.
func (b *Buffer) ListCommittedFrom(from int, fn func(entry []byte)) int {
	b.mu.Lock()
	committed := b.committed
	snapshot := make([]byte, committed-from)
	copy(snapshot, b.data[from:committed])
	b.mu.Unlock()

	off := 0
	for off < len(snapshot) {
		h := decodeHeader(snapshot[off:])
		end := off + int(h.Length)
		fn(snapshot[off:end])
		off = end
	}
	return committed
}
