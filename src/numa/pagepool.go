// Package numa models spec §4.6 "Worker Memory Binding": fixed-capacity
// per-worker read-set/write-set/log-buffer/page-chunk allocations with no
// cross-worker sharing, plus the shared page pool workers draw their
// chunk from at startup.
//
// Grounded on the teacher's src/bufferpool for the pool-of-fixed-size-slots
// shape; the bounded-semaphore acquire/release pattern is adopted from
// golang.org/x/sync/semaphore, already in the teacher's stack, as the
// idiomatic Go stand-in for pinning a contiguous page range to one core.
package numa

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// PageSize is the fixed page size every pool slot represents.
const PageSize = 4096

// PagePool is the engine-wide pool of fixed-size pages. Workers grab a
// private chunk from it once at startup (spec §4.6); nothing else draws
// from it concurrently with a worker's own chunk, so the semaphore here
// only ever contends at startup/shutdown, never on the hot path.
type PagePool struct {
	sem   *semaphore.Weighted
	total int64
}

// NewPagePool sizes the pool at totalPages pages.
func NewPagePool(totalPages int) *PagePool {
	return &PagePool{sem: semaphore.NewWeighted(int64(totalPages)), total: int64(totalPages)}
}

// Grab reserves n pages as one worker's private chunk (spec §4.6 "fixed
// ... page-chunk"). Blocks if the pool is exhausted.
func (p *PagePool) Grab(ctx context.Context, n int) (*Chunk, error) {
	if err := p.sem.Acquire(ctx, int64(n)); err != nil {
		return nil, fmt.Errorf("grabbing %d pages from page pool: %w", n, err)
	}
	return &Chunk{pool: p, pages: int64(n), bytes: make([]byte, int64(n)*PageSize)}, nil
}

// Chunk is one worker's private, NUMA-local page range. It is never
// shared with another worker (spec §4.6).
type Chunk struct {
	pool  *PagePool
	pages int64
	bytes []byte
}

// Bytes exposes the raw backing storage, e.g. to carve out page-sized
// buffers for a worker's own use.
func (c *Chunk) Bytes() []byte { return c.bytes }

// Release returns the chunk's pages to the shared pool.
func (c *Chunk) Release() {
	c.pool.sem.Release(c.pages)
}
