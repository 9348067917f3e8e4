package numa

import (
	"context"
	"fmt"

	"github.com/foedusgo/occtxn/src/logbuf"
	"github.com/foedusgo/occtxn/src/pkg/common"
	"github.com/foedusgo/occtxn/src/xct"
)

// WorkerMemory binds one worker's transaction context, log buffer, and
// page chunk together under a single thread id (spec §4.6 "Worker Memory
// Binding": read-set/write-set/log-buffer/page-chunk, no cross-worker
// sharing).
type WorkerMemory struct {
	Thread common.ThreadID
	Ctx    *xct.TxnContext
	Log    *logbuf.Buffer
	Pages  *Chunk
}

// BindWorker allocates one worker's private memory: a log buffer of
// logBufferBytes, a TxnContext sized to maxReadSet/maxWriteSet, and a page
// chunk of initialPageGrab pages pulled from pool.
func BindWorker(
	ctx context.Context,
	thread common.ThreadID,
	logBufferBytes, maxReadSet, maxWriteSet, initialPageGrab int,
	pool *PagePool,
) (*WorkerMemory, error) {
	chunk, err := pool.Grab(ctx, initialPageGrab)
	if err != nil {
		return nil, fmt.Errorf("binding worker %d: %w", thread, err)
	}

	logBuf := logbuf.NewBuffer(thread, logBufferBytes)
	txnCtx := xct.NewTxnContext(thread, maxReadSet, maxWriteSet, logBuf)

	return &WorkerMemory{Thread: thread, Ctx: txnCtx, Log: logBuf, Pages: chunk}, nil
}

// Release returns the worker's page chunk to the shared pool. The log
// buffer and TxnContext are process memory owned by this struct and need
// no separate release.
func (w *WorkerMemory) Release() {
	if w.Pages != nil {
		w.Pages.Release()
	}
}
