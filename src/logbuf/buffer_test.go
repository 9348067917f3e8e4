package logbuf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foedusgo/occtxn/src/logbuf"
	"github.com/foedusgo/occtxn/src/pkg/common"
)

func TestBeginPreconditionTailEqualsCommitted(t *testing.T) {
	buf := logbuf.NewBuffer(1, 256)
	assert.Equal(t, buf.OffsetCommitted(), buf.OffsetTail())
}

func TestPublishCommittedAdvancesCommittedToTail(t *testing.T) {
	buf := logbuf.NewBuffer(1, 256)
	buf.Append([]byte("hello"), uint16(logbuf.FirstUserCode), common.StorageID(1))
	assert.Greater(t, buf.OffsetTail(), buf.OffsetCommitted())

	buf.PublishCommitted()
	assert.Equal(t, buf.OffsetTail(), buf.OffsetCommitted())
}

func TestDiscardCurrentXctRewindsTail(t *testing.T) {
	buf := logbuf.NewBuffer(1, 256)
	buf.Append([]byte("first"), uint16(logbuf.FirstUserCode), common.StorageID(1))
	buf.PublishCommitted()
	committedAfterFirst := buf.OffsetTail()

	buf.Append([]byte("second"), uint16(logbuf.FirstUserCode), common.StorageID(1))
	require.Greater(t, buf.OffsetTail(), committedAfterFirst)

	buf.DiscardCurrentXct()
	assert.Equal(t, committedAfterFirst, buf.OffsetTail())
	assert.Equal(t, committedAfterFirst, buf.OffsetCommitted())
}

func TestListCommittedFromOnlyWalksIncrementalRange(t *testing.T) {
	buf := logbuf.NewBuffer(1, 256)
	buf.Append([]byte("a"), uint16(logbuf.FirstUserCode), common.StorageID(1))
	buf.PublishCommitted()
	firstCommitted := buf.OffsetCommitted()

	var firstPass [][]byte
	got := buf.ListCommittedFrom(0, func(entry []byte) {
		firstPass = append(firstPass, append([]byte(nil), entry...))
	})
	assert.Equal(t, firstCommitted, got)
	assert.Len(t, firstPass, 1)

	buf.Append([]byte("b"), uint16(logbuf.FirstUserCode), common.StorageID(1))
	buf.PublishCommitted()

	var secondPass [][]byte
	got2 := buf.ListCommittedFrom(got, func(entry []byte) {
		secondPass = append(secondPass, append([]byte(nil), entry...))
	})
	assert.Greater(t, got2, got)
	assert.Len(t, secondPass, 1, "incremental call must not re-walk the already-flushed entry")
}

func TestListUncommittedWalksAppendedButUnpublishedRange(t *testing.T) {
	buf := logbuf.NewBuffer(1, 256)
	buf.Append([]byte("x"), uint16(logbuf.FirstUserCode), common.StorageID(9))
	buf.Append([]byte("y"), uint16(logbuf.FirstUserCode+1), common.StorageID(9))

	var codes []logbuf.Code
	buf.ListUncommitted(func(entry []byte) {
		codes = append(codes, logbuf.DecodeHeader(entry).Code)
	})
	assert.Equal(t, []logbuf.Code{logbuf.FirstUserCode, logbuf.FirstUserCode + 1}, codes)

	buf.PublishCommitted()
	var afterPublish []logbuf.Code
	buf.ListUncommitted(func(entry []byte) {
		afterPublish = append(afterPublish, logbuf.DecodeHeader(entry).Code)
	})
	assert.Empty(t, afterPublish, "once published, entries are no longer in the uncommitted range")
}

func TestAppendOverflowPanics(t *testing.T) {
	buf := logbuf.NewBuffer(1, 16)
	assert.Panics(t, func() {
		buf.Append(make([]byte, 64), uint16(logbuf.FirstUserCode), common.StorageID(1))
	})
}
