// Package logbuf implements the per-worker thread log buffer (spec §3
// "Thread Log Buffer") and the type-tagged log-apply dispatch (spec §4.5
// "Log Apply Dispatch").
//
// Grounded on original_source/foedus-core's log::LogHeader /
// log::invoke_apply_* free functions (referenced from
// xct_manager_pimpl.cpp) and on the teacher's recovery/log.go for the
// append/publish/discard vocabulary (AppendXXX / Rollback / flushLSN).
package logbuf

import (
	"encoding/binary"
	"unsafe"

	"github.com/foedusgo/occtxn/src/pkg/common"
)

// Kind is the closed set of log kinds a registered type belongs to
// (spec §4.5).
type Kind uint8

const (
	KindMarker Kind = iota
	KindEngine
	KindStorage
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindMarker:
		return "Marker"
	case KindEngine:
		return "Engine"
	case KindStorage:
		return "Storage"
	case KindRecord:
		return "Record"
	default:
		return "Unknown"
	}
}

// Code is a log type code, the dispatch key (spec §4.5). CodeInvalid is
// reserved and never registered.
type Code uint16

const CodeInvalid Code = 0

// headerSize is the fixed width of every entry's self-describing header:
// 2 bytes code, 4 bytes length (of the whole entry, header included),
// 4 bytes storage id.
const headerSize = 2 + 4 + 4

// Header is the self-describing prefix of every log entry (spec §4.5:
// "Each begins with a header containing log_type_code, log_length,
// storage_id").
type Header struct {
	Code      Code
	Length    uint32
	StorageID common.StorageID
}

func encodeHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint16(buf[0:2], uint16(h.Code))
	binary.LittleEndian.PutUint32(buf[2:6], h.Length)
	binary.LittleEndian.PutUint32(buf[6:10], uint32(h.StorageID))
}

func decodeHeader(buf []byte) Header {
	return Header{
		Code:      Code(binary.LittleEndian.Uint16(buf[0:2])),
		Length:    binary.LittleEndian.Uint32(buf[2:6]),
		StorageID: common.StorageID(binary.LittleEndian.Uint32(buf[6:10])),
	}
}

// buildEntry assembles a full self-describing entry: header + payload.
func buildEntry(code Code, storageID common.StorageID, payload []byte) []byte {
	total := headerSize + len(payload)
	entry := make([]byte, total)
	encodeHeader(entry, Header{Code: code, Length: uint32(total), StorageID: storageID})
	copy(entry[headerSize:], payload)
	return entry
}

// DecodeHeader exposes header decoding to callers holding a raw entry
// (e.g. the schema commit path iterating ListUncommitted).
func DecodeHeader(entry []byte) Header {
	return decodeHeader(entry)
}

// Payload returns the bytes after an entry's header.
func Payload(entry []byte) []byte {
	return entry[headerSize:]
}

// EntryAt reinterprets a raw buffer address as the full header+payload
// entry written there. The commit path's apply step uses it to hand
// Registry.Dispatch the entry a live WriteAccess points at, since a
// WriteAccess carries only an address, never a pre-decoded copy. The
// durability layer does not dispatch entries; it writes their bytes to
// files.
func EntryAt(p unsafe.Pointer) []byte {
	hdr := unsafe.Slice((*byte)(p), headerSize)
	h := decodeHeader(hdr)
	return unsafe.Slice((*byte)(p), h.Length)
}
