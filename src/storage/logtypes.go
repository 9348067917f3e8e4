package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/foedusgo/occtxn/src/logbuf"
)

// Record-kind log payload layouts (spec §4.5: "self-describing log
// entries"). Both are decoded purely from bytes, with no dependency on a
// live WriteAccess.
//
//   insert:    [2]keyLen | key | value
//   overwrite: [2]keyLen | key | [4]offset | data

func encodeInsertPayload(key, value []byte) []byte {
	buf := make([]byte, 2+len(key)+len(value))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(key)))
	copy(buf[2:], key)
	copy(buf[2+len(key):], value)
	return buf
}

func decodeInsertPayload(p []byte) (key, value []byte) {
	keyLen := int(binary.LittleEndian.Uint16(p[0:2]))
	key = p[2 : 2+keyLen]
	value = p[2+keyLen:]
	return
}

func encodeOverwritePayload(key []byte, offset int, data []byte) []byte {
	buf := make([]byte, 2+len(key)+4+len(data))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(key)))
	copy(buf[2:], key)
	binary.LittleEndian.PutUint32(buf[2+len(key):2+len(key)+4], uint32(offset))
	copy(buf[2+len(key)+4:], data)
	return buf
}

func decodeOverwritePayload(p []byte) (key []byte, offset int, data []byte) {
	keyLen := int(binary.LittleEndian.Uint16(p[0:2]))
	key = p[2 : 2+keyLen]
	offset = int(binary.LittleEndian.Uint32(p[2+keyLen : 2+keyLen+4]))
	data = p[2+keyLen+4:]
	return
}

// Record-kind type codes for this storage's two mutating operations.
const (
	codeInsert    logbuf.Code = logbuf.FirstUserCode
	codeOverwrite logbuf.Code = logbuf.FirstUserCode + 1
)

// registerLogTypes wires s's record-kind log types into reg so that the
// commit apply step dispatches through these closures (spec §4.5).
func registerLogTypes(reg *logbuf.Registry, s *memStorage) error {
	if err := reg.Register(logbuf.Descriptor{
		Code: codeInsert,
		Kind: logbuf.KindRecord,
		Name: fmt.Sprintf("%s.Insert", s.name),
		ApplyRecord: func(payload []byte) error {
			key, value := decodeInsertPayload(payload)
			s.applyInsert(string(key), value)
			return nil
		},
	}); err != nil {
		return err
	}
	return reg.Register(logbuf.Descriptor{
		Code: codeOverwrite,
		Kind: logbuf.KindRecord,
		Name: fmt.Sprintf("%s.Overwrite", s.name),
		ApplyRecord: func(payload []byte) error {
			key, offset, data := decodeOverwritePayload(payload)
			s.applyOverwrite(string(key), offset, data)
			return nil
		},
	})
}
