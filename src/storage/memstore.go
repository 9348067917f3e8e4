package storage

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"sync"

	"github.com/foedusgo/occtxn/src/logbuf"
	"github.com/foedusgo/occtxn/src/pkg/common"
	"github.com/foedusgo/occtxn/src/xct"
)

// memStorage is the in-memory, map-backed (unordered) Storage this core
// exercises the commit protocol against (spec §1: "the masstree/array page layouts
// themselves are out of scope"; this is the simplest Storage that still
// gives every record a stable address and an atomic owner id).
//
// Grounded on the teacher's src/storage/engine in its division of
// responsibility (a name+id handle, a manager that creates/looks them up)
// and on original_source/foedus-core's array storage for the
// normalized/fixed-width key access pattern spec §8 scenarios 2/3 name.
type memStorage struct {
	name string
	id   common.StorageID

	mu      sync.RWMutex // structural: protects the records map itself
	records map[string]*record
}

func newMemStorage(meta Meta) *memStorage {
	return &memStorage{
		name:    meta.Name,
		id:      meta.ID,
		records: make(map[string]*record),
	}
}

func (s *memStorage) Name() string         { return s.name }
func (s *memStorage) ID() common.StorageID { return s.id }

func normalizedKey(key uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, key)
	return b
}

func (s *memStorage) InsertRecord(ctx *xct.TxnContext, key []byte, value []byte) error {
	return s.insert(ctx, key, value)
}

func (s *memStorage) InsertNormalized(ctx *xct.TxnContext, key uint64, value []byte) error {
	return s.insert(ctx, normalizedKey(key), value)
}

func (s *memStorage) insert(ctx *xct.TxnContext, key []byte, value []byte) error {
	k := string(key)
	s.mu.Lock()
	if _, exists := s.records[k]; exists {
		s.mu.Unlock()
		return ErrDuplicateKey
	}
	rec := newRecord(nil)
	s.records[k] = rec
	s.mu.Unlock()

	payload := encodeInsertPayload(key, value)
	logPtr := ctx.Logs().Append(payload, uint16(codeInsert), s.id)
	// A freshly reserved record has no prior owner: the zero XctIDValue is
	// invalid, so a concurrent reader spinning past the key-lock bit will
	// correctly see "not yet valid" rather than racing a real owner id.
	return ctx.RecordWrite(s.id, rec, xct.XctIDValue{}, logPtr)
}

func (s *memStorage) GetRecord(ctx *xct.TxnContext, key []byte, payloadCap int) ([]byte, error) {
	return s.get(ctx, key, payloadCap)
}

func (s *memStorage) GetNormalized(ctx *xct.TxnContext, key uint64, payloadCap int) ([]byte, error) {
	return s.get(ctx, normalizedKey(key), payloadCap)
}

func (s *memStorage) get(ctx *xct.TxnContext, key []byte, payloadCap int) ([]byte, error) {
	s.mu.RLock()
	rec, ok := s.records[string(key)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrKeyNotFound
	}

	// Spin past a concurrently held key-lock, then double-check the owner
	// id did not change around the payload copy, so a reader never
	// observes a torn write (spec §9 read-path resolution).
	for {
		before := rec.OwnerID().Snapshot()
		if before.IsKeylocked() {
			runtime.Gosched()
			continue
		}
		payload := rec.readInto(payloadCap)
		after := rec.OwnerID().Snapshot()
		if !after.EqualsAll(before) {
			continue
		}
		if !after.IsValid() {
			return nil, ErrKeyNotFound
		}
		if err := ctx.RecordRead(s.id, rec, after); err != nil {
			return nil, err
		}
		return payload, nil
	}
}

func (s *memStorage) OverwriteRecord(ctx *xct.TxnContext, key []byte, data []byte, offset int) error {
	return s.overwrite(ctx, key, data, offset)
}

func (s *memStorage) OverwriteNormalized(ctx *xct.TxnContext, key uint64, data []byte, offset int) error {
	return s.overwrite(ctx, normalizedKey(key), data, offset)
}

func (s *memStorage) overwrite(ctx *xct.TxnContext, key []byte, data []byte, offset int) error {
	s.mu.RLock()
	rec, ok := s.records[string(key)]
	s.mu.RUnlock()
	if !ok {
		return ErrKeyNotFound
	}

	var observed xct.XctIDValue
	for {
		snap := rec.OwnerID().Snapshot()
		if snap.IsKeylocked() {
			runtime.Gosched()
			continue
		}
		if !snap.IsValid() {
			return ErrKeyNotFound
		}
		observed = snap
		break
	}
	if err := ctx.RecordRead(s.id, rec, observed); err != nil {
		return err
	}

	payload := encodeOverwritePayload(key, offset, data)
	logPtr := ctx.Logs().Append(payload, uint16(codeOverwrite), s.id)
	return ctx.RecordWrite(s.id, rec, observed, logPtr)
}

func (s *memStorage) applyInsert(key string, value []byte) {
	s.mu.Lock()
	rec, ok := s.records[key]
	if !ok {
		rec = newRecord(nil)
		s.records[key] = rec
	}
	s.mu.Unlock()
	rec.SetPayload(value)
}

func (s *memStorage) applyOverwrite(key string, offset int, data []byte) {
	s.mu.Lock()
	rec, ok := s.records[key]
	if !ok {
		rec = newRecord(nil)
		s.records[key] = rec
	}
	s.mu.Unlock()
	rec.overwriteAt(offset, data)
}

// manager is the concrete Manager: a name/id-indexed registry of
// memStorage instances, each wired into a shared log-type registry at
// creation time (spec §6 "StorageManager.create").
type manager struct {
	mu       sync.RWMutex
	byID     map[common.StorageID]*memStorage
	byName   map[string]*memStorage
	registry *logbuf.Registry
}

// NewManager returns a Manager whose created storages register their
// record-kind log types into reg (spec §4.5: one registry, shared by
// every storage).
func NewManager(reg *logbuf.Registry) Manager {
	return &manager{
		byID:     make(map[common.StorageID]*memStorage),
		byName:   make(map[string]*memStorage),
		registry: reg,
	}
}

func (m *manager) Create(meta Meta) (Storage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byName[meta.Name]; exists {
		return nil, ErrStorageExists
	}
	s := newMemStorage(meta)
	if err := registerLogTypes(m.registry, s); err != nil {
		return nil, fmt.Errorf("registering log types for storage %q: %w", meta.Name, err)
	}
	m.byID[meta.ID] = s
	m.byName[meta.Name] = s
	return s, nil
}

func (m *manager) Drop(id common.StorageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return ErrStorageNotFound
	}
	delete(m.byID, id)
	delete(m.byName, s.name)
	return nil
}

func (m *manager) GetByID(id common.StorageID) (Storage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, ErrStorageNotFound
	}
	return s, nil
}

func (m *manager) GetByName(name string) (Storage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byName[name]
	if !ok {
		return nil, ErrStorageNotFound
	}
	return s, nil
}
