package logbuf

import (
	"fmt"
	"sort"
	"strings"

	"github.com/foedusgo/occtxn/src/pkg/txnerr"
)

// ApplyEngineFunc applies an engine-kind log entry (e.g. a checkpoint
// marker). Engine-kind entries never touch a storage's records.
type ApplyEngineFunc func(payload []byte) error

// ApplyStorageFunc applies a storage-kind log entry (e.g. create/drop).
type ApplyStorageFunc func(payload []byte) error

// ApplyRecordFunc applies a record-kind log entry against the record the
// write access already resolved (spec §4.5 "apply at commit time, and
// again, identically, at log replay time").
type ApplyRecordFunc func(payload []byte) error

// Descriptor registers one log type's identity and apply entry points
// (spec §4.5: "up to three apply entry points"). The ApplyXxx field that
// matches Kind must be non-nil (Marker needs none); Register does not
// check the other fields.
type Descriptor struct {
	Code Code
	Kind Kind
	Name string

	ApplyEngine  ApplyEngineFunc
	ApplyStorage ApplyStorageFunc
	ApplyRecord  ApplyRecordFunc
}

// Registry is the closed, total dispatch table over log type codes (spec
// §4.5 "a total dispatch function over type code"). It is built explicitly
// at wiring time (engine construction); there is no package-level init
// side effect, matching the teacher's explicit-wiring style.
type Registry struct {
	byCode map[Code]Descriptor
}

// NewRegistry returns an empty registry plus the built-in marker type
// pre-registered, since every buffer emits markers regardless of what
// storages exist (spec §4.5 "Marker" kind).
func NewRegistry() *Registry {
	r := &Registry{byCode: make(map[Code]Descriptor)}
	r.mustRegister(Descriptor{Code: CodeMarker, Kind: KindMarker, Name: "Marker"})
	return r
}

func (r *Registry) mustRegister(d Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Register adds d to the table. Returns an error if Code is CodeInvalid,
// already registered, or if the apply func its Kind requires is nil.
func (r *Registry) Register(d Descriptor) error {
	if d.Code == CodeInvalid {
		return fmt.Errorf("%w: code 0 is reserved", txnerr.ErrInvalidLogType)
	}
	if _, exists := r.byCode[d.Code]; exists {
		return fmt.Errorf("%w: code %d already registered", txnerr.ErrInvalidLogType, d.Code)
	}
	switch d.Kind {
	case KindMarker:
		// no apply func expected
	case KindEngine:
		if d.ApplyEngine == nil {
			return fmt.Errorf("%w: engine-kind type %d has no ApplyEngine", txnerr.ErrInvalidLogType, d.Code)
		}
	case KindStorage:
		if d.ApplyStorage == nil {
			return fmt.Errorf("%w: storage-kind type %d has no ApplyStorage", txnerr.ErrInvalidLogType, d.Code)
		}
	case KindRecord:
		if d.ApplyRecord == nil {
			return fmt.Errorf("%w: record-kind type %d has no ApplyRecord", txnerr.ErrInvalidLogType, d.Code)
		}
	default:
		return fmt.Errorf("%w: unknown kind %v for type %d", txnerr.ErrInvalidLogType, d.Kind, d.Code)
	}
	r.byCode[d.Code] = d
	return nil
}

// Lookup returns the descriptor for code, or false if unregistered.
func (r *Registry) Lookup(code Code) (Descriptor, bool) {
	d, ok := r.byCode[code]
	return d, ok
}

// Dispatch applies entry (a full header+payload buffer) against whichever
// ApplyXxx entry point its registered Kind names (spec §4.5's total
// dispatch function). Unregistered codes return ErrInvalidLogType.
func (r *Registry) Dispatch(entry []byte) error {
	h := decodeHeader(entry)
	d, ok := r.byCode[h.Code]
	if !ok {
		return fmt.Errorf("%w: code %d", txnerr.ErrInvalidLogType, h.Code)
	}
	payload := Payload(entry)
	switch d.Kind {
	case KindMarker:
		return nil
	case KindEngine:
		return d.ApplyEngine(payload)
	case KindStorage:
		return d.ApplyStorage(payload)
	case KindRecord:
		return d.ApplyRecord(payload)
	default:
		return fmt.Errorf("%w: unknown kind for code %d", txnerr.ErrInvalidLogType, h.Code)
	}
}

// ApplySchemaEntry applies entry the way a schema transaction's commit
// walks its uncommitted log range (spec §4.3 "Schema path" step 3):
// Marker is a no-op, Engine/Storage dispatch to their apply entry point,
// and any other kind (i.e. Record) is fatal — schema transactions carry
// no per-record logs.
func (r *Registry) ApplySchemaEntry(entry []byte) error {
	h := decodeHeader(entry)
	d, ok := r.byCode[h.Code]
	if !ok {
		return fmt.Errorf("%w: code %d", txnerr.ErrInvalidLogType, h.Code)
	}
	payload := Payload(entry)
	switch d.Kind {
	case KindMarker:
		return nil
	case KindEngine:
		return d.ApplyEngine(payload)
	case KindStorage:
		return d.ApplyStorage(payload)
	default:
		return fmt.Errorf("%w: code %d is kind %v", txnerr.ErrInvalidLogTypeInSchemaXct, h.Code, d.Kind)
	}
}

// DumpXML renders entry as a diagnostic XML-style fragment (spec §4.5
// "an XML-style diagnostic dump"), without applying it.
func (r *Registry) DumpXML(entry []byte) string {
	h := decodeHeader(entry)
	d, ok := r.byCode[h.Code]
	name := "Unregistered"
	kind := "Unknown"
	if ok {
		name = d.Name
		kind = d.Kind.String()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<LogEntry code=\"%d\" name=%q kind=%q length=\"%d\" storageId=\"%d\">\n",
		h.Code, name, kind, h.Length, h.StorageID)
	fmt.Fprintf(&b, "  <Payload bytes=\"%d\"/>\n", len(entry)-headerSize)
	b.WriteString("</LogEntry>")
	return b.String()
}

// Codes returns every registered code in ascending order, for tests and
// diagnostics.
func (r *Registry) Codes() []Code {
	codes := make([]Code, 0, len(r.byCode))
	for c := range r.byCode {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}
