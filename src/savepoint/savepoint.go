// Package savepoint persists the durable epoch watermark across restarts
// (spec §6 "SavepointManager", §4.1 "a Clock restored from a savepoint
// epoch").
//
// Grounded on the teacher's use of afero for injectable-filesystem
// persistence (src/query.SetupExecutor takes an afero.Fs); JSON is used
// for the on-disk format as the plain, dependency-free idiomatic Go
// choice for a single small record.
package savepoint

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/foedusgo/occtxn/src/epoch"
)

// Manager is the collaborator contract spec §6 names.
type Manager interface {
	// GetSavepointFast returns the last durable epoch recorded, or
	// epoch.Invalid if no savepoint file exists yet (a fresh engine).
	GetSavepointFast() (epoch.Epoch, error)
	// Save persists e as the new durable-epoch watermark.
	Save(e epoch.Epoch) error
}

type record struct {
	DurableEpoch uint32 `json:"durable_epoch"`
}

// FileManager is the concrete, afero-backed SavepointManager.
type FileManager struct {
	fs   afero.Fs
	path string
}

// NewFileManager wires a savepoint file at path on fs.
func NewFileManager(fs afero.Fs, path string) *FileManager {
	return &FileManager{fs: fs, path: path}
}

// GetSavepointFast reads the savepoint file. Absence is not an error: a
// freshly initialized engine has no prior durable epoch, so the caller's
// Clock restores from epoch.First (spec §4.1).
func (m *FileManager) GetSavepointFast() (epoch.Epoch, error) {
	data, err := afero.ReadFile(m.fs, m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return epoch.Invalid, nil
		}
		return epoch.Invalid, fmt.Errorf("reading savepoint file %q: %w", m.path, err)
	}

	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return epoch.Invalid, fmt.Errorf("decoding savepoint file %q: %w", m.path, err)
	}
	return epoch.Epoch(r.DurableEpoch), nil
}

// Save overwrites the savepoint file with e.
func (m *FileManager) Save(e epoch.Epoch) error {
	data, err := json.Marshal(record{DurableEpoch: uint32(e)})
	if err != nil {
		return fmt.Errorf("encoding savepoint: %w", err)
	}
	if err := afero.WriteFile(m.fs, m.path, data, 0o644); err != nil {
		return fmt.Errorf("writing savepoint file %q: %w", m.path, err)
	}
	return nil
}
