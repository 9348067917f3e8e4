package storage

import "errors"

// ErrKeyNotFound is returned by Get/Overwrite when no record exists for
// the given key (spec §6 "Storage").
var ErrKeyNotFound = errors.New("storage: key not found")

// ErrStorageNotFound is returned by Manager.GetByID/GetByName when no
// storage with that identity has been created.
var ErrStorageNotFound = errors.New("storage: not found")

// ErrStorageExists is returned by Manager.Create when the name is already
// in use by a live storage (spec §6 "StorageManager.create").
var ErrStorageExists = errors.New("storage: already exists")

// ErrDuplicateKey is returned by InsertRecord/InsertNormalized when the
// key already has a (possibly uncommitted) record reserved.
var ErrDuplicateKey = errors.New("storage: duplicate key")
