// Package txnerr defines the error taxonomy the transaction core returns to
// its callers, per the kinds enumerated in spec §7. Callers compare with
// errors.Is; wrapping with fmt.Errorf("%w: ...") is expected for context.
package txnerr

import "errors"

var (
	// ErrAlreadyRunning is returned by Begin/BeginSchema when the calling
	// worker's context is already active. Transaction state is unchanged.
	ErrAlreadyRunning = errors.New("transaction already running")

	// ErrNoTransaction is returned by Precommit when the calling worker's
	// context is not active. Manager.Abort has no return value and does
	// not report it.
	ErrNoTransaction = errors.New("no active transaction")

	// ErrReadSetOverflow is returned when a read access would exceed the
	// context's configured read-set capacity. The caller must abort.
	ErrReadSetOverflow = errors.New("read set overflow")

	// ErrWriteSetOverflow is returned when a write access would exceed the
	// context's configured write-set capacity. The caller must abort.
	ErrWriteSetOverflow = errors.New("write set overflow")

	// ErrRaceAbort is returned when optimistic verification fails at
	// commit time. The transaction is already deactivated and its log
	// discarded; retrying is safe.
	ErrRaceAbort = errors.New("transaction aborted due to a race")

	// ErrInvalidLogType is returned by log dispatch on an unregistered or
	// corrupt log type code. Fatal for the transaction, not for the engine.
	ErrInvalidLogType = errors.New("invalid log type")

	// ErrInvalidLogTypeInSchemaXct is returned when a schema transaction's
	// log buffer contains a log entry that is not Marker/Engine/Storage.
	ErrInvalidLogTypeInSchemaXct = errors.New("invalid log type in schema transaction")

	// ErrTimeout names an expired durability wait. No function in this
	// module returns it: Manager.WaitForCommit takes no timeout and blocks
	// until the epoch clock has passed the commit epoch.
	ErrTimeout = errors.New("timed out waiting for durability")

	// ErrDependentModuleUnavailable signals an init/uninit ordering
	// violation. Fatal for the engine.
	ErrDependentModuleUnavailable = errors.New("dependent module unavailable")
)
