// Package assert provides cheap runtime invariant checks in the style used
// throughout this module: a condition and a printf-style message, panicking
// when the condition does not hold. These are not a substitute for error
// handling — they guard invariants that a caller violating would mean a bug
// in this module, not a user-facing recoverable condition.
package assert

import "fmt"

// Assert panics with the formatted message if cond is false.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// NoError panics if err is non-nil. Used where an error return exists only
// for interface symmetry and this module's own logic guarantees it is nil.
func NoError(err error) {
	if err != nil {
		panic(fmt.Sprintf("unexpected error: %v", err))
	}
}
