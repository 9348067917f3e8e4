package xct

import "runtime"

// osYield backs off a failed key-lock CAS attempt, per spec §4.4 ("on each
// failed attempt, yields after a backoff").
func osYield() {
	runtime.Gosched()
}
