// Package skliperrs defines the error taxonomy for the persistent skip
// list: sentinel errors for the recoverable cases spec §7 calls out, and a
// thin Wrap helper for attaching context with the standard %w convention
// so callers can still errors.Is/errors.As against the sentinels.
package skliperrs

import "fmt"

// Sentinel errors. Lookup misses are deliberately NOT represented here —
// per spec §7 a miss is not an error, it is the end iterator or a zero
// return.
var (
	// ErrKeyExists is returned by callers that need to distinguish a
	// failed insert from TryEmplace's normal (resident, false, nil) return.
	ErrKeyExists = newSentinel("skiplist: key already exists")
	// ErrClosed indicates an operation against a pool or container that
	// has already been torn down.
	ErrClosed = newSentinel("skiplist: pool closed")
	// ErrCorrupt indicates a structural invariant was violated in a way
	// that could not be healed (e.g. a magic header mismatch on pool
	// recovery, or an iterator landing on a node the registry no longer
	// knows about).
	ErrCorrupt = newSentinel("skiplist: pool corrupt")
	// ErrAlloc indicates the pool could not satisfy an allocation. Per
	// spec §7 this is fatal to the core; callers that want a graceful
	// path must guard against it before calling in (e.g. pre-reserve).
	ErrAlloc = newSentinel("skiplist: pool allocation failed")
	// ErrTxAborted indicates a transaction aborted mid-operation; any
	// partially published link heals via the dirty-bit pathway on next
	// access, but the in-flight operation itself failed.
	ErrTxAborted = newSentinel("skiplist: transaction aborted")
)

type sentinelError string

func newSentinel(msg string) error { return sentinelError(msg) }

func (e sentinelError) Error() string { return string(e) }

// Wrap attaches context to a sentinel so errors.Is(err, sentinel) still
// succeeds while the original cause remains available via errors.Unwrap.
func Wrap(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return &wrapped{sentinel: sentinel, cause: cause}
}

type wrapped struct {
	sentinel error
	cause    error
}

func (w *wrapped) Error() string {
	return fmt.Sprintf("%s: %s", w.sentinel, w.cause)
}

func (w *wrapped) Unwrap() error { return w.cause }

func (w *wrapped) Is(target error) bool { return target == w.sentinel }
