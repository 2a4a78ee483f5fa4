package skliperrs

import (
	"errors"
	"testing"
)

func TestWrapPreservesIsAndUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(ErrAlloc, cause)

	if !errors.Is(err, ErrAlloc) {
		t.Fatal("wrapped error should satisfy errors.Is against its sentinel")
	}
	if !errors.Is(err, cause) {
		t.Fatal("wrapped error should still unwrap to its cause")
	}
	if errors.Is(err, ErrClosed) {
		t.Fatal("wrapped error must not match an unrelated sentinel")
	}
}

func TestWrapNilCauseReturnsSentinel(t *testing.T) {
	if err := Wrap(ErrAlloc, nil); err != ErrAlloc {
		t.Fatalf("Wrap with a nil cause should return the sentinel itself, got %v", err)
	}
}
