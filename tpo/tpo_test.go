package tpo

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestFromOffsetRoundTrip(t *testing.T) {
	o := FromOffset(128, false, false)
	if o.Offset() != 128 {
		t.Fatalf("Offset() = %d, want 128", o.Offset())
	}
	if o.IsDeleted() || o.IsDirty() {
		t.Fatal("fresh offset should carry no flags")
	}
}

func TestFromStripsLowBits(t *testing.T) {
	o := FromOffset(131, false, false) // 131 &^ 3 == 128
	if o.Offset() != 128 {
		t.Fatalf("Offset() = %d, want 128 (low bits reserved for flags)", o.Offset())
	}
}

func TestVptrNullIsZero(t *testing.T) {
	var o Offset
	if !o.IsNull() {
		t.Fatal("zero value must be null")
	}
	if v := o.Vptr(0x1000); v != 0 {
		t.Fatalf("Vptr(null) = %#x, want 0", v)
	}
}

func TestVptrAddsBase(t *testing.T) {
	o := FromOffset(64, false, false)
	if v := o.Vptr(0x1000); v != 0x1040 {
		t.Fatalf("Vptr = %#x, want %#x", v, 0x1040)
	}
}

func TestDeletedDirtyFlags(t *testing.T) {
	o := FromOffset(16, false, false)
	d := o.Deleted()
	if !d.IsDeleted() {
		t.Fatal("expected DELETED set")
	}
	if d.Offset() != 16 {
		t.Fatalf("Deleted() must not disturb offset bits, got %d", d.Offset())
	}

	dirty := o.Dirty()
	if !dirty.IsDirty() {
		t.Fatal("expected DIRTY set")
	}
	clean := dirty.Clean()
	if clean.IsDirty() {
		t.Fatal("Clean() must clear DIRTY")
	}
	if clean.Offset() != o.Offset() {
		t.Fatal("Clean() must not disturb offset bits")
	}
}

func TestCleanSlotNoOpWhenClean(t *testing.T) {
	var slot atomic.Uint64
	slot.Store(uint64(FromOffset(32, false, false)))
	flushed := false
	got := CleanSlot(&slot, 0, 0, func(uintptr, uintptr) { flushed = true })
	if got.IsDirty() {
		t.Fatal("already-clean slot must stay clean")
	}
	if flushed {
		t.Fatal("CleanSlot must not flush a slot that was never dirty")
	}
}

func TestCleanSlotClearsDirtyAndFlushes(t *testing.T) {
	var slot atomic.Uint64
	slot.Store(uint64(FromOffset(32, false, true)))
	var flushedAddr, flushedLen uintptr
	got := CleanSlot(&slot, 0xdead, 8, func(addr, length uintptr) {
		flushedAddr, flushedLen = addr, length
	})
	if got.IsDirty() {
		t.Fatal("CleanSlot must return a clean offset")
	}
	if Offset(slot.Load()).IsDirty() {
		t.Fatal("CleanSlot must publish the clean word back into the slot")
	}
	if flushedAddr != 0xdead || flushedLen != 8 {
		t.Fatalf("flush called with (%#x, %d), want (0xdead, 8)", flushedAddr, flushedLen)
	}
}

// TestCleanSlotConcurrentObservers mirrors the teacher's style of hammering
// a shared atomic word from many goroutines and checking the end state
// rather than individual interleavings.
func TestCleanSlotConcurrentObservers(t *testing.T) {
	var slot atomic.Uint64
	slot.Store(uint64(FromOffset(256, false, true)))

	var flushes atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			CleanSlot(&slot, 0, 0, func(uintptr, uintptr) {
				flushes.Add(1)
			})
		}()
	}
	wg.Wait()

	if Offset(slot.Load()).IsDirty() {
		t.Fatal("slot must end up clean after concurrent observers")
	}
	if flushes.Load() != 1 {
		t.Fatalf("flush ran %d times, want exactly 1 (only the CAS winner flushes)", flushes.Load())
	}
}
