// Package mmappool backs the pmpool.Pool contract with a real memory-mapped
// file, using golang.org/x/sys/unix the way the pack's mmap-capable repos
// (sonhv0212-ronin, perkeep-perkeep, AKJUS-bsc-erigon) bind mmap/msync.
// Unlike pmpool.HeapPool, closing and reopening a Pool here can genuinely
// hand back a different base address — exercising spec.md §8 scenario 6
// ("simulate a restart... remap the pool to a new base address") for real,
// not just by mutating a field.
package mmappool

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/owlkv/pskiplist/pmpool"
	"github.com/owlkv/pskiplist/skiplog"
)

func baseOf(data []byte) uintptr {
	if len(data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&data[0]))
}

const (
	headerMagic = uint64(0x504f4f4c534b4c31) // "POOLSKL1"
	headerSize  = 8 + 8 + 16                 // magic, next free offset, uuid
)

// Pool memory-maps a backing file and hands out offsets into it via a bump
// allocator, the same contract as pmpool.HeapPool but over real mmap'd
// bytes so Base() reflects an actual OS mapping address.
type Pool struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	data   []byte
	uuid   [16]byte
	next   uintptr
	log    *skiplog.Logger
}

// New creates (or opens, if it already exists) a pool backed by path, sized
// to at least size bytes.
func New(path string, size int, log *skiplog.Logger) (*Pool, error) {
	if log == nil {
		log = skiplog.Discard()
	}
	if size < headerSize {
		size = headerSize
	}

	existed := true
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if os.IsNotExist(err) {
		existed = false
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	}
	if err != nil {
		return nil, fmt.Errorf("mmappool: open %s: %w", path, err)
	}

	if !existed {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, fmt.Errorf("mmappool: truncate: %w", err)
		}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	mapSize := int(info.Size())
	if mapSize < size {
		mapSize = size
		if err := f.Truncate(int64(mapSize)); err != nil {
			f.Close()
			return nil, err
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, mapSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmappool: mmap: %w", err)
	}

	p := &Pool{path: path, file: f, data: data, log: log}
	if existed && binary.LittleEndian.Uint64(data[0:8]) == headerMagic {
		copy(p.uuid[:], data[16:32])
		p.next = uintptr(binary.LittleEndian.Uint64(data[8:16]))
		if p.next < headerSize {
			p.next = headerSize
		}
	} else {
		var id [16]byte
		_, _ = rand.Read(id[:])
		p.uuid = id
		p.next = headerSize
		binary.LittleEndian.PutUint64(data[0:8], headerMagic)
		binary.LittleEndian.PutUint64(data[8:16], uint64(p.next))
		copy(data[16:32], p.uuid[:])
		p.flushLocked(0, headerSize)
	}
	p.log.Recovered(p.uuid, p.Base())
	return p, nil
}

// Base returns the address of the first byte of the mapping.
func (p *Pool) Base() uintptr {
	p.mu.Lock()
	defer p.mu.Unlock()
	return baseOf(p.data)
}

func (p *Pool) UUID() [16]byte { return p.uuid }

func (p *Pool) Begin() (pmpool.Tx, error) {
	return &tx{pool: p}, nil
}

func (p *Pool) Alloc(_ pmpool.Tx, size uintptr) (uintptr, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	aligned := (size + 7) &^ 7
	if aligned == 0 {
		aligned = 8
	}
	off := p.next
	if off+aligned > uintptr(len(p.data)) {
		return 0, fmt.Errorf("mmappool: out of space (need %d, have %d)", aligned, uintptr(len(p.data))-off)
	}
	p.next += aligned
	binary.LittleEndian.PutUint64(p.data[8:16], uint64(p.next))
	return off, nil
}

func (p *Pool) Free(_ pmpool.Tx, off uintptr) {
	// Bump allocator: freed space is never reused; pmpool.FreeT only drops
	// the registry entry. Same trade-off as pmpool.HeapPool.
}

func (p *Pool) Flush(addr, length uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushRangeLocked(addr, length)
}

func (p *Pool) flushLocked(off uintptr, length uintptr) {
	p.flushRangeLocked(baseOf(p.data)+off, length)
}

func (p *Pool) flushRangeLocked(addr, length uintptr) {
	base := baseOf(p.data)
	if addr < base || addr+length > base+uintptr(len(p.data)) {
		return
	}
	start := addr - base
	_ = unix.Msync(p.data[start:start+length], unix.MS_SYNC)
}

// Drain flushes the whole mapping.
func (p *Pool) Drain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = unix.Msync(p.data, unix.MS_SYNC)
}

// Close unmaps and closes the backing file.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.data) != 0 {
		_ = unix.Msync(p.data, unix.MS_SYNC)
		_ = unix.Munmap(p.data)
		p.data = nil
	}
	return p.file.Close()
}

// Reopen closes and remaps the same backing file, simulating a process
// restart: the OS is free to (and in practice often does) hand back a
// different base address for the new mapping, while the UUID stored in the
// file header and every offset already allocated remain valid.
func (p *Pool) Reopen() error {
	if err := p.Close(); err != nil {
		return err
	}
	reopened, err := New(p.path, 0, p.log)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.file = reopened.file
	p.data = reopened.data
	p.next = reopened.next
	p.mu.Unlock()
	return nil
}

type tx struct{ pool *Pool }

func (t *tx) Commit() error { return nil }
func (t *tx) Abort() error  { return nil }
