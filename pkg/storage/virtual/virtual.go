// Package virtual implements pkg/storage.Backend entirely in RAM, for
// tests that need a storage backend without a real filesystem, and that
// want to simulate torn writes deterministically.
package virtual

import (
	"bytes"

	"github.com/kclauber/pico-wifi-settings/pkg/storage"
)

func init() {
	storage.Register("virtual", New)
}

// Backend is an in-memory sector, initialised erased (all 0xFF).
type Backend struct {
	sectorSize int
	pageSize   int
	mem        []byte

	// CorruptAt, if >= 0, makes the next AtomicReplace report a verify
	// mismatch at that byte offset without actually writing the bad byte
	// to mem - used to exercise storage.ErrCorrupt without hand-rolling a
	// torn write.
	CorruptAt int
}

// New constructs an erased virtual backend of sectorSize bytes.
func New(channel string, sectorSize, pageSize int) (storage.Backend, error) {
	b := &Backend{
		sectorSize: sectorSize,
		pageSize:   pageSize,
		mem:        bytes.Repeat([]byte{0xFF}, sectorSize),
		CorruptAt:  -1,
	}
	return b, nil
}

func (b *Backend) SectorSize() int { return b.sectorSize }
func (b *Backend) PageSize() int   { return b.pageSize }

func (b *Backend) Read(offset int, dst []byte) error {
	copy(dst, b.mem[offset:offset+len(dst)])
	return nil
}

func (b *Backend) AtomicReplace(data []byte) error {
	if len(data) > b.sectorSize {
		return storage.ErrInvalidArg
	}
	for i := range b.mem {
		b.mem[i] = 0xFF
	}
	copy(b.mem, data)
	if b.CorruptAt >= 0 && b.CorruptAt <= b.sectorSize {
		b.CorruptAt = -1
		return storage.ErrCorrupt
	}
	return nil
}
