// Package filebackend implements pkg/storage.Backend backed by a plain
// file on disk, standing in for the on-device flash region on a host
// running pwsd.
package filebackend

import (
	"bytes"
	"fmt"
	"os"

	"github.com/kclauber/pico-wifi-settings/pkg/storage"
)

func init() {
	storage.Register("file", New)
}

type Backend struct {
	path       string
	sectorSize int
	pageSize   int
}

// New opens (creating if necessary) a file of exactly sectorSize bytes at
// path, initialising a freshly created file to all-0xFF (erased flash).
func New(path string, sectorSize, pageSize int) (storage.Backend, error) {
	b := &Backend{path: path, sectorSize: sectorSize, pageSize: pageSize}
	info, err := os.Stat(path)
	if err == nil && info.Size() == int64(sectorSize) {
		return b, nil
	}
	blank := bytes.Repeat([]byte{0xFF}, sectorSize)
	if err := os.WriteFile(path, blank, 0o644); err != nil {
		return nil, fmt.Errorf("filebackend: initialise %s: %w", path, err)
	}
	return b, nil
}

func (b *Backend) SectorSize() int { return b.sectorSize }
func (b *Backend) PageSize() int   { return b.pageSize }

func (b *Backend) Read(offset int, dst []byte) error {
	f, err := os.Open(b.path)
	if err != nil {
		return fmt.Errorf("filebackend: read: %w", err)
	}
	defer f.Close()
	if _, err := f.ReadAt(dst, int64(offset)); err != nil {
		return fmt.Errorf("filebackend: read: %w", err)
	}
	return nil
}

func (b *Backend) AtomicReplace(data []byte) error {
	if len(data) > b.sectorSize {
		return storage.ErrInvalidArg
	}

	f, err := os.OpenFile(b.path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("filebackend: open: %w", err)
	}
	defer f.Close()

	// Erase: whole sector becomes 0xFF. A real driver disables
	// interrupts around this step; there is nothing analogous to
	// disable here, a single os-level file write is already atomic with
	// respect to this process's single-threaded access pattern.
	blank := bytes.Repeat([]byte{0xFF}, b.sectorSize)
	if _, err := f.WriteAt(blank, 0); err != nil {
		return fmt.Errorf("filebackend: erase: %w", err)
	}

	// Program page by page, padding the final short page with 0xFF.
	for off := 0; off < len(data); off += b.pageSize {
		end := off + b.pageSize
		if end > len(data) {
			end = len(data)
		}
		page := make([]byte, b.pageSize)
		for i := range page {
			page[i] = 0xFF
		}
		copy(page, data[off:end])
		if _, err := f.WriteAt(page, int64(off)); err != nil {
			return fmt.Errorf("filebackend: program: %w", err)
		}
	}

	// Verify.
	verify := make([]byte, len(data)+1)
	readLen := len(data)
	if len(data) < b.sectorSize {
		readLen++
	}
	if _, err := f.ReadAt(verify[:readLen], 0); err != nil {
		return fmt.Errorf("filebackend: verify read: %w", err)
	}
	if !bytes.Equal(verify[:len(data)], data) {
		return storage.ErrCorrupt
	}
	if len(data) < b.sectorSize && verify[len(data)] != 0xFF {
		return storage.ErrCorrupt
	}
	return nil
}
