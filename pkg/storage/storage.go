// Package storage provides the sector-granular non-volatile storage
// interface consumed by pkg/settings, plus implementations for real files
// and for tests.
package storage

import "errors"

var (
	// ErrInvalidArg is returned when a requested operation's length
	// exceeds the backend's sector size.
	ErrInvalidArg = errors.New("storage: invalid argument")
	// ErrCorrupt is returned when a post-program verify step observes a
	// byte mismatch against what was requested.
	ErrCorrupt = errors.New("storage: verify failed, data corrupt")
)

// Backend is a sector-granular erase/program/verify region, addressed as a
// contiguous byte range. Implementations need not provide any atomicity
// guarantee beyond what AtomicReplace itself sequences: a caller observing
// a mid-write power loss (or, in tests, a simulated one) must see an
// all-0xFF sector, which pkg/settings treats as logically empty.
type Backend interface {
	// SectorSize returns the erase granularity in bytes.
	SectorSize() int
	// PageSize returns the program granularity in bytes.
	PageSize() int
	// Read copies exactly len(dst) bytes starting at offset into dst.
	Read(offset int, dst []byte) error
	// AtomicReplace erases the whole sector, programs page by page from
	// data (padding the final short page with 0xFF), then verifies bytes
	// [0, len(data)) match and, if len(data) < SectorSize(), that the byte
	// at len(data) reads 0xFF. Returns ErrInvalidArg if len(data) exceeds
	// SectorSize(), or ErrCorrupt if verification fails.
	AtomicReplace(data []byte) error
}

// NewFunc constructs a Backend from a driver-specific channel string
// (e.g. a file path). Implementations register themselves via Register.
type NewFunc func(channel string, sectorSize, pageSize int) (Backend, error)

var registry = make(map[string]NewFunc)

// Register makes a storage backend driver available under name. Intended
// to be called from an implementation package's init().
func Register(name string, fn NewFunc) {
	registry[name] = fn
}

// New constructs a Backend using the driver registered under name.
func New(name, channel string, sectorSize, pageSize int) (Backend, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, errors.New("storage: unknown backend " + name)
	}
	return fn(channel, sectorSize, pageSize)
}
