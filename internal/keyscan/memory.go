// Package keyscan extracts raw database keys from a running client
// process. All process-memory access goes through the narrow Memory
// capability; everything else in the engine only ever sees validated
// Account values.
package keyscan

import "errors"

var (
	// ErrKeyNotFound means no matching process is running or no
	// candidate key survived validation.
	ErrKeyNotFound = errors.New("key not found")

	// ErrUnsupportedPlatform is returned by the process-memory
	// capability on platforms without an implementation.
	ErrUnsupportedPlatform = errors.New("process memory access not supported on this platform")
)

// Region is one readable span of the target's address space.
type Region struct {
	Base uintptr
	Size uint64
}

// Memory is the capability for reading another process's memory.
// Implementations skip unreadable ranges rather than failing the scan.
type Memory interface {
	// Regions enumerates the readable committed regions.
	Regions() ([]Region, error)

	// ReadAt fills p from the given address. Short or failed reads
	// return an error; callers treat that as "skip and continue".
	ReadAt(p []byte, addr uintptr) error

	Close() error
}
