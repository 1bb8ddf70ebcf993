//go:build !windows

package keyscan

// OpenProcessMemory is only implemented on Windows, where the client
// runs. Elsewhere the scanner can still be exercised through an
// injected Memory implementation.
func OpenProcessMemory(pid int32) (Memory, error) {
	return nil, ErrUnsupportedPlatform
}
