//go:build !windows

package keyscan

// fillModuleInfo needs the Windows module snapshot API; elsewhere the
// target keeps defaults and scanning uses an injected Memory.
func fillModuleInfo(t *Target) error {
	return ErrUnsupportedPlatform
}
