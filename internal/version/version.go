package version

import (
	"errors"
	"fmt"
)

// Version identifies one of the two supported on-disk cipher schemes.
type Version int

const (
	V3 Version = 3
	V4 Version = 4
)

func (v Version) String() string {
	switch v {
	case V3:
		return "v3"
	case V4:
		return "v4"
	default:
		return fmt.Sprintf("v%d", int(v))
	}
}

// Valid reports whether v is one of the supported schemes.
func (v Version) Valid() bool {
	return v == V3 || v == V4
}

// ErrUnsupportedVersion is returned for any build the compatibility
// table does not list. Parameters are never guessed for unknown builds.
var ErrUnsupportedVersion = errors.New("unsupported client version")

// Profile fixes everything the cipher and key scanner need to handle
// one client build: pointer offsets into the client module, KDF
// parameters, page geometry and whether the auxiliary XOR pass applies.
type Profile struct {
	Version Version

	// PageSize is the encrypted database page size in bytes.
	PageSize int

	// KDFIter is the PBKDF2 iteration count for the page cipher key.
	KDFIter int

	// MacKDFIter is the PBKDF2 iteration count for the per-page HMAC
	// key (V3 only; V4 pages are authenticated by the cipher itself).
	MacKDFIter int

	// Reserve is the number of trailing reserved bytes per page
	// holding IV/nonce and integrity tag.
	Reserve int

	// KeyOffset64 and KeyOffset32 locate the module-relative pointer
	// slot holding the address of the raw key (V3 builds).
	KeyOffset64 int64
	KeyOffset32 int64

	// NeedsXOR marks builds whose auxiliary files carry an extra
	// byte-wise XOR obfuscation layer (V4).
	NeedsXOR bool

	// XORProbeOffset is the file offset of the known-plaintext window
	// used to derive the XOR code from an auxiliary file.
	XORProbeOffset int64
}

// BaseProfile returns the scheme-fixed parameters for a version.
// Build-specific fields (key offsets, probe offset) come from the
// compatibility table and are merged in by Resolve.
func BaseProfile(v Version) (Profile, error) {
	switch v {
	case V3:
		return Profile{
			Version:    V3,
			PageSize:   4096,
			KDFIter:    64000,
			MacKDFIter: 2,
			Reserve:    48,
		}, nil
	case V4:
		return Profile{
			Version:  V4,
			PageSize: 4096,
			KDFIter:  256000,
			Reserve:  48,
			NeedsXOR: true,
		}, nil
	default:
		return Profile{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, int(v))
	}
}
