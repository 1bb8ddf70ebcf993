package version

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Build is one row of the external compatibility table. The offsets
// are reverse-engineered per client build and supplied as
// configuration, never hard-coded.
type Build struct {
	ID             string `toml:"id"`
	Version        int    `toml:"version"`
	KeyOffset64    int64  `toml:"key_offset_64"`
	KeyOffset32    int64  `toml:"key_offset_32"`
	PageSize       int    `toml:"page_size"`
	XORProbeOffset int64  `toml:"xor_probe_offset"`
}

// Table maps client build identifiers to decryption parameters.
// Order follows the source file (newest builds first by convention).
type Table struct {
	Builds []Build `toml:"build"`
}

// LoadTable reads a compatibility table from a TOML file.
func LoadTable(path string) (*Table, error) {
	var t Table
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return nil, fmt.Errorf("load version table %s: %w", path, err)
	}
	for _, b := range t.Builds {
		if !Version(b.Version).Valid() {
			return nil, fmt.Errorf("version table %s: build %q: %w", path, b.ID, ErrUnsupportedVersion)
		}
	}
	return &t, nil
}

// Resolve returns the full decryption profile for a build identifier.
// Unknown builds fail closed with ErrUnsupportedVersion.
func (t *Table) Resolve(buildID string) (Profile, error) {
	for _, b := range t.Builds {
		if b.ID != buildID {
			continue
		}
		p, err := BaseProfile(Version(b.Version))
		if err != nil {
			return Profile{}, err
		}
		p.KeyOffset64 = b.KeyOffset64
		p.KeyOffset32 = b.KeyOffset32
		p.XORProbeOffset = b.XORProbeOffset
		if b.PageSize != 0 {
			p.PageSize = b.PageSize
		}
		return p, nil
	}
	return Profile{}, fmt.Errorf("%w: build %q not in compatibility table", ErrUnsupportedVersion, buildID)
}
