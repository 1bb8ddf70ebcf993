package keyscan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/matheus3301/wxvault/internal/version"
)

// datTrailers are the known-plaintext image trailers used to recover
// the XOR de-obfuscation code from an auxiliary .dat file. Every byte
// of the window must agree on the same code.
var datTrailers = [][]byte{
	{0xFF, 0xD9},             // JPEG EOI
	{0xAE, 0x42, 0x60, 0x82}, // PNG IEND tail
}

// DeriveXORCode recovers the single-byte XOR code from one auxiliary
// file by comparing a known-plaintext window against the expected
// trailer patterns. The profile's XORProbeOffset positions the window:
// it is the distance from the end of the file to the end of the
// window, zero meaning the trailer sits flush at the end.
func DeriveXORCode(path string, p version.Profile) (byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read auxiliary file: %w", err)
	}
	end := int64(len(data)) - p.XORProbeOffset
	if end <= 0 {
		return 0, fmt.Errorf("%s: shorter than probe offset %d", path, p.XORProbeOffset)
	}
	probe := data[:end]
	for _, trailer := range datTrailers {
		if len(probe) < len(trailer) {
			continue
		}
		window := probe[len(probe)-len(trailer):]
		code := window[0] ^ trailer[0]
		ok := true
		for i := 1; i < len(trailer); i++ {
			if window[i]^trailer[i] != code {
				ok = false
				break
			}
		}
		if ok {
			return code, nil
		}
	}
	return 0, fmt.Errorf("%s: no known trailer matched", path)
}

// findAuxDat locates an auxiliary .dat file under the account
// directory to derive the XOR code from. A v4 account without one
// cannot be decrypted, so the caller fails closed with
// ErrUnsupportedVersion before any message file is touched.
func findAuxDat(dir string) (string, error) {
	var found string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree, keep walking
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".dat") {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() < 16 {
			return nil
		}
		found = path
		return filepath.SkipAll
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("%w: no auxiliary file to derive XOR code from under %s", version.ErrUnsupportedVersion, dir)
	}
	return found, nil
}
