package cipher

import (
	"fmt"
	"io"
	"os"

	"github.com/matheus3301/wxvault/internal/version"
)

// Decrypt decrypts one database file according to the profile's
// scheme tag. Dispatch is explicit: there is no sniffing of the
// ciphertext to guess the scheme.
func Decrypt(src, dst string, p version.Profile, key []byte) error {
	switch p.Version {
	case version.V3:
		return DecryptV3(src, dst, p, key)
	case version.V4:
		return DecryptV4(src, dst, p, key)
	default:
		return fmt.Errorf("%s: %w", src, version.ErrUnsupportedVersion)
	}
}

// CheckKey runs the header-level trial decryption of src's first
// page. It is the sole trust anchor for scanned key candidates: a
// candidate is accepted only if it reproduces the canonical plaintext
// structure here. Returns ErrBadKey on mismatch.
func CheckKey(src string, p version.Profile, key []byte) error {
	if !validPageSize(p.PageSize) {
		return fmt.Errorf("%s: %w: %d", src, ErrUnsupportedPageSize, p.PageSize)
	}
	if len(key) != KeySize {
		return fmt.Errorf("%s: %w: key length %d", src, ErrBadKey, len(key))
	}
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = f.Close() }()

	firstPage := make([]byte, p.PageSize)
	if _, err := io.ReadFull(f, firstPage); err != nil {
		return fmt.Errorf("%s: %w", src, ErrTruncated)
	}

	switch p.Version {
	case version.V3:
		err = checkKeyV3(firstPage, p, key)
	case version.V4:
		err = checkKeyV4(firstPage, p, key)
	default:
		return fmt.Errorf("%s: %w", src, version.ErrUnsupportedVersion)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", src, err)
	}
	return nil
}

// DecodeDat reverses the byte-wise XOR obfuscation applied to
// designated auxiliary files in the v4 scheme. It is never applied to
// the primary message databases.
func DecodeDat(src, dst string, code byte) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	for i := range data {
		data[i] ^= code
	}
	return writeAtomic(dst, nil, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
