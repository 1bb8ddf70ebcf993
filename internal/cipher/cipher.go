// Package cipher decrypts the client's encrypted SQLite databases.
// Two incompatible page-level schemes are supported: the legacy v3
// scheme (AES-256-CBC pages with an HMAC-SHA1 trailer) and the current
// v4 scheme (AES-256-GCM pages). Both derive their page keys from a
// 32-byte raw key and a per-file salt.
package cipher

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Header is the canonical plaintext container magic. A decrypted file
// either begins with these 16 bytes or is never made visible at its
// destination path.
var Header = []byte("SQLite format 3\x00")

const (
	// SaltSize is the per-file salt length, stored in the first
	// bytes of the ciphertext where the plaintext magic would sit.
	SaltSize = 16

	// KeySize is the raw key length for both schemes.
	KeySize = 32

	ivSize    = 16
	nonceSize = 12
	tagSize   = 16
)

var (
	// ErrBadKey means the key failed the first-page authentication
	// check. Nothing has been written when it is returned.
	ErrBadKey = errors.New("bad key")

	// ErrIntegrity means a page beyond the first failed its
	// integrity check: the key is right but the file is damaged.
	ErrIntegrity = errors.New("page integrity check failed")

	// ErrUnsupportedPageSize rejects page sizes outside SQLite's
	// valid range.
	ErrUnsupportedPageSize = errors.New("unsupported page size")

	// ErrTruncated means the file is shorter than one page or not
	// page-aligned.
	ErrTruncated = errors.New("truncated file")
)

func validPageSize(n int) bool {
	return n >= 512 && n <= 65536 && n&(n-1) == 0
}

func xorSalt(salt []byte, b byte) []byte {
	out := make([]byte, len(salt))
	for i := range salt {
		out[i] = salt[i] ^ b
	}
	return out
}

func pageNoBytes(n int) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(n))
	return buf[:]
}

// readPages loads an encrypted file and validates its basic geometry.
func readPages(src string, pageSize int) ([]byte, error) {
	if !validPageSize(pageSize) {
		return nil, fmt.Errorf("%s: %w: %d", src, ErrUnsupportedPageSize, pageSize)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src, err)
	}
	if len(data) < pageSize || len(data)%pageSize != 0 {
		return nil, fmt.Errorf("%s: %w (%d bytes)", src, ErrTruncated, len(data))
	}
	return data, nil
}

// writeAtomic writes via a temporary sibling file and renames into
// place only after build succeeds and the output starts with
// wantHeader (when non-nil). A failed build leaves nothing behind.
func writeAtomic(dst string, wantHeader []byte, build func(w io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0700); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}
	tmp := dst + ".tmp-" + uuid.NewString()[:8]
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if err := build(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if wantHeader != nil {
		head := make([]byte, len(wantHeader))
		if err := readHeaderOf(tmp, head); err != nil || !bytes.Equal(head, wantHeader) {
			_ = os.Remove(tmp)
			return fmt.Errorf("%s: %w: output header mismatch", dst, ErrIntegrity)
		}
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func readHeaderOf(path string, buf []byte) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = io.ReadFull(f, buf)
	return err
}

// HasHeader reports whether the file at path begins with the
// canonical container magic. Used as the cheap idempotency probe.
func HasHeader(path string) bool {
	head := make([]byte, len(Header))
	if err := readHeaderOf(path, head); err != nil {
		return false
	}
	return bytes.Equal(head, Header)
}
