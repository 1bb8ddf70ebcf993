package cipher

import (
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/sha512"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/matheus3301/wxvault/internal/version"
)

// v4Key derives the page cipher key. The v4 scheme needs no separate
// MAC key: each page is authenticated by AES-256-GCM.
func v4Key(key, salt []byte, p version.Profile) []byte {
	return pbkdf2.Key(key, salt, p.KDFIter, KeySize, sha512.New)
}

// openPageV4 authenticates and decrypts one page segment. The
// reserved trailer holds the nonce and the GCM tag; the little-endian
// page number is bound in as additional data.
func openPageV4(aead gocipher.AEAD, seg []byte, pageNo int, reserve int) ([]byte, error) {
	trailer := seg[len(seg)-reserve:]
	ct := seg[:len(seg)-reserve]
	nonce := trailer[:nonceSize]
	tag := trailer[nonceSize : nonceSize+tagSize]

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	return aead.Open(nil, nonce, sealed, pageNoBytes(pageNo))
}

// DecryptV4 decrypts a current-scheme database into dst. As with v3,
// a wrong key is rejected on the first page before any output exists
// and the destination file appears atomically or not at all.
func DecryptV4(src, dst string, p version.Profile, key []byte) error {
	data, err := readPages(src, p.PageSize)
	if err != nil {
		return err
	}
	salt := data[:SaltSize]

	block, err := aes.NewCipher(v4Key(key, salt, p))
	if err != nil {
		return fmt.Errorf("init cipher: %w", err)
	}
	aead, err := gocipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("init gcm: %w", err)
	}

	first, err := openPageV4(aead, data[SaltSize:p.PageSize], 1, p.Reserve)
	if err != nil {
		return fmt.Errorf("%s: %w", src, ErrBadKey)
	}

	return writeAtomic(dst, Header, func(w io.Writer) error {
		if _, err := w.Write(Header); err != nil {
			return err
		}
		if err := writePageV4(w, first, data[SaltSize:p.PageSize], p.Reserve); err != nil {
			return err
		}
		for n := 1; n*p.PageSize < len(data); n++ {
			seg := data[n*p.PageSize : (n+1)*p.PageSize]
			pt, err := openPageV4(aead, seg, n+1, p.Reserve)
			if err != nil {
				return fmt.Errorf("%s: page %d: %w", src, n+1, ErrIntegrity)
			}
			if err := writePageV4(w, pt, seg, p.Reserve); err != nil {
				return err
			}
		}
		return nil
	})
}

func writePageV4(w io.Writer, pt, seg []byte, reserve int) error {
	if _, err := w.Write(pt); err != nil {
		return err
	}
	_, err := w.Write(seg[len(seg)-reserve:])
	return err
}

// checkKeyV4 authenticates only the first page.
func checkKeyV4(firstPage []byte, p version.Profile, key []byte) error {
	salt := firstPage[:SaltSize]
	block, err := aes.NewCipher(v4Key(key, salt, p))
	if err != nil {
		return fmt.Errorf("init cipher: %w", err)
	}
	aead, err := gocipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("init gcm: %w", err)
	}
	if _, err := openPageV4(aead, firstPage[SaltSize:], 1, p.Reserve); err != nil {
		return ErrBadKey
	}
	return nil
}
