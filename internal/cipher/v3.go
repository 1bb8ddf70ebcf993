package cipher

import (
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/matheus3301/wxvault/internal/version"
)

// v3Keys derives the page cipher key and the HMAC key from the raw
// key and the file salt. The HMAC key uses the salt XORed with 0x3a.
func v3Keys(key, salt []byte, p version.Profile) (encKey, macKey []byte) {
	encKey = pbkdf2.Key(key, salt, p.KDFIter, KeySize, sha1.New)
	macKey = pbkdf2.Key(encKey, xorSalt(salt, 0x3a), p.MacKDFIter, KeySize, sha1.New)
	return encKey, macKey
}

// checkMacV3 verifies the HMAC-SHA1 trailer of one page segment.
// seg excludes the 16-byte salt prefix on the first page. The MAC
// covers the ciphertext and IV followed by the little-endian page
// number, and sits right after the IV in the reserved trailer.
func checkMacV3(macKey, seg []byte, pageNo int, reserve int) bool {
	macStart := len(seg) - reserve + ivSize
	h := hmac.New(sha1.New, macKey)
	h.Write(seg[:macStart])
	h.Write(pageNoBytes(pageNo))
	return hmac.Equal(h.Sum(nil), seg[macStart:macStart+sha1.Size])
}

// DecryptV3 decrypts a legacy-scheme database into dst. The first
// page is authenticated before any output exists; the result appears
// at dst atomically or not at all.
func DecryptV3(src, dst string, p version.Profile, key []byte) error {
	data, err := readPages(src, p.PageSize)
	if err != nil {
		return err
	}
	salt := data[:SaltSize]
	encKey, macKey := v3Keys(key, salt, p)

	first := data[SaltSize:p.PageSize]
	if !checkMacV3(macKey, first, 1, p.Reserve) {
		return fmt.Errorf("%s: %w", src, ErrBadKey)
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return fmt.Errorf("init cipher: %w", err)
	}

	return writeAtomic(dst, Header, func(w io.Writer) error {
		if _, err := w.Write(Header); err != nil {
			return err
		}
		for n := 0; n*p.PageSize < len(data); n++ {
			seg := data[n*p.PageSize : (n+1)*p.PageSize]
			if n == 0 {
				seg = first
			} else if !checkMacV3(macKey, seg, n+1, p.Reserve) {
				return fmt.Errorf("%s: page %d: %w", src, n+1, ErrIntegrity)
			}
			if err := writePageV3(w, block, seg, p.Reserve); err != nil {
				return err
			}
		}
		return nil
	})
}

func writePageV3(w io.Writer, block gocipher.Block, seg []byte, reserve int) error {
	trailer := seg[len(seg)-reserve:]
	ct := seg[:len(seg)-reserve]
	iv := trailer[:ivSize]
	pt := make([]byte, len(ct))
	gocipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ct)
	if _, err := w.Write(pt); err != nil {
		return err
	}
	_, err := w.Write(trailer)
	return err
}

// checkKeyV3 authenticates only the first page. Cheap enough to run
// against every scanned key candidate.
func checkKeyV3(firstPage []byte, p version.Profile, key []byte) error {
	salt := firstPage[:SaltSize]
	_, macKey := v3Keys(key, salt, p)
	if !checkMacV3(macKey, firstPage[SaltSize:], 1, p.Reserve) {
		return ErrBadKey
	}
	return nil
}
