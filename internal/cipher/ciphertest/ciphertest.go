// Package ciphertest builds encrypted database fixtures for tests.
// Fixtures are fully deterministic: a seed fixes the salt, IVs/nonces
// and page contents, so tests can assert byte-exact decryption.
package ciphertest

import (
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha512"
	"encoding/binary"

	"golang.org/x/crypto/pbkdf2"

	"github.com/matheus3301/wxvault/internal/cipher"
	"github.com/matheus3301/wxvault/internal/version"
)

// Key returns a deterministic 32-byte raw key.
func Key(seed byte) []byte {
	key := make([]byte, cipher.KeySize)
	for i := range key {
		key[i] = seed ^ byte(i*7+1)
	}
	return key
}

func fill(buf []byte, seed byte) {
	for i := range buf {
		buf[i] = seed + byte(i%251)
	}
}

func pageNo(n int) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(n))
	return b[:]
}

// EncryptV3 produces a v3-scheme encrypted database image and the
// plaintext image its decryption must reproduce byte for byte.
func EncryptV3(pages int, p version.Profile, key []byte, seed byte) (enc, plain []byte) {
	salt := make([]byte, cipher.SaltSize)
	fill(salt, seed)

	encKey := pbkdf2.Key(key, salt, p.KDFIter, cipher.KeySize, sha1.New)
	macSalt := make([]byte, len(salt))
	for i := range salt {
		macSalt[i] = salt[i] ^ 0x3a
	}
	macKey := pbkdf2.Key(encKey, macSalt, p.MacKDFIter, cipher.KeySize, sha1.New)

	block, err := aes.NewCipher(encKey)
	if err != nil {
		panic(err)
	}

	enc = append(enc, salt...)
	plain = append(plain, cipher.Header...)

	for n := 1; n <= pages; n++ {
		contentLen := p.PageSize - p.Reserve
		if n == 1 {
			contentLen -= cipher.SaltSize
		}
		content := make([]byte, contentLen)
		fill(content, seed+byte(n))
		iv := make([]byte, 16)
		fill(iv, seed+0x40+byte(n))

		ct := make([]byte, len(content))
		gocipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, content)

		h := hmac.New(sha1.New, macKey)
		h.Write(ct)
		h.Write(iv)
		h.Write(pageNo(n))

		trailer := make([]byte, p.Reserve)
		copy(trailer, iv)
		copy(trailer[16:], h.Sum(nil))

		enc = append(enc, ct...)
		enc = append(enc, trailer...)
		plain = append(plain, content...)
		plain = append(plain, trailer...)
	}
	return enc, plain
}

// EncryptV4 produces a v4-scheme encrypted database image and its
// expected plaintext.
func EncryptV4(pages int, p version.Profile, key []byte, seed byte) (enc, plain []byte) {
	salt := make([]byte, cipher.SaltSize)
	fill(salt, seed)

	pageKey := pbkdf2.Key(key, salt, p.KDFIter, cipher.KeySize, sha512.New)
	block, err := aes.NewCipher(pageKey)
	if err != nil {
		panic(err)
	}
	aead, err := gocipher.NewGCM(block)
	if err != nil {
		panic(err)
	}

	enc = append(enc, salt...)
	plain = append(plain, cipher.Header...)

	for n := 1; n <= pages; n++ {
		contentLen := p.PageSize - p.Reserve
		if n == 1 {
			contentLen -= cipher.SaltSize
		}
		content := make([]byte, contentLen)
		fill(content, seed+byte(n))
		nonce := make([]byte, 12)
		fill(nonce, seed+0x60+byte(n))

		sealed := aead.Seal(nil, nonce, content, pageNo(n))
		ct, tag := sealed[:len(content)], sealed[len(content):]

		trailer := make([]byte, p.Reserve)
		copy(trailer, nonce)
		copy(trailer[12:], tag)

		enc = append(enc, ct...)
		enc = append(enc, trailer...)
		plain = append(plain, content...)
		plain = append(plain, trailer...)
	}
	return enc, plain
}

// Encrypt dispatches on the profile's scheme tag.
func Encrypt(pages int, p version.Profile, key []byte, seed byte) (enc, plain []byte) {
	if p.Version == version.V4 {
		return EncryptV4(pages, p, key, seed)
	}
	return EncryptV3(pages, p, key, seed)
}
