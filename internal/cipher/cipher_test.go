package cipher_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/matheus3301/wxvault/internal/cipher"
	"github.com/matheus3301/wxvault/internal/cipher/ciphertest"
	"github.com/matheus3301/wxvault/internal/version"
)

func profile(t *testing.T, v version.Version) version.Profile {
	t.Helper()
	p, err := version.BaseProfile(v)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func writeFixture(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDecryptRoundTrip(t *testing.T) {
	for _, v := range []version.Version{version.V3, version.V4} {
		t.Run(v.String(), func(t *testing.T) {
			p := profile(t, v)
			key := ciphertest.Key(0x11)
			enc, want := ciphertest.Encrypt(3, p, key, 0x21)

			src := writeFixture(t, "enc.db", enc)
			dst := filepath.Join(t.TempDir(), "plain.db")
			if err := cipher.Decrypt(src, dst, p, key); err != nil {
				t.Fatal(err)
			}

			got, err := os.ReadFile(dst)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.HasPrefix(got, cipher.Header) {
				t.Error("output does not start with the canonical container header")
			}
			if !bytes.Equal(got, want) {
				t.Errorf("decrypted output differs from expected plaintext (%d vs %d bytes)", len(got), len(want))
			}
		})
	}
}

func TestDecryptDeterministic(t *testing.T) {
	p := profile(t, version.V3)
	key := ciphertest.Key(0x42)
	enc, _ := ciphertest.EncryptV3(2, p, key, 0x05)
	src := writeFixture(t, "enc.db", enc)

	outDir := t.TempDir()
	a := filepath.Join(outDir, "a.db")
	b := filepath.Join(outDir, "b.db")
	if err := cipher.DecryptV3(src, a, p, key); err != nil {
		t.Fatal(err)
	}
	if err := cipher.DecryptV3(src, b, p, key); err != nil {
		t.Fatal(err)
	}
	da, _ := os.ReadFile(a)
	db, _ := os.ReadFile(b)
	if !bytes.Equal(da, db) {
		t.Error("identical key and input produced different outputs")
	}
}

func TestWrongKeyWritesNothing(t *testing.T) {
	for _, v := range []version.Version{version.V3, version.V4} {
		t.Run(v.String(), func(t *testing.T) {
			p := profile(t, v)
			enc, _ := ciphertest.Encrypt(2, p, ciphertest.Key(0x11), 0x09)
			src := writeFixture(t, "enc.db", enc)

			dstDir := t.TempDir()
			dst := filepath.Join(dstDir, "plain.db")
			err := cipher.Decrypt(src, dst, p, ciphertest.Key(0x99))
			if !errors.Is(err, cipher.ErrBadKey) {
				t.Fatalf("err = %v, want ErrBadKey", err)
			}
			entries, _ := os.ReadDir(dstDir)
			if len(entries) != 0 {
				t.Errorf("destination dir not empty after failed decrypt: %v", entries)
			}
		})
	}
}

func TestCorruptLaterPage(t *testing.T) {
	p := profile(t, version.V3)
	key := ciphertest.Key(0x11)
	enc, _ := ciphertest.EncryptV3(3, p, key, 0x31)
	enc[p.PageSize+100] ^= 0xFF // damage page 2, leave page 1 intact

	src := writeFixture(t, "enc.db", enc)
	dstDir := t.TempDir()
	dst := filepath.Join(dstDir, "plain.db")
	err := cipher.DecryptV3(src, dst, p, key)
	if !errors.Is(err, cipher.ErrIntegrity) {
		t.Fatalf("err = %v, want ErrIntegrity", err)
	}
	entries, _ := os.ReadDir(dstDir)
	if len(entries) != 0 {
		t.Error("partial output left behind after integrity failure")
	}
}

func TestTruncatedFile(t *testing.T) {
	p := profile(t, version.V3)
	src := writeFixture(t, "short.db", make([]byte, 512))
	err := cipher.DecryptV3(src, filepath.Join(t.TempDir(), "out.db"), p, ciphertest.Key(1))
	if !errors.Is(err, cipher.ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}

func TestUnsupportedPageSize(t *testing.T) {
	p := profile(t, version.V3)
	p.PageSize = 1000
	src := writeFixture(t, "enc.db", make([]byte, 4096))
	err := cipher.DecryptV3(src, filepath.Join(t.TempDir(), "out.db"), p, ciphertest.Key(1))
	if !errors.Is(err, cipher.ErrUnsupportedPageSize) {
		t.Errorf("err = %v, want ErrUnsupportedPageSize", err)
	}
}

func TestCheckKey(t *testing.T) {
	for _, v := range []version.Version{version.V3, version.V4} {
		t.Run(v.String(), func(t *testing.T) {
			p := profile(t, v)
			key := ciphertest.Key(0x77)
			enc, _ := ciphertest.Encrypt(1, p, key, 0x13)
			src := writeFixture(t, "enc.db", enc)

			if err := cipher.CheckKey(src, p, key); err != nil {
				t.Errorf("valid key rejected: %v", err)
			}
			if err := cipher.CheckKey(src, p, ciphertest.Key(0x78)); !errors.Is(err, cipher.ErrBadKey) {
				t.Errorf("err = %v, want ErrBadKey", err)
			}
		})
	}
}

func TestHasHeader(t *testing.T) {
	good := writeFixture(t, "good.db", append(append([]byte{}, cipher.Header...), 1, 2, 3))
	if !cipher.HasHeader(good) {
		t.Error("HasHeader = false for canonical header")
	}
	bad := writeFixture(t, "bad.db", make([]byte, 32))
	if cipher.HasHeader(bad) {
		t.Error("HasHeader = true for garbage")
	}
	if cipher.HasHeader(filepath.Join(t.TempDir(), "missing.db")) {
		t.Error("HasHeader = true for missing file")
	}
}

func TestDecodeDat(t *testing.T) {
	orig := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x10, 0x20}
	obfuscated := make([]byte, len(orig))
	for i, b := range orig {
		obfuscated[i] = b ^ 0x5C
	}
	src := writeFixture(t, "img.dat", obfuscated)
	dst := filepath.Join(t.TempDir(), "img.jpg")
	if err := cipher.DecodeDat(src, dst, 0x5C); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, orig) {
		t.Errorf("DecodeDat output = %x, want %x", got, orig)
	}
}
