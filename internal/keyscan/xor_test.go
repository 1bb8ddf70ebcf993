package keyscan

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/matheus3301/wxvault/internal/version"
)

func xorProfile(probeOffset int64) version.Profile {
	p, err := version.BaseProfile(version.V4)
	if err != nil {
		panic(err)
	}
	p.XORProbeOffset = probeOffset
	return p
}

func writeDat(t *testing.T, dir, name string, plain []byte, code byte) string {
	t.Helper()
	data := make([]byte, len(plain))
	for i, b := range plain {
		data[i] = b ^ code
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDeriveXORCodeJPEG(t *testing.T) {
	plain := append(make([]byte, 30), 0xFF, 0xD9)
	path := writeDat(t, t.TempDir(), "a.dat", plain, 0x37)
	code, err := DeriveXORCode(path, xorProfile(0))
	if err != nil {
		t.Fatal(err)
	}
	if code != 0x37 {
		t.Errorf("code = %#x, want 0x37", code)
	}
}

func TestDeriveXORCodePNG(t *testing.T) {
	plain := append(make([]byte, 30), 0xAE, 0x42, 0x60, 0x82)
	path := writeDat(t, t.TempDir(), "a.dat", plain, 0xC1)
	code, err := DeriveXORCode(path, xorProfile(0))
	if err != nil {
		t.Fatal(err)
	}
	if code != 0xC1 {
		t.Errorf("code = %#x, want 0xC1", code)
	}
}

func TestDeriveXORCodeProbeOffset(t *testing.T) {
	// Builds whose auxiliary files carry a fixed-size suffix after the
	// image data locate the trailer via the table-supplied offset.
	plain := append(make([]byte, 30), 0xFF, 0xD9)
	plain = append(plain, make([]byte, 8)...)
	path := writeDat(t, t.TempDir(), "a.dat", plain, 0x5A)

	if _, err := DeriveXORCode(path, xorProfile(0)); err == nil {
		t.Fatal("flush-end probe matched a suffixed file")
	}

	code, err := DeriveXORCode(path, xorProfile(8))
	if err != nil {
		t.Fatal(err)
	}
	if code != 0x5A {
		t.Errorf("code = %#x, want 0x5A", code)
	}
}

func TestDeriveXORCodeOffsetPastStart(t *testing.T) {
	path := writeDat(t, t.TempDir(), "a.dat", append(make([]byte, 4), 0xFF, 0xD9), 0x01)
	if _, err := DeriveXORCode(path, xorProfile(64)); err == nil {
		t.Error("expected error for probe offset beyond file start")
	}
}

func TestDeriveXORCodeInconsistentWindow(t *testing.T) {
	// Trailer bytes XORed with different codes never agree.
	data := append(make([]byte, 30), 0xFF^0x11, 0xD9^0x22)
	path := filepath.Join(t.TempDir(), "bad.dat")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := DeriveXORCode(path, xorProfile(0)); err == nil {
		t.Error("expected error for inconsistent window")
	}
}

func TestFindAuxDatMissing(t *testing.T) {
	_, err := findAuxDat(t.TempDir())
	if !errors.Is(err, version.ErrUnsupportedVersion) {
		t.Errorf("err = %v, want ErrUnsupportedVersion", err)
	}
}

func TestFindAuxDatSkipsTinyFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tiny.dat"), []byte{1, 2}, 0600); err != nil {
		t.Fatal(err)
	}
	want := writeDat(t, dir, "real.dat", append(make([]byte, 30), 0xFF, 0xD9), 0x10)
	got, err := findAuxDat(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("findAuxDat = %q, want %q", got, want)
	}
}
