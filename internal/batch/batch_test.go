package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/matheus3301/wxvault/internal/cipher"
	"github.com/matheus3301/wxvault/internal/cipher/ciphertest"
	"github.com/matheus3301/wxvault/internal/version"
)

func v3Profile(t *testing.T) version.Profile {
	t.Helper()
	p, err := version.BaseProfile(version.V3)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

// sourceTree writes n encrypted fixture databases under dir,
// including one in a subdirectory, and returns their relative paths.
func sourceTree(t *testing.T, dir string, p version.Profile, key []byte) []string {
	t.Helper()
	rels := []string{"MicroMsg.db", "MSG0.db", filepath.Join("Multi", "MSG1.db")}
	for i, rel := range rels {
		enc, _ := ciphertest.EncryptV3(2, p, key, byte(0x10+i))
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, enc, 0600); err != nil {
			t.Fatal(err)
		}
	}
	return rels
}

func TestRunDecryptsTree(t *testing.T) {
	p := v3Profile(t)
	key := ciphertest.Key(0x22)
	src := t.TempDir()
	dst := t.TempDir()
	rels := sourceTree(t, src, p, key)

	m, err := Run(context.Background(), src, dst, p, key, Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	d, s, f := m.Counts()
	if d != len(rels) || s != 0 || f != 0 {
		t.Errorf("counts = %d/%d/%d, want %d/0/0", d, s, f, len(rels))
	}
	for _, rel := range rels {
		if !cipher.HasHeader(filepath.Join(dst, rel)) {
			t.Errorf("%s: missing or invalid decrypted output", rel)
		}
	}
}

func TestRunWrongKeyProducesNoFiles(t *testing.T) {
	p := v3Profile(t)
	src := t.TempDir()
	dst := t.TempDir()
	rels := sourceTree(t, src, p, ciphertest.Key(0x22))

	m, err := Run(context.Background(), src, dst, p, ciphertest.Key(0x23), Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	d, _, f := m.Counts()
	if d != 0 || f != len(rels) {
		t.Errorf("counts = %d decrypted / %d failed, want 0/%d", d, f, len(rels))
	}
	for _, e := range m.Entries() {
		if !errors.Is(e.Err, cipher.ErrBadKey) {
			t.Errorf("%s: err = %v, want ErrBadKey", e.Source, e.Err)
		}
	}
	// Nothing at all may exist under dst, not even partial files.
	var found []string
	_ = filepath.WalkDir(dst, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			found = append(found, path)
		}
		return nil
	})
	if len(found) != 0 {
		t.Errorf("destination contains files after failed run: %v", found)
	}
}

func TestRunIdempotent(t *testing.T) {
	p := v3Profile(t)
	key := ciphertest.Key(0x22)
	src := t.TempDir()
	dst := t.TempDir()
	rels := sourceTree(t, src, p, key)

	if _, err := Run(context.Background(), src, dst, p, key, Options{}, nil); err != nil {
		t.Fatal(err)
	}
	// Second run decrypts nothing and reports the prior outcome.
	m, err := Run(context.Background(), src, dst, p, key, Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	d, s, _ := m.Counts()
	if d != 0 || s != len(rels) {
		t.Errorf("second run counts = %d decrypted / %d skipped, want 0/%d", d, s, len(rels))
	}

	// Force re-decrypts everything.
	m, err = Run(context.Background(), src, dst, p, key, Options{Force: true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	d, s, _ = m.Counts()
	if d != len(rels) || s != 0 {
		t.Errorf("forced run counts = %d decrypted / %d skipped, want %d/0", d, s, len(rels))
	}
}

func TestRunSkipsPlaceholdersAndForeignFiles(t *testing.T) {
	p := v3Profile(t)
	key := ciphertest.Key(0x22)
	src := t.TempDir()
	dst := t.TempDir()

	if err := os.WriteFile(filepath.Join(src, "Empty.db"), nil, 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "notes.txt"), make([]byte, 8192), 0600); err != nil {
		t.Fatal(err)
	}
	enc, _ := ciphertest.EncryptV3(1, p, key, 0x44)
	if err := os.WriteFile(filepath.Join(src, "MSG0.db"), enc, 0600); err != nil {
		t.Fatal(err)
	}

	m, err := Run(context.Background(), src, dst, p, key, Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(m.Entries()); got != 1 {
		t.Errorf("manifest entries = %d, want 1 (placeholder and txt skipped from selection)", got)
	}
}

func TestRunCancelled(t *testing.T) {
	p := v3Profile(t)
	key := ciphertest.Key(0x22)
	src := t.TempDir()
	dst := t.TempDir()
	sourceTree(t, src, p, key)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m, err := Run(ctx, src, dst, p, key, Options{Workers: 1}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	// No file may be half-written; anything present must be complete.
	for _, e := range m.Entries() {
		if e.Outcome == OutcomeDecrypted && !cipher.HasHeader(e.Dest) {
			t.Errorf("%s: recorded decrypted but invalid", e.Dest)
		}
	}
	// Every selected file gets an outcome, scheduled or not.
	if got := len(m.Entries()); got != 3 {
		t.Errorf("manifest holds %d entries, want one per selected file (3)", got)
	}
	decrypted, skipped, _ := m.Counts()
	if decrypted+skipped != 3 {
		t.Errorf("decrypted+skipped = %d, want 3", decrypted+skipped)
	}
}
