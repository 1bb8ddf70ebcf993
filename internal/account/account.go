// Package account holds the per-account metadata record produced by
// key extraction and consumed by everything downstream.
package account

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/matheus3301/wxvault/internal/version"
)

// InfoFile is the metadata record written into the staging directory
// after a successful decrypt, next to the decrypted databases.
const InfoFile = "info.json"

// Account describes one discovered logged-in profile. Immutable after
// key extraction.
type Account struct {
	// Wxid is the stable account identifier.
	Wxid string

	// Name is the account display name, when discoverable.
	Name string

	// Dir is the client's install/profile directory for the account.
	Dir string

	// Key is the raw 32-byte database key.
	Key []byte

	// XORKey is the auxiliary-file de-obfuscation code. Only set for
	// v4 accounts.
	XORKey byte

	// Version is the detected cipher scheme.
	Version version.Version

	// Build is the client build the key was extracted from, when known.
	Build string

	// Profile carries the resolved decryption parameters for Build,
	// including any table overrides. Decryption must use it rather
	// than re-deriving base parameters from Version alone.
	Profile version.Profile
}

// record is the on-disk shape of info.json. The key is hex-encoded,
// matching what the read-side tooling expects.
type record struct {
	Wxid    string `json:"wxid"`
	Name    string `json:"name"`
	Dir     string `json:"wx_dir"`
	Key     string `json:"key"`
	XORKey  byte   `json:"xor_key,omitempty"`
	Version int    `json:"version"`
	Build   string `json:"build,omitempty"`
}

// Save writes the account record into dir as info.json.
func (a *Account) Save(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	data, err := json.MarshalIndent(record{
		Wxid:    a.Wxid,
		Name:    a.Name,
		Dir:     a.Dir,
		Key:     hex.EncodeToString(a.Key),
		XORKey:  a.XORKey,
		Version: int(a.Version),
		Build:   a.Build,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, InfoFile), data, 0600)
}

// Load reads the account record from dir.
func Load(dir string) (*Account, error) {
	data, err := os.ReadFile(filepath.Join(dir, InfoFile))
	if err != nil {
		return nil, fmt.Errorf("read account record: %w", err)
	}
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse account record: %w", err)
	}
	key, err := hex.DecodeString(r.Key)
	if err != nil {
		return nil, fmt.Errorf("parse account key: %w", err)
	}
	a := &Account{
		Wxid:    r.Wxid,
		Name:    r.Name,
		Dir:     r.Dir,
		Key:     key,
		XORKey:  r.XORKey,
		Version: version.Version(r.Version),
		Build:   r.Build,
	}
	// The record does not persist resolved parameters; a reloaded
	// account falls back to the scheme base until resolved again.
	if p, err := version.BaseProfile(a.Version); err == nil {
		a.Profile = p
	}
	return a, nil
}

// StagingSubdir is the staging tree name for a scheme: the v3 client
// keeps its databases under Msg, the v4 client under db_storage.
func StagingSubdir(v version.Version) string {
	if v == version.V4 {
		return "db_storage"
	}
	return "Msg"
}
