package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/matheus3301/wxvault/internal/version"
)

const (
	maxRecentContacts  = 10
	maxRecentDatabases = 5
)

// RecentDatabase is one previously opened staging directory.
type RecentDatabase struct {
	Path    string `toml:"path"`
	Version int    `toml:"version"`
}

// DecryptRecord is one completed decrypt run, keyed by account.
type DecryptRecord struct {
	Wxid    string `toml:"wxid"`
	Name    string `toml:"name"`
	DBPath  string `toml:"db_path"`
	Version int    `toml:"version"`
}

// Config represents ~/.wxvault/config.toml.
type Config struct {
	OutputDir       string           `toml:"output_dir"`
	DefaultVersion  int              `toml:"default_version"`
	VersionTable    string           `toml:"version_table"`
	RecentContacts  []string         `toml:"recent_contacts"`
	RecentDatabases []RecentDatabase `toml:"recent_databases"`
	DecryptHistory  []DecryptRecord  `toml:"decrypt_history"`
}

// Default returns the configuration used when no file exists yet.
func Default() *Config {
	return &Config{
		OutputDir:      filepath.Join(BaseDir(), "data"),
		DefaultVersion: int(version.V3),
	}
}

// Load reads config from the given path. Returns an error if the file
// is missing; callers fall back to Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// AddRecentContact moves wxid to the front of the recent-contacts
// list, keeping at most maxRecentContacts entries.
func (c *Config) AddRecentContact(wxid string) {
	if wxid == "" {
		return
	}
	out := []string{wxid}
	for _, w := range c.RecentContacts {
		if w != wxid {
			out = append(out, w)
		}
	}
	if len(out) > maxRecentContacts {
		out = out[:maxRecentContacts]
	}
	c.RecentContacts = out
}

// AddRecentDatabase moves a staging directory to the front of the
// recent-databases list.
func (c *Config) AddRecentDatabase(path string, v version.Version) {
	if path == "" {
		return
	}
	out := []RecentDatabase{{Path: path, Version: int(v)}}
	for _, d := range c.RecentDatabases {
		if d.Path != path {
			out = append(out, d)
		}
	}
	if len(out) > maxRecentDatabases {
		out = out[:maxRecentDatabases]
	}
	c.RecentDatabases = out
}

// AddDecryptHistory records a completed decrypt run, replacing any
// prior record for the same account.
func (c *Config) AddDecryptHistory(wxid, name, dbPath string, v version.Version) {
	if wxid == "" || dbPath == "" {
		return
	}
	rec := DecryptRecord{Wxid: wxid, Name: name, DBPath: dbPath, Version: int(v)}
	for i, r := range c.DecryptHistory {
		if r.Wxid == wxid {
			c.DecryptHistory[i] = rec
			return
		}
	}
	c.DecryptHistory = append(c.DecryptHistory, rec)
}
