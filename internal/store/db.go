// Package store reads contacts, chatroom rosters, messages and avatars
// out of a decrypted staging directory. The two client generations ship
// incompatible schemas; Open inspects nothing beyond the declared version
// and every accessor dispatches on it explicitly.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "github.com/mattn/go-sqlite3"

	"github.com/matheus3301/wxvault/internal/account"
	"github.com/matheus3301/wxvault/internal/version"
)

// ErrSchemaMismatch reports a staging directory whose databases do not
// carry the tables expected for the declared version.
var ErrSchemaMismatch = errors.New("store: schema mismatch")

// Connection holds read-only handles to the databases of one account's
// staging directory.
type Connection struct {
	dir     string
	version version.Version
	self    string

	contacts *sql.DB
	avatars  *sql.DB
	messages []*sql.DB
}

// Open opens the staging directory dir, previously produced by a batch
// decryption, for the given schema version. The contact database must be
// present and well-formed; avatar and message databases are optional.
func Open(dir string, v version.Version) (*Connection, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("store: %w", version.ErrUnsupportedVersion)
	}

	c := &Connection{dir: dir, version: v}
	if acct, err := account.Load(dir); err == nil {
		c.self = acct.Wxid
	}

	var contactPath, avatarPath string
	var msgGlobs []string
	var contactTable string
	switch v {
	case version.V3:
		contactPath = filepath.Join(dir, "MicroMsg.db")
		avatarPath = filepath.Join(dir, "Misc.db")
		msgGlobs = []string{
			filepath.Join(dir, "MSG*.db"),
			filepath.Join(dir, "Multi", "MSG*.db"),
		}
		contactTable = "Contact"
	case version.V4:
		contactPath = filepath.Join(dir, "contact", "contact.db")
		avatarPath = filepath.Join(dir, "head_image", "head_image.db")
		msgGlobs = []string{filepath.Join(dir, "message", "message_*.db")}
		contactTable = "contact"
	}

	db, err := openRO(contactPath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("store: open contacts: %w", err)
	}
	c.contacts = db
	if !hasTable(db, contactTable) {
		c.Close()
		return nil, fmt.Errorf("%w: %s lacks table %s", ErrSchemaMismatch, filepath.Base(contactPath), contactTable)
	}

	if _, err := os.Stat(avatarPath); err == nil {
		if c.avatars, err = openRO(avatarPath); err != nil {
			c.Close()
			return nil, fmt.Errorf("store: open avatars: %w", err)
		}
	}

	var msgPaths []string
	for _, g := range msgGlobs {
		hits, _ := filepath.Glob(g)
		msgPaths = append(msgPaths, hits...)
	}
	sort.Strings(msgPaths)
	for _, p := range msgPaths {
		db, err := openRO(p)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("store: open %s: %w", filepath.Base(p), err)
		}
		c.messages = append(c.messages, db)
	}

	return c, nil
}

// Close releases every database handle. Safe to call on a partially
// opened connection.
func (c *Connection) Close() error {
	var first error
	closeDB := func(db *sql.DB) {
		if db == nil {
			return
		}
		if err := db.Close(); err != nil && first == nil {
			first = err
		}
	}
	closeDB(c.contacts)
	closeDB(c.avatars)
	for _, db := range c.messages {
		closeDB(db)
	}
	return first
}

func openRO(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?mode=ro&immutable=1", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func hasTable(db *sql.DB, name string) bool {
	var got string
	err := db.QueryRow(
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, name,
	).Scan(&got)
	return err == nil
}
