package store

import (
	"database/sql"
	"fmt"

	"github.com/matheus3301/wxvault/internal/version"
)

// Contacts returns every contact row in insertion order.
func (c *Connection) Contacts() ([]Contact, error) {
	var query string
	switch c.version {
	case version.V3:
		query = `SELECT UserName, IFNULL(Alias, ''), IFNULL(Remark, ''), IFNULL(NickName, '')
			FROM Contact ORDER BY ROWID`
	case version.V4:
		query = `SELECT username, IFNULL(alias, ''), IFNULL(remark, ''), IFNULL(nick_name, '')
			FROM contact ORDER BY id`
	}

	rows, err := c.contacts.Query(query)
	if err != nil {
		return nil, fmt.Errorf("store: list contacts: %w", err)
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		var ct Contact
		if err := rows.Scan(&ct.Wxid, &ct.Alias, &ct.Remark, &ct.Nickname); err != nil {
			return nil, fmt.Errorf("store: scan contact: %w", err)
		}
		ct.AvatarKey = ct.Wxid
		ct.IsChatroom = isChatroom(ct.Wxid)
		out = append(out, ct)
	}
	return out, rows.Err()
}

// Contact returns the row for wxid, or nil when no such row exists.
func (c *Connection) Contact(wxid string) (*Contact, error) {
	var query string
	switch c.version {
	case version.V3:
		query = `SELECT UserName, IFNULL(Alias, ''), IFNULL(Remark, ''), IFNULL(NickName, '')
			FROM Contact WHERE UserName = ?`
	case version.V4:
		query = `SELECT username, IFNULL(alias, ''), IFNULL(remark, ''), IFNULL(nick_name, '')
			FROM contact WHERE username = ?`
	}

	var ct Contact
	err := c.contacts.QueryRow(query, wxid).Scan(&ct.Wxid, &ct.Alias, &ct.Remark, &ct.Nickname)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: lookup contact %s: %w", wxid, err)
	}
	ct.AvatarKey = ct.Wxid
	ct.IsChatroom = isChatroom(ct.Wxid)
	return &ct, nil
}

// ResolveContact always yields a usable Contact: the stored row when one
// exists, otherwise a placeholder carrying only the wxid.
func (c *Connection) ResolveContact(wxid string) (Contact, error) {
	ct, err := c.Contact(wxid)
	if err != nil {
		return Contact{}, err
	}
	if ct != nil {
		return *ct, nil
	}
	return Contact{
		Wxid:         wxid,
		Nickname:     wxid,
		AvatarKey:    wxid,
		IsChatroom:   isChatroom(wxid),
		IsUnresolved: true,
	}, nil
}
