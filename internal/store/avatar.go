package store

import (
	"database/sql"
	"fmt"

	"github.com/matheus3301/wxvault/internal/version"
)

// AvatarBuffer returns the raw avatar image blob for wxid, or nil when
// no avatar is stored. The blob is returned exactly as persisted.
func (c *Connection) AvatarBuffer(wxid string) ([]byte, error) {
	if c.avatars == nil {
		return nil, nil
	}

	var query string
	switch c.version {
	case version.V3:
		query = `SELECT smallHeadBuf FROM ContactHeadImg1 WHERE usrName = ?`
	case version.V4:
		query = `SELECT image_buffer FROM head_image WHERE username = ?`
	}

	var buf []byte
	err := c.avatars.QueryRow(query, wxid).Scan(&buf)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: avatar %s: %w", wxid, err)
	}
	return buf, nil
}
