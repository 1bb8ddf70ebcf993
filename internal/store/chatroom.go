package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/matheus3301/wxvault/internal/version"
)

// memberSep separates entries in the packed roster columns of both
// schema generations (ASCII BEL).
const memberSep = "\x07"

// ChatroomMembers returns the roster of the given chatroom keyed by
// member wxid. A wxid without a roster row, including any non-chatroom
// id, yields an empty map.
func (c *Connection) ChatroomMembers(wxid string) (map[string]ChatroomMember, error) {
	var query string
	switch c.version {
	case version.V3:
		query = `SELECT IFNULL(UserNameList, ''), IFNULL(DisplayNameList, '')
			FROM ChatRoom WHERE ChatRoomName = ?`
	case version.V4:
		query = `SELECT IFNULL(member_list, ''), IFNULL(display_name_list, '')
			FROM chat_room WHERE username = ?`
	}

	var memberList, displayList string
	err := c.contacts.QueryRow(query, wxid).Scan(&memberList, &displayList)
	if err == sql.ErrNoRows {
		return map[string]ChatroomMember{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: chatroom %s: %w", wxid, err)
	}

	members := splitPacked(memberList)
	displays := splitPacked(displayList)

	out := make(map[string]ChatroomMember, len(members))
	for i, id := range members {
		if id == "" {
			continue
		}
		m := ChatroomMember{Wxid: id}
		if i < len(displays) {
			m.DisplayName = displays[i]
		}
		ct, err := c.Contact(id)
		if err != nil {
			return nil, err
		}
		if ct != nil {
			m.Nickname = ct.Nickname
		}
		out[id] = m
	}
	return out, nil
}

func splitPacked(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, memberSep)
}
