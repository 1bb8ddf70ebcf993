package store

import (
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/wxvault/internal/version"
)

// Messages opens an iterator over the chat history with wxid, ordered by
// ascending timestamp across every message database. The window bounds
// are inclusive; passing one or more types keeps only messages of those
// kinds. The iterator reads rows lazily and may be recreated at any time
// by calling Messages again.
func (c *Connection) Messages(wxid string, window TimeRange, types ...MessageType) (*MessageIterator, error) {
	allowed := map[MessageType]bool{}
	for _, t := range types {
		allowed[t] = true
	}

	it := &MessageIterator{allowed: allowed}
	for _, db := range c.messages {
		var cur *msgCursor
		var err error
		switch c.version {
		case version.V3:
			cur, err = c.openV3Cursor(db, wxid, window)
		case version.V4:
			cur, err = c.openV4Cursor(db, wxid, window)
		}
		if err != nil {
			it.Close()
			return nil, err
		}
		if cur != nil {
			it.cursors = append(it.cursors, cur)
		}
	}

	for _, cur := range it.cursors {
		if err := cur.advance(allowed); err != nil {
			it.Close()
			return nil, err
		}
	}
	return it, nil
}

// MessageIterator merges the per-database row streams into one timeline.
// Usage mirrors sql.Rows: Next, then Message, then Err after the loop.
type MessageIterator struct {
	cursors []*msgCursor
	allowed map[MessageType]bool
	cur     Message
	err     error
	closed  bool
}

// Next advances to the next message in timestamp order. It returns false
// when the timeline is exhausted or a read error occurred.
func (it *MessageIterator) Next() bool {
	if it.closed || it.err != nil {
		return false
	}

	best := -1
	for i, cur := range it.cursors {
		if cur.next == nil {
			continue
		}
		if best == -1 || cur.before(it.cursors[best]) {
			best = i
		}
	}
	if best == -1 {
		return false
	}

	it.cur = *it.cursors[best].next
	if err := it.cursors[best].advance(it.allowed); err != nil {
		it.err = err
		return false
	}
	return true
}

// Message returns the message Next positioned on.
func (it *MessageIterator) Message() Message { return it.cur }

// Err reports the first error encountered while iterating.
func (it *MessageIterator) Err() error { return it.err }

// Close releases every underlying row stream.
func (it *MessageIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	var first error
	for _, cur := range it.cursors {
		if cur.rows == nil {
			continue
		}
		if err := cur.rows.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type msgCursor struct {
	rows *sql.Rows
	read func() (*Message, error)
	next *Message
}

// advance moves the cursor to its next row that passes the type filter.
func (c *msgCursor) advance(allowed map[MessageType]bool) error {
	for c.rows.Next() {
		msg, err := c.read()
		if err != nil {
			return err
		}
		if len(allowed) > 0 && !allowed[msg.Type] {
			continue
		}
		c.next = msg
		return nil
	}
	c.next = nil
	return c.rows.Err()
}

func (c *msgCursor) before(other *msgCursor) bool {
	a, b := c.next, other.next
	if !a.Time.Equal(b.Time) {
		return a.Time.Before(b.Time)
	}
	return a.LocalID < b.LocalID
}

func (c *Connection) openV3Cursor(db *sql.DB, wxid string, window TimeRange) (*msgCursor, error) {
	if !hasTable(db, "MSG") {
		return nil, nil
	}

	query := `SELECT localId, Type, SubType, IsSender, CreateTime, IFNULL(StrContent, '')
		FROM MSG WHERE StrTalker = ?`
	args := []any{wxid}
	query, args = appendWindow(query, args, "CreateTime", window)
	query += ` ORDER BY CreateTime, localId`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: messages %s: %w", wxid, err)
	}

	chatroom := isChatroom(wxid)
	cur := &msgCursor{rows: rows}
	cur.read = func() (*Message, error) {
		var (
			typ, sub, isSender int
			created            int64
			msg                Message
		)
		if err := rows.Scan(&msg.LocalID, &typ, &sub, &isSender, &created, &msg.Content); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		msg.ChatID = wxid
		msg.Time = time.Unix(created, 0)
		msg.Type = mapTypeV3(typ, sub)
		msg.IsSelf = isSender == 1

		switch {
		case msg.IsSelf:
			msg.Sender = c.self
		case chatroom:
			msg.Sender, msg.Content = splitGroupSender(msg.Content)
		default:
			msg.Sender = wxid
		}
		if msg.Type == TypeQuote {
			msg.QuotedID = parseQuotedID(msg.Content)
		}
		return &msg, nil
	}
	return cur, nil
}

func (c *Connection) openV4Cursor(db *sql.DB, wxid string, window TimeRange) (*msgCursor, error) {
	table := "Msg_" + md5Hex(wxid)
	if !hasTable(db, table) {
		return nil, nil
	}

	senders, err := loadSenderNames(db)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT local_id, local_type, real_sender_id, create_time,
		IFNULL(message_content, '') FROM %s WHERE 1 = 1`, table)
	var args []any
	query, args = appendWindow(query, args, "create_time", window)
	query += ` ORDER BY create_time, local_id`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: messages %s: %w", wxid, err)
	}

	cur := &msgCursor{rows: rows}
	cur.read = func() (*Message, error) {
		var (
			typ      int
			senderID int64
			created  int64
			msg      Message
		)
		if err := rows.Scan(&msg.LocalID, &typ, &senderID, &created, &msg.Content); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		msg.ChatID = wxid
		msg.Time = time.Unix(created, 0)
		msg.Type = mapTypeV4(typ, msg.Content)
		msg.Sender = senders[senderID]
		msg.IsSelf = c.self != "" && msg.Sender == c.self
		if msg.Type == TypeQuote {
			msg.QuotedID = parseQuotedID(msg.Content)
		}
		return &msg, nil
	}
	return cur, nil
}

// loadSenderNames reads the per-database sender id table. Row ids are
// the sender ids referenced by message rows.
func loadSenderNames(db *sql.DB) (map[int64]string, error) {
	if !hasTable(db, "Name2Id") {
		return nil, nil
	}
	rows, err := db.Query(`SELECT ROWID, user_name FROM Name2Id`)
	if err != nil {
		return nil, fmt.Errorf("store: sender names: %w", err)
	}
	defer rows.Close()

	out := map[int64]string{}
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("store: scan sender name: %w", err)
		}
		out[id] = name
	}
	return out, rows.Err()
}

func appendWindow(query string, args []any, col string, window TimeRange) (string, []any) {
	if !window.Start.IsZero() {
		query += fmt.Sprintf(" AND %s >= ?", col)
		args = append(args, window.Start.Unix())
	}
	if !window.End.IsZero() {
		query += fmt.Sprintf(" AND %s <= ?", col)
		args = append(args, window.End.Unix())
	}
	return query, args
}

// splitGroupSender strips the "wxid:\n" prefix group messages carry and
// returns the sender and remaining body. Content without the prefix is
// returned unchanged with an empty sender.
func splitGroupSender(content string) (sender, body string) {
	idx := strings.Index(content, ":\n")
	if idx <= 0 {
		return "", content
	}
	return content[:idx], content[idx+2:]
}

// parseQuotedID extracts the referenced server id from the XML payload
// of a quote message. Absent or malformed payloads yield "".
func parseQuotedID(content string) string {
	const tagOpen, tagClose = "<svrid>", "</svrid>"
	i := strings.Index(content, tagOpen)
	if i < 0 {
		return ""
	}
	rest := content[i+len(tagOpen):]
	j := strings.Index(rest, tagClose)
	if j < 0 {
		return ""
	}
	return rest[:j]
}

func mapTypeV3(typ, sub int) MessageType {
	switch typ {
	case 1:
		return TypeText
	case 3:
		return TypeImage
	case 34:
		return TypeAudio
	case 43:
		return TypeVideo
	case 47:
		return TypeEmoji
	case 10000:
		return TypeSystem
	case 49:
		switch sub {
		case 6:
			return TypeFile
		case 19:
			return TypeMerged
		case 57:
			return TypeQuote
		default:
			return TypeLink
		}
	default:
		return TypeUnknown
	}
}

// mapTypeV4 normalizes a v4 local_type. The schema has no subtype
// column; app messages (49) carry their subtype inside the XML payload.
func mapTypeV4(typ int, content string) MessageType {
	switch typ {
	case 1:
		return TypeText
	case 3:
		return TypeImage
	case 34:
		return TypeAudio
	case 43:
		return TypeVideo
	case 47:
		return TypeEmoji
	case 49:
		switch parseAppSubtype(content) {
		case 6:
			return TypeFile
		case 19:
			return TypeMerged
		case 57:
			return TypeQuote
		default:
			return TypeLink
		}
	case 10000:
		return TypeSystem
	default:
		return TypeUnknown
	}
}

// parseAppSubtype pulls the subtype element out of an appmsg payload.
// Absent or malformed payloads yield 0.
func parseAppSubtype(content string) int {
	const tagOpen, tagClose = "<type>", "</type>"
	i := strings.Index(content, tagOpen)
	if i < 0 {
		return 0
	}
	rest := content[i+len(tagOpen):]
	j := strings.Index(rest, tagClose)
	if j < 0 {
		return 0
	}
	sub, err := strconv.Atoi(strings.TrimSpace(rest[:j]))
	if err != nil {
		return 0
	}
	return sub
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
