package store

import (
	"strings"
	"time"
)

// MessageType is the normalized kind of a message, independent of the
// on-disk type codes of either schema generation.
type MessageType int

const (
	TypeUnknown MessageType = iota
	TypeText
	TypeImage
	TypeAudio
	TypeVideo
	TypeEmoji
	TypeFile
	TypeLink
	TypeQuote
	TypeMerged
	TypeSystem
)

func (t MessageType) String() string {
	switch t {
	case TypeText:
		return "text"
	case TypeImage:
		return "image"
	case TypeAudio:
		return "audio"
	case TypeVideo:
		return "video"
	case TypeEmoji:
		return "emoji"
	case TypeFile:
		return "file"
	case TypeLink:
		return "link"
	case TypeQuote:
		return "quote"
	case TypeMerged:
		return "merged"
	case TypeSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Contact is one identity row, normalized across schema generations.
type Contact struct {
	Wxid     string
	Alias    string
	Remark   string
	Nickname string

	// AvatarKey addresses the avatar blob store; it equals the wxid.
	AvatarKey string

	IsChatroom bool

	// IsUnresolved marks a synthesized placeholder for a wxid that has
	// no row in the contact database.
	IsUnresolved bool
}

// DisplayName prefers the user-assigned remark, then the nickname, then
// the raw wxid.
func (c Contact) DisplayName() string {
	if c.Remark != "" {
		return c.Remark
	}
	if c.Nickname != "" {
		return c.Nickname
	}
	return c.Wxid
}

// ChatroomMember is one roster entry of a group chat.
type ChatroomMember struct {
	Wxid        string
	Nickname    string
	DisplayName string
}

// Message is one normalized chat message.
type Message struct {
	LocalID int64
	ChatID  string
	Sender  string
	IsSelf  bool
	Time    time.Time
	Type    MessageType
	Content string

	// QuotedID carries the server id of the referenced message for
	// quote messages, when it could be extracted.
	QuotedID string
}

// TimeRange bounds a message query. A zero Start or End leaves that side
// unbounded; both bounds are inclusive.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

func isChatroom(wxid string) bool {
	return strings.HasSuffix(wxid, "@chatroom")
}
