package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/matheus3301/wxvault/internal/account"
	"github.com/matheus3301/wxvault/internal/config"
	"github.com/matheus3301/wxvault/internal/store"
	"github.com/matheus3301/wxvault/internal/version"
)

// stagingDir picks the staging directory to read: --dir when given,
// otherwise the most recently decrypted one.
func stagingDir() string {
	if *dirFlag != "" {
		return *dirFlag
	}
	cfg := loadConfig()
	if len(cfg.RecentDatabases) > 0 {
		return cfg.RecentDatabases[0].Path
	}
	fail(fmt.Errorf("no staging directory; run decrypt first or pass --dir"))
	return ""
}

func openStore() *store.Connection {
	dir := stagingDir()

	v := version.Version(*verFlag)
	if acct, err := account.Load(dir); err == nil {
		v = acct.Version
	} else if *verFlag == 0 {
		v = version.Version(loadConfig().DefaultVersion)
	}

	conn, err := store.Open(dir, v)
	if err != nil {
		fail(err)
	}
	return conn
}

func rememberContact(wxid string) {
	cfg := loadConfig()
	cfg.AddRecentContact(wxid)
	_ = config.Save(config.ConfigPath(), cfg)
}

func cmdContacts() {
	conn := openStore()
	defer func() { _ = conn.Close() }()

	contacts, err := conn.Contacts()
	if err != nil {
		fail(err)
	}
	if *jsonFlag {
		type row struct {
			Wxid     string `json:"wxid"`
			Alias    string `json:"alias,omitempty"`
			Remark   string `json:"remark,omitempty"`
			Nickname string `json:"nickname,omitempty"`
			Chatroom bool   `json:"chatroom,omitempty"`
		}
		rows := make([]row, 0, len(contacts))
		for _, c := range contacts {
			rows = append(rows, row{c.Wxid, c.Alias, c.Remark, c.Nickname, c.IsChatroom})
		}
		outputJSON(rows)
		return
	}
	for _, c := range contacts {
		kind := ""
		if c.IsChatroom {
			kind = " [chatroom]"
		}
		fmt.Printf("%-32s %s%s\n", c.Wxid, c.DisplayName(), kind)
	}
}

func cmdMembers(wxid string) {
	conn := openStore()
	defer func() { _ = conn.Close() }()

	members, err := conn.ChatroomMembers(wxid)
	if err != nil {
		fail(err)
	}
	if *jsonFlag {
		outputJSON(members)
		return
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		m := members[id]
		name := m.DisplayName
		if name == "" {
			name = m.Nickname
		}
		fmt.Printf("%-32s %s\n", m.Wxid, name)
	}
}

func cmdMessages(wxid string) {
	conn := openStore()
	defer func() { _ = conn.Close() }()

	window := store.TimeRange{
		Start: parseTimeFlag(*fromFlag),
		End:   parseTimeFlag(*toFlag),
	}
	var kinds []store.MessageType
	if *typeFlag != "" {
		kinds = append(kinds, parseMessageType(*typeFlag))
	}

	it, err := conn.Messages(wxid, window, kinds...)
	if err != nil {
		fail(err)
	}
	defer func() { _ = it.Close() }()

	enc := json.NewEncoder(os.Stdout)
	for it.Next() {
		msg := it.Message()
		if *jsonFlag {
			if err := enc.Encode(msg); err != nil {
				fail(err)
			}
			continue
		}
		sender, err := conn.ResolveContact(msg.Sender)
		if err != nil {
			fail(err)
		}
		fmt.Printf("[%s] %s (%s): %s\n",
			msg.Time.Format("2006-01-02 15:04:05"), sender.DisplayName(), msg.Type, msg.Content)
	}
	if err := it.Err(); err != nil {
		fail(err)
	}
	rememberContact(wxid)
}

func cmdAvatar(wxid, out string) {
	conn := openStore()
	defer func() { _ = conn.Close() }()

	buf, err := conn.AvatarBuffer(wxid)
	if err != nil {
		fail(err)
	}
	if buf == nil {
		fail(fmt.Errorf("no avatar stored for %s", wxid))
	}
	if err := os.WriteFile(out, buf, 0600); err != nil {
		fail(err)
	}
	fmt.Printf("wrote %d bytes to %s\n", len(buf), out)
}

func parseTimeFlag(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	fail(fmt.Errorf("cannot parse time %q", s))
	return time.Time{}
}

func parseMessageType(s string) store.MessageType {
	for t := store.TypeText; t <= store.TypeSystem; t++ {
		if t.String() == s {
			return t
		}
	}
	fail(fmt.Errorf("unknown message type %q", s))
	return store.TypeUnknown
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
