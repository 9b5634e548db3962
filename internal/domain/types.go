package domain

import (
	"math"
	"time"
)

// ChatKind classifies a chat
type ChatKind string

const (
	ChatKindDirect  ChatKind = "direct"
	ChatKindGroup   ChatKind = "group"
	ChatKindChannel ChatKind = "channel"
	ChatKindBot     ChatKind = "bot"
)

// Valid reports whether k is one of the known chat kinds
func (k ChatKind) Valid() bool {
	switch k {
	case ChatKindDirect, ChatKindGroup, ChatKindChannel, ChatKindBot:
		return true
	}
	return false
}

// Direction tells whether a message was sent by the account or received by it
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Chat is a snapshot of one dialog as seen by the account
type Chat struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Kind         ChatKind  `json:"kind"`
	Username     string    `json:"username,omitempty"`
	LastActivity time.Time `json:"last_activity"`
	UnreadCount  int       `json:"unread_count"`
	Archived     bool      `json:"archived"`
	Muted        bool      `json:"muted"`
}

// MuteForever is the mute deadline Telegram treats as permanent
var MuteForever = time.Unix(math.MaxInt32, 0).UTC()

// Message is a single chat message
type Message struct {
	ID        int       `json:"id"`
	ChatID    int64     `json:"chat_id"`
	SenderID  int64     `json:"sender_id,omitempty"`
	Text      string    `json:"text"`
	Date      time.Time `json:"date"`
	Direction Direction `json:"direction"`
	ReplyTo   int       `json:"reply_to,omitempty"`
}

// Contact is an entry of the account's address book
type Contact struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// Draft is the unsent text kept for a chat. A chat has at most one.
type Draft struct {
	ChatID  int64     `json:"chat_id"`
	Text    string    `json:"text"`
	SavedAt time.Time `json:"saved_at"`
	ReplyTo int       `json:"reply_to,omitempty"`
}

// User describes the account the session is authenticated as
type User struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Bot      bool   `json:"bot"`
}

// NewContact is an address book entry to import by phone number
type NewContact struct {
	Phone     string `json:"phone"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
}

// Presence is the coarse online state Telegram discloses for a user
type Presence string

const (
	PresenceOnline    Presence = "online"
	PresenceOffline   Presence = "offline"
	PresenceRecently  Presence = "recently"
	PresenceLastWeek  Presence = "last_week"
	PresenceLastMonth Presence = "last_month"
	PresenceUnknown   Presence = "unknown"
)

// UserStatus is a user's presence. LastSeen is only known for offline users
// who share it; OnlineUntil only for online ones.
type UserStatus struct {
	UserID      int64      `json:"user_id"`
	Status      Presence   `json:"status"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
	OnlineUntil *time.Time `json:"online_until,omitempty"`
}

// ChatFilter narrows a chat listing. Archived selects the archive folder
// instead of the main list.
type ChatFilter struct {
	Kind       ChatKind
	UnreadOnly bool
	Archived   bool
}

// Match reports whether c passes the filter
func (f ChatFilter) Match(c Chat) bool {
	if f.Kind != "" && c.Kind != f.Kind {
		return false
	}
	if f.UnreadOnly && c.UnreadCount == 0 {
		return false
	}
	if c.Archived != f.Archived {
		return false
	}
	return true
}

// SearchQuery is a message search request against the upstream service.
// Chat nil means all accessible chats. Cursor is the upstream continuation
// marker returned by the previous page, empty for the first page.
type SearchQuery struct {
	Chat   *ChatRef
	Query  string
	Limit  int
	Cursor string
}

// SearchPage is one page of upstream search results. Next is empty when the
// upstream has nothing more.
type SearchPage struct {
	Messages []Message
	Next     string
}

// SendOptions carries optional parameters of a send
type SendOptions struct {
	ReplyTo int
}
