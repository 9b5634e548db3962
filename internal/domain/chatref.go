package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ChatRef identifies a chat the way callers name it: a numeric chat id or an
// @username. The zero value is empty and matches nothing.
type ChatRef struct {
	ID       int64
	Username string
}

// ParseChatRef parses "123456", "-1001234" or "@name"
func ParseChatRef(s string) (ChatRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ChatRef{}, ValidationError("chat_id is required")
	}
	if strings.HasPrefix(s, "@") {
		name := strings.TrimPrefix(s, "@")
		if !validUsername(name) {
			return ChatRef{}, ValidationError("invalid username %q", s)
		}
		return ChatRef{Username: strings.ToLower(name)}, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id == 0 {
		return ChatRef{}, ValidationError("chat_id must be a non-zero integer or @username, got %q", s)
	}
	return ChatRef{ID: id}, nil
}

// IDRef returns a ChatRef for a numeric chat id
func IDRef(id int64) ChatRef {
	return ChatRef{ID: id}
}

// IsZero reports whether the reference names nothing
func (r ChatRef) IsZero() bool {
	return r.ID == 0 && r.Username == ""
}

func (r ChatRef) String() string {
	if r.Username != "" {
		return "@" + r.Username
	}
	return strconv.FormatInt(r.ID, 10)
}

// MarshalJSON encodes the reference as a number or "@username"
func (r ChatRef) MarshalJSON() ([]byte, error) {
	if r.Username != "" {
		return json.Marshal("@" + r.Username)
	}
	return []byte(strconv.FormatInt(r.ID, 10)), nil
}

// UnmarshalJSON accepts a JSON number or string
func (r *ChatRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ChatRef{}
		return nil
	}
	var raw string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return ValidationError("chat_id must be a number or string")
		}
	} else {
		raw = string(data)
	}
	ref, err := ParseChatRef(raw)
	if err != nil {
		return err
	}
	*r = ref
	return nil
}

// usernames are 5-32 characters of letters, digits and underscores; shorter
// legacy names exist so the lower bound is relaxed to 3
func validUsername(name string) bool {
	if len(name) < 3 || len(name) > 32 {
		return false
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		default:
			return false
		}
	}
	return true
}
