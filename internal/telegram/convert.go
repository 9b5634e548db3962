package telegram

import (
	"strconv"
	"strings"
	"time"

	"github.com/gotd/td/tg"

	"github.com/yegors/telegate/internal/domain"
)

// Chat ids are "marked" the way Telegram clients expose them: users keep
// their id, basic groups are negated and channels are offset below -10^12.
const channelIDOffset int64 = 1000000000000

func userChatID(id int64) int64    { return id }
func groupChatID(id int64) int64   { return -id }
func channelChatID(id int64) int64 { return -channelIDOffset - id }

// peerChatID returns the marked chat id of a peer
func peerChatID(peer tg.PeerClass) int64 {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return userChatID(p.UserID)
	case *tg.PeerChat:
		return groupChatID(p.ChatID)
	case *tg.PeerChannel:
		return channelChatID(p.ChannelID)
	}
	return 0
}

// unmark splits a marked chat id into its peer type and raw id
func unmark(chatID int64) (kind peerKind, id int64) {
	switch {
	case chatID > 0:
		return peerUser, chatID
	case chatID < -channelIDOffset:
		return peerChannel, -chatID - channelIDOffset
	default:
		return peerGroup, -chatID
	}
}

type peerKind int

const (
	peerUser peerKind = iota
	peerGroup
	peerChannel
)

func unixTime(ts int) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(int64(ts), 0).UTC()
}

func userName(u *tg.User) string {
	if u.Deleted {
		return "Deleted Account"
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	if name == "" {
		name = "User " + strconv.FormatInt(u.ID, 10)
	}
	return name
}

func convertUser(u *tg.User) domain.User {
	return domain.User{
		ID:       u.ID,
		Name:     userName(u),
		Username: u.Username,
		Phone:    u.Phone,
		Bot:      u.Bot,
	}
}

func contactFromUser(u *tg.User) domain.Contact {
	return domain.Contact{
		ID:       u.ID,
		Name:     userName(u),
		Username: u.Username,
		Phone:    u.Phone,
	}
}

// convertStatus maps the presence a user discloses
func convertStatus(u *tg.User) domain.UserStatus {
	status := domain.UserStatus{UserID: u.ID, Status: domain.PresenceUnknown}
	switch s := u.Status.(type) {
	case *tg.UserStatusOnline:
		until := unixTime(s.Expires)
		status.Status, status.OnlineUntil = domain.PresenceOnline, &until
	case *tg.UserStatusOffline:
		seen := unixTime(s.WasOnline)
		status.Status, status.LastSeen = domain.PresenceOffline, &seen
	case *tg.UserStatusRecently:
		status.Status = domain.PresenceRecently
	case *tg.UserStatusLastWeek:
		status.Status = domain.PresenceLastWeek
	case *tg.UserStatusLastMonth:
		status.Status = domain.PresenceLastMonth
	}
	return status
}

func chatFromUser(u *tg.User) domain.Chat {
	kind := domain.ChatKindDirect
	if u.Bot {
		kind = domain.ChatKindBot
	}
	return domain.Chat{
		ID:       userChatID(u.ID),
		Name:     userName(u),
		Kind:     kind,
		Username: u.Username,
	}
}

func chatFromGroup(c *tg.Chat) domain.Chat {
	return domain.Chat{
		ID:   groupChatID(c.ID),
		Name: c.Title,
		Kind: domain.ChatKindGroup,
	}
}

func chatFromChannel(c *tg.Channel) domain.Chat {
	kind := domain.ChatKindChannel
	if c.Megagroup || c.Gigagroup {
		kind = domain.ChatKindGroup
	}
	return domain.Chat{
		ID:       channelChatID(c.ID),
		Name:     c.Title,
		Kind:     kind,
		Username: c.Username,
	}
}

// convertMessage converts a regular message. Service and empty messages
// carry no text and are skipped (ok is false).
func convertMessage(m tg.MessageClass, selfID int64) (domain.Message, bool) {
	msg, ok := m.(*tg.Message)
	if !ok {
		return domain.Message{}, false
	}

	chatID := peerChatID(msg.PeerID)
	out := domain.Message{
		ID:        msg.ID,
		ChatID:    chatID,
		Text:      msg.Message,
		Date:      unixTime(msg.Date),
		Direction: domain.DirectionIncoming,
	}
	if msg.Out {
		out.Direction = domain.DirectionOutgoing
	}

	// private chats and channel posts omit the sender
	switch from, ok := msg.GetFromID(); {
	case ok:
		out.SenderID = peerChatID(from)
	case msg.Out:
		out.SenderID = selfID
	default:
		out.SenderID = chatID
	}

	if header, ok := msg.ReplyTo.(*tg.MessageReplyHeader); ok {
		if id, ok := header.GetReplyToMsgID(); ok {
			out.ReplyTo = id
		}
	}
	return out, true
}

func convertMessages(messages []tg.MessageClass, selfID int64) []domain.Message {
	out := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		if msg, ok := convertMessage(m, selfID); ok {
			out = append(out, msg)
		}
	}
	return out
}

// messageBatch is one response of the messages.Messages family. count is the
// number of matches on the server, which exceeds len(messages) when the
// response is a slice of a longer result.
type messageBatch struct {
	messages []tg.MessageClass
	users    []tg.UserClass
	chats    []tg.ChatClass
	count    int
	nextRate int
}

// unpackMessages unpacks the variants of messages.Messages
func unpackMessages(res tg.MessagesMessagesClass) messageBatch {
	switch r := res.(type) {
	case *tg.MessagesMessages:
		return messageBatch{messages: r.Messages, users: r.Users, chats: r.Chats, count: len(r.Messages)}
	case *tg.MessagesMessagesSlice:
		rate, _ := r.GetNextRate()
		return messageBatch{messages: r.Messages, users: r.Users, chats: r.Chats, count: r.Count, nextRate: rate}
	case *tg.MessagesChannelMessages:
		return messageBatch{messages: r.Messages, users: r.Users, chats: r.Chats, count: r.Count}
	}
	return messageBatch{}
}

// more reports whether results remain after seen matches have been returned
// in total. Global search announces a further page with next_rate.
func (b messageBatch) more(seen int) bool {
	if len(b.messages) == 0 {
		return false
	}
	return b.nextRate != 0 || seen < b.count
}

// newMessages collects the messages created or edited by an RPC that
// returns updates, in update order
func newMessages(updates tg.UpdatesClass) []tg.MessageClass {
	var list []tg.UpdateClass
	switch u := updates.(type) {
	case *tg.Updates:
		list = u.Updates
	case *tg.UpdatesCombined:
		list = u.Updates
	case *tg.UpdateShort:
		list = []tg.UpdateClass{u.Update}
	}

	var out []tg.MessageClass
	for _, update := range list {
		switch u := update.(type) {
		case *tg.UpdateNewMessage:
			out = append(out, u.Message)
		case *tg.UpdateNewChannelMessage:
			out = append(out, u.Message)
		case *tg.UpdateEditMessage:
			out = append(out, u.Message)
		case *tg.UpdateEditChannelMessage:
			out = append(out, u.Message)
		}
	}
	return out
}

// updatesEntities returns the users and chats attached to an updates result
func updatesEntities(updates tg.UpdatesClass) ([]tg.UserClass, []tg.ChatClass) {
	switch u := updates.(type) {
	case *tg.Updates:
		return u.Users, u.Chats
	case *tg.UpdatesCombined:
		return u.Users, u.Chats
	}
	return nil, nil
}
