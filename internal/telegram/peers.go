package telegram

import (
	"strings"
	"sync"

	"github.com/gotd/td/tg"

	"github.com/yegors/telegate/internal/domain"
)

// peerCache remembers the users, groups and channels seen in responses. The
// MTProto API addresses peers by id plus an access hash that is only learned
// from earlier responses, so every RPC result feeds the cache.
type peerCache struct {
	mu        sync.RWMutex
	users     map[int64]*tg.User
	groups    map[int64]*tg.Chat
	channels  map[int64]*tg.Channel
	usernames map[string]int64 // lowercased username -> marked chat id
}

func newPeerCache() *peerCache {
	return &peerCache{
		users:     make(map[int64]*tg.User),
		groups:    make(map[int64]*tg.Chat),
		channels:  make(map[int64]*tg.Channel),
		usernames: make(map[string]int64),
	}
}

func (p *peerCache) apply(users []tg.UserClass, chats []tg.ChatClass) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			p.addUserLocked(user)
		}
	}
	for _, c := range chats {
		switch chat := c.(type) {
		case *tg.Chat:
			p.groups[chat.ID] = chat
		case *tg.Channel:
			p.addChannelLocked(chat)
		}
	}
}

// applyEntities feeds the entity maps delivered with pushed updates
func (p *peerCache) applyEntities(e tg.Entities) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, user := range e.Users {
		p.addUserLocked(user)
	}
	for _, chat := range e.Chats {
		p.groups[chat.ID] = chat
	}
	for _, channel := range e.Channels {
		p.addChannelLocked(channel)
	}
}

func (p *peerCache) addUserLocked(user *tg.User) {
	// min constructors carry no usable access hash; keep a full one if known
	if existing, ok := p.users[user.ID]; ok && user.Min && existing.AccessHash != 0 {
		return
	}
	p.users[user.ID] = user
	if user.Username != "" {
		p.usernames[strings.ToLower(user.Username)] = userChatID(user.ID)
	}
}

func (p *peerCache) addChannelLocked(channel *tg.Channel) {
	if existing, ok := p.channels[channel.ID]; ok && channel.Min && existing.AccessHash != 0 {
		return
	}
	p.channels[channel.ID] = channel
	if channel.Username != "" {
		p.usernames[strings.ToLower(channel.Username)] = channelChatID(channel.ID)
	}
}

// lookup returns the marked chat id for a reference, if the peer is known
func (p *peerCache) lookup(ref domain.ChatRef) (int64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if ref.Username != "" {
		id, ok := p.usernames[strings.ToLower(ref.Username)]
		return id, ok
	}
	kind, id := unmark(ref.ID)
	switch kind {
	case peerUser:
		_, ok := p.users[id]
		return ref.ID, ok
	case peerGroup:
		_, ok := p.groups[id]
		return ref.ID, ok
	default:
		_, ok := p.channels[id]
		return ref.ID, ok
	}
}

// inputPeer builds the addressing structure for a known marked chat id
func (p *peerCache) inputPeer(chatID int64) (tg.InputPeerClass, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	kind, id := unmark(chatID)
	switch kind {
	case peerUser:
		if user, ok := p.users[id]; ok {
			if user.Self {
				return &tg.InputPeerSelf{}, true
			}
			return &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}, true
		}
	case peerGroup:
		if _, ok := p.groups[id]; ok {
			return &tg.InputPeerChat{ChatID: id}, true
		}
	case peerChannel:
		if channel, ok := p.channels[id]; ok {
			return &tg.InputPeerChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash}, true
		}
	}
	return nil, false
}

// inputUser builds the user addressing structure for a known user id
func (p *peerCache) inputUser(id int64) (tg.InputUserClass, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	user, ok := p.users[id]
	if !ok {
		return nil, false
	}
	if user.Self {
		return &tg.InputUserSelf{}, true
	}
	return &tg.InputUser{UserID: user.ID, AccessHash: user.AccessHash}, true
}

// inputChannel returns the channel addressing structure for a marked id
func (p *peerCache) inputChannel(chatID int64) (*tg.InputChannel, bool) {
	kind, id := unmark(chatID)
	if kind != peerChannel {
		return nil, false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	channel, ok := p.channels[id]
	if !ok {
		return nil, false
	}
	return &tg.InputChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash}, true
}

// chat describes a known peer as a chat, without activity data
func (p *peerCache) chat(chatID int64) (domain.Chat, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	kind, id := unmark(chatID)
	switch kind {
	case peerUser:
		if user, ok := p.users[id]; ok {
			return chatFromUser(user), true
		}
	case peerGroup:
		if group, ok := p.groups[id]; ok {
			return chatFromGroup(group), true
		}
	case peerChannel:
		if channel, ok := p.channels[id]; ok {
			return chatFromChannel(channel), true
		}
	}
	return domain.Chat{}, false
}

func (p *peerCache) user(id int64) (*tg.User, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	user, ok := p.users[id]
	return user, ok
}
