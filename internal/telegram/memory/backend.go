// Package memory is an in-process stand-in for the Telegram service. It keeps
// chats, messages, contacts and drafts in maps and behaves like the MTProto
// adapter at the domain.Conn boundary, so the gateway and both front ends
// can run without an account.
package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yegors/telegate/internal/domain"
	"github.com/yegors/telegate/internal/session"
)

// Credential returns a well-formed placeholder credential accepted by the
// session manager. The backend itself ignores it.
func Credential() session.Credential {
	return session.Credential{
		APIID:   1,
		APIHash: "00000000000000000000000000000000",
		Session: "memory",
	}
}

type chatState struct {
	chat       domain.Chat
	messages   []domain.Message // ascending by id
	nextID     int
	draft      *domain.Draft
	archived   bool
	mutedUntil time.Time
	inviteLink string
}

// Backend holds the simulated account. State survives reconnects: every
// connection dialed from one Backend sees the same data.
type Backend struct {
	mu       sync.Mutex
	self     domain.User
	chats    map[int64]*chatState
	contacts map[int64]domain.Contact
	accounts map[string]domain.Contact // phone -> registered user
	presence map[int64]domain.UserStatus
	sink     domain.UpdateSink
	now      func() time.Time

	hook     func(ctx context.Context, op string)
	calls    []string
	dialErrs []error
	conns    []*conn
}

// New creates an empty backend logged in as self
func New(self domain.User) *Backend {
	return &Backend{
		self:     self,
		chats:    make(map[int64]*chatState),
		contacts: make(map[int64]domain.Contact),
		accounts: make(map[string]domain.Contact),
		presence: make(map[int64]domain.UserStatus),
		now:      time.Now,
	}
}

// SetClock replaces the time source used for new messages and drafts
func (b *Backend) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// SetSink routes messages delivered with Deliver to sink
func (b *Backend) SetSink(sink domain.UpdateSink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink = sink
}

// SetHook installs fn to run at the start of every connection call, before
// the call touches state. Tests use it to observe or delay calls.
func (b *Backend) SetHook(fn func(ctx context.Context, op string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hook = fn
}

// FailDials makes the next dials fail with errs, in order
func (b *Backend) FailDials(errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialErrs = append(b.dialErrs, errs...)
}

// Calls returns the operations served so far, in order
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

// DropConnections terminates every open connection as if the network failed
func (b *Backend) DropConnections() {
	b.mu.Lock()
	conns := b.conns
	b.conns = nil
	b.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// AddChat registers a chat. Its last activity follows the newest message
// added later.
func (b *Backend) AddChat(chat domain.Chat) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chats[chat.ID] = &chatState{chat: chat, nextID: 1}
}

// AddContact registers an address book entry
func (b *Backend) AddContact(contact domain.Contact) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contacts[contact.ID] = contact
}

// AddAccount registers a user that exists on the service but is not in the
// address book yet. AddContact finds it by phone number.
func (b *Backend) AddAccount(account domain.Contact) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[account.Phone] = account
}

// SetPresence sets what UserStatus reports for a user
func (b *Backend) SetPresence(status domain.UserStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.presence[status.UserID] = status
}

// AddMessage appends a message to a registered chat without notifying the sink
func (b *Backend) AddMessage(chatID, senderID int64, text string, date time.Time) domain.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appendLocked(b.chats[chatID], senderID, text, date, 0)
}

// Deliver simulates an incoming message pushed by the service
func (b *Backend) Deliver(chatID, senderID int64, text string) (domain.Message, bool) {
	b.mu.Lock()
	state, ok := b.chats[chatID]
	if !ok {
		b.mu.Unlock()
		return domain.Message{}, false
	}
	msg := b.appendLocked(state, senderID, text, b.now(), 0)
	state.chat.UnreadCount++
	sink := b.sink
	b.mu.Unlock()

	if sink != nil {
		sink.IncomingMessage(msg)
	}
	return msg, true
}

func (b *Backend) appendLocked(state *chatState, senderID int64, text string, date time.Time, replyTo int) domain.Message {
	direction := domain.DirectionIncoming
	if senderID == b.self.ID {
		direction = domain.DirectionOutgoing
	}
	msg := domain.Message{
		ID:        state.nextID,
		ChatID:    state.chat.ID,
		SenderID:  senderID,
		Text:      text,
		Date:      date.UTC(),
		Direction: direction,
		ReplyTo:   replyTo,
	}
	state.nextID++
	state.messages = append(state.messages, msg)
	if date.After(state.chat.LastActivity) {
		state.chat.LastActivity = date.UTC()
	}
	return msg
}

// Dial implements session.Dialer
func (b *Backend) Dial(ctx context.Context, cred session.Credential) (domain.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.ConnectionError(err, "memory: dial abandoned")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, "dial")
	if len(b.dialErrs) > 0 {
		err := b.dialErrs[0]
		b.dialErrs = b.dialErrs[1:]
		return nil, err
	}

	c := &conn{backend: b, done: make(chan struct{})}
	b.conns = append(b.conns, c)
	return c, nil
}

func (b *Backend) resolveLocked(ref domain.ChatRef) (*chatState, error) {
	if ref.Username != "" {
		for _, state := range b.chats {
			if strings.EqualFold(state.chat.Username, ref.Username) {
				return state, nil
			}
		}
		return nil, domain.NotFound("chat %s not found", ref)
	}
	if state, ok := b.chats[ref.ID]; ok {
		return state, nil
	}
	return nil, domain.NotFound("chat %s not found", ref)
}

// chatLocked is the chat as callers see it, with its folder and
// notification settings applied
func (b *Backend) chatLocked(state *chatState) domain.Chat {
	chat := state.chat
	chat.Archived = state.archived
	chat.Muted = state.mutedUntil.After(b.now())
	return chat
}

// userLocked finds a user by id or username among contacts and private chats
func (b *Backend) userLocked(ref domain.ChatRef) (domain.Contact, bool) {
	for _, contact := range b.contacts {
		if (ref.ID != 0 && contact.ID == ref.ID) || (ref.Username != "" && strings.EqualFold(contact.Username, ref.Username)) {
			return contact, true
		}
	}
	state, err := b.resolveLocked(ref)
	if err != nil || state.chat.ID <= 0 {
		return domain.Contact{}, false
	}
	return domain.Contact{ID: state.chat.ID, Name: state.chat.Name, Username: state.chat.Username}, true
}

func (s *chatState) find(id int) (int, bool) {
	i := sort.Search(len(s.messages), func(i int) bool { return s.messages[i].ID >= id })
	return i, i < len(s.messages) && s.messages[i].ID == id
}

// conn is one simulated connection
type conn struct {
	backend *Backend
	done    chan struct{}
	once    sync.Once
}

// enter runs the hook and locks the backend for one call
func (c *conn) enter(ctx context.Context, op string) error {
	select {
	case <-c.done:
		return domain.ConnectionError(nil, "memory: connection closed")
	default:
	}
	if err := ctx.Err(); err != nil {
		return domain.ConnectionError(err, "memory: %s abandoned", op)
	}

	c.backend.mu.Lock()
	hook := c.backend.hook
	c.backend.mu.Unlock()
	if hook != nil {
		hook(ctx, op)
	}

	c.backend.mu.Lock()
	c.backend.calls = append(c.backend.calls, op)
	return nil
}

func (c *conn) leave() {
	c.backend.mu.Unlock()
}

func (c *conn) Self(ctx context.Context) (domain.User, error) {
	if err := c.enter(ctx, "self"); err != nil {
		return domain.User{}, err
	}
	defer c.leave()
	return c.backend.self, nil
}

func (c *conn) Chats(ctx context.Context) ([]domain.Chat, error) {
	if err := c.enter(ctx, "chats"); err != nil {
		return nil, err
	}
	defer c.leave()

	chats := make([]domain.Chat, 0, len(c.backend.chats))
	for _, state := range c.backend.chats {
		chats = append(chats, c.backend.chatLocked(state))
	}
	return chats, nil
}

func (c *conn) Chat(ctx context.Context, ref domain.ChatRef) (domain.Chat, error) {
	if err := c.enter(ctx, "chat"); err != nil {
		return domain.Chat{}, err
	}
	defer c.leave()

	state, err := c.backend.resolveLocked(ref)
	if err != nil {
		return domain.Chat{}, err
	}
	return c.backend.chatLocked(state), nil
}

func (c *conn) History(ctx context.Context, ref domain.ChatRef, before int, limit int) ([]domain.Message, error) {
	if err := c.enter(ctx, "history"); err != nil {
		return nil, err
	}
	defer c.leave()

	state, err := c.backend.resolveLocked(ref)
	if err != nil {
		return nil, err
	}

	end := len(state.messages)
	if before > 0 {
		end, _ = state.find(before)
	}
	var out []domain.Message
	for i := end - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, state.messages[i])
	}
	return out, nil
}

func (c *conn) Search(ctx context.Context, query domain.SearchQuery) (domain.SearchPage, error) {
	if err := c.enter(ctx, "search"); err != nil {
		return domain.SearchPage{}, err
	}
	defer c.leave()

	var states []*chatState
	if query.Chat != nil {
		state, err := c.backend.resolveLocked(*query.Chat)
		if err != nil {
			return domain.SearchPage{}, err
		}
		states = []*chatState{state}
	} else {
		for _, state := range c.backend.chats {
			states = append(states, state)
		}
	}

	needle := strings.ToLower(query.Query)
	var hits []domain.Message
	for _, state := range states {
		for _, msg := range state.messages {
			if strings.Contains(strings.ToLower(msg.Text), needle) {
				hits = append(hits, msg)
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if !hits[i].Date.Equal(hits[j].Date) {
			return hits[i].Date.After(hits[j].Date)
		}
		if hits[i].ChatID != hits[j].ChatID {
			return hits[i].ChatID < hits[j].ChatID
		}
		return hits[i].ID > hits[j].ID
	})

	offset := 0
	if query.Cursor != "" {
		n, err := strconv.Atoi(query.Cursor)
		if err != nil || n < 0 {
			return domain.SearchPage{}, domain.UpstreamError(err, "memory: bad search offset %q", query.Cursor)
		}
		offset = n
	}
	if offset > len(hits) {
		offset = len(hits)
	}
	end := offset + query.Limit
	if query.Limit <= 0 || end > len(hits) {
		end = len(hits)
	}

	page := domain.SearchPage{Messages: hits[offset:end]}
	if end < len(hits) {
		page.Next = strconv.Itoa(end)
	}
	return page, nil
}

func (c *conn) Contacts(ctx context.Context) ([]domain.Contact, error) {
	if err := c.enter(ctx, "contacts"); err != nil {
		return nil, err
	}
	defer c.leave()

	contacts := make([]domain.Contact, 0, len(c.backend.contacts))
	for _, contact := range c.backend.contacts {
		contacts = append(contacts, contact)
	}
	return contacts, nil
}

func (c *conn) SearchContacts(ctx context.Context, query string, limit int) ([]domain.Contact, error) {
	if err := c.enter(ctx, "search_contacts"); err != nil {
		return nil, err
	}
	defer c.leave()

	needle := strings.ToLower(query)
	var found []domain.Contact
	for _, contact := range c.backend.contacts {
		if strings.Contains(strings.ToLower(contact.Name), needle) ||
			strings.Contains(strings.ToLower(contact.Username), needle) {
			found = append(found, contact)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

func (c *conn) Send(ctx context.Context, ref domain.ChatRef, text string, opts domain.SendOptions) (domain.Message, error) {
	if err := c.enter(ctx, "send"); err != nil {
		return domain.Message{}, err
	}
	defer c.leave()

	state, err := c.backend.resolveLocked(ref)
	if err != nil {
		return domain.Message{}, err
	}
	if strings.TrimSpace(text) == "" {
		return domain.Message{}, domain.ValidationError("message text is empty")
	}
	if opts.ReplyTo > 0 {
		if _, ok := state.find(opts.ReplyTo); !ok {
			return domain.Message{}, domain.NotFound("message %d not found in chat %d", opts.ReplyTo, state.chat.ID)
		}
	}

	msg := c.backend.appendLocked(state, c.backend.self.ID, text, c.backend.now(), opts.ReplyTo)
	state.draft = nil
	return msg, nil
}

func (c *conn) Edit(ctx context.Context, ref domain.ChatRef, messageID int, text string) (domain.Message, error) {
	if err := c.enter(ctx, "edit"); err != nil {
		return domain.Message{}, err
	}
	defer c.leave()

	state, err := c.backend.resolveLocked(ref)
	if err != nil {
		return domain.Message{}, err
	}
	i, ok := state.find(messageID)
	if !ok {
		return domain.Message{}, domain.NotFound("message %d not found in chat %d", messageID, state.chat.ID)
	}
	if state.messages[i].Direction != domain.DirectionOutgoing {
		return domain.Message{}, domain.UpstreamError(nil, "MESSAGE_AUTHOR_REQUIRED")
	}
	state.messages[i].Text = text
	return state.messages[i], nil
}

func (c *conn) Delete(ctx context.Context, ref domain.ChatRef, messageIDs []int, revoke bool) error {
	if err := c.enter(ctx, "delete"); err != nil {
		return err
	}
	defer c.leave()

	state, err := c.backend.resolveLocked(ref)
	if err != nil {
		return err
	}
	for _, id := range messageIDs {
		if i, ok := state.find(id); ok {
			state.messages = append(state.messages[:i], state.messages[i+1:]...)
		}
	}
	return nil
}

func (c *conn) Forward(ctx context.Context, from, to domain.ChatRef, messageIDs []int) ([]domain.Message, error) {
	if err := c.enter(ctx, "forward"); err != nil {
		return nil, err
	}
	defer c.leave()

	src, err := c.backend.resolveLocked(from)
	if err != nil {
		return nil, err
	}
	dst, err := c.backend.resolveLocked(to)
	if err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		i, ok := src.find(id)
		if !ok {
			return nil, domain.NotFound("message %d not found in chat %d", id, src.chat.ID)
		}
		texts = append(texts, src.messages[i].Text)
	}

	forwarded := make([]domain.Message, 0, len(texts))
	now := c.backend.now()
	for _, text := range texts {
		forwarded = append(forwarded, c.backend.appendLocked(dst, c.backend.self.ID, text, now, 0))
	}
	return forwarded, nil
}

func (c *conn) SaveDraft(ctx context.Context, ref domain.ChatRef, text string, replyTo int) (domain.Draft, error) {
	if err := c.enter(ctx, "save_draft"); err != nil {
		return domain.Draft{}, err
	}
	defer c.leave()

	state, err := c.backend.resolveLocked(ref)
	if err != nil {
		return domain.Draft{}, err
	}

	draft := domain.Draft{
		ChatID:  state.chat.ID,
		Text:    text,
		SavedAt: c.backend.now().UTC(),
		ReplyTo: replyTo,
	}
	if text == "" {
		state.draft = nil
	} else {
		state.draft = &draft
	}
	return draft, nil
}

func (c *conn) Draft(ctx context.Context, ref domain.ChatRef) (domain.Draft, bool, error) {
	if err := c.enter(ctx, "draft"); err != nil {
		return domain.Draft{}, false, err
	}
	defer c.leave()

	state, err := c.backend.resolveLocked(ref)
	if err != nil {
		return domain.Draft{}, false, err
	}
	if state.draft == nil {
		return domain.Draft{}, false, nil
	}
	return *state.draft, true, nil
}

func (c *conn) ResolveUsername(ctx context.Context, username string) (domain.Chat, error) {
	if err := c.enter(ctx, "resolve_username"); err != nil {
		return domain.Chat{}, err
	}
	defer c.leave()

	ref := domain.ChatRef{Username: username}
	if state, err := c.backend.resolveLocked(ref); err == nil {
		return c.backend.chatLocked(state), nil
	}
	if user, ok := c.backend.userLocked(ref); ok {
		return domain.Chat{ID: user.ID, Name: user.Name, Kind: domain.ChatKindDirect, Username: user.Username}, nil
	}
	return domain.Chat{}, domain.NotFound("username @%s is not occupied", username)
}

func (c *conn) UserStatus(ctx context.Context, ref domain.ChatRef) (domain.UserStatus, error) {
	if err := c.enter(ctx, "user_status"); err != nil {
		return domain.UserStatus{}, err
	}
	defer c.leave()

	user, ok := c.backend.userLocked(ref)
	if !ok {
		return domain.UserStatus{}, domain.NotFound("user %s not found", ref)
	}
	if status, ok := c.backend.presence[user.ID]; ok {
		return status, nil
	}
	return domain.UserStatus{UserID: user.ID, Status: domain.PresenceUnknown}, nil
}

func (c *conn) AddContact(ctx context.Context, contact domain.NewContact) (domain.Contact, error) {
	if err := c.enter(ctx, "add_contact"); err != nil {
		return domain.Contact{}, err
	}
	defer c.leave()

	account, ok := c.backend.accounts[contact.Phone]
	if !ok {
		for _, existing := range c.backend.contacts {
			if existing.Phone == contact.Phone {
				account, ok = existing, true
				break
			}
		}
	}
	if !ok {
		return domain.Contact{}, domain.NotFound("no account uses phone %s", contact.Phone)
	}

	account.Name = strings.TrimSpace(contact.FirstName + " " + contact.LastName)
	account.Phone = contact.Phone
	c.backend.contacts[account.ID] = account
	delete(c.backend.accounts, contact.Phone)
	return account, nil
}

func (c *conn) DeleteContact(ctx context.Context, ref domain.ChatRef) error {
	if err := c.enter(ctx, "delete_contact"); err != nil {
		return err
	}
	defer c.leave()

	for id, contact := range c.backend.contacts {
		if (ref.ID != 0 && id == ref.ID) || (ref.Username != "" && strings.EqualFold(contact.Username, ref.Username)) {
			delete(c.backend.contacts, id)
			return nil
		}
	}
	return domain.NotFound("user %s is not a contact", ref)
}

func (c *conn) Mute(ctx context.Context, ref domain.ChatRef, until time.Time) error {
	if err := c.enter(ctx, "mute"); err != nil {
		return err
	}
	defer c.leave()

	state, err := c.backend.resolveLocked(ref)
	if err != nil {
		return err
	}
	state.mutedUntil = until
	return nil
}

func (c *conn) Archive(ctx context.Context, ref domain.ChatRef, archived bool) error {
	if err := c.enter(ctx, "archive"); err != nil {
		return err
	}
	defer c.leave()

	state, err := c.backend.resolveLocked(ref)
	if err != nil {
		return err
	}
	state.archived = archived
	return nil
}

func (c *conn) InviteLink(ctx context.Context, ref domain.ChatRef) (string, error) {
	if err := c.enter(ctx, "invite_link"); err != nil {
		return "", err
	}
	defer c.leave()

	state, err := c.backend.resolveLocked(ref)
	if err != nil {
		return "", err
	}
	if state.chat.Kind != domain.ChatKindGroup && state.chat.Kind != domain.ChatKindChannel {
		return "", domain.ValidationError("chat %d has no invite link", state.chat.ID)
	}
	if state.inviteLink == "" {
		state.inviteLink = "https://t.me/+" + strconv.FormatInt(-state.chat.ID, 36)
	}
	return state.inviteLink, nil
}

func (c *conn) Ping(ctx context.Context) error {
	if err := c.enter(ctx, "ping"); err != nil {
		return err
	}
	c.leave()
	return nil
}

func (c *conn) Done() <-chan struct{} { return c.done }

func (c *conn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}
