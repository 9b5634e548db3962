package telegram

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	gotd "github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"

	"github.com/yegors/telegate/internal/domain"
	"github.com/yegors/telegate/pkg/logger"
)

const (
	// upstream caps of a single request
	maxDialogBatch  = 100
	maxHistoryBatch = 100
	maxDialogPages  = 50
)

// conn is one running MTProto client. Calls are serialized by the session
// manager; only the peer cache is shared with the update goroutine.
type conn struct {
	dialer *Dialer
	client *gotd.Client
	api    *tg.Client
	self   *tg.User
	peers  *peerCache
	logger *logger.Logger

	ready  chan error
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
}

// signal reports the outcome of startup. Only the first report counts.
func (c *conn) signal(err error) {
	select {
	case c.ready <- err:
	default:
	}
}

func (c *conn) Done() <-chan struct{} { return c.done }

func (c *conn) Close() error {
	c.once.Do(func() {
		c.cancel()
		<-c.done
	})
	return nil
}

func (c *conn) Ping(ctx context.Context) error {
	return classify(c.client.Ping(ctx), "ping")
}

func (c *conn) Self(ctx context.Context) (domain.User, error) {
	self, err := c.client.Self(ctx)
	if err != nil {
		return domain.User{}, classify(err, "get current user")
	}
	return convertUser(self), nil
}

func (c *conn) selfID() int64 {
	if c.self == nil {
		return 0
	}
	return c.self.ID
}

// resolve turns a chat reference into an input peer and its marked id. Peers
// not seen yet are looked up in the dialog list, and usernames with an exact
// username resolution.
func (c *conn) resolve(ctx context.Context, ref domain.ChatRef) (tg.InputPeerClass, int64, error) {
	if id, ok := c.peers.lookup(ref); ok {
		if peer, ok := c.peers.inputPeer(id); ok {
			return peer, id, nil
		}
	}

	if ref.Username != "" {
		if _, err := c.resolveUsername(ctx, ref.Username); err != nil {
			return nil, 0, err
		}
	} else if _, err := c.Chats(ctx); err != nil {
		return nil, 0, err
	}

	if id, ok := c.peers.lookup(ref); ok {
		if peer, ok := c.peers.inputPeer(id); ok {
			return peer, id, nil
		}
	}
	return nil, 0, domain.NotFound("chat %s not found", ref)
}

// resolveUsername asks the service who owns a username and caches the answer
func (c *conn) resolveUsername(ctx context.Context, username string) (int64, error) {
	res, err := c.api.ContactsResolveUsername(ctx, username)
	if err != nil {
		return 0, classify(err, "resolve @%s", username)
	}
	c.peers.apply(res.Users, res.Chats)
	return peerChatID(res.Peer), nil
}

func (c *conn) ResolveUsername(ctx context.Context, username string) (domain.Chat, error) {
	chatID, err := c.resolveUsername(ctx, username)
	if err != nil {
		return domain.Chat{}, err
	}
	chat, ok := c.peers.chat(chatID)
	if !ok {
		return domain.Chat{}, domain.NotFound("username @%s is not occupied", username)
	}
	return chat, nil
}

// resolveUser resolves a reference that must name a user
func (c *conn) resolveUser(ctx context.Context, ref domain.ChatRef) (tg.InputUserClass, int64, error) {
	_, chatID, err := c.resolve(ctx, ref)
	if err != nil {
		return nil, 0, err
	}
	kind, id := unmark(chatID)
	if kind != peerUser {
		return nil, 0, domain.ValidationError("%s is not a user", ref)
	}
	input, ok := c.peers.inputUser(id)
	if !ok {
		return nil, 0, domain.NotFound("user %s not found", ref)
	}
	return input, id, nil
}

func (c *conn) UserStatus(ctx context.Context, ref domain.ChatRef) (domain.UserStatus, error) {
	input, userID, err := c.resolveUser(ctx, ref)
	if err != nil {
		return domain.UserStatus{}, err
	}
	users, err := c.api.UsersGetUsers(ctx, []tg.InputUserClass{input})
	if err != nil {
		return domain.UserStatus{}, classify(err, "get user %d", userID)
	}
	c.peers.apply(users, nil)

	for _, u := range users {
		if user, ok := u.(*tg.User); ok && user.ID == userID {
			return convertStatus(user), nil
		}
	}
	return domain.UserStatus{}, domain.NotFound("user %d not found", userID)
}

func (c *conn) AddContact(ctx context.Context, contact domain.NewContact) (domain.Contact, error) {
	res, err := c.api.ContactsImportContacts(ctx, []tg.InputPhoneContact{{
		ClientID:  randomID(),
		Phone:     contact.Phone,
		FirstName: contact.FirstName,
		LastName:  contact.LastName,
	}})
	if err != nil {
		return domain.Contact{}, classify(err, "import contact")
	}
	c.peers.apply(res.Users, nil)

	for _, imported := range res.Imported {
		if user, ok := c.peers.user(imported.UserID); ok {
			return contactFromUser(user), nil
		}
	}
	return domain.Contact{}, domain.NotFound("no account uses phone %s", contact.Phone)
}

func (c *conn) DeleteContact(ctx context.Context, ref domain.ChatRef) error {
	input, userID, err := c.resolveUser(ctx, ref)
	if err != nil {
		return err
	}
	res, err := c.api.ContactsDeleteContacts(ctx, []tg.InputUserClass{input})
	if err != nil {
		return classify(err, "delete contact %d", userID)
	}
	users, chats := updatesEntities(res)
	c.peers.apply(users, chats)
	return nil
}

func (c *conn) Mute(ctx context.Context, ref domain.ChatRef, until time.Time) error {
	peer, chatID, err := c.resolve(ctx, ref)
	if err != nil {
		return err
	}

	muteUntil := 0
	if !until.IsZero() {
		muteUntil = int(until.Unix())
		if until.After(domain.MuteForever) {
			muteUntil = int(domain.MuteForever.Unix())
		}
	}
	var settings tg.InputPeerNotifySettings
	settings.SetMuteUntil(muteUntil)

	_, err = c.api.AccountUpdateNotifySettings(ctx, &tg.AccountUpdateNotifySettingsRequest{
		Peer:     &tg.InputNotifyPeer{Peer: peer},
		Settings: settings,
	})
	return classify(err, "update notifications of %d", chatID)
}

// archiveFolder is the folder id Telegram reserves for archived chats
const archiveFolder = 1

func (c *conn) Archive(ctx context.Context, ref domain.ChatRef, archived bool) error {
	peer, chatID, err := c.resolve(ctx, ref)
	if err != nil {
		return err
	}
	folder := 0
	if archived {
		folder = archiveFolder
	}
	res, err := c.api.FoldersEditPeerFolders(ctx, []tg.InputFolderPeer{{Peer: peer, FolderID: folder}})
	if err != nil {
		return classify(err, "move %d to folder %d", chatID, folder)
	}
	users, chats := updatesEntities(res)
	c.peers.apply(users, chats)
	return nil
}

func (c *conn) InviteLink(ctx context.Context, ref domain.ChatRef) (string, error) {
	peer, chatID, err := c.resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	if kind, _ := unmark(chatID); kind == peerUser {
		return "", domain.ValidationError("chat %d has no invite link", chatID)
	}
	res, err := c.api.MessagesExportChatInvite(ctx, &tg.MessagesExportChatInviteRequest{Peer: peer})
	if err != nil {
		return "", classify(err, "export invite link of %d", chatID)
	}
	invite, ok := res.(*tg.ChatInviteExported)
	if !ok {
		return "", domain.UpstreamError(nil, "telegram: unexpected invite result %T", res)
	}
	return invite.Link, nil
}

// dialogPage is the common shape of messages.dialogs and messages.peerDialogs
type dialogPage struct {
	dialogs  []tg.DialogClass
	messages []tg.MessageClass
}

func (c *conn) Chats(ctx context.Context) ([]domain.Chat, error) {
	var (
		chats      []domain.Chat
		seen       = make(map[int64]bool)
		offsetDate int
		offsetID   int
		offsetPeer tg.InputPeerClass = &tg.InputPeerEmpty{}
	)

	for page := 0; page < maxDialogPages; page++ {
		res, err := c.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
			OffsetDate: offsetDate,
			OffsetID:   offsetID,
			OffsetPeer: offsetPeer,
			Limit:      maxDialogBatch,
		})
		if err != nil {
			return nil, classify(err, "list dialogs")
		}

		var batch dialogPage
		complete := false
		switch r := res.(type) {
		case *tg.MessagesDialogs:
			c.peers.apply(r.Users, r.Chats)
			batch = dialogPage{dialogs: r.Dialogs, messages: r.Messages}
			complete = true
		case *tg.MessagesDialogsSlice:
			c.peers.apply(r.Users, r.Chats)
			batch = dialogPage{dialogs: r.Dialogs, messages: r.Messages}
			complete = len(r.Dialogs) < maxDialogBatch
		default:
			complete = true
		}

		added := 0
		for _, chat := range c.dialogChats(batch) {
			if !seen[chat.ID] {
				seen[chat.ID] = true
				chats = append(chats, chat)
				added++
			}
		}
		if complete || added == 0 {
			return chats, nil
		}

		last, ok := lastDialogOffset(batch)
		if !ok {
			return chats, nil
		}
		peer, ok := c.peers.inputPeer(last.chatID)
		if !ok {
			return chats, nil
		}
		offsetDate, offsetID, offsetPeer = last.date, last.messageID, peer
	}

	c.logger.Warn("Dialog listing truncated", logger.Int("chats", len(chats)))
	return chats, nil
}

type dialogOffset struct {
	chatID    int64
	messageID int
	date      int
}

func lastDialogOffset(batch dialogPage) (dialogOffset, bool) {
	for i := len(batch.dialogs) - 1; i >= 0; i-- {
		dialog, ok := batch.dialogs[i].(*tg.Dialog)
		if !ok {
			continue
		}
		chatID := peerChatID(dialog.Peer)
		for _, m := range batch.messages {
			if m.GetID() == dialog.TopMessage && messagePeer(m) == chatID {
				return dialogOffset{chatID: chatID, messageID: dialog.TopMessage, date: messageDate(m)}, true
			}
		}
	}
	return dialogOffset{}, false
}

// dialogChats converts dialogs to chats, taking activity from the top message
func (c *conn) dialogChats(batch dialogPage) []domain.Chat {
	type key struct {
		chatID    int64
		messageID int
	}
	dates := make(map[key]int, len(batch.messages))
	for _, m := range batch.messages {
		dates[key{messagePeer(m), m.GetID()}] = messageDate(m)
	}

	chats := make([]domain.Chat, 0, len(batch.dialogs))
	for _, d := range batch.dialogs {
		dialog, ok := d.(*tg.Dialog)
		if !ok {
			continue
		}
		chatID := peerChatID(dialog.Peer)
		chat, ok := c.peers.chat(chatID)
		if !ok {
			continue
		}
		chat.UnreadCount = dialog.UnreadCount
		chat.LastActivity = unixTime(dates[key{chatID, dialog.TopMessage}])
		chat.Archived = dialog.FolderID == archiveFolder
		chat.Muted = dialog.NotifySettings.MuteUntil > int(time.Now().Unix())
		chats = append(chats, chat)
	}
	return chats
}

func messagePeer(m tg.MessageClass) int64 {
	switch msg := m.(type) {
	case *tg.Message:
		return peerChatID(msg.PeerID)
	case *tg.MessageService:
		return peerChatID(msg.PeerID)
	}
	return 0
}

func messageDate(m tg.MessageClass) int {
	switch msg := m.(type) {
	case *tg.Message:
		return msg.Date
	case *tg.MessageService:
		return msg.Date
	}
	return 0
}

// peerDialog fetches the dialog of a single peer
func (c *conn) peerDialog(ctx context.Context, peer tg.InputPeerClass, chatID int64) (*tg.Dialog, dialogPage, error) {
	res, err := c.api.MessagesGetPeerDialogs(ctx, []tg.InputDialogPeerClass{&tg.InputDialogPeer{Peer: peer}})
	if err != nil {
		return nil, dialogPage{}, classify(err, "get chat %d", chatID)
	}
	c.peers.apply(res.Users, res.Chats)

	batch := dialogPage{dialogs: res.Dialogs, messages: res.Messages}
	for _, d := range res.Dialogs {
		if dialog, ok := d.(*tg.Dialog); ok && peerChatID(dialog.Peer) == chatID {
			return dialog, batch, nil
		}
	}
	return nil, batch, domain.NotFound("chat %d not found", chatID)
}

func (c *conn) Chat(ctx context.Context, ref domain.ChatRef) (domain.Chat, error) {
	peer, chatID, err := c.resolve(ctx, ref)
	if err != nil {
		return domain.Chat{}, err
	}
	_, batch, err := c.peerDialog(ctx, peer, chatID)
	if err != nil {
		return domain.Chat{}, err
	}
	chats := c.dialogChats(batch)
	if len(chats) == 0 {
		return domain.Chat{}, domain.NotFound("chat %s not found", ref)
	}
	return chats[0], nil
}

func (c *conn) History(ctx context.Context, ref domain.ChatRef, before int, limit int) ([]domain.Message, error) {
	peer, chatID, err := c.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	var out []domain.Message
	offsetID := before
	for len(out) < limit {
		batchSize := limit - len(out)
		if batchSize > maxHistoryBatch {
			batchSize = maxHistoryBatch
		}
		res, err := c.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:     peer,
			OffsetID: offsetID,
			Limit:    batchSize,
		})
		if err != nil {
			return nil, classify(err, "get history of %d", chatID)
		}
		batch := unpackMessages(res)
		c.peers.apply(batch.users, batch.chats)
		raw := batch.messages
		if len(raw) == 0 {
			break
		}

		out = append(out, convertMessages(raw, c.selfID())...)
		offsetID = raw[len(raw)-1].GetID()
		if len(raw) < batchSize {
			break
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *conn) Search(ctx context.Context, query domain.SearchQuery) (domain.SearchPage, error) {
	if query.Chat != nil {
		return c.searchChat(ctx, *query.Chat, query)
	}
	return c.searchGlobal(ctx, query)
}

func (c *conn) searchChat(ctx context.Context, ref domain.ChatRef, query domain.SearchQuery) (domain.SearchPage, error) {
	peer, chatID, err := c.resolve(ctx, ref)
	if err != nil {
		return domain.SearchPage{}, err
	}

	var offsetID, seen int
	if query.Cursor != "" {
		if offsetID, seen, err = parseChatCursor(query.Cursor); err != nil {
			return domain.SearchPage{}, err
		}
	}

	res, err := c.api.MessagesSearch(ctx, &tg.MessagesSearchRequest{
		Peer:     peer,
		Q:        query.Query,
		Filter:   &tg.InputMessagesFilterEmpty{},
		OffsetID: offsetID,
		Limit:    query.Limit,
	})
	if err != nil {
		return domain.SearchPage{}, classify(err, "search chat %d", chatID)
	}
	batch := unpackMessages(res)
	c.peers.apply(batch.users, batch.chats)

	page := domain.SearchPage{Messages: convertMessages(batch.messages, c.selfID())}
	seen += len(batch.messages)
	if batch.more(seen) {
		last := batch.messages[len(batch.messages)-1]
		page.Next = formatChatCursor(last.GetID(), seen)
	}
	return page, nil
}

// global search continues from (rate, peer, message id) of the last result
func (c *conn) searchGlobal(ctx context.Context, query domain.SearchQuery) (domain.SearchPage, error) {
	var (
		cursor     globalCursor
		offsetPeer tg.InputPeerClass = &tg.InputPeerEmpty{}
	)
	if query.Cursor != "" {
		var err error
		if cursor, err = parseGlobalCursor(query.Cursor); err != nil {
			return domain.SearchPage{}, err
		}
		if peer, ok := c.peers.inputPeer(cursor.chatID); ok {
			offsetPeer = peer
		}
	}

	res, err := c.api.MessagesSearchGlobal(ctx, &tg.MessagesSearchGlobalRequest{
		Q:          query.Query,
		Filter:     &tg.InputMessagesFilterEmpty{},
		OffsetRate: cursor.rate,
		OffsetPeer: offsetPeer,
		OffsetID:   cursor.messageID,
		Limit:      query.Limit,
	})
	if err != nil {
		return domain.SearchPage{}, classify(err, "search messages")
	}
	batch := unpackMessages(res)
	c.peers.apply(batch.users, batch.chats)

	page := domain.SearchPage{Messages: convertMessages(batch.messages, c.selfID())}
	seen := cursor.seen + len(batch.messages)
	if batch.more(seen) {
		last := batch.messages[len(batch.messages)-1]
		rate := batch.nextRate
		if rate == 0 {
			rate = messageDate(last)
		}
		page.Next = globalCursor{rate: rate, chatID: messagePeer(last), messageID: last.GetID(), seen: seen}.String()
	}
	return page, nil
}

// chat search cursors carry the last message id and the matches returned so
// far
func formatChatCursor(offsetID, seen int) string {
	return fmt.Sprintf("%d:%d", offsetID, seen)
}

func parseChatCursor(cursor string) (offsetID, seen int, err error) {
	parts := strings.Split(cursor, ":")
	if len(parts) != 2 {
		return 0, 0, domain.InvalidPageToken("page_token is corrupt")
	}
	offsetID, err1 := strconv.Atoi(parts[0])
	seen, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, domain.InvalidPageToken("page_token is corrupt")
	}
	return offsetID, seen, nil
}

type globalCursor struct {
	rate      int
	chatID    int64
	messageID int
	seen      int
}

func (c globalCursor) String() string {
	return fmt.Sprintf("%d:%d:%d:%d", c.rate, c.chatID, c.messageID, c.seen)
}

func parseGlobalCursor(cursor string) (globalCursor, error) {
	parts := strings.Split(cursor, ":")
	if len(parts) != 4 {
		return globalCursor{}, domain.InvalidPageToken("page_token is corrupt")
	}
	rate, err1 := strconv.Atoi(parts[0])
	chatID, err2 := strconv.ParseInt(parts[1], 10, 64)
	messageID, err3 := strconv.Atoi(parts[2])
	seen, err4 := strconv.Atoi(parts[3])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return globalCursor{}, domain.InvalidPageToken("page_token is corrupt")
	}
	return globalCursor{rate: rate, chatID: chatID, messageID: messageID, seen: seen}, nil
}

func (c *conn) Contacts(ctx context.Context) ([]domain.Contact, error) {
	res, err := c.api.ContactsGetContacts(ctx, 0)
	if err != nil {
		return nil, classify(err, "list contacts")
	}
	list, ok := res.(*tg.ContactsContacts)
	if !ok {
		return nil, domain.UpstreamError(nil, "telegram: unexpected contacts result %T", res)
	}
	c.peers.apply(list.Users, nil)

	contacts := make([]domain.Contact, 0, len(list.Users))
	for _, u := range list.Users {
		if user, ok := u.(*tg.User); ok {
			contacts = append(contacts, contactFromUser(user))
		}
	}
	return contacts, nil
}

func (c *conn) SearchContacts(ctx context.Context, query string, limit int) ([]domain.Contact, error) {
	found, err := c.api.ContactsSearch(ctx, &tg.ContactsSearchRequest{Q: query, Limit: limit})
	if err != nil {
		return nil, classify(err, "search contacts")
	}
	c.peers.apply(found.Users, found.Chats)

	var contacts []domain.Contact
	seen := make(map[int64]bool)
	for _, peer := range append(found.MyResults, found.Results...) {
		userPeer, ok := peer.(*tg.PeerUser)
		if !ok || seen[userPeer.UserID] {
			continue
		}
		if user, ok := c.peers.user(userPeer.UserID); ok {
			seen[user.ID] = true
			contacts = append(contacts, contactFromUser(user))
		}
	}
	return contacts, nil
}

func (c *conn) Send(ctx context.Context, ref domain.ChatRef, text string, opts domain.SendOptions) (domain.Message, error) {
	peer, chatID, err := c.resolve(ctx, ref)
	if err != nil {
		return domain.Message{}, err
	}

	req := &tg.MessagesSendMessageRequest{
		Peer:     peer,
		Message:  text,
		RandomID: randomID(),
	}
	if opts.ReplyTo > 0 {
		req.ReplyTo = &tg.InputReplyToMessage{ReplyToMsgID: opts.ReplyTo}
	}

	res, err := c.api.MessagesSendMessage(ctx, req)
	if err != nil {
		return domain.Message{}, classify(err, "send message to %d", chatID)
	}

	if short, ok := res.(*tg.UpdateShortSentMessage); ok {
		return domain.Message{
			ID:        short.ID,
			ChatID:    chatID,
			SenderID:  c.selfID(),
			Text:      text,
			Date:      unixTime(short.Date),
			Direction: domain.DirectionOutgoing,
			ReplyTo:   opts.ReplyTo,
		}, nil
	}

	created := c.updatedMessages(res)
	if len(created) == 0 {
		return domain.Message{}, domain.UpstreamError(nil, "telegram: send result carried no message")
	}
	return created[0], nil
}

func (c *conn) updatedMessages(res tg.UpdatesClass) []domain.Message {
	users, chats := updatesEntities(res)
	c.peers.apply(users, chats)
	return convertMessages(newMessages(res), c.selfID())
}

func (c *conn) Edit(ctx context.Context, ref domain.ChatRef, messageID int, text string) (domain.Message, error) {
	peer, chatID, err := c.resolve(ctx, ref)
	if err != nil {
		return domain.Message{}, err
	}

	res, err := c.api.MessagesEditMessage(ctx, &tg.MessagesEditMessageRequest{
		Peer:    peer,
		ID:      messageID,
		Message: text,
	})
	if err != nil {
		return domain.Message{}, classify(err, "edit message %d in %d", messageID, chatID)
	}

	edited := c.updatedMessages(res)
	if len(edited) == 0 {
		return domain.Message{ID: messageID, ChatID: chatID, Text: text, Direction: domain.DirectionOutgoing, SenderID: c.selfID()}, nil
	}
	return edited[0], nil
}

func (c *conn) Delete(ctx context.Context, ref domain.ChatRef, messageIDs []int, revoke bool) error {
	_, chatID, err := c.resolve(ctx, ref)
	if err != nil {
		return err
	}

	if channel, ok := c.peers.inputChannel(chatID); ok {
		_, err = c.api.ChannelsDeleteMessages(ctx, &tg.ChannelsDeleteMessagesRequest{
			Channel: channel,
			ID:      messageIDs,
		})
	} else {
		_, err = c.api.MessagesDeleteMessages(ctx, &tg.MessagesDeleteMessagesRequest{
			Revoke: revoke,
			ID:     messageIDs,
		})
	}
	return classify(err, "delete messages in %d", chatID)
}

func (c *conn) Forward(ctx context.Context, from, to domain.ChatRef, messageIDs []int) ([]domain.Message, error) {
	fromPeer, fromID, err := c.resolve(ctx, from)
	if err != nil {
		return nil, err
	}
	toPeer, toID, err := c.resolve(ctx, to)
	if err != nil {
		return nil, err
	}

	randomIDs := make([]int64, len(messageIDs))
	for i := range randomIDs {
		randomIDs[i] = randomID()
	}

	res, err := c.api.MessagesForwardMessages(ctx, &tg.MessagesForwardMessagesRequest{
		FromPeer: fromPeer,
		ID:       messageIDs,
		RandomID: randomIDs,
		ToPeer:   toPeer,
	})
	if err != nil {
		return nil, classify(err, "forward messages from %d to %d", fromID, toID)
	}
	return c.updatedMessages(res), nil
}

func (c *conn) SaveDraft(ctx context.Context, ref domain.ChatRef, text string, replyTo int) (domain.Draft, error) {
	peer, chatID, err := c.resolve(ctx, ref)
	if err != nil {
		return domain.Draft{}, err
	}

	req := &tg.MessagesSaveDraftRequest{Peer: peer, Message: text}
	if replyTo > 0 && text != "" {
		req.ReplyTo = &tg.InputReplyToMessage{ReplyToMsgID: replyTo}
	}
	if _, err := c.api.MessagesSaveDraft(ctx, req); err != nil {
		return domain.Draft{}, classify(err, "save draft in %d", chatID)
	}

	return domain.Draft{
		ChatID:  chatID,
		Text:    text,
		SavedAt: time.Now().UTC().Truncate(time.Second),
		ReplyTo: replyTo,
	}, nil
}

func (c *conn) Draft(ctx context.Context, ref domain.ChatRef) (domain.Draft, bool, error) {
	peer, chatID, err := c.resolve(ctx, ref)
	if err != nil {
		return domain.Draft{}, false, err
	}
	dialog, _, err := c.peerDialog(ctx, peer, chatID)
	if err != nil {
		return domain.Draft{}, false, err
	}

	draft, ok := dialog.Draft.(*tg.DraftMessage)
	if !ok || draft.Message == "" {
		return domain.Draft{}, false, nil
	}
	out := domain.Draft{
		ChatID:  chatID,
		Text:    draft.Message,
		SavedAt: unixTime(draft.Date),
	}
	if reply, ok := draft.ReplyTo.(*tg.InputReplyToMessage); ok {
		out.ReplyTo = reply.ReplyToMsgID
	}
	return out, true, nil
}

func randomID() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(buf[:]))
}
