package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/telegate/internal/domain"
	"github.com/yegors/telegate/internal/gateway"
	"github.com/yegors/telegate/internal/session"
	"github.com/yegors/telegate/internal/storage/sqlite"
	"github.com/yegors/telegate/internal/websocket"
	"github.com/yegors/telegate/pkg/logger"
)

// SessionControl is the operator view of the shared session
type SessionControl interface {
	Snapshot() session.Snapshot
	Connect(ctx context.Context) error
}

// SessionRecords lists the sessions persisted by the upstream, without their
// secrets
type SessionRecords interface {
	Records(ctx context.Context) ([]sqlite.SessionRecord, error)
}

// Handler contains the API handlers
type Handler struct {
	gateway  *gateway.Gateway
	sessions SessionControl
	stored   SessionRecords
	wsServer *websocket.Server
	version  string
	logger   *logger.Logger
}

// NewHandler creates a new API handler. stored may be nil.
func NewHandler(gw *gateway.Gateway, sessions SessionControl, stored SessionRecords, wsServer *websocket.Server, version string, log *logger.Logger) *Handler {
	return &Handler{
		gateway:  gw,
		sessions: sessions,
		stored:   stored,
		wsServer: wsServer,
		version:  version,
		logger:   log.Named("api-handler"),
	}
}

// sessionView is the session snapshot plus what the session store holds
type sessionView struct {
	session.Snapshot
	StoredSessions []sqlite.SessionRecord `json:"stored_sessions,omitempty"`
}

type sendMessageRequest struct {
	ChatID  domain.ChatRef `json:"chat_id"`
	Message string         `json:"message"`
	ReplyTo int            `json:"reply_to"`
}

type searchMessagesRequest struct {
	ChatID    *domain.ChatRef `json:"chat_id"`
	Query     string          `json:"query"`
	PageSize  int             `json:"page_size"`
	Limit     int             `json:"limit"`
	PageToken string          `json:"page_token"`
}

type editMessageRequest struct {
	ChatID    domain.ChatRef `json:"chat_id"`
	MessageID int            `json:"message_id"`
	NewText   string         `json:"new_text"`
}

type deleteMessageRequest struct {
	ChatID     domain.ChatRef `json:"chat_id"`
	MessageID  int            `json:"message_id"`
	MessageIDs []int          `json:"message_ids"`
	Revoke     *bool          `json:"revoke"`
}

type forwardMessageRequest struct {
	FromChatID domain.ChatRef `json:"from_chat_id"`
	ToChatID   domain.ChatRef `json:"to_chat_id"`
	MessageID  int            `json:"message_id"`
	MessageIDs []int          `json:"message_ids"`
}

type addContactRequest struct {
	Phone     string `json:"phone"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type muteChatRequest struct {
	MuteUntil int64 `json:"mute_until"`
}

// saveDraftRequest accepts the draft text as text or message
type saveDraftRequest struct {
	ChatID  domain.ChatRef `json:"chat_id"`
	Text    *string        `json:"text"`
	Message *string        `json:"message"`
	ReplyTo int            `json:"reply_to"`
}

// GetHealth reports liveness and the session state. It never waits for the
// session.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	snapshot := h.sessions.Snapshot()
	status := "ok"
	if snapshot.Status != session.StatusConnected {
		status = "degraded"
	}
	wsClients := 0
	if h.wsServer != nil {
		wsClients = h.wsServer.ClientCount()
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    h.version,
		"timestamp":  time.Now().UTC(),
		"session":    snapshot,
		"ws_clients": wsClients,
	})
}

// GetSession returns the session snapshot and the stored sessions
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	view := sessionView{Snapshot: h.sessions.Snapshot()}
	if h.stored != nil {
		records, err := h.stored.Records(r.Context())
		if err != nil {
			h.logger.Error("Failed to list stored sessions", logger.Error(err))
			WriteError(w, fmt.Errorf("list stored sessions: %w", err))
			return
		}
		view.StoredSessions = records
	}
	WriteData(w, view)
}

// ConnectSession reconnects the session. It is the only way out of an
// auth failure.
func (h *Handler) ConnectSession(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Session connect requested", logger.String("remote_addr", r.RemoteAddr))
	if err := h.sessions.Connect(r.Context()); err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, h.sessions.Snapshot())
}

// GetMe returns the logged-in account
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	me, err := h.gateway.Me(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, me)
}

// ListChats returns one page of chats
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	pageSize, err := queryInt(r, "page_size")
	if err != nil {
		WriteError(w, err)
		return
	}
	unreadOnly, err := queryBool(r, "unread_only")
	if err != nil {
		WriteError(w, err)
		return
	}
	archived, err := queryBool(r, "archived")
	if err != nil {
		WriteError(w, err)
		return
	}

	page, err := h.gateway.ListChats(r.Context(), gateway.ChatsRequest{
		PageSize:   pageSize,
		PageToken:  r.URL.Query().Get("page_token"),
		Kind:       domain.ChatKind(r.URL.Query().Get("kind")),
		UnreadOnly: unreadOnly,
		Archived:   archived,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, page)
}

// GetChat returns a chat by id or @username
func (h *Handler) GetChat(w http.ResponseWriter, r *http.Request) {
	ref, err := chatParam(r, "id")
	if err != nil {
		WriteError(w, err)
		return
	}
	chat, err := h.gateway.GetChat(r.Context(), ref)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, chat)
}

// GetMessages returns one page of a chat's history, newest first
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	ref, err := chatParam(r, "id")
	if err != nil {
		WriteError(w, err)
		return
	}
	pageSize, err := queryInt(r, "page_size")
	if err != nil {
		WriteError(w, err)
		return
	}

	page, err := h.gateway.GetMessages(r.Context(), gateway.MessagesRequest{
		Chat:      ref,
		PageSize:  pageSize,
		PageToken: r.URL.Query().Get("page_token"),
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, page)
}

// ResolveUsername finds the owner of a public username
func (h *Handler) ResolveUsername(w http.ResponseWriter, r *http.Request) {
	chat, err := h.gateway.ResolveUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, chat)
}

// MuteChat silences a chat until mute_until (unix seconds, from the body or
// the query), or for good without one
func (h *Handler) MuteChat(w http.ResponseWriter, r *http.Request) {
	ref, err := chatParam(r, "id")
	if err != nil {
		WriteError(w, err)
		return
	}

	var req muteChatRequest
	if r.ContentLength > 0 {
		if err := decodeBody(w, r, &req); err != nil {
			WriteError(w, err)
			return
		}
	}
	if req.MuteUntil == 0 {
		until, err := queryInt(r, "mute_until")
		if err != nil {
			WriteError(w, err)
			return
		}
		req.MuteUntil = int64(until)
	}

	var until time.Time
	if req.MuteUntil != 0 {
		until = time.Unix(req.MuteUntil, 0)
	}
	chat, err := h.gateway.MuteChat(r.Context(), ref, until)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, chat)
}

// UnmuteChat restores a chat's notifications
func (h *Handler) UnmuteChat(w http.ResponseWriter, r *http.Request) {
	h.updateChat(w, r, h.gateway.UnmuteChat)
}

// ArchiveChat moves a chat into the archive
func (h *Handler) ArchiveChat(w http.ResponseWriter, r *http.Request) {
	h.updateChat(w, r, h.gateway.ArchiveChat)
}

// UnarchiveChat moves a chat back to the main list
func (h *Handler) UnarchiveChat(w http.ResponseWriter, r *http.Request) {
	h.updateChat(w, r, h.gateway.UnarchiveChat)
}

func (h *Handler) updateChat(w http.ResponseWriter, r *http.Request, update func(context.Context, domain.ChatRef) (domain.Chat, error)) {
	ref, err := chatParam(r, "id")
	if err != nil {
		WriteError(w, err)
		return
	}
	chat, err := update(r.Context(), ref)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, chat)
}

// GetInviteLink returns the primary invite link of a group or channel
func (h *Handler) GetInviteLink(w http.ResponseWriter, r *http.Request) {
	ref, err := chatParam(r, "id")
	if err != nil {
		WriteError(w, err)
		return
	}
	link, err := h.gateway.InviteLink(r.Context(), ref)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, map[string]any{"invite_link": link})
}

// GetDraft returns the chat's draft, or null
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	ref, err := chatParam(r, "id")
	if err != nil {
		WriteError(w, err)
		return
	}
	draft, err := h.gateway.GetDraft(r.Context(), ref)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, draft)
}

// SendMessage sends a text message
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	msg, err := h.gateway.SendMessage(r.Context(), req.ChatID, req.Message, req.ReplyTo)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, msg)
}

// SearchMessages searches one chat, or all chats when chat_id is omitted
func (h *Handler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	var req searchMessagesRequest
	if err := decodeBody(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.PageSize == 0 {
		req.PageSize = req.Limit
	}
	if req.ChatID != nil && req.ChatID.IsZero() {
		req.ChatID = nil
	}

	page, err := h.gateway.SearchMessages(r.Context(), gateway.SearchRequest{
		Chat:      req.ChatID,
		Query:     req.Query,
		PageSize:  req.PageSize,
		PageToken: req.PageToken,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, page)
}

// EditMessage replaces the text of an outgoing message
func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	var req editMessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	msg, err := h.gateway.EditMessage(r.Context(), req.ChatID, req.MessageID, req.NewText)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, msg)
}

// DeleteMessage deletes one or more messages, for everyone unless revoke is false
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	var req deleteMessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	revoke := req.Revoke == nil || *req.Revoke
	ids := gateway.MessageIDs(req.MessageID, req.MessageIDs...)

	if err := h.gateway.DeleteMessages(r.Context(), req.ChatID, ids, revoke); err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, map[string]any{"deleted": ids, "revoke": revoke})
}

// ForwardMessage forwards messages between chats
func (h *Handler) ForwardMessage(w http.ResponseWriter, r *http.Request) {
	var req forwardMessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	msgs, err := h.gateway.ForwardMessages(r.Context(), req.FromChatID, req.ToChatID, gateway.MessageIDs(req.MessageID, req.MessageIDs...))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, msgs)
}

// ListContacts returns one page of the address book
func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	pageSize, err := queryInt(r, "page_size")
	if err != nil {
		WriteError(w, err)
		return
	}
	page, err := h.gateway.ListContacts(r.Context(), gateway.ContactsRequest{
		PageSize:  pageSize,
		PageToken: r.URL.Query().Get("page_token"),
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, page)
}

// SearchContacts finds contacts by name or username
func (h *Handler) SearchContacts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		WriteError(w, err)
		return
	}
	contacts, err := h.gateway.SearchContacts(r.Context(), r.URL.Query().Get("query"), limit)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, contacts)
}

// AddContact imports a phone number into the address book
func (h *Handler) AddContact(w http.ResponseWriter, r *http.Request) {
	var req addContactRequest
	if err := decodeBody(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	contact, err := h.gateway.AddContact(r.Context(), domain.NewContact{
		Phone:     req.Phone,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, contact)
}

// DeleteContact removes a user from the address book
func (h *Handler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	ref, err := chatParam(r, "id")
	if err != nil {
		WriteError(w, err)
		return
	}
	if err := h.gateway.DeleteContact(r.Context(), ref); err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, map[string]any{"deleted": true})
}

// GetUserStatus returns a user's presence
func (h *Handler) GetUserStatus(w http.ResponseWriter, r *http.Request) {
	ref, err := chatParam(r, "id")
	if err != nil {
		WriteError(w, err)
		return
	}
	status, err := h.gateway.UserStatus(r.Context(), ref)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, status)
}

// SaveDraft saves or, with empty text, clears a chat's draft
func (h *Handler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	var req saveDraftRequest
	if err := decodeBody(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	var text string
	switch {
	case req.Text != nil:
		text = *req.Text
	case req.Message != nil:
		text = *req.Message
	default:
		WriteError(w, domain.ValidationError("text is required"))
		return
	}

	draft, err := h.gateway.SaveDraft(r.Context(), req.ChatID, text, req.ReplyTo)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, draft)
}

// ClearDraft removes a chat's draft
func (h *Handler) ClearDraft(w http.ResponseWriter, r *http.Request) {
	ref, err := chatParam(r, "chat_id")
	if err != nil {
		WriteError(w, err)
		return
	}
	if err := h.gateway.ClearDraft(r.Context(), ref); err != nil {
		WriteError(w, err)
		return
	}
	WriteData(w, map[string]any{"cleared": true})
}

// HandleWebSocket handles WebSocket connections
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("WebSocket connection request received", logger.String("remote_addr", r.RemoteAddr))
	h.wsServer.HandleConnection(w, r)
}

func chatParam(r *http.Request, name string) (domain.ChatRef, error) {
	return domain.ParseChatRef(chi.URLParam(r, name))
}
