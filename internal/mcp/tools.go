package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/yegors/telegate/internal/domain"
	"github.com/yegors/telegate/internal/gateway"
)

type tool struct {
	def  *sdk.Tool
	call func(ctx context.Context, arguments json.RawMessage) (any, error)
}

type chatArgs struct {
	ChatID domain.ChatRef `json:"chat_id"`
}

type pageArgs struct {
	PageSize  int    `json:"page_size"`
	PageToken string `json:"page_token"`
}

type listChatsArgs struct {
	pageArgs
	Kind       domain.ChatKind `json:"kind"`
	UnreadOnly bool            `json:"unread_only"`
	Archived   bool            `json:"archived"`
}

type getMessagesArgs struct {
	pageArgs
	ChatID domain.ChatRef `json:"chat_id"`
}

type sendMessageArgs struct {
	ChatID  domain.ChatRef `json:"chat_id"`
	Message string         `json:"message"`
	ReplyTo int            `json:"reply_to"`
}

type searchMessagesArgs struct {
	pageArgs
	ChatID *domain.ChatRef `json:"chat_id"`
	Query  string          `json:"query"`
}

type searchContactsArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type saveDraftArgs struct {
	ChatID  domain.ChatRef `json:"chat_id"`
	Message string         `json:"message"`
	ReplyTo int            `json:"reply_to"`
}

type editMessageArgs struct {
	ChatID    domain.ChatRef `json:"chat_id"`
	MessageID int            `json:"message_id"`
	NewText   string         `json:"new_text"`
}

type deleteMessageArgs struct {
	ChatID     domain.ChatRef `json:"chat_id"`
	MessageID  int            `json:"message_id"`
	MessageIDs []int          `json:"message_ids"`
	Revoke     *bool          `json:"revoke"`
}

type forwardMessageArgs struct {
	FromChatID domain.ChatRef `json:"from_chat_id"`
	ToChatID   domain.ChatRef `json:"to_chat_id"`
	MessageID  int            `json:"message_id"`
	MessageIDs []int          `json:"message_ids"`
}

type userArgs struct {
	UserID domain.ChatRef `json:"user_id"`
}

type resolveArgs struct {
	Username string `json:"username"`
}

type addContactArgs struct {
	Phone     string `json:"phone"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type muteArgs struct {
	ChatID    domain.ChatRef `json:"chat_id"`
	MuteUntil int64          `json:"mute_until"`
}

type noArgs struct{}

func (s *Server) buildTools() []tool {
	gw := s.gateway
	readOnly := &sdk.ToolAnnotations{ReadOnlyHint: true, DestructiveHint: boolPtr(false), IdempotentHint: true, OpenWorldHint: boolPtr(true)}
	write := &sdk.ToolAnnotations{DestructiveHint: boolPtr(false), OpenWorldHint: boolPtr(true)}
	idempotentWrite := &sdk.ToolAnnotations{DestructiveHint: boolPtr(false), IdempotentHint: true, OpenWorldHint: boolPtr(true)}
	destructive := &sdk.ToolAnnotations{DestructiveHint: boolPtr(true), IdempotentHint: true, OpenWorldHint: boolPtr(true)}

	return []tool{
		{
			def: &sdk.Tool{
				Name:        "list_chats",
				Title:       "List chats",
				Description: "List chats ordered by most recent activity. Pass next_page_token back as page_token to continue.",
				InputSchema: object(map[string]*jsonschema.Schema{
					"page_size":   integer("Chats per page (default 20, max 100)"),
					"page_token":  str("Token from a previous list_chats call"),
					"kind":        enum("Only chats of this kind", "direct", "group", "channel", "bot"),
					"unread_only": boolean("Only chats with unread messages"),
					"archived":    boolean("List the archive folder instead of the main list"),
				}),
				Annotations: readOnly,
			},
			call: bind(func(ctx context.Context, args listChatsArgs) (any, error) {
				return gw.ListChats(ctx, gateway.ChatsRequest{
					PageSize:   args.PageSize,
					PageToken:  args.PageToken,
					Kind:       args.Kind,
					UnreadOnly: args.UnreadOnly,
					Archived:   args.Archived,
				})
			}),
		},
		{
			def: &sdk.Tool{
				Name:        "get_chat",
				Title:       "Get chat",
				Description: "Get one chat by id or @username.",
				InputSchema: object(map[string]*jsonschema.Schema{"chat_id": chatID("Chat id or @username")}, "chat_id"),
				Annotations: readOnly,
			},
			call: bind(func(ctx context.Context, args chatArgs) (any, error) {
				return gw.GetChat(ctx, args.ChatID)
			}),
		},
		{
			def: &sdk.Tool{
				Name:        "get_messages",
				Title:       "Get messages",
				Description: "Get a chat's messages, newest first.",
				InputSchema: object(map[string]*jsonschema.Schema{
					"chat_id":    chatID("Chat id or @username"),
					"page_size":  integer("Messages per page (default 20, max 100)"),
					"page_token": str("Token from a previous get_messages call for the same chat"),
				}, "chat_id"),
				Annotations: readOnly,
			},
			call: bind(func(ctx context.Context, args getMessagesArgs) (any, error) {
				return gw.GetMessages(ctx, gateway.MessagesRequest{
					Chat:      args.ChatID,
					PageSize:  args.PageSize,
					PageToken: args.PageToken,
				})
			}),
		},
		{
			def: &sdk.Tool{
				Name:        "send_message",
				Title:       "Send message",
				Description: "Send a text message. Not idempotent: retrying after a connection error may send twice.",
				InputSchema: object(map[string]*jsonschema.Schema{
					"chat_id":  chatID("Chat id or @username"),
					"message":  str("Message text"),
					"reply_to": integer("Id of the message to reply to"),
				}, "chat_id", "message"),
				Annotations: write,
			},
			call: bind(func(ctx context.Context, args sendMessageArgs) (any, error) {
				return gw.SendMessage(ctx, args.ChatID, args.Message, args.ReplyTo)
			}),
		},
		{
			def: &sdk.Tool{
				Name:        "search_messages",
				Title:       "Search messages",
				Description: "Search message text in one chat, or in every chat when chat_id is omitted.",
				InputSchema: object(map[string]*jsonschema.Schema{
					"chat_id":    chatID("Chat id or @username; omit for a global search"),
					"query":      str("Text to search for"),
					"page_size":  integer("Results per page (default 20, max 100)"),
					"page_token": str("Token from a previous search_messages call with the same query"),
				}, "query"),
				Annotations: readOnly,
			},
			call: bind(func(ctx context.Context, args searchMessagesArgs) (any, error) {
				return gw.SearchMessages(ctx, gateway.SearchRequest{
					Chat:      args.ChatID,
					Query:     args.Query,
					PageSize:  args.PageSize,
					PageToken: args.PageToken,
				})
			}),
		},
		{
			def: &sdk.Tool{
				Name:        "list_contacts",
				Title:       "List contacts",
				Description: "List the address book ordered by name.",
				InputSchema: object(map[string]*jsonschema.Schema{
					"page_size":  integer("Contacts per page (default 20, max 100)"),
					"page_token": str("Token from a previous list_contacts call"),
				}),
				Annotations: readOnly,
			},
			call: bind(func(ctx context.Context, args pageArgs) (any, error) {
				return gw.ListContacts(ctx, gateway.ContactsRequest{PageSize: args.PageSize, PageToken: args.PageToken})
			}),
		},
		{
			def: &sdk.Tool{
				Name:        "search_contacts",
				Title:       "Search contacts",
				Description: "Find contacts and known users by name or username.",
				InputSchema: object(map[string]*jsonschema.Schema{
					"query": str("Name or username fragment"),
					"limit": integer("Maximum results (default 20, max 100)"),
				}, "query"),
				Annotations: readOnly,
			},
			call: bind(func(ctx context.Context, args searchContactsArgs) (any, error) {
				contacts, err := gw.SearchContacts(ctx, args.Query, args.Limit)
				if err != nil {
					return nil, err
				}
				return map[string]any{"contacts": contacts}, nil
			}),
		},
		{
			def: &sdk.Tool{
				Name:        "save_draft",
				Title:       "Save draft",
				Description: "Save the draft of a chat, replacing any existing one. Empty text clears it.",
				InputSchema: object(map[string]*jsonschema.Schema{
					"chat_id":  chatID("Chat id or @username"),
					"message":  str("Draft text"),
					"reply_to": integer("Id of the message the draft replies to"),
				}, "chat_id", "message"),
				Annotations: idempotentWrite,
			},
			call: bind(func(ctx context.Context, args saveDraftArgs) (any, error) {
				return gw.SaveDraft(ctx, args.ChatID, args.Message, args.ReplyTo)
			}),
		},
		{
			def: &sdk.Tool{
				Name:        "get_draft",
				Title:       "Get draft",
				Description: "Get the draft of a chat. draft is null when there is none.",
				InputSchema: object(map[string]*jsonschema.Schema{"chat_id": chatID("Chat id or @username")}, "chat_id"),
				Annotations: readOnly,
			},
			call: bind(func(ctx context.Context, args chatArgs) (any, error) {
				draft, err := gw.GetDraft(ctx, args.ChatID)
				if err != nil {
					return nil, err
				}
				return map[string]any{"draft": draft}, nil
			}),
		},
		{
			def: &sdk.Tool{
				Name:        "clear_draft",
				Title:       "Clear draft",
				Description: "Remove the draft of a chat.",
				InputSchema: object(map[string]*jsonschema.Schema{"chat_id": chatID("Chat id or @username")}, "chat_id"),
				Annotations: destructive,
			},
			call: bind(func(ctx context.Context, args chatArgs) (any, error) {
				if err := gw.ClearDraft(ctx, args.ChatID); err != nil {
					return nil, err
				}
				return map[string]any{"cleared": true}, nil
			}),
		},
		{
			def: &sdk.Tool{
				Name:        "edit_message",
				Title:       "Edit message",
				Description: "Replace the text of a message you sent.",
				InputSchema: object(map[string]*jsonschema.Schema{
					"chat_id":    chatID("Chat id or @username"),
					"message_id": integer("Id of the message to edit"),
					"new_text":   str("Replacement text"),
				}, "chat_id", "message_id", "new_text"),
				Annotations: idempotentWrite,
			},
			call: bind(func(ctx context.Context, args editMessageArgs) (any, error) {
				return gw.EditMessage(ctx, args.ChatID, args.MessageID, args.NewText)
			}),
		},
		{
			def: &sdk.Tool{
				Name:        "delete_message",
				Title:       "Delete message",
				Description: "Delete messages. revoke (default true) deletes them for every participant.",
				InputSchema: object(map[string]*jsonschema.Schema{
					"chat_id":     chatID("Chat id or @username"),
					"message_id":  integer("Id of the message to delete"),
					"message_ids": integers("Ids of several messages to delete"),
					"revoke":      boolean("Delete for everyone (default true)"),
				}, "chat_id"),
				Annotations: destructive,
			},
			call: bind(func(ctx context.Context, args deleteMessageArgs) (any, error) {
				revoke := args.Revoke == nil || *args.Revoke
				ids := gateway.MessageIDs(args.MessageID, args.MessageIDs...)
				if err := gw.DeleteMessages(ctx, args.ChatID, ids, revoke); err != nil {
					return nil, err
				}
				return map[string]any{"deleted": ids, "revoke": revoke}, nil
			}),
		},
		{
			def: &sdk.Tool{
				Name:        "forward_message",
				Title:       "Forward message",
				Description: "Forward messages from one chat to another.",
				InputSchema: object(map[string]*jsonschema.Schema{
					"from_chat_id": chatID("Source chat id or @username"),
					"to_chat_id":   chatID("Destination chat id or @username"),
					"message_id":   integer("Id of the message to forward"),
					"message_ids":  integers("Ids of several messages to forward"),
				}, "from_chat_id", "to_chat_id"),
				Annotations: write,
			},
			call: bind(func(ctx context.Context, args forwardMessageArgs) (any, error) {
				msgs, err := gw.ForwardMessages(ctx, args.FromChatID, args.ToChatID, gateway.MessageIDs(args.MessageID, args.MessageIDs...))
				if err != nil {
					return nil, err
				}
				return map[string]any{"messages": msgs}, nil
			}),
		},
		{
			def: &sdk.Tool{
				Name:        "get_me",
				Title:       "Current account",
				Description: "Get the account this gateway is logged in as.",
				InputSchema: object(nil),
				Annotations: readOnly,
			},
			call: bind(func(ctx context.Context, _ noArgs) (any, error) {
				return gw.Me(ctx)
			}),
		},
		{
			def: &sdk.Tool{
				Name:        "resolve_username",
				Title:       "Resolve username",
				Description: "Find the user, group or channel that owns a public username.",
				InputSchema: object(map[string]*jsonschema.Schema{"username": str("Username, with or without the leading @")}, "username"),
				Annotations: readOnly,
			},
			call: bind(func(ctx context.Context, args resolveArgs) (any, error) {
				return gw.ResolveUsername(ctx, args.Username)
			}),
		},
		{
			def: &sdk.Tool{
				Name:        "get_user_status",
				Title:       "User status",
				Description: "Get whether a user is online, or when they were last seen as far as their privacy settings disclose.",
				InputSchema: object(map[string]*jsonschema.Schema{"user_id": chatID("User id or @username")}, "user_id"),
				Annotations: readOnly,
			},
			call: bind(func(ctx context.Context, args userArgs) (any, error) {
				return gw.UserStatus(ctx, args.UserID)
			}),
		},
		{
			def: &sdk.Tool{
				Name:        "add_contact",
				Title:       "Add contact",
				Description: "Add the Telegram account registered with a phone number to the address book.",
				InputSchema: object(map[string]*jsonschema.Schema{
					"phone":      str("Phone number in international format"),
					"first_name": str("First name to store"),
					"last_name":  str("Last name to store"),
				}, "phone", "first_name"),
				Annotations: idempotentWrite,
			},
			call: bind(func(ctx context.Context, args addContactArgs) (any, error) {
				return gw.AddContact(ctx, domain.NewContact{Phone: args.Phone, FirstName: args.FirstName, LastName: args.LastName})
			}),
		},
		{
			def: &sdk.Tool{
				Name:        "delete_contact",
				Title:       "Delete contact",
				Description: "Remove a user from the address book.",
				InputSchema: object(map[string]*jsonschema.Schema{"user_id": chatID("User id or @username")}, "user_id"),
				Annotations: destructive,
			},
			call: bind(func(ctx context.Context, args userArgs) (any, error) {
				if err := gw.DeleteContact(ctx, args.UserID); err != nil {
					return nil, err
				}
				return map[string]any{"deleted": true}, nil
			}),
		},
		{
			def: &sdk.Tool{
				Name:        "mute_chat",
				Title:       "Mute chat",
				Description: "Silence notifications of a chat, until mute_until or for good when it is omitted.",
				InputSchema: object(map[string]*jsonschema.Schema{
					"chat_id":    chatID("Chat id or @username"),
					"mute_until": integer("Unix time at which notifications resume"),
				}, "chat_id"),
				Annotations: idempotentWrite,
			},
			call: bind(func(ctx context.Context, args muteArgs) (any, error) {
				var until time.Time
				if args.MuteUntil != 0 {
					until = time.Unix(args.MuteUntil, 0)
				}
				return gw.MuteChat(ctx, args.ChatID, until)
			}),
		},
		{
			def: &sdk.Tool{
				Name:        "unmute_chat",
				Title:       "Unmute chat",
				Description: "Restore notifications of a chat.",
				InputSchema: object(map[string]*jsonschema.Schema{"chat_id": chatID("Chat id or @username")}, "chat_id"),
				Annotations: idempotentWrite,
			},
			call: bind(func(ctx context.Context, args chatArgs) (any, error) {
				return gw.UnmuteChat(ctx, args.ChatID)
			}),
		},
		{
			def: &sdk.Tool{
				Name:        "archive_chat",
				Title:       "Archive chat",
				Description: "Move a chat into the archive folder.",
				InputSchema: object(map[string]*jsonschema.Schema{"chat_id": chatID("Chat id or @username")}, "chat_id"),
				Annotations: idempotentWrite,
			},
			call: bind(func(ctx context.Context, args chatArgs) (any, error) {
				return gw.ArchiveChat(ctx, args.ChatID)
			}),
		},
		{
			def: &sdk.Tool{
				Name:        "unarchive_chat",
				Title:       "Unarchive chat",
				Description: "Move a chat from the archive back to the main list.",
				InputSchema: object(map[string]*jsonschema.Schema{"chat_id": chatID("Chat id or @username")}, "chat_id"),
				Annotations: idempotentWrite,
			},
			call: bind(func(ctx context.Context, args chatArgs) (any, error) {
				return gw.UnarchiveChat(ctx, args.ChatID)
			}),
		},
		{
			def: &sdk.Tool{
				Name:        "get_invite_link",
				Title:       "Invite link",
				Description: "Get the primary invite link of a group or channel.",
				InputSchema: object(map[string]*jsonschema.Schema{"chat_id": chatID("Group or channel id, or @username")}, "chat_id"),
				Annotations: readOnly,
			},
			call: bind(func(ctx context.Context, args chatArgs) (any, error) {
				link, err := gw.InviteLink(ctx, args.ChatID)
				if err != nil {
					return nil, err
				}
				return map[string]any{"invite_link": link}, nil
			}),
		},
		{
			def: &sdk.Tool{
				Name:        "session_status",
				Title:       "Session status",
				Description: "Report the connection state of the shared session without waiting for it.",
				InputSchema: object(nil),
				Annotations: readOnly,
			},
			call: bind(func(ctx context.Context, _ noArgs) (any, error) {
				return s.status.Snapshot(), nil
			}),
		},
	}
}

// bind decodes tool arguments strictly into A before calling fn
func bind[A any](fn func(ctx context.Context, args A) (any, error)) func(context.Context, json.RawMessage) (any, error) {
	return func(ctx context.Context, arguments json.RawMessage) (any, error) {
		var args A
		if len(arguments) > 0 && !bytes.Equal(bytes.TrimSpace(arguments), []byte("null")) {
			decoder := json.NewDecoder(bytes.NewReader(arguments))
			decoder.DisallowUnknownFields()
			if err := decoder.Decode(&args); err != nil {
				var derr *domain.Error
				if errors.As(err, &derr) {
					return nil, err
				}
				return nil, domain.ValidationError("invalid arguments: %v", err)
			}
		}
		return fn(ctx, args)
	}
}

func object(properties map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	if properties == nil {
		properties = map[string]*jsonschema.Schema{}
	}
	return &jsonschema.Schema{
		Type:                 "object",
		Properties:           properties,
		Required:             required,
		AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
	}
}

func str(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: description}
}

func integer(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "integer", Description: description}
}

func integers(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "array", Items: &jsonschema.Schema{Type: "integer"}, Description: description}
}

func boolean(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "boolean", Description: description}
}

func enum(description string, values ...string) *jsonschema.Schema {
	options := make([]any, len(values))
	for i, v := range values {
		options[i] = v
	}
	return &jsonschema.Schema{Type: "string", Enum: options, Description: description}
}

func chatID(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Types: []string{"integer", "string"}, Description: description}
}

func boolPtr(value bool) *bool {
	return &value
}
