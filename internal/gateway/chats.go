package gateway

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yegors/telegate/internal/domain"
)

const opListChats = "list_chats"

// ChatsRequest asks for one page of the chat list. Archived lists the
// archive folder instead of the main list.
type ChatsRequest struct {
	PageSize   int
	PageToken  string
	Kind       domain.ChatKind
	UnreadOnly bool
	Archived   bool
}

// ChatPage is one page of chats
type ChatPage struct {
	Chats         []domain.Chat `json:"chats"`
	NextPageToken string        `json:"next_page_token,omitempty"`
}

// ListChats returns chats ordered by last activity, most recent first, with
// ties broken by ascending chat id.
func (g *Gateway) ListChats(ctx context.Context, req ChatsRequest) (ChatPage, error) {
	if req.Kind != "" && !req.Kind.Valid() {
		return ChatPage{}, domain.ValidationError("unknown chat kind %q", req.Kind)
	}
	size, err := g.pageSize(req.PageSize)
	if err != nil {
		return ChatPage{}, err
	}
	scope := "kind=" + string(req.Kind) +
		";unread=" + strconv.FormatBool(req.UnreadOnly) +
		";archived=" + strconv.FormatBool(req.Archived)
	offset, err := g.offset(req.PageToken, opListChats, scope)
	if err != nil {
		return ChatPage{}, err
	}

	filter := domain.ChatFilter{Kind: req.Kind, UnreadOnly: req.UnreadOnly, Archived: req.Archived}
	return call(g, ctx, opListChats, func(ctx context.Context, conn domain.Conn) (ChatPage, error) {
		chats, err := conn.Chats(ctx)
		if err != nil {
			return ChatPage{}, err
		}

		matched := chats[:0:0]
		for _, chat := range chats {
			if filter.Match(chat) {
				matched = append(matched, chat)
			}
		}
		sortChats(matched)

		var page ChatPage
		page.Chats, page.NextPageToken = window(g, matched, offset, size, opListChats, scope)
		return page, nil
	})
}

// GetChat resolves a single chat
func (g *Gateway) GetChat(ctx context.Context, ref domain.ChatRef) (domain.Chat, error) {
	if err := requireChat(ref, "chat_id"); err != nil {
		return domain.Chat{}, err
	}
	return call(g, ctx, "get_chat", func(ctx context.Context, conn domain.Conn) (domain.Chat, error) {
		return conn.Chat(ctx, ref)
	})
}

// ResolveUsername finds the user, group or channel owning a public username.
// A leading @ is optional.
func (g *Gateway) ResolveUsername(ctx context.Context, username string) (domain.Chat, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.Chat{}, domain.ValidationError("username is required")
	}
	ref, err := domain.ParseChatRef("@" + strings.TrimPrefix(username, "@"))
	if err != nil {
		return domain.Chat{}, err
	}
	return call(g, ctx, "resolve_username", func(ctx context.Context, conn domain.Conn) (domain.Chat, error) {
		return conn.ResolveUsername(ctx, ref.Username)
	})
}

// MuteChat silences a chat until the given time. The zero time mutes it for
// good.
func (g *Gateway) MuteChat(ctx context.Context, ref domain.ChatRef, until time.Time) (domain.Chat, error) {
	if err := requireChat(ref, "chat_id"); err != nil {
		return domain.Chat{}, err
	}
	if until.IsZero() {
		until = domain.MuteForever
	} else if !until.After(time.Now()) {
		return domain.Chat{}, domain.ValidationError("mute_until must be in the future")
	}
	return g.updateChat(ctx, "mute_chat", ref, func(ctx context.Context, conn domain.Conn) error {
		return conn.Mute(ctx, ref, until)
	})
}

// UnmuteChat restores notifications of a chat
func (g *Gateway) UnmuteChat(ctx context.Context, ref domain.ChatRef) (domain.Chat, error) {
	if err := requireChat(ref, "chat_id"); err != nil {
		return domain.Chat{}, err
	}
	return g.updateChat(ctx, "unmute_chat", ref, func(ctx context.Context, conn domain.Conn) error {
		return conn.Mute(ctx, ref, time.Time{})
	})
}

// ArchiveChat moves a chat into the archive folder
func (g *Gateway) ArchiveChat(ctx context.Context, ref domain.ChatRef) (domain.Chat, error) {
	return g.setArchived(ctx, "archive_chat", ref, true)
}

// UnarchiveChat moves a chat back to the main list
func (g *Gateway) UnarchiveChat(ctx context.Context, ref domain.ChatRef) (domain.Chat, error) {
	return g.setArchived(ctx, "unarchive_chat", ref, false)
}

func (g *Gateway) setArchived(ctx context.Context, op string, ref domain.ChatRef, archived bool) (domain.Chat, error) {
	if err := requireChat(ref, "chat_id"); err != nil {
		return domain.Chat{}, err
	}
	return g.updateChat(ctx, op, ref, func(ctx context.Context, conn domain.Conn) error {
		return conn.Archive(ctx, ref, archived)
	})
}

// updateChat applies a settings change and returns the chat as it stands
// afterwards, within one hold of the session
func (g *Gateway) updateChat(ctx context.Context, op string, ref domain.ChatRef, change func(ctx context.Context, conn domain.Conn) error) (domain.Chat, error) {
	return call(g, ctx, op, func(ctx context.Context, conn domain.Conn) (domain.Chat, error) {
		if err := change(ctx, conn); err != nil {
			return domain.Chat{}, err
		}
		return conn.Chat(ctx, ref)
	})
}

// InviteLink returns the primary invite link of a group or channel
func (g *Gateway) InviteLink(ctx context.Context, ref domain.ChatRef) (string, error) {
	if err := requireChat(ref, "chat_id"); err != nil {
		return "", err
	}
	if ref.ID > 0 {
		return "", domain.ValidationError("invite links exist only for groups and channels")
	}
	return call(g, ctx, "get_invite_link", func(ctx context.Context, conn domain.Conn) (string, error) {
		return conn.InviteLink(ctx, ref)
	})
}

func sortChats(chats []domain.Chat) {
	sort.SliceStable(chats, func(i, j int) bool {
		a, b := chats[i], chats[j]
		if !a.LastActivity.Equal(b.LastActivity) {
			return a.LastActivity.After(b.LastActivity)
		}
		return a.ID < b.ID
	})
}
