package gateway

import (
	"context"
	"strconv"
	"strings"

	"github.com/yegors/telegate/internal/domain"
)

const (
	opGetMessages    = "get_messages"
	opSearchMessages = "search_messages"
)

// MessagesRequest asks for one page of a chat's history
type MessagesRequest struct {
	Chat      domain.ChatRef
	PageSize  int
	PageToken string
}

// SearchRequest asks for one page of search results. Chat nil searches every
// accessible chat.
type SearchRequest struct {
	Chat      *domain.ChatRef
	Query     string
	PageSize  int
	PageToken string
}

// MessagePage is one page of messages
type MessagePage struct {
	Messages      []domain.Message `json:"messages"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

// GetMessages returns a chat's history newest first. The cursor is the id of
// the oldest message already returned, so pages stay stable while new
// messages arrive.
func (g *Gateway) GetMessages(ctx context.Context, req MessagesRequest) (MessagePage, error) {
	if err := requireChat(req.Chat, "chat_id"); err != nil {
		return MessagePage{}, err
	}
	size, err := g.pageSize(req.PageSize)
	if err != nil {
		return MessagePage{}, err
	}
	scope := "chat=" + req.Chat.String()
	before, err := g.offset(req.PageToken, opGetMessages, scope)
	if err != nil {
		return MessagePage{}, err
	}

	page, err := call(g, ctx, opGetMessages, func(ctx context.Context, conn domain.Conn) (MessagePage, error) {
		// one extra message tells whether another page exists
		messages, err := conn.History(ctx, req.Chat, before, size+1)
		if err != nil {
			return MessagePage{}, err
		}
		var page MessagePage
		if len(messages) > size {
			messages = messages[:size]
			page.NextPageToken = g.tokens.Issue(opGetMessages, scope, strconv.Itoa(messages[size-1].ID))
		}
		page.Messages = messages
		return page, nil
	})
	if err != nil {
		return MessagePage{}, err
	}
	if page.Messages == nil {
		page.Messages = []domain.Message{}
	}
	return page, nil
}

// SearchMessages returns matches in the order the service ranks them. The
// service's own continuation marker is kept behind the page token.
func (g *Gateway) SearchMessages(ctx context.Context, req SearchRequest) (MessagePage, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return MessagePage{}, domain.ValidationError("query must not be empty")
	}
	if req.Chat != nil && req.Chat.IsZero() {
		req.Chat = nil
	}
	size, err := g.pageSize(req.PageSize)
	if err != nil {
		return MessagePage{}, err
	}

	scope := "q=" + query
	if req.Chat != nil {
		scope = "chat=" + req.Chat.String() + ";" + scope
	}
	cursor := ""
	if req.PageToken != "" {
		if cursor, err = g.tokens.Resolve(req.PageToken, opSearchMessages, scope); err != nil {
			return MessagePage{}, err
		}
	}

	page, err := call(g, ctx, opSearchMessages, func(ctx context.Context, conn domain.Conn) (MessagePage, error) {
		result, err := conn.Search(ctx, domain.SearchQuery{
			Chat:   req.Chat,
			Query:  query,
			Limit:  size,
			Cursor: cursor,
		})
		if err != nil {
			return MessagePage{}, err
		}
		if len(result.Messages) > size {
			result.Messages = result.Messages[:size]
		}
		page := MessagePage{Messages: result.Messages}
		if result.Next != "" {
			page.NextPageToken = g.tokens.Issue(opSearchMessages, scope, result.Next)
		}
		return page, nil
	})
	if err != nil {
		return MessagePage{}, err
	}
	if page.Messages == nil {
		page.Messages = []domain.Message{}
	}
	return page, nil
}

// SendMessage delivers text to a chat. Not idempotent: retrying after a
// timeout may deliver the message twice.
func (g *Gateway) SendMessage(ctx context.Context, ref domain.ChatRef, text string, replyTo int) (domain.Message, error) {
	if err := requireChat(ref, "chat_id"); err != nil {
		return domain.Message{}, err
	}
	if strings.TrimSpace(text) == "" {
		return domain.Message{}, domain.ValidationError("message must not be empty")
	}
	if replyTo < 0 {
		return domain.Message{}, domain.ValidationError("reply_to must be a message id")
	}

	return call(g, ctx, "send_message", func(ctx context.Context, conn domain.Conn) (domain.Message, error) {
		return conn.Send(ctx, ref, text, domain.SendOptions{ReplyTo: replyTo})
	})
}

// EditMessage replaces the text of a message sent by the account
func (g *Gateway) EditMessage(ctx context.Context, ref domain.ChatRef, messageID int, text string) (domain.Message, error) {
	if err := requireChat(ref, "chat_id"); err != nil {
		return domain.Message{}, err
	}
	if err := requireMessageIDs([]int{messageID}); err != nil {
		return domain.Message{}, err
	}
	if strings.TrimSpace(text) == "" {
		return domain.Message{}, domain.ValidationError("new_text must not be empty")
	}

	return call(g, ctx, "edit_message", func(ctx context.Context, conn domain.Conn) (domain.Message, error) {
		return conn.Edit(ctx, ref, messageID, text)
	})
}

// DeleteMessages removes messages from a chat, for everyone when revoke is set
func (g *Gateway) DeleteMessages(ctx context.Context, ref domain.ChatRef, messageIDs []int, revoke bool) error {
	if err := requireChat(ref, "chat_id"); err != nil {
		return err
	}
	if err := requireMessageIDs(messageIDs); err != nil {
		return err
	}

	return exec(g, ctx, "delete_messages", func(ctx context.Context, conn domain.Conn) error {
		return conn.Delete(ctx, ref, messageIDs, revoke)
	})
}

// ForwardMessages copies messages from one chat into another
func (g *Gateway) ForwardMessages(ctx context.Context, from, to domain.ChatRef, messageIDs []int) ([]domain.Message, error) {
	if err := requireChat(from, "from_chat_id"); err != nil {
		return nil, err
	}
	if err := requireChat(to, "to_chat_id"); err != nil {
		return nil, err
	}
	if err := requireMessageIDs(messageIDs); err != nil {
		return nil, err
	}

	return call(g, ctx, "forward_messages", func(ctx context.Context, conn domain.Conn) ([]domain.Message, error) {
		return conn.Forward(ctx, from, to, messageIDs)
	})
}
