package gateway

import (
	"context"

	"github.com/yegors/telegate/internal/domain"
)

// SaveDraft overwrites the chat's draft. Empty text clears it.
func (g *Gateway) SaveDraft(ctx context.Context, ref domain.ChatRef, text string, replyTo int) (domain.Draft, error) {
	if err := requireChat(ref, "chat_id"); err != nil {
		return domain.Draft{}, err
	}
	if replyTo < 0 {
		return domain.Draft{}, domain.ValidationError("reply_to must be a message id")
	}

	return call(g, ctx, "save_draft", func(ctx context.Context, conn domain.Conn) (domain.Draft, error) {
		return conn.SaveDraft(ctx, ref, text, replyTo)
	})
}

// GetDraft returns the chat's draft, or nil when it has none
func (g *Gateway) GetDraft(ctx context.Context, ref domain.ChatRef) (*domain.Draft, error) {
	if err := requireChat(ref, "chat_id"); err != nil {
		return nil, err
	}

	return call(g, ctx, "get_draft", func(ctx context.Context, conn domain.Conn) (*domain.Draft, error) {
		draft, ok, err := conn.Draft(ctx, ref)
		if err != nil || !ok {
			return nil, err
		}
		return &draft, nil
	})
}

// ClearDraft removes the chat's draft, if any
func (g *Gateway) ClearDraft(ctx context.Context, ref domain.ChatRef) error {
	_, err := g.SaveDraft(ctx, ref, "", 0)
	return err
}
