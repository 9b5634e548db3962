package telegram

import (
	"context"

	"github.com/gotd/td/tg"

	"github.com/yegors/telegate/internal/domain"
	"github.com/yegors/telegate/pkg/logger"
)

// registerHandlers forwards pushed incoming messages to the dialer's sink.
// Handlers run on the client's update goroutine, outside the session lock.
func (c *conn) registerHandlers(dispatcher *tg.UpdateDispatcher) {
	dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, update *tg.UpdateNewMessage) error {
		c.pushed(e, update.Message)
		return nil
	})
	dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, update *tg.UpdateNewChannelMessage) error {
		c.pushed(e, update.Message)
		return nil
	})
}

func (c *conn) pushed(e tg.Entities, m tg.MessageClass) {
	c.peers.applyEntities(e)

	msg, ok := convertMessage(m, c.selfID())
	if !ok || msg.Direction != domain.DirectionIncoming {
		return
	}

	c.logger.Debug("Incoming message",
		logger.Int64("chat_id", msg.ChatID),
		logger.Int("message_id", msg.ID))
	c.dialer.deliver(msg)
}
