package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tgerr"

	"github.com/yegors/telegate/internal/domain"
)

var (
	authErrors = []string{
		"AUTH_KEY_UNREGISTERED",
		"AUTH_KEY_INVALID",
		"AUTH_KEY_DUPLICATED",
		"SESSION_REVOKED",
		"SESSION_EXPIRED",
		"USER_DEACTIVATED",
		"USER_DEACTIVATED_BAN",
		"API_ID_INVALID",
		"API_ID_PUBLISHED_FLOOD",
	}

	notFoundErrors = []string{
		"PEER_ID_INVALID",
		"CHANNEL_INVALID",
		"CHANNEL_PRIVATE",
		"CHAT_ID_INVALID",
		"USER_ID_INVALID",
		"MSG_ID_INVALID",
		"MESSAGE_ID_INVALID",
		"MESSAGE_IDS_EMPTY",
		"USERNAME_INVALID",
		"USERNAME_NOT_OCCUPIED",
		"INPUT_USER_DEACTIVATED",
	}

	validationErrors = []string{
		"MESSAGE_EMPTY",
		"MESSAGE_TOO_LONG",
		"MESSAGE_NOT_MODIFIED",
		"SEARCH_QUERY_EMPTY",
		"QUERY_TOO_SHORT",
		"LIMIT_INVALID",
		"REPLY_MESSAGE_ID_INVALID",
	}
)

// classify maps an error from the MTProto client to a domain error kind.
// The RPC error type is kept in the message; the cause stays reachable
// through errors.Is.
func classify(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var classified *domain.Error
	if errors.As(err, &classified) {
		return err
	}

	what := fmt.Sprintf(format, args...)

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.ConnectionError(err, "telegram: %s: %v", what, err)
	}
	if d, ok := tgerr.AsFloodWait(err); ok {
		return domain.ConnectionError(err, "telegram: %s: rate limited, retry in %s", what, d)
	}
	if auth.IsUnauthorized(err) || tgerr.Is(err, authErrors...) {
		return domain.AuthError(err, "telegram: %s: session credential rejected (%s)", what, rpcType(err))
	}
	if tgerr.Is(err, notFoundErrors...) {
		return &domain.Error{Kind: domain.KindNotFound, Message: fmt.Sprintf("telegram: %s: not found (%s)", what, rpcType(err)), Err: err}
	}
	if tgerr.Is(err, validationErrors...) {
		return &domain.Error{Kind: domain.KindValidation, Message: fmt.Sprintf("telegram: %s: rejected (%s)", what, rpcType(err)), Err: err}
	}
	if rpcErr, ok := tgerr.As(err); ok {
		if rpcErr.Code >= 500 {
			return domain.ConnectionError(err, "telegram: %s: server error (%s)", what, rpcErr.Type)
		}
		return domain.UpstreamError(err, "telegram: %s: %s", what, rpcErr.Type)
	}

	// Anything that is not an RPC error came from the transport
	return domain.ConnectionError(err, "telegram: %s: %v", what, err)
}

func rpcType(err error) string {
	if rpcErr, ok := tgerr.As(err); ok {
		return rpcErr.Type
	}
	return err.Error()
}
