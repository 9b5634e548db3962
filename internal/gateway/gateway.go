// Package gateway exposes the account's chats, messages, contacts and drafts
// as domain operations. It validates input, paginates, and runs every
// upstream call through the session so calls never interleave. Both front
// ends share one Gateway.
package gateway

import (
	"context"
	"strconv"
	"time"

	"github.com/yegors/telegate/internal/domain"
	"github.com/yegors/telegate/internal/pagetoken"
	"github.com/yegors/telegate/pkg/logger"
)

// Session is the acquisition point for the shared connection
type Session interface {
	Do(ctx context.Context, fn func(ctx context.Context, conn domain.Conn) error) error
}

// Config holds pagination limits
type Config struct {
	DefaultPageSize int
	MaxPageSize     int
	TokenTTL        time.Duration
	MaxTokens       int
}

// DefaultConfig returns the limits used when none are configured
func DefaultConfig() Config {
	return Config{
		DefaultPageSize: 20,
		MaxPageSize:     100,
		TokenTTL:        pagetoken.DefaultTTL,
		MaxTokens:       pagetoken.DefaultMaxEntries,
	}
}

// Gateway is safe for concurrent use
type Gateway struct {
	session Session
	tokens  *pagetoken.Registry
	config  Config
	logger  *logger.Logger
}

// New creates a gateway over session
func New(session Session, config Config, log *logger.Logger) *Gateway {
	defaults := DefaultConfig()
	if config.MaxPageSize <= 0 {
		config.MaxPageSize = defaults.MaxPageSize
	}
	if config.DefaultPageSize <= 0 {
		config.DefaultPageSize = defaults.DefaultPageSize
	}
	if config.DefaultPageSize > config.MaxPageSize {
		config.DefaultPageSize = config.MaxPageSize
	}

	return &Gateway{
		session: session,
		tokens:  pagetoken.NewRegistry(config.TokenTTL, config.MaxTokens),
		config:  config,
		logger:  log.Named("gateway"),
	}
}

// Config returns the effective limits
func (g *Gateway) Config() Config {
	return g.config
}

// call runs fn under the session lock and logs the outcome. The value
// travels back over a channel: a caller that gives up while fn is in flight
// returns without ever reading it, so fn shares no memory with the caller.
func call[T any](g *Gateway, ctx context.Context, op string, fn func(ctx context.Context, conn domain.Conn) (T, error)) (T, error) {
	start := time.Now()
	values := make(chan T, 1)
	err := g.session.Do(ctx, func(ctx context.Context, conn domain.Conn) error {
		value, err := fn(ctx, conn)
		values <- value
		return err
	})

	fields := []logger.Field{logger.String("op", op), logger.Duration("duration", time.Since(start))}
	switch kind := domain.KindOf(err); kind {
	case "":
		g.logger.Debug("Operation completed", fields...)
	case domain.KindNotFound, domain.KindValidation:
		g.logger.Debug("Operation rejected", append(fields, logger.String("kind", string(kind)), logger.Error(err))...)
	default:
		g.logger.Warn("Operation failed", append(fields, logger.String("kind", string(kind)), logger.Error(err))...)
	}

	var zero T
	if err != nil {
		return zero, err
	}
	select {
	case value := <-values:
		return value, nil
	default:
		return zero, nil
	}
}

// exec is call for operations without a result
func exec(g *Gateway, ctx context.Context, op string, fn func(ctx context.Context, conn domain.Conn) error) error {
	_, err := call(g, ctx, op, func(ctx context.Context, conn domain.Conn) (struct{}, error) {
		return struct{}{}, fn(ctx, conn)
	})
	return err
}

// pageSize applies the page size rules: 0 selects the default, negative
// sizes are rejected and sizes above the maximum are clamped.
func (g *Gateway) pageSize(n int) (int, error) {
	switch {
	case n < 0:
		return 0, domain.ValidationError("page_size must not be negative")
	case n == 0:
		return g.config.DefaultPageSize, nil
	case n > g.config.MaxPageSize:
		return g.config.MaxPageSize, nil
	}
	return n, nil
}

// offset resolves an offset cursor. No token means the first page.
func (g *Gateway) offset(token, op, scope string) (int, error) {
	if token == "" {
		return 0, nil
	}
	cursor, err := g.tokens.Resolve(token, op, scope)
	if err != nil {
		return 0, err
	}
	offset, err := strconv.Atoi(cursor)
	if err != nil || offset < 0 {
		return 0, domain.InvalidPageToken("page_token is corrupt")
	}
	return offset, nil
}

// window slices one page out of a fully ordered listing and issues the token
// for the rest
func window[T any](g *Gateway, items []T, offset, size int, op, scope string) ([]T, string) {
	if offset > len(items) {
		offset = len(items)
	}
	end := offset + size
	if end > len(items) {
		end = len(items)
	}

	page := make([]T, end-offset)
	copy(page, items[offset:end])

	if end < len(items) {
		return page, g.tokens.Issue(op, scope, strconv.Itoa(end))
	}
	return page, ""
}

func requireChat(ref domain.ChatRef, field string) error {
	if ref.IsZero() {
		return domain.ValidationError("%s is required", field)
	}
	return nil
}

// MessageIDs combines the single and list forms in which front ends accept
// message ids. Zero placeholders and repeats are dropped; order is kept.
func MessageIDs(single int, more ...int) []int {
	ids := make([]int, 0, len(more)+1)
	seen := make(map[int]bool, len(more)+1)
	for _, id := range append([]int{single}, more...) {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func requireMessageIDs(ids []int) error {
	if len(ids) == 0 {
		return domain.ValidationError("message_id is required")
	}
	for _, id := range ids {
		if id <= 0 {
			return domain.ValidationError("message ids must be positive, got %d", id)
		}
	}
	return nil
}
