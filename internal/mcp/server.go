// Package mcp serves the gateway as Model Context Protocol tools, on stdio
// for a local client or over streamable HTTP next to the REST API.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/yegors/telegate/internal/domain"
	"github.com/yegors/telegate/internal/gateway"
	"github.com/yegors/telegate/internal/session"
	"github.com/yegors/telegate/pkg/logger"
)

const instructions = "Chat ids are numbers (users positive, groups negative, channels -100...) or @usernames. " +
	"List tools return next_page_token when more results exist."

// StatusSource reports the session state without taking the session lock
type StatusSource interface {
	Snapshot() session.Snapshot
}

// Server exposes one tool per gateway operation. Both transports share the
// same tool set and, through the gateway, the same session.
type Server struct {
	gateway *gateway.Gateway
	status  StatusSource
	server  *sdk.Server
	logger  *logger.Logger
}

// NewServer creates a server over gw
func NewServer(gw *gateway.Gateway, status StatusSource, version string, log *logger.Logger) *Server {
	s := &Server{
		gateway: gw,
		status:  status,
		logger:  log.Named("mcp"),
	}
	s.server = sdk.NewServer(
		&sdk.Implementation{Name: "telegate", Version: version},
		&sdk.ServerOptions{Instructions: instructions},
	)
	for _, t := range s.buildTools() {
		s.server.AddTool(t.def, s.handler(t))
	}
	return s
}

// Serve runs the stdio transport until the client goes away or ctx is done
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("Serving MCP on stdio")
	err := s.server.Run(ctx, &sdk.StdioTransport{})
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// Handler returns the streamable HTTP transport
func (s *Server) Handler() http.Handler {
	return sdk.NewStreamableHTTPHandler(func(*http.Request) *sdk.Server {
		return s.server
	}, nil)
}

func (s *Server) handler(t tool) sdk.ToolHandler {
	return func(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
		start := time.Now()
		value, err := t.call(ctx, req.Params.Arguments)
		fields := []logger.Field{
			logger.String("tool", t.def.Name),
			logger.Duration("duration", time.Since(start)),
		}
		if err != nil {
			fields = append(fields, logger.String("kind", string(domain.KindOf(err))), logger.Error(err))
			s.logger.Debug("Tool call failed", fields...)
			return errorResult(err), nil
		}
		s.logger.Debug("Tool call completed", fields...)

		result, err := successResult(value)
		if err != nil {
			s.logger.Error("Failed to encode tool result", logger.String("tool", t.def.Name), logger.Error(err))
			return nil, err
		}
		return result, nil
	}
}

// successResult returns value both as structured content and as JSON text
func successResult(value any) (*sdk.CallToolResult, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return &sdk.CallToolResult{
		Content:           []sdk.Content{&sdk.TextContent{Text: string(data)}},
		StructuredContent: value,
	}, nil
}

// errorResult renders err as "<kind>: <message>". _meta carries the kind and
// whether retrying can help.
func errorResult(err error) *sdk.CallToolResult {
	kind := domain.KindOf(err)
	message := err.Error()
	var derr *domain.Error
	if !errors.As(err, &derr) && kind == domain.KindInternal {
		message = "internal error"
	}
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: string(kind) + ": " + message}},
		IsError: true,
		Meta:    sdk.Meta{"category": string(kind), "retryable": kind.Retryable()},
	}
}
