package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/klauspost/compress/gzhttp"

	"github.com/yegors/telegate/internal/gateway"
	"github.com/yegors/telegate/internal/websocket"
	"github.com/yegors/telegate/pkg/logger"
)

// RouterConfig holds the HTTP options that shape the router. StoredSessions
// is optional; when set, /session also lists the persisted sessions.
type RouterConfig struct {
	CORSAllowedOrigins []string
	Version            string
	StoredSessions     SessionRecords
}

// Router wires the REST API, the live event socket and the MCP endpoint
type Router struct {
	handler *Handler
	mcp     http.Handler
	config  RouterConfig
	logger  *logger.Logger
}

// NewRouter creates a new router. mcp may be nil to disable /mcp.
func NewRouter(gw *gateway.Gateway, sessions SessionControl, wsServer *websocket.Server, mcp http.Handler, config RouterConfig, log *logger.Logger) *Router {
	return &Router{
		handler: NewHandler(gw, sessions, config.StoredSessions, wsServer, config.Version, log),
		mcp:     mcp,
		config:  config,
		logger:  log.Named("router"),
	}
}

// Routes returns the router's handler
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(rt.requestLogger)
	r.Use(middleware.Recoverer)
	if len(rt.config.CORSAllowedOrigins) > 0 {
		r.Use(rt.corsHandler())
	}

	h := rt.handler

	r.Get("/health", h.GetHealth)
	if h.wsServer != nil {
		r.Get("/ws", h.HandleWebSocket)
	}
	if rt.mcp != nil {
		// streamable HTTP uses POST, GET and DELETE on one path
		r.Handle("/mcp", rt.mcp)
	}

	// JSON routes; /ws is kept out because gzip breaks the upgrade
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return gzhttp.GzipHandler(next)
		})

		r.Get("/me", h.GetMe)

		r.Get("/session", h.GetSession)
		r.Post("/session/connect", h.ConnectSession)

		r.Route("/chats", func(r chi.Router) {
			r.Get("/", h.ListChats)
			r.Get("/{id}", h.GetChat)
			r.Get("/{id}/messages", h.GetMessages)
			r.Get("/{id}/draft", h.GetDraft)
			r.Get("/{id}/invite-link", h.GetInviteLink)
			r.Post("/{id}/mute", h.MuteChat)
			r.Post("/{id}/unmute", h.UnmuteChat)
			r.Post("/{id}/archive", h.ArchiveChat)
			r.Post("/{id}/unarchive", h.UnarchiveChat)
		})

		r.Get("/resolve/{username}", h.ResolveUsername)
		r.Get("/users/{id}/status", h.GetUserStatus)

		r.Route("/messages", func(r chi.Router) {
			r.Post("/send", h.SendMessage)
			r.Post("/search", h.SearchMessages)
			r.Put("/edit", h.EditMessage)
			r.Delete("/delete", h.DeleteMessage)
			r.Post("/forward", h.ForwardMessage)
		})

		r.Route("/contacts", func(r chi.Router) {
			r.Get("/", h.ListContacts)
			r.Post("/", h.AddContact)
			r.Get("/search", h.SearchContacts)
			r.Delete("/{id}", h.DeleteContact)
		})

		r.Route("/drafts", func(r chi.Router) {
			r.Post("/save", h.SaveDraft)
			r.Delete("/{chat_id}", h.ClearDraft)
		})
	})

	return r
}

// requestLogger logs one line per request
func (rt *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []logger.Field{
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", status),
			logger.Int("bytes", ww.BytesWritten()),
			logger.Duration("duration", time.Since(start)),
			logger.String("request_id", middleware.GetReqID(r.Context())),
		}
		if status >= http.StatusInternalServerError {
			rt.logger.Warn("HTTP request", fields...)
			return
		}
		rt.logger.Debug("HTTP request", fields...)
	})
}

// corsHandler allows the configured origins. "*" allows any origin.
func (rt *Router) corsHandler() func(http.Handler) http.Handler {
	origins := make([]string, 0, len(rt.config.CORSAllowedOrigins))
	for _, origin := range rt.config.CORSAllowedOrigins {
		origins = append(origins, strings.TrimRight(origin, "/"))
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Mcp-Session-Id", "Mcp-Protocol-Version", "Last-Event-ID"},
		ExposedHeaders: []string{"Mcp-Session-Id"},
		MaxAge:         300,
	})
}
