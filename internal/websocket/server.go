package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yegors/telegate/internal/domain"
	"github.com/yegors/telegate/internal/session"
	"github.com/yegors/telegate/pkg/logger"
)

// Message types
const (
	MessageTypeMessageNew    = "message_new"    // Server pushes an incoming chat message
	MessageTypeSessionStatus = "session_status" // Server pushes a session status change
	MessageTypeSubscribe     = "subscribe"      // Client narrows message_new to some chats
	MessageTypeSubscribed    = "subscribed"     // Server acknowledges a subscription
	MessageTypeError         = "error"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Message represents a WebSocket message
type Message struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// ClientFilters holds the chats a client subscribed to. Empty means all chats.
type ClientFilters struct {
	ChatIDs map[int64]bool `json:"chat_ids"`
}

// Client represents a WebSocket client
type Client struct {
	conn    *websocket.Conn
	send    chan *Message
	server  *Server
	mu      sync.Mutex
	closed  bool
	filters ClientFilters
}

// Server fans live events out to WebSocket clients. It is the update sink of
// the upstream connection and a status listener of the session manager.
type Server struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	upgrader   websocket.Upgrader
	logger     *logger.Logger
	mu         sync.RWMutex
	done       chan struct{}
}

// NewServer creates a new WebSocket server
func NewServer(log *logger.Logger) *Server {
	return &Server{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, sendBuffer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: log.Named("web-socket"),
		done:   make(chan struct{}),
	}
}

// Run dispatches events until ctx is done, then disconnects every client
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting WebSocket server")
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			for client := range s.clients {
				delete(s.clients, client)
				client.shutdown()
			}
			s.mu.Unlock()
			s.logger.Info("WebSocket server stopped")
			return nil

		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client registered", logger.Int("client_count", clientCount))

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				client.shutdown()
			}
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client unregistered", logger.Int("client_count", clientCount))

		case message := <-s.broadcast:
			s.mu.RLock()
			var slow []*Client
			for client := range s.clients {
				if !client.wants(message) {
					continue
				}
				if !client.SendMessage(message) {
					slow = append(slow, client)
				}
			}
			s.mu.RUnlock()

			if len(slow) > 0 {
				s.mu.Lock()
				for _, client := range slow {
					if _, ok := s.clients[client]; ok {
						delete(s.clients, client)
						client.shutdown()
					}
				}
				s.mu.Unlock()
				s.logger.Warn("Dropped slow clients", logger.Int("count", len(slow)))
			}
		}
	}
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// HandleConnection upgrades the request and starts the client pumps
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			logger.Error(err),
			logger.String("remote_addr", r.RemoteAddr))
		return
	}

	s.logger.Debug("Client connected", logger.String("remote_addr", r.RemoteAddr))

	client := &Client{
		conn:   conn,
		send:   make(chan *Message, sendBuffer),
		server: s,
	}

	select {
	case s.register <- client:
	case <-r.Context().Done():
		conn.Close()
		return
	case <-s.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Broadcast queues a message for every interested client. It never blocks:
// callers include the session manager while it holds its lock.
func (s *Server) Broadcast(message *Message) {
	select {
	case s.broadcast <- message:
	default:
		s.logger.Warn("Broadcast queue full, dropping event", logger.String("message_type", message.Type))
	}
}

// IncomingMessage publishes a message pushed by the service
func (s *Server) IncomingMessage(msg domain.Message) {
	s.Broadcast(&Message{
		Type: MessageTypeMessageNew,
		Data: map[string]any{"message": msg},
	})
}

// SessionStatus publishes a session status change
func (s *Server) SessionStatus(snapshot session.Snapshot) {
	s.Broadcast(&Message{
		Type: MessageTypeSessionStatus,
		Data: map[string]any{"session": snapshot},
	})
}

// readPump handles client requests until the connection fails
func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Error("WebSocket read error", logger.Error(err))
			}
			return
		}

		var message Message
		if err := json.Unmarshal(data, &message); err != nil {
			c.SendMessage(errorMessage("malformed message"))
			continue
		}

		switch message.Type {
		case MessageTypeSubscribe:
			filters, err := parseFilters(message.Data)
			if err != nil {
				c.SendMessage(errorMessage(err.Error()))
				continue
			}
			c.UpdateFilters(filters)
			c.SendMessage(&Message{Type: MessageTypeSubscribed, Data: map[string]any{"chat_ids": filters.ids()}})
		default:
			c.SendMessage(errorMessage("unknown message type " + strconv.Quote(message.Type)))
		}
	}
}

// writePump owns all writes to the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.server.logger.Debug("Write failed", logger.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// shutdown closes the send queue. Called by the server only, once.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// SendMessage queues a message for this client. It reports false when the
// client is gone or its queue is full.
func (c *Client) SendMessage(message *Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// UpdateFilters replaces the client's subscription
func (c *Client) UpdateFilters(filters ClientFilters) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = filters
}

// wants reports whether the client subscribed to the message's chat
func (c *Client) wants(message *Message) bool {
	if message.Type != MessageTypeMessageNew {
		return true
	}
	msg, ok := message.Data["message"].(domain.Message)
	if !ok {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.filters.ChatIDs) == 0 || c.filters.ChatIDs[msg.ChatID]
}

func (f ClientFilters) ids() []int64 {
	ids := make([]int64, 0, len(f.ChatIDs))
	for id := range f.ChatIDs {
		ids = append(ids, id)
	}
	return ids
}

// parseFilters reads {"chat_ids": [...]} where ids are numbers or numeric strings
func parseFilters(data map[string]any) (ClientFilters, error) {
	filters := ClientFilters{ChatIDs: make(map[int64]bool)}
	raw, ok := data["chat_ids"]
	if !ok || raw == nil {
		return filters, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return filters, domain.ValidationError("chat_ids must be an array")
	}
	for _, item := range list {
		var id int64
		switch v := item.(type) {
		case float64:
			id = int64(v)
		case string:
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return filters, domain.ValidationError("invalid chat id %q", v)
			}
			id = parsed
		default:
			return filters, domain.ValidationError("invalid chat id %v", v)
		}
		filters.ChatIDs[id] = true
	}
	return filters, nil
}

func errorMessage(text string) *Message {
	return &Message{Type: MessageTypeError, Data: map[string]any{"error": text}}
}
