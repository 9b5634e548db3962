package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yegors/telegate/internal/domain"
	"github.com/yegors/telegate/internal/session"
	"github.com/yegors/telegate/pkg/logger"
)

type event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func startServer(t *testing.T) (*Server, *websocket.Conn) {
	t.Helper()

	server := NewServer(logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go server.Run(ctx)

	httpServer := httptest.NewServer(http.HandlerFunc(server.HandleConnection))
	t.Cleanup(func() {
		cancel()
		httpServer.Close()
	})

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return server, conn
}

func readEvent(t *testing.T, conn *websocket.Conn) event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	return ev
}

func TestSubscriptionFiltersMessages(t *testing.T) {
	server, conn := startServer(t)

	if err := conn.WriteJSON(event{Type: MessageTypeSubscribe, Data: map[string]any{"chat_ids": []any{5, "-1001"}}}); err != nil {
		t.Fatal(err)
	}
	ack := readEvent(t, conn)
	if ack.Type != MessageTypeSubscribed {
		t.Fatalf("ack = %+v", ack)
	}

	server.IncomingMessage(domain.Message{ID: 1, ChatID: 6, Text: "not for you"})
	server.IncomingMessage(domain.Message{ID: 2, ChatID: 5, Text: "hello"})
	server.SessionStatus(session.Snapshot{Status: session.StatusConnecting})

	first := readEvent(t, conn)
	if first.Type != MessageTypeMessageNew {
		t.Fatalf("first event = %+v", first)
	}
	msg, _ := first.Data["message"].(map[string]any)
	if msg["chat_id"] != float64(5) || msg["text"] != "hello" {
		t.Errorf("delivered message = %v", msg)
	}

	second := readEvent(t, conn)
	if second.Type != MessageTypeSessionStatus {
		t.Fatalf("second event = %+v", second)
	}
	snapshot, _ := second.Data["session"].(map[string]any)
	if snapshot["status"] != "connecting" {
		t.Errorf("status event = %v", snapshot)
	}
}

func TestUnsubscribedClientReceivesEverything(t *testing.T) {
	server, conn := startServer(t)

	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	server.IncomingMessage(domain.Message{ID: 9, ChatID: 42, Text: "anything"})
	ev := readEvent(t, conn)
	if ev.Type != MessageTypeMessageNew {
		t.Errorf("event = %+v", ev)
	}
}

func TestBadRequestsGetErrors(t *testing.T) {
	_, conn := startServer(t)

	requests := []string{
		`not json`,
		`{"type":"dance"}`,
		`{"type":"subscribe","data":{"chat_ids":"all"}}`,
	}
	for _, request := range requests {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(request)); err != nil {
			t.Fatal(err)
		}
		if ev := readEvent(t, conn); ev.Type != MessageTypeError {
			t.Errorf("%s: event = %+v, want error", request, ev)
		}
	}
}

func TestParseFilters(t *testing.T) {
	filters, err := parseFilters(map[string]any{"chat_ids": []any{float64(1), "2"}})
	if err != nil {
		t.Fatal(err)
	}
	if !filters.ChatIDs[1] || !filters.ChatIDs[2] || len(filters.ChatIDs) != 2 {
		t.Errorf("filters = %v", filters.ChatIDs)
	}

	if _, err := parseFilters(map[string]any{"chat_ids": []any{"abc"}}); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("bad id: %v", err)
	}
	if filters, err := parseFilters(nil); err != nil || len(filters.ChatIDs) != 0 {
		t.Errorf("empty subscription = %v, %v", filters, err)
	}
}
