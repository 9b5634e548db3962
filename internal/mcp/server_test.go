package mcp

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/yegors/telegate/internal/domain"
	"github.com/yegors/telegate/internal/gateway"
	"github.com/yegors/telegate/internal/session"
	"github.com/yegors/telegate/internal/telegram/memory"
	"github.com/yegors/telegate/pkg/logger"
)

func newTestServer(t *testing.T, backend *memory.Backend) *Server {
	t.Helper()
	manager := session.NewManager(backend, memory.Credential(), session.Config{
		MaxAttempts: 1,
		CallTimeout: 5 * time.Second,
	}, logger.NewNop())
	t.Cleanup(func() { manager.Close() })
	gw := gateway.New(manager, gateway.DefaultConfig(), logger.NewNop())
	return NewServer(gw, manager, "test", logger.NewNop())
}

// connect attaches an in-memory client session to server
func connect(t *testing.T, server *Server) *sdk.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := sdk.NewInMemoryTransports()
	serverSession, err := server.server.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { serverSession.Close() })

	client := sdk.NewClient(&sdk.Implementation{Name: "test", Version: "1.0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func callTool(t *testing.T, cs *sdk.ClientSession, name string, arguments map[string]any) *sdk.CallToolResult {
	t.Helper()
	if arguments == nil {
		arguments = map[string]any{}
	}
	result, err := cs.CallTool(context.Background(), &sdk.CallToolParams{Name: name, Arguments: arguments})
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return result
}

// decode reads the structured content of a successful result into v
func decode(t *testing.T, result *sdk.CallToolResult, v any) {
	t.Helper()
	if result.IsError {
		t.Fatalf("tool failed: %s", text(result))
	}
	data, err := json.Marshal(result.StructuredContent)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
}

func text(result *sdk.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	if content, ok := result.Content[0].(*sdk.TextContent); ok {
		return content.Text
	}
	return ""
}

func TestListTools(t *testing.T) {
	cs := connect(t, newTestServer(t, memory.Demo()))

	list, err := cs.ListTools(context.Background(), &sdk.ListToolsParams{})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"add_contact", "archive_chat", "clear_draft", "delete_contact", "delete_message",
		"edit_message", "forward_message", "get_chat", "get_draft", "get_invite_link",
		"get_me", "get_messages", "get_user_status", "list_chats", "list_contacts",
		"mute_chat", "resolve_username", "save_draft", "search_contacts", "search_messages",
		"send_message", "session_status", "unarchive_chat", "unmute_chat",
	}
	var got []string
	for _, tool := range list.Tools {
		got = append(got, tool.Name)

		data, err := json.Marshal(tool.InputSchema)
		if err != nil {
			t.Fatal(err)
		}
		var schema map[string]any
		if err := json.Unmarshal(data, &schema); err != nil || schema["type"] != "object" {
			t.Errorf("%s schema = %s", tool.Name, data)
		}
	}
	sort.Strings(got)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("tools = %v\nwant %v", got, want)
	}
}

func TestToolCallsReachTheGateway(t *testing.T) {
	cs := connect(t, newTestServer(t, memory.Demo()))

	var chats gateway.ChatPage
	decode(t, callTool(t, cs, "list_chats", map[string]any{"page_size": 2}), &chats)
	if len(chats.Chats) != 2 || chats.NextPageToken == "" {
		t.Errorf("list_chats = %+v", chats)
	}

	var chat domain.Chat
	decode(t, callTool(t, cs, "get_chat", map[string]any{"chat_id": "@alice_example"}), &chat)
	if chat.ID != 200000001 {
		t.Errorf("get_chat by username = %d", chat.ID)
	}

	callTool(t, cs, "send_message", map[string]any{"chat_id": 200000002, "message": "on it"})
	var page gateway.MessagePage
	decode(t, callTool(t, cs, "get_messages", map[string]any{"chat_id": "200000002", "page_size": 1}), &page)
	if len(page.Messages) != 1 || page.Messages[0].Text != "on it" {
		t.Errorf("latest message = %+v", page.Messages)
	}

	decode(t, callTool(t, cs, "search_messages", map[string]any{"query": "saturday"}), &page)
	if len(page.Messages) != 2 {
		t.Errorf("search hits = %d, want 2", len(page.Messages))
	}

	if me := text(callTool(t, cs, "get_me", nil)); !strings.Contains(me, "telegate_demo") {
		t.Errorf("get_me text = %q", me)
	}
}

func TestToolErrorsCarryKind(t *testing.T) {
	cs := connect(t, newTestServer(t, memory.Demo()))

	tests := []struct {
		tool      string
		arguments map[string]any
		kind      string
	}{
		{"send_message", map[string]any{"chat_id": 200000001, "message": "   "}, "validation_error"},
		{"get_chat", map[string]any{"chat_id": 987654}, "not_found"},
		{"list_chats", map[string]any{"page_token": "nope"}, "invalid_page_token"},
		{"get_chat", map[string]any{"chat_id": 1, "extra": true}, "validation_error"},
		{"get_chat", map[string]any{"chat_id": "@x"}, "validation_error"},
		{"get_invite_link", map[string]any{"chat_id": 200000001}, "validation_error"},
		{"mute_chat", map[string]any{"chat_id": 200000001, "mute_until": 1}, "validation_error"},
	}
	for _, tt := range tests {
		result := callTool(t, cs, tt.tool, tt.arguments)
		if !result.IsError || result.Meta["category"] != tt.kind {
			t.Errorf("%s(%v) = %+v, want %s", tt.tool, tt.arguments, result, tt.kind)
			continue
		}
		if result.Meta["retryable"] != false {
			t.Errorf("%s marked retryable", tt.tool)
		}
		if !strings.HasPrefix(text(result), tt.kind+": ") {
			t.Errorf("%s text = %q", tt.tool, text(result))
		}
	}
}

func TestUnknownToolIsAProtocolError(t *testing.T) {
	cs := connect(t, newTestServer(t, memory.Demo()))
	_, err := cs.CallTool(context.Background(), &sdk.CallToolParams{Name: "launch_rockets", Arguments: map[string]any{}})
	if err == nil {
		t.Error("unknown tool succeeded")
	}
}

func TestDraftTools(t *testing.T) {
	cs := connect(t, newTestServer(t, memory.Demo()))

	callTool(t, cs, "save_draft", map[string]any{"chat_id": -4000001, "message": "see you"})
	var got struct {
		Draft *domain.Draft `json:"draft"`
	}
	decode(t, callTool(t, cs, "get_draft", map[string]any{"chat_id": -4000001}), &got)
	if got.Draft == nil || got.Draft.Text != "see you" {
		t.Errorf("saved draft = %+v", got.Draft)
	}

	callTool(t, cs, "clear_draft", map[string]any{"chat_id": -4000001})
	got.Draft = nil
	decode(t, callTool(t, cs, "get_draft", map[string]any{"chat_id": -4000001}), &got)
	if got.Draft != nil {
		t.Errorf("draft after clear = %+v", got.Draft)
	}
}

func TestChatSettingTools(t *testing.T) {
	cs := connect(t, newTestServer(t, memory.Demo()))

	var chat domain.Chat
	decode(t, callTool(t, cs, "mute_chat", map[string]any{"chat_id": 200000002}), &chat)
	if !chat.Muted {
		t.Errorf("mute_chat = %+v", chat)
	}
	decode(t, callTool(t, cs, "unmute_chat", map[string]any{"chat_id": 200000002}), &chat)
	if chat.Muted {
		t.Errorf("unmute_chat = %+v", chat)
	}

	decode(t, callTool(t, cs, "archive_chat", map[string]any{"chat_id": -4000001}), &chat)
	if !chat.Archived {
		t.Errorf("archive_chat = %+v", chat)
	}
	var archived gateway.ChatPage
	decode(t, callTool(t, cs, "list_chats", map[string]any{"archived": true}), &archived)
	if len(archived.Chats) != 1 || archived.Chats[0].ID != -4000001 {
		t.Errorf("archive folder = %+v", archived.Chats)
	}
	decode(t, callTool(t, cs, "unarchive_chat", map[string]any{"chat_id": -4000001}), &chat)
	if chat.Archived {
		t.Errorf("unarchive_chat = %+v", chat)
	}

	var link struct {
		InviteLink string `json:"invite_link"`
	}
	decode(t, callTool(t, cs, "get_invite_link", map[string]any{"chat_id": -4000001}), &link)
	if !strings.HasPrefix(link.InviteLink, "https://t.me/+") {
		t.Errorf("invite link = %q", link.InviteLink)
	}
}

func TestContactTools(t *testing.T) {
	cs := connect(t, newTestServer(t, memory.Demo()))

	var contact domain.Contact
	decode(t, callTool(t, cs, "add_contact", map[string]any{"phone": "+10000000004", "first_name": "Dave"}), &contact)
	if contact.ID != 200000004 || contact.Name != "Dave" {
		t.Errorf("add_contact = %+v", contact)
	}

	var chat domain.Chat
	decode(t, callTool(t, cs, "resolve_username", map[string]any{"username": "@release_notes"}), &chat)
	if chat.ID != -1002000000001 {
		t.Errorf("resolve_username = %+v", chat)
	}

	var status domain.UserStatus
	decode(t, callTool(t, cs, "get_user_status", map[string]any{"user_id": 200000002}), &status)
	if status.Status != domain.PresenceRecently {
		t.Errorf("get_user_status = %+v", status)
	}

	callTool(t, cs, "delete_contact", map[string]any{"user_id": 200000004})
	result := callTool(t, cs, "delete_contact", map[string]any{"user_id": 200000004})
	if !result.IsError || result.Meta["category"] != "not_found" {
		t.Errorf("second delete_contact = %+v", result)
	}
}

func TestSessionStatusDoesNotConnect(t *testing.T) {
	backend := memory.Demo()
	cs := connect(t, newTestServer(t, backend))

	var snapshot struct {
		Status string `json:"status"`
	}
	decode(t, callTool(t, cs, "session_status", nil), &snapshot)
	if snapshot.Status != "disconnected" {
		t.Errorf("status = %q", snapshot.Status)
	}
	if calls := backend.Calls(); len(calls) != 0 {
		t.Errorf("status touched the backend: %v", calls)
	}
}

func TestStreamableHTTPTransport(t *testing.T) {
	server := newTestServer(t, memory.Demo())
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	ctx := context.Background()
	client := sdk.NewClient(&sdk.Implementation{Name: "test", Version: "1.0"}, nil)
	cs, err := client.Connect(ctx, &sdk.StreamableClientTransport{Endpoint: ts.URL}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cs.Close()

	var contacts gateway.ContactPage
	decode(t, callTool(t, cs, "list_contacts", map[string]any{"page_size": 2}), &contacts)
	if len(contacts.Contacts) != 2 || contacts.Contacts[0].Name != "Alice Example" {
		t.Errorf("contacts = %+v", contacts)
	}
}
