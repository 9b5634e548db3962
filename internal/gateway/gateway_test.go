package gateway

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/yegors/telegate/internal/domain"
	"github.com/yegors/telegate/internal/session"
	"github.com/yegors/telegate/internal/telegram/memory"
	"github.com/yegors/telegate/pkg/logger"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestGateway(t *testing.T, backend *memory.Backend, config Config) *Gateway {
	t.Helper()
	manager := session.NewManager(backend, memory.Credential(), session.Config{
		MaxAttempts: 1,
		CallTimeout: 5 * time.Second,
	}, logger.NewNop())
	t.Cleanup(func() { manager.Close() })
	return New(manager, config, logger.NewNop())
}

// backendWithChats has n chats. Every third chat shares its last activity
// with the previous one so the id tie-break matters.
func backendWithChats(n int) *memory.Backend {
	b := memory.New(domain.User{ID: 1, Name: "Me"})
	for i := 0; i < n; i++ {
		activity := epoch.Add(time.Duration(i/3*3) * time.Minute)
		kind := domain.ChatKindDirect
		if i%2 == 1 {
			kind = domain.ChatKindGroup
		}
		b.AddChat(domain.Chat{
			ID:           int64(1000 - i),
			Name:         fmt.Sprintf("chat %d", i),
			Kind:         kind,
			LastActivity: activity,
			UnreadCount:  i % 4,
		})
	}
	return b
}

func TestListChatsClampsPageSize(t *testing.T) {
	g := newTestGateway(t, backendWithChats(150), Config{DefaultPageSize: 20, MaxPageSize: 100})

	page, err := g.ListChats(context.Background(), ChatsRequest{PageSize: 500})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Chats) != 100 {
		t.Errorf("got %d chats, want 100", len(page.Chats))
	}
	if page.NextPageToken == "" {
		t.Error("missing next page token")
	}

	page, err = g.ListChats(context.Background(), ChatsRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Chats) != 20 {
		t.Errorf("page_size 0 returned %d chats, want the default 20", len(page.Chats))
	}

	if _, err := g.ListChats(context.Background(), ChatsRequest{PageSize: -1}); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("negative page_size: %v", err)
	}
}

func TestListChatsPagesAreCompleteAndOrdered(t *testing.T) {
	g := newTestGateway(t, backendWithChats(23), Config{MaxPageSize: 100})
	ctx := context.Background()

	full, err := g.ListChats(ctx, ChatsRequest{PageSize: 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(full.Chats) != 23 || full.NextPageToken != "" {
		t.Fatalf("unbounded listing has %d chats, token %q", len(full.Chats), full.NextPageToken)
	}
	for i := 1; i < len(full.Chats); i++ {
		prev, cur := full.Chats[i-1], full.Chats[i]
		if prev.LastActivity.Before(cur.LastActivity) ||
			(prev.LastActivity.Equal(cur.LastActivity) && prev.ID > cur.ID) {
			t.Fatalf("chats %d and %d out of order", prev.ID, cur.ID)
		}
	}

	var paged []domain.Chat
	token := ""
	for pages := 0; ; pages++ {
		if pages > 10 {
			t.Fatal("pagination does not terminate")
		}
		page, err := g.ListChats(ctx, ChatsRequest{PageSize: 5, PageToken: token})
		if err != nil {
			t.Fatal(err)
		}
		paged = append(paged, page.Chats...)
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}

	if len(paged) != len(full.Chats) {
		t.Fatalf("paged listing has %d chats, want %d", len(paged), len(full.Chats))
	}
	for i := range paged {
		if paged[i].ID != full.Chats[i].ID {
			t.Errorf("position %d: paged %d, unbounded %d", i, paged[i].ID, full.Chats[i].ID)
		}
	}
}

func TestListChatsFilters(t *testing.T) {
	g := newTestGateway(t, backendWithChats(12), Config{})
	ctx := context.Background()

	page, err := g.ListChats(ctx, ChatsRequest{Kind: domain.ChatKindGroup, UnreadOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	for _, chat := range page.Chats {
		if chat.Kind != domain.ChatKindGroup || chat.UnreadCount == 0 {
			t.Errorf("chat %+v passed the filter", chat)
		}
	}
	if len(page.Chats) == 0 {
		t.Error("filter matched nothing")
	}

	if _, err := g.ListChats(ctx, ChatsRequest{Kind: "supergroup"}); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("unknown kind: %v", err)
	}
}

func TestPageTokensAreBoundToTheirListing(t *testing.T) {
	backend := backendWithChats(30)
	for i := 0; i < 30; i++ {
		backend.AddContact(domain.Contact{ID: int64(i + 1), Name: fmt.Sprintf("contact %02d", i)})
	}
	g := newTestGateway(t, backend, Config{})
	ctx := context.Background()

	page, err := g.ListChats(ctx, ChatsRequest{PageSize: 10})
	if err != nil {
		t.Fatal(err)
	}
	token := page.NextPageToken

	// a token can be replayed to retry the same page
	first, err := g.ListChats(ctx, ChatsRequest{PageSize: 10, PageToken: token})
	if err != nil {
		t.Fatal(err)
	}
	again, err := g.ListChats(ctx, ChatsRequest{PageSize: 10, PageToken: token})
	if err != nil {
		t.Fatal(err)
	}
	if first.Chats[0].ID != again.Chats[0].ID || first.NextPageToken != again.NextPageToken {
		t.Error("replaying a token returned a different page")
	}

	checks := []struct {
		name string
		call func() error
	}{
		{"unknown token", func() error {
			_, err := g.ListChats(ctx, ChatsRequest{PageToken: "3f9a2c1e-0000-4000-8000-000000000000"})
			return err
		}},
		{"other filter", func() error {
			_, err := g.ListChats(ctx, ChatsRequest{PageToken: token, UnreadOnly: true})
			return err
		}},
		{"other operation", func() error {
			_, err := g.ListContacts(ctx, ContactsRequest{PageToken: token})
			return err
		}},
		{"messages", func() error {
			_, err := g.GetMessages(ctx, MessagesRequest{Chat: domain.IDRef(1000), PageToken: token})
			return err
		}},
		{"search", func() error {
			_, err := g.SearchMessages(ctx, SearchRequest{Query: "x", PageToken: token})
			return err
		}},
	}
	for _, check := range checks {
		if err := check.call(); !domain.IsKind(err, domain.KindInvalidPageToken) {
			t.Errorf("%s: error = %v, want invalid_page_token", check.name, err)
		}
	}
}

func TestGetMessagesPagesNewestFirst(t *testing.T) {
	backend := memory.New(domain.User{ID: 1})
	backend.AddChat(domain.Chat{ID: 77, Name: "history", Kind: domain.ChatKindDirect})
	for i := 0; i < 7; i++ {
		backend.AddMessage(77, 77, fmt.Sprintf("message %d", i+1), epoch.Add(time.Duration(i)*time.Minute))
	}
	g := newTestGateway(t, backend, Config{})
	ctx := context.Background()
	ref := domain.IDRef(77)

	want := [][]int{{7, 6, 5}, {4, 3, 2}, {1}}
	token := ""
	for i, ids := range want {
		page, err := g.GetMessages(ctx, MessagesRequest{Chat: ref, PageSize: 3, PageToken: token})
		if err != nil {
			t.Fatalf("page %d: %v", i+1, err)
		}
		if got := messageIDs(page.Messages); fmt.Sprint(got) != fmt.Sprint(ids) {
			t.Errorf("page %d ids = %v, want %v", i+1, got, ids)
		}
		if i == 0 {
			// a new message must not shift later pages
			backend.AddMessage(77, 77, "late arrival", epoch.Add(time.Hour))
		}
		token = page.NextPageToken
		if (token == "") != (i == len(want)-1) {
			t.Errorf("page %d: next token %q", i+1, token)
		}
	}
}

func TestGetMessagesUnknownChat(t *testing.T) {
	g := newTestGateway(t, memory.Demo(), Config{})

	_, err := g.GetMessages(context.Background(), MessagesRequest{Chat: domain.IDRef(424242)})
	if !domain.IsKind(err, domain.KindNotFound) {
		t.Errorf("error = %v, want not_found", err)
	}
	if _, err := g.GetChat(context.Background(), domain.IDRef(424242)); !domain.IsKind(err, domain.KindNotFound) {
		t.Errorf("GetChat error = %v, want not_found", err)
	}
}

func TestSendBlankMessageHasNoSideEffect(t *testing.T) {
	backend := memory.Demo()
	g := newTestGateway(t, backend, Config{})

	for _, text := range []string{"", "   ", "\n\t "} {
		_, err := g.SendMessage(context.Background(), domain.IDRef(200000001), text, 0)
		if !domain.IsKind(err, domain.KindValidation) {
			t.Errorf("SendMessage(%q) error = %v, want validation_error", text, err)
		}
	}
	if calls := backend.Calls(); len(calls) != 0 {
		t.Errorf("upstream saw %v", calls)
	}

	msg, err := g.SendMessage(context.Background(), domain.ChatRef{Username: "alice_example"}, "hello", 0)
	if err != nil {
		t.Fatal(err)
	}
	if msg.ChatID != 200000001 || msg.ID == 0 || msg.Direction != domain.DirectionOutgoing {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestSaveEmptyDraftClears(t *testing.T) {
	g := newTestGateway(t, memory.Demo(), Config{})
	ctx := context.Background()
	ref := domain.IDRef(-4000001)

	saved, err := g.SaveDraft(ctx, ref, "see you", 0)
	if err != nil {
		t.Fatal(err)
	}
	got, err := g.GetDraft(ctx, ref)
	if err != nil || got == nil || got.Text != saved.Text {
		t.Fatalf("GetDraft = %+v, %v", got, err)
	}

	if _, err := g.SaveDraft(ctx, ref, "second", 0); err != nil {
		t.Fatal(err)
	}
	if got, _ := g.GetDraft(ctx, ref); got == nil || got.Text != "second" {
		t.Errorf("draft not overwritten: %+v", got)
	}

	if _, err := g.SaveDraft(ctx, ref, "", 0); err != nil {
		t.Fatal(err)
	}
	got, err = g.GetDraft(ctx, ref)
	if err != nil {
		t.Fatalf("GetDraft after clearing: %v", err)
	}
	if got != nil {
		t.Errorf("draft survived clearing: %+v", got)
	}

	if err := g.ClearDraft(ctx, ref); err != nil {
		t.Errorf("clearing an absent draft: %v", err)
	}
}

func TestSearchMessages(t *testing.T) {
	g := newTestGateway(t, memory.Demo(), Config{})
	ctx := context.Background()

	if _, err := g.SearchMessages(ctx, SearchRequest{Query: "  "}); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("blank query: %v", err)
	}

	first, err := g.SearchMessages(ctx, SearchRequest{Query: "saturday", PageSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Messages) != 1 || first.NextPageToken == "" {
		t.Fatalf("first page %+v", first)
	}
	second, err := g.SearchMessages(ctx, SearchRequest{Query: "saturday", PageSize: 1, PageToken: first.NextPageToken})
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Messages) != 1 || second.Messages[0].ChatID == first.Messages[0].ChatID {
		t.Errorf("second page %+v", second)
	}

	_, err = g.SearchMessages(ctx, SearchRequest{Query: "report", PageSize: 1, PageToken: first.NextPageToken})
	if !domain.IsKind(err, domain.KindInvalidPageToken) {
		t.Errorf("token reused for another query: %v", err)
	}

	chat := domain.IDRef(200000001)
	scoped, err := g.SearchMessages(ctx, SearchRequest{Chat: &chat, Query: "saturday"})
	if err != nil {
		t.Fatal(err)
	}
	for _, msg := range scoped.Messages {
		if msg.ChatID != 200000001 {
			t.Errorf("chat-scoped search returned chat %d", msg.ChatID)
		}
	}
}

func TestListContactsOrder(t *testing.T) {
	backend := memory.New(domain.User{ID: 1})
	backend.AddContact(domain.Contact{ID: 3, Name: "bob"})
	backend.AddContact(domain.Contact{ID: 2, Name: "Alice"})
	backend.AddContact(domain.Contact{ID: 1, Name: "Bob"})
	g := newTestGateway(t, backend, Config{})

	page, err := g.ListContacts(context.Background(), ContactsRequest{})
	if err != nil {
		t.Fatal(err)
	}
	var ids []int64
	for _, c := range page.Contacts {
		ids = append(ids, c.ID)
	}
	if fmt.Sprint(ids) != "[2 1 3]" {
		t.Errorf("contact order = %v, want [2 1 3]", ids)
	}

	found, err := g.SearchContacts(context.Background(), "BOB", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 {
		t.Errorf("search limit ignored: %+v", found)
	}
}

func TestMessageMutationValidation(t *testing.T) {
	backend := memory.Demo()
	g := newTestGateway(t, backend, Config{})
	ctx := context.Background()
	chat := domain.IDRef(200000001)

	checks := map[string]error{
		"edit without id":       func() error { _, err := g.EditMessage(ctx, chat, 0, "x"); return err }(),
		"edit blank text":       func() error { _, err := g.EditMessage(ctx, chat, 2, " "); return err }(),
		"delete nothing":        g.DeleteMessages(ctx, chat, nil, false),
		"delete negative id":    g.DeleteMessages(ctx, chat, []int{1, -2}, true),
		"forward without chat":  func() error { _, err := g.ForwardMessages(ctx, chat, domain.ChatRef{}, []int{1}); return err }(),
		"send to missing chat":  func() error { _, err := g.SendMessage(ctx, domain.ChatRef{}, "hi", 0); return err }(),
		"draft negative reply":  func() error { _, err := g.SaveDraft(ctx, chat, "hi", -1); return err }(),
		"search contacts blank": func() error { _, err := g.SearchContacts(ctx, "", 0); return err }(),
	}
	for name, err := range checks {
		if !domain.IsKind(err, domain.KindValidation) {
			t.Errorf("%s: error = %v, want validation_error", name, err)
		}
	}
	if calls := backend.Calls(); len(calls) != 0 {
		t.Errorf("validation failures reached upstream: %v", calls)
	}

	forwarded, err := g.ForwardMessages(ctx, chat, domain.IDRef(200000002), []int{1, 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(forwarded) != 2 || forwarded[0].ChatID != 200000002 {
		t.Errorf("forwarded %+v", forwarded)
	}
	if err := g.DeleteMessages(ctx, chat, []int{1}, true); err != nil {
		t.Fatal(err)
	}
}

func TestConcurrentCallsDoNotInterleave(t *testing.T) {
	backend := memory.Demo()
	g := newTestGateway(t, backend, Config{})

	var mu sync.Mutex
	var events []string
	record := func(event string) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	}
	historyStarted := make(chan struct{})
	backend.SetHook(func(_ context.Context, op string) {
		switch op {
		case "history":
			record("history:start")
			close(historyStarted)
			time.Sleep(50 * time.Millisecond)
			record("history:end")
		case "send":
			record("send:start")
		}
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := g.GetMessages(context.Background(), MessagesRequest{Chat: domain.IDRef(200000001)}); err != nil {
			t.Errorf("GetMessages: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		<-historyStarted
		if _, err := g.SendMessage(context.Background(), domain.IDRef(200000002), "ping", 0); err != nil {
			t.Errorf("SendMessage: %v", err)
		}
	}()
	wg.Wait()

	want := "[history:start history:end send:start]"
	if got := fmt.Sprint(events); got != want {
		t.Errorf("events = %s, want %s", got, want)
	}
}

func TestSessionFailuresPropagate(t *testing.T) {
	backend := memory.Demo()
	backend.FailDials(domain.AuthError(nil, "AUTH_KEY_UNREGISTERED"))
	g := newTestGateway(t, backend, Config{})

	_, err := g.Me(context.Background())
	if !domain.IsKind(err, domain.KindAuth) {
		t.Fatalf("Me error = %v, want auth_error", err)
	}
	if calls := backend.Calls(); fmt.Sprint(calls) != "[dial]" {
		t.Errorf("upstream calls = %v, want only the failed dial", calls)
	}
}

func TestAbandonedCallDiscardsResult(t *testing.T) {
	backend := memory.Demo()
	g := newTestGateway(t, backend, Config{})

	finished := make(chan struct{})
	var once sync.Once
	backend.SetHook(func(_ context.Context, op string) {
		if op == "chat" {
			once.Do(func() {
				defer close(finished)
				time.Sleep(30 * time.Millisecond)
			})
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	chat, err := g.GetChat(ctx, domain.IDRef(200000001))
	if !domain.IsKind(err, domain.KindConnection) {
		t.Fatalf("GetChat error = %v, want connection_error", err)
	}
	if chat.ID != 0 {
		t.Errorf("abandoned call returned %+v", chat)
	}

	// the in-flight call completes on its own and the session stays usable
	<-finished
	chat, err = g.GetChat(context.Background(), domain.IDRef(200000001))
	if err != nil {
		t.Fatal(err)
	}
	if chat.Name != "Alice Example" {
		t.Errorf("chat = %+v", chat)
	}
}

func TestMessageIDs(t *testing.T) {
	tests := []struct {
		single int
		more   []int
		want   string
	}{
		{7, nil, "[7]"},
		{0, []int{3, 4}, "[3 4]"},
		{3, []int{3, 5, 0, 5}, "[3 5]"},
		{0, nil, "[]"},
		{-1, []int{2}, "[-1 2]"},
	}
	for _, tt := range tests {
		if got := fmt.Sprint(MessageIDs(tt.single, tt.more...)); got != tt.want {
			t.Errorf("MessageIDs(%d, %v) = %s, want %s", tt.single, tt.more, got, tt.want)
		}
	}
}

func TestChatSettings(t *testing.T) {
	g := newTestGateway(t, memory.Demo(), Config{})
	ctx := context.Background()
	bob := domain.IDRef(200000002)

	chat, err := g.MuteChat(ctx, bob, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if !chat.Muted {
		t.Errorf("muted chat = %+v", chat)
	}
	if chat, err = g.UnmuteChat(ctx, bob); err != nil || chat.Muted {
		t.Errorf("unmute = %+v, %v", chat, err)
	}
	if _, err := g.MuteChat(ctx, bob, time.Now().Add(-time.Minute)); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("mute into the past: %v", err)
	}
	if chat, err = g.MuteChat(ctx, bob, time.Now().Add(time.Hour)); err != nil || !chat.Muted {
		t.Errorf("timed mute = %+v, %v", chat, err)
	}

	if chat, err = g.ArchiveChat(ctx, bob); err != nil || !chat.Archived {
		t.Fatalf("archive = %+v, %v", chat, err)
	}
	mainList, err := g.ListChats(ctx, ChatsRequest{PageSize: 100})
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range mainList.Chats {
		if c.ID == bob.ID {
			t.Error("archived chat listed in the main list")
		}
	}
	archived, err := g.ListChats(ctx, ChatsRequest{Archived: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(archived.Chats) != 1 || archived.Chats[0].ID != bob.ID {
		t.Errorf("archive folder = %+v", archived.Chats)
	}

	// a token minted for the main list cannot page the archive
	first, err := g.ListChats(ctx, ChatsRequest{PageSize: 1})
	if err != nil || first.NextPageToken == "" {
		t.Fatalf("first page = %+v, %v", first, err)
	}
	if _, err := g.ListChats(ctx, ChatsRequest{PageSize: 1, PageToken: first.NextPageToken, Archived: true}); !domain.IsKind(err, domain.KindInvalidPageToken) {
		t.Errorf("token reused across folders: %v", err)
	}

	if chat, err = g.UnarchiveChat(ctx, bob); err != nil || chat.Archived {
		t.Errorf("unarchive = %+v, %v", chat, err)
	}
}

func TestInviteLink(t *testing.T) {
	g := newTestGateway(t, memory.Demo(), Config{})
	ctx := context.Background()

	link, err := g.InviteLink(ctx, domain.IDRef(-4000001))
	if err != nil {
		t.Fatal(err)
	}
	again, err := g.InviteLink(ctx, domain.IDRef(-4000001))
	if err != nil || again != link || link == "" {
		t.Errorf("links = %q, %q (%v)", link, again, err)
	}
	if _, err := g.InviteLink(ctx, domain.IDRef(200000001)); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("direct chat invite link: %v", err)
	}
	if _, err := g.InviteLink(ctx, domain.ChatRef{Username: "alice_example"}); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("user invite link by username: %v", err)
	}
}

func TestResolveUsername(t *testing.T) {
	g := newTestGateway(t, memory.Demo(), Config{})
	ctx := context.Background()

	chat, err := g.ResolveUsername(ctx, "@release_notes")
	if err != nil {
		t.Fatal(err)
	}
	if chat.ID != -1002000000001 || chat.Kind != domain.ChatKindChannel {
		t.Errorf("@release_notes = %+v", chat)
	}
	if chat, err = g.ResolveUsername(ctx, "carol_example"); err != nil || chat.ID != 200000003 {
		t.Errorf("carol_example = %+v, %v", chat, err)
	}
	if _, err := g.ResolveUsername(ctx, "nobody_here"); !domain.IsKind(err, domain.KindNotFound) {
		t.Errorf("unknown username: %v", err)
	}
	for _, bad := range []string{"", "  ", "@", "no spaces"} {
		if _, err := g.ResolveUsername(ctx, bad); !domain.IsKind(err, domain.KindValidation) {
			t.Errorf("ResolveUsername(%q) = %v, want validation_error", bad, err)
		}
	}
}

func TestContactLifecycle(t *testing.T) {
	g := newTestGateway(t, memory.Demo(), Config{})
	ctx := context.Background()

	contact, err := g.AddContact(ctx, domain.NewContact{Phone: "+1 (000) 000-0004", FirstName: "Dave", LastName: "E."})
	if err != nil {
		t.Fatal(err)
	}
	if contact.ID != 200000004 || contact.Name != "Dave E." {
		t.Errorf("added %+v", contact)
	}
	page, err := g.ListContacts(ctx, ContactsRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Contacts) != 4 {
		t.Errorf("contacts after add = %d, want 4", len(page.Contacts))
	}

	if _, err := g.AddContact(ctx, domain.NewContact{Phone: "+19999999999", FirstName: "Nobody"}); !domain.IsKind(err, domain.KindNotFound) {
		t.Errorf("unregistered phone: %v", err)
	}
	invalid := []domain.NewContact{
		{Phone: "", FirstName: "A"},
		{Phone: "call me", FirstName: "A"},
		{Phone: "123", FirstName: "A"},
		{Phone: "+10000000004", FirstName: " "},
	}
	for _, c := range invalid {
		if _, err := g.AddContact(ctx, c); !domain.IsKind(err, domain.KindValidation) {
			t.Errorf("AddContact(%+v) = %v, want validation_error", c, err)
		}
	}

	if err := g.DeleteContact(ctx, domain.IDRef(200000004)); err != nil {
		t.Fatal(err)
	}
	if err := g.DeleteContact(ctx, domain.IDRef(200000004)); !domain.IsKind(err, domain.KindNotFound) {
		t.Errorf("second delete: %v", err)
	}
	if err := g.DeleteContact(ctx, domain.IDRef(-4000001)); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("delete group as contact: %v", err)
	}
}

func TestUserStatus(t *testing.T) {
	g := newTestGateway(t, memory.Demo(), Config{})
	ctx := context.Background()

	status, err := g.UserStatus(ctx, domain.ChatRef{Username: "alice_example"})
	if err != nil {
		t.Fatal(err)
	}
	if status.Status != domain.PresenceOffline || status.LastSeen == nil {
		t.Errorf("alice = %+v", status)
	}
	if status, err = g.UserStatus(ctx, domain.IDRef(200000003)); err != nil || status.Status != domain.PresenceUnknown {
		t.Errorf("carol = %+v, %v", status, err)
	}
	if _, err := g.UserStatus(ctx, domain.IDRef(555)); !domain.IsKind(err, domain.KindNotFound) {
		t.Errorf("unknown user: %v", err)
	}
}

func messageIDs(msgs []domain.Message) []int {
	ids := make([]int, len(msgs))
	for i, msg := range msgs {
		ids[i] = msg.ID
	}
	return ids
}
