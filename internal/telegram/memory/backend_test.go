package memory

import (
	"context"
	"testing"
	"time"

	"github.com/yegors/telegate/internal/domain"
)

type recordingSink struct{ got []domain.Message }

func (s *recordingSink) IncomingMessage(msg domain.Message) { s.got = append(s.got, msg) }

func dial(t *testing.T, b *Backend) domain.Conn {
	t.Helper()
	conn, err := b.Dial(context.Background(), Credential())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return conn
}

func TestHistoryIsNewestFirstAndBounded(t *testing.T) {
	b := Demo()
	conn := dial(t, b)
	ctx := context.Background()

	all, err := conn.History(ctx, domain.IDRef(200000001), 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != 3 || all[2].ID != 1 {
		t.Fatalf("history ids = %v, want [3 2 1]", ids(all))
	}
	if all[1].Direction != domain.DirectionOutgoing || all[0].Direction != domain.DirectionIncoming {
		t.Error("directions not derived from the sender")
	}

	older, err := conn.History(ctx, domain.IDRef(200000001), 3, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(older) != 1 || older[0].ID != 2 {
		t.Errorf("history before 3 = %v, want [2]", ids(older))
	}
}

func TestResolveByUsername(t *testing.T) {
	conn := dial(t, Demo())

	chat, err := conn.Chat(context.Background(), domain.ChatRef{Username: "alice_example"})
	if err != nil {
		t.Fatal(err)
	}
	if chat.ID != 200000001 {
		t.Errorf("resolved id = %d", chat.ID)
	}

	_, err = conn.Chat(context.Background(), domain.ChatRef{Username: "nobody_here"})
	if !domain.IsKind(err, domain.KindNotFound) {
		t.Errorf("unknown username error = %v, want not_found", err)
	}
}

func TestSendClearsDraftAndUpdatesActivity(t *testing.T) {
	b := Demo()
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	b.SetClock(func() time.Time { return now })
	conn := dial(t, b)
	ctx := context.Background()
	ref := domain.IDRef(200000002)

	if _, err := conn.SaveDraft(ctx, ref, "half written", 0); err != nil {
		t.Fatal(err)
	}
	msg, err := conn.Send(ctx, ref, "Sent it", domain.SendOptions{ReplyTo: 1})
	if err != nil {
		t.Fatal(err)
	}
	if msg.ReplyTo != 1 || msg.Direction != domain.DirectionOutgoing || !msg.Date.Equal(now) {
		t.Errorf("unexpected message %+v", msg)
	}

	if _, ok, _ := conn.Draft(ctx, ref); ok {
		t.Error("draft survived a send")
	}
	chat, _ := conn.Chat(ctx, ref)
	if !chat.LastActivity.Equal(now) {
		t.Errorf("last activity = %s, want %s", chat.LastActivity, now)
	}
}

func TestSearchPagesThroughCursor(t *testing.T) {
	conn := dial(t, Demo())
	ctx := context.Background()

	first, err := conn.Search(ctx, domain.SearchQuery{Query: "SATURDAY", Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Messages) != 1 || first.Next == "" {
		t.Fatalf("first page = %+v", first)
	}
	second, err := conn.Search(ctx, domain.SearchQuery{Query: "saturday", Limit: 1, Cursor: first.Next})
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Messages) != 1 || second.Next != "" {
		t.Fatalf("second page = %+v", second)
	}
	if second.Messages[0] == first.Messages[0] {
		t.Error("pages overlap")
	}
}

func TestEditRequiresAuthorship(t *testing.T) {
	conn := dial(t, Demo())
	ctx := context.Background()

	if _, err := conn.Edit(ctx, domain.IDRef(200000001), 1, "changed"); !domain.IsKind(err, domain.KindUpstream) {
		t.Errorf("editing an incoming message: %v", err)
	}
	msg, err := conn.Edit(ctx, domain.IDRef(200000001), 2, "Yes, 10am at the trailhead.")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Text != "Yes, 10am at the trailhead." {
		t.Errorf("text = %q", msg.Text)
	}
}

func TestDeliverNotifiesSink(t *testing.T) {
	b := Demo()
	sink := &recordingSink{}
	b.SetSink(sink)

	if _, ok := b.Deliver(-4000001, 200000002, "running late"); !ok {
		t.Fatal("Deliver to a known chat failed")
	}
	if _, ok := b.Deliver(42, 1, "lost"); ok {
		t.Error("Deliver to an unknown chat succeeded")
	}
	if len(sink.got) != 1 || sink.got[0].ChatID != -4000001 {
		t.Errorf("sink got %+v", sink.got)
	}
}

func TestDroppedConnectionFailsCalls(t *testing.T) {
	b := Demo()
	conn := dial(t, b)
	b.DropConnections()

	select {
	case <-conn.Done():
	default:
		t.Fatal("Done not closed after drop")
	}
	if err := conn.Ping(context.Background()); !domain.IsKind(err, domain.KindConnection) {
		t.Errorf("Ping after drop = %v, want connection_error", err)
	}
}

func ids(msgs []domain.Message) []int {
	out := make([]int, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
