package memory

import (
	"time"

	"github.com/yegors/telegate/internal/domain"
)

// Demo returns a backend with a handful of chats, messages and contacts,
// used when the service runs with the memory backend configured.
func Demo() *Backend {
	self := domain.User{ID: 100000001, Name: "Demo Account", Username: "telegate_demo", Phone: "+10000000000"}
	b := New(self)

	base := time.Now().Add(-24 * time.Hour).Truncate(time.Minute)

	b.AddChat(domain.Chat{ID: 200000001, Name: "Alice Example", Kind: domain.ChatKindDirect, Username: "alice_example"})
	b.AddChat(domain.Chat{ID: 200000002, Name: "Bob Example", Kind: domain.ChatKindDirect})
	b.AddChat(domain.Chat{ID: -4000001, Name: "Weekend Hikers", Kind: domain.ChatKindGroup})
	b.AddChat(domain.Chat{ID: -1002000000001, Name: "Release Notes", Kind: domain.ChatKindChannel, Username: "release_notes"})
	b.AddChat(domain.Chat{ID: 300000001, Name: "Reminder Bot", Kind: domain.ChatKindBot, Username: "reminder_bot"})

	b.AddMessage(200000001, 200000001, "Hi! Are we still on for Saturday?", base)
	b.AddMessage(200000001, self.ID, "Yes, 9am at the trailhead.", base.Add(5*time.Minute))
	b.AddMessage(200000001, 200000001, "Great, see you there", base.Add(7*time.Minute))
	b.AddMessage(200000002, 200000002, "Can you send me the report?", base.Add(2*time.Hour))
	b.AddMessage(-4000001, 200000001, "Weather looks good for Saturday", base.Add(3*time.Hour))
	b.AddMessage(-4000001, 200000002, "I'll bring the map", base.Add(3*time.Hour+10*time.Minute))
	b.AddMessage(-1002000000001, -1002000000001, "Version 1.4 is out with faster search", base.Add(6*time.Hour))
	b.AddMessage(300000001, 300000001, "Reminder: report due Friday", base.Add(8*time.Hour))

	b.AddContact(domain.Contact{ID: 200000001, Name: "Alice Example", Username: "alice_example", Phone: "+10000000001"})
	b.AddContact(domain.Contact{ID: 200000002, Name: "Bob Example", Phone: "+10000000002"})
	b.AddContact(domain.Contact{ID: 200000003, Name: "Carol Example", Username: "carol_example", Phone: "+10000000003"})

	b.AddAccount(domain.Contact{ID: 200000004, Name: "Dave Example", Username: "dave_example", Phone: "+10000000004"})

	seen := base.Add(20 * time.Hour)
	b.SetPresence(domain.UserStatus{UserID: 200000001, Status: domain.PresenceOffline, LastSeen: &seen})
	b.SetPresence(domain.UserStatus{UserID: 200000002, Status: domain.PresenceRecently})

	return b
}
