package domain

import (
	"context"
	"time"
)

// Conn is one live, authenticated connection to the messaging service.
//
// Implementations are not required to be safe for concurrent use: the
// session manager is the only holder of a Conn and serializes every call.
// Errors returned by Conn methods should already be classified with the
// kinds in this package.
type Conn interface {
	// Self returns the authenticated account
	Self(ctx context.Context) (User, error)

	// Chats returns every dialog of the account, in no particular order
	Chats(ctx context.Context) ([]Chat, error)

	// Chat resolves a single chat. Unknown references fail with NotFound.
	Chat(ctx context.Context, ref ChatRef) (Chat, error)

	// History returns up to limit messages of a chat, newest first, all with
	// ids lower than before. before == 0 starts at the newest message.
	History(ctx context.Context, ref ChatRef, before int, limit int) ([]Message, error)

	// Search runs a message search in upstream order
	Search(ctx context.Context, query SearchQuery) (SearchPage, error)

	// Contacts returns the whole address book
	Contacts(ctx context.Context) ([]Contact, error)

	// SearchContacts looks up contacts and known users by name or username
	SearchContacts(ctx context.Context, query string, limit int) ([]Contact, error)

	// Send delivers a text message and returns it as created upstream
	Send(ctx context.Context, ref ChatRef, text string, opts SendOptions) (Message, error)

	// Edit replaces the text of a sent message
	Edit(ctx context.Context, ref ChatRef, messageID int, text string) (Message, error)

	// Delete removes messages. revoke also deletes them for the other side.
	Delete(ctx context.Context, ref ChatRef, messageIDs []int, revoke bool) error

	// Forward copies messages from one chat into another
	Forward(ctx context.Context, from, to ChatRef, messageIDs []int) ([]Message, error)

	// SaveDraft stores text as the chat's draft. Empty text clears it.
	SaveDraft(ctx context.Context, ref ChatRef, text string, replyTo int) (Draft, error)

	// Draft returns the chat's draft; ok is false when there is none
	Draft(ctx context.Context, ref ChatRef) (draft Draft, ok bool, err error)

	// ResolveUsername looks up the exact owner of a public username
	ResolveUsername(ctx context.Context, username string) (Chat, error)

	// UserStatus returns the presence of a user
	UserStatus(ctx context.Context, ref ChatRef) (UserStatus, error)

	// AddContact imports a phone number into the address book. A number
	// without an account fails with NotFound.
	AddContact(ctx context.Context, contact NewContact) (Contact, error)

	// DeleteContact removes a user from the address book
	DeleteContact(ctx context.Context, ref ChatRef) error

	// Mute silences notifications of a chat until the given time. The zero
	// time unmutes.
	Mute(ctx context.Context, ref ChatRef, until time.Time) error

	// Archive moves a chat into or out of the archive folder
	Archive(ctx context.Context, ref ChatRef, archived bool) error

	// InviteLink exports the primary invite link of a group or channel
	InviteLink(ctx context.Context, ref ChatRef) (string, error)

	// Ping checks the connection is still usable
	Ping(ctx context.Context) error

	// Done is closed when the connection terminates on its own
	Done() <-chan struct{}

	// Close tears the connection down. Idempotent.
	Close() error
}

// UpdateSink receives messages pushed by the service outside of any request
type UpdateSink interface {
	IncomingMessage(msg Message)
}
