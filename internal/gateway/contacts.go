package gateway

import (
	"context"
	"sort"
	"strings"

	"github.com/yegors/telegate/internal/domain"
)

const opListContacts = "list_contacts"

// ContactsRequest asks for one page of the address book
type ContactsRequest struct {
	PageSize  int
	PageToken string
}

// ContactPage is one page of contacts
type ContactPage struct {
	Contacts      []domain.Contact `json:"contacts"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

// ListContacts returns the address book ordered by name, then id
func (g *Gateway) ListContacts(ctx context.Context, req ContactsRequest) (ContactPage, error) {
	size, err := g.pageSize(req.PageSize)
	if err != nil {
		return ContactPage{}, err
	}
	offset, err := g.offset(req.PageToken, opListContacts, "")
	if err != nil {
		return ContactPage{}, err
	}

	return call(g, ctx, opListContacts, func(ctx context.Context, conn domain.Conn) (ContactPage, error) {
		contacts, err := conn.Contacts(ctx)
		if err != nil {
			return ContactPage{}, err
		}
		sortContacts(contacts)

		var page ContactPage
		page.Contacts, page.NextPageToken = window(g, contacts, offset, size, opListContacts, "")
		return page, nil
	})
}

// SearchContacts finds contacts and known users by name or username. limit
// follows the page size rules.
func (g *Gateway) SearchContacts(ctx context.Context, query string, limit int) ([]domain.Contact, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ValidationError("query must not be empty")
	}
	limit, err := g.pageSize(limit)
	if err != nil {
		return nil, err
	}

	contacts, err := call(g, ctx, "search_contacts", func(ctx context.Context, conn domain.Conn) ([]domain.Contact, error) {
		return conn.SearchContacts(ctx, query, limit)
	})
	if err != nil {
		return nil, err
	}
	if len(contacts) > limit {
		contacts = contacts[:limit]
	}
	if contacts == nil {
		contacts = []domain.Contact{}
	}
	return contacts, nil
}

// AddContact imports a phone number into the address book
func (g *Gateway) AddContact(ctx context.Context, contact domain.NewContact) (domain.Contact, error) {
	contact.Phone = normalizePhone(contact.Phone)
	contact.FirstName = strings.TrimSpace(contact.FirstName)
	contact.LastName = strings.TrimSpace(contact.LastName)
	if contact.Phone == "" {
		return domain.Contact{}, domain.ValidationError("phone must be an international number")
	}
	if contact.FirstName == "" {
		return domain.Contact{}, domain.ValidationError("first_name is required")
	}
	return call(g, ctx, "add_contact", func(ctx context.Context, conn domain.Conn) (domain.Contact, error) {
		return conn.AddContact(ctx, contact)
	})
}

// DeleteContact removes a user from the address book
func (g *Gateway) DeleteContact(ctx context.Context, ref domain.ChatRef) error {
	if err := requireUser(ref, "user_id"); err != nil {
		return err
	}
	return exec(g, ctx, "delete_contact", func(ctx context.Context, conn domain.Conn) error {
		return conn.DeleteContact(ctx, ref)
	})
}

// UserStatus returns the presence of a user
func (g *Gateway) UserStatus(ctx context.Context, ref domain.ChatRef) (domain.UserStatus, error) {
	if err := requireUser(ref, "user_id"); err != nil {
		return domain.UserStatus{}, err
	}
	return call(g, ctx, "get_user_status", func(ctx context.Context, conn domain.Conn) (domain.UserStatus, error) {
		return conn.UserStatus(ctx, ref)
	})
}

// Me returns the account the session is logged in as
func (g *Gateway) Me(ctx context.Context) (domain.User, error) {
	return call(g, ctx, "get_me", func(ctx context.Context, conn domain.Conn) (domain.User, error) {
		return conn.Self(ctx)
	})
}

// requireUser accepts a user id or a username; group and channel ids are
// negative
func requireUser(ref domain.ChatRef, field string) error {
	if err := requireChat(ref, field); err != nil {
		return err
	}
	if ref.ID < 0 {
		return domain.ValidationError("%s must name a user, got chat %d", field, ref.ID)
	}
	return nil
}

// normalizePhone keeps the digits of a phone number, with the leading plus
// when given. Anything other than digits and separators makes it invalid.
func normalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	for i, c := range phone {
		switch {
		case c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == '+' && i == 0:
			b.WriteRune(c)
		case c == ' ' || c == '-' || c == '(' || c == ')' || c == '.':
		default:
			return ""
		}
	}
	digits := strings.TrimPrefix(b.String(), "+")
	if len(digits) < 5 || len(digits) > 15 {
		return ""
	}
	return b.String()
}

func sortContacts(contacts []domain.Contact) {
	sort.SliceStable(contacts, func(i, j int) bool {
		a, b := strings.ToLower(contacts[i].Name), strings.ToLower(contacts[j].Name)
		if a != b {
			return a < b
		}
		return contacts[i].ID < contacts[j].ID
	})
}
