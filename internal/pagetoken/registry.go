// Package pagetoken issues opaque continuation tokens for paginated listings.
//
// A token is a random UUID mapped in memory to the listing it continues: the
// operation name, a scope string describing the listing's inputs, and the
// cursor where the next page starts. Callers never see the cursor. Tokens
// can be resolved any number of times until they expire, so a page request
// can be retried safely.
package pagetoken

import (
	"container/list"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yegors/telegate/internal/domain"
)

const (
	DefaultTTL        = 30 * time.Minute
	DefaultMaxEntries = 10000
)

type entry struct {
	token    string
	key      string
	op       string
	scope    string
	cursor   string
	issuedAt time.Time
	elem     *list.Element
}

// Registry maps tokens to cursors. Safe for concurrent use.
type Registry struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	byToken map[string]*entry
	byKey   map[string]*entry
	order   *list.List // oldest first
}

// NewRegistry creates a registry. Non-positive arguments select the defaults.
func NewRegistry(ttl time.Duration, maxEntries int) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Registry{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		byToken:    make(map[string]*entry),
		byKey:      make(map[string]*entry),
		order:      list.New(),
	}
}

// Issue returns a token continuing op over scope at cursor. Issuing the same
// continuation twice returns the same live token, so a retried page yields
// an identical next token.
func (r *Registry) Issue(op, scope, cursor string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.pruneLocked(now)

	key := op + "\x00" + scope + "\x00" + cursor
	if e, ok := r.byKey[key]; ok {
		return e.token
	}

	for r.order.Len() >= r.maxEntries {
		r.removeLocked(r.order.Front().Value.(*entry))
	}

	e := &entry{
		token:    uuid.NewString(),
		key:      key,
		op:       op,
		scope:    scope,
		cursor:   cursor,
		issuedAt: now,
	}
	e.elem = r.order.PushBack(e)
	r.byToken[e.token] = e
	r.byKey[key] = e
	return e.token
}

// Resolve returns the cursor of token. The token must have been issued for
// the same op and scope and must not have expired.
func (r *Registry) Resolve(token, op, scope string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byToken[token]
	if !ok {
		return "", domain.InvalidPageToken("page_token is unknown or has expired")
	}
	if r.now().Sub(e.issuedAt) > r.ttl {
		r.removeLocked(e)
		return "", domain.InvalidPageToken("page_token has expired")
	}
	if e.op != op || e.scope != scope {
		return "", domain.InvalidPageToken("page_token was issued for a different listing")
	}
	return e.cursor, nil
}

// Len returns the number of live tokens
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}

func (r *Registry) pruneLocked(now time.Time) {
	for front := r.order.Front(); front != nil; front = r.order.Front() {
		e := front.Value.(*entry)
		if now.Sub(e.issuedAt) <= r.ttl {
			return
		}
		r.removeLocked(e)
	}
}

func (r *Registry) removeLocked(e *entry) {
	r.order.Remove(e.elem)
	delete(r.byToken, e.token)
	delete(r.byKey, e.key)
}
