package session

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/yegors/telegate/internal/domain"
)

// Credential is the material needed to resume an already authorized account
type Credential struct {
	APIID   int
	APIHash string
	// Session is the exported session string. Opaque to everything but the dialer.
	Session string
}

// Validate checks the credential shape without contacting the service
func (c Credential) Validate() error {
	if c.APIID <= 0 {
		return domain.AuthError(nil, "session: api id must be a positive integer")
	}
	if len(c.APIHash) != 32 {
		return domain.AuthError(nil, "session: api hash must be 32 hex characters")
	}
	if _, err := hex.DecodeString(c.APIHash); err != nil {
		return domain.AuthError(err, "session: api hash must be 32 hex characters")
	}
	if strings.TrimSpace(c.Session) == "" {
		return domain.AuthError(nil, "session: session string is empty")
	}
	return nil
}

// Fingerprint returns a short stable digest of the session string. It is
// safe to log and is used as the key of locally persisted session state.
func (c Credential) Fingerprint() string {
	sum := blake3.Sum256([]byte(strings.TrimSpace(c.Session)))
	return hex.EncodeToString(sum[:8])
}
