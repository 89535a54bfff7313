package grants

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"

	"github.com/guaranijs/guarani-sub005/oauth2"
)

// challengeLength is the byte length of login/consent/logout challenges.
// Hex encoding yields a fixed 32-character token.
const challengeLength = 16

// State is the phase of an in-progress authorization request.
type State string

const (
	// StatePendingLogin means the login interaction has not been decided yet.
	StatePendingLogin State = "pending_login"

	// StatePendingConsent means the login is done but consent is outstanding.
	StatePendingConsent State = "pending_consent"

	// StateReady means both phases are satisfied and the authorization
	// response can be issued.
	StateReady State = "ready"
)

// Grant correlates a single in-progress authorization request across the
// login and consent round-trips. It is created when the request first needs
// interaction and deleted once the authorization response is issued or the
// flow is denied or expires.
type Grant struct {
	ID               string                          `json:"id"`
	LoginChallenge   string                          `json:"login_challenge"`
	ConsentChallenge string                          `json:"consent_challenge,omitempty"`
	Parameters       *oauth2.AuthorizationParameters `json:"parameters"`
	ClientID         string                          `json:"client_id"`
	SessionID        string                          `json:"session_id"`
	LoginDecidedAt   *time.Time                      `json:"login_decided_at,omitempty"`
	ConsentDecidedAt *time.Time                      `json:"consent_decided_at,omitempty"`
	CreatedAt        time.Time                       `json:"created_at"`
	ExpiresAt        time.Time                       `json:"expires_at"`
}

// State derives the grant's phase from its decision markers.
func (g *Grant) State() State {
	switch {
	case g.LoginDecidedAt == nil:
		return StatePendingLogin
	case g.ConsentDecidedAt == nil:
		return StatePendingConsent
	default:
		return StateReady
	}
}

// Expired reports whether the grant has passed its expiry.
func (g *Grant) Expired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}

// Consent records a user's scope grant to a client. It outlives the Grant
// and is reused for prompt=none skip logic on later authorization requests.
type Consent struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	ClientID      string    `json:"client_id"`
	GrantedScopes []string  `json:"granted_scopes"`
	CreatedAt     time.Time `json:"created_at"`
}

// Covers reports whether the consent already grants every requested scope.
func (c *Consent) Covers(requestedScopes []string) bool {
	for _, scope := range requestedScopes {
		if !oauth2.ContainsScope(c.GrantedScopes, scope) {
			return false
		}
	}
	return true
}

// LogoutTicket correlates an RP-initiated logout request across the logout
// confirmation interaction. The parameter snapshot must match any
// re-submitted request byte for byte.
type LogoutTicket struct {
	ID              string                      `json:"id"`
	LogoutChallenge string                      `json:"logout_challenge"`
	Parameters      oauth2.EndSessionParameters `json:"parameters"`
	ClientID        string                      `json:"client_id"`
	SessionID       string                      `json:"session_id,omitempty"`
	CreatedAt       time.Time                   `json:"created_at"`
	ExpiresAt       time.Time                   `json:"expires_at"`
}

// Expired reports whether the ticket has passed its expiry.
func (t *LogoutTicket) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// NewChallenge generates an opaque fixed-length challenge token with
// cryptographically secure randomness.
func NewChallenge() (string, error) {
	buf := make([]byte, challengeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "[NewChallenge] rand.Read")
	}
	return hex.EncodeToString(buf), nil
}
