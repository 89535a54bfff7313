package sessions

import (
	"time"
)

// Session ties a user-agent (browser) to zero or one active Login plus the
// historical logins created under it. A session is created on the first
// authorization request that finds no session cookie and is removed once its
// last login is removed.
type Session struct {
	ID          string    `json:"id"`
	ActiveLogin *Login    `json:"active_login,omitempty"`
	Logins      []*Login  `json:"logins,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Login is a single authentication event of a user within a session.
type Login struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	SessionID string     `json:"session_id"`
	Amr       []string   `json:"amr,omitempty"` // authentication methods used
	Acr       string     `json:"acr,omitempty"` // context class satisfied
	ClientIDs []string   `json:"client_ids,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"` // nil = non-expiring
}

// Expired reports whether the login has passed its expiry.
func (l *Login) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}

// HasClient reports whether the login has already authenticated for the
// client (single sign-on bookkeeping).
func (l *Login) HasClient(clientID string) bool {
	for _, id := range l.ClientIDs {
		if id == clientID {
			return true
		}
	}
	return false
}

// AddClient records that the login authenticated for the client.
func (l *Login) AddClient(clientID string) {
	if !l.HasClient(clientID) {
		l.ClientIDs = append(l.ClientIDs, clientID)
	}
}

// RemoveLogin drops the login from the session's history and clears the
// active login when it matches.
func (s *Session) RemoveLogin(loginID string) {
	kept := s.Logins[:0]
	for _, l := range s.Logins {
		if l.ID != loginID {
			kept = append(kept, l)
		}
	}
	s.Logins = kept
	if s.ActiveLogin != nil && s.ActiveLogin.ID == loginID {
		s.ActiveLogin = nil
	}
}
