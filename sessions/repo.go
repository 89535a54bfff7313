package sessions

import "time"

// Repo defines the storage contract for browser sessions. The host
// integration is responsible for making implementations safe under
// concurrent access.
type Repo interface {
	Upsert(session *Session) error
	Get(sessionID string) (*Session, error)
	Delete(sessionID string) error
	DeleteExpiredLogins(cutoff time.Time) error
}

// LoginRepo defines the storage contract for login records. Logins are
// created by AuthHandler.Login and removed on logout or expiry sweep.
type LoginRepo interface {
	Upsert(login *Login) error
	Get(loginID string) (*Login, error)
	Delete(loginID string) error
}
