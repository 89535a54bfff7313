package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/guaranijs/guarani-sub005/sessions"
)

// AuthHandler owns the session and login lifecycle: creating a login when
// the user authenticates and tearing it down on logout. A session has at
// most one active login; a new login replaces and removes the previous one.
type AuthHandler struct {
	sessions    sessions.Repo
	logins      sessions.LoginRepo
	loginExpiry time.Duration
	nowFunc     func() time.Time
}

// AuthHandlerOption modifies the AuthHandler instance.
type AuthHandlerOption func(*AuthHandler)

// WithLoginExpiry sets the lifetime of created logins. Zero means
// non-expiring.
func WithLoginExpiry(expiry time.Duration) AuthHandlerOption {
	return func(h *AuthHandler) { h.loginExpiry = expiry }
}

// WithAuthNowFunc sets the now time function (primarily for testing)
func WithAuthNowFunc(now func() time.Time) AuthHandlerOption {
	return func(h *AuthHandler) { h.nowFunc = now }
}

// NewAuthHandler creates an AuthHandler with its storage dependencies.
func NewAuthHandler(sessionRepo sessions.Repo, loginRepo sessions.LoginRepo, options ...AuthHandlerOption) *AuthHandler {
	handler := &AuthHandler{
		sessions: sessionRepo,
		logins:   loginRepo,
		nowFunc:  time.Now,
	}
	for _, opt := range options {
		opt(handler)
	}
	return handler
}

// FindOrCreateSession loads the session named by the cookie, creating a new
// one when the id is empty or stale.
func (h *AuthHandler) FindOrCreateSession(sessionID string) (*sessions.Session, error) {
	if sessionID != "" {
		if session, err := h.sessions.Get(sessionID); err == nil {
			return session, nil
		}
	}
	session := &sessions.Session{
		ID:        uuid.New().String(),
		CreatedAt: h.nowFunc(),
	}
	if err := h.sessions.Upsert(session); err != nil {
		return nil, errors.Wrap(err, "[AuthHandler.FindOrCreateSession] Upsert")
	}
	return session, nil
}

// Login records an authentication event for the user, replacing the
// session's previous active login.
func (h *AuthHandler) Login(session *sessions.Session, userID string, amr []string, acr string) (*sessions.Login, error) {
	now := h.nowFunc()
	login := &sessions.Login{
		ID:        uuid.New().String(),
		UserID:    userID,
		SessionID: session.ID,
		Amr:       amr,
		Acr:       acr,
		CreatedAt: now,
	}
	if h.loginExpiry > 0 {
		expiresAt := now.Add(h.loginExpiry)
		login.ExpiresAt = &expiresAt
	}

	if previous := session.ActiveLogin; previous != nil {
		session.RemoveLogin(previous.ID)
		if err := h.logins.Delete(previous.ID); err != nil {
			return nil, errors.Wrap(err, "[AuthHandler.Login] Delete previous login")
		}
	}

	if err := h.logins.Upsert(login); err != nil {
		return nil, errors.Wrap(err, "[AuthHandler.Login] Upsert login")
	}
	session.ActiveLogin = login
	session.Logins = append(session.Logins, login)
	if err := h.sessions.Upsert(session); err != nil {
		return nil, errors.Wrap(err, "[AuthHandler.Login] Upsert session")
	}
	return login, nil
}

// ActiveLogin returns the session's usable active login, clearing expired
// ones as a side effect.
func (h *AuthHandler) ActiveLogin(session *sessions.Session) (*sessions.Login, error) {
	login := session.ActiveLogin
	if login == nil {
		return nil, nil
	}
	if login.Expired(h.nowFunc()) {
		if err := h.Logout(session); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return login, nil
}

// Logout removes the session's active login. The session itself is removed
// once its last login is gone.
func (h *AuthHandler) Logout(session *sessions.Session) error {
	login := session.ActiveLogin
	if login == nil {
		return nil
	}
	session.RemoveLogin(login.ID)
	if err := h.logins.Delete(login.ID); err != nil {
		return errors.Wrap(err, "[AuthHandler.Logout] Delete login")
	}
	if len(session.Logins) == 0 {
		return errors.Wrap(h.sessions.Delete(session.ID), "[AuthHandler.Logout] Delete session")
	}
	return errors.Wrap(h.sessions.Upsert(session), "[AuthHandler.Logout] Upsert session")
}
