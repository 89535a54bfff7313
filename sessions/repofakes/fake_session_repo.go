package fakesessionrepo

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/guaranijs/guarani-sub005/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

type FakeSessionRepo struct {
	sessions map[string]*sessions.Session
	lock     sync.RWMutex
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		sessions: make(map[string]*sessions.Session),
	}
}

func (r *FakeSessionRepo) Upsert(session *sessions.Session) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	r.sessions[session.ID] = session
	return nil
}

func (r *FakeSessionRepo) Get(sessionID string) (*sessions.Session, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, sessions.ErrSessionNotFound
	}
	return session, nil
}

func (r *FakeSessionRepo) Delete(sessionID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.sessions, sessionID)
	return nil
}

func (r *FakeSessionRepo) DeleteExpiredLogins(cutoff time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	for id, session := range r.sessions {
		for _, login := range append([]*sessions.Login{}, session.Logins...) {
			if login.Expired(cutoff) {
				session.RemoveLogin(login.ID)
			}
		}
		if len(session.Logins) == 0 {
			delete(r.sessions, id)
		}
	}
	return nil
}
