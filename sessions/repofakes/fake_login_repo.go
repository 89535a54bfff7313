package fakesessionrepo

import (
	"sync"

	"github.com/google/uuid"

	"github.com/guaranijs/guarani-sub005/sessions"
)

var _ sessions.LoginRepo = (*FakeLoginRepo)(nil)

type FakeLoginRepo struct {
	logins map[string]*sessions.Login
	lock   sync.RWMutex
}

func NewFakeLoginRepo() *FakeLoginRepo {
	return &FakeLoginRepo{
		logins: make(map[string]*sessions.Login),
	}
}

func (r *FakeLoginRepo) Upsert(login *sessions.Login) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if login.ID == "" {
		login.ID = uuid.New().String()
	}
	r.logins[login.ID] = login
	return nil
}

func (r *FakeLoginRepo) Get(loginID string) (*sessions.Login, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	login, ok := r.logins[loginID]
	if !ok {
		return nil, sessions.ErrLoginNotFound
	}
	return login, nil
}

func (r *FakeLoginRepo) Delete(loginID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.logins, loginID)
	return nil
}
