package fakegrantrepo

import (
	"sync"

	"github.com/google/uuid"

	"github.com/guaranijs/guarani-sub005/grants"
)

var _ grants.Repo = (*FakeGrantRepo)(nil)

type FakeGrantRepo struct {
	grantsByID map[string]*grants.Grant
	lock       sync.RWMutex
}

func NewFakeGrantRepo() *FakeGrantRepo {
	return &FakeGrantRepo{
		grantsByID: make(map[string]*grants.Grant),
	}
}

func (r *FakeGrantRepo) Upsert(grant *grants.Grant) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if grant.ID == "" {
		grant.ID = uuid.New().String()
	}
	r.grantsByID[grant.ID] = grant
	return nil
}

func (r *FakeGrantRepo) Get(grantID string) (*grants.Grant, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	grant, ok := r.grantsByID[grantID]
	if !ok {
		return nil, grants.ErrGrantNotFound
	}
	return grant, nil
}

func (r *FakeGrantRepo) GetByLoginChallenge(challenge string) (*grants.Grant, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	for _, grant := range r.grantsByID {
		if grant.LoginChallenge == challenge {
			return grant, nil
		}
	}
	return nil, grants.ErrGrantNotFound
}

func (r *FakeGrantRepo) GetByConsentChallenge(challenge string) (*grants.Grant, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	for _, grant := range r.grantsByID {
		if grant.ConsentChallenge != "" && grant.ConsentChallenge == challenge {
			return grant, nil
		}
	}
	return nil, grants.ErrGrantNotFound
}

func (r *FakeGrantRepo) Delete(grantID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.grantsByID, grantID)
	return nil
}
