package fakegrantrepo

import (
	"sync"

	"github.com/google/uuid"

	"github.com/guaranijs/guarani-sub005/grants"
)

var _ grants.ConsentRepo = (*FakeConsentRepo)(nil)

type FakeConsentRepo struct {
	consents map[string]*grants.Consent
	lock     sync.RWMutex
}

func NewFakeConsentRepo() *FakeConsentRepo {
	return &FakeConsentRepo{
		consents: make(map[string]*grants.Consent),
	}
}

func (r *FakeConsentRepo) Upsert(consent *grants.Consent) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if consent.ID == "" {
		consent.ID = uuid.New().String()
	}
	r.consents[consent.ID] = consent
	return nil
}

func (r *FakeConsentRepo) GetByUserAndClient(userID, clientID string) (*grants.Consent, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	for _, consent := range r.consents {
		if consent.UserID == userID && consent.ClientID == clientID {
			return consent, nil
		}
	}
	return nil, grants.ErrConsentNotFound
}

func (r *FakeConsentRepo) Delete(consentID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.consents, consentID)
	return nil
}
