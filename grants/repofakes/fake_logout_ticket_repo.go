package fakegrantrepo

import (
	"sync"

	"github.com/google/uuid"

	"github.com/guaranijs/guarani-sub005/grants"
)

var _ grants.LogoutTicketRepo = (*FakeLogoutTicketRepo)(nil)

type FakeLogoutTicketRepo struct {
	tickets map[string]*grants.LogoutTicket
	lock    sync.RWMutex
}

func NewFakeLogoutTicketRepo() *FakeLogoutTicketRepo {
	return &FakeLogoutTicketRepo{
		tickets: make(map[string]*grants.LogoutTicket),
	}
}

func (r *FakeLogoutTicketRepo) Upsert(ticket *grants.LogoutTicket) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if ticket.ID == "" {
		ticket.ID = uuid.New().String()
	}
	r.tickets[ticket.ID] = ticket
	return nil
}

func (r *FakeLogoutTicketRepo) Get(ticketID string) (*grants.LogoutTicket, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	ticket, ok := r.tickets[ticketID]
	if !ok {
		return nil, grants.ErrTicketNotFound
	}
	return ticket, nil
}

func (r *FakeLogoutTicketRepo) GetByLogoutChallenge(challenge string) (*grants.LogoutTicket, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	for _, ticket := range r.tickets {
		if ticket.LogoutChallenge == challenge {
			return ticket, nil
		}
	}
	return nil, grants.ErrTicketNotFound
}

func (r *FakeLogoutTicketRepo) Delete(ticketID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.tickets, ticketID)
	return nil
}
