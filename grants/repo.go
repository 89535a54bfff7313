package grants

// Repo is the storage contract for the authorization-request correlator.
// The "decided" transitions must be made atomic by the host integration
// (versioned update or compare-and-delete) to prevent double-processing of
// concurrent interaction decisions.
type Repo interface {
	Upsert(grant *Grant) error
	Get(grantID string) (*Grant, error)
	GetByLoginChallenge(challenge string) (*Grant, error)
	GetByConsentChallenge(challenge string) (*Grant, error)
	Delete(grantID string) error
}

// ConsentRepo is the storage contract for recorded consents.
type ConsentRepo interface {
	Upsert(consent *Consent) error
	GetByUserAndClient(userID, clientID string) (*Consent, error)
	Delete(consentID string) error
}

// LogoutTicketRepo is the storage contract for logout tickets.
type LogoutTicketRepo interface {
	Upsert(ticket *LogoutTicket) error
	Get(ticketID string) (*LogoutTicket, error)
	GetByLogoutChallenge(challenge string) (*LogoutTicket, error)
	Delete(ticketID string) error
}
