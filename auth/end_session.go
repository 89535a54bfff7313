package auth

import (
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/guaranijs/guarani-sub005/clients"
	"github.com/guaranijs/guarani-sub005/grants"
	"github.com/guaranijs/guarani-sub005/oauth2"
	"github.com/guaranijs/guarani-sub005/sessions"
)

// EndSessionResult is the outcome of one end-session round: either a
// logout interaction the user-agent must confirm, or the final post-logout
// redirect.
type EndSessionResult struct {
	// Ticket is set when the user-agent must be sent to the logout
	// interaction carrying the ticket's challenge.
	Ticket *grants.LogoutTicket

	// RedirectTo is the final post-logout target.
	RedirectTo string

	// ClearSessionCookie is set once the session has no active login left.
	ClearSessionCookie bool
}

// EndSessionHandler drives RP-initiated logout: two-phase confirmation via
// LogoutTicket, post-logout redirect URI validation and session teardown.
type EndSessionHandler struct {
	clients            clients.Repo
	tickets            grants.LogoutTicketRepo
	sessions           sessions.Repo
	authHandler        *AuthHandler
	idTokens           *IDTokenHandler
	postLogoutFallback string
	ticketExpiry       time.Duration
	nowFunc            func() time.Time
}

// EndSessionOption modifies the EndSessionHandler instance.
type EndSessionOption func(*EndSessionHandler)

// WithTicketExpiry sets the logout ticket lifetime.
func WithTicketExpiry(expiry time.Duration) EndSessionOption {
	return func(h *EndSessionHandler) { h.ticketExpiry = expiry }
}

// WithEndSessionNowFunc sets the now time function (primarily for testing)
func WithEndSessionNowFunc(now func() time.Time) EndSessionOption {
	return func(h *EndSessionHandler) { h.nowFunc = now }
}

// NewEndSessionHandler creates an EndSessionHandler. postLogoutFallback is
// the server page used when the request names no post_logout_redirect_uri.
func NewEndSessionHandler(clientRepo clients.Repo, ticketRepo grants.LogoutTicketRepo, sessionRepo sessions.Repo, authHandler *AuthHandler, idTokens *IDTokenHandler, postLogoutFallback string, options ...EndSessionOption) *EndSessionHandler {
	handler := &EndSessionHandler{
		clients:            clientRepo,
		tickets:            ticketRepo,
		sessions:           sessionRepo,
		authHandler:        authHandler,
		idTokens:           idTokens,
		postLogoutFallback: postLogoutFallback,
		ticketExpiry:       15 * time.Minute,
		nowFunc:            time.Now,
	}
	for _, opt := range options {
		opt(handler)
	}
	return handler
}

// EndSession runs one round of the logout flow. ticketID comes from the
// guarani:logout cookie and correlates the confirmation round-trip.
func (h *EndSessionHandler) EndSession(params oauth2.EndSessionParameters, session *sessions.Session, ticketID string) (*EndSessionResult, error) {
	client, err := h.validate(params)
	if err != nil {
		return nil, err
	}

	if ticketID != "" {
		ticket, err := h.checkTicket(ticketID, client, params)
		if err != nil {
			return nil, err
		}
		if ticket != nil {
			return h.complete(ticket, session, params)
		}
	}

	login, err := h.authHandler.ActiveLogin(session)
	if err != nil {
		return nil, oauth2.NewServerError(err)
	}
	if login == nil {
		// Nothing to confirm; redirect straight away.
		return &EndSessionResult{
			RedirectTo:         h.postLogoutTarget(params),
			ClearSessionCookie: true,
		}, nil
	}

	// The id_token_hint must name the user that is actually logged in.
	userID, err := h.idTokens.VerifyIDTokenHint(params.IDTokenHint, client)
	if err != nil || userID != login.UserID {
		return nil, oauth2.NewInvalidRequest(`Invalid parameter "id_token_hint".`)
	}

	challenge, err := grants.NewChallenge()
	if err != nil {
		return nil, oauth2.NewServerError(err)
	}
	now := h.nowFunc()
	ticket := &grants.LogoutTicket{
		ID:              uuid.New().String(),
		LogoutChallenge: challenge,
		Parameters:      params,
		ClientID:        client.ID,
		SessionID:       session.ID,
		CreatedAt:       now,
		ExpiresAt:       now.Add(h.ticketExpiry),
	}
	if err := h.tickets.Upsert(ticket); err != nil {
		return nil, oauth2.NewServerError(err)
	}
	return &EndSessionResult{Ticket: ticket}, nil
}

func (h *EndSessionHandler) validate(params oauth2.EndSessionParameters) (*clients.Client, error) {
	if params.IDTokenHint == "" {
		return nil, oauth2.NewInvalidRequest(`Invalid parameter "id_token_hint".`)
	}
	if params.ClientID == "" {
		return nil, oauth2.NewInvalidRequest(`Invalid parameter "client_id".`)
	}
	client, err := h.clients.Get(params.ClientID)
	if err != nil {
		return nil, oauth2.NewInvalidClient("Invalid Client.")
	}
	if params.PostLogoutRedirectURI != "" {
		parsed, err := url.Parse(params.PostLogoutRedirectURI)
		if err != nil || !parsed.IsAbs() {
			return nil, oauth2.NewInvalidRequest(`Invalid parameter "post_logout_redirect_uri".`)
		}
		if !client.HasPostLogoutRedirectURI(params.PostLogoutRedirectURI) {
			return nil, oauth2.NewInvalidRequest("Invalid Post Logout Redirect URI.")
		}
	}
	return client, nil
}

// checkTicket validates a re-presented logout ticket: ownership, expiry and
// byte-for-byte parameter immutability. Any mismatch is a hard failure
// rendered on the server's error page, never redirected.
func (h *EndSessionHandler) checkTicket(ticketID string, client *clients.Client, params oauth2.EndSessionParameters) (*grants.LogoutTicket, error) {
	ticket, err := h.tickets.Get(ticketID)
	if err != nil {
		return nil, nil
	}
	if ticket.ClientID != client.ID {
		return nil, oauth2.NewInvalidRequest("Mismatching Client Identifier.")
	}
	if ticket.Expired(h.nowFunc()) {
		if err := h.tickets.Delete(ticket.ID); err != nil {
			return nil, oauth2.NewServerError(err)
		}
		return nil, oauth2.NewInvalidRequest("The Logout Ticket has expired.")
	}
	if !ticket.Parameters.Equal(params) {
		return nil, oauth2.NewInvalidRequest("The registered parameters changed.")
	}
	return ticket, nil
}

// complete removes the active login and the ticket, then redirects.
func (h *EndSessionHandler) complete(ticket *grants.LogoutTicket, session *sessions.Session, params oauth2.EndSessionParameters) (*EndSessionResult, error) {
	if err := h.authHandler.Logout(session); err != nil {
		return nil, oauth2.NewServerError(err)
	}
	if err := h.tickets.Delete(ticket.ID); err != nil {
		return nil, oauth2.NewServerError(err)
	}
	return &EndSessionResult{
		RedirectTo:         h.postLogoutTarget(params),
		ClearSessionCookie: session.ActiveLogin == nil,
	}, nil
}

func (h *EndSessionHandler) postLogoutTarget(params oauth2.EndSessionParameters) string {
	if params.PostLogoutRedirectURI == "" {
		return h.postLogoutFallback
	}
	target, err := url.Parse(params.PostLogoutRedirectURI)
	if err != nil {
		return h.postLogoutFallback
	}
	if params.State != "" {
		query := target.Query()
		query.Set("state", params.State)
		target.RawQuery = query.Encode()
	}
	return target.String()
}

// logoutContext renders the confirmation UI state for a logout challenge.
func (h *EndSessionHandler) logoutContext(challenge string) (*InteractionContext, error) {
	ticket, err := h.ticketByChallenge(challenge)
	if err != nil {
		return nil, err
	}
	client, err := h.clients.Get(ticket.ClientID)
	if err != nil {
		return nil, oauth2.NewServerError(err)
	}
	context := &InteractionContext{
		InteractionType: oauth2.LogoutInteraction,
		Client:          &ClientSummary{ID: client.ID, Name: client.Name},
		UILocales:       ticket.Parameters.UILocales,
	}
	if session, err := h.sessions.Get(ticket.SessionID); err == nil && session.ActiveLogin != nil {
		context.Subject = session.ActiveLogin.UserID
	}
	return context, nil
}

// logoutDecision applies the confirmation: accept tears the login down,
// deny discards the ticket and leaves the session untouched.
func (h *EndSessionHandler) logoutDecision(challenge string, decision *Decision) (*DecisionResult, error) {
	ticket, err := h.ticketByChallenge(challenge)
	if err != nil {
		return nil, err
	}

	if !decision.Accept {
		if err := h.tickets.Delete(ticket.ID); err != nil {
			return nil, oauth2.NewServerError(err)
		}
		return &DecisionResult{RedirectTo: h.postLogoutFallback}, nil
	}

	session, err := h.sessions.Get(ticket.SessionID)
	if err != nil {
		return nil, oauth2.NewServerError(err)
	}
	result, err := h.complete(ticket, session, ticket.Parameters)
	if err != nil {
		return nil, err
	}
	return &DecisionResult{RedirectTo: result.RedirectTo}, nil
}

func (h *EndSessionHandler) ticketByChallenge(challenge string) (*grants.LogoutTicket, error) {
	ticket, err := h.tickets.GetByLogoutChallenge(challenge)
	if err != nil {
		return nil, oauth2.NewInvalidRequest("Invalid Logout Challenge.")
	}
	if ticket.Expired(h.nowFunc()) {
		return nil, oauth2.NewInvalidRequest("Invalid Logout Challenge.")
	}
	return ticket, nil
}
