package auth

import (
	"fmt"
	"strings"

	"github.com/guaranijs/guarani-sub005/clients"
	"github.com/guaranijs/guarani-sub005/grants"
	"github.com/guaranijs/guarani-sub005/oauth2"
	"github.com/guaranijs/guarani-sub005/sessions"
	"github.com/guaranijs/guarani-sub005/users"

	"github.com/google/uuid"
)

// InteractionContext is what the application UI needs to render one
// interaction phase.
type InteractionContext struct {
	InteractionType oauth2.InteractionType          `json:"interaction_type"`
	Skip            bool                            `json:"skip"`
	Subject         string                          `json:"subject,omitempty"`
	Client          *ClientSummary                  `json:"client,omitempty"`
	RequestedScope  string                          `json:"requested_scope,omitempty"`
	LoginHint       string                          `json:"login_hint,omitempty"`
	UILocales       string                          `json:"ui_locales,omitempty"`
	Display         oauth2.DisplayType              `json:"display,omitempty"`
	AcrValues       string                          `json:"acr_values,omitempty"`
	Logins          []*LoginSummary                 `json:"logins,omitempty"`
	Parameters      *oauth2.AuthorizationParameters `json:"parameters,omitempty"`
}

// ClientSummary is the client metadata exposed to the interaction UI.
type ClientSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LoginSummary identifies one selectable login for select_account.
type LoginSummary struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
}

// Decision is the application's answer to an interaction: accept with the
// phase-specific payload, or deny with a protocol error.
type Decision struct {
	Accept           bool     `json:"accept"`
	Subject          string   `json:"subject,omitempty"`
	Amr              []string `json:"amr,omitempty"`
	Acr              string   `json:"acr,omitempty"`
	GrantScope       string   `json:"grant_scope,omitempty"`
	LoginID          string   `json:"login_id,omitempty"`
	Error            string   `json:"error,omitempty"`
	ErrorDescription string   `json:"error_description,omitempty"`
}

// DecisionResult tells the endpoint where to send the user-agent next:
// back to the authorization endpoint (grant set) or to the post-logout
// target (redirect set).
type DecisionResult struct {
	Grant      *grants.Grant
	RedirectTo string
}

// InteractionHandler implements the context/decision protocol of the five
// interaction types. Decisions re-check the grant's recorded state so
// out-of-order or replayed posts are rejected rather than trusted from the
// call sequence.
type InteractionHandler struct {
	grants      grants.Repo
	consents    grants.ConsentRepo
	tickets     grants.LogoutTicketRepo
	sessions    sessions.Repo
	users       users.UserRepo
	clients     clients.Repo
	authHandler *AuthHandler
	endSession  *EndSessionHandler
}

// NewInteractionHandler creates an InteractionHandler.
func NewInteractionHandler(grantRepo grants.Repo, consentRepo grants.ConsentRepo, ticketRepo grants.LogoutTicketRepo, sessionRepo sessions.Repo, userRepo users.UserRepo, clientRepo clients.Repo, authHandler *AuthHandler, endSession *EndSessionHandler) *InteractionHandler {
	return &InteractionHandler{
		grants:      grantRepo,
		consents:    consentRepo,
		tickets:     ticketRepo,
		sessions:    sessionRepo,
		users:       userRepo,
		clients:     clientRepo,
		authHandler: authHandler,
		endSession:  endSession,
	}
}

// Context resolves the render context for an interaction challenge.
func (h *InteractionHandler) Context(interactionType oauth2.InteractionType, challenge string) (*InteractionContext, error) {
	switch interactionType {
	case oauth2.LoginInteraction:
		return h.loginContext(challenge)
	case oauth2.ConsentInteraction:
		return h.consentContext(challenge)
	case oauth2.LogoutInteraction:
		return h.endSession.logoutContext(challenge)
	case oauth2.CreateInteraction:
		return h.createContext(challenge)
	case oauth2.SelectAccountInteraction:
		return h.selectAccountContext(challenge)
	default:
		return nil, oauth2.NewUnsupportedInteractionType(fmt.Sprintf("Unsupported interaction_type %q.", interactionType))
	}
}

// Decide applies an interaction decision for a challenge.
func (h *InteractionHandler) Decide(interactionType oauth2.InteractionType, challenge string, decision *Decision) (*DecisionResult, error) {
	switch interactionType {
	case oauth2.LoginInteraction, oauth2.CreateInteraction:
		return h.loginDecision(challenge, decision)
	case oauth2.ConsentInteraction:
		return h.consentDecision(challenge, decision)
	case oauth2.LogoutInteraction:
		return h.endSession.logoutDecision(challenge, decision)
	case oauth2.SelectAccountInteraction:
		return h.selectAccountDecision(challenge, decision)
	default:
		return nil, oauth2.NewUnsupportedInteractionType(fmt.Sprintf("Unsupported interaction_type %q.", interactionType))
	}
}

func (h *InteractionHandler) grantByLoginChallenge(challenge string) (*grants.Grant, error) {
	grant, err := h.grants.GetByLoginChallenge(challenge)
	if err != nil {
		return nil, oauth2.NewInvalidRequest("Invalid Login Challenge.")
	}
	if grant.Expired(h.authHandler.nowFunc()) {
		return nil, oauth2.NewInvalidRequest("Invalid Login Challenge.")
	}
	return grant, nil
}

func (h *InteractionHandler) loginContext(challenge string) (*InteractionContext, error) {
	grant, err := h.grantByLoginChallenge(challenge)
	if err != nil {
		return nil, err
	}
	client, err := h.clients.Get(grant.ClientID)
	if err != nil {
		return nil, oauth2.NewServerError(err)
	}

	context := &InteractionContext{
		InteractionType: oauth2.LoginInteraction,
		Client:          &ClientSummary{ID: client.ID, Name: client.Name},
		RequestedScope:  grant.Parameters.Scope,
		LoginHint:       grant.Parameters.LoginHint,
		UILocales:       grant.Parameters.UILocales,
		Display:         grant.Parameters.Display,
		AcrValues:       grant.Parameters.AcrValues,
		Parameters:      grant.Parameters,
	}

	// Skip when the session already has a usable login and the request does
	// not force re-authentication.
	if session, err := h.sessions.Get(grant.SessionID); err == nil {
		if login, _ := h.authHandler.ActiveLogin(session); login != nil && !grant.Parameters.HasPrompt(oauth2.LoginPrompt) {
			context.Skip = true
			context.Subject = login.UserID
		}
	}
	return context, nil
}

func (h *InteractionHandler) loginDecision(challenge string, decision *Decision) (*DecisionResult, error) {
	grant, err := h.grantByLoginChallenge(challenge)
	if err != nil {
		return nil, err
	}
	if grant.State() != grants.StatePendingLogin {
		return nil, oauth2.NewInvalidRequest("The Login Interaction has already been decided.")
	}

	if !decision.Accept {
		return nil, h.deny(grant, decision)
	}
	if decision.Subject == "" {
		return nil, oauth2.NewInvalidRequest(`Invalid parameter "subject".`)
	}
	user, err := h.users.GetByID(decision.Subject)
	if err != nil {
		return nil, oauth2.NewInvalidRequest("Invalid Subject.")
	}

	session, err := h.sessions.Get(grant.SessionID)
	if err != nil {
		return nil, oauth2.NewServerError(err)
	}
	if _, err := h.authHandler.Login(session, user.ID, decision.Amr, decision.Acr); err != nil {
		return nil, oauth2.NewServerError(err)
	}

	now := h.authHandler.nowFunc()
	grant.LoginDecidedAt = &now
	if err := h.grants.Upsert(grant); err != nil {
		return nil, oauth2.NewServerError(err)
	}
	return &DecisionResult{Grant: grant}, nil
}

func (h *InteractionHandler) grantByConsentChallenge(challenge string) (*grants.Grant, error) {
	grant, err := h.grants.GetByConsentChallenge(challenge)
	if err != nil {
		return nil, oauth2.NewInvalidRequest("Invalid Consent Challenge.")
	}
	if grant.Expired(h.authHandler.nowFunc()) {
		return nil, oauth2.NewInvalidRequest("Invalid Consent Challenge.")
	}
	return grant, nil
}

func (h *InteractionHandler) consentContext(challenge string) (*InteractionContext, error) {
	grant, err := h.grantByConsentChallenge(challenge)
	if err != nil {
		return nil, err
	}
	if grant.State() == grants.StatePendingLogin {
		return nil, oauth2.NewInvalidRequest("The Login Interaction has not been completed.")
	}
	client, err := h.clients.Get(grant.ClientID)
	if err != nil {
		return nil, oauth2.NewServerError(err)
	}

	context := &InteractionContext{
		InteractionType: oauth2.ConsentInteraction,
		Client:          &ClientSummary{ID: client.ID, Name: client.Name},
		RequestedScope:  grant.Parameters.Scope,
		UILocales:       grant.Parameters.UILocales,
		Display:         grant.Parameters.Display,
		Parameters:      grant.Parameters,
	}

	if session, err := h.sessions.Get(grant.SessionID); err == nil && session.ActiveLogin != nil {
		context.Subject = session.ActiveLogin.UserID
		if consent, err := h.consents.GetByUserAndClient(session.ActiveLogin.UserID, client.ID); err == nil {
			requested := oauth2.SplitScopes(grant.Parameters.Scope)
			if len(requested) == 0 {
				requested = client.Scopes
			}
			if consent.Covers(requested) && !grant.Parameters.HasPrompt(oauth2.ConsentPrompt) {
				context.Skip = true
			}
		}
	}
	return context, nil
}

func (h *InteractionHandler) consentDecision(challenge string, decision *Decision) (*DecisionResult, error) {
	grant, err := h.grantByConsentChallenge(challenge)
	if err != nil {
		return nil, err
	}
	// Phase order is enforced from the grant's recorded state, never from
	// the HTTP call sequence.
	if grant.State() == grants.StatePendingLogin {
		return nil, oauth2.NewInvalidRequest("The Login Interaction has not been completed.")
	}
	if grant.State() == grants.StateReady {
		return nil, oauth2.NewInvalidRequest("The Consent Interaction has already been decided.")
	}

	if !decision.Accept {
		return nil, h.deny(grant, decision)
	}

	session, err := h.sessions.Get(grant.SessionID)
	if err != nil || session.ActiveLogin == nil {
		return nil, oauth2.NewInvalidRequest("The Login Interaction has not been completed.")
	}

	client, err := h.clients.Get(grant.ClientID)
	if err != nil {
		return nil, oauth2.NewServerError(err)
	}
	granted := oauth2.SplitScopes(decision.GrantScope)
	requested := oauth2.SplitScopes(grant.Parameters.Scope)
	if len(requested) == 0 {
		requested = client.Scopes
	}
	for _, scope := range granted {
		if !oauth2.ContainsScope(requested, scope) {
			return nil, oauth2.NewInvalidRequest(fmt.Sprintf("The scope %q was not requested.", scope))
		}
	}

	consent := &grants.Consent{
		ID:            uuid.New().String(),
		UserID:        session.ActiveLogin.UserID,
		ClientID:      grant.ClientID,
		GrantedScopes: granted,
		CreatedAt:     h.authHandler.nowFunc(),
	}
	if existing, err := h.consents.GetByUserAndClient(consent.UserID, consent.ClientID); err == nil {
		consent.ID = existing.ID
		consent.GrantedScopes = mergeScopes(existing.GrantedScopes, granted)
	}
	if err := h.consents.Upsert(consent); err != nil {
		return nil, oauth2.NewServerError(err)
	}

	now := h.authHandler.nowFunc()
	grant.ConsentDecidedAt = &now
	if err := h.grants.Upsert(grant); err != nil {
		return nil, oauth2.NewServerError(err)
	}
	return &DecisionResult{Grant: grant}, nil
}

// createContext mirrors the login context for account registration UIs.
func (h *InteractionHandler) createContext(challenge string) (*InteractionContext, error) {
	context, err := h.loginContext(challenge)
	if err != nil {
		return nil, err
	}
	context.InteractionType = oauth2.CreateInteraction
	return context, nil
}

func (h *InteractionHandler) selectAccountContext(challenge string) (*InteractionContext, error) {
	grant, err := h.grantByLoginChallenge(challenge)
	if err != nil {
		return nil, err
	}
	context := &InteractionContext{
		InteractionType: oauth2.SelectAccountInteraction,
		Parameters:      grant.Parameters,
	}
	if session, err := h.sessions.Get(grant.SessionID); err == nil {
		for _, login := range session.Logins {
			if !login.Expired(h.authHandler.nowFunc()) {
				context.Logins = append(context.Logins, &LoginSummary{ID: login.ID, Subject: login.UserID})
			}
		}
	}
	return context, nil
}

// selectAccountDecision promotes one of the session's historical logins to
// active and satisfies the grant's login phase.
func (h *InteractionHandler) selectAccountDecision(challenge string, decision *Decision) (*DecisionResult, error) {
	grant, err := h.grantByLoginChallenge(challenge)
	if err != nil {
		return nil, err
	}
	if grant.State() != grants.StatePendingLogin {
		return nil, oauth2.NewInvalidRequest("The Login Interaction has already been decided.")
	}
	if !decision.Accept {
		return nil, h.deny(grant, decision)
	}

	session, err := h.sessions.Get(grant.SessionID)
	if err != nil {
		return nil, oauth2.NewServerError(err)
	}
	var selected *sessions.Login
	for _, login := range session.Logins {
		if login.ID == decision.LoginID {
			selected = login
			break
		}
	}
	if selected == nil || selected.Expired(h.authHandler.nowFunc()) {
		return nil, oauth2.NewInvalidRequest(`Invalid parameter "login_id".`)
	}

	session.ActiveLogin = selected
	if err := h.sessions.Upsert(session); err != nil {
		return nil, oauth2.NewServerError(err)
	}

	now := h.authHandler.nowFunc()
	grant.LoginDecidedAt = &now
	if err := h.grants.Upsert(grant); err != nil {
		return nil, oauth2.NewServerError(err)
	}
	return &DecisionResult{Grant: grant}, nil
}

// deny aborts the grant with the application-supplied error, which the
// authorization endpoint redirects back to the client.
func (h *InteractionHandler) deny(grant *grants.Grant, decision *Decision) error {
	if err := h.grants.Delete(grant.ID); err != nil {
		return oauth2.NewServerError(err)
	}
	code := strings.TrimSpace(decision.Error)
	if code == "" {
		code = string(oauth2.AccessDeniedCode)
	}
	denyErr := &oauth2.Error{
		Code:        oauth2.ErrorCode(code),
		Description: decision.ErrorDescription,
	}
	return denyErr.WithState(grant.Parameters.State)
}

func mergeScopes(existing, granted []string) []string {
	merged := append([]string{}, existing...)
	for _, scope := range granted {
		if !oauth2.ContainsScope(merged, scope) {
			merged = append(merged, scope)
		}
	}
	return merged
}
