package auth

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/guaranijs/guarani-sub005/grants"
	"github.com/guaranijs/guarani-sub005/oauth2"
	"github.com/guaranijs/guarani-sub005/sessions"
)

// AuthorizationResult is the outcome of driving an authorization request.
// Exactly one of the outcome fields is set: an interaction the user-agent
// must be sent to, a rendered final response, or an untrusted error the
// endpoint renders directly.
type AuthorizationResult struct {
	// Interaction and Grant are set when the user-agent must be redirected
	// to the application's interaction UI carrying the grant's challenge.
	Interaction oauth2.InteractionType
	Grant       *grants.Grant

	// Response is the final authorization response rendered through the
	// selected response mode.
	Response *ModeResponse

	// Err is an error raised before the redirect URI was trusted.
	Err *oauth2.Error
}

// Authorizer drives the authorization request state machine: validation,
// login/consent interaction dispatch and final response issuance.
type Authorizer struct {
	validator   *AuthorizationRequestValidator
	grants      grants.Repo
	consents    grants.ConsentRepo
	authHandler *AuthHandler
	responses   *ResponseBuilder
	modes       *ResponseModeRegistry
	grantExpiry time.Duration
	nowFunc     func() time.Time
}

// AuthorizerOption modifies the Authorizer instance.
type AuthorizerOption func(*Authorizer)

// WithGrantExpiry sets the lifetime of interaction grants.
func WithGrantExpiry(expiry time.Duration) AuthorizerOption {
	return func(a *Authorizer) { a.grantExpiry = expiry }
}

// WithAuthorizerNowFunc sets the now time function (primarily for testing)
func WithAuthorizerNowFunc(now func() time.Time) AuthorizerOption {
	return func(a *Authorizer) { a.nowFunc = now }
}

// NewAuthorizer creates an Authorizer with its collaborators.
func NewAuthorizer(validator *AuthorizationRequestValidator, grantRepo grants.Repo, consentRepo grants.ConsentRepo, authHandler *AuthHandler, responses *ResponseBuilder, modes *ResponseModeRegistry, options ...AuthorizerOption) *Authorizer {
	authorizer := &Authorizer{
		validator:   validator,
		grants:      grantRepo,
		consents:    consentRepo,
		authHandler: authHandler,
		responses:   responses,
		modes:       modes,
		grantExpiry: 15 * time.Minute,
		nowFunc:     time.Now,
	}
	for _, opt := range options {
		opt(authorizer)
	}
	return authorizer
}

// Authorize runs one round of the authorization request. grantID comes from
// the guarani:grant cookie and correlates re-drives of the same request
// after an interaction was decided.
func (a *Authorizer) Authorize(params *oauth2.AuthorizationParameters, session *sessions.Session, grantID string) (*AuthorizationResult, error) {
	client, err := a.validator.ValidateClient(params)
	if err != nil {
		return &AuthorizationResult{Err: oauth2.Wrap(err)}, nil
	}

	authCtx, err := a.validator.ValidateRequest(client, params)
	if err != nil {
		return a.redirectError(params, params.RedirectURI, err)
	}

	grant, err := a.findGrant(grantID, client.ID)
	if err != nil {
		return nil, err
	}

	login, err := a.authHandler.ActiveLogin(session)
	if err != nil {
		return nil, errors.Wrap(err, "[Authorizer.Authorize] ActiveLogin")
	}

	if a.loginRequired(params, grant, login) {
		if params.HasPrompt(oauth2.NonePrompt) {
			return a.redirectError(params, params.RedirectURI, oauth2.NewLoginRequired("The End User is not authenticated."))
		}
		grant, err = a.ensureGrant(grant, authCtx, session)
		if err != nil {
			return nil, err
		}
		return &AuthorizationResult{Interaction: oauth2.LoginInteraction, Grant: grant}, nil
	}

	if a.consentRequired(params, grant, login, client.ID, authCtx.Scopes) {
		if params.HasPrompt(oauth2.NonePrompt) {
			return a.redirectError(params, params.RedirectURI, oauth2.NewConsentRequired("The End User has not granted the requested scopes."))
		}
		grant, err = a.ensureGrant(grant, authCtx, session)
		if err != nil {
			return nil, err
		}
		if err := a.prepareConsent(grant); err != nil {
			return nil, err
		}
		return &AuthorizationResult{Interaction: oauth2.ConsentInteraction, Grant: grant}, nil
	}

	return a.finish(authCtx, grant, session, login)
}

// findGrant loads the correlated grant, discarding expired or foreign ones.
func (a *Authorizer) findGrant(grantID, clientID string) (*grants.Grant, error) {
	if grantID == "" {
		return nil, nil
	}
	grant, err := a.grants.Get(grantID)
	if err != nil {
		return nil, nil
	}
	if grant.ClientID != clientID || grant.Expired(a.nowFunc()) {
		if err := a.grants.Delete(grant.ID); err != nil {
			return nil, errors.Wrap(err, "[Authorizer.findGrant] Delete")
		}
		return nil, nil
	}
	return grant, nil
}

func (a *Authorizer) ensureGrant(grant *grants.Grant, authCtx *AuthorizationContext, session *sessions.Session) (*grants.Grant, error) {
	if grant != nil {
		return grant, nil
	}
	challenge, err := grants.NewChallenge()
	if err != nil {
		return nil, errors.Wrap(err, "[Authorizer.ensureGrant] NewChallenge")
	}
	now := a.nowFunc()
	grant = &grants.Grant{
		ID:             uuid.New().String(),
		LoginChallenge: challenge,
		Parameters:     authCtx.Parameters,
		ClientID:       authCtx.Client.ID,
		SessionID:      session.ID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(a.grantExpiry),
	}
	if err := a.grants.Upsert(grant); err != nil {
		return nil, errors.Wrap(err, "[Authorizer.ensureGrant] Upsert")
	}
	return grant, nil
}

// prepareConsent marks the login phase satisfied and mints the consent
// challenge on the re-drive that found an active login.
func (a *Authorizer) prepareConsent(grant *grants.Grant) error {
	changed := false
	if grant.LoginDecidedAt == nil {
		now := a.nowFunc()
		grant.LoginDecidedAt = &now
		changed = true
	}
	if grant.ConsentChallenge == "" {
		challenge, err := grants.NewChallenge()
		if err != nil {
			return errors.Wrap(err, "[Authorizer.prepareConsent] NewChallenge")
		}
		grant.ConsentChallenge = challenge
		changed = true
	}
	if !changed {
		return nil
	}
	return errors.Wrap(a.grants.Upsert(grant), "[Authorizer.prepareConsent] Upsert")
}

func (a *Authorizer) loginRequired(params *oauth2.AuthorizationParameters, grant *grants.Grant, login *sessions.Login) bool {
	if login == nil {
		return true
	}
	// prompt=login forces one re-authentication per grant; once the grant's
	// login phase is decided the prompt is considered served.
	if params.HasPrompt(oauth2.LoginPrompt) && (grant == nil || grant.LoginDecidedAt == nil) {
		return true
	}
	if params.MaxAge != "" {
		maxAge, err := strconv.Atoi(params.MaxAge)
		if err != nil {
			return true
		}
		if a.nowFunc().Sub(login.CreatedAt) > time.Duration(maxAge)*time.Second {
			return true
		}
	}
	return false
}

func (a *Authorizer) consentRequired(params *oauth2.AuthorizationParameters, grant *grants.Grant, login *sessions.Login, clientID string, scopes []string) bool {
	if grant != nil && grant.ConsentDecidedAt != nil {
		return false
	}
	if params.HasPrompt(oauth2.ConsentPrompt) {
		return true
	}
	consent, err := a.consents.GetByUserAndClient(login.UserID, clientID)
	if err != nil {
		return true
	}
	return !consent.Covers(scopes)
}

// finish issues the final authorization response, consuming the grant.
func (a *Authorizer) finish(authCtx *AuthorizationContext, grant *grants.Grant, session *sessions.Session, login *sessions.Login) (*AuthorizationResult, error) {
	login.AddClient(authCtx.Client.ID)
	if err := a.authHandler.logins.Upsert(login); err != nil {
		return nil, errors.Wrap(err, "[Authorizer.finish] Upsert login")
	}
	if err := a.authHandler.sessions.Upsert(session); err != nil {
		return nil, errors.Wrap(err, "[Authorizer.finish] Upsert session")
	}

	responseParams, err := a.responses.Build(authCtx, login.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "[Authorizer.finish] Build")
	}
	mode, err := a.modes.Resolve(authCtx.Parameters.ResponseMode, authCtx.Parameters.ResponseType)
	if err != nil {
		return a.redirectError(authCtx.Parameters, authCtx.Parameters.RedirectURI, err)
	}
	response, err := mode.Respond(authCtx.Parameters.RedirectURI, responseParams)
	if err != nil {
		return nil, errors.Wrap(err, "[Authorizer.finish] Respond")
	}

	if grant != nil {
		if err := a.grants.Delete(grant.ID); err != nil {
			return nil, errors.Wrap(err, "[Authorizer.finish] Delete grant")
		}
	}
	return &AuthorizationResult{Response: response}, nil
}

// redirectError round-trips a protocol error to the client's validated
// redirect URI, echoing the request state.
func (a *Authorizer) redirectError(params *oauth2.AuthorizationParameters, redirectURI string, err error) (*AuthorizationResult, error) {
	protocolErr := oauth2.Wrap(err).WithState(params.State)
	mode, resolveErr := a.modes.Resolve(params.ResponseMode, params.ResponseType)
	if resolveErr != nil {
		mode = QueryMode{}
	}
	errParams := map[string]string{
		"error":             string(protocolErr.Code),
		"error_description": protocolErr.Description,
	}
	if params.State != "" {
		errParams["state"] = params.State
	}
	response, buildErr := mode.Respond(redirectURI, errParams)
	if buildErr != nil {
		return nil, errors.Wrap(buildErr, "[Authorizer.redirectError] Respond")
	}
	return &AuthorizationResult{Response: response}, nil
}
