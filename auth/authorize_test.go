package auth_test

import (
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/guaranijs/guarani-sub005/auth"
	"github.com/guaranijs/guarani-sub005/clients"
	fakeclientrepo "github.com/guaranijs/guarani-sub005/clients/fakerepo"
	"github.com/guaranijs/guarani-sub005/grants"
	fakegrantrepo "github.com/guaranijs/guarani-sub005/grants/repofakes"
	"github.com/guaranijs/guarani-sub005/oauth2"
	"github.com/guaranijs/guarani-sub005/pkce"
	"github.com/guaranijs/guarani-sub005/sessions"
	fakesessionrepo "github.com/guaranijs/guarani-sub005/sessions/repofakes"
	"github.com/guaranijs/guarani-sub005/token"
	faketokenrepo "github.com/guaranijs/guarani-sub005/token/repofake"
	"github.com/guaranijs/guarani-sub005/users"
	fakeuserrepo "github.com/guaranijs/guarani-sub005/users/repofake"
)

const (
	testIssuer       = "https://auth.example.com"
	testClientID     = "test-client-1"
	testUserID       = "user-1"
	testRedirectURI  = "https://client.example.com/callback"
	testState        = "random-state-value"
	testCodeVerifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
)

var serverScopes = []string{"openid", "profile", "email", "foo", "bar", "baz", "qux"}

type testFixture struct {
	clientRepo   *fakeclientrepo.FakeClientRepo
	userRepo     *fakeuserrepo.FakeUserRepo
	sessionRepo  *fakesessionrepo.FakeSessionRepo
	loginRepo    *fakesessionrepo.FakeLoginRepo
	grantRepo    *fakegrantrepo.FakeGrantRepo
	consentRepo  *fakegrantrepo.FakeConsentRepo
	ticketRepo   *fakegrantrepo.FakeLogoutTicketRepo
	accessTokens *faketokenrepo.FakeAccessTokenRepo
	codeRepo     *faketokenrepo.FakeAuthorizationCodeRepo
	issuer       *token.Issuer
	authHandler  *auth.AuthHandler
	idTokens     *auth.IDTokenHandler
	authorizer   *auth.Authorizer
	interactions *auth.InteractionHandler
	endSession   *auth.EndSessionHandler
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		clientRepo:   fakeclientrepo.NewFakeClientRepo(),
		userRepo:     fakeuserrepo.NewFakeUserRepo(),
		sessionRepo:  fakesessionrepo.NewFakeSessionRepo(),
		loginRepo:    fakesessionrepo.NewFakeLoginRepo(),
		grantRepo:    fakegrantrepo.NewFakeGrantRepo(),
		consentRepo:  fakegrantrepo.NewFakeConsentRepo(),
		ticketRepo:   fakegrantrepo.NewFakeLogoutTicketRepo(),
		accessTokens: faketokenrepo.NewFakeAccessTokenRepo(),
		codeRepo:     faketokenrepo.NewFakeAuthorizationCodeRepo(),
	}

	issuer, err := token.NewIssuer(token.Repos{
		AccessTokens:       f.accessTokens,
		RefreshTokens:      faketokenrepo.NewFakeRefreshTokenRepo(),
		AuthorizationCodes: f.codeRepo,
		DeviceCodes:        faketokenrepo.NewFakeDeviceCodeRepo(),
	})
	require.NoError(t, err)
	f.issuer = issuer

	signer := token.NewHMACSigner(testServerSecret)
	subjects, err := auth.NewSubjectHandler(testServerSecret, 128)
	require.NoError(t, err)
	f.idTokens = auth.NewIDTokenHandler(signer, f.userRepo, subjects, testIssuer)

	scopes := auth.NewScopeHandler(serverScopes)
	pkceRegistry := pkce.NewRegistry()
	modes := auth.NewResponseModeRegistry(signer, testIssuer)
	validator := auth.NewAuthorizationRequestValidator(
		f.clientRepo,
		scopes,
		pkceRegistry,
		[]oauth2.ResponseType{oauth2.CodeResponseType, oauth2.IDTokenResponseType, oauth2.CodeIDTokenResponseType},
		modes.Supported(),
	)

	f.authHandler = auth.NewAuthHandler(f.sessionRepo, f.loginRepo)
	responses := auth.NewResponseBuilder(issuer, f.idTokens)
	f.authorizer = auth.NewAuthorizer(validator, f.grantRepo, f.consentRepo, f.authHandler, responses, modes)
	f.endSession = auth.NewEndSessionHandler(f.clientRepo, f.ticketRepo, f.sessionRepo, f.authHandler, f.idTokens, testIssuer+"/logged_out")
	f.interactions = auth.NewInteractionHandler(f.grantRepo, f.consentRepo, f.ticketRepo, f.sessionRepo, f.userRepo, f.clientRepo, f.authHandler, f.endSession)

	return f
}

func (f *testFixture) createClient(t *testing.T) *clients.Client {
	t.Helper()

	client := &clients.Client{
		ID:                             testClientID,
		Name:                           "Test Client",
		RedirectURIs:                   []string{testRedirectURI},
		PostLogoutRedirectURIs:         []string{"https://client.example.com/logged_out"},
		ResponseTypes:                  []oauth2.ResponseType{oauth2.CodeResponseType},
		GrantTypes:                     []oauth2.GrantType{oauth2.AuthorizationCodeGrant, oauth2.RefreshTokenGrant},
		ApplicationType:                oauth2.WebApplicationType,
		AuthenticationMethod:           oauth2.NoneAuthMethod,
		Scopes:                         serverScopes,
		SubjectType:                    oauth2.PublicSubjectType,
		IDTokenSignedResponseAlgorithm: "HS256",
	}
	require.NoError(t, f.clientRepo.Upsert(client))
	return client
}

func (f *testFixture) createUser(t *testing.T) *users.User {
	t.Helper()

	user := &users.User{ID: testUserID, Username: "john.doe", Email: "john.doe@example.com", Verified: true}
	require.NoError(t, f.userRepo.Upsert(user))
	return user
}

func (f *testFixture) newSession(t *testing.T) *sessions.Session {
	t.Helper()

	session, err := f.authHandler.FindOrCreateSession("")
	require.NoError(t, err)
	return session
}

func authParams() *oauth2.AuthorizationParameters {
	challenge := sha256.Sum256([]byte(testCodeVerifier))
	return &oauth2.AuthorizationParameters{
		ClientID:            testClientID,
		ResponseType:        oauth2.CodeResponseType,
		RedirectURI:         testRedirectURI,
		Scope:               "foo bar baz qux",
		State:               testState,
		CodeChallenge:       base64.RawURLEncoding.EncodeToString(challenge[:]),
		CodeChallengeMethod: oauth2.CodeMethodTypeS256,
	}
}

// Drives a full authorization code flow: login interaction, consent
// interaction, final redirect carrying code and state.
func TestAuthorizationCodeFlow(t *testing.T) {
	f := setupTestFixture(t)
	f.createClient(t)
	f.createUser(t)
	session := f.newSession(t)
	params := authParams()

	// First round: no active login, so the login interaction is required.
	result, err := f.authorizer.Authorize(params, session, "")
	require.NoError(t, err)
	require.Nil(t, result.Err)
	require.Equal(t, oauth2.LoginInteraction, result.Interaction)
	require.NotNil(t, result.Grant)
	require.NotEmpty(t, result.Grant.LoginChallenge)

	// The login UI fetches its context: no skip, nothing decided yet.
	loginCtx, err := f.interactions.Context(oauth2.LoginInteraction, result.Grant.LoginChallenge)
	require.NoError(t, err)
	require.False(t, loginCtx.Skip)
	require.Equal(t, "foo bar baz qux", loginCtx.RequestedScope)

	// Accept the login.
	decision, err := f.interactions.Decide(oauth2.LoginInteraction, result.Grant.LoginChallenge, &auth.Decision{
		Accept:  true,
		Subject: testUserID,
		Amr:     []string{"pwd"},
		Acr:     "urn:guarani:acr:1fa",
	})
	require.NoError(t, err)
	require.NotNil(t, decision.Grant)

	// Second round: login satisfied, consent outstanding.
	session, err = f.sessionRepo.Get(session.ID)
	require.NoError(t, err)
	result, err = f.authorizer.Authorize(params, session, decision.Grant.ID)
	require.NoError(t, err)
	require.Equal(t, oauth2.ConsentInteraction, result.Interaction)
	require.NotEmpty(t, result.Grant.ConsentChallenge)

	consentCtx, err := f.interactions.Context(oauth2.ConsentInteraction, result.Grant.ConsentChallenge)
	require.NoError(t, err)
	require.False(t, consentCtx.Skip)
	require.Equal(t, "foo bar baz qux", consentCtx.RequestedScope)
	require.Equal(t, testUserID, consentCtx.Subject)

	// Accept the consent with the full requested scope.
	decision, err = f.interactions.Decide(oauth2.ConsentInteraction, result.Grant.ConsentChallenge, &auth.Decision{
		Accept:     true,
		GrantScope: "foo bar baz qux",
	})
	require.NoError(t, err)

	// Third round: both phases satisfied, final redirect is issued.
	session, err = f.sessionRepo.Get(session.ID)
	require.NoError(t, err)
	result, err = f.authorizer.Authorize(params, session, decision.Grant.ID)
	require.NoError(t, err)
	require.NotNil(t, result.Response)

	target, err := url.Parse(result.Response.RedirectURL)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(result.Response.RedirectURL, testRedirectURI))
	require.Equal(t, testState, target.Query().Get("state"))
	code := target.Query().Get("code")
	require.NotEmpty(t, code)

	// The grant is consumed.
	_, err = f.grantRepo.Get(decision.Grant.ID)
	require.Error(t, err)

	// The code captured the PKCE pair and redirect URI.
	stored, err := f.codeRepo.Get(code)
	require.NoError(t, err)
	require.Equal(t, testRedirectURI, stored.RedirectURI)
	require.Equal(t, oauth2.CodeMethodTypeS256, stored.CodeChallengeMethod)
	require.Equal(t, testUserID, stored.UserID)
	require.Equal(t, []string{"foo", "bar", "baz", "qux"}, stored.Scopes)
}

// Posting a consent decision before the login phase is decided must fail.
func TestConsentBeforeLoginRejected(t *testing.T) {
	f := setupTestFixture(t)
	f.createClient(t)
	f.createUser(t)
	session := f.newSession(t)

	result, err := f.authorizer.Authorize(authParams(), session, "")
	require.NoError(t, err)
	require.Equal(t, oauth2.LoginInteraction, result.Interaction)

	// Force a consent challenge onto the still-pending grant.
	grant := result.Grant
	challenge, err := grants.NewChallenge()
	require.NoError(t, err)
	grant.ConsentChallenge = challenge
	require.NoError(t, f.grantRepo.Upsert(grant))

	_, err = f.interactions.Decide(oauth2.ConsentInteraction, challenge, &auth.Decision{
		Accept:     true,
		GrantScope: "foo",
	})
	require.Error(t, err)
	var protocolErr *oauth2.Error
	require.ErrorAs(t, err, &protocolErr)
	require.Equal(t, oauth2.InvalidRequestCode, protocolErr.Code)
	require.Equal(t, "The Login Interaction has not been completed.", protocolErr.Description)
}

func TestLoginDenyRedirectsError(t *testing.T) {
	f := setupTestFixture(t)
	f.createClient(t)
	session := f.newSession(t)

	result, err := f.authorizer.Authorize(authParams(), session, "")
	require.NoError(t, err)

	_, err = f.interactions.Decide(oauth2.LoginInteraction, result.Grant.LoginChallenge, &auth.Decision{
		Accept:           false,
		Error:            "access_denied",
		ErrorDescription: "The user refused to authenticate.",
	})
	require.Error(t, err)
	var protocolErr *oauth2.Error
	require.ErrorAs(t, err, &protocolErr)
	require.Equal(t, oauth2.AccessDeniedCode, protocolErr.Code)
	require.Equal(t, testState, protocolErr.State)

	// The grant is discarded on deny.
	_, err = f.grantRepo.Get(result.Grant.ID)
	require.Error(t, err)
}

func TestPromptNoneWithoutLogin(t *testing.T) {
	f := setupTestFixture(t)
	f.createClient(t)
	session := f.newSession(t)

	params := authParams()
	params.Prompt = "none"

	result, err := f.authorizer.Authorize(params, session, "")
	require.NoError(t, err)
	require.NotNil(t, result.Response)
	require.Contains(t, result.Response.RedirectURL, "error=login_required")
}

func TestUnknownRedirectURINotTrusted(t *testing.T) {
	f := setupTestFixture(t)
	f.createClient(t)
	session := f.newSession(t)

	params := authParams()
	params.RedirectURI = "https://attacker.example.com/callback"

	result, err := f.authorizer.Authorize(params, session, "")
	require.NoError(t, err)
	// Rendered directly, never redirected.
	require.NotNil(t, result.Err)
	require.Nil(t, result.Response)
	require.Equal(t, oauth2.AccessDeniedCode, result.Err.Code)
}

func TestMissingCodeChallengeRedirected(t *testing.T) {
	f := setupTestFixture(t)
	f.createClient(t)
	session := f.newSession(t)

	params := authParams()
	params.CodeChallenge = ""
	params.CodeChallengeMethod = ""

	result, err := f.authorizer.Authorize(params, session, "")
	require.NoError(t, err)
	require.Nil(t, result.Err)
	require.NotNil(t, result.Response)
	require.Contains(t, result.Response.RedirectURL, "error=invalid_request")
	require.Contains(t, result.Response.RedirectURL, "state="+testState)
}

// An existing consent covering the requested scopes skips the consent
// interaction entirely on the next request.
func TestConsentReuse(t *testing.T) {
	f := setupTestFixture(t)
	f.createClient(t)
	f.createUser(t)
	session := f.newSession(t)

	login, err := f.authHandler.Login(session, testUserID, []string{"pwd"}, "")
	require.NoError(t, err)
	require.NotNil(t, login)

	require.NoError(t, f.consentRepo.Upsert(&grants.Consent{
		ID:            "consent-1",
		UserID:        testUserID,
		ClientID:      testClientID,
		GrantedScopes: []string{"foo", "bar", "baz", "qux"},
		CreatedAt:     time.Now(),
	}))

	result, err := f.authorizer.Authorize(authParams(), session, "")
	require.NoError(t, err)
	require.NotNil(t, result.Response)
	require.Contains(t, result.Response.RedirectURL, "code=")
}

func TestEndSessionFlow(t *testing.T) {
	f := setupTestFixture(t)
	client := f.createClient(t)
	f.createUser(t)
	session := f.newSession(t)

	_, err := f.authHandler.Login(session, testUserID, []string{"pwd"}, "")
	require.NoError(t, err)

	hint, err := f.idTokens.IssueIDToken(client, testUserID, []string{"openid"}, "", "")
	require.NoError(t, err)

	params := oauth2.EndSessionParameters{
		IDTokenHint:           hint,
		ClientID:              testClientID,
		PostLogoutRedirectURI: "https://client.example.com/logged_out",
		State:                 testState,
	}

	// First round: confirmation required, a logout ticket is issued.
	result, err := f.endSession.EndSession(params, session, "")
	require.NoError(t, err)
	require.NotNil(t, result.Ticket)
	require.NotEmpty(t, result.Ticket.LogoutChallenge)

	// Confirm the logout through the interaction.
	decision, err := f.interactions.Decide(oauth2.LogoutInteraction, result.Ticket.LogoutChallenge, &auth.Decision{Accept: true})
	require.NoError(t, err)
	require.Contains(t, decision.RedirectTo, "https://client.example.com/logged_out")
	require.Contains(t, decision.RedirectTo, "state="+testState)

	// The active login is gone and the ticket consumed.
	_, err = f.ticketRepo.Get(result.Ticket.ID)
	require.Error(t, err)
	_, err = f.sessionRepo.Get(session.ID)
	require.Error(t, err)
}

func TestEndSessionTicketImmutability(t *testing.T) {
	f := setupTestFixture(t)
	client := f.createClient(t)
	f.createUser(t)
	session := f.newSession(t)

	_, err := f.authHandler.Login(session, testUserID, []string{"pwd"}, "")
	require.NoError(t, err)

	hint, err := f.idTokens.IssueIDToken(client, testUserID, []string{"openid"}, "", "")
	require.NoError(t, err)

	params := oauth2.EndSessionParameters{
		IDTokenHint:           hint,
		ClientID:              testClientID,
		PostLogoutRedirectURI: "https://client.example.com/logged_out",
	}
	result, err := f.endSession.EndSession(params, session, "")
	require.NoError(t, err)
	require.NotNil(t, result.Ticket)

	// Re-present the ticket with drifted parameters.
	drifted := params
	drifted.State = "changed"
	_, err = f.endSession.EndSession(drifted, session, result.Ticket.ID)
	require.Error(t, err)
	var protocolErr *oauth2.Error
	require.ErrorAs(t, err, &protocolErr)
	require.Equal(t, oauth2.InvalidRequestCode, protocolErr.Code)
	require.Equal(t, "The registered parameters changed.", protocolErr.Description)
}

// A new login replaces the session's previous active login.
func TestLoginReplacesActiveLogin(t *testing.T) {
	f := setupTestFixture(t)
	f.createUser(t)
	session := f.newSession(t)

	first, err := f.authHandler.Login(session, testUserID, []string{"pwd"}, "")
	require.NoError(t, err)
	second, err := f.authHandler.Login(session, testUserID, []string{"pwd", "otp"}, "")
	require.NoError(t, err)

	require.Equal(t, second.ID, session.ActiveLogin.ID)
	require.Len(t, session.Logins, 1)
	_, err = f.loginRepo.Get(first.ID)
	require.Error(t, err)
}
