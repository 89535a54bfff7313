package granttypes_test

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/guaranijs/guarani-sub005/auth"
	"github.com/guaranijs/guarani-sub005/clientauth"
	"github.com/guaranijs/guarani-sub005/clients"
	fakeclientrepo "github.com/guaranijs/guarani-sub005/clients/fakerepo"
	"github.com/guaranijs/guarani-sub005/granttypes"
	"github.com/guaranijs/guarani-sub005/oauth2"
	"github.com/guaranijs/guarani-sub005/pkce"
	"github.com/guaranijs/guarani-sub005/token"
	faketokenrepo "github.com/guaranijs/guarani-sub005/token/repofake"
	"github.com/guaranijs/guarani-sub005/users"
	fakeuserrepo "github.com/guaranijs/guarani-sub005/users/repofake"
)

const (
	testClientID     = "test-client-1"
	testClientSecret = "test-secret-0123456789abcdef0123"
	testUserID       = "user-1"
	testUsername     = "john.doe"
	testUserPassword = "password123"
	testRedirectURI  = "https://client.example.com/callback"
	testTokenURL     = "https://auth.example.com/oauth/token"
	testCodeVerifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
)

var serverScopes = []string{"openid", "profile", "email", "foo", "bar", "baz", "qux"}

type testFixture struct {
	clientRepo   *fakeclientrepo.FakeClientRepo
	userRepo     *fakeuserrepo.FakeUserRepo
	accessTokens *faketokenrepo.FakeAccessTokenRepo
	refreshRepo  *faketokenrepo.FakeRefreshTokenRepo
	codeRepo     *faketokenrepo.FakeAuthorizationCodeRepo
	deviceRepo   *faketokenrepo.FakeDeviceCodeRepo
	issuer       *token.Issuer
	registry     *granttypes.Registry
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		clientRepo:   fakeclientrepo.NewFakeClientRepo(),
		userRepo:     fakeuserrepo.NewFakeUserRepo(),
		accessTokens: faketokenrepo.NewFakeAccessTokenRepo(),
		refreshRepo:  faketokenrepo.NewFakeRefreshTokenRepo(),
		codeRepo:     faketokenrepo.NewFakeAuthorizationCodeRepo(),
		deviceRepo:   faketokenrepo.NewFakeDeviceCodeRepo(),
	}

	issuer, err := token.NewIssuer(token.Repos{
		AccessTokens:       f.accessTokens,
		RefreshTokens:      f.refreshRepo,
		AuthorizationCodes: f.codeRepo,
		DeviceCodes:        f.deviceRepo,
	})
	require.NoError(t, err)
	f.issuer = issuer

	clientAuth := clientauth.NewHandler(
		clientauth.NewSecretPost(f.clientRepo),
	)
	scopes := auth.NewScopeHandler(serverScopes)
	keys := clientauth.NewKeyResolver(nil)

	passwordGrant, err := granttypes.NewPassword(clientAuth, scopes, issuer, f.userRepo, nil)
	require.NoError(t, err)

	f.registry = granttypes.NewRegistry(
		granttypes.NewAuthorizationCode(clientAuth, scopes, issuer, f.codeRepo, pkce.NewRegistry(), nil),
		granttypes.NewClientCredentials(clientAuth, scopes, issuer),
		passwordGrant,
		granttypes.NewRefreshToken(clientAuth, scopes, issuer, f.refreshRepo, nil),
		granttypes.NewDeviceCode(clientAuth, scopes, issuer, f.deviceRepo, nil),
		granttypes.NewJWTBearer(clientAuth, scopes, issuer, f.userRepo, keys, testTokenURL, []string{"HS256", "RS256"}, nil),
	)
	return f
}

func (f *testFixture) createClient(t *testing.T, grantTypes []oauth2.GrantType, scopes []string) *clients.Client {
	t.Helper()

	secret := testClientSecret
	client := &clients.Client{
		ID:                             testClientID,
		Secret:                         &secret,
		Name:                           "Test Client",
		RedirectURIs:                   []string{testRedirectURI},
		ResponseTypes:                  []oauth2.ResponseType{oauth2.CodeResponseType},
		GrantTypes:                     grantTypes,
		ApplicationType:                oauth2.WebApplicationType,
		AuthenticationMethod:           oauth2.ClientSecretPostAuthMethod,
		Scopes:                         scopes,
		SubjectType:                    oauth2.PublicSubjectType,
		IDTokenSignedResponseAlgorithm: "RS256",
	}
	require.NoError(t, f.clientRepo.Upsert(client))
	return client
}

func (f *testFixture) createUser(t *testing.T) *users.User {
	t.Helper()

	hash, err := users.HashPassword(testUserPassword)
	require.NoError(t, err)
	user := &users.User{
		ID:           testUserID,
		Username:     testUsername,
		Email:        "john.doe@example.com",
		PasswordHash: hash,
		Verified:     true,
	}
	require.NoError(t, f.userRepo.Upsert(user))
	return user
}

func tokenRequest(params map[string]string) *clientauth.Request {
	body := url.Values{}
	body.Set("client_id", testClientID)
	body.Set("client_secret", testClientSecret)
	for k, v := range params {
		body.Set(k, v)
	}
	return &clientauth.Request{Body: body}
}

func exchange(t *testing.T, f *testFixture, grantType oauth2.GrantType, params map[string]string) (*oauth2.TokenResponse, error) {
	t.Helper()

	grant, err := f.registry.Get(grantType)
	require.NoError(t, err)
	tokenCtx, err := grant.Validate(context.Background(), tokenRequest(params))
	if err != nil {
		return nil, err
	}
	return grant.Handle(context.Background(), tokenCtx)
}

func requireOAuth2Error(t *testing.T, err error, code oauth2.ErrorCode, description string) {
	t.Helper()

	require.Error(t, err)
	var protocolErr *oauth2.Error
	require.ErrorAs(t, err, &protocolErr)
	require.Equal(t, code, protocolErr.Code)
	if description != "" {
		require.Equal(t, description, protocolErr.Description)
	}
}

func s256Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

func TestRegistryUnsupportedGrantType(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.registry.Get("implicit")
	requireOAuth2Error(t, err, oauth2.UnsupportedGrantTypeCode, `Unsupported grant_type "implicit".`)
}

func TestUnregisteredGrantTypeRejected(t *testing.T) {
	f := setupTestFixture(t)
	f.createClient(t, []oauth2.GrantType{oauth2.AuthorizationCodeGrant}, serverScopes)

	_, err := exchange(t, f, oauth2.ClientCredentialsGrant, nil)
	requireOAuth2Error(t, err, oauth2.UnauthorizedClientCode, `This Client is not allowed to request the grant_type "client_credentials".`)
}

func TestAuthorizationCodeExchange(t *testing.T) {
	f := setupTestFixture(t)
	client := f.createClient(t, []oauth2.GrantType{oauth2.AuthorizationCodeGrant, oauth2.RefreshTokenGrant}, serverScopes)

	code, err := f.issuer.IssueAuthorizationCode(client, testUserID, []string{"foo", "bar", "baz", "qux"}, &oauth2.AuthorizationParameters{
		RedirectURI:         testRedirectURI,
		CodeChallenge:       s256Challenge(testCodeVerifier),
		CodeChallengeMethod: oauth2.CodeMethodTypeS256,
	})
	require.NoError(t, err)

	response, err := exchange(t, f, oauth2.AuthorizationCodeGrant, map[string]string{
		"code":          code.Code,
		"redirect_uri":  testRedirectURI,
		"code_verifier": testCodeVerifier,
	})
	require.NoError(t, err)
	require.NotEmpty(t, response.AccessToken)
	require.Equal(t, "Bearer", response.TokenType)
	require.Equal(t, 3600, response.ExpiresIn)
	require.Equal(t, "foo bar baz qux", response.Scope)
	require.NotEmpty(t, response.RefreshToken)

	// One-time use: replay fails.
	_, err = exchange(t, f, oauth2.AuthorizationCodeGrant, map[string]string{
		"code":          code.Code,
		"redirect_uri":  testRedirectURI,
		"code_verifier": testCodeVerifier,
	})
	requireOAuth2Error(t, err, oauth2.InvalidGrantCode, "Invalid Authorization Code.")
}

func TestAuthorizationCodeWrongVerifier(t *testing.T) {
	f := setupTestFixture(t)
	client := f.createClient(t, []oauth2.GrantType{oauth2.AuthorizationCodeGrant}, serverScopes)

	code, err := f.issuer.IssueAuthorizationCode(client, testUserID, []string{"foo"}, &oauth2.AuthorizationParameters{
		RedirectURI:         testRedirectURI,
		CodeChallenge:       s256Challenge(testCodeVerifier),
		CodeChallengeMethod: oauth2.CodeMethodTypeS256,
	})
	require.NoError(t, err)

	_, err = exchange(t, f, oauth2.AuthorizationCodeGrant, map[string]string{
		"code":          code.Code,
		"redirect_uri":  testRedirectURI,
		"code_verifier": "not-the-right-verifier-not-the-right",
	})
	requireOAuth2Error(t, err, oauth2.InvalidGrantCode, "Invalid PKCE Code Verifier.")
}

func TestAuthorizationCodeMismatchedRedirectURI(t *testing.T) {
	f := setupTestFixture(t)
	client := f.createClient(t, []oauth2.GrantType{oauth2.AuthorizationCodeGrant}, serverScopes)

	code, err := f.issuer.IssueAuthorizationCode(client, testUserID, []string{"foo"}, &oauth2.AuthorizationParameters{
		RedirectURI:         testRedirectURI,
		CodeChallenge:       s256Challenge(testCodeVerifier),
		CodeChallengeMethod: oauth2.CodeMethodTypeS256,
	})
	require.NoError(t, err)

	_, err = exchange(t, f, oauth2.AuthorizationCodeGrant, map[string]string{
		"code":          code.Code,
		"redirect_uri":  "https://attacker.example.com/callback",
		"code_verifier": testCodeVerifier,
	})
	requireOAuth2Error(t, err, oauth2.InvalidGrantCode, "Mismatching Redirect URI.")
}

func TestClientCredentials(t *testing.T) {
	f := setupTestFixture(t)
	f.createClient(t, []oauth2.GrantType{oauth2.ClientCredentialsGrant}, serverScopes)

	response, err := exchange(t, f, oauth2.ClientCredentialsGrant, map[string]string{"scope": "foo bar"})
	require.NoError(t, err)
	require.NotEmpty(t, response.AccessToken)
	require.Equal(t, "foo bar", response.Scope)
	require.Empty(t, response.RefreshToken)

	stored, err := f.accessTokens.Get(response.AccessToken)
	require.NoError(t, err)
	require.Empty(t, stored.UserID)
}

func TestClientCredentialsDisallowedScope(t *testing.T) {
	f := setupTestFixture(t)
	f.createClient(t, []oauth2.GrantType{oauth2.ClientCredentialsGrant}, []string{"foo"})

	_, err := exchange(t, f, oauth2.ClientCredentialsGrant, map[string]string{"scope": "foo bar"})
	requireOAuth2Error(t, err, oauth2.AccessDeniedCode, `The Client is not allowed to request the scope "bar".`)
}

func TestClientCredentialsUnsupportedScope(t *testing.T) {
	f := setupTestFixture(t)
	f.createClient(t, []oauth2.GrantType{oauth2.ClientCredentialsGrant}, serverScopes)

	_, err := exchange(t, f, oauth2.ClientCredentialsGrant, map[string]string{"scope": "nonexistent"})
	requireOAuth2Error(t, err, oauth2.InvalidScopeCode, `Unsupported scope "nonexistent".`)
}

func TestPasswordGrant(t *testing.T) {
	f := setupTestFixture(t)
	f.createClient(t, []oauth2.GrantType{oauth2.PasswordGrant, oauth2.RefreshTokenGrant}, serverScopes)
	f.createUser(t)

	response, err := exchange(t, f, oauth2.PasswordGrant, map[string]string{
		"username": testUsername,
		"password": testUserPassword,
	})
	require.NoError(t, err)
	require.NotEmpty(t, response.AccessToken)
	require.NotEmpty(t, response.RefreshToken)

	stored, err := f.accessTokens.Get(response.AccessToken)
	require.NoError(t, err)
	require.Equal(t, testUserID, stored.UserID)
}

func TestPasswordGrantBadCredentials(t *testing.T) {
	f := setupTestFixture(t)
	f.createClient(t, []oauth2.GrantType{oauth2.PasswordGrant}, serverScopes)
	f.createUser(t)

	_, err := exchange(t, f, oauth2.PasswordGrant, map[string]string{
		"username": testUsername,
		"password": "wrong-password",
	})
	requireOAuth2Error(t, err, oauth2.InvalidGrantCode, "Invalid Credentials.")
}

func TestRefreshTokenRotation(t *testing.T) {
	f := setupTestFixture(t)
	client := f.createClient(t, []oauth2.GrantType{oauth2.RefreshTokenGrant}, serverScopes)

	original, err := f.issuer.IssueRefreshToken(client, testUserID, []string{"foo", "bar"})
	require.NoError(t, err)

	response, err := exchange(t, f, oauth2.RefreshTokenGrant, map[string]string{"refresh_token": original.Handle})
	require.NoError(t, err)
	require.NotEmpty(t, response.AccessToken)
	require.NotEmpty(t, response.RefreshToken)
	require.NotEqual(t, original.Handle, response.RefreshToken)

	// The presented token is revoked by the rotation.
	_, err = exchange(t, f, oauth2.RefreshTokenGrant, map[string]string{"refresh_token": original.Handle})
	requireOAuth2Error(t, err, oauth2.InvalidGrantCode, "Invalid Refresh Token.")
}

func TestRefreshTokenScopeSubset(t *testing.T) {
	f := setupTestFixture(t)
	client := f.createClient(t, []oauth2.GrantType{oauth2.RefreshTokenGrant}, serverScopes)

	original, err := f.issuer.IssueRefreshToken(client, testUserID, []string{"foo", "bar"})
	require.NoError(t, err)

	response, err := exchange(t, f, oauth2.RefreshTokenGrant, map[string]string{
		"refresh_token": original.Handle,
		"scope":         "foo",
	})
	require.NoError(t, err)
	require.Equal(t, "foo", response.Scope)

	stored, err := f.accessTokens.Get(response.AccessToken)
	require.NoError(t, err)
	require.Equal(t, []string{"foo"}, stored.Scopes)
}

func TestRefreshTokenScopeWidening(t *testing.T) {
	f := setupTestFixture(t)
	client := f.createClient(t, []oauth2.GrantType{oauth2.RefreshTokenGrant}, serverScopes)

	original, err := f.issuer.IssueRefreshToken(client, testUserID, []string{"foo"})
	require.NoError(t, err)

	_, err = exchange(t, f, oauth2.RefreshTokenGrant, map[string]string{
		"refresh_token": original.Handle,
		"scope":         "foo bar",
	})
	requireOAuth2Error(t, err, oauth2.InvalidGrantCode, `The scope "bar" was not previously granted.`)
}

func TestRefreshTokenUnknownHandle(t *testing.T) {
	f := setupTestFixture(t)
	f.createClient(t, []oauth2.GrantType{oauth2.RefreshTokenGrant}, serverScopes)

	_, err := exchange(t, f, oauth2.RefreshTokenGrant, map[string]string{"refresh_token": "no-such-handle"})
	requireOAuth2Error(t, err, oauth2.InvalidGrantCode, "Invalid Refresh Token.")
}

func TestDeviceCodePending(t *testing.T) {
	f := setupTestFixture(t)
	client := f.createClient(t, []oauth2.GrantType{oauth2.DeviceCodeGrant}, serverScopes)

	deviceCode, err := f.issuer.IssueDeviceCode(client, []string{"foo"}, "https://auth.example.com/device")
	require.NoError(t, err)

	_, err = exchange(t, f, oauth2.DeviceCodeGrant, map[string]string{"device_code": deviceCode.DeviceCode})
	requireOAuth2Error(t, err, oauth2.AuthorizationPendingCode, "The End User has not yet decided.")
}

func TestDeviceCodeSlowDown(t *testing.T) {
	f := setupTestFixture(t)
	client := f.createClient(t, []oauth2.GrantType{oauth2.DeviceCodeGrant}, serverScopes)

	deviceCode, err := f.issuer.IssueDeviceCode(client, []string{"foo"}, "https://auth.example.com/device")
	require.NoError(t, err)

	_, err = exchange(t, f, oauth2.DeviceCodeGrant, map[string]string{"device_code": deviceCode.DeviceCode})
	requireOAuth2Error(t, err, oauth2.AuthorizationPendingCode, "")

	// Second poll inside the minimum interval.
	_, err = exchange(t, f, oauth2.DeviceCodeGrant, map[string]string{"device_code": deviceCode.DeviceCode})
	requireOAuth2Error(t, err, oauth2.SlowDownCode, "Polling too fast.")
}

func TestDeviceCodeApproved(t *testing.T) {
	f := setupTestFixture(t)
	client := f.createClient(t, []oauth2.GrantType{oauth2.DeviceCodeGrant}, serverScopes)

	deviceCode, err := f.issuer.IssueDeviceCode(client, []string{"foo"}, "https://auth.example.com/device")
	require.NoError(t, err)

	deviceCode.Status = token.DeviceCodeApproved
	deviceCode.UserID = testUserID
	past := time.Now().Add(-time.Minute)
	deviceCode.LastPolledAt = &past
	require.NoError(t, f.deviceRepo.Upsert(deviceCode))

	response, err := exchange(t, f, oauth2.DeviceCodeGrant, map[string]string{"device_code": deviceCode.DeviceCode})
	require.NoError(t, err)
	require.NotEmpty(t, response.AccessToken)

	stored, err := f.accessTokens.Get(response.AccessToken)
	require.NoError(t, err)
	require.Equal(t, testUserID, stored.UserID)
}

func TestDeviceCodeDenied(t *testing.T) {
	f := setupTestFixture(t)
	client := f.createClient(t, []oauth2.GrantType{oauth2.DeviceCodeGrant}, serverScopes)

	deviceCode, err := f.issuer.IssueDeviceCode(client, []string{"foo"}, "https://auth.example.com/device")
	require.NoError(t, err)

	deviceCode.Status = token.DeviceCodeDenied
	past := time.Now().Add(-time.Minute)
	deviceCode.LastPolledAt = &past
	require.NoError(t, f.deviceRepo.Upsert(deviceCode))

	_, err = exchange(t, f, oauth2.DeviceCodeGrant, map[string]string{"device_code": deviceCode.DeviceCode})
	requireOAuth2Error(t, err, oauth2.AccessDeniedCode, "The End User denied the authorization.")
}

// minimalUserRepo implements only the base UserRepo contract, without
// resource owner credentials lookup.
type minimalUserRepo struct{}

func (minimalUserRepo) Upsert(*users.User) error               { return nil }
func (minimalUserRepo) Delete(string) error                    { return nil }
func (minimalUserRepo) GetByID(string) (*users.User, error)    { return nil, users.ErrNotFound }
func (minimalUserRepo) GetByEmail(string) (*users.User, error) { return nil, users.ErrNotFound }
func (minimalUserRepo) List(int, int) ([]*users.User, error)   { return nil, nil }

func TestPasswordGrantRequiresCredentialsRepo(t *testing.T) {
	f := setupTestFixture(t)

	_, err := granttypes.NewPassword(clientauth.NewHandler(), auth.NewScopeHandler(serverScopes), f.issuer, minimalUserRepo{}, nil)
	require.Error(t, err)
}

func TestJWTBearerGrant(t *testing.T) {
	f := setupTestFixture(t)
	f.createClient(t, []oauth2.GrantType{oauth2.JWTBearerGrant}, serverScopes)
	f.createUser(t)

	assertion := signedAssertion(t, jwt.MapClaims{
		"iss": testClientID,
		"sub": testUserID,
		"aud": testTokenURL,
		"exp": time.Now().Add(time.Minute).Unix(),
	})

	response, err := exchange(t, f, oauth2.JWTBearerGrant, map[string]string{
		"assertion": assertion,
		"scope":     "foo",
	})
	require.NoError(t, err)
	require.NotEmpty(t, response.AccessToken)

	stored, err := f.accessTokens.Get(response.AccessToken)
	require.NoError(t, err)
	require.Equal(t, testUserID, stored.UserID)
}

func TestJWTBearerGrantUnknownUser(t *testing.T) {
	f := setupTestFixture(t)
	f.createClient(t, []oauth2.GrantType{oauth2.JWTBearerGrant}, serverScopes)

	assertion := signedAssertion(t, jwt.MapClaims{
		"iss": testClientID,
		"sub": "no-such-user",
		"aud": testTokenURL,
		"exp": time.Now().Add(time.Minute).Unix(),
	})

	_, err := exchange(t, f, oauth2.JWTBearerGrant, map[string]string{"assertion": assertion})
	requireOAuth2Error(t, err, oauth2.InvalidGrantCode, "Invalid JSON Web Token Assertion.")
}

func TestJWTBearerGrantWrongAudience(t *testing.T) {
	f := setupTestFixture(t)
	f.createClient(t, []oauth2.GrantType{oauth2.JWTBearerGrant}, serverScopes)
	f.createUser(t)

	assertion := signedAssertion(t, jwt.MapClaims{
		"iss": testClientID,
		"sub": testUserID,
		"aud": "https://other.example.com/token",
		"exp": time.Now().Add(time.Minute).Unix(),
	})

	_, err := exchange(t, f, oauth2.JWTBearerGrant, map[string]string{"assertion": assertion})
	requireOAuth2Error(t, err, oauth2.InvalidGrantCode, "Invalid JSON Web Token Assertion.")
}

func signedAssertion(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	assertion, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testClientSecret))
	require.NoError(t, err)
	return assertion
}
