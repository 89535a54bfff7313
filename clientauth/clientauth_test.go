package clientauth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"net/url"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/guaranijs/guarani-sub005/clientauth"
	"github.com/guaranijs/guarani-sub005/clients"
	fakeclientrepo "github.com/guaranijs/guarani-sub005/clients/fakerepo"
	"github.com/guaranijs/guarani-sub005/oauth2"
)

const (
	testClientID     = "test-client-1"
	testClientSecret = "super-secret-value-1234"
	testTokenURL     = "https://auth.example.com/oauth/token"
)

// testFixture holds all test dependencies
type testFixture struct {
	clientRepo *fakeclientrepo.FakeClientRepo
	handler    *clientauth.Handler
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	cr := fakeclientrepo.NewFakeClientRepo()
	serverAlgorithms := []string{"HS256", "RS256", "ES256"}
	handler := clientauth.NewHandler(
		clientauth.NewNone(cr),
		clientauth.NewSecretBasic(cr),
		clientauth.NewSecretPost(cr),
		clientauth.NewSecretJWT(cr, testTokenURL, serverAlgorithms),
		clientauth.NewPrivateKeyJWT(cr, testTokenURL, serverAlgorithms, clientauth.NewKeyResolver(nil)),
	)

	return &testFixture{clientRepo: cr, handler: handler}
}

func (f *testFixture) createClient(t *testing.T, method oauth2.ClientAuthMethod, secret *string) *clients.Client {
	t.Helper()

	client := &clients.Client{
		ID:                             testClientID,
		Secret:                         secret,
		Name:                           "Test Client",
		RedirectURIs:                   []string{"https://client.example.com/callback"},
		ResponseTypes:                  []oauth2.ResponseType{oauth2.CodeResponseType},
		GrantTypes:                     []oauth2.GrantType{oauth2.AuthorizationCodeGrant},
		ApplicationType:                oauth2.WebApplicationType,
		AuthenticationMethod:           method,
		Scopes:                         []string{"openid", "profile"},
		SubjectType:                    oauth2.PublicSubjectType,
		IDTokenSignedResponseAlgorithm: "RS256",
	}
	if method == oauth2.ClientSecretJWTAuthMethod || method == oauth2.PrivateKeyJWTAuthMethod {
		client.AuthenticationSigningAlgorithm = "HS256"
	}
	require.NoError(t, f.clientRepo.Upsert(client))
	return client
}

func basicRequest(id, secret string) *clientauth.Request {
	credentials := base64.StdEncoding.EncodeToString([]byte(id + ":" + secret))
	return &clientauth.Request{
		Authorization: "Basic " + credentials,
		Body:          url.Values{},
	}
}

func postRequest(id, secret string) *clientauth.Request {
	body := url.Values{}
	body.Set("client_id", id)
	if secret != "" {
		body.Set("client_secret", secret)
	}
	return &clientauth.Request{Body: body}
}

func assertionRequest(t *testing.T, alg string, key any, claims jwt.MapClaims) *clientauth.Request {
	t.Helper()

	method := jwt.GetSigningMethod(alg)
	require.NotNil(t, method)
	assertion, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)

	body := url.Values{}
	body.Set("client_assertion_type", oauth2.JWTBearerAssertionType)
	body.Set("client_assertion", assertion)
	return &clientauth.Request{Body: body}
}

func requireInvalidClient(t *testing.T, err error, description string) {
	t.Helper()

	require.Error(t, err)
	var protocolErr *oauth2.Error
	require.ErrorAs(t, err, &protocolErr)
	require.Equal(t, oauth2.InvalidClientCode, protocolErr.Code)
	require.Equal(t, description, protocolErr.Description)
}

func TestAuthenticateSecretBasic(t *testing.T) {
	f := setupTestFixture(t)
	secret := testClientSecret
	f.createClient(t, oauth2.ClientSecretBasicAuthMethod, &secret)

	client, err := f.handler.Authenticate(context.Background(), basicRequest(testClientID, testClientSecret))
	require.NoError(t, err)
	require.Equal(t, testClientID, client.ID)
}

func TestAuthenticateSecretBasicWrongSecret(t *testing.T) {
	f := setupTestFixture(t)
	secret := testClientSecret
	f.createClient(t, oauth2.ClientSecretBasicAuthMethod, &secret)

	_, err := f.handler.Authenticate(context.Background(), basicRequest(testClientID, "wrong-secret"))
	requireInvalidClient(t, err, "Invalid Credentials.")
}

func TestAuthenticateSecretBasicWrongLengthSecret(t *testing.T) {
	f := setupTestFixture(t)
	secret := testClientSecret
	f.createClient(t, oauth2.ClientSecretBasicAuthMethod, &secret)

	_, err := f.handler.Authenticate(context.Background(), basicRequest(testClientID, testClientSecret+"x"))
	requireInvalidClient(t, err, "Invalid Credentials.")
}

func TestAuthenticateSecretBasicUnknownClient(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.handler.Authenticate(context.Background(), basicRequest("no-such-client", testClientSecret))
	requireInvalidClient(t, err, "Invalid Credentials.")

	var protocolErr *oauth2.Error
	require.ErrorAs(t, err, &protocolErr)
	require.Equal(t, "Basic", protocolErr.Headers["WWW-Authenticate"])
}

func TestAuthenticateSecretBasicMalformedHeader(t *testing.T) {
	f := setupTestFixture(t)

	request := &clientauth.Request{Authorization: "Basic not*base64!", Body: url.Values{}}
	_, err := f.handler.Authenticate(context.Background(), request)
	requireInvalidClient(t, err, "Token of the Authorization Header is not a Base64 string.")
}

func TestAuthenticateSecretBasicExpiredSecret(t *testing.T) {
	f := setupTestFixture(t)
	secret := testClientSecret
	client := f.createClient(t, oauth2.ClientSecretBasicAuthMethod, &secret)
	expiry := time.Now().Add(-time.Hour)
	client.SecretExpiresAt = &expiry
	require.NoError(t, f.clientRepo.Upsert(client))

	_, err := f.handler.Authenticate(context.Background(), basicRequest(testClientID, testClientSecret))
	requireInvalidClient(t, err, "Invalid Credentials.")
}

func TestAuthenticateSecretBasicMethodMismatch(t *testing.T) {
	f := setupTestFixture(t)
	secret := testClientSecret
	f.createClient(t, oauth2.ClientSecretPostAuthMethod, &secret)

	_, err := f.handler.Authenticate(context.Background(), basicRequest(testClientID, testClientSecret))
	requireInvalidClient(t, err, `This Client is not allowed to use the Authentication Method "client_secret_basic".`)
}

func TestAuthenticateSecretPost(t *testing.T) {
	f := setupTestFixture(t)
	secret := testClientSecret
	f.createClient(t, oauth2.ClientSecretPostAuthMethod, &secret)

	client, err := f.handler.Authenticate(context.Background(), postRequest(testClientID, testClientSecret))
	require.NoError(t, err)
	require.Equal(t, testClientID, client.ID)
}

func TestAuthenticateSecretPostWrongSecret(t *testing.T) {
	f := setupTestFixture(t)
	secret := testClientSecret
	f.createClient(t, oauth2.ClientSecretPostAuthMethod, &secret)

	_, err := f.handler.Authenticate(context.Background(), postRequest(testClientID, "wrong-secret"))
	requireInvalidClient(t, err, "Invalid Credentials.")
}

func TestAuthenticateNone(t *testing.T) {
	f := setupTestFixture(t)
	f.createClient(t, oauth2.NoneAuthMethod, nil)

	client, err := f.handler.Authenticate(context.Background(), postRequest(testClientID, ""))
	require.NoError(t, err)
	require.Equal(t, testClientID, client.ID)
}

func TestAuthenticateNoneRejectsClientWithSecret(t *testing.T) {
	f := setupTestFixture(t)
	secret := testClientSecret
	f.createClient(t, oauth2.NoneAuthMethod, &secret)

	_, err := f.handler.Authenticate(context.Background(), postRequest(testClientID, ""))
	requireInvalidClient(t, err, `This Client is not allowed to use the Authentication Method "none".`)
}

func TestAuthenticateMultipleMethodsDetected(t *testing.T) {
	f := setupTestFixture(t)
	secret := testClientSecret
	f.createClient(t, oauth2.ClientSecretBasicAuthMethod, &secret)

	request := basicRequest(testClientID, testClientSecret)
	request.Body.Set("client_id", testClientID)
	request.Body.Set("client_secret", testClientSecret)

	_, err := f.handler.Authenticate(context.Background(), request)
	requireInvalidClient(t, err, "Multiple Client Authentication Methods detected.")
}

func TestAuthenticateNoMethodDetected(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.handler.Authenticate(context.Background(), &clientauth.Request{Body: url.Values{}})
	requireInvalidClient(t, err, "No Client Authentication Method detected.")
}

func TestAuthenticateSecretJWT(t *testing.T) {
	f := setupTestFixture(t)
	secret := testClientSecret
	f.createClient(t, oauth2.ClientSecretJWTAuthMethod, &secret)

	request := assertionRequest(t, "HS256", []byte(testClientSecret), jwt.MapClaims{
		"iss": testClientID,
		"sub": testClientID,
		"aud": testTokenURL,
		"exp": time.Now().Add(time.Minute).Unix(),
		"jti": uuid.New().String(),
	})

	client, err := f.handler.Authenticate(context.Background(), request)
	require.NoError(t, err)
	require.Equal(t, testClientID, client.ID)
}

func TestAuthenticateSecretJWTWrongKey(t *testing.T) {
	f := setupTestFixture(t)
	secret := testClientSecret
	f.createClient(t, oauth2.ClientSecretJWTAuthMethod, &secret)

	request := assertionRequest(t, "HS256", []byte("not-the-registered-secret"), jwt.MapClaims{
		"iss": testClientID,
		"sub": testClientID,
		"aud": testTokenURL,
		"exp": time.Now().Add(time.Minute).Unix(),
		"jti": uuid.New().String(),
	})

	_, err := f.handler.Authenticate(context.Background(), request)
	requireInvalidClient(t, err, "Invalid JSON Web Token Client Assertion")
}

func TestAuthenticateSecretJWTExpiredAssertion(t *testing.T) {
	f := setupTestFixture(t)
	secret := testClientSecret
	f.createClient(t, oauth2.ClientSecretJWTAuthMethod, &secret)

	request := assertionRequest(t, "HS256", []byte(testClientSecret), jwt.MapClaims{
		"iss": testClientID,
		"sub": testClientID,
		"aud": testTokenURL,
		"exp": time.Now().Add(-time.Minute).Unix(),
		"jti": uuid.New().String(),
	})

	_, err := f.handler.Authenticate(context.Background(), request)
	requireInvalidClient(t, err, "Invalid JSON Web Token Client Assertion")
}

func TestAuthenticateSecretJWTMissingJTI(t *testing.T) {
	f := setupTestFixture(t)
	secret := testClientSecret
	f.createClient(t, oauth2.ClientSecretJWTAuthMethod, &secret)

	request := assertionRequest(t, "HS256", []byte(testClientSecret), jwt.MapClaims{
		"iss": testClientID,
		"sub": testClientID,
		"aud": testTokenURL,
		"exp": time.Now().Add(time.Minute).Unix(),
	})

	_, err := f.handler.Authenticate(context.Background(), request)
	requireInvalidClient(t, err, "Invalid JSON Web Token Client Assertion")
}

func TestAuthenticateSecretJWTIssuerSubjectMismatch(t *testing.T) {
	f := setupTestFixture(t)
	secret := testClientSecret
	f.createClient(t, oauth2.ClientSecretJWTAuthMethod, &secret)

	request := assertionRequest(t, "HS256", []byte(testClientSecret), jwt.MapClaims{
		"iss": "someone-else",
		"sub": testClientID,
		"aud": testTokenURL,
		"exp": time.Now().Add(time.Minute).Unix(),
		"jti": uuid.New().String(),
	})

	_, err := f.handler.Authenticate(context.Background(), request)
	requireInvalidClient(t, err, "Invalid JSON Web Token Client Assertion")
}

func TestAuthenticatePrivateKeyJWT(t *testing.T) {
	f := setupTestFixture(t)
	client := f.createClient(t, oauth2.PrivateKeyJWTAuthMethod, nil)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	client.AuthenticationSigningAlgorithm = "RS256"
	client.JWKS = &jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &key.PublicKey,
		KeyID:     "client-key-1",
		Use:       "sig",
		Algorithm: "RS256",
	}}}
	require.NoError(t, f.clientRepo.Upsert(client))

	// Both assertion methods are registered on the handler; the RS256
	// header must route to private_key_jwt alone.
	request := assertionRequest(t, "RS256", key, jwt.MapClaims{
		"iss": testClientID,
		"sub": testClientID,
		"aud": testTokenURL,
		"exp": time.Now().Add(time.Minute).Unix(),
		"jti": uuid.New().String(),
	})

	authenticated, err := f.handler.Authenticate(context.Background(), request)
	require.NoError(t, err)
	require.Equal(t, testClientID, authenticated.ID)
}

func TestAssertionUnknownAlgorithmMatchesNoMethod(t *testing.T) {
	f := setupTestFixture(t)
	secret := testClientSecret
	f.createClient(t, oauth2.ClientSecretJWTAuthMethod, &secret)

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"XX999"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{}`))
	body := url.Values{}
	body.Set("client_assertion_type", oauth2.JWTBearerAssertionType)
	body.Set("client_assertion", header+"."+payload+".c2lnbmF0dXJl")

	_, err := f.handler.Authenticate(context.Background(), &clientauth.Request{Body: body})
	requireInvalidClient(t, err, "No Client Authentication Method detected.")
}

func TestAuthenticateSecretJWTAudienceArray(t *testing.T) {
	f := setupTestFixture(t)
	secret := testClientSecret
	f.createClient(t, oauth2.ClientSecretJWTAuthMethod, &secret)

	request := assertionRequest(t, "HS256", []byte(testClientSecret), jwt.MapClaims{
		"iss": testClientID,
		"sub": testClientID,
		"aud": []string{"https://other.example.com", testTokenURL},
		"exp": time.Now().Add(time.Minute).Unix(),
		"jti": uuid.New().String(),
	})

	client, err := f.handler.Authenticate(context.Background(), request)
	require.NoError(t, err)
	require.Equal(t, testClientID, client.ID)
}
