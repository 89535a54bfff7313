package clientauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/guaranijs/guarani-sub005/clients"
	"github.com/guaranijs/guarani-sub005/oauth2"
)

var jwsSegment = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// keyResolver resolves the verification key for a client assertion. It is
// the only variation point between client_secret_jwt and private_key_jwt
// besides the allowed algorithm subsets.
type keyResolver func(ctx context.Context, client *clients.Client, kid string) (any, error)

// jwtBearerAssertion implements RFC 7523 client assertion authentication,
// shared by the client_secret_jwt and private_key_jwt methods.
type jwtBearerAssertion struct {
	clientRepo       clients.Repo
	tokenEndpoint    string // absolute URL the assertion audience must equal
	serverAlgorithms []string
	name             oauth2.ClientAuthMethod
	methodAlgorithms []string
	resolveKey       keyResolver
}

func (a *jwtBearerAssertion) Name() oauth2.ClientAuthMethod { return a.name }

// HasBeenRequested peeks the assertion's JOSE header so the HMAC and
// asymmetric methods detect disjoint requests: client_secret_jwt claims the
// HS* algorithms, private_key_jwt the rest.
func (a *jwtBearerAssertion) HasBeenRequested(request *Request) bool {
	assertion := request.Body.Get("client_assertion")
	if request.Body.Get("client_assertion_type") != oauth2.JWTBearerAssertionType || !isJWS(assertion) {
		return false
	}
	return containsString(a.methodAlgorithms, assertionAlgorithm(assertion))
}

// assertionAlgorithm decodes the "alg" of a compact JWS header without
// verifying anything.
func assertionAlgorithm(assertion string) string {
	segment, _, _ := strings.Cut(assertion, ".")
	decoded, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return ""
	}
	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(decoded, &header); err != nil {
		return ""
	}
	return header.Alg
}

// isJWS reports whether the token is syntactically a compact JWS: three
// base64url segments with a present signature.
func isJWS(token string) bool {
	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return false
	}
	for _, segment := range segments {
		if !jwsSegment.MatchString(segment) {
			return false
		}
	}
	return true
}

func (a *jwtBearerAssertion) Authenticate(ctx context.Context, request *Request) (*clients.Client, error) {
	client, err := a.authenticate(ctx, request.Body.Get("client_assertion"))
	if err != nil {
		if protocolErr, ok := err.(*oauth2.Error); ok {
			return nil, protocolErr
		}
		return nil, oauth2.NewInvalidClient("Invalid JSON Web Token Client Assertion")
	}
	return client, nil
}

func (a *jwtBearerAssertion) authenticate(ctx context.Context, assertion string) (*clients.Client, error) {
	// Decode header and claims before any signature verification so the
	// algorithm and subject checks run against the declared values.
	unverified, _, err := jwt.NewParser().ParseUnverified(assertion, jwt.MapClaims{})
	if err != nil {
		return nil, err
	}

	alg, _ := unverified.Header["alg"].(string)
	if alg == "" || alg == "none" {
		return nil, oauth2.NewInvalidClient(`The Algorithm "none" is not allowed.`)
	}
	if !containsString(a.serverAlgorithms, alg) {
		return nil, oauth2.NewInvalidClient(fmt.Sprintf("Unsupported Algorithm %q.", alg))
	}
	if !containsString(a.methodAlgorithms, alg) {
		return nil, oauth2.NewInvalidClient(fmt.Sprintf("Unsupported Algorithm %q.", alg))
	}

	claims, ok := unverified.Claims.(jwt.MapClaims)
	if !ok {
		return nil, oauth2.NewInvalidClient("Invalid JSON Web Token Client Assertion")
	}
	if err := a.checkClaims(claims); err != nil {
		return nil, err
	}

	subject, _ := claims["sub"].(string)
	client, err := a.clientRepo.Get(subject)
	if err != nil {
		return nil, oauth2.NewInvalidClient("Invalid Client")
	}
	if client.AuthenticationMethod != a.name {
		return nil, oauth2.NewInvalidClient(fmt.Sprintf("This Client is not allowed to use the Authentication Method %q.", a.name))
	}
	if client.AuthenticationSigningAlgorithm != alg {
		return nil, oauth2.NewInvalidClient("Invalid JSON Web Token Client Assertion")
	}

	kid, _ := unverified.Header["kid"].(string)
	key, err := a.resolveKey(ctx, client, kid)
	if err != nil {
		return nil, err
	}

	verified, err := jwt.NewParser(jwt.WithValidMethods(a.methodAlgorithms)).Parse(assertion, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil || !verified.Valid {
		return nil, oauth2.NewInvalidClient("Invalid JSON Web Token Client Assertion")
	}
	return client, nil
}

// checkClaims enforces the RFC 7523 claim requirements: iss, sub, aud, exp
// and jti must all be present, iss must equal sub, and the audience must
// contain the token endpoint's absolute URL.
func (a *jwtBearerAssertion) checkClaims(claims jwt.MapClaims) error {
	issuer, _ := claims["iss"].(string)
	subject, _ := claims["sub"].(string)
	if issuer == "" || subject == "" {
		return oauth2.NewInvalidClient("Invalid JSON Web Token Client Assertion")
	}
	if issuer != subject {
		return oauth2.NewInvalidClient("Invalid JSON Web Token Client Assertion")
	}
	if exp, err := claims.GetExpirationTime(); err != nil || exp == nil || exp.Before(nowFunc()) {
		return oauth2.NewInvalidClient("Invalid JSON Web Token Client Assertion")
	}
	if jti, _ := claims["jti"].(string); jti == "" {
		return oauth2.NewInvalidClient("Invalid JSON Web Token Client Assertion")
	}
	if !audienceContains(claims["aud"], a.tokenEndpoint) {
		return oauth2.NewInvalidClient("Invalid JSON Web Token Client Assertion")
	}
	return nil
}

// audienceContains accepts the audience as a single string or an array
// containing the expected value.
func audienceContains(aud any, expected string) bool {
	switch v := aud.(type) {
	case string:
		return v == expected
	case []any:
		for _, entry := range v {
			if s, ok := entry.(string); ok && s == expected {
				return true
			}
		}
	case []string:
		for _, s := range v {
			if s == expected {
				return true
			}
		}
	}
	return false
}

func containsString(list []string, value string) bool {
	for _, entry := range list {
		if entry == value {
			return true
		}
	}
	return false
}
