package granttypes

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/guaranijs/guarani-sub005/auth"
	"github.com/guaranijs/guarani-sub005/clientauth"
	"github.com/guaranijs/guarani-sub005/clients"
	"github.com/guaranijs/guarani-sub005/oauth2"
	"github.com/guaranijs/guarani-sub005/token"
	"github.com/guaranijs/guarani-sub005/users"
)

// JWTBearer is the RFC 7523 authorization grant: a signed assertion issued
// by the client vouches for a resource owner. Every assertion failure yields
// the same generic invalid_grant so the endpoint cannot be used as an
// oracle for which check failed.
type JWTBearer struct {
	validator
	issuance
	users            users.UserRepo
	keys             *clientauth.KeyResolver
	tokenEndpoint    string
	serverAlgorithms []string
	nowFunc          func() time.Time
}

// NewJWTBearer creates the jwt-bearer grant type.
func NewJWTBearer(clientAuth *clientauth.Handler, scopes *auth.ScopeHandler, issuer *token.Issuer, userRepo users.UserRepo, keys *clientauth.KeyResolver, tokenEndpoint string, serverAlgorithms []string, idTokens IDTokenIssuer) *JWTBearer {
	return &JWTBearer{
		validator:        validator{clientAuth: clientAuth, scopes: scopes},
		issuance:         issuance{issuer: issuer, idTokens: idTokens},
		users:            userRepo,
		keys:             keys,
		tokenEndpoint:    tokenEndpoint,
		serverAlgorithms: serverAlgorithms,
		nowFunc:          time.Now,
	}
}

func (g *JWTBearer) Name() oauth2.GrantType { return oauth2.JWTBearerGrant }

func invalidAssertion() *oauth2.Error {
	return oauth2.NewInvalidGrant("Invalid JSON Web Token Assertion.")
}

func (g *JWTBearer) Validate(ctx context.Context, request *clientauth.Request) (*TokenContext, error) {
	client, err := g.authenticateClient(ctx, request, oauth2.JWTBearerGrant)
	if err != nil {
		return nil, err
	}

	assertion := request.Body.Get("assertion")
	if assertion == "" {
		return nil, oauth2.NewInvalidRequest(`Invalid parameter "assertion".`)
	}

	user, err := g.verifyAssertion(ctx, client, assertion)
	if err != nil {
		return nil, err
	}

	scope := request.Body.Get("scope")
	if err := g.scopes.CheckRequestedScope(scope); err != nil {
		return nil, err
	}
	allowed, err := g.scopes.GetAllowedScopes(client, scope)
	if err != nil {
		return nil, err
	}

	return &TokenContext{
		Parameters: request,
		Client:     client,
		GrantType:  oauth2.JWTBearerGrant,
		Scopes:     allowed,
		UserID:     user.ID,
	}, nil
}

// verifyAssertion checks the assertion's algorithm, claims and signature and
// resolves the represented end user. The assertion is self-issued: iss must
// equal the authenticated client's id, sub names the user.
func (g *JWTBearer) verifyAssertion(ctx context.Context, client *clients.Client, assertion string) (*users.User, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(assertion, jwt.MapClaims{})
	if err != nil {
		return nil, invalidAssertion()
	}

	alg, _ := unverified.Header["alg"].(string)
	if alg == "" || alg == "none" || !containsString(g.serverAlgorithms, alg) {
		return nil, invalidAssertion()
	}

	claims, ok := unverified.Claims.(jwt.MapClaims)
	if !ok {
		return nil, invalidAssertion()
	}
	issuer, _ := claims["iss"].(string)
	subject, _ := claims["sub"].(string)
	if issuer == "" || subject == "" || issuer != client.ID {
		return nil, invalidAssertion()
	}
	if exp, err := claims.GetExpirationTime(); err != nil || exp == nil || exp.Before(g.nowFunc()) {
		return nil, invalidAssertion()
	}
	if !assertionAudience(claims["aud"], g.tokenEndpoint) {
		return nil, invalidAssertion()
	}

	kid, _ := unverified.Header["kid"].(string)
	key, err := g.resolveKey(ctx, client, alg, kid)
	if err != nil {
		return nil, invalidAssertion()
	}
	verified, err := jwt.NewParser(jwt.WithValidMethods([]string{alg})).Parse(assertion, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil || !verified.Valid {
		return nil, invalidAssertion()
	}

	user, err := g.users.GetByID(subject)
	if err != nil {
		return nil, invalidAssertion()
	}
	return user, nil
}

// resolveKey mirrors the client-assertion dual key resolution: the client
// secret for HMAC algorithms, a JWKS key for asymmetric ones.
func (g *JWTBearer) resolveKey(ctx context.Context, client *clients.Client, alg, kid string) (any, error) {
	if strings.HasPrefix(alg, "HS") {
		if client.Secret == nil || client.SecretExpired(g.nowFunc()) {
			return nil, errors.New("client has no usable secret")
		}
		return []byte(*client.Secret), nil
	}
	return g.keys.Resolve(ctx, client, kid)
}

func assertionAudience(aud any, expected string) bool {
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

func (g *JWTBearer) Handle(_ context.Context, tokenCtx *TokenContext) (*oauth2.TokenResponse, error) {
	accessToken, err := g.issuer.IssueAccessToken(tokenCtx.Client, tokenCtx.UserID, tokenCtx.Scopes)
	if err != nil {
		return nil, errors.Wrap(err, "[JWTBearer.Handle] IssueAccessToken")
	}
	refreshToken, err := g.issuer.IssueRefreshToken(tokenCtx.Client, tokenCtx.UserID, tokenCtx.Scopes)
	if err != nil {
		return nil, errors.Wrap(err, "[JWTBearer.Handle] IssueRefreshToken")
	}
	return g.tokenResponse(tokenCtx.Client, accessToken, refreshToken, "")
}
