package granttypes

import (
	"context"
	"fmt"
	"strings"

	"github.com/guaranijs/guarani-sub005/auth"
	"github.com/guaranijs/guarani-sub005/clientauth"
	"github.com/guaranijs/guarani-sub005/clients"
	"github.com/guaranijs/guarani-sub005/oauth2"
	"github.com/guaranijs/guarani-sub005/token"
)

// TokenContext is the validated state of one token request: the raw
// parameters, the authenticated client and the grant-specific entities the
// validator resolved. It is consumed by the grant type's Handle.
type TokenContext struct {
	Parameters        *clientauth.Request
	Client            *clients.Client
	GrantType         oauth2.GrantType
	Scopes            []string
	UserID            string
	AuthorizationCode *token.AuthorizationCode
	RefreshToken      *token.RefreshToken
	DeviceCode        *token.DeviceCode
}

// GrantType is one token-endpoint grant strategy. Validate authenticates
// the client and checks the grant-specific parameters; Handle mints the
// tokens from the validated context.
type GrantType interface {
	Name() oauth2.GrantType
	Validate(ctx context.Context, request *clientauth.Request) (*TokenContext, error)
	Handle(ctx context.Context, tokenCtx *TokenContext) (*oauth2.TokenResponse, error)
}

// IDTokenIssuer mints an OpenID Connect ID token for a granted request.
// Optional; grants skip the id_token when none is configured or the openid
// scope was not granted.
type IDTokenIssuer interface {
	IssueIDToken(client *clients.Client, userID string, scopes []string, nonce, accessToken string) (string, error)
}

// Registry maps grant_type discriminators to strategies.
type Registry struct {
	grants map[oauth2.GrantType]GrantType
}

// NewRegistry builds a registry from the supplied grant types.
func NewRegistry(grants ...GrantType) *Registry {
	registry := &Registry{grants: make(map[oauth2.GrantType]GrantType, len(grants))}
	for _, g := range grants {
		registry.grants[g.Name()] = g
	}
	return registry
}

// Get resolves the strategy for a grant_type parameter value.
func (r *Registry) Get(name oauth2.GrantType) (GrantType, error) {
	grant, ok := r.grants[name]
	if !ok {
		return nil, oauth2.NewUnsupportedGrantType(fmt.Sprintf("Unsupported grant_type %q.", name))
	}
	return grant, nil
}

// Supported lists the registered grant type discriminators.
func (r *Registry) Supported() []oauth2.GrantType {
	names := make([]oauth2.GrantType, 0, len(r.grants))
	for name := range r.grants {
		names = append(names, name)
	}
	return names
}

// validator carries the checks shared by every grant type: client
// authentication and grant-type registration.
type validator struct {
	clientAuth *clientauth.Handler
	scopes     *auth.ScopeHandler
}

func (v *validator) authenticateClient(ctx context.Context, request *clientauth.Request, grantType oauth2.GrantType) (*clients.Client, error) {
	client, err := v.clientAuth.Authenticate(ctx, request)
	if err != nil {
		return nil, err
	}
	if !client.HasGrantType(grantType) {
		return nil, oauth2.NewUnauthorizedClient(fmt.Sprintf("This Client is not allowed to request the grant_type %q.", grantType))
	}
	return client, nil
}

// issuance holds the minting dependencies shared by every grant type.
type issuance struct {
	issuer   *token.Issuer
	idTokens IDTokenIssuer
}

// tokenResponse assembles the RFC 6749 token response. The scope member is
// emitted only when the granted set differs from the client's default grant.
func (i *issuance) tokenResponse(client *clients.Client, accessToken *token.AccessToken, refreshToken *token.RefreshToken, nonce string) (*oauth2.TokenResponse, error) {
	response := &oauth2.TokenResponse{
		AccessToken: accessToken.Handle,
		TokenType:   "Bearer",
		ExpiresIn:   int(i.issuer.AccessTokenExpiry().Seconds()),
	}
	if !sameScopes(accessToken.Scopes, client.Scopes) {
		response.Scope = strings.Join(accessToken.Scopes, " ")
	}
	if refreshToken != nil {
		response.RefreshToken = refreshToken.Handle
	}
	if i.idTokens != nil && accessToken.UserID != "" && oauth2.ContainsScope(accessToken.Scopes, "openid") {
		idToken, err := i.idTokens.IssueIDToken(client, accessToken.UserID, accessToken.Scopes, nonce, accessToken.Handle)
		if err != nil {
			return nil, err
		}
		response.IDToken = idToken
	}
	return response, nil
}

func containsString(list []string, value string) bool {
	for _, entry := range list {
		if entry == value {
			return true
		}
	}
	return false
}

func sameScopes(granted, defaults []string) bool {
	if len(granted) != len(defaults) {
		return false
	}
	for _, scope := range granted {
		if !oauth2.ContainsScope(defaults, scope) {
			return false
		}
	}
	return true
}
