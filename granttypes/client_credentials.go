package granttypes

import (
	"context"

	"github.com/pkg/errors"

	"github.com/guaranijs/guarani-sub005/auth"
	"github.com/guaranijs/guarani-sub005/clientauth"
	"github.com/guaranijs/guarani-sub005/oauth2"
	"github.com/guaranijs/guarani-sub005/token"
)

// ClientCredentials issues tokens for the client's own machine-to-machine
// access. No resource owner is involved.
type ClientCredentials struct {
	validator
	issuance
}

// NewClientCredentials creates the client_credentials grant type.
func NewClientCredentials(clientAuth *clientauth.Handler, scopes *auth.ScopeHandler, issuer *token.Issuer) *ClientCredentials {
	return &ClientCredentials{
		validator: validator{clientAuth: clientAuth, scopes: scopes},
		issuance:  issuance{issuer: issuer},
	}
}

func (g *ClientCredentials) Name() oauth2.GrantType { return oauth2.ClientCredentialsGrant }

func (g *ClientCredentials) Validate(ctx context.Context, request *clientauth.Request) (*TokenContext, error) {
	client, err := g.authenticateClient(ctx, request, oauth2.ClientCredentialsGrant)
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
		GrantType:  oauth2.ClientCredentialsGrant,
		Scopes:     allowed,
	}, nil
}

func (g *ClientCredentials) Handle(_ context.Context, tokenCtx *TokenContext) (*oauth2.TokenResponse, error) {
	accessToken, err := g.issuer.IssueAccessToken(tokenCtx.Client, "", tokenCtx.Scopes)
	if err != nil {
		return nil, errors.Wrap(err, "[ClientCredentials.Handle] IssueAccessToken")
	}
	return g.tokenResponse(tokenCtx.Client, accessToken, nil, "")
}
