package granttypes

import (
	"context"

	"github.com/pkg/errors"

	"github.com/guaranijs/guarani-sub005/auth"
	"github.com/guaranijs/guarani-sub005/clientauth"
	"github.com/guaranijs/guarani-sub005/oauth2"
	"github.com/guaranijs/guarani-sub005/token"
	"github.com/guaranijs/guarani-sub005/users"
)

// Password is the resource owner password credentials grant. The
// constructor fails when the injected UserRepo cannot verify resource owner
// credentials, so a misconfigured server is rejected at startup rather than
// at the first token request.
type Password struct {
	validator
	issuance
	credentials users.ResourceOwnerCredentialsRepo
}

// NewPassword creates the password grant type.
func NewPassword(clientAuth *clientauth.Handler, scopes *auth.ScopeHandler, issuer *token.Issuer, userRepo users.UserRepo, idTokens IDTokenIssuer) (*Password, error) {
	credentials, ok := userRepo.(users.ResourceOwnerCredentialsRepo)
	if !ok {
		return nil, errors.New("[NewPassword] UserRepo does not support resource owner credentials lookup")
	}
	return &Password{
		validator:   validator{clientAuth: clientAuth, scopes: scopes},
		issuance:    issuance{issuer: issuer, idTokens: idTokens},
		credentials: credentials,
	}, nil
}

func (g *Password) Name() oauth2.GrantType { return oauth2.PasswordGrant }

func (g *Password) Validate(ctx context.Context, request *clientauth.Request) (*TokenContext, error) {
	client, err := g.authenticateClient(ctx, request, oauth2.PasswordGrant)
	if err != nil {
		return nil, err
	}

	username := request.Body.Get("username")
	password := request.Body.Get("password")
	switch {
	case username == "":
		return nil, oauth2.NewInvalidRequest(`Invalid parameter "username".`)
	case password == "":
		return nil, oauth2.NewInvalidRequest(`Invalid parameter "password".`)
	}

	user, err := g.credentials.GetByResourceOwnerCredentials(username, password)
	if err != nil || user == nil {
		return nil, oauth2.NewInvalidGrant("Invalid Credentials.")
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
		GrantType:  oauth2.PasswordGrant,
		Scopes:     allowed,
		UserID:     user.ID,
	}, nil
}

func (g *Password) Handle(_ context.Context, tokenCtx *TokenContext) (*oauth2.TokenResponse, error) {
	accessToken, err := g.issuer.IssueAccessToken(tokenCtx.Client, tokenCtx.UserID, tokenCtx.Scopes)
	if err != nil {
		return nil, errors.Wrap(err, "[Password.Handle] IssueAccessToken")
	}
	refreshToken, err := g.issuer.IssueRefreshToken(tokenCtx.Client, tokenCtx.UserID, tokenCtx.Scopes)
	if err != nil {
		return nil, errors.Wrap(err, "[Password.Handle] IssueRefreshToken")
	}
	return g.tokenResponse(tokenCtx.Client, accessToken, refreshToken, "")
}
