package granttypes

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/guaranijs/guarani-sub005/auth"
	"github.com/guaranijs/guarani-sub005/clientauth"
	"github.com/guaranijs/guarani-sub005/oauth2"
	"github.com/guaranijs/guarani-sub005/pkce"
	"github.com/guaranijs/guarani-sub005/token"
)

// AuthorizationCode exchanges a one-time authorization code for tokens,
// re-verifying the redirect URI and PKCE pair captured at issuance.
type AuthorizationCode struct {
	validator
	issuance
	codes   token.AuthorizationCodeRepo
	pkce    *pkce.Registry
	nowFunc func() time.Time
}

// NewAuthorizationCode creates the authorization_code grant type.
func NewAuthorizationCode(clientAuth *clientauth.Handler, scopes *auth.ScopeHandler, issuer *token.Issuer, codes token.AuthorizationCodeRepo, pkceRegistry *pkce.Registry, idTokens IDTokenIssuer) *AuthorizationCode {
	return &AuthorizationCode{
		validator: validator{clientAuth: clientAuth, scopes: scopes},
		issuance:  issuance{issuer: issuer, idTokens: idTokens},
		codes:     codes,
		pkce:      pkceRegistry,
		nowFunc:   time.Now,
	}
}

func (g *AuthorizationCode) Name() oauth2.GrantType { return oauth2.AuthorizationCodeGrant }

func (g *AuthorizationCode) Validate(ctx context.Context, request *clientauth.Request) (*TokenContext, error) {
	client, err := g.authenticateClient(ctx, request, oauth2.AuthorizationCodeGrant)
	if err != nil {
		return nil, err
	}

	codeParam := request.Body.Get("code")
	redirectURI := request.Body.Get("redirect_uri")
	codeVerifier := request.Body.Get("code_verifier")
	switch {
	case codeParam == "":
		return nil, oauth2.NewInvalidRequest(`Invalid parameter "code".`)
	case redirectURI == "":
		return nil, oauth2.NewInvalidRequest(`Invalid parameter "redirect_uri".`)
	case codeVerifier == "":
		return nil, oauth2.NewInvalidRequest(`Invalid parameter "code_verifier".`)
	}

	code, err := g.codes.Get(codeParam)
	if err != nil {
		return nil, oauth2.NewInvalidGrant("Invalid Authorization Code.")
	}
	if code.ClientID != client.ID || !code.Usable(g.nowFunc()) {
		return nil, oauth2.NewInvalidGrant("Invalid Authorization Code.")
	}
	if code.RedirectURI != redirectURI {
		return nil, oauth2.NewInvalidGrant("Mismatching Redirect URI.")
	}
	if err := g.verifyPKCE(code, codeVerifier); err != nil {
		return nil, err
	}

	return &TokenContext{
		Parameters:        request,
		Client:            client,
		GrantType:         oauth2.AuthorizationCodeGrant,
		Scopes:            code.Scopes,
		UserID:            code.UserID,
		AuthorizationCode: code,
	}, nil
}

func (g *AuthorizationCode) verifyPKCE(code *token.AuthorizationCode, verifier string) error {
	method, ok := g.pkce.Get(code.CodeChallengeMethod)
	if !ok {
		return oauth2.NewInvalidGrant(fmt.Sprintf("Unsupported code_challenge_method %q.", code.CodeChallengeMethod))
	}
	if !method.Verify(code.CodeChallenge, verifier) {
		return oauth2.NewInvalidGrant("Invalid PKCE Code Verifier.")
	}
	return nil
}

func (g *AuthorizationCode) Handle(_ context.Context, tokenCtx *TokenContext) (*oauth2.TokenResponse, error) {
	// One-time use: delete before minting so a replayed code cannot race a
	// second issuance past this point.
	if err := g.codes.Delete(tokenCtx.AuthorizationCode.Code); err != nil {
		return nil, oauth2.NewInvalidGrant("Invalid Authorization Code.")
	}

	accessToken, err := g.issuer.IssueAccessToken(tokenCtx.Client, tokenCtx.UserID, tokenCtx.Scopes)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationCode.Handle] IssueAccessToken")
	}
	refreshToken, err := g.issuer.IssueRefreshToken(tokenCtx.Client, tokenCtx.UserID, tokenCtx.Scopes)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationCode.Handle] IssueRefreshToken")
	}
	return g.tokenResponse(tokenCtx.Client, accessToken, refreshToken, tokenCtx.AuthorizationCode.Nonce)
}
