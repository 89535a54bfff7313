package granttypes

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/guaranijs/guarani-sub005/auth"
	"github.com/guaranijs/guarani-sub005/clientauth"
	"github.com/guaranijs/guarani-sub005/oauth2"
	"github.com/guaranijs/guarani-sub005/token"
)

// RefreshToken exchanges a refresh token for a new access token, rotating
// the refresh token atomically. A scope parameter may narrow, never widen,
// the originally granted set.
type RefreshToken struct {
	validator
	issuance
	refreshTokens token.RefreshTokenRepo
	nowFunc       func() time.Time
}

// NewRefreshToken creates the refresh_token grant type.
func NewRefreshToken(clientAuth *clientauth.Handler, scopes *auth.ScopeHandler, issuer *token.Issuer, refreshTokens token.RefreshTokenRepo, idTokens IDTokenIssuer) *RefreshToken {
	return &RefreshToken{
		validator:     validator{clientAuth: clientAuth, scopes: scopes},
		issuance:      issuance{issuer: issuer, idTokens: idTokens},
		refreshTokens: refreshTokens,
		nowFunc:       time.Now,
	}
}

func (g *RefreshToken) Name() oauth2.GrantType { return oauth2.RefreshTokenGrant }

func (g *RefreshToken) Validate(ctx context.Context, request *clientauth.Request) (*TokenContext, error) {
	client, err := g.authenticateClient(ctx, request, oauth2.RefreshTokenGrant)
	if err != nil {
		return nil, err
	}

	handle := request.Body.Get("refresh_token")
	if handle == "" {
		return nil, oauth2.NewInvalidRequest(`Invalid parameter "refresh_token".`)
	}

	refreshToken, err := g.refreshTokens.Get(handle)
	if err != nil {
		return nil, oauth2.NewInvalidGrant("Invalid Refresh Token.")
	}
	if refreshToken.ClientID != client.ID || !refreshToken.Usable(g.nowFunc()) {
		return nil, oauth2.NewInvalidGrant("Invalid Refresh Token.")
	}

	scopes := refreshToken.Scopes
	if scope := request.Body.Get("scope"); scope != "" {
		requested := oauth2.SplitScopes(scope)
		for _, entry := range requested {
			if !oauth2.ContainsScope(refreshToken.Scopes, entry) {
				return nil, oauth2.NewInvalidGrant(fmt.Sprintf("The scope %q was not previously granted.", entry))
			}
		}
		scopes = requested
	}

	return &TokenContext{
		Parameters:   request,
		Client:       client,
		GrantType:    oauth2.RefreshTokenGrant,
		Scopes:       scopes,
		UserID:       refreshToken.UserID,
		RefreshToken: refreshToken,
	}, nil
}

func (g *RefreshToken) Handle(_ context.Context, tokenCtx *TokenContext) (*oauth2.TokenResponse, error) {
	rotated, err := g.issuer.RotateRefreshToken(tokenCtx.RefreshToken)
	if err != nil {
		if errors.Is(err, token.ErrRotationConflict) {
			return nil, oauth2.NewInvalidGrant("Invalid Refresh Token.")
		}
		return nil, errors.Wrap(err, "[RefreshToken.Handle] RotateRefreshToken")
	}

	accessToken, err := g.issuer.IssueAccessToken(tokenCtx.Client, tokenCtx.UserID, tokenCtx.Scopes)
	if err != nil {
		return nil, errors.Wrap(err, "[RefreshToken.Handle] IssueAccessToken")
	}
	return g.tokenResponse(tokenCtx.Client, accessToken, rotated, "")
}
