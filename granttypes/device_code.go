package granttypes

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/guaranijs/guarani-sub005/auth"
	"github.com/guaranijs/guarani-sub005/clientauth"
	"github.com/guaranijs/guarani-sub005/oauth2"
	"github.com/guaranijs/guarani-sub005/token"
)

// DeviceCode is the RFC 8628 device_code grant: the device polls the token
// endpoint until the user approves or denies the authorization on a
// secondary device.
type DeviceCode struct {
	validator
	issuance
	deviceCodes token.DeviceCodeRepo
	nowFunc     func() time.Time
}

// NewDeviceCode creates the device_code grant type.
func NewDeviceCode(clientAuth *clientauth.Handler, scopes *auth.ScopeHandler, issuer *token.Issuer, deviceCodes token.DeviceCodeRepo, idTokens IDTokenIssuer) *DeviceCode {
	return &DeviceCode{
		validator:   validator{clientAuth: clientAuth, scopes: scopes},
		issuance:    issuance{issuer: issuer, idTokens: idTokens},
		deviceCodes: deviceCodes,
		nowFunc:     time.Now,
	}
}

func (g *DeviceCode) Name() oauth2.GrantType { return oauth2.DeviceCodeGrant }

func (g *DeviceCode) Validate(ctx context.Context, request *clientauth.Request) (*TokenContext, error) {
	client, err := g.authenticateClient(ctx, request, oauth2.DeviceCodeGrant)
	if err != nil {
		return nil, err
	}

	handle := request.Body.Get("device_code")
	if handle == "" {
		return nil, oauth2.NewInvalidRequest(`Invalid parameter "device_code".`)
	}

	deviceCode, err := g.deviceCodes.Get(handle)
	if err != nil {
		return nil, oauth2.NewInvalidGrant("Invalid Device Code.")
	}
	if deviceCode.ClientID != client.ID || deviceCode.IsRevoked {
		return nil, oauth2.NewInvalidGrant("Invalid Device Code.")
	}

	now := g.nowFunc()
	if deviceCode.Expired(now) {
		return nil, oauth2.NewExpiredToken("The Device Code has expired.")
	}

	tooFast := deviceCode.PolledTooFast(now)
	deviceCode.LastPolledAt = &now
	if err := g.deviceCodes.Upsert(deviceCode); err != nil {
		return nil, errors.Wrap(err, "[DeviceCode.Validate] Upsert")
	}
	if tooFast {
		return nil, oauth2.NewSlowDown("Polling too fast.")
	}

	switch deviceCode.Status {
	case token.DeviceCodePending:
		return nil, oauth2.NewAuthorizationPending("The End User has not yet decided.")
	case token.DeviceCodeDenied:
		return nil, oauth2.NewAccessDenied("The End User denied the authorization.")
	}

	return &TokenContext{
		Parameters: request,
		Client:     client,
		GrantType:  oauth2.DeviceCodeGrant,
		Scopes:     deviceCode.Scopes,
		UserID:     deviceCode.UserID,
		DeviceCode: deviceCode,
	}, nil
}

func (g *DeviceCode) Handle(_ context.Context, tokenCtx *TokenContext) (*oauth2.TokenResponse, error) {
	// One-time use once approved.
	if err := g.deviceCodes.Delete(tokenCtx.DeviceCode.DeviceCode); err != nil {
		return nil, oauth2.NewInvalidGrant("Invalid Device Code.")
	}

	accessToken, err := g.issuer.IssueAccessToken(tokenCtx.Client, tokenCtx.UserID, tokenCtx.Scopes)
	if err != nil {
		return nil, errors.Wrap(err, "[DeviceCode.Handle] IssueAccessToken")
	}
	refreshToken, err := g.issuer.IssueRefreshToken(tokenCtx.Client, tokenCtx.UserID, tokenCtx.Scopes)
	if err != nil {
		return nil, errors.Wrap(err, "[DeviceCode.Handle] IssueRefreshToken")
	}
	return g.tokenResponse(tokenCtx.Client, accessToken, refreshToken, "")
}
