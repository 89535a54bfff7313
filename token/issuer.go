package token

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/guaranijs/guarani-sub005/clients"
	"github.com/guaranijs/guarani-sub005/oauth2"
)

const (
	// handleLength is the byte length of opaque token handles. 16 bytes of
	// entropy, hex-encoded to 32 characters.
	handleLength = 16

	// userCodeAlphabet excludes ambiguous characters for manual entry.
	userCodeAlphabet = "BCDFGHJKLMNPQRSTVWXZ"
	userCodeLength   = 8
)

// Repos holds the token storage dependencies of the Issuer. RefreshTokens
// may be nil, in which case no refresh tokens are ever minted.
type Repos struct {
	AccessTokens       AccessTokenRepo
	RefreshTokens      RefreshTokenRepo
	AuthorizationCodes AuthorizationCodeRepo
	DeviceCodes        DeviceCodeRepo
}

// Issuer mints and revokes the opaque handles issued by the server.
type Issuer struct {
	repos              Repos
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	authCodeExpiry     time.Duration
	deviceCodeExpiry   time.Duration
	deviceCodeInterval int
	nowFunc            func() time.Time
}

// IssuerOption modifies the Issuer instance.
type IssuerOption func(*Issuer)

// WithTokenExpiry sets the lifetimes of issued handles.
func WithTokenExpiry(accessTokenExpiry, refreshTokenExpiry, authCodeExpiry time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.accessTokenExpiry = accessTokenExpiry
		i.refreshTokenExpiry = refreshTokenExpiry
		i.authCodeExpiry = authCodeExpiry
	}
}

// WithDeviceCodeExpiry sets the device code lifetime and minimum poll interval.
func WithDeviceCodeExpiry(expiry time.Duration, interval int) IssuerOption {
	return func(i *Issuer) {
		i.deviceCodeExpiry = expiry
		i.deviceCodeInterval = interval
	}
}

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowFunc = now
	}
}

// NewIssuer initializes a new Issuer with its storage dependencies.
func NewIssuer(repos Repos, options ...IssuerOption) (*Issuer, error) {
	if repos.AccessTokens == nil {
		return nil, errors.New("[NewIssuer] AccessTokens repo is required")
	}

	issuer := &Issuer{
		repos:              repos,
		accessTokenExpiry:  time.Hour,
		refreshTokenExpiry: 14 * 24 * time.Hour,
		authCodeExpiry:     5 * time.Minute,
		deviceCodeExpiry:   5 * time.Minute,
		deviceCodeInterval: 5,
		nowFunc:            time.Now,
	}

	for _, opt := range options {
		opt(issuer)
	}

	return issuer, nil
}

// AccessTokenExpiry returns the configured access token lifetime.
func (i *Issuer) AccessTokenExpiry() time.Duration { return i.accessTokenExpiry }

// NewHandle generates an opaque random token handle.
func NewHandle() (string, error) {
	buf := make([]byte, handleLength)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "[NewHandle] rand.Read")
	}
	return hex.EncodeToString(buf), nil
}

// IssueAccessToken mints and stores a new access token for the client and
// optional user.
func (i *Issuer) IssueAccessToken(client *clients.Client, userID string, scopes []string) (*AccessToken, error) {
	handle, err := NewHandle()
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.IssueAccessToken] NewHandle")
	}

	now := i.nowFunc()
	accessToken := &AccessToken{
		Handle:   handle,
		Scopes:   scopes,
		ClientID: client.ID,
		UserID:   userID,
		Lifetime: Lifetime{
			IssuedAt:   now,
			ExpiresAt:  now.Add(i.accessTokenExpiry),
			ValidAfter: now,
		},
	}
	if err := i.repos.AccessTokens.Upsert(accessToken); err != nil {
		return nil, errors.Wrap(err, "[Issuer.IssueAccessToken] Upsert")
	}
	return accessToken, nil
}

// IssueRefreshToken mints and stores a new refresh token. Returns nil when
// the client is not registered for the refresh_token grant or no refresh
// token repo is configured.
func (i *Issuer) IssueRefreshToken(client *clients.Client, userID string, scopes []string) (*RefreshToken, error) {
	if i.repos.RefreshTokens == nil || !client.HasGrantType(oauth2.RefreshTokenGrant) {
		return nil, nil
	}

	handle, err := NewHandle()
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.IssueRefreshToken] NewHandle")
	}

	now := i.nowFunc()
	refreshToken := &RefreshToken{
		Handle:   handle,
		Scopes:   scopes,
		ClientID: client.ID,
		UserID:   userID,
		Lifetime: Lifetime{
			IssuedAt:   now,
			ExpiresAt:  now.Add(i.refreshTokenExpiry),
			ValidAfter: now,
		},
	}
	if err := i.repos.RefreshTokens.Upsert(refreshToken); err != nil {
		return nil, errors.Wrap(err, "[Issuer.IssueRefreshToken] Upsert")
	}
	return refreshToken, nil
}

// RotateRefreshToken revokes the presented refresh token and persists its
// replacement in a single repo call so both cannot be valid at once.
func (i *Issuer) RotateRefreshToken(old *RefreshToken) (*RefreshToken, error) {
	handle, err := NewHandle()
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.RotateRefreshToken] NewHandle")
	}

	now := i.nowFunc()
	replacement := &RefreshToken{
		Handle:   handle,
		Scopes:   old.Scopes,
		ClientID: old.ClientID,
		UserID:   old.UserID,
		Lifetime: Lifetime{
			IssuedAt:   now,
			ExpiresAt:  now.Add(i.refreshTokenExpiry),
			ValidAfter: now,
		},
	}
	if err := i.repos.RefreshTokens.Rotate(old.Handle, replacement); err != nil {
		return nil, errors.Wrap(err, "[Issuer.RotateRefreshToken] Rotate")
	}
	return replacement, nil
}

// IssueAuthorizationCode mints a one-time code capturing the redirect URI
// and PKCE pair for later verification at the token endpoint.
func (i *Issuer) IssueAuthorizationCode(client *clients.Client, userID string, scopes []string, params *oauth2.AuthorizationParameters) (*AuthorizationCode, error) {
	handle, err := NewHandle()
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.IssueAuthorizationCode] NewHandle")
	}

	now := i.nowFunc()
	code := &AuthorizationCode{
		Code:                handle,
		Scopes:              scopes,
		ClientID:            client.ID,
		UserID:              userID,
		RedirectURI:         params.RedirectURI,
		CodeChallenge:       params.CodeChallenge,
		CodeChallengeMethod: params.CodeChallengeMethod,
		Nonce:               params.Nonce,
		Lifetime: Lifetime{
			IssuedAt:   now,
			ExpiresAt:  now.Add(i.authCodeExpiry),
			ValidAfter: now,
		},
	}
	if err := i.repos.AuthorizationCodes.Upsert(code); err != nil {
		return nil, errors.Wrap(err, "[Issuer.IssueAuthorizationCode] Upsert")
	}
	return code, nil
}

// IssueDeviceCode starts a device authorization, minting the device code the
// device polls with and the short user code entered on a secondary device.
func (i *Issuer) IssueDeviceCode(client *clients.Client, scopes []string, verificationURI string) (*DeviceCode, error) {
	handle, err := NewHandle()
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.IssueDeviceCode] NewHandle")
	}
	userCode, err := newUserCode()
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.IssueDeviceCode] newUserCode")
	}

	now := i.nowFunc()
	deviceCode := &DeviceCode{
		DeviceCode:      handle,
		UserCode:        userCode,
		VerificationURI: verificationURI,
		Scopes:          scopes,
		ClientID:        client.ID,
		Status:          DeviceCodePending,
		Interval:        i.deviceCodeInterval,
		Lifetime: Lifetime{
			IssuedAt:   now,
			ExpiresAt:  now.Add(i.deviceCodeExpiry),
			ValidAfter: now,
		},
	}
	if err := i.repos.DeviceCodes.Upsert(deviceCode); err != nil {
		return nil, errors.Wrap(err, "[Issuer.IssueDeviceCode] Upsert")
	}
	return deviceCode, nil
}

// DecideDeviceCode records the user's verdict on a pending device
// authorization, looked up by the code the user typed on the secondary
// device. Approval binds the authorization to the user; the polling device
// picks the verdict up at the token endpoint.
func (i *Issuer) DecideDeviceCode(userCode, userID string, approve bool) (*DeviceCode, error) {
	deviceCode, err := i.repos.DeviceCodes.GetByUserCode(NormalizeUserCode(userCode))
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.DecideDeviceCode] GetByUserCode")
	}
	if deviceCode.Expired(i.nowFunc()) {
		return nil, ErrExpired
	}
	if deviceCode.Status != DeviceCodePending {
		return nil, ErrAlreadyDecided
	}

	if approve {
		deviceCode.Status = DeviceCodeApproved
		deviceCode.UserID = userID
	} else {
		deviceCode.Status = DeviceCodeDenied
	}
	if err := i.repos.DeviceCodes.Upsert(deviceCode); err != nil {
		return nil, errors.Wrap(err, "[Issuer.DecideDeviceCode] Upsert")
	}
	return deviceCode, nil
}

// NormalizeUserCode canonicalizes a typed user code to the issued
// "XXXX-XXXX" form: uppercase, separators stripped, the hyphen re-inserted.
func NormalizeUserCode(userCode string) string {
	cleaned := make([]byte, 0, userCodeLength)
	for _, r := range strings.ToUpper(userCode) {
		if r >= 'A' && r <= 'Z' {
			cleaned = append(cleaned, byte(r))
		}
	}
	if len(cleaned) != userCodeLength {
		return userCode
	}
	return string(cleaned[:4]) + "-" + string(cleaned[4:])
}

// RevokeAccessToken marks the access token revoked. Unknown handles are not
// an error per RFC 7009.
func (i *Issuer) RevokeAccessToken(handle string) error {
	accessToken, err := i.repos.AccessTokens.Get(handle)
	if err != nil {
		return nil
	}
	accessToken.IsRevoked = true
	return errors.Wrap(i.repos.AccessTokens.Upsert(accessToken), "[Issuer.RevokeAccessToken] Upsert")
}

// RevokeRefreshToken marks the refresh token revoked.
func (i *Issuer) RevokeRefreshToken(handle string) error {
	if i.repos.RefreshTokens == nil {
		return nil
	}
	refreshToken, err := i.repos.RefreshTokens.Get(handle)
	if err != nil {
		return nil
	}
	refreshToken.IsRevoked = true
	return errors.Wrap(i.repos.RefreshTokens.Upsert(refreshToken), "[Issuer.RevokeRefreshToken] Upsert")
}

func newUserCode() (string, error) {
	buf := make([]byte, userCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	code := make([]byte, userCodeLength)
	for idx, b := range buf {
		code[idx] = userCodeAlphabet[int(b)%len(userCodeAlphabet)]
	}
	return string(code[:4]) + "-" + string(code[4:]), nil
}
