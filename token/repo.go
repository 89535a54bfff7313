package token

// AccessTokenRepo manages server-side storage of access token metadata.
// Tokens sent to clients are opaque random handles; the repo stores the
// associated scopes, client and user keyed by the handle.
type AccessTokenRepo interface {
	Upsert(accessToken *AccessToken) error
	Get(handle string) (*AccessToken, error)
	Delete(handle string) error
}

// RefreshTokenRepo manages server-side storage of refresh token metadata.
// Rotate must mark the old token revoked and persist the new token in one
// logical transaction so there is never a window where both or neither are
// valid.
type RefreshTokenRepo interface {
	Upsert(refreshToken *RefreshToken) error
	Get(handle string) (*RefreshToken, error)
	Rotate(oldHandle string, newToken *RefreshToken) error
	Delete(handle string) error
}

// AuthorizationCodeRepo manages one-time authorization codes.
type AuthorizationCodeRepo interface {
	Upsert(code *AuthorizationCode) error
	Get(code string) (*AuthorizationCode, error)
	Delete(code string) error
}

// DeviceCodeRepo manages device authorization state.
type DeviceCodeRepo interface {
	Upsert(deviceCode *DeviceCode) error
	Get(deviceCode string) (*DeviceCode, error)
	GetByUserCode(userCode string) (*DeviceCode, error)
	Delete(deviceCode string) error
}
