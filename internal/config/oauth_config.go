package config

import "time"

type OAuthConfig interface {
	GetSupportedScopes() []string
	GetClientAssertionAlgorithms() []string
	GetDefaultAccessTokenExpiry() time.Duration
	GetDefaultRefreshTokenExpiry() time.Duration
	GetAuthCodeTimeout() time.Duration
	GetDeviceCodeTimeout() time.Duration
	GetDeviceCodePollInterval() int
	GetGrantTimeout() time.Duration
	GetLogoutTicketTimeout() time.Duration
	GetLoginTimeout() time.Duration
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetSupportedScopes() []string {
	return []string{"openid", "profile", "email", "offline_access", "foo", "bar", "baz", "qux"}
}

// GetClientAssertionAlgorithms lists the JWS algorithms accepted on client
// authentication assertions and jwt-bearer grants.
func (OAuth) GetClientAssertionAlgorithms() []string {
	return []string{"HS256", "RS256", "ES256"}
}

func (OAuth) GetDefaultAccessTokenExpiry() time.Duration {
	return 1 * time.Hour
}

func (OAuth) GetDefaultRefreshTokenExpiry() time.Duration {
	return 14 * 24 * time.Hour
}

func (OAuth) GetAuthCodeTimeout() time.Duration {
	return 5 * time.Minute
}

func (OAuth) GetDeviceCodeTimeout() time.Duration {
	return 5 * time.Minute
}

// GetDeviceCodePollInterval is the minimum number of seconds a device must
// wait between token endpoint polls.
func (OAuth) GetDeviceCodePollInterval() int {
	return 5
}

// GetGrantTimeout bounds how long an authorization request may sit in the
// login/consent interaction before it is discarded.
func (OAuth) GetGrantTimeout() time.Duration {
	return 15 * time.Minute
}

func (OAuth) GetLogoutTicketTimeout() time.Duration {
	return 15 * time.Minute
}

// GetLoginTimeout is how long an authenticated login remains valid within a
// user-agent session.
func (OAuth) GetLoginTimeout() time.Duration {
	return 24 * time.Hour
}
