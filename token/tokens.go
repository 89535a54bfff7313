package token

import (
	"time"

	"github.com/guaranijs/guarani-sub005/oauth2"
)

// Lifetime is the shared lifecycle data of every handle issued by the
// server. A token is usable only when it is not revoked, not expired and
// past its validAfter instant.
type Lifetime struct {
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	ValidAfter time.Time `json:"valid_after"`
	IsRevoked  bool      `json:"is_revoked"`
}

// Expired reports whether the token has passed its expiry.
func (l Lifetime) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// Usable reports whether the token may be presented right now.
func (l Lifetime) Usable(now time.Time) bool {
	return !l.IsRevoked && !l.Expired(now) && !now.Before(l.ValidAfter)
}

// AccessToken is an opaque bearer credential for protected resources.
// UserID is empty for client_credentials issuance.
type AccessToken struct {
	Handle   string   `json:"handle"`
	Scopes   []string `json:"scopes"`
	ClientID string   `json:"client_id"`
	UserID   string   `json:"user_id,omitempty"`
	Lifetime
}

// RefreshToken is an opaque credential exchanged for new access tokens.
type RefreshToken struct {
	Handle   string   `json:"handle"`
	Scopes   []string `json:"scopes"`
	ClientID string   `json:"client_id"`
	UserID   string   `json:"user_id"`
	Lifetime
}

// AuthorizationCode is a one-time handle minted by the authorization
// endpoint. The redirect URI and PKCE pair are captured at issuance and
// re-verified at exchange.
type AuthorizationCode struct {
	Code                string                `json:"code"`
	Scopes              []string              `json:"scopes"`
	ClientID            string                `json:"client_id"`
	UserID              string                `json:"user_id"`
	RedirectURI         string                `json:"redirect_uri"`
	CodeChallenge       string                `json:"code_challenge,omitempty"`
	CodeChallengeMethod oauth2.CodeMethodType `json:"code_challenge_method,omitempty"`
	Nonce               string                `json:"nonce,omitempty"`
	Lifetime
}

// DeviceCodeStatus is the user-facing outcome of a device authorization.
type DeviceCodeStatus string

const (
	DeviceCodePending  DeviceCodeStatus = "pending"
	DeviceCodeApproved DeviceCodeStatus = "approved"
	DeviceCodeDenied   DeviceCodeStatus = "denied"
)

// DeviceCode is the state of one RFC 8628 device authorization. The device
// polls the token endpoint with DeviceCode while the user enters UserCode on
// a secondary device.
type DeviceCode struct {
	DeviceCode      string           `json:"device_code"`
	UserCode        string           `json:"user_code"`
	VerificationURI string           `json:"verification_uri"`
	Scopes          []string         `json:"scopes"`
	ClientID        string           `json:"client_id"`
	UserID          string           `json:"user_id,omitempty"` // set on approval
	Status          DeviceCodeStatus `json:"status"`
	Interval        int              `json:"interval"` // minimum seconds between polls
	LastPolledAt    *time.Time       `json:"last_polled_at,omitempty"`
	Lifetime
}

// PolledTooFast reports whether the device is polling faster than the
// configured interval allows.
func (d *DeviceCode) PolledTooFast(now time.Time) bool {
	if d.LastPolledAt == nil || d.Interval <= 0 {
		return false
	}
	return now.Sub(*d.LastPolledAt) < time.Duration(d.Interval)*time.Second
}
