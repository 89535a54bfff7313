package clients

import (
	"net/url"
	"strings"
	"time"

	jose "github.com/go-jose/go-jose/v4"

	"github.com/guaranijs/guarani-sub005/oauth2"
)

// Client is an OAuth 2.0 / OIDC client registration. Instances are created by
// the registration endpoint or provisioned out-of-band and are never mutated
// by the protocol flows themselves.
type Client struct {
	ID              string     `json:"id"`
	Secret          *string    `json:"secret,omitempty"`
	SecretExpiresAt *time.Time `json:"secret_expires_at,omitempty"`
	Name            string     `json:"name"`

	RedirectURIs                   []string                `json:"redirect_uris"`
	PostLogoutRedirectURIs         []string                `json:"post_logout_redirect_uris,omitempty"`
	ResponseTypes                  []oauth2.ResponseType   `json:"response_types"`
	GrantTypes                     []oauth2.GrantType      `json:"grant_types"`
	ApplicationType                oauth2.ApplicationType  `json:"application_type"`
	AuthenticationMethod           oauth2.ClientAuthMethod `json:"token_endpoint_auth_method"`
	AuthenticationSigningAlgorithm string                  `json:"token_endpoint_auth_signing_alg,omitempty"`
	Scopes                         []string                `json:"scopes"`

	SubjectType         oauth2.SubjectType `json:"subject_type"`
	SectorIdentifierURI string             `json:"sector_identifier_uri,omitempty"`
	PairwiseSalt        string             `json:"-"`

	// Exactly one of JWKSURI / JWKS may be set; required when the client
	// authenticates with private_key_jwt.
	JWKSURI string              `json:"jwks_uri,omitempty"`
	JWKS    *jose.JSONWebKeySet `json:"jwks,omitempty"`

	IDTokenSignedResponseAlgorithm string `json:"id_token_signed_response_alg"`

	// AdditionalClaims holds registration metadata with no protocol meaning.
	AdditionalClaims map[string]any `json:"additional_claims,omitempty"`
}

// HasGrantType reports whether the client is registered for the grant type.
func (c *Client) HasGrantType(gt oauth2.GrantType) bool {
	for _, g := range c.GrantTypes {
		if g == gt {
			return true
		}
	}
	return false
}

// HasResponseType reports whether the client is registered for the response type.
func (c *Client) HasResponseType(rt oauth2.ResponseType) bool {
	rt = rt.Normalize()
	for _, r := range c.ResponseTypes {
		if r.Normalize() == rt {
			return true
		}
	}
	return false
}

// HasRedirectURI reports whether the redirect URI is registered, by exact match.
func (c *Client) HasRedirectURI(redirectURI string) bool {
	for _, uri := range c.RedirectURIs {
		if uri == redirectURI {
			return true
		}
	}
	return false
}

// HasPostLogoutRedirectURI reports whether the post-logout redirect URI is
// registered, by exact match.
func (c *Client) HasPostLogoutRedirectURI(redirectURI string) bool {
	for _, uri := range c.PostLogoutRedirectURIs {
		if uri == redirectURI {
			return true
		}
	}
	return false
}

// HasScope checks if the client is allowed to request a specific scope.
func (c *Client) HasScope(scope string) bool {
	return oauth2.ContainsScope(c.Scopes, scope)
}

// SecretExpired reports whether the client secret has passed its expiry.
// Clients without an expiry never expire.
func (c *Client) SecretExpired(now time.Time) bool {
	if c.Secret == nil || c.SecretExpiresAt == nil {
		return false
	}
	return !now.Before(*c.SecretExpiresAt)
}

// Validate checks the registration invariants of the client record.
func (c *Client) Validate() error {
	if c.ID == "" {
		return ErrMissingID
	}
	if len(c.RedirectURIs) == 0 {
		return ErrMissingRedirectURIs
	}
	for _, raw := range c.RedirectURIs {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() {
			return ErrInvalidRedirectURI
		}
		if u.Fragment != "" || strings.HasSuffix(raw, "#") {
			return ErrInvalidRedirectURI
		}
		if c.ApplicationType == oauth2.WebApplicationType && u.Scheme != "https" && u.Hostname() != "localhost" && u.Hostname() != "127.0.0.1" {
			return ErrInvalidRedirectURI
		}
		if c.ApplicationType == oauth2.NativeApplicationType && u.Scheme == "https" && u.Hostname() != "localhost" && u.Hostname() != "127.0.0.1" {
			return ErrInvalidRedirectURI
		}
	}
	if c.Secret == nil && secretBasedMethod(c.AuthenticationMethod) {
		return ErrMissingSecret
	}
	if jwtBasedMethod(c.AuthenticationMethod) && c.AuthenticationSigningAlgorithm == "" {
		return ErrMissingSigningAlgorithm
	}
	if !jwtBasedMethod(c.AuthenticationMethod) && c.AuthenticationSigningAlgorithm != "" {
		return ErrUnexpectedSigningAlgorithm
	}
	if c.JWKSURI != "" && c.JWKS != nil {
		return ErrAmbiguousJWKS
	}
	if c.AuthenticationMethod == oauth2.PrivateKeyJWTAuthMethod && c.JWKSURI == "" && c.JWKS == nil {
		return ErrMissingJWKS
	}
	if c.SubjectType == oauth2.PairwiseSubjectType && (c.SectorIdentifierURI == "" || c.PairwiseSalt == "") {
		return ErrMissingSectorIdentifier
	}
	if c.IDTokenSignedResponseAlgorithm == "none" {
		return ErrUnsignedIDToken
	}
	return nil
}

func secretBasedMethod(m oauth2.ClientAuthMethod) bool {
	switch m {
	case oauth2.ClientSecretBasicAuthMethod, oauth2.ClientSecretPostAuthMethod, oauth2.ClientSecretJWTAuthMethod:
		return true
	}
	return false
}

func jwtBasedMethod(m oauth2.ClientAuthMethod) bool {
	switch m {
	case oauth2.ClientSecretJWTAuthMethod, oauth2.PrivateKeyJWTAuthMethod:
		return true
	}
	return false
}
