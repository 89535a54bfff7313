package oauth2

// TokenResponse represents the response from an OAuth2 token request as
// defined in RFC 6749 §5.1. Returned from the /oauth/token endpoint for all
// grant types.
type TokenResponse struct {
	// AccessToken is the handle used to access protected resources.
	// Usage: "Authorization: Bearer <access_token>".
	AccessToken string `json:"access_token"`

	// TokenType is always "Bearer" in this implementation.
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token.
	ExpiresIn int `json:"expires_in"`

	// Scope lists the granted scopes. Only emitted when the granted set is
	// narrower than the client's default grant.
	Scope string `json:"scope,omitempty"`

	// RefreshToken is an opaque token used to obtain new access tokens.
	// Only present when the client is registered for the refresh_token grant.
	RefreshToken string `json:"refresh_token,omitempty"`

	// IDToken is the OpenID Connect ID token. Only present when the "openid"
	// scope was granted and a resource owner is involved.
	IDToken string `json:"id_token,omitempty"`
}
