package oauth2

// AuthorizationParameters holds the parameters of an OAuth2/OIDC
// authorization request, received as query parameters at /oauth/authorize.
// The full set is snapshotted on the Grant so the request can be re-driven
// across the login and consent round-trips.
type AuthorizationParameters struct {
	// ClientID identifies the application requesting authorization.
	// Validated against: clients.Client.ID.
	ClientID string `json:"client_id"`

	// ResponseType specifies what the authorization endpoint should return.
	// Example: "code", "id_token", "code id_token token".
	ResponseType ResponseType `json:"response_type"`

	// RedirectURI is where the authorization response will be sent.
	// Security: must exactly match a registered URI before it is trusted as
	// an error target.
	RedirectURI string `json:"redirect_uri"`

	// ResponseMode controls how the response parameters are returned
	// (query / fragment / form_post and their .jwt variants).
	ResponseMode ResponseModeType `json:"response_mode,omitempty"`

	// Scope is a space-separated list of requested permissions.
	Scope string `json:"scope,omitempty"`

	// State is an opaque client value echoed back in the response (CSRF
	// protection).
	State string `json:"state,omitempty"`

	// Nonce binds a client session to the issued ID token.
	Nonce string `json:"nonce,omitempty"`

	// CodeChallenge / CodeChallengeMethod are the PKCE pair captured at
	// authorization and re-verified at code exchange.
	CodeChallenge       string         `json:"code_challenge,omitempty"`
	CodeChallengeMethod CodeMethodType `json:"code_challenge_method,omitempty"`

	// Prompt requests specific interaction behaviour (none, login, consent,
	// select_account, create). Space separated.
	Prompt string `json:"prompt,omitempty"`

	// Display hints how the authorization UI should be rendered.
	Display DisplayType `json:"display,omitempty"`

	// MaxAge is the maximum allowed age of the active login in seconds;
	// empty means no constraint.
	MaxAge string `json:"max_age,omitempty"`

	// LoginHint pre-fills the username on the login page. UI only, untrusted.
	LoginHint string `json:"login_hint,omitempty"`

	// IDTokenHint is a previously issued ID token identifying the expected
	// end user.
	IDTokenHint string `json:"id_token_hint,omitempty"`

	// UILocales is the end user's preferred languages, space separated.
	UILocales string `json:"ui_locales,omitempty"`

	// AcrValues is the requested authentication context class references,
	// space separated.
	AcrValues string `json:"acr_values,omitempty"`
}

// HasPrompt reports whether the prompt parameter contains the given value.
func (p *AuthorizationParameters) HasPrompt(prompt PromptType) bool {
	return ContainsScope(SplitScopes(p.Prompt), string(prompt))
}

// EndSessionParameters holds the parameters of an RP-initiated logout
// request at /oauth/end_session. The full set is snapshotted on the
// LogoutTicket and checked byte-for-byte when the ticket is re-presented.
type EndSessionParameters struct {
	IDTokenHint           string `json:"id_token_hint"`
	ClientID              string `json:"client_id,omitempty"`
	PostLogoutRedirectURI string `json:"post_logout_redirect_uri,omitempty"`
	State                 string `json:"state,omitempty"`
	LogoutHint            string `json:"logout_hint,omitempty"`
	UILocales             string `json:"ui_locales,omitempty"`
}

// Equal reports whether two end-session parameter sets are identical. Any
// drift between the stored snapshot and a re-submitted request invalidates
// the logout ticket.
func (p EndSessionParameters) Equal(other EndSessionParameters) bool {
	return p == other
}
