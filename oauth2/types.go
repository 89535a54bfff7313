package oauth2

import "strings"

// ResponseType represents the OAuth 2.0 / OIDC response type.
// Determines what the authorization endpoint returns to the client.
type ResponseType string

const (
	// CodeResponseType indicates the authorization code flow.
	CodeResponseType ResponseType = "code"

	// TokenResponseType indicates the implicit flow returning an access token.
	TokenResponseType ResponseType = "token"

	// IDTokenResponseType indicates the implicit flow returning an ID token.
	IDTokenResponseType ResponseType = "id_token"

	// CodeIDTokenResponseType is the hybrid flow returning a code and an ID token.
	CodeIDTokenResponseType ResponseType = "code id_token"

	// CodeTokenResponseType is the hybrid flow returning a code and an access token.
	CodeTokenResponseType ResponseType = "code token"

	// CodeIDTokenTokenResponseType is the full hybrid flow.
	CodeIDTokenTokenResponseType ResponseType = "code id_token token"

	// IDTokenTokenResponseType is the implicit flow returning both tokens.
	IDTokenTokenResponseType ResponseType = "id_token token"
)

// Normalize sorts the space-separated parts of a response type so that
// "id_token code" and "code id_token" compare equal.
func (rt ResponseType) Normalize() ResponseType {
	parts := strings.Fields(string(rt))
	ordered := make([]string, 0, len(parts))
	for _, want := range []string{"code", "id_token", "token"} {
		for _, p := range parts {
			if p == want {
				ordered = append(ordered, p)
			}
		}
	}
	return ResponseType(strings.Join(ordered, " "))
}

// IncludesCode reports whether the response type carries an authorization code.
func (rt ResponseType) IncludesCode() bool {
	for _, p := range strings.Fields(string(rt)) {
		if p == "code" {
			return true
		}
	}
	return false
}

// UsesFragment reports whether the default response mode for this response
// type is the fragment (any implicit or hybrid combination).
func (rt ResponseType) UsesFragment() bool {
	return rt != CodeResponseType
}

// ResponseModeType denotes how authorization response parameters are returned
// to the client's redirect URI.
type ResponseModeType string

const (
	// QueryResponseMode returns parameters in the URL query string.
	QueryResponseMode ResponseModeType = "query"

	// FragmentResponseMode returns parameters in the URL fragment.
	FragmentResponseMode ResponseModeType = "fragment"

	// FormPostResponseMode returns parameters via an auto-submitting HTML form.
	FormPostResponseMode ResponseModeType = "form_post"

	// QueryJWTResponseMode returns the parameters wrapped in a signed JWT
	// carried in the query string (JARM).
	QueryJWTResponseMode ResponseModeType = "query.jwt"

	// FragmentJWTResponseMode returns the signed JWT in the fragment.
	FragmentJWTResponseMode ResponseModeType = "fragment.jwt"

	// FormPostJWTResponseMode posts the signed JWT via an HTML form.
	FormPostJWTResponseMode ResponseModeType = "form_post.jwt"

	// JWTResponseMode resolves to the signed variant of the response type's
	// default mode.
	JWTResponseMode ResponseModeType = "jwt"
)

// CodeMethodType represents the PKCE code challenge method.
type CodeMethodType string

const (
	// CodeMethodTypeS256 hashes the verifier with SHA-256 before comparison.
	CodeMethodTypeS256 CodeMethodType = "S256"

	// CodeMethodTypePlain compares the verifier directly against the challenge.
	CodeMethodTypePlain CodeMethodType = "plain"
)

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges an authorization code for tokens.
	AuthorizationCodeGrant GrantType = "authorization_code"

	// ClientCredentialsGrant allows machine-to-machine authentication with no
	// resource owner involved.
	ClientCredentialsGrant GrantType = "client_credentials"

	// PasswordGrant exchanges resource owner credentials for tokens.
	PasswordGrant GrantType = "password"

	// RefreshTokenGrant exchanges a refresh token for a new token pair.
	RefreshTokenGrant GrantType = "refresh_token"

	// DeviceCodeGrant polls for the outcome of a device authorization.
	DeviceCodeGrant GrantType = "urn:ietf:params:oauth:grant-type:device_code"

	// JWTBearerGrant exchanges a self-issued JWT assertion for tokens.
	JWTBearerGrant GrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

// ClientAuthMethod identifies how a client authenticates at the token endpoint.
type ClientAuthMethod string

const (
	// NoneAuthMethod is used by public clients that cannot keep a secret.
	NoneAuthMethod ClientAuthMethod = "none"

	// ClientSecretBasicAuthMethod sends the secret via HTTP Basic auth.
	ClientSecretBasicAuthMethod ClientAuthMethod = "client_secret_basic"

	// ClientSecretPostAuthMethod sends the secret in the form body.
	ClientSecretPostAuthMethod ClientAuthMethod = "client_secret_post"

	// ClientSecretJWTAuthMethod authenticates with an HMAC-signed assertion
	// keyed by the client secret.
	ClientSecretJWTAuthMethod ClientAuthMethod = "client_secret_jwt"

	// PrivateKeyJWTAuthMethod authenticates with an assertion signed by the
	// client's registered asymmetric key.
	PrivateKeyJWTAuthMethod ClientAuthMethod = "private_key_jwt"
)

// SubjectType controls how the "sub" claim is derived for a client.
type SubjectType string

const (
	// PublicSubjectType exposes the raw user id as the subject.
	PublicSubjectType SubjectType = "public"

	// PairwiseSubjectType derives a per-sector pseudonymous subject.
	PairwiseSubjectType SubjectType = "pairwise"
)

// ApplicationType constrains the redirect URIs a client may register.
type ApplicationType string

const (
	// WebApplicationType requires https redirect URIs on non-localhost hosts.
	WebApplicationType ApplicationType = "web"

	// NativeApplicationType allows custom schemes and loopback redirects.
	NativeApplicationType ApplicationType = "native"
)

// PromptType is a requested interaction behaviour of the authorization endpoint.
type PromptType string

const (
	// NonePrompt forbids any user interaction.
	NonePrompt PromptType = "none"

	// LoginPrompt forces re-authentication even with an active login.
	LoginPrompt PromptType = "login"

	// ConsentPrompt forces the consent interaction even with a prior grant.
	ConsentPrompt PromptType = "consent"

	// SelectAccountPrompt asks the user to pick among active accounts.
	SelectAccountPrompt PromptType = "select_account"

	// CreatePrompt asks the server to offer account registration.
	CreatePrompt PromptType = "create"
)

// DisplayType hints how the authorization UI should be rendered.
type DisplayType string

const (
	PageDisplay  DisplayType = "page"
	PopupDisplay DisplayType = "popup"
	TouchDisplay DisplayType = "touch"
	WapDisplay   DisplayType = "wap"
)

// InteractionType identifies a phase of the custom interaction protocol.
type InteractionType string

const (
	LoginInteraction         InteractionType = "login"
	ConsentInteraction       InteractionType = "consent"
	LogoutInteraction        InteractionType = "logout"
	CreateInteraction        InteractionType = "create"
	SelectAccountInteraction InteractionType = "select_account"
)

// JWTBearerAssertionType is the fixed client_assertion_type URN of RFC 7523.
const JWTBearerAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// SplitScopes splits a space-separated scope string, dropping empty tokens.
func SplitScopes(scope string) []string {
	if strings.TrimSpace(scope) == "" {
		return []string{}
	}
	return strings.Fields(scope)
}

// ContainsScope reports whether the scope list contains the given scope.
func ContainsScope(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}
