package server

// Route path constants
// All endpoint routes are defined here to ensure consistency and prevent typos
const (
	// OAuth 2.0 / OIDC protocol routes
	RouteOAuthAuthorize   = "/oauth/authorize"
	RouteOAuthToken       = "/oauth/token"
	RouteOAuthInteraction = "/oauth/interaction"
	RouteOAuthEndSession  = "/oauth/end_session"
	RouteOAuthIntrospect  = "/oauth/introspect"
	RouteOAuthRevoke      = "/oauth/revoke"
	RouteOAuthDeviceAuth  = "/oauth/device_authorization"
	RouteOAuthDevice      = "/oauth/device"
	RouteOAuthUserInfo    = "/oauth/userinfo"

	// Upstream federation routes
	RouteFederationLogin    = "/oauth/federation/{provider}/login"
	RouteFederationCallback = "/oauth/callback"

	// Discovery routes
	RouteWellKnownOpenIDConfig = "/.well-known/openid-configuration"
	RouteWellKnownJWKS         = "/.well-known/jwks.json"
)

// Cookie names. HttpOnly on every one of them; values are HMAC-signed.
const (
	sessionCookieName = "guarani:session"
	grantCookieName   = "guarani:grant"
	logoutCookieName  = "guarani:logout"

	// federationStateCookieName carries the CSRF state of an in-flight
	// upstream federation login.
	federationStateCookieName = "guarani:federation"
)
