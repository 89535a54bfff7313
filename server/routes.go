package server

func (s *Server) initRoutes() {
	// Authorization endpoint accepts both methods per RFC 6749 §3.1.
	s.RegisterRouteHandler("GET "+RouteOAuthAuthorize, ChainMiddleware(s.Authorize(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuthAuthorize, ChainMiddleware(s.Authorize(), s.APIMiddleware()...))

	s.RegisterRouteHandler("POST "+RouteOAuthToken, ChainMiddleware(s.Token(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuthDeviceAuth, ChainMiddleware(s.DeviceAuthorization(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuthDevice, ChainMiddleware(s.DeviceVerification(), s.InteractionMiddleware()...))

	// Interaction endpoints used by the application's login/consent UI.
	s.RegisterRouteHandler("GET "+RouteOAuthInteraction, ChainMiddleware(s.InteractionContext(), s.InteractionMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuthInteraction, ChainMiddleware(s.InteractionDecision(), s.InteractionMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteOAuthEndSession, ChainMiddleware(s.EndSession(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuthEndSession, ChainMiddleware(s.EndSession(), s.APIMiddleware()...))

	// Protected OAuth2 endpoints (require valid access token or client credentials)
	s.RegisterRouteHandler("POST "+RouteOAuthIntrospect, ChainMiddleware(s.Introspect(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuthRevoke, ChainMiddleware(s.Revoke(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteOAuthUserInfo, ChainMiddleware(s.UserInfo(), s.APIMiddleware()...))

	// Upstream federation
	s.RegisterRouteFunc("GET "+RouteFederationLogin, s.FederationLogin())
	s.RegisterRouteFunc("GET "+RouteFederationCallback, s.FederationCallback())
	s.RegisterRouteFunc("POST "+RouteFederationCallback, s.FederationCallback()) // For form_post response mode

	// Discovery
	s.RegisterRouteHandler("GET "+RouteWellKnownOpenIDConfig, ChainMiddleware(s.WellKnownOpenIDConfig(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteWellKnownJWKS, ChainMiddleware(s.JWKS(), s.APIMiddleware()...))
}
