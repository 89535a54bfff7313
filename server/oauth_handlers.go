package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/guaranijs/guarani-sub005/auth"
	"github.com/guaranijs/guarani-sub005/clientauth"
	"github.com/guaranijs/guarani-sub005/grants"
	"github.com/guaranijs/guarani-sub005/oauth2"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"
)

// Authorize begins (or resumes) the authorization flow.
func (s *Server) Authorize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeProtocolError(w, oauth2.NewInvalidRequest("Failed to parse the request parameters."))
			return
		}
		params := parseAuthorizationParameters(r)

		session, err := s.deps.AuthHandler.FindOrCreateSession(s.readCookie(r, sessionCookieName))
		if err != nil {
			writeProtocolError(w, oauth2.NewServerError(err))
			return
		}
		s.setCookie(w, r, sessionCookieName, session.ID, int(s.config.GetLoginTimeout().Seconds()))

		result, err := s.deps.Authorizer.Authorize(params, session, s.readCookie(r, grantCookieName))
		if err != nil {
			log.Err(err).Str("client_id", params.ClientID).Msg("authorization failed")
			writeProtocolError(w, oauth2.NewServerError(err))
			return
		}

		switch {
		case result.Err != nil:
			// The redirect URI was never trusted, so the error is rendered
			// directly instead of being sent to the client.
			writeProtocolError(w, result.Err)

		case result.Grant != nil:
			s.setCookie(w, r, grantCookieName, result.Grant.ID, int(s.config.GetGrantTimeout().Seconds()))
			http.Redirect(w, r, s.interactionURL(result.Interaction, result.Grant), http.StatusSeeOther)

		default:
			s.clearCookie(w, r, grantCookieName)
			s.respondWithMode(w, r, result.Response)
		}
	}
}

// interactionURL is where the user-agent is sent to complete an interaction.
func (s *Server) interactionURL(interactionType oauth2.InteractionType, grant *grants.Grant) string {
	challenge := grant.LoginChallenge
	if interactionType == oauth2.ConsentInteraction {
		challenge = grant.ConsentChallenge
	}
	query := url.Values{}
	query.Set("interaction_type", string(interactionType))
	query.Set("challenge", challenge)
	return s.issuer + RouteOAuthInteraction + "?" + query.Encode()
}

func (s *Server) respondWithMode(w http.ResponseWriter, r *http.Request, response *auth.ModeResponse) {
	if len(response.Body) != 0 {
		w.Header().Set("Content-Type", response.ContentType)
		_, _ = w.Write(response.Body)
		return
	}
	http.Redirect(w, r, response.RedirectURL, http.StatusSeeOther)
}

// Token exchanges a grant for tokens.
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeProtocolError(w, oauth2.NewInvalidRequest("Failed to parse the request parameters."))
			return
		}

		request := clientauth.NewRequest(r)
		grantType, err := s.deps.GrantTypes.Get(oauth2.GrantType(r.PostForm.Get("grant_type")))
		if err != nil {
			writeProtocolError(w, err)
			return
		}

		tokenCtx, err := grantType.Validate(r.Context(), request)
		if err != nil {
			writeProtocolError(w, err)
			return
		}

		tokenResponse, err := grantType.Handle(r.Context(), tokenCtx)
		if err != nil {
			writeProtocolError(w, err)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		_ = json.NewEncoder(w).Encode(tokenResponse)
	}
}

// DeviceAuthorization starts a device flow per RFC 8628 §3.1.
func (s *Server) DeviceAuthorization() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeProtocolError(w, oauth2.NewInvalidRequest("Failed to parse the request parameters."))
			return
		}

		client, err := s.deps.ClientAuth.Authenticate(r.Context(), clientauth.NewRequest(r))
		if err != nil {
			writeProtocolError(w, err)
			return
		}
		if !client.HasGrantType(oauth2.DeviceCodeGrant) {
			writeProtocolError(w, oauth2.NewUnauthorizedClient("This Client is not allowed to request the Device Authorization Grant."))
			return
		}

		scope := r.PostForm.Get("scope")
		if err := s.deps.Scopes.CheckRequestedScope(scope); err != nil {
			writeProtocolError(w, err)
			return
		}
		scopes, err := s.deps.Scopes.GetAllowedScopes(client, scope)
		if err != nil {
			writeProtocolError(w, err)
			return
		}

		deviceCode, err := s.deps.Tokens.IssueDeviceCode(client, scopes, s.issuer+RouteOAuthDevice)
		if err != nil {
			writeProtocolError(w, oauth2.NewServerError(err))
			return
		}

		resp := map[string]any{
			"device_code":               deviceCode.DeviceCode,
			"user_code":                 deviceCode.UserCode,
			"verification_uri":          deviceCode.VerificationURI,
			"verification_uri_complete": deviceCode.VerificationURI + "?user_code=" + url.QueryEscape(deviceCode.UserCode),
			"expires_in":                int(time.Until(deviceCode.ExpiresAt).Seconds()),
			"interval":                  deviceCode.Interval,
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// DeviceVerification records the signed-in user's verdict on a device
// authorization, looked up by the typed user code (RFC 8628 §3.3). The
// polling device observes the verdict at the token endpoint.
func (s *Server) DeviceVerification() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeProtocolError(w, oauth2.NewInvalidRequest("Failed to parse the request parameters."))
			return
		}

		session, err := s.deps.AuthHandler.FindOrCreateSession(s.readCookie(r, sessionCookieName))
		if err != nil {
			writeProtocolError(w, oauth2.NewServerError(err))
			return
		}
		login, err := s.deps.AuthHandler.ActiveLogin(session)
		if err != nil {
			writeProtocolError(w, oauth2.NewServerError(err))
			return
		}
		if login == nil {
			writeProtocolError(w, oauth2.NewLoginRequired("The user is not logged in."))
			return
		}

		userCode := r.PostForm.Get("user_code")
		if userCode == "" {
			writeProtocolError(w, oauth2.NewInvalidRequest(`Invalid parameter "user_code".`))
			return
		}

		approve := r.PostForm.Get("action") == "approve"
		deviceCode, err := s.deps.Tokens.DecideDeviceCode(userCode, login.UserID, approve)
		if err != nil {
			writeProtocolError(w, oauth2.NewInvalidRequest("Invalid user code."))
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": string(deviceCode.Status)})
	}
}

// Helper functions

// parseAuthorizationParameters extracts the OAuth2 authorization parameters
// from the request. ParseForm must have been called, so both GET query and
// POST body submissions are covered.
func parseAuthorizationParameters(r *http.Request) *oauth2.AuthorizationParameters {
	return &oauth2.AuthorizationParameters{
		ClientID:            r.Form.Get("client_id"),
		ResponseType:        oauth2.ResponseType(r.Form.Get("response_type")),
		RedirectURI:         r.Form.Get("redirect_uri"),
		ResponseMode:        oauth2.ResponseModeType(r.Form.Get("response_mode")),
		Scope:               r.Form.Get("scope"),
		State:               r.Form.Get("state"),
		Nonce:               r.Form.Get("nonce"),
		CodeChallenge:       r.Form.Get("code_challenge"),
		CodeChallengeMethod: oauth2.CodeMethodType(r.Form.Get("code_challenge_method")),
		Prompt:              r.Form.Get("prompt"),
		Display:             oauth2.DisplayType(r.Form.Get("display")),
		MaxAge:              r.Form.Get("max_age"),
		LoginHint:           r.Form.Get("login_hint"),
		IDTokenHint:         r.Form.Get("id_token_hint"),
		UILocales:           r.Form.Get("ui_locales"),
		AcrValues:           r.Form.Get("acr_values"),
	}
}

// writeProtocolError renders an OAuth2 error as a JSON response with the
// status and headers the error carries.
func writeProtocolError(w http.ResponseWriter, err error) {
	protocolErr := oauth2.Wrap(err)
	for key, value := range protocolErr.Headers {
		w.Header().Set(key, value)
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(protocolErr.StatusCode())
	_ = json.NewEncoder(w).Encode(protocolErr)
}

// bearerToken extracts the access token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
