package server

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/guaranijs/guarani-sub005/auth"
	"github.com/guaranijs/guarani-sub005/oauth2"
)

// InteractionContext serves the context the login/consent/logout UI renders
// from. The challenge correlates the call with a pending grant or ticket.
func (s *Server) InteractionContext() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		interactionType := oauth2.InteractionType(r.URL.Query().Get("interaction_type"))
		challenge := r.URL.Query().Get("challenge")
		if challenge == "" {
			writeProtocolError(w, oauth2.NewInvalidRequest(`Invalid parameter "challenge".`))
			return
		}

		interactionCtx, err := s.deps.Interactions.Context(interactionType, challenge)
		if err != nil {
			writeProtocolError(w, err)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(interactionCtx)
	}
}

// InteractionDecision applies the UI's decision and tells it where to send
// the user-agent next.
func (s *Server) InteractionDecision() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		interactionType := oauth2.InteractionType(r.URL.Query().Get("interaction_type"))
		challenge := r.URL.Query().Get("challenge")
		if challenge == "" {
			writeProtocolError(w, oauth2.NewInvalidRequest(`Invalid parameter "challenge".`))
			return
		}

		var decision auth.Decision
		if err := json.NewDecoder(r.Body).Decode(&decision); err != nil {
			writeProtocolError(w, oauth2.NewInvalidRequest("Failed to parse the decision body."))
			return
		}

		result, err := s.deps.Interactions.Decide(interactionType, challenge, &decision)
		if err != nil {
			writeProtocolError(w, err)
			return
		}

		redirectTo := result.RedirectTo
		if result.Grant != nil {
			redirectTo = s.authorizeContinueURL(result.Grant.Parameters)
		}
		if interactionType == oauth2.LogoutInteraction && decision.Accept {
			s.clearCookie(w, r, sessionCookieName)
			s.clearCookie(w, r, logoutCookieName)
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(map[string]string{"redirect_to": redirectTo})
	}
}

// authorizeContinueURL rebuilds the authorization request URL the user-agent
// resumes after a decided interaction. The grant cookie carries the grant
// correlation.
func (s *Server) authorizeContinueURL(params *oauth2.AuthorizationParameters) string {
	query := url.Values{}
	set := func(key, value string) {
		if value != "" {
			query.Set(key, value)
		}
	}
	set("client_id", params.ClientID)
	set("response_type", string(params.ResponseType))
	set("redirect_uri", params.RedirectURI)
	set("response_mode", string(params.ResponseMode))
	set("scope", params.Scope)
	set("state", params.State)
	set("nonce", params.Nonce)
	set("code_challenge", params.CodeChallenge)
	set("code_challenge_method", string(params.CodeChallengeMethod))
	set("prompt", params.Prompt)
	set("display", string(params.Display))
	set("max_age", params.MaxAge)
	set("login_hint", params.LoginHint)
	set("id_token_hint", params.IDTokenHint)
	set("ui_locales", params.UILocales)
	set("acr_values", params.AcrValues)
	return s.issuer + RouteOAuthAuthorize + "?" + query.Encode()
}
