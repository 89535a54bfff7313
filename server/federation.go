package server

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	xoauth2 "golang.org/x/oauth2"

	"github.com/guaranijs/guarani-sub005/auth"
	"github.com/guaranijs/guarani-sub005/oauth2"
)

// UpstreamProvider registers an external OIDC identity provider that can
// satisfy the login interaction on the end user's behalf.
type UpstreamProvider struct {
	Name         string
	Issuer       string
	ClientID     string
	ClientSecret string
}

type upstreamProvider struct {
	provider     *oidc.Provider
	oauth2Config *xoauth2.Config
	verifier     *oidc.IDTokenVerifier
}

// federationState is the in-flight state of an upstream login, carried in a
// signed cookie across the round-trip to the provider.
type federationState struct {
	Provider       string `json:"provider"`
	State          string `json:"state"`
	Nonce          string `json:"nonce"`
	CodeVerifier   string `json:"code_verifier"`
	LoginChallenge string `json:"login_challenge"`
}

// RegisterUpstream makes a provider available to FederationLogin. Discovery
// is deferred until the first login through it.
func (s *Server) RegisterUpstream(upstream UpstreamProvider) {
	s.upstreamLock.Lock()
	defer s.upstreamLock.Unlock()
	s.upstreamRegistrations[upstream.Name] = upstream
}

func (s *Server) getUpstreamProvider(ctx context.Context, name string) (upstreamProvider, error) {
	s.upstreamLock.RLock()
	configured, exists := s.upstream[name]
	s.upstreamLock.RUnlock()
	if exists {
		return configured, nil
	}

	s.upstreamLock.RLock()
	registration, registered := s.upstreamRegistrations[name]
	s.upstreamLock.RUnlock()
	if !registered {
		return upstreamProvider{}, fmt.Errorf("[Server.getUpstreamProvider] unknown provider %q", name)
	}

	provider, err := oidc.NewProvider(ctx, registration.Issuer)
	if err != nil {
		return upstreamProvider{}, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	configured = upstreamProvider{
		provider: provider,
		oauth2Config: &xoauth2.Config{
			ClientID:     registration.ClientID,
			ClientSecret: registration.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  s.issuer + RouteFederationCallback,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{
			ClientID: registration.ClientID,
		}),
	}
	s.upstreamLock.Lock()
	s.upstream[name] = configured
	s.upstreamLock.Unlock()

	return configured, nil
}

// FederationLogin redirects the user-agent to an upstream provider to
// satisfy a pending login interaction.
func (s *Server) FederationLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		challenge := r.URL.Query().Get("login_challenge")
		if challenge == "" {
			http.Error(w, "Missing login_challenge parameter", http.StatusBadRequest)
			return
		}

		providerName := r.PathValue("provider")
		upstream, err := s.getUpstreamProvider(r.Context(), providerName)
		if err != nil {
			http.Error(w, "Unknown federation provider", http.StatusNotFound)
			return
		}

		flowState := federationState{
			Provider:       providerName,
			State:          generateRandomString(32),
			Nonce:          generateRandomString(32),
			CodeVerifier:   generateRandomString(32),
			LoginChallenge: challenge,
		}
		encoded, err := json.Marshal(flowState)
		if err != nil {
			http.Error(w, "Failed to start federation flow", http.StatusInternalServerError)
			return
		}
		s.setCookie(w, r, federationStateCookieName, string(encoded), 300)

		authURL := upstream.oauth2Config.AuthCodeURL(
			flowState.State,
			oidc.Nonce(flowState.Nonce),
			xoauth2.SetAuthURLParam("code_challenge", generateCodeChallenge(flowState.CodeVerifier)),
			xoauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)
		http.Redirect(w, r, authURL, http.StatusSeeOther)
	}
}

// FederationCallback completes the upstream flow: it exchanges the code,
// verifies the ID token and decides the pending login interaction with the
// federated identity.
func (s *Server) FederationCallback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Parse form to support both GET (query params) and POST (form_post response mode)
		// r.FormValue works for both query params and POST form data
		state := r.FormValue("state")
		code := r.FormValue("code")
		errorParam := r.FormValue("error")
		errorDesc := r.FormValue("error_description")

		// Check for authorization errors
		if errorParam != "" {
			http.Error(w, fmt.Sprintf("Authorization failed: %s - %s", errorParam, errorDesc), http.StatusBadRequest)
			return
		}

		if code == "" || state == "" {
			http.Error(w, "Missing code or state parameter", http.StatusBadRequest)
			return
		}

		var flowState federationState
		if err := json.Unmarshal([]byte(s.readCookie(r, federationStateCookieName)), &flowState); err != nil || flowState.State != state {
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			return
		}
		s.clearCookie(w, r, federationStateCookieName)

		upstream, err := s.getUpstreamProvider(r.Context(), flowState.Provider)
		if err != nil {
			http.Error(w, "Unknown federation provider", http.StatusBadRequest)
			return
		}

		// Exchange authorization code for tokens using standard oauth2 library
		oauth2Token, err := upstream.oauth2Config.Exchange(
			r.Context(),
			code,
			xoauth2.SetAuthURLParam("code_verifier", flowState.CodeVerifier),
		)
		if err != nil {
			http.Error(w, fmt.Sprintf("Token exchange failed: %v", err), http.StatusInternalServerError)
			return
		}

		// Extract ID token and verify it
		rawIDToken, ok := oauth2Token.Extra("id_token").(string)
		if !ok {
			http.Error(w, "No ID token in response", http.StatusInternalServerError)
			return
		}

		idToken, err := upstream.verifier.Verify(r.Context(), rawIDToken)
		if err != nil {
			http.Error(w, fmt.Sprintf("ID token verification failed: %v", err), http.StatusInternalServerError)
			return
		}

		// Extract and validate claims in one pass
		var claims struct {
			Nonce string `json:"nonce"`
			Sub   string `json:"sub"`
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		if err := idToken.Claims(&claims); err != nil {
			http.Error(w, fmt.Sprintf("Failed to extract claims: %v", err), http.StatusInternalServerError)
			return
		}

		// Validate nonce to prevent replay attacks
		if claims.Nonce != flowState.Nonce {
			http.Error(w, "Invalid nonce", http.StatusUnauthorized)
			return
		}

		// The federated identity must map onto a local user record.
		user, err := s.deps.Users.GetByEmail(claims.Email)
		if err != nil {
			http.Error(w, "Unknown federated user", http.StatusUnauthorized)
			return
		}

		result, err := s.deps.Interactions.Decide(oauth2.LoginInteraction, flowState.LoginChallenge, &auth.Decision{
			Accept:  true,
			Subject: user.ID,
			Amr:     []string{"federated"},
		})
		if err != nil {
			writeProtocolError(w, err)
			return
		}

		http.Redirect(w, r, s.authorizeContinueURL(result.Grant.Parameters), http.StatusSeeOther)
	}
}

// generateRandomString creates a random base64url string
func generateRandomString(length int) string {
	b := make([]byte, length)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// generateCodeChallenge creates a PKCE code challenge from a verifier
func generateCodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
