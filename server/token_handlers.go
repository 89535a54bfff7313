package server

import (
	"encoding/json"
	"net/http"

	"github.com/guaranijs/guarani-sub005/clientauth"
	"github.com/guaranijs/guarani-sub005/oauth2"
	"github.com/guaranijs/guarani-sub005/token"
)

// Introspect resolves token metadata per RFC 7662. Tokens issued to another
// client read back as inactive, so the endpoint cannot be used as an oracle.
func (s *Server) Introspect() http.HandlerFunc {
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

		handle := r.PostForm.Get("token")
		if handle == "" {
			writeProtocolError(w, oauth2.NewInvalidRequest(`Invalid parameter "token".`))
			return
		}

		introspection, err := s.deps.Tokens.Introspect(handle, r.PostForm.Get("token_type_hint"))
		if err != nil {
			writeProtocolError(w, oauth2.NewServerError(err))
			return
		}
		if introspection.Active && introspection.ClientID != client.ID {
			introspection = &token.Introspection{Active: false}
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(introspection)
	}
}

// Revoke invalidates a token per RFC 7009. Unknown tokens and tokens owned
// by other clients are silently ignored; the endpoint always reports
// success for an authenticated client.
func (s *Server) Revoke() http.HandlerFunc {
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

		handle := r.PostForm.Get("token")
		if handle == "" {
			writeProtocolError(w, oauth2.NewInvalidRequest(`Invalid parameter "token".`))
			return
		}

		introspection, err := s.deps.Tokens.Introspect(handle, r.PostForm.Get("token_type_hint"))
		if err != nil {
			writeProtocolError(w, oauth2.NewServerError(err))
			return
		}
		if introspection.Active && introspection.ClientID == client.ID {
			switch introspection.TokenType {
			case "refresh_token":
				err = s.deps.Tokens.RevokeRefreshToken(handle)
			default:
				err = s.deps.Tokens.RevokeAccessToken(handle)
			}
			if err != nil {
				writeProtocolError(w, oauth2.NewServerError(err))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
	}
}

// UserInfo returns the claims of the user the access token was issued for.
func (s *Server) UserInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accessToken, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeProtocolError(w, oauth2.NewInvalidClient("Missing Access Token."))
			return
		}

		introspection, err := s.deps.Tokens.Introspect(accessToken, "")
		if err != nil {
			writeProtocolError(w, oauth2.NewServerError(err))
			return
		}
		if !introspection.Active || introspection.TokenType != "Bearer" || introspection.Sub == "" {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			writeProtocolError(w, oauth2.NewInvalidClient("Invalid Access Token."))
			return
		}

		client, err := s.deps.Clients.Get(introspection.ClientID)
		if err != nil {
			writeProtocolError(w, oauth2.NewServerError(err))
			return
		}

		claims, err := s.deps.IDTokens.UserInfoClaims(client, introspection.Sub, oauth2.SplitScopes(introspection.Scope))
		if err != nil {
			writeProtocolError(w, oauth2.NewServerError(err))
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(claims)
	}
}
