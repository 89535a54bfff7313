package server

import (
	"net/http"
	"net/url"

	"github.com/guaranijs/guarani-sub005/oauth2"
)

// EndSession begins (or resumes) an RP-initiated logout.
func (s *Server) EndSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeProtocolError(w, oauth2.NewInvalidRequest("Failed to parse the request parameters."))
			return
		}
		params := oauth2.EndSessionParameters{
			IDTokenHint:           r.Form.Get("id_token_hint"),
			ClientID:              r.Form.Get("client_id"),
			PostLogoutRedirectURI: r.Form.Get("post_logout_redirect_uri"),
			State:                 r.Form.Get("state"),
			LogoutHint:            r.Form.Get("logout_hint"),
			UILocales:             r.Form.Get("ui_locales"),
		}

		session, err := s.deps.AuthHandler.FindOrCreateSession(s.readCookie(r, sessionCookieName))
		if err != nil {
			writeProtocolError(w, oauth2.NewServerError(err))
			return
		}

		result, err := s.deps.EndSession.EndSession(params, session, s.readCookie(r, logoutCookieName))
		if err != nil {
			writeProtocolError(w, err)
			return
		}

		if result.Ticket != nil {
			s.setCookie(w, r, logoutCookieName, result.Ticket.ID, int(s.config.GetLogoutTicketTimeout().Seconds()))
			query := url.Values{}
			query.Set("interaction_type", string(oauth2.LogoutInteraction))
			query.Set("challenge", result.Ticket.LogoutChallenge)
			http.Redirect(w, r, s.issuer+RouteOAuthInteraction+"?"+query.Encode(), http.StatusSeeOther)
			return
		}

		if result.ClearSessionCookie {
			s.clearCookie(w, r, sessionCookieName)
		}
		s.clearCookie(w, r, logoutCookieName)
		http.Redirect(w, r, result.RedirectTo, http.StatusSeeOther)
	}
}
