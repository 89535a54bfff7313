package server

import (
	"encoding/json"
	"net/http"

	"github.com/guaranijs/guarani-sub005/oauth2"
	"github.com/guaranijs/guarani-sub005/token"
)

// WellKnownOpenIDConfig serves the OIDC discovery document
func (s *Server) WellKnownOpenIDConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		baseURL := s.issuer

		var responseModes []string
		for _, mode := range s.deps.Modes.Supported() {
			responseModes = append(responseModes, string(mode))
		}
		var grantTypes []string
		for _, grantType := range s.deps.GrantTypes.Supported() {
			grantTypes = append(grantTypes, string(grantType))
		}

		resp := map[string]any{
			"issuer":                        baseURL,
			"authorization_endpoint":        baseURL + RouteOAuthAuthorize,
			"token_endpoint":                baseURL + RouteOAuthToken,
			"userinfo_endpoint":             baseURL + RouteOAuthUserInfo,
			"jwks_uri":                      baseURL + RouteWellKnownJWKS,
			"revocation_endpoint":           baseURL + RouteOAuthRevoke,
			"introspection_endpoint":        baseURL + RouteOAuthIntrospect,
			"end_session_endpoint":          baseURL + RouteOAuthEndSession,
			"device_authorization_endpoint": baseURL + RouteOAuthDeviceAuth,

			"response_types_supported": []string{
				string(oauth2.CodeResponseType),
				string(oauth2.IDTokenResponseType),
				string(oauth2.TokenResponseType),
				string(oauth2.CodeIDTokenResponseType),
			},
			"response_modes_supported": responseModes,
			"subject_types_supported": []string{
				string(oauth2.PublicSubjectType),
				string(oauth2.PairwiseSubjectType),
			},

			// Signing algorithms
			"id_token_signing_alg_values_supported": []string{s.deps.Signer.GetSigningMethod().Alg()},

			"scopes_supported": s.config.GetSupportedScopes(),

			"token_endpoint_auth_methods_supported": []string{
				string(oauth2.NoneAuthMethod),
				string(oauth2.ClientSecretBasicAuthMethod),
				string(oauth2.ClientSecretPostAuthMethod),
				string(oauth2.ClientSecretJWTAuthMethod),
				string(oauth2.PrivateKeyJWTAuthMethod),
			},
			"token_endpoint_auth_signing_alg_values_supported": s.config.GetClientAssertionAlgorithms(),

			"grant_types_supported": grantTypes,

			// PKCE support
			"code_challenge_methods_supported": []string{
				string(oauth2.CodeMethodTypeS256),
				string(oauth2.CodeMethodTypePlain),
			},

			// Claims returned by the userinfo endpoint
			"claims_supported": []string{
				"sub",
				"name",
				"given_name",
				"family_name",
				"preferred_username",
				"email",
				"email_verified",
			},

			"claims_parameter_supported":      false,
			"request_parameter_supported":     false,
			"request_uri_parameter_supported": false,
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "public, max-age=3600") // Cache for 1 hour
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// JWKS returns the JSON Web Key Set used to validate tokens. Symmetric
// signers have no public key to advertise, so the set may be empty.
func (s *Server) JWKS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks := &token.JWKS{Keys: []token.JWK{}}
		if keyed, ok := s.deps.Signer.(*token.KeyPairSigner); ok {
			var err error
			jwks, err = keyed.GetJWKS()
			if err != nil {
				http.Error(w, "Failed to get JWKS: "+err.Error(), http.StatusInternalServerError)
				return
			}
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "public, max-age=3600") // Cache for 1 hour
		_ = json.NewEncoder(w).Encode(jwks)
	}
}
