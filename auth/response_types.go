package auth

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/guaranijs/guarani-sub005/token"
)

// ResponseBuilder produces the parameters of a successful authorization
// response for any code / id_token / token combination.
type ResponseBuilder struct {
	issuer   *token.Issuer
	idTokens *IDTokenHandler
}

// NewResponseBuilder creates a ResponseBuilder.
func NewResponseBuilder(issuer *token.Issuer, idTokens *IDTokenHandler) *ResponseBuilder {
	return &ResponseBuilder{issuer: issuer, idTokens: idTokens}
}

// Build mints the artifacts named by the response type and assembles the
// response parameters, echoing the request's state.
func (b *ResponseBuilder) Build(authCtx *AuthorizationContext, userID string) (map[string]string, error) {
	params := make(map[string]string)
	accessTokenHandle := ""

	for _, part := range strings.Fields(string(authCtx.Parameters.ResponseType.Normalize())) {
		switch part {
		case "code":
			code, err := b.issuer.IssueAuthorizationCode(authCtx.Client, userID, authCtx.Scopes, authCtx.Parameters)
			if err != nil {
				return nil, errors.Wrap(err, "[ResponseBuilder.Build] IssueAuthorizationCode")
			}
			params["code"] = code.Code
		case "token":
			accessToken, err := b.issuer.IssueAccessToken(authCtx.Client, userID, authCtx.Scopes)
			if err != nil {
				return nil, errors.Wrap(err, "[ResponseBuilder.Build] IssueAccessToken")
			}
			accessTokenHandle = accessToken.Handle
			params["access_token"] = accessToken.Handle
			params["token_type"] = "Bearer"
			params["expires_in"] = strconv.Itoa(int(b.issuer.AccessTokenExpiry().Seconds()))
			params["scope"] = strings.Join(authCtx.Scopes, " ")
		}
	}

	// The id_token is minted last so its at_hash can cover an access token
	// issued by the same response.
	if strings.Contains(string(authCtx.Parameters.ResponseType), "id_token") {
		idToken, err := b.idTokens.IssueIDToken(authCtx.Client, userID, authCtx.Scopes, authCtx.Parameters.Nonce, accessTokenHandle)
		if err != nil {
			return nil, errors.Wrap(err, "[ResponseBuilder.Build] IssueIDToken")
		}
		params["id_token"] = idToken
	}

	if authCtx.Parameters.State != "" {
		params["state"] = authCtx.Parameters.State
	}
	return params, nil
}
