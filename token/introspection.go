package token

import "strings"

// Introspection represents the metadata of a token per RFC 7662. When
// Active is false no other field is populated, so inactive responses leak
// nothing about why the token is inactive.
type Introspection struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Sub       string `json:"sub,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Nbf       int64  `json:"nbf,omitempty"`
}

// Introspect resolves an opaque handle against the access token store first
// and the refresh token store second, honouring the token_type_hint only as
// an ordering hint.
func (i *Issuer) Introspect(handle, tokenTypeHint string) (*Introspection, error) {
	if strings.TrimSpace(handle) == "" {
		return &Introspection{Active: false}, nil
	}

	lookups := []func(string) *Introspection{i.introspectAccessToken, i.introspectRefreshToken}
	if tokenTypeHint == "refresh_token" {
		lookups[0], lookups[1] = lookups[1], lookups[0]
	}

	for _, lookup := range lookups {
		if result := lookup(handle); result != nil {
			return result, nil
		}
	}
	return &Introspection{Active: false}, nil
}

func (i *Issuer) introspectAccessToken(handle string) *Introspection {
	accessToken, err := i.repos.AccessTokens.Get(handle)
	if err != nil {
		return nil
	}
	if !accessToken.Usable(i.nowFunc()) {
		return &Introspection{Active: false}
	}
	return &Introspection{
		Active:    true,
		Scope:     strings.Join(accessToken.Scopes, " "),
		ClientID:  accessToken.ClientID,
		Sub:       accessToken.UserID,
		TokenType: "Bearer",
		Exp:       accessToken.ExpiresAt.Unix(),
		Iat:       accessToken.IssuedAt.Unix(),
		Nbf:       accessToken.ValidAfter.Unix(),
	}
}

func (i *Issuer) introspectRefreshToken(handle string) *Introspection {
	if i.repos.RefreshTokens == nil {
		return nil
	}
	refreshToken, err := i.repos.RefreshTokens.Get(handle)
	if err != nil {
		return nil
	}
	if !refreshToken.Usable(i.nowFunc()) {
		return &Introspection{Active: false}
	}
	return &Introspection{
		Active:    true,
		Scope:     strings.Join(refreshToken.Scopes, " "),
		ClientID:  refreshToken.ClientID,
		Sub:       refreshToken.UserID,
		TokenType: "refresh_token",
		Exp:       refreshToken.ExpiresAt.Unix(),
		Iat:       refreshToken.IssuedAt.Unix(),
		Nbf:       refreshToken.ValidAfter.Unix(),
	}
}
