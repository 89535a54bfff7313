package auth

import (
	"fmt"
	"html"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/guaranijs/guarani-sub005/oauth2"
	"github.com/guaranijs/guarani-sub005/token"
)

// ModeResponse is the rendered authorization response: either a redirect
// target or an HTML document (form_post variants).
type ModeResponse struct {
	RedirectURL string
	Body        []byte
	ContentType string
}

// ResponseMode renders validated response parameters to the client's
// redirect URI.
type ResponseMode interface {
	Name() oauth2.ResponseModeType
	Respond(redirectURI string, params map[string]string) (*ModeResponse, error)
}

// QueryMode returns the parameters in the redirect URI's query string.
type QueryMode struct{}

func (QueryMode) Name() oauth2.ResponseModeType { return oauth2.QueryResponseMode }

func (QueryMode) Respond(redirectURI string, params map[string]string) (*ModeResponse, error) {
	target, err := url.Parse(redirectURI)
	if err != nil {
		return nil, errors.Wrap(err, "[QueryMode.Respond] url.Parse")
	}
	query := target.Query()
	for k, v := range params {
		query.Set(k, v)
	}
	target.RawQuery = query.Encode()
	return &ModeResponse{RedirectURL: target.String()}, nil
}

// FragmentMode returns the parameters in the redirect URI's fragment.
type FragmentMode struct{}

func (FragmentMode) Name() oauth2.ResponseModeType { return oauth2.FragmentResponseMode }

func (FragmentMode) Respond(redirectURI string, params map[string]string) (*ModeResponse, error) {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	return &ModeResponse{RedirectURL: redirectURI + "#" + values.Encode()}, nil
}

// FormPostMode returns an auto-submitting HTML form posting the parameters
// to the redirect URI.
type FormPostMode struct{}

func (FormPostMode) Name() oauth2.ResponseModeType { return oauth2.FormPostResponseMode }

func (FormPostMode) Respond(redirectURI string, params map[string]string) (*ModeResponse, error) {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><title>Authorizing...</title></head>")
	b.WriteString(`<body onload="document.forms[0].submit()">`)
	b.WriteString(fmt.Sprintf(`<form method="post" action=%q>`, redirectURI))

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.WriteString(fmt.Sprintf(`<input type="hidden" name=%q value=%q/>`, html.EscapeString(name), html.EscapeString(params[name])))
	}
	b.WriteString("</form></body></html>")
	return &ModeResponse{Body: []byte(b.String()), ContentType: "text/html; charset=utf-8"}, nil
}

// JWTMode wraps the response parameters in a signed JWT (JARM) and delivers
// the single "response" parameter through the underlying mode.
type JWTMode struct {
	name    oauth2.ResponseModeType
	inner   ResponseMode
	signer  token.Signer
	issuer  string
	expiry  time.Duration
	nowFunc func() time.Time
}

// NewJWTMode creates the signed variant of an underlying response mode.
func NewJWTMode(name oauth2.ResponseModeType, inner ResponseMode, signer token.Signer, issuer string) *JWTMode {
	return &JWTMode{
		name:    name,
		inner:   inner,
		signer:  signer,
		issuer:  issuer,
		expiry:  time.Minute,
		nowFunc: time.Now,
	}
}

func (m *JWTMode) Name() oauth2.ResponseModeType { return m.name }

func (m *JWTMode) Respond(redirectURI string, params map[string]string) (*ModeResponse, error) {
	now := m.nowFunc()
	claims := jwt.MapClaims{
		"iss": m.issuer,
		"exp": now.Add(m.expiry).Unix(),
	}
	for k, v := range params {
		claims[k] = v
	}
	response, err := m.signer.Sign(claims)
	if err != nil {
		return nil, errors.Wrap(err, "[JWTMode.Respond] Sign")
	}
	return m.inner.Respond(redirectURI, map[string]string{"response": response})
}

// ResponseModeRegistry resolves response_mode discriminators, falling back
// to the response type's default mode.
type ResponseModeRegistry struct {
	modes map[oauth2.ResponseModeType]ResponseMode
}

// NewResponseModeRegistry builds the registry. With no arguments it
// registers query, fragment, form_post and their signed variants.
func NewResponseModeRegistry(signer token.Signer, issuer string, modes ...ResponseMode) *ResponseModeRegistry {
	if len(modes) == 0 {
		modes = []ResponseMode{
			QueryMode{},
			FragmentMode{},
			FormPostMode{},
			NewJWTMode(oauth2.QueryJWTResponseMode, QueryMode{}, signer, issuer),
			NewJWTMode(oauth2.FragmentJWTResponseMode, FragmentMode{}, signer, issuer),
			NewJWTMode(oauth2.FormPostJWTResponseMode, FormPostMode{}, signer, issuer),
		}
	}
	registry := &ResponseModeRegistry{modes: make(map[oauth2.ResponseModeType]ResponseMode, len(modes))}
	for _, mode := range modes {
		registry.modes[mode.Name()] = mode
	}
	return registry
}

// Supported lists the registered response mode discriminators.
func (r *ResponseModeRegistry) Supported() []oauth2.ResponseModeType {
	names := make([]oauth2.ResponseModeType, 0, len(r.modes)+1)
	for name := range r.modes {
		names = append(names, name)
	}
	names = append(names, oauth2.JWTResponseMode)
	return names
}

// Resolve picks the mode for the request. An empty mode falls back to the
// response type's default; the bare "jwt" mode resolves to the signed
// variant of that default.
func (r *ResponseModeRegistry) Resolve(mode oauth2.ResponseModeType, responseType oauth2.ResponseType) (ResponseMode, error) {
	switch mode {
	case "":
		if responseType.UsesFragment() {
			mode = oauth2.FragmentResponseMode
		} else {
			mode = oauth2.QueryResponseMode
		}
	case oauth2.JWTResponseMode:
		if responseType.UsesFragment() {
			mode = oauth2.FragmentJWTResponseMode
		} else {
			mode = oauth2.QueryJWTResponseMode
		}
	}
	resolved, ok := r.modes[mode]
	if !ok {
		return nil, oauth2.NewInvalidRequest(fmt.Sprintf("Unsupported response_mode %q.", mode))
	}
	return resolved, nil
}
