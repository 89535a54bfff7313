package auth

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/guaranijs/guarani-sub005/clients"
	"github.com/guaranijs/guarani-sub005/oauth2"
	"github.com/guaranijs/guarani-sub005/pkce"
)

// AuthorizationContext is the validated state of an authorization request:
// the raw parameters, the resolved client and the effective scopes. Once a
// context exists the redirect URI has been verified against the client's
// registration and may be trusted as an error target.
type AuthorizationContext struct {
	Parameters *oauth2.AuthorizationParameters
	Client     *clients.Client
	Scopes     []string
}

// AuthorizationRequestValidator checks an authorization request before any
// interaction is started. Failures raised before the redirect URI is
// verified must never be redirected to it.
type AuthorizationRequestValidator struct {
	clients                clients.Repo
	scopes                 *ScopeHandler
	pkce                   *pkce.Registry
	supportedResponseTypes []oauth2.ResponseType
	supportedResponseModes []oauth2.ResponseModeType
}

// NewAuthorizationRequestValidator creates the validator over the server's
// supported response types and modes.
func NewAuthorizationRequestValidator(clientRepo clients.Repo, scopes *ScopeHandler, pkceRegistry *pkce.Registry, responseTypes []oauth2.ResponseType, responseModes []oauth2.ResponseModeType) *AuthorizationRequestValidator {
	return &AuthorizationRequestValidator{
		clients:                clientRepo,
		scopes:                 scopes,
		pkce:                   pkceRegistry,
		supportedResponseTypes: responseTypes,
		supportedResponseModes: responseModes,
	}
}

// Validate checks the full request. Convenience over the two stages; the
// returned error must be treated as untrusted.
func (v *AuthorizationRequestValidator) Validate(params *oauth2.AuthorizationParameters) (*AuthorizationContext, error) {
	client, err := v.ValidateClient(params)
	if err != nil {
		return nil, err
	}
	return v.ValidateRequest(client, params)
}

// ValidateClient resolves the client and verifies the redirect URI against
// its registration. Until this succeeds the redirect URI is untrusted and
// every failure must be rendered directly, never redirected.
func (v *AuthorizationRequestValidator) ValidateClient(params *oauth2.AuthorizationParameters) (*clients.Client, error) {
	if params.ClientID == "" {
		return nil, oauth2.NewInvalidRequest(`Invalid parameter "client_id".`)
	}
	client, err := v.clients.Get(params.ClientID)
	if err != nil {
		return nil, oauth2.NewInvalidClient("Invalid Client.")
	}
	if err := v.checkRedirectURI(client, params.RedirectURI); err != nil {
		return nil, err
	}
	return client, nil
}

// ValidateRequest checks the remaining parameters after ValidateClient has
// established trust in the redirect URI. Failures from here on may be
// redirected back to the client.
func (v *AuthorizationRequestValidator) ValidateRequest(client *clients.Client, params *oauth2.AuthorizationParameters) (*AuthorizationContext, error) {
	if err := v.checkResponseType(client, params.ResponseType); err != nil {
		return nil, err
	}
	if err := v.checkResponseMode(params.ResponseMode); err != nil {
		return nil, err
	}
	if err := v.checkPKCE(params); err != nil {
		return nil, err
	}
	if err := v.checkPrompt(params); err != nil {
		return nil, err
	}
	if params.MaxAge != "" {
		if _, err := strconv.Atoi(params.MaxAge); err != nil {
			return nil, oauth2.NewInvalidRequest(`Invalid parameter "max_age".`)
		}
	}

	if err := v.scopes.CheckRequestedScope(params.Scope); err != nil {
		return nil, err
	}
	allowed, err := v.scopes.GetAllowedScopes(client, params.Scope)
	if err != nil {
		return nil, err
	}

	return &AuthorizationContext{
		Parameters: params,
		Client:     client,
		Scopes:     allowed,
	}, nil
}

func (v *AuthorizationRequestValidator) checkRedirectURI(client *clients.Client, redirectURI string) error {
	if redirectURI == "" {
		return oauth2.NewInvalidRequest(`Invalid parameter "redirect_uri".`)
	}
	parsed, err := url.Parse(redirectURI)
	if err != nil || !parsed.IsAbs() || parsed.Fragment != "" {
		return oauth2.NewInvalidRequest(`Invalid parameter "redirect_uri".`)
	}
	if !client.HasRedirectURI(redirectURI) {
		return oauth2.NewAccessDenied("Invalid Redirect URI.")
	}
	return nil
}

func (v *AuthorizationRequestValidator) checkResponseType(client *clients.Client, responseType oauth2.ResponseType) error {
	if responseType == "" {
		return oauth2.NewInvalidRequest(`Invalid parameter "response_type".`)
	}
	normalized := responseType.Normalize()
	supported := false
	for _, rt := range v.supportedResponseTypes {
		if rt.Normalize() == normalized {
			supported = true
			break
		}
	}
	if !supported {
		return oauth2.NewUnsupportedResponseType(fmt.Sprintf("Unsupported response_type %q.", responseType))
	}
	if !client.HasResponseType(responseType) {
		return oauth2.NewUnauthorizedClient(fmt.Sprintf("This Client is not allowed to request the response_type %q.", responseType))
	}
	return nil
}

func (v *AuthorizationRequestValidator) checkResponseMode(mode oauth2.ResponseModeType) error {
	if mode == "" {
		return nil
	}
	for _, m := range v.supportedResponseModes {
		if m == mode {
			return nil
		}
	}
	return oauth2.NewInvalidRequest(fmt.Sprintf("Unsupported response_mode %q.", mode))
}

// checkPKCE requires a challenge whenever the response type carries a code.
func (v *AuthorizationRequestValidator) checkPKCE(params *oauth2.AuthorizationParameters) error {
	if !params.ResponseType.IncludesCode() {
		return nil
	}
	if params.CodeChallenge == "" {
		return oauth2.NewInvalidRequest(`Invalid parameter "code_challenge".`)
	}
	method := params.CodeChallengeMethod
	if method == "" {
		method = oauth2.CodeMethodTypePlain
	}
	if _, ok := v.pkce.Get(method); !ok {
		return oauth2.NewInvalidRequest(fmt.Sprintf("Unsupported code_challenge_method %q.", method))
	}
	return nil
}

// checkPrompt rejects prompt=none combined with any interactive prompt.
func (v *AuthorizationRequestValidator) checkPrompt(params *oauth2.AuthorizationParameters) error {
	if params.Prompt == "" {
		return nil
	}
	prompts := oauth2.SplitScopes(params.Prompt)
	valid := map[string]bool{
		string(oauth2.NonePrompt):          true,
		string(oauth2.LoginPrompt):         true,
		string(oauth2.ConsentPrompt):       true,
		string(oauth2.SelectAccountPrompt): true,
		string(oauth2.CreatePrompt):        true,
	}
	for _, p := range prompts {
		if !valid[p] {
			return oauth2.NewInvalidRequest(fmt.Sprintf("Unsupported prompt %q.", p))
		}
	}
	if params.HasPrompt(oauth2.NonePrompt) && len(prompts) > 1 {
		return oauth2.NewInvalidRequest(`The prompt "none" must not be combined with other prompts.`)
	}
	return nil
}
