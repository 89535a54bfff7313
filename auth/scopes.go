package auth

import (
	"fmt"

	"github.com/guaranijs/guarani-sub005/clients"
	"github.com/guaranijs/guarani-sub005/oauth2"
)

// ScopeHandler reconciles requested scope strings against the server's
// supported scopes and a client's allow-list. Unknown scopes fail with
// invalid_scope; scopes outside the client's allow-list fail with
// access_denied naming the first offender rather than being silently
// filtered.
type ScopeHandler struct {
	supported []string
}

// NewScopeHandler creates a ScopeHandler over the server's configured scopes.
func NewScopeHandler(supported []string) *ScopeHandler {
	return &ScopeHandler{supported: supported}
}

// CheckRequestedScope verifies every requested scope is supported by the
// server. Absent or empty scope is a no-op.
func (s *ScopeHandler) CheckRequestedScope(scope string) error {
	for _, requested := range oauth2.SplitScopes(scope) {
		if !oauth2.ContainsScope(s.supported, requested) {
			return oauth2.NewInvalidScope(fmt.Sprintf("Unsupported scope %q.", requested))
		}
	}
	return nil
}

// GetAllowedScopes resolves the effective scopes of a request. An absent
// scope yields the client's full default grant; otherwise every requested
// scope must be in the client's allow-list, preserving requested order.
func (s *ScopeHandler) GetAllowedScopes(client *clients.Client, scope string) ([]string, error) {
	if scope == "" {
		return client.Scopes, nil
	}
	requested := oauth2.SplitScopes(scope)
	for _, entry := range requested {
		if !client.HasScope(entry) {
			return nil, oauth2.NewAccessDenied(fmt.Sprintf("The Client is not allowed to request the scope %q.", entry))
		}
	}
	return requested, nil
}
