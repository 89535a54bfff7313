package clientauth

import (
	"context"
	"fmt"

	"github.com/guaranijs/guarani-sub005/clients"
	"github.com/guaranijs/guarani-sub005/oauth2"
)

// SecretPost authenticates confidential clients via client_id and
// client_secret form body fields. Same credential checks as SecretBasic but
// without the WWW-Authenticate response header.
type SecretPost struct {
	clientRepo clients.Repo
}

// NewSecretPost creates the client_secret_post authentication method.
func NewSecretPost(clientRepo clients.Repo) *SecretPost {
	return &SecretPost{clientRepo: clientRepo}
}

func (p *SecretPost) Name() oauth2.ClientAuthMethod { return oauth2.ClientSecretPostAuthMethod }

func (p *SecretPost) HasBeenRequested(request *Request) bool {
	return request.Body.Get("client_id") != "" && request.Body.Get("client_secret") != ""
}

func (p *SecretPost) Authenticate(_ context.Context, request *Request) (*clients.Client, error) {
	client, err := p.clientRepo.Get(request.Body.Get("client_id"))
	if err != nil {
		return nil, oauth2.NewInvalidClient("Invalid Credentials.")
	}
	if client.Secret == nil || !secretMatches(*client.Secret, request.Body.Get("client_secret")) {
		return nil, oauth2.NewInvalidClient("Invalid Credentials.")
	}
	if client.SecretExpired(nowFunc()) {
		return nil, oauth2.NewInvalidClient("Invalid Credentials.")
	}
	if client.AuthenticationMethod != oauth2.ClientSecretPostAuthMethod {
		return nil, oauth2.NewInvalidClient(fmt.Sprintf("This Client is not allowed to use the Authentication Method %q.", oauth2.ClientSecretPostAuthMethod))
	}
	return client, nil
}
