package clientauth

import (
	"context"
	"fmt"

	"github.com/guaranijs/guarani-sub005/clients"
	"github.com/guaranijs/guarani-sub005/oauth2"
)

// None authenticates public clients that present only a client_id. A client
// with a registered secret is never allowed through this method.
type None struct {
	clientRepo clients.Repo
}

// NewNone creates the "none" authentication method.
func NewNone(clientRepo clients.Repo) *None {
	return &None{clientRepo: clientRepo}
}

func (n *None) Name() oauth2.ClientAuthMethod { return oauth2.NoneAuthMethod }

func (n *None) HasBeenRequested(request *Request) bool {
	return request.Body.Get("client_id") != "" && request.Body.Get("client_secret") == ""
}

func (n *None) Authenticate(_ context.Context, request *Request) (*clients.Client, error) {
	client, err := n.clientRepo.Get(request.Body.Get("client_id"))
	if err != nil {
		return nil, oauth2.NewInvalidClient("Invalid Credentials.")
	}
	if client.Secret != nil || client.AuthenticationMethod != oauth2.NoneAuthMethod {
		return nil, oauth2.NewInvalidClient(fmt.Sprintf("This Client is not allowed to use the Authentication Method %q.", oauth2.NoneAuthMethod))
	}
	return client, nil
}
