package clientauth

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/guaranijs/guarani-sub005/clients"
	"github.com/guaranijs/guarani-sub005/oauth2"
)

var base64Token = regexp.MustCompile(`^[A-Za-z0-9+/]+=*$`)

// SecretBasic authenticates confidential clients via the HTTP Basic
// Authorization header. Every failure carries a WWW-Authenticate: Basic
// response header.
type SecretBasic struct {
	clientRepo clients.Repo
}

// NewSecretBasic creates the client_secret_basic authentication method.
func NewSecretBasic(clientRepo clients.Repo) *SecretBasic {
	return &SecretBasic{clientRepo: clientRepo}
}

func (b *SecretBasic) Name() oauth2.ClientAuthMethod { return oauth2.ClientSecretBasicAuthMethod }

func (b *SecretBasic) HasBeenRequested(request *Request) bool {
	return strings.HasPrefix(strings.ToLower(request.Authorization), "basic ")
}

func (b *SecretBasic) Authenticate(_ context.Context, request *Request) (*clients.Client, error) {
	id, secret, err := parseBasicCredentials(request.Authorization)
	if err != nil {
		return nil, err
	}

	client, err := b.clientRepo.Get(id)
	if err != nil {
		return nil, b.invalidClient("Invalid Credentials.")
	}
	if client.Secret == nil || !secretMatches(*client.Secret, secret) {
		return nil, b.invalidClient("Invalid Credentials.")
	}
	if client.SecretExpired(nowFunc()) {
		return nil, b.invalidClient("Invalid Credentials.")
	}
	if client.AuthenticationMethod != oauth2.ClientSecretBasicAuthMethod {
		return nil, b.invalidClient(fmt.Sprintf("This Client is not allowed to use the Authentication Method %q.", oauth2.ClientSecretBasicAuthMethod))
	}
	return client, nil
}

func parseBasicCredentials(header string) (string, string, error) {
	invalid := func(description string) error {
		return oauth2.NewInvalidClient(description).WithHeader("WWW-Authenticate", "Basic")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
		return "", "", invalid("Missing Token of the Authorization Header.")
	}
	encoded := strings.TrimSpace(parts[1])
	if !base64Token.MatchString(encoded) {
		return "", "", invalid("Token of the Authorization Header is not a Base64 string.")
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", invalid("Token of the Authorization Header is not a Base64 string.")
	}

	credentials := strings.Split(string(decoded), ":")
	if len(credentials) != 2 {
		return "", "", invalid("Invalid Credentials at the Authorization Header.")
	}
	if credentials[0] == "" || credentials[1] == "" {
		return "", "", invalid("Invalid Credentials at the Authorization Header.")
	}
	return credentials[0], credentials[1], nil
}

func (b *SecretBasic) invalidClient(description string) error {
	return oauth2.NewInvalidClient(description).WithHeader("WWW-Authenticate", "Basic")
}
