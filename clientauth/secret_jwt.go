package clientauth

import (
	"context"

	"github.com/guaranijs/guarani-sub005/clients"
	"github.com/guaranijs/guarani-sub005/oauth2"
)

// hmacAlgorithms is the algorithm subset of client_secret_jwt. Asymmetric
// algorithms and "none" are excluded outright.
var hmacAlgorithms = []string{"HS256", "HS384", "HS512"}

// SecretJWT is the client_secret_jwt method: the assertion is HMAC-signed
// with the client's secret re-encoded as a symmetric key.
type SecretJWT struct {
	jwtBearerAssertion
}

// NewSecretJWT creates the client_secret_jwt authentication method.
// serverAlgorithms is the server's globally allowed client-auth signature
// algorithm list.
func NewSecretJWT(clientRepo clients.Repo, tokenEndpoint string, serverAlgorithms []string) *SecretJWT {
	method := &SecretJWT{
		jwtBearerAssertion: jwtBearerAssertion{
			clientRepo:       clientRepo,
			tokenEndpoint:    tokenEndpoint,
			serverAlgorithms: serverAlgorithms,
			name:             oauth2.ClientSecretJWTAuthMethod,
			methodAlgorithms: hmacAlgorithms,
		},
	}
	method.resolveKey = method.secretKey
	return method
}

func (s *SecretJWT) secretKey(_ context.Context, client *clients.Client, _ string) (any, error) {
	if client.Secret == nil || client.SecretExpired(nowFunc()) {
		return nil, oauth2.NewInvalidClient("Invalid Credentials.")
	}
	return []byte(*client.Secret), nil
}
