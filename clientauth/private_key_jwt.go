package clientauth

import (
	"context"

	"github.com/guaranijs/guarani-sub005/clients"
	"github.com/guaranijs/guarani-sub005/oauth2"
)

// asymmetricAlgorithms is the algorithm subset of private_key_jwt.
var asymmetricAlgorithms = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512", "PS256", "PS384", "PS512"}

// PrivateKeyJWT is the private_key_jwt method: the assertion is signed with
// a key from the client's registered JWKS (inline or fetched from jwks_uri).
type PrivateKeyJWT struct {
	jwtBearerAssertion
	keys *KeyResolver
}

// NewPrivateKeyJWT creates the private_key_jwt authentication method.
func NewPrivateKeyJWT(clientRepo clients.Repo, tokenEndpoint string, serverAlgorithms []string, keys *KeyResolver) *PrivateKeyJWT {
	method := &PrivateKeyJWT{
		jwtBearerAssertion: jwtBearerAssertion{
			clientRepo:       clientRepo,
			tokenEndpoint:    tokenEndpoint,
			serverAlgorithms: serverAlgorithms,
			name:             oauth2.PrivateKeyJWTAuthMethod,
			methodAlgorithms: asymmetricAlgorithms,
		},
		keys: keys,
	}
	method.resolveKey = method.clientKey
	return method
}

func (p *PrivateKeyJWT) clientKey(ctx context.Context, client *clients.Client, kid string) (any, error) {
	return p.keys.Resolve(ctx, client, kid)
}
