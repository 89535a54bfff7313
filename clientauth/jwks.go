package clientauth

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/pkg/errors"

	"github.com/guaranijs/guarani-sub005/clients"
)

// ErrInvalidJSONWebKeySet is returned when a client's key set cannot be
// fetched or contains no usable signature key. A slow or unresponsive
// jwks_uri endpoint surfaces as this error, never as a hang.
var ErrInvalidJSONWebKeySet = errors.New("invalid json web key set")

const jwksFetchTimeout = 10 * time.Second

// KeyResolver resolves a client's asymmetric verification key, either from
// the registration's inline jwks or by fetching its jwks_uri.
type KeyResolver struct {
	httpClient *http.Client
}

// NewKeyResolver creates a resolver with a timeout-bounded HTTP client.
func NewKeyResolver(httpClient *http.Client) *KeyResolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: jwksFetchTimeout}
	}
	return &KeyResolver{httpClient: httpClient}
}

// Resolve returns the public key matching the kid (and use=sig
// compatibility) from the client's key set.
func (r *KeyResolver) Resolve(ctx context.Context, client *clients.Client, kid string) (any, error) {
	keySet := client.JWKS
	if keySet == nil {
		if client.JWKSURI == "" {
			return nil, errors.Wrap(ErrInvalidJSONWebKeySet, "client has no registered keys")
		}
		fetched, err := r.fetch(ctx, client.JWKSURI)
		if err != nil {
			return nil, err
		}
		keySet = fetched
	}
	return selectKey(keySet, kid)
}

func (r *KeyResolver) fetch(ctx context.Context, jwksURI string) (*jose.JSONWebKeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURI, nil)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidJSONWebKeySet, err.Error())
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidJSONWebKeySet, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(ErrInvalidJSONWebKeySet, "jwks endpoint returned status %d", resp.StatusCode)
	}

	var keySet jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&keySet); err != nil {
		return nil, errors.Wrap(ErrInvalidJSONWebKeySet, err.Error())
	}
	return &keySet, nil
}

// selectKey picks a signature key: by kid when provided, otherwise the
// first key usable for signing.
func selectKey(keySet *jose.JSONWebKeySet, kid string) (any, error) {
	if kid != "" {
		for _, key := range keySet.Key(kid) {
			if signatureKey(key) {
				return key.Key, nil
			}
		}
		return nil, errors.Wrapf(ErrInvalidJSONWebKeySet, "no signature key with kid %q", kid)
	}
	for _, key := range keySet.Keys {
		if signatureKey(key) {
			return key.Key, nil
		}
	}
	return nil, errors.Wrap(ErrInvalidJSONWebKeySet, "no signature key in key set")
}

func signatureKey(key jose.JSONWebKey) bool {
	return key.Use == "" || key.Use == "sig"
}
