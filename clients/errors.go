package clients

import "errors"

var (
	ErrNotFound                   = errors.New("client not found")
	ErrMissingID                  = errors.New("missing client id")
	ErrMissingRedirectURIs        = errors.New("at least one redirect uri is required")
	ErrInvalidRedirectURI         = errors.New("invalid redirect uri")
	ErrMissingSecret              = errors.New("authentication method requires a client secret")
	ErrMissingSigningAlgorithm    = errors.New("jwt authentication methods require a signing algorithm")
	ErrUnexpectedSigningAlgorithm = errors.New("signing algorithm only valid for jwt authentication methods")
	ErrAmbiguousJWKS              = errors.New("jwks and jwks_uri are mutually exclusive")
	ErrMissingJWKS                = errors.New("private_key_jwt requires jwks or jwks_uri")
	ErrMissingSectorIdentifier    = errors.New("pairwise clients require sector_identifier_uri and a salt")
	ErrUnsignedIDToken            = errors.New("id token signing algorithm must not be none")
)
