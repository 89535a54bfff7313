package token

import "errors"

var (
	ErrNotFound          = errors.New("token not found")
	ErrRevoked           = errors.New("token revoked")
	ErrExpired           = errors.New("token expired")
	ErrRotationConflict  = errors.New("refresh token already rotated")
	ErrAlreadyDecided    = errors.New("device code already decided")
	ErrUnsupportedSigner = errors.New("unsupported signer type")
)
