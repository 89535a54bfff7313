package grants

import "errors"

var (
	ErrGrantNotFound   = errors.New("grant not found")
	ErrConsentNotFound = errors.New("consent not found")
	ErrTicketNotFound  = errors.New("logout ticket not found")
)
