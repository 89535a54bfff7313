package sessions

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrLoginNotFound   = errors.New("login not found")
)
