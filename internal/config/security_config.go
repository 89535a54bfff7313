package config

type SecurityConfig interface {
	GetServerSecret() string
	GetPostLogoutFallbackURL() string
	GetSubjectMaxLength() int
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetServerSecret is the symmetric key material used for HMAC token
// signing, cookie integrity and pairwise subject derivation. It must be at
// least 16 bytes long.
func (Security) GetServerSecret() string {
	return GetEnv("SERVER_SECRET", "development-secret-change-me-0123456789")
}

// GetPostLogoutFallbackURL is where the user-agent lands after logout when
// the client did not register a post_logout_redirect_uri.
func (Security) GetPostLogoutFallbackURL() string {
	return GetEnv("POST_LOGOUT_URL", EnvVars{}.GetIssuer()+"/logged_out")
}

func (Security) GetSubjectMaxLength() int {
	return 128
}
