package users

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User is an end-user (resource owner) record. The core only depends on the
// ID; the remaining fields feed the userinfo endpoint and ID token claims.
type User struct {
	ID           string    `json:"id,omitempty"`
	Email        string    `json:"email,omitempty"`
	Username     string    `json:"username,omitempty"`
	PasswordHash string    `json:"-"` // never serialize
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	DateJoined   time.Time `json:"date_joined,omitempty"`

	Verified bool `json:"verified,omitempty"`
	Blocked  bool `json:"blocked,omitempty"`

	// AdditionalClaims carries implementation-defined resource-owner claims.
	AdditionalClaims map[string]any `json:"additional_claims,omitempty"`
}

// Name returns the user's display name.
func (u *User) Name() string {
	if u.FirstName == "" && u.LastName == "" {
		return u.Username
	}
	return u.FirstName + " " + u.LastName
}

// HashPassword hashes a plaintext password with bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash compares a plaintext password against a bcrypt hash
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
