package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/guaranijs/guarani-sub005/clients"
	"github.com/guaranijs/guarani-sub005/oauth2"
	"github.com/guaranijs/guarani-sub005/token"
	"github.com/guaranijs/guarani-sub005/users"
)

// IDTokenHandler mints OpenID Connect ID tokens. The subject claim goes
// through the SubjectHandler so pairwise clients never see raw user ids.
type IDTokenHandler struct {
	signer   token.Signer
	users    users.UserRepo
	subjects *SubjectHandler
	issuer   string
	expiry   time.Duration
	nowFunc  func() time.Time
}

// IDTokenOption modifies the IDTokenHandler instance.
type IDTokenOption func(*IDTokenHandler)

// WithIDTokenExpiry sets the ID token lifetime.
func WithIDTokenExpiry(expiry time.Duration) IDTokenOption {
	return func(h *IDTokenHandler) { h.expiry = expiry }
}

// WithIDTokenNowFunc sets the now time function (primarily for testing)
func WithIDTokenNowFunc(now func() time.Time) IDTokenOption {
	return func(h *IDTokenHandler) { h.nowFunc = now }
}

// NewIDTokenHandler creates an IDTokenHandler signing with the server's key.
func NewIDTokenHandler(signer token.Signer, userRepo users.UserRepo, subjects *SubjectHandler, issuer string, options ...IDTokenOption) *IDTokenHandler {
	handler := &IDTokenHandler{
		signer:   signer,
		users:    userRepo,
		subjects: subjects,
		issuer:   issuer,
		expiry:   time.Hour,
		nowFunc:  time.Now,
	}
	for _, opt := range options {
		opt(handler)
	}
	return handler
}

// IssueIDToken mints a signed ID token for the user and client. The nonce
// and at_hash claims are included when supplied.
func (h *IDTokenHandler) IssueIDToken(client *clients.Client, userID string, scopes []string, nonce, accessToken string) (string, error) {
	user, err := h.users.GetByID(userID)
	if err != nil {
		return "", errors.Wrap(err, "[IDTokenHandler.IssueIDToken] GetByID")
	}
	subject, err := h.subjects.CalculateSubjectIdentifier(user.ID, client)
	if err != nil {
		return "", errors.Wrap(err, "[IDTokenHandler.IssueIDToken] CalculateSubjectIdentifier")
	}

	now := h.nowFunc()
	claims := jwt.MapClaims{
		"iss": h.issuer,
		"sub": subject,
		"aud": client.ID,
		"iat": now.Unix(),
		"exp": now.Add(h.expiry).Unix(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	if accessToken != "" {
		claims["at_hash"] = accessTokenHash(accessToken)
	}
	if oauth2.ContainsScope(scopes, "profile") {
		claims["name"] = user.Name()
		if user.Username != "" {
			claims["preferred_username"] = user.Username
		}
	}
	if oauth2.ContainsScope(scopes, "email") {
		claims["email"] = user.Email
		claims["email_verified"] = user.Verified
	}

	idToken, err := h.signer.Sign(claims)
	if err != nil {
		return "", errors.Wrap(err, "[IDTokenHandler.IssueIDToken] Sign")
	}
	return idToken, nil
}

// UserInfoClaims builds the claim set served by the userinfo endpoint for
// the user and the client the access token was issued to.
func (h *IDTokenHandler) UserInfoClaims(client *clients.Client, userID string, scopes []string) (map[string]any, error) {
	user, err := h.users.GetByID(userID)
	if err != nil {
		return nil, errors.Wrap(err, "[IDTokenHandler.UserInfoClaims] GetByID")
	}
	subject, err := h.subjects.CalculateSubjectIdentifier(user.ID, client)
	if err != nil {
		return nil, errors.Wrap(err, "[IDTokenHandler.UserInfoClaims] CalculateSubjectIdentifier")
	}

	claims := map[string]any{"sub": subject}
	if oauth2.ContainsScope(scopes, "profile") {
		claims["name"] = user.Name()
		if user.FirstName != "" {
			claims["given_name"] = user.FirstName
		}
		if user.LastName != "" {
			claims["family_name"] = user.LastName
		}
		if user.Username != "" {
			claims["preferred_username"] = user.Username
		}
	}
	if oauth2.ContainsScope(scopes, "email") {
		claims["email"] = user.Email
		claims["email_verified"] = user.Verified
	}
	return claims, nil
}

// VerifyIDTokenHint parses an id_token_hint issued by this server and
// returns the user id it names, reversing pairwise pseudonymization.
func (h *IDTokenHandler) VerifyIDTokenHint(hint string, client *clients.Client) (string, error) {
	parsed, err := jwt.Parse(hint, h.signer.GetVerificationKey, jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		return "", errors.New("[IDTokenHandler.VerifyIDTokenHint] invalid id_token_hint")
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("[IDTokenHandler.VerifyIDTokenHint] invalid id_token_hint claims")
	}
	subject, _ := claims["sub"].(string)
	if subject == "" {
		return "", errors.New("[IDTokenHandler.VerifyIDTokenHint] missing sub claim")
	}
	return h.subjects.RetrieveSubjectIdentifier(subject, client)
}

// accessTokenHash is the OIDC at_hash: base64url of the left half of the
// SHA-256 digest of the access token.
func accessTokenHash(accessToken string) string {
	digest := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(digest[:len(digest)/2])
}
