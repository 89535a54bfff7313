package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/guaranijs/guarani-sub005/clients"
	"github.com/guaranijs/guarani-sub005/oauth2"
)

// SubjectHandler derives the "sub" claim for a client. Public clients get
// the raw user id; pairwise clients get a reversible per-sector pseudonym so
// two clients in different sectors cannot correlate the same user.
type SubjectHandler struct {
	key       []byte
	maxLength int
}

// NewSubjectHandler creates a SubjectHandler keyed from the server secret.
// The first 16 bytes of the secret become the AES-128 key.
func NewSubjectHandler(serverSecret string, maxLength int) (*SubjectHandler, error) {
	if len(serverSecret) < aes.BlockSize {
		return nil, errors.Errorf("[NewSubjectHandler] server secret must be at least %d bytes", aes.BlockSize)
	}
	if maxLength <= 0 {
		maxLength = 128
	}
	return &SubjectHandler{
		key:       []byte(serverSecret[:aes.BlockSize]),
		maxLength: maxLength,
	}, nil
}

// CalculateSubjectIdentifier derives the subject for the user under the
// client's subject type.
func (h *SubjectHandler) CalculateSubjectIdentifier(userID string, client *clients.Client) (string, error) {
	if client.SubjectType != oauth2.PairwiseSubjectType {
		return userID, nil
	}

	sector, err := sectorHost(client.SectorIdentifierURI)
	if err != nil {
		return "", err
	}

	plaintext := sector + userID + client.PairwiseSalt
	if len(plaintext) > h.maxLength {
		return "", errors.Errorf("[SubjectHandler.CalculateSubjectIdentifier] identifier exceeds %d bytes", h.maxLength)
	}
	// Pad with "=" up to the cipher block size; the padding is stripped on
	// retrieval after the sector and salt.
	for len(plaintext)%aes.BlockSize != 0 {
		plaintext += "="
	}

	block, err := aes.NewCipher(h.key)
	if err != nil {
		return "", errors.Wrap(err, "[SubjectHandler.CalculateSubjectIdentifier] aes.NewCipher")
	}
	ciphertext := make([]byte, len(plaintext))
	iv := make([]byte, aes.BlockSize)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, []byte(plaintext))

	return base64.RawURLEncoding.EncodeToString(ciphertext), nil
}

// RetrieveSubjectIdentifier is the exact inverse of
// CalculateSubjectIdentifier for pairwise clients.
func (h *SubjectHandler) RetrieveSubjectIdentifier(subject string, client *clients.Client) (string, error) {
	if client.SubjectType != oauth2.PairwiseSubjectType {
		return subject, nil
	}

	sector, err := sectorHost(client.SectorIdentifierURI)
	if err != nil {
		return "", err
	}

	ciphertext, err := base64.RawURLEncoding.DecodeString(subject)
	if err != nil {
		return "", errors.Wrap(err, "[SubjectHandler.RetrieveSubjectIdentifier] base64 decode")
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", errors.New("[SubjectHandler.RetrieveSubjectIdentifier] malformed subject identifier")
	}

	block, err := aes.NewCipher(h.key)
	if err != nil {
		return "", errors.Wrap(err, "[SubjectHandler.RetrieveSubjectIdentifier] aes.NewCipher")
	}
	plaintext := make([]byte, len(ciphertext))
	iv := make([]byte, aes.BlockSize)
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	decoded := strings.TrimRight(string(plaintext), "=")
	if !strings.HasPrefix(decoded, sector) || !strings.HasSuffix(decoded, client.PairwiseSalt) {
		return "", errors.New("[SubjectHandler.RetrieveSubjectIdentifier] subject does not belong to the client's sector")
	}
	return strings.TrimSuffix(strings.TrimPrefix(decoded, sector), client.PairwiseSalt), nil
}

func sectorHost(sectorIdentifierURI string) (string, error) {
	parsed, err := url.Parse(sectorIdentifierURI)
	if err != nil || parsed.Hostname() == "" {
		return "", errors.New("[sectorHost] invalid sector identifier uri")
	}
	return parsed.Hostname(), nil
}
