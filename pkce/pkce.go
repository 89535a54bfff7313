package pkce

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"github.com/guaranijs/guarani-sub005/oauth2"
)

// Method verifies a code_verifier against a code_challenge captured at
// authorization time. Implementations are registered by their discriminator
// and selected per request.
type Method interface {
	Name() oauth2.CodeMethodType
	Verify(challenge, verifier string) bool
}

// Plain compares the verifier directly against the challenge.
type Plain struct{}

func (Plain) Name() oauth2.CodeMethodType { return oauth2.CodeMethodTypePlain }

func (Plain) Verify(challenge, verifier string) bool {
	return subtle.ConstantTimeCompare([]byte(challenge), []byte(verifier)) == 1
}

// S256 compares the challenge against BASE64URL(SHA256(verifier)).
type S256 struct{}

func (S256) Name() oauth2.CodeMethodType { return oauth2.CodeMethodTypeS256 }

func (S256) Verify(challenge, verifier string) bool {
	hash := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(hash[:])
	return subtle.ConstantTimeCompare([]byte(challenge), []byte(computed)) == 1
}

// Registry maps code challenge method discriminators to implementations.
type Registry struct {
	methods map[oauth2.CodeMethodType]Method
}

// NewRegistry builds a registry from the supplied methods. With no
// arguments it registers plain and S256.
func NewRegistry(methods ...Method) *Registry {
	if len(methods) == 0 {
		methods = []Method{Plain{}, S256{}}
	}
	registry := &Registry{methods: make(map[oauth2.CodeMethodType]Method, len(methods))}
	for _, m := range methods {
		registry.methods[m.Name()] = m
	}
	return registry
}

// Get returns the method for the discriminator, or false when unsupported.
func (r *Registry) Get(name oauth2.CodeMethodType) (Method, bool) {
	m, ok := r.methods[name]
	return m, ok
}

// Supported lists the registered method discriminators.
func (r *Registry) Supported() []oauth2.CodeMethodType {
	names := make([]oauth2.CodeMethodType, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	return names
}
