package clientauth

import (
	"context"
	"net/http"
	"net/url"

	"github.com/guaranijs/guarani-sub005/clients"
	"github.com/guaranijs/guarani-sub005/oauth2"
)

// Request is the slice of an HTTP request the authentication strategies
// inspect: the Authorization header and the parsed form body.
type Request struct {
	Authorization string
	Body          url.Values
}

// NewRequest extracts the relevant parts of an HTTP request. ParseForm must
// have been called by the endpoint beforehand.
func NewRequest(r *http.Request) *Request {
	return &Request{
		Authorization: r.Header.Get("Authorization"),
		Body:          r.PostForm,
	}
}

// Method is one client authentication strategy. HasBeenRequested is a cheap,
// side-effect-free detection; Authenticate performs the full check and
// resolves the Client.
type Method interface {
	Name() oauth2.ClientAuthMethod
	HasBeenRequested(request *Request) bool
	Authenticate(ctx context.Context, request *Request) (*clients.Client, error)
}

// Handler dispatches a request to the single strategy whose detection
// matches. Ambiguous requests are always rejected, never resolved by
// priority.
type Handler struct {
	methods []Method
}

// NewHandler builds a dispatcher over the registered strategies.
func NewHandler(methods ...Method) *Handler {
	return &Handler{methods: methods}
}

// Authenticate identifies and authenticates the client making the request.
func (h *Handler) Authenticate(ctx context.Context, request *Request) (*clients.Client, error) {
	var matched Method
	for _, method := range h.methods {
		if !method.HasBeenRequested(request) {
			continue
		}
		if matched != nil {
			return nil, oauth2.NewInvalidClient("Multiple Client Authentication Methods detected.")
		}
		matched = method
	}
	if matched == nil {
		return nil, oauth2.NewInvalidClient("No Client Authentication Method detected.")
	}
	return matched.Authenticate(ctx, request)
}
