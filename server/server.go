package server

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/guaranijs/guarani-sub005/auth"
	"github.com/guaranijs/guarani-sub005/clientauth"
	"github.com/guaranijs/guarani-sub005/clients"
	"github.com/guaranijs/guarani-sub005/granttypes"
	"github.com/guaranijs/guarani-sub005/internal/config"
	"github.com/guaranijs/guarani-sub005/token"
	"github.com/guaranijs/guarani-sub005/users"
)

// Dependencies are the wired domain services the endpoints delegate to.
type Dependencies struct {
	Clients      clients.Repo
	Users        users.UserRepo
	ClientAuth   *clientauth.Handler
	GrantTypes   *granttypes.Registry
	Authorizer   *auth.Authorizer
	Modes        *auth.ResponseModeRegistry
	AuthHandler  *auth.AuthHandler
	Interactions *auth.InteractionHandler
	EndSession   *auth.EndSessionHandler
	Tokens       *token.Issuer
	IDTokens     *auth.IDTokenHandler
	Signer       token.Signer
	Scopes       *auth.ScopeHandler
}

type Server struct {
	env    string // Environment (e.g., "DEV", "production")
	mux    *http.ServeMux
	routes []string
	config config.Config
	issuer string
	deps   Dependencies

	cookieSecret []byte

	upstreamRegistrations map[string]UpstreamProvider
	upstream              map[string]upstreamProvider
	upstreamLock          sync.RWMutex
}

func New(cfg config.Config, deps Dependencies) (*Server, error) {
	if deps.Authorizer == nil || deps.GrantTypes == nil || deps.ClientAuth == nil {
		return nil, fmt.Errorf("[Server New] missing required dependencies")
	}

	s := &Server{
		mux:          http.NewServeMux(),
		config:       cfg,
		issuer:       cfg.GetIssuer(),
		deps:         deps,
		cookieSecret: []byte(cfg.GetServerSecret()),

		upstreamRegistrations: make(map[string]UpstreamProvider),
		upstream:              make(map[string]upstreamProvider),
	}
	s.env = cfg.GetEnv()

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ansiReset
	} else {
		displayMethod = ansiGray + paddedMethod + ansiReset
	}
	log.Printf("[%-19s] %s\n", displayMethod, path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
