package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"

	"github.com/guaranijs/guarani-sub005/auth"
	"github.com/guaranijs/guarani-sub005/clientauth"
	"github.com/guaranijs/guarani-sub005/clients"
	fakeclientrepo "github.com/guaranijs/guarani-sub005/clients/fakerepo"
	fakegrantrepo "github.com/guaranijs/guarani-sub005/grants/repofakes"
	"github.com/guaranijs/guarani-sub005/granttypes"
	"github.com/guaranijs/guarani-sub005/internal/config"
	"github.com/guaranijs/guarani-sub005/internal/utils"
	"github.com/guaranijs/guarani-sub005/oauth2"
	"github.com/guaranijs/guarani-sub005/pkce"
	"github.com/guaranijs/guarani-sub005/server"
	fakesessionrepo "github.com/guaranijs/guarani-sub005/sessions/repofakes"
	"github.com/guaranijs/guarani-sub005/token"
	faketokenrepo "github.com/guaranijs/guarani-sub005/token/repofake"
	"github.com/guaranijs/guarani-sub005/users"
	fakeuserrepo "github.com/guaranijs/guarani-sub005/users/repofake"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running server: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	handler, err := buildServer(c)
	if err != nil {
		return fmt.Errorf("buildServer: %w", err)
	}

	srv := &http.Server{Addr: c.GetPort(), Handler: handler}
	go listenAndServe(srv)
	waitForStopSignal()
	returnError = shutdown(srv)
	return returnError
}

// buildServer wires the domain services onto in-memory repositories. A host
// integration swaps the repositories for persistent ones.
func buildServer(c config.Config) (*server.Server, error) {
	clientRepo := fakeclientrepo.NewFakeClientRepo()
	userRepo := fakeuserrepo.NewFakeUserRepo()
	sessionRepo := fakesessionrepo.NewFakeSessionRepo()
	loginRepo := fakesessionrepo.NewFakeLoginRepo()
	grantRepo := fakegrantrepo.NewFakeGrantRepo()
	consentRepo := fakegrantrepo.NewFakeConsentRepo()
	ticketRepo := fakegrantrepo.NewFakeLogoutTicketRepo()

	refreshTokenRepo := faketokenrepo.NewFakeRefreshTokenRepo()
	deviceCodeRepo := faketokenrepo.NewFakeDeviceCodeRepo()
	authorizationCodeRepo := faketokenrepo.NewFakeAuthorizationCodeRepo()

	issuer, err := token.NewIssuer(token.Repos{
		AccessTokens:       faketokenrepo.NewFakeAccessTokenRepo(),
		RefreshTokens:      refreshTokenRepo,
		AuthorizationCodes: authorizationCodeRepo,
		DeviceCodes:        deviceCodeRepo,
	},
		token.WithTokenExpiry(c.GetDefaultAccessTokenExpiry(), c.GetDefaultRefreshTokenExpiry(), c.GetAuthCodeTimeout()),
		token.WithDeviceCodeExpiry(c.GetDeviceCodeTimeout(), c.GetDeviceCodePollInterval()),
	)
	if err != nil {
		return nil, fmt.Errorf("token.NewIssuer: %w", err)
	}

	signer := token.NewHMACSigner(c.GetServerSecret())
	subjects, err := auth.NewSubjectHandler(c.GetServerSecret(), c.GetSubjectMaxLength())
	if err != nil {
		return nil, fmt.Errorf("auth.NewSubjectHandler: %w", err)
	}
	idTokens := auth.NewIDTokenHandler(signer, userRepo, subjects, c.GetIssuer())
	scopes := auth.NewScopeHandler(c.GetSupportedScopes())
	modes := auth.NewResponseModeRegistry(signer, c.GetIssuer())

	validator := auth.NewAuthorizationRequestValidator(
		clientRepo,
		scopes,
		pkce.NewRegistry(),
		[]oauth2.ResponseType{
			oauth2.CodeResponseType,
			oauth2.TokenResponseType,
			oauth2.IDTokenResponseType,
			oauth2.CodeIDTokenResponseType,
		},
		modes.Supported(),
	)

	authHandler := auth.NewAuthHandler(sessionRepo, loginRepo, auth.WithLoginExpiry(c.GetLoginTimeout()))
	responses := auth.NewResponseBuilder(issuer, idTokens)
	authorizer := auth.NewAuthorizer(validator, grantRepo, consentRepo, authHandler, responses, modes,
		auth.WithGrantExpiry(c.GetGrantTimeout()))
	endSession := auth.NewEndSessionHandler(clientRepo, ticketRepo, sessionRepo, authHandler, idTokens,
		c.GetPostLogoutFallbackURL(), auth.WithTicketExpiry(c.GetLogoutTicketTimeout()))
	interactions := auth.NewInteractionHandler(grantRepo, consentRepo, ticketRepo, sessionRepo, userRepo, clientRepo,
		authHandler, endSession)

	tokenEndpoint := c.GetIssuer() + server.RouteOAuthToken
	algorithms := c.GetClientAssertionAlgorithms()
	keys := clientauth.NewKeyResolver(nil)
	clientAuth := clientauth.NewHandler(
		clientauth.NewNone(clientRepo),
		clientauth.NewSecretBasic(clientRepo),
		clientauth.NewSecretPost(clientRepo),
		clientauth.NewSecretJWT(clientRepo, tokenEndpoint, algorithms),
		clientauth.NewPrivateKeyJWT(clientRepo, tokenEndpoint, algorithms, keys),
	)

	passwordGrant, err := granttypes.NewPassword(clientAuth, scopes, issuer, userRepo, idTokens)
	if err != nil {
		return nil, fmt.Errorf("granttypes.NewPassword: %w", err)
	}
	grantTypes := granttypes.NewRegistry(
		granttypes.NewAuthorizationCode(clientAuth, scopes, issuer, authorizationCodeRepo, pkce.NewRegistry(), idTokens),
		granttypes.NewClientCredentials(clientAuth, scopes, issuer),
		passwordGrant,
		granttypes.NewRefreshToken(clientAuth, scopes, issuer, refreshTokenRepo, idTokens),
		granttypes.NewDeviceCode(clientAuth, scopes, issuer, deviceCodeRepo, idTokens),
		granttypes.NewJWTBearer(clientAuth, scopes, issuer, userRepo, keys, tokenEndpoint, algorithms, idTokens),
	)

	if c.GetEnv() == "DEV" {
		if err := seedDevData(clientRepo, userRepo); err != nil {
			return nil, fmt.Errorf("seedDevData: %w", err)
		}
	}

	return server.New(c, server.Dependencies{
		Clients:      clientRepo,
		Users:        userRepo,
		ClientAuth:   clientAuth,
		GrantTypes:   grantTypes,
		Authorizer:   authorizer,
		Modes:        modes,
		AuthHandler:  authHandler,
		Interactions: interactions,
		EndSession:   endSession,
		Tokens:       issuer,
		IDTokens:     idTokens,
		Signer:       signer,
		Scopes:       scopes,
	})
}

// seedDevData registers a demo client and user so the development server is
// usable out of the box.
func seedDevData(clientRepo clients.Repo, userRepo users.UserRepo) error {
	if err := clientRepo.Upsert(&clients.Client{
		ID:                   "demo-client",
		Secret:               utils.Ptr("demo-secret"),
		Name:                 "Demo Client",
		RedirectURIs:         []string{"http://localhost:3000/callback"},
		ResponseTypes:        []oauth2.ResponseType{oauth2.CodeResponseType},
		GrantTypes:           []oauth2.GrantType{oauth2.AuthorizationCodeGrant, oauth2.RefreshTokenGrant},
		ApplicationType:      oauth2.WebApplicationType,
		AuthenticationMethod: oauth2.ClientSecretBasicAuthMethod,
		Scopes:               []string{"openid", "profile", "email", "offline_access"},
		SubjectType:          oauth2.PublicSubjectType,
	}); err != nil {
		return err
	}

	passwordHash, err := users.HashPassword("password")
	if err != nil {
		return err
	}
	return userRepo.Upsert(&users.User{
		ID:           "demo-user",
		Email:        "demo@example.com",
		Username:     "demo",
		PasswordHash: passwordHash,
		Verified:     true,
		DateJoined:   time.Now(),
	})
}

func listenAndServe(srv *http.Server) error {
	log.Printf("Server listening on %s\n", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
