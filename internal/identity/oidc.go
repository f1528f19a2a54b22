package identity

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Flow abstracts the OAuth2 authorization-code dance so handlers can be
// tested without a live provider.
type Flow interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*Principal, error)
}

// Authenticator implements Flow against a discovered OIDC provider.
type Authenticator struct {
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewAuthenticator discovers the issuer and prepares the verifier and
// OAuth2 client configuration.
func NewAuthenticator(ctx context.Context, issuer, clientID, clientSecret, redirectURL string) (*Authenticator, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("identity: discover provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: clientID})

	oauth2Config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  redirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}

	return &Authenticator{verifier: verifier, oauth2Config: oauth2Config}, nil
}

// AuthCodeURL returns the provider URL to redirect the browser to.
func (a *Authenticator) AuthCodeURL(state string) string {
	return a.oauth2Config.AuthCodeURL(state)
}

// Exchange trades the authorization code for a verified ID token and
// extracts the principal from its claims.
func (a *Authenticator) Exchange(ctx context.Context, code string) (*Principal, error) {
	token, err := a.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("identity: exchange code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("identity: missing id_token in token response")
	}

	idToken, err := a.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("identity: verify id token: %w", err)
	}

	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("identity: parse claims: %w", err)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("identity: id token carries no email")
	}

	return &Principal{
		Subject:     idToken.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
	}, nil
}

var _ Flow = (*Authenticator)(nil)
