// Package google connects the Schedule and SendEmail executors to Google
// Calendar and Gmail through OAuth 2.0 user credentials.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"

	"github.com/rendis/actiondesk/internal/actions"
	"github.com/rendis/actiondesk/pkg/schema"
)

// Scopes requested on the consent screen.
var Scopes = []string{
	calendar.CalendarEventsScope,
	gmail.GmailSendScope,
}

// StateSigner issues and verifies the opaque OAuth state parameter.
type StateSigner interface {
	Sign(userID string) (string, error)
	Verify(state string) (string, error)
}

// OAuthConfig holds the Google client registration.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint overrides Google's OAuth endpoints.
	Endpoint *oauth2.Endpoint
	// HTTPClient is used for token exchange and refresh.
	HTTPClient *http.Client
}

// OAuth builds consent URLs, exchanges codes and refreshes tokens.
type OAuth struct {
	cfg        *oauth2.Config
	states     StateSigner
	httpClient *http.Client
}

// NewOAuth creates an OAuth helper.
func NewOAuth(cfg OAuthConfig, states StateSigner) *OAuth {
	ep := endpoints.Google
	if cfg.Endpoint != nil {
		ep = *cfg.Endpoint
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &OAuth{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     ep,
			Scopes:       Scopes,
		},
		states:     states,
		httpClient: hc,
	}
}

// AuthURL returns the consent URL for userID. Offline access with forced
// approval makes Google return a refresh token every time.
func (o *OAuth) AuthURL(userID string) (string, error) {
	state, err := o.states.Sign(userID)
	if err != nil {
		return "", schema.NewError(schema.ErrCodeInternal, "could not sign oauth state").WithCause(err)
	}
	return o.cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("login_hint", userID),
	), nil
}

// Callback verifies state and exchanges code, returning the user the state
// was issued for and their new credential.
func (o *OAuth) Callback(ctx context.Context, code, state string) (string, *schema.Credential, error) {
	userID, err := o.states.Verify(state)
	if err != nil {
		return "", nil, schema.NewError(schema.ErrCodeValidation, "invalid or expired oauth state").WithCause(err)
	}
	if code == "" {
		return "", nil, schema.NewError(schema.ErrCodeValidation, "missing authorization code")
	}
	tok, err := o.cfg.Exchange(o.clientContext(ctx), code)
	if err != nil {
		return "", nil, classifyTokenError("code exchange", err)
	}
	return userID, toCredential(tok), nil
}

// Refresh exchanges cred's refresh token for a new access token.
// A revoked or expired grant yields an Unauthenticated error.
func (o *OAuth) Refresh(ctx context.Context, cred schema.Credential) (*schema.Credential, error) {
	if cred.RefreshToken == "" {
		return nil, schema.NewError(schema.ErrCodeUnauthenticated, "no refresh token stored")
	}
	// An expired token forces the source to hit the token endpoint.
	src := o.cfg.TokenSource(o.clientContext(ctx), &oauth2.Token{
		RefreshToken: cred.RefreshToken,
		Expiry:       time.Unix(1, 0),
	})
	tok, err := src.Token()
	if err != nil {
		return nil, classifyTokenError("token refresh", err)
	}
	fresh := toCredential(tok)
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = cred.RefreshToken
	}
	if fresh.Scope == "" {
		fresh.Scope = cred.Scope
	}
	return fresh, nil
}

func (o *OAuth) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
}

func toCredential(tok *oauth2.Token) *schema.Credential {
	c := &schema.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		c.Scope = scope
	}
	return c
}

// classifyTokenError maps invalid_grant to Unauthenticated and everything
// else to an external call error.
func classifyTokenError(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode == "invalid_grant" || (re.Response != nil && re.Response.StatusCode == http.StatusUnauthorized) {
			return schema.NewErrorf(schema.ErrCodeUnauthenticated, "%s rejected: %s", op, re.ErrorCode).WithCause(err)
		}
		return schema.NewErrorf(schema.ErrCodeExternalCall, "%s failed: %s", op, retrieveMessage(re)).WithCause(err)
	}
	return schema.NewErrorf(schema.ErrCodeExternalCall, "%s failed", op).WithCause(err)
}

func retrieveMessage(re *oauth2.RetrieveError) string {
	if re.ErrorDescription != "" {
		return re.ErrorDescription
	}
	if re.ErrorCode != "" {
		return re.ErrorCode
	}
	if re.Response == nil {
		return re.Error()
	}
	return fmt.Sprintf("status %d", re.Response.StatusCode)
}

var (
	_ actions.Authorizer     = (*OAuth)(nil)
	_ actions.TokenRefresher = (*OAuth)(nil)
)
