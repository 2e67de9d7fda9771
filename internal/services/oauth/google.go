// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package oauth exchanges Google authorization codes and ID tokens for a
// verified external identity. It only translates provider payloads; account
// state is never touched here.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"

	"github.com/acrispin/identity/internal/config"
)

var (
	// ErrExchangeFailed covers network errors, non-2xx responses and
	// malformed payloads during the code exchange.
	ErrExchangeFailed = errors.New("failed to exchange authorization code")
	// ErrAssertionInvalid is returned when an ID token fails signature,
	// audience or issuer checks.
	ErrAssertionInvalid = errors.New("identity assertion is invalid")
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// ExternalIdentity is the canonical shape consumed by the auth service.
type ExternalIdentity struct {
	SubjectID     string
	Email         string
	FirstName     string
	LastName      string
	EmailVerified bool
}

// GoogleExchanger implements both Google sign-in paths: authorization-code
// exchange plus userinfo fetch, and ID-token assertion verification against
// Google's published keys.
type GoogleExchanger struct {
	oauthConfig oauth2.Config
	userInfoURL string
	// swapped out in tests; idtoken.Validate needs Google's live JWKS
	validateIDToken func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

// NewGoogleExchanger creates a GoogleExchanger from the registered client
// credentials.
func NewGoogleExchanger(cfg *config.GoogleConfig) *GoogleExchanger {
	return &GoogleExchanger{
		oauthConfig: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
		userInfoURL:     googleUserInfoURL,
		validateIDToken: idtoken.Validate,
	}
}

// googleUserInfo mirrors the userinfo endpoint response.
type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
}

// ExchangeCode trades an authorization code for tokens and resolves the
// user's identity via the userinfo endpoint.
func (g *GoogleExchanger) ExchangeCode(ctx context.Context, code string) (*ExternalIdentity, error) {
	token, err := g.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	info, err := g.fetchUserInfo(ctx, token)
	if err != nil {
		return nil, err
	}

	return &ExternalIdentity{
		SubjectID:     info.ID,
		Email:         info.Email,
		FirstName:     info.GivenName,
		LastName:      info.FamilyName,
		EmailVerified: info.VerifiedEmail,
	}, nil
}

func (g *GoogleExchanger) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*googleUserInfo, error) {
	client := g.oauthConfig.Client(ctx, token)
	resp, err := client.Get(g.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching user info: %v", ErrExchangeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: user info returned status %d", ErrExchangeFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading user info: %v", ErrExchangeFailed, err)
	}

	var info googleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("%w: decoding user info: %v", ErrExchangeFailed, err)
	}
	if info.Email == "" {
		return nil, fmt.Errorf("%w: user info missing email", ErrExchangeFailed)
	}
	return &info, nil
}

// VerifyIDToken validates a Google-issued ID token (signature against
// Google's published keys, audience must match the registered client id)
// and decodes the identity it asserts.
func (g *GoogleExchanger) VerifyIDToken(ctx context.Context, rawToken string) (*ExternalIdentity, error) {
	payload, err := g.validateIDToken(ctx, rawToken, g.oauthConfig.ClientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssertionInvalid, err)
	}

	email, _ := payload.Claims["email"].(string)
	if email == "" {
		return nil, fmt.Errorf("%w: assertion missing email", ErrAssertionInvalid)
	}
	verified, _ := payload.Claims["email_verified"].(bool)
	givenName, _ := payload.Claims["given_name"].(string)
	familyName, _ := payload.Claims["family_name"].(string)

	return &ExternalIdentity{
		SubjectID:     payload.Subject,
		Email:         email,
		FirstName:     givenName,
		LastName:      familyName,
		EmailVerified: verified,
	}, nil
}
