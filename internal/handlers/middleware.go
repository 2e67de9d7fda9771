// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/acrispin/identity/internal/services/auth"
)

const claimsContextKey = "auth.claims"

// RequireAuth verifies the bearer token on protected routes and stores its
// claims in the request context.
func RequireAuth(issuer *auth.TokenIssuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return writeError(c, auth.ErrUnauthorized)
			}

			claims, err := issuer.Verify(token)
			if err != nil {
				return writeError(c, auth.ErrUnauthorized)
			}

			c.Set(claimsContextKey, claims)
			return next(c)
		}
	}
}

// ClaimsFrom returns the verified claims stored by RequireAuth.
func ClaimsFrom(c echo.Context) (*auth.Claims, bool) {
	claims, ok := c.Get(claimsContextKey).(*auth.Claims)
	return claims, ok
}
