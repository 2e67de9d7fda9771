// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/acrispin/identity/internal/services/auth"
	"github.com/acrispin/identity/internal/services/oauth"
)

// writeError maps a service failure to a transport status. Internal detail
// never leaks: unknown errors become a generic 500.
func writeError(c echo.Context, err error) error {
	var policyErr *auth.PasswordValidationError
	if errors.As(err, &policyErr) {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"error":  policyErr.Error(),
			"errors": policyErr.Messages(),
		})
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": err.Error()})
	case errors.Is(err, auth.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": err.Error()})
	case errors.Is(err, auth.ErrAccountInactive):
		return c.JSON(http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, auth.ErrUserNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, auth.ErrAccountConflict):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, auth.ErrDuplicateEmail),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenNotFound),
		errors.Is(err, auth.ErrTokenAlreadyUsed),
		errors.Is(err, auth.ErrTokenPurposeMismatch),
		errors.Is(err, oauth.ErrExchangeFailed),
		errors.Is(err, oauth.ErrAssertionInvalid):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	slog.Error("internal_error", "error", err, "path", c.Path())
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}
