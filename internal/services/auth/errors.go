// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import "errors"

// Failure kinds returned by the auth service. Handlers map these to
// transport status codes; messages never reveal whether an email exists.
var (
	ErrInvalidCredentials   = errors.New("incorrect email or password")
	ErrAccountInactive      = errors.New("user account is disabled")
	ErrDuplicateEmail       = errors.New("email already registered")
	ErrAccountConflict      = errors.New("account already linked to another identity")
	ErrInvalidEmail         = errors.New("invalid email format")
	ErrUserNotFound         = errors.New("user not found")
	ErrTokenInvalid         = errors.New("token is invalid")
	ErrTokenExpired         = errors.New("token has expired")
	ErrTokenNotFound        = errors.New("token not found")
	ErrTokenAlreadyUsed     = errors.New("token has already been used")
	ErrTokenPurposeMismatch = errors.New("token purpose mismatch")
	ErrUnauthorized         = errors.New("missing or invalid access token")
)
