// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/acrispin/identity/internal/repository"
)

// TokenLength is the number of random bytes in a verification token.
const TokenLength = 32

// VerificationTokens issues and redeems single-use, purpose-scoped tokens.
// Re-issuing does not invalidate prior outstanding tokens for the same
// account and purpose.
type VerificationTokens struct {
	repo *repository.Repository
}

// NewVerificationTokens creates a VerificationTokens manager backed by the
// given repository.
func NewVerificationTokens(repo *repository.Repository) *VerificationTokens {
	return &VerificationTokens{repo: repo}
}

// generateToken returns a cryptographically random opaque token value.
func generateToken() (string, error) {
	b := make([]byte, TokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// IssueFor creates and persists a new unused token for the account and
// purpose, expiring after ttl. Retries on the unlikely event of a collision
// with a stored token.
func (v *VerificationTokens) IssueFor(ctx context.Context, userID int64, purpose string, ttl time.Duration) (string, error) {
	expiresAt := time.Now().Add(ttl)
	for range 3 {
		token, err := generateToken()
		if err != nil {
			return "", err
		}
		err = v.repo.CreateVerificationToken(ctx, userID, token, purpose, expiresAt)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return "", fmt.Errorf("failed to store verification token: %w", err)
		}
	}
	return "", fmt.Errorf("failed to generate a unique verification token")
}

// Redeem consumes a token for the given purpose and returns the owning
// account id. A token redeems successfully at most once: the used flag is
// flipped with a conditional update, so when two redemptions race exactly
// one of them wins and the other observes ErrTokenAlreadyUsed.
func (v *VerificationTokens) Redeem(ctx context.Context, token, purpose string) (int64, error) {
	entry, err := v.repo.GetVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrTokenNotFound
		}
		return 0, fmt.Errorf("failed to look up verification token: %w", err)
	}

	if entry.Purpose != purpose {
		return 0, ErrTokenPurposeMismatch
	}
	if entry.IsExpired() {
		return 0, ErrTokenExpired
	}
	if entry.Used {
		return 0, ErrTokenAlreadyUsed
	}

	ok, err := v.repo.MarkTokenUsed(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("failed to consume verification token: %w", err)
	}
	if !ok {
		// The token expired between the read and the update, or a
		// concurrent redemption won the race.
		if entry.IsExpired() {
			return 0, ErrTokenExpired
		}
		return 0, ErrTokenAlreadyUsed
	}

	return entry.UserID, nil
}
