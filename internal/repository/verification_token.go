// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"github.com/acrispin/identity/internal/models"
)

// CreateVerificationToken persists a new unused verification token.
func (r *Repository) CreateVerificationToken(ctx context.Context, userID int64, token, purpose string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO verification_tokens (user_id, token, purpose, expires_at, used) VALUES (?, ?, ?, ?, 0)`,
		userID, token, purpose, expiresAt)
	return wrapError(err)
}

// GetVerificationToken retrieves a verification token by its opaque value.
func (r *Repository) GetVerificationToken(ctx context.Context, token string) (*models.VerificationToken, error) {
	var t models.VerificationToken
	if err := r.db.GetContext(ctx, &t, `SELECT * FROM verification_tokens WHERE token = ?`, token); err != nil {
		return nil, wrapError(err)
	}
	return &t, nil
}

// MarkTokenUsed flips used=1 only while the token is unused and unexpired.
// The conditional update is the atomic primitive that keeps redemption
// at-most-once under concurrent calls: exactly one caller observes a
// non-zero row count, and a token past expiry can no longer be consumed
// regardless of what an earlier read saw.
func (r *Repository) MarkTokenUsed(ctx context.Context, token string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE verification_tokens SET used = 1 WHERE token = ? AND used = 0 AND expires_at > ?`,
		token, time.Now())
	if err != nil {
		return false, wrapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListUserVerificationTokens returns all tokens for a user and purpose,
// newest first.
func (r *Repository) ListUserVerificationTokens(ctx context.Context, userID int64, purpose string) ([]models.VerificationToken, error) {
	var tokens []models.VerificationToken
	err := r.db.SelectContext(ctx, &tokens,
		`SELECT * FROM verification_tokens WHERE user_id = ? AND purpose = ? ORDER BY created_at DESC`,
		userID, purpose)
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// DeleteExpiredVerificationTokens removes tokens past their expiry.
func (r *Repository) DeleteExpiredVerificationTokens(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM verification_tokens WHERE expires_at < ?`, time.Now())
	return err
}

// CountVerificationTokens returns the number of stored tokens.
func (r *Repository) CountVerificationTokens(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM verification_tokens`)
	return count, err
}
