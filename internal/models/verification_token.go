// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// Verification token purposes. A token issued for one purpose can never be
// redeemed for another.
const (
	PurposeAccountActivation = "account_activation"
	PurposePasswordReset     = "password_reset"
)

// VerificationToken is a single-use, purpose-scoped credential tied to a
// user. It moves from used=false to used=true exactly once, and only before
// its expiry.
type VerificationToken struct { //nolint:govet // fieldalignment: readability over optimization
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Token     string    `db:"token" json:"-"`
	Purpose   string    `db:"purpose" json:"purpose"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	Used      bool      `db:"used" json:"used"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsExpired reports whether the token is past its expiry.
func (t *VerificationToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}
