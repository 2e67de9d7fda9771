// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"strings"

	"github.com/acrispin/identity/internal/models"
)

// CreateUser creates a new user. The email is stored lowercased so lookups
// stay case-insensitive. Returns ErrConflict when the email or google id is
// already taken.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(user.Email)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, first_name, last_name, phone, user_type, is_active, google_id, is_oauth_user, country_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Phone,
		user.UserType, user.IsActive, user.GoogleID, user.IsOAuthUser, user.CountryID)
	if err != nil {
		return wrapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	user.ID = id
	created, err := r.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	*user = *created
	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = ?`, id); err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by their email address, case-insensitively.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE email = ?`, strings.ToLower(email)); err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByGoogleID retrieves a user by their Google subject id.
func (r *Repository) GetUserByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE google_id = ?`, googleID); err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// EmailExists checks if a user with the given email exists.
func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, strings.ToLower(email))
	return exists, err
}

// UpdateUser updates the mutable profile fields of an existing user.
func (r *Repository) UpdateUser(ctx context.Context, user *models.User) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET first_name = ?, last_name = ?, phone = ?, country_id = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		user.FirstName, user.LastName, user.Phone, user.CountryID, user.ID)
	return wrapError(err)
}

// UpdateUserPassword updates a user's password hash.
func (r *Repository) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		passwordHash, id)
	return wrapError(err)
}

// MarkUserActive flips is_active after a successful email verification.
func (r *Repository) MarkUserActive(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_active = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	return wrapError(err)
}

// LinkGoogleID attaches a Google subject id to an existing user. Returns
// ErrConflict when the id is already linked to another account.
func (r *Repository) LinkGoogleID(ctx context.Context, id int64, googleID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET google_id = ?, is_oauth_user = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		googleID, id)
	return wrapError(err)
}

// CountAdmins returns the number of admin users.
func (r *Repository) CountAdmins(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM users WHERE user_type = ?`, models.UserTypeAdmin)
	return count, err
}
