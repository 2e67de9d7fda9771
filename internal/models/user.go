// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"database/sql"
	"time"
)

// User types stored in users.user_type.
const (
	UserTypeAdmin   = "ADMIN"
	UserTypeTeacher = "TEACHER"
)

// User is a registered account. Email is stored lowercased and compared
// case-insensitively. GoogleID is set for accounts created or linked via
// Google sign-in.
type User struct { //nolint:govet // fieldalignment not critical for models
	ID           int64          `db:"id" json:"id"`
	Email        string         `db:"email" json:"email"`
	PasswordHash string         `db:"password_hash" json:"-"`
	FirstName    string         `db:"first_name" json:"first_name"`
	LastName     string         `db:"last_name" json:"last_name"`
	Phone        sql.NullString `db:"phone" json:"-"`
	UserType     string         `db:"user_type" json:"user_type"`
	IsActive     bool           `db:"is_active" json:"is_active"`
	GoogleID     sql.NullString `db:"google_id" json:"-"`
	IsOAuthUser  bool           `db:"is_oauth_user" json:"is_oauth_user"`
	CountryID    sql.NullInt64  `db:"country_id" json:"-"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool {
	return u.UserType == UserTypeAdmin
}
