// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"

	"github.com/acrispin/identity/internal/database"
	"github.com/acrispin/identity/internal/models"
	"github.com/acrispin/identity/internal/repository"
)

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// NewTestUser creates an active test user in the database.
func NewTestUser(t *testing.T, repo *repository.Repository, email string) *models.User {
	t.Helper()
	ctx := context.Background()
	user := &models.User{
		Email:        email,
		PasswordHash: "not-a-real-hash",
		FirstName:    "Test",
		LastName:     "User",
		UserType:     models.UserTypeTeacher,
		IsActive:     true,
	}
	err := repo.CreateUser(ctx, user)
	require.NoError(t, err)
	return user
}
