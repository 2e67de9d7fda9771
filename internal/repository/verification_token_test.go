// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acrispin/identity/internal/models"
	"github.com/acrispin/identity/internal/repository"
	"github.com/acrispin/identity/internal/testutil"
)

func TestCreateVerificationToken(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "test@example.com")
	expiresAt := time.Now().Add(24 * time.Hour)

	err := repo.CreateVerificationToken(ctx, user.ID, "tok-1", models.PurposeAccountActivation, expiresAt)

	require.NoError(t, err)

	token, err := repo.GetVerificationToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, token.UserID)
	assert.Equal(t, models.PurposeAccountActivation, token.Purpose)
	assert.False(t, token.Used)
	assert.WithinDuration(t, expiresAt, token.ExpiresAt, time.Second)
}

func TestCreateVerificationToken_DuplicateValue(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "test@example.com")
	expiresAt := time.Now().Add(24 * time.Hour)

	require.NoError(t, repo.CreateVerificationToken(ctx, user.ID, "tok-1", models.PurposeAccountActivation, expiresAt))

	err := repo.CreateVerificationToken(ctx, user.ID, "tok-1", models.PurposePasswordReset, expiresAt)

	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestGetVerificationToken_NotFound(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	_, err := repo.GetVerificationToken(ctx, "nonexistent")

	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestMarkTokenUsed(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "test@example.com")
	expiresAt := time.Now().Add(24 * time.Hour)
	require.NoError(t, repo.CreateVerificationToken(ctx, user.ID, "tok-1", models.PurposeAccountActivation, expiresAt))

	// First consumption wins
	ok, err := repo.MarkTokenUsed(ctx, "tok-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Second consumption of the same token loses
	ok, err = repo.MarkTokenUsed(ctx, "tok-1")
	require.NoError(t, err)
	assert.False(t, ok)

	token, err := repo.GetVerificationToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.True(t, token.Used)
}

func TestMarkTokenUsed_Expired(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "test@example.com")
	require.NoError(t, repo.CreateVerificationToken(ctx, user.ID, "tok-1", models.PurposeAccountActivation, time.Now().Add(-1*time.Second)))

	// A token past expiry can no longer be consumed
	ok, err := repo.MarkTokenUsed(ctx, "tok-1")
	require.NoError(t, err)
	assert.False(t, ok)

	token, err := repo.GetVerificationToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.False(t, token.Used)
}

func TestMarkTokenUsed_NotFound(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	ok, err := repo.MarkTokenUsed(ctx, "nonexistent")

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListUserVerificationTokens(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "test@example.com")
	other := testutil.NewTestUser(t, repo, "other@example.com")
	expiresAt := time.Now().Add(24 * time.Hour)

	require.NoError(t, repo.CreateVerificationToken(ctx, user.ID, "tok-1", models.PurposeAccountActivation, expiresAt))
	require.NoError(t, repo.CreateVerificationToken(ctx, user.ID, "tok-2", models.PurposeAccountActivation, expiresAt))
	require.NoError(t, repo.CreateVerificationToken(ctx, user.ID, "tok-3", models.PurposePasswordReset, expiresAt))
	require.NoError(t, repo.CreateVerificationToken(ctx, other.ID, "tok-4", models.PurposeAccountActivation, expiresAt))

	tokens, err := repo.ListUserVerificationTokens(ctx, user.ID, models.PurposeAccountActivation)

	require.NoError(t, err)
	assert.Len(t, tokens, 2)
	for _, token := range tokens {
		assert.Equal(t, user.ID, token.UserID)
		assert.Equal(t, models.PurposeAccountActivation, token.Purpose)
	}
}

func TestDeleteExpiredVerificationTokens(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "test@example.com")

	require.NoError(t, repo.CreateVerificationToken(ctx, user.ID, "expired", models.PurposeAccountActivation, time.Now().Add(-1*time.Hour)))
	require.NoError(t, repo.CreateVerificationToken(ctx, user.ID, "valid", models.PurposeAccountActivation, time.Now().Add(24*time.Hour)))

	err := repo.DeleteExpiredVerificationTokens(ctx)
	require.NoError(t, err)

	_, err = repo.GetVerificationToken(ctx, "expired")
	require.ErrorIs(t, err, repository.ErrNotFound)

	token, err := repo.GetVerificationToken(ctx, "valid")
	require.NoError(t, err)
	assert.Equal(t, "valid", token.Token)
}
