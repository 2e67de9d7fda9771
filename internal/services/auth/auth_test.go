// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acrispin/identity/internal/config"
	"github.com/acrispin/identity/internal/models"
	"github.com/acrispin/identity/internal/repository"
	"github.com/acrispin/identity/internal/services/auth"
	"github.com/acrispin/identity/internal/services/oauth"
	"github.com/acrispin/identity/internal/testutil"
)

// sentEmail records one delivery handed to the fake mailer.
type sentEmail struct {
	To      string
	Token   string
	Purpose string
}

type fakeMailer struct {
	Sent []sentEmail
	Err  error
}

func (m *fakeMailer) SendVerificationEmail(_ context.Context, toEmail, _, token string) error {
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, sentEmail{To: toEmail, Token: token, Purpose: models.PurposeAccountActivation})
	return nil
}

func (m *fakeMailer) SendPasswordResetEmail(_ context.Context, toEmail, _, token string) error {
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, sentEmail{To: toEmail, Token: token, Purpose: models.PurposePasswordReset})
	return nil
}

type fakeExchanger struct {
	Identity *oauth.ExternalIdentity
	Err      error
}

func (e *fakeExchanger) ExchangeCode(context.Context, string) (*oauth.ExternalIdentity, error) {
	return e.Identity, e.Err
}

func (e *fakeExchanger) VerifyIDToken(context.Context, string) (*oauth.ExternalIdentity, error) {
	return e.Identity, e.Err
}

func newTestService(t *testing.T) (*auth.Service, *repository.Repository, *fakeMailer, *fakeExchanger) {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	mailer := &fakeMailer{}
	exchanger := &fakeExchanger{}
	issuer := auth.NewTokenIssuer("test-secret", 30*time.Minute)
	svc := auth.NewService(repo, issuer, mailer, exchanger, config.TokenConfig{
		VerificationTTL:  24 * time.Hour,
		PasswordResetTTL: 24 * time.Hour,
	})
	return svc, repo, mailer, exchanger
}

const testPassword = "Str0ng!Pass"

func registerTestUser(t *testing.T, svc *auth.Service, email string) *models.User {
	t.Helper()
	user, err := svc.RegisterWithEmail(context.Background(), auth.RegisterParams{
		Email:     email,
		Password:  testPassword,
		FirstName: "Jane",
		LastName:  "Doe",
	})
	require.NoError(t, err)
	return user
}

func TestRegisterWithEmail(t *testing.T) {
	svc, _, mailer, _ := newTestService(t)

	user := registerTestUser(t, svc, "jane@example.com")

	assert.NotZero(t, user.ID)
	assert.Equal(t, "jane@example.com", user.Email)
	assert.Equal(t, models.UserTypeTeacher, user.UserType)
	assert.False(t, user.IsActive)
	assert.NotEqual(t, testPassword, user.PasswordHash)

	require.Len(t, mailer.Sent, 1)
	assert.Equal(t, "jane@example.com", mailer.Sent[0].To)
	assert.Equal(t, models.PurposeAccountActivation, mailer.Sent[0].Purpose)
	assert.NotEmpty(t, mailer.Sent[0].Token)
}

func TestRegisterWithEmail_InvalidEmail(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.RegisterWithEmail(context.Background(), auth.RegisterParams{
		Email:    "not-an-email",
		Password: testPassword,
	})

	assert.ErrorIs(t, err, auth.ErrInvalidEmail)
}

func TestRegisterWithEmail_WeakPassword(t *testing.T) {
	svc, _, mailer, _ := newTestService(t)

	_, err := svc.RegisterWithEmail(context.Background(), auth.RegisterParams{
		Email:    "jane@example.com",
		Password: "weak",
	})

	var validationErr *auth.PasswordValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.NotEmpty(t, validationErr.Errors)
	assert.Empty(t, mailer.Sent)
}

func TestRegisterWithEmail_DuplicateEmail(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	registerTestUser(t, svc, "jane@example.com")

	// Case differences do not create a second account
	_, err := svc.RegisterWithEmail(context.Background(), auth.RegisterParams{
		Email:    "Jane@Example.com",
		Password: testPassword,
	})

	assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
}

func TestRegisterWithEmail_MailerFailureDoesNotFailRegistration(t *testing.T) {
	svc, repo, mailer, _ := newTestService(t)
	mailer.Err = assert.AnError

	user := registerTestUser(t, svc, "jane@example.com")

	// The account and its activation token exist even though delivery failed
	tokens, err := repo.ListUserVerificationTokens(context.Background(), user.ID, models.PurposeAccountActivation)
	require.NoError(t, err)
	assert.Len(t, tokens, 1)
}

func TestLogin_BeforeVerification(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	registerTestUser(t, svc, "jane@example.com")

	_, err := svc.Login(context.Background(), "jane@example.com", testPassword)

	assert.ErrorIs(t, err, auth.ErrAccountInactive)
}

func TestLogin_AfterVerification(t *testing.T) {
	svc, _, mailer, _ := newTestService(t)
	ctx := context.Background()

	user := registerTestUser(t, svc, "jane@example.com")
	require.NoError(t, svc.VerifyEmail(ctx, mailer.Sent[0].Token))

	result, err := svc.Login(ctx, "jane@example.com", testPassword)

	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
	assert.Equal(t, "bearer", result.TokenType)
	assert.Equal(t, strconv.FormatInt(user.ID, 10), result.UserID)
	assert.Equal(t, models.UserTypeTeacher, result.UserType)

	claims, err := svc.TokenIssuer().Verify(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", claims.Email)
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, _, mailer, _ := newTestService(t)
	ctx := context.Background()

	registerTestUser(t, svc, "jane@example.com")
	require.NoError(t, svc.VerifyEmail(ctx, mailer.Sent[0].Token))

	_, err := svc.Login(ctx, "jane@example.com", "Wr0ng!Pass")

	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestLogin_UnknownEmail(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.Login(context.Background(), "nobody@example.com", testPassword)

	// Indistinguishable from a wrong password
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestLogin_CaseInsensitiveEmail(t *testing.T) {
	svc, _, mailer, _ := newTestService(t)
	ctx := context.Background()

	registerTestUser(t, svc, "jane@example.com")
	require.NoError(t, svc.VerifyEmail(ctx, mailer.Sent[0].Token))

	_, err := svc.Login(ctx, "JANE@EXAMPLE.COM", testPassword)

	assert.NoError(t, err)
}

func TestVerifyEmail_TokenRedeemsOnce(t *testing.T) {
	svc, _, mailer, _ := newTestService(t)
	ctx := context.Background()

	registerTestUser(t, svc, "jane@example.com")
	token := mailer.Sent[0].Token

	require.NoError(t, svc.VerifyEmail(ctx, token))

	err := svc.VerifyEmail(ctx, token)

	assert.ErrorIs(t, err, auth.ErrTokenAlreadyUsed)
}

func TestVerifyEmail_UnknownToken(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	err := svc.VerifyEmail(context.Background(), "nonexistent")

	assert.ErrorIs(t, err, auth.ErrTokenNotFound)
}

func TestRequestPasswordReset(t *testing.T) {
	svc, _, mailer, _ := newTestService(t)
	ctx := context.Background()

	registerTestUser(t, svc, "jane@example.com")
	mailer.Sent = nil

	err := svc.RequestPasswordReset(ctx, "jane@example.com")

	require.NoError(t, err)
	require.Len(t, mailer.Sent, 1)
	assert.Equal(t, models.PurposePasswordReset, mailer.Sent[0].Purpose)
}

func TestRequestPasswordReset_UnknownEmailSilent(t *testing.T) {
	svc, repo, mailer, _ := newTestService(t)
	ctx := context.Background()

	err := svc.RequestPasswordReset(ctx, "nobody@example.com")

	// Success without issuing anything, so callers cannot probe for accounts
	require.NoError(t, err)
	assert.Empty(t, mailer.Sent)

	count, err := repo.CountVerificationTokens(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestConfirmPasswordReset(t *testing.T) {
	svc, _, mailer, _ := newTestService(t)
	ctx := context.Background()

	registerTestUser(t, svc, "jane@example.com")
	require.NoError(t, svc.VerifyEmail(ctx, mailer.Sent[0].Token))
	mailer.Sent = nil

	require.NoError(t, svc.RequestPasswordReset(ctx, "jane@example.com"))
	token := mailer.Sent[0].Token

	const newPassword = "N3w!Password"
	require.NoError(t, svc.ConfirmPasswordReset(ctx, token, newPassword))

	// Old password no longer works, new one does
	_, err := svc.Login(ctx, "jane@example.com", testPassword)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "jane@example.com", newPassword)
	assert.NoError(t, err)

	// The token is spent
	err = svc.ConfirmPasswordReset(ctx, token, "An0ther!Pass")
	assert.ErrorIs(t, err, auth.ErrTokenAlreadyUsed)
}

func TestConfirmPasswordReset_WeakPasswordLeavesTokenUnspent(t *testing.T) {
	svc, _, mailer, _ := newTestService(t)
	ctx := context.Background()

	registerTestUser(t, svc, "jane@example.com")
	mailer.Sent = nil
	require.NoError(t, svc.RequestPasswordReset(ctx, "jane@example.com"))
	token := mailer.Sent[0].Token

	err := svc.ConfirmPasswordReset(ctx, token, "weak")

	var validationErr *auth.PasswordValidationError
	require.ErrorAs(t, err, &validationErr)

	// The rejected attempt must not consume the token
	err = svc.ConfirmPasswordReset(ctx, token, "N3w!Password")
	assert.NoError(t, err)
}

func TestConfirmPasswordReset_ActivationTokenRejected(t *testing.T) {
	svc, _, mailer, _ := newTestService(t)
	ctx := context.Background()

	registerTestUser(t, svc, "jane@example.com")
	activationToken := mailer.Sent[0].Token

	err := svc.ConfirmPasswordReset(ctx, activationToken, "N3w!Password")

	assert.ErrorIs(t, err, auth.ErrTokenPurposeMismatch)
}

func googleIdentity() *oauth.ExternalIdentity {
	return &oauth.ExternalIdentity{
		SubjectID:     "google-sub-1",
		Email:         "jane@example.com",
		FirstName:     "Jane",
		LastName:      "Doe",
		EmailVerified: true,
	}
}

func TestLoginWithGoogleCode_NewUser(t *testing.T) {
	svc, repo, _, exchanger := newTestService(t)
	ctx := context.Background()
	exchanger.Identity = googleIdentity()

	result, err := svc.LoginWithGoogleCode(ctx, "auth-code")

	require.NoError(t, err)
	assert.True(t, result.IsNewUser)
	assert.NotEmpty(t, result.AccessToken)
	assert.Equal(t, "jane@example.com", result.Email)

	user, err := repo.GetUserByGoogleID(ctx, "google-sub-1")
	require.NoError(t, err)
	assert.True(t, user.IsActive)
	assert.True(t, user.IsOAuthUser)
	assert.Equal(t, models.UserTypeTeacher, user.UserType)
}

func TestLoginWithGoogleCode_ReturningUser(t *testing.T) {
	svc, _, _, exchanger := newTestService(t)
	ctx := context.Background()
	exchanger.Identity = googleIdentity()

	first, err := svc.LoginWithGoogleCode(ctx, "auth-code")
	require.NoError(t, err)
	require.True(t, first.IsNewUser)

	second, err := svc.LoginWithGoogleCode(ctx, "auth-code")
	require.NoError(t, err)
	assert.False(t, second.IsNewUser)
	assert.Equal(t, first.UserID, second.UserID)
}

func TestLoginWithGoogleCode_LinksExistingAccount(t *testing.T) {
	svc, repo, mailer, exchanger := newTestService(t)
	ctx := context.Background()

	existing := registerTestUser(t, svc, "jane@example.com")
	require.NoError(t, svc.VerifyEmail(ctx, mailer.Sent[0].Token))

	exchanger.Identity = googleIdentity()
	result, err := svc.LoginWithGoogleCode(ctx, "auth-code")

	require.NoError(t, err)
	assert.False(t, result.IsNewUser)
	assert.Equal(t, strconv.FormatInt(existing.ID, 10), result.UserID)

	linked, err := repo.GetUserByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "google-sub-1", linked.GoogleID.String)
}

func TestLoginWithGoogleCode_ActivatesUnverifiedAccount(t *testing.T) {
	svc, repo, _, exchanger := newTestService(t)
	ctx := context.Background()

	// Registered but the verification link was never clicked
	user := registerTestUser(t, svc, "jane@example.com")

	exchanger.Identity = googleIdentity()
	result, err := svc.LoginWithGoogleCode(ctx, "auth-code")

	require.NoError(t, err)
	assert.False(t, result.IsNewUser)
	assert.NotEmpty(t, result.AccessToken)

	// Google verified the same email, so linking satisfied the pending
	// activation
	linked, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, linked.IsActive)

	_, err = svc.Login(ctx, "jane@example.com", testPassword)
	assert.NoError(t, err)
}

func TestLoginWithGoogleCode_EmailLinkedElsewhere(t *testing.T) {
	svc, _, mailer, exchanger := newTestService(t)
	ctx := context.Background()

	registerTestUser(t, svc, "jane@example.com")
	require.NoError(t, svc.VerifyEmail(ctx, mailer.Sent[0].Token))

	// Link the account to one Google identity
	exchanger.Identity = googleIdentity()
	_, err := svc.LoginWithGoogleCode(ctx, "auth-code")
	require.NoError(t, err)

	// A different Google identity with the same email is rejected
	other := googleIdentity()
	other.SubjectID = "google-sub-2"
	exchanger.Identity = other
	_, err = svc.LoginWithGoogleCode(ctx, "auth-code")

	assert.ErrorIs(t, err, auth.ErrAccountConflict)
}

func TestLoginWithGoogleCode_UnverifiedProviderEmail(t *testing.T) {
	svc, _, _, exchanger := newTestService(t)
	identity := googleIdentity()
	identity.EmailVerified = false
	exchanger.Identity = identity

	_, err := svc.LoginWithGoogleCode(context.Background(), "auth-code")

	assert.ErrorIs(t, err, oauth.ErrAssertionInvalid)
}

func TestLoginWithGoogleCode_ExchangeFailure(t *testing.T) {
	svc, _, _, exchanger := newTestService(t)
	exchanger.Err = oauth.ErrExchangeFailed

	_, err := svc.LoginWithGoogleCode(context.Background(), "bad-code")

	assert.ErrorIs(t, err, oauth.ErrExchangeFailed)
}

func TestLoginWithGoogleIDToken(t *testing.T) {
	svc, _, _, exchanger := newTestService(t)
	exchanger.Identity = googleIdentity()

	result, err := svc.LoginWithGoogleIDToken(context.Background(), "id-token")

	require.NoError(t, err)
	assert.True(t, result.IsNewUser)
	assert.Equal(t, "Jane", result.FirstName)
}

func TestGoogleUser_CannotLoginWithPassword(t *testing.T) {
	svc, _, _, exchanger := newTestService(t)
	ctx := context.Background()
	exchanger.Identity = googleIdentity()

	_, err := svc.LoginWithGoogleCode(ctx, "auth-code")
	require.NoError(t, err)

	// The placeholder password hash of an OAuth account matches nothing a
	// caller could send
	_, err = svc.Login(ctx, "jane@example.com", testPassword)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestGetProfile(t *testing.T) {
	svc, _, mailer, _ := newTestService(t)
	ctx := context.Background()

	user := registerTestUser(t, svc, "jane@example.com")
	require.NoError(t, svc.VerifyEmail(ctx, mailer.Sent[0].Token))

	profile, err := svc.GetProfile(ctx, user.ID)

	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", profile.Email)
	assert.Equal(t, "Jane", profile.FirstName)
	assert.Nil(t, profile.Phone)
	assert.Nil(t, profile.Country)
}

func TestGetProfile_NotFound(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.GetProfile(context.Background(), 9999)

	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestUpdateProfile(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()

	user := registerTestUser(t, svc, "jane@example.com")
	require.NoError(t, repo.SeedCountries(ctx, []models.Country{{Name: "Spain", Code: "ESP"}}))
	countries, err := repo.ListCountries(ctx)
	require.NoError(t, err)

	firstName := "Janet"
	phone := "+34 600 000 000"
	profile, err := svc.UpdateProfile(ctx, user.ID, auth.UpdateProfileParams{
		FirstName: &firstName,
		Phone:     &phone,
		CountryID: &countries[0].ID,
	})

	require.NoError(t, err)
	assert.Equal(t, "Janet", profile.FirstName)
	// Untouched fields survive the partial update
	assert.Equal(t, "Doe", profile.LastName)
	require.NotNil(t, profile.Phone)
	assert.Equal(t, phone, *profile.Phone)
	require.NotNil(t, profile.Country)
	assert.Equal(t, "ESP", profile.Country.Code)
}

func TestEnsureAdmin(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureAdmin(ctx, "admin@example.com", "Adm1n!Pass"))

	admin, err := repo.GetUserByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.UserTypeAdmin, admin.UserType)
	assert.True(t, admin.IsActive)

	result, err := svc.Login(ctx, "admin@example.com", "Adm1n!Pass")
	require.NoError(t, err)
	assert.Equal(t, models.UserTypeAdmin, result.UserType)
}

func TestEnsureAdmin_SkipsWhenAdminExists(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureAdmin(ctx, "admin@example.com", "Adm1n!Pass"))
	require.NoError(t, svc.EnsureAdmin(ctx, "second@example.com", "Adm1n!Pass"))

	_, err := repo.GetUserByEmail(ctx, "second@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestEnsureAdmin_SkipsWithoutCredentials(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureAdmin(ctx, "", ""))

	count, err := repo.CountAdmins(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
