// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/acrispin/identity/internal/config"
	"github.com/acrispin/identity/internal/models"
	"github.com/acrispin/identity/internal/repository"
	"github.com/acrispin/identity/internal/services/oauth"
)

// dummyHash is used for constant-time login to prevent timing attacks
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

// Mailer delivers account emails. Calls are fire-and-forget from the
// service's perspective: a delivery failure never rolls back token issuance.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, toEmail, firstName, token string) error
	SendPasswordResetEmail(ctx context.Context, toEmail, firstName, token string) error
}

// Exchanger resolves Google credentials into a verified external identity.
type Exchanger interface {
	ExchangeCode(ctx context.Context, code string) (*oauth.ExternalIdentity, error)
	VerifyIDToken(ctx context.Context, rawToken string) (*oauth.ExternalIdentity, error)
}

// Service coordinates credentials, tokens and the user store for every auth
// use case. It holds no per-request state.
type Service struct {
	repo      *repository.Repository
	issuer    *TokenIssuer
	tokens    *VerificationTokens
	hasher    *Hasher
	validator *PasswordValidator
	mailer    Mailer
	exchanger Exchanger

	verificationTTL  time.Duration
	passwordResetTTL time.Duration
}

// NewService creates the auth service.
func NewService(repo *repository.Repository, issuer *TokenIssuer, mailer Mailer, exchanger Exchanger, tokens config.TokenConfig) *Service {
	return &Service{
		repo:             repo,
		issuer:           issuer,
		tokens:           NewVerificationTokens(repo),
		hasher:           NewHasher(bcrypt.DefaultCost),
		validator:        DefaultPasswordValidator(),
		mailer:           mailer,
		exchanger:        exchanger,
		verificationTTL:  tokens.VerificationTTL,
		passwordResetTTL: tokens.PasswordResetTTL,
	}
}

// PasswordValidator returns the password validator for use in handlers
func (s *Service) PasswordValidator() *PasswordValidator {
	return s.validator
}

// TokenIssuer returns the access token issuer, for bearer middleware.
func (s *Service) TokenIssuer() *TokenIssuer {
	return s.issuer
}

// LoginResult is returned on a successful authentication.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      string `json:"user_id"`
	UserType    string `json:"user_type"`
}

// Login authenticates a user by email and password and issues an access
// token. Absent account and wrong password are indistinguishable in the
// returned failure.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Constant-time: always perform bcrypt comparison to prevent timing attacks
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			slog.Warn("login_failed", "email", email, "reason", "user_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		slog.Warn("login_failed", "email", email, "reason", "invalid_password")
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		slog.Warn("login_failed", "email", email, "reason", "account_inactive")
		return nil, ErrAccountInactive
	}

	token, err := s.issuer.Issue(user.ID, user.UserType, user.Email)
	if err != nil {
		return nil, err
	}

	slog.Info("login_success", "user_id", user.ID, "email", user.Email)
	return &LoginResult{
		AccessToken: token,
		TokenType:   "bearer",
		UserID:      strconv.FormatInt(user.ID, 10),
		UserType:    user.UserType,
	}, nil
}

// RegisterParams holds the parameters for user registration
type RegisterParams struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	CountryID *int64
}

// RegisterWithEmail creates a new inactive account, issues an email
// verification token and hands it off for delivery.
func (s *Service) RegisterWithEmail(ctx context.Context, params RegisterParams) (*models.User, error) {
	// Validate email format
	if _, err := mail.ParseAddress(params.Email); err != nil {
		return nil, ErrInvalidEmail
	}

	// Validate password before any state mutation
	validation := s.validator.Validate(params.Password)
	if !validation.Valid {
		return nil, &PasswordValidationError{Errors: validation.Errors}
	}

	exists, err := s.repo.EmailExists(ctx, params.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if exists {
		slog.Warn("register_failed", "email", params.Email, "reason", "duplicate_email")
		return nil, ErrDuplicateEmail
	}

	passwordHash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        params.Email,
		PasswordHash: passwordHash,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		Phone:        nullString(params.Phone),
		UserType:     models.UserTypeTeacher,
		IsActive:     false,
		IsOAuthUser:  false,
		CountryID:    nullInt64(params.CountryID),
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		// The store's uniqueness constraint closes the gap left by the
		// existence pre-check under concurrent registration.
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.tokens.IssueFor(ctx, user.ID, models.PurposeAccountActivation, s.verificationTTL)
	if err != nil {
		return nil, err
	}

	s.deliver(ctx, user, token, s.mailer.SendVerificationEmail)

	slog.Info("register_success", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// VerifyEmail redeems an account activation token and activates the account.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	userID, err := s.tokens.Redeem(ctx, token, models.PurposeAccountActivation)
	if err != nil {
		slog.Warn("verify_email_failed", "reason", err)
		return err
	}

	if err := s.repo.MarkUserActive(ctx, userID); err != nil {
		return fmt.Errorf("failed to activate user: %w", err)
	}

	slog.Info("verify_email_success", "user_id", userID)
	return nil
}

// RequestPasswordReset issues a reset token for the account and hands it
// off for delivery. An unknown email returns success without issuing
// anything, so callers cannot probe for registered addresses.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			slog.Warn("password_reset_requested_for_unknown_email", "email", email)
			return nil
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	token, err := s.tokens.IssueFor(ctx, user.ID, models.PurposePasswordReset, s.passwordResetTTL)
	if err != nil {
		return err
	}

	s.deliver(ctx, user, token, s.mailer.SendPasswordResetEmail)

	slog.Info("password_reset_requested", "user_id", user.ID)
	return nil
}

// ConfirmPasswordReset redeems a reset token and stores the new password.
func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	validation := s.validator.Validate(newPassword)
	if !validation.Valid {
		return &PasswordValidationError{Errors: validation.Errors}
	}

	userID, err := s.tokens.Redeem(ctx, token, models.PurposePasswordReset)
	if err != nil {
		slog.Warn("password_reset_failed", "reason", err)
		return err
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateUserPassword(ctx, userID, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	slog.Info("password_reset_success", "user_id", userID)
	return nil
}

// GoogleLoginResult extends LoginResult with the resolved identity and
// whether a new account was created.
type GoogleLoginResult struct {
	LoginResult
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsNewUser bool   `json:"is_new_user"`
}

// LoginWithGoogleCode exchanges an authorization code and logs the user in,
// creating or linking an account as needed.
func (s *Service) LoginWithGoogleCode(ctx context.Context, code string) (*GoogleLoginResult, error) {
	identity, err := s.exchanger.ExchangeCode(ctx, code)
	if err != nil {
		slog.Warn("google_code_exchange_failed", "reason", err)
		return nil, err
	}
	return s.loginOrRegisterExternal(ctx, identity)
}

// LoginWithGoogleIDToken verifies a Google ID token assertion and logs the
// user in, creating or linking an account as needed.
func (s *Service) LoginWithGoogleIDToken(ctx context.Context, rawToken string) (*GoogleLoginResult, error) {
	identity, err := s.exchanger.VerifyIDToken(ctx, rawToken)
	if err != nil {
		slog.Warn("google_assertion_failed", "reason", err)
		return nil, err
	}
	return s.loginOrRegisterExternal(ctx, identity)
}

// loginOrRegisterExternal resolves an external identity to an account:
// by subject id first, then by email (linking the subject id), otherwise a
// new active account is created. The provider already verified the email,
// which is exactly what activation waits on, so no inactive check happens
// here and linking activates a not-yet-verified account.
func (s *Service) loginOrRegisterExternal(ctx context.Context, identity *oauth.ExternalIdentity) (*GoogleLoginResult, error) {
	if !identity.EmailVerified {
		return nil, fmt.Errorf("%w: provider email not verified", oauth.ErrAssertionInvalid)
	}

	isNew := false
	user, err := s.repo.GetUserByGoogleID(ctx, identity.SubjectID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up google id: %w", err)
		}
		user, isNew, err = s.linkOrCreateExternal(ctx, identity)
		if err != nil {
			return nil, err
		}
	}

	token, err := s.issuer.Issue(user.ID, user.UserType, user.Email)
	if err != nil {
		return nil, err
	}

	slog.Info("google_login_success", "user_id", user.ID, "email", user.Email, "is_new_user", isNew)
	return &GoogleLoginResult{
		LoginResult: LoginResult{
			AccessToken: token,
			TokenType:   "bearer",
			UserID:      strconv.FormatInt(user.ID, 10),
			UserType:    user.UserType,
		},
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		IsNewUser: isNew,
	}, nil
}

func (s *Service) linkOrCreateExternal(ctx context.Context, identity *oauth.ExternalIdentity) (*models.User, bool, error) {
	existing, err := s.repo.GetUserByEmail(ctx, identity.Email)
	if err == nil {
		if existing.GoogleID.Valid && existing.GoogleID.String != identity.SubjectID {
			slog.Warn("google_login_failed", "email", identity.Email, "reason", "email_linked_elsewhere")
			return nil, false, ErrAccountConflict
		}
		if err := s.repo.LinkGoogleID(ctx, existing.ID, identity.SubjectID); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return nil, false, ErrAccountConflict
			}
			return nil, false, fmt.Errorf("failed to link google id: %w", err)
		}
		if !existing.IsActive {
			// The provider verified the email, so the pending activation
			// is satisfied.
			if err := s.repo.MarkUserActive(ctx, existing.ID); err != nil {
				return nil, false, fmt.Errorf("failed to activate user: %w", err)
			}
			existing.IsActive = true
		}
		slog.Info("google_id_linked", "user_id", existing.ID, "email", existing.Email)
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to get user: %w", err)
	}

	// Brand-new identity. The account never gets a usable password; the
	// random placeholder only satisfies the schema.
	placeholder, err := s.hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, false, err
	}

	user := &models.User{
		Email:        identity.Email,
		PasswordHash: placeholder,
		FirstName:    identity.FirstName,
		LastName:     identity.LastName,
		UserType:     models.UserTypeTeacher,
		IsActive:     true, // provider already verified the email
		GoogleID:     sql.NullString{String: identity.SubjectID, Valid: true},
		IsOAuthUser:  true,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, false, ErrAccountConflict
		}
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("google_user_created", "user_id", user.ID, "email", user.Email)
	return user, true, nil
}

// Profile is the account projection returned to the authenticated user.
type Profile struct {
	Email     string          `json:"email"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	UserType  string          `json:"user_type"`
	Phone     *string         `json:"phone,omitempty"`
	Country   *models.Country `json:"country,omitempty"`
}

// GetProfile returns the profile of an account, resolving the country
// reference explicitly.
func (s *Service) GetProfile(ctx context.Context, userID int64) (*Profile, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return s.buildProfile(ctx, user)
}

// UpdateProfileParams carries the profile fields to change. Nil fields are
// left untouched.
type UpdateProfileParams struct {
	FirstName *string
	LastName  *string
	Phone     *string
	CountryID *int64
}

// UpdateProfile merges the provided fields into the account profile.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, params UpdateProfileParams) (*Profile, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if params.FirstName != nil {
		user.FirstName = *params.FirstName
	}
	if params.LastName != nil {
		user.LastName = *params.LastName
	}
	if params.Phone != nil {
		user.Phone = nullString(*params.Phone)
	}
	if params.CountryID != nil {
		user.CountryID = sql.NullInt64{Int64: *params.CountryID, Valid: true}
	}

	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	slog.Info("profile_updated", "user_id", user.ID)
	return s.buildProfile(ctx, user)
}

func (s *Service) buildProfile(ctx context.Context, user *models.User) (*Profile, error) {
	profile := &Profile{
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		UserType:  user.UserType,
	}
	if user.Phone.Valid {
		profile.Phone = &user.Phone.String
	}
	if user.CountryID.Valid {
		country, err := s.repo.GetCountryByID(ctx, user.CountryID.Int64)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("failed to resolve country: %w", err)
		}
		profile.Country = country
	}
	return profile, nil
}

// EnsureAdmin creates the default administrative account when no admin
// exists yet. Safe to call on every startup.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}

	count, err := s.repo.CountAdmins(ctx)
	if err != nil {
		return fmt.Errorf("failed to count admins: %w", err)
	}
	if count > 0 {
		return nil
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	admin := &models.User{
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    "Admin",
		LastName:     "User",
		UserType:     models.UserTypeAdmin,
		IsActive:     true,
	}
	if err := s.repo.CreateUser(ctx, admin); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// An account with this email exists already; leave it alone.
			return nil
		}
		return fmt.Errorf("failed to create admin: %w", err)
	}

	slog.Info("admin_created", "user_id", admin.ID, "email", admin.Email)
	return nil
}

// deliver sends an account email best-effort. Delivery is fire-and-forget
// from the caller's perspective: failures are logged and never roll back
// the token that was just issued.
func (s *Service) deliver(ctx context.Context, user *models.User, token string, send func(ctx context.Context, toEmail, firstName, token string) error) {
	if err := send(ctx, user.Email, user.FirstName, token); err != nil {
		slog.Error("email_delivery_failed", "user_id", user.ID, "error", err)
	}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
